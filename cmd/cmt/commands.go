package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	cmt "github.com/solana-labs/solana-program-library-sub018"
	"github.com/urfave/cli/v2"
)

var (
	depthFlag = cli.UintFlag{
		Name:  "depth",
		Usage: "max depth of the tree",
		Value: 14,
	}
	bufferFlag = cli.UintFlag{
		Name:  "buffer",
		Usage: "max buffer size of the change log",
		Value: 64,
	}
	canopyFlag = cli.UintFlag{
		Name:  "canopy",
		Usage: "number of levels below the root cached in the canopy",
		Value: 0,
	}
	hasherFlag = cli.StringFlag{
		Name:  "hasher",
		Usage: fmt.Sprintf("node hash function, one of %v", cmt.HasherNames()),
		Value: cmt.Keccak256.Name(),
	}
	idFlag = cli.StringFlag{
		Name:  "id",
		Usage: "hex tree id, random if empty",
	}
)

var Supported = cli.Command{
	Action: doSupported,
	Name:   "supported",
	Usage:  "list the supported (depth, buffer size) pairs and their sizes",
}

var Size = cli.Command{
	Action: doSize,
	Name:   "size",
	Usage:  "print the number of bytes an account needs",
	Flags:  []cli.Flag{&depthFlag, &bufferFlag, &canopyFlag},
}

var Create = cli.Command{
	Action: doCreate,
	Name:   "create",
	Usage:  "create an empty tree in the workspace",
	Flags:  []cli.Flag{&depthFlag, &bufferFlag, &canopyFlag, &hasherFlag, &idFlag},
}

var Append = cli.Command{
	Action:    doAppend,
	Name:      "append",
	Usage:     "append leaves and print the emitted events",
	ArgsUsage: "<leaf hex>...",
}

var Replace = cli.Command{
	Action:    doReplace,
	Name:      "replace",
	Usage:     "replace a leaf using a proof rebuilt from the event log",
	ArgsUsage: "<index> <leaf hex>",
}

var Prove = cli.Command{
	Action:    doProve,
	Name:      "prove",
	Usage:     "print a proof of a leaf against the current root",
	ArgsUsage: "<index>",
}

var Verify = cli.Command{
	Action:    doVerify,
	Name:      "verify",
	Usage:     "check that a leaf holds a value",
	ArgsUsage: "<index> <leaf hex>",
}

var Show = cli.Command{
	Action: doShow,
	Name:   "show",
	Usage:  "describe the tree at the head of the workspace",
}

func printJSON(context *cli.Context, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(context.App.Writer, string(b))
	return err
}

func doSupported(context *cli.Context) error {
	for _, c := range cmt.SupportedConstants() {
		size, err := cmt.TreeSize(c.MaxDepth, c.MaxBufferSize)
		if err != nil {
			return err
		}
		fmt.Fprintf(context.App.Writer, "%2d %5d %9d\n", c.MaxDepth, c.MaxBufferSize, size)
	}
	return nil
}

func doSize(context *cli.Context) error {
	size, err := cmt.AccountSize(
		uint32(context.Uint(depthFlag.Name)),
		uint32(context.Uint(bufferFlag.Name)),
		uint32(context.Uint(canopyFlag.Name)))
	if err != nil {
		return err
	}
	fmt.Fprintln(context.App.Writer, size)
	return nil
}

func treeID(context *cli.Context) (cmt.Node, error) {
	if s := context.String(idFlag.Name); s != "" {
		return cmt.ParseNode(s)
	}
	var id cmt.Node
	u := uuid.New()
	copy(id[:], u[:])
	return id, nil
}

func doCreate(context *cli.Context) error {
	ws, err := openWorkspace(context)
	if err != nil {
		return err
	}
	defer ws.Close()
	if _, err := os.Stat(filepath.Join(ws.dir, headFile)); err == nil {
		return fmt.Errorf("%s already holds a tree", ws.dir)
	}
	h, err := cmt.HasherByName(context.String(hasherFlag.Name))
	if err != nil {
		return err
	}
	id, err := treeID(context)
	if err != nil {
		return err
	}
	a, err := cmt.NewAccount(id,
		uint32(context.Uint(depthFlag.Name)),
		uint32(context.Uint(bufferFlag.Name)),
		uint32(context.Uint(canopyFlag.Name)),
		&cmt.Config{Hasher: h, Logger: ws.log})
	if err != nil {
		return err
	}
	snap, err := ws.save(context, a, nil)
	if err != nil {
		return err
	}
	return printJSON(context, snap)
}

func doAppend(context *cli.Context) error {
	if context.Args().Len() == 0 {
		return errors.New("missing leaf parameter")
	}
	ws, err := openWorkspace(context)
	if err != nil {
		return err
	}
	defer ws.Close()
	a, _, err := ws.load(context)
	if err != nil {
		return err
	}
	var events []*cmt.ChangeLogEvent
	for _, arg := range context.Args().Slice() {
		leaf, err := cmt.ParseNode(arg)
		if err != nil {
			return err
		}
		e, err := a.Append(leaf)
		if err != nil {
			return err
		}
		events = append(events, e)
	}
	if _, err := ws.save(context, a, events); err != nil {
		return err
	}
	for _, e := range events {
		if err := printJSON(context, e); err != nil {
			return err
		}
	}
	return nil
}

func indexAndLeaf(context *cli.Context) (uint32, cmt.Node, error) {
	if context.Args().Len() != 2 {
		return 0, cmt.Empty, errors.New("expected <index> <leaf hex>")
	}
	index, err := strconv.ParseUint(context.Args().Get(0), 10, 32)
	if err != nil {
		return 0, cmt.Empty, fmt.Errorf("index: %w", err)
	}
	leaf, err := cmt.ParseNode(context.Args().Get(1))
	return uint32(index), leaf, err
}

func doReplace(context *cli.Context) error {
	index, leaf, err := indexAndLeaf(context)
	if err != nil {
		return err
	}
	ws, err := openWorkspace(context)
	if err != nil {
		return err
	}
	defer ws.Close()
	a, _, err := ws.load(context)
	if err != nil {
		return err
	}
	r, err := ws.replica(a)
	if err != nil {
		return err
	}
	p, err := r.ProofForCanopy(index, a.Canopy().Depth())
	if err != nil {
		return err
	}
	e, err := a.ReplaceLeaf(p.ReplaceArgs(leaf))
	if err != nil {
		return err
	}
	if _, err := ws.save(context, a, []*cmt.ChangeLogEvent{e}); err != nil {
		return err
	}
	return printJSON(context, e)
}

type proofOutput struct {
	Root  string   `json:"root"`
	Leaf  string   `json:"leaf"`
	Index uint32   `json:"index"`
	Seq   uint64   `json:"seq"`
	Proof []string `json:"proof"`
}

func doProve(context *cli.Context) error {
	if context.Args().Len() != 1 {
		return errors.New("expected <index>")
	}
	index, err := strconv.ParseUint(context.Args().Get(0), 10, 32)
	if err != nil {
		return fmt.Errorf("index: %w", err)
	}
	ws, err := openWorkspace(context)
	if err != nil {
		return err
	}
	defer ws.Close()
	a, _, err := ws.load(context)
	if err != nil {
		return err
	}
	r, err := ws.replica(a)
	if err != nil {
		return err
	}
	p, err := r.Proof(uint32(index))
	if err != nil {
		return err
	}
	out := proofOutput{
		Root:  hex.EncodeToString(p.Root[:]),
		Leaf:  hex.EncodeToString(p.Leaf[:]),
		Index: p.Index,
		Seq:   p.Seq,
	}
	for _, n := range p.Proof {
		out.Proof = append(out.Proof, hex.EncodeToString(n[:]))
	}
	return printJSON(context, out)
}

func doVerify(context *cli.Context) error {
	index, leaf, err := indexAndLeaf(context)
	if err != nil {
		return err
	}
	ws, err := openWorkspace(context)
	if err != nil {
		return err
	}
	defer ws.Close()
	a, _, err := ws.load(context)
	if err != nil {
		return err
	}
	r, err := ws.replica(a)
	if err != nil {
		return err
	}
	p, err := r.ProofForCanopy(index, a.Canopy().Depth())
	if err != nil {
		return err
	}
	err = a.VerifyLeaf(&cmt.ProveLeafArgs{Root: p.Root, Leaf: leaf, Proof: p.Proof, Index: index})
	if err != nil {
		return err
	}
	fmt.Fprintln(context.App.Writer, "ok")
	return nil
}

type showOutput struct {
	*cmt.Snapshot
	RightmostIndex uint32 `json:"rightmostIndex"`
	BufferSize     uint32 `json:"bufferSize"`
}

func doShow(context *cli.Context) error {
	ws, err := openWorkspace(context)
	if err != nil {
		return err
	}
	defer ws.Close()
	a, snap, err := ws.load(context)
	if err != nil {
		return err
	}
	return printJSON(context, showOutput{
		Snapshot:       snap,
		RightmostIndex: a.Tree().RightmostIndex(),
		BufferSize:     a.Tree().BufferSize(),
	})
}
