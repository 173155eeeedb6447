package cmt_test

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/commands"
	"github.com/leanovate/gopter/gen"
	cmt "github.com/solana-labs/solana-program-library-sub018"
	"github.com/solana-labs/solana-program-library-sub018/reference"
	"github.com/stretchr/testify/assert"
)

const (
	exDepth    = 5
	exBuffer   = 8
	exCanopy   = 2
	exCapacity = 1 << exDepth
	uimax      = 99_999
	nHeld      = 4
)

var (
	cmdCount = 0
	maxSeq   uint64
	debug    = false
)

func progress(i interface{}) {
	if debug {
		fmt.Printf("%v\n", i)
	}
}

func leafFor(v uint) cmt.Node {
	var n cmt.Node
	binary.LittleEndian.PutUint64(n[:], uint64(v))
	n[31] = 0xc3
	return n
}

type write struct {
	index uint32
	leaf  cmt.Node
}

type heldProof struct {
	index   uint32
	claimed cmt.Node
	seq     uint64
}

// expected models the tree as a plain list of leaves plus the history of
// writes, which is enough to predict how held proofs fast-forward.
type expected struct {
	leaves  []cmt.Node
	writes  []write
	held    []*heldProof
	outcome error
}

func (s *expected) seq() uint64 { return uint64(len(s.writes)) }

func (s *expected) write(index uint32, leaf cmt.Node) {
	if int(index) == len(s.leaves) {
		s.leaves = append(s.leaves, leaf)
	} else {
		s.leaves[index] = leaf
	}
	s.writes = append(s.writes, write{index, leaf})
}

func (s *expected) root() cmt.Node {
	ref, err := reference.FromLeaves(exDepth, nil, s.leaves)
	if err != nil {
		panic(err)
	}
	return ref.Root()
}

// heldSlot returns the first slot from start whose proof root is still in the
// change log. Snapshots forget the last evicted root, so older proofs are not
// predictable across RoundTrip.
func (s *expected) heldSlot(start int) int {
	for i := 0; i < nHeld; i++ {
		slot := (start + i) % nHeld
		if h := s.held[slot]; h != nil && s.seq()-h.seq < exBuffer {
			return slot
		}
	}
	return -1
}

type system struct {
	account  *cmt.Account
	ref      *reference.Tree
	store    *cmt.Store
	held     []*cmt.ReplaceLeafArgs
	heldSeq  []uint64
	cmdCount int
}

func (sys *system) heldSlot(start int) int {
	seq := sys.account.Tree().Sequence()
	for i := 0; i < nHeld; i++ {
		slot := (start + i) % nHeld
		if sys.held[slot] != nil && seq-sys.heldSeq[slot] < exBuffer {
			return slot
		}
	}
	return -1
}

func (sys *system) proof(index uint32) []cmt.Node {
	return sys.ref.Proof(index)[:exDepth-exCanopy]
}

func (sys *system) rightmost() uint32 {
	return sys.account.Tree().RightmostIndex()
}

type outcome struct {
	event *cmt.ChangeLogEvent
	err   error
}

func (sys *system) record(e *cmt.ChangeLogEvent, err error) commands.Result {
	if err == nil {
		sys.ref.SetLeaf(e.Index, e.Leaf())
		sys.cmdCount++
	}
	return outcome{e, err}
}

func checkOutcome(name fmt.Stringer, state commands.State, result commands.Result) *gopter.PropResult {
	s := state.(*expected)
	r, ok := result.(outcome)
	if !ok {
		fmt.Printf("%v: unexpected result %v\n", name, result)
		return &gopter.PropResult{Status: gopter.PropFalse}
	}
	if s.outcome != nil {
		if !errors.Is(r.err, s.outcome) {
			fmt.Printf("%v: expected %v, got %v\n", name, s.outcome, r.err)
			return &gopter.PropResult{Status: gopter.PropFalse}
		}
		progress(name)
		return &gopter.PropResult{Status: gopter.PropTrue}
	}
	if r.err != nil {
		fmt.Printf("%v: %v\n", name, r.err)
		return &gopter.PropResult{Status: gopter.PropFalse}
	}
	if r.event.Root() != s.root() || r.event.Seq != s.seq() {
		fmt.Printf("%v: event for seq %d does not match model at seq %d\n", name, r.event.Seq, s.seq())
		return &gopter.PropResult{Status: gopter.PropFalse}
	}
	progress(name)
	return &gopter.PropResult{Status: gopter.PropTrue}
}

type appendCommand uint

func (value appendCommand) Run(s commands.SystemUnderTest) commands.Result {
	sys := s.(*system)
	return sys.record(sys.account.Append(leafFor(uint(value))))
}

func (value appendCommand) NextState(state commands.State) commands.State {
	s := state.(*expected)
	s.outcome = nil
	s.write(uint32(len(s.leaves)), leafFor(uint(value)))
	return s
}

func (value appendCommand) PreCondition(state commands.State) bool {
	return len(state.(*expected).leaves) < exCapacity
}

func (value appendCommand) PostCondition(state commands.State, result commands.Result) *gopter.PropResult {
	return checkOutcome(value, state, result)
}

func (value appendCommand) String() string {
	return fmt.Sprintf("Append(%d)", value)
}

var genAppend = uintCommandGen(
	func(value uint) commands.Command { return appendCommand(value) },
	func(command interface{}) uint { return uint(command.(appendCommand)) })

type replaceCommand uint

func (value replaceCommand) leaf() cmt.Node {
	if value%5 == 0 {
		return cmt.Empty
	}
	return leafFor(uint(value))
}

func (value replaceCommand) Run(s commands.SystemUnderTest) commands.Result {
	sys := s.(*system)
	index := uint32(value) % sys.rightmost()
	return sys.record(sys.account.ReplaceLeaf(&cmt.ReplaceLeafArgs{
		Root:         sys.ref.Root(),
		PreviousLeaf: sys.ref.Leaf(index),
		NewLeaf:      value.leaf(),
		Proof:        sys.proof(index),
		Index:        index,
	}))
}

func (value replaceCommand) NextState(state commands.State) commands.State {
	s := state.(*expected)
	s.outcome = nil
	s.write(uint32(value)%uint32(len(s.leaves)), value.leaf())
	return s
}

func (value replaceCommand) PreCondition(state commands.State) bool {
	return len(state.(*expected).leaves) > 0
}

func (value replaceCommand) PostCondition(state commands.State, result commands.Result) *gopter.PropResult {
	return checkOutcome(value, state, result)
}

func (value replaceCommand) String() string {
	return fmt.Sprintf("Replace(%d)", value)
}

var genReplace = uintCommandGen(
	func(value uint) commands.Command { return replaceCommand(value) },
	func(command interface{}) uint { return uint(command.(replaceCommand)) })

// holdCommand takes a proof and keeps it for a later applyHeldCommand.
type holdCommand uint

func (value holdCommand) slot() int { return int(value) % nHeld }

func (value holdCommand) Run(s commands.SystemUnderTest) commands.Result {
	sys := s.(*system)
	index := uint32(value/nHeld) % sys.rightmost()
	sys.held[value.slot()] = &cmt.ReplaceLeafArgs{
		Root:         sys.ref.Root(),
		PreviousLeaf: sys.ref.Leaf(index),
		Proof:        sys.proof(index),
		Index:        index,
	}
	sys.heldSeq[value.slot()] = sys.account.Tree().Sequence()
	return nil
}

func (value holdCommand) NextState(state commands.State) commands.State {
	s := state.(*expected)
	index := uint32(value/nHeld) % uint32(len(s.leaves))
	s.held[value.slot()] = &heldProof{index: index, claimed: s.leaves[index], seq: s.seq()}
	return s
}

func (value holdCommand) PreCondition(state commands.State) bool {
	return len(state.(*expected).leaves) > 0
}

func (value holdCommand) PostCondition(state commands.State, result commands.Result) *gopter.PropResult {
	if result != nil {
		fmt.Printf("holdPostCondition: %v\n", result)
		return &gopter.PropResult{Status: gopter.PropFalse}
	}
	progress(value)
	return &gopter.PropResult{Status: gopter.PropTrue}
}

func (value holdCommand) String() string {
	return fmt.Sprintf("Hold(%d)", value)
}

var genHold = uintCommandGen(
	func(value uint) commands.Command { return holdCommand(value) },
	func(command interface{}) uint { return uint(command.(holdCommand)) })

// applyHeldCommand replaces a leaf using a held proof, which fast-forwards
// over every update made since it was taken.
type applyHeldCommand uint

func (value applyHeldCommand) Run(s commands.SystemUnderTest) commands.Result {
	sys := s.(*system)
	slot := sys.heldSlot(int(value) % nHeld)
	if slot < 0 {
		return fmt.Errorf("no usable held proof")
	}
	args := *sys.held[slot]
	args.NewLeaf = leafFor(uint(value))
	return sys.record(sys.account.ReplaceLeaf(&args))
}

func (value applyHeldCommand) NextState(state commands.State) commands.State {
	s := state.(*expected)
	h := s.held[s.heldSlot(int(value)%nHeld)]
	current := h.claimed
	for _, w := range s.writes[h.seq:] {
		if w.index == h.index {
			current = w.leaf
		}
	}
	if current != h.claimed {
		s.outcome = cmt.ErrLeafContentsModified
		return s
	}
	s.outcome = nil
	s.write(h.index, leafFor(uint(value)))
	return s
}

func (value applyHeldCommand) PreCondition(state commands.State) bool {
	return state.(*expected).heldSlot(int(value)%nHeld) >= 0
}

func (value applyHeldCommand) PostCondition(state commands.State, result commands.Result) *gopter.PropResult {
	return checkOutcome(value, state, result)
}

func (value applyHeldCommand) String() string {
	return fmt.Sprintf("ApplyHeld(%d)", value)
}

var genApplyHeld = uintCommandGen(
	func(value uint) commands.Command { return applyHeldCommand(value) },
	func(command interface{}) uint { return uint(command.(applyHeldCommand)) })

// fillCommand targets any slot up to and including the next unused one.
type fillCommand uint

func (value fillCommand) Run(s commands.SystemUnderTest) commands.Result {
	sys := s.(*system)
	index := uint32(value) % (sys.rightmost() + 1)
	var proof []cmt.Node
	if index < exCapacity {
		proof = sys.proof(index)
	}
	return sys.record(sys.account.InsertOrAppend(&cmt.FillEmptyOrAppendArgs{
		Root:  sys.ref.Root(),
		Leaf:  leafFor(uint(value)),
		Proof: proof,
		Index: index,
	}))
}

func (value fillCommand) NextState(state commands.State) commands.State {
	s := state.(*expected)
	index := uint32(value) % uint32(len(s.leaves)+1)
	switch {
	case int(index) == len(s.leaves) && index >= exCapacity:
		s.outcome = cmt.ErrIndexOutOfBounds
	case int(index) == len(s.leaves):
		s.outcome = nil
		s.write(index, leafFor(uint(value)))
	case s.leaves[index] == cmt.Empty:
		s.outcome = nil
		s.write(index, leafFor(uint(value)))
	default:
		// A fresh proof for a filled slot does not prove an empty leaf.
		s.outcome = cmt.ErrCorruptProof
	}
	return s
}

func (value fillCommand) PreCondition(state commands.State) bool {
	return true
}

func (value fillCommand) PostCondition(state commands.State, result commands.Result) *gopter.PropResult {
	return checkOutcome(value, state, result)
}

func (value fillCommand) String() string {
	return fmt.Sprintf("Fill(%d)", value)
}

var genFill = uintCommandGen(
	func(value uint) commands.Command { return fillCommand(value) },
	func(command interface{}) uint { return uint(command.(fillCommand)) })

type verifyCommand uint

func (value verifyCommand) Run(s commands.SystemUnderTest) commands.Result {
	sys := s.(*system)
	index := uint32(value) % sys.rightmost()
	return sys.account.VerifyLeaf(&cmt.ProveLeafArgs{
		Root:  sys.ref.Root(),
		Leaf:  sys.ref.Leaf(index),
		Proof: sys.proof(index),
		Index: index,
	})
}

func (value verifyCommand) NextState(state commands.State) commands.State {
	return state
}

func (value verifyCommand) PreCondition(state commands.State) bool {
	return len(state.(*expected).leaves) > 0
}

func (value verifyCommand) PostCondition(state commands.State, result commands.Result) *gopter.PropResult {
	if result != nil {
		fmt.Printf("verifyPostCondition: %v\n", result)
		return &gopter.PropResult{Status: gopter.PropFalse}
	}
	progress(value)
	return &gopter.PropResult{Status: gopter.PropTrue}
}

func (value verifyCommand) String() string {
	return fmt.Sprintf("Verify(%d)", value)
}

var genVerify = uintCommandGen(
	func(value uint) commands.Command { return verifyCommand(value) },
	func(command interface{}) uint { return uint(command.(verifyCommand)) })

// RoundTripCommand continues from a snapshot of the account.
var RoundTripCommand = &commands.ProtoCommand{
	Name: "RoundTrip",
	RunFunc: func(s commands.SystemUnderTest) commands.Result {
		sys := s.(*system)
		ctx := context.Background()
		snap, err := sys.store.Save(ctx, sys.account)
		if err != nil {
			return err
		}
		loaded, err := sys.store.Load(ctx, snap)
		if err != nil {
			return err
		}
		if loaded.Root() != sys.account.Root() {
			return fmt.Errorf("loaded root %x, saved %x", loaded.Root(), sys.account.Root())
		}
		sys.account = loaded
		return nil
	},
	NextStateFunc:    func(state commands.State) commands.State { return state },
	PreConditionFunc: func(state commands.State) bool { return true },
	PostConditionFunc: func(state commands.State, result commands.Result) *gopter.PropResult {
		if result != nil {
			fmt.Printf("roundTrip PostCondition: %v\n", result)
			return &gopter.PropResult{Status: gopter.PropFalse}
		}
		progress("RoundTrip")
		return &gopter.PropResult{Status: gopter.PropTrue}
	},
}

func uintCommandGen(toCommand func(uint) commands.Command, fromCommand func(interface{}) uint) gopter.Gen {
	return gen.UIntRange(0, uimax).Map(func(value uint) commands.Command {
		return toCommand(value)
	}).WithShrinker(func(v interface{}) gopter.Shrink {
		return gen.UIntShrinker(fromCommand(v)).Map(func(value uint) commands.Command {
			return toCommand(value)
		})
	})
}

var accountCommands = &commands.ProtoCommands{
	NewSystemUnderTestFunc: func(initialState commands.State) commands.SystemUnderTest {
		account, err := cmt.NewAccount(cmt.Node{0xac}, exDepth, exBuffer, exCanopy, nil)
		if err != nil {
			return err
		}
		ref := reference.New(exDepth, nil)
		for _, leaf := range initialState.(*expected).leaves {
			e, err := account.Append(leaf)
			if err != nil {
				return err
			}
			ref.SetLeaf(e.Index, leaf)
		}
		progress("NewSystem")
		return &system{
			account: account,
			ref:     ref,
			store:   cmt.NewStore(&cmt.StoreConfig{Cache: cmt.NewAccountCache(16)}),
			held:    make([]*cmt.ReplaceLeafArgs, nHeld),
			heldSeq: make([]uint64, nHeld),
		}
	},
	DestroySystemUnderTestFunc: func(s commands.SystemUnderTest) {
		sys := s.(*system)
		if seq := sys.account.Tree().Sequence(); seq > maxSeq {
			maxSeq = seq
		}
		cmdCount += sys.cmdCount
	},
	InitialStateGen: gen.IntRange(0, exBuffer).Map(func(n int) *expected {
		s := &expected{held: make([]*heldProof, nHeld)}
		for i := 0; i < n; i++ {
			s.write(uint32(i), leafFor(uint(uimax+1+i)))
		}
		return s
	}),
	InitialPreConditionFunc: func(state commands.State) bool {
		_ = state.(*expected)
		return true
	},
	GenCommandFunc: func(state commands.State) gopter.Gen {
		s := state.(*expected)
		gens := []gen.WeightedGen{
			{Weight: 5, Gen: gen.Const(RoundTripCommand)},
			{Weight: 40, Gen: genFill},
		}
		if len(s.leaves) < exCapacity {
			gens = append(gens, gen.WeightedGen{Weight: 100, Gen: genAppend})
		}
		if len(s.leaves) > 0 {
			gens = append(gens,
				gen.WeightedGen{Weight: 100, Gen: genReplace},
				gen.WeightedGen{Weight: 30, Gen: genHold},
				gen.WeightedGen{Weight: 30, Gen: genVerify})
		}
		if s.heldSlot(0) >= 0 {
			gens = append(gens, gen.WeightedGen{Weight: 60, Gen: genApplyHeld})
		}
		return gen.Weighted(gens)
	},
}

func TestExerciser(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	if !testing.Short() {
		parameters.MaxSize = 512
	}
	properties := gopter.NewProperties(parameters)
	properties.Property("account exerciser", commands.Prop(accountCommands))
	properties.TestingRun(t)
	if !t.Failed() {
		assert.Greater(t, maxSeq, uint64(exBuffer))
		fmt.Printf("longest history: %d\n", maxSeq)
		fmt.Printf("successful commands: %d\n", cmdCount)
	}
}
