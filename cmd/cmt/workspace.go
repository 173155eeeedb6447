package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	cmt "github.com/solana-labs/solana-program-library-sub018"
	"github.com/solana-labs/solana-program-library-sub018/indexer"
	"github.com/solana-labs/solana-program-library-sub018/persist/compressed"
	"github.com/solana-labs/solana-program-library-sub018/persist/file"
	"github.com/solana-labs/solana-program-library-sub018/persist/ldb"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const (
	headFile   = "HEAD.json"
	eventsFile = "events.jsonl"
)

var errNoTree = errors.New("no tree in workspace, run create first")

// workspace is a directory holding one tree: the snapshot handle of its
// current version, the log of every event it emitted and the snapshots.
type workspace struct {
	dir     string
	log     *zap.Logger
	persist cmt.Persist
	close   func() error
}

func openWorkspace(context *cli.Context) (*workspace, error) {
	ws := &workspace{dir: context.String(dirFlag.Name), log: zap.NewNop(), close: func() error { return nil }}
	if context.Bool(verboseFlag.Name) {
		log, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		ws.log = log
	}
	if err := os.MkdirAll(ws.dir, 0o755); err != nil {
		return nil, err
	}
	switch backend := context.String(backendFlag.Name); backend {
	case "file":
		path := filepath.Join(ws.dir, "snapshots")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, err
		}
		ws.persist = file.NewPersistForPath(path)
	case "leveldb":
		db, err := ldb.Open(filepath.Join(ws.dir, "snapshots.ldb"))
		if err != nil {
			return nil, err
		}
		ws.persist = db
		ws.close = db.Close
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
	if context.Bool(compressFlag.Name) {
		ws.persist = compressed.NewPersist(ws.persist)
	}
	return ws, nil
}

func (ws *workspace) Close() error {
	_ = ws.log.Sync()
	return ws.close()
}

func (ws *workspace) store(h cmt.Hasher) *cmt.Store {
	return cmt.NewStore(&cmt.StoreConfig{
		Persist: ws.persist,
		Config:  &cmt.Config{Hasher: h, Logger: ws.log},
	})
}

func (ws *workspace) head() (*cmt.Snapshot, error) {
	b, err := os.ReadFile(filepath.Join(ws.dir, headFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, errNoTree
	}
	if err != nil {
		return nil, err
	}
	var snap cmt.Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("%s: %w", headFile, err)
	}
	return &snap, nil
}

// load returns the account at the head of the workspace.
func (ws *workspace) load(context *cli.Context) (*cmt.Account, *cmt.Snapshot, error) {
	snap, err := ws.head()
	if err != nil {
		return nil, nil, err
	}
	h, err := cmt.HasherByName(snap.Hasher)
	if err != nil {
		return nil, nil, err
	}
	a, err := ws.store(h).Load(context.Context, snap)
	if err != nil {
		return nil, nil, err
	}
	return a, snap, nil
}

// save persists a, logs its events and moves the head to it.
func (ws *workspace) save(context *cli.Context, a *cmt.Account, events []*cmt.ChangeLogEvent) (*cmt.Snapshot, error) {
	snap, err := ws.store(a.Tree().Hasher()).Save(context.Context, a)
	if err != nil {
		return nil, err
	}
	if err := ws.appendEvents(events); err != nil {
		return nil, err
	}
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, err
	}
	tmp := filepath.Join(ws.dir, headFile+".tmp")
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return nil, err
	}
	if err := os.Rename(tmp, filepath.Join(ws.dir, headFile)); err != nil {
		return nil, err
	}
	ws.log.Info("head moved", zap.String("link", snap.Link), zap.Uint64("seq", snap.Seq))
	return snap, nil
}

func (ws *workspace) appendEvents(events []*cmt.ChangeLogEvent) error {
	if len(events) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for _, e := range events {
		b, err := json.Marshal(e)
		if err != nil {
			return err
		}
		buf.Write(b)
		buf.WriteByte('\n')
	}
	f, err := os.OpenFile(filepath.Join(ws.dir, eventsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// replica rebuilds the tree's leaves from the event log.
func (ws *workspace) replica(a *cmt.Account) (*indexer.Replica, error) {
	r := indexer.NewReplica(a.ID, a.Tree().MaxDepth(), &indexer.Config{
		Tree: &cmt.Config{Hasher: a.Tree().Hasher(), Logger: ws.log},
	})
	if err := ws.replay(r); err != nil {
		return nil, err
	}
	if r.Root() != a.Root() {
		return nil, fmt.Errorf("%s is behind the head at seq %d", eventsFile, a.Tree().Sequence())
	}
	return r, nil
}

func (ws *workspace) replay(r *indexer.Replica) error {
	f, err := os.Open(filepath.Join(ws.dir, eventsFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e cmt.ChangeLogEvent
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return fmt.Errorf("%s: %w", eventsFile, err)
		}
		if err := r.Apply(&e); err != nil {
			return err
		}
	}
	return scanner.Err()
}
