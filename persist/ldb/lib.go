// Package ldb stores tree snapshots in a LevelDB database.
package ldb

import (
	"context"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// ErrNotFound reports a snapshot name with no stored bytes.
var ErrNotFound = errors.New("snapshot not found")

// Persist implements the cmt.Persist interface on top of LevelDB. Keys are
// the snapshot names behind an optional prefix, so one database can hold
// several namespaces.
type Persist struct {
	db     *leveldb.DB
	prefix string
	owned  bool
}

// Open opens, creating if needed, the database in directory path.
func Open(path string) (*Persist, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{
		// Snapshots are already content addressed and often compressed by
		// the caller.
		Compression: opt.NoCompression,
	})
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &Persist{db: db, owned: true}, nil
}

// NewPersist wraps an already-open database. Close leaves db open.
func NewPersist(db *leveldb.DB, prefix string) *Persist {
	return &Persist{db: db, prefix: prefix}
}

func (p *Persist) key(name string) []byte {
	return []byte(p.prefix + name)
}

// Load loads the bytes stored under name.
func (p *Persist) Load(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := p.db.Get(p.key(name), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", name, err)
	}
	return b, nil
}

// Store stores the bytes under name unless something is stored there already.
func (p *Persist) Store(ctx context.Context, name string, b []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := p.key(name)
	has, err := p.db.Has(key, nil)
	if err != nil {
		return fmt.Errorf("has %s: %w", name, err)
	}
	if has {
		return nil
	}
	if err := p.db.Put(key, b, nil); err != nil {
		return fmt.Errorf("put %s: %w", name, err)
	}
	return nil
}

// Close closes the database if Open created it.
func (p *Persist) Close() error {
	if !p.owned {
		return nil
	}
	return p.db.Close()
}
