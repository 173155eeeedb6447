// Package file stores tree snapshots as files in a directory.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Persist implements the cmt.Persist interface for storing and loading
// snapshots from files.
type Persist struct {
	basepath string
}

// Load loads the bytes persisted in the named file.
func (p Persist) Load(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(filepath.Join(p.basepath, name))
}

// Store persists the given bytes in a file of the given name, if it
// doesn't exist already. Content is written to a temporary file first so a
// reader never observes a partial snapshot.
func (p Persist) Store(ctx context.Context, name string, bytes []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := filepath.Join(p.basepath, name)
	_, err := os.Stat(path)
	if !os.IsNotExist(err) {
		return err
	}
	tmp, err := os.CreateTemp(p.basepath, "."+name+".*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(bytes); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	return os.Rename(tmp.Name(), path)
}

// NewPersistForPath returns a Persist that loads and stores snapshots as
// files in the directory at the given path.
//
//	p := NewPersistForPath("/var/db/trees")
//	blob, err := p.Load(ctx, "mN3qdW0I2w3bkoz0ydRDr7n3aqz5CNyJHu3HuS9lK_A")
func NewPersistForPath(path string) Persist {
	return Persist{path}
}
