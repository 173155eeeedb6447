// Package compressed wraps another Persist, snappy-compressing what it stores.
package compressed

import (
	"context"
	"fmt"

	"github.com/golang/snappy"
	cmt "github.com/solana-labs/solana-program-library-sub018"
)

// Persist compresses snapshots on their way into the wrapped Persist and
// decompresses them on the way out. Change logs of sparse trees are mostly
// empty-subtree digests and compress well.
type Persist struct {
	inner cmt.Persist
}

// NewPersist wraps inner.
func NewPersist(inner cmt.Persist) *Persist {
	return &Persist{inner: inner}
}

// Store compresses b and stores it under name.
func (p *Persist) Store(ctx context.Context, name string, b []byte) error {
	return p.inner.Store(ctx, name, snappy.Encode(nil, b))
}

// Load loads and decompresses the bytes stored under name.
func (p *Persist) Load(ctx context.Context, name string) ([]byte, error) {
	b, err := p.inner.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	decoded, err := snappy.Decode(nil, b)
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", name, err)
	}
	return decoded, nil
}
