package cmt

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/minio/blake2b-simd"
	"go.uber.org/zap"
)

//go:generate mockgen -source store.go -destination store_mocks.go -package cmt

// Persist is the interface for loading and storing serialized account
// snapshots. The given string identity corresponds to the content, which is
// immutable (never modified).
type Persist interface {
	// Store makes the given bytes accessible by the given name.
	Store(context.Context, string, []byte) error
	// Load retrieves the previously-stored bytes by the given name.
	Load(context.Context, string) ([]byte, error)
}

// StoreConfig controls how snapshots are persisted and loaded.
type StoreConfig struct {
	// Persist holds snapshot bytes. Defaults to an in-memory store.
	Persist Persist
	// Cache holds decoded snapshots and may be shared across stores.
	Cache AccountCache
	// Config is applied to every loaded account.
	Config *Config
}

// Snapshot identifies a version of an account whose bytes are in a Persist.
type Snapshot struct {
	Link          string `json:"link"`
	ID            string `json:"id"`
	Hasher        string `json:"hasher"`
	MaxDepth      uint32 `json:"maxDepth"`
	MaxBufferSize uint32 `json:"maxBufferSize"`
	CanopyDepth   uint32 `json:"canopyDepth"`
	Seq           uint64 `json:"seq"`
	Root          string `json:"root"`
}

// Store saves account snapshots by content address.
type Store struct {
	persist Persist
	cache   AccountCache
	config  *Config
	log     *zap.Logger
}

// NewStore returns a Store configured by config, which may be nil.
func NewStore(config *StoreConfig) *Store {
	s := &Store{}
	if config != nil {
		s.persist = config.Persist
		s.cache = config.Cache
		s.config = config.Config
	}
	if s.persist == nil {
		s.persist = NewInMemoryStore()
	}
	s.log = s.config.logger()
	return s
}

func linkFor(b []byte) string {
	sum := blake2b.Sum256(b)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Save persists the account's current bytes and returns a handle to them.
func (s *Store) Save(ctx context.Context, a *Account) (*Snapshot, error) {
	encoded, err := a.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	link := linkFor(encoded)
	if s.cache == nil || !s.cache.Contains(link) {
		if err := s.persist.Store(ctx, link, encoded); err != nil {
			return nil, fmt.Errorf("persist store: %w", err)
		}
		if s.cache != nil {
			s.cache.Add(link, a.Clone())
		}
	}
	root := a.Root()
	s.log.Debug("saved snapshot",
		zap.String("link", link),
		zap.Uint64("seq", a.tree.Sequence()),
		zap.Int("bytes", len(encoded)))
	return &Snapshot{
		Link:          link,
		ID:            hex.EncodeToString(a.ID[:]),
		Hasher:        a.tree.hasher.Name(),
		MaxDepth:      a.tree.maxDepth,
		MaxBufferSize: a.tree.maxBufferSize,
		CanopyDepth:   a.canopy.depth,
		Seq:           a.tree.sequenceNumber,
		Root:          hex.EncodeToString(root[:]),
	}, nil
}

// LoadLink loads the account stored under link. The returned account is a
// private copy the caller may mutate.
func (s *Store) LoadLink(ctx context.Context, link string) (*Account, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(link); ok {
			return cached.(*Account).Clone(), nil
		}
	}
	encoded, err := s.persist.Load(ctx, link)
	if err != nil {
		return nil, fmt.Errorf("persist load %s: %w", link, err)
	}
	if linkFor(encoded) != link {
		return nil, fmt.Errorf("%s: %w", link, ErrSnapshotCorrupt)
	}
	a, err := DecodeAccount(encoded, s.config)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", link, err)
	}
	if s.cache != nil {
		s.cache.Add(link, a.Clone())
	}
	return a, nil
}

// Load loads the account a snapshot refers to and checks that it matches
// the snapshot's description.
func (s *Store) Load(ctx context.Context, snap *Snapshot) (*Account, error) {
	a, err := s.LoadLink(ctx, snap.Link)
	if err != nil {
		return nil, err
	}
	if snap.Hasher != "" && snap.Hasher != a.tree.hasher.Name() {
		return nil, fmt.Errorf("snapshot %s hashed with %s, store uses %s", snap.Link, snap.Hasher, a.tree.hasher.Name())
	}
	root := a.Root()
	if snap.Root != hex.EncodeToString(root[:]) || snap.Seq != a.tree.sequenceNumber {
		return nil, fmt.Errorf("snapshot %s does not describe its content: %w", snap.Link, ErrSnapshotCorrupt)
	}
	return a, nil
}
