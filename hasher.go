package cmt

import (
	"fmt"
	"sort"
	"sync"

	"github.com/minio/blake2b-simd"
	"github.com/prysmaticlabs/gohashtree"
	"golang.org/x/crypto/sha3"
)

// Hasher computes parent digests for a tree. All trees that share bytes must
// use the same Hasher.
type Hasher interface {
	// Name identifies the hash function in tooling and snapshots.
	Name() string
	// HashPair returns H(left || right).
	HashPair(left, right Node) Node
	// HashLevel writes the parents of consecutive pairs of children into dst.
	// len(dst) must be at least len(children)/2 and len(children) must be even.
	HashLevel(dst, children []Node) error
	// EmptyNode returns the root of an empty subtree of the given height.
	EmptyNode(level uint32) Node
}

var (
	// Keccak256 is the hasher used by stored trees; it is the default.
	Keccak256 Hasher = newPairHasher("keccak256", keccakPair, nil)
	// Blake2b256 hashes with BLAKE2b-256.
	Blake2b256 Hasher = newPairHasher("blake2b256", blake2bPair, nil)
	// SHA256 hashes with SHA-256 using vectorised level hashing.
	SHA256 Hasher = newPairHasher("sha256", sha256Pair, gohashtree.Hash)
)

var hashers = map[string]Hasher{
	Keccak256.Name():  Keccak256,
	Blake2b256.Name(): Blake2b256,
	SHA256.Name():     SHA256,
}

// HasherByName looks up one of the built-in hashers.
func HasherByName(name string) (Hasher, error) {
	if h, ok := hashers[name]; ok {
		return h, nil
	}
	return nil, fmt.Errorf("unknown hasher %q (known: %v)", name, HasherNames())
}

// HasherNames lists the built-in hashers in sorted order.
func HasherNames() []string {
	names := make([]string, 0, len(hashers))
	for name := range hashers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type pairHasher struct {
	name  string
	pair  func(left, right Node) Node
	level func(dst, children [][32]byte) error
	once  sync.Once
	empty [MaxSupportedDepth + 1]Node
}

func newPairHasher(name string, pair func(left, right Node) Node, level func(dst, children [][32]byte) error) *pairHasher {
	return &pairHasher{name: name, pair: pair, level: level}
}

func (h *pairHasher) Name() string { return h.name }

func (h *pairHasher) HashPair(left, right Node) Node { return h.pair(left, right) }

func (h *pairHasher) HashLevel(dst, children []Node) error {
	if len(children)%2 != 0 {
		return fmt.Errorf("hash level: odd number of children (%d)", len(children))
	}
	if len(dst) < len(children)/2 {
		return fmt.Errorf("hash level: destination holds %d of %d parents", len(dst), len(children)/2)
	}
	if len(children) == 0 {
		return nil
	}
	if h.level != nil {
		return h.level(dst, children)
	}
	for i := 0; i < len(children)/2; i++ {
		dst[i] = h.pair(children[2*i], children[2*i+1])
	}
	return nil
}

func (h *pairHasher) EmptyNode(level uint32) Node {
	h.once.Do(func() {
		for i := 1; i < len(h.empty); i++ {
			h.empty[i] = h.pair(h.empty[i-1], h.empty[i-1])
		}
	})
	if level >= uint32(len(h.empty)) {
		panic(fmt.Sprintf("empty node requested for level %d beyond supported depth %d", level, MaxSupportedDepth))
	}
	return h.empty[level]
}

func keccakPair(left, right Node) Node {
	var out Node
	d := sha3.NewLegacyKeccak256()
	d.Write(left[:])
	d.Write(right[:])
	d.Sum(out[:0])
	return out
}

func blake2bPair(left, right Node) Node {
	var buf [64]byte
	copy(buf[:32], left[:])
	copy(buf[32:], right[:])
	return blake2b.Sum256(buf[:])
}

func sha256Pair(left, right Node) Node {
	var out [1][32]byte
	if err := gohashtree.Hash(out[:], [][32]byte{left, right}); err != nil {
		panic(err)
	}
	return out[0]
}
