package cmt

import (
	"encoding/hex"
	"fmt"
	"math/bits"

	"go.uber.org/zap"
)

// Config holds the optional collaborators of a tree. A nil *Config, or zero
// fields, select the defaults.
type Config struct {
	// Hasher hashes node pairs. Defaults to Keccak256.
	Hasher Hasher
	// Logger receives debug output. Defaults to a no-op logger.
	Logger *zap.Logger
}

func (c *Config) hasher() Hasher {
	if c == nil || c.Hasher == nil {
		return Keccak256
	}
	return c.Hasher
}

func (c *Config) logger() *zap.Logger {
	if c == nil || c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// Tree is a concurrent Merkle tree: a root, a ring buffer of the most recent
// updates and the path of the rightmost leaf. Callers holding proofs against
// any buffered root can still update the tree; their proofs are fast-forwarded
// through the newer entries.
//
// A Tree is not safe for concurrent use. Its storage is allocated once, from
// the (max depth, max buffer size) pair it was created with.
type Tree struct {
	hasher Hasher
	log    *zap.Logger

	maxDepth      uint32
	maxBufferSize uint32

	sequenceNumber uint64
	activeIndex    uint32
	// bufferSize counts the valid entries in changeLogs.
	bufferSize     uint32
	changeLogs     []ChangeLogEntry
	rightmostProof Path

	// evictedRoot is the root just before the oldest buffered entry. It is
	// only known in memory, once an entry has been overwritten since the tree
	// was initialized or decoded.
	evictedRoot  Node
	evictedKnown bool

	scratch ChangeLogEntry
}

// Prepare allocates an uninitialized tree. Use Initialize or
// InitializeWithRoot before mutating it.
func Prepare(maxDepth, maxBufferSize uint32, config *Config) (*Tree, error) {
	if err := ValidateConstants(maxDepth, maxBufferSize); err != nil {
		return nil, err
	}
	t := &Tree{
		hasher:        config.hasher(),
		log:           config.logger(),
		maxDepth:      maxDepth,
		maxBufferSize: maxBufferSize,
		changeLogs:    make([]ChangeLogEntry, maxBufferSize),
		rightmostProof: Path{
			Proof: make([]Node, maxDepth),
		},
		scratch: ChangeLogEntry{Path: make([]Node, maxDepth)},
	}
	for i := range t.changeLogs {
		t.changeLogs[i].Path = make([]Node, maxDepth)
	}
	return t, nil
}

// New returns an initialized empty tree.
func New(maxDepth, maxBufferSize uint32, config *Config) (*Tree, error) {
	t, err := Prepare(maxDepth, maxBufferSize, config)
	if err != nil {
		return nil, err
	}
	if _, err := t.Initialize(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tree) mask() uint64 {
	return uint64(t.maxBufferSize - 1)
}

func (t *Tree) capacity() uint64 {
	return uint64(1) << t.maxDepth
}

func (t *Tree) isInitialized() bool {
	return t.bufferSize > 0
}

func (t *Tree) oldestSequence() uint64 {
	return t.sequenceNumber - uint64(t.bufferSize) + 1
}

// push records entry as the newest change log entry and returns its sequence number.
func (t *Tree) push(entry *ChangeLogEntry) uint64 {
	t.sequenceNumber++
	t.activeIndex = uint32(t.sequenceNumber & t.mask())
	slot := &t.changeLogs[t.activeIndex]
	if t.bufferSize < t.maxBufferSize {
		t.bufferSize++
	} else {
		t.evictedRoot = slot.Root
		t.evictedKnown = true
	}
	slot.Root = entry.Root
	slot.Index = entry.Index
	copy(slot.Path, entry.Path)
	return t.sequenceNumber
}

// get returns the entry written at seq, if it is still buffered.
func (t *Tree) get(seq uint64) (*ChangeLogEntry, bool) {
	if t.bufferSize == 0 || seq > t.sequenceNumber || t.sequenceNumber-seq >= uint64(t.bufferSize) {
		return nil, false
	}
	return &t.changeLogs[seq&t.mask()], true
}

// findRoot returns the newest buffered sequence number whose root is root.
func (t *Tree) findRoot(root Node) (uint64, bool) {
	if !t.isInitialized() {
		return 0, false
	}
	oldest := t.oldestSequence()
	for seq := t.sequenceNumber; ; seq-- {
		if t.changeLogs[seq&t.mask()].Root == root {
			return seq, true
		}
		if seq == oldest {
			return 0, false
		}
	}
}

// fastForward patches proof in place so it reflects every buffered update
// newer than root and returns the leaf value at index after those updates.
// Root must be buffered, or with allowEvicted, be the root just before the
// oldest buffered entry, so at most maxBufferSize updates are replayed.
func (t *Tree) fastForward(root, leaf Node, proof []Node, index uint32, allowEvicted bool) (Node, error) {
	var from uint64
	start, found := t.findRoot(root)
	switch {
	case found:
		from = start + 1
	case allowEvicted && t.evictedKnown && root == t.evictedRoot:
		from = t.oldestSequence()
	case t.oldestSequence() > 0:
		t.log.Debug("proof root aged out of the change log", zap.Uint32("index", index), zap.Uint64("seq", t.sequenceNumber))
		return leaf, fmt.Errorf("root %s not in change log: %w", shortHex(root), ErrStaleProof)
	default:
		return leaf, fmt.Errorf("root %s was never held by the tree: %w", shortHex(root), ErrCorruptProof)
	}
	if t.log.Core().Enabled(zap.DebugLevel) {
		t.log.Debug("fast-forwarding proof",
			zap.Uint32("index", index),
			zap.Uint64("from", from),
			zap.Uint64("seq", t.sequenceNumber),
			zap.Bool("evicted", !found))
	}
	for seq := from; seq <= t.sequenceNumber; seq++ {
		t.changeLogs[seq&t.mask()].updateProofOrLeaf(index, proof, &leaf)
	}
	return leaf, nil
}

// checkValidLeaf fast-forwards proof and verifies that leaf is still the
// value at index under the current root.
func (t *Tree) checkValidLeaf(root, leaf Node, proof []Node, index uint32, allowEvicted bool) error {
	updated, err := t.fastForward(root, leaf, proof, index, allowEvicted)
	if err != nil {
		return err
	}
	if updated != leaf {
		t.log.Debug("leaf was updated since proof was issued", zap.Uint32("index", index))
		return fmt.Errorf("leaf %d: %w", index, ErrLeafContentsModified)
	}
	if recompute(t.hasher, leaf, proof, index) != t.Root() {
		t.log.Debug("proof failed to verify", zap.Uint32("index", index))
		return fmt.Errorf("leaf %d: %w", index, ErrCorruptProof)
	}
	return nil
}

// applyProof records the update of the leaf at index to newLeaf. proof must
// already be valid against the current root.
func (t *Tree) applyProof(newLeaf Node, proof []Node, index uint32) Node {
	root := t.scratch.replaceAndRecomputePath(t.hasher, index, newLeaf, proof)
	t.push(&t.scratch)
	t.updateRightmost(&t.scratch, proof)
	return root
}

func (t *Tree) updateRightmost(e *ChangeLogEntry, proof []Node) {
	rp := &t.rightmostProof
	if e.Index < rp.Index {
		e.updateProofOrLeaf(rp.Index-1, rp.Proof, &rp.Leaf)
		return
	}
	t.log.Debug("appending rightmost leaf", zap.Uint32("index", e.Index))
	copy(rp.Proof, proof)
	rp.Index = e.Index + 1
	rp.Leaf = e.Path[0]
}

// appendLeaf writes leaf to the next unused slot using the rightmost path.
func (t *Tree) appendLeaf(leaf Node) Node {
	rp := &t.rightmostProof
	if rp.Index == 0 {
		return t.applyProof(leaf, rp.Proof, 0)
	}
	h := t.hasher
	r := rp.Index
	intersection := bits.TrailingZeros32(r)
	path := t.scratch.Path
	node := leaf
	intersectionNode := rp.Leaf
	for i := 0; i < intersection; i++ {
		path[i] = node
		node = h.HashPair(node, h.EmptyNode(uint32(i)))
		intersectionNode = hashToParent(h, intersectionNode, rp.Proof[i], isLeft(r-1, i))
		rp.Proof[i] = h.EmptyNode(uint32(i))
	}
	path[intersection] = node
	node = h.HashPair(intersectionNode, node)
	rp.Proof[intersection] = intersectionNode
	for i := intersection + 1; i < int(t.maxDepth); i++ {
		path[i] = node
		node = hashToParent(h, node, rp.Proof[i], isLeft(r, i))
	}
	t.scratch.Root = node
	t.scratch.Index = r
	t.push(&t.scratch)
	rp.Index = r + 1
	rp.Leaf = leaf
	return node
}

func (t *Tree) checkLeafIndex(index uint32) error {
	if uint64(index) >= t.capacity() {
		return fmt.Errorf("index %d beyond capacity %d: %w", index, t.capacity(), ErrIndexOutOfBounds)
	}
	return nil
}

func shortHex(n Node) string {
	return hex.EncodeToString(n[:4])
}
