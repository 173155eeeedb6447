package cmt

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ReplaceLeafArgs describes a leaf update. Proof was computed against Root,
// which may be any root still in the change log.
type ReplaceLeafArgs struct {
	Root         Node
	PreviousLeaf Node
	NewLeaf      Node
	Proof        []Node
	Index        uint32
}

// ProveLeafArgs describes a leaf to verify.
type ProveLeafArgs struct {
	Root  Node
	Leaf  Node
	Proof []Node
	Index uint32
}

// FillEmptyOrAppendArgs describes a write to an empty leaf that falls back
// to an append when the leaf was filled in the meantime.
type FillEmptyOrAppendArgs struct {
	Root  Node
	Leaf  Node
	Proof []Node
	Index uint32
}

// InitializeWithRootArgs describes a tree built elsewhere: its root and the
// path of its rightmost leaf.
type InitializeWithRootArgs struct {
	Root          Node
	RightmostLeaf Node
	Proof         []Node
	Index         uint32
}

// Initialize makes a prepared tree an empty tree and returns its root.
func (t *Tree) Initialize() (Node, error) {
	if t.isInitialized() {
		return Empty, ErrTreeAlreadyInitialized
	}
	genesis := &t.changeLogs[0]
	for i := range genesis.Path {
		genesis.Path[i] = t.hasher.EmptyNode(uint32(i))
	}
	genesis.Root = t.hasher.EmptyNode(t.maxDepth)
	genesis.Index = 0
	t.sequenceNumber = 0
	t.activeIndex = 0
	t.bufferSize = 1
	t.rightmostProof = newEmptyPath(t.hasher, t.maxDepth)
	return genesis.Root, nil
}

// InitializeWithRoot makes a prepared tree hold a root computed elsewhere.
// The rightmost path is trusted once it verifies against the root.
func (t *Tree) InitializeWithRoot(args *InitializeWithRootArgs) (Node, error) {
	if err := t.checkLeafIndex(args.Index); err != nil {
		return Empty, err
	}
	if t.isInitialized() {
		return Empty, ErrTreeAlreadyInitialized
	}
	proof, err := fillInProof(t.hasher, args.Proof, t.maxDepth)
	if err != nil {
		return Empty, err
	}
	if recompute(t.hasher, args.RightmostLeaf, proof, args.Index) != args.Root {
		t.log.Debug("rightmost proof failed to verify", zap.Uint32("index", args.Index))
		return Empty, fmt.Errorf("initialize with root: %w", ErrCorruptProof)
	}
	genesis := &t.changeLogs[0]
	genesis.replaceAndRecomputePath(t.hasher, args.Index, args.RightmostLeaf, proof)
	t.sequenceNumber = 0
	t.activeIndex = 0
	t.bufferSize = 1
	t.rightmostProof = Path{Proof: proof, Leaf: args.RightmostLeaf, Index: args.Index + 1}
	return args.Root, nil
}

// Append writes leaf to the next unused slot and returns the new root.
func (t *Tree) Append(leaf Node) (Node, error) {
	if !t.isInitialized() {
		return Empty, ErrTreeNotInitialized
	}
	if leaf == Empty {
		return Empty, ErrCannotAppendEmptyNode
	}
	if uint64(t.rightmostProof.Index) >= t.capacity() {
		return Empty, fmt.Errorf("%d leaves: %w", t.capacity(), ErrTreeFull)
	}
	return t.appendLeaf(leaf), nil
}

// ReplaceLeaf overwrites the leaf at args.Index, which must currently hold
// args.PreviousLeaf, and returns the new root. Nothing changes on failure.
func (t *Tree) ReplaceLeaf(args *ReplaceLeafArgs) (Node, error) {
	if !t.isInitialized() {
		return Empty, ErrTreeNotInitialized
	}
	if err := t.checkLeafIndex(args.Index); err != nil {
		return Empty, err
	}
	if args.Index >= t.rightmostProof.Index {
		return Empty, fmt.Errorf("index %d at or beyond rightmost index %d: %w", args.Index, t.rightmostProof.Index, ErrIndexOutOfBounds)
	}
	proof, err := fillInProof(t.hasher, args.Proof, t.maxDepth)
	if err != nil {
		return Empty, err
	}
	if err := t.checkValidLeaf(args.Root, args.PreviousLeaf, proof, args.Index, true); err != nil {
		return Empty, err
	}
	return t.applyProof(args.NewLeaf, proof, args.Index), nil
}

// ProveLeaf verifies that args.Leaf is the current value at args.Index.
func (t *Tree) ProveLeaf(args *ProveLeafArgs) error {
	if !t.isInitialized() {
		return ErrTreeNotInitialized
	}
	if err := t.checkLeafIndex(args.Index); err != nil {
		return err
	}
	if args.Index > t.rightmostProof.Index {
		return fmt.Errorf("index %d beyond rightmost index %d: %w", args.Index, t.rightmostProof.Index, ErrIndexOutOfBounds)
	}
	proof, err := fillInProof(t.hasher, args.Proof, t.maxDepth)
	if err != nil {
		return err
	}
	return t.checkValidLeaf(args.Root, args.Leaf, proof, args.Index, true)
}

// FillEmptyOrAppend writes args.Leaf into the empty slot at args.Index. If
// the slot was filled since the proof was issued, or lies at or beyond the
// rightmost index, the leaf is appended instead. Root must still be in the
// change log.
func (t *Tree) FillEmptyOrAppend(args *FillEmptyOrAppendArgs) (Node, error) {
	if !t.isInitialized() {
		return Empty, ErrTreeNotInitialized
	}
	if err := t.checkLeafIndex(args.Index); err != nil {
		return Empty, err
	}
	if args.Index >= t.rightmostProof.Index {
		return t.Append(args.Leaf)
	}
	proof, err := fillInProof(t.hasher, args.Proof, t.maxDepth)
	if err != nil {
		return Empty, err
	}
	err = t.checkValidLeaf(args.Root, Empty, proof, args.Index, false)
	switch {
	case err == nil:
		return t.applyProof(args.Leaf, proof, args.Index), nil
	case errors.Is(err, ErrLeafContentsModified):
		return t.Append(args.Leaf)
	default:
		return Empty, err
	}
}

// ProveTreeIsEmpty fails with ErrTreeNonEmpty unless every leaf is empty.
func (t *Tree) ProveTreeIsEmpty() error {
	if !t.isInitialized() {
		return ErrTreeNotInitialized
	}
	if t.Root() != t.hasher.EmptyNode(t.maxDepth) {
		return ErrTreeNonEmpty
	}
	return nil
}

// Root returns the current root. A prepared tree has an Empty root.
func (t *Tree) Root() Node {
	if !t.isInitialized() {
		return Empty
	}
	return t.changeLogs[t.activeIndex].Root
}

// ChangeLog returns a copy of the newest change log entry.
func (t *Tree) ChangeLog() ChangeLogEntry {
	return t.changeLogs[t.activeIndex].Clone()
}

// ChangeLogAt returns a copy of the entry written at seq, if still buffered.
func (t *Tree) ChangeLogAt(seq uint64) (ChangeLogEntry, bool) {
	e, ok := t.get(seq)
	if !ok {
		return ChangeLogEntry{}, false
	}
	return e.Clone(), true
}

// ChangeLogs returns copies of the buffered entries, oldest first.
func (t *Tree) ChangeLogs() []ChangeLogEntry {
	if !t.isInitialized() {
		return nil
	}
	res := make([]ChangeLogEntry, 0, t.bufferSize)
	for seq := t.oldestSequence(); seq <= t.sequenceNumber; seq++ {
		res = append(res, t.changeLogs[seq&t.mask()].Clone())
	}
	return res
}

// Sequence is the number of updates applied since initialization.
func (t *Tree) Sequence() uint64 { return t.sequenceNumber }

// RightmostIndex is the next unused leaf slot.
func (t *Tree) RightmostIndex() uint32 { return t.rightmostProof.Index }

// RightmostPath returns a copy of the path of the rightmost leaf.
func (t *Tree) RightmostPath() Path { return t.rightmostProof.clone() }

// MaxDepth is the number of levels below the root.
func (t *Tree) MaxDepth() uint32 { return t.maxDepth }

// MaxBufferSize is the capacity of the change log.
func (t *Tree) MaxBufferSize() uint32 { return t.maxBufferSize }

// BufferSize is the number of entries currently in the change log.
func (t *Tree) BufferSize() uint32 { return t.bufferSize }

// Hasher returns the hasher the tree was created with.
func (t *Tree) Hasher() Hasher { return t.hasher }

// Initialized reports whether the tree accepts updates.
func (t *Tree) Initialized() bool { return t.isInitialized() }

// Clone returns an independent copy of the tree.
func (t *Tree) Clone() *Tree {
	c := &Tree{
		hasher:         t.hasher,
		log:            t.log,
		maxDepth:       t.maxDepth,
		maxBufferSize:  t.maxBufferSize,
		sequenceNumber: t.sequenceNumber,
		activeIndex:    t.activeIndex,
		bufferSize:     t.bufferSize,
		changeLogs:     make([]ChangeLogEntry, len(t.changeLogs)),
		rightmostProof: t.rightmostProof.clone(),
		evictedRoot:    t.evictedRoot,
		evictedKnown:   t.evictedKnown,
		scratch:        ChangeLogEntry{Path: make([]Node, t.maxDepth)},
	}
	for i := range t.changeLogs {
		c.changeLogs[i] = t.changeLogs[i].Clone()
	}
	return c
}
