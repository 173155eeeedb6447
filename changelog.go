package cmt

import "math/bits"

// ChangeLogEntry records one completed update: the root it produced and the
// nodes along the updated path. Path[0] is the new leaf and Path[i] the node
// at level i.
type ChangeLogEntry struct {
	Root  Node
	Path  []Node
	Index uint32
}

// Leaf returns the leaf value written by the update.
func (e ChangeLogEntry) Leaf() Node {
	return e.Path[0]
}

// Clone returns a deep copy of the entry.
func (e *ChangeLogEntry) Clone() ChangeLogEntry {
	path := make([]Node, len(e.Path))
	copy(path, e.Path)
	return ChangeLogEntry{Root: e.Root, Path: path, Index: e.Index}
}

// replaceAndRecomputePath hashes leaf up through proof, recording every node
// on the way, and returns the new root.
func (e *ChangeLogEntry) replaceAndRecomputePath(h Hasher, index uint32, leaf Node, proof []Node) Node {
	e.Index = index
	node := leaf
	for i, sibling := range proof {
		e.Path[i] = node
		node = hashToParent(h, node, sibling, isLeft(index, i))
	}
	e.Root = node
	return node
}

// updateProofOrLeaf brings a proof for the leaf at index up to date with this
// entry. When the entry touched the same leaf, only leaf is updated.
func (e *ChangeLogEntry) updateProofOrLeaf(index uint32, proof []Node, leaf *Node) {
	if e.Index == index {
		*leaf = e.Path[0]
		return
	}
	c := critbit(uint32(len(e.Path)), index, e.Index)
	proof[c] = e.Path[c]
}

// critbit returns the level at which the paths of two distinct leaves meet,
// less one: the only proof position for a that an update to b can change.
func critbit(maxDepth, a, b uint32) uint32 {
	commonPathLen := uint32(bits.LeadingZeros32((a ^ b) << (32 - maxDepth)))
	return maxDepth - 1 - commonPathLen
}
