// Package reference is a plain sparse Merkle tree holding every node. It is
// what off-chain observers keep, and the yardstick the concurrent tree is
// tested against.
package reference

import (
	"fmt"

	cmt "github.com/solana-labs/solana-program-library-sub018"
)

// Tree is a full binary Merkle tree of a fixed depth. Nodes never written
// read as the empty subtree digest of their level.
type Tree struct {
	hasher cmt.Hasher
	depth  uint32
	levels []map[uint64]cmt.Node
}

// New returns an empty tree. A nil hasher selects cmt.Keccak256.
func New(depth uint32, h cmt.Hasher) *Tree {
	if h == nil {
		h = cmt.Keccak256
	}
	levels := make([]map[uint64]cmt.Node, depth+1)
	for i := range levels {
		levels[i] = map[uint64]cmt.Node{}
	}
	return &Tree{hasher: h, depth: depth, levels: levels}
}

// FromLeaves builds a tree whose first len(leaves) leaves are given, hashing
// a whole level at a time.
func FromLeaves(depth uint32, h cmt.Hasher, leaves []cmt.Node) (*Tree, error) {
	t := New(depth, h)
	if uint64(len(leaves)) > uint64(1)<<depth {
		return nil, fmt.Errorf("%d leaves in a tree of depth %d: %w", len(leaves), depth, cmt.ErrTreeFull)
	}
	cur := append([]cmt.Node(nil), leaves...)
	for level := uint32(0); level <= depth && len(cur) > 0; level++ {
		for i, n := range cur {
			t.levels[level][uint64(i)] = n
		}
		if level == depth {
			break
		}
		if len(cur)%2 == 1 {
			cur = append(cur, t.hasher.EmptyNode(level))
		}
		next := make([]cmt.Node, len(cur)/2)
		if err := t.hasher.HashLevel(next, cur); err != nil {
			return nil, fmt.Errorf("hash level %d: %w", level, err)
		}
		cur = next
	}
	return t, nil
}

// Depth is the number of levels below the root.
func (t *Tree) Depth() uint32 { return t.depth }

// Node returns the node at position index within level.
func (t *Tree) Node(level uint32, index uint64) cmt.Node {
	if n, ok := t.levels[level][index]; ok {
		return n
	}
	return t.hasher.EmptyNode(level)
}

// Set overwrites one node without rehashing its ancestors.
func (t *Tree) Set(level uint32, index uint64, n cmt.Node) {
	t.levels[level][index] = n
}

// Leaf returns the leaf at index.
func (t *Tree) Leaf(index uint32) cmt.Node {
	return t.Node(0, uint64(index))
}

// Root returns the root.
func (t *Tree) Root() cmt.Node {
	return t.Node(t.depth, 0)
}

// SetLeaf writes a leaf and rehashes its path to the root.
func (t *Tree) SetLeaf(index uint32, leaf cmt.Node) {
	node := leaf
	pos := uint64(index)
	t.levels[0][pos] = node
	for level := uint32(0); level < t.depth; level++ {
		sibling := t.Node(level, pos^1)
		if pos&1 == 0 {
			node = t.hasher.HashPair(node, sibling)
		} else {
			node = t.hasher.HashPair(sibling, node)
		}
		pos >>= 1
		t.levels[level+1][pos] = node
	}
}

// Proof returns the siblings of the path from the leaf at index to the root,
// lowest level first.
func (t *Tree) Proof(index uint32) []cmt.Node {
	proof := make([]cmt.Node, t.depth)
	pos := uint64(index)
	for level := uint32(0); level < t.depth; level++ {
		proof[level] = t.Node(level, pos^1)
		pos >>= 1
	}
	return proof
}

// Clone returns an independent copy.
func (t *Tree) Clone() *Tree {
	c := &Tree{hasher: t.hasher, depth: t.depth, levels: make([]map[uint64]cmt.Node, len(t.levels))}
	for i, level := range t.levels {
		c.levels[i] = make(map[uint64]cmt.Node, len(level))
		for k, v := range level {
			c.levels[i][k] = v
		}
	}
	return c
}
