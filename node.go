package cmt

import (
	"encoding/hex"
	"fmt"
)

// Node is a 32-byte digest at any level of the tree. Leaves are nodes at
// level 0.
type Node = [32]byte

// MaxSupportedDepth is the deepest tree any whitelisted configuration allows.
const MaxSupportedDepth = 30

// Empty is the value of a leaf that was never written.
var Empty Node

// ParseNode decodes a hex-encoded node, with or without a 0x prefix.
func ParseNode(s string) (Node, error) {
	var n Node
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return n, fmt.Errorf("parse node: %w", err)
	}
	if len(b) != len(n) {
		return n, fmt.Errorf("parse node: want %d bytes, got %d", len(n), len(b))
	}
	copy(n[:], b)
	return n, nil
}

// hashToParent combines node with its sibling. nodeIsLeft selects which side
// of the parent node occupies.
func hashToParent(h Hasher, node, sibling Node, nodeIsLeft bool) Node {
	if nodeIsLeft {
		return h.HashPair(node, sibling)
	}
	return h.HashPair(sibling, node)
}

func isLeft(index uint32, level int) bool {
	return (index>>uint(level))&1 == 0
}

// recompute folds proof into the root above leaf at index.
func recompute(h Hasher, leaf Node, proof []Node, index uint32) Node {
	node := leaf
	for i, sibling := range proof {
		node = hashToParent(h, node, sibling, isLeft(index, i))
	}
	return node
}

// Recompute returns the root implied by leaf sitting at index with the given
// sibling proof, lowest level first.
func Recompute(h Hasher, leaf Node, proof []Node, index uint32) Node {
	if h == nil {
		h = Keccak256
	}
	return recompute(h, leaf, proof, index)
}

// fillInProof pads proof up to maxDepth with empty-subtree digests.
func fillInProof(h Hasher, proof []Node, maxDepth uint32) ([]Node, error) {
	if uint32(len(proof)) > maxDepth {
		return nil, fmt.Errorf("proof has %d nodes for a tree of depth %d: %w", len(proof), maxDepth, ErrCorruptProof)
	}
	full := make([]Node, maxDepth)
	copy(full, proof)
	for i := len(proof); i < int(maxDepth); i++ {
		full[i] = h.EmptyNode(uint32(i))
	}
	return full, nil
}
