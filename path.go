package cmt

// Path is the proof of the rightmost leaf. Index is the next unused leaf
// slot; Leaf and Proof belong to the leaf at Index-1. Keeping it lets appends
// proceed without a proof from the caller.
type Path struct {
	Proof []Node
	Leaf  Node
	Index uint32
}

func newEmptyPath(h Hasher, maxDepth uint32) Path {
	proof := make([]Node, maxDepth)
	for i := range proof {
		proof[i] = h.EmptyNode(uint32(i))
	}
	return Path{Proof: proof}
}

func (p *Path) clone() Path {
	proof := make([]Node, len(p.Proof))
	copy(proof, p.Proof)
	return Path{Proof: proof, Leaf: p.Leaf, Index: p.Index}
}
