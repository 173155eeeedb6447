package cmt

import (
	"fmt"
	"math/bits"
)

// Canopy caches the top levels of a tree, below the root, so callers can
// submit proofs that stop short of those levels. Nodes are stored breadth
// first: the node with heap index k (the root being 1) lives at k-2. A node
// that was never written is Empty and reads as the empty subtree digest of its
// level.
type Canopy struct {
	hasher   Hasher
	maxDepth uint32
	depth    uint32
	nodes    []Node
}

// NewCanopy returns an empty canopy caching depth levels of a tree of maxDepth.
func NewCanopy(maxDepth, depth uint32, h Hasher) (*Canopy, error) {
	if h == nil {
		h = Keccak256
	}
	if maxDepth > MaxSupportedDepth {
		return nil, fmt.Errorf("canopy for a tree of depth %d: %w", maxDepth, ErrInvalidConstants)
	}
	if depth > maxDepth {
		return nil, fmt.Errorf("canopy depth %d exceeds max depth %d: %w", depth, maxDepth, ErrCanopyLengthMismatch)
	}
	return &Canopy{
		hasher:   h,
		maxDepth: maxDepth,
		depth:    depth,
		nodes:    make([]Node, canopyNodeCount(depth)),
	}, nil
}

// DecodeCanopy reads canopy bytes, deriving the canopy depth from their length.
func DecodeCanopy(buf []byte, maxDepth uint32, h Hasher) (*Canopy, error) {
	depth, err := canopyDepthForLength(len(buf), maxDepth)
	if err != nil {
		return nil, err
	}
	c, err := NewCanopy(maxDepth, depth, h)
	if err != nil {
		return nil, err
	}
	if _, err := decodeNodes(buf, c.nodes); err != nil {
		return nil, fmt.Errorf("decode canopy: %w", err)
	}
	return c, nil
}

func canopyDepthForLength(byteLen int, maxDepth uint32) (uint32, error) {
	if maxDepth > MaxSupportedDepth {
		return 0, fmt.Errorf("canopy for a tree of depth %d: %w", maxDepth, ErrInvalidConstants)
	}
	if byteLen%nodeSize != 0 {
		return 0, fmt.Errorf("%d bytes is not a whole number of nodes: %w", byteLen, ErrCanopyLengthMismatch)
	}
	n := uint64(byteLen/nodeSize) + 2
	if n&(n-1) != 0 {
		return 0, fmt.Errorf("%d nodes do not fill whole levels: %w", n-2, ErrCanopyLengthMismatch)
	}
	if n > uint64(1)<<(maxDepth+1) {
		return 0, fmt.Errorf("%d nodes exceed a tree of depth %d: %w", n-2, maxDepth, ErrCanopyLengthMismatch)
	}
	return uint32(bits.TrailingZeros64(n)) - 1, nil
}

// MarshalBinary returns the canopy nodes back to back.
func (c *Canopy) MarshalBinary() ([]byte, error) {
	return appendNodes(make([]byte, 0, len(c.nodes)*nodeSize), c.nodes), nil
}

// Depth is the number of cached levels.
func (c *Canopy) Depth() uint32 { return c.depth }

// Nodes returns a copy of the cached nodes in storage order.
func (c *Canopy) Nodes() []Node {
	res := make([]Node, len(c.nodes))
	copy(res, c.nodes)
	return res
}

// Clone returns an independent copy.
func (c *Canopy) Clone() *Canopy {
	res := *c
	res.nodes = c.Nodes()
	return &res
}

func (c *Canopy) valueForNode(heapIndex uint64, level uint32) Node {
	if n := c.nodes[heapIndex-2]; n != Empty {
		return n
	}
	return c.hasher.EmptyNode(level)
}

// Update writes the cached levels of an emitted path. path runs from the leaf
// to the root.
func (c *Canopy) Update(path []PathNode) error {
	if c.depth == 0 {
		return nil
	}
	if uint32(len(path)) != c.maxDepth+1 {
		return fmt.Errorf("path of %d nodes for a tree of depth %d: %w", len(path), c.maxDepth, ErrCorruptProof)
	}
	for level := c.maxDepth - c.depth; level < c.maxDepth; level++ {
		pn := path[level]
		c.nodes[pn.Index-2] = pn.Node
	}
	return nil
}

// FillProof completes a proof for the leaf at index with cached siblings.
// Callers may supply anywhere from maxDepth-depth to maxDepth nodes; cached
// nodes fill only the levels the caller left out.
func (c *Canopy) FillProof(index uint32, proof []Node) ([]Node, error) {
	if uint64(index) >= uint64(1)<<c.maxDepth {
		return nil, fmt.Errorf("index %d: %w", index, ErrIndexOutOfBounds)
	}
	full := append(make([]Node, 0, c.maxDepth), proof...)
	if c.depth == 0 {
		return full, nil
	}
	if below := c.maxDepth - c.depth; uint32(len(proof)) < below {
		return nil, fmt.Errorf("proof of %d nodes does not reach the canopy %d levels up: %w", len(proof), below, ErrCorruptProof)
	}
	inferred := make([]Node, 0, c.depth)
	nodeIndex := ((uint64(1) << c.maxDepth) + uint64(index)) >> (c.maxDepth - c.depth)
	for nodeIndex > 1 {
		level := c.maxDepth - uint32(63-bits.LeadingZeros64(nodeIndex))
		inferred = append(inferred, c.valueForNode(nodeIndex^1, level))
		nodeIndex >>= 1
	}
	overlap := 0
	if n := len(full) + len(inferred) - int(c.maxDepth); n > 0 {
		overlap = n
	}
	if overlap > len(inferred) {
		return nil, fmt.Errorf("proof of %d nodes for a tree of depth %d: %w", len(proof), c.maxDepth, ErrCorruptProof)
	}
	return append(full, inferred[overlap:]...), nil
}

// SetLeafNodes writes nodes into the lowest cached level starting at
// position start, then rehashes every cached ancestor of those nodes.
func (c *Canopy) SetLeafNodes(start uint32, nodes []Node) error {
	if len(nodes) == 0 {
		return nil
	}
	width := uint64(1) << c.depth
	if c.depth == 0 || uint64(start)+uint64(len(nodes)) > width {
		return fmt.Errorf("%d canopy nodes at %d exceed level width %d: %w", len(nodes), start, width, ErrIndexOutOfBounds)
	}
	first := width + uint64(start)
	last := first + uint64(len(nodes)) - 1
	copy(c.nodes[first-2:], nodes)
	for level := c.maxDepth - c.depth + 1; level < c.maxDepth; level++ {
		first >>= 1
		last >>= 1
		for k := first; k <= last; k++ {
			left := c.valueForNode(k<<1, level-1)
			right := c.valueForNode(k<<1+1, level-1)
			c.nodes[k-2] = c.hasher.HashPair(left, right)
		}
	}
	return nil
}

// CheckRoot verifies that the top cached level hashes to root.
func (c *Canopy) CheckRoot(root Node) error {
	if c.depth == 0 {
		return nil
	}
	top := c.maxDepth - 1
	if c.hasher.HashPair(c.valueForNode(2, top), c.valueForNode(3, top)) != root {
		return ErrCanopyRootMismatch
	}
	return nil
}

// CheckNoNodesRightOfIndex verifies that nothing is cached to the right of
// the path of the leaf at index.
func (c *Canopy) CheckNoNodesRightOfIndex(index uint32) error {
	if uint64(index) >= uint64(1)<<c.maxDepth {
		return fmt.Errorf("index %d: %w", index, ErrIndexOutOfBounds)
	}
	for level := c.maxDepth - c.depth; level < c.maxDepth; level++ {
		nodeIndex := ((uint64(1) << c.maxDepth) + uint64(index)) >> level
		end := uint64(1) << (c.maxDepth - level + 1)
		for k := nodeIndex + 1; k < end; k++ {
			if c.nodes[k-2] != Empty {
				return fmt.Errorf("node %d at level %d: %w", k, level, ErrCanopyNodesRightOfIndex)
			}
		}
	}
	return nil
}
