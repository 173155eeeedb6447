// Package indexer keeps an off-chain copy of a concurrent Merkle tree up to
// date from the change log events the tree emits, and serves proofs against
// that copy.
package indexer

import (
	"errors"
	"fmt"
	"sync"

	cmt "github.com/solana-labs/solana-program-library-sub018"
	"github.com/solana-labs/solana-program-library-sub018/reference"
	"go.uber.org/zap"
)

var (
	// ErrEventOutOfOrder reports a gap in the event stream too wide to buffer.
	ErrEventOutOfOrder = errors.New("event too far ahead of the replica")
	// ErrWrongTree reports an event for another tree, or one shaped for another depth.
	ErrWrongTree = errors.New("event does not belong to this tree")
	// ErrInitializedWithRoot reports the event of a tree initialized with a
	// root computed elsewhere. Its leaves are not in the event stream.
	ErrInitializedWithRoot = errors.New("tree was initialized with an existing root")
)

// DefaultMaxPending is the number of early events a replica buffers while
// waiting for a missing one.
const DefaultMaxPending = 1024

// Config controls a Replica.
type Config struct {
	// Tree supplies the hasher and logger.
	Tree *cmt.Config
	// MaxPending defaults to DefaultMaxPending.
	MaxPending int
}

// Replica follows one tree. Events may arrive out of order or more than
// once; each is applied exactly once, in sequence order. A Replica is safe
// for concurrent use.
type Replica struct {
	mu         sync.RWMutex
	id         cmt.Node
	tree       *reference.Tree
	next       uint64
	rightmost  uint32
	pending    map[uint64]*cmt.ChangeLogEvent
	maxPending int
	log        *zap.Logger
}

// NewReplica returns a replica of an empty tree of the given depth. It
// expects the event with sequence number 1 first.
func NewReplica(id cmt.Node, maxDepth uint32, config *Config) *Replica {
	var treeConfig *cmt.Config
	maxPending := DefaultMaxPending
	if config != nil {
		treeConfig = config.Tree
		if config.MaxPending > 0 {
			maxPending = config.MaxPending
		}
	}
	var h cmt.Hasher
	log := zap.NewNop()
	if treeConfig != nil {
		h = treeConfig.Hasher
		if treeConfig.Logger != nil {
			log = treeConfig.Logger
		}
	}
	return &Replica{
		id:         id,
		tree:       reference.New(maxDepth, h),
		next:       1,
		pending:    map[uint64]*cmt.ChangeLogEvent{},
		maxPending: maxPending,
		log:        log,
	}
}

// Apply records an event. Events already applied are ignored; events ahead
// of the replica are held until the gap closes.
func (r *Replica) Apply(e *cmt.ChangeLogEvent) error {
	if err := r.check(e); err != nil {
		return err
	}
	if e.Seq == 0 {
		return fmt.Errorf("genesis event of %x: %w", e.ID[:4], ErrInitializedWithRoot)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case e.Seq < r.next:
		return nil
	case e.Seq > r.next:
		if _, ok := r.pending[e.Seq]; !ok && len(r.pending) >= r.maxPending {
			return fmt.Errorf("seq %d while expecting %d: %w", e.Seq, r.next, ErrEventOutOfOrder)
		}
		r.pending[e.Seq] = e
		r.log.Debug("holding early event", zap.Uint64("seq", e.Seq), zap.Uint64("next", r.next))
		return nil
	}
	r.apply(e)
	for {
		e, ok := r.pending[r.next]
		if !ok {
			return nil
		}
		delete(r.pending, r.next)
		r.apply(e)
	}
}

func (r *Replica) check(e *cmt.ChangeLogEvent) error {
	depth := r.tree.Depth()
	if e.ID != r.id {
		return fmt.Errorf("event for %x: %w", e.ID[:4], ErrWrongTree)
	}
	if uint32(len(e.Path)) != depth+1 {
		return fmt.Errorf("path of %d nodes for depth %d: %w", len(e.Path), depth, ErrWrongTree)
	}
	if uint64(e.Index) >= uint64(1)<<depth {
		return fmt.Errorf("index %d: %w", e.Index, cmt.ErrIndexOutOfBounds)
	}
	base := (uint64(1) << depth) + uint64(e.Index)
	for level, pn := range e.Path {
		if uint64(pn.Index) != base>>uint(level) {
			return fmt.Errorf("path node %d has index %d: %w", level, pn.Index, ErrWrongTree)
		}
	}
	return nil
}

// apply writes every node of the event's path. Caller holds mu.
func (r *Replica) apply(e *cmt.ChangeLogEvent) {
	depth := r.tree.Depth()
	for level, pn := range e.Path {
		r.tree.Set(uint32(level), uint64(pn.Index)-uint64(1)<<(depth-uint32(level)), pn.Node)
	}
	if e.Index >= r.rightmost {
		r.rightmost = e.Index + 1
	}
	r.next = e.Seq + 1
}

// Seq is the sequence number of the last applied event.
func (r *Replica) Seq() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.next - 1
}

// Pending is the number of events held for a gap to close.
func (r *Replica) Pending() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pending)
}

// Root is the root after the last applied event.
func (r *Replica) Root() cmt.Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tree.Root()
}

// RightmostIndex is one past the highest leaf any applied event touched.
func (r *Replica) RightmostIndex() uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rightmost
}

// Leaf returns the leaf at index.
func (r *Replica) Leaf(index uint32) cmt.Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tree.Leaf(index)
}

// LeafProof is a proof of one leaf against the root at Seq.
type LeafProof struct {
	Root  cmt.Node
	Leaf  cmt.Node
	Proof []cmt.Node
	Index uint32
	Seq   uint64
}

// Proof returns a full-depth proof for the leaf at index.
func (r *Replica) Proof(index uint32) (*LeafProof, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if uint64(index) >= uint64(1)<<r.tree.Depth() {
		return nil, fmt.Errorf("index %d: %w", index, cmt.ErrIndexOutOfBounds)
	}
	return &LeafProof{
		Root:  r.tree.Root(),
		Leaf:  r.tree.Leaf(index),
		Proof: r.tree.Proof(index),
		Index: index,
		Seq:   r.next - 1,
	}, nil
}

// ProofForCanopy returns a proof with the levels a canopy of canopyDepth
// caches left out.
func (r *Replica) ProofForCanopy(index, canopyDepth uint32) (*LeafProof, error) {
	p, err := r.Proof(index)
	if err != nil {
		return nil, err
	}
	if canopyDepth > uint32(len(p.Proof)) {
		return nil, fmt.Errorf("canopy depth %d: %w", canopyDepth, cmt.ErrCanopyLengthMismatch)
	}
	p.Proof = p.Proof[:uint32(len(p.Proof))-canopyDepth]
	return p, nil
}

// ReplaceArgs builds the arguments that replace the proven leaf with newLeaf.
func (p *LeafProof) ReplaceArgs(newLeaf cmt.Node) *cmt.ReplaceLeafArgs {
	return &cmt.ReplaceLeafArgs{
		Root:         p.Root,
		PreviousLeaf: p.Leaf,
		NewLeaf:      newLeaf,
		Proof:        append([]cmt.Node(nil), p.Proof...),
		Index:        p.Index,
	}
}
