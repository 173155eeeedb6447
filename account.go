package cmt

import (
	"encoding/binary"
	"fmt"
)

// Account is a tree together with its canopy and an identifier. Its methods
// take canopy-shortened proofs and return the event observers need to follow
// the tree.
type Account struct {
	ID     Node
	tree   *Tree
	canopy *Canopy
}

// NewAccount returns an account holding an initialized empty tree.
func NewAccount(id Node, maxDepth, maxBufferSize, canopyDepth uint32, config *Config) (*Account, error) {
	a, err := PrepareAccount(id, maxDepth, maxBufferSize, canopyDepth, config)
	if err != nil {
		return nil, err
	}
	if _, err := a.tree.Initialize(); err != nil {
		return nil, err
	}
	return a, nil
}

// PrepareAccount returns an account whose tree is not yet initialized, so its
// canopy can be filled with AppendCanopyNodes before
// InitializePreparedWithRoot.
func PrepareAccount(id Node, maxDepth, maxBufferSize, canopyDepth uint32, config *Config) (*Account, error) {
	t, err := Prepare(maxDepth, maxBufferSize, config)
	if err != nil {
		return nil, err
	}
	c, err := NewCanopy(maxDepth, canopyDepth, t.hasher)
	if err != nil {
		return nil, err
	}
	return &Account{ID: id, tree: t, canopy: c}, nil
}

// Tree gives read access to the account's tree. Mutate it through the
// account so the canopy stays current.
func (a *Account) Tree() *Tree { return a.tree }

// Canopy gives read access to the account's canopy.
func (a *Account) Canopy() *Canopy { return a.canopy }

// Root returns the current root.
func (a *Account) Root() Node { return a.tree.Root() }

func (a *Account) emit() (*ChangeLogEvent, error) {
	entry := &a.tree.changeLogs[a.tree.activeIndex]
	event := NewChangeLogEvent(a.ID, entry, a.tree.maxDepth, a.tree.sequenceNumber)
	if err := a.canopy.Update(event.Path); err != nil {
		return nil, fmt.Errorf("update canopy: %w", err)
	}
	return event, nil
}

// Append appends leaf to the tree.
func (a *Account) Append(leaf Node) (*ChangeLogEvent, error) {
	if _, err := a.tree.Append(leaf); err != nil {
		return nil, err
	}
	return a.emit()
}

// ReplaceLeaf replaces a leaf. args.Proof may omit the levels the canopy caches.
func (a *Account) ReplaceLeaf(args *ReplaceLeafArgs) (*ChangeLogEvent, error) {
	proof, err := a.canopy.FillProof(args.Index, args.Proof)
	if err != nil {
		return nil, err
	}
	full := *args
	full.Proof = proof
	if _, err := a.tree.ReplaceLeaf(&full); err != nil {
		return nil, err
	}
	return a.emit()
}

// VerifyLeaf verifies a leaf. args.Proof may omit the levels the canopy caches.
func (a *Account) VerifyLeaf(args *ProveLeafArgs) error {
	proof, err := a.canopy.FillProof(args.Index, args.Proof)
	if err != nil {
		return err
	}
	full := *args
	full.Proof = proof
	return a.tree.ProveLeaf(&full)
}

// InsertOrAppend fills an empty leaf, or appends when that leaf is taken.
// The emitted event tells where the leaf landed.
func (a *Account) InsertOrAppend(args *FillEmptyOrAppendArgs) (*ChangeLogEvent, error) {
	proof, err := a.canopy.FillProof(args.Index, args.Proof)
	if err != nil {
		return nil, err
	}
	full := *args
	full.Proof = proof
	if _, err := a.tree.FillEmptyOrAppend(&full); err != nil {
		return nil, err
	}
	return a.emit()
}

// AppendCanopyNodes fills part of the lowest canopy level of a prepared
// account, starting at position start.
func (a *Account) AppendCanopyNodes(start uint32, nodes []Node) error {
	if a.tree.isInitialized() {
		return ErrTreeAlreadyInitialized
	}
	return a.canopy.SetLeafNodes(start, nodes)
}

// InitializePreparedWithRoot initializes a prepared account with a root built
// elsewhere. The canopy must hash to the root and hold nothing to the right
// of the rightmost leaf.
func (a *Account) InitializePreparedWithRoot(args *InitializeWithRootArgs) (*ChangeLogEvent, error) {
	if a.tree.isInitialized() {
		return nil, ErrTreeAlreadyInitialized
	}
	if err := a.canopy.CheckRoot(args.Root); err != nil {
		return nil, err
	}
	if err := a.canopy.CheckNoNodesRightOfIndex(args.Index); err != nil {
		return nil, err
	}
	proof, err := a.canopy.FillProof(args.Index, args.Proof)
	if err != nil {
		return nil, err
	}
	full := *args
	full.Proof = proof
	if _, err := a.tree.InitializeWithRoot(&full); err != nil {
		return nil, err
	}
	return a.emit()
}

// Close checks that the account may be discarded: its tree must be empty.
func (a *Account) Close() error {
	return a.tree.ProveTreeIsEmpty()
}

// Clone returns an independent copy.
func (a *Account) Clone() *Account {
	return &Account{ID: a.ID, tree: a.tree.Clone(), canopy: a.canopy.Clone()}
}

// MarshalBinary encodes the account header, tree and canopy.
func (a *Account) MarshalBinary() ([]byte, error) {
	size, err := AccountSize(a.tree.maxDepth, a.tree.maxBufferSize, a.canopy.depth)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, size)
	buf = binary.LittleEndian.AppendUint32(buf, a.tree.maxDepth)
	buf = binary.LittleEndian.AppendUint32(buf, a.tree.maxBufferSize)
	buf = appendNode(buf, a.ID)
	buf = a.tree.appendBinary(buf)
	return appendNodes(buf, a.canopy.nodes), nil
}

// DecodeAccount reads bytes written by Account.MarshalBinary.
func DecodeAccount(buf []byte, config *Config) (*Account, error) {
	var maxDepth, maxBufferSize uint32
	var id Node
	rest, err := decodeUint32(buf, &maxDepth)
	if err == nil {
		rest, err = decodeUint32(rest, &maxBufferSize)
	}
	if err == nil {
		rest, err = decodeNode(rest, &id)
	}
	if err != nil {
		return nil, fmt.Errorf("account header: %w", err)
	}
	treeSize, err := TreeSize(maxDepth, maxBufferSize)
	if err != nil {
		return nil, err
	}
	if len(rest) < treeSize {
		return nil, fmt.Errorf("account holds %d bytes, tree needs %d: %w", len(rest), treeSize, errShortBuffer)
	}
	t, err := UnmarshalTree(rest[:treeSize], maxDepth, maxBufferSize, config)
	if err != nil {
		return nil, err
	}
	c, err := DecodeCanopy(rest[treeSize:], maxDepth, t.hasher)
	if err != nil {
		return nil, err
	}
	return &Account{ID: id, tree: t, canopy: c}, nil
}
