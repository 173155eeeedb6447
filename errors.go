package cmt

import "errors"

var (
	// ErrInvalidConstants reports a (max depth, max buffer size) pair outside the whitelist.
	ErrInvalidConstants = errors.New("unsupported max depth and max buffer size")
	// ErrTreeFull reports an append to a tree with every leaf slot used.
	ErrTreeFull = errors.New("tree is full")
	// ErrIndexOutOfBounds reports a leaf index beyond the rightmost leaf or the tree capacity.
	ErrIndexOutOfBounds = errors.New("leaf index out of bounds")
	// ErrStaleProof reports a proof whose root has aged out of the change log.
	// Fetch a fresh proof and retry.
	ErrStaleProof = errors.New("proof is older than the change log")
	// ErrLeafContentsModified reports that the leaf was rewritten since the proof
	// was issued, so the claimed previous value no longer holds.
	ErrLeafContentsModified = errors.New("leaf contents modified since proof was issued")
	// ErrCorruptProof reports a proof that does not reconstruct the current root.
	ErrCorruptProof = errors.New("proof does not verify against the current root")
	// ErrCanopyLengthMismatch reports canopy bytes that don't describe a valid canopy for the tree.
	ErrCanopyLengthMismatch = errors.New("canopy length mismatch")

	ErrTreeNotInitialized      = errors.New("tree not initialized")
	ErrTreeAlreadyInitialized  = errors.New("tree already initialized")
	ErrCannotAppendEmptyNode   = errors.New("cannot append an empty node")
	ErrTreeNonEmpty            = errors.New("tree is not empty")
	ErrCanopyRootMismatch      = errors.New("canopy does not hash to the tree root")
	ErrCanopyNodesRightOfIndex = errors.New("canopy holds nodes to the right of the rightmost leaf")
	ErrSnapshotCorrupt         = errors.New("snapshot content does not match its link")
)
