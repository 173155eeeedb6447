/*
Package cmt provides a concurrent Merkle tree: an append-only binary
Merkle tree of fixed depth that accepts updates built against any of
its recent roots, not just the current one.

# Uses

- Compressed on-chain state, where only the root and a short history
live in an account and the leaves live off-chain

- Ordering many writers that each read a root, build a proof, and
submit an update without coordinating with each other

- Following a tree from its change log events and serving proofs
from a replica (see the indexer package)

# How updates stay valid

Every update records the full path it rewrote, and the tree keeps the
most recent MaxBufferSize paths in a ring buffer. A proof built
against an older root is fast-forwarded: each later update shares
exactly one proof position with it, found from the highest bit where
the two leaf indexes differ, and that position is patched from the
later update's path. If the later update rewrote the same leaf, the
proof's leaf is replaced instead, so a writer whose leaf changed under
it gets ErrLeafContentsModified rather than clobbering the newer value.
A proof may be up to MaxBufferSize updates old. At exactly that age
its root has just been overwritten, and the tree recognises it by the
root it remembers from the last overwritten entry. Older proofs fail
with ErrStaleProof.

# Sizes

Only the (depth, buffer size) pairs returned by SupportedConstants are
accepted. Trees, canopies, and accounts encode to fixed little-endian
layouts whose sizes are given by TreeSize, CanopySize, and AccountSize.

# Canopy

An Account pairs a tree with a Canopy, which caches the top levels of
the tree so that callers may submit proofs that stop below them.

# Persistence

A Store saves account snapshots under the base64url blake2b digest of
their bytes to any Persist: in memory, files, LevelDB, S3, or a
snappy-compressed wrapper around any of those.
*/
package cmt
