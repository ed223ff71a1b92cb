// Package merkleforest implements the shielded pool's append-only Merkle
// forest: an ordered sequence of fixed-depth sparse trees. Each tree's
// level 0 holds commitment leaves; levels 1..D are rebuilt lazily from the
// used prefix rather than recomputed on every insert, since materializing
// a full depth-16 tree on every leaf would be prohibitive at Poseidon's
// per-hash cost.
package merkleforest

import (
	"github.com/shieldhaven/engine/errs"
	"github.com/shieldhaven/engine/fieldtypes"
)

// Depth is the fixed depth of every tree in the forest.
const Depth = 16

// Capacity is the number of leaves one tree holds: 2^Depth.
const Capacity = 1 << Depth

// Tree is one fixed-depth sparse Merkle tree. Level 0 holds raw leaf
// values; levels 1..Depth are caches rebuilt by RebuildSparse. Reading
// Root or Proof between an InsertLeaves call and the following
// RebuildSparse observes stale (pre-batch) state, which callers must
// avoid per the single-batch ordering contract.
type Tree struct {
	levels      [Depth + 1]map[uint64]fieldtypes.Felt
	leafToIndex map[fieldtypes.Felt]uint64
	nullifiers  map[fieldtypes.Felt]struct{}
	maxLeafIdx  int64 // -1 means the tree has no leaves yet
	root        fieldtypes.Felt
	dirty       bool
}

func newTree(emptyRoot fieldtypes.Felt) *Tree {
	t := &Tree{
		leafToIndex: make(map[fieldtypes.Felt]uint64),
		nullifiers:  make(map[fieldtypes.Felt]struct{}),
		maxLeafIdx:  -1,
		root:        emptyRoot,
	}
	for i := range t.levels {
		t.levels[i] = make(map[uint64]fieldtypes.Felt)
	}
	return t
}

// InsertLeaves writes leaves into level 0 starting at startPosition. It
// does not recompute parent levels; callers must follow with
// RebuildSparse before reading Root or Proof. Re-inserting an identical
// (index, leaf) pair is a no-op; inserting a different leaf at an
// already-written index is an invariant violation.
func (t *Tree) InsertLeaves(leaves []fieldtypes.Felt, startPosition uint64) error {
	for i, leaf := range leaves {
		idx := startPosition + uint64(i)
		if idx >= Capacity {
			return errs.ErrTreeIndexOutOfRange
		}
		if existing, ok := t.levels[0][idx]; ok {
			if existing != leaf {
				return errs.ErrInvariantViolation
			}
			continue
		}
		t.levels[0][idx] = leaf
		t.leafToIndex[leaf] = idx
		if int64(idx) > t.maxLeafIdx {
			t.maxLeafIdx = int64(idx)
		}
	}
	t.dirty = true
	return nil
}

// InsertNullifier appends a nullifier to the tree's append-only nullifier
// set. Idempotent: inserting an already-present nullifier is a no-op.
func (t *Tree) InsertNullifier(nullifier fieldtypes.Felt) {
	t.nullifiers[nullifier] = struct{}{}
}

// IsNullified reports whether nullifier has been observed on this tree.
func (t *Tree) IsNullified(nullifier fieldtypes.Felt) bool {
	_, ok := t.nullifiers[nullifier]
	return ok
}

// Nullifiers returns every nullifier observed on this tree, in no
// particular order. Used by storage to serialize the tree's nullifier
// set without re-deriving it via IsNullified over the full index range.
func (t *Tree) Nullifiers() []fieldtypes.Felt {
	out := make([]fieldtypes.Felt, 0, len(t.nullifiers))
	for nf := range t.nullifiers {
		out = append(out, nf)
	}
	return out
}

// MaxLeafIndex returns the highest leaf index ever written, or -1 if the
// tree is empty.
func (t *Tree) MaxLeafIndex() int64 {
	return t.maxLeafIdx
}

// Leaf returns the leaf at idx and whether it has been written.
func (t *Tree) Leaf(idx uint64) (fieldtypes.Felt, bool) {
	v, ok := t.levels[0][idx]
	return v, ok
}

// Root returns the tree's current root, valid only when the tree is not
// dirty (i.e. RebuildSparse has run since the last InsertLeaves).
func (t *Tree) Root() fieldtypes.Felt {
	return t.root
}

// Dirty reports whether InsertLeaves has been called since the last
// RebuildSparse.
func (t *Tree) Dirty() bool {
	return t.dirty
}

// Proof is a Merkle inclusion proof for one leaf.
type Proof struct {
	Leaf      fieldtypes.Felt
	Index     uint64
	Siblings  [Depth]fieldtypes.Felt
	IndexBits [Depth]bool // true = leaf is the right child at that level
	Root      fieldtypes.Felt
}
