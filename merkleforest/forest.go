package merkleforest

import (
	"math/big"

	ourcrypto "github.com/shieldhaven/engine/crypto"
	"github.com/shieldhaven/engine/errs"
	"github.com/shieldhaven/engine/fieldtypes"
)

// Forest is the ordered sequence of fixed-depth trees backing the
// shielded pool's commitment log. A new tree is created lazily the first
// time an insert addresses it, or implicitly when a preceding tree's
// insert would cross its capacity.
type Forest struct {
	trees    []*Tree
	poseidon *ourcrypto.PoseidonHasher
	zero     [Depth + 1]fieldtypes.Felt
}

// New creates an empty forest with its zero-subtree cache precomputed:
// zero[0] = keccak256("Railgun") mod SCALAR, zero[k] = H(zero[k-1], zero[k-1]).
func New() *Forest {
	f := &Forest{poseidon: ourcrypto.NewPoseidonHasher()}

	seed := ourcrypto.Keccak256([]byte("Railgun"))
	f.zero[0] = fieldtypes.FeltFromBigInt(new(big.Int).SetBytes(seed))
	for k := 1; k <= Depth; k++ {
		pair, err := f.poseidon.HashPair(f.zero[k-1], f.zero[k-1])
		if err != nil {
			panic(err) // zero-subtree hashing cannot fail: fixed 32-byte inputs
		}
		f.zero[k] = pair
	}
	return f
}

// TreeCount returns the number of trees the forest has ever created.
func (f *Forest) TreeCount() int {
	return len(f.trees)
}

// Tree returns the tree at index t, or nil if it has not been created.
func (f *Forest) Tree(t uint64) *Tree {
	if t >= uint64(len(f.trees)) {
		return nil
	}
	return f.trees[t]
}

// ensureTree lazily grows the forest so tree index t exists.
func (f *Forest) ensureTree(t uint64) *Tree {
	for uint64(len(f.trees)) <= t {
		f.trees = append(f.trees, newTree(f.zero[Depth]))
	}
	return f.trees[t]
}

// InsertLeaves writes a batch of leaves addressed at (treeNumber,
// startPosition). If the batch would cross the tree's capacity
// (startPosition+len(leaves) > Capacity), the entire batch is redirected
// to tree treeNumber+1 starting at position 0 rather than split across
// the boundary — the behavior of the newer on-chain event-handler
// modules, and the one this engine implements.
func (f *Forest) InsertLeaves(treeNumber uint64, leaves []fieldtypes.Felt, startPosition uint64) (actualTree uint64, actualStart uint64, err error) {
	if startPosition+uint64(len(leaves)) > Capacity {
		actualTree = treeNumber + 1
		actualStart = 0
	} else {
		actualTree = treeNumber
		actualStart = startPosition
	}
	tree := f.ensureTree(actualTree)
	if err := tree.InsertLeaves(leaves, actualStart); err != nil {
		return 0, 0, err
	}
	return actualTree, actualStart, nil
}

// InsertNullifier appends a nullifier to the given tree's nullifier set.
// Inserting against a tree that does not exist is an invariant violation:
// the on-chain Nullified event can only reference a tree some prior
// Shield/Transact event already created.
func (f *Forest) InsertNullifier(treeNumber uint64, nullifier fieldtypes.Felt) error {
	tree := f.Tree(treeNumber)
	if tree == nil {
		return errs.ErrInvariantViolation
	}
	tree.InsertNullifier(nullifier)
	return nil
}

// RebuildSparse recomputes levels 1..Depth for the given tree by pairing
// consecutive slots at each level, treating absent slots as that level's
// zero value. It scans only the used prefix (width derived from
// maxLeafIndex) and never materializes zero nodes.
func (f *Forest) RebuildSparse(treeNumber uint64) error {
	tree := f.Tree(treeNumber)
	if tree == nil {
		return errs.ErrNoTreesInitialized
	}
	if tree.maxLeafIdx < 0 {
		tree.root = f.zero[Depth]
		tree.dirty = false
		return nil
	}

	width := uint64(tree.maxLeafIdx) + 1
	for lvl := 1; lvl <= Depth; lvl++ {
		nextWidth := (width + 1) / 2
		newLevel := make(map[uint64]fieldtypes.Felt, nextWidth)
		for i := uint64(0); i < nextWidth; i++ {
			left := f.levelValue(tree, lvl-1, 2*i)
			right := f.levelValue(tree, lvl-1, 2*i+1)
			h, err := f.poseidon.HashPair(left, right)
			if err != nil {
				return err
			}
			newLevel[i] = h
		}
		tree.levels[lvl] = newLevel
		width = nextWidth
	}

	tree.root = tree.levels[Depth][0]
	tree.dirty = false
	return nil
}

// levelValue returns the cached value at (level, index), or that level's
// zero value if the slot was never written.
func (f *Forest) levelValue(tree *Tree, level int, index uint64) fieldtypes.Felt {
	if v, ok := tree.levels[level][index]; ok {
		return v
	}
	return f.zero[level]
}

// Root returns levels[Depth][0] for the given tree. For a tree with no
// inserts, this equals H(zero[Depth-1], zero[Depth-1]) = zero[Depth].
func (f *Forest) Root(treeNumber uint64) (fieldtypes.Felt, error) {
	tree := f.Tree(treeNumber)
	if tree == nil {
		return fieldtypes.Felt{}, errs.ErrTreeIndexOutOfRange
	}
	return tree.Root(), nil
}

// Proof returns the Merkle inclusion proof for leafValue on the given
// tree. Returns ErrLeafNotFound if the leaf is absent from level 0.
func (f *Forest) Proof(treeNumber uint64, leafValue fieldtypes.Felt) (*Proof, error) {
	tree := f.Tree(treeNumber)
	if tree == nil {
		return nil, errs.ErrTreeIndexOutOfRange
	}
	index, ok := tree.leafToIndex[leafValue]
	if !ok {
		return nil, errs.ErrLeafNotFound
	}
	return f.proofByIndex(tree, index)
}

// ProofByIndex returns the Merkle inclusion proof for the leaf at the
// given absolute index.
func (f *Forest) ProofByIndex(treeNumber uint64, index uint64) (*Proof, error) {
	tree := f.Tree(treeNumber)
	if tree == nil {
		return nil, errs.ErrTreeIndexOutOfRange
	}
	leaf, ok := tree.Leaf(index)
	if !ok {
		return nil, errs.ErrLeafNotFound
	}
	_ = leaf
	return f.proofByIndex(tree, index)
}

func (f *Forest) proofByIndex(tree *Tree, index uint64) (*Proof, error) {
	leaf, ok := tree.Leaf(index)
	if !ok {
		return nil, errs.ErrLeafNotFound
	}

	p := &Proof{Leaf: leaf, Index: index, Root: tree.Root()}
	idx := index
	for lvl := 0; lvl < Depth; lvl++ {
		sibIdx := idx ^ 1
		p.Siblings[lvl] = f.levelValue(tree, lvl, sibIdx)
		p.IndexBits[lvl] = idx%2 == 1
		idx /= 2
	}
	return p, nil
}

// MultiProof proves the leaves at the given positions of one tree in a
// single proof — the batch variant of Proof, covering every note a
// transact spends from that tree. Same staleness contract as Root: only
// valid after the tree's last batch has been rebuilt.
func (f *Forest) MultiProof(treeNumber uint64, positions []uint64) (*ourcrypto.MerkleMultiProof, error) {
	tree := f.Tree(treeNumber)
	if tree == nil {
		return nil, errs.ErrTreeIndexOutOfRange
	}

	leaves := make([]ourcrypto.MerkleLeaf, len(positions))
	for i, pos := range positions {
		leaf, ok := tree.Leaf(pos)
		if !ok {
			return nil, errs.ErrLeafNotFound
		}
		leaves[i] = ourcrypto.MerkleLeaf{
			GeneralizedIndex: ourcrypto.GeneralizedIndex(Depth, pos),
			Value:            leaf,
		}
	}

	proofGIs, err := ourcrypto.MultiProofIndices(Depth, positions)
	if err != nil {
		return nil, err
	}
	nodes := make([]ourcrypto.MerkleNode, len(proofGIs))
	for i, gi := range proofGIs {
		// A generalized index at GI-depth d sits at forest level Depth-d
		// (level 0 holds the leaves); absent slots resolve to the level's
		// zero value the same way Proof's sibling path does.
		d := ourcrypto.DepthOfGI(gi)
		level := Depth - int(d)
		pos := gi - (uint64(1) << d)
		nodes[i] = ourcrypto.MerkleNode{GeneralizedIndex: gi, Value: f.levelValue(tree, level, pos)}
	}

	return &ourcrypto.MerkleMultiProof{Leaves: leaves, Proof: nodes, Depth: Depth}, nil
}

// VerifyMultiProof checks a multi-proof under the forest's Poseidon
// pair hash.
func (f *Forest) VerifyMultiProof(root fieldtypes.Felt, p *ourcrypto.MerkleMultiProof) (bool, error) {
	return ourcrypto.VerifyMultiProof(root, p, f.poseidon.HashPair)
}

// VerifyProof checks a proof against the forest's Poseidon hasher,
// independent of any particular tree's current state.
func (f *Forest) VerifyProof(p *Proof) (bool, error) {
	current := p.Leaf
	for lvl := 0; lvl < Depth; lvl++ {
		var err error
		if p.IndexBits[lvl] {
			current, err = f.poseidon.HashPair(p.Siblings[lvl], current)
		} else {
			current, err = f.poseidon.HashPair(current, p.Siblings[lvl])
		}
		if err != nil {
			return false, err
		}
	}
	return current == p.Root, nil
}
