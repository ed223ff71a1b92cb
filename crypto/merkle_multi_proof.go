// Merkle multi-proof generation and verification for binary trees.
//
// A multi-proof demonstrates that a set of leaf values exist at specific
// positions in a Merkle tree, using the minimal set of internal nodes
// required for verification. A transact call spends several notes from
// one tree; proving their commitments together is cheaper than
// independent single proofs.
//
// The tree uses generalized indices: the root is at index 1, and for any
// node at index i, its left child is at 2i and its right child is at 2i+1.
// Leaves of a tree with 2^d leaves are at indices [2^d, 2^(d+1) - 1].

package crypto

import (
	"errors"
	"math/bits"
	"sort"

	"github.com/shieldhaven/engine/fieldtypes"
)

// PairHash combines two sibling nodes into their parent. The Merkle
// forest passes its Poseidon pair hash.
type PairHash func(left, right fieldtypes.Felt) (fieldtypes.Felt, error)

// MerkleMultiProof contains the data needed to verify multiple leaves
// against a Merkle root using generalized indices.
type MerkleMultiProof struct {
	// Leaves are the leaf values being proved.
	Leaves []MerkleLeaf

	// Proof contains the minimal set of internal node values required
	// to reconstruct the root. Ordered by generalized index (ascending).
	Proof []MerkleNode

	// Depth is the tree depth (number of levels below root).
	Depth uint
}

// MerkleLeaf represents a leaf in the multi-proof.
type MerkleLeaf struct {
	// GeneralizedIndex is the position of this leaf in the complete tree.
	GeneralizedIndex uint64

	// Value is the leaf's commitment hash.
	Value fieldtypes.Felt
}

// MerkleNode represents an internal node in the multi-proof.
type MerkleNode struct {
	// GeneralizedIndex is the position of this node.
	GeneralizedIndex uint64

	// Value is the node's hash.
	Value fieldtypes.Felt
}

// --- Generalized index helpers ---

// GeneralizedIndex computes the generalized index for a leaf at the given
// position in a tree of the given depth.
// For depth d, leaves are at indices [2^d, 2^(d+1) - 1].
// Leaf position 0 maps to generalized index 2^d.
func GeneralizedIndex(depth uint, leafPos uint64) uint64 {
	return (1 << depth) + leafPos
}

// Parent returns the generalized index of the parent node.
func Parent(gi uint64) uint64 {
	return gi / 2
}

// Sibling returns the generalized index of the sibling node.
func Sibling(gi uint64) uint64 {
	return gi ^ 1
}

// IsLeft returns true if the generalized index represents a left child.
func IsLeft(gi uint64) bool {
	return gi%2 == 0
}

// DepthOfGI returns the depth (level) of a generalized index.
// The root (gi=1) is at depth 0.
func DepthOfGI(gi uint64) uint {
	if gi == 0 {
		return 0
	}
	return uint(bits.Len64(gi) - 1)
}

// PathToRoot returns the generalized indices along the path from gi to the
// root (exclusive of gi, inclusive of root=1).
func PathToRoot(gi uint64) []uint64 {
	var path []uint64
	for gi > 1 {
		gi = Parent(gi)
		path = append(path, gi)
	}
	return path
}

// --- Multi-proof index selection ---

// MultiProofIndices returns the minimal set of sibling generalized
// indices a verifier needs alongside the given leaf positions to
// reconstruct the root, sorted ascending. The holder of the tree's node
// values resolves these into MerkleNodes.
func MultiProofIndices(depth uint, leafPositions []uint64) ([]uint64, error) {
	if len(leafPositions) == 0 {
		return nil, errors.New("merkle: no leaf positions provided")
	}
	treeSize := uint64(1) << (depth + 1)

	gis := make([]uint64, len(leafPositions))
	for i, pos := range leafPositions {
		gi := GeneralizedIndex(depth, pos)
		if gi >= treeSize {
			return nil, errors.New("merkle: leaf position out of range")
		}
		gis[i] = gi
	}
	gis = dedup(gis)

	// Walk up from each leaf to root. A node is known if the verifier
	// holds it (a proved leaf) or can compute it (the parent of two
	// resolved children); everything else on a sibling path is needed.
	known := make(map[uint64]bool)
	for _, gi := range gis {
		known[gi] = true
	}

	needed := make(map[uint64]bool)
	for _, gi := range gis {
		cur := gi
		for cur > 1 {
			sib := Sibling(cur)
			if !known[sib] {
				needed[sib] = true
			}
			par := Parent(cur)
			known[par] = true
			cur = par
		}
	}

	var proofGIs []uint64
	for gi := range needed {
		if !known[gi] {
			proofGIs = append(proofGIs, gi)
		}
	}
	sort.Slice(proofGIs, func(i, j int) bool { return proofGIs[i] < proofGIs[j] })
	return proofGIs, nil
}

// --- Multi-proof verification ---

// VerifyMultiProof checks that the given multi-proof is consistent with
// the provided root, reconstructing the root by combining the leaf
// values with the proof nodes bottom-up under hash.
func VerifyMultiProof(root fieldtypes.Felt, proof *MerkleMultiProof, hash PairHash) (bool, error) {
	if proof == nil || len(proof.Leaves) == 0 {
		return false, nil
	}

	values := make(map[uint64]fieldtypes.Felt)
	for _, leaf := range proof.Leaves {
		values[leaf.GeneralizedIndex] = leaf.Value
	}
	for _, node := range proof.Proof {
		values[node.GeneralizedIndex] = node.Value
	}

	// Repeatedly combine sibling pairs into parents until no progress is
	// possible; a well-formed proof converges on the root.
	changed := true
	for changed {
		changed = false
		gis := make([]uint64, 0, len(values))
		for gi := range values {
			gis = append(gis, gi)
		}
		sort.Slice(gis, func(i, j int) bool { return gis[i] > gis[j] })

		for _, gi := range gis {
			if gi <= 1 {
				continue
			}
			sibValue, hasSib := values[Sibling(gi)]
			if !hasSib {
				continue
			}
			par := Parent(gi)
			if _, has := values[par]; has {
				continue
			}

			left, right := values[gi], sibValue
			if !IsLeft(gi) {
				left, right = right, left
			}
			parentValue, err := hash(left, right)
			if err != nil {
				return false, err
			}
			values[par] = parentValue
			changed = true
		}
	}

	computedRoot, ok := values[1]
	if !ok {
		return false, nil
	}
	return computedRoot == root, nil
}

// --- Proof compaction ---

// CompactMultiProof removes redundant proof nodes that can be computed
// from other proof nodes + leaves. This handles the case where two
// proved leaves share a common ancestor and the sibling of one ancestor
// is itself an ancestor of another proved leaf.
func CompactMultiProof(proof *MerkleMultiProof) *MerkleMultiProof {
	if proof == nil || len(proof.Leaves) <= 1 {
		return proof
	}

	known := make(map[uint64]bool)
	for _, leaf := range proof.Leaves {
		known[leaf.GeneralizedIndex] = true
	}

	// Walk each leaf to root, marking computable parents.
	for _, leaf := range proof.Leaves {
		cur := leaf.GeneralizedIndex
		for cur > 1 {
			par := Parent(cur)
			if known[Sibling(cur)] {
				known[par] = true
			}
			cur = par
		}
	}

	var compacted []MerkleNode
	for _, node := range proof.Proof {
		if !known[node.GeneralizedIndex] {
			compacted = append(compacted, node)
			known[node.GeneralizedIndex] = true
			cur := node.GeneralizedIndex
			for cur > 1 {
				par := Parent(cur)
				if known[Sibling(cur)] {
					known[par] = true
				}
				cur = par
			}
		}
	}

	return &MerkleMultiProof{
		Leaves: proof.Leaves,
		Proof:  compacted,
		Depth:  proof.Depth,
	}
}

// --- Utilities ---

// dedup removes duplicate uint64 values and sorts the result.
func dedup(vals []uint64) []uint64 {
	seen := make(map[uint64]bool)
	var result []uint64
	for _, v := range vals {
		if !seen[v] {
			seen[v] = true
			result = append(result, v)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// ProofSize returns the number of proof nodes needed for a multi-proof
// of k leaves in a tree of the given depth. This is an upper bound;
// actual proof size may be smaller due to shared internal nodes.
func ProofSize(depth uint, k int) int {
	if k == 0 {
		return 0
	}
	return k * int(depth)
}
