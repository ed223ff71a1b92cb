// Poseidon2 hashing over the BN254 scalar field, the hash used for every
// commitment and nullifier in the shielded pool. Backed by gnark-crypto's
// pure-Go implementation; cached because the same (npk, tokenId, value)
// triple is frequently re-hashed while a sync batch is rebuilding a tree.
package crypto

import (
	"errors"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/poseidon2"

	"github.com/shieldhaven/engine/fieldtypes"
)

var (
	ErrPoseidonBadInputLength = errors.New("poseidon: input length must be a multiple of 32 bytes")
	ErrPoseidonTooManyInputs  = errors.New("poseidon: at most 16 field elements per call")
)

var poseidonHasherFactory = poseidon2.NewMerkleDamgardHasher

// PoseidonHasher computes Poseidon2 hashes over BN254 field elements, with
// a bounded cache of recently computed results.
type PoseidonHasher struct {
	mu       sync.RWMutex
	cache    map[fieldtypes.Felt]fieldtypes.Felt
	cacheMax int

	TotalHashes uint64
	CacheHits   uint64
}

// NewPoseidonHasher returns a hasher with a cache sized for one sync batch.
func NewPoseidonHasher() *PoseidonHasher {
	return &PoseidonHasher{
		cache:    make(map[fieldtypes.Felt]fieldtypes.Felt),
		cacheMax: 20000,
	}
}

// Hash computes Poseidon2 over 1-16 concatenated 32-byte field elements.
func (p *PoseidonHasher) Hash(input ...[]byte) (fieldtypes.Felt, error) {
	total := 0
	for _, in := range input {
		total += len(in)
	}
	if total == 0 || total%32 != 0 {
		return fieldtypes.Felt{}, ErrPoseidonBadInputLength
	}
	if total/32 > 16 {
		return fieldtypes.Felt{}, ErrPoseidonTooManyInputs
	}

	flat := make([]byte, 0, total)
	for _, in := range input {
		flat = append(flat, in...)
	}

	key := cacheKey(flat)
	p.mu.RLock()
	if cached, ok := p.cache[key]; ok {
		p.mu.RUnlock()
		p.mu.Lock()
		p.CacheHits++
		p.mu.Unlock()
		return cached, nil
	}
	p.mu.RUnlock()

	hasher := poseidonHasherFactory()
	for off := 0; off < len(flat); off += 32 {
		var elem fr.Element
		elem.SetBytes(flat[off : off+32])
		b := elem.Bytes()
		hasher.Write(b[:])
	}
	sum := hasher.Sum(nil)

	var result fieldtypes.Felt
	copy(result[:], sum)

	p.mu.Lock()
	p.TotalHashes++
	if len(p.cache) < p.cacheMax {
		p.cache[key] = result
	}
	p.mu.Unlock()

	return result, nil
}

// HashPair computes Poseidon2(left, right), the pair-hash used at every
// internal Merkle forest level.
func (p *PoseidonHasher) HashPair(left, right fieldtypes.Felt) (fieldtypes.Felt, error) {
	return p.Hash(left[:], right[:])
}

// CommitmentLeaf computes Poseidon(npk, tokenID, value32), the leaf
// hash a Shield event's commitment produces.
func (p *PoseidonHasher) CommitmentLeaf(npk fieldtypes.Felt, tokenID fieldtypes.Felt, value32 [32]byte) (fieldtypes.Felt, error) {
	return p.Hash(npk[:], tokenID[:], value32[:])
}

// NPK computes the note public key a commitment's leaf hash binds to:
// Poseidon(masterPublicKey, random), with random placed in the low-order
// 16 bytes of a zero-filled 32-byte field element. Every output note (shield, change, or send)
// derives its npk this way before hashing its commitment leaf.
func (p *PoseidonHasher) NPK(masterPublicKey fieldtypes.Felt, random [16]byte) (fieldtypes.Felt, error) {
	var padded [32]byte
	copy(padded[16:], random[:])
	return p.Hash(masterPublicKey[:], padded[:])
}

// Nullifier computes Poseidon(nullifyingKey, index32), the value an owner
// publishes on-chain to spend the note at the given leaf index.
func (p *PoseidonHasher) Nullifier(nullifyingKey fieldtypes.Felt, index uint64) (fieldtypes.Felt, error) {
	var idxBuf [32]byte
	for i := 0; i < 8; i++ {
		idxBuf[31-i] = byte(index >> (8 * i))
	}
	return p.Hash(nullifyingKey[:], idxBuf[:])
}

func cacheKey(data []byte) fieldtypes.Felt {
	var k fieldtypes.Felt
	copy(k[:], Keccak256(data))
	return k
}
