package crypto

import (
	"math/big"

	"golang.org/x/crypto/sha3"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shieldhaven/engine/fieldtypes"
)

// Keccak256 calculates the Keccak-256 hash of the given data.
func Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// Keccak256Hash calculates Keccak-256 and returns it as a fieldtypes.Hash.
func Keccak256Hash(data ...[]byte) fieldtypes.Hash {
	return common.BytesToHash(Keccak256(data...))
}

// TokenID collapses a TokenData's preimage to the field element a
// commitment's leaf hash binds to, via Keccak256 reduced modulo the
// scalar field. Shared between indexer (hashing a Shield
// commitment's leaf) and txbuilder (building a change/send note's leaf),
// so both directions of the same leaf formula never drift apart.
func TokenID(t fieldtypes.TokenData) fieldtypes.Felt {
	h := Keccak256(t.TokenIDPreimage())
	return fieldtypes.FeltFromBigInt(new(big.Int).SetBytes(h))
}
