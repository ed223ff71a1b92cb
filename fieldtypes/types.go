// Package fieldtypes defines the core value types shared by the indexer:
// 32-byte field elements reduced modulo the BN254 scalar field, and the
// go-ethereum-backed address/hash aliases every other package builds on.
package fieldtypes

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Address is an Ethereum-style 20-byte address.
type Address = common.Address

// Hash is a 32-byte hash or field element, big-endian.
type Hash = common.Hash

// ScalarField is the BN254 scalar field modulus, the ceiling every
// commitment hash and nullifier is reduced against.
var ScalarField, _ = new(big.Int).SetString("21888242871839275222246405745257275088548364400416034343698204186575808495617", 10)

// Felt is a field element: a 32-byte big-endian value known to be < ScalarField.
type Felt [32]byte

// FeltFromBigInt reduces v modulo ScalarField and returns its 32-byte
// big-endian representation.
func FeltFromBigInt(v *big.Int) Felt {
	reduced := new(big.Int).Mod(v, ScalarField)
	var f Felt
	b := reduced.Bytes()
	copy(f[32-len(b):], b)
	return f
}

// FeltFromHash reduces a Hash modulo ScalarField.
func FeltFromHash(h Hash) Felt {
	return FeltFromBigInt(new(big.Int).SetBytes(h[:]))
}

// Big returns the field element as a big.Int.
func (f Felt) Big() *big.Int {
	return new(big.Int).SetBytes(f[:])
}

// Hash reinterprets the field element as a Hash (same byte layout).
func (f Felt) Hash() Hash {
	return Hash(f)
}

// IsZero reports whether the field element is the zero value.
func (f Felt) IsZero() bool {
	return f == Felt{}
}

// TokenType enumerates the shielded-pool token kinds.
type TokenType uint8

const (
	TokenTypeERC20 TokenType = iota
	TokenTypeERC721
	TokenTypeERC1155
)

// TokenData identifies an asset inside the shielded pool: an ERC20/721/1155
// address plus an optional sub-id for multi-token standards.
type TokenData struct {
	Type    TokenType
	Address Address
	SubID   *big.Int
}

// TokenIDPreimage packs tokenType || tokenAddress || subID (32 bytes), the
// bytes crypto.TokenID hashes with Keccak256 and reduces modulo the scalar
// field to get the token id a commitment's leaf hash binds to.
func (t TokenData) TokenIDPreimage() []byte {
	sub := t.SubID
	if sub == nil {
		sub = new(big.Int)
	}
	buf := make([]byte, 0, 1+20+32)
	buf = append(buf, byte(t.Type))
	buf = append(buf, t.Address[:]...)
	subBytes := sub.Bytes()
	padded := make([]byte, 32)
	copy(padded[32-len(subBytes):], subBytes)
	buf = append(buf, padded...)
	return buf
}

// ZeroAddress is the sentinel used to mean "the chain's native asset".
var ZeroAddress Address

// EAddress is the other common native-asset sentinel
// (0xeeee...eeee), accepted anywhere ZeroAddress is.
var EAddress = Address{
	0xee, 0xee, 0xee, 0xee, 0xee, 0xee, 0xee, 0xee, 0xee, 0xee,
	0xee, 0xee, 0xee, 0xee, 0xee, 0xee, 0xee, 0xee, 0xee, 0xee,
}
