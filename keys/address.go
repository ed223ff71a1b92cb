// 0zk address encoding: a bech32 blob of (masterPublicKey, viewingPublic,
// version, chainID) that lets a sender address a private-to-private
// transfer without learning the recipient's spending key.
package keys

import (
	"errors"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// AddressHRP is the human-readable part every 0zk address carries.
const AddressHRP = "0zk"

// AddressVersion is the only address layout this engine understands.
const AddressVersion = 1

// ErrBadAddress indicates a string that does not decode as a valid 0zk
// address for this engine's supported version.
var ErrBadAddress = errors.New("keys: malformed 0zk address")

// Address is the decoded form of a 0zk address.
type Address struct {
	MasterPublicKey [32]byte
	ViewingPublic   [32]byte
	Version         byte
	// ChainID is 0 for chain-agnostic addresses (any network), otherwise
	// restricts the address to a single chain.
	ChainID uint64
}

// Encode bech32-encodes the address.
func Encode(a Address) (string, error) {
	payload := make([]byte, 0, 1+32+32+8)
	payload = append(payload, a.Version)
	payload = append(payload, a.MasterPublicKey[:]...)
	payload = append(payload, a.ViewingPublic[:]...)
	var chainBuf [8]byte
	for i := 0; i < 8; i++ {
		chainBuf[7-i] = byte(a.ChainID >> (8 * i))
	}
	payload = append(payload, chainBuf[:]...)

	converted, err := bech32.ConvertBits(payload, 8, 5, true)
	if err != nil {
		return "", err
	}
	// The 73-byte payload (version + two 32-byte keys + chain id) encodes
	// past bech32's BIP-173 90-character limit. bech32.Encode applies no
	// length ceiling; bech32.Decode enforces 90 characters, so Decode
	// below uses DecodeNoLimit.
	return bech32.Encode(AddressHRP, converted)
}

// Decode parses a 0zk address string.
func Decode(s string) (Address, error) {
	hrp, data, err := bech32.DecodeNoLimit(s)
	if err != nil {
		return Address{}, ErrBadAddress
	}
	if hrp != AddressHRP {
		return Address{}, ErrBadAddress
	}

	payload, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return Address{}, ErrBadAddress
	}
	if len(payload) < 1+32+32+8 {
		return Address{}, ErrBadAddress
	}

	var a Address
	a.Version = payload[0]
	if a.Version != AddressVersion {
		return Address{}, ErrBadAddress
	}
	copy(a.MasterPublicKey[:], payload[1:33])
	copy(a.ViewingPublic[:], payload[33:65])
	for i := 0; i < 8; i++ {
		a.ChainID = (a.ChainID << 8) | uint64(payload[65+i])
	}
	return a, nil
}

// AddressFor builds and encodes the 0zk address for a derived KeyNode. A
// chainID of 0 produces a chain-agnostic address.
func AddressFor(node *KeyNode, chainID uint64) (string, error) {
	return Encode(Address{
		MasterPublicKey: node.MasterPublic,
		ViewingPublic:   node.ViewingPublic,
		Version:         AddressVersion,
		ChainID:         chainID,
	})
}
