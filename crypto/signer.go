// Signing helpers backing the external Signer collaborator. Wraps
// go-ethereum's real secp256k1 implementation; a prior stub in this
// package used elliptic.P256 as a placeholder curve, which cannot recover
// a public key from a signature and was never usable against real
// Ethereum signatures.
package crypto

import (
	"crypto/ecdsa"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/shieldhaven/engine/fieldtypes"
)

// GenerateKey generates a new secp256k1 private key.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	return gethcrypto.GenerateKey()
}

// Sign computes a 65-byte [R || S || V] ECDSA signature over a 32-byte hash.
func Sign(hash []byte, prv *ecdsa.PrivateKey) ([]byte, error) {
	return gethcrypto.Sign(hash, prv)
}

// Ecrecover recovers the uncompressed public key from hash and signature.
func Ecrecover(hash, sig []byte) ([]byte, error) {
	return gethcrypto.Ecrecover(hash, sig)
}

// PubkeyToAddress derives the Ethereum address from a public key.
func PubkeyToAddress(p ecdsa.PublicKey) fieldtypes.Address {
	return gethcrypto.PubkeyToAddress(p)
}

// ShieldKeyDerivationLabel is the fixed message the external signer signs
// to derive a deterministic shield private key.
const ShieldKeyDerivationLabel = "RAILGUN_SHIELD_KEY"

// DeriveShieldPrivateKey turns a signature over ShieldKeyDerivationLabel
// into the 32-byte key used to encrypt a ShieldNote's ciphertext bundle.
func DeriveShieldPrivateKey(signatureOverLabel []byte) [32]byte {
	h := Keccak256(signatureOverLabel)
	var out [32]byte
	copy(out[:], h)
	return out
}

// ShieldNoteKey combines the shield private key with the recipient's
// viewing public key into the AES-GCM key a shield ciphertext bundle is
// sealed under. Recovering the bundle requires the shield private key;
// hashing in the viewing public key binds each bundle to its recipient.
func ShieldNoteKey(shieldPrivateKey [32]byte, viewingPublicKey fieldtypes.Felt) [32]byte {
	h := Keccak256(shieldPrivateKey[:], viewingPublicKey[:])
	var out [32]byte
	copy(out[:], h)
	return out
}
