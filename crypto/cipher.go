// Note ciphertext encryption. Shield and transact ciphertexts are bound to
// a recipient's viewing key via AES-256-GCM, replacing the AES-CTR+HMAC
// scheme a prior iteration of this package simulated: GCM gives
// authentication and confidentiality in one pass instead of composing them
// by hand.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"
)

var (
	ErrCiphertextTooShort = errors.New("crypto: ciphertext shorter than nonce size")
	ErrDecryptionFailed   = errors.New("crypto: AES-GCM authentication failed")
)

// EncryptNote seals plaintext under a 32-byte key derived from the
// recipient's viewing key, producing nonce||ciphertext||tag.
func EncryptNote(key [32]byte, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// DecryptNote opens a bundle produced by EncryptNote. Returns
// ErrDecryptionFailed when the key does not match; callers treat this as a
// DecryptionMiss, not a fatal error, since most notes do not belong to them.
func DecryptNote(key [32]byte, sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	ns := gcm.NonceSize()
	if len(sealed) < ns {
		return nil, ErrCiphertextTooShort
	}
	nonce, ciphertext := sealed[:ns], sealed[ns:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}
