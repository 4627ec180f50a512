// Package crypto bundles the primitives the sealdex protocol is built on:
// AES-256-GCM authenticated encryption, HMAC-SHA256 address derivation and
// a cryptographically strong random source. All functions are stateless.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/i5heu/sealdex/pkg/types"
)

var (
	// ErrAuth is returned when AEAD verification fails. Callers must not
	// use any plaintext when this error is returned.
	ErrAuth = errors.New("crypto: message authentication failed")

	// ErrEntropy is returned when the system random source is unavailable.
	ErrEntropy = errors.New("crypto: entropy source unavailable")
)

// addressLabel is the fixed domain separator for address derivation.
var addressLabel = []byte("address")

// RandomBytes returns n bytes from the system CSPRNG.
func RandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEntropy, err)
	}
	return buf, nil
}

// NewKey samples a fresh 32-byte uniform random key. Every chain node and
// every file gets its own key from here; keys are never derived from a
// keyword, a document or a prior key.
func NewKey() (types.Key, error) {
	var k types.Key
	b, err := RandomBytes(types.KeySize)
	if err != nil {
		return k, err
	}
	copy(k[:], b)
	return k, nil
}

// NewNonce samples a fresh 12-byte AES-GCM nonce.
func NewNonce() (types.Nonce, error) {
	var n types.Nonce
	b, err := RandomBytes(types.NonceSize)
	if err != nil {
		return n, err
	}
	copy(n[:], b)
	return n, nil
}

// NewFileID samples a fresh 16-byte file identifier.
func NewFileID() (types.FileID, error) {
	var id types.FileID
	b, err := RandomBytes(types.FileIDSize)
	if err != nil {
		return id, err
	}
	copy(id[:], b)
	return id, nil
}

// Seal encrypts plaintext with AES-256-GCM under key and nonce. The
// additional data is authenticated but not encrypted. The returned
// ciphertext carries the 16-byte tag appended.
func Seal(key types.Key, nonce types.Nonce, plaintext, additionalData []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce[:], plaintext, additionalData), nil
}

// Open verifies and decrypts an AES-256-GCM ciphertext. A failed tag check
// is reported as ErrAuth.
func Open(key types.Key, nonce types.Nonce, ciphertext, additionalData []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce[:], ciphertext, additionalData)
	if err != nil {
		return nil, ErrAuth
	}
	return plaintext, nil
}

// MAC computes HMAC-SHA256 over label under key. It is used only to derive
// addresses; authentication of stored data is the AEAD's job.
func MAC(key types.Key, label []byte) [32]byte {
	mac := hmac.New(sha256.New, key[:])
	mac.Write(label)
	var out [32]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// DeriveAddress maps a node key to its storage address via
// HMAC-SHA256(key, "address"). The full 32-byte output is the address.
func DeriveAddress(key types.Key) types.Address {
	return types.Address(MAC(key, addressLabel))
}

func newGCM(key types.Key) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return aead, nil
}
