// Package cryptox implements the authenticated-encryption envelope and the
// capability key material for moltd objects.
//
// Every object is protected by a pair of 256-bit keys: a random write key,
// which is also the AES-256-GCM encryption key, and a read key derived from
// it one-way via HKDF-SHA256 under a fixed domain-separation label. The
// server persists only a SHA-256 verifier of the read key; raw keys exist
// solely as function parameters within a single request.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"github.com/moltmd/moltd/internal/common"
	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// NonceSize is the GCM nonce length in bytes.
	NonceSize = 12
)

// readKeyInfo is the HKDF domain-separation label for read-key derivation.
// Changing it invalidates every read key ever issued.
var readKeyInfo = []byte("moltd.read-key.v1")

// GenerateKey returns a fresh random 256-bit write key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// DeriveReadKey derives the read key from a write key via HKDF-SHA256.
// The derivation is deterministic and one-way: the write key can never be
// recovered from the read key.
func DeriveReadKey(writeKey []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, writeKey, nil, readKeyInfo)
	readKey := make([]byte, KeySize)
	if _, err := io.ReadFull(r, readKey); err != nil {
		return nil, err
	}
	return readKey, nil
}

// MakeVerifier returns the SHA-256 digest of a read key. The verifier is
// the only read-related value persisted server-side; it recognizes a
// presented read key without being usable as one.
func MakeVerifier(readKey []byte) []byte {
	hash := sha256.Sum256(readKey)
	return hash[:]
}

// Encrypt seals plaintext with AES-256-GCM under key. A new random 12-byte
// nonce is generated for each call; nonces are never accepted from callers.
// The 128-bit integrity tag is bundled into the returned ciphertext.
func Encrypt(key, plaintext []byte) (ciphertext, nonce []byte, err error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}

	ciphertext = aesgcm.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// Decrypt opens ciphertext with AES-256-GCM under key. It fails closed:
// any bit corruption, key mismatch, or nonce mismatch yields the single
// opaque common.ErrAuthFailure, never a distinguishable cause.
func Decrypt(key, ciphertext, nonce []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, common.ErrAuthFailure
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, common.ErrAuthFailure
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, common.ErrAuthFailure
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
