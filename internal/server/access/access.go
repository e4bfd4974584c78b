// Package access classifies a presented capability key against a stored
// object into an access level. The server never persists keys; a key is
// recognized either by successfully opening the write-side ciphertext or
// by matching the stored read verifier.
package access

import (
	"crypto/subtle"

	"github.com/moltmd/moltd/internal/cryptox"
	"github.com/moltmd/moltd/internal/server/models"
)

// Level is the access a presented key grants over an object.
type Level int

const (
	// None grants nothing; the key matches neither side of the object.
	None Level = iota
	// Read grants decryption via the read-side ciphertext only.
	Read
	// Write grants full access; the key is the object's encryption key.
	Write
)

func (l Level) String() string {
	switch l {
	case Write:
		return "write"
	case Read:
		return "read"
	default:
		return "none"
	}
}

// Classify determines the level presented grants over obj. When the level
// is Read or Write the decrypted plaintext is returned alongside, so
// callers never decrypt twice.
//
// The classification order is fixed: first an AES-GCM open of the
// write-side ciphertext, then a constant-time compare of the presented
// key's digest against the stored read verifier. The digest and compare
// run regardless of the first step's outcome, so a failure at either step
// costs the same shape of work and reveals nothing about which step failed.
func Classify(presented []byte, obj *models.StoredObject) (Level, []byte) {
	plaintext, writeErr := cryptox.Decrypt(presented, obj.WriteCiphertext, obj.WriteNonce)

	digest := cryptox.MakeVerifier(presented)
	readMatch := subtle.ConstantTimeCompare(digest, obj.ReadVerifier) == 1

	if writeErr == nil {
		return Write, plaintext
	}

	if readMatch {
		pt, err := cryptox.Decrypt(presented, obj.ReadCiphertext, obj.ReadNonce)
		if err == nil {
			return Read, pt
		}
	}

	return None, nil
}
