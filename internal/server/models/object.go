// Package models defines the persisted shapes shared by the server-side
// repositories and services.
package models

import (
	"time"

	"github.com/moltmd/moltd/internal/cryptox"
)

// StoredObject is the common encrypted envelope for documents and
// workspaces. The plaintext payload is stored twice: sealed under the
// object's write key and under the derived read key, so a presented read
// key has a usable decryption path. The ciphertext/nonce/version fields
// only ever change together.
type StoredObject struct {
	ID              string
	WriteCiphertext []byte
	WriteNonce      []byte
	ReadCiphertext  []byte
	ReadNonce       []byte
	ReadVerifier    []byte
	Version         int64
	LastAccessed    time.Time
	CreatedAt       time.Time
}

// SetPayload replaces both ciphertext sides from a freshly sealed pair.
func (o *StoredObject) SetPayload(p *cryptox.SealedPair) {
	o.WriteCiphertext = p.WriteCiphertext
	o.WriteNonce = p.WriteNonce
	o.ReadCiphertext = p.ReadCiphertext
	o.ReadNonce = p.ReadNonce
}
