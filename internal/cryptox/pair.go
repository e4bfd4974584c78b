package cryptox

// SealedPair is the same plaintext sealed twice: once under the write key
// and once under the derived read key. Both sides are produced together on
// every mutation so the read-side copy never lags the write-side one.
type SealedPair struct {
	WriteCiphertext []byte
	WriteNonce      []byte
	ReadCiphertext  []byte
	ReadNonce       []byte
}

// SealPair encrypts plaintext under writeKey and under the read key derived
// from it, with two fresh nonces.
func SealPair(writeKey, plaintext []byte) (*SealedPair, error) {
	readKey, err := DeriveReadKey(writeKey)
	if err != nil {
		return nil, err
	}

	wc, wn, err := Encrypt(writeKey, plaintext)
	if err != nil {
		return nil, err
	}
	rc, rn, err := Encrypt(readKey, plaintext)
	if err != nil {
		return nil, err
	}

	return &SealedPair{
		WriteCiphertext: wc,
		WriteNonce:      wn,
		ReadCiphertext:  rc,
		ReadNonce:       rn,
	}, nil
}
