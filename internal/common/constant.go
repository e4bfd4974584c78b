package common

// KeyHeaderName is the HTTP header that carries the URL-safe base64
// capability key on every authenticated request.
const KeyHeaderName = "X-Molt-Key"

// MaxContentSize is the plaintext size ceiling for a single object, in
// bytes (5 MiB). Checked before encryption on every mutation.
const MaxContentSize = 5 * 1024 * 1024
