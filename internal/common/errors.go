// Package common defines shared constants and sentinel errors used across
// the moltd core and its transport layer. Callers should use errors.Is to
// match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("conflict")

	// Service-level errors.
	ErrorInternal        = errors.New("internal error")
	ErrorForbidden       = errors.New("forbidden")
	ErrorPayloadTooLarge = errors.New("payload too large")
	ErrorInvalidArgument = errors.New("invalid argument")

	// ErrAuthFailure is the single opaque decryption failure. The codec
	// never distinguishes a wrong key from tampered data; the transport
	// layer collapses this into ErrorForbidden.
	ErrAuthFailure = errors.New("authentication failure")
)

// VersionMismatchError is returned when a conditional update's version
// precondition does not match the stored version. Current carries the
// version the losing writer should retry against.
type VersionMismatchError struct {
	Current int64
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("version mismatch: current version is %d", e.Current)
}

// AsVersionMismatch unwraps err into a *VersionMismatchError if it is one.
func AsVersionMismatch(err error) (*VersionMismatchError, bool) {
	var vm *VersionMismatchError
	if errors.As(err, &vm) {
		return vm, true
	}
	return nil, false
}
