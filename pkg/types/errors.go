package types

import "errors"

// Protocol error kinds shared by every Store implementation, so that a
// client sees the same sentinel whether it talks to an in-process server
// or a remote one over the carrier.
var (
	// ErrNotFound means no row exists for the requested address or file id.
	ErrNotFound = errors.New("sealdex: not found")

	// ErrCollision means a put would have overwritten an existing row.
	// Addresses are 32 uniform random bytes, so a collision signals a
	// randomness failure on the writing client; the operation must be
	// aborted and never retried with the same key.
	ErrCollision = errors.New("sealdex: address collision")
)
