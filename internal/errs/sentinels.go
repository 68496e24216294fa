// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
)

// Common sentinels across codec/remote/sync layers.
var (
	// ErrCryptoUnavailable indicates the platform lacks required crypto
	// primitives; callers degrade to plaintext mode instead of failing.
	ErrCryptoUnavailable = errors.New("crypto unavailable")

	// ErrDecryptionFailed indicates a ciphertext did not authenticate.
	// Recovered locally via the decoder fallback chain, never fatal.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrOwnershipMismatch indicates a bridge envelope owner differs from the
	// caller. Security-relevant; always propagated, never swallowed.
	ErrOwnershipMismatch = errors.New("ownership mismatch")

	// ErrRemoteUnavailable indicates a network failure or timeout talking to
	// the remote store or bridge. Retried on the next sync.
	ErrRemoteUnavailable = errors.New("remote unavailable")

	// ErrSchemaMismatch indicates the remote schema disagrees with ours: a
	// document lacks an expected field under any known legacy name, or the
	// store rejected a write as invalid.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrSyncInFlight indicates a reconciliation is already running for this
	// owner; the call is rejected rather than interleaved.
	ErrSyncInFlight = errors.New("sync already in flight")

	// ErrUnauthorized indicates failed authentication at the bridge.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates a temporary lockout due to failed attempts.
	ErrRateLimited = errors.New("rate limited")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")
)

// OwnershipError carries both sides of a failed bridge ownership assertion.
type OwnershipError struct {
	Want string // owner supplied by the caller
	Got  string // owner embedded in the envelope
}

func (e *OwnershipError) Error() string {
	return fmt.Sprintf("envelope owner %q does not match caller %q", e.Got, e.Want)
}

func (e *OwnershipError) Is(target error) bool { return target == ErrOwnershipMismatch }

// RemoteError wraps a transport failure with operation context.
type RemoteError struct {
	Op         string // "list", "create", "update", "delete"
	Collection string
	Err        error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Is treats a transport-level RemoteError as ErrRemoteUnavailable, except
// when the store actually answered: a 404 and a schema-validation rejection
// are store decisions, not availability problems, and must not trigger the
// caller's offline fallback.
func (e *RemoteError) Is(target error) bool {
	return target == ErrRemoteUnavailable &&
		!errors.Is(e.Err, ErrNotFound) &&
		!errors.Is(e.Err, ErrSchemaMismatch)
}
