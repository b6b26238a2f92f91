// Package apperr defines the error taxonomy shared across the engine.
// These sentinel values and typed errors allow higher layers such as
// handlers to distinguish between different failure scenarios without
// inspecting error strings. For example, ErrRemoteConflict signals that
// the remote inventory rejected a transition because its state moved
// underneath us, while ErrInvalidTransition means our own precondition
// check failed before any remote call was committed.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnauthenticated is returned when no valid session accompanies a
// request. Handlers should translate this into an HTTP 401 response.
var ErrUnauthenticated = errors.New("unauthenticated")

// ErrSessionExpired is returned when a session existed but has passed
// its inactivity timeout or absolute lifetime. It is distinct from
// ErrUnauthenticated so callers can prompt for a fresh sign-in rather
// than reporting a generic failure. Maps to HTTP 401.
var ErrSessionExpired = errors.New("session expired")

// ErrCsrfMismatch is returned when a state-changing request does not
// carry the CSRF token bound to the presenting session. Maps to 403.
var ErrCsrfMismatch = errors.New("csrf token mismatch")

// ErrForbidden is returned when the caller is authenticated but not
// authorized for the requested operation. Maps to HTTP 403.
var ErrForbidden = errors.New("forbidden")

// ErrNotFound is returned when an asset tag or identity credential does
// not resolve to a record in the remote inventory. Maps to HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrInvalidTransition is returned when the requested asset operation
// is not legal from the asset's current state, e.g. checking out an
// asset that is already deployed. Maps to HTTP 409.
var ErrInvalidTransition = errors.New("invalid transition")

// ErrRemoteConflict is returned when a local precondition passed but
// the remote inventory rejected the commit. This is the expected
// optimistic-concurrency outcome, not an engine bug, and it is never
// retried. Maps to HTTP 409.
var ErrRemoteConflict = errors.New("remote conflict")

// ErrValidation is returned for malformed caller input that never
// reaches the remote system. Maps to HTTP 400.
var ErrValidation = errors.New("validation failed")

// DecodeReason classifies why the decoder pipeline could not produce a
// code from the scanned payload.
type DecodeReason string

const (
	DecodeInvalidInput DecodeReason = "INVALID_INPUT"
	DecodeTimeout      DecodeReason = "TIMEOUT"
	DecodeNoMatch      DecodeReason = "NO_MATCH"
)

// DecodeFailure is returned by the decoder pipeline. Detail carries a
// short diagnostic that is safe to log but is not surfaced to callers.
type DecodeFailure struct {
	Reason DecodeReason
	Detail string
}

func (e *DecodeFailure) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("decode failed: %s", e.Reason)
	}
	return fmt.Sprintf("decode failed: %s (%s)", e.Reason, e.Detail)
}

// RateLimited is returned when the limiter denies an action, including
// the fail-secure denial taken when the shared store is unreachable.
// RetryAfter is the remaining window and may be zero when unknown.
type RateLimited struct {
	RetryAfter time.Duration
}

func (e *RateLimited) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// RemoteUnavailable wraps a remote inventory failure that survived the
// retry budget (Retryable true) or was terminal on first sight
// (Retryable false). Maps to HTTP 502.
type RemoteUnavailable struct {
	Retryable bool
	Err       error
}

func (e *RemoteUnavailable) Error() string {
	return fmt.Sprintf("remote inventory unavailable (retryable=%t): %v", e.Retryable, e.Err)
}

func (e *RemoteUnavailable) Unwrap() error { return e.Err }
