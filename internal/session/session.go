// Package session issues, validates, rotates and revokes kiosk
// sessions. Identifiers and anti-forgery tokens are opaque 256-bit
// values from a cryptographically secure source — never derived from
// time windows or anything else an attacker could predict. Session
// state lives in a store shared across all workers so a decision made
// on one kiosk process holds on every other.
package session

import (
	"context"
	"errors"
	"time"
)

// State models the session lifecycle. A stored session is always
// AUTHENTICATED; REVOKED sessions survive only as tombstones so their
// identifiers can never validate again. ANONYMOUS exists only as the
// implicit state of a request carrying no session at all.
type State string

const (
	StateAnonymous     State = "ANONYMOUS"
	StateAuthenticated State = "AUTHENTICATED"
	StateRevoked       State = "REVOKED"
)

// Session is the authenticated context attached to a kiosk user.
// CSRFToken is bound to this session alone: it is reissued on every
// sign-in and dies the moment the session is revoked.
type Session struct {
	ID          string    `json:"-"`
	SubjectID   uint64    `json:"subject_id"`
	SubjectName string    `json:"subject_name"`
	VIP         bool      `json:"vip"`
	CSRFToken   string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	State       State     `json:"state"`
}

// ErrNoSession is returned by a Store when an identifier resolves to
// nothing — unknown, expired out of the store, or never issued.
var ErrNoSession = errors.New("no such session")

// Store is the shared session backend. Implementations must be safe
// for concurrent use from multiple processes.
type Store interface {
	// Save persists the session with an absolute time-to-live.
	Save(ctx context.Context, s *Session, ttl time.Duration) error
	// Get loads a session by ID, returning ErrNoSession when absent.
	Get(ctx context.Context, id string) (*Session, error)
	// Delete removes the live session record.
	Delete(ctx context.Context, id string) error
	// Tombstone marks an identifier as permanently revoked for ttl.
	Tombstone(ctx context.Context, id string, ttl time.Duration) error
	// Tombstoned reports whether the identifier was revoked.
	Tombstoned(ctx context.Context, id string) (bool, error)
	// SwapSubjectSession atomically records id as the subject's only
	// live session and returns the previous one (empty when none).
	SwapSubjectSession(ctx context.Context, subjectID uint64, id string, ttl time.Duration) (string, error)
	// ClearSubjectSession drops the subject mapping when it still
	// points at id, so a logout cannot erase a newer session.
	ClearSubjectSession(ctx context.Context, subjectID uint64, id string) error
	// Touch advances last_seen to ts if and only if ts is newer than
	// the stored value. Requests are not ordered; latest wins.
	Touch(ctx context.Context, id string, ts time.Time) error
}
