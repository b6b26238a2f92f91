package session

import (
	"context"
	"log"
	"time"

	"github.com/iliyamo/asset-checkout-kiosk/internal/apperr"
	"github.com/iliyamo/asset-checkout-kiosk/internal/model"
	"github.com/iliyamo/asset-checkout-kiosk/internal/utils"
)

// tokenBytes sizes session and CSRF tokens at 256 bits of entropy.
const tokenBytes = 32

// Manager enforces the session lifecycle over a shared Store.
type Manager struct {
	store    Store
	idle     time.Duration // inactivity timeout
	lifetime time.Duration // absolute maximum lifetime
	now      func() time.Time
}

// NewManager wires a manager with the configured inactivity timeout and
// absolute lifetime.
func NewManager(store Store, idle, lifetime time.Duration) *Manager {
	return &Manager{store: store, idle: idle, lifetime: lifetime, now: time.Now}
}

// Create issues a fresh session for a subject that just proved its
// identity. Any prior session for the same subject is revoked in the
// same step — privilege change always rotates both the session ID and
// the CSRF token, and the superseded ID can never be presented again.
func (m *Manager) Create(ctx context.Context, subject model.Identity) (*Session, error) {
	id, err := utils.NewOpaqueToken(tokenBytes)
	if err != nil {
		return nil, err
	}
	csrf, err := utils.NewOpaqueToken(tokenBytes)
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()
	s := &Session{
		ID:          id,
		SubjectID:   subject.ID,
		SubjectName: subject.Name,
		VIP:         subject.VIP,
		CSRFToken:   csrf,
		CreatedAt:   now,
		LastSeenAt:  now,
		State:       StateAuthenticated,
	}
	if err := m.store.Save(ctx, s, m.lifetime); err != nil {
		return nil, err
	}
	prev, err := m.store.SwapSubjectSession(ctx, subject.ID, id, m.lifetime)
	if err != nil {
		log.Printf("session: subject swap failed for %d: %v", subject.ID, err)
	} else if prev != "" && prev != id {
		// Rotation-superseded: the old session is terminally revoked.
		if err := m.revokeID(ctx, prev); err != nil {
			log.Printf("session: revoking superseded session failed: %v", err)
		}
	}
	return s, nil
}

// Validate resolves a presented session identifier. Expiry is lazy:
// a session past its inactivity timeout or absolute lifetime is revoked
// here, as a side effect, and reported as expired. Any store ambiguity
// denies — an outage must never authenticate anyone.
func (m *Manager) Validate(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, apperr.ErrUnauthenticated
	}
	tomb, err := m.store.Tombstoned(ctx, id)
	if err != nil {
		log.Printf("session: tombstone lookup failed: %v; denying", err)
		return nil, apperr.ErrUnauthenticated
	}
	if tomb {
		return nil, apperr.ErrSessionExpired
	}
	s, err := m.store.Get(ctx, id)
	if err != nil {
		if err != ErrNoSession {
			log.Printf("session: lookup failed: %v; denying", err)
		}
		return nil, apperr.ErrUnauthenticated
	}
	now := m.now().UTC()
	if now.Sub(s.CreatedAt) > m.lifetime || now.Sub(s.LastSeenAt) > m.idle {
		if err := m.Revoke(ctx, s); err != nil {
			log.Printf("session: lazy revoke failed: %v", err)
		}
		return nil, apperr.ErrSessionExpired
	}
	// Requests within one session may arrive out of order; the store
	// only ever moves last_seen forward.
	if err := m.store.Touch(ctx, id, now); err != nil {
		log.Printf("session: touch failed: %v", err)
	}
	s.LastSeenAt = now
	return s, nil
}

// ValidateCSRF validates the session and then requires the presented
// anti-forgery token to match the session's current one. The comparison
// is constant time.
func (m *Manager) ValidateCSRF(ctx context.Context, id, token string) (*Session, error) {
	s, err := m.Validate(ctx, id)
	if err != nil {
		return nil, err
	}
	if token == "" || !utils.ConstantTimeEqual(s.CSRFToken, token) {
		return nil, apperr.ErrCsrfMismatch
	}
	return s, nil
}

// Revoke terminates a session immediately. The CSRF token dies with the
// session record, and the identifier is tombstoned so it can never
// transition back to AUTHENTICATED.
func (m *Manager) Revoke(ctx context.Context, s *Session) error {
	if err := m.revokeID(ctx, s.ID); err != nil {
		return err
	}
	if err := m.store.ClearSubjectSession(ctx, s.SubjectID, s.ID); err != nil {
		log.Printf("session: subject clear failed for %d: %v", s.SubjectID, err)
	}
	s.State = StateRevoked
	return nil
}

func (m *Manager) revokeID(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	// Tombstone for the full lifetime horizon: a revoked ID stays dead
	// at least as long as it could otherwise have lived.
	return m.store.Tombstone(ctx, id, m.lifetime)
}
