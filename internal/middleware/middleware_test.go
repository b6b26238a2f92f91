package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/asset-checkout-kiosk/internal/config"
	"github.com/iliyamo/asset-checkout-kiosk/internal/model"
	"github.com/iliyamo/asset-checkout-kiosk/internal/ratelimit"
	"github.com/iliyamo/asset-checkout-kiosk/internal/session"
)

// mapSessionStore is a minimal in-memory session.Store.
type mapSessionStore struct {
	sessions map[string]session.Session
	tombs    map[string]bool
	subjects map[uint64]string
}

func newMapSessionStore() *mapSessionStore {
	return &mapSessionStore{
		sessions: make(map[string]session.Session),
		tombs:    make(map[string]bool),
		subjects: make(map[uint64]string),
	}
}

func (s *mapSessionStore) Save(_ context.Context, sess *session.Session, _ time.Duration) error {
	s.sessions[sess.ID] = *sess
	return nil
}

func (s *mapSessionStore) Get(_ context.Context, id string) (*session.Session, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, session.ErrNoSession
	}
	cp := sess
	return &cp, nil
}

func (s *mapSessionStore) Delete(_ context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

func (s *mapSessionStore) Tombstone(_ context.Context, id string, _ time.Duration) error {
	s.tombs[id] = true
	return nil
}

func (s *mapSessionStore) Tombstoned(_ context.Context, id string) (bool, error) {
	return s.tombs[id], nil
}

func (s *mapSessionStore) SwapSubjectSession(_ context.Context, subjectID uint64, id string, _ time.Duration) (string, error) {
	prev := s.subjects[subjectID]
	s.subjects[subjectID] = id
	return prev, nil
}

func (s *mapSessionStore) ClearSubjectSession(_ context.Context, subjectID uint64, id string) error {
	if s.subjects[subjectID] == id {
		delete(s.subjects, subjectID)
	}
	return nil
}

func (s *mapSessionStore) Touch(_ context.Context, id string, ts time.Time) error {
	if sess, ok := s.sessions[id]; ok && ts.After(sess.LastSeenAt) {
		sess.LastSeenAt = ts
		s.sessions[id] = sess
	}
	return nil
}

// countingStore backs the limiter middleware tests.
type countingStore struct {
	counts map[string]int64
}

func (s *countingStore) IncrWindow(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.counts[key]++
	return s.counts[key], window, nil
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func newSessionFixture(t *testing.T) (*session.Manager, *session.Session) {
	t.Helper()
	m := session.NewManager(newMapSessionStore(), 30*time.Minute, 8*time.Hour)
	s, err := m.Create(context.Background(), model.Identity{ID: 42, Name: "Alice"})
	if err != nil {
		t.Fatalf("creating session: %v", err)
	}
	return m, s
}

func TestSessionAuth(t *testing.T) {
	m, s := newSessionFixture(t)
	e := echo.New()
	h := SessionAuth(m)(func(c echo.Context) error {
		got := SessionFrom(c)
		if got == nil || got.SubjectID != 42 {
			t.Errorf("session in context = %+v", got)
		}
		return okHandler(c)
	})

	// No cookie: rejected before the handler runs.
	req := httptest.NewRequest(http.MethodGet, "/v1/session", nil)
	rec := httptest.NewRecorder()
	if err := h(e.NewContext(req, rec)); err != nil {
		t.Fatalf("middleware: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no cookie: status = %d, expected 401", rec.Code)
	}

	// Valid cookie: handler sees the session.
	req = httptest.NewRequest(http.MethodGet, "/v1/session", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: s.ID})
	rec = httptest.NewRecorder()
	if err := h(e.NewContext(req, rec)); err != nil {
		t.Fatalf("middleware: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("valid cookie: status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestCSRF(t *testing.T) {
	m, s := newSessionFixture(t)
	e := echo.New()
	h := CSRF(m)(okHandler)

	newReq := func(method, token string) echo.Context {
		req := httptest.NewRequest(method, "/v1/assets/checkout", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: s.ID})
		if token != "" {
			req.Header.Set(CSRFHeader, token)
		}
		return e.NewContext(req, httptest.NewRecorder())
	}

	// GET passes without a token.
	c := newReq(http.MethodGet, "")
	if err := h(c); err != nil {
		t.Fatalf("GET: %v", err)
	}
	if c.Response().Status != http.StatusOK {
		t.Errorf("GET without token: status = %d", c.Response().Status)
	}

	// POST without the token is forbidden.
	c = newReq(http.MethodPost, "")
	if err := h(c); err != nil {
		t.Fatalf("POST: %v", err)
	}
	if c.Response().Status != http.StatusForbidden {
		t.Errorf("POST without token: status = %d, expected 403", c.Response().Status)
	}

	// POST with the bound token passes.
	c = newReq(http.MethodPost, s.CSRFToken)
	if err := h(c); err != nil {
		t.Fatalf("POST with token: %v", err)
	}
	if c.Response().Status != http.StatusOK {
		t.Errorf("POST with token: status = %d", c.Response().Status)
	}
}

func TestActionLimit(t *testing.T) {
	limiter := ratelimit.New(
		&countingStore{counts: make(map[string]int64)},
		config.RateLimitConfig{
			Prefix:  "rl",
			Default: config.ActionLimit{Limit: 2, Window: time.Minute},
		},
		nil,
	)
	e := echo.New()
	h := ActionLimit(limiter, "scan")(okHandler)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/scan", nil)
		rec := httptest.NewRecorder()
		if err := h(e.NewContext(req, rec)); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i+1, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/scan", nil)
	rec := httptest.NewRecorder()
	if err := h(e.NewContext(req, rec)); err != nil {
		t.Fatalf("limited request: %v", err)
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, expected 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing on a denial")
	}
}
