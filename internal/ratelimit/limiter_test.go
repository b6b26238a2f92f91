package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/asset-checkout-kiosk/internal/audit"
	"github.com/iliyamo/asset-checkout-kiosk/internal/config"
)

// fakeStore counts increments in memory. err, when set, simulates a
// shared-store outage on every call.
type fakeStore struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{counts: make(map[string]int64)}
}

func (s *fakeStore) IncrWindow(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, 0, s.err
	}
	s.counts[key]++
	return s.counts[key], window, nil
}

// fakeSink captures recorded audit events.
type fakeSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *fakeSink) Record(_ context.Context, ev audit.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *fakeSink) all() []audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.Event(nil), s.events...)
}

func testConfig(limit int, window time.Duration) config.RateLimitConfig {
	return config.RateLimitConfig{
		Prefix:  "rl",
		Default: config.ActionLimit{Limit: limit, Window: window},
		Actions: map[string]config.ActionLimit{
			"checkout": {Limit: limit, Window: window},
		},
	}
}

func TestAdmit_AllowsUpToLimitThenDenies(t *testing.T) {
	store := newFakeStore()
	sink := &fakeSink{}
	l := New(store, testConfig(3, time.Minute), sink)

	for i := 0; i < 3; i++ {
		d := l.Admit(context.Background(), "42", "checkout")
		if !d.Allowed {
			t.Fatalf("request %d: expected allow", i+1)
		}
		if want := int64(2 - i); d.Remaining != want {
			t.Errorf("request %d: remaining = %d, expected %d", i+1, d.Remaining, want)
		}
	}

	d := l.Admit(context.Background(), "42", "checkout")
	if d.Allowed {
		t.Fatal("request over the limit: expected deny")
	}
	if d.RetryAfter <= 0 {
		t.Errorf("retry-after = %s, expected a positive duration", d.RetryAfter)
	}

	events := sink.all()
	if len(events) != 1 {
		t.Fatalf("expected 1 audit event, got %d", len(events))
	}
	if events[0].Result != audit.ResultDenied {
		t.Errorf("result = %s, expected %s", events[0].Result, audit.ResultDenied)
	}
	if events[0].Action != "ratelimit.checkout" {
		t.Errorf("action = %q, expected ratelimit.checkout", events[0].Action)
	}
}

func TestAdmit_IdentitiesAndActionsAreIndependent(t *testing.T) {
	store := newFakeStore()
	l := New(store, testConfig(1, time.Minute), &fakeSink{})

	if d := l.Admit(context.Background(), "42", "checkout"); !d.Allowed {
		t.Fatal("first identity, first request: expected allow")
	}
	if d := l.Admit(context.Background(), "42", "checkout"); d.Allowed {
		t.Fatal("first identity, second request: expected deny")
	}
	// A different identity on the same action still has its own window.
	if d := l.Admit(context.Background(), "7", "checkout"); !d.Allowed {
		t.Fatal("second identity: expected allow")
	}
	// Same identity, different action: independent window.
	if d := l.Admit(context.Background(), "42", "scan"); !d.Allowed {
		t.Fatal("different action: expected allow")
	}
}

func TestAdmit_StoreErrorFailsSecure(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("connection refused")
	sink := &fakeSink{}
	l := New(store, testConfig(100, time.Minute), sink)

	// Every attempt denies while the store is down, no matter how far
	// under the limit the identity is.
	for i := 0; i < 3; i++ {
		d := l.Admit(context.Background(), "42", "checkout")
		if d.Allowed {
			t.Fatalf("attempt %d: store outage must deny", i+1)
		}
		if d.RetryAfter <= 0 {
			t.Errorf("attempt %d: retry-after = %s, expected positive", i+1, d.RetryAfter)
		}
	}

	events := sink.all()
	if len(events) != 3 {
		t.Fatalf("expected 3 audit events, got %d", len(events))
	}
	for i, ev := range events {
		if ev.Result != audit.ResultError {
			t.Errorf("event %d: result = %s, expected %s", i, ev.Result, audit.ResultError)
		}
	}
}
