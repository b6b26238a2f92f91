// Package ratelimit provides admission control keyed by
// (identity, action) against a store shared by every worker process.
// The check-and-increment is a single atomic operation so two
// concurrent requests can never both read a stale count and slip past
// the limit together.
//
// The limiter is fail-secure: when the shared store is unreachable or
// misbehaves, Admit answers Deny, never Allow. Ambiguity is treated as
// possible abuse, and the denial is audited at ERROR severity so
// operators can tell an outage from ordinary throttling.
package ratelimit

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/iliyamo/asset-checkout-kiosk/internal/audit"
	"github.com/iliyamo/asset-checkout-kiosk/internal/config"
)

// Decision is the outcome of one admission check. RetryAfter is only
// meaningful when Allowed is false.
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Store is the shared counter backend. IncrWindow atomically
// increments the window counter for key, arming the window's expiry on
// the first increment, and returns the post-increment count together
// with the window's remaining lifetime.
type Store interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

// AuditSink receives the limiter's denial events. It matches
// audit.Recorder's Record method.
type AuditSink interface {
	Record(ctx context.Context, ev audit.Event)
}

// Limiter enforces per-(identity, action) fixed windows.
type Limiter struct {
	store Store
	cfg   config.RateLimitConfig
	sink  AuditSink
}

func New(store Store, cfg config.RateLimitConfig, sink AuditSink) *Limiter {
	return &Limiter{store: store, cfg: cfg, sink: sink}
}

// Admit decides whether one more action may proceed for identity. Every
// denial — throttle or store failure — produces exactly one audit
// event; admissions are audited by the operation they gate.
func (l *Limiter) Admit(ctx context.Context, identity, action string) Decision {
	al := l.cfg.Limit(action)
	key := fmt.Sprintf("%s:%s:%s", l.cfg.Prefix, action, identity)

	count, ttl, err := l.store.IncrWindow(ctx, key, al.Window)
	if err != nil {
		// Fail secure: an unreachable store denies, it never waves through.
		log.Printf("limiter: store error for key=%s: %v; denying", key, err)
		if l.sink != nil {
			l.sink.Record(ctx, audit.Event{
				Action: "ratelimit." + action,
				Target: identity,
				Result: audit.ResultError,
				Detail: "limit store unavailable, failing secure",
			})
		}
		return Decision{Allowed: false, RetryAfter: al.Window}
	}

	if count > int64(al.Limit) {
		if ttl <= 0 {
			ttl = al.Window
		}
		if l.sink != nil {
			l.sink.Record(ctx, audit.Event{
				Action: "ratelimit." + action,
				Target: identity,
				Result: audit.ResultDenied,
				Detail: "window limit exceeded",
			})
		}
		return Decision{Allowed: false, Remaining: 0, RetryAfter: ttl}
	}

	return Decision{Allowed: true, Remaining: int64(al.Limit) - count}
}
