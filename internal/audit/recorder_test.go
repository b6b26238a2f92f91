package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *memSink) Write(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *memSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func TestRecord_StampsIDAndTimestamp(t *testing.T) {
	sink := &memSink{}
	r := NewRecorder(sink)

	r.Record(context.Background(), Event{Action: "asset.checkout", Result: ResultSuccess})

	events := sink.all()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].ID == "" {
		t.Error("event ID was not stamped")
	}
	if events[0].Timestamp.IsZero() {
		t.Error("timestamp was not stamped")
	}
}

func TestRecord_PreservesCallerStamps(t *testing.T) {
	sink := &memSink{}
	r := NewRecorder(sink)
	ts := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	r.Record(context.Background(), Event{ID: "fixed-id", Timestamp: ts, Action: "auth.signin", Result: ResultDenied})

	ev := sink.all()[0]
	if ev.ID != "fixed-id" || !ev.Timestamp.Equal(ts) {
		t.Errorf("event = %+v, caller stamps must survive", ev)
	}
}

func TestRecord_FailingSinkNeverPropagates(t *testing.T) {
	bad := &memSink{err: errors.New("disk full")}
	good := &memSink{}
	r := NewRecorder(bad, good)

	// Record has no error return by design; the assertion is that the
	// healthy sink still gets the event when its sibling fails.
	r.Record(context.Background(), Event{Action: "asset.checkin", Result: ResultSuccess})

	if got := len(good.all()); got != 1 {
		t.Fatalf("healthy sink received %d events, expected 1", got)
	}
}

func TestRecord_SurvivesCanceledRequestContext(t *testing.T) {
	sink := &memSink{}
	r := NewRecorder(sink)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Record(ctx, Event{Action: "asset.transfer", Result: ResultSuccess})

	if got := len(sink.all()); got != 1 {
		t.Fatalf("events = %d, a hung-up client must not erase the trail", got)
	}
}

func TestHashIP(t *testing.T) {
	if HashIP("") != "" {
		t.Error("empty input must stay empty")
	}
	h := HashIP("203.0.113.9")
	if h == "203.0.113.9" || len(h) != 64 {
		t.Errorf("hash = %q, expected a 64-char digest distinct from the input", h)
	}
	if h != HashIP("203.0.113.9") {
		t.Error("hashing must be deterministic")
	}
}
