package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

// Sink is one destination for audit events. Sinks must tolerate
// concurrent writers and may deliver at-least-once; a duplicate row is
// acceptable, a lost one on a live path is not.
type Sink interface {
	Write(ctx context.Context, ev Event) error
}

// Recorder fans an event out to every configured sink. Record never
// returns an error: a failing sink degrades to a best-effort diagnostic
// log line so that the primary transaction is never blocked by its own
// paper trail.
type Recorder struct {
	sinks []Sink
}

func NewRecorder(sinks ...Sink) *Recorder {
	return &Recorder{sinks: sinks}
}

// Record stamps the event with an ID and timestamp when missing and
// writes it to all sinks. The write uses a context detached from the
// request's cancellation: a client hanging up must not erase the record
// of what was done on its behalf.
func (r *Recorder) Record(ctx context.Context, ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	for _, s := range r.sinks {
		if err := s.Write(ctx, ev); err != nil {
			log.Printf("audit: sink write degraded for event %s (%s): %v", ev.ID, ev.Action, err)
		}
	}
}
