// Package audit provides the append-only trail of every
// security-relevant and state-changing event the engine performs.
// Events are immutable once written; nothing in this package can update
// or delete a row, and recording never fails the operation that
// produced the event.
package audit

import (
	"time"

	"github.com/iliyamo/asset-checkout-kiosk/internal/utils"
)

// Result classifies an event's outcome. ERROR is reserved for
// infrastructure ambiguity (store outage, remote failure) and is
// distinguishable from an ordinary DENIED decision.
type Result string

const (
	ResultSuccess Result = "SUCCESS"
	ResultDenied  Result = "DENIED"
	ResultError   Result = "ERROR"
)

// Event is one audit record. ActorID is zero for anonymous events
// (failed sign-ins, pre-auth denials). Detail carries a stable,
// non-sensitive reason code — never raw secrets, tokens or remote
// error bodies. Client IPs appear only as hashes.
type Event struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	ActorID      uint64    `json:"actor_id,omitempty"`
	Action       string    `json:"action"`
	Target       string    `json:"target,omitempty"`
	Result       Result    `json:"result"`
	Detail       string    `json:"detail,omitempty"`
	ClientIPHash string    `json:"client_ip_hash,omitempty"`
}

// HashIP reduces a client address to the hashed form stored in the
// trail. Empty input stays empty so optional fields stay optional.
func HashIP(ip string) string {
	if ip == "" {
		return ""
	}
	return utils.HashSHA256(ip)
}
