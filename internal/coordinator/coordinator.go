// Package coordinator executes asset transactions against the remote
// inventory. Each execution takes a per-tag local mutex, validates the
// transition against a fresh read, re-reads immediately before the
// commit, and verifies the outcome with one more read afterward. The
// remote system stays the single source of truth; the local lock only
// serializes racing kiosk requests for the same tag within this
// process, it does not replace the remote's own rejection of a stale
// commit.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"sync"

	"github.com/iliyamo/asset-checkout-kiosk/internal/apperr"
	"github.com/iliyamo/asset-checkout-kiosk/internal/audit"
	"github.com/iliyamo/asset-checkout-kiosk/internal/model"
	"github.com/iliyamo/asset-checkout-kiosk/internal/ratelimit"
)

// stripeCount sizes the mutex table. Tags hash onto stripes, so two
// distinct tags may share a lock; that only costs a little extra
// serialization, never correctness.
const stripeCount = 64

// Inventory is the remote operations the coordinator needs.
type Inventory interface {
	GetAsset(ctx context.Context, tag string) (*model.AssetState, error)
	Checkout(ctx context.Context, assetID, userID uint64, note string) error
	Checkin(ctx context.Context, assetID uint64, note string) error
	Transfer(ctx context.Context, assetID, fromID, toID uint64, note string) error
}

// Admitter gates executions per (identity, action).
type Admitter interface {
	Admit(ctx context.Context, identity, action string) ratelimit.Decision
}

// AuditSink records the outcome of each execution.
type AuditSink interface {
	Record(ctx context.Context, ev audit.Event)
}

// Result is the outcome of a successful execution, carrying the
// verified post-commit asset state.
type Result struct {
	Asset    *model.AssetState `json:"asset"`
	Verified bool              `json:"verified"`
}

// Coordinator serializes and executes asset transactions.
type Coordinator struct {
	inv     Inventory
	limiter Admitter
	auditor AuditSink
	locks   [stripeCount]sync.Mutex
}

func New(inv Inventory, limiter Admitter, auditor AuditSink) *Coordinator {
	return &Coordinator{inv: inv, limiter: limiter, auditor: auditor}
}

// Execute runs one asset transaction end to end. Exactly one audit
// event is recorded per call regardless of outcome. Remote conflicts
// are terminal; only the inventory client's transport layer retries,
// and only for transient failures.
func (c *Coordinator) Execute(ctx context.Context, req model.OperationRequest) (*Result, error) {
	if err := rejectRequest(req); err != nil {
		c.record(ctx, req, nil, err)
		return nil, err
	}

	action := strings.ToLower(string(req.Operation))
	if d := c.limiter.Admit(ctx, strconv.FormatUint(req.ActorID, 10), action); !d.Allowed {
		// The limiter audits its own denials; recording here too would
		// double-count the execution.
		return nil, &apperr.RateLimited{RetryAfter: d.RetryAfter}
	}

	mu := &c.locks[stripeFor(req.AssetTag)]
	mu.Lock()
	defer mu.Unlock()

	res, err := c.execute(ctx, req)
	c.record(ctx, req, res, err)
	return res, err
}

// rejectRequest screens a request before it consumes a rate-limit slot
// or touches the remote. Rejections here are still executions and are
// audited as DENIED by the caller.
func rejectRequest(req model.OperationRequest) error {
	if req.ActorID == 0 {
		return apperr.ErrUnauthenticated
	}
	if req.AssetTag == "" {
		return fmt.Errorf("%w: missing asset tag", apperr.ErrValidation)
	}
	if req.Operation == model.OpTransfer && req.TargetID == 0 {
		return fmt.Errorf("%w: transfer requires a destination", apperr.ErrValidation)
	}
	return nil
}

func (c *Coordinator) execute(ctx context.Context, req model.OperationRequest) (*Result, error) {
	asset, err := c.inv.GetAsset(ctx, req.AssetTag)
	if err != nil {
		return nil, err
	}
	if err := c.precondition(req, asset); err != nil {
		return nil, err
	}

	// Re-read immediately before the commit. The first read may have
	// aged while we waited on the stripe lock.
	asset, err = c.inv.GetAsset(ctx, req.AssetTag)
	if err != nil {
		return nil, err
	}
	if err := c.precondition(req, asset); err != nil {
		return nil, err
	}

	if err := c.commit(ctx, req, asset); err != nil {
		// A composite commit can fail between legs, so re-read and
		// report the state the remote was actually left in. The read
		// is detached from the request context because the failure may
		// be the deadline itself.
		if after, rerr := c.inv.GetAsset(context.WithoutCancel(ctx), req.AssetTag); rerr == nil {
			return &Result{Asset: after, Verified: false}, err
		}
		return nil, err
	}

	// Post-commit verification read. A failure here does not undo the
	// committed transition; the result is just reported unverified.
	after, err := c.inv.GetAsset(ctx, req.AssetTag)
	if err != nil {
		return &Result{Asset: asset, Verified: false}, nil
	}
	return &Result{Asset: after, Verified: c.verified(req, after)}, nil
}

// precondition checks that the requested transition is legal from the
// observed state. Failures here never reach the remote system.
func (c *Coordinator) precondition(req model.OperationRequest, asset *model.AssetState) error {
	switch req.Operation {
	case model.OpCheckout:
		if asset.Status != model.AssetAvailable {
			return fmt.Errorf("%w: asset %s is %s", apperr.ErrInvalidTransition, asset.Tag, asset.Status)
		}
	case model.OpCheckin:
		if asset.Status != model.AssetCheckedOut {
			return fmt.Errorf("%w: asset %s is not checked out", apperr.ErrInvalidTransition, asset.Tag)
		}
		if !req.Override && asset.HolderID != req.ActorID {
			return fmt.Errorf("%w: asset %s is held by someone else", apperr.ErrForbidden, asset.Tag)
		}
	case model.OpTransfer:
		if asset.Status != model.AssetCheckedOut {
			return fmt.Errorf("%w: asset %s is not checked out", apperr.ErrInvalidTransition, asset.Tag)
		}
		if asset.HolderID != req.ActorID {
			return fmt.Errorf("%w: only the current holder may transfer", apperr.ErrForbidden)
		}
	default:
		return fmt.Errorf("%w: unknown operation %q", apperr.ErrValidation, req.Operation)
	}
	return nil
}

func (c *Coordinator) commit(ctx context.Context, req model.OperationRequest, asset *model.AssetState) error {
	switch req.Operation {
	case model.OpCheckout:
		return c.inv.Checkout(ctx, asset.ID, req.ActorID, req.Note)
	case model.OpCheckin:
		return c.inv.Checkin(ctx, asset.ID, req.Note)
	case model.OpTransfer:
		return c.inv.Transfer(ctx, asset.ID, asset.HolderID, req.TargetID, req.Note)
	}
	return fmt.Errorf("%w: unknown operation %q", apperr.ErrValidation, req.Operation)
}

// verified reports whether the post-commit read shows the state the
// operation should have produced.
func (c *Coordinator) verified(req model.OperationRequest, after *model.AssetState) bool {
	switch req.Operation {
	case model.OpCheckout:
		return after.Status == model.AssetCheckedOut && after.HolderID == req.ActorID
	case model.OpCheckin:
		return after.Status == model.AssetAvailable
	case model.OpTransfer:
		return after.Status == model.AssetCheckedOut && after.HolderID == req.TargetID
	}
	return false
}

// record emits the single audit event for this execution. The actor is
// always recorded; the target is the asset tag, never a session or
// credential.
func (c *Coordinator) record(ctx context.Context, req model.OperationRequest, res *Result, err error) {
	ev := audit.Event{
		ActorID: req.ActorID,
		Action:  auditAction(req),
		Target:  req.AssetTag,
	}
	switch {
	case err == nil:
		ev.Result = audit.ResultSuccess
		if res != nil && !res.Verified {
			ev.Detail = "post-commit verification inconclusive"
		}
	case errors.Is(err, apperr.ErrInvalidTransition),
		errors.Is(err, apperr.ErrForbidden),
		errors.Is(err, apperr.ErrRemoteConflict),
		errors.Is(err, apperr.ErrNotFound),
		errors.Is(err, apperr.ErrUnauthenticated),
		errors.Is(err, apperr.ErrValidation):
		ev.Result = audit.ResultDenied
		ev.Detail = err.Error()
	default:
		ev.Result = audit.ResultError
		ev.Detail = err.Error()
	}
	// A failed commit may still have moved remote state; when the
	// post-failure read produced a snapshot, record what it saw.
	if err != nil && res != nil && res.Asset != nil {
		ev.Detail += "; observed status " + string(res.Asset.Status)
	}
	c.auditor.Record(ctx, ev)
}

func auditAction(req model.OperationRequest) string {
	action := "asset." + strings.ToLower(string(req.Operation))
	if req.Override {
		action += ".override"
	}
	return action
}

func stripeFor(tag string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(tag))
	return h.Sum32() % stripeCount
}
