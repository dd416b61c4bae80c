package dispatch

import (
	"context"
	"time"
)

// Claim describes an external task-file assignee annotation (§4.5 step 1).
// TaskFileSync owns the task-file surface; Dispatcher only consumes a
// resolved Claim so the two packages do not need to import each other.
type Claim struct {
	Holder  string
	AgeSince time.Time
	Exists  bool
}

// ClaimChecker resolves a task's external claim and reports whether the
// claim-holder still has an active worker process.
type ClaimChecker interface {
	ClaimFor(ctx context.Context, taskID string) (Claim, error)
	HolderHasActiveWorker(ctx context.Context, holder string) bool
}

// checkClaim implements §4.5 step 1: assert no live external claim by
// another orchestrator instance; auto-unclaim stale claims.
func (d *Dispatcher) checkClaim(ctx context.Context, taskID string) (ok bool, err error) {
	if d.claims == nil {
		return true, nil
	}
	claim, err := d.claims.ClaimFor(ctx, taskID)
	if err != nil {
		return false, err
	}
	if !claim.Exists {
		return true, nil
	}
	stale := time.Since(claim.AgeSince) > d.cfg.Retry.ClaimStaleAfter && !d.claims.HolderHasActiveWorker(ctx, claim.Holder)
	if stale {
		return true, nil // caller treats this as auto-unclaimed
	}
	return false, nil
}
