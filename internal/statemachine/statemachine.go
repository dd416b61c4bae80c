// Package statemachine holds the closed set of task states and the
// permitted transition matrix. Every status write in the system goes
// through Transition, which validates, applies, and logs atomically.
package statemachine

import (
	"context"
	"fmt"
	"time"

	"github.com/relaytrain/pulse/internal/store"
)

// transitions is the permitted (from, to) matrix from §4.3. A missing
// entry means the transition is illegal and Transition rejects it rather
// than silently coercing it.
var transitions = map[store.TaskStatus][]store.TaskStatus{
	store.StatusQueued:        {store.StatusDispatched, store.StatusCancelled},
	store.StatusDispatched:    {store.StatusRunning, store.StatusCancelled},
	store.StatusRunning:       {store.StatusEvaluating, store.StatusCancelled},
	store.StatusEvaluating: {
		store.StatusComplete, store.StatusRetrying, store.StatusBlocked,
		store.StatusFailed, store.StatusCancelled,
		// Queued: quality-gate escalation re-dispatches at a higher tier
		// without ever persisting the rejected completion (§4.7).
		store.StatusQueued,
	},
	store.StatusRetrying: {store.StatusQueued, store.StatusCancelled},
	store.StatusComplete: {
		store.StatusPRReview, store.StatusCancelled,
	},
	store.StatusPRReview: {store.StatusReviewTriage, store.StatusCancelled},
	store.StatusReviewTriage: {
		store.StatusMerging, store.StatusBlocked, store.StatusReviewWaiting, store.StatusCancelled,
	},
	store.StatusReviewWaiting: {store.StatusReviewTriage, store.StatusCancelled},
	store.StatusMerging:       {store.StatusMerged, store.StatusBlocked, store.StatusCancelled},
	store.StatusMerged:        {store.StatusDeploying, store.StatusCancelled},
	store.StatusDeploying:     {store.StatusDeployed, store.StatusBlocked, store.StatusCancelled},
	store.StatusDeployed:      {store.StatusVerifying, store.StatusCancelled},
	store.StatusVerifying:     {store.StatusVerified, store.StatusVerifyFailed, store.StatusCancelled},
	// Operator recovery: a human can requeue a stuck task.
	store.StatusFailed:  {store.StatusQueued},
	store.StatusBlocked: {store.StatusQueued, store.StatusCancelled},
}

// Allowed reports whether a transition from `from` to `to` is permitted.
func Allowed(from, to store.TaskStatus) bool {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Fields carries the auxiliary task-row updates that accompany a
// transition (§4.3's "{reason, pr_url, worktree, branch, log_file,
// session, error}"). Nil pointer fields are left unchanged.
type Fields struct {
	Reason   string
	PRURL    *string
	Worktree *string
	Branch   *string
	LogFile  *string
	Session  *string
	Error    *string
}

// Transition is the single write path for task status. It reads the
// current state, validates the transition, applies the status and any
// auxiliary field changes in one transaction, and appends a state_log
// row — all inside the same transaction so the two never diverge.
func Transition(ctx context.Context, s *store.Store, taskID string, to store.TaskStatus, f Fields) error {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	from := task.Status
	if !Allowed(from, to) {
		return fmt.Errorf("%w: %s -> %s for task %s", store.ErrIllegalTransition, from, to, taskID)
	}

	db := s.DB()
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("statemachine: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	now := time.Now().UTC()
	setClause := "status = ?, updated_at = ?"
	args := []interface{}{string(to), now}

	if f.PRURL != nil {
		setClause += ", pr_url = ?"
		args = append(args, *f.PRURL)
	}
	if f.Worktree != nil {
		setClause += ", worktree_path = ?"
		args = append(args, *f.Worktree)
	}
	if f.Branch != nil {
		setClause += ", branch = ?"
		args = append(args, *f.Branch)
	}
	if f.LogFile != nil {
		setClause += ", log_path = ?"
		args = append(args, *f.LogFile)
	}
	if f.Session != nil {
		setClause += ", session_handle = ?"
		args = append(args, *f.Session)
	}
	if f.Error != nil {
		setClause += ", error = ?"
		args = append(args, *f.Error)
	}
	if to == store.StatusRunning && task.StartedAt == nil {
		setClause += ", started_at = ?"
		args = append(args, now)
	}
	if to.Terminal() {
		setClause += ", completed_at = ?"
		args = append(args, now)
	}
	args = append(args, taskID)

	q := fmt.Sprintf("UPDATE tasks SET %s WHERE id = ?", setClause)
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("statemachine: apply transition: %w", err)
	}

	const logQ = `INSERT INTO state_log (task_id, from_state, to_state, reason, created_at)
		VALUES (?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, logQ, taskID, string(from), string(to), f.Reason, now); err != nil {
		return fmt.Errorf("statemachine: append state log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("statemachine: commit: %w", err)
	}
	return nil
}

// Describe renders a one-line human summary of a task's current state.
func Describe(t *store.Task) string {
	switch t.Status {
	case store.StatusQueued:
		return fmt.Sprintf("%s queued", t.ID)
	case store.StatusRunning:
		return fmt.Sprintf("%s running (session %s)", t.ID, t.SessionHandle)
	case store.StatusBlocked:
		return fmt.Sprintf("%s blocked: %s", t.ID, t.Error)
	case store.StatusFailed:
		return fmt.Sprintf("%s failed: %s", t.ID, t.Error)
	default:
		return fmt.Sprintf("%s %s", t.ID, t.Status)
	}
}
