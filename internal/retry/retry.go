// Package retry implements the RetryController (C7): given an
// Evaluator verdict and the current task row, decides the next action —
// complete, retry, block, fail, or escalate to a higher model tier.
package retry

import (
	"context"
	"fmt"
	"strings"

	"github.com/relaytrain/pulse/internal/config"
	"github.com/relaytrain/pulse/internal/evaluator"
	"github.com/relaytrain/pulse/internal/statemachine"
	"github.com/relaytrain/pulse/internal/store"
)

// FailureMode is the closed classification every recorded failure is
// tagged with (§4.7), feeding downstream pattern tracking.
type FailureMode string

const (
	ModeTransient   FailureMode = "TRANSIENT"
	ModeResource    FailureMode = "RESOURCE"
	ModeEnvironment FailureMode = "ENVIRONMENT"
	ModeLogic       FailureMode = "LOGIC"
	ModeBlocked     FailureMode = "BLOCKED"
	ModeAmbiguous   FailureMode = "AMBIGUOUS"
)

// ClassifyFailureMode maps a verdict's reason string to a failure mode.
// ENVIRONMENT failures do not consume the task's retry counter (§4.7):
// the pulse defers re-queue until the environment is fixed.
func ClassifyFailureMode(reason string) FailureMode {
	switch {
	case strings.HasPrefix(reason, "rate_limited"), strings.HasPrefix(reason, "timeout"),
		strings.HasPrefix(reason, "backend_infrastructure_error"), strings.HasPrefix(reason, "backend_quota_error"),
		strings.HasPrefix(reason, "interrupted_sigint"), strings.HasPrefix(reason, "terminated_sigterm"):
		return ModeTransient
	case strings.HasPrefix(reason, "out_of_memory"), strings.HasPrefix(reason, "killed_sigkill"):
		return ModeResource
	case strings.HasPrefix(reason, "worker_never_started"), strings.HasPrefix(reason, "no_log_path_in_db"),
		strings.HasPrefix(reason, "log_file_missing"), strings.HasPrefix(reason, "log_file_empty"),
		strings.HasPrefix(reason, "log_file_unreadable"):
		return ModeEnvironment
	case strings.HasPrefix(reason, "auth_error"), strings.HasPrefix(reason, "merge_conflict"),
		strings.HasPrefix(reason, "billing_credits_exhausted"):
		return ModeBlocked
	case strings.HasPrefix(reason, "ambiguous"):
		return ModeAmbiguous
	default:
		return ModeLogic
	}
}

// ConsumesRetryBudget reports whether a verdict with this reason should
// increment the task's retry counter. ENVIRONMENT failures do not.
func ConsumesRetryBudget(mode FailureMode) bool {
	return mode != ModeEnvironment
}

// QualityGate runs a post-hoc check on a completed task's output, used to
// decide whether to escalate to a higher model tier before accepting the
// completion (§4.7).
type QualityGate interface {
	Check(ctx context.Context, task *store.Task) (bool, string, error)
}

// Controller is the RetryController: the sole decision point for what
// happens to a task after the Evaluator produces a verdict.
type Controller struct {
	cfg   *config.Config
	store *store.Store
	gate  QualityGate
}

// New builds a Controller. gate may be nil to skip quality-gate escalation.
func New(cfg *config.Config, s *store.Store, gate QualityGate) *Controller {
	return &Controller{cfg: cfg, store: s, gate: gate}
}

// Outcome records what the Controller decided, for logging/observability.
type Outcome struct {
	Verdict     evaluator.Verdict
	FailureMode FailureMode
	Escalated   bool
	NewTier     config.AgentTier
}

// Decide applies a verdict to a task: transitions state, updates retry
// and escalation counters, records a proof log, and runs quality-gate
// escalation on completion.
func (c *Controller) Decide(ctx context.Context, task *store.Task, batch *store.Batch, v evaluator.Verdict) (Outcome, error) {
	switch v.Kind {
	case evaluator.Complete:
		return c.decideComplete(ctx, task, batch, v)
	case evaluator.Retry:
		return c.decideRetry(ctx, task, v)
	case evaluator.Blocked:
		return c.decideBlocked(ctx, task, v)
	case evaluator.Failed:
		return c.decideFailed(ctx, task, v)
	default:
		return Outcome{}, fmt.Errorf("retry: unknown verdict kind %q", v.Kind)
	}
}

func (c *Controller) decideComplete(ctx context.Context, task *store.Task, batch *store.Batch, v evaluator.Verdict) (Outcome, error) {
	skipGate := batch != nil && batch.SkipQualityGate
	if c.gate != nil && !skipGate {
		if escalated, outcome, err := c.tryEscalate(ctx, task, v); err != nil || escalated {
			return outcome, err
		}
	}

	fields := statemachine.Fields{Reason: v.String()}
	if v.PRURL != "" {
		fields.PRURL = &v.PRURL
	}
	if err := statemachine.Transition(ctx, c.store, task.ID, store.StatusComplete, fields); err != nil {
		return Outcome{}, err
	}

	if task.Retries == 0 {
		_ = c.store.AppendProofLog(ctx, &store.ProofLogEntry{
			TaskID: task.ID, Event: "success_pattern", Stage: "complete",
			Decision: "first_try_success", PRURL: v.PRURL,
		})
	}
	_ = c.store.AppendProofLog(ctx, &store.ProofLogEntry{
		TaskID: task.ID, Event: "verdict", Stage: "evaluate",
		Decision: v.String(), PRURL: v.PRURL,
	})

	return Outcome{Verdict: v}, nil
}

// tryEscalate runs the quality gate and, if it fails and the tier has
// room to escalate, re-queues the task at the next tier instead of ever
// persisting the rejected completion. Returns escalated=true only when
// it has fully handled the transition itself.
func (c *Controller) tryEscalate(ctx context.Context, task *store.Task, v evaluator.Verdict) (bool, Outcome, error) {
	pass, reason, err := c.gate.Check(ctx, task)
	if err != nil || pass {
		return false, Outcome{}, nil
	}

	currentTier := config.AgentTier(task.Model)
	nextTier, canEscalate := currentTier.Escalate()
	if !canEscalate || task.EscalationDepth >= task.MaxEscalation {
		return false, Outcome{}, nil // at the ceiling: accept the result as-is
	}

	if err := c.store.UpdateTaskFields(ctx, task.ID, map[string]interface{}{
		"escalation_depth": task.EscalationDepth + 1,
		"model":            string(nextTier),
	}); err != nil {
		return false, Outcome{}, err
	}
	if err := statemachine.Transition(ctx, c.store, task.ID, store.StatusQueued, statemachine.Fields{
		Reason: "quality_gate_escalation:" + reason,
	}); err != nil {
		return false, Outcome{}, err
	}

	return true, Outcome{Verdict: v, Escalated: true, NewTier: nextTier}, nil
}

func (c *Controller) decideRetry(ctx context.Context, task *store.Task, v evaluator.Verdict) (Outcome, error) {
	mode := ClassifyFailureMode(v.Reason)
	_ = c.store.AppendProofLog(ctx, &store.ProofLogEntry{
		TaskID: task.ID, Event: "verdict", Stage: "evaluate",
		Decision: v.String(), Metadata: `{"failure_mode":"` + string(mode) + `"}`,
	})

	if !ConsumesRetryBudget(mode) {
		// Environment failures defer without consuming the retry budget;
		// the pulse leaves the task in evaluating for a later pulse to
		// reassess once the environment issue is addressed.
		return Outcome{Verdict: v, FailureMode: mode}, nil
	}

	if task.Retries >= task.MaxRetries {
		if err := statemachine.Transition(ctx, c.store, task.ID, store.StatusFailed, statemachine.Fields{
			Reason: "retries_exhausted:" + v.Reason,
		}); err != nil {
			return Outcome{}, err
		}
		return Outcome{Verdict: v, FailureMode: mode}, nil
	}

	errStr := v.Reason
	if err := statemachine.Transition(ctx, c.store, task.ID, store.StatusRetrying, statemachine.Fields{
		Reason: v.String(), Error: &errStr,
	}); err != nil {
		return Outcome{}, err
	}
	if err := c.store.UpdateTaskFields(ctx, task.ID, map[string]interface{}{"retries": task.Retries + 1}); err != nil {
		return Outcome{}, err
	}
	if err := statemachine.Transition(ctx, c.store, task.ID, store.StatusQueued, statemachine.Fields{
		Reason: "requeued_after_retry",
	}); err != nil {
		return Outcome{}, err
	}

	return Outcome{Verdict: v, FailureMode: mode}, nil
}

func (c *Controller) decideBlocked(ctx context.Context, task *store.Task, v evaluator.Verdict) (Outcome, error) {
	mode := ClassifyFailureMode(v.Reason)
	errStr := v.Reason
	if err := statemachine.Transition(ctx, c.store, task.ID, store.StatusBlocked, statemachine.Fields{
		Reason: v.String(), Error: &errStr,
	}); err != nil {
		return Outcome{}, err
	}
	_ = c.store.AppendProofLog(ctx, &store.ProofLogEntry{
		TaskID: task.ID, Event: "verdict", Stage: "evaluate",
		Decision: v.String(), Metadata: `{"failure_mode":"` + string(mode) + `"}`,
	})
	return Outcome{Verdict: v, FailureMode: mode}, nil
}

func (c *Controller) decideFailed(ctx context.Context, task *store.Task, v evaluator.Verdict) (Outcome, error) {
	mode := ClassifyFailureMode(v.Reason)
	errStr := v.Reason
	if err := statemachine.Transition(ctx, c.store, task.ID, store.StatusFailed, statemachine.Fields{
		Reason: v.String(), Error: &errStr,
	}); err != nil {
		return Outcome{}, err
	}
	_ = c.store.AppendProofLog(ctx, &store.ProofLogEntry{
		TaskID: task.ID, Event: "verdict", Stage: "evaluate",
		Decision: v.String(), Metadata: `{"failure_mode":"` + string(mode) + `"}`,
	})
	return Outcome{Verdict: v, FailureMode: mode}, nil
}
