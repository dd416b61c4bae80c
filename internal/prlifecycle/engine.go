package prlifecycle

import (
	"context"
	"fmt"

	"github.com/relaytrain/pulse/internal/advisor"
	"github.com/relaytrain/pulse/internal/agentspec"
	"github.com/relaytrain/pulse/internal/config"
	"github.com/relaytrain/pulse/internal/ghclient"
	"github.com/relaytrain/pulse/internal/store"
	"github.com/relaytrain/pulse/internal/supervisor"
)

// prLifecycleStatuses is the set of task states this engine drives
// (§4.8): everything from an opened PR through deploy verification.
var prLifecycleStatuses = []store.TaskStatus{
	store.StatusComplete,
	store.StatusPRReview,
	store.StatusReviewTriage,
	store.StatusReviewWaiting,
	store.StatusMerging,
	store.StatusMerged,
	store.StatusDeploying,
	store.StatusDeployed,
	store.StatusVerifying,
}

// Engine drives tasks through gather/decide/execute (§4.8). Run resets
// its merged-parent set and action counter at the start of every pass,
// so neither carries over from one pulse to the next.
type Engine struct {
	cfg        *config.Config
	store      *store.Store
	gh         *ghclient.Client
	advisor    advisor.Advisor
	supervisor *supervisor.Supervisor
	template   *agentspec.Template

	// mergedParents tracks which parent task IDs have already had a
	// sibling merged this pulse (serial-merge guarantee, §4.8 step 4).
	mergedParents map[string]bool
	actionsTaken  int
}

// New builds an Engine. adv may be nil, in which case a Deterministic
// advisor is used (matching the evaluator's CI/test fallback).
func New(cfg *config.Config, s *store.Store, gh *ghclient.Client, adv advisor.Advisor, sv *supervisor.Supervisor, tmpl *agentspec.Template) *Engine {
	if adv == nil {
		adv = advisor.Deterministic{}
	}
	if tmpl == nil {
		tmpl = agentspec.Default()
	}
	return &Engine{
		cfg:           cfg,
		store:         s,
		gh:            gh,
		advisor:       adv,
		supervisor:    sv,
		template:      tmpl,
		mergedParents: make(map[string]bool),
	}
}

// Run performs one bounded, idempotent pass over every task currently in
// a PR-lifecycle state, stopping early once MaxActionsPerPulse actions
// have been taken (remaining tasks are left for the next pulse).
func (e *Engine) Run(ctx context.Context) error {
	e.mergedParents = make(map[string]bool)
	e.actionsTaken = 0

	tasks, err := e.store.ListTasksByStatus(ctx, prLifecycleStatuses...)
	if err != nil {
		return fmt.Errorf("prlifecycle: listing tasks: %w", err)
	}

	limit := e.cfg.PRLifecycle.MaxActionsPerPulse
	for _, task := range tasks {
		if limit > 0 && e.actionsTaken >= limit {
			break
		}
		if err := e.RunOne(ctx, task); err != nil {
			// One task's failure never blocks the rest of the pulse.
			continue
		}
	}
	return nil
}

// RunOne gathers a task's snapshot, decides an action, and executes it.
func (e *Engine) RunOne(ctx context.Context, task *store.Task) error {
	snap, err := e.Gather(ctx, task)
	if err != nil {
		return err
	}

	decision, err := e.Decide(ctx, snap)
	if err != nil {
		return err
	}

	if err := e.writeDecisionLog(task, decision, snap); err != nil {
		// A logging failure must never block the actual lifecycle action.
		_ = err
	}

	if decision.Action == ActionWait {
		return nil
	}

	e.actionsTaken++
	return e.Execute(ctx, task, snap, decision)
}
