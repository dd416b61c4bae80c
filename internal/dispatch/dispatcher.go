package dispatch

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/relaytrain/pulse/internal/agentspec"
	"github.com/relaytrain/pulse/internal/config"
	"github.com/relaytrain/pulse/internal/gitutil"
	"github.com/relaytrain/pulse/internal/repo"
	"github.com/relaytrain/pulse/internal/router"
	"github.com/relaytrain/pulse/internal/runtimestate"
	"github.com/relaytrain/pulse/internal/statemachine"
	"github.com/relaytrain/pulse/internal/store"
	"github.com/relaytrain/pulse/internal/supervisor"
)

// Dispatcher runs the preflight gate chain and, on success, spawns a
// worker for a queued task.
type Dispatcher struct {
	cfg        *config.Config
	store      *store.Store
	router     *router.Router
	supervisor *supervisor.Supervisor
	concurrency ConcurrencyPolicy
	claims     ClaimChecker
	ghAuthCheck func(ctx context.Context) error
	template   *agentspec.Template
}

// Option configures optional Dispatcher collaborators.
type Option func(*Dispatcher)

// WithClaimChecker injects the external task-file claim resolver.
func WithClaimChecker(c ClaimChecker) Option { return func(d *Dispatcher) { d.claims = c } }

// WithGitHubAuthCheck injects the GitHub-auth usability probe.
func WithGitHubAuthCheck(f func(ctx context.Context) error) Option {
	return func(d *Dispatcher) { d.ghAuthCheck = f }
}

// WithConcurrencyPolicy overrides the default LinearLoadPolicy.
func WithConcurrencyPolicy(p ConcurrencyPolicy) Option { return func(d *Dispatcher) { d.concurrency = p } }

// WithAgentTemplate overrides the built-in worker template.
func WithAgentTemplate(t *agentspec.Template) Option { return func(d *Dispatcher) { d.template = t } }

// New builds a Dispatcher.
func New(cfg *config.Config, s *store.Store, r *router.Router, sv *supervisor.Supervisor, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		cfg:         cfg,
		store:       s,
		router:      r,
		supervisor:  sv,
		concurrency: LinearLoadPolicy{},
		template:    agentspec.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs the full preflight chain (§4.5) for a queued task and,
// on success, spawns its worker.
func (d *Dispatcher) Dispatch(ctx context.Context, task *store.Task) (Outcome, error) {
	// Step 1: claim.
	claimOK, err := d.checkClaim(ctx, task.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("dispatch %s: claim check: %w", task.ID, err)
	}
	if !claimOK {
		return Outcome{Kind: OutcomeClaimConflict, Detail: "claimed by another orchestrator instance"}, nil
	}

	// Step 2: prior-completion guard.
	if task.WorktreePath != "" || task.Branch != "" {
		g := gitutil.New(task.Repository)
		done, err := g.LogContains(ctx, task.ID)
		if err == nil && done {
			if err := statemachine.Transition(ctx, d.store, task.ID, store.StatusCancelled,
				statemachine.Fields{Reason: "already completed in git history"}); err != nil {
				return Outcome{}, err
			}
			return Outcome{Kind: OutcomePriorCompletion, Detail: "prior merge found referencing task ID"}, nil
		}
	}

	// Step 3: verify-mode detection.
	verifyMode := shouldVerify(task)

	// Step 4: concurrency gate.
	batch, _ := d.store.BatchOf(ctx, task.ID)
	if blocked, err := d.concurrencyExceeded(ctx, task, batch); err != nil {
		return Outcome{}, err
	} else if blocked {
		return Outcome{Kind: OutcomeConcurrencyLimit, Detail: "effective concurrency reached"}, nil
	}

	// Step 5: retry-budget gate.
	if task.Retries >= task.MaxRetries {
		if err := statemachine.Transition(ctx, d.store, task.ID, store.StatusFailed,
			statemachine.Fields{Reason: "retries exhausted"}); err != nil {
			return Outcome{}, err
		}
		return Outcome{Kind: OutcomeRetriesExhausted}, nil
	}

	// Step 6: health gate.
	tier := d.router.ResolveTier(ctx, task, nil, nil)
	if tier == config.TierContest {
		return Outcome{Kind: OutcomeContestDeferred, Detail: "task delegated to contest subsystem"}, nil
	}
	switch d.router.HealthCheck(ctx, tier) {
	case router.StatusUnavailable:
		return Outcome{Kind: OutcomeProviderUnavailable, Detail: string(tier)}, nil
	case router.StatusRateLimited:
		return Outcome{Kind: OutcomeProviderRateLimited, Detail: string(tier)}, nil
	case router.StatusKeyInvalid:
		if err := statemachine.Transition(ctx, d.store, task.ID, store.StatusBlocked,
			statemachine.Fields{Reason: "provider key invalid or credits exhausted"}); err != nil {
			return Outcome{}, err
		}
		return Outcome{Kind: OutcomeProviderKeyBlocked, Detail: string(tier)}, nil
	}

	// Step 7: repo-shape preflight.
	g := gitutil.New(task.Repository)
	if _, err := repo.Preflight(ctx, g, d.ghAuthCheck); err != nil {
		return Outcome{Kind: OutcomeAuthUnusable, Detail: err.Error()}, nil
	}

	// Step 8: worktree acquisition.
	worktreeDir, branch, err := d.acquireWorktree(ctx, g, task)
	if err != nil {
		return Outcome{Kind: OutcomeWorktreeCreationFailed, Detail: err.Error()}, nil
	}

	// Step 9: log and transition to dispatched.
	logPath := filepath.Join(runtimestate.LogDir(), fmt.Sprintf("%s-%s.log", task.ID, uuid.NewString()[:8]))
	if err := statemachine.Transition(ctx, d.store, task.ID, store.StatusDispatched, statemachine.Fields{
		Reason:   "dispatched",
		Worktree: &worktreeDir,
		Branch:   &branch,
		LogFile:  &logPath,
	}); err != nil {
		return Outcome{}, err
	}
	if err := d.store.UpdateTaskFields(ctx, task.ID, map[string]interface{}{"model": string(tier)}); err != nil {
		return Outcome{}, err
	}

	// Step 10: spawn.
	configDir := filepath.Join(runtimestate.CacheDir(), "worker-config", task.ID)
	inv := agentspec.Build(d.template, agentspec.TaskContext{
		TaskID:      task.ID,
		Description: task.Description,
		Model:       string(tier),
		VerifyMode:  verifyMode,
		WorktreeDir: worktreeDir,
		ConfigDir:   configDir,
	})

	handle, err := d.supervisor.Spawn(ctx, supervisor.SpawnOptions{
		TaskID:  task.ID,
		Command: inv.Command,
		Dir:     inv.Dir,
		Env:     inv.Env,
		LogPath: logPath,
	})
	if err != nil {
		errStr := err.Error()
		_ = statemachine.Transition(ctx, d.store, task.ID, store.StatusFailed, statemachine.Fields{
			Reason: "spawn failed", Error: &errStr,
		})
		return Outcome{}, err
	}

	sessionStr := string(handle)
	if err := statemachine.Transition(ctx, d.store, task.ID, store.StatusRunning,
		statemachine.Fields{Reason: "worker spawned", Session: &sessionStr}); err != nil {
		return Outcome{}, err
	}

	return Outcome{Kind: OutcomeSpawned, Detail: string(handle)}, nil
}

// shouldVerify implements §4.5 step 3: choose verify mode when the task
// was previously dispatched and left evidence of prior work, unless the
// most recent error already indicates a verify worker concluded no
// prior work exists (prevents a verify-loop).
func shouldVerify(task *store.Task) bool {
	if task.Error == "retry:verify_not_started_needs_full" {
		return false
	}
	return task.Retries > 0 && (task.WorktreePath != "" || task.Branch != "")
}

func (d *Dispatcher) concurrencyExceeded(ctx context.Context, task *store.Task, batch *store.Batch) (bool, error) {
	base := d.cfg.Concurrency.BatchBaseDefault
	loadFactor := 1.0
	batchCeiling := 0
	running := 0
	var err error

	if batch != nil {
		base = batch.BaseConcurrency
		loadFactor = batch.LoadFactor
		batchCeiling = batch.HardCeiling
		running, err = d.store.RunningCountInBatch(ctx, batch.ID)
	} else {
		running, err = d.store.RunningCountGlobal(ctx)
	}
	if err != nil {
		return false, err
	}

	effective := d.concurrency.Effective(base, loadFactor, batchCeiling, d.cfg.Concurrency.GlobalMax)
	return running >= effective, nil
}
