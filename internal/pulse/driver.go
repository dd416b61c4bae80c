// Package pulse implements PulseDriver (C10): a single bounded,
// idempotent pass composing every other component. Numbered phases run
// in sequence; the dispatch phase fans its per-task work out
// concurrently up to the global budget, and the other phases handle
// their tasks one at a time (§4.10).
package pulse

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/relaytrain/pulse/internal/config"
	"github.com/relaytrain/pulse/internal/dispatch"
	"github.com/relaytrain/pulse/internal/evaluator"
	"github.com/relaytrain/pulse/internal/ghclient"
	"github.com/relaytrain/pulse/internal/prlifecycle"
	"github.com/relaytrain/pulse/internal/retry"
	"github.com/relaytrain/pulse/internal/store"
	"github.com/relaytrain/pulse/internal/taskfile"
)

// Driver runs one pulse: claim-pickup/dispatch, evaluate-running,
// reconcile-db-vs-file, PR lifecycle, verification queue, retrospective.
type Driver struct {
	cfg *config.Config

	store      *store.Store
	dispatcher *dispatch.Dispatcher
	evaluator  *evaluator.Evaluator
	retry      *retry.Controller
	prEngine   *prlifecycle.Engine
	reconciler *taskfile.Reconciler
	queue      *taskfile.QueueFile
	gh         *ghclient.Client

	log *zap.Logger

	guard *singleInstanceGuard
}

// New builds a Driver. queue may be nil to skip the verification queue
// phase; gh may be nil to skip enqueueing checks for newly deployed
// tasks (checks already pending in the queue still run).
func New(
	cfg *config.Config,
	s *store.Store,
	d *dispatch.Dispatcher,
	ev *evaluator.Evaluator,
	rc *retry.Controller,
	pr *prlifecycle.Engine,
	reconciler *taskfile.Reconciler,
	queue *taskfile.QueueFile,
	gh *ghclient.Client,
	log *zap.Logger,
) *Driver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Driver{
		cfg: cfg, store: s, dispatcher: d, evaluator: ev, retry: rc,
		prEngine: pr, reconciler: reconciler, queue: queue, gh: gh,
		log:   log,
		guard: newSingleInstanceGuard(cfg.SupervisorDir),
	}
}

// Report summarizes one pulse's work for the caller (cmd/pulse, tests).
type Report struct {
	SkippedLocked bool

	Dispatched int
	Deferred   int
	Evaluated  int

	Orphans      []taskfile.OrphanTaskID
	QueuedChecks int
	ChecksRun    int

	BatchesCompleted int
}

// Run executes one bounded pass. Running it twice against an unchanged
// world is a no-op the second time (§4.10 idempotence): every phase acts
// only on tasks whose status still makes them eligible.
func (d *Driver) Run(ctx context.Context) (*Report, error) {
	acquired, err := d.guard.TryAcquire()
	if err != nil {
		return nil, err
	}
	if !acquired {
		d.log.Info("pulse: another instance holds the lock, skipping")
		return &Report{SkippedLocked: true}, nil
	}
	defer func() {
		if err := d.guard.Release(); err != nil {
			d.log.Warn("pulse: releasing lock", zap.Error(err))
		}
	}()

	report := &Report{}

	if err := d.phaseDispatch(ctx, report); err != nil {
		return report, fmt.Errorf("pulse: dispatch phase: %w", err)
	}
	if err := d.phaseEvaluate(ctx, report); err != nil {
		return report, fmt.Errorf("pulse: evaluate phase: %w", err)
	}
	if err := d.phaseReconcile(ctx, report); err != nil {
		return report, fmt.Errorf("pulse: reconcile phase: %w", err)
	}
	if d.prEngine != nil {
		if err := d.prEngine.Run(ctx); err != nil {
			return report, fmt.Errorf("pulse: pr lifecycle phase: %w", err)
		}
	}
	if err := d.phaseVerificationQueue(ctx, report); err != nil {
		return report, fmt.Errorf("pulse: verification queue phase: %w", err)
	}
	if err := d.phaseRetrospective(ctx, report); err != nil {
		return report, fmt.Errorf("pulse: retrospective phase: %w", err)
	}

	return report, nil
}

// phaseDispatch is claim-pickup + dispatch-eligible: every queued task
// runs the Dispatcher's preflight chain, fanned out up to the global
// concurrency budget. Dispatch itself is the sole concurrency enforcer
// (§5), so this phase does not pre-filter by load.
func (d *Driver) phaseDispatch(ctx context.Context, report *Report) error {
	tasks, err := d.store.ListTasksByStatus(ctx, store.StatusQueued)
	if err != nil {
		return err
	}

	limit := d.cfg.Concurrency.GlobalMax
	if limit < 1 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	results := make(chan dispatch.Outcome, len(tasks))
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			outcome, err := d.dispatcher.Dispatch(gctx, task)
			if err != nil {
				d.log.Warn("pulse: dispatch failed", zap.Any("task", task.ID), zap.Error(err))
				return nil // one task's error never blocks the rest
			}
			results <- outcome
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	close(results)

	for outcome := range results {
		if outcome.Kind == dispatch.OutcomeSpawned {
			report.Dispatched++
		} else {
			report.Deferred++
		}
	}
	return nil
}

// phaseEvaluate runs the Evaluator and RetryController over every task
// currently being evaluated.
func (d *Driver) phaseEvaluate(ctx context.Context, report *Report) error {
	tasks, err := d.store.ListTasksByStatus(ctx, store.StatusEvaluating)
	if err != nil {
		return err
	}

	for _, task := range tasks {
		verdict := d.evaluator.Evaluate(ctx, task)
		batch, err := d.store.BatchOf(ctx, task.ID)
		if err != nil {
			d.log.Warn("pulse: looking up batch", zap.Any("task", task.ID), zap.Error(err))
		}
		if _, err := d.retry.Decide(ctx, task, batch, verdict); err != nil {
			d.log.Warn("pulse: retry decision failed", zap.Any("task", task.ID), zap.Error(err))
			continue
		}
		report.Evaluated++
	}
	return nil
}

func (d *Driver) phaseReconcile(ctx context.Context, report *Report) error {
	if d.reconciler == nil {
		return nil
	}
	orphans, err := d.reconciler.Reconcile(ctx)
	if err != nil {
		return err
	}
	report.Orphans = orphans
	for _, o := range orphans {
		d.log.Warn("pulse: orphaned task row with no task-file line", zap.Any("task", o))
	}
	return nil
}

func (d *Driver) phaseRetrospective(ctx context.Context, report *Report) error {
	batches, err := d.store.ListActiveBatches(ctx)
	if err != nil {
		return err
	}
	for _, b := range batches {
		tasks, err := d.store.TasksInBatch(ctx, b.ID)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			continue
		}
		allTerminal := true
		for _, t := range tasks {
			if !t.Status.Terminal() {
				allTerminal = false
				break
			}
		}
		if !allTerminal {
			continue
		}
		if err := d.store.MarkBatchComplete(ctx, b.ID); err != nil {
			return err
		}
		report.BatchesCompleted++
	}
	return nil
}
