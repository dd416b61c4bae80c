package taskfile

import (
	"context"
	"fmt"
	"time"

	"github.com/relaytrain/pulse/internal/statemachine"
	"github.com/relaytrain/pulse/internal/store"
)

// IssueNotifier posts a status comment on a task's linked issue, kept as
// a narrow interface so Reconciler does not depend on ghclient directly.
type IssueNotifier interface {
	Notify(ctx context.Context, task *store.Task, status, note string) error
}

// Reconciler closes the four DB<->file gaps (§4.9) once per pulse.
type Reconciler struct {
	store  *store.Store
	sync   *Sync
	notify IssueNotifier
}

// NewReconciler builds a Reconciler over a store and a task-file Sync.
// notify may be nil to skip issue notification entirely.
func NewReconciler(s *store.Store, sync *Sync, notify IssueNotifier) *Reconciler {
	return &Reconciler{store: s, sync: sync, notify: notify}
}

// OrphanTaskID is a DB row with no corresponding task-file line — logged,
// never auto-removed (§4.9 gap d).
type OrphanTaskID string

// Reconcile runs the bidirectional pass and returns any orphaned task
// IDs for the caller to log.
func (r *Reconciler) Reconcile(ctx context.Context) ([]OrphanTaskID, error) {
	var orphans []OrphanTaskID

	tasks, err := r.store.ListTasksByStatus(ctx,
		store.StatusFailed, store.StatusBlocked, store.StatusCancelled,
		store.StatusComplete, store.StatusVerified, store.StatusDeployed)
	if err != nil {
		return nil, fmt.Errorf("taskfile: reconcile: listing tasks: %w", err)
	}

	now := time.Now().UTC().Format("2006-01-02")

	err = r.sync.Mutate(ctx, "pulse: reconcile task file against store", func(f *File) (bool, error) {
		changed := false

		for _, task := range tasks {
			matches := f.Find(task.ID)
			if len(matches) == 0 {
				orphans = append(orphans, OrphanTaskID(task.ID))
				continue
			}
			p := matches[0]

			switch task.Status {
			case store.StatusFailed, store.StatusBlocked:
				// Gap (a): DB terminal-failure/blocked but file has no
				// status annotation yet.
				if !hasAnnotation(p.Rest, "status") {
					if err := f.AnnotateBlocked(task.ID, string(task.Status), task.Error); err != nil {
						return changed, err
					}
					changed = true
					if r.notify != nil {
						if err := r.notify.Notify(ctx, task, string(task.Status), task.Error); err != nil {
							return changed, err
						}
					}
				}
			case store.StatusCancelled:
				// Gap (b): DB cancelled but file line still open.
				if p.State == StateOpen {
					if err := f.MarkCancelled(task.ID, now); err != nil {
						return changed, err
					}
					changed = true
				}
			case store.StatusComplete, store.StatusVerified, store.StatusDeployed:
				// Gap (c) is the inverse direction (file [x], DB non-terminal)
				// and is handled below via reconcileFileToDB, since it
				// writes to the Store rather than the file.
			}
		}
		return changed, nil
	})
	if err != nil {
		return nil, err
	}

	if err := r.reconcileFileToDB(ctx); err != nil {
		return nil, err
	}

	return orphans, nil
}

// reconcileFileToDB implements gap (c): a task-file line marked `[x]`
// whose DB row is still non-terminal is transitioned to complete.
func (r *Reconciler) reconcileFileToDB(ctx context.Context) error {
	f, err := ReadFile(r.sync.path)
	if err != nil {
		return err
	}

	for _, p := range f.All() {
		if p.State != StateDone {
			continue
		}
		task, err := r.store.GetTask(ctx, p.TaskID)
		if err != nil {
			continue // not every file line has a DB row (e.g. pre-pulse tasks)
		}
		if task.Status.Terminal() {
			continue
		}
		if err := statemachine.Transition(ctx, r.store, task.ID, store.StatusComplete,
			statemachine.Fields{Reason: "reconcile:file_marked_done"}); err != nil {
			continue // leave genuinely illegal transitions for a human to investigate
		}
	}
	return nil
}
