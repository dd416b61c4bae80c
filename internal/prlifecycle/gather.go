package prlifecycle

import (
	"context"
	"os"
	"time"

	"github.com/relaytrain/pulse/internal/ghclient"
	"github.com/relaytrain/pulse/internal/store"
	"github.com/relaytrain/pulse/internal/supervisor"
)

// Gather collects the structured snapshot §4.8 step 1 describes: DB row,
// PR state, worker liveness, worktree existence, and recent transitions.
func (e *Engine) Gather(ctx context.Context, task *store.Task) (*Snapshot, error) {
	snap := &Snapshot{Task: task, GatheredAt: time.Now().UTC()}

	if task.PRURL != "" && e.gh != nil {
		if ref, err := ghclient.ParsePRURL(task.PRURL); err == nil {
			if info, err := e.gh.Snapshot(ctx, ref); err == nil {
				snap.PR = info
			}
		}
	}

	if task.SessionHandle != "" && e.supervisor != nil {
		snap.WorkerAlive = e.supervisor.IsAlive(supervisor.SessionHandle(task.SessionHandle))
	}

	if task.WorktreePath != "" {
		if info, err := os.Stat(task.WorktreePath); err == nil && info.IsDir() {
			snap.WorktreeExists = true
		}
	}

	transitions, err := e.store.RecentStateLog(ctx, task.ID, 5)
	if err == nil {
		snap.RecentTransitions = transitions
	}

	return snap, nil
}
