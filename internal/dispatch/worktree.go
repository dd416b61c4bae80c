package dispatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/relaytrain/pulse/internal/gitutil"
	"github.com/relaytrain/pulse/internal/runtimestate"
	"github.com/relaytrain/pulse/internal/store"
)

// acquireWorktree implements §4.5 step 8: give the task a stable worktree
// path keyed by its ID, creating a fresh branch off the repo's default
// branch unless one already exists from a prior dispatch (retry/verify
// mode reuses it instead of discarding prior work).
func (d *Dispatcher) acquireWorktree(ctx context.Context, g *gitutil.Git, task *store.Task) (dir, branch string, err error) {
	if task.WorktreePath != "" {
		if info, statErr := os.Stat(task.WorktreePath); statErr == nil && info.IsDir() {
			return task.WorktreePath, task.Branch, nil
		}
	}

	dir = filepath.Join(runtimestate.CacheDir(), "worktrees", task.ID)
	branch = task.Branch
	if branch == "" {
		branch = "pulse/" + task.ID
	}

	if info, statErr := os.Stat(dir); statErr == nil && info.IsDir() {
		return dir, branch, nil
	}

	base, err := g.DefaultBranch(ctx)
	if err != nil {
		return "", "", fmt.Errorf("dispatch: resolving default branch: %w", err)
	}
	if err := g.Fetch(ctx, "origin"); err != nil {
		return "", "", fmt.Errorf("dispatch: fetching origin: %w", err)
	}
	if err := g.WorktreeAddFromRef(ctx, dir, branch, "origin/"+base); err != nil {
		return "", "", fmt.Errorf("dispatch: creating worktree: %w", err)
	}
	return dir, branch, nil
}
