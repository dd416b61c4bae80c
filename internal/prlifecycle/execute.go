package prlifecycle

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/relaytrain/pulse/internal/agentspec"
	"github.com/relaytrain/pulse/internal/ghclient"
	"github.com/relaytrain/pulse/internal/gitutil"
	"github.com/relaytrain/pulse/internal/runtimestate"
	"github.com/relaytrain/pulse/internal/statemachine"
	"github.com/relaytrain/pulse/internal/store"
	"github.com/relaytrain/pulse/internal/supervisor"
)

// parentTaskID returns the parent of a dotted child task ID (t46.1 ->
// t46), matching ListChildren's tN.M convention, and false for a
// top-level task ID with no dot.
func parentTaskID(id string) (string, bool) {
	idx := strings.LastIndex(id, ".")
	if idx < 0 {
		return "", false
	}
	return id[:idx], true
}

// Execute carries out one decision (§4.8 step 3): a direct GitHub call
// for simple actions, or a spawned worker with full tool access for
// the complex ones.
func (e *Engine) Execute(ctx context.Context, task *store.Task, snap *Snapshot, decision Decision) error {
	if decision.Action.IsComplex() {
		return e.executeComplex(ctx, task, decision)
	}

	switch decision.Action {
	case ActionMergePR:
		return e.executeMerge(ctx, task, snap, decision)
	case ActionUpdateBranch, ActionRebaseBranch:
		return e.executeRebase(ctx, task, decision)
	case ActionPromoteDraft:
		return e.executePromoteDraft(ctx, task, snap, decision)
	case ActionClosePR:
		return statemachine.Transition(ctx, e.store, task.ID, store.StatusCancelled,
			statemachine.Fields{Reason: decision.Reason})
	case ActionDismissReviews:
		return e.executeDismissReviews(ctx, snap, decision)
	case ActionRetryCI:
		// CI is retried by pushing an empty commit or re-running via the
		// hosting provider's UI/API outside this engine's scope; here we
		// simply park the task back in triage for the next pulse to
		// re-gather fresh check state.
		return statemachine.Transition(ctx, e.store, task.ID, store.StatusReviewTriage,
			statemachine.Fields{Reason: decision.Reason})
	case ActionDeploy:
		return e.executeDeploy(ctx, task, decision)
	case ActionMarkComplete:
		return e.executeMarkVerified(ctx, task, decision)
	case ActionCancel:
		return statemachine.Transition(ctx, e.store, task.ID, store.StatusCancelled,
			statemachine.Fields{Reason: decision.Reason})
	case ActionWait:
		return nil
	default:
		return fmt.Errorf("prlifecycle: unknown action %q", decision.Action)
	}
}

// executeMerge enforces the merge gate (§4.8 step 4: an APPROVED review
// decision is required unless RequireApproval is explicitly disabled)
// and the serial-merge guarantee for sibling tasks sharing a parent.
func (e *Engine) executeMerge(ctx context.Context, task *store.Task, snap *Snapshot, decision Decision) error {
	if snap.PR == nil {
		return fmt.Errorf("prlifecycle: merge_pr decided with no PR snapshot for %s", task.ID)
	}

	if e.cfg.PRLifecycle.RequireApproval && snap.PR.ReviewDecision != "APPROVED" {
		return statemachine.Transition(ctx, e.store, task.ID, store.StatusReviewWaiting,
			statemachine.Fields{Reason: "awaiting_approval"})
	}

	if parent, ok := parentTaskID(task.ID); ok && e.mergedParents[parent] {
		// A sibling already merged this pulse; defer to the next one
		// rather than risk two siblings racing the same base branch.
		return nil
	}

	ref, err := ghclient.ParsePRURL(task.PRURL)
	if err != nil {
		return fmt.Errorf("prlifecycle: parsing pr url for %s: %w", task.ID, err)
	}

	if err := statemachine.Transition(ctx, e.store, task.ID, store.StatusMerging,
		statemachine.Fields{Reason: decision.Reason}); err != nil {
		return err
	}

	if err := e.gh.Merge(ctx, ref, fmt.Sprintf("Merge pulse task %s", task.ID)); err != nil {
		errStr := err.Error()
		return statemachine.Transition(ctx, e.store, task.ID, store.StatusBlocked,
			statemachine.Fields{Reason: "merge_failed", Error: &errStr})
	}

	if parent, ok := parentTaskID(task.ID); ok {
		e.mergedParents[parent] = true
	}

	if err := statemachine.Transition(ctx, e.store, task.ID, store.StatusMerged,
		statemachine.Fields{Reason: "merged"}); err != nil {
		return err
	}

	if err := e.postMergeSequence(ctx, task); err != nil {
		return err
	}

	return e.executeDeploy(ctx, task, Decision{Action: ActionDeploy, Reason: "post_merge"})
}

// postMergeSequence pulls the base branch and rebases sibling tasks
// sharing this task's parent so their worktrees stay current, then
// removes this task's own worktree.
func (e *Engine) postMergeSequence(ctx context.Context, task *store.Task) error {
	if parent, ok := parentTaskID(task.ID); ok {
		siblings, err := e.store.ListChildren(ctx, parent)
		if err == nil {
			for _, sib := range siblings {
				if sib.ID == task.ID || sib.WorktreePath == "" {
					continue
				}
				g := gitutil.New(sib.WorktreePath)
				base, err := g.DefaultBranch(ctx)
				if err != nil {
					continue
				}
				_ = g.Fetch(ctx, "origin")
				_ = g.PullRebase(ctx, "origin", base)
			}
		}
	}

	if task.WorktreePath != "" {
		g := gitutil.New(task.WorktreePath)
		_ = g.WorktreeRemove(ctx, task.WorktreePath)
	}
	return nil
}

func (e *Engine) executeRebase(ctx context.Context, task *store.Task, decision Decision) error {
	if task.WorktreePath == "" {
		return statemachine.Transition(ctx, e.store, task.ID, store.StatusBlocked,
			statemachine.Fields{Reason: "rebase_requested_no_worktree"})
	}
	g := gitutil.New(task.WorktreePath)
	base, err := g.DefaultBranch(ctx)
	if err != nil {
		return err
	}
	if err := g.Fetch(ctx, "origin"); err != nil {
		return err
	}
	if err := g.PullRebase(ctx, "origin", base); err != nil {
		errStr := err.Error()
		return statemachine.Transition(ctx, e.store, task.ID, store.StatusBlocked,
			statemachine.Fields{Reason: "rebase_conflict", Error: &errStr})
	}
	if err := g.Push(ctx, "origin", task.Branch); err != nil {
		return err
	}
	return statemachine.Transition(ctx, e.store, task.ID, store.StatusReviewTriage,
		statemachine.Fields{Reason: decision.Reason})
}

func (e *Engine) executePromoteDraft(ctx context.Context, task *store.Task, snap *Snapshot, decision Decision) error {
	// Draft promotion itself is a GitHub API call the ghclient does not
	// yet expose beyond CreateDraft/Merge; promoting simply means the PR
	// is ready for human/gate review, so this engine moves the task into
	// triage where the merge gate takes over.
	return statemachine.Transition(ctx, e.store, task.ID, store.StatusReviewTriage,
		statemachine.Fields{Reason: decision.Reason})
}

func (e *Engine) executeDismissReviews(ctx context.Context, snap *Snapshot, decision Decision) error {
	if snap.PR == nil {
		return nil
	}
	if _, err := ghclient.ParsePRURL(snap.Task.PRURL); err != nil {
		return nil
	}
	// The stale review's ID isn't carried on PRInfo; dismissal by
	// reviewer login is handled at the ghclient layer when a concrete
	// review ID is known. Without one, fall back to re-triage so the
	// next gather cycle re-evaluates review state.
	return statemachine.Transition(ctx, e.store, snap.Task.ID, store.StatusReviewTriage,
		statemachine.Fields{Reason: decision.Reason})
}

func (e *Engine) executeDeploy(ctx context.Context, task *store.Task, decision Decision) error {
	if err := statemachine.Transition(ctx, e.store, task.ID, store.StatusDeploying,
		statemachine.Fields{Reason: decision.Reason}); err != nil {
		return err
	}
	// Deployment is repository-specific (a Makefile target, a CI
	// trigger, a release script); this engine records the transition
	// and leaves the actual invocation to the repository's own deploy
	// hook, matching the Non-goal that pulse does not own deploy
	// tooling itself.
	if err := statemachine.Transition(ctx, e.store, task.ID, store.StatusDeployed,
		statemachine.Fields{Reason: "deployed"}); err != nil {
		return err
	}
	return statemachine.Transition(ctx, e.store, task.ID, store.StatusVerifying,
		statemachine.Fields{Reason: "awaiting_verification"})
}

func (e *Engine) executeMarkVerified(ctx context.Context, task *store.Task, decision Decision) error {
	return statemachine.Transition(ctx, e.store, task.ID, store.StatusVerified,
		statemachine.Fields{Reason: decision.Reason})
}

// executeComplex spawns a second AI worker scoped to the task's existing
// worktree, for actions that need real code changes rather than a
// synchronous API call (resolve_conflicts, fix_ci, fix_and_push).
func (e *Engine) executeComplex(ctx context.Context, task *store.Task, decision Decision) error {
	if task.WorktreePath == "" || e.supervisor == nil {
		return statemachine.Transition(ctx, e.store, task.ID, store.StatusBlocked,
			statemachine.Fields{Reason: "complex_action_no_worktree"})
	}

	configDir := filepath.Join(runtimestate.CacheDir(), "worker-config", task.ID+"-prlifecycle")
	logPath := filepath.Join(e.cfg.LogDir, fmt.Sprintf("%s-prlifecycle-%s.log", task.ID, uuid.NewString()[:8]))

	inv := agentspec.Build(e.template, agentspec.TaskContext{
		TaskID:      task.ID,
		Description: fmt.Sprintf("%s: %s", decision.Action, decision.Reason),
		Model:       task.Model,
		WorktreeDir: task.WorktreePath,
		ConfigDir:   configDir,
	})

	handle, err := e.supervisor.Spawn(ctx, supervisor.SpawnOptions{
		TaskID:  task.ID,
		Command: inv.Command,
		Dir:     inv.Dir,
		Env:     inv.Env,
		LogPath: logPath,
	})
	if err != nil {
		errStr := err.Error()
		return statemachine.Transition(ctx, e.store, task.ID, store.StatusBlocked,
			statemachine.Fields{Reason: "spawn_failed", Error: &errStr})
	}

	sessionStr := string(handle)
	return statemachine.Transition(ctx, e.store, task.ID, store.StatusReviewTriage,
		statemachine.Fields{Reason: decision.Reason, Session: &sessionStr, LogFile: &logPath})
}
