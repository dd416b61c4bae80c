package prlifecycle

import (
	"context"
	"fmt"
	"strings"
)

const decisionSystemPrompt = `You are the PR-lifecycle decision engine for an autonomous DevOps ` +
	`supervisor. Given a task's PR state snapshot, respond with exactly one line of the shape ` +
	`action:reason, where action is one of: merge_pr, update_branch, rebase_branch, fix_ci, ` +
	`resolve_conflicts, fix_and_push, promote_draft, close_pr, deploy, mark_complete, ` +
	`dismiss_reviews, retry_ci, wait, cancel.`

// Decide submits the snapshot to the advisor and parses its fixed
// decision-grammar response (§4.8 step 2).
func (e *Engine) Decide(ctx context.Context, snap *Snapshot) (Decision, error) {
	prompt := renderSnapshotPrompt(snap)

	response, err := e.advisor.Arbitrate(ctx, decisionSystemPrompt, prompt)
	if err != nil {
		return Decision{Action: ActionWait, Reason: "advisor_unavailable"}, nil
	}

	action, reason, ok := strings.Cut(strings.TrimSpace(response), ":")
	if !ok || !isKnownAction(Action(action)) {
		return Decision{Action: ActionWait, Reason: "unparseable_decision"}, nil
	}
	return Decision{Action: Action(action), Reason: reason}, nil
}

func isKnownAction(a Action) bool {
	switch a {
	case ActionMergePR, ActionUpdateBranch, ActionRebaseBranch, ActionFixCI, ActionResolveConflicts,
		ActionFixAndPush, ActionPromoteDraft, ActionClosePR, ActionDeploy, ActionMarkComplete,
		ActionDismissReviews, ActionRetryCI, ActionWait, ActionCancel:
		return true
	default:
		return false
	}
}

func renderSnapshotPrompt(snap *Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task %s: %s\n", snap.Task.ID, snap.Task.Description)
	if snap.PR != nil {
		fmt.Fprintf(&b, "PR #%d %q state=%s draft=%v mergeable=%v mergeable_state=%s review=%s checks_passing=%v\n",
			snap.PR.Number, snap.PR.Title, snap.PR.State, snap.PR.Draft, snap.PR.Mergeable,
			snap.PR.MergeableState, snap.PR.ReviewDecision, snap.PR.ChecksPassing)
	} else {
		b.WriteString("PR: none found\n")
	}
	fmt.Fprintf(&b, "worker_alive=%v worktree_exists=%v\n", snap.WorkerAlive, snap.WorktreeExists)
	b.WriteString("recent transitions:\n")
	for _, t := range snap.RecentTransitions {
		fmt.Fprintf(&b, "  %s -> %s (%s)\n", t.FromState, t.ToState, t.Reason)
	}
	return b.String()
}
