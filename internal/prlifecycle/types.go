// Package prlifecycle implements the PRLifecycleEngine (C8): drives
// tasks from `complete` (PR opened) through merge and deploy to
// `verified`, via a gather/decide/execute loop with a fixed decision
// grammar (§4.8).
package prlifecycle

import (
	"time"

	"github.com/relaytrain/pulse/internal/ghclient"
	"github.com/relaytrain/pulse/internal/store"
)

// Action is the closed decision grammar the advisor chooses from.
type Action string

const (
	ActionMergePR         Action = "merge_pr"
	ActionUpdateBranch    Action = "update_branch"
	ActionRebaseBranch    Action = "rebase_branch"
	ActionFixCI           Action = "fix_ci"
	ActionResolveConflicts Action = "resolve_conflicts"
	ActionFixAndPush      Action = "fix_and_push"
	ActionPromoteDraft    Action = "promote_draft"
	ActionClosePR         Action = "close_pr"
	ActionDeploy          Action = "deploy"
	ActionMarkComplete    Action = "mark_complete"
	ActionDismissReviews  Action = "dismiss_reviews"
	ActionRetryCI         Action = "retry_ci"
	ActionWait            Action = "wait"
	ActionCancel          Action = "cancel"
)

// complexActions spawn a second AI worker with full tool access to
// perform the fix autonomously, rather than being a synchronous GitHub
// API call.
var complexActions = map[Action]bool{
	ActionResolveConflicts: true,
	ActionFixCI:            true,
	ActionFixAndPush:       true,
}

// IsComplex reports whether an action requires spawning a worker rather
// than a direct GitHub operation.
func (a Action) IsComplex() bool { return complexActions[a] }

// Decision is the advisor's output for one task's snapshot.
type Decision struct {
	Action Action
	Reason string
}

// Snapshot is the structured state gathered for one task before a
// decision is made (§4.8 step 1).
type Snapshot struct {
	Task              *store.Task
	PR                *ghclient.PRInfo
	WorkerAlive       bool
	WorktreeExists    bool
	RecentTransitions []*store.StateLogEntry
	GatheredAt        time.Time
}
