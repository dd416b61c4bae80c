// Package dispatch implements the preflight gate chain that decides
// whether, and how, to spawn a worker for a task (§4.5).
package dispatch

// OutcomeKind is a tagged variant for dispatch results — the source's
// numeric exit codes (2/3/75/1) replaced with a type pulse code matches
// on directly, per the "exception control flow -> tagged variant"
// design note.
type OutcomeKind string

const (
	OutcomeSpawned                OutcomeKind = "spawned"
	OutcomeConcurrencyLimit       OutcomeKind = "concurrency_limit"
	OutcomeProviderUnavailable    OutcomeKind = "provider_unavailable"
	OutcomeProviderKeyBlocked     OutcomeKind = "provider_key_blocked"
	OutcomeProviderRateLimited    OutcomeKind = "provider_rate_limited"
	OutcomeWorktreeCreationFailed OutcomeKind = "worktree_creation_failed"
	OutcomeClaimConflict          OutcomeKind = "claim_conflict"
	OutcomeRetriesExhausted       OutcomeKind = "retries_exhausted"
	OutcomePriorCompletion        OutcomeKind = "prior_completion_cancelled"
	OutcomeAuthUnusable           OutcomeKind = "auth_unusable"
	OutcomeContestDeferred        OutcomeKind = "contest_deferred"
)

// Outcome is the Dispatcher's tagged-variant result.
type Outcome struct {
	Kind   OutcomeKind
	Detail string
}

// ExitCode maps an Outcome to the exit code the PulseDriver's process
// boundary documents in §6 (used only at the CLI surface; internal
// callers should match on Kind, never on this code).
func (o Outcome) ExitCode() int {
	switch o.Kind {
	case OutcomeSpawned:
		return 0
	case OutcomeConcurrencyLimit:
		return 2
	case OutcomeProviderUnavailable, OutcomeProviderRateLimited:
		return 3
	case OutcomeRetriesExhausted, OutcomeClaimConflict, OutcomeWorktreeCreationFailed, OutcomeAuthUnusable:
		return 1
	default:
		return 75
	}
}
