// Package store is the durable task/batch/state-log/proof-log store: a
// single SQLite file with write-ahead logging, a busy timeout, and
// foreign-key integrity, plus migration-safe schema evolution with
// backup/verify/rollback.
package store

import "time"

// TaskStatus is the closed enum of task lifecycle states (§3, §4.3).
type TaskStatus string

const (
	StatusQueued        TaskStatus = "queued"
	StatusDispatched    TaskStatus = "dispatched"
	StatusRunning       TaskStatus = "running"
	StatusEvaluating    TaskStatus = "evaluating"
	StatusComplete      TaskStatus = "complete"
	StatusRetrying      TaskStatus = "retrying"
	StatusBlocked       TaskStatus = "blocked"
	StatusFailed        TaskStatus = "failed"
	StatusCancelled     TaskStatus = "cancelled"
	StatusPRReview      TaskStatus = "pr_review"
	StatusReviewTriage  TaskStatus = "review_triage"
	StatusReviewWaiting TaskStatus = "review_waiting"
	StatusMerging       TaskStatus = "merging"
	StatusMerged        TaskStatus = "merged"
	StatusDeploying     TaskStatus = "deploying"
	StatusDeployed      TaskStatus = "deployed"
	StatusVerifying     TaskStatus = "verifying"
	StatusVerified      TaskStatus = "verified"
	StatusVerifyFailed  TaskStatus = "verify_failed"
)

// Terminal reports whether status admits no further transitions except
// operator recovery (failed/blocked -> queued).
func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusComplete, StatusDeployed, StatusVerified, StatusVerifyFailed,
		StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// BatchStatus is the closed enum of batch states.
type BatchStatus string

const (
	BatchActive    BatchStatus = "active"
	BatchPaused    BatchStatus = "paused"
	BatchComplete  BatchStatus = "complete"
	BatchCancelled BatchStatus = "cancelled"
)

// ReleaseType is the release granularity a batch requests on completion.
type ReleaseType string

const (
	ReleaseMajor ReleaseType = "major"
	ReleaseMinor ReleaseType = "minor"
	ReleasePatch ReleaseType = "patch"
)

// Task is the unit of work the orchestrator schedules.
type Task struct {
	ID               string     `db:"id"`
	Repository       string     `db:"repository"`
	Description      string     `db:"description"`
	Status           TaskStatus `db:"status"`
	Model            string     `db:"model"`
	Retries          int        `db:"retries"`
	MaxRetries       int        `db:"max_retries"`
	EscalationDepth  int        `db:"escalation_depth"`
	MaxEscalation    int        `db:"max_escalation"`
	RebaseAttempts   int        `db:"rebase_attempts"`
	DeployRecoveries int        `db:"deploy_recoveries"`
	Priority         int        `db:"priority"`

	SessionHandle string `db:"session_handle"`
	WorktreePath  string `db:"worktree_path"`
	Branch        string `db:"branch"`
	LogPath       string `db:"log_path"`
	PRURL         string `db:"pr_url"`
	IssueURL      string `db:"issue_url"`
	DiagnosticOf  string `db:"diagnostic_of"`
	TriageResult  string `db:"triage_result"`

	Error string `db:"error"`

	CreatedAt   time.Time  `db:"created_at"`
	StartedAt   *time.Time `db:"started_at"`
	CompletedAt *time.Time `db:"completed_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

// Invariant1 reports whether retries/escalation stayed within budget
// (testable property #1).
func (t *Task) Invariant1() bool {
	return t.Retries <= t.MaxRetries && t.EscalationDepth <= t.MaxEscalation
}

// Batch is a cohort of tasks sharing a concurrency budget.
type Batch struct {
	ID                string      `db:"id"`
	Name              string      `db:"name"`
	BaseConcurrency   int         `db:"base_concurrency"`
	HardCeiling       int         `db:"hard_ceiling"` // 0 means no explicit ceiling
	LoadFactor        float64     `db:"load_factor"`
	ReleaseOnComplete bool        `db:"release_on_complete"`
	ReleaseType       ReleaseType `db:"release_type"`
	SkipQualityGate   bool        `db:"skip_quality_gate"`
	Status            BatchStatus `db:"status"`
	CreatedAt         time.Time   `db:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at"`
}

// BatchTask is the join-table row ordering a task within a batch.
type BatchTask struct {
	BatchID  string `db:"batch_id"`
	TaskID   string `db:"task_id"`
	Position int    `db:"position"`
}

// StateLogEntry is an append-only audit record of a state transition.
type StateLogEntry struct {
	ID        int64      `db:"id"`
	TaskID    string     `db:"task_id"`
	FromState TaskStatus `db:"from_state"`
	ToState   TaskStatus `db:"to_state"`
	Reason    string     `db:"reason"`
	CreatedAt time.Time  `db:"created_at"`
}

// ProofLogEntry is append-only evidence justifying a terminal transition.
type ProofLogEntry struct {
	ID         int64     `db:"id"`
	TaskID     string    `db:"task_id"`
	Event      string    `db:"event"`
	Stage      string    `db:"stage"`
	Decision   string    `db:"decision"`
	Evidence   string    `db:"evidence"`
	DecisionBy string    `db:"decision_by"`
	PRURL      string    `db:"pr_url"`
	DurationMS int64     `db:"duration_ms"`
	Metadata   string    `db:"metadata"` // JSON blob
	CreatedAt  time.Time `db:"created_at"`
}
