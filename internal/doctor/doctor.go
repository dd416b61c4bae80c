// Package doctor runs a tiered set of environment checks before a pulse,
// the same diagnostic-first posture as the teacher's own doctor package,
// narrowed to what PulseDriver actually depends on: store reachability,
// the task file, GitHub auth, and the single-instance lock.
package doctor

import "context"

// Status is a check's outcome severity.
type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// Category groups related checks for reporting.
type Category string

const (
	CategoryStore  Category = "store"
	CategoryGit    Category = "git"
	CategoryGitHub Category = "github"
	CategoryLock   Category = "lock"
)

// Result is one check's outcome.
type Result struct {
	Name    string
	Status  Status
	Message string
	Details []string
	FixHint string
}

// Context carries whatever a check needs to inspect pulse's environment.
type Context struct {
	SupervisorDir string
	DBPath        string
	TaskFilePath  string
	GitHubToken   string

	// GitHubPing, when non-nil, is invoked to confirm the token is live
	// without every check needing its own ghclient wiring.
	GitHubPing func(ctx context.Context) error
}

// Check is one diagnostic probe.
type Check interface {
	Name() string
	Category() Category
	Run(ctx context.Context, dc *Context) *Result
}

// BaseCheck supplies the identity fields most Checks embed.
type BaseCheck struct {
	CheckName        string
	CheckDescription string
	CheckCategory    Category
}

func (c BaseCheck) Name() string        { return c.CheckName }
func (c BaseCheck) Description() string { return c.CheckDescription }
func (c BaseCheck) Category() Category  { return c.CheckCategory }

// Default returns the standard checks covering every collaborator Run
// touches.
func Default() []Check {
	return []Check{
		&StoreReachableCheck{BaseCheck: BaseCheck{CheckName: "store-reachable", CheckDescription: "Verify the task database opens and responds", CheckCategory: CategoryStore}},
		&TaskFilePresentCheck{BaseCheck: BaseCheck{CheckName: "task-file-present", CheckDescription: "Verify the task file exists and parses", CheckCategory: CategoryGit}},
		&GitHubAuthCheck{BaseCheck: BaseCheck{CheckName: "github-auth", CheckDescription: "Verify GitHub credentials are configured and live", CheckCategory: CategoryGitHub}},
		&LockFreeCheck{BaseCheck: BaseCheck{CheckName: "lock-free", CheckDescription: "Verify no stale pulse lock is held", CheckCategory: CategoryLock}},
	}
}

// Run executes every check and returns the results in order.
func Run(ctx context.Context, dc *Context, checks []Check) []Result {
	results := make([]Result, 0, len(checks))
	for _, c := range checks {
		results = append(results, *c.Run(ctx, dc))
	}
	return results
}
