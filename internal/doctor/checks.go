package doctor

import (
	"context"
	"fmt"
	"os"

	"github.com/gofrs/flock"

	"github.com/relaytrain/pulse/internal/store"
	"github.com/relaytrain/pulse/internal/taskfile"
)

// StoreReachableCheck opens the task database and confirms it responds.
type StoreReachableCheck struct{ BaseCheck }

func (c *StoreReachableCheck) Run(ctx context.Context, dc *Context) *Result {
	if _, err := os.Stat(dc.DBPath); err != nil {
		return &Result{Name: c.Name(), Status: StatusError, Message: "task database not found", Details: []string{dc.DBPath}, FixHint: "run 'pulse run' once to create it"}
	}
	s, err := store.Open(ctx, dc.DBPath)
	if err != nil {
		return &Result{Name: c.Name(), Status: StatusError, Message: fmt.Sprintf("opening database: %v", err)}
	}
	defer s.Close()
	return &Result{Name: c.Name(), Status: StatusOK, Message: "task database is reachable"}
}

// TaskFilePresentCheck verifies the task file exists and parses cleanly.
type TaskFilePresentCheck struct{ BaseCheck }

func (c *TaskFilePresentCheck) Run(ctx context.Context, dc *Context) *Result {
	if dc.TaskFilePath == "" {
		return &Result{Name: c.Name(), Status: StatusWarning, Message: "no task file path configured"}
	}
	f, err := taskfile.ReadFile(dc.TaskFilePath)
	if err != nil {
		return &Result{Name: c.Name(), Status: StatusError, Message: fmt.Sprintf("reading task file: %v", err), FixHint: "check the task file path and git checkout"}
	}
	return &Result{Name: c.Name(), Status: StatusOK, Message: fmt.Sprintf("task file parses (%d lines)", len(f.Lines))}
}

// GitHubAuthCheck verifies a token is configured and, if a live probe was
// wired, that it authenticates.
type GitHubAuthCheck struct{ BaseCheck }

func (c *GitHubAuthCheck) Run(ctx context.Context, dc *Context) *Result {
	if dc.GitHubToken == "" {
		return &Result{Name: c.Name(), Status: StatusWarning, Message: "no GitHub token configured", FixHint: "set PULSE_GITHUB_TOKEN"}
	}
	if dc.GitHubPing == nil {
		return &Result{Name: c.Name(), Status: StatusOK, Message: "GitHub token is set (not verified live)"}
	}
	if err := dc.GitHubPing(ctx); err != nil {
		return &Result{Name: c.Name(), Status: StatusError, Message: fmt.Sprintf("GitHub auth failed: %v", err), FixHint: "check token scopes and expiry"}
	}
	return &Result{Name: c.Name(), Status: StatusOK, Message: "GitHub token authenticates"}
}

// LockFreeCheck probes the single-instance lock file: it warns when
// another process currently holds the lock (or the probe fails), and
// reports ok when the file is absent or present but free (flock releases
// automatically on process exit, so a leftover file is not a stuck lock).
type LockFreeCheck struct{ BaseCheck }

func (c *LockFreeCheck) Run(ctx context.Context, dc *Context) *Result {
	path := dc.SupervisorDir + "/.pulse.lock"
	if _, err := os.Stat(path); err != nil {
		return &Result{Name: c.Name(), Status: StatusOK, Message: "no lock file present"}
	}
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return &Result{Name: c.Name(), Status: StatusWarning, Message: fmt.Sprintf("could not probe lock: %v", err)}
	}
	defer fl.Unlock()
	if !locked {
		return &Result{Name: c.Name(), Status: StatusWarning, Message: "lock is currently held by another pulse"}
	}
	return &Result{Name: c.Name(), Status: StatusOK, Message: "lock file present but free"}
}
