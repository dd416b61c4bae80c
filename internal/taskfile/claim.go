package taskfile

import (
	"context"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/relaytrain/pulse/internal/dispatch"
)

// ClaimFor implements dispatch.ClaimChecker by reading a task's
// `assignee:`/`started:` annotations from the task file.
func (s *Sync) ClaimFor(ctx context.Context, taskID string) (dispatch.Claim, error) {
	f, err := ReadFile(s.path)
	if err != nil {
		return dispatch.Claim{}, err
	}
	matches := f.Find(taskID)
	if len(matches) == 0 {
		return dispatch.Claim{}, nil
	}

	holder, ok := annotationValue(matches[0].Rest, "assignee")
	if !ok {
		return dispatch.Claim{}, nil
	}

	since := time.Now()
	if startedStr, ok := annotationValue(matches[0].Rest, "started"); ok {
		if t, err := time.Parse(time.RFC3339, startedStr); err == nil {
			since = t
		}
	}

	return dispatch.Claim{Holder: holder, AgeSince: since, Exists: true}, nil
}

// HolderHasActiveWorker reports whether the claim-holder's process is
// still alive. Holders are recorded as bare PIDs (single-host
// deployment assumption); the signal-0 probe matches ProcessSupervisor's
// own liveness convention.
func (s *Sync) HolderHasActiveWorker(ctx context.Context, holder string) bool {
	pid, err := strconv.Atoi(holder)
	if err != nil || pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
