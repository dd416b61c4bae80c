package retry

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/relaytrain/pulse/internal/gitutil"
	"github.com/relaytrain/pulse/internal/store"
)

// minLogLines is the log-size floor: a suspiciously short log for a
// "complete" verdict suggests the worker did very little actual work.
const minLogLines = 10

// DefaultQualityGate implements the post-hoc completion check described
// in §4.7: a log-size floor, a syntax check of every shell script in
// the worktree, a substantive-diff check, and PR existence.
type DefaultQualityGate struct{}

func (DefaultQualityGate) Check(ctx context.Context, task *store.Task) (bool, string, error) {
	if task.LogPath != "" {
		data, err := os.ReadFile(task.LogPath)
		if err == nil && countLines(string(data)) < minLogLines {
			return false, "log_too_short", nil
		}
	}

	if task.PRURL == "" {
		return false, "no_pr", nil
	}

	if task.WorktreePath == "" {
		return true, "", nil
	}

	g := gitutil.New(task.WorktreePath)

	dirty, err := g.HasUncommittedChanges(ctx)
	if err == nil && dirty {
		return false, "uncommitted_changes_remain", nil
	}

	base, err := g.DefaultBranch(ctx)
	if err == nil {
		ahead, aheadErr := g.CommitsAhead(ctx, "origin/"+base)
		if aheadErr == nil && ahead == 0 {
			return false, "no_substantive_diff", nil
		}
	}

	if ok, reason := checkModifiedShellScripts(ctx, task.WorktreePath); !ok {
		return false, reason, nil
	}

	return true, "", nil
}

func countLines(s string) int {
	n := 0
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

// checkModifiedShellScripts runs `sh -n` over every .sh file in the
// worktree, catching a worker that left a syntactically broken script.
func checkModifiedShellScripts(ctx context.Context, worktreeDir string) (bool, string) {
	var broken []string
	_ = filepath.WalkDir(worktreeDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".sh") {
			return nil
		}
		if exec.CommandContext(ctx, "sh", "-n", path).Run() != nil {
			broken = append(broken, path)
		}
		return nil
	})
	if len(broken) > 0 {
		return false, "shell_syntax_error"
	}
	return true, ""
}
