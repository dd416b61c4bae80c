package pulse

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/relaytrain/pulse/internal/ghclient"
	"github.com/relaytrain/pulse/internal/store"
	"github.com/relaytrain/pulse/internal/taskfile"
)

// phaseVerificationQueue enqueues check directives for newly deployed
// tasks and runs whatever is still pending from earlier pulses (§4.9).
func (d *Driver) phaseVerificationQueue(ctx context.Context, report *Report) error {
	if d.queue == nil {
		return nil
	}

	if d.gh != nil {
		if err := d.enqueueDeployedTasks(ctx, report); err != nil {
			return err
		}
	}

	return d.runPendingChecks(ctx, report)
}

func (d *Driver) enqueueDeployedTasks(ctx context.Context, report *Report) error {
	tasks, err := d.store.ListTasksByStatus(ctx, store.StatusDeployed)
	if err != nil {
		return err
	}

	for _, task := range tasks {
		if task.PRURL == "" {
			continue
		}
		already, err := d.queue.HasTask(task.ID)
		if err != nil {
			return err
		}
		if already {
			continue
		}

		ref, err := ghclient.ParsePRURL(task.PRURL)
		if err != nil {
			continue
		}
		files, err := d.gh.ListChangedFiles(ctx, ref)
		if err != nil {
			d.log.Warn("pulse: listing changed files", zap.Any("task", task.ID), zap.Error(err))
			continue
		}

		entries := taskfile.DirectivesFor(task.ID, files)
		if err := d.queue.Append(ctx, entries); err != nil {
			return err
		}
		report.QueuedChecks += len(entries)
	}
	return nil
}

// runPendingChecks runs each pending directive's check and records the
// result. Checks are best-effort file-system/syntax probes, not a full
// build — the repository's own CI is the real gate (§4.9 Non-goals).
func (d *Driver) runPendingChecks(ctx context.Context, report *Report) error {
	pending, err := d.queue.Pending()
	if err != nil {
		return err
	}

	for _, entry := range pending {
		passed := runCheck(ctx, entry)
		if err := d.queue.MarkResult(ctx, entry.TaskID, entry.Target, passed); err != nil {
			return err
		}
		report.ChecksRun++
	}
	return nil
}

func runCheck(ctx context.Context, entry taskfile.CheckEntry) bool {
	switch entry.Kind {
	case taskfile.CheckSyntax:
		return exec.CommandContext(ctx, "bash", "-n", entry.Target).Run() == nil
	case taskfile.CheckIndexedRef:
		return indexReferences(entry.Target)
	default: // CheckExists
		return fileExists(entry.Target)
	}
}

func fileExists(path string) bool {
	matches, err := filepath.Glob(path)
	return err == nil && len(matches) > 0
}

// indexReferences is a conservative best-effort probe: an agent
// definition is considered indexed if some file alongside it mentions
// its base name (a real index-file path is repository-specific and out
// of this check's scope).
func indexReferences(path string) bool {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	siblings, err := filepath.Glob(filepath.Join(dir, "*"))
	if err != nil {
		return false
	}
	for _, sibling := range siblings {
		if sibling == path {
			continue
		}
		out, err := exec.Command("grep", "-l", strings.TrimSuffix(base, filepath.Ext(base)), sibling).Output()
		if err == nil && len(out) > 0 {
			return true
		}
	}
	return false
}
