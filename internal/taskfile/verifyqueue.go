package taskfile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/relaytrain/pulse/internal/util"
)

// CheckKind is the verification-queue directive's check type, derived
// from the kind of file a PR touched.
type CheckKind string

const (
	CheckSyntax     CheckKind = "syntax"     // shell scripts
	CheckExists     CheckKind = "exists"     // any other changed file
	CheckIndexedRef CheckKind = "index_ref"  // agent-definition index entries
)

// CheckEntry is one pending verification directive.
type CheckEntry struct {
	TaskID string
	Kind   CheckKind
	Target string
	Status string // "pending", "pass", "fail"
}

// QueueFile manages the sibling verification-queue file alongside the
// task file.
type QueueFile struct {
	path string
}

// NewQueueFile returns a QueueFile at path.
func NewQueueFile(path string) *QueueFile {
	return &QueueFile{path: path}
}

// DirectivesFor derives check: directives from a PR's changed files
// (§4.9): a syntax check for shell scripts, an index-reference check
// for agent definitions, and an existence check for every other file.
func DirectivesFor(taskID string, changedFiles []string) []CheckEntry {
	var entries []CheckEntry
	for _, path := range changedFiles {
		switch {
		case strings.HasSuffix(path, ".sh"):
			entries = append(entries, CheckEntry{TaskID: taskID, Kind: CheckSyntax, Target: path, Status: "pending"})
		case strings.Contains(path, "agentspec") || strings.HasSuffix(path, ".toml") && strings.Contains(path, "agent"):
			entries = append(entries, CheckEntry{TaskID: taskID, Kind: CheckIndexedRef, Target: path, Status: "pending"})
		default:
			entries = append(entries, CheckEntry{TaskID: taskID, Kind: CheckExists, Target: path, Status: "pending"})
		}
	}
	return entries
}

// Append writes new pending entries to the queue file.
func (q *QueueFile) Append(ctx context.Context, entries []CheckEntry) error {
	if len(entries) == 0 {
		return nil
	}
	existing, err := q.readLines()
	if err != nil {
		return err
	}
	for _, e := range entries {
		existing = append(existing, renderEntry(e))
	}
	return util.AtomicWriteFile(q.path, []byte(strings.Join(existing, "\n")+"\n"), 0o644)
}

// HasTask reports whether any entry already exists for taskID, so a
// repeated pulse does not enqueue the same deploy's directives twice.
func (q *QueueFile) HasTask(taskID string) (bool, error) {
	lines, err := q.readLines()
	if err != nil {
		return false, err
	}
	for _, line := range lines {
		if e, ok := parseEntry(line); ok && e.TaskID == taskID {
			return true, nil
		}
	}
	return false, nil
}

// Pending returns every entry still marked pending.
func (q *QueueFile) Pending() ([]CheckEntry, error) {
	lines, err := q.readLines()
	if err != nil {
		return nil, err
	}
	var pending []CheckEntry
	for _, line := range lines {
		e, ok := parseEntry(line)
		if ok && e.Status == "pending" {
			pending = append(pending, e)
		}
	}
	return pending, nil
}

// MarkResult rewrites one entry's status to pass or fail.
func (q *QueueFile) MarkResult(ctx context.Context, taskID, target string, passed bool) error {
	lines, err := q.readLines()
	if err != nil {
		return err
	}
	status := "fail"
	if passed {
		status = "pass"
	}
	for i, line := range lines {
		e, ok := parseEntry(line)
		if !ok || e.TaskID != taskID || e.Target != target {
			continue
		}
		e.Status = status
		lines[i] = renderEntry(e)
	}
	return util.AtomicWriteFile(q.path, []byte(strings.Join(lines, "\n")+"\n"), 0o644)
}

func (q *QueueFile) readLines() ([]string, error) {
	f, err := ReadFile(q.path)
	if err != nil {
		return []string{fmt.Sprintf("# verification queue, generated %s", time.Now().UTC().Format(time.RFC3339))}, nil
	}
	return f.Lines, nil
}

func renderEntry(e CheckEntry) string {
	return fmt.Sprintf("check:%s %s %s status:%s", e.Kind, e.TaskID, e.Target, e.Status)
}

func parseEntry(line string) (CheckEntry, bool) {
	if !strings.HasPrefix(line, "check:") {
		return CheckEntry{}, false
	}
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return CheckEntry{}, false
	}
	kind, _ := strings.CutPrefix(fields[0], "check:")
	status, _ := strings.CutPrefix(fields[3], "status:")
	return CheckEntry{Kind: CheckKind(kind), TaskID: fields[1], Target: fields[2], Status: status}, true
}
