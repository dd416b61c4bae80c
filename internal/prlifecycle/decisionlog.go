package prlifecycle

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/relaytrain/pulse/internal/store"
	"github.com/relaytrain/pulse/internal/util"
)

// writeDecisionLog persists one decision as a Markdown file under the
// configured log directory, giving an operator a human-readable audit
// trail independent of the proof log.
func (e *Engine) writeDecisionLog(task *store.Task, decision Decision, snap *Snapshot) error {
	if e.cfg.LogDir == "" {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Decision for %s\n\n", task.ID)
	fmt.Fprintf(&b, "- Gathered: %s\n", snap.GatheredAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Status: %s\n", task.Status)
	fmt.Fprintf(&b, "- Action: %s\n", decision.Action)
	fmt.Fprintf(&b, "- Reason: %s\n\n", decision.Reason)

	if snap.PR != nil {
		fmt.Fprintf(&b, "## PR #%d\n\n", snap.PR.Number)
		fmt.Fprintf(&b, "- Title: %s\n", snap.PR.Title)
		fmt.Fprintf(&b, "- State: %s (draft=%v)\n", snap.PR.State, snap.PR.Draft)
		fmt.Fprintf(&b, "- Mergeable: %v (%s)\n", snap.PR.Mergeable, snap.PR.MergeableState)
		fmt.Fprintf(&b, "- Review: %s\n", snap.PR.ReviewDecision)
		fmt.Fprintf(&b, "- Checks passing: %v\n\n", snap.PR.ChecksPassing)
	}

	fmt.Fprintf(&b, "## Worker\n\n- Alive: %v\n- Worktree exists: %v\n\n", snap.WorkerAlive, snap.WorktreeExists)

	b.WriteString("## Recent transitions\n\n")
	for _, t := range snap.RecentTransitions {
		fmt.Fprintf(&b, "- %s -> %s: %s\n", t.FromState, t.ToState, t.Reason)
	}

	name := fmt.Sprintf("decision-%s-%s.md", task.ID, uuid.NewString()[:8])
	return util.AtomicWriteFile(filepath.Join(e.cfg.LogDir, name), []byte(b.String()), 0o644)
}
