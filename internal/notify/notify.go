// Package notify posts a human-readable comment on a task's linked
// GitHub issue when it goes blocked or failed (§7 "user-visible
// behavior"). It is a narrow slice of the teacher's addressed-message
// concept (internal/mail), scoped to the one channel this system
// actually needs rather than the teacher's full delivery/priority model.
package notify

import (
	"context"
	"fmt"

	"github.com/relaytrain/pulse/internal/ghclient"
	"github.com/relaytrain/pulse/internal/store"
)

// IssueCommenter is the subset of ghclient.Client notify depends on,
// kept narrow so callers can fake it in tests.
type IssueCommenter interface {
	PostIssueComment(ctx context.Context, ref ghclient.IssueRef, body string) error
}

// Notifier posts task-status comments to linked GitHub issues.
type Notifier struct {
	gh IssueCommenter
}

// New builds a Notifier. gh may be nil, in which case Notify is a no-op —
// issue notification is an enrichment, not a requirement for a task to
// progress.
func New(gh IssueCommenter) *Notifier {
	return &Notifier{gh: gh}
}

// Notify posts a comment on task.IssueURL reporting its new status, if
// the task has a linked issue and a client is configured. A missing or
// unparseable issue URL is not an error: most tasks have none.
func (n *Notifier) Notify(ctx context.Context, task *store.Task, status, note string) error {
	if n == nil || n.gh == nil || task.IssueURL == "" {
		return nil
	}
	ref, err := ghclient.ParseIssueURL(task.IssueURL)
	if err != nil {
		return nil
	}
	return n.gh.PostIssueComment(ctx, ref, renderComment(task, status, note))
}

func renderComment(task *store.Task, status, note string) string {
	body := fmt.Sprintf("Task `%s` is now **%s**.", task.ID, status)
	if note != "" {
		body += "\n\n" + note
	}
	return body
}
