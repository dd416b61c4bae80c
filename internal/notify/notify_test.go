package notify_test

import (
	"context"
	"testing"

	"github.com/relaytrain/pulse/internal/ghclient"
	"github.com/relaytrain/pulse/internal/notify"
	"github.com/relaytrain/pulse/internal/store"
)

type fakeCommenter struct {
	calls []string
}

func (f *fakeCommenter) PostIssueComment(ctx context.Context, ref ghclient.IssueRef, body string) error {
	f.calls = append(f.calls, ref.Owner+"/"+ref.Repo+"#"+body)
	return nil
}

func TestNotify_SkipsWithoutIssueURL(t *testing.T) {
	fc := &fakeCommenter{}
	n := notify.New(fc)
	task := &store.Task{ID: "t1"}

	if err := n.Notify(context.Background(), task, "blocked", "needs human"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(fc.calls) != 0 {
		t.Fatalf("expected no comment posted, got %v", fc.calls)
	}
}

func TestNotify_PostsWhenIssueLinked(t *testing.T) {
	fc := &fakeCommenter{}
	n := notify.New(fc)
	task := &store.Task{ID: "t1", IssueURL: "https://github.com/acme/svc/issues/9"}

	if err := n.Notify(context.Background(), task, "blocked", "needs human"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(fc.calls) != 1 {
		t.Fatalf("expected one comment posted, got %v", fc.calls)
	}
}

func TestNotify_NilNotifierIsNoop(t *testing.T) {
	var n *notify.Notifier
	task := &store.Task{ID: "t1", IssueURL: "https://github.com/acme/svc/issues/9"}
	if err := n.Notify(context.Background(), task, "blocked", "x"); err != nil {
		t.Fatalf("nil Notifier.Notify should be a no-op, got: %v", err)
	}
}

func TestNotify_NilClientIsNoop(t *testing.T) {
	n := notify.New(nil)
	task := &store.Task{ID: "t1", IssueURL: "https://github.com/acme/svc/issues/9"}
	if err := n.Notify(context.Background(), task, "blocked", "x"); err != nil {
		t.Fatalf("Notify with nil client should be a no-op, got: %v", err)
	}
}
