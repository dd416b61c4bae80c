package statemachine_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/relaytrain/pulse/internal/statemachine"
	"github.com/relaytrain/pulse/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pulse.db")
	s, err := store.Open(ctx, path)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedTask(t *testing.T, s *store.Store, id string) {
	t.Helper()
	err := s.CreateTask(context.Background(), &store.Task{
		ID:          id,
		Repository:  "acme/svc",
		Description: "test task",
		MaxRetries:  3,
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
}

func TestTransition_AllowedPath(t *testing.T) {
	s := openTestStore(t)
	seedTask(t, s, "t1")
	ctx := context.Background()

	steps := []store.TaskStatus{
		store.StatusDispatched, store.StatusRunning, store.StatusEvaluating, store.StatusComplete,
	}
	for _, to := range steps {
		if err := statemachine.Transition(ctx, s, "t1", to, statemachine.Fields{Reason: "test"}); err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
	}

	task, err := s.GetTask(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Status != store.StatusComplete {
		t.Fatalf("status = %s, want complete", task.Status)
	}
	if task.CompletedAt == nil {
		t.Fatal("completed_at not set on terminal transition")
	}

	log, err := s.StateLog(ctx, "t1")
	if err != nil {
		t.Fatalf("StateLog: %v", err)
	}
	if len(log) != len(steps) {
		t.Fatalf("state_log has %d rows, want %d", len(log), len(steps))
	}
}

func TestTransition_RejectsIllegalJump(t *testing.T) {
	s := openTestStore(t)
	seedTask(t, s, "t2")
	ctx := context.Background()

	err := statemachine.Transition(ctx, s, "t2", store.StatusMerged, statemachine.Fields{})
	if err == nil {
		t.Fatal("expected illegal transition error, got nil")
	}
}

func TestAllowed_ClosedUnderEnum(t *testing.T) {
	// Every destination named in a transition row must itself be a known
	// status (testable property #2: the matrix is closed under the enum).
	known := map[store.TaskStatus]bool{
		store.StatusQueued: true, store.StatusDispatched: true, store.StatusRunning: true,
		store.StatusEvaluating: true, store.StatusComplete: true, store.StatusRetrying: true,
		store.StatusBlocked: true, store.StatusFailed: true, store.StatusCancelled: true,
		store.StatusPRReview: true, store.StatusReviewTriage: true, store.StatusReviewWaiting: true,
		store.StatusMerging: true, store.StatusMerged: true, store.StatusDeploying: true,
		store.StatusDeployed: true, store.StatusVerifying: true, store.StatusVerified: true,
		store.StatusVerifyFailed: true,
	}
	for from := range known {
		for _, to := range []store.TaskStatus{store.StatusQueued, store.StatusMerged, store.StatusCancelled} {
			if statemachine.Allowed(from, to) && !known[to] {
				t.Fatalf("transition %s -> %s escapes the closed enum", from, to)
			}
		}
	}
}
