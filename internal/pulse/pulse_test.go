package pulse_test

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/relaytrain/pulse/internal/config"
	"github.com/relaytrain/pulse/internal/pulse"
	"github.com/relaytrain/pulse/internal/statemachine"
	"github.com/relaytrain/pulse/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "pulse.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{SupervisorDir: t.TempDir()}
}

func seedTask(t *testing.T, s *store.Store, id string, through ...store.TaskStatus) {
	t.Helper()
	ctx := context.Background()
	task := &store.Task{ID: id, Repository: "acme/svc", Description: "x", MaxRetries: 3, MaxEscalation: 2, Model: "haiku"}
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	for _, to := range through {
		if err := statemachine.Transition(ctx, s, id, to, statemachine.Fields{Reason: "seed"}); err != nil {
			t.Fatalf("seed transition to %s: %v", to, err)
		}
	}
}

func TestDriver_Run_EmptyStoreIsNoop(t *testing.T) {
	s := openTestStore(t)
	cfg := testConfig(t)
	d := pulse.New(cfg, s, nil, nil, nil, nil, nil, nil, nil, zap.NewNop())

	report, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.SkippedLocked {
		t.Fatal("did not expect the lock to be held yet")
	}
	if report.Dispatched != 0 || report.Evaluated != 0 || report.BatchesCompleted != 0 {
		t.Fatalf("expected an empty store to produce a no-op pulse, got %+v", report)
	}
}

func TestDriver_Run_CompletesBatchOnceAllTasksTerminal(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seedTask(t, s, "t1", store.StatusDispatched, store.StatusRunning, store.StatusEvaluating, store.StatusComplete)
	seedTask(t, s, "t2", store.StatusDispatched, store.StatusRunning, store.StatusEvaluating, store.StatusFailed)

	if err := s.CreateBatch(ctx, &store.Batch{ID: "b1", Name: "batch-1"}); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if err := s.AddTaskToBatch(ctx, "b1", "t1", 0); err != nil {
		t.Fatalf("AddTaskToBatch: %v", err)
	}
	if err := s.AddTaskToBatch(ctx, "b1", "t2", 1); err != nil {
		t.Fatalf("AddTaskToBatch: %v", err)
	}

	cfg := testConfig(t)
	d := pulse.New(cfg, s, nil, nil, nil, nil, nil, nil, nil, zap.NewNop())

	report, err := d.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.BatchesCompleted != 1 {
		t.Fatalf("BatchesCompleted = %d, want 1", report.BatchesCompleted)
	}

	b, err := s.GetBatch(ctx, "b1")
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if b.Status != store.BatchComplete {
		t.Fatalf("batch status = %s, want complete", b.Status)
	}
}

func TestDriver_Run_LeavesBatchOpenWithNonTerminalTask(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seedTask(t, s, "t1", store.StatusDispatched, store.StatusRunning, store.StatusEvaluating, store.StatusComplete)
	seedTask(t, s, "t2", store.StatusDispatched) // still non-terminal

	if err := s.CreateBatch(ctx, &store.Batch{ID: "b1", Name: "batch-1"}); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if err := s.AddTaskToBatch(ctx, "b1", "t1", 0); err != nil {
		t.Fatalf("AddTaskToBatch: %v", err)
	}
	if err := s.AddTaskToBatch(ctx, "b1", "t2", 1); err != nil {
		t.Fatalf("AddTaskToBatch: %v", err)
	}

	cfg := testConfig(t)
	d := pulse.New(cfg, s, nil, nil, nil, nil, nil, nil, nil, zap.NewNop())

	report, err := d.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.BatchesCompleted != 0 {
		t.Fatalf("BatchesCompleted = %d, want 0 while a task is still non-terminal", report.BatchesCompleted)
	}
}

