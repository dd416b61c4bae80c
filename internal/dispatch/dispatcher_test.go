package dispatch_test

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/relaytrain/pulse/internal/config"
	"github.com/relaytrain/pulse/internal/dispatch"
	"github.com/relaytrain/pulse/internal/router"
	"github.com/relaytrain/pulse/internal/store"
	"github.com/relaytrain/pulse/internal/supervisor"
)

type alwaysHealthy struct{}

func (alwaysHealthy) ProbeHTTP(ctx context.Context, tier config.AgentTier) router.HealthStatus {
	return router.StatusHealthy
}
func (alwaysHealthy) ProbeCLI(ctx context.Context, tier config.AgentTier) router.HealthStatus {
	return router.StatusHealthy
}

func initBareRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test")
	if err := exec.Command("sh", "-c", "echo hi > "+filepath.Join(dir, "f.txt")).Run(); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	run("add", "-A")
	run("commit", "-m", "initial")
	run("remote", "add", "origin", dir)
	run("update-ref", "refs/remotes/origin/main", "main")
	run("symbolic-ref", "refs/remotes/origin/HEAD", "refs/remotes/origin/main")
	return dir
}

func newTestDispatcher(t *testing.T) (*dispatch.Dispatcher, *store.Store) {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(ctx, filepath.Join(t.TempDir(), "pulse.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	cfg := &config.Config{
		Concurrency: config.Concurrency{GlobalMax: 4, BatchBaseDefault: 2},
		Retry:       config.Retry{MaxRetries: 3, MaxEscalation: 2, ClaimStaleAfter: 2 * time.Hour},
	}

	r := router.New(cfg, s, nil, alwaysHealthy{})
	sv := supervisor.New(t.TempDir())

	d := dispatch.New(cfg, s, r, sv)
	return d, s
}

func TestDispatch_SpawnsOnCleanQueuedTask(t *testing.T) {
	ctx := context.Background()
	d, s := newTestDispatcher(t)
	repoDir := initBareRepo(t)

	task := &store.Task{
		ID:          "t1",
		Repository:  repoDir,
		Description: "fix the typo in the README",
		MaxRetries:  3,
		MaxEscalation: 2,
		Model:       "haiku",
	}
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	outcome, err := d.Dispatch(ctx, task)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if outcome.Kind != dispatch.OutcomeSpawned {
		t.Fatalf("Dispatch outcome = %+v, want spawned", outcome)
	}

	got, err := s.GetTask(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != store.StatusRunning {
		t.Fatalf("task status = %s, want running", got.Status)
	}
	if got.WorktreePath == "" {
		t.Fatal("expected worktree path to be recorded")
	}
}

func TestDispatch_RetriesExhaustedFailsTask(t *testing.T) {
	ctx := context.Background()
	d, s := newTestDispatcher(t)
	repoDir := initBareRepo(t)

	task := &store.Task{
		ID:          "t2",
		Repository:  repoDir,
		Description: "anything",
		Retries:     3,
		MaxRetries:  3,
		MaxEscalation: 2,
	}
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	outcome, err := d.Dispatch(ctx, task)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if outcome.Kind != dispatch.OutcomeRetriesExhausted {
		t.Fatalf("Dispatch outcome = %+v, want retries_exhausted", outcome)
	}

	got, err := s.GetTask(ctx, "t2")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != store.StatusFailed {
		t.Fatalf("task status = %s, want failed", got.Status)
	}
}

func TestDispatch_ConcurrencyGateBlocksWhenAtCeiling(t *testing.T) {
	ctx := context.Background()
	d, s := newTestDispatcher(t)
	repoDir := initBareRepo(t)

	// Fill the global ceiling with already-running tasks.
	for i := 0; i < 4; i++ {
		id := "running-" + string(rune('a'+i))
		rt := &store.Task{ID: id, Repository: repoDir, Description: "x", MaxRetries: 3, MaxEscalation: 2}
		if err := s.CreateTask(ctx, rt); err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
		if err := s.UpdateTaskFields(ctx, id, map[string]interface{}{"status": string(store.StatusRunning)}); err != nil {
			t.Fatalf("UpdateTaskFields: %v", err)
		}
	}

	task := &store.Task{ID: "t3", Repository: repoDir, Description: "blocked by concurrency", MaxRetries: 3, MaxEscalation: 2}
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	outcome, err := d.Dispatch(ctx, task)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if outcome.Kind != dispatch.OutcomeConcurrencyLimit {
		t.Fatalf("Dispatch outcome = %+v, want concurrency_limit", outcome)
	}
}
