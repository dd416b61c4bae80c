package retry_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/relaytrain/pulse/internal/config"
	"github.com/relaytrain/pulse/internal/evaluator"
	"github.com/relaytrain/pulse/internal/retry"
	"github.com/relaytrain/pulse/internal/statemachine"
	"github.com/relaytrain/pulse/internal/store"
)

type fakeGate struct {
	pass   bool
	reason string
}

func (f fakeGate) Check(ctx context.Context, task *store.Task) (bool, string, error) {
	return f.pass, f.reason, nil
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "pulse.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedEvaluatingTask(t *testing.T, s *store.Store, id string) *store.Task {
	t.Helper()
	ctx := context.Background()
	task := &store.Task{ID: id, Repository: "acme/svc", Description: "x", MaxRetries: 3, MaxEscalation: 2, Model: "haiku"}
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	for _, to := range []store.TaskStatus{store.StatusDispatched, store.StatusRunning, store.StatusEvaluating} {
		if err := statemachine.Transition(ctx, s, id, to, statemachine.Fields{Reason: "seed"}); err != nil {
			t.Fatalf("seed transition to %s: %v", to, err)
		}
	}
	got, err := s.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	return got
}

func TestDecide_CompleteNoGate(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	cfg := &config.Config{}
	c := retry.New(cfg, s, nil)

	task := seedEvaluatingTask(t, s, "t1")
	v := evaluator.Verdict{Kind: evaluator.Complete, Reason: "full_loop_complete", PRURL: "https://github.com/acme/svc/pull/1"}

	out, err := c.Decide(ctx, task, nil, v)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if out.Escalated {
		t.Fatal("did not expect escalation with no gate")
	}

	got, err := s.GetTask(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != store.StatusComplete {
		t.Fatalf("status = %s, want complete", got.Status)
	}
	if got.PRURL == "" {
		t.Fatal("expected pr_url to be recorded")
	}
}

func TestDecide_CompleteGateFailsEscalates(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	cfg := &config.Config{}
	c := retry.New(cfg, s, fakeGate{pass: false, reason: "no_pr"})

	task := seedEvaluatingTask(t, s, "t2")
	v := evaluator.Verdict{Kind: evaluator.Complete, Reason: "full_loop_complete"}

	out, err := c.Decide(ctx, task, nil, v)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if !out.Escalated || out.NewTier != config.TierSonnet {
		t.Fatalf("expected escalation to sonnet, got %+v", out)
	}

	got, err := s.GetTask(ctx, "t2")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != store.StatusQueued {
		t.Fatalf("status = %s, want queued", got.Status)
	}
	if got.Model != string(config.TierSonnet) {
		t.Fatalf("model = %s, want sonnet", got.Model)
	}
	if got.EscalationDepth != 1 {
		t.Fatalf("escalation_depth = %d, want 1", got.EscalationDepth)
	}
}

func TestDecide_RetryRequeues(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	cfg := &config.Config{}
	c := retry.New(cfg, s, nil)

	task := seedEvaluatingTask(t, s, "t3")
	v := evaluator.Verdict{Kind: evaluator.Retry, Reason: "rate_limited"}

	_, err := c.Decide(ctx, task, nil, v)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}

	got, err := s.GetTask(ctx, "t3")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != store.StatusQueued {
		t.Fatalf("status = %s, want queued", got.Status)
	}
	if got.Retries != 1 {
		t.Fatalf("retries = %d, want 1", got.Retries)
	}
}

func TestDecide_RetryEnvironmentDoesNotConsumeBudget(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	cfg := &config.Config{}
	c := retry.New(cfg, s, nil)

	task := seedEvaluatingTask(t, s, "t4")
	v := evaluator.Verdict{Kind: evaluator.Retry, Reason: "worker_never_started:no_sentinel"}

	out, err := c.Decide(ctx, task, nil, v)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if out.FailureMode != retry.ModeEnvironment {
		t.Fatalf("failure mode = %s, want ENVIRONMENT", out.FailureMode)
	}

	got, err := s.GetTask(ctx, "t4")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Retries != 0 {
		t.Fatalf("retries = %d, want 0 (environment failures do not consume budget)", got.Retries)
	}
	if got.Status != store.StatusEvaluating {
		t.Fatalf("status = %s, want evaluating (left for a later pulse)", got.Status)
	}
}

func TestClassifyFailureMode(t *testing.T) {
	cases := map[string]retry.FailureMode{
		"rate_limited":        retry.ModeTransient,
		"out_of_memory":       retry.ModeResource,
		"worker_never_started:no_sentinel": retry.ModeEnvironment,
		"auth_error":          retry.ModeBlocked,
		"ambiguous_ai_unavailable": retry.ModeAmbiguous,
		"some_unknown_reason": retry.ModeLogic,
	}
	for reason, want := range cases {
		if got := retry.ClassifyFailureMode(reason); got != want {
			t.Errorf("ClassifyFailureMode(%q) = %s, want %s", reason, got, want)
		}
	}
}
