package pulse

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/relaytrain/pulse/internal/config"
	"github.com/relaytrain/pulse/internal/store"
)

func TestSingleInstanceGuard_SecondAcquireFails(t *testing.T) {
	dir := t.TempDir()

	first := newSingleInstanceGuard(dir)
	acquired, err := first.TryAcquire()
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	if !acquired {
		t.Fatal("expected the first guard to acquire the lock")
	}
	defer first.Release()

	second := newSingleInstanceGuard(dir)
	acquired, err = second.TryAcquire()
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	if acquired {
		t.Fatal("expected the second guard to observe the lock already held")
	}
}

func TestSingleInstanceGuard_ReleaseAllowsReacquire(t *testing.T) {
	dir := t.TempDir()

	first := newSingleInstanceGuard(dir)
	if acquired, err := first.TryAcquire(); err != nil || !acquired {
		t.Fatalf("first TryAcquire: acquired=%v err=%v", acquired, err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	second := newSingleInstanceGuard(dir)
	acquired, err := second.TryAcquire()
	if err != nil {
		t.Fatalf("second TryAcquire: %v", err)
	}
	if !acquired {
		t.Fatal("expected the lock to be free after Release")
	}
	second.Release()
}

func TestDriver_Run_SkipsWhenLockHeld(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open(context.Background(), filepath.Join(dir, "pulse.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer s.Close()

	held := newSingleInstanceGuard(dir)
	acquired, err := held.TryAcquire()
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	if !acquired {
		t.Fatal("expected to acquire the lock first")
	}
	defer held.Release()

	cfg := &config.Config{SupervisorDir: dir}
	d := New(cfg, s, nil, nil, nil, nil, nil, nil, nil, zap.NewNop())

	report, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.SkippedLocked {
		t.Fatal("expected Run to observe the held lock and skip")
	}
}
