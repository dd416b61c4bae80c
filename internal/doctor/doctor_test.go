package doctor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestStoreReachableCheck_MissingFile(t *testing.T) {
	check := &StoreReachableCheck{BaseCheck: BaseCheck{CheckName: "store-reachable"}}
	dc := &Context{DBPath: filepath.Join(t.TempDir(), "missing.db")}

	result := check.Run(context.Background(), dc)
	if result.Status != StatusError {
		t.Fatalf("Status = %v, want error", result.Status)
	}
}

func TestGitHubAuthCheck_NoTokenWarns(t *testing.T) {
	check := &GitHubAuthCheck{BaseCheck: BaseCheck{CheckName: "github-auth"}}
	result := check.Run(context.Background(), &Context{})
	if result.Status != StatusWarning {
		t.Fatalf("Status = %v, want warning", result.Status)
	}
}

func TestGitHubAuthCheck_PingFailureIsError(t *testing.T) {
	check := &GitHubAuthCheck{BaseCheck: BaseCheck{CheckName: "github-auth"}}
	dc := &Context{
		GitHubToken: "tok",
		GitHubPing:  func(ctx context.Context) error { return errors.New("401") },
	}
	result := check.Run(context.Background(), dc)
	if result.Status != StatusError {
		t.Fatalf("Status = %v, want error", result.Status)
	}
}

func TestGitHubAuthCheck_PingSuccessIsOK(t *testing.T) {
	check := &GitHubAuthCheck{BaseCheck: BaseCheck{CheckName: "github-auth"}}
	dc := &Context{
		GitHubToken: "tok",
		GitHubPing:  func(ctx context.Context) error { return nil },
	}
	result := check.Run(context.Background(), dc)
	if result.Status != StatusOK {
		t.Fatalf("Status = %v, want ok", result.Status)
	}
}

func TestLockFreeCheck_NoLockFileIsOK(t *testing.T) {
	check := &LockFreeCheck{BaseCheck: BaseCheck{CheckName: "lock-free"}}
	dc := &Context{SupervisorDir: t.TempDir()}
	result := check.Run(context.Background(), dc)
	if result.Status != StatusOK {
		t.Fatalf("Status = %v, want ok", result.Status)
	}
}

func TestRun_CollectsEveryCheck(t *testing.T) {
	dc := &Context{SupervisorDir: t.TempDir()}
	checks := []Check{
		&LockFreeCheck{BaseCheck: BaseCheck{CheckName: "lock-free"}},
		&GitHubAuthCheck{BaseCheck: BaseCheck{CheckName: "github-auth"}},
	}
	results := Run(context.Background(), dc, checks)
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
}
