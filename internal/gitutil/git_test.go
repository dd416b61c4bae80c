package gitutil_test

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/relaytrain/pulse/internal/gitutil"
)

func TestRewriteSSHToHTTPS(t *testing.T) {
	cases := map[string]string{
		"git@github.com:acme/svc.git": "https://github.com/acme/svc.git",
		"git@github.com:acme/svc":     "https://github.com/acme/svc.git",
		"https://github.com/acme/svc.git": "https://github.com/acme/svc.git",
	}
	for in, want := range cases {
		if got := gitutil.RewriteSSHToHTTPS(in); got != want {
			t.Errorf("RewriteSSHToHTTPS(%q) = %q, want %q", in, got, want)
		}
	}
}

func initRepo(t *testing.T) string {
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
	return dir
}

func TestCommitsAhead_ZeroOnFreshClone(t *testing.T) {
	dir := initRepo(t)
	g := gitutil.New(dir)
	ctx := context.Background()

	n, err := g.CommitsAhead(ctx, "HEAD")
	if err != nil {
		t.Fatalf("CommitsAhead: %v", err)
	}
	if n != 0 {
		t.Fatalf("CommitsAhead = %d, want 0", n)
	}
}

func TestHasUncommittedChanges(t *testing.T) {
	dir := initRepo(t)
	g := gitutil.New(dir)
	ctx := context.Background()

	dirty, err := g.HasUncommittedChanges(ctx)
	if err != nil {
		t.Fatalf("HasUncommittedChanges: %v", err)
	}
	if dirty {
		t.Fatal("expected clean worktree immediately after commit")
	}

	if err := exec.Command("sh", "-c", "echo more >> "+filepath.Join(dir, "f.txt")).Run(); err != nil {
		t.Fatalf("modify file: %v", err)
	}
	dirty, err = g.HasUncommittedChanges(ctx)
	if err != nil {
		t.Fatalf("HasUncommittedChanges: %v", err)
	}
	if !dirty {
		t.Fatal("expected dirty worktree after modification")
	}
}
