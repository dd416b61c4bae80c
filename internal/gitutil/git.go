// Package gitutil wraps the git CLI the way the core consumes it: worktree
// management, remote rewriting, and the evidence queries the Evaluator's
// git heuristic and the Dispatcher's repo-shape preflight need. Adapted
// from the teacher's internal/git package, trimmed to what this system
// actually calls (no gastown-specific hooks-path/refspec configuration).
package gitutil

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// GitError wraps a failed git invocation with its captured output, so
// callers can diagnose without re-running the command.
type GitError struct {
	Command string
	Args    []string
	Stdout  string
	Stderr  string
	Err     error
}

func (e *GitError) Error() string {
	return fmt.Sprintf("git %s %s: %v\nstderr: %s", e.Command, strings.Join(e.Args, " "), e.Err, strings.TrimSpace(e.Stderr))
}

func (e *GitError) Unwrap() error { return e.Err }

// Git runs git commands rooted at a working directory.
type Git struct {
	workDir string
}

// New returns a Git wrapper operating in workDir.
func New(workDir string) *Git {
	return &Git{workDir: workDir}
}

func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.String(), &GitError{Command: "git", Args: args, Stdout: stdout.String(), Stderr: stderr.String(), Err: err}
	}
	return stdout.String(), nil
}

// CurrentBranch returns the checked-out branch name.
func (g *Git) CurrentBranch(ctx context.Context) (string, error) {
	out, err := g.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	return strings.TrimSpace(out), err
}

// DefaultBranch returns the remote's default branch (e.g. main).
func (g *Git) DefaultBranch(ctx context.Context) (string, error) {
	out, err := g.run(ctx, "symbolic-ref", "refs/remotes/origin/HEAD")
	if err != nil {
		return "main", nil //nolint:nilerr // best-effort fallback when no remote HEAD is set
	}
	return strings.TrimPrefix(strings.TrimSpace(out), "refs/remotes/origin/"), nil
}

// HasUncommittedChanges reports whether the worktree has any modified,
// staged, or untracked files.
func (g *Git) HasUncommittedChanges(ctx context.Context) (bool, error) {
	out, err := g.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// CommitsAhead counts commits on the current branch not reachable from base.
func (g *Git) CommitsAhead(ctx context.Context, base string) (int, error) {
	out, err := g.run(ctx, "rev-list", "--count", base+"..HEAD")
	if err != nil {
		return 0, err
	}
	n, convErr := strconv.Atoi(strings.TrimSpace(out))
	if convErr != nil {
		return 0, convErr
	}
	return n, nil
}

// RemoteURL returns the fetch URL for a remote (default "origin").
func (g *Git) RemoteURL(ctx context.Context, remote string) (string, error) {
	out, err := g.run(ctx, "remote", "get-url", remote)
	return strings.TrimSpace(out), err
}

// SetRemoteURL rewrites a remote's URL, used for the SSH->HTTPS preflight
// rewrite: a detached worker cannot access SSH keys (§4.5 step 7).
func (g *Git) SetRemoteURL(ctx context.Context, remote, url string) error {
	_, err := g.run(ctx, "remote", "set-url", remote, url)
	return err
}

var sshURLPattern = regexp.MustCompile(`^git@github\.com:([^/]+)/(.+?)(\.git)?$`)

// RewriteSSHToHTTPS converts a git@github.com:owner/repo(.git) URL to
// its https://github.com/owner/repo.git equivalent. Non-SSH URLs are
// returned unchanged.
func RewriteSSHToHTTPS(url string) string {
	m := sshURLPattern.FindStringSubmatch(url)
	if m == nil {
		return url
	}
	return fmt.Sprintf("https://github.com/%s/%s.git", m[1], m[2])
}

// Fetch updates refs from a remote.
func (g *Git) Fetch(ctx context.Context, remote string) error {
	_, err := g.run(ctx, "fetch", remote)
	return err
}

// Checkout switches to an existing branch.
func (g *Git) Checkout(ctx context.Context, branch string) error {
	_, err := g.run(ctx, "checkout", branch)
	return err
}

// PullRebase pulls a branch with rebase, used by TaskFileSync's
// pull-rebase retry loop to tolerate concurrent worker pushes.
func (g *Git) PullRebase(ctx context.Context, remote, branch string) error {
	_, err := g.run(ctx, "pull", "--rebase", remote, branch)
	return err
}

// Push pushes the current branch to a remote.
func (g *Git) Push(ctx context.Context, remote, branch string) error {
	_, err := g.run(ctx, "push", remote, branch)
	return err
}

// AddAll stages every change in the worktree.
func (g *Git) AddAll(ctx context.Context) error {
	_, err := g.run(ctx, "add", "-A")
	return err
}

// Commit commits staged changes with message.
func (g *Git) Commit(ctx context.Context, message string) error {
	_, err := g.run(ctx, "commit", "-m", message)
	return err
}

// Worktree describes one entry from `git worktree list --porcelain`.
type Worktree struct {
	Path   string
	Branch string
	Commit string
}

// WorktreeAddFromRef creates a new worktree at path, on a new branch
// forked from ref — the Dispatcher's "fresh base-branch snapshot" (§4.5
// step 8).
func (g *Git) WorktreeAddFromRef(ctx context.Context, path, branch, ref string) error {
	_, err := g.run(ctx, "worktree", "add", "-b", branch, path, ref)
	return err
}

// WorktreeRemove deletes a worktree, forcing removal of any uncommitted
// changes it may still contain.
func (g *Git) WorktreeRemove(ctx context.Context, path string) error {
	_, err := g.run(ctx, "worktree", "remove", "--force", path)
	return err
}

// WorktreePrune cleans up administrative files for worktrees whose
// directories were removed out-of-band.
func (g *Git) WorktreePrune(ctx context.Context) error {
	_, err := g.run(ctx, "worktree", "prune")
	return err
}

// IsAncestor reports whether commit `a` is an ancestor of `b`.
func (g *Git) IsAncestor(ctx context.Context, a, b string) (bool, error) {
	_, err := g.run(ctx, "merge-base", "--is-ancestor", a, b)
	if err == nil {
		return true, nil
	}
	if gitErr, ok := err.(*GitError); ok {
		if exitErr, ok := gitErr.Err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return false, nil
		}
	}
	return false, err
}

// LogContains scans the repository's merged history for a commit message
// or branch reference containing needle, used by the Dispatcher's
// prior-completion guard (§4.5 step 2).
func (g *Git) LogContains(ctx context.Context, needle string) (bool, error) {
	out, err := g.run(ctx, "log", "--oneline", "--grep="+needle)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}
