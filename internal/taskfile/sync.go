package taskfile

import (
	"context"
	"fmt"

	"github.com/relaytrain/pulse/internal/gitutil"
	"github.com/relaytrain/pulse/internal/util"
)

const maxPushRetries = 5

// Sync mediates one task file living in a git working copy, committing
// and pushing each mutation with a pull-rebase retry loop that
// tolerates concurrent worker pushes (§4.9).
type Sync struct {
	path   string
	repo   *gitutil.Git
	remote string
}

// New returns a Sync for the task file at path inside the git working
// copy rooted at repoDir.
func New(repoDir, relPath, remote string) *Sync {
	if remote == "" {
		remote = "origin"
	}
	return &Sync{path: repoDir + "/" + relPath, repo: gitutil.New(repoDir), remote: remote}
}

// Mutate loads the file, applies fn, and if fn reports a change,
// commits and pushes it with up to maxPushRetries pull-rebase attempts.
func (s *Sync) Mutate(ctx context.Context, commitMessage string, fn func(*File) (bool, error)) error {
	f, err := ReadFile(s.path)
	if err != nil {
		return err
	}

	changed, err := fn(f)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	if err := util.AtomicWriteFile(s.path, f.Bytes(), 0o644); err != nil {
		return err
	}

	return s.commitAndPush(ctx, commitMessage)
}

func (s *Sync) commitAndPush(ctx context.Context, message string) error {
	if err := s.repo.AddAll(ctx); err != nil {
		return fmt.Errorf("taskfile: staging: %w", err)
	}
	if err := s.repo.Commit(ctx, message); err != nil {
		return fmt.Errorf("taskfile: commit: %w", err)
	}

	branch, err := s.repo.CurrentBranch(ctx)
	if err != nil {
		return fmt.Errorf("taskfile: current branch: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxPushRetries; attempt++ {
		if err := s.repo.Push(ctx, s.remote, branch); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if err := s.repo.PullRebase(ctx, s.remote, branch); err != nil {
			return fmt.Errorf("taskfile: pull-rebase retry %d: %w", attempt, err)
		}
	}
	return fmt.Errorf("taskfile: push failed after %d pull-rebase retries: %w", maxPushRetries, lastErr)
}
