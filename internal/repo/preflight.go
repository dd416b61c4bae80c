// Package repo implements the Dispatcher's repo-shape preflight (§4.5
// step 7): rewriting an SSH remote to HTTPS (a detached worker cannot
// access SSH keys) and verifying GitHub authentication is usable.
// Adapted from the teacher's internal/rig clone-error-recovery idiom,
// generalized from "recover from a failed SSH clone" to "preflight an
// existing worktree before handing it to a worker".
package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/relaytrain/pulse/internal/gitutil"
)

var ErrAuthUnusable = errors.New("repo: github authentication unusable")

// Result records what the preflight did, for the dispatch-metadata
// prologue the ProcessSupervisor writes to the worker's log.
type Result struct {
	OriginalRemote string
	EffectiveRemote string
	Rewritten      bool
}

// Preflight rewrites an SSH origin remote to HTTPS if necessary and
// confirms the remote is reachable with the configured credentials.
func Preflight(ctx context.Context, g *gitutil.Git, ghAuthCheck func(ctx context.Context) error) (*Result, error) {
	original, err := g.RemoteURL(ctx, "origin")
	if err != nil {
		return nil, fmt.Errorf("repo: reading origin remote: %w", err)
	}

	rewritten := gitutil.RewriteSSHToHTTPS(original)
	result := &Result{OriginalRemote: original, EffectiveRemote: rewritten}

	if rewritten != original {
		if err := g.SetRemoteURL(ctx, "origin", rewritten); err != nil {
			return nil, fmt.Errorf("repo: rewriting origin to https: %w", err)
		}
		result.Rewritten = true
	}

	if ghAuthCheck != nil {
		if err := ghAuthCheck(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAuthUnusable, err)
		}
	}

	return result, nil
}
