// Package ghclient wraps google/go-github for the PR-lifecycle state
// snapshot, merge, and draft-PR-creation operations PRLifecycleEngine and
// Evaluator need, with cenkalti/backoff retrying transient GitHub errors.
package ghclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"
)

// ErrNotFound is returned when a referenced PR does not exist.
var ErrNotFound = errors.New("ghclient: not found")

// Client wraps *github.Client with the retry policy the evaluator's PR
// attribution guard and the PR-lifecycle engine share.
type Client struct {
	gh *github.Client
}

// New builds a Client authenticated with a personal access token / app
// installation token.
func New(ctx context.Context, token string) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &Client{gh: github.NewClient(oauth2.NewClient(ctx, ts))}
}

// PRInfo is the PR state snapshot the merge gate and status-rollup checks
// need (§4.8).
type PRInfo struct {
	Number         int
	Title          string
	HeadBranch     string
	BaseBranch     string
	State          string
	Draft          bool
	Mergeable      bool
	MergeableState string
	ReviewDecision string
	ChecksPassing  bool
	HTMLURL        string
}

// PRRef identifies a pull request by owner/repo/number.
type PRRef struct {
	Owner  string
	Repo   string
	Number int
}

var prURLPattern = regexp.MustCompile(`github\.com/([^/]+)/([^/]+)/pull/(\d+)`)

// ParsePRURL extracts owner/repo/number from a GitHub PR URL.
func ParsePRURL(url string) (PRRef, error) {
	m := prURLPattern.FindStringSubmatch(url)
	if m == nil {
		return PRRef{}, fmt.Errorf("ghclient: %q is not a recognizable PR URL", url)
	}
	n, err := strconv.Atoi(m[3])
	if err != nil {
		return PRRef{}, fmt.Errorf("ghclient: parsing PR number in %q: %w", url, err)
	}
	return PRRef{Owner: m[1], Repo: m[2], Number: n}, nil
}

// Snapshot fetches the current state of a pull request plus its
// combined status-check rollup.
func (c *Client) Snapshot(ctx context.Context, ref PRRef) (*PRInfo, error) {
	pr, err := withRetry(ctx, func() (*github.PullRequest, error) {
		pr, resp, err := c.gh.PullRequests.Get(ctx, ref.Owner, ref.Repo, ref.Number)
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, backoff.Permanent(fmt.Errorf("%w: %s/%s#%d", ErrNotFound, ref.Owner, ref.Repo, ref.Number))
		}
		return pr, err
	})
	if err != nil {
		return nil, err
	}

	info := &PRInfo{
		Number:         pr.GetNumber(),
		Title:          pr.GetTitle(),
		HeadBranch:     pr.GetHead().GetRef(),
		BaseBranch:     pr.GetBase().GetRef(),
		State:          pr.GetState(),
		Draft:          pr.GetDraft(),
		Mergeable:      pr.GetMergeable(),
		MergeableState: pr.GetMergeableState(),
		HTMLURL:        pr.GetHTMLURL(),
	}

	reviewDecision, err := c.reviewDecision(ctx, ref)
	if err == nil {
		info.ReviewDecision = reviewDecision
	}

	status, _, err := c.gh.Repositories.GetCombinedStatus(ctx, ref.Owner, ref.Repo, pr.GetHead().GetSHA(), nil)
	if err == nil {
		info.ChecksPassing = status.GetState() == "success"
	}

	return info, nil
}

// reviewDecision approximates GitHub's review-decision field (not exposed
// on the REST PR object) from the most recent review per reviewer.
func (c *Client) reviewDecision(ctx context.Context, ref PRRef) (string, error) {
	reviews, _, err := c.gh.PullRequests.ListReviews(ctx, ref.Owner, ref.Repo, ref.Number, nil)
	if err != nil {
		return "", err
	}

	latestByReviewer := map[string]string{}
	for _, r := range reviews {
		latestByReviewer[r.GetUser().GetLogin()] = r.GetState()
	}

	sawApproval := false
	for _, state := range latestByReviewer {
		switch state {
		case "CHANGES_REQUESTED":
			return "CHANGES_REQUESTED", nil
		case "APPROVED":
			sawApproval = true
		}
	}
	if sawApproval {
		return "APPROVED", nil
	}
	return "REVIEW_REQUIRED", nil
}

// ValidateAttribution implements the evaluator's PR attribution guard
// (§4.6): a PR is only attributed to a task if its title or head branch
// contains the task ID as a word-boundary match.
func (c *Client) ValidateAttribution(ctx context.Context, url, taskID string) (bool, error) {
	ref, err := ParsePRURL(url)
	if err != nil {
		return false, err
	}
	info, err := c.Snapshot(ctx, ref)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return matchesTaskID(info.Title, taskID) || matchesTaskID(info.HeadBranch, taskID), nil
}

func matchesTaskID(text, taskID string) bool {
	if taskID == "" {
		return false
	}
	pattern := `(^|[^A-Za-z0-9_.])` + regexp.QuoteMeta(taskID) + `($|[^A-Za-z0-9_.])`
	matched, _ := regexp.MatchString(pattern, text)
	return matched
}

// CreateDraft opens a draft pull request, used for the orphan-PR
// adoption scenario (§8 S4): a worker leaves commits on a branch with no
// PR, so the evaluator's git-evidence heuristic creates one on its behalf.
func (c *Client) CreateDraft(ctx context.Context, owner, repoName, title, head, base, body string) (*PRInfo, error) {
	draft := true
	pr, err := withRetry(ctx, func() (*github.PullRequest, error) {
		pr, _, err := c.gh.PullRequests.Create(ctx, owner, repoName, &github.NewPullRequest{
			Title: &title,
			Head:  &head,
			Base:  &base,
			Body:  &body,
			Draft: &draft,
		})
		return pr, err
	})
	if err != nil {
		return nil, err
	}
	return &PRInfo{
		Number:     pr.GetNumber(),
		Title:      pr.GetTitle(),
		HeadBranch: pr.GetHead().GetRef(),
		BaseBranch: pr.GetBase().GetRef(),
		State:      pr.GetState(),
		Draft:      pr.GetDraft(),
		HTMLURL:    pr.GetHTMLURL(),
	}, nil
}

// Merge merges a pull request with the given commit message, used by the
// PR-lifecycle engine's merge step once the merge gate is satisfied.
func (c *Client) Merge(ctx context.Context, ref PRRef, commitMessage string) error {
	_, err := withRetry(ctx, func() (*github.PullRequestMergeResult, error) {
		result, _, err := c.gh.PullRequests.Merge(ctx, ref.Owner, ref.Repo, ref.Number, commitMessage, nil)
		return result, err
	})
	return err
}

// DismissStaleReview dismisses a CHANGES_REQUESTED review once its
// concerns have been addressed, part of the review-triage step (§4.8).
func (c *Client) DismissStaleReview(ctx context.Context, ref PRRef, reviewID int64, message string) error {
	_, err := withRetry(ctx, func() (*github.PullRequestReview, error) {
		review, _, err := c.gh.PullRequests.DismissReview(ctx, ref.Owner, ref.Repo, ref.Number, reviewID, &github.PullRequestReviewDismissalRequest{
			Message: &message,
		})
		return review, err
	})
	return err
}

// IssueRef identifies a GitHub issue by owner/repo/number. Pull requests
// share the issue comment endpoint, so a PRRef converts directly.
type IssueRef struct {
	Owner  string
	Repo   string
	Number int
}

var issueURLPattern = regexp.MustCompile(`github\.com/([^/]+)/([^/]+)/issues/(\d+)`)

// ParseIssueURL extracts owner/repo/number from a GitHub issue URL.
func ParseIssueURL(url string) (IssueRef, error) {
	m := issueURLPattern.FindStringSubmatch(url)
	if m == nil {
		return IssueRef{}, fmt.Errorf("ghclient: %q is not a recognizable issue URL", url)
	}
	n, err := strconv.Atoi(m[3])
	if err != nil {
		return IssueRef{}, fmt.Errorf("ghclient: parsing issue number in %q: %w", url, err)
	}
	return IssueRef{Owner: m[1], Repo: m[2], Number: n}, nil
}

// ListChangedFiles returns the file paths a pull request touches, the
// basis for the verification queue's check directives (§4.9).
func (c *Client) ListChangedFiles(ctx context.Context, ref PRRef) ([]string, error) {
	opts := &github.ListOptions{PerPage: 100}
	var paths []string
	for {
		var nextPage int
		files, err := withRetry(ctx, func() ([]*github.CommitFile, error) {
			files, resp, err := c.gh.PullRequests.ListFiles(ctx, ref.Owner, ref.Repo, ref.Number, opts)
			if resp != nil {
				nextPage = resp.NextPage
			}
			return files, err
		})
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			paths = append(paths, f.GetFilename())
		}
		if nextPage == 0 {
			break
		}
		opts.Page = nextPage
	}
	return paths, nil
}

// CheckAuth confirms the configured token still authenticates, for
// Dispatcher's preflight chain (§4.5) and `pulse doctor`.
func (c *Client) CheckAuth(ctx context.Context) error {
	_, err := withRetry(ctx, func() (*github.User, error) {
		user, _, err := c.gh.Users.Get(ctx, "")
		return user, err
	})
	return err
}

// PostIssueComment posts a comment on an issue or PR, used to notify a
// linked issue when a task goes blocked or failed (§7).
func (c *Client) PostIssueComment(ctx context.Context, ref IssueRef, body string) error {
	_, err := withRetry(ctx, func() (*github.IssueComment, error) {
		comment, _, err := c.gh.Issues.CreateComment(ctx, ref.Owner, ref.Repo, ref.Number, &github.IssueComment{
			Body: &body,
		})
		return comment, err
	})
	return err
}

func withRetry[T any](ctx context.Context, op func() (T, error)) (T, error) {
	wrapped := func() (T, error) {
		v, err := op()
		if err != nil && !isRetryableStatus(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	return backoff.Retry(ctx, wrapped,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(4),
	)
}

func isRetryableStatus(err error) bool {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		code := ghErr.Response.StatusCode
		return code == http.StatusTooManyRequests || code >= 500
	}
	var rl *github.RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	return strings.Contains(err.Error(), "timeout")
}
