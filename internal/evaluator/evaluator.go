package evaluator

import (
	"context"
	"os"
	"regexp"
	"strings"

	"github.com/relaytrain/pulse/internal/advisor"
	"github.com/relaytrain/pulse/internal/ghclient"
	"github.com/relaytrain/pulse/internal/gitutil"
	"github.com/relaytrain/pulse/internal/store"
	"github.com/relaytrain/pulse/internal/supervisor"
)

// Evaluator determines a finished task's outcome from its log, its
// worker process, and git/GitHub evidence, in the strict tier order
// §4.6 documents.
type Evaluator struct {
	supervisor *supervisor.Supervisor
	gh         *ghclient.Client
	advisor    advisor.Advisor
}

// New builds an Evaluator. gh and adv may be nil: PR attribution and
// tier-3 arbitration degrade gracefully (unvalidated PR URLs are
// cleared; arbitration defaults to retry:ambiguous_ai_unavailable).
func New(sv *supervisor.Supervisor, gh *ghclient.Client, adv advisor.Advisor) *Evaluator {
	if adv == nil {
		adv = advisor.Deterministic{}
	}
	return &Evaluator{supervisor: sv, gh: gh, advisor: adv}
}

// Evaluate classifies a task's finished worker, returning exactly one
// verdict. Each tier below presumes the prior tiers did not match.
func (e *Evaluator) Evaluate(ctx context.Context, task *store.Task) Verdict {
	if v, ok := e.tier0Infrastructure(task); ok {
		return v
	}

	raw, err := os.ReadFile(task.LogPath)
	if err != nil {
		return failed("log_file_unreadable")
	}
	parsed := ParseLog(string(raw))

	if strings.TrimSpace(parsed.Body) == "" {
		return failed("log_file_empty")
	}

	if !parsed.HasStartupSentinel() && parsed.SubstantiveLineCount() < 5 {
		if startupErr := extractStartupError(parsed.Body); startupErr != "" {
			return failed("worker_never_started:" + startupErr)
		}
		return failed("worker_never_started:no_sentinel")
	}

	exitCode := 0
	if parsed.ExitCode != nil {
		exitCode = *parsed.ExitCode
	}
	finalText := parsed.FinalText()

	if v, ok := e.tier1Signals(ctx, task, finalText, exitCode); ok {
		return v
	}

	if exitCode == 0 {
		if v, ok := tier1_5BackendErrors(parsed); ok {
			return v
		}
		if v, ok := tier1_75Obsolete(finalText); ok {
			return v
		}
	} else if v, ok := tier2ErrorPatterns(parsed, exitCode); ok {
		return v
	}

	if v, ok := e.tier2_5GitEvidence(ctx, task); ok {
		return v
	}

	return e.tier3Arbitration(ctx, task, parsed)
}

// tier0Infrastructure implements the infra-diagnostic checks that run
// before the log is even read as worker output.
func (e *Evaluator) tier0Infrastructure(task *store.Task) (Verdict, bool) {
	if task.LogPath == "" {
		detail := "no_log_path_in_db"
		if task.SessionHandle != "" {
			detail += ":worker_pid_" + task.SessionHandle + "_" + aliveness(e.supervisor, task)
		}
		return failed(detail), true
	}

	if _, err := os.Stat(task.LogPath); err != nil {
		detail := "log_file_missing"
		if task.SessionHandle == "" {
			detail += ":no_pid_file"
		} else {
			detail += ":worker_pid_" + task.SessionHandle + "_dead"
		}
		return failed(detail), true
	}

	return Verdict{}, false
}

func aliveness(sv *supervisor.Supervisor, task *store.Task) string {
	if sv != nil && sv.IsAlive(supervisor.SessionHandle(task.SessionHandle)) {
		return "alive"
	}
	return "dead"
}

var startupErrorPattern = regexp.MustCompile(`(?i)(command not found|permission denied|no such file or directory|authentication failed)`)

func extractStartupError(body string) string {
	m := startupErrorPattern.FindString(body)
	if m == "" {
		return ""
	}
	return strings.ReplaceAll(strings.ToLower(m), " ", "_")
}

// tier1Signals recognises the worker's completion sentinels in its final
// text output.
func (e *Evaluator) tier1Signals(ctx context.Context, task *store.Task, finalText string, exitCode int) (Verdict, bool) {
	prURL := e.validatedPRURL(ctx, task, ExtractPRURL(finalText))

	switch {
	case strings.Contains(finalText, "FULL_LOOP_COMPLETE"):
		return completeWithPR("full_loop_complete", prURL), true
	case strings.Contains(finalText, "VERIFY_COMPLETE"):
		return completeWithPR("verify_complete", prURL), true
	case strings.Contains(finalText, "VERIFY_INCOMPLETE"):
		if prURL != "" {
			return completeWithPR("verify_incomplete", prURL), true
		}
		return retry("verify_incomplete_no_pr"), true
	case strings.Contains(finalText, "VERIFY_NOT_STARTED"):
		if prURL != "" {
			return completeWithPR("verify_not_started", prURL), true
		}
		return retry("verify_not_started_needs_full"), true
	case strings.Contains(finalText, "TASK_COMPLETE") && exitCode == 0:
		return completeWithPR("task_complete", prURL), true
	}

	if prURL != "" && exitCode == 0 && !hasNegativeSignal(finalText) {
		return completeWithPR("pr_detected", prURL), true
	}

	return Verdict{}, false
}

var negativeSignalPattern = regexp.MustCompile(`(?i)(BLOCKED:|FAILED:|cannot proceed)`)

func hasNegativeSignal(text string) bool {
	return negativeSignalPattern.MatchString(text)
}

// validatedPRURL applies the PR attribution guard (§4.6): an asserted PR
// URL is only kept if GitHub confirms its title or head branch names the
// task. Unvalidated URLs are cleared rather than attributed.
func (e *Evaluator) validatedPRURL(ctx context.Context, task *store.Task, url string) string {
	if url == "" {
		return ""
	}
	if e.gh == nil {
		return ""
	}
	if _, err := ghclient.ParsePRURL(url); err != nil {
		return ""
	}
	ok, err := e.gh.ValidateAttribution(ctx, url, task.ID)
	if err != nil || !ok {
		return ""
	}
	return url
}

var backendErrorTokens = regexp.MustCompile(`(?i)(internal server error|service unavailable|upstream connect error|overloaded_error|insufficient_quota)`)
var billingTokens = regexp.MustCompile(`(?i)(billing|credits exhausted|payment required|insufficient_quota)`)

// tier1_5BackendErrors distinguishes a terminal billing failure from a
// transient backend quota error when the worker exited 0 with no
// completion signal and a short, tail-only error tail.
func tier1_5BackendErrors(parsed *ParsedLog) (Verdict, bool) {
	if parsed.SubstantiveLineCount() >= 40 {
		return Verdict{}, false
	}
	tail := parsed.Tail(tailScanLines)
	if !backendErrorTokens.MatchString(tail) {
		return Verdict{}, false
	}
	if billingTokens.MatchString(tail) {
		return blocked("billing_credits_exhausted"), true
	}
	return retry("backend_quota_error"), true
}

var obsoleteTokens = regexp.MustCompile(`(?i)(already (done|complete|implemented)|no changes (are )?needed|nothing to do)`)

func tier1_75Obsolete(finalText string) (Verdict, bool) {
	if obsoleteTokens.MatchString(finalText) {
		return complete("task_obsolete"), true
	}
	return Verdict{}, false
}

var (
	authErrorPattern    = regexp.MustCompile(`(?i)(permission denied|authentication failed|401 unauthorized|403 forbidden)`)
	mergeConflictPattern = regexp.MustCompile(`(?i)(merge conflict|conflict markers|automatic merge failed)`)
	oomPattern          = regexp.MustCompile(`(?i)(out of memory|oom.?killed|cannot allocate memory)`)
	rateLimitPattern    = regexp.MustCompile(`(?i)(rate.?limit|429 too many requests)`)
	timeoutPattern      = regexp.MustCompile(`(?i)(timed? ?out|deadline exceeded|context deadline)`)
	backendInfraPattern = regexp.MustCompile(`(?i)(internal server error|service unavailable|upstream connect error|overloaded_error)`)
)

// tier2ErrorPatterns scans the log tail for known error signatures when
// the worker exited non-zero.
func tier2ErrorPatterns(parsed *ParsedLog, exitCode int) (Verdict, bool) {
	switch exitCode {
	case 130:
		return retry("interrupted_sigint"), true
	case 137:
		return retry("killed_sigkill"), true
	case 143:
		return retry("terminated_sigterm"), true
	}

	tail := parsed.Tail(tailScanLines)
	switch {
	case authErrorPattern.MatchString(tail):
		return blocked("auth_error"), true
	case mergeConflictPattern.MatchString(tail):
		return blocked("merge_conflict"), true
	case oomPattern.MatchString(tail):
		return blocked("out_of_memory"), true
	case rateLimitPattern.MatchString(tail):
		return retry("rate_limited"), true
	case timeoutPattern.MatchString(tail):
		return retry("timeout"), true
	case backendInfraPattern.MatchString(tail):
		return retry("backend_infrastructure_error"), true
	}
	return Verdict{}, false
}

// tier2_5GitEvidence inspects the worktree for commits or uncommitted
// changes when log evidence was inconclusive, including the orphan-PR
// adoption path (§8 S4).
func (e *Evaluator) tier2_5GitEvidence(ctx context.Context, task *store.Task) (Verdict, bool) {
	if task.WorktreePath == "" || task.Branch == "" {
		return Verdict{}, false
	}
	g := gitutil.New(task.WorktreePath)

	base, err := g.DefaultBranch(ctx)
	if err != nil {
		return Verdict{}, false
	}
	ahead, err := g.CommitsAhead(ctx, "origin/"+base)
	if err != nil {
		return Verdict{}, false
	}

	if ahead > 0 {
		if task.PRURL != "" {
			return completeWithPR("git_evidence", task.PRURL), true
		}
		if e.gh != nil {
			ref, parseErr := repoOwnerName(task.Repository)
			if parseErr == nil {
				pr, createErr := e.gh.CreateDraft(ctx, ref.owner, ref.name,
					task.ID+": "+task.Description, task.Branch, base,
					"Automatically adopted by pulse: worker left committed work with no PR.")
				if createErr == nil {
					return completeWithPR("git_evidence", pr.HTMLURL), true
				}
			}
		}
		return complete("task_only"), true
	}

	dirty, err := g.HasUncommittedChanges(ctx)
	if err == nil && dirty {
		return retry("work_in_progress"), true
	}

	return Verdict{}, false
}

type ownerRepo struct{ owner, name string }

var repoSlugPattern = regexp.MustCompile(`github\.com[:/]([^/]+)/([^/.]+)`)

func repoOwnerName(repository string) (ownerRepo, error) {
	m := repoSlugPattern.FindStringSubmatch(repository)
	if m == nil {
		return ownerRepo{}, ghclient.ErrNotFound
	}
	return ownerRepo{owner: m[1], name: m[2]}, nil
}

const arbitrationSystemPrompt = `You are arbitrating an ambiguous autonomous-coding-worker outcome. ` +
	`Respond with exactly one line of the shape complete:<detail>, retry:<reason>, blocked:<reason>, or failed:<reason>.`

// tier3Arbitration ships the log tail and task description to a cheap
// model for a single-line verdict when every deterministic tier failed
// to reach a conclusion.
func (e *Evaluator) tier3Arbitration(ctx context.Context, task *store.Task, parsed *ParsedLog) Verdict {
	prompt := "Task: " + task.Description + "\n\nWorker log tail:\n" + parsed.Tail(arbitrationTailLines)

	response, err := e.advisor.Arbitrate(ctx, arbitrationSystemPrompt, prompt)
	if err != nil {
		return retry("ambiguous_ai_unavailable")
	}

	kind, reason, ok := strings.Cut(strings.TrimSpace(response), ":")
	if !ok {
		return retry("ambiguous_ai_unavailable")
	}
	switch VerdictKind(kind) {
	case Complete:
		return complete(reason)
	case Retry:
		return retry(reason)
	case Blocked:
		return blocked(reason)
	case Failed:
		return failed(reason)
	default:
		return retry("ambiguous_ai_unavailable")
	}
}
