// Package evaluator classifies a finished worker's outcome from log,
// process, and git/GitHub evidence into one of the four verdict shapes
// the RetryController consumes (§4.6). Evaluation proceeds in strict
// tier order, returning at the first match — later tiers never run once
// an earlier one has produced a verdict.
package evaluator

import (
	"regexp"
	"strconv"
	"strings"
)

// startupSentinel must match supervisor.startupSentinel; duplicated here
// (rather than importing internal/supervisor) because evaluator parses
// logs as plain text evidence, not as a supervisor collaborator.
const startupSentinel = "PULSE_WORKER_STARTED"

const tailScanLines = 20
const arbitrationTailLines = 200

// ParsedLog is a structured decomposition of a worker's log file: the
// dispatch-metadata prologue ProcessSupervisor writes before spawning,
// the worker's own stdout/stderr body, and the `EXIT:<code>` trailer the
// wrapper script appends on exit.
type ParsedLog struct {
	Prologue map[string]string
	Body     string
	ExitCode *int
	HasExit  bool
}

var exitTrailerPattern = regexp.MustCompile(`(?m)^EXIT:(-?\d+)\s*$`)

// ParseLog splits a raw log file into its prologue, body, and exit
// trailer. The prologue is a contiguous run of "key: value" lines at the
// top of the file, matching writePrologue's format.
func ParseLog(raw string) *ParsedLog {
	lines := strings.Split(raw, "\n")
	prologue := map[string]string{}

	bodyStart := 0
	for i, line := range lines {
		key, val, ok := strings.Cut(line, ": ")
		if !ok || strings.TrimSpace(line) == "" {
			bodyStart = i
			break
		}
		prologue[strings.TrimSpace(key)] = strings.TrimSpace(val)
		bodyStart = i + 1
	}

	body := strings.Join(lines[bodyStart:], "\n")

	parsed := &ParsedLog{Prologue: prologue, Body: body}

	if m := exitTrailerPattern.FindStringSubmatch(body); m != nil {
		code, err := strconv.Atoi(m[1])
		if err == nil {
			parsed.ExitCode = &code
			parsed.HasExit = true
		}
		parsed.Body = exitTrailerPattern.ReplaceAllString(body, "")
	}

	return parsed
}

// HasStartupSentinel reports whether the worker reached the point where
// ProcessSupervisor's wrapper script confirms it actually started.
func (p *ParsedLog) HasStartupSentinel() bool {
	return strings.Contains(p.Prologue["sentinel"], startupSentinel) || strings.Contains(p.Body, startupSentinel)
}

// SubstantiveLineCount counts non-blank lines in the body, used by tier
// 1.5's "substantive line count is small" heuristic.
func (p *ParsedLog) SubstantiveLineCount() int {
	n := 0
	for _, line := range strings.Split(p.Body, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

// Tail returns the last n non-blank lines of the body, joined by
// newlines — the scan window tiers 1.5 and 2 use to avoid false
// positives from generated content earlier in the log.
func (p *ParsedLog) Tail(n int) string {
	lines := nonBlankLines(p.Body)
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// FinalText returns the worker's final substantive text output: the last
// contiguous block of non-blank lines in the body. Tier 1's sentinel and
// PR-URL extraction reads only this, not the whole log, since the body
// may embed generated content earlier on that merely discusses errors.
func (p *ParsedLog) FinalText() string {
	lines := strings.Split(p.Body, "\n")
	end := len(lines)
	for end > 0 && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	start := end
	for start > 0 && strings.TrimSpace(lines[start-1]) != "" {
		start--
	}
	return strings.Join(lines[start:end], "\n")
}

func nonBlankLines(body string) []string {
	var out []string
	for _, line := range strings.Split(body, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

var prURLPattern = regexp.MustCompile(`https://github\.com/[^/\s]+/[^/\s]+/pull/\d+`)

// ExtractPRURL returns the first GitHub PR URL found in text, or "".
func ExtractPRURL(text string) string {
	return prURLPattern.FindString(text)
}
