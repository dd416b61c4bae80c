// Package advisor wraps the single-line AI arbitration call the
// Evaluator's tier 3 and the PRLifecycleEngine's decision grammar both
// need, behind an interface so tests and CI can swap in a deterministic
// fallback instead of hitting a real provider. Adapted from the Haiku
// summarization client in the pack's compact package, generalized from
// issue-summarization to single-line verdict arbitration and rewired
// onto cenkalti/backoff instead of a hand-rolled retry loop.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v5"
)

// ErrUnavailable is returned when arbitration cannot be completed and the
// caller should fall back to its own default verdict.
var ErrUnavailable = errors.New("advisor: unavailable")

// Advisor ships a prompt to a cheap model and returns a single-line
// response, used for ambiguous-outcome arbitration and PR-lifecycle
// judgment calls.
type Advisor interface {
	Arbitrate(ctx context.Context, systemPrompt, prompt string) (string, error)
}

// Anthropic is the production Advisor backed by anthropic-sdk-go.
type Anthropic struct {
	client anthropic.Client
	model  anthropic.Model
}

const defaultArbitrationModel = "claude-3-5-haiku-20241022"

// NewAnthropic builds an Anthropic-backed Advisor. apiKey may be empty if
// ANTHROPIC_API_KEY is set in the environment (the SDK picks it up itself).
func NewAnthropic(apiKey string) *Anthropic {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &Anthropic{
		client: anthropic.NewClient(opts...),
		model:  defaultArbitrationModel,
	}
}

// Arbitrate sends systemPrompt+prompt to the model and returns the first
// text block of its reply, retrying transient failures with backoff.
func (a *Anthropic) Arbitrate(ctx context.Context, systemPrompt, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: 256,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	op := func() (string, error) {
		message, err := a.client.Messages.New(ctx, params)
		if err != nil {
			if isRetryable(err) {
				return "", err
			}
			return "", backoff.Permanent(err)
		}
		if len(message.Content) == 0 {
			return "", backoff.Permanent(fmt.Errorf("%w: empty response", ErrUnavailable))
		}
		block := message.Content[0]
		if block.Type != "text" {
			return "", backoff.Permanent(fmt.Errorf("%w: non-text response block %q", ErrUnavailable, block.Type))
		}
		return strings.TrimSpace(block.Text), nil
	}

	result, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(4),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return result, nil
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}

// Deterministic is a fallback Advisor for CI and tests: no network calls,
// resolves by simple keyword heuristics so the same test suite can run
// without provider credentials (§8's Advisor/deterministic-fallback note).
type Deterministic struct{}

func (Deterministic) Arbitrate(ctx context.Context, systemPrompt, prompt string) (string, error) {
	lower := strings.ToLower(prompt)
	switch {
	case strings.Contains(lower, "pull request") && strings.Contains(lower, "merge"):
		return "merge", nil
	case strings.Contains(lower, "error") || strings.Contains(lower, "fail"):
		return "retry:ambiguous_ai_unavailable", nil
	default:
		return "retry:ambiguous_ai_unavailable", nil
	}
}
