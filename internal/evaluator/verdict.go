package evaluator

import "fmt"

// VerdictKind is the closed set of verdict shapes the RetryController
// branches on (§4.6).
type VerdictKind string

const (
	Complete VerdictKind = "complete"
	Retry    VerdictKind = "retry"
	Blocked  VerdictKind = "blocked"
	Failed   VerdictKind = "failed"
)

// Verdict is the Evaluator's single output per task per pulse: exactly
// one verdict of the documented shape, per the tier-order invariant.
type Verdict struct {
	Kind   VerdictKind
	Reason string
	PRURL  string
}

// String renders a verdict as the `kind:detail` string RetryController
// and the proof log persist.
func (v Verdict) String() string {
	if v.Reason == "" {
		return string(v.Kind)
	}
	return fmt.Sprintf("%s:%s", v.Kind, v.Reason)
}

func complete(reason string) Verdict { return Verdict{Kind: Complete, Reason: reason} }
func completeWithPR(reason, prURL string) Verdict {
	return Verdict{Kind: Complete, Reason: reason, PRURL: prURL}
}
func retry(reason string) Verdict   { return Verdict{Kind: Retry, Reason: reason} }
func blocked(reason string) Verdict { return Verdict{Kind: Blocked, Reason: reason} }
func failed(reason string) Verdict  { return Verdict{Kind: Failed, Reason: reason} }
