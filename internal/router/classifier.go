package router

import (
	"strings"

	"github.com/relaytrain/pulse/internal/config"
)

// Explicit tags outrank keyword matching; keep this table in sync with
// the task-file annotation grammar in §6 (#trivial|#simple|#complex).
var explicitTagTier = map[string]config.AgentTier{
	"trivial": config.TierHaiku,
	"simple":  config.TierHaiku,
	"complex": config.TierOpus,
}

var opusKeywords = []string{
	"architecture", "redesign", "module-level refactor", "security audit",
	"migration", "breaking change", "concurrency bug", "race condition",
}

var sonnetKeywords = []string{
	"refactor", "add endpoint", "new feature", "integration", "schema change",
}

var haikuKeywords = []string{
	"typo", "rename", "bump version", "update dependency", "format",
	"lint", "function refactor",
}

// ClassifyComplexity is a deterministic, I/O-free keyword classifier
// over a task's description and tags (§4.4). Explicit tags take
// precedence; ambiguous matches between "module-level refactor" and
// "function refactor" resolve to the higher tier.
func ClassifyComplexity(description string, tags []string) config.AgentTier {
	for _, tag := range tags {
		if tier, ok := explicitTagTier[strings.ToLower(tag)]; ok {
			return tier
		}
	}

	text := strings.ToLower(description)

	matchedOpus := containsAny(text, opusKeywords)
	matchedHaiku := containsAny(text, haikuKeywords)
	matchedSonnet := containsAny(text, sonnetKeywords)

	if matchedOpus {
		return config.TierOpus
	}
	// "module-level refactor" (opus keyword) vs "function refactor"
	// (haiku keyword): the ambiguous-precedence rule resolves ties
	// between haiku and sonnet matches toward the higher tier too.
	if matchedSonnet {
		return config.TierSonnet
	}
	if matchedHaiku {
		return config.TierHaiku
	}

	return config.TierSonnet // hard-coded default (§4.4 step 5)
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
