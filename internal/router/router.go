// Package router maps a task to a concrete model tier, classifies task
// complexity, and probes provider health, per §4.4.
package router

import (
	"context"
	"time"

	"github.com/relaytrain/pulse/internal/config"
	"github.com/relaytrain/pulse/internal/store"
	"github.com/relaytrain/pulse/internal/wispcache"
)

// minSamplesForLearnedTier and minSuccessRate gate the learned-recommendation
// step (§4.4 step 3): "requires >= N samples and >= M% success on a
// cheaper tier".
const (
	minSamplesForLearnedTier = 10
	minSuccessRate           = 0.8
)

// Router resolves tasks to model tiers and checks provider health.
type Router struct {
	cfg   *config.Config
	store *store.Store
	cache *wispcache.Cache
	probe HealthProber
}

// New builds a Router. probe may be nil to use the default two-tier
// HTTP+CLI prober.
func New(cfg *config.Config, s *store.Store, cache *wispcache.Cache, probe HealthProber) *Router {
	if probe == nil {
		probe = defaultProber{}
	}
	return &Router{cfg: cfg, store: s, cache: cache, probe: probe}
}

// AgentDefinition is the subset of an agent's TOML frontmatter the
// router reads to find a declared tier override.
type AgentDefinition struct {
	Role string
	Tier config.AgentTier
}

// ResolveTier implements the precedence order from §4.4:
// (1) explicit task-level override, (2) agent-definition frontmatter,
// (3) a learned recommendation, (4) keyword classification, (5) default.
func (r *Router) ResolveTier(ctx context.Context, task *store.Task, def *AgentDefinition, tags []string) config.AgentTier {
	if task.Model != "" {
		if tier := config.AgentTier(task.Model); isKnownTier(tier) {
			return tier
		}
	}

	if def != nil && def.Tier != "" {
		return def.Tier
	}

	if tier, ok := r.learnedTier(ctx, task.Repository); ok {
		return tier
	}

	return ClassifyComplexity(task.Description, tags)
}

func isKnownTier(t config.AgentTier) bool {
	switch t {
	case config.TierHaiku, config.TierSonnet, config.TierOpus, config.TierContest:
		return true
	default:
		return false
	}
}

// learnedTier inspects historical success-rate samples for a repository
// and, if a cheaper tier clears the sample-size and success-rate bars,
// recommends it over the classifier's guess.
func (r *Router) learnedTier(ctx context.Context, repository string) (config.AgentTier, bool) {
	samples, err := r.store.SuccessPatternSamples(ctx, repository)
	if err != nil {
		return "", false
	}

	for _, s := range samples {
		if s.TotalCount < minSamplesForLearnedTier {
			continue
		}
		rate := float64(s.SuccessCount) / float64(s.TotalCount)
		if rate < minSuccessRate {
			continue
		}
		tier := config.AgentTier(s.Model)
		if tier == config.TierHaiku {
			return tier, true
		}
	}
	return "", false
}

// RoleAgents resolves a role name (e.g. "ci-fixer") to its configured
// base tier, falling back to "default".
func (r *Router) RoleAgents(role string) config.AgentTier {
	if tier, ok := r.cfg.RoleAgents[role]; ok {
		return tier
	}
	return r.cfg.RoleAgents["default"]
}

const healthCacheTTL = 5 * time.Minute

// HealthCheck implements the two-tier probe: a cached HTTP probe of the
// provider's model-listing endpoint, falling back to a short CLI
// invocation when the HTTP probe is inconclusive.
func (r *Router) HealthCheck(ctx context.Context, tier config.AgentTier) HealthStatus {
	cacheKey := "health:" + string(tier)

	var cached cachedHealth
	if r.cache != nil && r.cache.Get(cacheKey, &cached) {
		return cached.Status
	}

	status := r.probe.ProbeHTTP(ctx, tier)
	if status == StatusInconclusive {
		status = r.probe.ProbeCLI(ctx, tier)
	}

	if r.cache != nil && status != StatusInconclusive {
		_ = r.cache.Set(cacheKey, cachedHealth{Status: status}, healthCacheTTL)
	}
	return status
}

type cachedHealth struct {
	Status HealthStatus `json:"status"`
}
