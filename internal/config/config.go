// Package config builds pulse's construction-time configuration object.
// There is deliberately no package-level mutable state here: every
// component receives a *Config explicitly, following the source's
// "global mutable state -> construction-time object" design note.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/relaytrain/pulse/internal/runtimestate"
)

// AgentTier is a symbolic model tier, independent of any one provider's
// concrete model string.
type AgentTier string

const (
	TierHaiku  AgentTier = "haiku"
	TierSonnet AgentTier = "sonnet"
	TierOpus   AgentTier = "opus"
	// TierContest signals the Dispatcher to fan a task out to multiple
	// models via the out-of-core contest subsystem.
	TierContest AgentTier = "CONTEST"
)

// Escalate returns the next tier up, and false if already at the ceiling.
func (t AgentTier) Escalate() (AgentTier, bool) {
	switch t {
	case TierHaiku:
		return TierSonnet, true
	case TierSonnet:
		return TierOpus, true
	default:
		return t, false
	}
}

// Concurrency holds the global and per-batch nested budgets (§5).
type Concurrency struct {
	GlobalMax      int `mapstructure:"global_max"`
	BatchBaseDefault int `mapstructure:"batch_base_default"`
}

// Retry holds the default retry/escalation ceilings applied to new tasks.
type Retry struct {
	MaxRetries     int `mapstructure:"max_retries"`
	MaxEscalation  int `mapstructure:"max_escalation"`
	ClaimStaleAfter time.Duration `mapstructure:"claim_stale_after"`
}

// PRLifecycle bounds the PRLifecycleEngine's per-pulse work.
type PRLifecycle struct {
	MaxActionsPerPulse int  `mapstructure:"max_actions_per_pulse"`
	RequireApproval    bool `mapstructure:"require_approval"`
}

// TaskFile locates the git-backed task list pulse reads and mutates.
type TaskFile struct {
	RepoDir  string `mapstructure:"repo_dir"`  // local clone TaskFileSync operates on
	RelPath  string `mapstructure:"rel_path"`  // task file path within RepoDir
	Remote   string `mapstructure:"remote"`    // git remote name to push/pull against
	QueuePath string `mapstructure:"queue_path"` // verification-queue file, sibling of the task file
}

// Config is the fully resolved, immutable configuration passed to every
// component at construction time.
type Config struct {
	SupervisorDir string
	LogDir        string
	DBPath        string

	Concurrency Concurrency
	Retry       Retry
	PRLifecycle PRLifecycle
	TaskFile    TaskFile

	// RoleAgents maps a role name (e.g. "default", "ci-fixer") to its
	// base tier, mirroring the teacher's TownSettings.RoleAgents map.
	RoleAgents map[string]AgentTier

	GitHubToken   string
	AnthropicKey  string
	DeterministicAdvisor bool
}

// Load builds the Config from defaults, an optional TOML file, and
// environment variables, in that precedence order (env wins).
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	v.SetDefault("concurrency.global_max", 4)
	v.SetDefault("concurrency.batch_base_default", 2)
	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.max_escalation", 2)
	v.SetDefault("retry.claim_stale_after", "2h")
	v.SetDefault("prlifecycle.max_actions_per_pulse", 10)
	v.SetDefault("prlifecycle.require_approval", true)
	v.SetDefault("advisor.deterministic", false)
	v.SetDefault("task_file.rel_path", "tasks.md")
	v.SetDefault("task_file.remote", "origin")
	v.SetDefault("task_file.queue_path", "tasks.verify.md")

	v.SetEnvPrefix("PULSE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", configPath, err)
		}
	}

	claimStale, err := time.ParseDuration(v.GetString("retry.claim_stale_after"))
	if err != nil {
		claimStale = 2 * time.Hour
	}

	roleAgents := map[string]AgentTier{
		"default": TierSonnet,
	}
	for role, tier := range v.GetStringMapString("role_agents") {
		roleAgents[role] = AgentTier(tier)
	}

	cfg := &Config{
		SupervisorDir: runtimestate.SupervisorDir(),
		LogDir:        runtimestate.LogDir(),
		DBPath:        runtimestate.DBPath(),
		Concurrency: Concurrency{
			GlobalMax:        v.GetInt("concurrency.global_max"),
			BatchBaseDefault: v.GetInt("concurrency.batch_base_default"),
		},
		Retry: Retry{
			MaxRetries:      v.GetInt("retry.max_retries"),
			MaxEscalation:   v.GetInt("retry.max_escalation"),
			ClaimStaleAfter: claimStale,
		},
		PRLifecycle: PRLifecycle{
			MaxActionsPerPulse: v.GetInt("prlifecycle.max_actions_per_pulse"),
			RequireApproval:    v.GetBool("prlifecycle.require_approval"),
		},
		TaskFile: TaskFile{
			RepoDir:   v.GetString("task_file.repo_dir"),
			RelPath:   v.GetString("task_file.rel_path"),
			Remote:    v.GetString("task_file.remote"),
			QueuePath: v.GetString("task_file.queue_path"),
		},
		RoleAgents:           roleAgents,
		GitHubToken:          v.GetString("github_token"),
		AnthropicKey:         v.GetString("anthropic_api_key"),
		DeterministicAdvisor: v.GetBool("advisor.deterministic"),
	}

	return cfg, nil
}
