// Package agentspec renders a TOML-described agent template plus a task
// into the final worker command vector and environment, implementing
// the Worker invocation contract (§6). Adapted from the teacher's
// internal/formula TOML workflow-definition idiom.
package agentspec

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/relaytrain/pulse/internal/config"
)

// Template is an agent's on-disk TOML definition.
type Template struct {
	Role             string            `toml:"role"`
	Tier             config.AgentTier  `toml:"tier,omitempty"`
	Binary           string            `toml:"binary"`
	ExtraArgs        []string          `toml:"extra_args,omitempty"`
	OutputFormat     string            `toml:"output_format"`
	EditingRestricted []string         `toml:"editing_restricted"`
	UncertaintyPolicy string           `toml:"uncertainty_policy"`
	EfficiencyProtocol string          `toml:"efficiency_protocol"`
}

// ParseFile loads an agent template from a TOML file.
func ParseFile(path string) (*Template, error) {
	var t Template
	if _, err := toml.DecodeFile(path, &t); err != nil {
		return nil, fmt.Errorf("agentspec: parsing %s: %w", path, err)
	}
	return &t, nil
}

// Default returns a built-in template used when no on-disk override
// exists. Its uncertainty policy names the `BLOCKED: <reason>` exit; it
// carries no other output sentinel.
func Default() *Template {
	return &Template{
		Role:         "default",
		Binary:       "claude",
		OutputFormat: "json",
		EditingRestricted: []string{
			"TASKS.md", "PLAN.md", ".pulse/",
		},
		UncertaintyPolicy:   "If genuinely uncertain whether to proceed, exit with `BLOCKED: <reason>` rather than guessing.",
		EfficiencyProtocol:  "Prefer the smallest correct change; avoid unrelated refactors.",
	}
}

// TaskContext is the per-dispatch information the prompt and environment
// are rendered from.
type TaskContext struct {
	TaskID       string
	Description  string
	Model        string
	VerifyMode   bool
	WorktreeDir  string
	ConfigDir    string
}

// Invocation is a fully rendered worker command plus environment, ready
// for ProcessSupervisor.Spawn.
type Invocation struct {
	Command []string
	Env     []string
	Dir     string
}

// Build renders the template and task context into an Invocation,
// implementing every element the worker invocation contract promises:
// working directory, a single prompt argument, a model identifier, an
// output format, and the headless/isolated-config environment.
func Build(t *Template, tc TaskContext) Invocation {
	prompt := renderPrompt(t, tc)

	cmd := []string{t.Binary}
	cmd = append(cmd, t.ExtraArgs...)
	cmd = append(cmd, "--model", tc.Model, "--output-format", t.OutputFormat, prompt)

	env := append(os.Environ(),
		"PULSE_HEADLESS=1",
		"CLAUDE_CONFIG_DIR="+tc.ConfigDir, // isolated config dir disables heavy MCP indexers per worker
	)

	return Invocation{Command: cmd, Env: env, Dir: tc.WorktreeDir}
}

func renderPrompt(t *Template, tc TaskContext) string {
	mode := "full implementation"
	if tc.VerifyMode {
		mode = "verify mode: first check whether prior work already satisfies this task before making further changes"
	}

	return fmt.Sprintf(
		"Task %s (%s)\n\n%s\n\nDo not edit: %v\n\n%s\n\n%s\n",
		tc.TaskID, mode, tc.Description, t.EditingRestricted, t.UncertaintyPolicy, t.EfficiencyProtocol,
	)
}
