// Package cmd provides the pulse CLI's command tree.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pulse",
	Short: "Pulse - autonomous DevOps supervisor for AI coding workers",
	Long: `Pulse drives AI coding workers through a full task lifecycle:
pickup, dispatch, evaluation, retry/escalation, PR lifecycle, merge,
deploy, and post-deploy verification.

Each invocation of 'pulse run' performs one bounded, idempotent pass.
'pulse daemon' repeats that pass on a schedule.`,
}

const (
	GroupOperate = "operate"
	GroupDiag    = "diag"
)

func init() {
	cobra.EnablePrefixMatching = true
	rootCmd.AddGroup(
		&cobra.Group{ID: GroupOperate, Title: "Operate:"},
		&cobra.Group{ID: GroupDiag, Title: "Diagnose:"},
	)
	rootCmd.PersistentFlags().String("config", "", "path to pulse.toml (no file is read when unset; defaults and PULSE_* environment variables apply)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
}

// SetVersion sets the version string main reports via `pulse --version`,
// resolved at build time via -ldflags.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the root command and returns a process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), err)
		return 1
	}
	return 0
}
