package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relaytrain/pulse/internal/config"
	"github.com/relaytrain/pulse/internal/doctor"
	"github.com/relaytrain/pulse/internal/ghclient"
)

var doctorCmd = &cobra.Command{
	Use:     "doctor",
	Short:   "Check that pulse's environment is ready to run",
	GroupID: GroupDiag,
	RunE:    runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	dc := &doctor.Context{
		SupervisorDir: cfg.SupervisorDir,
		DBPath:        cfg.DBPath,
		TaskFilePath:  taskFilePath(cfg),
		GitHubToken:   cfg.GitHubToken,
	}
	if cfg.GitHubToken != "" {
		gh := ghclient.New(cmd.Context(), cfg.GitHubToken)
		dc.GitHubPing = gh.CheckAuth
	}

	results := doctor.Run(cmd.Context(), dc, doctor.Default())

	failures := 0
	for _, r := range results {
		symbol := "OK"
		switch r.Status {
		case doctor.StatusWarning:
			symbol = "WARN"
		case doctor.StatusError:
			symbol = "FAIL"
			failures++
		}
		fmt.Fprintf(cmd.OutOrStdout(), "[%-4s] %-20s %s\n", symbol, r.Name, r.Message)
		if r.FixHint != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "         fix: %s\n", r.FixHint)
		}
	}
	if failures > 0 {
		cmd.SilenceUsage = true
		return fmt.Errorf("doctor found %d failing check(s)", failures)
	}
	return nil
}

func taskFilePath(cfg *config.Config) string {
	if cfg.TaskFile.RepoDir == "" {
		return ""
	}
	return cfg.TaskFile.RepoDir + "/" + cfg.TaskFile.RelPath
}
