package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:     "run",
	Short:   "Run one bounded pulse pass",
	GroupID: GroupOperate,
	RunE:    runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.driver.Run(cmd.Context())
	if err != nil {
		a.log.Error("pulse run failed", zap.Error(err))
		return err
	}
	if report.SkippedLocked {
		fmt.Fprintln(cmd.OutOrStdout(), "another pulse instance holds the lock, skipped")
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "dispatched=%d deferred=%d evaluated=%d queued_checks=%d checks_run=%d batches_completed=%d orphans=%d\n",
		report.Dispatched, report.Deferred, report.Evaluated, report.QueuedChecks, report.ChecksRun, report.BatchesCompleted, len(report.Orphans))
	return nil
}
