package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var daemonSchedule string

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	Short:   "Run pulses on a schedule until interrupted",
	GroupID: GroupOperate,
	RunE:    runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&daemonSchedule, "schedule", "@every 1m", "cron schedule (standard 5-field or @every syntax)")
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	c := cron.New()
	_, err = c.AddFunc(daemonSchedule, func() {
		report, err := a.driver.Run(cmd.Context())
		if err != nil {
			a.log.Error("pulse run failed", zap.Error(err))
			return
		}
		if report.SkippedLocked {
			a.log.Debug("pulse run skipped, lock held")
			return
		}
		a.log.Info("pulse run complete",
			zap.Int("dispatched", report.Dispatched),
			zap.Int("evaluated", report.Evaluated),
			zap.Int("batches_completed", report.BatchesCompleted),
		)
	})
	if err != nil {
		return fmt.Errorf("parsing schedule %q: %w", daemonSchedule, err)
	}

	c.Start()
	a.log.Info("pulse daemon started", zap.String("schedule", daemonSchedule))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	ctx := c.Stop()
	<-ctx.Done()
	a.log.Info("pulse daemon stopped")
	return nil
}
