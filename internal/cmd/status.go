package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relaytrain/pulse/internal/store"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Print a one-shot summary of task counts by status",
	GroupID: GroupDiag,
	RunE:    runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	tasks, err := a.store.ListRecentTasks(cmd.Context(), 1000)
	if err != nil {
		return err
	}

	counts := map[store.TaskStatus]int{}
	for _, t := range tasks {
		counts[t.Status]++
	}
	for status, n := range counts {
		fmt.Fprintf(cmd.OutOrStdout(), "%-14s %d\n", status, n)
	}
	return nil
}
