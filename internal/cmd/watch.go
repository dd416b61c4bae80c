package cmd

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/relaytrain/pulse/internal/tui/watch"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Live feed of task status",
	GroupID: GroupDiag,
	RunE:    runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	model := watch.New(a.store)
	_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}
