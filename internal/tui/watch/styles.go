package watch

import "github.com/charmbracelet/lipgloss"

var (
	TitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("4")).Padding(0, 1)
	HeaderStyle = lipgloss.NewStyle().Padding(0, 1)
	PanelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	StatusBar   = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))

	statusColor = map[string]lipgloss.Color{
		"queued":       lipgloss.Color("243"),
		"dispatched":   lipgloss.Color("33"),
		"running":      lipgloss.Color("33"),
		"evaluating":   lipgloss.Color("220"),
		"retrying":     lipgloss.Color("214"),
		"blocked":      lipgloss.Color("208"),
		"complete":     lipgloss.Color("42"),
		"deployed":     lipgloss.Color("42"),
		"verified":     lipgloss.Color("42"),
		"verify_failed": lipgloss.Color("196"),
		"failed":       lipgloss.Color("196"),
		"cancelled":    lipgloss.Color("240"),
	}
)

// StatusStyle returns the color-coded style for a task status string.
func StatusStyle(status string) lipgloss.Style {
	c, ok := statusColor[status]
	if !ok {
		c = lipgloss.Color("15")
	}
	return lipgloss.NewStyle().Foreground(c)
}
