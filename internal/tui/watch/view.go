package watch

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func (m *Model) render() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var sections []string
	sections = append(sections, m.renderHeader())
	sections = append(sections, PanelStyle.Width(m.width-2).Render(m.viewport.View()))
	sections = append(sections, m.renderStatusBar())
	if m.showHelp {
		sections = append(sections, m.help.View(m.keys))
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) renderHeader() string {
	title := TitleStyle.Render("pulse watch")
	count := HeaderStyle.Render(fmt.Sprintf("%d tasks", len(m.rows)))
	gap := m.width - lipgloss.Width(title) - lipgloss.Width(count) - 2
	if gap < 1 {
		gap = 1
	}
	return title + strings.Repeat(" ", gap) + count
}

func (m *Model) renderStatusBar() string {
	if m.err != nil {
		return StatusStyle("failed").Render(fmt.Sprintf("poll error: %v", m.err))
	}
	return StatusBar.Render("r refresh · ? help · q quit")
}

func (m *Model) renderRows() string {
	if len(m.rows) == 0 {
		return StatusBar.Render("no tasks yet")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-14s %-13s %-24s %-8s %s\n", "ID", "STATUS", "REPOSITORY", "RETRIES", "UPDATED")
	for _, r := range m.rows {
		status := StatusStyle(r.Status).Render(fmt.Sprintf("%-13s", r.Status))
		fmt.Fprintf(&b, "%-14s %s %-24s %-8d %s\n", r.ID, status, r.Repo, r.Retries, r.UpdatedAt.Format("15:04:05"))
	}
	return b.String()
}
