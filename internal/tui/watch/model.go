// Package watch implements `pulse watch`, a live terminal feed over the
// task table, adapted from the teacher's feed TUI: same bubbletea model
// shape and viewport-per-panel layout, polling the store instead of
// listening on an event channel (pulse has no event bus).
package watch

import (
	"context"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/relaytrain/pulse/internal/store"
)

const pollInterval = 2 * time.Second
const maxRows = 200

// TaskSource is the narrow slice of *store.Store the feed needs, so
// tests can substitute a fake without a real database.
type TaskSource interface {
	ListRecentTasks(ctx context.Context, limit int) ([]*store.Task, error)
}

// Row is one rendered line of the feed.
type Row struct {
	ID        string
	Status    string
	Repo      string
	Retries   int
	UpdatedAt time.Time
}

// Model is the feed's bubbletea model.
type Model struct {
	source TaskSource

	width, height int
	rows          []Row
	err           error

	viewport viewport.Model
	keys     KeyMap
	help     help.Model
	showHelp bool
}

// New builds a feed model polling source every pollInterval.
func New(source TaskSource) *Model {
	h := help.New()
	h.ShowAll = false
	return &Model{
		source:   source,
		viewport: viewport.New(0, 0),
		keys:     DefaultKeyMap(),
		help:     h,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.poll(), tea.SetWindowTitle("pulse watch"))
}

type rowsMsg struct {
	rows []Row
	err  error
}

type tickMsg time.Time

func (m *Model) poll() tea.Cmd {
	source := m.source
	return func() tea.Msg {
		tasks, err := source.ListRecentTasks(context.Background(), maxRows)
		if err != nil {
			return rowsMsg{err: err}
		}
		return rowsMsg{rows: toRows(tasks)}
	}
}

func toRows(tasks []*store.Task) []Row {
	rows := make([]Row, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, Row{ID: t.ID, Status: string(t.Status), Repo: t.Repository, Retries: t.Retries, UpdatedAt: t.UpdatedAt})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].UpdatedAt.After(rows[j].UpdatedAt) })
	return rows
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			m.help.ShowAll = m.showHelp
			return m, nil
		case key.Matches(msg, m.keys.Refresh):
			return m, m.poll()
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = m.width - 2
		m.viewport.Height = m.height - 4
		m.viewport.SetContent(m.renderRows())
		return m, nil

	case rowsMsg:
		m.err = msg.err
		if msg.err == nil {
			m.rows = msg.rows
		}
		m.viewport.SetContent(m.renderRows())
		return m, tick()

	case tickMsg:
		return m, m.poll()
	}
	return m, nil
}

func (m *Model) View() string {
	return m.render()
}
