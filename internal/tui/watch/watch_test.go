package watch

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/relaytrain/pulse/internal/store"
)

type fakeSource struct {
	tasks []*store.Task
	err   error
}

func (f *fakeSource) ListRecentTasks(ctx context.Context, limit int) ([]*store.Task, error) {
	return f.tasks, f.err
}

func TestToRows_SortsNewestFirst(t *testing.T) {
	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	tasks := []*store.Task{
		{ID: "t1", Status: store.StatusQueued, UpdatedAt: older},
		{ID: "t2", Status: store.StatusRunning, UpdatedAt: newer},
	}
	rows := toRows(tasks)
	if rows[0].ID != "t2" {
		t.Fatalf("rows[0].ID = %s, want t2 (most recently updated)", rows[0].ID)
	}
}

func TestModel_Poll_PopulatesRowsOnSuccess(t *testing.T) {
	src := &fakeSource{tasks: []*store.Task{{ID: "t1", Status: store.StatusQueued, UpdatedAt: time.Now()}}}
	m := New(src)

	msg := m.poll()()
	got, ok := msg.(rowsMsg)
	if !ok {
		t.Fatalf("poll() produced %T, want rowsMsg", msg)
	}
	if got.err != nil {
		t.Fatalf("unexpected error: %v", got.err)
	}
	if len(got.rows) != 1 || got.rows[0].ID != "t1" {
		t.Fatalf("rows = %+v", got.rows)
	}
}

func TestModel_Update_RowsMsgAppliesToState(t *testing.T) {
	m := New(&fakeSource{})
	m.width, m.height = 80, 24

	updated, _ := m.Update(rowsMsg{rows: []Row{{ID: "t1", Status: "queued"}}})
	mm := updated.(*Model)
	if len(mm.rows) != 1 {
		t.Fatalf("rows = %+v, want 1 entry", mm.rows)
	}
}

func TestModel_Update_QuitKeyReturnsQuitCmd(t *testing.T) {
	m := New(&fakeSource{})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected a command for the quit key")
	}
}
