package store

import (
	"context"
	"fmt"
	"time"
)

// CreateTask inserts a new task in StatusQueued.
func (s *Store) CreateTask(ctx context.Context, t *Task) error {
	now := time.Now().UTC()
	t.Status = StatusQueued
	t.CreatedAt = now
	t.UpdatedAt = now

	const q = `INSERT INTO tasks (
		id, repository, description, status, model, retries, max_retries,
		escalation_depth, max_escalation, rebase_attempts, deploy_recoveries,
		session_handle, worktree_path, branch, log_path, pr_url, issue_url,
		diagnostic_of, triage_result, error, created_at, started_at,
		completed_at, updated_at
	) VALUES (
		:id, :repository, :description, :status, :model, :retries, :max_retries,
		:escalation_depth, :max_escalation, :rebase_attempts, :deploy_recoveries,
		:session_handle, :worktree_path, :branch, :log_path, :pr_url, :issue_url,
		:diagnostic_of, :triage_result, :error, :created_at, :started_at,
		:completed_at, :updated_at
	)`
	_, err := s.db.NamedExecContext(ctx, q, t)
	if err != nil {
		return fmt.Errorf("store: create task %s: %w", t.ID, err)
	}
	return nil
}

// GetTask fetches a task by ID.
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	var t Task
	err := s.db.GetContext(ctx, &t, `SELECT * FROM tasks WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return &t, nil
}

// ListTasksByStatus returns every task in one of the given statuses,
// ordered by creation time (oldest first, so the pulse processes tasks
// in roughly FIFO order).
func (s *Store) ListTasksByStatus(ctx context.Context, statuses ...TaskStatus) ([]*Task, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	query, args, err := inClauseQuery(`SELECT * FROM tasks WHERE status IN (%s) ORDER BY created_at ASC`, statuses)
	if err != nil {
		return nil, err
	}
	var tasks []*Task
	if err := s.db.SelectContext(ctx, &tasks, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("store: list tasks by status: %w", err)
	}
	return tasks, nil
}

// ListRecentTasks returns up to limit tasks ordered by most-recently
// updated first, for the live status feed (`pulse watch`).
func (s *Store) ListRecentTasks(ctx context.Context, limit int) ([]*Task, error) {
	var tasks []*Task
	if err := s.db.SelectContext(ctx, &tasks, `SELECT * FROM tasks ORDER BY updated_at DESC LIMIT ?`, limit); err != nil {
		return nil, fmt.Errorf("store: list recent tasks: %w", err)
	}
	return tasks, nil
}

// ListChildren returns tasks whose ID has parentID as a dotted prefix
// (tN.M for parent tN), used by the PR lifecycle's serial-merge guard.
func (s *Store) ListChildren(ctx context.Context, parentID string) ([]*Task, error) {
	var tasks []*Task
	if err := s.db.SelectContext(ctx, &tasks, `SELECT * FROM tasks WHERE id LIKE ? || '.%'`, parentID); err != nil {
		return nil, fmt.Errorf("store: list children of %s: %w", parentID, err)
	}
	return tasks, nil
}

// UpdateTaskFields applies an explicit column-update (not a status
// transition — see statemachine.Transition for those). Used for things
// like recording a triage result or incrementing deploy_recoveries.
func (s *Store) UpdateTaskFields(ctx context.Context, id string, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	fields["updated_at"] = time.Now().UTC()

	setClause := ""
	args := make([]interface{}, 0, len(fields)+1)
	i := 0
	for col, val := range fields {
		if i > 0 {
			setClause += ", "
		}
		setClause += col + " = ?"
		args = append(args, val)
		i++
	}
	args = append(args, id)

	q := fmt.Sprintf(`UPDATE tasks SET %s WHERE id = ?`, setClause)
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("store: update task %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return nil
}

// inClauseQuery expands a `%s` placeholder into a sqlx `IN (?)` expansion
// using sqlx.In semantics via manual building (kept local to avoid an
// extra dependency on the sqlx "In" helper's named-query interplay).
func inClauseQuery[T ~string](tmpl string, values []T) (string, []interface{}, error) {
	placeholders := ""
	args := make([]interface{}, len(values))
	for i, v := range values {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args[i] = string(v)
	}
	return fmt.Sprintf(tmpl, placeholders), args, nil
}
