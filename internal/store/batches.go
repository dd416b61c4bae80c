package store

import (
	"context"
	"fmt"
	"time"
)

// CreateBatch inserts a new active batch.
func (s *Store) CreateBatch(ctx context.Context, b *Batch) error {
	now := time.Now().UTC()
	if b.Status == "" {
		b.Status = BatchActive
	}
	b.CreatedAt = now
	b.UpdatedAt = now

	const q = `INSERT INTO batches (
		id, name, base_concurrency, hard_ceiling, load_factor,
		release_on_complete, release_type, skip_quality_gate, status,
		created_at, updated_at
	) VALUES (
		:id, :name, :base_concurrency, :hard_ceiling, :load_factor,
		:release_on_complete, :release_type, :skip_quality_gate, :status,
		:created_at, :updated_at
	)`
	_, err := s.db.NamedExecContext(ctx, q, b)
	if err != nil {
		return fmt.Errorf("store: create batch %s: %w", b.ID, err)
	}
	return nil
}

// GetBatch fetches a batch by ID.
func (s *Store) GetBatch(ctx context.Context, id string) (*Batch, error) {
	var b Batch
	if err := s.db.GetContext(ctx, &b, `SELECT * FROM batches WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, id)
	}
	return &b, nil
}

// AddTaskToBatch appends a task at the given position within a batch.
func (s *Store) AddTaskToBatch(ctx context.Context, batchID, taskID string, position int) error {
	const q = `INSERT INTO batch_tasks (batch_id, task_id, position) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q, batchID, taskID, position)
	if err != nil {
		return fmt.Errorf("store: add task %s to batch %s: %w", taskID, batchID, err)
	}
	return nil
}

// BatchOf returns the batch a task belongs to, or nil if it is unbatched.
func (s *Store) BatchOf(ctx context.Context, taskID string) (*Batch, error) {
	var b Batch
	const q = `SELECT b.* FROM batches b JOIN batch_tasks bt ON bt.batch_id = b.id WHERE bt.task_id = ?`
	err := s.db.GetContext(ctx, &b, q, taskID)
	if err != nil {
		return nil, nil //nolint:nilerr // unbatched is a normal, common case
	}
	return &b, nil
}

// RunningCountInBatch counts tasks currently occupying the batch's
// concurrency budget (dispatched or running).
func (s *Store) RunningCountInBatch(ctx context.Context, batchID string) (int, error) {
	var n int
	const q = `SELECT COUNT(*) FROM tasks t JOIN batch_tasks bt ON bt.task_id = t.id
		WHERE bt.batch_id = ? AND t.status IN ('dispatched', 'running')`
	if err := s.db.GetContext(ctx, &n, q, batchID); err != nil {
		return 0, fmt.Errorf("store: counting running tasks in batch %s: %w", batchID, err)
	}
	return n, nil
}

// RunningCountGlobal counts every task occupying the global concurrency
// budget, across all batches and unbatched tasks.
func (s *Store) RunningCountGlobal(ctx context.Context) (int, error) {
	var n int
	const q = `SELECT COUNT(*) FROM tasks WHERE status IN ('dispatched', 'running')`
	if err := s.db.GetContext(ctx, &n, q); err != nil {
		return 0, fmt.Errorf("store: counting running tasks: %w", err)
	}
	return n, nil
}

// ListActiveBatches returns every batch not yet marked complete or
// cancelled, for the per-pulse retrospective scan.
func (s *Store) ListActiveBatches(ctx context.Context) ([]*Batch, error) {
	const q = `SELECT * FROM batches WHERE status IN ('active', 'paused')`
	var batches []*Batch
	if err := s.db.SelectContext(ctx, &batches, q); err != nil {
		return nil, fmt.Errorf("store: listing active batches: %w", err)
	}
	return batches, nil
}

// TasksInBatch returns every task belonging to a batch, in position order.
func (s *Store) TasksInBatch(ctx context.Context, batchID string) ([]*Task, error) {
	const q = `SELECT t.* FROM tasks t
		JOIN batch_tasks bt ON bt.task_id = t.id
		WHERE bt.batch_id = ?
		ORDER BY bt.position ASC`
	var tasks []*Task
	if err := s.db.SelectContext(ctx, &tasks, q, batchID); err != nil {
		return nil, fmt.Errorf("store: listing tasks in batch %s: %w", batchID, err)
	}
	return tasks, nil
}

// MarkBatchComplete transitions a batch to complete, the terminal state
// the retrospective phase sets once every member task is terminal.
func (s *Store) MarkBatchComplete(ctx context.Context, batchID string) error {
	const q = `UPDATE batches SET status = ?, updated_at = ? WHERE id = ?`
	_, err := s.db.ExecContext(ctx, q, BatchComplete, time.Now().UTC(), batchID)
	if err != nil {
		return fmt.Errorf("store: marking batch %s complete: %w", batchID, err)
	}
	return nil
}

// SiblingsOf returns the other tasks sharing taskID's batch, in position
// order. The serial-merge guarantee does not use it (see ListChildren).
func (s *Store) SiblingsOf(ctx context.Context, taskID string) ([]*Task, error) {
	const q = `SELECT t.* FROM tasks t
		JOIN batch_tasks bt ON bt.task_id = t.id
		WHERE bt.batch_id = (SELECT batch_id FROM batch_tasks WHERE task_id = ?)
		AND t.id != ?
		ORDER BY bt.position ASC`
	var tasks []*Task
	if err := s.db.SelectContext(ctx, &tasks, q, taskID, taskID); err != nil {
		return nil, fmt.Errorf("store: siblings of %s: %w", taskID, err)
	}
	return tasks, nil
}
