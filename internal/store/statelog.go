package store

import (
	"context"
	"fmt"
	"time"
)

// appendStateLog inserts an audit row. Nothing calls it:
// statemachine.Transition writes its state_log row itself, inside the
// same transaction as the status update (§4.3 single write path).
func (s *Store) appendStateLog(ctx context.Context, entry *StateLogEntry) error {
	entry.CreatedAt = time.Now().UTC()
	const q = `INSERT INTO state_log (task_id, from_state, to_state, reason, created_at)
		VALUES (:task_id, :from_state, :to_state, :reason, :created_at)`
	_, err := s.db.NamedExecContext(ctx, q, entry)
	if err != nil {
		return fmt.Errorf("store: append state log for %s: %w", entry.TaskID, err)
	}
	return nil
}

// StateLog returns the full transition history for a task, oldest first.
func (s *Store) StateLog(ctx context.Context, taskID string) ([]*StateLogEntry, error) {
	var entries []*StateLogEntry
	const q = `SELECT * FROM state_log WHERE task_id = ? ORDER BY id ASC`
	if err := s.db.SelectContext(ctx, &entries, q, taskID); err != nil {
		return nil, fmt.Errorf("store: state log for %s: %w", taskID, err)
	}
	return entries, nil
}

// RecentStateLog returns the last n transitions for a task, used by the
// PRLifecycleEngine's gather step ("last five state transitions").
func (s *Store) RecentStateLog(ctx context.Context, taskID string, n int) ([]*StateLogEntry, error) {
	var entries []*StateLogEntry
	const q = `SELECT * FROM state_log WHERE task_id = ? ORDER BY id DESC LIMIT ?`
	if err := s.db.SelectContext(ctx, &entries, q, taskID, n); err != nil {
		return nil, fmt.Errorf("store: recent state log for %s: %w", taskID, err)
	}
	// reverse to chronological order
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}
