package store

import (
	"context"
	"fmt"
	"time"
)

// AppendProofLog records evidence justifying a terminal (or otherwise
// noteworthy) transition. Append-only; there is no update or delete path.
func (s *Store) AppendProofLog(ctx context.Context, entry *ProofLogEntry) error {
	entry.CreatedAt = time.Now().UTC()
	if entry.Metadata == "" {
		entry.Metadata = "{}"
	}
	const q = `INSERT INTO proof_logs (
		task_id, event, stage, decision, evidence, decision_by, pr_url,
		duration_ms, metadata, created_at
	) VALUES (
		:task_id, :event, :stage, :decision, :evidence, :decision_by, :pr_url,
		:duration_ms, :metadata, :created_at
	)`
	_, err := s.db.NamedExecContext(ctx, q, entry)
	if err != nil {
		return fmt.Errorf("store: append proof log for %s: %w", entry.TaskID, err)
	}
	return nil
}

// ProofLogsFor returns every proof-log entry for a task, oldest first.
func (s *Store) ProofLogsFor(ctx context.Context, taskID string) ([]*ProofLogEntry, error) {
	var entries []*ProofLogEntry
	const q = `SELECT * FROM proof_logs WHERE task_id = ? ORDER BY id ASC`
	if err := s.db.SelectContext(ctx, &entries, q, taskID); err != nil {
		return nil, fmt.Errorf("store: proof logs for %s: %w", taskID, err)
	}
	return entries, nil
}

// SuccessPatternSamples returns, per model tier for a given repository,
// how many of its tasks reached a successful status with zero retries
// out of all its tasks (read from the tasks table) — the raw material
// for ModelRouter's learned-recommendation tier (§4.4).
type SuccessPatternSample struct {
	Model        string `db:"model"`
	SuccessCount int    `db:"success_count"`
	TotalCount   int    `db:"total_count"`
}

func (s *Store) SuccessPatternSamples(ctx context.Context, repository string) ([]SuccessPatternSample, error) {
	const q = `
		SELECT t.model AS model,
		       SUM(CASE WHEN t.status IN ('complete','merged','deployed','verified') AND t.retries = 0 THEN 1 ELSE 0 END) AS success_count,
		       COUNT(*) AS total_count
		FROM tasks t
		WHERE t.repository = ? AND t.model != ''
		GROUP BY t.model`
	var samples []SuccessPatternSample
	if err := s.db.SelectContext(ctx, &samples, q, repository); err != nil {
		return nil, fmt.Errorf("store: success pattern samples for %s: %w", repository, err)
	}
	return samples, nil
}
