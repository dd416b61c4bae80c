// Package gomigrations holds migrations that need Go logic rather than
// plain SQL — specifically the enum-widening table rebuild the CHECK
// constraint on tasks.status requires, since SQLite cannot ALTER a CHECK
// constraint in place.
package gomigrations

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddNamedMigrationContext("00003_widen_status_enum.go", upWidenStatusEnum, downWidenStatusEnum)
}

// widenedStatuses is the full enum this migration widens the CHECK
// constraint to admit. 'archived' is reserved for a future operator
// archival command; nothing in this pulse yet transitions a task there.
var widenedStatuses = []string{
	"queued", "dispatched", "running", "evaluating",
	"complete", "retrying", "blocked", "failed", "cancelled",
	"pr_review", "review_triage", "review_waiting",
	"merging", "merged", "deploying", "deployed",
	"verifying", "verified", "verify_failed",
	"archived",
}

func upWidenStatusEnum(ctx context.Context, tx *sql.Tx) error {
	return rebuildTasksTable(ctx, tx)
}

func downWidenStatusEnum(ctx context.Context, tx *sql.Tx) error {
	// The down migration is a no-op: narrowing the constraint back would
	// risk rejecting rows already in 'archived'. Widening is one-way by
	// design, matching the spec's "enum-constraint widening" framing.
	return nil
}

// rebuildTasksTable performs the rename-old / create-new-with-wider-
// constraint / copy-explicit-columns / drop-old sequence. The column
// list is read from the live schema via PRAGMA table_info so this
// function tolerates stores at different historical migration levels
// (e.g. one that has already picked up the "priority" column and one
// that has not).
func rebuildTasksTable(ctx context.Context, tx *sql.Tx) error {
	cols, err := tableColumns(ctx, tx, "tasks")
	if err != nil {
		return fmt.Errorf("gomigrations: reading tasks columns: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `PRAGMA foreign_keys = OFF`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `ALTER TABLE tasks RENAME TO tasks_old`); err != nil {
		return err
	}

	createSQL := buildCreateTasksSQL(widenedStatuses)
	if _, err := tx.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("gomigrations: creating widened tasks table: %w", err)
	}

	colList := quoteIdentList(cols)
	copySQL := fmt.Sprintf(`INSERT INTO tasks (%s) SELECT %s FROM tasks_old`, colList, colList)
	if _, err := tx.ExecContext(ctx, copySQL); err != nil {
		return fmt.Errorf("gomigrations: copying tasks rows: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DROP TABLE tasks_old`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		return err
	}

	return nil
}

func tableColumns(ctx context.Context, tx *sql.Tx, table string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

func quoteIdentList(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

func buildCreateTasksSQL(statuses []string) string {
	enum := ""
	for i, s := range statuses {
		if i > 0 {
			enum += ","
		}
		enum += "'" + s + "'"
	}
	return fmt.Sprintf(`CREATE TABLE tasks (
    id                 TEXT PRIMARY KEY,
    repository         TEXT NOT NULL,
    description        TEXT NOT NULL,
    status             TEXT NOT NULL CHECK (status IN (%s)),
    model              TEXT NOT NULL DEFAULT '',
    retries            INTEGER NOT NULL DEFAULT 0,
    max_retries        INTEGER NOT NULL DEFAULT 3,
    escalation_depth   INTEGER NOT NULL DEFAULT 0,
    max_escalation     INTEGER NOT NULL DEFAULT 2,
    rebase_attempts    INTEGER NOT NULL DEFAULT 0,
    deploy_recoveries  INTEGER NOT NULL DEFAULT 0,
    session_handle     TEXT NOT NULL DEFAULT '',
    worktree_path      TEXT NOT NULL DEFAULT '',
    branch             TEXT NOT NULL DEFAULT '',
    log_path           TEXT NOT NULL DEFAULT '',
    pr_url             TEXT NOT NULL DEFAULT '',
    issue_url          TEXT NOT NULL DEFAULT '',
    diagnostic_of      TEXT NOT NULL DEFAULT '',
    triage_result      TEXT NOT NULL DEFAULT '',
    error              TEXT NOT NULL DEFAULT '',
    priority           INTEGER NOT NULL DEFAULT 0,
    created_at         DATETIME NOT NULL,
    started_at         DATETIME,
    completed_at       DATETIME,
    updated_at         DATETIME NOT NULL
)`, enum)
}
