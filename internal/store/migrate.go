package store

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/relaytrain/pulse/internal/runtimestate"
	"github.com/relaytrain/pulse/internal/store/migrations"
	_ "github.com/relaytrain/pulse/internal/store/migrations/gomigrations"
)

// verifyTables is the caller-supplied list of tables whose row counts are
// compared before/after a migration run (§4.1 step 3). Adding a table
// here is how a future destructive migration opts into verification.
var verifyTables = []string{"tasks", "batches", "batch_tasks", "state_log", "proof_logs"}

// migrate runs any pending migrations inside the spec's backup-verify-
// rollback sandwich. It is idempotent: an up-to-date store is a no-op.
func (s *Store) migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("store: goose dialect: %w", err)
	}

	current, err := goose.GetDBVersionContext(ctx, s.db.DB)
	if err != nil {
		return fmt.Errorf("store: reading schema version: %w", err)
	}

	pending, err := goose.CollectMigrations("sql", current, goose.MaxVersion)
	if err != nil || len(pending) == 0 {
		// No pending migrations (err is goose.ErrNoMigrationFiles in the
		// up-to-date case): nothing to do.
		return nil
	}

	backupPath, err := s.Backup(ctx, "pre-migrate")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackupUnavailable, err)
	}

	before, err := countRows(ctx, s.db.DB, verifyTables)
	if err != nil {
		return fmt.Errorf("store: counting rows before migration: %w", err)
	}

	if err := goose.UpContext(ctx, s.db.DB, "sql"); err != nil {
		_ = s.restoreFrom(ctx, backupPath)
		return fmt.Errorf("store: migration apply failed, restored from %s: %w", backupPath, err)
	}

	after, err := countRows(ctx, s.db.DB, verifyTables)
	if err != nil {
		return fmt.Errorf("store: counting rows after migration: %w", err)
	}

	for table, beforeCount := range before {
		if after[table] < beforeCount {
			_ = s.restoreFrom(ctx, backupPath)
			return fmt.Errorf("%w: table %s had %d rows, now %d; restored from %s",
				ErrMigrationVerifyFailed, table, beforeCount, after[table], backupPath)
		}
	}

	return s.pruneBackups(5)
}

func countRows(ctx context.Context, db *sql.DB, tables []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(tables))
	for _, table := range tables {
		var n int64
		// Table names come only from the fixed verifyTables slice, never
		// from user input, so string formatting here is safe.
		if err := db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n); err != nil {
			return nil, fmt.Errorf("counting %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

// Backup copies the store file (plus WAL/SHM sidecars) to a timestamped
// file under the backup directory, holding the backup lock for the
// duration of the copy.
func (s *Store) Backup(ctx context.Context, reason string) (string, error) {
	if err := s.backupMu.Lock(); err != nil {
		return "", fmt.Errorf("%w: acquiring backup lock: %v", ErrBackupUnavailable, err)
	}
	defer s.backupMu.Unlock()

	if err := os.MkdirAll(runtimestate.BackupDir(), 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackupUnavailable, err)
	}

	ts := time.Now().UTC().Format("20060102T150405Z")
	dest := filepath.Join(runtimestate.BackupDir(), fmt.Sprintf("supervisor-backup-%s-%s.db", reason, ts))

	if err := copyFile(s.path, dest); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackupUnavailable, err)
	}
	for _, sidecar := range []string{"-wal", "-shm"} {
		_ = copyFile(s.path+sidecar, dest+sidecar) // sidecars may not exist; best-effort
	}

	return dest, nil
}

// restoreFrom validates the backup candidate and swaps it in for the
// live store file. The store must be reopened by the caller afterward.
func (s *Store) restoreFrom(ctx context.Context, backupPath string) error {
	if err := validateStoreFile(backupPath); err != nil {
		return fmt.Errorf("%w: %v", ErrRestoreInvalidFile, err)
	}
	return copyFile(backupPath, s.path)
}

// validateStoreFile opens candidate read-only and checks it contains a
// tasks table before the caller trusts it enough to restore from it.
func validateStoreFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	dsn := fmt.Sprintf("file:%s?mode=ro", path)
	db, err := goose.OpenDBWithDriver("sqlite3", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	var name string
	err = db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='tasks'`).Scan(&name)
	if err != nil {
		return fmt.Errorf("candidate store missing tasks table: %w", err)
	}
	return nil
}

func (s *Store) pruneBackups(keep int) error {
	entries, err := os.ReadDir(runtimestate.BackupDir())
	if err != nil {
		return nil // nothing to prune yet
	}
	type backupFile struct {
		name    string
		modTime time.Time
	}
	var backups []backupFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		backups = append(backups, backupFile{name: e.Name(), modTime: info.ModTime()})
	}
	if len(backups) <= keep {
		return nil
	}
	// Oldest first.
	for i := 0; i < len(backups); i++ {
		for j := i + 1; j < len(backups); j++ {
			if backups[j].modTime.Before(backups[i].modTime) {
				backups[i], backups[j] = backups[j], backups[i]
			}
		}
	}
	toRemove := len(backups) - keep
	for i := 0; i < toRemove; i++ {
		_ = os.Remove(filepath.Join(runtimestate.BackupDir(), backups[i].name))
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
