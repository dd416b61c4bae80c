package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/gofrs/flock"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store wraps the SQLite connection and its backup lock. All writes
// serialise through the *sqlx.DB's own connection pool (SQLite's WAL
// mode plus a busy timeout absorbs lock contention rather than failing
// on first conflict, per §5).
type Store struct {
	db       *sqlx.DB
	path     string
	backupMu *flock.Flock
}

// Open connects to the store file at path, applying WAL mode, a busy
// timeout, and foreign-key enforcement, then runs any pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // one writer; WAL readers share the same handle fine for our access pattern

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable WAL: %w", err)
	}

	s := &Store{
		db:       sqlx.NewDb(db, "sqlite3"),
		path:     path,
		backupMu: flock.New(path + ".backup.lock"),
	}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the store file's path, used by backup/restore and by
// doctor-style health checks.
func (s *Store) Path() string {
	return s.path
}

// DB exposes the underlying *sqlx.DB for components (migrations,
// diagnostics) that need raw access; application code should prefer the
// typed accessors in tasks.go/batches.go/statelog.go/prooflog.go.
func (s *Store) DB() *sqlx.DB {
	return s.db
}
