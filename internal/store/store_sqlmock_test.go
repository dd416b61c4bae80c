package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

// TestUpdateTaskFields_GeneratesExpectedSQL exercises the store against a
// mocked driver rather than a real file, asserting the exact statement
// shape UpdateTaskFields emits (column ordering is non-deterministic from
// a Go map, so the assertion matches loosely on the WHERE clause and arg
// count rather than full statement text).
func TestUpdateTaskFields_GeneratesExpectedSQL(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	s := &Store{db: sqlx.NewDb(db, "sqlite3")}

	mock.ExpectExec("UPDATE tasks SET").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "t1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = s.UpdateTaskFields(context.Background(), "t1", map[string]interface{}{
		"triage_result": "looks fine",
	})
	if err != nil {
		t.Fatalf("UpdateTaskFields: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestUpdateTaskFields_NotFound confirms a zero-rows-affected update
// surfaces ErrTaskNotFound rather than silently succeeding.
func TestUpdateTaskFields_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	s := &Store{db: sqlx.NewDb(db, "sqlite3")}

	mock.ExpectExec("UPDATE tasks SET").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = s.UpdateTaskFields(context.Background(), "missing", map[string]interface{}{
		"triage_result": "n/a",
	})
	if err == nil {
		t.Fatal("expected ErrTaskNotFound, got nil")
	}
}
