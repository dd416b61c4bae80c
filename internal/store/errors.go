package store

import "errors"

// Errors returned by the store. Callers match on these sentinels rather
// than on string content.
var (
	ErrMigrationVerifyFailed = errors.New("store: migration verify failed: row count regressed")
	ErrBackupUnavailable     = errors.New("store: backup unavailable")
	ErrIllegalTransition     = errors.New("store: illegal state transition")
	ErrTaskNotFound          = errors.New("store: task not found")
	ErrBatchNotFound         = errors.New("store: batch not found")
	ErrRestoreInvalidFile    = errors.New("store: restore candidate is not a valid store file")
)
