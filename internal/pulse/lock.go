package pulse

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

const lockFileName = ".pulse.lock"

// singleInstanceGuard prevents two pulses from running concurrently
// against the same supervisor directory, directly adapted from the
// teacher's boot watchdog lock: a concurrent invocation observes the
// lock held and backs off rather than re-entering.
type singleInstanceGuard struct {
	handle *flock.Flock
}

func newSingleInstanceGuard(supervisorDir string) *singleInstanceGuard {
	return &singleInstanceGuard{handle: flock.New(filepath.Join(supervisorDir, lockFileName))}
}

// TryAcquire attempts the lock, returning false (no error) if another
// pulse already holds it.
func (g *singleInstanceGuard) TryAcquire() (bool, error) {
	locked, err := g.handle.TryLock()
	if err != nil {
		return false, fmt.Errorf("pulse: acquiring single-instance lock: %w", err)
	}
	return locked, nil
}

func (g *singleInstanceGuard) Release() error {
	return g.handle.Unlock()
}
