// Package supervisor owns the lifetime of worker subprocesses and their
// log files: spawn, liveness probe, and reap. Workers are headless
// processes, not interactive sessions, so unlike the teacher's tmux-pane
// model this wraps exec.Cmd directly behind a small supervisory shell
// script that traps termination signals and kills descendants.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gofrs/flock"
)

var (
	ErrSpawnFailed  = errors.New("supervisor: spawn failed")
	ErrLogUnwritable = errors.New("supervisor: log file unwritable")
)

// Supervisor tracks worker subprocesses under a PID sidecar directory.
type Supervisor struct {
	pidDir string
}

// New returns a Supervisor storing PID sidecars under pidDir.
func New(pidDir string) *Supervisor {
	return &Supervisor{pidDir: pidDir}
}

// SpawnOptions describes a prepared worker invocation. Dispatcher builds
// this; Supervisor only knows how to run it.
type SpawnOptions struct {
	TaskID  string
	Command []string
	Dir     string
	Env     []string
	LogPath string
}

// SessionHandle identifies a spawned worker for later liveness checks and
// reaping. It is persisted on the task row (§4.2 "session handle").
type SessionHandle string

// Spawn writes the startup-metadata prologue, wraps Command in a
// supervisory script, detaches it into its own session, and records the
// PID. It returns immediately; the worker runs in the background.
func (sv *Supervisor) Spawn(ctx context.Context, opts SpawnOptions) (SessionHandle, error) {
	if err := os.MkdirAll(filepath.Dir(opts.LogPath), 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrLogUnwritable, err)
	}
	logFile, err := os.OpenFile(opts.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLogUnwritable, err)
	}
	defer logFile.Close()

	if err := writePrologue(logFile, opts); err != nil {
		return "", fmt.Errorf("%w: %v", ErrLogUnwritable, err)
	}

	script, err := writeWrapperScript(opts)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	cmd := wrapperCmd(script, opts)
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	pid := cmd.Process.Pid
	// Release so the parent pulse process exiting does not reap/zombie
	// the detached child; the wrapper script's own wait() owns the exit
	// trailer.
	if err := cmd.Process.Release(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	if err := sv.writePIDSidecar(opts.TaskID, pid); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	return SessionHandle(strconv.Itoa(pid)), nil
}

// IsAlive reports whether the process behind handle is still running,
// without blocking.
func (sv *Supervisor) IsAlive(handle SessionHandle) bool {
	pid, err := strconv.Atoi(string(handle))
	if err != nil || pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On POSIX, FindProcess always succeeds; signal 0 is the standard
	// liveness probe that does not actually signal the process.
	return proc.Signal(syscall.Signal(0)) == nil
}

// Reap terminates any surviving descendant of handle and removes the PID
// sidecar. Called when a task reaches any terminal state (§4.2, §5
// cancellation).
func (sv *Supervisor) Reap(taskID string, handle SessionHandle) error {
	pid, err := strconv.Atoi(string(handle))
	if err == nil && pid > 0 {
		// Negative pid signals the whole process group, killing
		// descendants spawned under the wrapper's setsid session.
		_ = syscall.Kill(-pid, syscall.SIGTERM)
		time.Sleep(200 * time.Millisecond)
		_ = syscall.Kill(-pid, syscall.SIGKILL)
	}
	return sv.removePIDSidecar(taskID)
}

func (sv *Supervisor) sidecarPath(taskID string) string {
	return filepath.Join(sv.pidDir, taskID+".pid")
}

func (sv *Supervisor) writePIDSidecar(taskID string, pid int) error {
	if err := os.MkdirAll(sv.pidDir, 0o755); err != nil {
		return err
	}
	lock := flock.New(sv.sidecarPath(taskID) + ".lock")
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()
	return os.WriteFile(sv.sidecarPath(taskID), []byte(strconv.Itoa(pid)), 0o644)
}

func (sv *Supervisor) removePIDSidecar(taskID string) error {
	err := os.Remove(sv.sidecarPath(taskID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	_ = os.Remove(sv.sidecarPath(taskID) + ".lock")
	return nil
}

// PIDOf reads the sidecar file for a task, returning 0 if absent.
func (sv *Supervisor) PIDOf(taskID string) int {
	data, err := os.ReadFile(sv.sidecarPath(taskID))
	if err != nil {
		return 0
	}
	pid, _ := strconv.Atoi(string(data))
	return pid
}
