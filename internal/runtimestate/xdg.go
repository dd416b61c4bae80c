// Package runtimestate resolves the on-disk locations pulse uses for its
// store, logs, PID sidecars, and backups.
package runtimestate

import (
	"os"
	"path/filepath"
)

const appName = "pulse"

// SupervisorDir returns $SUPERVISOR_DIR if set, else the XDG state
// directory for pulse (~/.local/state/pulse).
func SupervisorDir() string {
	if dir := os.Getenv("SUPERVISOR_DIR"); dir != "" {
		return dir
	}
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "state", appName)
}

// ConfigDir returns the XDG-compliant config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", appName)
}

// CacheDir returns the XDG-compliant cache directory, used for the
// process-local health-probe cache.
func CacheDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cache", appName)
}

// LogDir returns $LOG_DIR if set, else SupervisorDir()/logs.
func LogDir() string {
	if dir := os.Getenv("LOG_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(SupervisorDir(), "logs")
}

// DBPath returns the path to the primary store file.
func DBPath() string {
	return filepath.Join(SupervisorDir(), "pulse.db")
}

// PIDDir returns the directory holding per-task PID sidecar files.
func PIDDir() string {
	return filepath.Join(SupervisorDir(), "pids")
}

// BackupDir returns the directory holding timestamped store backups.
func BackupDir() string {
	return filepath.Join(SupervisorDir(), "backups")
}

// EnsureDirs creates every directory pulse writes into.
func EnsureDirs() error {
	for _, dir := range []string{SupervisorDir(), LogDir(), PIDDir(), BackupDir(), CacheDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
