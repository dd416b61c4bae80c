package supervisor_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/relaytrain/pulse/internal/supervisor"
)

func TestSpawn_WritesPrologueAndExitTrailer(t *testing.T) {
	dir := t.TempDir()
	sv := supervisor.New(filepath.Join(dir, "pids"))

	logPath := filepath.Join(dir, "logs", "t1-20260101.log")
	handle, err := sv.Spawn(context.Background(), supervisor.SpawnOptions{
		TaskID:  "t1",
		Command: []string{"sh", "-c", "echo hello"},
		Dir:     dir,
		LogPath: logPath,
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if handle == "" {
		t.Fatal("empty session handle")
	}

	deadline := time.Now().Add(3 * time.Second)
	var content []byte
	for time.Now().Before(deadline) {
		content, _ = os.ReadFile(logPath)
		if strings.Contains(string(content), "EXIT:") {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if !strings.Contains(string(content), "PULSE_WORKER_STARTED") {
		t.Fatalf("log missing startup sentinel: %q", content)
	}
	if !strings.Contains(string(content), "hello") {
		t.Fatalf("log missing worker output: %q", content)
	}
	if !strings.Contains(string(content), "EXIT:0") {
		t.Fatalf("log missing clean exit trailer: %q", content)
	}

	if err := sv.Reap("t1", handle); err != nil {
		t.Fatalf("Reap: %v", err)
	}
	if sv.PIDOf("t1") != 0 {
		t.Fatal("PID sidecar survived Reap")
	}
}

func TestIsAlive_FalseForUnknownHandle(t *testing.T) {
	sv := supervisor.New(t.TempDir())
	if sv.IsAlive(supervisor.SessionHandle("999999")) {
		t.Fatal("expected dead for implausible pid")
	}
	if sv.IsAlive(supervisor.SessionHandle("not-a-pid")) {
		t.Fatal("expected dead for malformed handle")
	}
}
