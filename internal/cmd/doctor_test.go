package cmd

import (
	"testing"

	"github.com/relaytrain/pulse/internal/config"
)

func TestTaskFilePath_EmptyRepoDirIsEmpty(t *testing.T) {
	cfg := &config.Config{}
	if got := taskFilePath(cfg); got != "" {
		t.Errorf("taskFilePath(%+v) = %q, want empty", cfg.TaskFile, got)
	}
}

func TestTaskFilePath_JoinsRepoDirAndRelPath(t *testing.T) {
	cfg := &config.Config{
		TaskFile: config.TaskFile{
			RepoDir: "/repo",
			RelPath: "tasks.md",
		},
	}
	want := "/repo/tasks.md"
	if got := taskFilePath(cfg); got != want {
		t.Errorf("taskFilePath(%+v) = %q, want %q", cfg.TaskFile, got, want)
	}
}
