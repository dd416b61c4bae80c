package config

import "testing"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Concurrency.GlobalMax != 4 {
		t.Errorf("Concurrency.GlobalMax = %d, want 4", cfg.Concurrency.GlobalMax)
	}
	if cfg.Retry.MaxRetries != 3 {
		t.Errorf("Retry.MaxRetries = %d, want 3", cfg.Retry.MaxRetries)
	}
	if cfg.PRLifecycle.RequireApproval != true {
		t.Errorf("PRLifecycle.RequireApproval = %v, want true", cfg.PRLifecycle.RequireApproval)
	}
	if cfg.TaskFile.RelPath != "tasks.md" {
		t.Errorf("TaskFile.RelPath = %q, want tasks.md", cfg.TaskFile.RelPath)
	}
	if cfg.TaskFile.Remote != "origin" {
		t.Errorf("TaskFile.Remote = %q, want origin", cfg.TaskFile.Remote)
	}
	if cfg.RoleAgents["default"] != TierSonnet {
		t.Errorf("RoleAgents[default] = %v, want sonnet", cfg.RoleAgents["default"])
	}
}

func TestAgentTier_Escalate(t *testing.T) {
	next, ok := TierHaiku.Escalate()
	if !ok || next != TierSonnet {
		t.Fatalf("TierHaiku.Escalate() = (%v, %v), want (sonnet, true)", next, ok)
	}
	next, ok = TierOpus.Escalate()
	if ok {
		t.Fatalf("TierOpus.Escalate() = (%v, %v), want ok=false at ceiling", next, ok)
	}
}
