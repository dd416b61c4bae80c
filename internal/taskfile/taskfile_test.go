package taskfile_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/relaytrain/pulse/internal/statemachine"
	"github.com/relaytrain/pulse/internal/store"
	"github.com/relaytrain/pulse/internal/taskfile"
)

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=pulse-test", "GIT_AUTHOR_EMAIL=pulse-test@example.com",
		"GIT_COMMITTER_NAME=pulse-test", "GIT_COMMITTER_EMAIL=pulse-test@example.com")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return string(out)
}

// newRepoWithRemote sets up a working copy with a bare "origin" remote,
// an initial commit carrying tasksContent at relPath, and returns the
// working directory and relative path for taskfile.New.
func newRepoWithRemote(t *testing.T, relPath, tasksContent string) (workDir, path string) {
	t.Helper()
	root := t.TempDir()
	bare := filepath.Join(root, "origin.git")
	work := filepath.Join(root, "work")
	os.MkdirAll(bare, 0o755)
	os.MkdirAll(work, 0o755)

	runGit(t, bare, "init", "--bare")
	runGit(t, work, "init")
	runGit(t, work, "checkout", "-b", "main")
	runGit(t, work, "remote", "add", "origin", bare)

	full := filepath.Join(work, relPath)
	os.MkdirAll(filepath.Dir(full), 0o755)
	if err := os.WriteFile(full, []byte(tasksContent), 0o644); err != nil {
		t.Fatalf("seed task file: %v", err)
	}
	runGit(t, work, "add", "-A")
	runGit(t, work, "commit", "-m", "seed")
	runGit(t, work, "push", "origin", "main")

	return work, relPath
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "pulse.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedTask(t *testing.T, s *store.Store, id string, through ...store.TaskStatus) *store.Task {
	t.Helper()
	ctx := context.Background()
	task := &store.Task{ID: id, Repository: "acme/svc", Description: "x", MaxRetries: 3, MaxEscalation: 2, Model: "haiku"}
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	for _, to := range through {
		if err := statemachine.Transition(ctx, s, id, to, statemachine.Fields{Reason: "seed"}); err != nil {
			t.Fatalf("seed transition to %s: %v", to, err)
		}
	}
	got, err := s.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	return got
}

func TestFile_ParseAndFind(t *testing.T) {
	content := "# Tasks\n\n- [ ] t1 some description\n  - [ ] t1.1 subtask\n- [x] t2 done completed:2026-01-01\n"
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := taskfile.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	matches := f.Find("t1")
	if len(matches) != 1 {
		t.Fatalf("Find(t1) = %d matches, want 1", len(matches))
	}
	if matches[0].State != taskfile.StateOpen {
		t.Fatalf("t1 state = %c, want open", matches[0].State)
	}

	t2 := f.Find("t2")
	if len(t2) != 1 || t2[0].State != taskfile.StateDone {
		t.Fatalf("t2 not parsed as done: %+v", t2)
	}

	all := f.All()
	if len(all) != 3 {
		t.Fatalf("All() = %d lines, want 3", len(all))
	}
}

func TestFile_MarkComplete(t *testing.T) {
	content := "- [ ] t1 top level task\n"
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.md")
	os.WriteFile(path, []byte(content), 0o644)

	f, err := taskfile.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.MarkComplete("t1", "123", "2026-07-30"); err != nil {
		t.Fatalf("MarkComplete: %v", err)
	}

	matches := f.Find("t1")
	if len(matches) != 1 {
		t.Fatalf("Find(t1) = %d", len(matches))
	}
	p := matches[0]
	if p.State != taskfile.StateDone {
		t.Fatalf("state = %c, want done", p.State)
	}
	if !strings.Contains(p.Rest, "completed:2026-07-30") {
		t.Fatalf("rest missing completed annotation: %q", p.Rest)
	}
	if !strings.Contains(p.Rest, "pr:123") {
		t.Fatalf("rest missing pr annotation: %q", p.Rest)
	}
}

func TestFile_MarkComplete_RefusesWithOpenIndentChild(t *testing.T) {
	content := "- [ ] t1 parent\n  - [ ] t1sub child still open\n"
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.md")
	os.WriteFile(path, []byte(content), 0o644)

	f, _ := taskfile.ReadFile(path)
	if err := f.MarkComplete("t1", "", "2026-07-30"); err == nil {
		t.Fatal("expected refusal with open indented child")
	}
}

func TestFile_MarkComplete_RefusesWithOpenDottedChild(t *testing.T) {
	content := "- [ ] t1 parent\n- [ ] t1.1 dotted child, not indented\n"
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.md")
	os.WriteFile(path, []byte(content), 0o644)

	f, _ := taskfile.ReadFile(path)
	if err := f.MarkComplete("t1", "", "2026-07-30"); err == nil {
		t.Fatal("expected refusal with open dotted child")
	}
}

func TestFile_MarkComplete_AllowsClosedChildren(t *testing.T) {
	content := "- [ ] t1 parent\n  - [x] t1sub done child\n- [x] t1.1 done dotted child\n"
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.md")
	os.WriteFile(path, []byte(content), 0o644)

	f, _ := taskfile.ReadFile(path)
	if err := f.MarkComplete("t1", "", "2026-07-30"); err != nil {
		t.Fatalf("MarkComplete should succeed when children are closed: %v", err)
	}
}

func TestFile_MarkCancelled(t *testing.T) {
	content := "- [ ] t1 task\n"
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.md")
	os.WriteFile(path, []byte(content), 0o644)

	f, _ := taskfile.ReadFile(path)
	if err := f.MarkCancelled("t1", "2026-07-30"); err != nil {
		t.Fatalf("MarkCancelled: %v", err)
	}
	p := f.Find("t1")[0]
	if p.State != taskfile.StateCancelled {
		t.Fatalf("state = %c, want cancelled", p.State)
	}
	if !strings.Contains(p.Rest, "cancelled:2026-07-30") {
		t.Fatalf("rest missing cancelled annotation: %q", p.Rest)
	}
}

func TestFile_AnnotateBlocked(t *testing.T) {
	content := "- [ ] t1 task\n"
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.md")
	os.WriteFile(path, []byte(content), 0o644)

	f, _ := taskfile.ReadFile(path)
	if err := f.AnnotateBlocked("t1", "blocked", "waiting on review"); err != nil {
		t.Fatalf("AnnotateBlocked: %v", err)
	}

	p := f.Find("t1")[0]
	if !strings.Contains(p.Rest, "status:blocked") {
		t.Fatalf("rest missing status annotation: %q", p.Rest)
	}
	// State should remain open: a blocked task stays open for the next pulse.
	if p.State != taskfile.StateOpen {
		t.Fatalf("state = %c, want unchanged open", p.State)
	}
	joined := strings.Join(f.Lines, "\n")
	if !strings.Contains(joined, "Note: waiting on review") {
		t.Fatalf("note not inserted: %s", joined)
	}
}

func TestFile_Dedup(t *testing.T) {
	content := "- [ ] t1 first\n- [ ] t1 duplicate\n- [x] t2 done\n- [x] t2 done dup, not touched\n"
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.md")
	os.WriteFile(path, []byte(content), 0o644)

	f, _ := taskfile.ReadFile(path)
	removed := f.Dedup()
	if removed != 1 {
		t.Fatalf("removed = %d, want 1 (only open-state duplicates are deduped)", removed)
	}
	if len(f.Find("t1")) != 1 {
		t.Fatalf("t1 still duplicated after Dedup")
	}
	if len(f.Find("t2")) != 2 {
		t.Fatalf("Dedup must not touch done-state duplicates, found %d", len(f.Find("t2")))
	}
}

func TestSync_MutateCommitsAndPushes(t *testing.T) {
	work, relPath := newRepoWithRemote(t, "tasks.md", "- [ ] t1 task\n")
	sync := taskfile.New(work, relPath, "origin")

	err := sync.Mutate(context.Background(), "pulse: mark t1 complete", func(f *taskfile.File) (bool, error) {
		return true, f.MarkComplete("t1", "42", "2026-07-30")
	})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}

	log := runGit(t, work, "log", "--oneline", "-1")
	if !strings.Contains(log, "mark t1 complete") {
		t.Fatalf("commit not created: %s", log)
	}

	f, err := taskfile.ReadFile(filepath.Join(work, relPath))
	if err != nil {
		t.Fatal(err)
	}
	if f.Find("t1")[0].State != taskfile.StateDone {
		t.Fatal("on-disk file was not updated")
	}
}

func TestSync_ClaimForAndLiveness(t *testing.T) {
	work, relPath := newRepoWithRemote(t, "tasks.md",
		"- [ ] t1 task assignee:99999999 started:2026-07-01T00:00:00Z\n")
	sync := taskfile.New(work, relPath, "origin")

	claim, err := sync.ClaimFor(context.Background(), "t1")
	if err != nil {
		t.Fatalf("ClaimFor: %v", err)
	}
	if !claim.Exists || claim.Holder != "99999999" {
		t.Fatalf("claim = %+v, want holder 99999999", claim)
	}

	if sync.HolderHasActiveWorker(context.Background(), "99999999") {
		t.Fatal("pid 99999999 should not be alive")
	}
	if sync.HolderHasActiveWorker(context.Background(), "not-a-pid") {
		t.Fatal("non-numeric holder should never be considered alive")
	}
}

func TestReconciler_AnnotatesBlockedAndCancelled(t *testing.T) {
	work, relPath := newRepoWithRemote(t, "tasks.md",
		"- [ ] t1 blocked task\n- [ ] t2 cancelled task\n")
	sync := taskfile.New(work, relPath, "origin")
	s := openTestStore(t)

	seedTask(t, s, "t1", store.StatusDispatched, store.StatusRunning, store.StatusEvaluating, store.StatusBlocked)
	seedTask(t, s, "t2", store.StatusDispatched, store.StatusCancelled)

	r := taskfile.NewReconciler(s, sync, nil)
	orphans, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(orphans) != 0 {
		t.Fatalf("unexpected orphans: %v", orphans)
	}

	f, err := taskfile.ReadFile(filepath.Join(work, relPath))
	if err != nil {
		t.Fatal(err)
	}
	p1 := f.Find("t1")[0]
	if !strings.Contains(p1.Rest, "status:blocked") {
		t.Fatalf("t1 missing status annotation: %q", p1.Rest)
	}
	p2 := f.Find("t2")[0]
	if p2.State != taskfile.StateCancelled {
		t.Fatalf("t2 state = %c, want cancelled", p2.State)
	}
}

func TestReconciler_OrphanAndFileToDB(t *testing.T) {
	work, relPath := newRepoWithRemote(t, "tasks.md", "- [x] t1 already marked done in the file\n")
	sync := taskfile.New(work, relPath, "origin")
	s := openTestStore(t)

	// t1 is non-terminal in the DB (stuck at evaluating) but marked [x] in
	// the file: reconcileFileToDB should promote it to complete.
	seedTask(t, s, "t1", store.StatusDispatched, store.StatusRunning, store.StatusEvaluating)
	// t2 exists only in the DB, with no task-file line: orphan.
	seedTask(t, s, "t2", store.StatusDispatched, store.StatusRunning, store.StatusEvaluating, store.StatusComplete)

	r := taskfile.NewReconciler(s, sync, nil)
	orphans, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(orphans) != 1 || orphans[0] != taskfile.OrphanTaskID("t2") {
		t.Fatalf("orphans = %v, want [t2]", orphans)
	}

	got, err := s.GetTask(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != store.StatusComplete {
		t.Fatalf("t1 status = %s, want complete (promoted from file)", got.Status)
	}
}

func TestVerifyQueue_DirectivesAndLifecycle(t *testing.T) {
	dir := t.TempDir()
	q := taskfile.NewQueueFile(filepath.Join(dir, "verify-queue.md"))

	entries := taskfile.DirectivesFor("t1", []string{
		"scripts/deploy.sh",
		"internal/agentspec/worker.toml",
		"README.md",
	})
	if len(entries) != 3 {
		t.Fatalf("DirectivesFor = %d entries, want 3", len(entries))
	}
	if entries[0].Kind != taskfile.CheckSyntax {
		t.Fatalf("deploy.sh should be a syntax check, got %s", entries[0].Kind)
	}
	if entries[2].Kind != taskfile.CheckExists {
		t.Fatalf("README.md should be an existence check, got %s", entries[2].Kind)
	}

	if err := q.Append(context.Background(), entries); err != nil {
		t.Fatalf("Append: %v", err)
	}

	pending, err := q.Pending()
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("Pending() = %d, want 3", len(pending))
	}

	if err := q.MarkResult(context.Background(), "t1", "scripts/deploy.sh", true); err != nil {
		t.Fatalf("MarkResult: %v", err)
	}

	pending, err = q.Pending()
	if err != nil {
		t.Fatalf("Pending after mark: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("Pending() after mark = %d, want 2", len(pending))
	}
}
