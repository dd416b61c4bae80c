package supervisor

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// startupSentinel marks the beginning of a worker's real output in the
// log, after the prologue. Evaluator's Tier 0 checks look for this.
const startupSentinel = "PULSE_WORKER_STARTED"

func writePrologue(w io.Writer, opts SpawnOptions) error {
	_, err := fmt.Fprintf(w,
		"=== pulse dispatch prologue ===\ntask_id=%s\ndir=%s\ncommand=%s\nstarted_at=%s\n%s\n",
		opts.TaskID, opts.Dir, strings.Join(opts.Command, " "), time.Now().UTC().Format(time.RFC3339), startupSentinel,
	)
	return err
}

// writeWrapperScript renders a small POSIX shell script that traps
// termination signals, forwards them to the worker's process group, and
// appends an EXIT:<code> trailer once the worker exits. This is the
// headless-subprocess analogue of the teacher's tmux descendant-cleanup
// contract.
func writeWrapperScript(opts SpawnOptions) (string, error) {
	scriptPath := filepath.Join(os.TempDir(), fmt.Sprintf("pulse-wrap-%s-%d.sh", opts.TaskID, time.Now().UnixNano()))

	var cmdParts []string
	for _, part := range opts.Command {
		cmdParts = append(cmdParts, shellQuote(part))
	}
	quotedCmd := strings.Join(cmdParts, " ")
	quotedLog := shellQuote(opts.LogPath)
	quotedDir := shellQuote(opts.Dir)

	script := fmt.Sprintf(`#!/bin/sh
set -u
cd %s || exit 1
%s >> %s 2>&1 &
child=$!
trap 'kill -TERM -$child 2>/dev/null' TERM INT
wait "$child"
code=$?
printf 'EXIT:%%d\n' "$code" >> %s
exit "$code"
`, quotedDir, quotedCmd, quotedLog, quotedLog)

	if err := os.WriteFile(scriptPath, []byte(script), 0o755); err != nil {
		return "", err
	}
	return scriptPath, nil
}

// wrapperCmd builds the exec.Cmd that runs the wrapper script detached
// into its own session, so it survives the parent pulse process exiting.
// It deliberately does not inherit the caller's context: a detached
// worker must outlive the pulse invocation that spawned it.
func wrapperCmd(scriptPath string, opts SpawnOptions) *exec.Cmd {
	cmd := exec.Command("/bin/sh", scriptPath)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	return cmd
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
