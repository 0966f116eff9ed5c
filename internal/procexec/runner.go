// Package procexec runs the external validator and generator programs.
//
// The contract with those programs is narrow: they are invoked by path with
// the workspace root as working directory, everything they print goes to the
// submission's log file, and their exit code is the sole verdict.
package procexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// Runner executes external programs and captures their exit status.
// Timeout, when non-zero, bounds each run; the child is killed on expiry.
// A zero Timeout preserves the synchronous wait-forever baseline.
type Runner struct {
	Timeout time.Duration
}

// Run executes bin with args in workDir, redirecting combined stdout and
// stderr to the file at logPath. appendLog controls whether the log file is
// appended to or truncated first.
//
// The returned int is the process exit code (0 = success). Failures to start
// the process at all are reported as exit code -1 with a diagnostic line
// written into the log, so callers always have something to show.
func (r *Runner) Run(ctx context.Context, workDir, logPath string, appendLog bool, bin string, args ...string) (int, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if appendLog {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	logFile, err := os.OpenFile(logPath, flags, 0o644)
	if err != nil {
		return -1, fmt.Errorf("failed to open log file %s: %w", logPath, err)
	}
	defer logFile.Close()

	cancel := func() {}
	if r.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
	}
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = workDir
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	err = cmd.Run()
	if err == nil {
		return 0, nil
	}

	if ctx.Err() == context.DeadlineExceeded {
		fmt.Fprintf(logFile, "process timed out after %s: %s\n", r.Timeout, filepath.Base(bin))
		slog.Warn("External process timed out", "bin", bin, "timeout", r.Timeout)
		return -1, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}

	// The process never started (missing binary, permission). Leave a trace
	// in the log so the at-least-something contract holds.
	fmt.Fprintf(logFile, "failed to run %s: %v\n", filepath.Base(bin), err)
	slog.Error("Failed to run external process", "bin", bin, "error", err)
	return -1, nil
}
