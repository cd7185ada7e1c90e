package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/stashfs/stashfs/internal/apperr"
	"github.com/stashfs/stashfs/internal/logger"
)

// Result carries the outcome of one sandboxed command.
type Result struct {
	ExitCode   int    `json:"exit_code"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	DurationMS uint64 `json:"duration_ms"`
	Truncated  bool   `json:"truncated"`
}

// Runner spawns whitelisted processes with a global concurrency permit.
type Runner struct {
	sem *semaphore.Weighted
}

// NewRunner returns a runner admitting at most maxConcurrent simultaneous
// processes.
func NewRunner(maxConcurrent int64) *Runner {
	return &Runner{sem: semaphore.NewWeighted(maxConcurrent)}
}

// Run validates the command against the whitelist and argument filter, then
// executes it with workingDir as the current directory, a cleared
// environment, stdin from the null device and stdout/stderr capped at
// maxOutputBytes each. On timeout the result reports exit code -1 with
// stderr "Command timed out".
func (r *Runner) Run(ctx context.Context, workingDir, command string, args []string, timeout time.Duration, maxOutputBytes int) (*Result, error) {
	if !Allowed(command) {
		return nil, apperr.Forbiddenf("Command %q is not allowed", command)
	}
	if err := ValidateArgs(args); err != nil {
		return nil, err
	}

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, apperr.Wrap(err, "Command slot unavailable")
	}
	defer r.sem.Release(1)

	start := time.Now()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, command, args...)
	cmd.Dir = workingDir
	cmd.Env = []string{
		"PATH=/usr/bin:/bin:/usr/local/bin",
		"HOME=/tmp",
		"LC_ALL=C.UTF-8",
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Make Wait return even if the process ignores the kill briefly.
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	durationMS := uint64(time.Since(start).Milliseconds())

	if runCtx.Err() == context.DeadlineExceeded {
		logger.Warn("sandboxed command timed out",
			"command", command, "timeout", timeout.String())
		return &Result{
			ExitCode:   -1,
			Stderr:     "Command timed out",
			DurationMS: durationMS,
		}, nil
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Signalled exits report -1 via ExitCode().
			exitCode = exitErr.ExitCode()
		} else {
			return nil, apperr.Wrap(err, "Failed to spawn command")
		}
	}

	outBytes, outTruncated := capOutput(stdout.Bytes(), maxOutputBytes)
	errBytes, errTruncated := capOutput(stderr.Bytes(), maxOutputBytes)

	return &Result{
		ExitCode:   exitCode,
		Stdout:     string(outBytes),
		Stderr:     string(errBytes),
		DurationMS: durationMS,
		Truncated:  outTruncated || errTruncated,
	}, nil
}

func capOutput(data []byte, limit int) ([]byte, bool) {
	if len(data) <= limit {
		return data, false
	}
	return data[:limit], true
}
