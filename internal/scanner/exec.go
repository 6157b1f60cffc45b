package scanner

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// ExecResult holds the outcome of one external tool run.
type ExecResult struct {
	Stdout   string
	Stderr   string
	Duration time.Duration
	ExitCode int
}

const (
	exitTimeout  = 124
	exitNotFound = 127
)

// RunTool executes an external scanner binary with the given context,
// capturing output and duration. Timeout maps to exit code 124 and a
// missing binary to 127 so callers can classify without string matching.
func RunTool(ctx context.Context, name string, args []string, dir string) (ExecResult, error) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	res := ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = 1
		}

		if ctx.Err() == context.DeadlineExceeded {
			res.ExitCode = exitTimeout
		} else if errors.Is(err, exec.ErrNotFound) {
			res.ExitCode = exitNotFound
		}
	}

	return res, err
}

// ToolAvailable reports whether the named binary is on PATH.
func ToolAvailable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
