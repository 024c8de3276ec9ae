package testrunner

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// ProcessSandbox runs the test command directly on the host. Fallback
// for environments without a Docker daemon; offers no isolation beyond
// the throwaway project directory and the deadline.
type ProcessSandbox struct{}

func NewProcessSandbox() *ProcessSandbox {
	return &ProcessSandbox{}
}

// Exec runs `npx hardhat test` in the project directory. The process
// group is killed when the deadline passes.
func (s *ProcessSandbox) Exec(ctx context.Context, projectDir string, timeout time.Duration) (execOutput, error) {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "npx", "hardhat", "test")
	cmd.Dir = projectDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdout, limit: maxOutputBytes}
	cmd.Stderr = &limitedWriter{w: &stderr, limit: maxOutputBytes}

	err := cmd.Run()
	out := execOutput{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		TimedOut: errors.Is(execCtx.Err(), context.DeadlineExceeded),
	}
	if out.TimedOut {
		out.ExitCode = 124
		return out, nil
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		out.ExitCode = 0
	case errors.As(err, &exitErr):
		out.ExitCode = exitErr.ExitCode()
	default:
		return execOutput{}, err
	}
	return out, nil
}
