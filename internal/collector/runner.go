package collector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes external commands on behalf of collectors.
type Runner interface {
	// Run executes name with args and returns its standard output.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
	// LookPath reports where name is installed.
	LookPath(name string) (string, error)
}

// ExecRunner runs commands with os/exec. The command is killed when ctx is done.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return stdout.Bytes(), fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return stdout.Bytes(), fmt.Errorf("%s: %w", name, err)
	}
	return stdout.Bytes(), nil
}

// LookPath implements Runner.
func (ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// commandError classifies a Runner failure.
func commandError(name string, err error) *Error {
	switch {
	case errors.Is(err, exec.ErrNotFound):
		return WrapError(KindNotConfigured, name+" is not installed", err)
	case errors.Is(err, context.DeadlineExceeded):
		return WrapError(KindTimeout, name+" timed out", err)
	default:
		return WrapError(KindUnreachable, name+" failed", err)
	}
}
