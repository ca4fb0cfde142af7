package analyzer

import (
	"bytes"
	"context"
	stderrors "errors"
	"os/exec"
	"time"
)

// DefaultTimeout bounds each external command.
const DefaultTimeout = 30 * time.Second

// Result is the captured outcome of one command. A command that could not
// be started or timed out reports ExitCode 1 with the reason in Stderr.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner runs external tools.
type Runner interface {
	LookPath(name string) (string, error)
	Run(ctx context.Context, name string, args ...string) Result
}

// ExecRunner runs tools with os/exec.
type ExecRunner struct {
	Timeout time.Duration
}

// LookPath reports where name is installed.
func (r ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Run executes name with args and captures its output.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) Result {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res
	}
	if ctx.Err() == context.DeadlineExceeded {
		return Result{Stderr: "command timed out", ExitCode: 1}
	}
	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res
	}
	return Result{Stderr: err.Error(), ExitCode: 1}
}
