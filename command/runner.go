package command

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/grovetools/tracker/errors"
)

const (
	// DefaultTimeout is applied when a Spec carries no timeout of its own.
	DefaultTimeout = 10 * time.Second

	// MaxTimeout is the ceiling for any single subprocess.
	MaxTimeout = 2 * time.Minute

	// waitDelay bounds how long Wait blocks on inherited pipes after a kill.
	waitDelay = time.Second
)

// Spec describes one subprocess invocation.
type Spec struct {
	Name    string
	Args    []string
	Dir     string
	Timeout time.Duration
}

// Argv returns the full command line for logging and error details.
func (s Spec) Argv() []string {
	return append([]string{s.Name}, s.Args...)
}

// Result is the captured outcome of a finished subprocess.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner runs subprocesses under a hard timeout. Git, screenshot, audio and
// mouse-position queries all go through it.
type Runner interface {
	Run(ctx context.Context, spec Spec) (*Result, error)
}

// ProcessRunner is the os/exec backed Runner.
type ProcessRunner struct {
	executor       Executor
	defaultTimeout time.Duration
}

var _ Runner = (*ProcessRunner)(nil)

// NewRunner creates a ProcessRunner with a RealExecutor.
func NewRunner() *ProcessRunner {
	return NewRunnerWithExecutor(&RealExecutor{})
}

// NewRunnerWithExecutor creates a ProcessRunner with a custom Executor.
func NewRunnerWithExecutor(exec Executor) *ProcessRunner {
	return &ProcessRunner{
		executor:       exec,
		defaultTimeout: DefaultTimeout,
	}
}

// Run executes spec and waits for it. The process is killed when the timeout
// elapses; that case returns a COMMAND_TIMEOUT error. A non-zero exit returns
// both the Result (with ExitCode set) and a COMMAND_FAILED error.
func (r *ProcessRunner) Run(ctx context.Context, spec Spec) (*Result, error) {
	if spec.Name == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "command name cannot be empty")
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	if timeout > MaxTimeout {
		timeout = MaxTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := r.executor.CommandContext(runCtx, spec.Name, spec.Args...) //nolint:gosec // argv is never passed through a shell
	cmd.Dir = spec.Dir
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err == nil {
		return result, nil
	}

	if stderrors.Is(runCtx.Err(), context.DeadlineExceeded) {
		result.ExitCode = -1
		return result, errors.CommandTimeout(spec.Argv(), timeout.String())
	}

	if stderrors.Is(err, exec.ErrNotFound) {
		return nil, errors.Wrap(err, errors.ErrCodeCommandNotFound, fmt.Sprintf("executable not found: %s", spec.Name)).
			WithDetail("command", spec.Name)
	}

	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
	} else {
		result.ExitCode = -1
	}
	return result, errors.CommandFailed(spec.Argv(), err, result.Stderr)
}
