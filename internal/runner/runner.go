package runner

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os/exec"
	"strconv"
)

// Outcome discriminates how an external process invocation ended.
type Outcome string

const (
	OutcomeOK           Outcome = "ok"
	OutcomeExitError    Outcome = "exit_error"
	OutcomeLaunchFailed Outcome = "launch_failed"
	OutcomeCancelled    Outcome = "cancelled"
	OutcomeIOError      Outcome = "io_error"
)

// ErrLaunchFailed marks invocations whose executable could not be
// started at all, typically because the tool is not installed.
var ErrLaunchFailed = errors.New("executable not found or not runnable")

// ErrCancelled marks invocations terminated through their context.
var ErrCancelled = errors.New("process cancelled")

// ExitError reports a process that ran but exited non-zero. Stderr is
// preserved verbatim for diagnostics.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	return "process exited with code " + strconv.Itoa(e.Code)
}

// Spec describes one external command invocation.
type Spec struct {
	Name string
	Args []string
	Dir  string
	// HideWindow suppresses the console window spawned for the child
	// process on platforms where that concept exists. Resolved by the
	// runner, never by callers.
	HideWindow bool
}

// Result carries the captured outcome of one invocation. The process
// is always reaped before Run returns, regardless of outcome.
type Result struct {
	Outcome  Outcome
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner abstracts process execution so orchestration code can be
// tested against a recording double.
type Runner interface {
	Run(ctx context.Context, spec Spec) (Result, error)
}

// ExecRunner executes commands via os/exec.
type ExecRunner struct{}

// NewExecRunner returns the production runner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes one command, captures stdout/stderr, and classifies the
// outcome. The calling goroutine blocks until the process has exited
// and its streams are drained; callers that must stay responsive run
// this on their own goroutine with a cancellable context.
func (r *ExecRunner) Run(ctx context.Context, spec Spec) (Result, error) {
	cmd := exec.CommandContext(ctx, spec.Name, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Stdin = nil

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if spec.HideWindow {
		hideConsoleWindow(cmd)
	}

	err := cmd.Run()
	result := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err == nil {
		result.Outcome = OutcomeOK
		return result, nil
	}

	if ctx.Err() != nil {
		result.Outcome = OutcomeCancelled
		result.ExitCode = -1
		return result, ErrCancelled
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.Outcome = OutcomeExitError
		result.ExitCode = exitErr.ExitCode()
		return result, &ExitError{Code: result.ExitCode, Stderr: result.Stderr}
	}

	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		result.Outcome = OutcomeLaunchFailed
		result.ExitCode = -1
		return result, ErrLaunchFailed
	}

	result.Outcome = OutcomeIOError
	result.ExitCode = -1
	return result, err
}
