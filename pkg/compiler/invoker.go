package compiler

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// Invocation is one run of the external compiler.
type Invocation struct {
	Executable string
	Args       []string

	// Dir is the working directory of the process.
	Dir string

	// Timeout bounds the wall-clock run time. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Outcome reports how an invocation ended. It carries no verdict on the
// compilation itself.
type Outcome struct {
	Exited   bool
	TimedOut bool
	ExitCode int
	Duration time.Duration

	// Output is the combined stdout/stderr of the process, trimmed.
	Output string
}

// Invoker runs the external compiler.
//
// Implementations return an error when the process could not be started, did
// not exit cleanly, or was killed on timeout. Callers treat the error as
// informational only.
type Invoker interface {
	Invoke(ctx context.Context, inv Invocation) (Outcome, error)
}

// DefaultTimeout is the compile timeout used when none is configured.
const DefaultTimeout = 30 * time.Second

// killGrace bounds how long Wait blocks on I/O after the process is killed.
const killGrace = 2 * time.Second

// ExecInvoker runs the compiler with os/exec.
//
// On timeout the whole process group is killed so that helper processes
// spawned by the compiler do not outlive the job.
type ExecInvoker struct{}

// Invoke implements Invoker.
func (ExecInvoker) Invoke(ctx context.Context, inv Invocation) (Outcome, error) {
	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, inv.Executable, inv.Args...)
	cmd.Dir = inv.Dir
	configureCommandProcess(cmd, inv.Executable, inv.Args)
	cmd.Cancel = func() error {
		terminateCommandProcess(cmd)
		return nil
	}
	cmd.WaitDelay = killGrace

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	outcome := Outcome{
		Duration: time.Since(start),
		Output:   strings.TrimSpace(out.String()),
		ExitCode: -1,
	}
	if cmd.ProcessState != nil {
		outcome.Exited = cmd.ProcessState.Exited()
		outcome.ExitCode = cmd.ProcessState.ExitCode()
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		outcome.TimedOut = true
		return outcome, &TimeoutError{Timeout: timeout, Err: err}
	}
	return outcome, err
}

// TimeoutError reports that the compiler was killed after exceeding its budget.
type TimeoutError struct {
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return "compiler timed out after " + e.Timeout.String()
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}
