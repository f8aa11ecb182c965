// Package proc abstracts the invocation of external collaborator processes.
// Runner modules never call os/exec directly; they go through a Runner so
// that tests can substitute fakes and cancellation reliably kills the child.
package proc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
)

// Command describes one external process invocation.
type Command struct {
	Name   string
	Args   []string
	Dir    string
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
}

// Runner executes external commands.
type Runner interface {
	// Run starts the command and waits for it to finish. A nonzero exit
	// status is returned as an *ExitError. Cancelling ctx kills the
	// process.
	Run(ctx context.Context, cmd Command) error
}

// ExitError reports a nonzero exit status from an external process.
type ExitError struct {
	Name string
	Code int
	Err  error
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d", e.Name, e.Code)
}

// Unwrap exposes the underlying os/exec error, if any.
func (e *ExitError) Unwrap() error { return e.Err }

// OSRunner is the production Runner backed by os/exec.
type OSRunner struct{}

// Run implements Runner.
func (OSRunner) Run(ctx context.Context, cmd Command) error {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = cmd.Env
	c.Stdout = cmd.Stdout
	c.Stderr = cmd.Stderr

	err := c.Run()
	if err == nil {
		return nil
	}
	// Cancellation surfaces as the context error, not as a process failure.
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Name: cmd.Name, Code: exitErr.ExitCode(), Err: err}
	}
	return fmt.Errorf("failed to start %s: %w", cmd.Name, err)
}
