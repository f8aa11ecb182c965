package steprunner

import "fmt"

// ExecError describes a step that ran and failed. It distinguishes process
// exit failures from deadline kills so callers can report them differently.
type ExecError struct {
	// Step is the flattened step name.
	Step string
	// ExitCode is the process exit code, when the failure was an exit.
	ExitCode int
	// Timeout marks a step killed by its own deadline.
	Timeout bool
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *ExecError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("step %q timed out: %v", e.Step, e.Err)
	}
	if e.ExitCode != 0 {
		return fmt.Sprintf("step %q exited with code %d", e.Step, e.ExitCode)
	}
	return fmt.Sprintf("step %q failed: %v", e.Step, e.Err)
}

// Unwrap returns the underlying error.
func (e *ExecError) Unwrap() error {
	return e.Err
}
