package config

import "fmt"

// Error is a configuration problem detected while loading or validating
// pipeline documents. Once one is reported the run never starts.
type Error struct {
	// Subject names the offending file, workflow, job, step or action.
	Subject string
	Detail  string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %s: %v", e.Subject, e.Detail, e.Err)
	}
	return fmt.Sprintf("config: %s: %s", e.Subject, e.Detail)
}

// Unwrap exposes the underlying cause, if any.
func (e *Error) Unwrap() error { return e.Err }

// Errorf builds a new Error with a formatted detail message.
func Errorf(subject, format string, args ...any) *Error {
	return &Error{Subject: subject, Detail: fmt.Sprintf(format, args...)}
}
