package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/vk/pipegrid/internal/proc"
)

// FakeProc is a proc.Runner that records invocations instead of executing
// them. Command lines can be scripted to fail.
type FakeProc struct {
	mu sync.Mutex
	// Calls records every invocation as "name arg1 arg2 ...".
	Calls []string
	// FailOn maps a command-line substring to the error returned when a
	// matching command is run.
	FailOn map[string]error
	// Block, when set, makes Run wait for ctx cancellation before
	// returning ctx.Err(). Used by cancellation tests.
	Block bool
}

// NewFakeProc creates an empty FakeProc.
func NewFakeProc() *FakeProc {
	return &FakeProc{FailOn: make(map[string]error)}
}

// Run implements proc.Runner.
func (f *FakeProc) Run(ctx context.Context, cmd proc.Command) error {
	line := strings.Join(append([]string{cmd.Name}, cmd.Args...), " ")

	f.mu.Lock()
	f.Calls = append(f.Calls, line)
	block := f.Block
	var failErr error
	for substr, err := range f.FailOn {
		if strings.Contains(line, substr) {
			failErr = err
			break
		}
	}
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if failErr != nil {
		return failErr
	}
	return nil
}

// CallLines returns a copy of the recorded command lines.
func (f *FakeProc) CallLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.Calls...)
}
