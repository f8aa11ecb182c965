// Package testrunner provides the 'test' runner: it invokes the project's
// test command in the instance workspace.
package testrunner

import (
	"context"

	"github.com/vk/pipegrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the test runner.
type Input struct {
	// Command is the test tool, default "pytest".
	Command string `hcl:"command,optional"`
	// Args are extra arguments appended to the command.
	Args []string `hcl:"args,optional"`
}

// OnRunTest is the handler for the 'test' runner.
func OnRunTest(ctx context.Context, ec *registry.ExecContext, input any) (*registry.Outcome, error) {
	in := input.(*Input)
	command := in.Command
	if command == "" {
		command = "pytest"
	}
	return nil, ec.Command(ctx, command, in.Args...)
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("test", &registry.RegisteredRunner{
		NewInput: func() any { return new(Input) },
		Fn:       OnRunTest,
	})
}
