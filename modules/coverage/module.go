// Package coverage provides the 'coverage' runner: it runs the test suite
// under a coverage tool and reports the produced file as the step
// artifact.
package coverage

import (
	"context"
	"path/filepath"

	"github.com/vk/pipegrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the coverage runner.
type Input struct {
	// Command is the coverage tool, default "coverage".
	Command string `hcl:"command,optional"`
	// Args are the tool arguments, default "run -m pytest".
	Args []string `hcl:"args,optional"`
	// Output is the workspace-relative report path, default "coverage.xml".
	Output string `hcl:"output,optional"`
}

// OnRunCoverage is the handler for the 'coverage' runner.
func OnRunCoverage(ctx context.Context, ec *registry.ExecContext, input any) (*registry.Outcome, error) {
	in := input.(*Input)
	command := in.Command
	if command == "" {
		command = "coverage"
	}
	args := in.Args
	if len(args) == 0 {
		args = []string{"run", "-m", "pytest"}
	}
	output := in.Output
	if output == "" {
		output = "coverage.xml"
	}

	if err := ec.Command(ctx, command, args...); err != nil {
		return nil, err
	}
	if err := ec.Command(ctx, command, "xml", "-o", output); err != nil {
		return nil, err
	}
	return &registry.Outcome{Artifact: filepath.Join(ec.Workspace, output)}, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("coverage", &registry.RegisteredRunner{
		NewInput: func() any { return new(Input) },
		Fn:       OnRunCoverage,
	})
}
