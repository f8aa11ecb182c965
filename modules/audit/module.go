// Package audit provides the 'audit' runner: a dependency vulnerability
// scan over the checked-out project.
package audit

import (
	"context"

	"github.com/vk/pipegrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the audit runner.
type Input struct {
	// Tool is the audit command, default "pip-audit".
	Tool string `hcl:"tool,optional"`
	// Args are extra arguments appended to the tool.
	Args []string `hcl:"args,optional"`
}

// OnRunAudit is the handler for the 'audit' runner.
func OnRunAudit(ctx context.Context, ec *registry.ExecContext, input any) (*registry.Outcome, error) {
	in := input.(*Input)
	tool := in.Tool
	if tool == "" {
		tool = "pip-audit"
	}
	return nil, ec.Command(ctx, tool, in.Args...)
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("audit", &registry.RegisteredRunner{
		NewInput: func() any { return new(Input) },
		Fn:       OnRunAudit,
	})
}
