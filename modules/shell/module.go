// Package shell provides the 'shell' runner: one command line executed in
// the instance workspace.
package shell

import (
	"context"
	"fmt"
	"sort"

	"github.com/vk/pipegrid/internal/proc"
	"github.com/vk/pipegrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the shell runner.
type Input struct {
	// Command is the command line, run through the shell.
	Command string `hcl:"command"`
	// Shell overrides the interpreter, default "sh".
	Shell string `hcl:"shell,optional"`
	// Env adds extra environment variables for this step only.
	Env map[string]string `hcl:"env,optional"`
	// Dir is a workspace-relative working directory.
	Dir string `hcl:"dir,optional"`
}

// OnRunShell is the handler for the 'shell' runner.
func OnRunShell(ctx context.Context, ec *registry.ExecContext, input any) (*registry.Outcome, error) {
	in := input.(*Input)
	if in.Command == "" {
		return nil, fmt.Errorf("shell runner requires a command")
	}

	shell := in.Shell
	if shell == "" {
		shell = "sh"
	}
	dir := ec.Workspace
	if in.Dir != "" {
		dir = dir + "/" + in.Dir
	}

	env := ec.Env
	if len(in.Env) > 0 {
		keys := make([]string, 0, len(in.Env))
		for k := range in.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		merged := make([]string, len(ec.Env), len(ec.Env)+len(keys))
		copy(merged, ec.Env)
		for _, k := range keys {
			merged = append(merged, k+"="+in.Env[k])
		}
		env = merged
	}

	err := ec.Proc.Run(ctx, proc.Command{
		Name:   shell,
		Args:   []string{"-c", in.Command},
		Dir:    dir,
		Env:    env,
		Stdout: ec.Stdout,
		Stderr: ec.Stderr,
	})
	return nil, err
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("shell", &registry.RegisteredRunner{
		NewInput: func() any { return new(Input) },
		Fn:       OnRunShell,
	})
}
