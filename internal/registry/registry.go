package registry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/pipegrid/internal/config"
	"github.com/vk/pipegrid/internal/proc"
)

// ExecContext carries everything a runner handler may touch: the
// instance's workspace, the checkout target, the fully resolved
// environment and the process runner. Handlers receive it as an argument
// and never discover state implicitly.
type ExecContext struct {
	// Workspace is the instance-owned working directory.
	Workspace string
	// Repository and Ref identify the source the workspace materializes.
	Repository string
	Ref        string
	// Env is the resolved process environment, secrets included.
	Env []string
	// Proc runs external collaborator processes.
	Proc proc.Runner
	// Stdout and Stderr receive process output. They are redacting
	// writers; secrets never reach the log in cleartext.
	Stdout io.Writer
	Stderr io.Writer
}

// LookupEnv finds a variable in the resolved environment.
func (ec *ExecContext) LookupEnv(name string) (string, bool) {
	prefix := name + "="
	for i := len(ec.Env) - 1; i >= 0; i-- {
		if strings.HasPrefix(ec.Env[i], prefix) {
			return ec.Env[i][len(prefix):], true
		}
	}
	return "", false
}

// Command is a convenience for handlers invoking one external process in
// the instance workspace.
func (ec *ExecContext) Command(ctx context.Context, name string, args ...string) error {
	return ec.Proc.Run(ctx, proc.Command{
		Name:   name,
		Args:   args,
		Dir:    ec.Workspace,
		Env:    ec.Env,
		Stdout: ec.Stdout,
		Stderr: ec.Stderr,
	})
}

// Outcome is the optional result of a successful handler invocation.
type Outcome struct {
	// Artifact is a path produced by the step, e.g. a coverage report.
	Artifact string
}

// RegisteredRunner holds the compiled Go parts of a runner type.
type RegisteredRunner struct {
	// NewInput returns a pointer to a fresh hcl-tagged arguments struct,
	// or nil for runners that take no arguments.
	NewInput func() any
	// Fn executes the step.
	Fn func(ctx context.Context, ec *ExecContext, input any) (*Outcome, error)
}

// Module is the interface runner modules implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Registry maps runner types to their handlers for a single application
// instance.
type Registry struct {
	runners map[string]*RegisteredRunner
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{runners: make(map[string]*RegisteredRunner)}
}

// RegisterRunner registers a handler for a runner type. Double
// registration is a programmer error.
func (r *Registry) RegisterRunner(runnerType string, handler *RegisteredRunner) {
	if runnerType == config.UseRunner {
		panic(fmt.Sprintf("runner type %q is reserved for composite action calls", runnerType))
	}
	if _, exists := r.runners[runnerType]; exists {
		panic(fmt.Sprintf("runner handler for type '%s' already registered", runnerType))
	}
	slog.Debug("Registering runner handler.", "type", runnerType)
	r.runners[runnerType] = handler
}

// Runner looks up the handler for a runner type.
func (r *Registry) Runner(runnerType string) (*RegisteredRunner, bool) {
	handler, ok := r.runners[runnerType]
	return handler, ok
}

// Validate checks that every step in the model (workflow and composite
// action steps alike) names a registered runner type. Composite calls are
// validated by the action resolver instead.
func (r *Registry) Validate(model *config.Model) error {
	check := func(subject string, steps []*config.Step) error {
		for _, step := range steps {
			if step.IsUse() {
				continue
			}
			if _, ok := r.runners[step.RunnerType]; !ok {
				return config.Errorf(subject, "step %q uses unknown runner type %q", step.Name, step.RunnerType)
			}
		}
		return nil
	}

	for _, name := range model.WorkflowOrder {
		wf := model.Workflows[name]
		for _, job := range wf.Jobs {
			if err := check(fmt.Sprintf("%s.%s", wf.Name, job.ID), job.Steps); err != nil {
				return err
			}
		}
	}
	for _, act := range model.Actions {
		if err := check(act.Name, act.Steps); err != nil {
			return err
		}
	}
	return nil
}
