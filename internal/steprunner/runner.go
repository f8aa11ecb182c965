// Package steprunner executes the steps of one job instance sequentially.
// It resolves composite calls, evaluates gates, decodes runner arguments
// against the instance's expression environment and dispatches to the
// registered runner handlers.
package steprunner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"

	"github.com/vk/pipegrid/internal/action"
	"github.com/vk/pipegrid/internal/config"
	"github.com/vk/pipegrid/internal/ctxlog"
	"github.com/vk/pipegrid/internal/expr"
	"github.com/vk/pipegrid/internal/proc"
	"github.com/vk/pipegrid/internal/registry"
	"github.com/vk/pipegrid/internal/run"
	"github.com/vk/pipegrid/internal/secrets"
)

// Request carries everything needed to execute one job instance's steps.
type Request struct {
	// RunCtx is the immutable run context.
	RunCtx *run.Context
	// JobID and InstanceID identify the instance for logs and errors.
	JobID      string
	InstanceID string
	// Matrix holds the instance's axis values.
	Matrix map[string]string
	// Needs maps upstream job IDs to their aggregated results.
	Needs map[string]run.Result
	// Steps is the job's step list, composite calls unexpanded.
	Steps []*config.Step
	// Workspace is the instance-owned working directory.
	Workspace string
}

// StepResult records the outcome of one resolved step.
type StepResult struct {
	// Name is the flattened step name.
	Name string
	// Status is the step's terminal status.
	Status run.Status
	// Duration is the wall time spent executing, zero for skipped steps.
	Duration time.Duration
	// Artifact is the path the step produced, if any.
	Artifact string
	// Err is the failure cause for failed steps.
	Err error
}

// Runner executes an instance's steps in order.
type Runner struct {
	registry *registry.Registry
	resolver *action.Resolver
	proc     proc.Runner

	// Output receives redacted step output. Defaults to os.Stdout.
	Output io.Writer
}

// New creates a step runner over the given registry and composite action
// resolver.
func New(reg *registry.Registry, resolver *action.Resolver, procRunner proc.Runner) *Runner {
	return &Runner{registry: reg, resolver: resolver, proc: procRunner}
}

// Run executes the request's steps sequentially. Steps run in declared
// order; a failure stops the instance unless the failing step continues on
// error. The returned results cover every resolved step, including those
// skipped after a failure. A non-nil error means the instance failed or
// was cancelled.
func (r *Runner) Run(ctx context.Context, req *Request) ([]StepResult, error) {
	logger := ctxlog.FromContext(ctx).With("job", req.JobID, "instance", req.InstanceID)

	baseEnv := &expr.Env{
		Event:  req.RunCtx.Event,
		Matrix: req.Matrix,
		Needs:  req.Needs,
	}
	resolved, err := r.resolver.Flatten(req.Steps, baseEnv)
	if err != nil {
		return nil, err
	}

	results := make([]StepResult, 0, len(resolved))
	outcomes := make(map[string]run.Result, len(resolved))
	// depResults feeds the status predicates of later steps. Skipped steps
	// and continue-on-error failures do not poison success(), matching the
	// gating rules for steps rather than jobs.
	var depResults []run.Result
	var instanceErr error

	for i, rs := range resolved {
		if instanceErr != nil {
			results = append(results, StepResult{Name: rs.Name, Status: run.Skipped})
			outcomes[rs.Name] = run.ResultSkipped
			continue
		}
		if ctx.Err() != nil {
			// Cancelled between steps: nothing later may run and the
			// instance must not report success.
			for _, rest := range resolved[i:] {
				results = append(results, StepResult{Name: rest.Name, Status: run.Cancelled})
			}
			return results, ctx.Err()
		}

		env := &expr.Env{
			Event:      req.RunCtx.Event,
			Matrix:     req.Matrix,
			Needs:      req.Needs,
			Steps:      outcomes,
			Inputs:     rs.Inputs,
			DepResults: depResults,
		}

		ok, gateErr := r.shouldRun(rs, env)
		if gateErr != nil {
			instanceErr = &config.Error{Subject: rs.Name, Detail: "condition evaluation failed", Err: gateErr}
			results = append(results, StepResult{Name: rs.Name, Status: run.Failed, Err: instanceErr})
			outcomes[rs.Name] = run.ResultFailure
			continue
		}
		if !ok {
			logger.Debug("⏭️ Skipping step.", "step", rs.Name)
			results = append(results, StepResult{Name: rs.Name, Status: run.Skipped})
			outcomes[rs.Name] = run.ResultSkipped
			continue
		}

		logger.Info("▶️ Starting step.", "step", rs.Name)
		start := time.Now()
		outcome, execErr := r.execute(ctx, req, rs, env)
		duration := time.Since(start)

		result := StepResult{Name: rs.Name, Duration: duration}
		switch {
		case execErr == nil:
			result.Status = run.Succeeded
			if outcome != nil {
				result.Artifact = outcome.Artifact
			}
			outcomes[rs.Name] = run.ResultSuccess
			depResults = append(depResults, run.ResultSuccess)
			logger.Info("✅ Finished step.", "step", rs.Name, "duration", duration)

		case ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled):
			result.Status = run.Cancelled
			result.Err = execErr
			outcomes[rs.Name] = run.ResultCancelled
			results = append(results, result)
			return results, ctx.Err()

		default:
			result.Status = run.Failed
			result.Err = execErr
			outcomes[rs.Name] = run.ResultFailure
			if rs.Step.ContinueOnError {
				// The failure is recorded but does not stop the instance
				// and does not break success() for later steps.
				depResults = append(depResults, run.ResultSuccess)
				logger.Warn("Step failed but continues on error.", "step", rs.Name, "error", execErr)
			} else {
				depResults = append(depResults, run.ResultFailure)
				instanceErr = execErr
				logger.Error("❌ Step failed.", "step", rs.Name, "error", execErr)
			}
		}
		results = append(results, result)
	}

	return results, instanceErr
}

// shouldRun evaluates the enclosing call gates and the step's own
// condition.
func (r *Runner) shouldRun(rs *action.ResolvedStep, env *expr.Env) (bool, error) {
	ok, err := action.EvalGates(rs, env)
	if err != nil || !ok {
		return false, err
	}
	return expr.Eval(rs.Step.Condition, env)
}

// execute dispatches one resolved step to its runner handler.
func (r *Runner) execute(ctx context.Context, req *Request, rs *action.ResolvedStep, env *expr.Env) (*registry.Outcome, error) {
	handler, ok := r.registry.Runner(rs.Step.RunnerType)
	if !ok {
		// Registry validation catches this at startup; guard anyway.
		return nil, &ExecError{Step: rs.Name, Err: fmt.Errorf("no handler for runner type %q", rs.Step.RunnerType)}
	}

	var input any
	if handler.NewInput != nil {
		input = handler.NewInput()
		if rs.Step.ArgsBody != nil {
			evalCtx := env.EvalContext(argumentExprs(rs.Step)...)
			if diags := gohcl.DecodeBody(rs.Step.ArgsBody, evalCtx, input); diags.HasErrors() {
				return nil, &ExecError{Step: rs.Name, Err: fmt.Errorf("invalid arguments: %w", diags)}
			}
		}
	}

	stepEnv, err := r.buildEnv(req, rs)
	if err != nil {
		return nil, err
	}

	stepCtx := ctx
	if rs.Step.Timeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, rs.Step.Timeout)
		defer cancel()
	}

	dest := r.Output
	if dest == nil {
		dest = os.Stdout
	}
	out := secrets.NewRedactingWriter(dest, req.RunCtx.Secrets)
	ec := &registry.ExecContext{
		Workspace:  req.Workspace,
		Repository: req.RunCtx.CheckoutRepo,
		Ref:        req.RunCtx.CheckoutRef,
		Env:        stepEnv,
		Proc:       r.proc,
		Stdout:     out,
		Stderr:     out,
	}

	outcome, execErr := handler.Fn(stepCtx, ec, input)
	if execErr == nil {
		return outcome, nil
	}
	if stepCtx.Err() != nil && errors.Is(stepCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, &ExecError{Step: rs.Name, Timeout: true, Err: execErr}
	}
	var exitErr *proc.ExitError
	if errors.As(execErr, &exitErr) {
		return nil, &ExecError{Step: rs.Name, ExitCode: exitErr.Code, Err: execErr}
	}
	return nil, &ExecError{Step: rs.Name, Err: execErr}
}

// buildEnv assembles the process environment for one step: the host
// environment, the pipeline variables, and the step's declared secrets.
// A declared secret missing from the store fails the step; restricted runs
// therefore fail fast instead of running with an empty value.
func (r *Runner) buildEnv(req *Request, rs *action.ResolvedStep) ([]string, error) {
	env := append(os.Environ(),
		"PIPEGRID_RUN_ID="+req.RunCtx.ID,
		"PIPEGRID_WORKFLOW="+req.RunCtx.Workflow,
		"PIPEGRID_JOB="+req.JobID,
		"PIPEGRID_INSTANCE="+req.InstanceID,
		"PIPEGRID_REF="+req.RunCtx.CheckoutRef,
		"PIPEGRID_REPOSITORY="+req.RunCtx.CheckoutRepo,
		"PIPEGRID_WORKSPACE="+req.Workspace,
	)
	for _, name := range rs.Step.Secrets {
		val, ok := req.RunCtx.Secrets.Get(name)
		if !ok {
			detail := "secret is not defined"
			if req.RunCtx.Restricted {
				detail = "secret is unavailable in a restricted run"
			}
			return nil, &ExecError{Step: rs.Name, Err: config.Errorf(rs.Name, "%s: %q", detail, name)}
		}
		env = append(env, name+"="+val)
	}
	return env, nil
}

// argumentExprs lists the raw argument expressions of a step for reference
// collection.
func argumentExprs(step *config.Step) []hcl.Expression {
	exprs := make([]hcl.Expression, 0, len(step.Arguments))
	for _, e := range step.Arguments {
		exprs = append(exprs, e)
	}
	return exprs
}
