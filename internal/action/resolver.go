// Package action resolves composite action calls into flat step lists with
// their input bindings. Resolution happens per job instance (inputs may
// reference matrix values), but every structural problem (unknown action,
// missing required input, cyclic reference) is caught at load time.
package action

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/pipegrid/internal/config"
	"github.com/vk/pipegrid/internal/dag"
	"github.com/vk/pipegrid/internal/expr"
)

// ResolvedStep is one concrete runnable step after composite expansion.
type ResolvedStep struct {
	// Step is the underlying step definition; never a composite call.
	Step *config.Step
	// Name is the flattened step name; steps expanded from a composite
	// call are prefixed with the call's name ("setup/install").
	Name string
	// Inputs is the input scope the step's expressions evaluate against.
	Inputs map[string]cty.Value
	// Gates are the conditions of the enclosing composite calls. They are
	// evaluated (outermost first) before the step's own condition; any
	// false gate skips the step.
	Gates []gate
}

// gate pairs an enclosing call's condition with the input scope it must be
// evaluated in.
type gate struct {
	Condition hcl.Expression
	Inputs    map[string]cty.Value
}

// Resolver expands composite action references.
type Resolver struct {
	actions map[string]*config.CompositeAction
}

// NewResolver creates a resolver over the loaded composite actions.
func NewResolver(actions map[string]*config.CompositeAction) *Resolver {
	return &Resolver{actions: actions}
}

// Validate checks every composite call in the model: referenced actions
// exist, with-arguments match declared inputs, required inputs are
// supplied or defaulted, and the action reference graph is acyclic. It
// runs at load time so a broken pipeline never starts.
func (r *Resolver) Validate(model *config.Model) error {
	for _, name := range model.WorkflowOrder {
		wf := model.Workflows[name]
		for _, job := range wf.Jobs {
			subject := fmt.Sprintf("%s.%s", wf.Name, job.ID)
			if err := r.validateSteps(subject, job.Steps); err != nil {
				return err
			}
		}
	}
	for _, act := range r.actions {
		if err := r.validateSteps(act.Name, act.Steps); err != nil {
			return err
		}
	}
	return r.detectCycles()
}

func (r *Resolver) validateSteps(subject string, steps []*config.Step) error {
	for _, step := range steps {
		if !step.IsUse() {
			continue
		}
		act, ok := r.actions[step.Action]
		if !ok {
			return config.Errorf(subject, "step %q references unknown action %q", step.Name, step.Action)
		}
		for name := range step.With {
			if _, declared := act.Inputs[name]; !declared {
				return config.Errorf(subject, "step %q supplies undeclared input %q to action %q", step.Name, name, act.Name)
			}
		}
		for name, def := range act.Inputs {
			if def.Default != nil {
				continue
			}
			if _, supplied := step.With[name]; !supplied && def.Required {
				return config.Errorf(subject, "step %q is missing required input %q of action %q", step.Name, name, act.Name)
			}
		}
	}
	return nil
}

// detectCycles validates that no composite action transitively references
// itself.
func (r *Resolver) detectCycles() error {
	graph := dag.New()
	for name := range r.actions {
		graph.AddNode(name)
	}
	for name, act := range r.actions {
		for _, step := range act.Steps {
			if !step.IsUse() {
				continue
			}
			if _, ok := r.actions[step.Action]; !ok {
				continue // reported by validateSteps
			}
			if err := graph.AddEdge(name, step.Action); err != nil {
				return config.Errorf(name, "action references itself via step %q", step.Name)
			}
		}
	}
	if err := graph.DetectCycles(); err != nil {
		return &config.Error{Subject: "actions", Detail: "cyclic composite action reference", Err: err}
	}
	return nil
}

// Flatten expands composite calls in the given step list, binding input
// scopes along the way. The env is the caller's evaluation environment;
// with-arguments are evaluated against it.
func (r *Resolver) Flatten(steps []*config.Step, env *expr.Env) ([]*ResolvedStep, error) {
	return r.flatten(steps, env, nil, nil, nil)
}

func (r *Resolver) flatten(steps []*config.Step, env *expr.Env, prefix []string, scope map[string]cty.Value, gates []gate) ([]*ResolvedStep, error) {
	var out []*ResolvedStep
	for _, step := range steps {
		name := flatName(prefix, step.Name)

		if !step.IsUse() {
			out = append(out, &ResolvedStep{
				Step:   step,
				Name:   name,
				Inputs: scope,
				Gates:  gates,
			})
			continue
		}

		act, ok := r.actions[step.Action]
		if !ok {
			// Validate catches this at load time; guard anyway.
			return nil, config.Errorf(name, "unknown action %q", step.Action)
		}

		childScope, err := r.bindInputs(name, act, step, env, scope)
		if err != nil {
			return nil, err
		}

		childGates := gates
		if step.Condition != nil {
			childGates = append(append([]gate{}, gates...), gate{Condition: step.Condition, Inputs: scope})
		}

		expanded, err := r.flatten(act.Steps, env, append(prefix, step.Name), childScope, childGates)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
	}
	return out, nil
}

// bindInputs computes the input scope for one composite call: the caller's
// with-value wins, then the declared default, else the input must not be
// required.
func (r *Resolver) bindInputs(subject string, act *config.CompositeAction, call *config.Step, env *expr.Env, callerScope map[string]cty.Value) (map[string]cty.Value, error) {
	scope := make(map[string]cty.Value, len(act.Inputs))
	for name, def := range act.Inputs {
		if e, ok := call.With[name]; ok {
			callerEnv := *env
			callerEnv.Inputs = callerScope
			val, err := expr.Value(e, &callerEnv)
			if err != nil {
				return nil, &config.Error{Subject: subject, Detail: fmt.Sprintf("input %q", name), Err: err}
			}
			scope[name] = val
			continue
		}
		if def.Default != nil {
			scope[name] = *def.Default
			continue
		}
		if def.Required {
			return nil, config.Errorf(subject, "missing required input %q of action %q", name, act.Name)
		}
		scope[name] = cty.NullVal(cty.DynamicPseudoType)
	}
	return scope, nil
}

// EvalGates evaluates the enclosing call conditions of a resolved step.
// The first false gate wins.
func EvalGates(rs *ResolvedStep, env *expr.Env) (bool, error) {
	for _, g := range rs.Gates {
		gateEnv := *env
		gateEnv.Inputs = g.Inputs
		ok, err := expr.Eval(g.Condition, &gateEnv)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func flatName(prefix []string, name string) string {
	if len(prefix) == 0 {
		return name
	}
	return strings.Join(prefix, "/") + "/" + name
}
