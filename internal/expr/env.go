package expr

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/vk/pipegrid/internal/event"
	"github.com/vk/pipegrid/internal/run"
)

// Env is the read-only environment a condition or argument expression is
// evaluated against.
type Env struct {
	// Event is the triggering event, exposed as event.*.
	Event *event.Event
	// Matrix holds the instance's axis values, exposed as matrix.<axis>.
	Matrix map[string]string
	// Needs maps upstream job IDs to their aggregated result, exposed as
	// needs.<job>.result.
	Needs map[string]run.Result
	// Steps maps prior step names (within the same instance) to their
	// outcome, exposed as steps.<name>.outcome.
	Steps map[string]run.Result
	// Inputs holds composite action input bindings, exposed as input.<name>.
	Inputs map[string]cty.Value
	// DepResults are the outcomes of the unit's direct dependencies: the
	// needed jobs' instances for a job gate, the prior steps for a step
	// gate. The status predicate functions evaluate over this set.
	DepResults []run.Result
}

// DefaultGate is the implicit success()-over-dependencies condition used
// when a job or step declares none.
func (env *Env) DefaultGate() bool {
	for _, r := range env.DepResults {
		if r != run.ResultSuccess {
			return false
		}
	}
	return true
}

// Eval evaluates a gate condition to a boolean. A nil expression is the
// default success() gate. Null or unknown results gate to false; a result
// that cannot convert to bool is an error.
func Eval(e hcl.Expression, env *Env) (bool, error) {
	if e == nil {
		return env.DefaultGate(), nil
	}
	val, diags := e.Value(env.EvalContext(e))
	if diags.HasErrors() {
		return false, fmt.Errorf("condition evaluation failed: %w", diags)
	}
	val, err := convert.Convert(val, cty.Bool)
	if err != nil {
		return false, fmt.Errorf("condition is not a boolean: %w", err)
	}
	if val.IsNull() || !val.IsKnown() {
		return false, nil
	}
	return val.True(), nil
}

// Value evaluates an arbitrary expression, e.g. a composite action call's
// with-argument.
func Value(e hcl.Expression, env *Env) (cty.Value, error) {
	val, diags := e.Value(env.EvalContext(e))
	if diags.HasErrors() {
		return cty.NilVal, fmt.Errorf("expression evaluation failed: %w", diags)
	}
	return val, nil
}

// EvalContext builds the HCL evaluation context for the given expressions.
// Every variable the expressions reference resolves to something: known
// environment data where available, typed nulls everywhere else, so that
// evaluation never fails on an unknown identifier.
func (env *Env) EvalContext(exprs ...hcl.Expression) *hcl.EvalContext {
	refs := collectRefs(exprs)

	vars := map[string]cty.Value{
		"event":  eventValue(env.Event),
		"matrix": stringMapValue(env.Matrix, refs["matrix"]),
		"needs":  resultMapValue(env.Needs, refs["needs"], "result"),
		"steps":  resultMapValue(env.Steps, refs["steps"], "outcome"),
		"input":  inputValue(env.Inputs, refs["input"]),
	}
	for root := range refs {
		if _, known := vars[root]; !known {
			vars[root] = cty.NullVal(cty.DynamicPseudoType)
		}
	}

	return &hcl.EvalContext{
		Variables: vars,
		Functions: env.functions(),
	}
}

// collectRefs gathers, per root identifier, the attribute names an
// expression set dereferences on it. The attribute sets are used to pad
// variable objects with nulls for missing keys.
func collectRefs(exprs []hcl.Expression) map[string]map[string]bool {
	refs := make(map[string]map[string]bool)
	for _, e := range exprs {
		if e == nil {
			continue
		}
		for _, traversal := range e.Variables() {
			root := traversal.RootName()
			if refs[root] == nil {
				refs[root] = make(map[string]bool)
			}
			if len(traversal) > 1 {
				if attr, ok := traversal[1].(hcl.TraverseAttr); ok {
					refs[root][attr.Name] = true
				}
			}
		}
	}
	return refs
}

// eventValue renders the event as a fixed-shape object. The pull_request
// sub-object always exists so that dereferencing it is safe for any event
// kind.
func eventValue(ev *event.Event) cty.Value {
	kind, ref, repo, actor := "", "", "", ""
	pr := &event.PullRequestInfo{}
	if ev != nil {
		kind, ref, repo, actor = string(ev.Kind), ev.Ref, ev.Repository, ev.Actor
		if ev.PullRequest != nil {
			pr = ev.PullRequest
		}
	}
	return cty.ObjectVal(map[string]cty.Value{
		"kind":       cty.StringVal(kind),
		"ref":        cty.StringVal(ref),
		"repository": cty.StringVal(repo),
		"actor":      cty.StringVal(actor),
		"pull_request": cty.ObjectVal(map[string]cty.Value{
			"action":    cty.StringVal(pr.Action),
			"head_ref":  cty.StringVal(pr.HeadRef),
			"head_repo": cty.StringVal(pr.HeadRepo),
			"base_ref":  cty.StringVal(pr.BaseRef),
		}),
	})
}

// stringMapValue renders a string map as an object, padding referenced but
// missing keys with null strings.
func stringMapValue(values map[string]string, referenced map[string]bool) cty.Value {
	attrs := make(map[string]cty.Value, len(values))
	for k, v := range values {
		attrs[k] = cty.StringVal(v)
	}
	for k := range referenced {
		if _, ok := attrs[k]; !ok {
			attrs[k] = cty.NullVal(cty.String)
		}
	}
	if len(attrs) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(attrs)
}

// resultMapValue renders a result map as nested objects exposing one
// string field (result or outcome) per entry.
func resultMapValue(results map[string]run.Result, referenced map[string]bool, field string) cty.Value {
	attrs := make(map[string]cty.Value, len(results))
	for k, r := range results {
		attrs[k] = cty.ObjectVal(map[string]cty.Value{field: cty.StringVal(string(r))})
	}
	for k := range referenced {
		if _, ok := attrs[k]; !ok {
			attrs[k] = cty.ObjectVal(map[string]cty.Value{field: cty.NullVal(cty.String)})
		}
	}
	if len(attrs) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(attrs)
}

// inputValue renders composite action inputs, padding referenced but
// unbound names with nulls.
func inputValue(inputs map[string]cty.Value, referenced map[string]bool) cty.Value {
	attrs := make(map[string]cty.Value, len(inputs))
	for k, v := range inputs {
		attrs[k] = v
	}
	for k := range referenced {
		if _, ok := attrs[k]; !ok {
			attrs[k] = cty.NullVal(cty.DynamicPseudoType)
		}
	}
	if len(attrs) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(attrs)
}
