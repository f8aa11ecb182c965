package hcl

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/vk/pipegrid/internal/config"
	"github.com/vk/pipegrid/internal/schema"
)

// translateWorkflow converts the HCL-specific workflow schema into the
// agnostic model.
func translateWorkflow(wf *schema.Workflow) (*config.Workflow, error) {
	out := &config.Workflow{
		Name:     wf.Name,
		Triggers: translateTriggers(wf.On),
	}
	for _, job := range wf.Jobs {
		translated, err := translateJob(wf.Name, job)
		if err != nil {
			return nil, err
		}
		out.Jobs = append(out.Jobs, translated)
	}
	return out, nil
}

func translateTriggers(on *schema.OnBlock) *config.TriggerSpec {
	if on == nil {
		return nil
	}
	spec := &config.TriggerSpec{Dispatch: on.Dispatch != nil}
	if on.Push != nil {
		spec.Push = &config.PushFilter{
			Branches:       on.Push.Branches,
			BranchesIgnore: on.Push.BranchesIgnore,
		}
	}
	if on.Tag != nil {
		spec.Tag = &config.TagFilter{
			Tags:       on.Tag.Tags,
			TagsIgnore: on.Tag.TagsIgnore,
		}
	}
	if on.PullRequest != nil {
		spec.PullRequest = &config.PullRequestFilter{
			Types:          on.PullRequest.Types,
			Branches:       on.PullRequest.Branches,
			BranchesIgnore: on.PullRequest.BranchesIgnore,
		}
	}
	return spec
}

func translateJob(workflow string, job *schema.Job) (*config.Job, error) {
	subject := fmt.Sprintf("%s.%s", workflow, job.ID)

	timeout, err := parseTimeout(subject, job.Timeout)
	if err != nil {
		return nil, err
	}

	out := &config.Job{
		ID:              job.ID,
		Needs:           job.Needs,
		Condition:       normalizeExpr(job.Condition),
		ContinueOnError: job.ContinueOnError != nil && *job.ContinueOnError,
		// Fail-fast over matrix siblings defaults to on.
		FailFast: job.FailFast == nil || *job.FailFast,
		Timeout:  timeout,
	}

	if job.Matrix != nil {
		m, err := translateMatrix(subject, job.Matrix)
		if err != nil {
			return nil, err
		}
		out.Matrix = m
	}

	for _, step := range job.Steps {
		translated, err := translateStep(subject, step)
		if err != nil {
			return nil, err
		}
		out.Steps = append(out.Steps, translated)
	}
	return out, nil
}

func translateMatrix(subject string, m *schema.MatrixBlock) (*config.Matrix, error) {
	out := &config.Matrix{}
	for _, axis := range m.Axes {
		out.Axes = append(out.Axes, &config.Axis{Name: axis.Name, Values: axis.Values})
	}
	for _, rule := range m.Excludes {
		translated, err := translateRule(subject, rule)
		if err != nil {
			return nil, err
		}
		out.Excludes = append(out.Excludes, translated)
	}
	for _, rule := range m.Includes {
		translated, err := translateRule(subject, rule)
		if err != nil {
			return nil, err
		}
		out.Includes = append(out.Includes, translated)
	}
	return out, nil
}

// translateRule flattens an include/exclude block's attributes into an
// axis→value mapping. Values must be literal strings.
func translateRule(subject string, rule *schema.RuleBlock) (config.Rule, error) {
	attrs, diags := rule.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, &config.Error{Subject: subject, Detail: "invalid matrix rule", Err: diags}
	}
	out := make(config.Rule, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, &config.Error{Subject: subject, Detail: fmt.Sprintf("matrix rule value for %q must be literal", name), Err: diags}
		}
		if val.IsNull() {
			return nil, config.Errorf(subject, "matrix rule value for %q is null", name)
		}
		str, err := stringValue(val)
		if err != nil {
			return nil, config.Errorf(subject, "matrix rule value for %q: %v", name, err)
		}
		out[name] = str
	}
	return out, nil
}

func translateStep(subject string, step *schema.Step) (*config.Step, error) {
	stepSubject := fmt.Sprintf("%s.%s", subject, step.Name)

	timeout, err := parseTimeout(stepSubject, step.Timeout)
	if err != nil {
		return nil, err
	}

	out := &config.Step{
		RunnerType:      step.RunnerType,
		Name:            step.Name,
		Condition:       normalizeExpr(step.Condition),
		ContinueOnError: step.ContinueOnError != nil && *step.ContinueOnError,
		Timeout:         timeout,
		Secrets:         step.Secrets,
		Action:          step.Action,
	}
	if step.Arguments != nil {
		out.ArgsBody = step.Arguments.Body
		out.Arguments = bodyAttributes(step.Arguments.Body)
	}
	if step.With != nil {
		out.With = bodyAttributes(step.With.Body)
	}
	return out, nil
}

func translateAction(act *schema.Action) (*config.CompositeAction, error) {
	out := &config.CompositeAction{
		Name:        act.Name,
		Description: act.Description,
		Inputs:      make(map[string]*config.InputDefinition, len(act.Inputs)),
	}
	for _, in := range act.Inputs {
		def := &config.InputDefinition{
			Name:        in.Name,
			Description: in.Description,
			Required:    in.Required != nil && *in.Required,
		}
		if in.Default != nil {
			val, diags := in.Default.Value(nil)
			// A default is only usable if it evaluates without error and
			// is not null.
			if !diags.HasErrors() && !val.IsNull() {
				def.Default = &val
			}
		}
		if def.Required && def.Default != nil {
			return nil, config.Errorf(act.Name, "input %q cannot be required and carry a default", in.Name)
		}
		out.Inputs[in.Name] = def
	}
	for _, step := range act.Steps {
		translated, err := translateStep(act.Name, step)
		if err != nil {
			return nil, err
		}
		out.Steps = append(out.Steps, translated)
	}
	return out, nil
}

// bodyAttributes extracts a block body's attributes as raw expressions.
func bodyAttributes(body hcl.Body) map[string]hcl.Expression {
	if body == nil {
		return nil
	}
	attrs, _ := body.JustAttributes()
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]hcl.Expression, len(attrs))
	for name, attr := range attrs {
		out[name] = attr.Expr
	}
	return out
}

// normalizeExpr maps an absent condition attribute to nil so that callers
// can distinguish "no condition" from an explicit one.
func normalizeExpr(e hcl.Expression) hcl.Expression {
	if e == nil {
		return nil
	}
	// gohcl leaves absent optional expression attributes as a static null
	// expression in some decode paths; treat those as unset too.
	if len(e.Variables()) == 0 {
		if val, diags := e.Value(nil); !diags.HasErrors() && val.IsNull() {
			return nil
		}
	}
	return e
}

// stringValue converts a literal cty value to its string form.
func stringValue(val cty.Value) (string, error) {
	converted, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", err
	}
	return converted.AsString(), nil
}

func parseTimeout(subject, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, config.Errorf(subject, "invalid timeout %q: %v", raw, err)
	}
	if d <= 0 {
		return 0, config.Errorf(subject, "timeout must be positive, got %q", raw)
	}
	return d, nil
}
