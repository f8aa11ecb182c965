// Package schema declares the HCL block structures of pipeline documents.
// These structs mirror the on-disk syntax; the hcl package translates them
// into the format-agnostic config model.
package schema

import "github.com/hashicorp/hcl/v2"

// Document is the top-level structure of any pipeline file. Workflow and
// action blocks may live in the same file or be split across files.
type Document struct {
	Workflows []*Workflow `hcl:"workflow,block"`
	Actions   []*Action   `hcl:"action,block"`
	Body      hcl.Body    `hcl:",remain"`
}

// Workflow represents a `workflow` block: a trigger specification plus an
// ordered set of jobs.
type Workflow struct {
	Name string   `hcl:"name,label"`
	On   *OnBlock `hcl:"on,block"`
	Jobs []*Job   `hcl:"job,block"`
}

// OnBlock is the trigger specification of a workflow.
type OnBlock struct {
	Push        *PushTrigger        `hcl:"push,block"`
	Tag         *TagTrigger         `hcl:"tag,block"`
	PullRequest *PullRequestTrigger `hcl:"pull_request,block"`
	Dispatch    *DispatchTrigger    `hcl:"dispatch,block"`
}

// PushTrigger filters branch pushes.
type PushTrigger struct {
	Branches       []string `hcl:"branches,optional"`
	BranchesIgnore []string `hcl:"branches_ignore,optional"`
}

// TagTrigger filters tag pushes.
type TagTrigger struct {
	Tags       []string `hcl:"tags,optional"`
	TagsIgnore []string `hcl:"tags_ignore,optional"`
}

// PullRequestTrigger filters pull request activity.
type PullRequestTrigger struct {
	Types          []string `hcl:"types,optional"`
	Branches       []string `hcl:"branches,optional"`
	BranchesIgnore []string `hcl:"branches_ignore,optional"`
}

// DispatchTrigger enables explicit invocation. It carries no filters.
type DispatchTrigger struct{}

// Job represents a `job` block.
type Job struct {
	ID              string         `hcl:"id,label"`
	Needs           []string       `hcl:"needs,optional"`
	Condition       hcl.Expression `hcl:"condition,optional"`
	ContinueOnError *bool          `hcl:"continue_on_error,optional"`
	FailFast        *bool          `hcl:"fail_fast,optional"`
	Timeout         string         `hcl:"timeout,optional"`
	Matrix          *MatrixBlock   `hcl:"matrix,block"`
	Steps           []*Step        `hcl:"step,block"`
}

// MatrixBlock declares a job's matrix axes and override rules.
type MatrixBlock struct {
	Axes     []*AxisBlock `hcl:"axis,block"`
	Excludes []*RuleBlock `hcl:"exclude,block"`
	Includes []*RuleBlock `hcl:"include,block"`
}

// AxisBlock is one named matrix dimension.
type AxisBlock struct {
	Name   string   `hcl:"name,label"`
	Values []string `hcl:"values"`
}

// RuleBlock is an include or exclude entry; its attributes map axis names
// to values.
type RuleBlock struct {
	Body hcl.Body `hcl:",remain"`
}

// StepArgs represents the content of the `arguments` block within a step.
type StepArgs struct {
	Body hcl.Body `hcl:",remain"`
}

// WithBlock represents the `with` block of a composite action call.
type WithBlock struct {
	Body hcl.Body `hcl:",remain"`
}

// Step represents a `step` block: two labels, runner type then instance
// name. The reserved runner type "use" marks a composite action call, in
// which case `action` and `with` apply instead of `arguments`.
type Step struct {
	RunnerType string         `hcl:"runner_type,label"`
	Name       string         `hcl:"instance_name,label"`
	Arguments  *StepArgs      `hcl:"arguments,block"`
	Action     string         `hcl:"action,optional"`
	With       *WithBlock     `hcl:"with,block"`
	Condition  hcl.Expression `hcl:"condition,optional"`

	ContinueOnError *bool    `hcl:"continue_on_error,optional"`
	Timeout         string   `hcl:"timeout,optional"`
	Secrets         []string `hcl:"secrets,optional"`
}

// Action represents an `action` block: a named, parameterized, reusable
// step sequence.
type Action struct {
	Name        string             `hcl:"name,label"`
	Description string             `hcl:"description,optional"`
	Inputs      []*InputDefinition `hcl:"input,block"`
	Steps       []*Step            `hcl:"step,block"`
}

// InputDefinition declares a single action input. The default is kept as
// an expression and evaluated (without any variables) at load time.
type InputDefinition struct {
	Name        string         `hcl:"name,label"`
	Description string         `hcl:"description,optional"`
	Default     hcl.Expression `hcl:"default,optional"`
	Required    *bool          `hcl:"required,optional"`
}
