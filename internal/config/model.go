package config

import (
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// Model is the unified representation of everything loaded at run start:
// workflow documents plus composite action documents.
type Model struct {
	Workflows map[string]*Workflow
	Actions   map[string]*CompositeAction

	// WorkflowOrder preserves document declaration order for deterministic
	// trigger evaluation across multiple workflows.
	WorkflowOrder []string
}

// Workflow is a named collection of jobs plus the trigger specification
// deciding which events activate it.
type Workflow struct {
	Name     string
	Triggers *TriggerSpec
	Jobs     []*Job
}

// Job returns the job with the given identifier, or nil.
func (w *Workflow) Job(id string) *Job {
	for _, j := range w.Jobs {
		if j.ID == id {
			return j
		}
	}
	return nil
}

// TriggerSpec describes which event kinds fire a workflow and under which
// ref/type filters.
type TriggerSpec struct {
	Push        *PushFilter
	Tag         *TagFilter
	PullRequest *PullRequestFilter
	Dispatch    bool
}

// PushFilter filters branch push events by branch name patterns.
type PushFilter struct {
	Branches       []string
	BranchesIgnore []string
}

// TagFilter filters tag push events by tag name patterns.
type TagFilter struct {
	Tags       []string
	TagsIgnore []string
}

// PullRequestFilter filters pull request events by activity type and base
// branch patterns.
type PullRequestFilter struct {
	Types          []string
	Branches       []string
	BranchesIgnore []string
}

// Job is one schedulable unit of a workflow. Its matrix expands it into one
// or more instances; its needs edges order it against other jobs.
type Job struct {
	ID              string
	Needs           []string
	Condition       hcl.Expression // nil means the default success() gate
	ContinueOnError bool
	FailFast        bool
	Timeout         time.Duration // zero means no limit
	Matrix          *Matrix
	Steps           []*Step
}

// Matrix is an ordered set of named axes plus exclude/include override rules.
type Matrix struct {
	Axes     []*Axis
	Excludes []Rule
	Includes []Rule
}

// Axis is one named matrix dimension with its ordered value list.
type Axis struct {
	Name   string
	Values []string
}

// Rule is a single include or exclude entry: a mapping from axis names to
// values. Rules are applied in declaration order, so a later rule overrides
// an earlier one for the same axis-value key.
type Rule map[string]string

// UseRunner is the reserved runner type marking a composite action call.
const UseRunner = "use"

// Step is either a direct invocation of a registered runner, or (when
// RunnerType is UseRunner) a reference to a composite action.
type Step struct {
	RunnerType string
	Name       string

	// ArgsBody is the raw arguments block, decoded into the runner's input
	// struct at execution time. Arguments carries the same attributes as
	// individual expressions for reference analysis.
	ArgsBody  hcl.Body
	Arguments map[string]hcl.Expression

	Condition hcl.Expression // nil means the default success() gate

	ContinueOnError bool
	Timeout         time.Duration
	Secrets         []string

	// Action and With are only set for UseRunner steps.
	Action string
	With   map[string]hcl.Expression
}

// IsUse reports whether the step is a composite action call.
func (s *Step) IsUse() bool { return s.RunnerType == UseRunner }

// CompositeAction is a named, parameterized, reusable sequence of steps.
type CompositeAction struct {
	Name        string
	Description string
	Inputs      map[string]*InputDefinition
	Steps       []*Step
}

// InputDefinition declares a single composite action input.
type InputDefinition struct {
	Name        string
	Description string
	Default     *cty.Value
	Required    bool
}
