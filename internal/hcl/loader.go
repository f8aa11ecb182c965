package hcl

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/pipegrid/internal/config"
	"github.com/vk/pipegrid/internal/ctxlog"
	"github.com/vk/pipegrid/internal/fsutil"
	"github.com/vk/pipegrid/internal/schema"
)

// Loader reads .hcl pipeline documents.
type Loader struct{}

// NewLoader creates a Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load implements config.Loader. Workflow and action blocks may appear in
// any discovered file; discovery order is deterministic.
func (l *Loader) Load(ctx context.Context, workflowPath, actionsPath string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)

	paths := []string{workflowPath}
	if actionsPath != "" {
		paths = append(paths, actionsPath)
	}

	model := &config.Model{
		Workflows: make(map[string]*config.Workflow),
		Actions:   make(map[string]*config.CompositeAction),
	}

	parser := hclparse.NewParser()
	for _, root := range paths {
		files, err := fsutil.FindFilesByExtension(root, ".hcl")
		if err != nil {
			return nil, &config.Error{Subject: root, Detail: "failed to discover documents", Err: err}
		}
		if len(files) == 0 {
			logger.Warn("No .hcl documents found in path.", "path", root)
		}

		for _, filePath := range files {
			hclFile, diags := parser.ParseHCLFile(filePath)
			if diags.HasErrors() {
				return nil, &config.Error{Subject: filePath, Detail: "failed to parse document", Err: diags}
			}

			var doc schema.Document
			if diags := gohcl.DecodeBody(hclFile.Body, nil, &doc); diags.HasErrors() {
				return nil, &config.Error{Subject: filePath, Detail: "failed to decode document", Err: diags}
			}

			for _, wf := range doc.Workflows {
				if _, exists := model.Workflows[wf.Name]; exists {
					return nil, config.Errorf(filePath, "duplicate workflow %q", wf.Name)
				}
				translated, err := translateWorkflow(wf)
				if err != nil {
					return nil, err
				}
				model.Workflows[wf.Name] = translated
				model.WorkflowOrder = append(model.WorkflowOrder, wf.Name)
			}
			for _, act := range doc.Actions {
				if _, exists := model.Actions[act.Name]; exists {
					return nil, config.Errorf(filePath, "duplicate action %q", act.Name)
				}
				translated, err := translateAction(act)
				if err != nil {
					return nil, err
				}
				model.Actions[act.Name] = translated
			}
			logger.Debug("Loaded pipeline document.", "file", filePath)
		}
	}

	if err := validateModel(model); err != nil {
		return nil, err
	}

	logger.Info("Pipeline documents loaded.",
		"workflows", len(model.Workflows), "actions", len(model.Actions))
	return model, nil
}

// validateModel performs the structural checks that do not need the graph:
// unique job IDs, resolvable needs references, and step shape.
func validateModel(model *config.Model) error {
	for _, name := range model.WorkflowOrder {
		wf := model.Workflows[name]
		if len(wf.Jobs) == 0 {
			return config.Errorf(wf.Name, "workflow declares no jobs")
		}
		seen := make(map[string]bool, len(wf.Jobs))
		for _, job := range wf.Jobs {
			subject := fmt.Sprintf("%s.%s", wf.Name, job.ID)
			if seen[job.ID] {
				return config.Errorf(wf.Name, "duplicate job %q", job.ID)
			}
			seen[job.ID] = true

			for _, need := range job.Needs {
				if wf.Job(need) == nil {
					return config.Errorf(subject, "needs unknown job %q", need)
				}
			}
			if len(job.Steps) == 0 {
				return config.Errorf(subject, "job declares no steps")
			}
			if err := validateSteps(subject, job.Steps); err != nil {
				return err
			}
			if job.Matrix != nil {
				for _, axis := range job.Matrix.Axes {
					if len(axis.Values) == 0 {
						return config.Errorf(subject, "matrix axis %q has no values", axis.Name)
					}
				}
			}
		}
	}
	for _, act := range model.Actions {
		if len(act.Steps) == 0 {
			return config.Errorf(act.Name, "action declares no steps")
		}
		if err := validateSteps(act.Name, act.Steps); err != nil {
			return err
		}
	}
	return nil
}

func validateSteps(subject string, steps []*config.Step) error {
	seen := make(map[string]bool, len(steps))
	for _, step := range steps {
		if seen[step.Name] {
			return config.Errorf(subject, "duplicate step %q", step.Name)
		}
		seen[step.Name] = true

		if step.IsUse() {
			if step.Action == "" {
				return config.Errorf(subject, "step %q is a composite call but names no action", step.Name)
			}
		} else if step.Action != "" || step.With != nil {
			return config.Errorf(subject, "step %q sets action/with but its runner type is %q, not %q",
				step.Name, step.RunnerType, config.UseRunner)
		}
	}
	return nil
}
