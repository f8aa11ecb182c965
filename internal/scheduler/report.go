package scheduler

import (
	"github.com/vk/pipegrid/internal/run"
)

// Report is a point-in-time view of a run, safe to take while the run is
// in flight. It backs both the CLI summary and the status API.
type Report struct {
	RunID    string      `json:"run_id"`
	Workflow string      `json:"workflow"`
	Status   string      `json:"status"`
	Jobs     []JobReport `json:"jobs"`
}

// JobReport aggregates the instances of one job.
type JobReport struct {
	ID        string           `json:"id"`
	Result    string           `json:"result,omitempty"`
	Instances []InstanceReport `json:"instances"`
}

// InstanceReport describes one job instance.
type InstanceReport struct {
	ID       string            `json:"id"`
	Job      string            `json:"job"`
	Matrix   map[string]string `json:"matrix,omitempty"`
	Status   string            `json:"status"`
	Error    string            `json:"error,omitempty"`
	Duration int64             `json:"duration_ms,omitempty"`
	Steps    []StepReport      `json:"steps,omitempty"`
}

// StepReport describes one executed (or skipped) step of an instance.
type StepReport struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Duration int64  `json:"duration_ms,omitempty"`
	Artifact string `json:"artifact,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Snapshot renders the current run state. Jobs follow workflow declaration
// order; instances follow expansion order.
func (s *Scheduler) Snapshot() *Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := &Report{
		RunID:    s.runCtx.ID,
		Workflow: s.workflow.Name,
		Jobs:     make([]JobReport, 0, len(s.workflow.Jobs)),
	}

	done := true
	for _, job := range s.workflow.Jobs {
		jr := JobReport{ID: job.ID}
		jobDone := true
		for _, inst := range s.byJob[job.ID] {
			if !inst.status.Terminal() {
				jobDone = false
			}
			jr.Instances = append(jr.Instances, instanceReport(inst))
		}
		if jobDone {
			jr.Result = string(s.jobResultLocked(job.ID))
		} else {
			done = false
		}
		report.Jobs = append(report.Jobs, jr)
	}

	if done {
		report.Status = s.terminalStatusLocked().String()
	} else {
		report.Status = run.Running.String()
	}
	return report
}

func instanceReport(inst *Instance) InstanceReport {
	ir := InstanceReport{
		ID:     inst.ID,
		Job:    inst.Job.ID,
		Status: inst.status.String(),
	}
	if !inst.Combo.Empty() {
		ir.Matrix = inst.Combo.Values
	}
	if inst.err != nil {
		ir.Error = inst.err.Error()
	}
	if !inst.started.IsZero() && !inst.finished.IsZero() {
		ir.Duration = inst.finished.Sub(inst.started).Milliseconds()
	}
	for _, sr := range inst.results {
		step := StepReport{
			Name:     sr.Name,
			Status:   sr.Status.String(),
			Duration: sr.Duration.Milliseconds(),
			Artifact: sr.Artifact,
		}
		if sr.Err != nil {
			step.Error = sr.Err.Error()
		}
		ir.Steps = append(ir.Steps, step)
	}
	return ir
}

// terminalStatusLocked aggregates instance states once every instance is
// terminal. The run surface only knows Succeeded, Failed and Cancelled;
// a run whose every instance was skipped still counts as Succeeded.
// Callers hold the mutex.
func (s *Scheduler) terminalStatusLocked() run.Status {
	cancelled := false
	for _, inst := range s.instances {
		switch inst.status {
		case run.Failed:
			if !inst.Job.ContinueOnError {
				return run.Failed
			}
		case run.Cancelled:
			cancelled = true
		}
	}
	if cancelled {
		return run.Cancelled
	}
	return run.Succeeded
}
