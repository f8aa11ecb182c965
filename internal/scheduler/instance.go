package scheduler

import (
	"context"
	"strings"
	"time"

	"github.com/vk/pipegrid/internal/config"
	"github.com/vk/pipegrid/internal/matrix"
	"github.com/vk/pipegrid/internal/run"
	"github.com/vk/pipegrid/internal/steprunner"
)

// Instance is one schedulable unit: a job paired with one matrix
// combination. Jobs without a matrix expand to a single instance.
type Instance struct {
	// ID is the instance identifier, "job" or "job[v1/v2]".
	ID string
	// Job is the defining job.
	Job *config.Job
	// Combo holds the instance's axis values.
	Combo matrix.Combination

	// Mutable state below is guarded by the scheduler mutex.
	status     run.Status
	results    []steprunner.StepResult
	err        error
	started    time.Time
	finished   time.Time
	cancel     context.CancelFunc
	deps       []*Instance
	dependents []*Instance
	remaining  int
}

func newInstance(job *config.Job, combo matrix.Combination) *Instance {
	return &Instance{
		ID:     instanceID(job.ID, combo),
		Job:    job,
		Combo:  combo,
		status: run.Blocked,
	}
}

// instanceID renders the canonical instance identifier.
func instanceID(jobID string, combo matrix.Combination) string {
	if combo.Empty() {
		return jobID
	}
	return jobID + "[" + combo.Key() + "]"
}

// workspaceName renders the instance ID into a filesystem-safe directory
// name.
func workspaceName(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}
