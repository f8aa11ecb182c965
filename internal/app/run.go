package app

import (
	"context"
	"fmt"

	"github.com/vk/pipegrid/internal/api"
	"github.com/vk/pipegrid/internal/ctxlog"
	"github.com/vk/pipegrid/internal/event"
	"github.com/vk/pipegrid/internal/proc"
	"github.com/vk/pipegrid/internal/run"
	"github.com/vk/pipegrid/internal/scheduler"
	"github.com/vk/pipegrid/internal/secrets"
	"github.com/vk/pipegrid/internal/steprunner"
	"github.com/vk/pipegrid/internal/trigger"
)

// Run executes the main application logic: load the event and secrets,
// evaluate every workflow's triggers, and execute the fired workflows one
// after another. The returned error is the first failed run's root cause.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	ev, err := event.Load(a.config.EventPath)
	if err != nil {
		return fmt.Errorf("failed to load event: %w", err)
	}
	a.logger.Info("Event loaded.", "kind", string(ev.Kind), "ref", ev.Ref, "repository", ev.Repository)

	sec := secrets.Empty()
	if a.config.SecretsPath != "" {
		sec, err = secrets.Load(a.config.SecretsPath)
		if err != nil {
			return fmt.Errorf("failed to load secrets: %w", err)
		}
		a.logger.Debug("Secrets loaded.", "count", sec.Len())
	}

	if a.config.StatusPort > 0 {
		server := api.NewServer(fmt.Sprintf(":%d", a.config.StatusPort), a)
		if err := server.Start(ctx); err != nil {
			a.logger.Error("Failed to start status API.", "error", err)
		} else {
			defer func() { _ = server.Shutdown(context.Background()) }()
		}
	}

	executor := steprunner.New(a.registry, a.resolver, proc.OSRunner{})
	executor.Output = a.outW

	fired := 0
	var firstErr error
	// Workflow run statuses are Succeeded, Failed or Cancelled; the worst
	// one across all fired workflows decides the exit.
	worst := run.Succeeded
	for _, name := range a.model.WorkflowOrder {
		wf := a.model.Workflows[name]
		rc, ok := trigger.Evaluate(ctx, wf, ev, sec)
		if !ok {
			a.logger.Debug("Workflow did not fire.", "workflow", wf.Name)
			continue
		}
		fired++

		sched := scheduler.New(wf, rc, executor, scheduler.Options{
			Workers:        a.config.WorkerCount,
			WorkspaceRoot:  a.config.WorkspaceRoot,
			KeepWorkspaces: a.config.KeepWorkspaces,
		})
		a.current.Store(sched)

		status, runErr := sched.Run(ctx)
		if runErr != nil && firstErr == nil {
			firstErr = runErr
		}
		if statusRank(status) > statusRank(worst) {
			worst = status
		}
		a.logSummary(sched.Snapshot())
		a.logger.Info("🏁 Workflow run finished.", "workflow", wf.Name, "run_id", rc.ID, "status", status.String())
	}

	if fired == 0 {
		a.logger.Warn("No workflow triggers matched the event.", "event", string(ev.Kind))
		return nil
	}
	if firstErr != nil {
		return fmt.Errorf("run %s: %w", worst, firstErr)
	}
	if worst == run.Cancelled {
		return context.Canceled
	}
	return nil
}

// logSummary prints the per-job, per-instance outcome of a finished run.
func (a *App) logSummary(report *scheduler.Report) {
	if report == nil {
		return
	}
	for _, job := range report.Jobs {
		a.logger.Info("Job result.", "workflow", report.Workflow, "job", job.ID, "result", job.Result)
		for _, inst := range job.Instances {
			attrs := []any{"instance", inst.ID, "status", inst.Status}
			if inst.Duration > 0 {
				attrs = append(attrs, "duration_ms", inst.Duration)
			}
			if inst.Error != "" {
				attrs = append(attrs, "error", inst.Error)
			}
			a.logger.Info("Instance result.", attrs...)
		}
	}
}

// statusRank orders run statuses by severity for aggregation across
// workflows.
func statusRank(s run.Status) int {
	switch s {
	case run.Failed:
		return 3
	case run.Cancelled:
		return 2
	case run.Succeeded:
		return 1
	default:
		return 0
	}
}
