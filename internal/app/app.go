package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/vk/pipegrid/internal/action"
	"github.com/vk/pipegrid/internal/config"
	"github.com/vk/pipegrid/internal/ctxlog"
	"github.com/vk/pipegrid/internal/dag"
	"github.com/vk/pipegrid/internal/registry"
	"github.com/vk/pipegrid/internal/scheduler"
)

// App encapsulates the application's dependencies, configuration, and
// lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	registry *registry.Registry
	model    *config.Model
	resolver *action.Resolver

	// current is the scheduler of the run in flight, read by the status
	// API.
	current atomic.Pointer[scheduler.Scheduler]
}

// NewApp is the constructor for the main application. It loads and fully
// validates the pipeline configuration; any configuration problem is a
// fatal startup error and panics, to be recovered at the entrypoint.
func NewApp(outW io.Writer, appConfig *Config, loader config.Loader, modules ...registry.Module) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := loader.Load(ctx, appConfig.WorkflowPath, appConfig.ActionsPath)
	if err != nil {
		// A failure to load config is a fatal startup error.
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}
	logger.Debug("Configuration loaded and translated into unified model.")

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All runner modules registered.", "count", len(modules))

	if err := reg.Validate(model); err != nil {
		panic(err)
	}

	resolver := action.NewResolver(model.Actions)
	if err := resolver.Validate(model); err != nil {
		panic(err)
	}

	if err := validateNeedsGraphs(model); err != nil {
		panic(err)
	}
	logger.Debug("Pipeline validation passed.")

	return &App{
		outW:     outW,
		logger:   logger,
		config:   appConfig,
		registry: reg,
		model:    model,
		resolver: resolver,
	}
}

// Registry returns the application's registry. This is primarily for
// testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Snapshot implements api.StatusSource over the run in flight.
func (a *App) Snapshot() *scheduler.Report {
	sched := a.current.Load()
	if sched == nil {
		return nil
	}
	return sched.Snapshot()
}

// validateNeedsGraphs checks every workflow's job dependency graph for
// cycles. Unknown needs references are caught by the loader.
func validateNeedsGraphs(model *config.Model) error {
	for _, name := range model.WorkflowOrder {
		wf := model.Workflows[name]
		graph := dag.New()
		for _, job := range wf.Jobs {
			graph.AddNode(job.ID)
		}
		for _, job := range wf.Jobs {
			for _, need := range job.Needs {
				if err := graph.AddEdge(need, job.ID); err != nil {
					return config.Errorf(wf.Name, "job %q needs itself", job.ID)
				}
			}
		}
		if err := graph.DetectCycles(); err != nil {
			return &config.Error{Subject: wf.Name, Detail: "cyclic job dependencies", Err: err}
		}
	}
	return nil
}
