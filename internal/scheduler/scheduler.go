package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vk/pipegrid/internal/config"
	"github.com/vk/pipegrid/internal/ctxlog"
	"github.com/vk/pipegrid/internal/expr"
	"github.com/vk/pipegrid/internal/matrix"
	"github.com/vk/pipegrid/internal/run"
	"github.com/vk/pipegrid/internal/steprunner"
)

// StepExecutor runs the steps of one job instance. Satisfied by
// *steprunner.Runner; tests substitute fakes.
type StepExecutor interface {
	Run(ctx context.Context, req *steprunner.Request) ([]steprunner.StepResult, error)
}

// Options tune a scheduler.
type Options struct {
	// Workers bounds instance concurrency. Zero means DefaultWorkers.
	Workers int
	// WorkspaceRoot is the directory instance workspaces are created
	// under. Empty means the system temp directory.
	WorkspaceRoot string
	// KeepWorkspaces disables workspace cleanup after an instance
	// finishes, useful for debugging failed runs.
	KeepWorkspaces bool
}

// DefaultWorkers is the instance concurrency used when Options leaves
// Workers unset.
const DefaultWorkers = 4

// Scheduler executes one workflow run.
type Scheduler struct {
	runCtx   *run.Context
	workflow *config.Workflow
	executor StepExecutor
	opts     Options

	mu        sync.Mutex
	instances []*Instance
	byJob     map[string][]*Instance
	ready     chan *Instance
	wg        sync.WaitGroup
	rootCause error
}

// New builds a scheduler for one workflow and run context: matrix jobs are
// expanded into instances and the instance-level dependency graph is
// wired. An instance depends on every instance of each job it needs.
// Needs references and cycles are validated at load time.
func New(wf *config.Workflow, rc *run.Context, executor StepExecutor, opts Options) *Scheduler {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.WorkspaceRoot == "" {
		opts.WorkspaceRoot = filepath.Join(os.TempDir(), "pipegrid", rc.ID)
	}

	s := &Scheduler{
		runCtx:   rc,
		workflow: wf,
		executor: executor,
		opts:     opts,
		byJob:    make(map[string][]*Instance, len(wf.Jobs)),
	}

	for _, job := range wf.Jobs {
		for _, combo := range matrix.Expand(job.Matrix) {
			inst := newInstance(job, combo)
			s.instances = append(s.instances, inst)
			s.byJob[job.ID] = append(s.byJob[job.ID], inst)
		}
	}
	for _, inst := range s.instances {
		for _, need := range inst.Job.Needs {
			for _, dep := range s.byJob[need] {
				inst.deps = append(inst.deps, dep)
				dep.dependents = append(dep.dependents, inst)
			}
		}
		inst.remaining = len(inst.deps)
	}
	return s
}

// Run executes the workflow to completion and returns the aggregated run
// status, one of Succeeded, Failed or Cancelled. Cancelling ctx cancels
// every instance that has not reached a terminal state. The returned error
// is the root cause of a failed run, nil otherwise.
func (s *Scheduler) Run(ctx context.Context) (run.Status, error) {
	logger := ctxlog.FromContext(ctx).With("run_id", s.runCtx.ID, "workflow", s.workflow.Name)
	logger.Info("🚀 Starting run.", "instances", len(s.instances), "workers", s.opts.Workers)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	// Buffered to the instance count so finish never blocks on dispatch.
	s.ready = make(chan *Instance, len(s.instances))
	s.wg.Add(len(s.instances))

	s.mu.Lock()
	for _, inst := range s.instances {
		if inst.remaining == 0 {
			inst.status = run.Pending
			s.ready <- inst
		}
	}
	s.mu.Unlock()

	var workers sync.WaitGroup
	for i := 0; i < s.opts.Workers; i++ {
		workers.Add(1)
		go func(id int) {
			defer workers.Done()
			for inst := range s.ready {
				s.runInstance(runCtx, inst, id)
			}
		}(i)
	}

	// Cancellation watcher: mark everything not yet running as cancelled
	// and interrupt what is.
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		select {
		case <-runCtx.Done():
			s.cancelAll(runCtx.Err())
		case <-s.allDone():
		}
	}()

	s.wg.Wait()
	close(s.ready)
	workers.Wait()
	cancelRun()
	<-watcherDone

	status := s.runStatus(ctx)
	s.mu.Lock()
	cause := s.rootCause
	allSkipped := len(s.instances) > 0
	for _, inst := range s.instances {
		if inst.status != run.Skipped {
			allSkipped = false
			break
		}
	}
	s.mu.Unlock()

	switch {
	case status == run.Succeeded && allSkipped:
		logger.Info("Run finished with every job skipped.", "status", status)
	case status == run.Succeeded:
		logger.Info("✅ Run finished.", "status", status)
	default:
		logger.Error("❌ Run finished.", "status", status, "error", cause)
	}
	if status == run.Failed || status == run.Cancelled {
		if cause == nil {
			cause = ctx.Err()
		}
		return status, cause
	}
	return status, nil
}

// allDone returns a channel closed once every instance is terminal.
func (s *Scheduler) allDone() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	return done
}

// runInstance takes one ready instance through gate evaluation and
// execution.
func (s *Scheduler) runInstance(ctx context.Context, inst *Instance, worker int) {
	logger := ctxlog.FromContext(ctx).With("instance", inst.ID, "worker", worker)

	s.mu.Lock()
	if inst.status.Terminal() {
		// Cancelled between dispatch and pick-up.
		s.mu.Unlock()
		return
	}
	needs, depResults := s.collectDepsLocked(inst)
	s.mu.Unlock()

	if ctx.Err() != nil {
		s.finish(ctx, inst, run.Cancelled, nil, ctx.Err())
		return
	}

	env := &expr.Env{
		Event:      s.runCtx.Event,
		Matrix:     inst.Combo.Values,
		Needs:      needs,
		DepResults: depResults,
	}
	ok, err := expr.Eval(inst.Job.Condition, env)
	if err != nil {
		gateErr := &config.Error{Subject: inst.ID, Detail: "job condition evaluation failed", Err: err}
		s.finish(ctx, inst, run.Failed, nil, gateErr)
		s.failFast(ctx, inst)
		return
	}
	if !ok {
		logger.Info("⏭️ Skipping instance.", "reason", "gate condition false")
		s.finish(ctx, inst, run.Skipped, nil, nil)
		return
	}

	var instCtx context.Context
	var cancel context.CancelFunc
	if inst.Job.Timeout > 0 {
		instCtx, cancel = context.WithTimeout(ctx, inst.Job.Timeout)
	} else {
		instCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	s.mu.Lock()
	if inst.status.Terminal() {
		// A sibling's fail-fast raced the gate evaluation.
		s.mu.Unlock()
		return
	}
	inst.status = run.Running
	inst.started = time.Now()
	inst.cancel = cancel
	s.mu.Unlock()

	workspace, wsErr := s.makeWorkspace(inst)
	if wsErr != nil {
		s.finish(ctx, inst, run.Failed, nil, wsErr)
		s.failFast(ctx, inst)
		return
	}
	if !s.opts.KeepWorkspaces {
		defer os.RemoveAll(workspace)
	}

	logger.Info("▶️ Starting instance.", "workspace", workspace)
	results, execErr := s.executor.Run(instCtx, &steprunner.Request{
		RunCtx:     s.runCtx,
		JobID:      inst.Job.ID,
		InstanceID: inst.ID,
		Matrix:     inst.Combo.Values,
		Needs:      needs,
		Steps:      inst.Job.Steps,
		Workspace:  workspace,
	})

	switch {
	case execErr == nil:
		s.finish(ctx, inst, run.Succeeded, results, nil)

	case errors.Is(execErr, context.Canceled), instCtx.Err() == context.Canceled:
		s.finish(ctx, inst, run.Cancelled, results, execErr)

	case instCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil:
		timeoutErr := &steprunner.ExecError{Step: inst.ID, Timeout: true, Err: execErr}
		s.finish(ctx, inst, run.Failed, results, timeoutErr)
		s.failFast(ctx, inst)

	default:
		s.finish(ctx, inst, run.Failed, results, execErr)
		s.failFast(ctx, inst)
	}
}

// collectDepsLocked assembles the aggregated needs results and the flat
// dependency outcome list for gate evaluation. A failed instance of a
// continue-on-error job counts as success. Callers hold the mutex.
func (s *Scheduler) collectDepsLocked(inst *Instance) (map[string]run.Result, []run.Result) {
	needs := make(map[string]run.Result, len(inst.Job.Needs))
	for _, need := range inst.Job.Needs {
		needs[need] = s.jobResultLocked(need)
	}
	depResults := make([]run.Result, 0, len(inst.deps))
	for _, dep := range inst.deps {
		depResults = append(depResults, effectiveResult(dep))
	}
	return needs, depResults
}

// effectiveResult maps an instance's terminal status to the result its
// dependents gate on.
func effectiveResult(inst *Instance) run.Result {
	r := inst.status.Result()
	if r == run.ResultFailure && inst.Job.ContinueOnError {
		return run.ResultSuccess
	}
	return r
}

// jobResultLocked aggregates a job's instance results: any failure wins,
// then any cancellation, then all-skipped, else success.
func (s *Scheduler) jobResultLocked(jobID string) run.Result {
	var sawCancelled bool
	skipped := 0
	insts := s.byJob[jobID]
	for _, inst := range insts {
		switch effectiveResult(inst) {
		case run.ResultFailure:
			return run.ResultFailure
		case run.ResultCancelled:
			sawCancelled = true
		case run.ResultSkipped:
			skipped++
		}
	}
	if sawCancelled {
		return run.ResultCancelled
	}
	if len(insts) > 0 && skipped == len(insts) {
		return run.ResultSkipped
	}
	return run.ResultSuccess
}

// finish moves an instance to a terminal state exactly once, unblocks its
// dependents, and records the run's root cause. It is a no-op if the
// instance is already terminal.
func (s *Scheduler) finish(ctx context.Context, inst *Instance, status run.Status, results []steprunner.StepResult, err error) {
	s.mu.Lock()
	if inst.status.Terminal() {
		s.mu.Unlock()
		return
	}
	inst.status = status
	inst.results = results
	inst.err = err
	inst.finished = time.Now()
	inst.cancel = nil

	if status == run.Failed && !inst.Job.ContinueOnError && s.rootCause == nil {
		s.rootCause = err
	}

	var unblocked []*Instance
	for _, dep := range inst.dependents {
		dep.remaining--
		if dep.remaining == 0 && dep.status == run.Blocked {
			dep.status = run.Pending
			unblocked = append(unblocked, dep)
		}
	}
	s.mu.Unlock()

	logger := ctxlog.FromContext(ctx)
	logger.Debug("Instance finished.", "instance", inst.ID, "status", status)

	for _, dep := range unblocked {
		s.ready <- dep
	}
	s.wg.Done()
}

// failFast cancels the failed instance's matrix siblings. The blast radius
// is the job's own instances; other jobs react through gate evaluation.
func (s *Scheduler) failFast(ctx context.Context, failed *Instance) {
	if !failed.Job.FailFast || failed.Job.ContinueOnError {
		return
	}

	s.mu.Lock()
	var idle, running []*Instance
	for _, sibling := range s.byJob[failed.Job.ID] {
		if sibling == failed || sibling.status.Terminal() {
			continue
		}
		if sibling.status == run.Running {
			running = append(running, sibling)
		} else {
			idle = append(idle, sibling)
		}
	}
	for _, sibling := range running {
		if sibling.cancel != nil {
			sibling.cancel()
		}
	}
	s.mu.Unlock()

	if len(idle)+len(running) > 0 {
		ctxlog.FromContext(ctx).Warn("Fail-fast cancelling matrix siblings.",
			"job", failed.Job.ID, "failed", failed.ID, "siblings", len(idle)+len(running))
	}
	cause := fmt.Errorf("matrix sibling %s failed", failed.ID)
	for _, sibling := range idle {
		s.finish(ctx, sibling, run.Cancelled, nil, cause)
	}
}

// cancelAll drives every non-terminal instance to Cancelled when the run
// context is cancelled. Running instances are interrupted and finish
// through their own worker.
func (s *Scheduler) cancelAll(cause error) {
	s.mu.Lock()
	var idle []*Instance
	for _, inst := range s.instances {
		if inst.status.Terminal() {
			continue
		}
		if inst.status == run.Running {
			if inst.cancel != nil {
				inst.cancel()
			}
			continue
		}
		idle = append(idle, inst)
	}
	s.mu.Unlock()

	for _, inst := range idle {
		s.finish(context.Background(), inst, run.Cancelled, nil, cause)
	}
}

// runStatus aggregates the terminal instance states into the run status.
func (s *Scheduler) runStatus(ctx context.Context) run.Status {
	if ctx.Err() != nil {
		return run.Cancelled
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminalStatusLocked()
}

// makeWorkspace creates the instance's working directory.
func (s *Scheduler) makeWorkspace(inst *Instance) (string, error) {
	dir := filepath.Join(s.opts.WorkspaceRoot, workspaceName(inst.ID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create workspace for %s: %w", inst.ID, err)
	}
	return dir, nil
}
