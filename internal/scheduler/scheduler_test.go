package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/pipegrid/internal/config"
	"github.com/vk/pipegrid/internal/event"
	"github.com/vk/pipegrid/internal/run"
	"github.com/vk/pipegrid/internal/steprunner"
)

// fakeExecutor is a scriptable StepExecutor. Failures are keyed by
// instance ID; Block lists instances that wait for cancellation.
type fakeExecutor struct {
	mu      sync.Mutex
	started []string
	fail    map[string]error
	block   map[string]bool
	delay   time.Duration
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		fail:  make(map[string]error),
		block: make(map[string]bool),
	}
}

func (f *fakeExecutor) Run(ctx context.Context, req *steprunner.Request) ([]steprunner.StepResult, error) {
	f.mu.Lock()
	f.started = append(f.started, req.InstanceID)
	failErr := f.fail[req.InstanceID]
	block := f.block[req.InstanceID]
	delay := f.delay
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failErr != nil {
		return []steprunner.StepResult{{Name: "step", Status: run.Failed, Err: failErr}}, failErr
	}
	return []steprunner.StepResult{{Name: "step", Status: run.Succeeded}}, nil
}

func (f *fakeExecutor) startedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.started...)
}

func (f *fakeExecutor) startedIndex(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.started {
		if s == id {
			return i
		}
	}
	return -1
}

func parseExpr(t *testing.T, src string) hcl.Expression {
	t.Helper()
	e, diags := hclsyntax.ParseExpression([]byte(src), "test.hcl", hcl.InitialPos)
	require.False(t, diags.HasErrors(), diags.Error())
	return e
}

func job(id string, needs ...string) *config.Job {
	return &config.Job{
		ID:       id,
		Needs:    needs,
		FailFast: true,
		Steps:    []*config.Step{{RunnerType: "record", Name: "step"}},
	}
}

func testRunContext() *run.Context {
	return run.NewContext("ci", &event.Event{Kind: event.Push, Ref: "refs/heads/main"}, "acme/widget", "refs/heads/main", nil, false)
}

func newTestScheduler(t *testing.T, wf *config.Workflow, exec StepExecutor, workers int) *Scheduler {
	t.Helper()
	return New(wf, testRunContext(), exec, Options{
		Workers:       workers,
		WorkspaceRoot: t.TempDir(),
	})
}

func instanceStatus(s *Scheduler, id string) run.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inst := range s.instances {
		if inst.ID == id {
			return inst.status
		}
	}
	return run.Status(-1)
}

func TestDiamondRunsInDependencyOrder(t *testing.T) {
	wf := &config.Workflow{Name: "ci", Jobs: []*config.Job{
		job("a"), job("b", "a"), job("c", "a"), job("d", "b", "c"),
	}}
	exec := newFakeExecutor()
	s := newTestScheduler(t, wf, exec, 4)

	status, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, run.Succeeded, status)

	started := exec.startedIDs()
	require.Len(t, started, 4)
	assert.Equal(t, 0, exec.startedIndex("a"))
	assert.Less(t, exec.startedIndex("a"), exec.startedIndex("b"))
	assert.Less(t, exec.startedIndex("a"), exec.startedIndex("c"))
	assert.Greater(t, exec.startedIndex("d"), exec.startedIndex("b"))
	assert.Greater(t, exec.startedIndex("d"), exec.startedIndex("c"))
}

func TestFailureSkipsDependentsTransitively(t *testing.T) {
	wf := &config.Workflow{Name: "ci", Jobs: []*config.Job{
		job("a"), job("b", "a"), job("c", "b"), job("d", "c"),
	}}
	exec := newFakeExecutor()
	exec.fail["b"] = errors.New("b exploded")
	s := newTestScheduler(t, wf, exec, 4)

	status, err := s.Run(context.Background())
	assert.Equal(t, run.Failed, status)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b exploded")

	assert.Equal(t, run.Succeeded, instanceStatus(s, "a"))
	assert.Equal(t, run.Failed, instanceStatus(s, "b"))
	// The default gate is success() over dependencies, so the chain
	// downstream of the failure skips without running a single step.
	assert.Equal(t, run.Skipped, instanceStatus(s, "c"))
	assert.Equal(t, run.Skipped, instanceStatus(s, "d"))
	assert.Equal(t, -1, exec.startedIndex("c"))
	assert.Equal(t, -1, exec.startedIndex("d"))
}

func TestAlwaysGateRunsAfterFailure(t *testing.T) {
	cleanup := job("cleanup", "build")
	cleanup.Condition = parseExpr(t, "always()")
	onFail := job("notify", "build")
	onFail.Condition = parseExpr(t, "failure()")
	onSuccessOnly := job("publish", "build")

	wf := &config.Workflow{Name: "ci", Jobs: []*config.Job{
		job("build"), cleanup, onFail, onSuccessOnly,
	}}
	exec := newFakeExecutor()
	exec.fail["build"] = errors.New("compile error")
	s := newTestScheduler(t, wf, exec, 4)

	status, _ := s.Run(context.Background())
	assert.Equal(t, run.Failed, status)

	assert.Equal(t, run.Succeeded, instanceStatus(s, "cleanup"))
	assert.Equal(t, run.Succeeded, instanceStatus(s, "notify"))
	assert.Equal(t, run.Skipped, instanceStatus(s, "publish"))
}

func TestContinueOnErrorUnblocksDependents(t *testing.T) {
	flaky := job("flaky")
	flaky.ContinueOnError = true
	wf := &config.Workflow{Name: "ci", Jobs: []*config.Job{
		flaky, job("after", "flaky"),
	}}
	exec := newFakeExecutor()
	exec.fail["flaky"] = errors.New("known flake")
	s := newTestScheduler(t, wf, exec, 4)

	status, err := s.Run(context.Background())
	require.NoError(t, err)
	// The failure is recorded on the instance but does not fail the run.
	assert.Equal(t, run.Succeeded, status)

	assert.Equal(t, run.Failed, instanceStatus(s, "flaky"))
	assert.Equal(t, run.Succeeded, instanceStatus(s, "after"))
}

func TestNeedsResultVisibleToConditions(t *testing.T) {
	flaky := job("flaky")
	flaky.ContinueOnError = true
	inspect := job("inspect", "flaky")
	// The aggregated needs result reports success for a
	// continue-on-error job even though the instance failed.
	inspect.Condition = parseExpr(t, `needs.flaky.result == "success"`)

	wf := &config.Workflow{Name: "ci", Jobs: []*config.Job{flaky, inspect}}
	exec := newFakeExecutor()
	exec.fail["flaky"] = errors.New("known flake")
	s := newTestScheduler(t, wf, exec, 2)

	status, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, run.Succeeded, status)
	assert.Equal(t, run.Succeeded, instanceStatus(s, "inspect"))
}

func matrixJob(id string, failFast bool, values ...string) *config.Job {
	j := job(id)
	j.FailFast = failFast
	j.Matrix = &config.Matrix{Axes: []*config.Axis{{Name: "v", Values: values}}}
	return j
}

func TestFailFastCancelsMatrixSiblings(t *testing.T) {
	wf := &config.Workflow{Name: "ci", Jobs: []*config.Job{
		matrixJob("test", true, "a", "b", "c"),
	}}
	exec := newFakeExecutor()
	exec.fail["test[a]"] = errors.New("a failed")
	// One worker makes the order deterministic: the failing instance is
	// processed before its siblings are picked up.
	s := newTestScheduler(t, wf, exec, 1)

	status, err := s.Run(context.Background())
	assert.Equal(t, run.Failed, status)
	require.Error(t, err)

	assert.Equal(t, run.Failed, instanceStatus(s, "test[a]"))
	assert.Equal(t, run.Cancelled, instanceStatus(s, "test[b]"))
	assert.Equal(t, run.Cancelled, instanceStatus(s, "test[c]"))
	assert.Equal(t, []string{"test[a]"}, exec.startedIDs())
}

func TestFailFastCancelsSiblingsAndSkipsDependent(t *testing.T) {
	wf := &config.Workflow{Name: "ci", Jobs: []*config.Job{
		matrixJob("test", true, "a", "b", "c"),
		job("report", "test"),
	}}
	exec := newFakeExecutor()
	exec.fail["test[a]"] = errors.New("a failed")
	s := newTestScheduler(t, wf, exec, 1)

	status, err := s.Run(context.Background())
	assert.Equal(t, run.Failed, status)
	require.Error(t, err)

	assert.Equal(t, run.Failed, instanceStatus(s, "test[a]"))
	assert.Equal(t, run.Cancelled, instanceStatus(s, "test[b]"))
	assert.Equal(t, run.Cancelled, instanceStatus(s, "test[c]"))
	// Cancelled siblings are not success, so the dependent's default gate
	// skips it in the same run.
	assert.Equal(t, run.Skipped, instanceStatus(s, "report"))
	assert.Equal(t, []string{"test[a]"}, exec.startedIDs())
}

func TestFailFastDisabledLetsSiblingsFinish(t *testing.T) {
	wf := &config.Workflow{Name: "ci", Jobs: []*config.Job{
		matrixJob("test", false, "a", "b", "c"),
	}}
	exec := newFakeExecutor()
	exec.fail["test[b]"] = errors.New("b failed")
	s := newTestScheduler(t, wf, exec, 1)

	status, _ := s.Run(context.Background())
	assert.Equal(t, run.Failed, status)

	assert.Equal(t, run.Succeeded, instanceStatus(s, "test[a]"))
	assert.Equal(t, run.Failed, instanceStatus(s, "test[b]"))
	assert.Equal(t, run.Succeeded, instanceStatus(s, "test[c]"))
	assert.Len(t, exec.startedIDs(), 3)
}

func TestFailFastDoesNotTouchOtherJobs(t *testing.T) {
	other := job("other")
	wf := &config.Workflow{Name: "ci", Jobs: []*config.Job{
		matrixJob("test", true, "a", "b"),
		other,
	}}
	exec := newFakeExecutor()
	exec.fail["test[a]"] = errors.New("a failed")
	exec.delay = 10 * time.Millisecond
	s := newTestScheduler(t, wf, exec, 4)

	status, _ := s.Run(context.Background())
	assert.Equal(t, run.Failed, status)

	// Fail-fast's blast radius is the job's own matrix; an unrelated job
	// still completes.
	assert.Equal(t, run.Succeeded, instanceStatus(s, "other"))
}

func TestSkippedGatePropagates(t *testing.T) {
	root := job("root")
	root.Condition = parseExpr(t, "false")
	wf := &config.Workflow{Name: "ci", Jobs: []*config.Job{
		root, job("mid", "root"), job("leaf", "mid"),
	}}
	exec := newFakeExecutor()
	s := newTestScheduler(t, wf, exec, 4)

	status, err := s.Run(context.Background())
	require.NoError(t, err)
	// Every instance skipped still counts as a successful run.
	assert.Equal(t, run.Succeeded, status)

	assert.Equal(t, run.Skipped, instanceStatus(s, "root"))
	assert.Equal(t, run.Skipped, instanceStatus(s, "mid"))
	assert.Equal(t, run.Skipped, instanceStatus(s, "leaf"))
	assert.Empty(t, exec.startedIDs())
}

func TestMatrixConditionPerInstance(t *testing.T) {
	j := matrixJob("test", true, "linux", "macos")
	j.Condition = parseExpr(t, `matrix.v == "linux"`)
	wf := &config.Workflow{Name: "ci", Jobs: []*config.Job{j}}
	exec := newFakeExecutor()
	s := newTestScheduler(t, wf, exec, 2)

	status, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, run.Succeeded, status)

	assert.Equal(t, run.Succeeded, instanceStatus(s, "test[linux]"))
	assert.Equal(t, run.Skipped, instanceStatus(s, "test[macos]"))
}

func TestRunCancellation(t *testing.T) {
	wf := &config.Workflow{Name: "ci", Jobs: []*config.Job{
		job("slow"), job("after", "slow"),
	}}
	exec := newFakeExecutor()
	exec.block["slow"] = true
	s := newTestScheduler(t, wf, exec, 2)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	status, err := s.Run(ctx)
	assert.Equal(t, run.Cancelled, status)
	require.Error(t, err)

	assert.Equal(t, run.Cancelled, instanceStatus(s, "slow"))
	assert.Equal(t, run.Cancelled, instanceStatus(s, "after"))
}

func TestJobTimeoutFails(t *testing.T) {
	slow := job("slow")
	slow.Timeout = 20 * time.Millisecond
	wf := &config.Workflow{Name: "ci", Jobs: []*config.Job{slow}}
	exec := newFakeExecutor()
	exec.block["slow"] = true
	s := newTestScheduler(t, wf, exec, 1)

	status, err := s.Run(context.Background())
	assert.Equal(t, run.Failed, status)
	require.Error(t, err)

	var execErr *steprunner.ExecError
	require.True(t, errors.As(err, &execErr))
	assert.True(t, execErr.Timeout)
	assert.Equal(t, run.Failed, instanceStatus(s, "slow"))
}

func TestGateErrorFailsInstance(t *testing.T) {
	bad := job("bad")
	// Evaluates to a string, which is not a valid gate.
	bad.Condition = parseExpr(t, `"not a boolean"`)
	wf := &config.Workflow{Name: "ci", Jobs: []*config.Job{bad}}
	exec := newFakeExecutor()
	s := newTestScheduler(t, wf, exec, 1)

	status, err := s.Run(context.Background())
	assert.Equal(t, run.Failed, status)
	require.Error(t, err)
	assert.Empty(t, exec.startedIDs())
}

func TestSnapshotReflectsTerminalStates(t *testing.T) {
	wf := &config.Workflow{Name: "ci", Jobs: []*config.Job{
		job("a"), matrixJob("test", false, "x", "y"),
	}}
	exec := newFakeExecutor()
	exec.fail["test[y]"] = errors.New("y failed")
	s := newTestScheduler(t, wf, exec, 2)

	_, _ = s.Run(context.Background())
	report := s.Snapshot()

	require.NotNil(t, report)
	assert.Equal(t, "ci", report.Workflow)
	assert.Equal(t, "failed", report.Status)
	require.Len(t, report.Jobs, 2)

	assert.Equal(t, "a", report.Jobs[0].ID)
	assert.Equal(t, "success", report.Jobs[0].Result)

	test := report.Jobs[1]
	assert.Equal(t, "failure", test.Result)
	require.Len(t, test.Instances, 2)
	byID := map[string]InstanceReport{}
	for _, ir := range test.Instances {
		byID[ir.ID] = ir
	}
	assert.Equal(t, "succeeded", byID["test[x]"].Status)
	assert.Equal(t, "failed", byID["test[y]"].Status)
	assert.Contains(t, byID["test[y]"].Error, "y failed")
	assert.Equal(t, map[string]string{"v": "y"}, byID["test[y]"].Matrix)
}

func TestInstanceIDs(t *testing.T) {
	wf := &config.Workflow{Name: "ci", Jobs: []*config.Job{
		job("plain"),
		matrixJob("m", true, "a", "b"),
	}}
	s := newTestScheduler(t, wf, newFakeExecutor(), 1)

	var ids []string
	for _, inst := range s.instances {
		ids = append(ids, inst.ID)
	}
	assert.Equal(t, []string{"plain", "m[a]", "m[b]"}, ids)
}

func TestMatrixFanInDependency(t *testing.T) {
	wf := &config.Workflow{Name: "ci", Jobs: []*config.Job{
		matrixJob("test", true, "a", "b"),
		job("gate", "test"),
	}}
	exec := newFakeExecutor()
	s := newTestScheduler(t, wf, exec, 4)

	status, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, run.Succeeded, status)

	// The dependent waits for every instance of the needed job.
	gateIdx := exec.startedIndex("gate")
	assert.Greater(t, gateIdx, exec.startedIndex("test[a]"))
	assert.Greater(t, gateIdx, exec.startedIndex("test[b]"))
}
