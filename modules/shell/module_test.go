package shell_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/pipegrid/internal/registry"
	"github.com/vk/pipegrid/internal/testutil"
	"github.com/vk/pipegrid/modules/shell"
)

func handler(t *testing.T) *registry.RegisteredRunner {
	t.Helper()
	reg := registry.New()
	(&shell.Module{}).Register(reg)
	h, ok := reg.Runner("shell")
	require.True(t, ok)
	return h
}

func TestRunsCommandThroughShell(t *testing.T) {
	h := handler(t)
	fake := testutil.NewFakeProc()
	ec := &registry.ExecContext{Workspace: "/ws", Proc: fake}

	input := h.NewInput().(*shell.Input)
	input.Command = "make build"

	_, err := h.Fn(context.Background(), ec, input)
	require.NoError(t, err)
	assert.Equal(t, []string{"sh -c make build"}, fake.CallLines())
}

func TestCustomShellAndDir(t *testing.T) {
	h := handler(t)
	fake := testutil.NewFakeProc()
	ec := &registry.ExecContext{Workspace: "/ws", Proc: fake}

	input := h.NewInput().(*shell.Input)
	input.Command = "ls"
	input.Shell = "bash"
	input.Dir = "sub"

	_, err := h.Fn(context.Background(), ec, input)
	require.NoError(t, err)
	assert.Equal(t, []string{"bash -c ls"}, fake.CallLines())
}

func TestEmptyCommandIsError(t *testing.T) {
	h := handler(t)
	input := h.NewInput().(*shell.Input)

	_, err := h.Fn(context.Background(), &registry.ExecContext{Proc: testutil.NewFakeProc()}, input)
	assert.Error(t, err)
}

func TestProcessFailurePropagates(t *testing.T) {
	h := handler(t)
	fake := testutil.NewFakeProc()
	fake.FailOn["make test"] = errors.New("exit status 2")
	ec := &registry.ExecContext{Workspace: "/ws", Proc: fake}

	input := h.NewInput().(*shell.Input)
	input.Command = "make test"

	_, err := h.Fn(context.Background(), ec, input)
	assert.Error(t, err)
}
