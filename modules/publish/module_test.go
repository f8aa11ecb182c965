package publish_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/pipegrid/internal/registry"
	"github.com/vk/pipegrid/internal/testutil"
	"github.com/vk/pipegrid/modules/publish"
)

func handler(t *testing.T) *registry.RegisteredRunner {
	t.Helper()
	reg := registry.New()
	(&publish.Module{}).Register(reg)
	h, ok := reg.Runner("publish")
	require.True(t, ok)
	return h
}

func TestRefusesWithoutCredential(t *testing.T) {
	h := handler(t)
	fake := testutil.NewFakeProc()
	ec := &registry.ExecContext{Workspace: "/ws", Proc: fake}

	_, err := h.Fn(context.Background(), ec, h.NewInput())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PYPI_TOKEN")
	assert.Empty(t, fake.CallLines())
}

func TestUploadsWithCredential(t *testing.T) {
	h := handler(t)
	fake := testutil.NewFakeProc()
	ec := &registry.ExecContext{
		Workspace: "/ws",
		Env:       []string{"PYPI_TOKEN=tok"},
		Proc:      fake,
	}

	_, err := h.Fn(context.Background(), ec, h.NewInput())
	require.NoError(t, err)
	assert.Equal(t, []string{"twine upload dist/*"}, fake.CallLines())
}

func TestCustomTokenEnv(t *testing.T) {
	h := handler(t)
	fake := testutil.NewFakeProc()
	ec := &registry.ExecContext{
		Workspace: "/ws",
		Env:       []string{"NPM_TOKEN=tok"},
		Proc:      fake,
	}

	input := h.NewInput().(*publish.Input)
	input.TokenEnv = "NPM_TOKEN"
	input.Command = "npm"
	input.Args = []string{"publish"}

	_, err := h.Fn(context.Background(), ec, input)
	require.NoError(t, err)
	assert.Equal(t, []string{"npm publish"}, fake.CallLines())
}
