package event

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePush(t *testing.T) {
	ev, err := Parse([]byte(`
kind: push
ref: refs/heads/main
repository: acme/widget
actor: rennat
`))
	require.NoError(t, err)
	assert.Equal(t, Push, ev.Kind)
	assert.Equal(t, "refs/heads/main", ev.Ref)
	assert.Equal(t, "acme/widget", ev.Repository)
	assert.Equal(t, "rennat", ev.Actor)
	assert.Nil(t, ev.PullRequest)
	assert.False(t, ev.FromFork())
}

func TestParsePullRequest(t *testing.T) {
	ev, err := Parse([]byte(`
kind: pull_request
ref: refs/heads/main
repository: acme/widget
pull_request:
  action: opened
  head_ref: refs/heads/fix
  head_repo: mallory/widget
  base_ref: refs/heads/main
`))
	require.NoError(t, err)
	require.NotNil(t, ev.PullRequest)
	assert.Equal(t, "opened", ev.PullRequest.Action)
	assert.True(t, ev.FromFork())
}

func TestParseSameRepoPullRequestIsNotFork(t *testing.T) {
	ev, err := Parse([]byte(`
kind: pull_request
repository: acme/widget
pull_request:
  action: opened
  head_repo: acme/widget
`))
	require.NoError(t, err)
	assert.False(t, ev.FromFork())
}

func TestParseErrors(t *testing.T) {
	t.Run("missing kind", func(t *testing.T) {
		_, err := Parse([]byte(`ref: refs/heads/main`))
		assert.ErrorContains(t, err, "missing 'kind'")
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := Parse([]byte(`kind: comet`))
		assert.ErrorContains(t, err, "unknown event kind")
	})

	t.Run("pull_request without section", func(t *testing.T) {
		_, err := Parse([]byte(`kind: pull_request`))
		assert.ErrorContains(t, err, "missing the 'pull_request' section")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Parse([]byte(`kind: [`))
		assert.Error(t, err)
	})
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "event.yaml")
	require.NoError(t, os.WriteFile(path, []byte("kind: dispatch\nref: refs/heads/main\n"), 0644))

	ev, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Dispatch, ev.Kind)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
