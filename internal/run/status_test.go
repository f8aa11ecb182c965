package run

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTerminal(t *testing.T) {
	assert.False(t, Pending.Terminal())
	assert.False(t, Blocked.Terminal())
	assert.False(t, Running.Terminal())
	assert.True(t, Succeeded.Terminal())
	assert.True(t, Failed.Terminal())
	assert.True(t, Skipped.Terminal())
	assert.True(t, Cancelled.Terminal())
}

func TestStatusResult(t *testing.T) {
	assert.Equal(t, ResultSuccess, Succeeded.Result())
	assert.Equal(t, ResultFailure, Failed.Result())
	assert.Equal(t, ResultSkipped, Skipped.Result())
	assert.Equal(t, ResultCancelled, Cancelled.Result())
	assert.Equal(t, Result(""), Running.Result())
}

func TestNewContextGeneratesID(t *testing.T) {
	a := NewContext("ci", nil, "acme/widget", "refs/heads/main", nil, false)
	b := NewContext("ci", nil, "acme/widget", "refs/heads/main", nil, false)

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.NotNil(t, a.Secrets, "a nil store is replaced with an empty one")
}

func TestRestrictedContextDropsSecrets(t *testing.T) {
	rc := NewContext("ci", nil, "acme/widget", "refs/heads/main", nil, true)
	assert.True(t, rc.Restricted)
	_, ok := rc.Secrets.Get("ANY")
	assert.False(t, ok)
}
