// Package event models the inbound repository event that may trigger a
// workflow run. Payloads are YAML documents (JSON payloads parse too, since
// YAML is a superset).
package event

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Kind identifies the category of a repository event.
type Kind string

const (
	// Push is a branch push.
	Push Kind = "push"
	// Tag is a tag push.
	Tag Kind = "tag"
	// PullRequest is pull request activity (opened, synchronize, ...).
	PullRequest Kind = "pull_request"
	// Dispatch is an explicit invocation without repository activity.
	Dispatch Kind = "dispatch"
)

// Event is the structured record of a repository event. It is the only
// inbound boundary of the engine.
type Event struct {
	Kind        Kind             `yaml:"kind"`
	Ref         string           `yaml:"ref"`
	Repository  string           `yaml:"repository"`
	Actor       string           `yaml:"actor"`
	PullRequest *PullRequestInfo `yaml:"pull_request"`
}

// PullRequestInfo carries the pull-request-specific part of an event.
type PullRequestInfo struct {
	// Action is the PR activity type, e.g. "opened" or "synchronize".
	Action string `yaml:"action"`
	// HeadRef and HeadRepo identify the proposed change. Workflows
	// triggered by a pull request check out the head, never the base.
	HeadRef  string `yaml:"head_ref"`
	HeadRepo string `yaml:"head_repo"`
	BaseRef  string `yaml:"base_ref"`
}

// FromFork reports whether the pull request originates from a repository
// other than the one the event was delivered to.
func (e *Event) FromFork() bool {
	return e.Kind == PullRequest && e.PullRequest != nil &&
		e.PullRequest.HeadRepo != "" && e.PullRequest.HeadRepo != e.Repository
}

// Parse decodes an event payload and validates its shape.
func Parse(data []byte) (*Event, error) {
	var ev Event
	if err := yaml.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode event payload: %w", err)
	}
	switch ev.Kind {
	case Push, Tag, PullRequest, Dispatch:
	case "":
		return nil, fmt.Errorf("event payload is missing 'kind'")
	default:
		return nil, fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	if ev.Kind == PullRequest && ev.PullRequest == nil {
		return nil, fmt.Errorf("pull_request event is missing the 'pull_request' section")
	}
	return &ev, nil
}

// Load reads and parses an event payload file.
func Load(path string) (*Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read event file: %w", err)
	}
	return Parse(data)
}
