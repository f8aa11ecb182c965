// Package run defines the immutable per-run context and the status model
// shared by the scheduler, the step runner and the condition evaluator.
package run

import (
	"github.com/google/uuid"

	"github.com/vk/pipegrid/internal/event"
	"github.com/vk/pipegrid/internal/secrets"
)

// Context is the immutable record of a triggered run: the event that fired
// it, the source to check out, and the secret handles available to steps.
// It is created once by the trigger evaluator and read-only thereafter.
type Context struct {
	// ID uniquely identifies the run.
	ID string

	// Workflow is the name of the workflow being executed.
	Workflow string

	// Event is the repository event that fired the trigger.
	Event *event.Event

	// CheckoutRepo and CheckoutRef identify the source a job workspace
	// materializes. For pull requests this is the head repository and ref,
	// never the base.
	CheckoutRepo string
	CheckoutRef  string

	// Secrets holds the run's secret handles. Restricted runs carry an
	// empty store.
	Secrets *secrets.Store

	// Restricted marks a run whose secret access was revoked, e.g. a pull
	// request from a fork.
	Restricted bool
}

// NewContext assembles a run context with a fresh run ID.
func NewContext(workflow string, ev *event.Event, repo, ref string, sec *secrets.Store, restricted bool) *Context {
	if restricted || sec == nil {
		sec = secrets.Empty()
	}
	return &Context{
		ID:           uuid.NewString(),
		Workflow:     workflow,
		Event:        ev,
		CheckoutRepo: repo,
		CheckoutRef:  ref,
		Secrets:      sec,
		Restricted:   restricted,
	}
}
