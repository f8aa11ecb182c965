package config

import "context"

// Loader is the interface for a format-specific configuration loader.
type Loader interface {
	// Load reads workflow documents from workflowPath and composite action
	// documents from actionsPath (which may be empty), translating both into
	// the format-agnostic model. Malformed documents return a *Error.
	Load(ctx context.Context, workflowPath, actionsPath string) (*Model, error)
}
