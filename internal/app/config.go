package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	WorkflowPath string // hcl workflow documents
	ActionsPath  string // hcl composite action documents, optional
	EventPath    string // yaml event payload
	SecretsPath  string // env-format secrets file, optional

	LogFormat      string
	LogLevel       string
	StatusPort     int
	WorkerCount    int
	WorkspaceRoot  string
	KeepWorkspaces bool
}

// NewConfig validates a Config.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.WorkflowPath == "" {
		return nil, errors.New("WorkflowPath is a required configuration field and cannot be empty")
	}
	if cfg.EventPath == "" {
		return nil, errors.New("EventPath is a required configuration field and cannot be empty")
	}
	return &cfg, nil
}
