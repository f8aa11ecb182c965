// Package publish provides the 'publish' runner: it uploads built
// distribution files to a package registry. The upload credential must be
// injected through the step's secrets; the runner refuses to start
// without it, so restricted runs fail here instead of uploading nothing.
package publish

import (
	"context"
	"fmt"

	"github.com/vk/pipegrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the publish runner.
type Input struct {
	// Command is the upload tool, default "twine".
	Command string `hcl:"command,optional"`
	// Args are the tool arguments, default "upload dist/*".
	Args []string `hcl:"args,optional"`
	// TokenEnv names the environment variable that must carry the upload
	// credential, default "PYPI_TOKEN".
	TokenEnv string `hcl:"token_env,optional"`
}

// OnRunPublish is the handler for the 'publish' runner.
func OnRunPublish(ctx context.Context, ec *registry.ExecContext, input any) (*registry.Outcome, error) {
	in := input.(*Input)
	command := in.Command
	if command == "" {
		command = "twine"
	}
	args := in.Args
	if len(args) == 0 {
		args = []string{"upload", "dist/*"}
	}
	tokenEnv := in.TokenEnv
	if tokenEnv == "" {
		tokenEnv = "PYPI_TOKEN"
	}

	if _, ok := ec.LookupEnv(tokenEnv); !ok {
		return nil, fmt.Errorf("publish credential %s is not set; declare it in the step's secrets", tokenEnv)
	}
	return nil, ec.Command(ctx, command, args...)
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("publish", &registry.RegisteredRunner{
		NewInput: func() any { return new(Input) },
		Fn:       OnRunPublish,
	})
}
