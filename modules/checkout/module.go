// Package checkout provides the 'checkout' runner: it materializes the
// run's source into the instance workspace via git.
package checkout

import (
	"context"
	"fmt"
	"strconv"

	"github.com/vk/pipegrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the checkout runner. All arguments are
// optional; the defaults come from the run context, which for pull
// requests already points at the head repository and ref.
type Input struct {
	// Repository overrides the clone source.
	Repository string `hcl:"repository,optional"`
	// Ref overrides the ref to check out.
	Ref string `hcl:"ref,optional"`
	// Depth enables a shallow clone when positive.
	Depth int `hcl:"depth,optional"`
}

// OnRunCheckout is the handler for the 'checkout' runner.
func OnRunCheckout(ctx context.Context, ec *registry.ExecContext, input any) (*registry.Outcome, error) {
	in := input.(*Input)

	repo := in.Repository
	if repo == "" {
		repo = ec.Repository
	}
	ref := in.Ref
	if ref == "" {
		ref = ec.Ref
	}
	if repo == "" {
		return nil, fmt.Errorf("checkout runner has no repository to clone")
	}

	args := []string{"clone"}
	if in.Depth > 0 {
		args = append(args, "--depth", strconv.Itoa(in.Depth))
	}
	args = append(args, repo, ".")
	if err := ec.Command(ctx, "git", args...); err != nil {
		return nil, fmt.Errorf("clone of %s failed: %w", repo, err)
	}

	if ref != "" {
		if err := ec.Command(ctx, "git", "checkout", "--detach", ref); err != nil {
			return nil, fmt.Errorf("checkout of %s failed: %w", ref, err)
		}
	}
	return nil, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("checkout", &registry.RegisteredRunner{
		NewInput: func() any { return new(Input) },
		Fn:       OnRunCheckout,
	})
}
