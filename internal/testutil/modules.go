package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vk/pipegrid/internal/registry"
)

// RecorderModule registers a "record" runner that appends every executed
// step's label to a shared list. Steps that pass a fail=true argument
// return an error.
type RecorderModule struct {
	mu sync.Mutex
	// Executed holds the label arguments of the steps that ran, in
	// execution order.
	Executed []string
	// Sleep delays every execution, useful for ordering and cancellation
	// tests.
	Sleep time.Duration
}

// recordInput defines the arguments for the record runner.
type recordInput struct {
	Label string `hcl:"label"`
	Fail  bool   `hcl:"fail,optional"`
}

// Register registers the "record" runner's Go handler.
func (m *RecorderModule) Register(r *registry.Registry) {
	r.RegisterRunner("record", &registry.RegisteredRunner{
		NewInput: func() any { return new(recordInput) },
		Fn: func(ctx context.Context, _ *registry.ExecContext, inputRaw any) (*registry.Outcome, error) {
			input := inputRaw.(*recordInput)

			if m.Sleep > 0 {
				select {
				case <-time.After(m.Sleep):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}

			m.mu.Lock()
			m.Executed = append(m.Executed, input.Label)
			m.mu.Unlock()

			if input.Fail {
				return nil, fmt.Errorf("step %s was scripted to fail", input.Label)
			}
			return nil, nil
		},
	})
}

// ExecutedLabels returns a copy of the executed labels.
func (m *RecorderModule) ExecutedLabels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.Executed...)
}

// Ran reports whether a label was executed.
func (m *RecorderModule) Ran(label string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.Executed {
		if l == label {
			return true
		}
	}
	return false
}

// EnvProbeModule registers an "envprobe" runner that captures the value of
// one environment variable per execution.
type EnvProbeModule struct {
	mu sync.Mutex
	// Seen maps probed variable names to the values observed.
	Seen map[string]string
}

// envProbeInput defines the arguments for the envprobe runner.
type envProbeInput struct {
	Name string `hcl:"name"`
}

// Register registers the "envprobe" runner's Go handler.
func (m *EnvProbeModule) Register(r *registry.Registry) {
	r.RegisterRunner("envprobe", &registry.RegisteredRunner{
		NewInput: func() any { return new(envProbeInput) },
		Fn: func(_ context.Context, ec *registry.ExecContext, inputRaw any) (*registry.Outcome, error) {
			input := inputRaw.(*envProbeInput)
			value, _ := ec.LookupEnv(input.Name)

			m.mu.Lock()
			if m.Seen == nil {
				m.Seen = make(map[string]string)
			}
			m.Seen[input.Name] = value
			m.mu.Unlock()
			return nil, nil
		},
	})
}

// Value returns the observed value for a probed variable.
func (m *EnvProbeModule) Value(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Seen[name]
}
