package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/pipegrid/internal/app"
	"github.com/vk/pipegrid/internal/hcl"
	"github.com/vk/pipegrid/internal/registry"
)

// HarnessResult holds the outcomes of an integration test run.
type HarnessResult struct {
	LogOutput string
	Err       error
	App       *app.App
}

// HarnessOptions customize one integration run.
type HarnessOptions struct {
	// Files maps relative paths to file contents. Workflow documents go
	// under "workflows/", composite actions under "actions/". The event
	// payload is written to "event.yaml" and an optional secrets file to
	// "secrets.env".
	Files map[string]string
	// Event is the YAML event payload.
	Event string
	// Secrets is the env-format secrets file content; empty means no
	// secrets file is passed.
	Secrets string
	// Modules are the runner modules registered for the run.
	Modules []registry.Module
}

// RunIntegrationTest provides a standardized harness for running
// integration tests using a default background context.
func RunIntegrationTest(t *testing.T, opts HarnessOptions) *HarnessResult {
	t.Helper()
	return RunIntegrationTestWithContext(context.Background(), t, opts)
}

// RunIntegrationTestWithContext writes the pipeline sources to a temporary
// directory, builds the App and executes the run with the given context.
// Startup panics are recovered into the result error.
func RunIntegrationTestWithContext(ctx context.Context, t *testing.T, opts HarnessOptions) *HarnessResult {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", ".tmp-integration-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	workflowsDir := filepath.Join(tmpDir, "workflows")
	actionsDir := filepath.Join(tmpDir, "actions")
	require.NoError(t, os.Mkdir(workflowsDir, 0755))
	require.NoError(t, os.Mkdir(actionsDir, 0755))

	for name, content := range opts.Files {
		filePath := filepath.Join(tmpDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0755))
		require.NoError(t, os.WriteFile(filePath, []byte(content), 0644))
	}

	eventPath := filepath.Join(tmpDir, "event.yaml")
	require.NoError(t, os.WriteFile(eventPath, []byte(opts.Event), 0644))

	secretsPath := ""
	if opts.Secrets != "" {
		secretsPath = filepath.Join(tmpDir, "secrets.env")
		require.NoError(t, os.WriteFile(secretsPath, []byte(opts.Secrets), 0644))
	}

	appConfig := &app.Config{
		WorkflowPath:  workflowsDir,
		ActionsPath:   actionsDir,
		EventPath:     eventPath,
		SecretsPath:   secretsPath,
		LogLevel:      "debug",
		LogFormat:     "text",
		WorkerCount:   4,
		WorkspaceRoot: filepath.Join(tmpDir, "work"),
	}

	logBuffer := &SafeBuffer{}

	var testApp *app.App
	var panicErr any
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicErr = r
			}
		}()
		testApp = app.NewApp(logBuffer, appConfig, hcl.NewLoader(), opts.Modules...)
	}()

	if panicErr != nil {
		return &HarnessResult{
			LogOutput: logBuffer.String(),
			Err:       fmt.Errorf("application startup panicked | %v", panicErr),
		}
	}

	runErr := testApp.Run(ctx)

	if os.Getenv("PIPEGRID_TEST_LOGS") == "true" {
		t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
	}

	return &HarnessResult{
		LogOutput: logBuffer.String(),
		Err:       runErr,
		App:       testApp,
	}
}
