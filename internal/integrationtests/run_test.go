package integrationtests

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/pipegrid/internal/registry"
	"github.com/vk/pipegrid/internal/testutil"
)

const pushEvent = `
kind: push
ref: refs/heads/main
repository: acme/widget
actor: rennat
`

func TestEndToEndPipeline(t *testing.T) {
	rec := &testutil.RecorderModule{}
	result := testutil.RunIntegrationTest(t, testutil.HarnessOptions{
		Files: map[string]string{
			"workflows/ci.hcl": `
workflow "ci" {
  on {
    push {
      branches = ["main"]
    }
  }

  job "build" {
    step "record" "compile" {
      arguments {
        label = "build"
      }
    }
  }

  job "test" {
    needs = ["build"]
    matrix {
      axis "py" {
        values = ["3.11", "3.12"]
      }
    }
    step "record" "unit" {
      arguments {
        label = "test-${matrix.py}"
      }
    }
  }

  job "report" {
    needs     = ["test"]
    condition = always()
    step "record" "summarize" {
      arguments {
        label = "report"
      }
    }
  }
}
`,
		},
		Event:   pushEvent,
		Modules: []registry.Module{rec},
	})

	require.NoError(t, result.Err)
	labels := rec.ExecutedLabels()
	assert.Len(t, labels, 4)
	assert.Equal(t, "build", labels[0])
	assert.Contains(t, labels, "test-3.11")
	assert.Contains(t, labels, "test-3.12")
	assert.Equal(t, "report", labels[3])
	assert.Contains(t, result.LogOutput, "Run finished")
}

func TestFailurePropagatesThroughTheGraph(t *testing.T) {
	rec := &testutil.RecorderModule{}
	result := testutil.RunIntegrationTest(t, testutil.HarnessOptions{
		Files: map[string]string{
			"workflows/ci.hcl": `
workflow "ci" {
  on {
    push {}
  }

  job "build" {
    step "record" "compile" {
      arguments {
        label = "build"
        fail  = true
      }
    }
  }

  job "test" {
    needs = ["build"]
    step "record" "unit" {
      arguments {
        label = "test"
      }
    }
  }

  job "cleanup" {
    needs     = ["build"]
    condition = always()
    step "record" "sweep" {
      arguments {
        label = "cleanup"
      }
    }
  }
}
`,
		},
		Event:   pushEvent,
		Modules: []registry.Module{rec},
	})

	require.Error(t, result.Err)
	assert.True(t, rec.Ran("build"))
	assert.False(t, rec.Ran("test"), "dependent of the failed job must not run")
	assert.True(t, rec.Ran("cleanup"), "always() runs despite the failure")
}

func TestNonMatchingEventFiresNothing(t *testing.T) {
	rec := &testutil.RecorderModule{}
	result := testutil.RunIntegrationTest(t, testutil.HarnessOptions{
		Files: map[string]string{
			"workflows/ci.hcl": `
workflow "ci" {
  on {
    push {
      branches = ["main"]
    }
  }
  job "build" {
    step "record" "compile" {
      arguments {
        label = "build"
      }
    }
  }
}
`,
		},
		Event: `
kind: push
ref: refs/heads/experiment
repository: acme/widget
`,
		Modules: []registry.Module{rec},
	})

	require.NoError(t, result.Err)
	assert.Empty(t, rec.ExecutedLabels())
	assert.Contains(t, result.LogOutput, "No workflow triggers matched")
}

func TestCompositeActionEndToEnd(t *testing.T) {
	rec := &testutil.RecorderModule{}
	result := testutil.RunIntegrationTest(t, testutil.HarnessOptions{
		Files: map[string]string{
			"workflows/ci.hcl": `
workflow "ci" {
  on {
    dispatch {}
  }
  job "build" {
    matrix {
      axis "py" {
        values = ["3.12"]
      }
    }
    step "use" "env" {
      action = "setup-python"
      with {
        version = matrix.py
      }
    }
    step "record" "compile" {
      arguments {
        label = "build"
      }
    }
  }
}
`,
			"actions/setup.hcl": `
action "setup-python" {
  description = "Install a Python toolchain."

  input "version" {
    default = "3.11"
  }

  step "record" "install" {
    arguments {
      label = "install-${input.version}"
    }
  }
}
`,
		},
		Event: `
kind: dispatch
ref: refs/heads/main
repository: acme/widget
`,
		Modules: []registry.Module{rec},
	})

	require.NoError(t, result.Err)
	assert.Equal(t, []string{"install-3.12", "build"}, rec.ExecutedLabels())
}

func TestForkPullRequestCannotUseSecrets(t *testing.T) {
	rec := &testutil.RecorderModule{}
	result := testutil.RunIntegrationTest(t, testutil.HarnessOptions{
		Files: map[string]string{
			"workflows/pr.hcl": `
workflow "pr-checks" {
  on {
    pull_request {
      types = ["opened"]
    }
  }
  job "publish" {
    step "record" "upload" {
      arguments {
        label = "upload"
      }
      secrets = ["PYPI_TOKEN"]
    }
  }
}
`,
		},
		Event: `
kind: pull_request
ref: refs/heads/main
repository: acme/widget
pull_request:
  action: opened
  head_ref: refs/heads/fix
  head_repo: mallory/widget
  base_ref: refs/heads/main
`,
		Secrets: "PYPI_TOKEN=supersecret\n",
		Modules: []registry.Module{rec},
	})

	// The secret exists in the store but the fork-originated run is
	// restricted, so the step fails before running.
	require.Error(t, result.Err)
	assert.False(t, rec.Ran("upload"))
	assert.NotContains(t, result.LogOutput, "supersecret")
}

func TestStartupFailsOnUnknownRunnerType(t *testing.T) {
	result := testutil.RunIntegrationTest(t, testutil.HarnessOptions{
		Files: map[string]string{
			"workflows/ci.hcl": `
workflow "ci" {
  on {
    push {}
  }
  job "build" {
    step "warp-drive" "engage" {
      arguments {
        label = "x"
      }
    }
  }
}
`,
		},
		Event:   pushEvent,
		Modules: []registry.Module{&testutil.RecorderModule{}},
	})

	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "unknown runner type")
}

func TestStartupFailsOnCyclicNeeds(t *testing.T) {
	result := testutil.RunIntegrationTest(t, testutil.HarnessOptions{
		Files: map[string]string{
			"workflows/ci.hcl": `
workflow "ci" {
  on {
    push {}
  }
  job "a" {
    needs = ["b"]
    step "record" "s" {
      arguments {
        label = "a"
      }
    }
  }
  job "b" {
    needs = ["a"]
    step "record" "s" {
      arguments {
        label = "b"
      }
    }
  }
}
`,
		},
		Event:   pushEvent,
		Modules: []registry.Module{&testutil.RecorderModule{}},
	})

	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "cyclic")
}

func TestSecretReachesDeclaredStep(t *testing.T) {
	probe := &testutil.EnvProbeModule{}
	result := testutil.RunIntegrationTest(t, testutil.HarnessOptions{
		Files: map[string]string{
			"workflows/ci.hcl": `
workflow "ci" {
  on {
    push {}
  }
  job "publish" {
    step "envprobe" "check" {
      arguments {
        name = "PYPI_TOKEN"
      }
      secrets = ["PYPI_TOKEN"]
    }
  }
}
`,
		},
		Event:   pushEvent,
		Secrets: "PYPI_TOKEN=supersecret\n",
		Modules: []registry.Module{probe},
	})

	require.NoError(t, result.Err)
	assert.Equal(t, "supersecret", probe.Value("PYPI_TOKEN"))
	// The value itself never shows up in the logs.
	assert.NotContains(t, result.LogOutput, "supersecret")
}
