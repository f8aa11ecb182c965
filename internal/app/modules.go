package app

import (
	"github.com/vk/pipegrid/internal/registry"
	"github.com/vk/pipegrid/modules/audit"
	"github.com/vk/pipegrid/modules/checkout"
	"github.com/vk/pipegrid/modules/coverage"
	"github.com/vk/pipegrid/modules/publish"
	"github.com/vk/pipegrid/modules/shell"
	"github.com/vk/pipegrid/modules/testrunner"
)

// coreModules is the default set of runner modules compiled into the
// binary. Tests pass their own set to NewApp instead.
var coreModules = []registry.Module{
	&shell.Module{},
	&checkout.Module{},
	&testrunner.Module{},
	&audit.Module{},
	&coverage.Module{},
	&publish.Module{},
}
