// Package registry holds the runner handlers that steps dispatch to. Each
// runner module registers a handler under its runner type; the step runner
// looks handlers up by the step's runner type label. Registration happens
// once at startup, so lookups are lock-free.
package registry
