// Package config defines the format-agnostic model of a loaded pipeline
// configuration: workflows, jobs, steps and composite actions. Loaders such
// as the HCL loader translate their on-disk syntax into this model; the rest
// of the engine never touches the source format directly.
package config
