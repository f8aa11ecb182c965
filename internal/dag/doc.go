// Package dag provides a minimal directed acyclic graph used to validate
// job dependency edges at load time and to lift them to instance level for
// scheduling.
package dag
