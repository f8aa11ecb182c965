// Package scheduler drives the execution of one triggered workflow run. It
// expands matrix jobs into instances, wires the dependency graph at the
// instance level, and dispatches ready instances to a bounded worker pool.
// Gate conditions are evaluated at pick-up time, after all dependencies
// have reached a terminal state, so skips propagate through the graph
// without ever executing a step.
package scheduler
