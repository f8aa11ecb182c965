// Package expr evaluates gate conditions and argument expressions against
// a bounded, read-only environment: fields of the triggering event, the
// instance's matrix axis values, upstream job results, prior step outcomes
// and composite action inputs.
//
// Evaluation is pure. Unknown identifiers resolve to typed null values and
// a null or non-boolean condition gates to false; a well-typed environment
// can never make evaluation panic.
package expr
