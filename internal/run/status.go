package run

// Status is the lifecycle state of a job instance (and, by aggregation, of
// a job and of the whole run). Transitions are monotonic: Pending moves
// through Blocked/Running into exactly one terminal state, after which the
// instance is immutable.
type Status int

const (
	// Pending means the instance is ready to be picked up by a worker.
	Pending Status = iota
	// Blocked means the instance is waiting on its needs set.
	Blocked
	// Running means a worker is executing the instance's steps.
	Running
	// Succeeded is terminal: all unskipped steps finished cleanly.
	Succeeded
	// Failed is terminal: a step failed or timed out.
	Failed
	// Skipped is terminal: the gate condition evaluated false.
	Skipped
	// Cancelled is terminal: the run or a fail-fast sibling cancelled it.
	Cancelled
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Blocked:
		return "blocked"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case Succeeded, Failed, Skipped, Cancelled:
		return true
	default:
		return false
	}
}

// Result is the outcome of a terminal unit as seen by condition
// expressions: the value of needs.<job>.result and steps.<name>.outcome.
type Result string

const (
	ResultSuccess   Result = "success"
	ResultFailure   Result = "failure"
	ResultCancelled Result = "cancelled"
	ResultSkipped   Result = "skipped"
)

// Result maps a terminal status to its expression-visible outcome. It
// returns the empty Result for non-terminal statuses.
func (s Status) Result() Result {
	switch s {
	case Succeeded:
		return ResultSuccess
	case Failed:
		return ResultFailure
	case Skipped:
		return ResultSkipped
	case Cancelled:
		return ResultCancelled
	default:
		return ""
	}
}
