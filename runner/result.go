package runner

import (
	"github.com/timewinder-dev/lincheck-go/scenario"
	"github.com/timewinder-dev/lincheck-go/threaddump"
)

// InvocationKind tags the variant carried by an InvocationResult, per
// spec.md §4.D's runInvocation() discriminated union.
type InvocationKind int

const (
	KindCompleted InvocationKind = iota
	KindRunnerTimeout
	KindUnexpectedException
	KindValidationFailure
	KindObstructionFreedomViolation
	KindManagedDeadlock
	KindSpinLoopBound
	KindSpinCycleFoundAndReplayRequired
)

func (k InvocationKind) String() string {
	switch k {
	case KindCompleted:
		return "Completed"
	case KindRunnerTimeout:
		return "RunnerTimeout"
	case KindUnexpectedException:
		return "UnexpectedException"
	case KindValidationFailure:
		return "ValidationFailure"
	case KindObstructionFreedomViolation:
		return "ObstructionFreedomViolation"
	case KindManagedDeadlock:
		return "ManagedDeadlock"
	case KindSpinLoopBound:
		return "SpinLoopBound"
	case KindSpinCycleFoundAndReplayRequired:
		return "SpinCycleFoundAndReplayRequired"
	default:
		return "Unknown"
	}
}

// ThreadResults holds one parallel thread's ordered actor results.
type ThreadResults struct {
	ThreadIndex int
	Results     []scenario.Result
	Clocks      []scenario.HBClock
}

// InvocationResult is the outcome of one ScenarioRunner.RunInvocation
// call.
type InvocationResult struct {
	Kind InvocationKind

	// Completed, ManagedDeadlock, ValidationFailure, UnexpectedException,
	// RunnerTimeout
	Threads []ThreadResults
	// Completed
	StateReprs []string

	// RunnerTimeout
	Dump threaddump.Dump

	// UnexpectedException, ValidationFailure
	Cause error
	// ValidationFailure
	ScenarioPrefix string

	// ObstructionFreedomViolation
	Reason string
}
