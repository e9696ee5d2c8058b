// Package runner implements the parallel scenario runner of spec.md
// §4.C/§4.D: per-thread clocked actor execution, and the
// INIT/PARALLEL/POST/VALIDATION phase machine that drives it across
// the active-thread pool, including suspension and cancellation of
// suspendable actors.
package runner

// Phase names one step of the INIT -> PARALLEL -> POST -> VALIDATION
// machine (spec.md §4.D).
type Phase int

const (
	PhaseInit Phase = iota
	PhaseParallel
	PhasePost
	PhaseValidation
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "INIT"
	case PhaseParallel:
		return "PARALLEL"
	case PhasePost:
		return "POST"
	case PhaseValidation:
		return "VALIDATION"
	default:
		return "UNKNOWN"
	}
}

// Context is an explicit per-invocation value used in place of
// process-wide phase state: RunInvocation builds one, updates its Phase
// at each phase transition and logs it. It is not passed to the worker
// goroutines or to the consistency checkers.
type Context struct {
	Phase        Phase
	NumThreads   int
	InvocationID string
}
