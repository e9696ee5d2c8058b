// Package scenario holds the data model shared by the rest of the
// lincheck core: scenarios, actors, results and happens-before clocks.
// None of the types here know how to execute anything; they are the
// inert values the runner, planner and consistency packages operate on.
package scenario

import "context"

// ActorFlags describes how the runner should treat an actor's return
// value and how it may be cancelled while suspended.
type ActorFlags struct {
	// Suspendable marks an actor that may legitimately return a
	// Suspended result and later be resumed by a peer thread.
	Suspendable bool
	// CancelOnSuspension requests that the runner attempt cancellation
	// the moment this actor suspends, rather than waiting for a resume.
	CancelOnSuspension bool
	// PromptCancellation is carried for the caller's description of the
	// actor; the runner does not read it. A cancellation never overrides
	// a resume that has already been prepared: once TryResume has won
	// the Completion's status CAS, TryCancel fails.
	PromptCancellation bool
	// HandlesExceptions marks actors whose thrown exceptions are a
	// legitimate part of the sequential specification rather than an
	// UnexpectedException.
	HandlesExceptions bool
}

// Func is the user operation bound to one Actor invocation. It receives
// an InvocationContext so it can register a Completion before
// suspending. Implementations are supplied by the instrumentation
// layer; the core never inspects their internals.
type Func func(ctx context.Context, ictx *InvocationContext) (Result, error)

// Actor is an opaque descriptor for one operation invocation in a
// scenario: a name for diagnostics, the captured argument values (for
// display only), behavioral flags, and the function to run.
type Actor struct {
	Name  string
	Args  []any
	Flags ActorFlags
	Run   Func
}

// Scenario is the triple (init, parallel x T, post) of actor lists plus
// an optional validation actor, per spec.md §3.
type Scenario struct {
	Init       []*Actor
	Parallel   [][]*Actor // len(Parallel) == number of parallel threads
	Post       []*Actor
	Validation *Actor
}

// NumThreads returns the number of parallel threads this scenario
// requires.
func (s *Scenario) NumThreads() int {
	return len(s.Parallel)
}

// InvocationContext is handed to every actor invocation. For a
// Suspendable actor, Completion is pre-populated by the runner before
// Func runs: the actor stashes ictx.Completion somewhere a peer actor's
// code can find it (a wait list inside the object under test) and then
// returns scenario.Suspended(). A peer that later makes progress calls
// Completion.TryResume, and the runner's phase machine is the one
// watching for that resolution; the actor's own code never needs to
// import the runner package to participate in the protocol.
type InvocationContext struct {
	ThreadIndex int
	ActorIndex  int
	// Completion is non-nil only for actors with ActorFlags.Suspendable
	// set. An actor that does not intend to suspend this invocation
	// simply ignores it.
	Completion *Completion
}
