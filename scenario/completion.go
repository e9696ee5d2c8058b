package scenario

import "sync/atomic"

// CompletionStatus is the final disposition of a Completion.
type CompletionStatus int32

const (
	StatusPending CompletionStatus = iota
	StatusResumed
	StatusCancelled
)

// Completion models a suspended actor's continuation as an explicit
// sum-typed value instead of a language-level coroutine (design note,
// spec.md §9): {pending | resumed(result, resumeFn) | cancelled}. A
// suspendable actor that decides to suspend publishes its Completion
// somewhere a peer actor's own code can find it (e.g. a wait queue
// inside the data structure under test); the peer calls TryResume when
// it makes progress that satisfies the wait. The suspending side
// itself polls Done (typically through a bounded spinner) and falls
// back to Wait once that bound is exhausted.
//
// The resuming side writes via CompareAndSwap; only one of a racing
// TryResume/TryCancel pair can win, which is what lets prompt
// cancellation (spec.md §4.D) and a late resume be disambiguated
// without a lock.
type Completion struct {
	status atomic.Int32
	result Result
	// resumer is the peer-supplied continuation to run on the
	// ORIGINAL thread once it wakes ("Interception", spec.md §4.D):
	// the resuming thread defers the actual follow-up work to the
	// thread that owns the actor, preserving the actor-to-thread
	// mapping even though a different goroutine did the resuming.
	resumer atomic.Value // func()
	done    chan struct{}
}

// NewCompletion returns a fresh, pending Completion.
func NewCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// TryResume attempts to transition a pending Completion to resumed. It
// returns false if the Completion was already resumed or cancelled by
// a racing caller.
func (c *Completion) TryResume(result Result, resumer func()) bool {
	if !c.status.CompareAndSwap(int32(StatusPending), int32(StatusResumed)) {
		return false
	}
	c.result = result
	if resumer != nil {
		c.resumer.Store(resumer)
	}
	close(c.done)
	return true
}

// TryCancel attempts to transition a pending Completion to cancelled.
// It returns false if a resume already won the race, in which case the
// caller must honor the resumed result instead (the "loser
// compensates the counter" rule of spec.md §4.D).
func (c *Completion) TryCancel() bool {
	if !c.status.CompareAndSwap(int32(StatusPending), int32(StatusCancelled)) {
		return false
	}
	close(c.done)
	return true
}

// Done reports, without blocking, whether the Completion has reached a
// final state. Suitable as the read function for spin.SpinWaitBounded.
func (c *Completion) Done() (CompletionStatus, bool) {
	s := CompletionStatus(c.status.Load())
	if s == StatusPending {
		return 0, false
	}
	return s, true
}

// Wait blocks until the Completion is resolved and returns the final
// result plus an optional resumer continuation.
func (c *Completion) Wait() (Result, func()) {
	<-c.done
	if CompletionStatus(c.status.Load()) == StatusCancelled {
		return Cancelled(), nil
	}
	resumer, _ := c.resumer.Load().(func())
	return c.result, resumer
}
