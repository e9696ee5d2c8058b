package pool

import (
	"errors"
	"fmt"
	"strings"

	"github.com/timewinder-dev/lincheck-go/threaddump"
)

// ErrTimeout is returned by SubmitAndAwait when a worker's result does
// not arrive before the deadline. After this, the pool is stuck and
// rejects further submissions.
var ErrTimeout = errors.New("pool: submit deadline exceeded")

// ErrStuck is returned immediately by SubmitAndAwait when the pool is
// already in the stuck state from a prior timeout.
var ErrStuck = errors.New("pool: pool is stuck from a previous timeout")

// PreconditionError reports a malformed submission: an out-of-range
// thread index or a duplicate index in the same submission. Per
// spec.md §4.B this is reported before any slot is touched.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string { return "pool: " + e.Reason }

// ExecutionFailure aggregates one or more worker task failures from a
// single SubmitAndAwait call. The first failure is primary; the rest
// are recorded as suppressed siblings, matching the teacher's
// first-error-wins aggregation in MultiThreadEngine.recordViolation.
type ExecutionFailure struct {
	ThreadIndex int
	Cause       error
	Suppressed  []*ExecutionFailure
}

func (e *ExecutionFailure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "pool: thread %d failed: %v", e.ThreadIndex, e.Cause)
	for _, s := range e.Suppressed {
		fmt.Fprintf(&b, "; suppressed[thread %d]: %v", s.ThreadIndex, s.Cause)
	}
	return b.String()
}

func (e *ExecutionFailure) Unwrap() error { return e.Cause }

// TimeoutError is returned in place of ExecutionFailure when one or
// more awaited slots exceed their deadline; it carries a thread dump
// of every pool-owned worker goroutine sampled at the moment of
// expiry (spec.md §5, Property 9).
type TimeoutError struct {
	ThreadIndex int
	Dump        threaddump.Dump
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("pool: timeout awaiting result from thread %d", e.ThreadIndex)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }
