// Package spin implements the bounded spin-wait with adaptive park
// fallback described in spec.md §4.A: keep a worker hot on the CPU
// while there is headroom, and yield immediately once the thread count
// exceeds the available logical CPUs so spinning never starves peers.
package spin

import (
	"runtime"
)

// defaultSpins is the per-iteration spin budget used when a
// SpinnerGroup has at most one thread per logical CPU.
const defaultSpins = 1000

// Spinner polls a read function for up to a bounded number of
// iterations and returns the first value read reports as present, or
// the zero value and false if the bound is exhausted without one.
type Spinner struct {
	// Spins is the number of poll iterations to attempt before giving
	// up. A Spins of 0 means read is never called and the wait returns
	// immediately (no actual spinning), which is what SpinnerGroup
	// produces once the group is oversubscribed.
	Spins int
}

// SpinWaitBounded polls read up to s.Spins times, yielding the
// processor between attempts via runtime.Gosched so other goroutines
// on the same P can make progress. It returns the first value for
// which read reports ok, with true, or the zero value and false if the
// bound is exhausted.
func SpinWaitBounded[T any](s Spinner, read func() (T, bool)) (T, bool) {
	for i := 0; i < s.Spins; i++ {
		if v, ok := read(); ok {
			return v, true
		}
		// Every few iterations, actually yield the P instead of
		// busy-looping flat out; this mirrors the teacher's own
		// poll-then-sleep shape in its depth-completion wait loop,
		// scaled down from a millisecond sleep to a scheduler yield
		// since spin iterations here are expected to be microseconds.
		if i%4 == 3 {
			runtime.Gosched()
		}
	}
	var zero T
	return zero, false
}

// SpinnerGroup sizes a Spinner's bound from the ratio of logical CPUs
// to the group's declared thread count: once threads outnumber CPUs,
// every additional spinning thread only steals cycles from the thread
// that actually holds the CPU, so the bound collapses to zero.
type SpinnerGroup struct {
	numThreads int
	numCPU     int
}

// NewSpinnerGroup returns a SpinnerGroup sized for numThreads
// contending threads, querying the environment for the logical CPU
// count.
func NewSpinnerGroup(numThreads int) *SpinnerGroup {
	return &SpinnerGroup{
		numThreads: numThreads,
		numCPU:     runtime.GOMAXPROCS(0),
	}
}

// Spinner returns a Spinner whose bound reflects the group's current
// CPU-to-thread ratio. When threads <= CPUs, every thread gets the
// default budget, so each worker can stay hot while waiting for a
// rendezvous partner. When threads exceed CPUs, the budget is 0 (no
// spinning, park immediately), to avoid starving the thread that
// currently holds the processor.
func (g *SpinnerGroup) Spinner() Spinner {
	if g.numThreads <= g.numCPU || g.numThreads <= 0 {
		return Spinner{Spins: defaultSpins}
	}
	return Spinner{Spins: 0}
}
