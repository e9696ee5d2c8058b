// Package consistency checks an EventStructure execution against
// memory-model axioms (spec.md §4.G): atomicity, release-acquire
// writes-before, sequential-consistency coherence, and lock
// discipline. Checkers never mutate the execution; an Inconsistency
// carries only the minimal information needed to name the offending
// kind, leaving pretty-printing to an external layer (out of scope,
// spec.md §1).
package consistency

import (
	"fmt"

	"github.com/timewinder-dev/lincheck-go/eventstructure"
)

// MemoryModel selects which checker set the Aggregator runs, matching
// real Lincheck's distinction between a plain sequential-consistency
// run and one that also validates atomics/release-acquire ordering
// (SPEC_FULL.md §5 supplement; spec.md §4.G names the checkers but not
// how a caller selects among them).
type MemoryModel int

const (
	SequentialConsistency MemoryModel = iota
	ReleaseAcquire
	Atomics
)

func (m MemoryModel) String() string {
	switch m {
	case SequentialConsistency:
		return "SequentialConsistency"
	case ReleaseAcquire:
		return "ReleaseAcquire"
	case Atomics:
		return "Atomics"
	default:
		return "Unknown"
	}
}

// InconsistencyKind names the class of axiom violated.
type InconsistencyKind int

const (
	AtomicityViolation InconsistencyKind = iota
	ReleaseAcquireInconsistency
	SequentialConsistencyCoherenceViolation
	LockConsistencyViolation
	ReplayInvariantViolation
)

func (k InconsistencyKind) String() string {
	switch k {
	case AtomicityViolation:
		return "AtomicityViolation"
	case ReleaseAcquireInconsistency:
		return "ReleaseAcquireInconsistency"
	case SequentialConsistencyCoherenceViolation:
		return "SequentialConsistencyCoherenceViolation"
	case LockConsistencyViolation:
		return "LockConsistencyViolation"
	case ReplayInvariantViolation:
		return "ReplayInvariantViolation"
	default:
		return "Unknown"
	}
}

// Inconsistency is the value every checker returns on rejection. Events
// names the offending event ids, e.g. the two writes that broke
// atomicity, kept minimal per spec.md §4.G's failure semantics.
type Inconsistency struct {
	Kind   InconsistencyKind
	Detail string
	Events []int
}

func (i *Inconsistency) Error() string {
	return fmt.Sprintf("%s: %s %v", i.Kind, i.Detail, i.Events)
}

// Verdict is the outcome of an incremental per-event check: Consistent
// and Inconsistent are final answers the aggregator can short-circuit
// on; Unknown means the incremental checker cannot decide from this
// event alone and a full pass is required.
type Verdict int

const (
	Consistent Verdict = iota
	InconsistentVerdict
	Unknown
)

// Checker is the shared interface of spec.md §4.G: a full pass over an
// execution, an incremental per-event check, and a reset hook the
// aggregator calls when it starts checking a new execution.
type Checker interface {
	CheckFull(events []*eventstructure.Event) *Inconsistency
	CheckIncremental(ev *eventstructure.Event) (Verdict, *Inconsistency)
	Reset()
}

// checkersFor returns the checker set a MemoryModel selects. Lock
// consistency always runs: lock discipline is not an optional axiom
// under any of the three models.
func checkersFor(model MemoryModel) []Checker {
	switch model {
	case ReleaseAcquire:
		return []Checker{newAtomicityChecker(), newWritesBeforeChecker(true), newLockChecker()}
	case Atomics:
		return []Checker{newAtomicityChecker(), newLockChecker()}
	default:
		return []Checker{newAtomicityChecker(), newWritesBeforeChecker(false), newCoherenceChecker(), newLockChecker()}
	}
}

// Aggregator composes incremental and full checkers per spec.md §4.G:
// incremental answers short-circuit on Inconsistent; an Unknown from
// any checker forces a full pass over the whole execution so far.
type Aggregator struct {
	model     MemoryModel
	checkers  []Checker
	coherence *coherenceChecker // non-nil only under SequentialConsistency
}

// NewAggregator returns an Aggregator running the checker set model
// selects.
func NewAggregator(model MemoryModel) *Aggregator {
	checkers := checkersFor(model)
	a := &Aggregator{model: model, checkers: checkers}
	for _, c := range checkers {
		if cc, ok := c.(*coherenceChecker); ok {
			a.coherence = cc
		}
	}
	return a
}

// Reset clears all checker state, e.g. at the start of exploring a new
// invocation's event structure.
func (a *Aggregator) Reset() {
	for _, c := range a.checkers {
		c.Reset()
	}
}

// CheckEvent runs the incremental form of every checker against a
// newly appended event. It returns nil as long as every checker
// answers Consistent; the first Inconsistent verdict is returned
// immediately, and an Unknown from any checker triggers a full pass
// over events (which must include ev) before returning.
func (a *Aggregator) CheckEvent(ev *eventstructure.Event, events []*eventstructure.Event) *Inconsistency {
	needsFull := false
	for _, c := range a.checkers {
		verdict, bad := c.CheckIncremental(ev)
		if verdict == InconsistentVerdict {
			return bad
		}
		if verdict == Unknown {
			needsFull = true
		}
	}
	if !needsFull {
		return nil
	}
	return a.CheckFull(events)
}

// CheckFull runs every checker's full pass over the whole execution
// and returns the first Inconsistency found, or nil if the execution
// is admissible under every selected axiom. Once the coherence checker
// (SequentialConsistency only) has synthesized its execution order,
// that order is replayed with ReplayWitness per spec.md §4.G ("once an
// order is produced, the runner re-runs the execution guided by that
// order") before the execution is accepted.
func (a *Aggregator) CheckFull(events []*eventstructure.Event) *Inconsistency {
	for _, c := range a.checkers {
		if bad := c.CheckFull(events); bad != nil {
			return bad
		}
	}
	if a.coherence != nil {
		if bad := ReplayWitness(events, a.coherence.LastOrder()); bad != nil {
			return bad
		}
	}
	return nil
}
