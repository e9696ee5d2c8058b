package consistency

import (
	"fmt"

	"github.com/timewinder-dev/lincheck-go/eventstructure"
)

// ReplayWitness re-runs the execution guided by order, the total
// execution order a coherenceChecker synthesized, per spec.md §4.G's
// replay-witness verification: a deterministic abstract machine
// consumes the events in order, checks that every read returns the
// value of the coherence-latest write it should read from, and
// verifies lock discipline (a lock response may not take a monitor
// another thread still holds; an unlock releases the monitor without
// further checks). Replay failure is an internal invariant
// violation — checkers never mutate the execution, so a replay
// mismatch means the accepted order was wrong, not that the trace
// changed underneath it.
func ReplayWitness(events []*eventstructure.Event, order []int) *Inconsistency {
	byID := make(map[int]*eventstructure.Event, len(events))
	for _, ev := range events {
		byID[ev.ID] = ev
	}

	memory := make(map[string]any)
	locked := make(map[string]int) // monitor -> holder thread, absent if free

	for _, id := range order {
		ev, ok := byID[id]
		if !ok {
			return &Inconsistency{
				Kind:   ReplayInvariantViolation,
				Detail: fmt.Sprintf("execution order references unknown event %d", id),
			}
		}
		switch {
		case ev.Label.Kind == eventstructure.MemoryAccess && ev.Label.Access == eventstructure.Write:
			memory[ev.Label.Location] = ev.Label.Value
		case ev.Label.Kind == eventstructure.Initialization:
			if _, ok := memory[ev.Label.Location]; !ok {
				memory[ev.Label.Location] = ev.Label.Value
			}
		case ev.Label.Kind == eventstructure.MemoryAccess && ev.Label.Access == eventstructure.Read && ev.Label.Phase == eventstructure.Response:
			want := ev.Label.Value
			got, ok := memory[ev.Label.Location]
			if !ok || got != want {
				return &Inconsistency{
					Kind:   ReplayInvariantViolation,
					Detail: fmt.Sprintf("replay read %q expected %v, coherence-latest write was %v", ev.Label.Location, want, got),
					Events: []int{ev.ID},
				}
			}
		case ev.Label.Kind == eventstructure.Lock && ev.Label.Phase == eventstructure.Response:
			if holder, held := locked[ev.Label.Monitor]; held && holder != ev.ThreadID {
				return &Inconsistency{
					Kind:   ReplayInvariantViolation,
					Detail: fmt.Sprintf("replay: monitor %q double-acquired", ev.Label.Monitor),
					Events: []int{ev.ID},
				}
			}
			locked[ev.Label.Monitor] = ev.ThreadID
		case ev.Label.Kind == eventstructure.Unlock:
			delete(locked, ev.Label.Monitor)
		}
	}
	return nil
}
