package consistency

import (
	"fmt"

	"github.com/timewinder-dev/lincheck-go/eventstructure"
)

// atomicityChecker maintains, per memory location, the read-modify-
// write chains of spec.md §3/§4.G: each exclusive write's predecessor
// is the write its exclusive-read part read from (event.Dependencies[0]
// for an RMW response event). Two exclusive writes extending the same
// predecessor would mean two concurrent RMW chains both anchored at
// the same write — an atomicity violation.
type atomicityChecker struct {
	// anchor[location][predecessorEventID] = the one exclusive write
	// already known to extend that predecessor.
	anchor map[string]map[int]int
}

func newAtomicityChecker() *atomicityChecker {
	return &atomicityChecker{anchor: make(map[string]map[int]int)}
}

func (c *atomicityChecker) Reset() {
	c.anchor = make(map[string]map[int]int)
}

// predecessorOf returns the id of the write ev's exclusive RMW read
// observed, or -1 if ev is not part of an RMW chain at all.
func predecessorOf(ev *eventstructure.Event) int {
	if !ev.Label.Exclusive || len(ev.Dependencies) == 0 {
		return -1
	}
	return ev.Dependencies[0]
}

func (c *atomicityChecker) observe(ev *eventstructure.Event) *Inconsistency {
	if ev.Label.Kind != eventstructure.MemoryAccess || ev.Label.Access != eventstructure.Write {
		return nil
	}
	pred := predecessorOf(ev)
	if pred < 0 {
		return nil
	}
	loc := ev.Label.Location
	if c.anchor[loc] == nil {
		c.anchor[loc] = make(map[int]int)
	}
	if existing, ok := c.anchor[loc][pred]; ok && existing != ev.ID {
		return &Inconsistency{
			Kind:   AtomicityViolation,
			Detail: fmt.Sprintf("two exclusive writes at %q both extend predecessor %d", loc, pred),
			Events: []int{existing, ev.ID},
		}
	}
	c.anchor[loc][pred] = ev.ID
	return nil
}

func (c *atomicityChecker) CheckIncremental(ev *eventstructure.Event) (Verdict, *Inconsistency) {
	if bad := c.observe(ev); bad != nil {
		return InconsistentVerdict, bad
	}
	return Consistent, nil
}

func (c *atomicityChecker) CheckFull(events []*eventstructure.Event) *Inconsistency {
	c.Reset()
	for _, ev := range events {
		if bad := c.observe(ev); bad != nil {
			return bad
		}
	}
	return nil
}

// rmwChains groups the write events at location into read-modify-write
// chains: each chain is an ordered slice of event ids starting from a
// non-RMW (or unresolved-predecessor) write and following the
// predecessor links forward. Used by the writes-before and coherence
// checkers to keep chain members moving together.
func rmwChains(events []*eventstructure.Event, location string) [][]int {
	next := make(map[int]int) // predecessor id -> its successor id
	isWrite := make(map[int]bool)
	for _, ev := range events {
		if ev.Label.Kind != eventstructure.MemoryAccess || ev.Label.Access != eventstructure.Write || ev.Label.Location != location {
			continue
		}
		isWrite[ev.ID] = true
		if pred := predecessorOf(ev); pred >= 0 {
			next[pred] = ev.ID
		}
	}
	hasPred := make(map[int]bool, len(next))
	for _, succ := range next {
		hasPred[succ] = true
	}
	var chains [][]int
	for id := range isWrite {
		if hasPred[id] {
			continue
		}
		chain := []int{id}
		cur := id
		for {
			succ, ok := next[cur]
			if !ok {
				break
			}
			chain = append(chain, succ)
			cur = succ
		}
		chains = append(chains, chain)
	}
	return chains
}

// chainOf returns, for every write event id at a location, the index
// of the chain it belongs to (as returned by rmwChains).
func chainOf(chains [][]int) map[int]int {
	out := make(map[int]int)
	for i, chain := range chains {
		for _, id := range chain {
			out[id] = i
		}
	}
	return out
}
