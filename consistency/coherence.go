package consistency

import (
	"fmt"
	"sort"

	"github.com/timewinder-dev/lincheck-go/eventstructure"
)

// coherenceChecker implements the sequential-consistency approximation
// and coherence-order search of spec.md §4.G: a cheap fixpoint closure
// runs first; if it survives, one topological ordering of each
// location's local writes-before graph (that preserves RMW chains) is
// taken as the coherence candidate and checked for an acyclic total
// execution order, which becomes the replay witness. Other orderings of
// the same graph are not enumerated.
type coherenceChecker struct {
	lastOrder []int
}

func newCoherenceChecker() *coherenceChecker {
	return &coherenceChecker{}
}

func (c *coherenceChecker) Reset() { c.lastOrder = nil }

func (c *coherenceChecker) CheckIncremental(ev *eventstructure.Event) (Verdict, *Inconsistency) {
	if ev.Label.Kind == eventstructure.MemoryAccess || ev.Label.Kind == eventstructure.Wait || ev.Label.Kind == eventstructure.Notify {
		return Unknown, nil
	}
	return Consistent, nil
}

func (c *coherenceChecker) CheckFull(events []*eventstructure.Event) *Inconsistency {
	if bad := scApproximation(events); bad != nil {
		return bad
	}

	byLocation := make(map[string][]*eventstructure.Event)
	for _, ev := range events {
		if ev.Label.Kind == eventstructure.MemoryAccess && ev.Label.Access == eventstructure.Write {
			byLocation[ev.Label.Location] = append(byLocation[ev.Label.Location], ev)
		}
	}

	// Build the local (non-extended) writes-before graph per location,
	// purely from causality, to enumerate its topological orderings.
	locWB := make(map[string]*graph)
	locChains := make(map[string][][]int)
	for loc, writes := range byLocation {
		g := newGraph()
		for _, w1 := range writes {
			for _, w2 := range writes {
				if w1.ID != w2.ID && happensBefore(w1, w2) {
					g.addEdge(w1.ID, w2.ID)
				}
			}
		}
		chains := rmwChains(events, loc)
		closeUnderChains(g, chains)
		locWB[loc] = g
		locChains[loc] = chains
	}

	candidates := candidateOrderings(locWB)
	if len(candidates) == 0 {
		candidates = [][]int{nil}
	}

	for _, candidate := range candidates {
		order, ok := c.tryExecutionOrder(events, candidate)
		if ok {
			c.lastOrder = order
			return nil
		}
	}
	return &Inconsistency{
		Kind:   SequentialConsistencyCoherenceViolation,
		Detail: "no coherence-order candidate yielded an acyclic execution order",
	}
}

// LastOrder returns the execution order synthesized by the most recent
// successful CheckFull, the replay witness of spec.md §4.G.
func (c *coherenceChecker) LastOrder() []int { return c.lastOrder }

// candidateOrderings builds the coherence candidate from each
// location's writes-before graph; since each location's graph is
// already required to be acyclic for the checker to proceed, its
// canonical topological order is used directly as the one candidate
// for that location, and other topological orders are not enumerated.
// The combined "candidate" concatenates the per-location orders and
// stands for the union of each location's coherence edges, with ties
// free to be resolved by the execution-order synthesis below.
func candidateOrderings(locWB map[string]*graph) [][]int {
	var combined []int
	locs := make([]string, 0, len(locWB))
	for loc := range locWB {
		locs = append(locs, loc)
	}
	sort.Strings(locs)
	for _, loc := range locs {
		order, ok := locWB[loc].topoSort()
		if !ok {
			return nil
		}
		combined = append(combined, order...)
	}
	return [][]int{combined}
}

// tryExecutionOrder attempts to synthesize a total execution order per
// spec.md §4.G: the union of causality, extended coherence (candidate,
// closed with reads-from/reads-before edges), wait-before-notify, and
// response-depends-before-request-resolves, topologically sorted.
func (c *coherenceChecker) tryExecutionOrder(events []*eventstructure.Event, candidate []int) ([]int, bool) {
	g := newGraph()
	byID := make(map[int]*eventstructure.Event, len(events))
	for _, ev := range events {
		byID[ev.ID] = ev
	}

	for _, ev := range events {
		if ev.ParentID >= 0 {
			g.addEdge(ev.ParentID, ev.ID)
		}
		for _, dep := range ev.Dependencies {
			g.addEdge(dep, ev.ID)
		}
	}

	for i := 0; i+1 < len(candidate); i++ {
		a, b := byID[candidate[i]], byID[candidate[i+1]]
		if a != nil && b != nil && a.Label.Location == b.Label.Location {
			g.addEdge(a.ID, b.ID)
		}
	}
	pos := make(map[int]int, len(candidate))
	for i, id := range candidate {
		pos[id] = i
	}

	// reads-from / reads-before: a read must follow the write it read,
	// and precede every write that comes after that write in coherence
	// order at the same location (every write, if it read the ghost
	// initializer).
	for _, ev := range events {
		if ev.Label.Kind != eventstructure.MemoryAccess || ev.Label.Access != eventstructure.Read || ev.Label.Phase != eventstructure.Response {
			continue
		}
		if len(ev.Dependencies) == 0 {
			continue
		}
		readFrom := ev.Dependencies[0]
		g.addEdge(readFrom, ev.ID)
		src := byID[readFrom]
		fromInit := src != nil && src.Label.Kind == eventstructure.Initialization
		pr, rok := pos[readFrom]
		for _, w := range events {
			if w.ID == readFrom || w.Label.Kind != eventstructure.MemoryAccess || w.Label.Access != eventstructure.Write || w.Label.Location != ev.Label.Location {
				continue
			}
			if pw, wok := pos[w.ID]; fromInit || (rok && wok && pw > pr) {
				g.addEdge(ev.ID, w.ID)
			}
		}
	}

	// wait-request before its corresponding notify.
	for _, ev := range events {
		if ev.Label.Kind != eventstructure.Wait || ev.Label.Phase != eventstructure.Response {
			continue
		}
		if req := byID[ev.ParentID]; req != nil && req.Label.Kind == eventstructure.Wait && req.Label.Phase == eventstructure.Request && len(ev.Dependencies) > 0 {
			g.addEdge(req.ID, ev.Dependencies[0])
		}
		for _, other := range events {
			if other.Label.Kind == eventstructure.Notify && other.Label.Monitor == ev.Label.Monitor && happensBefore(other, ev) {
				g.addEdge(other.ID, ev.ID)
			}
		}
	}

	order, ok := g.topoSort()
	if !ok {
		return nil, false
	}
	return order, true
}

// scApproximation runs the cheaper fixpoint closure of spec.md §4.G
// before the full coherence search: repeatedly add w -> readsFrom(r)
// whenever w hb r, and reject on reflexivity (a location where some
// write is forced both before and after the value it reads).
func scApproximation(events []*eventstructure.Event) *Inconsistency {
	byLocation := make(map[string][]*eventstructure.Event)
	for _, ev := range events {
		if ev.Label.Kind == eventstructure.MemoryAccess {
			byLocation[ev.Label.Location] = append(byLocation[ev.Label.Location], ev)
		}
	}
	for loc, evs := range byLocation {
		g := newGraph()
		for _, r := range evs {
			if r.Label.Access != eventstructure.Read || r.Label.Phase != eventstructure.Response || len(r.Dependencies) == 0 {
				continue
			}
			readFrom := r.Dependencies[0]
			for _, w := range evs {
				if w.Label.Access != eventstructure.Write || w.ID == readFrom {
					continue
				}
				if happensBefore(w, r) {
					g.addEdge(w.ID, readFrom)
				}
			}
		}
		if g.hasCycle() {
			return &Inconsistency{
				Kind:   SequentialConsistencyCoherenceViolation,
				Detail: fmt.Sprintf("sequential-consistency approximation cycle at %q", loc),
				Events: g.nodes(),
			}
		}
	}
	return nil
}
