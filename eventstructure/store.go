package eventstructure

import (
	"errors"
	"fmt"

	"github.com/timewinder-dev/lincheck-go/cas"
	"github.com/timewinder-dev/lincheck-go/scenario"
)

var (
	// ErrThreadNotInitialized is returned when a non-initializer label
	// is added to a thread that has not yet emitted its ThreadStart.
	ErrThreadNotInitialized = errors.New("eventstructure: thread not initialized")
	// ErrThreadAlreadyInitialized is returned when an initializer label
	// is added to a thread that already has one.
	ErrThreadAlreadyInitialized = errors.New("eventstructure: thread already initialized")
	// ErrCausalityCycle is returned when a candidate dependency already
	// observed a point in the new event's own thread beyond its parent,
	// which would close a cycle through the new event.
	ErrCausalityCycle = errors.New("eventstructure: dependency causally after parent")
)

// ghostThreadID is the synthetic thread identity used for initializer
// writes; it never appears as a real scenario thread index.
const ghostThreadID = -1

// EventStore is the append-only, single-writer event log of spec.md
// §4.F. It is driven by one exploration goroutine (the runner, via
// instrumentation callbacks); it performs no synchronization of its
// own, matching the "single-writer" resource policy of spec.md §5.
//
// Grounded on the teacher's cas package for content-addressing Event
// and ExecutionFrontier snapshots (repurposed from hash-consing
// interpreter State, see cas/memory.go), and on the append-only,
// parent-pointer-only event log design note of spec.md §9 ("no
// back-pointers required").
type EventStore struct {
	nThreads int
	store    cas.CAS

	events []*Event
	nextID int

	initialized map[int]bool
	threadLast  map[int]int

	ghostInit map[string]int

	// pendingBranches records, keyed by a response event id, the Binary
	// candidates not chosen for that response — the alternative
	// branches StartNextExploration can later resume into.
	pendingBranches map[int][]*Event

	frontier ExecutionFrontier
}

// New returns an empty EventStore sized for nThreads parallel threads,
// hash-consing its Event and ExecutionFrontier snapshots into store.
func New(nThreads int, store cas.CAS) *EventStore {
	return &EventStore{
		nThreads:        nThreads,
		store:           store,
		initialized:     make(map[int]bool),
		threadLast:      make(map[int]int),
		ghostInit:       make(map[string]int),
		pendingBranches: make(map[int][]*Event),
		frontier:        make(ExecutionFrontier),
	}
}

// Events returns the append-ordered event log. Callers must not mutate
// it; it is owned by the EventStore.
func (s *EventStore) Events() []*Event { return s.events }

// Frontier returns the current execution frontier.
func (s *EventStore) Frontier() ExecutionFrontier { return s.frontier.Clone() }

func (s *EventStore) validateThread(label Label) error {
	if label.isInitializer() {
		if s.initialized[label.ThreadID] {
			return fmt.Errorf("%w: thread %d", ErrThreadAlreadyInitialized, label.ThreadID)
		}
		return nil
	}
	if !s.initialized[label.ThreadID] {
		return fmt.Errorf("%w: thread %d", ErrThreadNotInitialized, label.ThreadID)
	}
	return nil
}

func (s *EventStore) parentOf(threadID int) *Event {
	id, ok := s.threadLast[threadID]
	if !ok {
		return nil
	}
	return s.events[id]
}

// causallyAfter reports whether dep already observed a point in
// parent's own thread beyond what parent itself is at — the one
// concrete cycle shape addRequest/addResponse must reject per spec.md
// §4.F ("a dependency must not be causally after the chosen parent").
func causallyAfter(dep, parent *Event) bool {
	if parent == nil {
		return false
	}
	return dep.CausalityClock[parent.ThreadID] > parent.CausalityClock[parent.ThreadID]
}

func (s *EventStore) append(label Label, deps []int) (*Event, error) {
	if err := s.validateThread(label); err != nil {
		return nil, err
	}
	parent := s.parentOf(label.ThreadID)

	position := 0
	parentID := -1
	clock := scenario.NewHBClock(s.nThreads)
	if parent != nil {
		position = parent.Position + 1
		parentID = parent.ID
		clock = parent.CausalityClock.Clone()
	}
	for _, depID := range deps {
		dep := s.events[depID]
		if causallyAfter(dep, parent) {
			return nil, fmt.Errorf("%w: dependency %d", ErrCausalityCycle, depID)
		}
		clock = clock.Merge(dep.CausalityClock)
	}
	clock = clock.Tick(label.ThreadID)

	ev := &Event{
		ID:             s.nextID,
		ThreadID:       label.ThreadID,
		Position:       position,
		Label:          label,
		ParentID:       parentID,
		Dependencies:   deps,
		CausalityClock: clock,
	}
	s.nextID++
	s.events = append(s.events, ev)
	s.threadLast[label.ThreadID] = ev.ID
	if label.isInitializer() {
		s.initialized[label.ThreadID] = true
	}
	s.frontier[label.ThreadID] = ev.ID
	ev.FrontierSnapshot = s.frontier.Clone()

	if s.store != nil {
		fr := ev.FrontierSnapshot
		fh, err := s.store.Put(&fr)
		if err != nil {
			return nil, fmt.Errorf("eventstructure: storing frontier snapshot: %w", err)
		}
		ev.FrontierHash = fh
		if _, err := s.store.Put(ev); err != nil {
			return nil, fmt.Errorf("eventstructure: storing event: %w", err)
		}
	}
	return ev, nil
}

// AddRequest appends a Request-phase event, the first half of a
// synchronized operation (spec.md §4.F).
func (s *EventStore) AddRequest(label Label) (*Event, error) {
	label.Phase = Request
	return s.append(label, nil)
}

// AddTotal appends a Total event: an unsynchronized action, or the
// completing half of someone else's synchronization (e.g. a write
// satisfying a pending read, or an Unlock satisfying a pending Lock).
func (s *EventStore) AddTotal(label Label) (*Event, error) {
	label.Phase = Total
	if label.Kind == MemoryAccess && label.Access == Read {
		return nil, fmt.Errorf("eventstructure: a Read cannot be Total, use AddRequest/AddResponse")
	}
	return s.append(label, nil)
}

// AddExclusiveWrite appends an exclusive (read-modify-write) write
// event whose RMW predecessor is the write identified by readFrom, per
// the ReadModifyWriteChain data model of spec.md §3: chain position k
// reads from chain position k-1. label.Exclusive is forced true and
// label.Access to Write regardless of what the caller passed.
func (s *EventStore) AddExclusiveWrite(label Label, readFrom int) (*Event, error) {
	if readFrom < 0 || readFrom >= len(s.events) {
		return nil, fmt.Errorf("eventstructure: AddExclusiveWrite: predecessor %d out of range", readFrom)
	}
	label.Phase = Total
	label.Kind = MemoryAccess
	label.Access = Write
	label.Exclusive = true
	return s.append(label, []int{readFrom})
}

// AddResponse attempts to synchronize requestEvent's label against the
// Total events visible so far, per the Binary/Barrier algebra of
// spec.md §4.F. Binary synchronization may match more than one
// candidate; the first match is appended and returned, and the rest
// are recorded as alternative branches for StartNextExploration to
// revisit later. It returns ok=false (with no error) when no candidate
// currently synchronizes, e.g. a wait with no notify yet.
func (s *EventStore) AddResponse(requestEvent *Event) (ev *Event, ok bool, err error) {
	req := requestEvent.Label

	var totals []*Event
	for _, e := range s.events {
		if e.Label.Phase == Total {
			totals = append(totals, e)
		}
	}

	if req.Kind == MemoryAccess && req.Access == Read && !hasWriteTotal(totals, req.Location) {
		totals = append(totals, s.ensureInitializer(req.Location, req.Default))
	}

	if req.Sync == Barrier {
		labels := make([]Label, len(totals))
		for i, t := range totals {
			labels[i] = t.Label
		}
		resp, matched := foldBarrier(req, labels)
		if !matched {
			return nil, false, nil
		}
		var deps []int
		for _, t := range totals {
			if t.Label.Kind == ThreadFinish {
				deps = append(deps, t.ID)
			}
		}
		ev, err = s.append(resp, deps)
		return ev, err == nil, err
	}

	var candidates []*Event
	var first Label
	for _, t := range totals {
		if resp, matched := req.synchronize(t.Label); matched {
			candidates = append(candidates, t)
			if len(candidates) == 1 {
				first = resp
			}
		}
	}
	if len(candidates) == 0 {
		return nil, false, nil
	}
	ev, err = s.append(first, []int{candidates[0].ID})
	if err != nil {
		return nil, false, err
	}
	if len(candidates) > 1 {
		s.pendingBranches[ev.ID] = candidates[1:]
	}
	return ev, true, nil
}

func hasWriteTotal(totals []*Event, location string) bool {
	for _, t := range totals {
		if t.Label.Kind == MemoryAccess && t.Label.Access == Write && t.Label.Location == location {
			return true
		}
	}
	return false
}

// ensureInitializer synthesizes the ghost-thread initializer write for
// location on its first mention, per spec.md §4.F.
func (s *EventStore) ensureInitializer(location string, defaultValue any) *Event {
	if id, ok := s.ghostInit[location]; ok {
		return s.events[id]
	}
	ev := &Event{
		ID:       s.nextID,
		ThreadID: ghostThreadID,
		Position: 0,
		ParentID: -1,
		Label: Label{
			Kind:     Initialization,
			ThreadID: ghostThreadID,
			Phase:    Total,
			Location: location,
			Value:    defaultValue,
		},
		CausalityClock: scenario.NewHBClock(s.nThreads),
	}
	s.nextID++
	s.events = append(s.events, ev)
	ev.FrontierSnapshot = s.frontier.Clone()
	s.ghostInit[location] = ev.ID
	if s.store != nil {
		fr := ev.FrontierSnapshot
		if fh, err := s.store.Put(&fr); err == nil {
			ev.FrontierHash = fh
		}
		_, _ = s.store.Put(ev)
	}
	return ev
}

// StartNextExploration picks the most recently added unvisited event,
// truncates every younger event, and restores the frontier to that
// event's snapshot, per spec.md §4.F and Property 6 (§8). It returns
// ok=false once every event has been visited, meaning exploration from
// this store is exhausted.
func (s *EventStore) StartNextExploration() (*Event, bool) {
	for i := len(s.events) - 1; i >= 0; i-- {
		ev := s.events[i]
		if ev.Visited {
			continue
		}
		ev.Visited = true
		s.rollbackTo(ev)
		return ev, true
	}
	return nil, false
}

// frontierAt reconstructs the ExecutionFrontier recorded for ev,
// reading through the CAS when one is configured (so identical
// frontiers hash-consed across many events/invocations are actually
// deduplicated) and falling back to the in-memory snapshot otherwise.
func (s *EventStore) frontierAt(ev *Event) ExecutionFrontier {
	if s.store != nil {
		if h, err := s.store.Get(ev.FrontierHash); err == nil {
			if fp, ok := h.(*ExecutionFrontier); ok {
				return fp.Clone()
			}
		}
	}
	return ev.FrontierSnapshot.Clone()
}

func (s *EventStore) rollbackTo(ev *Event) {
	s.events = s.events[:ev.ID+1]
	s.nextID = ev.ID + 1
	s.frontier = s.frontierAt(ev)

	s.threadLast = make(map[int]int, len(s.frontier))
	s.initialized = make(map[int]bool, len(s.frontier))
	for t, id := range s.frontier {
		s.threadLast[t] = id
		s.initialized[t] = true
	}
	for reqID := range s.pendingBranches {
		if reqID > ev.ID {
			delete(s.pendingBranches, reqID)
		}
	}
	for loc, id := range s.ghostInit {
		if id > ev.ID {
			delete(s.ghostInit, loc)
		}
	}
}

// PendingBranches returns the unexplored Binary candidates recorded
// for the response event with id responseID, if any remain.
func (s *EventStore) PendingBranches(responseID int) []*Event {
	return s.pendingBranches[responseID]
}
