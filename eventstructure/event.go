package eventstructure

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/shamaton/msgpack/v2"
	"github.com/timewinder-dev/lincheck-go/cas"
	"github.com/timewinder-dev/lincheck-go/scenario"
)

func init() {
	cas.RegisterType("Event", &Event{})
	cas.RegisterType("ExecutionFrontier", &ExecutionFrontier{})
}

// Event is the immutable record of spec.md §3: every sequenced memory
// action and every synchronization primitive becomes one of these.
// IDs are globally monotone and assigned by the owning EventStore;
// nothing in this package mutates an Event after it is appended.
type Event struct {
	ID             int
	ThreadID       int
	Position       int
	Label          Label
	ParentID       int // -1 for a thread's first event
	Dependencies   []int
	CausalityClock scenario.HBClock

	// FrontierSnapshot is the ExecutionFrontier at the moment this
	// event was created, letting startNextExploration reconstruct the
	// state a rollback should resume from. It is the in-memory fallback
	// used when no CAS is configured; when one is, FrontierHash is the
	// canonical source and rollbackTo reads through it.
	FrontierSnapshot ExecutionFrontier
	// FrontierHash is the content hash FrontierSnapshot was stored
	// under, letting equal frontiers across different events share one
	// stored copy.
	FrontierHash cas.Hash

	Visited bool
}

// msgpackEvent mirrors Event's exported shape for (de)serialization;
// kept separate so cas.Hashable's Serde methods don't need Event's
// exploration-only fields to round-trip identically.
type msgpackEvent struct {
	ID               int
	ThreadID         int
	Position         int
	Label            Label
	ParentID         int
	Dependencies     []int
	CausalityClock   scenario.HBClock
	FrontierSnapshot ExecutionFrontier
	Visited          bool
}

func (e *Event) Serialize(w io.Writer) error {
	return msgpack.MarshalWrite(w, toMsgpackEvent(e))
}

func (e *Event) Deserialize(r io.Reader) error {
	var m msgpackEvent
	if err := msgpack.UnmarshalRead(r, &m); err != nil {
		return err
	}
	*e = fromMsgpackEvent(m)
	return nil
}

func toMsgpackEvent(e *Event) msgpackEvent {
	return msgpackEvent{
		ID:               e.ID,
		ThreadID:         e.ThreadID,
		Position:         e.Position,
		Label:            e.Label,
		ParentID:         e.ParentID,
		Dependencies:     e.Dependencies,
		CausalityClock:   e.CausalityClock,
		FrontierSnapshot: e.FrontierSnapshot,
		Visited:          e.Visited,
	}
}

func fromMsgpackEvent(m msgpackEvent) Event {
	return Event{
		ID:               m.ID,
		ThreadID:         m.ThreadID,
		Position:         m.Position,
		Label:            m.Label,
		ParentID:         m.ParentID,
		Dependencies:     m.Dependencies,
		CausalityClock:   m.CausalityClock,
		FrontierSnapshot: m.FrontierSnapshot,
		Visited:          m.Visited,
	}
}

// HashTo feeds a deliberately coarser fingerprint than Serialize: it
// writes thread, position, label kind and value only, not the full
// dependency/frontier bookkeeping, so two events that differ only in
// exploration metadata feed identical bytes.
func (e *Event) HashTo(w io.Writer) {
	fmt.Fprintf(w, "%d|%d|%d|%v", e.ThreadID, e.Position, e.Label.Kind, e.Label.Value)
}

var _ cas.Hashable = (*Event)(nil)

// ExecutionFrontier maps each thread id to the id of the last event
// recorded for it (a thread that has not produced any event has no
// entry). It is
// the state snapshot startNextExploration restores onto, and doubles
// as the "weak state" hashed for livelock detection.
type ExecutionFrontier map[int]int

func (f ExecutionFrontier) Clone() ExecutionFrontier {
	out := make(ExecutionFrontier, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

type msgpackFrontier struct {
	Threads []int
	LastIDs []int
}

func (f *ExecutionFrontier) Serialize(w io.Writer) error {
	m := msgpackFrontier{}
	for t := range *f {
		m.Threads = append(m.Threads, t)
	}
	sort.Ints(m.Threads)
	for _, t := range m.Threads {
		m.LastIDs = append(m.LastIDs, (*f)[t])
	}
	return msgpack.MarshalWrite(w, m)
}

func (f *ExecutionFrontier) Deserialize(r io.Reader) error {
	var m msgpackFrontier
	if err := msgpack.UnmarshalRead(r, &m); err != nil {
		return err
	}
	out := make(ExecutionFrontier, len(m.Threads))
	for i, t := range m.Threads {
		out[t] = m.LastIDs[i]
	}
	*f = out
	return nil
}

func (f *ExecutionFrontier) HashTo(w io.Writer) {
	var buf bytes.Buffer
	_ = f.Serialize(&buf)
	w.Write(buf.Bytes())
}

var _ cas.Hashable = (*ExecutionFrontier)(nil)
