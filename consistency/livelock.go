package consistency

import (
	"bytes"
	"sort"

	"github.com/dgryski/go-farm"

	"github.com/timewinder-dev/lincheck-go/cas"
	"github.com/timewinder-dev/lincheck-go/eventstructure"
)

// weakStateStore is the subset of cas.MemoryCAS's weak-state bookkeeping
// a LivelockDetector needs: recording the invocation indices a weak
// state hash recurred at, and reading them back. cas.MemoryCAS and
// anything wrapping it (cas.LRUCache) satisfy this already.
type weakStateStore interface {
	RecordWeakStateDepth(weakHash cas.Hash, depth int)
	GetWeakStateDepths(weakHash cas.Hash) []int
}

// LivelockDetector flags an ObstructionFreedomViolation (spec.md §4.D
// /§7): when the same "weak state" — the kind and phase of each
// frontier thread's last event, ignoring everything else about the
// execution — recurs
// at an arithmetic progression of invocation indices, with no forward
// progress in between, the scenario is live-locking rather than merely
// slow. Grounded on the teacher's DetectLivelock/WeakStateHash
// (model/livelock.go): same cycle-by-repeated-weak-state-at-equal-
// spaced-depths technique, retargeted from "globals + pause reasons at
// a BFS depth" to "frontier + last-label-per-thread at an invocation
// index". The per-hash history itself is kept in the backing CAS's
// weak-state bookkeeping (cas.MemoryCAS.RecordWeakStateDepth/
// GetWeakStateDepths) rather than a detector-local map, since that is
// exactly the purpose that bookkeeping exists for.
type LivelockDetector struct {
	store weakStateStore
}

// NewLivelockDetector returns a detector that records weak-state
// history in store.
func NewLivelockDetector(store weakStateStore) *LivelockDetector {
	return &LivelockDetector{store: store}
}

// weakStateHash fingerprints, for each thread of frontier in thread
// order, the thread index and the label kind and phase of its last
// event; the event ids themselves are not hashed. This is the same
// "semantic state ignoring exact identity" idea as the teacher's
// Globals+PauseReasons hash.
func weakStateHash(frontier eventstructure.ExecutionFrontier, events []*eventstructure.Event) cas.Hash {
	byID := make(map[int]*eventstructure.Event, len(events))
	for _, ev := range events {
		byID[ev.ID] = ev
	}
	threads := make([]int, 0, len(frontier))
	for t := range frontier {
		threads = append(threads, t)
	}
	sort.Ints(threads)

	var buf bytes.Buffer
	for _, t := range threads {
		ev := byID[frontier[t]]
		if ev == nil {
			continue
		}
		buf.WriteByte(byte(t))
		buf.WriteByte(byte(ev.Label.Kind))
		buf.WriteByte(byte(ev.Label.Phase))
	}
	return cas.Hash(farm.Hash64(buf.Bytes()))
}

// Observe records the weak state at invocationIndex and reports
// whether it completes an arithmetic-progression cycle: the same weak
// state seen at least three times with equal spacing between
// consecutive sightings, per the teacher's detection rule.
func (d *LivelockDetector) Observe(frontier eventstructure.ExecutionFrontier, events []*eventstructure.Event, invocationIndex int) bool {
	hash := weakStateHash(frontier, events)
	d.store.RecordWeakStateDepth(hash, invocationIndex)
	all := d.store.GetWeakStateDepths(hash)
	if len(all) < 3 {
		return false
	}
	last3 := all[len(all)-3:]
	cycle1 := last3[1] - last3[0]
	cycle2 := last3[2] - last3[1]
	return cycle1 == cycle2 && cycle1 > 0
}
