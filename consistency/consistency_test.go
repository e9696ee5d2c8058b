package consistency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timewinder-dev/lincheck-go/cas"
	"github.com/timewinder-dev/lincheck-go/eventstructure"
)

func newStore(t *testing.T, n int) *eventstructure.EventStore {
	t.Helper()
	return eventstructure.New(n, cas.NewLRUCache(cas.NewMemoryCAS(), 64))
}

func start(t *testing.T, s *eventstructure.EventStore, thread int) {
	t.Helper()
	_, err := s.AddRequest(eventstructure.Label{Kind: eventstructure.ThreadStart, ThreadID: thread})
	require.NoError(t, err)
}

// TestS1WriteThenReadIsConsistent mirrors spec.md §8 S1: one write, one
// read of the same location, no further synchronization.
func TestS1WriteThenReadIsConsistent(t *testing.T) {
	s := newStore(t, 2)
	start(t, s, 0)
	start(t, s, 1)

	_, err := s.AddTotal(eventstructure.Label{Kind: eventstructure.MemoryAccess, Access: eventstructure.Write, ThreadID: 0, Location: "x", Value: 1})
	require.NoError(t, err)

	req, err := s.AddRequest(eventstructure.Label{Kind: eventstructure.MemoryAccess, Access: eventstructure.Read, ThreadID: 1, Location: "x", Default: 0})
	require.NoError(t, err)
	_, ok, err := s.AddResponse(req)
	require.NoError(t, err)
	require.True(t, ok)

	agg := NewAggregator(SequentialConsistency)
	assert.Nil(t, agg.CheckFull(s.Events()))
}

// TestS2RMWChainsSharingAnchorViolate: two threads each perform a single
// exclusive increment reading from the shared initial write, so two
// exclusive writes extend the same predecessor — an atomicity violation.
func TestS2RMWChainsSharingAnchorViolate(t *testing.T) {
	s := newStore(t, 2)
	start(t, s, 0)
	start(t, s, 1)

	init, err := s.AddTotal(eventstructure.Label{Kind: eventstructure.MemoryAccess, Access: eventstructure.Write, ThreadID: 0, Location: "c", Value: 0})
	require.NoError(t, err)

	_, err = s.AddExclusiveWrite(eventstructure.Label{ThreadID: 0, Location: "c", Value: 1}, init.ID)
	require.NoError(t, err)
	_, err = s.AddExclusiveWrite(eventstructure.Label{ThreadID: 1, Location: "c", Value: 1}, init.ID)
	require.NoError(t, err)

	checker := newAtomicityChecker()
	bad := checker.CheckFull(s.Events())
	require.NotNil(t, bad, "two exclusive writes anchored at the same predecessor must violate atomicity")
	assert.Equal(t, AtomicityViolation, bad.Kind)
}

func TestAtomicityCheckerAllowsSingleChain(t *testing.T) {
	s := newStore(t, 1)
	start(t, s, 0)

	w0, err := s.AddTotal(eventstructure.Label{Kind: eventstructure.MemoryAccess, Access: eventstructure.Write, ThreadID: 0, Location: "c", Value: 0})
	require.NoError(t, err)
	w1, err := s.AddExclusiveWrite(eventstructure.Label{ThreadID: 0, Location: "c", Value: 1}, w0.ID)
	require.NoError(t, err)
	_, err = s.AddExclusiveWrite(eventstructure.Label{ThreadID: 0, Location: "c", Value: 2}, w1.ID)
	require.NoError(t, err)

	checker := newAtomicityChecker()
	assert.Nil(t, checker.CheckFull(s.Events()))
}

// TestS4WaitNotifyOrdering mirrors spec.md §8 S4: a wait paired with a
// notify must place the notify after the wait's request, and lock
// consistency must accept it.
func TestS4WaitNotifyOrdering(t *testing.T) {
	s := newStore(t, 2)
	start(t, s, 0)
	start(t, s, 1)

	waitReq, err := s.AddRequest(eventstructure.Label{Kind: eventstructure.Wait, ThreadID: 0, Monitor: "m"})
	require.NoError(t, err)
	_, ok, err := s.AddResponse(waitReq)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = s.AddTotal(eventstructure.Label{Kind: eventstructure.Notify, ThreadID: 1, Monitor: "m"})
	require.NoError(t, err)

	_, ok, err = s.AddResponse(waitReq)
	require.NoError(t, err)
	require.True(t, ok)

	checker := newLockChecker()
	assert.Nil(t, checker.CheckFull(s.Events()))
}

// TestLockCheckerRejectsDoubleAcquire builds the event slice directly
// rather than through an EventStore: two threads' acquire-responses on
// the same monitor with no intervening Unlock.
func TestLockCheckerRejectsDoubleAcquire(t *testing.T) {
	lock0 := &eventstructure.Event{ID: 0, ThreadID: 0, Label: eventstructure.Label{Kind: eventstructure.Lock, ThreadID: 0, Phase: eventstructure.Response, Monitor: "m"}}
	lock1 := &eventstructure.Event{ID: 1, ThreadID: 1, Label: eventstructure.Label{Kind: eventstructure.Lock, ThreadID: 1, Phase: eventstructure.Response, Monitor: "m"}}

	checker := newLockChecker()
	bad := checker.CheckFull([]*eventstructure.Event{lock0, lock1})
	require.NotNil(t, bad, "thread 1 acquired monitor m while thread 0 still held it")
	assert.Equal(t, LockConsistencyViolation, bad.Kind)
}

// TestLockCheckerAcceptsHandoffAfterUnlock: the same pair, but with an
// Unlock from thread 0 in between.
func TestLockCheckerAcceptsHandoffAfterUnlock(t *testing.T) {
	lock0 := &eventstructure.Event{ID: 0, ThreadID: 0, Label: eventstructure.Label{Kind: eventstructure.Lock, ThreadID: 0, Phase: eventstructure.Response, Monitor: "m"}}
	unlock0 := &eventstructure.Event{ID: 1, ThreadID: 0, Label: eventstructure.Label{Kind: eventstructure.Unlock, ThreadID: 0, Phase: eventstructure.Total, Monitor: "m"}}
	lock1 := &eventstructure.Event{ID: 2, ThreadID: 1, Label: eventstructure.Label{Kind: eventstructure.Lock, ThreadID: 1, Phase: eventstructure.Response, Monitor: "m"}}

	checker := newLockChecker()
	assert.Nil(t, checker.CheckFull([]*eventstructure.Event{lock0, unlock0, lock1}))
}

func TestReplayWitnessDetectsStaleRead(t *testing.T) {
	w := &eventstructure.Event{ID: 0, Label: eventstructure.Label{Kind: eventstructure.MemoryAccess, Access: eventstructure.Write, Location: "x", Value: 1}}
	w2 := &eventstructure.Event{ID: 1, Label: eventstructure.Label{Kind: eventstructure.MemoryAccess, Access: eventstructure.Write, Location: "x", Value: 2}}
	r := &eventstructure.Event{ID: 2, Label: eventstructure.Label{Kind: eventstructure.MemoryAccess, Access: eventstructure.Read, Phase: eventstructure.Response, Location: "x", Value: 1}, Dependencies: []int{0}}

	events := []*eventstructure.Event{w, w2, r}
	bad := ReplayWitness(events, []int{0, 1, 2})
	require.NotNil(t, bad, "read expected the stale value 1 after w2 overwrote x to 2")
	assert.Equal(t, ReplayInvariantViolation, bad.Kind)
}

func TestReplayWitnessAcceptsCorrectOrder(t *testing.T) {
	w := &eventstructure.Event{ID: 0, Label: eventstructure.Label{Kind: eventstructure.MemoryAccess, Access: eventstructure.Write, Location: "x", Value: 1}}
	r := &eventstructure.Event{ID: 1, Label: eventstructure.Label{Kind: eventstructure.MemoryAccess, Access: eventstructure.Read, Phase: eventstructure.Response, Location: "x", Value: 1}, Dependencies: []int{0}}

	assert.Nil(t, ReplayWitness([]*eventstructure.Event{w, r}, []int{0, 1}))
}

func TestLivelockDetectorFlagsArithmeticProgressionOfRepeats(t *testing.T) {
	d := NewLivelockDetector(cas.NewMemoryCAS())
	frontier := eventstructure.ExecutionFrontier{0: 0, 1: 0}
	events := []*eventstructure.Event{{ID: 0, ThreadID: 0, Label: eventstructure.Label{Kind: eventstructure.MemoryAccess}}}

	assert.False(t, d.Observe(frontier, events, 1))
	assert.False(t, d.Observe(frontier, events, 3))
	assert.True(t, d.Observe(frontier, events, 5))
}

func TestLivelockDetectorIgnoresIrregularSpacing(t *testing.T) {
	d := NewLivelockDetector(cas.NewMemoryCAS())
	frontier := eventstructure.ExecutionFrontier{0: 0}
	events := []*eventstructure.Event{{ID: 0, ThreadID: 0, Label: eventstructure.Label{Kind: eventstructure.MemoryAccess}}}

	assert.False(t, d.Observe(frontier, events, 1))
	assert.False(t, d.Observe(frontier, events, 2))
	assert.False(t, d.Observe(frontier, events, 6))
}

func TestAggregatorSelectsCheckersByMemoryModel(t *testing.T) {
	assert.Len(t, NewAggregator(SequentialConsistency).checkers, 4)
	assert.Len(t, NewAggregator(ReleaseAcquire).checkers, 3)
	assert.Len(t, NewAggregator(Atomics).checkers, 2)
}
