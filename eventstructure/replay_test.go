package eventstructure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timewinder-dev/lincheck-go/cas"
)

func TestReplayerReusesMatchingEventAtFrontier(t *testing.T) {
	s := New(1, cas.NewMemoryCAS())
	startThread(t, s, 0)
	original, err := s.AddTotal(Label{Kind: MemoryAccess, Access: Write, ThreadID: 0, Location: "x", Value: 1})
	require.NoError(t, err)

	// Simulate a rollback to just before original, then replay.
	rep := NewReplayer(s)
	rep.replayPos[0] = 0
	rep.frontierIDs[0] = []int{original.ID}

	got, ok := rep.TryReplay(Label{Kind: MemoryAccess, Access: Write, ThreadID: 0, Location: "x", Value: 1})
	require.True(t, ok)
	assert.Equal(t, original.ID, got.ID)
	assert.True(t, rep.Exhausted(0))
}

func TestReplayerRejectsMismatchedLabel(t *testing.T) {
	s := New(1, cas.NewMemoryCAS())
	startThread(t, s, 0)
	original, err := s.AddTotal(Label{Kind: MemoryAccess, Access: Write, ThreadID: 0, Location: "x", Value: 1})
	require.NoError(t, err)

	rep := NewReplayer(s)
	rep.frontierIDs[0] = []int{original.ID}

	_, ok := rep.TryReplay(Label{Kind: MemoryAccess, Access: Write, ThreadID: 0, Location: "y", Value: 1})
	assert.False(t, ok)
}

func TestReplayerExhaustedOnUnknownThread(t *testing.T) {
	s := New(1, cas.NewMemoryCAS())
	rep := NewReplayer(s)
	assert.True(t, rep.Exhausted(0))
	_, ok := rep.TryReplay(Label{Kind: MemoryAccess, ThreadID: 0, Access: Write, Location: "z"})
	assert.False(t, ok)
}
