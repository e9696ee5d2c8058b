package eventstructure

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSynchronizeMemoryAccessReadMatchesWrite(t *testing.T) {
	read := Label{Kind: MemoryAccess, Access: Read, Location: "x"}
	write := Label{Kind: MemoryAccess, Phase: Total, Access: Write, Location: "x", Value: 7}

	resp, ok := read.synchronize(write)
	assert.True(t, ok)
	assert.Equal(t, Response, resp.Phase)
	assert.Equal(t, 7, resp.Value)
}

func TestSynchronizeMemoryAccessWrongLocationNoMatch(t *testing.T) {
	read := Label{Kind: MemoryAccess, Access: Read, Location: "x"}
	write := Label{Kind: MemoryAccess, Phase: Total, Access: Write, Location: "y", Value: 7}

	_, ok := read.synchronize(write)
	assert.False(t, ok)
}

func TestSynchronizeLockMatchesUnlock(t *testing.T) {
	lock := Label{Kind: Lock, Monitor: "m"}
	unlock := Label{Kind: Unlock, Phase: Total, Monitor: "m"}

	resp, ok := lock.synchronize(unlock)
	assert.True(t, ok)
	assert.Equal(t, Response, resp.Phase)
}

func TestSynchronizeWaitMatchesNotify(t *testing.T) {
	wait := Label{Kind: Wait, Monitor: "m"}
	notify := Label{Kind: Notify, Phase: Total, Monitor: "m"}

	resp, ok := wait.synchronize(notify)
	assert.True(t, ok)
	assert.Equal(t, Response, resp.Phase)
}

func TestFoldBarrierRequiresAllJoinedThreadsFinished(t *testing.T) {
	req := Label{Kind: ThreadJoin, JoinedThreads: []int{1, 2}}

	_, ok := foldBarrier(req, []Label{{Kind: ThreadFinish, ThreadID: 1}})
	assert.False(t, ok)

	resp, ok := foldBarrier(req, []Label{
		{Kind: ThreadFinish, ThreadID: 1},
		{Kind: ThreadFinish, ThreadID: 2},
	})
	assert.True(t, ok)
	assert.Equal(t, Response, resp.Phase)
}

func TestIsInitializerOnlyThreadStart(t *testing.T) {
	assert.True(t, Label{Kind: ThreadStart}.isInitializer())
	assert.False(t, Label{Kind: MemoryAccess}.isInitializer())
}
