package threaddump

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrySampleOnlyIncludesRegisteredWorkers(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	ready := make(chan struct{})
	release := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		r.Register(0)
		close(ready)
		<-release
	}()

	<-ready
	dump := r.Sample()
	close(release)
	wg.Wait()

	require.Len(t, dump.Entries, 1)
	assert.Equal(t, 0, dump.Entries[0].WorkerID)
	assert.Contains(t, dump.Entries[0].Stack, "goroutine")
}

func TestCurrentGoroutineIDIsPositive(t *testing.T) {
	id := CurrentGoroutineID()
	assert.Greater(t, id, int64(0))
}

func TestSampleWithNoWorkersIsEmpty(t *testing.T) {
	r := NewRegistry()
	dump := r.Sample()
	assert.Empty(t, dump.Entries)
}
