package runner

import (
	"runtime"
	"sync/atomic"
)

// startBarrier implements the PARALLEL-phase thread-start barrier of
// spec.md §4.D: every worker decrements a shared uninitialized counter
// on arrival and spins until every other worker has also arrived, so
// all threads begin their first actor at approximately the same
// instant.
type startBarrier struct {
	remaining atomic.Int64
}

func newStartBarrier(n int) *startBarrier {
	b := &startBarrier{}
	b.remaining.Store(int64(n))
	return b
}

func (b *startBarrier) arrive() {
	b.remaining.Add(-1)
	for b.remaining.Load() > 0 {
		runtime.Gosched()
	}
}
