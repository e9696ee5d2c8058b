// Package pool implements the active-thread pool executor of spec.md
// §4.B: a fixed set of pre-spawned worker goroutines that rendezvous
// with a submitter through CAS-guarded task/result slots, spinning
// briefly before parking to keep handoff latency low without wasting
// a full OS thread park on every short scenario invocation.
//
// Grounded on the teacher's MultiThreadEngine worker-goroutine /
// WaitGroup shutdown shape (model/multi_thread.go), reshaped from a
// channel-based work queue into the single-cell CAS rendezvous
// spec.md §3/§4.B specifies.
package pool

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/timewinder-dev/lincheck-go/spin"
	"github.com/timewinder-dev/lincheck-go/threaddump"
)

// Task is one worker-thread invocation. It receives a context that is
// cancelled once the pool becomes stuck or is closed, so well-behaved
// tasks can check ctx.Err() at instrumentation call sites instead of
// relying on forced termination (spec.md §9 design notes).
type Task func(ctx context.Context) error

// Pool is the active-thread pool executor. Exactly nThreads worker
// goroutines are pre-spawned at NewPool and reused across every
// SubmitAndAwait call until Close.
type Pool struct {
	nThreads int
	slots    []*slotPair
	spinners *spin.SpinnerGroup
	registry *threaddump.Registry

	ctx    context.Context
	cancel context.CancelFunc

	wg sync.WaitGroup

	stuck atomic.Bool
}

// New pre-spawns nThreads worker goroutines and returns the pool
// ready to accept SubmitAndAwait calls.
func New(nThreads int) *Pool {
	if nThreads <= 0 {
		nThreads = runtime.NumCPU()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		nThreads: nThreads,
		slots:    make([]*slotPair, nThreads),
		spinners: spin.NewSpinnerGroup(nThreads),
		registry: threaddump.NewRegistry(),
		ctx:      ctx,
		cancel:   cancel,
	}
	for i := range p.slots {
		p.slots[i] = newSlotPair()
	}
	for i := 0; i < nThreads; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

// NThreads returns the fixed worker count the pool was created with.
func (p *Pool) NThreads() int { return p.nThreads }

func (p *Pool) worker(i int) {
	defer p.wg.Done()
	p.registry.Register(i)
	spinner := p.spinners.Spinner()

	for {
		box, found := spin.SpinWaitBounded(spinner, func() (*taskBox, bool) {
			b := p.slots[i].task.Load()
			if b.kind == taskReady || b.kind == taskShutdown {
				return b, true
			}
			return nil, false
		})
		if !found {
			box = p.parkForTask(i)
			if box == nil {
				continue
			}
		}
		if box.kind == taskShutdown {
			return
		}

		// Claim the task: swap the slot back to empty so a subsequent
		// submit to this worker can proceed.
		p.slots[i].task.CompareAndSwap(box, emptyTaskBox)

		err := p.runTask(box.task)
		p.publishResult(i, err)
	}
}

// parkForTask installs a parked marker and blocks until the submitter
// hands off a task (or shutdown), implementing the "at most one
// park/unpark per rendezvous" guarantee of spec.md §4.B.
func (p *Pool) parkForTask(i int) *taskBox {
	wake := make(chan struct{})
	parked := &taskBox{kind: taskParked, wake: wake}
	if !p.slots[i].task.CompareAndSwap(emptyTaskBox, parked) {
		// Lost the race: a task (or shutdown) landed between our last
		// spin check and the CAS attempt. Re-read and let the caller
		// loop to pick it up without ever blocking.
		if b := p.slots[i].task.Load(); b.kind == taskReady || b.kind == taskShutdown {
			return b
		}
		return nil
	}
	<-wake
	return p.slots[i].task.Load()
}

func (p *Pool) runTask(t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return t(p.ctx)
}

func (p *Pool) publishResult(i int, taskErr error) {
	var box *resultBox
	if taskErr != nil {
		box = &resultBox{kind: resultFailure, err: taskErr}
	} else {
		box = doneResultBox
	}
	for {
		cur := p.slots[i].result.Load()
		switch cur.kind {
		case resultEmpty:
			if p.slots[i].result.CompareAndSwap(cur, box) {
				return
			}
		case resultParked:
			if p.slots[i].result.CompareAndSwap(cur, box) {
				close(cur.wake)
				return
			}
		default:
			// A result is already pending publication for this
			// worker; the invariant in spec.md §3 says at most one
			// task per worker is in flight, so this should not
			// happen in a well-formed submission.
			log.Error().Int("worker", i).Msg("pool: result slot already occupied on publish")
			return
		}
	}
}

// Submission pairs a thread index with the task to run on it.
type Submission struct {
	ThreadIndex int
	Task        Task
}

// SubmitAndAwait submits one task per submitted thread index, waits
// for every task to complete (or fail), and returns the elapsed wall
// time. It fails precondition checks (out-of-range or duplicate thread
// indices) before touching any slot, and returns ErrStuck immediately
// if the pool is already stuck from a prior timeout.
func (p *Pool) SubmitAndAwait(submissions []Submission, timeout time.Duration) (time.Duration, error) {
	if p.stuck.Load() {
		return 0, ErrStuck
	}
	if err := p.validate(submissions); err != nil {
		return 0, err
	}

	start := time.Now()
	for _, s := range submissions {
		p.slots[s.ThreadIndex].result.Store(emptyResultBox)
	}
	for _, s := range submissions {
		p.installTask(s.ThreadIndex, s.Task)
	}

	var failure *ExecutionFailure
	for _, s := range submissions {
		remaining := timeout - time.Since(start)
		if remaining < 0 {
			remaining = 0
		}
		err := p.awaitResult(s.ThreadIndex, remaining)
		if err == nil {
			continue
		}
		var timeoutErr *TimeoutError
		if isTimeoutError(err, &timeoutErr) {
			p.markStuck()
			return time.Since(start), timeoutErr
		}
		ef := &ExecutionFailure{ThreadIndex: s.ThreadIndex, Cause: err}
		if failure == nil {
			failure = ef
		} else {
			failure.Suppressed = append(failure.Suppressed, ef)
		}
	}

	elapsed := time.Since(start)
	if failure != nil {
		return elapsed, failure
	}
	return elapsed, nil
}

func isTimeoutError(err error, out **TimeoutError) bool {
	te, ok := err.(*TimeoutError)
	if ok {
		*out = te
	}
	return ok
}

func (p *Pool) validate(submissions []Submission) error {
	seen := make(map[int]bool, len(submissions))
	for _, s := range submissions {
		if s.ThreadIndex < 0 || s.ThreadIndex >= p.nThreads {
			return &PreconditionError{Reason: fmt.Sprintf("thread index %d out of range [0,%d)", s.ThreadIndex, p.nThreads)}
		}
		if seen[s.ThreadIndex] {
			return &PreconditionError{Reason: fmt.Sprintf("duplicate thread index %d in submission", s.ThreadIndex)}
		}
		seen[s.ThreadIndex] = true
	}
	return nil
}

func (p *Pool) installTask(i int, t Task) {
	box := &taskBox{kind: taskReady, task: t}
	for {
		cur := p.slots[i].task.Load()
		switch cur.kind {
		case taskEmpty:
			if p.slots[i].task.CompareAndSwap(cur, box) {
				return
			}
		case taskParked:
			if p.slots[i].task.CompareAndSwap(cur, box) {
				close(cur.wake)
				return
			}
		default:
			// Already has a task or shutdown pending: violates the
			// "at most one task in flight" invariant. Retry briefly;
			// a well-formed caller never hits this path.
			runtime.Gosched()
		}
	}
}

func (p *Pool) awaitResult(i int, timeout time.Duration) error {
	spinner := p.spinners.Spinner()
	box, found := spin.SpinWaitBounded(spinner, func() (*resultBox, bool) {
		b := p.slots[i].result.Load()
		if b.kind == resultDone || b.kind == resultFailure {
			return b, true
		}
		return nil, false
	})
	if !found {
		var err error
		box, err = p.parkForResult(i, timeout)
		if err != nil {
			return err
		}
	}
	if box.kind == resultFailure {
		return box.err
	}
	return nil
}

func (p *Pool) parkForResult(i int, timeout time.Duration) (*resultBox, error) {
	wake := make(chan struct{})
	parked := &resultBox{kind: resultParked, wake: wake}
	if !p.slots[i].result.CompareAndSwap(emptyResultBox, parked) {
		// Result resolved between the spin check and our CAS attempt.
		return p.slots[i].result.Load(), nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-wake:
		return p.slots[i].result.Load(), nil
	case <-timer.C:
		return nil, &TimeoutError{ThreadIndex: i, Dump: p.registry.Sample()}
	}
}

func (p *Pool) markStuck() {
	p.stuck.Store(true)
	p.cancel()
}

// Stuck reports whether the pool has transitioned to the stuck state
// after a timeout.
func (p *Pool) Stuck() bool { return p.stuck.Load() }

// Close releases the worker goroutines. In the normal case it installs
// the shutdown sentinel into every task slot and waits for each
// worker to observe it and return. If the pool is stuck, a graceful
// shutdown cannot be guaranteed (a worker may be running a task that
// never returns); per spec.md §9 this is a last resort and Go offers
// no safe forced-termination primitive, so Close cancels the shared
// context (satisfied by cooperative tasks checking ctx.Err()) and
// returns without waiting, leaving any genuinely hung worker goroutine
// to leak until process exit.
func (p *Pool) Close() {
	p.cancel()
	if p.stuck.Load() {
		log.Warn().Msg("pool: closing a stuck pool; hung workers cannot be force-terminated and may leak")
		return
	}
	for i := range p.slots {
		p.installShutdown(i)
	}
	p.wg.Wait()
}

func (p *Pool) installShutdown(i int) {
	for {
		cur := p.slots[i].task.Load()
		switch cur.kind {
		case taskEmpty:
			if p.slots[i].task.CompareAndSwap(cur, shutdownTaskBox) {
				return
			}
		case taskParked:
			if p.slots[i].task.CompareAndSwap(cur, shutdownTaskBox) {
				close(cur.wake)
				return
			}
		case taskShutdown:
			return
		default:
			runtime.Gosched()
		}
	}
}
