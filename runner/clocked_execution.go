package runner

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/timewinder-dev/lincheck-go/scenario"
)

// ClockedThreadExecution is the per-thread actor stepper of spec.md
// §4.C: it owns one thread's actor list, its result slots, its clock
// matrix (one HBClock row per actor), and a logical clock counter.
// Grounded on the teacher's model.RunTrace/BuildRunnable clone-step-
// classify loop, generalized from "clone interp.State and step one
// VM thread" to "invoke one actor closure and classify its Result".
type ClockedThreadExecution struct {
	ThreadIndex int
	Actors      []*scenario.Actor

	results   []scenario.Result
	clocks    []scenario.HBClock
	curClock  scenario.HBClock
	useClocks []bool // per-actor sampled useClocks flag
}

// NewClockedThreadExecution allocates an execution for threadIndex
// with actors, sized for an nThreads-wide clock vector.
func NewClockedThreadExecution(threadIndex int, actors []*scenario.Actor, nThreads int) *ClockedThreadExecution {
	e := &ClockedThreadExecution{
		ThreadIndex: threadIndex,
		Actors:      actors,
	}
	e.Reset(nThreads)
	return e
}

// Reset clears results and clocks back to their initial state, so the
// same ClockedThreadExecution can be reused across invocations of the
// same scenario without leaking state between them (spec.md §3
// Lifecycle).
func (e *ClockedThreadExecution) Reset(nThreads int) {
	e.results = make([]scenario.Result, len(e.Actors))
	for i := range e.results {
		e.results[i] = scenario.NoResult
	}
	e.clocks = make([]scenario.HBClock, len(e.Actors))
	e.useClocks = make([]bool, len(e.Actors))
	e.curClock = scenario.NewHBClock(nThreads)
}

// Results returns the result slots recorded so far, indexed by actor
// position.
func (e *ClockedThreadExecution) Results() []scenario.Result { return e.results }

// ClockAt returns the HBClock snapshot recorded for the actor at idx,
// or nil if that actor has not yet run.
func (e *ClockedThreadExecution) ClockAt(idx int) scenario.HBClock { return e.clocks[idx] }

// SetUseClocks marks whether actor idx should snapshot peer clocks
// before running; the caller (ScenarioRunner) draws this from the
// {Always, Random} clock policy.
func (e *ClockedThreadExecution) SetUseClocks(idx int, use bool) { e.useClocks[idx] = use }

// RunActor executes the actor at idx against the test instance,
// optionally snapshotting peer clocks first, classifies the outcome
// through handleOutcome (the ScenarioRunner's suspension/cancellation
// logic), stores the Result, and advances this thread's own clock
// component so later peer snapshots observe the completion.
func (e *ClockedThreadExecution) RunActor(
	ctx context.Context,
	idx int,
	peers []*ClockedThreadExecution,
	handleOutcome func(ictx *scenario.InvocationContext, result scenario.Result, err error) scenario.Result,
) scenario.Result {
	actor := e.Actors[idx]

	if e.useClocks[idx] {
		row := e.curClock.Clone()
		for _, peer := range peers {
			if peer == e {
				continue
			}
			row = row.Merge(peer.curClock)
		}
		e.clocks[idx] = row
	} else {
		e.clocks[idx] = e.curClock.Clone()
	}

	ictx := &scenario.InvocationContext{ThreadIndex: e.ThreadIndex, ActorIndex: idx}
	if actor.Flags.Suspendable {
		ictx.Completion = scenario.NewCompletion()
	}

	result, err := e.invoke(ctx, actor, ictx)
	classified := handleOutcome(ictx, result, err)

	e.results[idx] = classified
	e.curClock = e.curClock.Tick(e.ThreadIndex)

	return classified
}

// invoke runs the actor's function, recovering a panic into an error
// result the same way the pool recovers a panicking task (spec.md
// §4.C: "for actors that raise an internal framework exception...the
// execution reports thread failure and re-raises").
func (e *ClockedThreadExecution) invoke(ctx context.Context, actor *scenario.Actor, ictx *scenario.InvocationContext) (result scenario.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Int("thread", e.ThreadIndex).Interface("panic", r).Msg("actor panicked")
			if actor.Flags.HandlesExceptions {
				result = scenario.Exception(fmt.Sprintf("%v", r))
				err = nil
				return
			}
			result = scenario.Result{}
			err = fmt.Errorf("actor panicked: %v", r)
		}
	}()
	return actor.Run(ctx, ictx)
}
