// Package runner implements the parallel scenario runner of spec.md
// §4.C/§4.D: per-thread clocked actor execution, and the
// INIT/PARALLEL/POST/VALIDATION phase machine that drives it across
// the active-thread pool, including suspension and cancellation of
// suspendable actors.
package runner

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/timewinder-dev/lincheck-go/pool"
	"github.com/timewinder-dev/lincheck-go/scenario"
	"github.com/timewinder-dev/lincheck-go/spin"
)

// StateHook lets the test driver describe its object's current
// abstract state as an opaque string, sampled at each phase boundary
// (spec.md §4.D "state representation").
type StateHook func() string

// Runner drives one Scenario's invocations against a shared
// ActiveThreadPool.
type Runner struct {
	pool     *pool.Pool
	scenario *scenario.Scenario

	clockPolicy  ClockPolicy
	phaseTimeout time.Duration
	stateHook    StateHook
	spinner      spin.Spinner
}

// Option configures a Runner at construction.
type Option func(*Runner)

// WithClockPolicy overrides the default Always clock-sampling policy.
func WithClockPolicy(p ClockPolicy) Option {
	return func(r *Runner) { r.clockPolicy = p }
}

// WithStateHook attaches a hook queried at each phase boundary.
func WithStateHook(h StateHook) Option {
	return func(r *Runner) { r.stateHook = h }
}

// New returns a Runner for s, executing phases on p with phaseTimeout
// as the per-phase deadline.
func New(p *pool.Pool, s *scenario.Scenario, phaseTimeout time.Duration, opts ...Option) *Runner {
	r := &Runner{
		pool:         p,
		scenario:     s,
		clockPolicy:  Always,
		phaseTimeout: phaseTimeout,
		spinner:      spin.Spinner{Spins: 1000},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunInvocation executes INIT, PARALLEL, POST and VALIDATION in order,
// short-circuiting to the appropriate InvocationResult the moment any
// phase fails.
func (r *Runner) RunInvocation(ctx context.Context) *InvocationResult {
	rc := Context{NumThreads: r.scenario.NumThreads(), InvocationID: uuid.NewString()}

	var stateReprs []string
	sampleState := func() {
		if r.stateHook != nil {
			stateReprs = append(stateReprs, r.stateHook())
		}
	}

	rc.Phase = PhaseInit
	log.Debug().Str("invocation", rc.InvocationID).Stringer("phase", rc.Phase).Int("threads", rc.NumThreads).Msg("invocation phase")
	if len(r.scenario.Init) > 0 {
		if err := r.runSequentialPhase(ctx, r.scenario.Init); err != nil {
			return r.classifyPhaseError(err, nil)
		}
	}
	sampleState()

	rc.Phase = PhaseParallel
	log.Debug().Str("invocation", rc.InvocationID).Stringer("phase", rc.Phase).Msg("invocation phase")
	execs := make([]*ClockedThreadExecution, r.scenario.NumThreads())
	for i, actors := range r.scenario.Parallel {
		execs[i] = NewClockedThreadExecution(i, actors, r.scenario.NumThreads())
	}
	if err := r.runParallelPhase(ctx, execs); err != nil {
		return r.classifyPhaseError(err, collectResults(execs))
	}
	sampleState()

	rc.Phase = PhasePost
	log.Debug().Str("invocation", rc.InvocationID).Stringer("phase", rc.Phase).Msg("invocation phase")
	if len(r.scenario.Post) > 0 {
		if err := r.runSequentialPhase(ctx, r.scenario.Post); err != nil {
			return r.classifyPhaseError(err, collectResults(execs))
		}
	}
	sampleState()

	if deadlocked(execs) {
		return &InvocationResult{Kind: KindManagedDeadlock, Threads: collectResults(execs)}
	}

	if r.scenario.Validation != nil {
		rc.Phase = PhaseValidation
		log.Debug().Str("invocation", rc.InvocationID).Stringer("phase", rc.Phase).Msg("invocation phase")
		if err := r.runValidation(ctx); err != nil {
			return &InvocationResult{
				Kind:           KindValidationFailure,
				Cause:          err,
				Threads:        collectResults(execs),
				ScenarioPrefix: "init+parallel+post",
			}
		}
	}

	return &InvocationResult{Kind: KindCompleted, Threads: collectResults(execs), StateReprs: stateReprs}
}

// deadlocked reports whether every parallel thread ended its sequence
// on a Suspended result: the hallmark of the quiescence path being
// taken by the entire scenario at once, i.e. a managed deadlock rather
// than an ordinary suspend/resume handoff (S5, spec.md §8).
func deadlocked(execs []*ClockedThreadExecution) bool {
	if len(execs) == 0 {
		return false
	}
	for _, e := range execs {
		results := e.Results()
		if len(results) == 0 {
			return false
		}
		last := results[len(results)-1]
		if last.Kind != scenario.KindSuspended {
			return false
		}
	}
	return true
}

func collectResults(execs []*ClockedThreadExecution) []ThreadResults {
	out := make([]ThreadResults, len(execs))
	for i, e := range execs {
		clocks := make([]scenario.HBClock, len(e.Actors))
		for idx := range e.Actors {
			clocks[idx] = e.ClockAt(idx)
		}
		out[i] = ThreadResults{ThreadIndex: e.ThreadIndex, Results: e.Results(), Clocks: clocks}
	}
	return out
}

// runSequentialPhase runs actors, in order, on thread index 0. INIT and
// POST are not declared parallel in spec.md §3, so they execute as a
// single-thread submission to the pool.
func (r *Runner) runSequentialPhase(ctx context.Context, actors []*scenario.Actor) error {
	exec := NewClockedThreadExecution(0, actors, 1)
	_, err := r.pool.SubmitAndAwait([]pool.Submission{
		{ThreadIndex: 0, Task: func(ctx context.Context) error {
			for idx := range actors {
				var failure error
				exec.RunActor(ctx, idx, nil, func(ictx *scenario.InvocationContext, result scenario.Result, err error) scenario.Result {
					if err != nil {
						failure = err
						return scenario.Crash(err)
					}
					return result
				})
				if failure != nil {
					return failure
				}
			}
			return nil
		}},
	}, r.phaseTimeout)
	return err
}

func (r *Runner) runValidation(ctx context.Context) error {
	actor := r.scenario.Validation
	exec := NewClockedThreadExecution(0, []*scenario.Actor{actor}, 1)
	_, err := r.pool.SubmitAndAwait([]pool.Submission{
		{ThreadIndex: 0, Task: func(ctx context.Context) error {
			var failure error
			exec.RunActor(ctx, 0, nil, func(ictx *scenario.InvocationContext, result scenario.Result, err error) scenario.Result {
				if err != nil {
					failure = err
				}
				return result
			})
			return failure
		}},
	}, r.phaseTimeout)
	return err
}

// runParallelPhase runs every parallel thread's actor list against the
// shared pool, with each thread honoring the start barrier, clock
// sampling policy, and suspend/cancel/quiescence protocol of spec.md
// §4.D.
func (r *Runner) runParallelPhase(ctx context.Context, execs []*ClockedThreadExecution) error {
	n := len(execs)
	q := newQuiescence(n)
	barrier := newStartBarrier(n)

	submissions := make([]pool.Submission, n)
	for i, exec := range execs {
		exec := exec
		submissions[i] = pool.Submission{ThreadIndex: i, Task: func(ctx context.Context) error {
			barrier.arrive()
			for idx := range exec.Actors {
				exec.SetUseClocks(idx, r.clockPolicy.sample())

				var failure error
				result := exec.RunActor(ctx, idx, execs, func(ictx *scenario.InvocationContext, result scenario.Result, err error) scenario.Result {
					if err != nil {
						failure = err
						return scenario.Crash(err)
					}
					return r.handleOutcome(q, exec.Actors[ictx.ActorIndex], ictx, result)
				})
				if failure != nil {
					return failure
				}
				if result.Kind == scenario.KindSuspended {
					// Quiescence claimed this actor permanently; no
					// further actor on this thread can make progress.
					return nil
				}
			}
			q.markCompleted()
			return nil
		}}
	}

	_, err := r.pool.SubmitAndAwait(submissions, r.phaseTimeout)
	return err
}

// handleOutcome implements the suspension branch of spec.md §4.D: a
// cancel-on-suspension actor is cancelled immediately if it wins the
// race; otherwise the thread waits for either a peer's resume or
// global quiescence, spinning before yielding per spec.md §5.
func (r *Runner) handleOutcome(q *quiescence, actor *scenario.Actor, ictx *scenario.InvocationContext, result scenario.Result) scenario.Result {
	if result.Kind != scenario.KindSuspended {
		return result
	}
	completion := ictx.Completion

	if actor.Flags.CancelOnSuspension {
		if completion.TryCancel() {
			return scenario.Cancelled()
		}
		res, resumer := completion.Wait()
		if resumer != nil {
			resumer()
		}
		return res
	}

	q.enterSuspended()

	if _, done := spin.SpinWaitBounded(r.spinner, func() (scenario.CompletionStatus, bool) {
		return completion.Done()
	}); !done {
		for {
			if _, ok := completion.Done(); ok {
				break
			}
			if q.isQuiescent() {
				if completion.TryCancel() {
					return scenario.Suspended()
				}
				break
			}
			runtime.Gosched()
		}
	}

	q.exitSuspended()
	res, resumer := completion.Wait()
	if resumer != nil {
		resumer()
	}
	return res
}

// classifyPhaseError converts a pool-level failure into the matching
// InvocationResult per spec.md §7's propagation policy: timeouts
// become RunnerTimeout carrying the thread dump, everything else
// becomes UnexpectedException.
func (r *Runner) classifyPhaseError(err error, threads []ThreadResults) *InvocationResult {
	var te *pool.TimeoutError
	if errors.As(err, &te) {
		return &InvocationResult{Kind: KindRunnerTimeout, Dump: te.Dump, Threads: threads}
	}
	return &InvocationResult{Kind: KindUnexpectedException, Cause: err, Threads: threads}
}
