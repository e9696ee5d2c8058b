package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timewinder-dev/lincheck-go/pool"
	"github.com/timewinder-dev/lincheck-go/scenario"
)

func actor(name string, fn scenario.Func) *scenario.Actor {
	return &scenario.Actor{Name: name, Run: fn}
}

// TestRunInvocationCompletesSimpleScenario runs S1 from spec.md §8: one
// writer, one reader, no synchronization needed between them.
func TestRunInvocationCompletesSimpleScenario(t *testing.T) {
	p := pool.New(2)
	defer p.Close()

	var x int
	s := &scenario.Scenario{
		Parallel: [][]*scenario.Actor{
			{actor("write", func(ctx context.Context, ictx *scenario.InvocationContext) (scenario.Result, error) {
				x = 1
				return scenario.Void(), nil
			})},
			{actor("read", func(ctx context.Context, ictx *scenario.InvocationContext) (scenario.Result, error) {
				return scenario.Value(x), nil
			})},
		},
	}

	r := New(p, s, time.Second)
	result := r.RunInvocation(context.Background())
	require.Equal(t, KindCompleted, result.Kind)
	require.Len(t, result.Threads, 2)
	assert.Equal(t, scenario.KindVoid, result.Threads[0].Results[0].Kind)
	assert.Equal(t, scenario.KindValue, result.Threads[1].Results[0].Kind)
}

func TestRunInvocationReportsUnexpectedException(t *testing.T) {
	p := pool.New(1)
	defer p.Close()

	boom := errors.New("boom")
	s := &scenario.Scenario{
		Parallel: [][]*scenario.Actor{
			{actor("fails", func(ctx context.Context, ictx *scenario.InvocationContext) (scenario.Result, error) {
				return scenario.Result{}, boom
			})},
		},
	}

	r := New(p, s, time.Second)
	result := r.RunInvocation(context.Background())
	require.Equal(t, KindUnexpectedException, result.Kind)
	assert.ErrorIs(t, result.Cause, boom)
}

func TestRunInvocationValidationFailure(t *testing.T) {
	p := pool.New(1)
	defer p.Close()

	boom := errors.New("invariant broken")
	s := &scenario.Scenario{
		Parallel: [][]*scenario.Actor{
			{actor("noop", func(ctx context.Context, ictx *scenario.InvocationContext) (scenario.Result, error) {
				return scenario.Void(), nil
			})},
		},
		Validation: actor("validate", func(ctx context.Context, ictx *scenario.InvocationContext) (scenario.Result, error) {
			return scenario.Result{}, boom
		}),
	}

	r := New(p, s, time.Second)
	result := r.RunInvocation(context.Background())
	require.Equal(t, KindValidationFailure, result.Kind)
	assert.ErrorIs(t, result.Cause, boom)
}

// TestRunInvocationSuspendResumeHandoff exercises the Completion
// protocol directly: actor 0 suspends and stashes its Completion in a
// shared variable; actor 1 resumes it.
func TestRunInvocationSuspendResumeHandoff(t *testing.T) {
	p := pool.New(2)
	defer p.Close()

	waiterCh := make(chan *scenario.Completion, 1)
	s := &scenario.Scenario{
		Parallel: [][]*scenario.Actor{
			{{
				Name:  "take",
				Flags: scenario.ActorFlags{Suspendable: true},
				Run: func(ctx context.Context, ictx *scenario.InvocationContext) (scenario.Result, error) {
					waiterCh <- ictx.Completion
					return scenario.Suspended(), nil
				},
			}},
			{actor("put", func(ctx context.Context, ictx *scenario.InvocationContext) (scenario.Result, error) {
				waiter := <-waiterCh
				waiter.TryResume(scenario.Value(42), nil)
				return scenario.Void(), nil
			})},
		},
	}

	r := New(p, s, time.Second)
	result := r.RunInvocation(context.Background())
	require.Equal(t, KindCompleted, result.Kind)
	assert.Equal(t, scenario.KindValue, result.Threads[0].Results[0].Kind)
	assert.Equal(t, 42, result.Threads[0].Results[0].Value)
}

// TestRunInvocationCancelOnSuspension exercises the immediate
// cancellation branch: the actor suspends and is flagged
// cancel-on-suspension, and nothing ever resumes it.
func TestRunInvocationCancelOnSuspension(t *testing.T) {
	p := pool.New(1)
	defer p.Close()

	s := &scenario.Scenario{
		Parallel: [][]*scenario.Actor{
			{{
				Name:  "take",
				Flags: scenario.ActorFlags{Suspendable: true, CancelOnSuspension: true},
				Run: func(ctx context.Context, ictx *scenario.InvocationContext) (scenario.Result, error) {
					return scenario.Suspended(), nil
				},
			}},
		},
	}

	r := New(p, s, time.Second)
	result := r.RunInvocation(context.Background())
	require.Equal(t, KindCompleted, result.Kind)
	assert.Equal(t, scenario.KindCancelled, result.Threads[0].Results[0].Kind)
}

// TestRunInvocationManagedDeadlock: S5-style scenario where every
// thread suspends and nothing resumes anyone, reaching quiescence with
// no progress at all.
func TestRunInvocationManagedDeadlock(t *testing.T) {
	p := pool.New(2)
	defer p.Close()

	suspend := func(ctx context.Context, ictx *scenario.InvocationContext) (scenario.Result, error) {
		return scenario.Suspended(), nil
	}
	s := &scenario.Scenario{
		Parallel: [][]*scenario.Actor{
			{{Name: "lockA", Flags: scenario.ActorFlags{Suspendable: true}, Run: suspend}},
			{{Name: "lockB", Flags: scenario.ActorFlags{Suspendable: true}, Run: suspend}},
		},
	}

	r := New(p, s, time.Second)
	result := r.RunInvocation(context.Background())
	require.Equal(t, KindManagedDeadlock, result.Kind)
}

func TestRunInvocationTimeoutBecomesRunnerTimeout(t *testing.T) {
	p := pool.New(1)
	defer p.Close()

	block := make(chan struct{})
	defer close(block)
	s := &scenario.Scenario{
		Parallel: [][]*scenario.Actor{
			{actor("hang", func(ctx context.Context, ictx *scenario.InvocationContext) (scenario.Result, error) {
				<-block
				return scenario.Void(), nil
			})},
		},
	}

	r := New(p, s, 10*time.Millisecond)
	result := r.RunInvocation(context.Background())
	require.Equal(t, KindRunnerTimeout, result.Kind)
}
