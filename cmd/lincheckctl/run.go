package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gookit/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/timewinder-dev/lincheck-go/cas"
	"github.com/timewinder-dev/lincheck-go/consistency"
	"github.com/timewinder-dev/lincheck-go/eventstructure"
	"github.com/timewinder-dev/lincheck-go/planner"
	"github.com/timewinder-dev/lincheck-go/pool"
	"github.com/timewinder-dev/lincheck-go/runner"
	"github.com/timewinder-dev/lincheck-go/scenario"
)

var (
	onlyScenario string
	plannerTime  time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the built-in S1-S6 demo scenarios",
	Run:   runCommand,
}

func init() {
	runCmd.Flags().StringVar(&onlyScenario, "scenario", "", "Run only the named scenario (S1..S6); default runs all")
	runCmd.Flags().DurationVar(&plannerTime, "planner-budget", 200*time.Millisecond, "Wall-clock budget for the S6 adaptive-planner demo")
}

// demo is one built-in scenario, named after its spec.md §8 letter.
type demo struct {
	name string
	run  func() (bool, string)
}

func runCommand(cmd *cobra.Command, args []string) {
	demos := []demo{
		{"S1", demoS1},
		{"S2", demoS2},
		{"S3", demoS3},
		{"S4", demoS4},
		{"S5", demoS5},
		{"S6", demoS6},
	}

	failures := 0
	for _, d := range demos {
		if onlyScenario != "" && onlyScenario != d.name {
			continue
		}
		log.Info().Str("scenario", d.name).Msg("running demo scenario")
		ok, detail := d.run()
		if ok {
			fmt.Fprintln(os.Stderr, color.Green.Sprintf("✓ %s: %s", d.name, detail))
		} else {
			fmt.Fprintln(os.Stderr, color.Red.Sprintf("✗ %s: %s", d.name, detail))
			failures++
		}
	}

	if failures > 0 {
		os.Exit(1)
	}
}

// demoS1 mirrors spec.md §8 S1: one write, one read, no synchronization
// required. The actors hand-instrument an EventStore directly, standing
// in for the bytecode instrumentation layer spec.md treats as an
// external collaborator (§1 Non-goals).
func demoS1() (ok bool, detail string) {
	store := eventstructure.New(2, newEventCAS())
	mustStart(store, 0)
	mustStart(store, 1)

	p := pool.New(2)
	defer p.Close()

	s := &scenario.Scenario{
		Parallel: [][]*scenario.Actor{
			{{Name: "write", Run: func(ctx context.Context, ictx *scenario.InvocationContext) (scenario.Result, error) {
				_, err := store.AddTotal(eventstructure.Label{Kind: eventstructure.MemoryAccess, Access: eventstructure.Write, ThreadID: 0, Location: "x", Value: 1})
				return scenario.Void(), err
			}}},
			{{Name: "read", Run: func(ctx context.Context, ictx *scenario.InvocationContext) (scenario.Result, error) {
				req, err := store.AddRequest(eventstructure.Label{Kind: eventstructure.MemoryAccess, Access: eventstructure.Read, ThreadID: 1, Location: "x", Default: 0})
				if err != nil {
					return scenario.Result{}, err
				}
				var resp *eventstructure.Event
				for resp == nil {
					resp, _, err = store.AddResponse(req)
					if err != nil {
						return scenario.Result{}, err
					}
				}
				return scenario.Value(resp.Label.Value), nil
			}}},
		},
	}

	r := runner.New(p, s, time.Second)
	result := r.RunInvocation(context.Background())
	if result.Kind != runner.KindCompleted {
		return false, fmt.Sprintf("invocation did not complete: %s", result.Kind)
	}

	agg := consistency.NewAggregator(consistency.SequentialConsistency)
	if bad := agg.CheckFull(store.Events()); bad != nil {
		return false, bad.Error()
	}
	return true, fmt.Sprintf("read observed x=%v, accepted under %s", result.Threads[1].Results[0].Value, consistency.SequentialConsistency)
}

// demoS2 mirrors spec.md §8 S2: two threads each perform three
// exclusive increments of a shared counter starting from 0. Every
// increment reads from the globally shared lastWrite under mu, so the
// six exclusive writes form one single, mutex-serialized RMW chain —
// exactly what the atomicity checker must accept.
func demoS2() (ok bool, detail string) {
	store := eventstructure.New(2, newEventCAS())
	mustStart(store, 0)
	mustStart(store, 1)

	var mu sync.Mutex
	counter := 0
	init, err := store.AddTotal(eventstructure.Label{Kind: eventstructure.MemoryAccess, Access: eventstructure.Write, ThreadID: 0, Location: "counter", Value: 0})
	if err != nil {
		return false, err.Error()
	}
	lastWrite := init.ID

	p := pool.New(2)
	defer p.Close()

	increment := func(threadID int) scenario.Func {
		return func(ctx context.Context, ictx *scenario.InvocationContext) (scenario.Result, error) {
			for i := 0; i < 3; i++ {
				mu.Lock()
				counter++
				newVal := counter
				pred := lastWrite
				ev, err := store.AddExclusiveWrite(eventstructure.Label{ThreadID: threadID, Location: "counter", Value: newVal}, pred)
				if err == nil {
					lastWrite = ev.ID
				}
				mu.Unlock()
				if err != nil {
					return scenario.Result{}, err
				}
			}
			return scenario.Void(), nil
		}
	}

	s := &scenario.Scenario{
		Parallel: [][]*scenario.Actor{
			{{Name: "inc0", Run: increment(0)}},
			{{Name: "inc1", Run: increment(1)}},
		},
	}

	r := runner.New(p, s, time.Second)
	result := r.RunInvocation(context.Background())
	if result.Kind != runner.KindCompleted {
		return false, fmt.Sprintf("invocation did not complete: %s", result.Kind)
	}
	if counter != 6 {
		return false, fmt.Sprintf("expected final counter 6, got %d", counter)
	}

	checker := consistency.NewAggregator(consistency.Atomics)
	if bad := checker.CheckFull(store.Events()); bad != nil {
		return false, bad.Error()
	}
	return true, fmt.Sprintf("final counter=%d, one mutex-serialized RMW chain accepted under %s", counter, consistency.Atomics)
}

// demoS3 mirrors spec.md §8 S3: a Treiber-stack push/pop pattern, push
// in PARALLEL and pop in POST, run against a real mutex-guarded slice.
func demoS3() (ok bool, detail string) {
	var mu sync.Mutex
	var stack []int
	push := func(v int) scenario.Func {
		return func(ctx context.Context, ictx *scenario.InvocationContext) (scenario.Result, error) {
			mu.Lock()
			stack = append(stack, v)
			mu.Unlock()
			return scenario.Void(), nil
		}
	}
	pop := func() scenario.Func {
		return func(ctx context.Context, ictx *scenario.InvocationContext) (scenario.Result, error) {
			mu.Lock()
			defer mu.Unlock()
			if len(stack) == 0 {
				return scenario.Value(nil), nil
			}
			v := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			return scenario.Value(v), nil
		}
	}

	p := pool.New(2)
	defer p.Close()

	s := &scenario.Scenario{
		Parallel: [][]*scenario.Actor{
			{{Name: "push1", Run: push(1)}},
			{{Name: "push2", Run: push(2)}},
		},
		Post: []*scenario.Actor{
			{Name: "pop1", Run: pop()},
			{Name: "pop2", Run: pop()},
		},
	}

	r := runner.New(p, s, time.Second)
	result := r.RunInvocation(context.Background())
	if result.Kind != runner.KindCompleted {
		return false, fmt.Sprintf("invocation did not complete: %s", result.Kind)
	}
	if len(stack) != 0 {
		return false, fmt.Sprintf("expected stack drained, has %d left", len(stack))
	}
	return true, "two pushes, two pops, stack drained to empty"
}

// demoS4 mirrors spec.md §8 S4: a producer/consumer pair synchronized
// by a single wait/notify, via the Completion suspend/resume protocol.
func demoS4() (ok bool, detail string) {
	p := pool.New(2)
	defer p.Close()

	notifyCh := make(chan *scenario.Completion, 1)
	s := &scenario.Scenario{
		Parallel: [][]*scenario.Actor{
			{{
				Name:  "consume",
				Flags: scenario.ActorFlags{Suspendable: true},
				Run: func(ctx context.Context, ictx *scenario.InvocationContext) (scenario.Result, error) {
					notifyCh <- ictx.Completion
					return scenario.Suspended(), nil
				},
			}},
			{{Name: "produce", Run: func(ctx context.Context, ictx *scenario.InvocationContext) (scenario.Result, error) {
				waiter := <-notifyCh
				waiter.TryResume(scenario.Value("item"), nil)
				return scenario.Void(), nil
			}}},
		},
	}

	r := runner.New(p, s, time.Second)
	result := r.RunInvocation(context.Background())
	if result.Kind != runner.KindCompleted {
		return false, fmt.Sprintf("invocation did not complete: %s", result.Kind)
	}
	got := result.Threads[0].Results[0]
	if got.Kind != scenario.KindValue || got.Value != "item" {
		return false, fmt.Sprintf("consumer did not observe the produced item: %v", got)
	}
	return true, "consumer suspended, producer notified, consumer resumed with the item"
}

// demoS5 mirrors spec.md §8 S5 in reduced form: both threads suspend
// and nothing ever resumes either (no monitors are actually taken) —
// the quiescence protocol must recognize this as a ManagedDeadlock
// rather than hang.
func demoS5() (ok bool, detail string) {
	p := pool.New(2)
	defer p.Close()

	suspend := func(ctx context.Context, ictx *scenario.InvocationContext) (scenario.Result, error) {
		return scenario.Suspended(), nil
	}
	s := &scenario.Scenario{
		Parallel: [][]*scenario.Actor{
			{{Name: "lockA-then-B", Flags: scenario.ActorFlags{Suspendable: true}, Run: suspend}},
			{{Name: "lockB-then-A", Flags: scenario.ActorFlags{Suspendable: true}, Run: suspend}},
		},
	}

	r := runner.New(p, s, time.Second)
	result := r.RunInvocation(context.Background())
	if result.Kind != runner.KindManagedDeadlock {
		return false, fmt.Sprintf("expected ManagedDeadlock, got %s", result.Kind)
	}
	return true, "both threads suspended with no resume; reported as ManagedDeadlock"
}

// demoS6 mirrors spec.md §8 S6: with a short wall-clock budget and a
// cheap no-op scenario, the planner should converge quickly and run
// many invocations.
func demoS6() (ok bool, detail string) {
	p := pool.New(1)
	defer p.Close()

	s := &scenario.Scenario{
		Parallel: [][]*scenario.Actor{
			{{Name: "noop", Run: func(ctx context.Context, ictx *scenario.InvocationContext) (scenario.Result, error) {
				return scenario.Void(), nil
			}}},
		},
	}
	r := runner.New(p, s, 50*time.Millisecond)

	pl := planner.New(plannerTime, planner.Stress)
	pl.Start()
	for pl.ShouldDoNextIteration() {
		pl.IterationStart()
		for pl.ShouldDoNextInvocation() {
			pl.InvocationStart()
			result := r.RunInvocation(context.Background())
			pl.InvocationEnd()
			if result.Kind != runner.KindCompleted {
				return false, fmt.Sprintf("invocation did not complete: %s", result.Kind)
			}
		}
		pl.IterationEnd()
	}

	total := pl.TotalInvocations()
	if total < 1 {
		return false, "planner ran zero invocations within its budget"
	}
	return true, fmt.Sprintf("%d invocations completed within %s, invocations-bound converged to %d", total, plannerTime, pl.InvocationsBound())
}

// newEventCAS returns the content-addressable store backing a demo's
// EventStore: an LRU-cached wrapper around an in-memory store, so
// repeated frontier/event lookups during rollback-driven exploration
// hit the cache instead of re-decoding from the underlying map.
func newEventCAS() cas.CAS {
	return cas.NewLRUCache(cas.NewMemoryCAS(), 256)
}

func mustStart(store *eventstructure.EventStore, thread int) {
	if _, err := store.AddRequest(eventstructure.Label{Kind: eventstructure.ThreadStart, ThreadID: thread}); err != nil {
		log.Fatal().Err(err).Int("thread", thread).Msg("could not start thread in event store")
	}
}
