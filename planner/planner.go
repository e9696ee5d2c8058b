// Package planner implements the adaptive iteration/invocation budget
// of spec.md §4.E: given a wall-clock time budget and a testing mode,
// it decides how many invocations to run per iteration and how many
// iterations to run in total, doubling or halving its estimate every
// ADJ invocations to stay within a small constant factor of the
// requested budget regardless of how expensive each invocation turns
// out to be.
//
// Grounded on the teacher's model.MultiThreadEngine per-depth time
// bookkeeping (RunModel's iteration/depth wall-clock accounting),
// generalized from a fixed exploration depth to the spec's explicit
// doubling/halving invocation-bound search.
package planner

import "time"

// Mode selects the upper bound on invocations per iteration.
type Mode int

const (
	// Stress runs many cheap invocations per iteration.
	Stress Mode = iota
	// ModelChecking runs fewer, more exhaustive invocations per
	// iteration, reflecting the heavier per-invocation cost of
	// exhaustive event-structure exploration.
	ModelChecking
)

const (
	// adjEvery is how often (in invocations) the planner recomputes
	// its invocation bound estimate.
	adjEvery = 100
	// invocationFloor is the lower bound the invocations-bound search
	// never halves below.
	invocationFloor = 1_000
	// iterationsDelta is the additive rebalancing step applied to the
	// iterations bound after each iteration.
	iterationsDelta = 5

	stressCap        = 1_000_000
	modelCheckingCap = 20_000

	initialIterationsBound  = 10
	initialInvocationsBound = invocationFloor
)

func invocationsCap(mode Mode) int {
	if mode == Stress {
		return stressCap
	}
	return modelCheckingCap
}

// Planner tracks the running time budget across nested
// iteration/invocation loops, per spec.md §4.E.
type Planner struct {
	mode Mode

	totalBudget time.Duration
	start       time.Time
	now         func() time.Time

	iterationIndex  int
	iterationsBound int

	invocationIndex  int
	invocationsBound int

	iterationStartedAt   time.Time
	iterationTimeBound   time.Duration
	invocationsThisAdj   int
	sumInvocationLatency time.Duration
	invocationCount      int64
	totalInvocations     int64

	invocationStartedAt time.Time
}

// New returns a Planner that will try to keep total wall-clock spend
// within a small constant factor of budget.
func New(budget time.Duration, mode Mode) *Planner {
	return &Planner{
		mode:             mode,
		totalBudget:      budget,
		now:              time.Now,
		iterationsBound:  initialIterationsBound,
		invocationsBound: initialInvocationsBound,
	}
}

// Start marks the beginning of the whole planning run. Call once
// before the iterations loop.
func (p *Planner) Start() {
	p.start = p.now()
}

func (p *Planner) elapsed() time.Duration { return p.now().Sub(p.start) }
func (p *Planner) remaining() time.Duration {
	r := p.totalBudget - p.elapsed()
	if r < 0 {
		return 0
	}
	return r
}

// ShouldDoNextIteration reports whether another iteration should run.
func (p *Planner) ShouldDoNextIteration() bool {
	return p.remaining() > 0 && p.iterationIndex < p.iterationsBound
}

// IterationStart resets the per-iteration invocation bound and
// computes this iteration's time bound as an even share of the time
// remaining across the remaining iterations.
func (p *Planner) IterationStart() {
	p.iterationStartedAt = p.now()
	p.invocationIndex = 0
	p.invocationsBound = initialInvocationsBound
	p.invocationsThisAdj = 0
	p.sumInvocationLatency = 0
	p.invocationCount = 0

	remainingIterations := p.iterationsBound - p.iterationIndex
	if remainingIterations < 1 {
		remainingIterations = 1
	}
	p.iterationTimeBound = p.remaining() / time.Duration(remainingIterations)
}

// IterationEnd rebalances the iterations bound by the additive delta:
// if the iteration ran faster than its bound with budget left over,
// allow more iterations; otherwise hold steady. Call once per
// iteration after the invocations loop exits.
func (p *Planner) IterationEnd() {
	p.iterationIndex++
	elapsed := p.now().Sub(p.iterationStartedAt)
	if elapsed < p.iterationTimeBound && p.remaining() > 0 {
		p.iterationsBound += iterationsDelta
	}
}

// ShouldDoNextInvocation reports whether another invocation should run
// within the current iteration.
func (p *Planner) ShouldDoNextInvocation() bool {
	return p.remaining() > 0 && p.invocationIndex < p.invocationsBound
}

// InvocationStart marks the beginning of one invocation's timing.
func (p *Planner) InvocationStart() {
	p.invocationStartedAt = p.now()
}

// InvocationEnd records the invocation's latency, advances the
// invocation index, and every adjEvery invocations re-estimates the
// invocations bound by doubling or halving it per spec.md §4.E.
func (p *Planner) InvocationEnd() {
	latency := p.now().Sub(p.invocationStartedAt)
	p.sumInvocationLatency += latency
	p.invocationCount++
	p.totalInvocations++
	p.invocationIndex++
	p.invocationsThisAdj++

	if p.invocationsThisAdj < adjEvery {
		return
	}
	p.invocationsThisAdj = 0
	p.rebalanceInvocationsBound()
}

func (p *Planner) averageInvocationLatency() time.Duration {
	if p.invocationCount == 0 {
		return 0
	}
	return p.sumInvocationLatency / time.Duration(p.invocationCount)
}

func (p *Planner) rebalanceInvocationsBound() {
	avg := p.averageInvocationLatency()
	if avg <= 0 {
		return
	}
	remainingIterationTime := p.iterationTimeBound - p.now().Sub(p.iterationStartedAt)
	remainingInvocations := p.invocationsBound - p.invocationIndex
	estimate := avg * time.Duration(remainingInvocations)

	cap := invocationsCap(p.mode)
	switch {
	case estimate < remainingIterationTime:
		doubled := p.invocationsBound * 2
		if doubled <= cap {
			p.invocationsBound = doubled
		} else {
			p.invocationsBound = cap
		}
	case estimate > remainingIterationTime:
		halved := p.invocationsBound / 2
		if halved < invocationFloor {
			halved = invocationFloor
		}
		p.invocationsBound = halved
	}
}

// IterationsBound returns the current iterations bound, mostly useful
// for tests observing convergence.
func (p *Planner) IterationsBound() int { return p.iterationsBound }

// InvocationsBound returns the current per-iteration invocations
// bound.
func (p *Planner) InvocationsBound() int { return p.invocationsBound }

// TotalInvocations returns the number of invocations timed so far
// across all iterations.
func (p *Planner) TotalInvocations() int64 { return p.totalInvocations }
