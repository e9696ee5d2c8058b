package planner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runPlanner(p *Planner, invocation func()) {
	p.Start()
	for p.ShouldDoNextIteration() {
		p.IterationStart()
		for p.ShouldDoNextInvocation() {
			p.InvocationStart()
			invocation()
			p.InvocationEnd()
		}
		p.IterationEnd()
	}
}

func TestPlannerRunsAtLeastOneIterationWithinBudget(t *testing.T) {
	p := New(50*time.Millisecond, Stress)
	var count int64
	runPlanner(p, func() { count++ })
	assert.Greater(t, count, int64(0))
}

func TestPlannerConvergesOnCheapInvocations(t *testing.T) {
	// S6, scaled down: a 200ms budget with a no-op invocation should
	// still yield >= 1000 invocations.
	p := New(200*time.Millisecond, Stress)
	runPlanner(p, func() {})
	assert.GreaterOrEqual(t, p.TotalInvocations(), int64(1000))
}

func TestPlannerStaysWithinConstantFactorOfBudget(t *testing.T) {
	budget := 100 * time.Millisecond
	p := New(budget, Stress)
	start := time.Now()
	runPlanner(p, func() { time.Sleep(time.Millisecond) })
	elapsed := time.Since(start)
	assert.LessOrEqual(t, elapsed, 3*budget)
}

func TestPlannerModelCheckingCapIsLower(t *testing.T) {
	p := New(time.Second, ModelChecking)
	p.sumInvocationLatency = time.Nanosecond
	p.invocationCount = 1
	p.iterationTimeBound = time.Second
	p.invocationsBound = modelCheckingCap
	p.invocationIndex = 1
	p.rebalanceInvocationsBound()
	assert.LessOrEqual(t, p.InvocationsBound(), modelCheckingCap)
}

func TestPlannerNeverBelowFloor(t *testing.T) {
	p := New(time.Second, Stress)
	p.sumInvocationLatency = time.Second
	p.invocationCount = 1
	p.iterationTimeBound = time.Nanosecond
	p.invocationIndex = 0
	p.invocationsBound = invocationFloor
	p.rebalanceInvocationsBound()
	require.GreaterOrEqual(t, p.InvocationsBound(), invocationFloor)
}

func TestPlannerZeroBudgetRunsNoIterations(t *testing.T) {
	p := New(0, Stress)
	ran := false
	runPlanner(p, func() { ran = true })
	assert.False(t, ran)
}
