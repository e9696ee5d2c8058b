package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitAndAwaitRunsAllTasks(t *testing.T) {
	p := New(4)
	defer p.Close()

	var ran [4]atomic.Bool
	submissions := make([]Submission, 4)
	for i := 0; i < 4; i++ {
		i := i
		submissions[i] = Submission{ThreadIndex: i, Task: func(ctx context.Context) error {
			ran[i].Store(true)
			return nil
		}}
	}

	elapsed, err := p.SubmitAndAwait(submissions, time.Second)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, time.Duration(0))
	for i := range ran {
		assert.True(t, ran[i].Load(), "task %d should have run", i)
	}
}

func TestSubmitAndAwaitElapsedAtLeastSlowestTask(t *testing.T) {
	p := New(2)
	defer p.Close()

	const sleep = 20 * time.Millisecond
	elapsed, err := p.SubmitAndAwait([]Submission{
		{ThreadIndex: 0, Task: func(ctx context.Context) error { return nil }},
		{ThreadIndex: 1, Task: func(ctx context.Context) error { time.Sleep(sleep); return nil }},
	}, time.Second)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, sleep)
}

func TestPoolIsolationAcrossInvocations(t *testing.T) {
	p := New(2)
	defer p.Close()

	var seen int32
	task := func(ctx context.Context) error {
		atomic.AddInt32(&seen, 1)
		return nil
	}

	for k := 0; k < 5; k++ {
		_, err := p.SubmitAndAwait([]Submission{
			{ThreadIndex: 0, Task: task},
			{ThreadIndex: 1, Task: task},
		}, time.Second)
		require.NoError(t, err)
	}

	assert.Equal(t, int32(10), atomic.LoadInt32(&seen))
}

func TestSubmitAndAwaitAggregatesFailures(t *testing.T) {
	p := New(2)
	defer p.Close()

	boom := errors.New("boom")
	_, err := p.SubmitAndAwait([]Submission{
		{ThreadIndex: 0, Task: func(ctx context.Context) error { return boom }},
		{ThreadIndex: 1, Task: func(ctx context.Context) error { return nil }},
	}, time.Second)

	require.Error(t, err)
	var ef *ExecutionFailure
	require.ErrorAs(t, err, &ef)
	assert.Equal(t, 0, ef.ThreadIndex)
	assert.ErrorIs(t, err, boom)
}

func TestSubmitAndAwaitRecoversPanic(t *testing.T) {
	p := New(1)
	defer p.Close()

	_, err := p.SubmitAndAwait([]Submission{
		{ThreadIndex: 0, Task: func(ctx context.Context) error { panic("oops") }},
	}, time.Second)

	require.Error(t, err)
	var ef *ExecutionFailure
	require.ErrorAs(t, err, &ef)
	assert.Contains(t, ef.Cause.Error(), "oops")
}

func TestSubmitAndAwaitOutOfRangeIndex(t *testing.T) {
	p := New(2)
	defer p.Close()

	_, err := p.SubmitAndAwait([]Submission{
		{ThreadIndex: 5, Task: func(ctx context.Context) error { return nil }},
	}, time.Second)

	var pe *PreconditionError
	require.ErrorAs(t, err, &pe)
}

func TestSubmitAndAwaitDuplicateIndex(t *testing.T) {
	p := New(2)
	defer p.Close()

	noop := func(ctx context.Context) error { return nil }
	_, err := p.SubmitAndAwait([]Submission{
		{ThreadIndex: 0, Task: noop},
		{ThreadIndex: 0, Task: noop},
	}, time.Second)

	var pe *PreconditionError
	require.ErrorAs(t, err, &pe)
}

func TestSubmitAndAwaitTimeoutMarksStuck(t *testing.T) {
	p := New(1)
	defer p.Close()

	block := make(chan struct{})
	defer close(block)

	_, err := p.SubmitAndAwait([]Submission{
		{ThreadIndex: 0, Task: func(ctx context.Context) error { <-block; return nil }},
	}, 10*time.Millisecond)

	require.Error(t, err)
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.True(t, p.Stuck())

	_, err = p.SubmitAndAwait([]Submission{
		{ThreadIndex: 0, Task: func(ctx context.Context) error { return nil }},
	}, time.Second)
	assert.ErrorIs(t, err, ErrStuck)
}

func TestPreconditionViolationTouchesNoSlots(t *testing.T) {
	p := New(1)
	defer p.Close()

	var touched atomic.Bool
	_, err := p.SubmitAndAwait([]Submission{
		{ThreadIndex: 0, Task: func(ctx context.Context) error { touched.Store(true); return nil }},
		{ThreadIndex: 7, Task: func(ctx context.Context) error { touched.Store(true); return nil }},
	}, time.Second)

	require.Error(t, err)
	assert.False(t, touched.Load(), "no task should run once a precondition violation is detected")
}
