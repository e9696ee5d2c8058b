package spin

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpinWaitBoundedReturnsFirstValue(t *testing.T) {
	calls := 0
	v, ok := SpinWaitBounded(Spinner{Spins: 10}, func() (int, bool) {
		calls++
		if calls == 3 {
			return 42, true
		}
		return 0, false
	})

	assert.True(t, ok)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
}

func TestSpinWaitBoundedExhaustsBudget(t *testing.T) {
	calls := 0
	_, ok := SpinWaitBounded(Spinner{Spins: 5}, func() (int, bool) {
		calls++
		return 0, false
	})

	assert.False(t, ok)
	assert.Equal(t, 5, calls)
}

func TestSpinWaitBoundedZeroSpinsNeverCallsRead(t *testing.T) {
	calls := 0
	_, ok := SpinWaitBounded(Spinner{Spins: 0}, func() (int, bool) {
		calls++
		return 1, true
	})

	assert.False(t, ok)
	assert.Equal(t, 0, calls)
}

func TestSpinnerGroupCollapsesWhenOversubscribed(t *testing.T) {
	cpus := runtime.GOMAXPROCS(0)

	underSubscribed := NewSpinnerGroup(1)
	assert.Equal(t, defaultSpins, underSubscribed.Spinner().Spins)

	heavilyOversubscribed := NewSpinnerGroup(cpus * defaultSpins * 10)
	assert.Less(t, heavilyOversubscribed.Spinner().Spins, defaultSpins/10,
		"a group with far more threads than CPUs should spin only a small fraction of the default budget")
}

func TestSpinnerGroupAtCapacityUsesDefault(t *testing.T) {
	cpus := runtime.GOMAXPROCS(0)
	g := NewSpinnerGroup(cpus)
	assert.Equal(t, defaultSpins, g.Spinner().Spins)
}
