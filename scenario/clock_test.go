package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHBClockTickMonotonic(t *testing.T) {
	c := NewHBClock(3)
	require.Equal(t, HBClock{0, 0, 0}, c)

	a := c.Tick(0)
	b := a.Tick(0)

	assert.Greater(t, b[0], a[0], "repeated ticks on the same thread strictly increase that component")
	assert.Equal(t, a[1], b[1], "ticking thread 0 must not change peer components")
	assert.Equal(t, a[2], b[2])
}

func TestHBClockMergeIsElementwiseMax(t *testing.T) {
	a := HBClock{3, 1, 0}
	b := HBClock{1, 4, 2}

	merged := a.Merge(b)

	assert.Equal(t, HBClock{3, 4, 2}, merged)
}

func TestHBClockCloneIsIndependent(t *testing.T) {
	a := NewHBClock(2)
	b := a.Clone()
	b[0] = 5

	assert.Equal(t, int64(0), a[0], "mutating a clone must not affect the original")
}

func TestHBClockLessEqual(t *testing.T) {
	a := HBClock{1, 2}
	b := HBClock{1, 3}
	c := HBClock{2, 1}

	assert.True(t, a.LessEqual(b))
	assert.False(t, a.LessEqual(c))
	assert.True(t, a.LessEqual(a))
}
