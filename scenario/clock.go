package scenario

// HBClock is a per-thread vector of non-negative integers approximating
// happens-before across parallel threads (spec.md §3). Index i holds
// the count of actor completions this thread has observed from thread
// i (or its own completions, at its own index).
type HBClock []int64

// NewHBClock returns a zeroed clock sized for n parallel threads.
func NewHBClock(n int) HBClock {
	return make(HBClock, n)
}

// Clone returns an independent copy, so peers that snapshot a clock
// never observe later mutation of the original.
func (c HBClock) Clone() HBClock {
	out := make(HBClock, len(c))
	copy(out, c)
	return out
}

// Merge returns the elementwise maximum of c and other, the standard
// vector-clock join used when an actor observes a peer's clock.
func (c HBClock) Merge(other HBClock) HBClock {
	out := make(HBClock, len(c))
	for i := range out {
		v := c[i]
		if i < len(other) && other[i] > v {
			v = other[i]
		}
		out[i] = v
	}
	return out
}

// Tick returns a copy of c with thread's own component incremented,
// recording that thread completed one more actor.
func (c HBClock) Tick(thread int) HBClock {
	out := c.Clone()
	out[thread]++
	return out
}

// LessEqual reports whether c happens-before-or-equal other
// component-wise, i.e. c could be a causal predecessor of other.
func (c HBClock) LessEqual(other HBClock) bool {
	for i := range c {
		if c[i] > other[i] {
			return false
		}
	}
	return true
}
