package runner

import "sync/atomic"

// quiescence implements the completedOrSuspended counter invariant of
// spec.md §4.D: every parallel thread contributes exactly one unit
// while it is either permanently finished or currently parked waiting
// on a Completion; the scenario is globally quiescent once every
// thread has contributed, meaning no thread remains able to produce a
// resume for any other.
type quiescence struct {
	count atomic.Int64
	total int64
}

func newQuiescence(total int) *quiescence {
	return &quiescence{total: int64(total)}
}

// enterSuspended records that a thread has parked awaiting resume.
func (q *quiescence) enterSuspended() { q.count.Add(1) }

// exitSuspended compensates a prior enterSuspended once the thread
// was genuinely resumed and can keep making progress.
func (q *quiescence) exitSuspended() { q.count.Add(-1) }

// markCompleted records that a thread has permanently finished its
// actor list.
func (q *quiescence) markCompleted() { q.count.Add(1) }

// isQuiescent reports whether every parallel thread is currently
// accounted for as completed or suspended.
func (q *quiescence) isQuiescent() bool { return q.count.Load() >= q.total }
