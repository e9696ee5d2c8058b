package consistency

import (
	"fmt"
	"sort"

	"github.com/timewinder-dev/lincheck-go/eventstructure"
)

// lockChecker verifies the per-monitor total order of spec.md §4.G:
// between an acquire-response and that thread's next release on the
// same monitor, no other thread's acquire-response may occur, and
// every wait-response must be preceded by the notify event it paired
// with.
type lockChecker struct{}

func newLockChecker() *lockChecker { return &lockChecker{} }

func (c *lockChecker) Reset() {}

func (c *lockChecker) CheckIncremental(ev *eventstructure.Event) (Verdict, *Inconsistency) {
	switch ev.Label.Kind {
	case eventstructure.Lock, eventstructure.Unlock, eventstructure.Wait, eventstructure.Notify:
		return Unknown, nil
	default:
		return Consistent, nil
	}
}

func (c *lockChecker) CheckFull(events []*eventstructure.Event) *Inconsistency {
	byMonitor := make(map[string][]*eventstructure.Event)
	for _, ev := range events {
		switch ev.Label.Kind {
		case eventstructure.Lock, eventstructure.Unlock, eventstructure.Wait, eventstructure.Notify:
			byMonitor[ev.Label.Monitor] = append(byMonitor[ev.Label.Monitor], ev)
		}
	}
	for monitor, evs := range byMonitor {
		sort.Slice(evs, func(i, j int) bool { return evs[i].ID < evs[j].ID })

		held := -1 // thread currently holding the monitor, -1 if free
		for _, ev := range evs {
			switch {
			case ev.Label.Kind == eventstructure.Lock && ev.Label.Phase == eventstructure.Response:
				if held != -1 && held != ev.ThreadID {
					return &Inconsistency{
						Kind:   LockConsistencyViolation,
						Detail: fmt.Sprintf("monitor %q acquired by thread %d while held by thread %d", monitor, ev.ThreadID, held),
						Events: []int{ev.ID},
					}
				}
				held = ev.ThreadID
			case ev.Label.Kind == eventstructure.Unlock:
				held = -1
			}
		}

		for _, ev := range evs {
			if ev.Label.Kind != eventstructure.Wait || ev.Label.Phase != eventstructure.Response {
				continue
			}
			matched := false
			for _, n := range evs {
				if n.Label.Kind == eventstructure.Notify && happensBefore(n, ev) {
					matched = true
					break
				}
			}
			if !matched {
				return &Inconsistency{
					Kind:   LockConsistencyViolation,
					Detail: fmt.Sprintf("wait response on monitor %q has no preceding notify", monitor),
					Events: []int{ev.ID},
				}
			}
		}
	}
	return nil
}
