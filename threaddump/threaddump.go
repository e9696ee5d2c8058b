// Package threaddump samples stack traces of pool-owned worker
// goroutines for RunnerTimeout diagnosis (spec.md §4.B, §5,
// Property 9). It is adapted from the teacher's exec.Stack/exec.Frame
// stub into a real runtime.Stack-backed sampler.
package threaddump

import (
	"bytes"
	"regexp"
	"runtime"
	"strconv"
	"sync"
)

// Entry is one worker's sampled stack trace.
type Entry struct {
	WorkerID   int
	GoroutineID int64
	Stack      string
}

// Dump is a point-in-time sample of every pool-owned worker goroutine.
type Dump struct {
	Entries []Entry
}

// Registry tracks which goroutine ID backs which worker index, so a
// Dump can be filtered down to only pool-owned threads the way
// spec.md's Property 9 requires ("a thread dump whose entries all
// reference pool-owned threads").
type Registry struct {
	mu  sync.Mutex
	ids map[int]int64 // workerID -> goroutine id
}

// NewRegistry returns an empty worker-goroutine registry.
func NewRegistry() *Registry {
	return &Registry{ids: make(map[int]int64)}
}

// Register records the calling goroutine as the backing goroutine for
// workerID. Call it from inside the worker goroutine itself.
func (r *Registry) Register(workerID int) {
	gid := CurrentGoroutineID()
	r.mu.Lock()
	r.ids[workerID] = gid
	r.mu.Unlock()
}

// Sample captures stack traces for every registered worker and returns
// only the entries that belong to a currently-registered goroutine.
func (r *Registry) Sample() Dump {
	r.mu.Lock()
	ids := make(map[int]int64, len(r.ids))
	for workerID, gid := range r.ids {
		ids[workerID] = gid
	}
	r.mu.Unlock()

	buf := make([]byte, 1<<20)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			buf = buf[:n]
			break
		}
		buf = make([]byte, 2*len(buf))
	}

	byGoroutine := splitByGoroutine(buf)

	var entries []Entry
	for workerID, gid := range ids {
		if stack, ok := byGoroutine[gid]; ok {
			entries = append(entries, Entry{WorkerID: workerID, GoroutineID: gid, Stack: stack})
		}
	}
	return Dump{Entries: entries}
}

var goroutineHeader = regexp.MustCompile(`^goroutine (\d+) \[`)

// splitByGoroutine breaks a runtime.Stack(all=true) dump into
// per-goroutine chunks keyed by goroutine id.
func splitByGoroutine(all []byte) map[int64]string {
	out := make(map[int64]string)
	chunks := bytes.Split(all, []byte("\n\n"))
	for _, chunk := range chunks {
		if len(chunk) == 0 {
			continue
		}
		lines := bytes.SplitN(chunk, []byte("\n"), 2)
		m := goroutineHeader.FindSubmatch(lines[0])
		if m == nil {
			continue
		}
		id, err := strconv.ParseInt(string(m[1]), 10, 64)
		if err != nil {
			continue
		}
		out[id] = string(chunk)
	}
	return out
}

// CurrentGoroutineID extracts the calling goroutine's id by parsing
// the header of its own single-goroutine stack trace. This is the
// same "parse runtime.Stack's text output" technique used throughout
// the ecosystem in the absence of an exported goroutine-id API; it is
// only ever used for diagnostics, never for control flow.
func CurrentGoroutineID() int64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	m := goroutineHeader.FindSubmatch(buf[:n])
	if m == nil {
		return -1
	}
	id, err := strconv.ParseInt(string(m[1]), 10, 64)
	if err != nil {
		return -1
	}
	return id
}
