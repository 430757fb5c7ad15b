package queue

import (
	"sync"
	"time"
)

// Scheduler decides when a queued task runs. Invoking flush dispatches
// the task; the returned cancel (may be nil) revokes a dispatch that has
// not started yet. The queue guarantees flush is idempotent, so a
// scheduler that fires twice is harmless.
type Scheduler func(flush func()) (cancel func())

// Async dispatches on a fresh goroutine as soon as possible. This is the
// default scheduler.
func Async() Scheduler {
	return func(flush func()) func() {
		go flush()
		return nil
	}
}

// Delay dispatches after d has elapsed
func Delay(d time.Duration) Scheduler {
	return func(flush func()) func() {
		t := time.AfterFunc(d, flush)
		return func() {
			t.Stop()
		}
	}
}

// ManualScheduler holds dispatches until released, giving tests full
// control over task ordering.
type ManualScheduler struct {
	mu      sync.Mutex
	pending []*manualEntry
}

type manualEntry struct {
	flush     func()
	cancelled bool
}

// NewManual creates a manual scheduler
func NewManual() *ManualScheduler {
	return &ManualScheduler{}
}

// Schedule is the Scheduler for this instance; pass m.Schedule to
// queue.Config or a task's Schedule field.
func (m *ManualScheduler) Schedule(flush func()) func() {
	e := &manualEntry{flush: flush}
	m.mu.Lock()
	m.pending = append(m.pending, e)
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		e.cancelled = true
		m.mu.Unlock()
	}
}

// Release dispatches the oldest held task, reporting whether one ran
func (m *ManualScheduler) Release() bool {
	for {
		m.mu.Lock()
		if len(m.pending) == 0 {
			m.mu.Unlock()
			return false
		}
		e := m.pending[0]
		m.pending = m.pending[1:]
		m.mu.Unlock()
		if e.cancelled {
			continue
		}
		e.flush()
		return true
	}
}

// ReleaseAll dispatches every held task in order, returning how many ran
func (m *ManualScheduler) ReleaseAll() int {
	n := 0
	for m.Release() {
		n++
	}
	return n
}

// Len returns the number of held dispatches, cancelled ones included
func (m *ManualScheduler) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
