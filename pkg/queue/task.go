package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cueframe/playcore/pkg/errs"
	"github.com/cueframe/playcore/pkg/meta"
)

// Key is the queue's unit of serialization: at most one pending and one
// queued task exist per key at any moment.
type Key string

var keyCounter atomic.Uint64

// NewKey mints a process-unique key carrying name for readability. Use it
// where two callers must never share a serialization slot by accident.
func NewKey(name string) Key {
	return Key(fmt.Sprintf("%s#%d", name, keyCounter.Add(1)))
}

// Status is the lifecycle state recorded for a dispatched task
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Handler executes a task. The context is the task's abort signal; a
// handler that ignores cancellation runs to completion but its result is
// discarded once the signal has tripped.
type Handler func(ctx context.Context, input any) (any, error)

// Task describes one unit of work to enqueue
type Task struct {
	// Name is the caller's request name; it may differ from Key
	Name string

	// Key selects the serialization slot. Empty defaults to Key(Name).
	Key Key

	// Input is handed to the handler verbatim
	Input any

	// Meta carries caller provenance, if any
	Meta *meta.Meta

	// Handler runs when the scheduler fires
	Handler Handler

	// Schedule overrides the queue's default scheduler for this task
	Schedule Scheduler
}

// Record is the settled-or-pending bookkeeping entry for a task key
type Record struct {
	Status    Status
	ID        string
	Name      string
	Key       Key
	Input     any
	Meta      *meta.Meta
	StartedAt time.Time

	// Settlement fields, zero while pending
	SettledAt time.Time
	Duration  time.Duration
	Output    any
	Err       error

	// Cancelled is true iff the task ended because its signal tripped
	Cancelled bool
}

// QueuedRecord is the read view of a task that has not yet dispatched
type QueuedRecord struct {
	ID    string
	Name  string
	Key   Key
	Input any
	Meta  *meta.Meta
}

// Ticket is the caller's handle on an enqueued task. It settles exactly
// once, with either the handler's output or a rejection.
type Ticket struct {
	id   string
	key  Key
	done chan struct{}
	once sync.Once

	output any
	err    error
}

func newTicket(id string, key Key) *Ticket {
	return &Ticket{id: id, key: key, done: make(chan struct{})}
}

// ID returns the unique token minted for this enqueue
func (t *Ticket) ID() string { return t.id }

// Key returns the task's serialization key
func (t *Ticket) Key() Key { return t.key }

// Done is closed once the ticket settles
func (t *Ticket) Done() <-chan struct{} { return t.done }

// Settled reports whether the ticket has an outcome
func (t *Ticket) Settled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Result blocks until settlement and returns the outcome
func (t *Ticket) Result() (any, error) {
	<-t.done
	return t.output, t.err
}

// Wait blocks until settlement or ctx cancellation, whichever first.
// Abandoning a wait does not cancel the task.
func (t *Ticket) Wait(ctx context.Context) (any, error) {
	select {
	case <-t.done:
		return t.output, t.err
	case <-ctx.Done():
		if cause := errs.CauseOf(ctx); cause != nil {
			return nil, cause
		}
		return nil, ctx.Err()
	}
}

func (t *Ticket) resolve(output any) {
	t.once.Do(func() {
		t.output = output
		close(t.done)
	})
}

func (t *Ticket) reject(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}
