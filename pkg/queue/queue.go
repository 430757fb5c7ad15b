package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cueframe/playcore/pkg/errs"
	"github.com/cueframe/playcore/pkg/log"
	"github.com/cueframe/playcore/pkg/metrics"
)

// Listener observes the tasks map after every change. The map it receives
// is a detached copy; listeners must treat it as read-only.
type Listener func(tasks map[Key]Record)

// Unsubscribe removes a listener. Calling it more than once is a no-op.
type Unsubscribe func()

// Config holds queue configuration
type Config struct {
	// Scheduler used when a task carries none. Defaults to Async.
	Scheduler Scheduler

	// OnDispatch runs after a task's pending record is published
	OnDispatch func(Record)

	// OnSettled runs after a task's settlement record is published
	OnSettled func(Record)
}

// Queue serializes async work by key. Per key there is at most one queued
// and one pending task; enqueueing onto an occupied key supersedes the
// older task. Distinct keys run concurrently and independently.
type Queue struct {
	mu        sync.Mutex
	cfg       Config
	logger    zerolog.Logger
	queued    map[Key]*queuedTask
	pending   map[Key]*pendingTask
	tasks     map[Key]Record
	listeners map[int]Listener
	nextLst   int
	destroyed bool
}

type queuedTask struct {
	id          string
	task        Task
	ticket      *Ticket
	cancelSched func()
	flushed     bool
	removed     bool
}

type pendingTask struct {
	id     string
	cancel context.CancelCauseFunc
}

// New creates a queue
func New(cfg Config) *Queue {
	if cfg.Scheduler == nil {
		cfg.Scheduler = Async()
	}
	return &Queue{
		cfg:       cfg,
		logger:    log.WithComponent("queue"),
		queued:    make(map[Key]*queuedTask),
		pending:   make(map[Key]*pendingTask),
		tasks:     make(map[Key]Record),
		listeners: make(map[int]Listener),
	}
}

// Enqueue registers a task and schedules its dispatch, returning the
// caller's ticket. An existing queued task with the same key is rejected
// with SUPERSEDED; an executing one has its signal aborted with
// SUPERSEDED. The new task is unaffected by either.
func (q *Queue) Enqueue(t Task) *Ticket {
	if t.Key == "" {
		t.Key = Key(t.Name)
	}
	if t.Name == "" {
		t.Name = string(t.Key)
	}
	id := uuid.New().String()
	ticket := newTicket(id, t.Key)

	q.mu.Lock()
	if q.destroyed {
		q.mu.Unlock()
		ticket.reject(errs.New(errs.Destroyed, "queue destroyed"))
		return ticket
	}

	var (
		supersededSched  func()
		supersededTicket *Ticket
		abortPending     context.CancelCauseFunc
	)
	if old := q.queued[t.Key]; old != nil {
		old.removed = true
		delete(q.queued, t.Key)
		supersededSched = old.cancelSched
		supersededTicket = old.ticket
		metrics.QueuedTasks.Dec()
	}
	if p := q.pending[t.Key]; p != nil {
		abortPending = p.cancel
	}

	qt := &queuedTask{id: id, task: t, ticket: ticket}
	q.queued[t.Key] = qt
	sched := t.Schedule
	if sched == nil {
		sched = q.cfg.Scheduler
	}
	q.mu.Unlock()

	metrics.TasksEnqueued.Inc()
	metrics.QueuedTasks.Inc()

	if supersededTicket != nil {
		if supersededSched != nil {
			supersededSched()
		}
		supersededTicket.reject(errs.New(errs.Superseded, "superseded by task "+id))
		metrics.TasksSuperseded.Inc()
	}
	if abortPending != nil {
		abortPending(errs.New(errs.Superseded, "superseded by task "+id))
		metrics.TasksSuperseded.Inc()
	}

	cancel := sched(func() { q.dispatch(qt) })

	q.mu.Lock()
	if qt.flushed || qt.removed {
		// Dispatch started or the task was already revoked before the
		// scheduler handed back its cancel; revoke now if still possible.
		if qt.removed && !qt.flushed && cancel != nil {
			q.mu.Unlock()
			cancel()
			return ticket
		}
		q.mu.Unlock()
		return ticket
	}
	qt.cancelSched = cancel
	q.mu.Unlock()
	return ticket
}

// dispatch runs when a task's scheduler fires. Safe to invoke more than
// once; only the first call executes the task.
func (q *Queue) dispatch(qt *queuedTask) {
	key := qt.task.Key

	q.mu.Lock()
	if qt.flushed || qt.removed {
		q.mu.Unlock()
		return
	}
	qt.flushed = true
	delete(q.queued, key)
	if q.destroyed {
		q.mu.Unlock()
		metrics.QueuedTasks.Dec()
		qt.ticket.reject(errs.New(errs.Destroyed, "queue destroyed"))
		return
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	q.pending[key] = &pendingTask{id: qt.id, cancel: cancel}
	rec := Record{
		Status:    StatusPending,
		ID:        qt.id,
		Name:      qt.task.Name,
		Key:       key,
		Input:     qt.task.Input,
		Meta:      qt.task.Meta,
		StartedAt: time.Now(),
	}
	q.tasks[key] = rec
	onDispatch := q.cfg.OnDispatch
	q.mu.Unlock()

	metrics.QueuedTasks.Dec()
	metrics.PendingTasks.Inc()
	taskLog := log.WithTask(qt.id, string(key))
	taskLog.Debug().Str("name", qt.task.Name).Msg("Task dispatched")

	q.notify()
	if onDispatch != nil {
		onDispatch(rec)
	}

	q.execute(ctx, cancel, qt, rec)
}

func (q *Queue) execute(ctx context.Context, cancel context.CancelCauseFunc, qt *queuedTask, rec Record) {
	key := qt.task.Key

	var output any
	var err error
	if cause := errs.CauseOf(ctx); cause != nil {
		// Signal tripped between dispatch and execution
		err = cause
	} else {
		output, err = qt.task.Handler(ctx, qt.task.Input)
		if cause := errs.CauseOf(ctx); cause != nil {
			// The signal is authoritative; a late resolution is discarded
			output, err = nil, cause
		}
	}
	cancelled := ctx.Err() != nil
	cancel(errs.New(errs.Cancelled, "task settled"))

	// Settle the caller before publishing bookkeeping
	if err != nil {
		qt.ticket.reject(err)
	} else {
		qt.ticket.resolve(output)
	}

	settledAt := time.Now()
	rec.SettledAt = settledAt
	rec.Duration = settledAt.Sub(rec.StartedAt)
	rec.Cancelled = cancelled
	if err != nil {
		rec.Status = StatusError
		rec.Err = err
	} else {
		rec.Status = StatusSuccess
		rec.Output = output
	}

	q.mu.Lock()
	if p := q.pending[key]; p != nil && p.id == qt.id {
		delete(q.pending, key)
	}
	published := false
	if cur, ok := q.tasks[key]; ok && cur.ID == qt.id {
		// Last-writer-wins by id: a stale task never overwrites the
		// record of a newer one.
		q.tasks[key] = rec
		published = true
	}
	onSettled := q.cfg.OnSettled
	q.mu.Unlock()

	metrics.PendingTasks.Dec()
	metrics.TasksSettled.WithLabelValues(string(rec.Status)).Inc()
	metrics.TaskDuration.Observe(rec.Duration.Seconds())
	settledLog := log.WithTask(qt.id, string(key))
	settledLog.Debug().Str("status", string(rec.Status)).Msg("Task settled")

	if published {
		q.notify()
		if onSettled != nil {
			onSettled(rec)
		}
	}
}

// Dequeue revokes the queued (not yet dispatched) task at key, rejecting
// its ticket with REMOVED. Reports whether a task was removed.
func (q *Queue) Dequeue(key Key) bool {
	q.mu.Lock()
	qt := q.queued[key]
	if qt == nil {
		q.mu.Unlock()
		return false
	}
	qt.removed = true
	delete(q.queued, key)
	cancel := qt.cancelSched
	q.mu.Unlock()

	metrics.QueuedTasks.Dec()
	if cancel != nil {
		cancel()
	}
	qt.ticket.reject(errs.New(errs.Removed, "task dequeued"))
	return true
}

// Clear revokes every queued task with REMOVED and drops settled records
// from the tasks map. Pending tasks keep running.
func (q *Queue) Clear() {
	type revoked struct {
		ticket *Ticket
		cancel func()
	}
	q.mu.Lock()
	removed := make([]revoked, 0, len(q.queued))
	for key, qt := range q.queued {
		qt.removed = true
		delete(q.queued, key)
		removed = append(removed, revoked{ticket: qt.ticket, cancel: qt.cancelSched})
	}
	dropped := false
	for key, rec := range q.tasks {
		if rec.Status != StatusPending {
			delete(q.tasks, key)
			dropped = true
		}
	}
	q.mu.Unlock()

	for _, r := range removed {
		metrics.QueuedTasks.Dec()
		if r.cancel != nil {
			r.cancel()
		}
		r.ticket.reject(errs.New(errs.Removed, "queue cleared"))
	}
	if dropped {
		q.notify()
	}
}

// Flush dispatches queued tasks now instead of waiting for their
// schedulers. With no arguments every queued task flushes; otherwise only
// the named keys. Handlers run on the calling goroutine.
func (q *Queue) Flush(keys ...Key) {
	q.mu.Lock()
	var targets []*queuedTask
	if len(keys) == 0 {
		for _, qt := range q.queued {
			targets = append(targets, qt)
		}
	} else {
		for _, key := range keys {
			if qt := q.queued[key]; qt != nil {
				targets = append(targets, qt)
			}
		}
	}
	q.mu.Unlock()

	for _, qt := range targets {
		q.dispatch(qt)
	}
}

// Abort cancels the work at key: a queued task rejects with ABORTED and a
// pending task's signal aborts with ABORTED.
func (q *Queue) Abort(key Key) {
	q.abortWith(key, func() *errs.Error { return errs.New(errs.Aborted, "task aborted") })
}

// AbortAll aborts every queued and pending task with ABORTED
func (q *Queue) AbortAll() {
	q.AbortAllWith(nil)
}

// AbortAllWith aborts everything with cause, which defaults to ABORTED.
// Owners use this to distinguish detach and teardown from a plain abort.
func (q *Queue) AbortAllWith(cause *errs.Error) {
	mk := func() *errs.Error {
		if cause != nil {
			return cause
		}
		return errs.New(errs.Aborted, "task aborted")
	}
	q.mu.Lock()
	keys := make(map[Key]struct{}, len(q.queued)+len(q.pending))
	for key := range q.queued {
		keys[key] = struct{}{}
	}
	for key := range q.pending {
		keys[key] = struct{}{}
	}
	q.mu.Unlock()

	for key := range keys {
		q.abortWith(key, mk)
	}
}

func (q *Queue) abortWith(key Key, mk func() *errs.Error) {
	q.mu.Lock()
	qt := q.queued[key]
	var cancelSched func()
	if qt != nil {
		qt.removed = true
		delete(q.queued, key)
		cancelSched = qt.cancelSched
	}
	var abortPending context.CancelCauseFunc
	if p := q.pending[key]; p != nil {
		abortPending = p.cancel
	}
	q.mu.Unlock()

	if qt != nil {
		metrics.QueuedTasks.Dec()
		if cancelSched != nil {
			cancelSched()
		}
		qt.ticket.reject(mk())
	}
	if abortPending != nil {
		abortPending(mk())
	}
}

// Destroy aborts everything and permanently rejects further enqueues with
// DESTROYED. Idempotent.
func (q *Queue) Destroy() {
	q.mu.Lock()
	if q.destroyed {
		q.mu.Unlock()
		return
	}
	q.destroyed = true
	q.mu.Unlock()

	q.AbortAll()
	q.logger.Debug().Msg("Queue destroyed")
}

// Destroyed reports whether Destroy ran
func (q *Queue) Destroyed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.destroyed
}

// IsQueued reports whether a task at key awaits dispatch
func (q *Queue) IsQueued(key Key) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.queued[key] != nil
}

// IsPending reports whether a task at key is executing
func (q *Queue) IsPending(key Key) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending[key] != nil
}

// Tasks returns a copy of the settled-or-pending record map
func (q *Queue) Tasks() map[Key]Record {
	q.mu.Lock()
	defer q.mu.Unlock()
	tasks := make(map[Key]Record, len(q.tasks))
	for k, v := range q.tasks {
		tasks[k] = v
	}
	return tasks
}

// Task returns the record at key, if any
func (q *Queue) Task(key Key) (Record, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	rec, ok := q.tasks[key]
	return rec, ok
}

// Queued returns the read view of tasks awaiting dispatch
func (q *Queue) Queued() []QueuedRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]QueuedRecord, 0, len(q.queued))
	for _, qt := range q.queued {
		out = append(out, QueuedRecord{
			ID:    qt.id,
			Name:  qt.task.Name,
			Key:   qt.task.Key,
			Input: qt.task.Input,
			Meta:  qt.task.Meta,
		})
	}
	return out
}

// Subscribe registers a listener invoked after every tasks-map change
func (q *Queue) Subscribe(l Listener) Unsubscribe {
	q.mu.Lock()
	id := q.nextLst
	q.nextLst++
	q.listeners[id] = l
	q.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			q.mu.Lock()
			delete(q.listeners, id)
			q.mu.Unlock()
		})
	}
}

func (q *Queue) notify() {
	q.mu.Lock()
	if len(q.listeners) == 0 {
		q.mu.Unlock()
		return
	}
	tasks := make(map[Key]Record, len(q.tasks))
	for k, v := range q.tasks {
		tasks[k] = v
	}
	listeners := make([]Listener, 0, len(q.listeners))
	for _, l := range q.listeners {
		listeners = append(listeners, l)
	}
	q.mu.Unlock()

	for _, l := range listeners {
		q.safeNotify(l, tasks)
	}
}

func (q *Queue) safeNotify(l Listener, tasks map[Key]Record) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error().Interface("panic", r).Msg("Queue listener panicked")
		}
	}()
	l(tasks)
}
