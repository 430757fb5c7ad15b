/*
Package queue serializes asynchronous work by key.

A key is a serialization slot: at most one task per key is queued
(awaiting dispatch) and at most one is pending (executing). Tasks with
distinct keys run concurrently and independently.

# Lifecycle

	Enqueue ──► queued ──scheduler fires──► pending ──► success | error
	               │                           │
	               ├─ superseded / dequeued /  ├─ signal aborted
	               │  aborted / destroyed      │  (SUPERSEDED, ABORTED, ...)
	               ▼                           ▼
	            ticket rejects            result discarded,
	                                      ticket rejects with cause

Enqueueing onto a key that already holds a queued task rejects the older
ticket with SUPERSEDED and revokes its scheduled dispatch. If a pending
task shares the key, its abort signal trips with SUPERSEDED; the handler
is expected to observe the signal and return promptly, but even a handler
that runs to completion has its result discarded.

# Scheduling

Each queue has a default scheduler (Async) and each task may override it.
A Scheduler receives a flush function and returns an optional cancel; the
queue guarantees flush idempotence and invokes the cancel whenever a task
is revoked before dispatch. Delay defers dispatch by a duration and
ManualScheduler holds dispatches for explicit release in tests.

# Bookkeeping

Every dispatch publishes a pending Record into the tasks map, and every
settlement replaces it — unless a newer task already took over the key,
in which case the stale settlement is dropped (last-writer-wins by task
id). Listeners registered with Subscribe observe the map after every
change; listener panics are caught and logged.

# Settlement order

The caller's ticket settles strictly before the settlement record is
published, so code that awaits a ticket and then reads Tasks() sees the
record of its own task or a newer one, never an older state.
*/
package queue
