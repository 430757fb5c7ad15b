/*
Package store composes features over an observable target.

A Feature bundles a state slice, a snapshot function, a target
subscription and a set of request handlers. A Store merges a feature
list, owns the reactive state container and the task queue, manages the
attach/detach lifecycle and routes requests through guards and the queue.

# Lifecycle

	setup (no target) ──Attach(t)──► attached ──Attach(t')──► re-attached
	        ▲                            │
	        └────────── detach ◄─────────┘
	                      │
	                 Destroy (terminal)

Attach resets state to the merged initial mapping, runs every feature's
Subscribe with a context scoped to this attach, then performs the full
snapshot sync — subscriptions first, so no feature observes a
pre-snapshot state. Detach aborts the per-attach context (tearing down
feature listeners), rejects in-flight tasks with DETACHED, clears the
target and resets state. Destroy is detach plus permanent rejection of
further attaches and requests with DESTROYED.

# Requests

	out, err := s.Request("seek", 42.0, meta.User("scrubber"))

Request resolution: the configured key (static or derived from input) is
resolved, cancel-keys are aborted, and a task is enqueued whose handler
checks for a target (NO_TARGET), runs guards in order (REJECTED,
TIMEOUT), then invokes the feature's handler with the target, signal and
stamped meta. Every rejection routes through OnError before surfacing to
the caller. Dispatch is the non-blocking variant returning the queue
ticket.

# Observation

The store re-exports the state container's subscription surface
(Subscribe, SubscribeKeys, SubscribeSelector, Watch) and exposes the
queue for task introspection. The feature array itself is available via
Features for adapters that reflect over composed capabilities.
*/
package store
