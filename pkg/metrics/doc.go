/*
Package metrics provides Prometheus instrumentation for playcore.

The metrics package defines the core's collectors using the Prometheus
client library, giving embedders observability into task throughput,
request outcomes and state fan-out. The core never self-registers and
never serves HTTP: the host calls Register (or MustRegister) against the
registry it owns, and exposition belongs to the host application.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                           │
	│  ┌────────────────────────────────────────────┐           │
	│  │          Host Registry                     │           │
	│  │  - metrics.Register(r) at host startup     │           │
	│  │  - unregistered collectors still count     │           │
	│  └──────────────────┬─────────────────────────┘           │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐           │
	│  │          Emitting Sites                    │           │
	│  │  - pkg/queue: enqueue, supersede, settle,  │           │
	│  │    task duration, queued/pending gauges    │           │
	│  │  - pkg/store: requests, failures by code,  │           │
	│  │    request duration, attached gauge        │           │
	│  │  - pkg/state: delivered notifications      │           │
	│  └────────────────────────────────────────────┘           │
	└───────────────────────────────────────────────────────────┘

# Metrics Catalog

Queue:
  - playcore_tasks_enqueued_total
  - playcore_tasks_superseded_total
  - playcore_tasks_settled_total{status}
  - playcore_task_duration_seconds
  - playcore_queued_tasks, playcore_pending_tasks

Store:
  - playcore_requests_total{request}
  - playcore_request_failures_total{request,code}
  - playcore_request_duration_seconds{request}
  - playcore_stores_attached

State:
  - playcore_state_notifications_total

# Usage

Registering at host startup:

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}

Timing an operation:

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.RequestDuration, "play")

Hosts expose their registry however they already expose the rest of
their metrics (promhttp, push gateway, and so on).
*/
package metrics
