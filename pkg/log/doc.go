/*
Package log provides structured logging for playcore using zerolog.

The log package wraps the zerolog library to provide JSON-structured
logging with configurable log levels and child loggers scoped to the
core's domain objects: components, store instances, features, tasks and
requests. All logs include timestamps and support filtering by severity
level.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                           │
	│  ┌────────────────────────────────────────────┐           │
	│  │            Global Logger                   │           │
	│  │  - Zerolog instance                        │           │
	│  │  - Initialized via log.Init()              │           │
	│  │  - Thread-safe for concurrent use          │           │
	│  └──────────────────┬─────────────────────────┘           │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐           │
	│  │           Configuration                    │           │
	│  │  - Level: debug/info/warn/error            │           │
	│  │  - Format: JSON or console (human)         │           │
	│  │  - Output: stdout, file, or custom writer  │           │
	│  └──────────────────┬─────────────────────────┘           │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐           │
	│  │         Component Loggers                  │           │
	│  │  - WithComponent("queue")                  │           │
	│  │  - WithStore("6f1c...")                    │           │
	│  │  - WithFeature("playback")                 │           │
	│  │  - WithTask("a1b2c3", "play")              │           │
	│  │  - WithRequest("seek")                     │           │
	│  └────────────────────────────────────────────┘           │
	└───────────────────────────────────────────────────────────┘

# Usage

Initializing:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
	})

Component loggers:

	logger := log.WithComponent("queue")
	logger.Debug().Str("key", "play").Msg("Task dispatched")

# Integration Points

This package is used by:

  - pkg/state: subscriber panic reporting
  - pkg/queue: task lifecycle and listener failures
  - pkg/store: request failures and feature subscription errors
  - pkg/config: applying the configured log level

The core only logs failures it swallows by contract (subscriber and
listener exceptions) plus debug-level lifecycle traces; request errors
additionally surface to callers through the error path.
*/
package log
