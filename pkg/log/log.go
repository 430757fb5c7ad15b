package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the root logger every component derives its child from.
// Zero-valued until Init runs, which silently drops all events; hosts
// that want core logs call Init (directly or through pkg/config).
var Logger zerolog.Logger

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

func (l Level) zerologLevel() zerolog.Level {
	switch l {
	case DebugLevel:
		return zerolog.DebugLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the root logger
func Init(cfg Config) {
	zerolog.SetGlobalLevel(cfg.Level.zerologLevel())

	var out io.Writer = os.Stdout
	if cfg.Output != nil {
		out = cfg.Output
	}
	if !cfg.JSONOutput {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}
	Logger = zerolog.New(out).With().Timestamp().Logger()
}

// WithComponent creates a child logger for one core component
// (state, queue, store)
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithStore creates a child logger scoped to one store instance
func WithStore(storeID string) zerolog.Logger {
	return Logger.With().Str("component", "store").Str("store_id", storeID).Logger()
}

// WithFeature creates a child logger carrying the feature name
func WithFeature(feature string) zerolog.Logger {
	return Logger.With().Str("feature", feature).Logger()
}

// WithTask creates a child logger carrying a task's id and key
func WithTask(taskID, key string) zerolog.Logger {
	return Logger.With().Str("task_id", taskID).Str("key", key).Logger()
}

// WithRequest creates a child logger carrying the request name
func WithRequest(request string) zerolog.Logger {
	return Logger.With().Str("request", request).Logger()
}
