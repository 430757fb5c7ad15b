package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cueframe/playcore/pkg/log"
	"github.com/cueframe/playcore/pkg/queue"
)

// Config is the embedder-facing tuning surface, loadable from YAML.
// Every field has a working default; an empty document is valid.
type Config struct {
	Log   LogConfig   `yaml:"log"`
	Queue QueueConfig `yaml:"queue"`
	Store StoreConfig `yaml:"store"`
}

// LogConfig tunes the global logger
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	JSON  bool   `yaml:"json"`
}

// QueueConfig tunes task scheduling
type QueueConfig struct {
	// Scheduler is async or delay
	Scheduler string `yaml:"scheduler"`

	// DelayMS applies when Scheduler is delay
	DelayMS int `yaml:"delayMs"`
}

// StoreConfig tunes store construction
type StoreConfig struct {
	// AllowOverlap permits feature slices to share state keys
	AllowOverlap bool `yaml:"allowOverlap"`

	// GuardTimeoutMS bounds guard evaluation when an embedder wraps its
	// guards with the configured bound; zero means no bound
	GuardTimeoutMS int `yaml:"guardTimeoutMs"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Log:   LogConfig{Level: "info"},
		Queue: QueueConfig{Scheduler: "async"},
	}
}

// Parse reads a Config from YAML, applying defaults for absent fields
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads a Config from a YAML file
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Validate checks field values
func (c Config) Validate() error {
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	switch c.Queue.Scheduler {
	case "", "async", "delay":
	default:
		return fmt.Errorf("invalid queue scheduler %q", c.Queue.Scheduler)
	}
	if c.Queue.DelayMS < 0 {
		return fmt.Errorf("queue delayMs must not be negative")
	}
	if c.Store.GuardTimeoutMS < 0 {
		return fmt.Errorf("store guardTimeoutMs must not be negative")
	}
	return nil
}

// BuildScheduler returns the scheduler this config describes
func (c QueueConfig) BuildScheduler() queue.Scheduler {
	if c.Scheduler == "delay" {
		return queue.Delay(time.Duration(c.DelayMS) * time.Millisecond)
	}
	return queue.Async()
}

// GuardTimeout returns the configured guard bound, zero when unset
func (c StoreConfig) GuardTimeout() time.Duration {
	return time.Duration(c.GuardTimeoutMS) * time.Millisecond
}

// Apply initializes the global logger from the log section
func (c LogConfig) Apply() {
	log.Init(log.Config{
		Level:      log.Level(c.Level),
		JSONOutput: c.JSON,
	})
}
