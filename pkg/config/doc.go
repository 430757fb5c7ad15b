/*
Package config loads embedder-facing tuning from YAML.

The core itself is configured in code (queue.Config, store.Config); this
package gives host applications a declarative layer over the same knobs:

	cfg, err := config.Load("playcore.yaml")
	if err != nil {
		return err
	}
	cfg.Log.Apply()
	q := queue.New(queue.Config{Scheduler: cfg.Queue.BuildScheduler()})

A config file looks like:

	log:
	  level: debug
	  json: true
	queue:
	  scheduler: delay
	  delayMs: 16
	store:
	  allowOverlap: false
	  guardTimeoutMs: 1000

Every field defaults sensibly; an empty document yields Default().
*/
package config
