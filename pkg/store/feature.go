package store

import (
	"context"
	"fmt"

	"github.com/cueframe/playcore/pkg/guard"
	"github.com/cueframe/playcore/pkg/meta"
	"github.com/cueframe/playcore/pkg/queue"
	"github.com/cueframe/playcore/pkg/state"
)

// SnapshotContext is handed to a feature's GetSnapshot. Snapshot
// derivation must be pure with respect to the target: no I/O, no target
// mutation.
type SnapshotContext[T any] struct {
	Target       T
	InitialState state.Snapshot
}

// SubscribeContext is handed to a feature's Subscribe on attach. The
// feature registers target listeners scoped to Ctx and translates target
// events into Set (direct patch) or Update (full slice resync) calls.
// Both become no-ops once Ctx is cancelled.
type SubscribeContext[T any] struct {
	Target T

	// Ctx is the per-attach signal; listener teardown keys off it
	Ctx context.Context

	// Get returns the current merged store state
	Get func() state.Snapshot

	// Set patches the store state directly
	Set func(state.Snapshot)

	// Update re-derives this feature's slice via GetSnapshot and patches it
	Update func()
}

// RequestContext is handed to request handlers alongside the task signal
type RequestContext[T any] struct {
	Target T
	Meta   *meta.Meta
}

// HandlerFunc executes a request. ctx is the task's abort signal.
type HandlerFunc[T any] func(ctx context.Context, rc RequestContext[T], input any) (any, error)

// RequestConfig declares one request of a feature. Only Handler is
// required; everything else defaults.
type RequestConfig[T any] struct {
	// Key selects the serialization slot; defaults to the request name.
	// KeyFunc derives it from the input instead and wins over Key.
	Key     queue.Key
	KeyFunc func(input any) queue.Key

	// Guard is a single precondition; Guards an ordered list. Set one or
	// the other.
	Guard  guard.Guard[T]
	Guards []guard.Guard[T]

	// Cancel lists keys aborted before this request enqueues. CancelFunc
	// derives the list from the input and wins over Cancel.
	Cancel     []queue.Key
	CancelFunc func(input any) []queue.Key

	// Schedule overrides the queue's default scheduler for this request
	Schedule queue.Scheduler

	Handler HandlerFunc[T]
}

// Request wraps a bare handler into a RequestConfig, for features whose
// requests need no key, guard or cancel configuration.
func Request[T any](h HandlerFunc[T]) RequestConfig[T] {
	return RequestConfig[T]{Handler: h}
}

// Feature is a self-contained bundle of state slice, snapshot derivation,
// target subscription and request handlers. Features are read-only
// configuration; per-attach resources belong in Subscribe, torn down via
// its signal.
type Feature[T any] struct {
	// Name identifies the feature in errors and logs
	Name string

	// InitialState declares the slice's key set and initial values
	InitialState state.Snapshot

	// GetSnapshot derives the slice from the current target
	GetSnapshot func(SnapshotContext[T]) state.Snapshot

	// Subscribe registers target listeners for the current attach
	Subscribe func(SubscribeContext[T])

	// Requests maps request names to their configs
	Requests map[string]RequestConfig[T]
}

// normalizedRequest is the construction-time resolution of a
// RequestConfig: key resolution, guard list and cancel list all in one
// callable shape.
type normalizedRequest[T any] struct {
	name     string
	feature  string
	key      queue.Key
	keyFunc  func(input any) queue.Key
	guards   []guard.Guard[T]
	cancel   func(input any) []queue.Key
	schedule queue.Scheduler
	handler  HandlerFunc[T]
}

func normalizeRequest[T any](featureName, name string, cfg RequestConfig[T]) (normalizedRequest[T], error) {
	var n normalizedRequest[T]
	if cfg.Handler == nil {
		return n, fmt.Errorf("feature %s: request %s has no handler", featureName, name)
	}
	if cfg.Guard != nil && cfg.Guards != nil {
		return n, fmt.Errorf("feature %s: request %s sets both Guard and Guards", featureName, name)
	}

	n.name = name
	n.feature = featureName
	n.handler = cfg.Handler
	n.schedule = cfg.Schedule

	n.keyFunc = cfg.KeyFunc
	n.key = cfg.Key
	if n.key == "" {
		n.key = queue.Key(name)
	}

	if cfg.Guard != nil {
		n.guards = []guard.Guard[T]{cfg.Guard}
	} else {
		n.guards = cfg.Guards
	}

	switch {
	case cfg.CancelFunc != nil:
		n.cancel = cfg.CancelFunc
	case len(cfg.Cancel) > 0:
		keys := append([]queue.Key(nil), cfg.Cancel...)
		n.cancel = func(any) []queue.Key { return keys }
	}
	return n, nil
}

func (n *normalizedRequest[T]) resolveKey(input any) queue.Key {
	if n.keyFunc != nil {
		return n.keyFunc(input)
	}
	return n.key
}

func (n *normalizedRequest[T]) cancelKeys(input any) []queue.Key {
	if n.cancel == nil {
		return nil
	}
	return n.cancel(input)
}
