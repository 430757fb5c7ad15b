package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cueframe/playcore/pkg/errs"
	"github.com/cueframe/playcore/pkg/guard"
	"github.com/cueframe/playcore/pkg/log"
	"github.com/cueframe/playcore/pkg/meta"
	"github.com/cueframe/playcore/pkg/metrics"
	"github.com/cueframe/playcore/pkg/queue"
	"github.com/cueframe/playcore/pkg/state"
)

// ErrorEvent carries a failure to the store's OnError hook. Request is
// empty for errors originating outside the request path (feature
// subscribe and snapshot failures).
type ErrorEvent[T any] struct {
	Store   *Store[T]
	Request string
	Err     error
}

// Config holds store configuration
type Config[T any] struct {
	// Features composed into this store
	Features []Feature[T]

	// Queue to route requests through; the store creates and owns one
	// when nil. A provided queue is owned by the store from then on.
	Queue *queue.Queue

	// State overlays the merged feature initial state
	State state.Snapshot

	// OnSetup runs once at construction, after the setup signal exists
	OnSetup func(*Store[T])

	// OnAttach runs on every attach with the per-attach signal
	OnAttach func(ctx context.Context, target T)

	// OnError observes every request rejection and every swallowed
	// feature error
	OnError func(ErrorEvent[T])

	// AllowOverlap permits feature slices to share state keys, merged
	// last-wins in feature order. Overlap is a construction error
	// otherwise.
	AllowOverlap bool
}

// Detach undoes an Attach. Idempotent, and a no-op once a newer attach
// replaced the one it belongs to.
type Detach func()

// Store binds features to an observable target. It owns its state
// container and queue, manages the attach/detach lifecycle and exposes
// the typed request surface.
type Store[T any] struct {
	mu       sync.Mutex
	id       string
	cfg      Config[T]
	features []Feature[T]
	requests map[string]normalizedRequest[T]
	initial  state.Snapshot
	st       *state.Container
	q        *queue.Queue
	logger   zerolog.Logger

	setupCtx    context.Context
	setupCancel context.CancelCauseFunc

	target       T
	hasTarget    bool
	attachGen    int
	attachCancel context.CancelCauseFunc

	destroyed bool
}

// New composes features into a store. Construction fails on overlapping
// slice keys (unless AllowOverlap), duplicate request names and requests
// without handlers.
func New[T any](cfg Config[T]) (*Store[T], error) {
	initial := make(state.Snapshot)
	owner := make(map[string]string)
	for _, f := range cfg.Features {
		for k, v := range f.InitialState {
			if prev, taken := owner[k]; taken && !cfg.AllowOverlap {
				return nil, fmt.Errorf("state key %q declared by both %s and %s", k, prev, f.Name)
			}
			owner[k] = f.Name
			initial[k] = v
		}
	}
	for k, v := range cfg.State {
		initial[k] = v
	}

	requests := make(map[string]normalizedRequest[T])
	for _, f := range cfg.Features {
		for name, rc := range f.Requests {
			if prev, taken := requests[name]; taken {
				return nil, fmt.Errorf("request %q declared by both %s and %s", name, prev.feature, f.Name)
			}
			n, err := normalizeRequest(f.Name, name, rc)
			if err != nil {
				return nil, err
			}
			requests[name] = n
		}
	}

	q := cfg.Queue
	if q == nil {
		q = queue.New(queue.Config{})
	}

	setupCtx, setupCancel := context.WithCancelCause(context.Background())
	id := uuid.New().String()
	s := &Store[T]{
		id:          id,
		cfg:         cfg,
		features:    append([]Feature[T](nil), cfg.Features...),
		requests:    requests,
		initial:     initial,
		st:          state.New(initial),
		q:           q,
		logger:      log.WithStore(id),
		setupCtx:    setupCtx,
		setupCancel: setupCancel,
	}
	if cfg.OnSetup != nil {
		cfg.OnSetup(s)
	}
	return s, nil
}

// Attach binds the store to target. A previous target is detached first.
// Feature subscriptions run before the initial snapshot sync, so no
// feature can observe a pre-snapshot state. The returned Detach tears
// this attach down.
func (s *Store[T]) Attach(target T) (Detach, error) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return nil, errs.New(errs.Destroyed, "store destroyed")
	}
	prevGen, hadTarget := s.attachGen, s.hasTarget
	s.mu.Unlock()

	if hadTarget {
		s.detach(prevGen, errs.New(errs.Detached, "target replaced"))
	}

	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return nil, errs.New(errs.Destroyed, "store destroyed")
	}
	attachCtx, attachCancel := context.WithCancelCause(s.setupCtx)
	s.attachGen++
	gen := s.attachGen
	s.target = target
	s.hasTarget = true
	s.attachCancel = attachCancel
	s.mu.Unlock()

	s.resetState()

	for i := range s.features {
		f := &s.features[i]
		if f.Subscribe == nil {
			continue
		}
		s.subscribeFeature(f, target, attachCtx)
	}

	if s.cfg.OnAttach != nil {
		s.cfg.OnAttach(attachCtx, target)
	}

	// Full sync after all subscriptions are in place
	for i := range s.features {
		s.resync(&s.features[i], target)
	}

	metrics.StoresAttached.Inc()
	s.logger.Debug().Int("features", len(s.features)).Msg("Store attached")

	return func() {
		s.detach(gen, errs.New(errs.Detached, "store detached"))
	}, nil
}

func (s *Store[T]) subscribeFeature(f *Feature[T], target T, attachCtx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.featureError(f.Name, fmt.Errorf("subscribe panicked: %v", r))
		}
	}()
	f.Subscribe(SubscribeContext[T]{
		Target: target,
		Ctx:    attachCtx,
		Get:    s.st.Current,
		Set: func(partial state.Snapshot) {
			if attachCtx.Err() != nil {
				return
			}
			s.st.Patch(partial)
		},
		Update: func() {
			if attachCtx.Err() != nil {
				return
			}
			s.resync(f, target)
		},
	})
}

// resync re-derives one feature's slice from the target and patches it in
func (s *Store[T]) resync(f *Feature[T], target T) {
	if f.GetSnapshot == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.featureError(f.Name, fmt.Errorf("snapshot panicked: %v", r))
		}
	}()
	s.st.Patch(f.GetSnapshot(SnapshotContext[T]{Target: target, InitialState: f.InitialState}))
}

// detach tears down the attach identified by gen; gen < 0 forces the
// current one. Aborts the per-attach signal, cancels in-flight work with
// cause, clears the target and resets state.
func (s *Store[T]) detach(gen int, cause *errs.Error) {
	s.mu.Lock()
	if !s.hasTarget || (gen >= 0 && gen != s.attachGen) {
		s.mu.Unlock()
		return
	}
	cancel := s.attachCancel
	var zero T
	s.target = zero
	s.hasTarget = false
	s.attachCancel = nil
	s.mu.Unlock()

	cancel(cause)
	s.q.AbortAllWith(cause)
	s.resetState()
	metrics.StoresAttached.Dec()
	s.logger.Debug().Str("cause", string(cause.Code)).Msg("Store detached")
}

// resetState returns the container to the merged initial mapping,
// removing any keys features patched in beyond their declared slices.
func (s *Store[T]) resetState() {
	s.st.Batch(func() {
		for k := range s.st.Current() {
			if _, ok := s.initial[k]; !ok {
				s.st.Delete(k)
			}
		}
		s.st.Patch(s.initial)
	})
}

// Request issues the named request and blocks until it settles. A nil
// meta is stamped as a system request; meta never outlives the request.
func (s *Store[T]) Request(name string, input any, m *meta.Meta) (any, error) {
	timer := metrics.NewTimer()
	ticket, err := s.dispatch(name, input, m)
	if err != nil {
		s.finishRequest(name, timer, err)
		return nil, err
	}
	out, err := ticket.Result()
	s.finishRequest(name, timer, err)
	return out, err
}

// Dispatch issues the named request without blocking, returning the
// queue ticket. Settlement errors still route through OnError.
func (s *Store[T]) Dispatch(name string, input any, m *meta.Meta) (*queue.Ticket, error) {
	timer := metrics.NewTimer()
	ticket, err := s.dispatch(name, input, m)
	if err != nil {
		s.finishRequest(name, timer, err)
		return nil, err
	}
	go func() {
		<-ticket.Done()
		_, terr := ticket.Result()
		s.finishRequest(name, timer, terr)
	}()
	return ticket, nil
}

func (s *Store[T]) dispatch(name string, input any, m *meta.Meta) (*queue.Ticket, error) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return nil, errs.New(errs.Destroyed, "store destroyed")
	}
	req, ok := s.requests[name]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown request %q", name)
	}

	if !meta.IsStamped(m) {
		if m == nil {
			m = meta.System("request:" + name)
		} else {
			m = meta.Stamp(*m)
		}
	}
	metrics.RequestsTotal.WithLabelValues(name).Inc()

	key := req.resolveKey(input)
	// Cancel-keys abort before the new task enqueues, so a request can
	// never be cancelled by its own cancel list.
	for _, ck := range req.cancelKeys(input) {
		s.q.Abort(ck)
	}

	handler := func(ctx context.Context, in any) (any, error) {
		s.mu.Lock()
		target, attached := s.target, s.hasTarget
		s.mu.Unlock()
		if !attached {
			return nil, errs.Newf(errs.NoTarget, "request %s issued with no target attached", name)
		}
		for _, g := range req.guards {
			if err := guard.Check(ctx, target, g); err != nil {
				return nil, err
			}
		}
		return req.handler(ctx, RequestContext[T]{Target: target, Meta: m}, in)
	}

	return s.q.Enqueue(queue.Task{
		Name:     name,
		Key:      key,
		Input:    input,
		Meta:     m,
		Handler:  handler,
		Schedule: req.schedule,
	}), nil
}

// finishRequest records metrics for a settled request and routes its
// error, if any
func (s *Store[T]) finishRequest(name string, timer *metrics.Timer, err error) {
	timer.ObserveDurationVec(metrics.RequestDuration, name)
	if err == nil {
		return
	}
	code := "handler"
	if c, ok := errs.CodeOf(err); ok {
		code = string(c)
	}
	metrics.RequestFailures.WithLabelValues(name, code).Inc()
	s.routeError(name, err)
}

func (s *Store[T]) routeError(request string, err error) {
	requestLog := log.WithRequest(request)
	switch code, _ := errs.CodeOf(err); code {
	case errs.NoTarget:
		requestLog.Error().Err(err).Msg("Request issued before attach")
	case errs.Rejected, errs.Timeout:
		requestLog.Warn().Err(err).Msg("Request precondition failed")
	default:
		requestLog.Debug().Err(err).Msg("Request did not complete")
	}
	s.emitError(ErrorEvent[T]{Store: s, Request: request, Err: err})
}

func (s *Store[T]) featureError(feature string, err error) {
	featureLog := log.WithFeature(feature)
	featureLog.Error().Str("store_id", s.id).Err(err).Msg("Feature error")
	s.emitError(ErrorEvent[T]{Store: s, Err: fmt.Errorf("feature %s: %w", feature, err)})
}

func (s *Store[T]) emitError(ev ErrorEvent[T]) {
	if s.cfg.OnError == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("OnError hook panicked")
		}
	}()
	s.cfg.OnError(ev)
}

// State returns the current merged state snapshot
func (s *Store[T]) State() state.Snapshot {
	return s.st.Current()
}

// Target returns the attached target, if any
func (s *Store[T]) Target() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target, s.hasTarget
}

// Queue returns the store's queue for task introspection
func (s *Store[T]) Queue() *queue.Queue {
	return s.q
}

// Features returns the composed feature list
func (s *Store[T]) Features() []Feature[T] {
	return append([]Feature[T](nil), s.features...)
}

// RequestNames returns the sorted names of every composed request
func (s *Store[T]) RequestNames() []string {
	names := make([]string, 0, len(s.requests))
	for name := range s.requests {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Subscribe registers fn for every state flush with changes
func (s *Store[T]) Subscribe(fn func(state.Snapshot)) state.Unsubscribe {
	return s.st.Subscribe(fn)
}

// SubscribeKeys registers fn for flushes touching any of keys
func (s *Store[T]) SubscribeKeys(keys []string, fn func(state.Snapshot)) state.Unsubscribe {
	return s.st.SubscribeKeys(keys, fn)
}

// SubscribeSelector registers a selector subscription over the state
func (s *Store[T]) SubscribeSelector(sel func(state.Snapshot) any, fn func(any), opts ...state.SelectorOption) state.Unsubscribe {
	return s.st.SubscribeSelector(sel, fn, opts...)
}

// Watch returns a channel receiving one ChangeSet per state flush
func (s *Store[T]) Watch() state.Watcher {
	return s.st.Watch()
}

// Unwatch removes a watcher and closes its channel
func (s *Store[T]) Unwatch(w state.Watcher) {
	s.st.Unwatch(w)
}

// FlushState synchronously drains pending state notifications (test hook)
func (s *Store[T]) FlushState() {
	s.st.Flush()
}

// Destroy tears the store down: the setup signal aborts, in-flight work
// rejects with DESTROYED, the target detaches and further Attach and
// request calls reject. Idempotent; terminal.
func (s *Store[T]) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	s.mu.Unlock()

	cause := errs.New(errs.Destroyed, "store destroyed")
	s.setupCancel(cause)
	s.q.AbortAllWith(cause)
	s.q.Destroy()
	s.detach(-1, cause)
	s.st.Close()
	s.logger.Debug().Msg("Store destroyed")
}

// Destroyed reports whether Destroy ran
func (s *Store[T]) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}
