package state

import (
	"math"
	"reflect"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cueframe/playcore/pkg/log"
	"github.com/cueframe/playcore/pkg/metrics"
)

// Snapshot is a detached copy of the container's key/value mapping.
// Callers may read it freely; mutating it never affects the container.
type Snapshot map[string]any

// ChangeSet describes one committed flush: the keys that changed and the
// state as of the commit.
type ChangeSet struct {
	Keys  []string
	State Snapshot
}

// Unsubscribe removes a subscription. Calling it more than once is a no-op.
type Unsubscribe func()

// Watcher receives one ChangeSet per flush. Delivery is non-blocking: a
// watcher that falls behind its buffer misses change sets.
type Watcher chan ChangeSet

// SelectorOption tunes a selector subscription
type SelectorOption func(*subscriber)

// WithEquality overrides the equality function used to decide whether a
// selector's result changed between flushes.
func WithEquality(eq func(prev, next any) bool) SelectorOption {
	return func(s *subscriber) {
		s.eq = eq
	}
}

type subscriber struct {
	id     int
	keys   map[string]struct{} // nil means every key
	fn     func(Snapshot)
	sel    func(Snapshot) any
	selFn  func(any)
	eq     func(prev, next any) bool
	last   any
	active bool
}

// Container is an equality-gated reactive mapping with batched
// notifications. Mutations mark keys pending and arm an asynchronous
// flush; all mutations landing before the flush runs coalesce into at
// most one notification per subscriber. Safe for concurrent use.
type Container struct {
	// flushMu serializes whole drains so a synchronous Flush returns only
	// after any in-progress asynchronous drain has delivered. Never call
	// Flush from inside a subscriber callback.
	flushMu sync.Mutex

	mu         sync.Mutex
	values     map[string]any
	base       map[string]any // pre-batch value per pending key
	baseHad    map[string]bool
	subs       map[int]*subscriber
	nextSubID  int
	watchers   map[Watcher]struct{}
	flushArmed bool
	batchDepth int
	closed     bool
	logger     zerolog.Logger
}

// New creates a container seeded with initial. The initial mapping is
// copied; the caller keeps ownership of its map.
func New(initial Snapshot) *Container {
	values := make(map[string]any, len(initial))
	for k, v := range initial {
		values[k] = v
	}
	return &Container{
		values:   values,
		base:     make(map[string]any),
		baseHad:  make(map[string]bool),
		subs:     make(map[int]*subscriber),
		watchers: make(map[Watcher]struct{}),
		logger:   log.WithComponent("state"),
	}
}

// Current returns a snapshot of the mapping
func (c *Container) Current() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.copyLocked()
}

// Get returns the value stored under key
func (c *Container) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok
}

// Set stores value under key. Storing a value equal to the current one
// (under SameValue) is a no-op and produces no notification.
func (c *Container) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.setLocked(key, value)
}

// Patch applies every entry of partial as a Set, arming a single flush
func (c *Container) Patch(partial Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for k, v := range partial {
		c.setLocked(k, v)
	}
}

// Delete removes key from the mapping, notifying if it was present
func (c *Container) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	prev, ok := c.values[key]
	if !ok {
		return
	}
	c.touchLocked(key, prev, true)
	delete(c.values, key)
	c.armLocked()
}

func (c *Container) setLocked(key string, value any) {
	prev, ok := c.values[key]
	if ok && SameValue(prev, value) {
		return
	}
	c.touchLocked(key, prev, ok)
	c.values[key] = value
	c.armLocked()
}

// touchLocked records the pre-batch value the first time a key is dirtied
// within a batch, so a later write back to that value cancels out.
func (c *Container) touchLocked(key string, prev any, had bool) {
	if _, dirty := c.baseHad[key]; dirty {
		return
	}
	c.base[key] = prev
	c.baseHad[key] = had
}

func (c *Container) armLocked() {
	if c.flushArmed || c.batchDepth > 0 {
		return
	}
	c.flushArmed = true
	go c.drain()
}

// Batch suspends flush scheduling until fn returns. Mutations made inside
// fn coalesce with any already pending. Batches nest.
func (c *Container) Batch(fn func()) {
	c.mu.Lock()
	c.batchDepth++
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.batchDepth--
		if c.batchDepth == 0 && len(c.baseHad) > 0 {
			c.armLocked()
		}
		c.mu.Unlock()
	}()
	fn()
}

// Flush synchronously drains pending notifications. A flush with no
// pending changes is a no-op. Intended as a test hook; production callers
// can rely on the armed asynchronous flush.
func (c *Container) Flush() {
	c.drain()
}

// Subscribe registers fn for every flush in which any key changed
func (c *Container) Subscribe(fn func(Snapshot)) Unsubscribe {
	return c.add(&subscriber{fn: fn})
}

// SubscribeKeys registers fn for flushes in which at least one of keys
// changed. The subscriber fires once per flush no matter how many of its
// keys were touched.
func (c *Container) SubscribeKeys(keys []string, fn func(Snapshot)) Unsubscribe {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return c.add(&subscriber{keys: set, fn: fn})
}

// SubscribeSelector computes sel over the state after each flush and
// invokes fn when the result changed. When the initial result is a
// Snapshot (or map[string]any) the subscription set is inferred from its
// top-level keys; otherwise the subscription covers every key. Equality
// defaults to SameValue, applied per key for map results. A selector must
// derive its result from the snapshot it is handed, not from the
// container.
func (c *Container) SubscribeSelector(sel func(Snapshot) any, fn func(any), opts ...SelectorOption) Unsubscribe {
	sub := &subscriber{sel: sel, selFn: fn, eq: equalSelection}
	for _, opt := range opts {
		opt(sub)
	}

	initial := sel(c.Current())
	sub.last = initial
	if m := asKeyed(initial); m != nil {
		keys := make(map[string]struct{}, len(m))
		for k := range m {
			keys[k] = struct{}{}
		}
		sub.keys = keys
	}

	return c.add(sub)
}

func (c *Container) add(sub *subscriber) Unsubscribe {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return func() {}
	}
	sub.id = c.nextSubID
	sub.active = true
	c.nextSubID++
	c.subs[sub.id] = sub

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			sub.active = false
			delete(c.subs, sub.id)
			c.mu.Unlock()
		})
	}
}

// Watch returns a channel receiving one ChangeSet per flush, in the
// manner of an event broker subscription. Unwatch closes it.
func (c *Container) Watch() Watcher {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := make(Watcher, 16)
	if c.closed {
		close(w)
		return w
	}
	c.watchers[w] = struct{}{}
	return w
}

// Unwatch removes a watcher and closes its channel
func (c *Container) Unwatch(w Watcher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.watchers[w]; !ok {
		return
	}
	delete(c.watchers, w)
	close(w)
}

// Close tears the container down: watcher channels close, subscriptions
// drop and further mutations are ignored.
func (c *Container) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for w := range c.watchers {
		close(w)
	}
	c.watchers = make(map[Watcher]struct{})
	for _, sub := range c.subs {
		sub.active = false
	}
	c.subs = make(map[int]*subscriber)
	c.base = make(map[string]any)
	c.baseHad = make(map[string]bool)
}

type invocation struct {
	sub  *subscriber
	snap Snapshot
	next any // selector result, when sub.sel != nil
}

func (c *Container) drain() {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	c.mu.Lock()
	c.flushArmed = false
	if c.closed || c.batchDepth > 0 || len(c.baseHad) == 0 {
		c.mu.Unlock()
		return
	}

	// Commit the batch: keys whose final value still differs from the
	// pre-batch value under SameValue. A batch that nets out to the prior
	// state notifies nobody.
	changed := make([]string, 0, len(c.baseHad))
	for key, had := range c.baseHad {
		cur, ok := c.values[key]
		if ok != had || !SameValue(c.base[key], cur) {
			changed = append(changed, key)
		}
	}
	c.base = make(map[string]any)
	c.baseHad = make(map[string]bool)
	if len(changed) == 0 {
		c.mu.Unlock()
		return
	}
	sort.Strings(changed)

	snap := c.copyLocked()
	changedSet := make(map[string]struct{}, len(changed))
	for _, k := range changed {
		changedSet[k] = struct{}{}
	}

	var calls []invocation
	ids := make([]int, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		sub := c.subs[id]
		if !sub.intersects(changedSet) {
			continue
		}
		if sub.sel == nil {
			calls = append(calls, invocation{sub: sub, snap: snap})
			continue
		}
		next := sub.sel(snap)
		if sub.eq(sub.last, next) {
			continue
		}
		sub.last = next
		calls = append(calls, invocation{sub: sub, snap: snap, next: next})
	}

	change := ChangeSet{Keys: changed, State: snap}
	for w := range c.watchers {
		select {
		case w <- change:
		default:
			// Watcher buffer full, skip
		}
	}
	c.mu.Unlock()

	for _, call := range calls {
		c.mu.Lock()
		active := call.sub.active
		c.mu.Unlock()
		if !active {
			// Unsubscribed mid-flush; no further calls, even within
			// this flush.
			continue
		}
		c.invoke(call)
	}
}

func (c *Container) invoke(call invocation) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Msg("State subscriber panicked")
		}
	}()
	metrics.StateNotifications.Inc()
	if call.sub.sel != nil {
		call.sub.selFn(call.next)
		return
	}
	call.sub.fn(call.snap)
}

func (s *subscriber) intersects(changed map[string]struct{}) bool {
	if s.keys == nil {
		return true
	}
	for k := range s.keys {
		if _, ok := changed[k]; ok {
			return true
		}
	}
	return false
}

func (c *Container) copyLocked() Snapshot {
	snap := make(Snapshot, len(c.values))
	for k, v := range c.values {
		snap[k] = v
	}
	return snap
}

// SameValue reports value equality in the manner of identity comparison:
// comparable values compare with ==, NaN equals NaN, and slices, maps and
// functions compare by reference.
func SameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := a.(float64); ok {
		if fb, ok := b.(float64); ok && math.IsNaN(fa) && math.IsNaN(fb) {
			return true
		}
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		return a == b
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	switch va.Kind() {
	case reflect.Slice, reflect.Map:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	case reflect.Func:
		return va.Pointer() == vb.Pointer()
	default:
		return false
	}
}

func asKeyed(v any) map[string]any {
	switch m := v.(type) {
	case Snapshot:
		return m
	case map[string]any:
		return m
	default:
		return nil
	}
}

func equalSelection(prev, next any) bool {
	pm, nm := asKeyed(prev), asKeyed(next)
	if pm == nil || nm == nil {
		return SameValue(prev, next)
	}
	if len(pm) != len(nm) {
		return false
	}
	for k, pv := range pm {
		nv, ok := nm[k]
		if !ok || !SameValue(pv, nv) {
			return false
		}
	}
	return true
}
