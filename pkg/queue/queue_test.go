package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cueframe/playcore/pkg/errs"
)

func resolveWith(v any) Handler {
	return func(ctx context.Context, input any) (any, error) {
		return v, nil
	}
}

// waitCancel blocks until the signal trips, recording that it observed
// the abort
func waitCancel(observed *atomic.Bool) Handler {
	return func(ctx context.Context, input any) (any, error) {
		<-ctx.Done()
		observed.Store(true)
		return nil, context.Cause(ctx)
	}
}

// TestSupersedeCascade tests that a same-key enqueue replaces the queued
// task and the replacement's record wins
func TestSupersedeCascade(t *testing.T) {
	sched := NewManual()
	q := New(Config{Scheduler: sched.Schedule})
	defer q.Destroy()

	first := q.Enqueue(Task{Name: "a", Key: "k", Handler: resolveWith("A")})
	second := q.Enqueue(Task{Name: "b", Key: "k", Handler: resolveWith("B")})

	_, err := first.Result()
	assert.True(t, errs.IsCode(err, errs.Superseded))

	sched.ReleaseAll()

	out, err := second.Result()
	require.NoError(t, err)
	assert.Equal(t, "B", out)

	rec, ok := q.Task("k")
	require.True(t, ok)
	assert.Equal(t, StatusSuccess, rec.Status)
	assert.Equal(t, "B", rec.Output)
	assert.Equal(t, "b", rec.Name)
}

// TestSupersedePendingAbortsSignal tests that enqueueing over an
// executing task trips its signal with SUPERSEDED
func TestSupersedePendingAbortsSignal(t *testing.T) {
	q := New(Config{})
	defer q.Destroy()

	var observed atomic.Bool
	first := q.Enqueue(Task{Name: "load", Key: "load", Handler: waitCancel(&observed)})

	require.Eventually(t, func() bool { return q.IsPending("load") }, time.Second, time.Millisecond)

	second := q.Enqueue(Task{Name: "load", Key: "load", Handler: resolveWith("fresh")})

	_, err := first.Result()
	assert.True(t, errs.IsCode(err, errs.Superseded))
	assert.True(t, observed.Load())

	out, err := second.Result()
	require.NoError(t, err)
	assert.Equal(t, "fresh", out)
}

// TestLastWriterWinsSettlement tests that a stale task cannot overwrite
// the record of its replacement, even when its handler ignores the abort
func TestLastWriterWinsSettlement(t *testing.T) {
	q := New(Config{})
	defer q.Destroy()

	release := make(chan struct{})
	stubborn := func(ctx context.Context, input any) (any, error) {
		<-release // ignores ctx entirely
		return "stale", nil
	}

	first := q.Enqueue(Task{Name: "a", Key: "k", Handler: stubborn})
	require.Eventually(t, func() bool { return q.IsPending("k") }, time.Second, time.Millisecond)

	second := q.Enqueue(Task{Name: "b", Key: "k", Handler: resolveWith("B")})
	out, err := second.Result()
	require.NoError(t, err)
	assert.Equal(t, "B", out)

	close(release)
	_, err = first.Result()
	assert.True(t, errs.IsCode(err, errs.Superseded))

	// The stubborn task's settlement must not clobber b's record
	assert.Eventually(t, func() bool {
		rec, ok := q.Task("k")
		return ok && rec.Status == StatusSuccess && rec.Output == "B"
	}, time.Second, time.Millisecond)
	rec, _ := q.Task("k")
	assert.Equal(t, "b", rec.Name)
}

// TestDequeueRejectsRemoved tests enqueue-then-dequeue round trip
func TestDequeueRejectsRemoved(t *testing.T) {
	sched := NewManual()
	q := New(Config{Scheduler: sched.Schedule})
	defer q.Destroy()

	var invoked atomic.Bool
	ticket := q.Enqueue(Task{Name: "seek", Handler: func(ctx context.Context, input any) (any, error) {
		invoked.Store(true)
		return nil, nil
	}})

	assert.True(t, q.IsQueued("seek"))
	assert.True(t, q.Dequeue("seek"))
	assert.False(t, q.Dequeue("seek"))

	_, err := ticket.Result()
	assert.True(t, errs.IsCode(err, errs.Removed))

	sched.ReleaseAll()
	assert.False(t, invoked.Load())
}

// TestAbortPending tests cancelling an executing task
func TestAbortPending(t *testing.T) {
	q := New(Config{})
	defer q.Destroy()

	var observed atomic.Bool
	ticket := q.Enqueue(Task{Name: "load", Handler: waitCancel(&observed)})
	require.Eventually(t, func() bool { return q.IsPending("load") }, time.Second, time.Millisecond)

	q.Abort("load")

	_, err := ticket.Result()
	assert.True(t, errs.IsCode(err, errs.Aborted))
	assert.True(t, observed.Load())

	assert.Eventually(t, func() bool {
		rec, ok := q.Task("load")
		return ok && rec.Status == StatusError && rec.Cancelled
	}, time.Second, time.Millisecond)
}

// TestAbortQueued tests cancelling before dispatch
func TestAbortQueued(t *testing.T) {
	sched := NewManual()
	q := New(Config{Scheduler: sched.Schedule})
	defer q.Destroy()

	ticket := q.Enqueue(Task{Name: "load", Handler: resolveWith("x")})
	q.Abort("load")

	_, err := ticket.Result()
	assert.True(t, errs.IsCode(err, errs.Aborted))
	assert.False(t, q.IsQueued("load"))
	assert.Equal(t, 0, sched.ReleaseAll())
}

// TestParallelDistinctKeys tests across-key concurrency and per-key
// completion independence
func TestParallelDistinctKeys(t *testing.T) {
	q := New(Config{})
	defer q.Destroy()

	var mu sync.Mutex
	var completions []int

	handler := func(id int) Handler {
		return func(ctx context.Context, input any) (any, error) {
			time.Sleep(time.Duration(10*id) * time.Millisecond)
			mu.Lock()
			completions = append(completions, id)
			mu.Unlock()
			return id, nil
		}
	}

	var tickets []*Ticket
	for _, id := range []int{3, 1, 2} {
		key := Key([]string{"", "track-1", "track-2", "track-3"}[id])
		tickets = append(tickets, q.Enqueue(Task{Name: "fetchTrack", Key: key, Input: id, Handler: handler(id)}))
	}

	for i, id := range []int{3, 1, 2} {
		out, err := tickets[i].Result()
		require.NoError(t, err)
		assert.Equal(t, id, out)
	}

	mu.Lock()
	assert.Equal(t, []int{1, 2, 3}, completions)
	mu.Unlock()

	// Settlement records publish just after their tickets settle
	require.Eventually(t, func() bool {
		for _, key := range []Key{"track-1", "track-2", "track-3"} {
			if rec, ok := q.Task(key); !ok || rec.Status == StatusPending {
				return false
			}
		}
		return true
	}, time.Second, time.Millisecond)

	for _, id := range []int{1, 2, 3} {
		rec, ok := q.Task(Key([]string{"", "track-1", "track-2", "track-3"}[id]))
		require.True(t, ok)
		assert.Equal(t, StatusSuccess, rec.Status)
		assert.Equal(t, id, rec.Output)
	}
}

// TestHandlerErrorPassesThrough tests that domain errors reach the caller
// unwrapped
func TestHandlerErrorPassesThrough(t *testing.T) {
	q := New(Config{})
	defer q.Destroy()

	boom := assert.AnError
	ticket := q.Enqueue(Task{Name: "decode", Handler: func(ctx context.Context, input any) (any, error) {
		return nil, boom
	}})

	_, err := ticket.Result()
	assert.ErrorIs(t, err, boom)
	assert.False(t, errs.IsStoreError(err))

	assert.Eventually(t, func() bool {
		rec, ok := q.Task("decode")
		return ok && rec.Status == StatusError && !rec.Cancelled
	}, time.Second, time.Millisecond)
}

// TestEnqueueOnDestroyedQueue tests the terminal rejection
func TestEnqueueOnDestroyedQueue(t *testing.T) {
	q := New(Config{})
	q.Destroy()
	q.Destroy() // idempotent

	var invoked atomic.Bool
	ticket := q.Enqueue(Task{Name: "play", Handler: func(ctx context.Context, input any) (any, error) {
		invoked.Store(true)
		return nil, nil
	}})

	_, err := ticket.Result()
	assert.True(t, errs.IsCode(err, errs.Destroyed))
	assert.False(t, invoked.Load())
}

// TestDestroyAbortsInFlight tests teardown of queued and pending work
func TestDestroyAbortsInFlight(t *testing.T) {
	sched := NewManual()
	q := New(Config{Scheduler: sched.Schedule})

	var observed atomic.Bool
	pending := q.Enqueue(Task{Name: "load", Key: "load", Schedule: Async(), Handler: waitCancel(&observed)})
	require.Eventually(t, func() bool { return q.IsPending("load") }, time.Second, time.Millisecond)

	queued := q.Enqueue(Task{Name: "seek", Key: "seek", Handler: resolveWith("x")})

	q.Destroy()

	_, err := pending.Result()
	assert.True(t, errs.IsCode(err, errs.Aborted))
	_, err = queued.Result()
	assert.True(t, errs.IsCode(err, errs.Aborted))
	assert.True(t, q.Destroyed())
}

// TestAbortAllWithCause tests owner-supplied cancellation causes
func TestAbortAllWithCause(t *testing.T) {
	q := New(Config{})
	defer q.Destroy()

	var observed atomic.Bool
	ticket := q.Enqueue(Task{Name: "load", Handler: waitCancel(&observed)})
	require.Eventually(t, func() bool { return q.IsPending("load") }, time.Second, time.Millisecond)

	q.AbortAllWith(errs.New(errs.Detached, "store detached"))

	_, err := ticket.Result()
	assert.True(t, errs.IsCode(err, errs.Detached))
}

// TestFlushDispatchesNow tests the explicit flush hook
func TestFlushDispatchesNow(t *testing.T) {
	q := New(Config{Scheduler: Delay(time.Hour)})
	defer q.Destroy()

	ticket := q.Enqueue(Task{Name: "play", Handler: resolveWith("ok")})
	assert.True(t, q.IsQueued("play"))

	q.Flush("play")

	out, err := ticket.Result()
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

// TestDelayScheduler tests deferred dispatch
func TestDelayScheduler(t *testing.T) {
	q := New(Config{Scheduler: Delay(20 * time.Millisecond)})
	defer q.Destroy()

	ticket := q.Enqueue(Task{Name: "play", Handler: resolveWith("ok")})
	assert.True(t, q.IsQueued("play"))

	out, err := ticket.Result()
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.False(t, q.IsQueued("play"))
}

// TestClear tests revoking queued work and dropping settled records
func TestClear(t *testing.T) {
	sched := NewManual()
	q := New(Config{Scheduler: sched.Schedule})
	defer q.Destroy()

	done := q.Enqueue(Task{Name: "warm", Key: "warm", Schedule: Async(), Handler: resolveWith("x")})
	_, err := done.Result()
	require.NoError(t, err)
	// The settlement record publishes just after the ticket settles
	require.Eventually(t, func() bool {
		rec, ok := q.Task("warm")
		return ok && rec.Status == StatusSuccess
	}, time.Second, time.Millisecond)

	held := q.Enqueue(Task{Name: "play", Key: "play", Handler: resolveWith("y")})

	q.Clear()

	_, err = held.Result()
	assert.True(t, errs.IsCode(err, errs.Removed))
	assert.Empty(t, q.Tasks())
}

// TestSubscribe tests listener notification and unsubscribe idempotence
func TestSubscribe(t *testing.T) {
	q := New(Config{})
	defer q.Destroy()

	var statuses sync.Map
	var notifications atomic.Int64
	unsub := q.Subscribe(func(tasks map[Key]Record) {
		notifications.Add(1)
		if rec, ok := tasks["play"]; ok {
			statuses.Store(rec.Status, true)
		}
	})

	ticket := q.Enqueue(Task{Name: "play", Handler: resolveWith("ok")})
	_, err := ticket.Result()
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, sawPending := statuses.Load(StatusPending)
		_, sawSuccess := statuses.Load(StatusSuccess)
		return sawPending && sawSuccess
	}, time.Second, time.Millisecond)

	unsub()
	unsub()
	seen := notifications.Load()

	second := q.Enqueue(Task{Name: "stop", Handler: resolveWith("ok")})
	_, err = second.Result()
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, seen, notifications.Load())
}

// TestListenerPanicIsolated tests that a failing listener cannot break
// settlement
func TestListenerPanicIsolated(t *testing.T) {
	q := New(Config{})
	defer q.Destroy()

	q.Subscribe(func(map[Key]Record) { panic("listener bug") })

	ticket := q.Enqueue(Task{Name: "play", Handler: resolveWith("ok")})
	out, err := ticket.Result()
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

// TestDispatchHooks tests OnDispatch and OnSettled ordering
func TestDispatchHooks(t *testing.T) {
	var mu sync.Mutex
	var events []string

	q := New(Config{
		OnDispatch: func(rec Record) {
			mu.Lock()
			events = append(events, "dispatch:"+string(rec.Status))
			mu.Unlock()
		},
		OnSettled: func(rec Record) {
			mu.Lock()
			events = append(events, "settled:"+string(rec.Status))
			mu.Unlock()
		},
	})
	defer q.Destroy()

	ticket := q.Enqueue(Task{Name: "play", Handler: resolveWith("ok")})
	_, err := ticket.Result()
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 2
	}, time.Second, time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"dispatch:pending", "settled:success"}, events)
	mu.Unlock()
}

// TestTicketWait tests bounded waiting
func TestTicketWait(t *testing.T) {
	q := New(Config{Scheduler: Delay(time.Hour)})
	defer q.Destroy()

	ticket := q.Enqueue(Task{Name: "play", Handler: resolveWith("ok")})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := ticket.Wait(ctx)
	assert.Error(t, err)
	assert.False(t, ticket.Settled())
}

// TestKeyDefaultsToName tests task normalization
func TestKeyDefaultsToName(t *testing.T) {
	sched := NewManual()
	q := New(Config{Scheduler: sched.Schedule})
	defer q.Destroy()

	q.Enqueue(Task{Name: "play", Handler: resolveWith("ok")})
	assert.True(t, q.IsQueued("play"))

	queued := q.Queued()
	require.Len(t, queued, 1)
	assert.Equal(t, "play", queued[0].Name)
	assert.Equal(t, Key("play"), queued[0].Key)
	assert.NotEmpty(t, queued[0].ID)
}

// TestNewKeyUnique tests minted key uniqueness
func TestNewKeyUnique(t *testing.T) {
	a := NewKey("seek")
	b := NewKey("seek")
	assert.NotEqual(t, a, b)
	assert.Contains(t, string(a), "seek")
}

// TestManualSchedulerCancel tests that a revoked dispatch does not run
func TestManualSchedulerCancel(t *testing.T) {
	sched := NewManual()

	var ran atomic.Bool
	cancel := sched.Schedule(func() { ran.Store(true) })
	cancel()

	assert.False(t, sched.Release())
	assert.False(t, ran.Load())
}
