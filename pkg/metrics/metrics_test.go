package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewTimer tests timer creation
func TestNewTimer(t *testing.T) {
	timer := NewTimer()
	require.NotNil(t, timer)
	assert.False(t, timer.start.IsZero())
	assert.Less(t, time.Since(timer.start), time.Second)
}

// TestTimerDuration tests duration measurement
func TestTimerDuration(t *testing.T) {
	timer := NewTimer()

	sleep := 50 * time.Millisecond
	time.Sleep(sleep)

	duration := timer.Duration()
	assert.GreaterOrEqual(t, duration, sleep)

	// Duration keeps growing across calls
	time.Sleep(10 * time.Millisecond)
	assert.Greater(t, timer.Duration(), duration)
}

// TestTimerObserveDuration tests histogram observation
func TestTimerObserveDuration(t *testing.T) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_task_duration_seconds",
		Help:    "Test duration histogram",
		Buckets: prometheus.DefBuckets,
	})

	timer := NewTimer()
	time.Sleep(10 * time.Millisecond)
	timer.ObserveDuration(histogram)

	assert.EqualValues(t, 1, testutil.CollectAndCount(histogram))
}

// TestTimerObserveDurationVec tests labeled observation
func TestTimerObserveDurationVec(t *testing.T) {
	vec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "test_request_duration_seconds",
			Help:    "Test duration histogram vec",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"request"},
	)

	timer := NewTimer()
	timer.ObserveDurationVec(vec, "play")

	assert.EqualValues(t, 1, testutil.CollectAndCount(vec))
}

// TestRegister tests registration on a host-owned registry
func TestRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))

	// The same registry rejects a second registration instead of
	// panicking the process
	assert.Error(t, Register(reg))

	// A distinct registry accepts its own registration of the same
	// collectors
	assert.NoError(t, Register(prometheus.NewRegistry()))

	TasksEnqueued.Inc()
	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

// TestCountersUsable tests that the package collectors accept writes
func TestCountersUsable(t *testing.T) {
	before := testutil.ToFloat64(TasksEnqueued)
	TasksEnqueued.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(TasksEnqueued))

	TasksSettled.WithLabelValues("success").Inc()
	RequestFailures.WithLabelValues("play", "REJECTED").Inc()
	QueuedTasks.Inc()
	QueuedTasks.Dec()
}
