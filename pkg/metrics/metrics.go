package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Queue metrics
	TasksEnqueued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "playcore_tasks_enqueued_total",
			Help: "Total number of tasks enqueued",
		},
	)

	TasksSuperseded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "playcore_tasks_superseded_total",
			Help: "Total number of tasks replaced by a newer task with the same key",
		},
	)

	TasksSettled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playcore_tasks_settled_total",
			Help: "Total number of settled tasks by status",
		},
		[]string{"status"},
	)

	TaskDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "playcore_task_duration_seconds",
			Help:    "Time from task dispatch to settlement in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	QueuedTasks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "playcore_queued_tasks",
			Help: "Number of tasks currently queued and not yet dispatched",
		},
	)

	PendingTasks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "playcore_pending_tasks",
			Help: "Number of tasks currently executing",
		},
	)

	// Store metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playcore_requests_total",
			Help: "Total number of store requests by request name",
		},
		[]string{"request"},
	)

	RequestFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playcore_request_failures_total",
			Help: "Total number of failed store requests by request name and code",
		},
		[]string{"request", "code"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "playcore_request_duration_seconds",
			Help:    "Store request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"request"},
	)

	StoresAttached = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "playcore_stores_attached",
			Help: "Number of stores currently attached to a target",
		},
	)

	// State metrics
	StateNotifications = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "playcore_state_notifications_total",
			Help: "Total number of state subscriber notifications delivered",
		},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		// Queue metrics
		TasksEnqueued,
		TasksSuperseded,
		TasksSettled,
		TaskDuration,
		QueuedTasks,
		PendingTasks,

		// Store metrics
		RequestsTotal,
		RequestFailures,
		RequestDuration,
		StoresAttached,

		// State metrics
		StateNotifications,
	}
}

// Register registers every playcore collector on r. The core never
// self-registers: the host owns its registry (and its exposition) and
// calls this once, e.g. Register(prometheus.DefaultRegisterer). The
// collectors work unregistered, so hosts without Prometheus skip this
// entirely.
func Register(r prometheus.Registerer) error {
	for _, c := range collectors() {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// MustRegister is Register panicking on error, for hosts that register
// at startup
func MustRegister(r prometheus.Registerer) {
	for _, c := range collectors() {
		r.MustRegister(c)
	}
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
