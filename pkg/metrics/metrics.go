// Package metrics exposes Prometheus collectors for the DOM coordinator.
//
// Metrics collected:
//   - domcore_batches_committed_total: Counter of non-empty EndBatch commits
//   - domcore_commit_duration_seconds: Histogram of commit duration
//   - domcore_operations_total: Counter of applied operations by kind and result
//   - domcore_layout_changed_nodes: Histogram of nodes forwarded per layout pass
//   - domcore_events_total: Counter of dispatched events by result
//   - domcore_active_managers: Gauge of managers in the instance directory
//   - domcore_tasks_rejected_total: Counter of tasks posted after termination
//   - domcore_task_panics_total: Counter of recovered task panics
//   - domcore_http_requests_total: Counter of HTTP requests by route, method and status
//   - domcore_http_request_duration_seconds: Histogram of HTTP request duration
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result labels.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"

	EventDispatched = "dispatched"
	EventNoTarget   = "no_target"
	EventNoListener = "no_listener"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "domcore").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for commit duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the collectors.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the commit duration histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "domcore",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the collectors.
type Metrics struct {
	batchesCommitted   prometheus.Counter
	commitDuration     prometheus.Histogram
	operations         *prometheus.CounterVec
	layoutChangedNodes prometheus.Histogram
	events             *prometheus.CounterVec
	activeManagers     prometheus.Gauge
	tasksRejected      prometheus.Counter
	taskPanics         prometheus.Counter
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New creates and registers the collectors.
func New(opts ...Option) *Metrics {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		batchesCommitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "batches_committed_total",
			Help:        "Total number of non-empty batch commits",
			ConstLabels: config.ConstLabels,
		}),

		commitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "commit_duration_seconds",
			Help:        "Batch commit duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "operations_total",
			Help:        "Total number of applied operations by kind and result",
			ConstLabels: config.ConstLabels,
		}, []string{"kind", "result"}),

		layoutChangedNodes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "layout_changed_nodes",
			Help:        "Nodes forwarded to the render layer per layout pass",
			ConstLabels: config.ConstLabels,
			Buckets:     []float64{0, 1, 5, 10, 50, 100, 500, 1000},
		}),

		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "events_total",
			Help:        "Total number of handled events by result",
			ConstLabels: config.ConstLabels,
		}, []string{"result"}),

		activeManagers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_managers",
			Help:        "Number of managers registered in the instance directory",
			ConstLabels: config.ConstLabels,
		}),

		tasksRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "tasks_rejected_total",
			Help:        "Total number of tasks posted after scheduler termination",
			ConstLabels: config.ConstLabels,
		}),

		taskPanics: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "task_panics_total",
			Help:        "Total number of recovered scheduler task panics",
			ConstLabels: config.ConstLabels,
		}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: config.ConstLabels,
		}, []string{"route", "method", "status"}),

		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "http_request_duration_seconds",
			Help:        "Duration of HTTP requests in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"route", "method"}),
	}
}

// ObserveCommit records a completed non-empty commit.
func (m *Metrics) ObserveCommit(d time.Duration) {
	if m == nil {
		return
	}
	m.batchesCommitted.Inc()
	m.commitDuration.Observe(d.Seconds())
}

// OperationApplied records an operation of the given kind.
func (m *Metrics) OperationApplied(kind string, err error) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultFailed
	}
	m.operations.WithLabelValues(kind, result).Inc()
}

// ObserveLayout records the number of nodes forwarded by a layout pass.
func (m *Metrics) ObserveLayout(changed int) {
	if m == nil {
		return
	}
	m.layoutChangedNodes.Observe(float64(changed))
}

// EventHandled records an event dispatch outcome.
func (m *Metrics) EventHandled(result string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(result).Inc()
}

// SetActiveManagers sets the directory size gauge.
func (m *Metrics) SetActiveManagers(n int) {
	if m == nil {
		return
	}
	m.activeManagers.Set(float64(n))
}

// TaskRejected records a task posted after termination.
func (m *Metrics) TaskRejected() {
	if m == nil {
		return
	}
	m.tasksRejected.Inc()
}

// TaskPanicked records a recovered task panic.
func (m *Metrics) TaskPanicked() {
	if m == nil {
		return
	}
	m.taskPanics.Inc()
}

// ObserveHTTP records a served HTTP request. route should be the matched
// route pattern, not the raw path.
func (m *Metrics) ObserveHTTP(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}
