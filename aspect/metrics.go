// Package aspect provides concrete handler.Aspect implementations:
// Prometheus request metrics and OpenTelemetry tracing, installed as
// global aspects on a Server. Adapted from event middleware built around
// a single wrapping call into bsrvcore's Pre/Post aspect shape.
package aspect

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/haomingbai/bsrvcore/handler"
)

// MetricsConfig configures the Metrics aspect.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default "bsrvcore").
	Namespace string
	// Subsystem is the metrics subsystem (default "").
	Subsystem string
	// ConstLabels are attached to every metric.
	ConstLabels prometheus.Labels
	// Buckets are the request-duration histogram buckets (default
	// prometheus.DefBuckets).
	Buckets []float64
	// Registry is where the metrics are registered (default
	// prometheus.DefaultRegisterer).
	Registry prometheus.Registerer
}

// MetricsOption configures a MetricsConfig.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(ns string) MetricsOption {
	return func(c *MetricsConfig) { c.Namespace = ns }
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(sub string) MetricsOption {
	return func(c *MetricsConfig) { c.Subsystem = sub }
}

// WithConstLabels sets constant labels applied to every metric.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) { c.ConstLabels = labels }
}

// WithBuckets sets the request-duration histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) { c.Buckets = buckets }
}

// WithRegistry sets the Prometheus registry metrics are registered on.
func WithRegistry(r prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) { c.Registry = r }
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "bsrvcore",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics is a global handler.Aspect that records request counts and
// durations by matched route template, method, and outcome.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	mu     sync.Mutex
	starts map[handler.Task]time.Time
}

var _ handler.Aspect = (*Metrics)(nil)

// NewMetrics builds a Metrics aspect and registers its collectors.
func NewMetrics(opts ...MetricsOption) *Metrics {
	cfg := defaultMetricsConfig()
	for _, o := range opts {
		o(&cfg)
	}
	factory := promauto.With(cfg.Registry)

	return &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "requests_total",
			Help:        "Total requests served, by route, method, and outcome.",
			ConstLabels: cfg.ConstLabels,
		}, []string{"route", "method", "outcome"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "request_duration_seconds",
			Help:        "Request handling duration, aspect pre-pass through post-pass.",
			ConstLabels: cfg.ConstLabels,
			Buckets:     cfg.Buckets,
		}, []string{"route", "method"}),

		starts: make(map[handler.Task]time.Time),
	}
}

// Pre implements handler.Aspect: records the start time, keyed by the
// Task itself since aspects have no other per-request storage slot.
func (m *Metrics) Pre(t handler.Task) {
	m.mu.Lock()
	m.starts[t] = time.Now()
	m.mu.Unlock()
}

// Post implements handler.Aspect.
func (m *Metrics) Post(t handler.Task) {
	m.mu.Lock()
	start, ok := m.starts[t]
	delete(m.starts, t)
	m.mu.Unlock()
	if !ok {
		return
	}

	route := t.CurrentLocation()
	method := t.Request().Method

	m.requestDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())

	outcome := "ok"
	if t.IsManual() {
		outcome = "manual"
	}
	m.requestsTotal.WithLabelValues(route, method, outcome).Inc()
}
