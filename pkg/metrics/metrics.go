// Package metrics defines the Prometheus collectors shared by the registry,
// the persistence worker and the gateway.
//
// Every method is safe to call on a nil *Metrics, so components can run
// without instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures collector registration.
type Config struct {
	// Namespace is the metrics namespace (default: "olta").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for operation and write durations.
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

// WithBuckets sets the histogram buckets.
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
		Namespace: "olta",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the collectors.
type Metrics struct {
	hotSessions       prometheus.Gauge
	sessionsLoaded    *prometheus.CounterVec
	sessionsEvicted   prometheus.Counter
	subscribers       prometheus.Gauge
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	broadcastsTotal   prometheus.Counter
	sendFailures      prometheus.Counter

	queueDepth    prometheus.Gauge
	writesTotal   *prometheus.CounterVec
	writeDuration prometheus.Histogram
	writeLag      prometheus.Histogram
	snapshotBytes prometheus.Histogram

	connections      prometheus.Gauge
	messagesReceived *prometheus.CounterVec
	handshakeRejects *prometheus.CounterVec
	wsErrors         *prometheus.CounterVec
}

// New registers the collectors with the configured registry.
func New(opts ...Option) *Metrics {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.Registry == nil {
		config.Registry = prometheus.DefaultRegisterer
	}
	if len(config.Buckets) == 0 {
		config.Buckets = prometheus.DefBuckets
	}

	factory := promauto.With(config.Registry)
	counter := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		}
	}
	gauge := func(name, help string) prometheus.GaugeOpts {
		return prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		}
	}
	histogram := func(name, help string, buckets []float64) prometheus.HistogramOpts {
		return prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
			Buckets:     buckets,
		}
	}

	return &Metrics{
		hotSessions: factory.NewGauge(gauge("hot_sessions",
			"Number of sessions materialized in memory")),
		sessionsLoaded: factory.NewCounterVec(counter("sessions_loaded_total",
			"Sessions brought into the hot cache, by source"), []string{"source"}),
		sessionsEvicted: factory.NewCounter(counter("sessions_evicted_total",
			"Sessions evicted from the hot cache")),
		subscribers: factory.NewGauge(gauge("subscribers",
			"Number of registered subscribers across all sessions")),
		operationsTotal: factory.NewCounterVec(counter("operations_total",
			"Registry operations by name and outcome"), []string{"op", "status"}),
		operationDuration: factory.NewHistogramVec(histogram("operation_duration_seconds",
			"Registry operation duration in seconds", config.Buckets), []string{"op"}),
		broadcastsTotal: factory.NewCounter(counter("broadcasts_total",
			"Events fanned out to session subscribers")),
		sendFailures: factory.NewCounter(counter("broadcast_send_failures_total",
			"Per-subscriber send failures during fanout")),

		queueDepth: factory.NewGauge(gauge("persist_queue_depth",
			"Snapshot writes waiting in the persistence queue")),
		writesTotal: factory.NewCounterVec(counter("persist_writes_total",
			"Snapshot writes by outcome"), []string{"status"}),
		writeDuration: factory.NewHistogram(histogram("persist_write_duration_seconds",
			"Store write duration in seconds", config.Buckets)),
		writeLag: factory.NewHistogram(histogram("persist_write_lag_seconds",
			"Time from enqueue to completed write", config.Buckets)),
		snapshotBytes: factory.NewHistogram(histogram("snapshot_bytes",
			"Serialized snapshot size in bytes",
			[]float64{256, 1024, 10240, 102400, 1048576, 10485760})),

		connections: factory.NewGauge(gauge("connections",
			"Open client connections")),
		messagesReceived: factory.NewCounterVec(counter("messages_received_total",
			"Inbound client messages by tag"), []string{"tag"}),
		handshakeRejects: factory.NewCounterVec(counter("handshake_rejected_total",
			"Connection attempts rejected before upgrade"), []string{"reason"}),
		wsErrors: factory.NewCounterVec(counter("websocket_errors_total",
			"WebSocket errors by type"), []string{"type"}),
	}
}

// SessionLoaded records a session entering the hot cache.
// source is "store" or "new".
func (m *Metrics) SessionLoaded(source string) {
	if m == nil {
		return
	}
	m.sessionsLoaded.WithLabelValues(source).Inc()
	m.hotSessions.Inc()
}

// SessionEvicted records a session leaving the hot cache.
func (m *Metrics) SessionEvicted() {
	if m == nil {
		return
	}
	m.sessionsEvicted.Inc()
	m.hotSessions.Dec()
}

// SubscriberAdded increments the subscriber gauge.
func (m *Metrics) SubscriberAdded() {
	if m == nil {
		return
	}
	m.subscribers.Inc()
}

// SubscriberRemoved decrements the subscriber gauge.
func (m *Metrics) SubscriberRemoved() {
	if m == nil {
		return
	}
	m.subscribers.Dec()
}

// Operation records the outcome and duration of a registry operation.
func (m *Metrics) Operation(op, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(op, status).Inc()
	m.operationDuration.WithLabelValues(op).Observe(d.Seconds())
}

// Broadcast records one fanned-out event and its failed sends.
func (m *Metrics) Broadcast(failures int) {
	if m == nil {
		return
	}
	m.broadcastsTotal.Inc()
	if failures > 0 {
		m.sendFailures.Add(float64(failures))
	}
}

// QueueDepth sets the persistence queue depth.
func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// Write records a completed store write.
func (m *Metrics) Write(err error, size int, took, lag time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.writesTotal.WithLabelValues(status).Inc()
	m.writeDuration.Observe(took.Seconds())
	m.writeLag.Observe(lag.Seconds())
	m.snapshotBytes.Observe(float64(size))
}

// ConnectionOpened increments the connection gauge.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

// ConnectionClosed decrements the connection gauge.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

// MessageReceived counts an inbound message by tag.
func (m *Metrics) MessageReceived(tag string) {
	if m == nil {
		return
	}
	m.messagesReceived.WithLabelValues(tag).Inc()
}

// HandshakeRejected counts a refused connection attempt.
func (m *Metrics) HandshakeRejected(reason string) {
	if m == nil {
		return
	}
	m.handshakeRejects.WithLabelValues(reason).Inc()
}

// WebSocketError counts a websocket error by type.
func (m *Metrics) WebSocketError(errorType string) {
	if m == nil {
		return
	}
	m.wsErrors.WithLabelValues(errorType).Inc()
}
