package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the shipping engine's prometheus collectors.
type Metrics struct {
	serviceName string
	registry    *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Kafka / outbox metrics
	KafkaEventsPublished *prometheus.CounterVec
	KafkaPublishDuration *prometheus.HistogramVec
	OutboxPending        prometheus.Gauge

	// Quote metrics
	QuotesTotal     *prometheus.CounterVec
	ComposeDuration prometheus.Histogram

	// Lifecycle metrics
	ShipmentTransitions *prometheus.CounterVec
	ShipmentConflicts   prometheus.Counter

	// Reference data metrics
	ReferenceRefreshes *prometheus.CounterVec
	SnapshotVersion    prometheus.Gauge
	SnapshotAge        *prometheus.GaugeVec
	RuleOverlaps       prometheus.Gauge

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec

	// Idempotency metrics
	IdempotencyRequests *prometheus.CounterVec
}

// Config holds metrics configuration
type Config struct {
	ServiceName string
	Namespace   string
}

// DefaultConfig returns default metrics configuration
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Namespace:   "wms",
	}
}

// New creates a new Metrics instance on its own registry.
func New(config *Config) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ns := config.Namespace
	constLabels := prometheus.Labels{"service": config.ServiceName}

	m := &Metrics{
		serviceName: config.ServiceName,
		registry:    registry,
	}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"service", "method", "path"},
	)

	m.HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   ns,
			Name:        "http_requests_in_flight",
			Help:        "Number of HTTP requests currently being processed",
			ConstLabels: constLabels,
		},
	)

	m.KafkaEventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "kafka_events_published_total",
			Help:      "Total number of Kafka events published",
		},
		[]string{"service", "topic", "event_type", "status"},
	)

	m.KafkaPublishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "kafka_publish_duration_seconds",
			Help:      "Kafka publish duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"service", "topic"},
	)

	m.OutboxPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   ns,
			Name:        "outbox_pending_events",
			Help:        "Outbox events fetched but not yet published in the last poll",
			ConstLabels: constLabels,
		},
	)

	m.QuotesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "shipping",
			Name:      "quotes_total",
			Help:      "Shipping quotes by provider, zone and outcome",
		},
		[]string{"service", "provider", "zone", "outcome"},
	)

	m.ComposeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   "shipping",
			Name:        "quote_duration_seconds",
			Help:        "Time to resolve, match and compose one quote",
			Buckets:     []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01},
			ConstLabels: constLabels,
		},
	)

	m.ShipmentTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "shipping",
			Name:      "shipment_transitions_total",
			Help:      "Shipment status transitions by from/to status and outcome",
		},
		[]string{"service", "from", "to", "outcome"},
	)

	m.ShipmentConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "shipping",
			Name:        "shipment_conflicts_total",
			Help:        "Concurrent modification conflicts on shipments",
			ConstLabels: constLabels,
		},
	)

	m.ReferenceRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "shipping",
			Name:      "reference_refreshes_total",
			Help:      "Reference snapshot refreshes by kind and outcome",
		},
		[]string{"service", "kind", "outcome"},
	)

	m.SnapshotVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   "shipping",
			Name:        "reference_snapshot_version",
			Help:        "Version of the currently published reference snapshot",
			ConstLabels: constLabels,
		},
	)

	m.SnapshotAge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "shipping",
			Name:      "reference_age_seconds",
			Help:      "Seconds since the reference data of a kind was last loaded",
		},
		[]string{"service", "kind"},
	)

	m.RuleOverlaps = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   "shipping",
			Name:        "rate_rule_overlaps",
			Help:        "Overlapping rate rule windows found in the current snapshot",
			ConstLabels: constLabels,
		},
	)

	m.CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"service", "name"},
	)

	m.CircuitBreakerTrips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "circuit_breaker_trips_total",
			Help:      "Total number of circuit breaker trips",
		},
		[]string{"service", "name"},
	)

	m.IdempotencyRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "idempotency_requests_total",
			Help:      "Requests carrying an Idempotency-Key by outcome (miss, hit, mismatch, concurrent, storage_error)",
		},
		[]string{"service", "path", "outcome"},
	)

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.KafkaEventsPublished,
		m.KafkaPublishDuration,
		m.OutboxPending,
		m.QuotesTotal,
		m.ComposeDuration,
		m.ShipmentTransitions,
		m.ShipmentConflicts,
		m.ReferenceRefreshes,
		m.SnapshotVersion,
		m.SnapshotAge,
		m.RuleOverlaps,
		m.CircuitBreakerState,
		m.CircuitBreakerTrips,
		m.IdempotencyRequests,
	)

	return m
}

// Handler returns an HTTP handler for metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(m.serviceName, method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(m.serviceName, method, path).Observe(duration.Seconds())
}

// RecordKafkaPublish records a Kafka publish event
func (m *Metrics) RecordKafkaPublish(topic, eventType string, success bool, duration time.Duration) {
	m.KafkaEventsPublished.WithLabelValues(m.serviceName, topic, eventType, outcome(success)).Inc()
	m.KafkaPublishDuration.WithLabelValues(m.serviceName, topic).Observe(duration.Seconds())
}

// SetOutboxPending sets the number of outbox events seen in the last poll.
func (m *Metrics) SetOutboxPending(n int) {
	m.OutboxPending.Set(float64(n))
}

// RecordQuote records a quote. result is "ok" or the error code.
func (m *Metrics) RecordQuote(provider, zone, result string, duration time.Duration) {
	m.QuotesTotal.WithLabelValues(m.serviceName, provider, zone, result).Inc()
	m.ComposeDuration.Observe(duration.Seconds())
}

// RecordTransition records a lifecycle transition attempt.
func (m *Metrics) RecordTransition(from, to string, success bool) {
	m.ShipmentTransitions.WithLabelValues(m.serviceName, from, to, outcome(success)).Inc()
}

// RecordConflict records an optimistic concurrency conflict.
func (m *Metrics) RecordConflict() {
	m.ShipmentConflicts.Inc()
}

// RecordReferenceRefresh records a reference refresh of the given kind.
func (m *Metrics) RecordReferenceRefresh(kind string, success bool) {
	m.ReferenceRefreshes.WithLabelValues(m.serviceName, kind, outcome(success)).Inc()
}

// SetSnapshot publishes the current snapshot version and overlap count.
func (m *Metrics) SetSnapshot(version int64, overlaps int) {
	m.SnapshotVersion.Set(float64(version))
	m.RuleOverlaps.Set(float64(overlaps))
}

// SetReferenceAge sets the age of a reference data kind.
func (m *Metrics) SetReferenceAge(kind string, age time.Duration) {
	m.SnapshotAge.WithLabelValues(m.serviceName, kind).Set(age.Seconds())
}

// SetCircuitBreakerState sets the circuit breaker state
func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	m.CircuitBreakerState.WithLabelValues(m.serviceName, name).Set(float64(state))
}

// RecordCircuitBreakerTrip records a circuit breaker trip
func (m *Metrics) RecordCircuitBreakerTrip(name string) {
	m.CircuitBreakerTrips.WithLabelValues(m.serviceName, name).Inc()
}

// RecordIdempotency records how a keyed request was handled.
func (m *Metrics) RecordIdempotency(path, result string) {
	m.IdempotencyRequests.WithLabelValues(m.serviceName, path, result).Inc()
}

// IncrementHTTPRequestsInFlight increments in-flight requests
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements in-flight requests
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Dec()
}
