package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the collector
type Metrics struct {
	// Ingestion metrics
	itemsIngested  *prometheus.CounterVec
	decodeFailures *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec

	// Aggregation metrics
	sessionsActive  prometheus.Gauge
	tracesActive    prometheus.Gauge
	sessionsEvicted *prometheus.CounterVec

	// Broadcast metrics
	subscribersActive prometheus.Gauge
	messagesDropped   prometheus.Counter

	// Schema promotion metrics
	promotionsTotal *prometheus.CounterVec

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics instance with all collector metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		itemsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_items_ingested_total",
				Help: "Total number of telemetry items ingested by signal",
			},
			[]string{"signal"},
		),

		decodeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_decode_failures_total",
				Help: "Total number of export requests rejected at decode time",
			},
			[]string{"signal"},
		),

		ingestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "collector_ingest_duration_seconds",
				Help:    "Export request processing latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"signal"},
		),

		sessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "collector_sessions_active",
				Help: "Number of sessions currently held by the aggregator",
			},
		),

		tracesActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "collector_traces_active",
				Help: "Number of traces currently held by the aggregator",
			},
		),

		sessionsEvicted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_aggregate_evictions_total",
				Help: "Total number of aggregate evictions by kind and reason",
			},
			[]string{"kind", "reason"},
		),

		subscribersActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "collector_live_subscribers",
				Help: "Number of connected live-stream subscribers",
			},
		),

		messagesDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "collector_live_messages_dropped_total",
				Help: "Total number of live messages dropped to full subscriber queues",
			},
		),

		promotionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_schema_promotions_total",
				Help: "Total number of schema promotions by outcome",
			},
			[]string{"status"},
		),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "collector_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		registry: registry,
	}

	// Register all metrics
	registry.MustRegister(
		m.itemsIngested,
		m.decodeFailures,
		m.ingestLatency,
		m.sessionsActive,
		m.tracesActive,
		m.sessionsEvicted,
		m.subscribersActive,
		m.messagesDropped,
		m.promotionsTotal,
		m.httpRequestsTotal,
		m.httpRequestDuration,
	)

	return m
}

// RecordIngest records a successfully processed export batch
func (m *Metrics) RecordIngest(signal string, items int, duration time.Duration) {
	m.itemsIngested.WithLabelValues(signal).Add(float64(items))
	m.ingestLatency.WithLabelValues(signal).Observe(duration.Seconds())
}

// RecordDecodeFailure records a rejected export request
func (m *Metrics) RecordDecodeFailure(signal string) {
	m.decodeFailures.WithLabelValues(signal).Inc()
}

// UpdateAggregateCounts updates the session and trace gauges
func (m *Metrics) UpdateAggregateCounts(sessions, traces int) {
	m.sessionsActive.Set(float64(sessions))
	m.tracesActive.Set(float64(traces))
}

// RecordEviction records an aggregate eviction
func (m *Metrics) RecordEviction(kind, reason string) {
	m.sessionsEvicted.WithLabelValues(kind, reason).Inc()
}

// UpdateSubscriberCount updates the live subscriber gauge
func (m *Metrics) UpdateSubscriberCount(n int) {
	m.subscribersActive.Set(float64(n))
}

// RecordDroppedMessage records one live message dropped under backpressure
func (m *Metrics) RecordDroppedMessage() {
	m.messagesDropped.Inc()
}

// RecordPromotion records a schema promotion outcome
func (m *Metrics) RecordPromotion(status string) {
	m.promotionsTotal.WithLabelValues(status).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware creates HTTP middleware that records request metrics
func (m *Metrics) Middleware(endpoint string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.RecordHTTPRequest(r.Method, endpoint, strconv.Itoa(rec.status), time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush forwards flushes so the middleware stays SSE-compatible.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
