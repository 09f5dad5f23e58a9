package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsConfig configures the Prometheus metrics for the message path.
type MetricsConfig struct {
	// Namespace for all metric names. Defaults to "mcpwire".
	Namespace string
	// ConstLabels are attached to every metric.
	ConstLabels prometheus.Labels
	// Registry to register with. Defaults to a fresh registry.
	Registry *prometheus.Registry
	// HistogramBuckets for request latency. Defaults to prometheus.DefBuckets.
	HistogramBuckets []float64
}

// Metrics records the message-path instrumentation: traffic counters by
// envelope variant, decode failures, the outstanding-request gauge and
// request latency.
type Metrics struct {
	registry *prometheus.Registry

	messagesSent     *prometheus.CounterVec
	messagesReceived *prometheus.CounterVec
	decodeFailures   prometheus.Counter
	pendingRequests  prometheus.Gauge
	requestDuration  *prometheus.HistogramVec
	progressUpdates  prometheus.Counter
	cancellations    prometheus.Counter
}

// NewMetrics creates and registers the message-path metrics.
func NewMetrics(config MetricsConfig) (*Metrics, error) {
	if config.Namespace == "" {
		config.Namespace = "mcpwire"
	}
	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
	}
	if config.HistogramBuckets == nil {
		config.HistogramBuckets = prometheus.DefBuckets
	}

	m := &Metrics{
		registry: config.Registry,
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "messages_sent_total",
			Help:        "Messages sent, by envelope variant.",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "messages_received_total",
			Help:        "Messages received, by envelope variant.",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),
		decodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "decode_failures_total",
			Help:        "Inbound payloads that failed envelope decoding.",
			ConstLabels: config.ConstLabels,
		}),
		pendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "pending_requests",
			Help:        "Requests awaiting a reply.",
			ConstLabels: config.ConstLabels,
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Name:        "request_duration_seconds",
			Help:        "Round-trip latency of outgoing requests.",
			ConstLabels: config.ConstLabels,
			Buckets:     config.HistogramBuckets,
		}, []string{"method", "status"}),
		progressUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "progress_updates_total",
			Help:        "Progress notifications accepted.",
			ConstLabels: config.ConstLabels,
		}),
		cancellations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "cancellations_total",
			Help:        "Cancellation notifications issued.",
			ConstLabels: config.ConstLabels,
		}),
	}

	collectors := []prometheus.Collector{
		m.messagesSent,
		m.messagesReceived,
		m.decodeFailures,
		m.pendingRequests,
		m.requestDuration,
		m.progressUpdates,
		m.cancellations,
	}
	for _, c := range collectors {
		if err := config.Registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return m, nil
}

// RecordSent counts one sent message of the given envelope variant.
func (m *Metrics) RecordSent(messageType string) {
	m.messagesSent.WithLabelValues(messageType).Inc()
}

// RecordReceived counts one received message of the given envelope variant.
func (m *Metrics) RecordReceived(messageType string) {
	m.messagesReceived.WithLabelValues(messageType).Inc()
}

// RecordDecodeFailure counts one undecodable inbound payload.
func (m *Metrics) RecordDecodeFailure() {
	m.decodeFailures.Inc()
}

// SetPendingRequests sets the outstanding-request gauge.
func (m *Metrics) SetPendingRequests(n int) {
	m.pendingRequests.Set(float64(n))
}

// RecordRequest records one completed request round trip.
func (m *Metrics) RecordRequest(method, status string, duration time.Duration) {
	m.requestDuration.WithLabelValues(method, status).Observe(duration.Seconds())
}

// RecordProgress counts one accepted progress update.
func (m *Metrics) RecordProgress() {
	m.progressUpdates.Inc()
}

// RecordCancellation counts one issued cancellation.
func (m *Metrics) RecordCancellation() {
	m.cancellations.Inc()
}

// Registry returns the underlying registry, for test scrapes and custom
// collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the metrics in Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
