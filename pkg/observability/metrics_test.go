package observability

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	m, err := NewMetrics(MetricsConfig{Registry: prometheus.NewRegistry()})
	require.NoError(t, err)
	return m
}

func TestMetricsCounters(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordSent("request")
	m.RecordSent("request")
	m.RecordSent("notification")
	m.RecordReceived("response")
	m.RecordDecodeFailure()
	m.RecordProgress()
	m.RecordProgress()
	m.RecordCancellation()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.messagesSent.WithLabelValues("request")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.messagesSent.WithLabelValues("notification")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.messagesReceived.WithLabelValues("response")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.decodeFailures))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.progressUpdates))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.cancellations))
}

func TestMetricsPendingGauge(t *testing.T) {
	m := newTestMetrics(t)

	m.SetPendingRequests(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.pendingRequests))
	m.SetPendingRequests(0)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.pendingRequests))
}

func TestMetricsRequestDuration(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordRequest("ping", "ok", 50*time.Millisecond)
	m.RecordRequest("ping", "error", 10*time.Millisecond)

	count := testutil.CollectAndCount(m.requestDuration, "mcpwire_request_duration_seconds")
	assert.Equal(t, 2, count, "one series per method and status pair")
}

func TestMetricsDuplicateRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := NewMetrics(MetricsConfig{Registry: registry})
	require.NoError(t, err)

	_, err = NewMetrics(MetricsConfig{Registry: registry})
	assert.Error(t, err, "a shared registry refuses the same metric names twice")
}

func TestMetricsHandlerServesExposition(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordSent("request")

	recorder := httptest.NewRecorder()
	m.Handler().ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "mcpwire_messages_sent_total")
}

func TestMetricsCustomNamespace(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewMetrics(MetricsConfig{Namespace: "custom", Registry: registry})
	require.NoError(t, err)

	m.RecordDecodeFailure()
	families, err := registry.Gather()
	require.NoError(t, err)

	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "custom_decode_failures_total")
}
