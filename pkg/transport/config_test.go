package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTransportConfig(t *testing.T) {
	config := DefaultTransportConfig(TransportTypeStdio)

	assert.Equal(t, TransportTypeStdio, config.Type)
	assert.Equal(t, 30*time.Second, config.RequestTimeout)
	assert.Equal(t, 1<<20, config.BufferSize)
	assert.Equal(t, "info", config.Logging.Level)
	assert.True(t, config.Observability.EnableMetrics)
	assert.False(t, config.Observability.EnableTracing)
}

func TestConfigFromEnvDefaults(t *testing.T) {
	config, err := ConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, TransportTypeStdio, config.Type)
	assert.Equal(t, 30*time.Second, config.RequestTimeout)
	assert.Equal(t, "mcpwire", config.Observability.MetricsPrefix)
	assert.Equal(t, "grpc", config.Observability.TracingProtocol)
}

func TestConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("MCPWIRE_TYPE", "sse")
	t.Setenv("MCPWIRE_ENDPOINT", "http://localhost:8080/events")
	t.Setenv("MCPWIRE_REQUEST_TIMEOUT", "5s")
	t.Setenv("MCPWIRE_LOG_LEVEL", "debug")
	t.Setenv("MCPWIRE_LOG_FORMAT", "json")
	t.Setenv("MCPWIRE_ENABLE_METRICS", "false")
	t.Setenv("MCPWIRE_TRACING_PROTOCOL", "http")

	config, err := ConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, TransportTypeSSE, config.Type)
	assert.Equal(t, "http://localhost:8080/events", config.Endpoint)
	assert.Equal(t, 5*time.Second, config.RequestTimeout)
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, "json", config.Logging.Format)
	assert.False(t, config.Observability.EnableMetrics)
	assert.Equal(t, "http", config.Observability.TracingProtocol)
}

func TestConfigFromEnvRejectsBadDuration(t *testing.T) {
	t.Setenv("MCPWIRE_REQUEST_TIMEOUT", "soon")

	_, err := ConfigFromEnv()
	assert.Error(t, err)
}

func TestNewTransportTypeHandling(t *testing.T) {
	t.Run("unknown type", func(t *testing.T) {
		_, err := NewTransport(TransportConfig{Type: "pigeon"})
		assert.ErrorIs(t, err, ErrUnsupportedTransportType)
	})

	t.Run("sse directs to ConnectSSE", func(t *testing.T) {
		config := DefaultTransportConfig(TransportTypeSSE)
		config.Endpoint = "http://localhost:8080/events"
		_, err := NewTransport(config)
		assert.ErrorIs(t, err, ErrUnsupportedTransportType)
	})

	t.Run("sse without endpoint fails validation", func(t *testing.T) {
		_, err := NewTransport(DefaultTransportConfig(TransportTypeSSE))
		assert.Error(t, err)
	})
}
