package transport

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/mcpwire/mcpwire/pkg/logging"
)

// TransportType identifies the transport implementation.
type TransportType string

const (
	// TransportTypeStdio exchanges newline-delimited JSON over stdin/stdout.
	TransportTypeStdio TransportType = "stdio"
	// TransportTypeSSE consumes a server-sent event stream. It is
	// receive-only; use ConnectSSE rather than NewTransport.
	TransportTypeSSE TransportType = "sse"
)

// TransportConfig is the unified configuration for transports. Fields carry
// envconfig tags so ConfigFromEnv can populate them from MCPWIRE_* variables.
type TransportConfig struct {
	// Type of transport to create.
	Type TransportType `json:"type" envconfig:"TYPE" default:"stdio"`

	// Endpoint of the SSE stream (SSE only).
	Endpoint string `json:"endpoint,omitempty" envconfig:"ENDPOINT"`

	// RequestTimeout bounds how long SendRequest waits for a reply.
	RequestTimeout time.Duration `json:"request_timeout" envconfig:"REQUEST_TIMEOUT" default:"30s"`

	// BufferSize for the read scanner, in bytes.
	BufferSize int `json:"buffer_size" envconfig:"BUFFER_SIZE" default:"1048576"`

	// Custom reader/writer for stdio, used by tests. Defaults to
	// os.Stdin/os.Stdout when nil.
	StdioReader io.Reader `json:"-" ignored:"true"`
	StdioWriter io.Writer `json:"-" ignored:"true"`

	Logging       LoggingConfig       `json:"logging"`
	Observability ObservabilityConfig `json:"observability"`

	// Logger overrides the logger built from Logging when set.
	Logger logging.Logger `json:"-" ignored:"true"`
}

// LoggingConfig controls the transport's structured logger.
type LoggingConfig struct {
	Level  string `json:"level" envconfig:"LOG_LEVEL" default:"info"`
	Format string `json:"format" envconfig:"LOG_FORMAT" default:"text"`
}

// ObservabilityConfig controls metrics and tracing on the message path.
type ObservabilityConfig struct {
	EnableMetrics   bool   `json:"enable_metrics" envconfig:"ENABLE_METRICS" default:"true"`
	EnableTracing   bool   `json:"enable_tracing" envconfig:"ENABLE_TRACING"`
	MetricsPrefix   string `json:"metrics_prefix" envconfig:"METRICS_PREFIX" default:"mcpwire"`
	TracingEndpoint string `json:"tracing_endpoint" envconfig:"TRACING_ENDPOINT"`
	// TracingProtocol selects the OTLP exporter: "grpc" or "http".
	TracingProtocol string `json:"tracing_protocol" envconfig:"TRACING_PROTOCOL" default:"grpc"`
	TracingInsecure bool   `json:"tracing_insecure" envconfig:"TRACING_INSECURE"`
}

// DefaultTransportConfig returns a configuration with sensible defaults for
// the given transport type.
func DefaultTransportConfig(transportType TransportType) TransportConfig {
	return TransportConfig{
		Type:           transportType,
		RequestTimeout: 30 * time.Second,
		BufferSize:     1 << 20,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Observability: ObservabilityConfig{
			EnableMetrics:   true,
			MetricsPrefix:   "mcpwire",
			TracingProtocol: "grpc",
		},
	}
}

// ConfigFromEnv builds a TransportConfig from MCPWIRE_* environment
// variables, e.g. MCPWIRE_TYPE, MCPWIRE_REQUEST_TIMEOUT, MCPWIRE_LOG_LEVEL.
func ConfigFromEnv() (TransportConfig, error) {
	var config TransportConfig
	if err := envconfig.Process("mcpwire", &config); err != nil {
		return TransportConfig{}, fmt.Errorf("failed to read transport config from environment: %w", err)
	}
	return config, nil
}

// ErrUnsupportedTransportType is returned for transport types NewTransport
// cannot construct.
var ErrUnsupportedTransportType = errors.New("unsupported transport type")

// NewTransport creates a transport from config. The SSE type is a stream
// consumer, not a bidirectional transport, and is constructed with ConnectSSE
// instead.
func NewTransport(config TransportConfig) (Transport, error) {
	if err := validateTransportConfig(config); err != nil {
		return nil, err
	}

	switch config.Type {
	case TransportTypeStdio:
	case TransportTypeSSE:
		return nil, fmt.Errorf("%w: SSE streams are receive-only, use ConnectSSE", ErrUnsupportedTransportType)
	default:
		return nil, ErrUnsupportedTransportType
	}

	stdio, err := newStdioTransport(config)
	if err != nil {
		return nil, err
	}

	instrumentation, err := buildInstrumentation(config)
	if err != nil {
		return nil, err
	}
	if instrumentation != nil {
		// The middleware covers the send path; the transport itself records
		// the receive path.
		stdio.SetMetrics(instrumentation.metrics)
		return instrumentation.Wrap(stdio), nil
	}
	return stdio, nil
}

func validateTransportConfig(config TransportConfig) error {
	switch config.Type {
	case TransportTypeStdio:
		return nil
	case TransportTypeSSE:
		if config.Endpoint == "" {
			return errors.New("endpoint is required for the SSE transport")
		}
		return nil
	default:
		return ErrUnsupportedTransportType
	}
}

// loggerFromConfig builds the transport logger, honoring a caller-supplied
// Logger override.
func loggerFromConfig(config TransportConfig) logging.Logger {
	if config.Logger != nil {
		return config.Logger
	}

	var formatter logging.Formatter
	switch config.Logging.Format {
	case "json":
		formatter = logging.NewJSONFormatter()
	default:
		formatter = logging.NewTextFormatter()
	}
	logger := logging.New(nil, formatter)

	switch config.Logging.Level {
	case "debug":
		logger.SetLevel(logging.DebugLevel)
	case "warn":
		logger.SetLevel(logging.WarnLevel)
	case "error":
		logger.SetLevel(logging.ErrorLevel)
	default:
		logger.SetLevel(logging.InfoLevel)
	}
	return logger
}
