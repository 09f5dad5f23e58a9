package transport

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/mcpwire/mcpwire/pkg/observability"
	"github.com/mcpwire/mcpwire/pkg/protocol"
)

// Middleware wraps a Transport with additional behavior.
type Middleware interface {
	Wrap(transport Transport) Transport
}

// pendingCounter is implemented by transports that expose their outstanding
// request count.
type pendingCounter interface {
	PendingCount() int
}

// InstrumentationMiddleware records metrics and tracing spans around the
// send path.
type InstrumentationMiddleware struct {
	metrics *observability.Metrics
	tracing *observability.TracingProvider
}

// NewInstrumentationMiddleware creates the observability middleware. Either
// argument may be nil to disable that concern.
func NewInstrumentationMiddleware(metrics *observability.Metrics, tracing *observability.TracingProvider) *InstrumentationMiddleware {
	return &InstrumentationMiddleware{metrics: metrics, tracing: tracing}
}

// Wrap implements Middleware.
func (m *InstrumentationMiddleware) Wrap(transport Transport) Transport {
	return &instrumentedTransport{
		Transport: transport,
		metrics:   m.metrics,
		tracing:   m.tracing,
	}
}

type instrumentedTransport struct {
	Transport
	metrics *observability.Metrics
	tracing *observability.TracingProvider
}

// SendRequest instruments one request round trip.
func (t *instrumentedTransport) SendRequest(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	var span trace.Span
	if t.tracing != nil {
		ctx, span = t.tracing.StartMethodSpan(ctx, string(req.Method), trace.SpanKindClient)
		defer span.End()
	}

	start := time.Now()
	resp, err := t.Transport.SendRequest(ctx, req)
	elapsed := time.Since(start)

	if t.metrics != nil {
		t.metrics.RecordSent(string(protocol.MessageTypeRequest))
		status := "ok"
		if err != nil {
			status = "error"
		}
		t.metrics.RecordRequest(string(req.Method), status, elapsed)
		if pc, ok := t.Transport.(pendingCounter); ok {
			t.metrics.SetPendingRequests(pc.PendingCount())
		}
	}
	if err != nil && t.tracing != nil {
		t.tracing.RecordError(ctx, err)
	}
	return resp, err
}

// SendNotification instruments one outgoing notification.
func (t *instrumentedTransport) SendNotification(ctx context.Context, notif *protocol.Notification) error {
	var span trace.Span
	if t.tracing != nil {
		ctx, span = t.tracing.StartMethodSpan(ctx, string(notif.Method), trace.SpanKindProducer)
		defer span.End()
	}

	err := t.Transport.SendNotification(ctx, notif)

	if t.metrics != nil {
		t.metrics.RecordSent(string(protocol.MessageTypeNotification))
	}
	if err != nil && t.tracing != nil {
		t.tracing.RecordError(ctx, err)
	}
	return err
}

// CancelRequest instruments one cancellation.
func (t *instrumentedTransport) CancelRequest(ctx context.Context, id protocol.RequestID, reason string) error {
	err := t.Transport.CancelRequest(ctx, id, reason)
	if err == nil && t.metrics != nil {
		t.metrics.RecordCancellation()
		if pc, ok := t.Transport.(pendingCounter); ok {
			t.metrics.SetPendingRequests(pc.PendingCount())
		}
	}
	return err
}

// buildInstrumentation assembles the middleware described by the config, or
// returns nil when observability is disabled.
func buildInstrumentation(config TransportConfig) (*InstrumentationMiddleware, error) {
	var metrics *observability.Metrics
	var tracing *observability.TracingProvider
	var err error

	if config.Observability.EnableMetrics {
		metrics, err = observability.NewMetrics(observability.MetricsConfig{
			Namespace: config.Observability.MetricsPrefix,
		})
		if err != nil {
			return nil, err
		}
	}

	if config.Observability.EnableTracing {
		exporterType := observability.ExporterTypeOTLPGRPC
		if config.Observability.TracingProtocol == "http" {
			exporterType = observability.ExporterTypeOTLPHTTP
		}
		tracing, err = observability.NewTracingProvider(observability.TracingConfig{
			ServiceName:  "mcpwire",
			ExporterType: exporterType,
			Endpoint:     config.Observability.TracingEndpoint,
			Insecure:     config.Observability.TracingInsecure,
		})
		if err != nil {
			return nil, err
		}
	}

	if metrics == nil && tracing == nil {
		return nil, nil
	}
	return NewInstrumentationMiddleware(metrics, tracing), nil
}
