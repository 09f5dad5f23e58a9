// Package mcpwire implements the wire-protocol core of a JSON-RPC 2.0
// endpoint: a dynamic JSON value model, identifier unions, a typed message
// envelope with structural classification, the progress and cancellation
// correlation protocol, and transports carrying it all.
//
// # Sub-packages
//
//   - pkg/protocol: the JSON-RPC envelope, dynamic values, identifiers and
//     the message-typing substrate
//   - pkg/transport: stdio transport, SSE stream consumption and the
//     request correlation table
//   - pkg/errors: structured errors with categories, severities and wire
//     conversion
//   - pkg/logging: leveled structured logging with text and JSON output
//   - pkg/observability: Prometheus metrics and OpenTelemetry tracing
//
// # Decoding messages
//
//	msg, err := mcpwire.DecodeMessage(line)
//	if err != nil {
//	    // a *protocol.InvalidMessageError may still carry a usable id,
//	    // in which case it converts to an error reply for the peer
//	}
//	switch m := msg.(type) {
//	case *protocol.Request:
//	case *protocol.Notification:
//	case *protocol.Response:
//	case *protocol.ErrorResponse:
//	}
//
// # Running a stdio peer
//
//	config := mcpwire.DefaultTransportConfig(transport.TransportTypeStdio)
//	t, err := mcpwire.NewTransport(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	t.RegisterRequestHandler(mcpwire.MethodPing, func(ctx context.Context, req *protocol.Request) (interface{}, error) {
//	    return protocol.PingResult{}, nil
//	})
//	err = t.Start(ctx)
//
// See examples/echo for a complete runnable peer.
package mcpwire
