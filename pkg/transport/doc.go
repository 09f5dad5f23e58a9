// Package transport carries JSON-RPC 2.0 messages between peers.
//
// Two mechanisms are provided. StdioTransport exchanges newline-delimited
// JSON over a reader/writer pair, the standard pairing for peers connected
// via pipes. SSEStream consumes a text/event-stream response, framing it
// line by line (ParseSSELine), assembling events (EventAssembler) and
// decoding each payload into a typed envelope.
//
// BaseTransport holds the shared correlation state: every outgoing request
// occupies one slot in a pending table keyed by its RequestID. A slot
// resolves at most once, whether by a reply, a timeout, or a cancellation;
// answers arriving after the slot is released are dropped silently.
// Progress notifications are validated for per-token monotonicity before
// delivery, and inbound cancellation notifications interrupt the context of
// the named in-flight handler.
//
// Transports are created from a TransportConfig:
//
//	config := transport.DefaultTransportConfig(transport.TransportTypeStdio)
//	t, err := transport.NewTransport(config)
//
// ConfigFromEnv builds the same configuration from MCPWIRE_* environment
// variables. When observability is enabled the returned transport is wrapped
// with metrics and tracing instrumentation.
package transport
