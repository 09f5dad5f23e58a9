// Package protocol implements the JSON-RPC 2.0 wire substrate of the Model
// Context Protocol: the envelope, the dynamic value representation, the
// identifier unions, and the typed-message binding layer.
//
// The Model Context Protocol (MCP) is a JSON-RPC based communication protocol
// used by both client and server roles to exchange requests, notifications,
// responses and errors over a transport. This package deliberately knows
// nothing about the MCP method catalogue: payloads are carried generically and
// refined into caller-supplied typed shapes on demand.
//
// # Package Organization
//
//   - jsonrpc.go: the envelope union (Request, Notification, Response,
//     ErrorResponse), structural classification and the generic wrap/unwrap
//     operations
//   - dynamic.go: Value, the JSON-compatible tagged union used wherever a
//     payload shape is not statically known
//   - id.go: RequestID and ProgressToken, the string-or-integer identifier
//     unions
//   - message.go: the typed-message contracts (RequestPayload,
//     NotificationPayload), reserved _meta handling and the lossless default
//     parameter shape
//   - progress.go: the cross-cutting progress and cancellation notification
//     payloads
//
// # Message Flow
//
// A typed payload is projected into the generic envelope with NewRequest or
// NewNotification, serialized with EncodeMessage, and handed to a transport.
// Inbound bytes are parsed with DecodeMessage, which validates the protocol
// version, classifies the message structurally by field presence, and returns
// one of the four variants. UnwrapRequest and UnwrapNotification refine a
// generic message back into a typed payload, verifying method identity first.
//
// # Error Handling
//
// Decode failures are *InvalidMessageError values carrying a reserved
// JSON-RPC code; when a request id was recoverable from the offending bytes
// the error can be projected back onto the wire. Method-identity and shape
// failures during unwrap are local (*MethodMismatchError, *ConversionError)
// and are never escalated to the peer automatically.
package protocol
