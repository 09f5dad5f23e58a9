package errors

import (
	"fmt"
	"time"
)

// TransportErrorData carries structured detail for transport failures.
type TransportErrorData struct {
	Transport string `json:"transport"`
	Operation string `json:"operation,omitempty"`
	Endpoint  string `json:"endpoint,omitempty"`
	Retryable bool   `json:"retryable"`
	Reason    string `json:"reason,omitempty"`
}

// TransportError wraps a low-level I/O failure with transport classification.
func TransportError(transport, operation string, cause error) WireError {
	message := fmt.Sprintf("%s transport error", transport)
	if operation != "" {
		message = fmt.Sprintf("%s transport error during %s", transport, operation)
	}
	reason := ""
	if cause != nil {
		message = fmt.Sprintf("%s: %s", message, cause.Error())
		reason = cause.Error()
	}
	return Wrap(cause, CodeStreamClosed, message, CategoryTransport, SeverityError).
		WithData(&TransportErrorData{
			Transport: transport,
			Operation: operation,
			Retryable: true,
			Reason:    reason,
		})
}

// StreamClosed reports that the peer's byte stream ended.
func StreamClosed(transport string, cause error) WireError {
	message := fmt.Sprintf("%s stream closed", transport)
	if cause != nil {
		message = fmt.Sprintf("%s: %s", message, cause.Error())
	}
	return Wrap(cause, CodeStreamClosed, message, CategoryTransport, SeverityError).
		WithData(&TransportErrorData{Transport: transport, Retryable: false})
}

// RequestTimeout reports that a request went unanswered for the given
// duration. It is a terminal state of the request, not a protocol fault.
func RequestTimeout(requestID string, timeout time.Duration) WireError {
	return Newf(CodeRequestTimeout, CategoryTimeout, SeverityWarning,
		"request %s timed out after %s", requestID, timeout).
		WithContext(&Context{RequestID: requestID, Timestamp: time.Now()})
}

// RequestCancelled reports that a request was cancelled before its terminal
// reply was observed. Like timeout, it is a terminal state, distinguishable
// from protocol errors via IsCancelled.
func RequestCancelled(requestID, reason string) WireError {
	message := fmt.Sprintf("request %s cancelled", requestID)
	if reason != "" {
		message = fmt.Sprintf("%s: %s", message, reason)
	}
	return New(CodeRequestCancelled, message, CategoryCancelled, SeverityInfo).
		WithContext(&Context{RequestID: requestID, Timestamp: time.Now()})
}

// EnvelopeError reports an inbound message that failed envelope validation.
func EnvelopeError(code int, reason string, cause error) WireError {
	return Wrap(cause, code, reason, CategoryEnvelope, SeverityError)
}

// MethodNotFound reports a request naming a method with no registered handler.
func MethodNotFound(method string) WireError {
	return Newf(CodeMethodNotFound, CategoryEnvelope, SeverityWarning,
		"no handler for method %q", method).
		WithContext(&Context{Method: method, Timestamp: time.Now()})
}

// InvalidParams reports parameters that failed typed refinement on the
// receiving side, where the failure must be answered on the wire.
func InvalidParams(method string, cause error) WireError {
	return Wrap(cause, CodeInvalidParams,
		fmt.Sprintf("invalid parameters for %q", method),
		CategoryConversion, SeverityError).
		WithContext(&Context{Method: method, Timestamp: time.Now()})
}
