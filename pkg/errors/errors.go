// Package errors provides structured error handling for the wire-protocol
// core. It defines error types that map onto JSON-RPC error codes and carry
// enough context for both debugging and programmatic handling.
//
// The taxonomy follows the protocol layering: transport errors (broken
// streams, timeouts), envelope errors (the reserved JSON-RPC codes),
// conversion errors (typed refinement failures, always local), and
// application errors (any code outside the reserved range, opaque here).
// Timeout and cancellation are terminal states rather than protocol faults
// and are classified separately so callers can tell them apart.
package errors

import (
	"encoding/json"
	"fmt"
	"time"
)

// Category classifies an error by the protocol layer it belongs to.
type Category string

const (
	CategoryTransport   Category = "transport"
	CategoryEnvelope    Category = "envelope"
	CategoryConversion  Category = "conversion"
	CategoryApplication Category = "application"
	CategoryTimeout     Category = "timeout"
	CategoryCancelled   Category = "cancelled"
	CategoryInternal    Category = "internal"
)

// Severity indicates how critical an error is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Context records where and when an error occurred.
type Context struct {
	RequestID string    `json:"request_id,omitempty"`
	Method    string    `json:"method,omitempty"`
	Component string    `json:"component,omitempty"`
	Operation string    `json:"operation,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// WireError is the interface implemented by all errors of this package.
type WireError interface {
	error

	// Code returns the JSON-RPC error code.
	Code() int

	// Message returns a human-readable error message.
	Message() string

	// Data returns structured error data for programmatic handling.
	Data() interface{}

	// Category returns the protocol layer classification.
	Category() Category

	// Severity returns the severity level.
	Severity() Severity

	// Context returns where and when the error occurred.
	Context() *Context

	// WithContext returns a copy with the provided context.
	WithContext(ctx *Context) WireError

	// WithDetail returns a copy with additional detail appended.
	WithDetail(detail string) WireError

	// WithData returns a copy carrying structured data.
	WithData(data interface{}) WireError

	// Unwrap returns the underlying cause, if any.
	Unwrap() error
}

type baseError struct {
	code     int
	message  string
	details  string
	data     interface{}
	category Category
	severity Severity
	context  *Context
	cause    error
}

func (e *baseError) Error() string {
	if e.details != "" {
		return fmt.Sprintf("%s: %s", e.message, e.details)
	}
	return e.message
}

func (e *baseError) Code() int          { return e.code }
func (e *baseError) Message() string    { return e.message }
func (e *baseError) Data() interface{}  { return e.data }
func (e *baseError) Category() Category { return e.category }
func (e *baseError) Severity() Severity { return e.severity }
func (e *baseError) Context() *Context  { return e.context }
func (e *baseError) Unwrap() error      { return e.cause }

func (e *baseError) WithContext(ctx *Context) WireError {
	newErr := *e
	newErr.context = ctx
	return &newErr
}

func (e *baseError) WithDetail(detail string) WireError {
	newErr := *e
	if newErr.details != "" {
		newErr.details = fmt.Sprintf("%s; %s", newErr.details, detail)
	} else {
		newErr.details = detail
	}
	return &newErr
}

func (e *baseError) WithData(data interface{}) WireError {
	newErr := *e
	newErr.data = data
	return &newErr
}

// MarshalJSON renders the error as a structured object for logging.
func (e *baseError) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{
		"code":     e.code,
		"message":  e.message,
		"category": string(e.category),
		"severity": string(e.severity),
	}
	if e.details != "" {
		out["details"] = e.details
	}
	if e.data != nil {
		out["data"] = e.data
	}
	if e.context != nil {
		out["context"] = e.context
	}
	if e.cause != nil {
		out["cause"] = e.cause.Error()
	}
	return json.Marshal(out)
}

// New creates a WireError with the given classification.
func New(code int, message string, category Category, severity Severity) WireError {
	return &baseError{
		code:     code,
		message:  message,
		category: category,
		severity: severity,
		context:  &Context{Timestamp: time.Now()},
	}
}

// Newf creates a WireError with a formatted message.
func Newf(code int, category Category, severity Severity, format string, args ...interface{}) WireError {
	return &baseError{
		code:     code,
		message:  fmt.Sprintf(format, args...),
		category: category,
		severity: severity,
		context:  &Context{Timestamp: time.Now()},
	}
}

// Wrap attaches protocol classification to an existing error.
func Wrap(err error, code int, message string, category Category, severity Severity) WireError {
	return &baseError{
		code:     code,
		message:  message,
		category: category,
		severity: severity,
		cause:    err,
		context:  &Context{Timestamp: time.Now()},
	}
}

// AsWireError extracts a WireError from any error.
func AsWireError(err error) (WireError, bool) {
	if err == nil {
		return nil, false
	}
	if we, ok := err.(WireError); ok {
		return we, true
	}
	return nil, false
}

// IsCategory reports whether err carries the given category.
func IsCategory(err error, category Category) bool {
	if we, ok := AsWireError(err); ok {
		return we.Category() == category
	}
	return false
}

// IsCode reports whether err carries the given JSON-RPC code.
func IsCode(err error, code int) bool {
	if we, ok := AsWireError(err); ok {
		return we.Code() == code
	}
	return false
}

// IsTimeout reports whether err is a request-timeout terminal state.
func IsTimeout(err error) bool { return IsCategory(err, CategoryTimeout) }

// IsCancelled reports whether err is a cancellation terminal state.
func IsCancelled(err error) bool { return IsCategory(err, CategoryCancelled) }
