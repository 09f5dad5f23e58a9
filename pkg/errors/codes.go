package errors

// The five reserved JSON-RPC 2.0 error codes.
const (
	// CodeParseError indicates invalid JSON was received.
	CodeParseError int = -32700

	// CodeInvalidRequest indicates the JSON sent is not a valid request object.
	CodeInvalidRequest int = -32600

	// CodeMethodNotFound indicates the method does not exist or is unavailable.
	CodeMethodNotFound int = -32601

	// CodeInvalidParams indicates invalid method parameters.
	CodeInvalidParams int = -32602

	// CodeInternalError indicates an internal JSON-RPC error.
	CodeInternalError int = -32603
)

// Implementation-defined codes used by the transport layer. They sit in the
// server-reserved -32000..-32099 range.
const (
	// CodeRequestTimeout indicates a request was not answered within the
	// caller-supplied deadline.
	CodeRequestTimeout int = -32000

	// CodeRequestCancelled indicates a request was cancelled before a
	// terminal reply was observed.
	CodeRequestCancelled int = -32001

	// CodeStreamClosed indicates the underlying byte stream was closed.
	CodeStreamClosed int = -32002
)

// CodeInfo describes a known error code.
type CodeInfo struct {
	Code        int
	Name        string
	Description string
	Category    Category
	Severity    Severity
}

var codeRegistry = map[int]CodeInfo{
	CodeParseError:       {CodeParseError, "ParseError", "Invalid JSON was received", CategoryEnvelope, SeverityError},
	CodeInvalidRequest:   {CodeInvalidRequest, "InvalidRequest", "Invalid request object", CategoryEnvelope, SeverityError},
	CodeMethodNotFound:   {CodeMethodNotFound, "MethodNotFound", "Method does not exist", CategoryEnvelope, SeverityError},
	CodeInvalidParams:    {CodeInvalidParams, "InvalidParams", "Invalid method parameters", CategoryEnvelope, SeverityError},
	CodeInternalError:    {CodeInternalError, "InternalError", "Internal JSON-RPC error", CategoryInternal, SeverityError},
	CodeRequestTimeout:   {CodeRequestTimeout, "RequestTimeout", "Request deadline exceeded", CategoryTimeout, SeverityWarning},
	CodeRequestCancelled: {CodeRequestCancelled, "RequestCancelled", "Request cancelled before completion", CategoryCancelled, SeverityInfo},
	CodeStreamClosed:     {CodeStreamClosed, "StreamClosed", "Underlying stream closed", CategoryTransport, SeverityError},
}

// InfoForCode looks up a known code. The second return is false for codes
// outside the registry, which classify as application-defined.
func InfoForCode(code int) (CodeInfo, bool) {
	info, ok := codeRegistry[code]
	return info, ok
}

// CategoryForCode returns the protocol-layer category of a code. Codes this
// package does not recognize are application-defined by construction: they
// are legal on the wire and opaque to the core.
func CategoryForCode(code int) Category {
	if info, ok := codeRegistry[code]; ok {
		return info.Category
	}
	return CategoryApplication
}

// SeverityForCode returns the severity of a known code, defaulting to error.
func SeverityForCode(code int) Severity {
	if info, ok := codeRegistry[code]; ok {
		return info.Severity
	}
	return SeverityError
}
