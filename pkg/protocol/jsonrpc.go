package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	// JSONRPCVersion is the only protocol marker this package will emit or
	// accept. Any other value is a hard decode failure.
	JSONRPCVersion = "2.0"
)

// ErrorCode is a JSON-RPC 2.0 error code.
type ErrorCode int

// The five reserved JSON-RPC 2.0 error codes. Codes outside this enumeration
// are legal on the wire and classify as application-defined.
const (
	ParseError     ErrorCode = -32700
	InvalidRequest ErrorCode = -32600
	MethodNotFound ErrorCode = -32601
	InvalidParams  ErrorCode = -32602
	InternalError  ErrorCode = -32603
)

// IsReserved reports whether c is one of the five reserved JSON-RPC codes.
func (c ErrorCode) IsReserved() bool {
	switch c {
	case ParseError, InvalidRequest, MethodNotFound, InvalidParams, InternalError:
		return true
	default:
		return false
	}
}

// MessageType discriminates the four envelope variants.
type MessageType string

const (
	MessageTypeRequest      MessageType = "request"
	MessageTypeNotification MessageType = "notification"
	MessageTypeResponse     MessageType = "response"
	MessageTypeError        MessageType = "error"
)

// Message is the JSON-RPC envelope: a closed union over the four wire
// variants. Only Request, Notification, Response and ErrorResponse implement
// it, which keeps dispatch over inbound traffic exhaustive.
type Message interface {
	// Type identifies the envelope variant.
	Type() MessageType
}

// Request is the envelope variant carrying an id and a method.
// Params are stored generically and refined into a typed shape on demand.
type Request struct {
	JSONRPC string
	ID      RequestID
	Method  Method
	Params  map[string]Value
}

// Type implements Message.
func (r *Request) Type() MessageType { return MessageTypeRequest }

// Notification is the envelope variant carrying a method but no id; it never
// receives a reply.
type Notification struct {
	JSONRPC string
	Method  Method
	Params  map[string]Value
}

// Type implements Message.
func (n *Notification) Type() MessageType { return MessageTypeNotification }

// Response is the successful reply variant: an id and a result, stored
// generically.
type Response struct {
	JSONRPC string
	ID      RequestID
	Result  Value
}

// Type implements Message.
func (r *Response) Type() MessageType { return MessageTypeResponse }

// ErrorResponse is the failure reply variant: an id and an error object.
type ErrorResponse struct {
	JSONRPC string
	ID      RequestID
	Error   *Error
}

// Type implements Message.
func (r *ErrorResponse) Type() MessageType { return MessageTypeError }

// Err returns the carried error object as a Go error.
func (r *ErrorResponse) Err() error { return r.Error }

// Error is the JSON-RPC error object carried by the error variant.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    *Value    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("jsonrpc: code %d, message: %s", e.Code, e.Message)
}

// NewRequest projects a typed request payload into the generic envelope. The
// method comes from the payload's static declaration, never from the caller.
func NewRequest[P RequestPayload](id RequestID, params P) (*Request, error) {
	if !id.IsValid() {
		return nil, fmt.Errorf("request requires a valid id")
	}
	m, err := paramsToMap(params)
	if err != nil {
		return nil, err
	}
	return &Request{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Method:  params.RequestMethod(),
		Params:  m,
	}, nil
}

// NewNotification projects a typed notification payload into the generic
// envelope.
func NewNotification[P NotificationPayload](params P) (*Notification, error) {
	m, err := paramsToMap(params)
	if err != nil {
		return nil, err
	}
	return &Notification{
		JSONRPC: JSONRPCVersion,
		Method:  params.NotificationMethod(),
		Params:  m,
	}, nil
}

// NewResponse builds a successful reply carrying result, which may be any
// JSON-serializable value.
func NewResponse(id RequestID, result any) (*Response, error) {
	if !id.IsValid() {
		return nil, fmt.Errorf("response requires a valid id")
	}
	v, err := FromTyped(result)
	if err != nil {
		return nil, err
	}
	return &Response{JSONRPC: JSONRPCVersion, ID: id, Result: v}, nil
}

// NewErrorResponse builds a failure reply. Data may be nil.
func NewErrorResponse(id RequestID, code ErrorCode, message string, data any) (*ErrorResponse, error) {
	if !id.IsValid() {
		return nil, fmt.Errorf("error response requires a valid id")
	}
	wireErr := &Error{Code: code, Message: message}
	if data != nil {
		v, err := FromTyped(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal error data: %w", err)
		}
		wireErr.Data = &v
	}
	return &ErrorResponse{JSONRPC: JSONRPCVersion, ID: id, Error: wireErr}, nil
}

// paramsToMap serializes a typed payload into the generic parameter mapping.
// A payload that marshals to {} produces an empty, non-nil map so that the
// params key survives on the wire.
func paramsToMap(params any) (map[string]Value, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	if bytes.Equal(bytes.TrimSpace(data), nullLiteral) {
		return nil, nil
	}
	var m map[string]Value
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("params must serialize to an object: %w", err)
	}
	if m == nil {
		m = map[string]Value{}
	}
	return m, nil
}

// refineParams deserializes the generic parameter mapping into a typed
// destination. Absent params refine like an empty object.
func refineParams(params map[string]Value, dst any) error {
	if params == nil {
		params = map[string]Value{}
	}
	data, err := json.Marshal(params)
	if err != nil {
		return &ConversionError{Target: fmt.Sprintf("%T", dst), Err: err}
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return &ConversionError{Target: fmt.Sprintf("%T", dst), Err: err}
	}
	return nil
}

// UnwrapRequest refines a generic request back into the typed payload P.
// It fails with a MethodMismatchError when the envelope carries a different
// method ("not for me"), and with a ConversionError when the method matches
// but the parameter shape does not ("malformed").
func UnwrapRequest[P RequestPayload](req *Request) (P, error) {
	var p P
	if err := verifyMethod(req.Method, p.RequestMethod()); err != nil {
		return p, err
	}
	if err := refineParams(req.Params, &p); err != nil {
		return p, err
	}
	return p, nil
}

// UnwrapNotification refines a generic notification back into the typed
// payload P with the same failure split as UnwrapRequest.
func UnwrapNotification[P NotificationPayload](n *Notification) (P, error) {
	var p P
	if err := verifyMethod(n.Method, p.NotificationMethod()); err != nil {
		return p, err
	}
	if err := refineParams(n.Params, &p); err != nil {
		return p, err
	}
	return p, nil
}

// UnwrapResult refines a generically stored result into R.
func UnwrapResult[R any](resp *Response) (R, error) {
	return ConvertTo[R](resp.Result)
}

// InvalidMessageError describes inbound bytes that could not be decoded into
// any envelope variant. When the offending message carried a recoverable
// request id, the error can be projected back onto the wire as an
// ErrorResponse for the peer; otherwise the stream owner must treat it as a
// stream-level fault.
type InvalidMessageError struct {
	Code   ErrorCode
	Reason string
	ID     RequestID // recoverable request id, when any
	Err    error
}

func (e *InvalidMessageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid message: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid message: %s", e.Reason)
}

func (e *InvalidMessageError) Unwrap() error { return e.Err }

// Recoverable reports whether a request id could be salvaged from the
// offending bytes, making the error reportable to the peer.
func (e *InvalidMessageError) Recoverable() bool { return e.ID.IsValid() }

// WireError projects the failure into a JSON-RPC error object.
func (e *InvalidMessageError) WireError() *Error {
	return &Error{Code: e.Code, Message: e.Reason}
}

// Response builds the ErrorResponse reporting this failure to the peer.
// It returns nil when no request id was recoverable.
func (e *InvalidMessageError) Response() *ErrorResponse {
	if !e.Recoverable() {
		return nil
	}
	return &ErrorResponse{JSONRPC: JSONRPCVersion, ID: e.ID, Error: e.WireError()}
}

// rawEnvelope is the structural probe used for classification. Field presence
// is tracked through raw bytes so that explicit null and absent are
// distinguishable.
type rawEnvelope struct {
	JSONRPC *string         `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  Method          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`
}

func (raw *rawEnvelope) hasID() bool {
	return len(raw.ID) > 0 && !bytes.Equal(bytes.TrimSpace(raw.ID), nullLiteral)
}

func (raw *rawEnvelope) hasResult() bool { return len(raw.Result) > 0 }

func (raw *rawEnvelope) hasError() bool {
	return len(raw.Error) > 0 && !bytes.Equal(bytes.TrimSpace(raw.Error), nullLiteral)
}

// classify applies the structural rules: id+method => request, method alone =>
// notification, id+result => response, id+error => error. A message matching
// more than one variant (method alongside result or error, or result alongside
// error) is rejected outright rather than silently picking a winner.
func (raw *rawEnvelope) classify() (MessageType, error) {
	hasMethod := raw.Method != ""
	switch {
	case hasMethod && (raw.hasResult() || raw.hasError()):
		return "", &InvalidMessageError{
			Code:   InvalidRequest,
			Reason: "message mixes method with result or error",
			ID:     salvageID(raw.ID),
		}
	case hasMethod && raw.hasID():
		return MessageTypeRequest, nil
	case hasMethod:
		return MessageTypeNotification, nil
	case raw.hasResult() && raw.hasError():
		return "", &InvalidMessageError{
			Code:   InvalidRequest,
			Reason: "message carries both result and error",
			ID:     salvageID(raw.ID),
		}
	case raw.hasID() && raw.hasResult():
		return MessageTypeResponse, nil
	case raw.hasID() && raw.hasError():
		return MessageTypeError, nil
	default:
		return "", &InvalidMessageError{
			Code:   InvalidRequest,
			Reason: "message matches no JSON-RPC variant",
			ID:     salvageID(raw.ID),
		}
	}
}

func probe(data []byte) (*rawEnvelope, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &InvalidMessageError{
			Code:   ParseError,
			Reason: "malformed JSON",
			Err:    err,
		}
	}
	// Version is validated before any structural inspection.
	if raw.JSONRPC == nil || *raw.JSONRPC != JSONRPCVersion {
		got := "<absent>"
		if raw.JSONRPC != nil {
			got = *raw.JSONRPC
		}
		return nil, &InvalidMessageError{
			Code:   InvalidRequest,
			Reason: fmt.Sprintf("jsonrpc version must be %q, got %q", JSONRPCVersion, got),
			ID:     salvageID(raw.ID),
		}
	}
	return &raw, nil
}

// salvageID best-effort decodes an id from raw bytes so that decode failures
// can still be reported to the peer. Failure to salvage is not an error.
func salvageID(data []byte) RequestID {
	if len(data) == 0 {
		return RequestID{}
	}
	var id RequestID
	if err := id.UnmarshalJSON(data); err != nil {
		return RequestID{}
	}
	return id
}

// ClassifyMessage inspects raw bytes and reports which envelope variant they
// hold, without fully decoding the payload. The version marker is checked
// first; classification is purely structural.
func ClassifyMessage(data []byte) (MessageType, error) {
	raw, err := probe(data)
	if err != nil {
		return "", err
	}
	return raw.classify()
}

// DecodeMessage parses raw bytes into one of the four envelope variants.
// All failures are *InvalidMessageError; when the offending bytes carried a
// usable request id it is preserved so the caller can answer the peer.
// Syntactically malformed JSON yields ParseError (-32700) per JSON-RPC 2.0;
// well-formed JSON that matches no variant yields InvalidRequest (-32600).
func DecodeMessage(data []byte) (Message, error) {
	raw, err := probe(data)
	if err != nil {
		return nil, err
	}
	mt, err := raw.classify()
	if err != nil {
		return nil, err
	}

	switch mt {
	case MessageTypeRequest:
		var id RequestID
		if err := id.UnmarshalJSON(raw.ID); err != nil {
			return nil, &InvalidMessageError{Code: InvalidRequest, Reason: "bad request id", Err: err}
		}
		params, err := decodeParams(raw.Params)
		if err != nil {
			return nil, &InvalidMessageError{Code: InvalidRequest, Reason: "params must be an object", ID: id, Err: err}
		}
		return &Request{JSONRPC: JSONRPCVersion, ID: id, Method: raw.Method, Params: params}, nil

	case MessageTypeNotification:
		params, err := decodeParams(raw.Params)
		if err != nil {
			return nil, &InvalidMessageError{Code: InvalidRequest, Reason: "params must be an object", Err: err}
		}
		return &Notification{JSONRPC: JSONRPCVersion, Method: raw.Method, Params: params}, nil

	case MessageTypeResponse:
		var id RequestID
		if err := id.UnmarshalJSON(raw.ID); err != nil {
			return nil, &InvalidMessageError{Code: InvalidRequest, Reason: "bad response id", Err: err}
		}
		result, err := DecodeValue(raw.Result)
		if err != nil {
			return nil, &InvalidMessageError{Code: InvalidRequest, Reason: "bad result payload", ID: id, Err: err}
		}
		return &Response{JSONRPC: JSONRPCVersion, ID: id, Result: result}, nil

	case MessageTypeError:
		var id RequestID
		if err := id.UnmarshalJSON(raw.ID); err != nil {
			return nil, &InvalidMessageError{Code: InvalidRequest, Reason: "bad response id", Err: err}
		}
		var wireErr Error
		if err := json.Unmarshal(raw.Error, &wireErr); err != nil {
			return nil, &InvalidMessageError{Code: InvalidRequest, Reason: "bad error object", ID: id, Err: err}
		}
		return &ErrorResponse{JSONRPC: JSONRPCVersion, ID: id, Error: &wireErr}, nil

	default:
		return nil, &InvalidMessageError{Code: InvalidRequest, Reason: "message matches no JSON-RPC variant"}
	}
}

func decodeParams(data []byte) (map[string]Value, error) {
	if len(data) == 0 || bytes.Equal(bytes.TrimSpace(data), nullLiteral) {
		return nil, nil
	}
	var m map[string]Value
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]Value{}
	}
	return m, nil
}

// EncodeMessage serializes any envelope variant back to wire bytes.
func EncodeMessage(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("cannot encode a nil message")
	}
	return json.Marshal(m)
}

// MarshalJSON writes the request envelope. The params key is omitted only
// when no parameter mapping is attached at all; an empty mapping encodes as
// an empty object.
func (r *Request) MarshalJSON() ([]byte, error) {
	obj := map[string]any{
		"jsonrpc": versionOrDefault(r.JSONRPC),
		"id":      r.ID,
		"method":  r.Method,
	}
	if r.Params != nil {
		obj["params"] = r.Params
	}
	return json.Marshal(obj)
}

// UnmarshalJSON decodes via DecodeMessage and rejects any other variant.
func (r *Request) UnmarshalJSON(data []byte) error {
	msg, err := DecodeMessage(data)
	if err != nil {
		return err
	}
	req, ok := msg.(*Request)
	if !ok {
		return fmt.Errorf("expected a request, decoded a %s", msg.Type())
	}
	*r = *req
	return nil
}

// MarshalJSON writes the notification envelope.
func (n *Notification) MarshalJSON() ([]byte, error) {
	obj := map[string]any{
		"jsonrpc": versionOrDefault(n.JSONRPC),
		"method":  n.Method,
	}
	if n.Params != nil {
		obj["params"] = n.Params
	}
	return json.Marshal(obj)
}

// UnmarshalJSON decodes via DecodeMessage and rejects any other variant.
func (n *Notification) UnmarshalJSON(data []byte) error {
	msg, err := DecodeMessage(data)
	if err != nil {
		return err
	}
	note, ok := msg.(*Notification)
	if !ok {
		return fmt.Errorf("expected a notification, decoded a %s", msg.Type())
	}
	*n = *note
	return nil
}

// MarshalJSON writes the response envelope. The result key is always present,
// even when the result is null.
func (r *Response) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"jsonrpc": versionOrDefault(r.JSONRPC),
		"id":      r.ID,
		"result":  r.Result,
	})
}

// UnmarshalJSON decodes via DecodeMessage and rejects any other variant.
func (r *Response) UnmarshalJSON(data []byte) error {
	msg, err := DecodeMessage(data)
	if err != nil {
		return err
	}
	resp, ok := msg.(*Response)
	if !ok {
		return fmt.Errorf("expected a response, decoded a %s", msg.Type())
	}
	*r = *resp
	return nil
}

// MarshalJSON writes the error envelope.
func (r *ErrorResponse) MarshalJSON() ([]byte, error) {
	if r.Error == nil {
		return nil, fmt.Errorf("error response requires an error object")
	}
	return json.Marshal(map[string]any{
		"jsonrpc": versionOrDefault(r.JSONRPC),
		"id":      r.ID,
		"error":   r.Error,
	})
}

// UnmarshalJSON decodes via DecodeMessage and rejects any other variant.
func (r *ErrorResponse) UnmarshalJSON(data []byte) error {
	msg, err := DecodeMessage(data)
	if err != nil {
		return err
	}
	resp, ok := msg.(*ErrorResponse)
	if !ok {
		return fmt.Errorf("expected an error response, decoded a %s", msg.Type())
	}
	*r = *resp
	return nil
}

func versionOrDefault(v string) string {
	if v == "" {
		return JSONRPCVersion
	}
	return v
}
