package protocol

import (
	"encoding/json"
	"fmt"
)

// Method names an RPC method. Method identifiers are namespaced path-like
// strings ("notifications/cancelled", "resources/templates/list"); the full
// catalogue is defined by the surrounding protocol layer, not here.
type Method string

// Methods the substrate itself must know about: the lifecycle handshake and
// the cross-cutting progress/cancellation notifications, plus ping as the
// smallest catalogue instance.
const (
	MethodInitialize  Method = "initialize"
	MethodInitialized Method = "notifications/initialized"
	MethodProgress    Method = "notifications/progress"
	MethodCancelled   Method = "notifications/cancelled"
	MethodPing        Method = "ping"
)

// RequestPayload is implemented by parameter types bound to exactly one
// request method. The declared method is static: decoding a wire payload into
// the type fails unless the wire method matches it.
type RequestPayload interface {
	RequestMethod() Method
}

// NotificationPayload is the counterpart contract for notification
// parameters. Notifications never expect a reply.
type NotificationPayload interface {
	NotificationMethod() Method
}

// MethodMismatchError reports that a wire message carried a different method
// than the typed payload it was being decoded into. It means "this message is
// not for this type" and is distinct from a parameter shape mismatch, so
// callers can route elsewhere instead of rejecting the message.
type MethodMismatchError struct {
	Want Method
	Got  Method
}

func (e *MethodMismatchError) Error() string {
	return fmt.Sprintf("method mismatch: payload is bound to %q, wire message carries %q", e.Want, e.Got)
}

// ConversionError reports that a generically stored payload could not be
// refined into the requested typed shape. It is always local and never
// auto-escalated to a wire error.
type ConversionError struct {
	Target string
	Err    error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("cannot convert payload into %s: %v", e.Target, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// verifyMethod is the single enforcement point preventing a wire payload from
// being bound to the wrong typed shape.
func verifyMethod(got, want Method) error {
	if got != want {
		return &MethodMismatchError{Want: want, Got: got}
	}
	return nil
}

// ParamsMeta is the reserved "_meta" mapping carried by request parameters.
// The progress token, when present, asks the receiver to emit
// notifications/progress for the request. Any other metadata keys are
// preserved verbatim in Extra.
type ParamsMeta struct {
	ProgressToken ProgressToken
	Extra         map[string]Value
}

// MarshalJSON writes progressToken (when set) alongside the preserved
// metadata keys.
func (m ParamsMeta) MarshalJSON() ([]byte, error) {
	obj := make(map[string]Value, len(m.Extra)+1)
	for k, v := range m.Extra {
		obj[k] = v
	}
	if m.ProgressToken.IsValid() {
		tok, err := FromTyped(m.ProgressToken)
		if err != nil {
			return nil, err
		}
		obj["progressToken"] = tok
	}
	return json.Marshal(obj)
}

// UnmarshalJSON splits progressToken out of the metadata mapping and keeps the
// remaining keys losslessly.
func (m *ParamsMeta) UnmarshalJSON(data []byte) error {
	var obj map[string]Value
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("_meta must be an object: %w", err)
	}
	out := ParamsMeta{}
	for k, v := range obj {
		if k == "progressToken" {
			tok, err := ConvertTo[ProgressToken](v)
			if err != nil {
				return fmt.Errorf("_meta.progressToken: %w", err)
			}
			out.ProgressToken = tok
			continue
		}
		if out.Extra == nil {
			out.Extra = make(map[string]Value)
		}
		out.Extra[k] = v
	}
	*m = out
	return nil
}

// BaseParams is the default parameter shape for methods that declare no
// properties of their own. It still captures every key it is handed: the
// reserved "_meta" mapping goes to Meta and all unknown sibling keys are
// preserved in Extra, so a decode followed by a re-encode drops nothing.
//
// Do not embed BaseParams in a payload type that declares its own fields:
// embedding promotes its MarshalJSON/UnmarshalJSON, so the declared fields
// are ignored on both paths and end up in Extra at best. Payload types with
// properties define their own fields directly and reach reserved metadata
// through ProgressTokenFromParams.
type BaseParams struct {
	Meta  *ParamsMeta
	Extra map[string]Value
}

// MarshalJSON reassembles the preserved keys. Empty params encode as {}.
func (p BaseParams) MarshalJSON() ([]byte, error) {
	obj := make(map[string]json.RawMessage, len(p.Extra)+1)
	for k, v := range p.Extra {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		obj[k] = raw
	}
	if p.Meta != nil {
		raw, err := json.Marshal(p.Meta)
		if err != nil {
			return nil, err
		}
		obj["_meta"] = raw
	}
	return json.Marshal(obj)
}

// UnmarshalJSON captures "_meta" and every sibling key.
func (p *BaseParams) UnmarshalJSON(data []byte) error {
	var obj map[string]Value
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("params must be an object: %w", err)
	}
	out := BaseParams{}
	for k, v := range obj {
		if k == "_meta" {
			meta, err := ConvertTo[ParamsMeta](v)
			if err != nil {
				return err
			}
			out.Meta = &meta
			continue
		}
		if out.Extra == nil {
			out.Extra = make(map[string]Value)
		}
		out.Extra[k] = v
	}
	*p = out
	return nil
}

// ProgressTokenFromParams extracts the reserved _meta.progressToken from a
// generically stored parameter mapping. The second return is false when no
// token is attached.
func ProgressTokenFromParams(params map[string]Value) (ProgressToken, bool) {
	meta, ok := params["_meta"]
	if !ok {
		return ProgressToken{}, false
	}
	obj, ok := meta.AsObject()
	if !ok {
		return ProgressToken{}, false
	}
	raw, ok := obj["progressToken"]
	if !ok {
		return ProgressToken{}, false
	}
	tok, err := ConvertTo[ProgressToken](raw)
	if err != nil || !tok.IsValid() {
		return ProgressToken{}, false
	}
	return tok, true
}

// ResultMeta is the reserved "_meta" mapping carried by results. Its contents
// are arbitrary and opaque to the substrate.
type ResultMeta map[string]Value

// BaseResult is the default result shape: an optional reserved metadata
// mapping and nothing else.
type BaseResult struct {
	Meta ResultMeta `json:"_meta,omitempty"`
}
