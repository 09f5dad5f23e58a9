package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// idKind tags the variant held by an identifier union.
type idKind uint8

const (
	idUnset idKind = iota
	idInt
	idString
)

func decodeIDVariant(data []byte) (idKind, string, int64, error) {
	if bytes.Equal(bytes.TrimSpace(data), nullLiteral) {
		return idUnset, "", 0, fmt.Errorf("identifier must be an integer or a string, got null")
	}
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		return idInt, "", n, nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return idString, s, 0, nil
	}
	return idUnset, "", 0, fmt.Errorf("identifier must be an integer or a string, got %s", string(data))
}

// RequestID correlates a request with its eventual response or error. It is a
// two-variant union of integer and string: the variants never compare equal,
// so the integer 1 and the string "1" are distinct identifiers. RequestID is
// comparable and usable as a map key.
//
// Identifiers are opaque correlation keys. No ordering or arithmetic is
// defined on them.
type RequestID struct {
	kind idKind
	str  string
	num  int64
}

// NewIntRequestID returns the integer variant holding n.
func NewIntRequestID(n int64) RequestID { return RequestID{kind: idInt, num: n} }

// NewStringRequestID returns the string variant holding s.
func NewStringRequestID(s string) RequestID { return RequestID{kind: idString, str: s} }

// NewUUIDRequestID returns a string-variant id holding a fresh random UUID.
func NewUUIDRequestID() RequestID { return NewStringRequestID(uuid.NewString()) }

// IsValid reports whether the id holds either variant. The zero RequestID is
// not a legal wire identifier.
func (id RequestID) IsValid() bool { return id.kind != idUnset }

// String renders the id for logging. It is not a wire representation.
func (id RequestID) String() string {
	switch id.kind {
	case idInt:
		return strconv.FormatInt(id.num, 10)
	case idString:
		return id.str
	default:
		return "<unset>"
	}
}

// AsInt returns the integer payload and whether the id holds that variant.
func (id RequestID) AsInt() (int64, bool) { return id.num, id.kind == idInt }

// AsString returns the string payload and whether the id holds that variant.
func (id RequestID) AsString() (string, bool) { return id.str, id.kind == idString }

// MarshalJSON encodes the id as a bare JSON integer or string.
func (id RequestID) MarshalJSON() ([]byte, error) {
	switch id.kind {
	case idInt:
		return json.Marshal(id.num)
	case idString:
		return json.Marshal(id.str)
	default:
		return nil, fmt.Errorf("cannot marshal an unset request id")
	}
}

// UnmarshalJSON decodes a JSON integer or string. Any other JSON type is a
// type-mismatch error.
func (id *RequestID) UnmarshalJSON(data []byte) error {
	kind, str, num, err := decodeIDVariant(data)
	if err != nil {
		return fmt.Errorf("request id: %w", err)
	}
	*id = RequestID{kind: kind, str: str, num: num}
	return nil
}

// ProgressToken links a request to the progress notifications emitted for it.
// Like RequestID it is a comparable two-variant union of integer and string,
// opaque to the receiving side.
type ProgressToken struct {
	kind idKind
	str  string
	num  int64
}

// NewIntProgressToken returns the integer variant holding n.
func NewIntProgressToken(n int64) ProgressToken { return ProgressToken{kind: idInt, num: n} }

// NewStringProgressToken returns the string variant holding s.
func NewStringProgressToken(s string) ProgressToken { return ProgressToken{kind: idString, str: s} }

// NewUUIDProgressToken returns a string-variant token holding a fresh random UUID.
func NewUUIDProgressToken() ProgressToken { return NewStringProgressToken(uuid.NewString()) }

// IsValid reports whether the token holds either variant.
func (t ProgressToken) IsValid() bool { return t.kind != idUnset }

// String renders the token for logging. It is not a wire representation.
func (t ProgressToken) String() string {
	switch t.kind {
	case idInt:
		return strconv.FormatInt(t.num, 10)
	case idString:
		return t.str
	default:
		return "<unset>"
	}
}

// AsInt returns the integer payload and whether the token holds that variant.
func (t ProgressToken) AsInt() (int64, bool) { return t.num, t.kind == idInt }

// AsString returns the string payload and whether the token holds that variant.
func (t ProgressToken) AsString() (string, bool) { return t.str, t.kind == idString }

// MarshalJSON encodes the token as a bare JSON integer or string.
func (t ProgressToken) MarshalJSON() ([]byte, error) {
	switch t.kind {
	case idInt:
		return json.Marshal(t.num)
	case idString:
		return json.Marshal(t.str)
	default:
		return nil, fmt.Errorf("cannot marshal an unset progress token")
	}
}

// UnmarshalJSON decodes a JSON integer or string. Any other JSON type is a
// type-mismatch error.
func (t *ProgressToken) UnmarshalJSON(data []byte) error {
	kind, str, num, err := decodeIDVariant(data)
	if err != nil {
		return fmt.Errorf("progress token: %w", err)
	}
	*t = ProgressToken{kind: kind, str: str, num: num}
	return nil
}
