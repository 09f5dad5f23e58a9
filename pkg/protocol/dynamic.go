package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind identifies the variant held by a Value.
type Kind int

// The closed set of JSON-compatible variants a Value can hold.
const (
	KindNull Kind = iota
	KindString
	KindInt
	KindDouble
	KindBool
	KindArray
	KindObject
)

// String returns the name of the kind for diagnostics.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindDouble:
		return "double"
	case KindBool:
		return "bool"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a JSON-compatible tagged union used wherever a payload shape is not
// statically known. It round-trips arbitrary JSON without information loss and
// has plain value semantics: copies are independent and a Value is safe to read
// from any number of goroutines.
//
// Ambiguous tokens decode deterministically: integers win over doubles, and
// numbers, strings, booleans and null are each tried before the container
// variants. The literal 5 always decodes as KindInt, "5" as KindString.
type Value struct {
	kind Kind
	str  string
	num  int64
	dbl  float64
	b    bool
	arr  []Value
	obj  map[string]Value
}

// NullValue returns the null variant. It is also the zero Value.
func NullValue() Value { return Value{kind: KindNull} }

// StringValue returns a string variant holding s.
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// IntValue returns an integer variant holding n.
func IntValue(n int64) Value { return Value{kind: KindInt, num: n} }

// DoubleValue returns a double variant holding f.
func DoubleValue(f float64) Value { return Value{kind: KindDouble, dbl: f} }

// BoolValue returns a boolean variant holding b.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// ArrayValue returns an array variant holding items.
func ArrayValue(items ...Value) Value {
	return Value{kind: KindArray, arr: items}
}

// ObjectValue returns an object variant holding fields.
func ObjectValue(fields map[string]Value) Value {
	return Value{kind: KindObject, obj: fields}
}

// Kind reports which variant the value holds.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value holds the null variant.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsString returns the string payload and whether the value holds one.
func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

// AsInt returns the integer payload and whether the value holds one.
func (v Value) AsInt() (int64, bool) { return v.num, v.kind == KindInt }

// AsDouble returns the numeric payload as a float64. Integer variants are
// widened so callers that only care about magnitude need not branch.
func (v Value) AsDouble() (float64, bool) {
	switch v.kind {
	case KindDouble:
		return v.dbl, true
	case KindInt:
		return float64(v.num), true
	default:
		return 0, false
	}
}

// AsBool returns the boolean payload and whether the value holds one.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsArray returns the array payload and whether the value holds one.
func (v Value) AsArray() ([]Value, bool) { return v.arr, v.kind == KindArray }

// AsObject returns the object payload and whether the value holds one.
func (v Value) AsObject() (map[string]Value, bool) { return v.obj, v.kind == KindObject }

// Equal reports deep structural equality between two values. Variants are
// compared tag-first, so IntValue(1) is never equal to StringValue("1") and
// IntValue(1) is never equal to DoubleValue(1).
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == other.str
	case KindInt:
		return v.num == other.num
	case KindDouble:
		return v.dbl == other.dbl
	case KindBool:
		return v.b == other.b
	case KindArray:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(other.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.obj) != len(other.obj) {
			return false
		}
		for k, val := range v.obj {
			o, ok := other.obj[k]
			if !ok || !val.Equal(o) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

var nullLiteral = []byte("null")

// UnmarshalJSON decodes data into the first matching variant, trying
// int, double, string, bool, null, array and object in that fixed order.
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)

	// The null literal is checked first because encoding/json treats null as a
	// successful no-op for every scalar target, which would otherwise make it
	// decode as the integer variant.
	if bytes.Equal(trimmed, nullLiteral) {
		*v = NullValue()
		return nil
	}

	var n int64
	if err := json.Unmarshal(trimmed, &n); err == nil {
		*v = IntValue(n)
		return nil
	}

	var f float64
	if err := json.Unmarshal(trimmed, &f); err == nil {
		*v = DoubleValue(f)
		return nil
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		*v = StringValue(s)
		return nil
	}

	var b bool
	if err := json.Unmarshal(trimmed, &b); err == nil {
		*v = BoolValue(b)
		return nil
	}

	var arr []Value
	if err := json.Unmarshal(trimmed, &arr); err == nil {
		*v = Value{kind: KindArray, arr: arr}
		return nil
	}

	var obj map[string]Value
	if err := json.Unmarshal(trimmed, &obj); err == nil {
		*v = Value{kind: KindObject, obj: obj}
		return nil
	}

	return fmt.Errorf("value does not match any JSON variant: %s", string(trimmed))
}

// MarshalJSON encodes the value as the structural mirror of its variant.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return nullLiteral, nil
	case KindString:
		return json.Marshal(v.str)
	case KindInt:
		return json.Marshal(v.num)
	case KindDouble:
		return json.Marshal(v.dbl)
	case KindBool:
		return json.Marshal(v.b)
	case KindArray:
		if v.arr == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.arr)
	case KindObject:
		if v.obj == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.obj)
	default:
		return nil, fmt.Errorf("cannot marshal value of unknown kind %d", v.kind)
	}
}

// DecodeValue parses raw JSON into a Value.
func DecodeValue(data []byte) (Value, error) {
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return Value{}, err
	}
	return v, nil
}

// EncodeValue serializes a Value back to JSON. It is the structural inverse
// of DecodeValue: object key order is not preserved, structure and variant
// tags are.
func EncodeValue(v Value) ([]byte, error) {
	return v.MarshalJSON()
}

// ConvertTo coerces a Value into any statically typed shape by serializing to
// canonical JSON and decoding into T. The coercion fails with a
// ConversionError when the shapes do not line up.
func ConvertTo[T any](v Value) (T, error) {
	var out T
	data, err := json.Marshal(v)
	if err != nil {
		return out, &ConversionError{Target: fmt.Sprintf("%T", out), Err: err}
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, &ConversionError{Target: fmt.Sprintf("%T", out), Err: err}
	}
	return out, nil
}

// FromTyped projects any JSON-serializable value into the dynamic
// representation. It is the inverse of ConvertTo: for shapes representable by
// both sides, ConvertTo(FromTyped(x)) == x.
func FromTyped[T any](x T) (Value, error) {
	data, err := json.Marshal(x)
	if err != nil {
		return Value{}, &ConversionError{Target: fmt.Sprintf("%T", x), Err: err}
	}
	return DecodeValue(data)
}
