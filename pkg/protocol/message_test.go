package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseParamsUnknownKeyRoundTrip(t *testing.T) {
	in := `{"_meta":{"progressToken":"t1"},"foo":"bar"}`

	var params BaseParams
	require.NoError(t, json.Unmarshal([]byte(in), &params))

	require.NotNil(t, params.Meta)
	assert.Equal(t, NewStringProgressToken("t1"), params.Meta.ProgressToken)
	foo, ok := params.Extra["foo"].AsString()
	require.True(t, ok)
	assert.Equal(t, "bar", foo)

	out, err := json.Marshal(params)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out), "unknown sibling keys survive the round trip")
}

func TestBaseParamsEmptyEncodesAsObject(t *testing.T) {
	out, err := json.Marshal(BaseParams{})
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(out))
}

func TestParamsMetaPreservesUnknownMetaKeys(t *testing.T) {
	in := `{"_meta":{"progressToken":7,"trace":"abc"}}`

	var params BaseParams
	require.NoError(t, json.Unmarshal([]byte(in), &params))
	require.NotNil(t, params.Meta)
	assert.Equal(t, NewIntProgressToken(7), params.Meta.ProgressToken)
	trace, ok := params.Meta.Extra["trace"].AsString()
	require.True(t, ok)
	assert.Equal(t, "abc", trace)

	out, err := json.Marshal(params)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}

func TestProgressTokenFromParams(t *testing.T) {
	params := map[string]Value{
		"_meta": ObjectValue(map[string]Value{
			"progressToken": StringValue("t9"),
		}),
		"other": IntValue(1),
	}
	tok, ok := ProgressTokenFromParams(params)
	require.True(t, ok)
	assert.Equal(t, NewStringProgressToken("t9"), tok)

	_, ok = ProgressTokenFromParams(map[string]Value{"x": IntValue(1)})
	assert.False(t, ok)

	// A token of the wrong JSON type is treated as absent.
	_, ok = ProgressTokenFromParams(map[string]Value{
		"_meta": ObjectValue(map[string]Value{"progressToken": BoolValue(true)}),
	})
	assert.False(t, ok)
}

func TestMethodMismatchIsDistinctFromShapeError(t *testing.T) {
	req := &Request{
		JSONRPC: JSONRPCVersion,
		ID:      NewIntRequestID(1),
		Method:  "something/else",
		Params:  map[string]Value{},
	}
	_, err := UnwrapRequest[PingParams](req)
	require.Error(t, err)

	var mismatch *MethodMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, MethodPing, mismatch.Want)
	assert.Equal(t, Method("something/else"), mismatch.Got)

	var conv *ConversionError
	assert.False(t, errors.As(err, &conv), "method mismatch must not surface as a conversion error")
}

func TestShapeErrorIsConversionError(t *testing.T) {
	notif := &Notification{
		JSONRPC: JSONRPCVersion,
		Method:  MethodProgress,
		Params: map[string]Value{
			"progressToken": StringValue("t1"),
			"progress":      StringValue("not a number"),
		},
	}
	_, err := UnwrapNotification[ProgressParams](notif)
	require.Error(t, err)
	var conv *ConversionError
	assert.ErrorAs(t, err, &conv)
}
