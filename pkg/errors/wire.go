package errors

import (
	"fmt"

	"github.com/mcpwire/mcpwire/pkg/protocol"
)

// ToErrorResponse converts any error into a wire error reply for the given
// request id.
func ToErrorResponse(err error, requestID protocol.RequestID) (*protocol.ErrorResponse, error) {
	if err == nil {
		return nil, fmt.Errorf("cannot build an error response from a nil error")
	}
	if we, ok := AsWireError(err); ok {
		return protocol.NewErrorResponse(requestID, protocol.ErrorCode(we.Code()), we.Message(), we.Data())
	}
	return protocol.NewErrorResponse(requestID, protocol.InternalError, err.Error(), nil)
}

// ToWireError converts any error into a JSON-RPC error object.
func ToWireError(err error) *protocol.Error {
	if err == nil {
		return nil
	}
	if we, ok := AsWireError(err); ok {
		wireErr := &protocol.Error{
			Code:    protocol.ErrorCode(we.Code()),
			Message: we.Message(),
		}
		if data := we.Data(); data != nil {
			if v, convErr := protocol.FromTyped(data); convErr == nil {
				wireErr.Data = &v
			}
		}
		return wireErr
	}
	return &protocol.Error{Code: protocol.InternalError, Message: err.Error()}
}

// FromWireError classifies a JSON-RPC error object received from the peer.
// Unrecognized codes classify as application-defined rather than failing.
func FromWireError(wireErr *protocol.Error) WireError {
	if wireErr == nil {
		return nil
	}
	code := int(wireErr.Code)
	err := New(code, wireErr.Message, CategoryForCode(code), SeverityForCode(code))
	if wireErr.Data != nil {
		err = err.WithData(*wireErr.Data)
	}
	return err
}
