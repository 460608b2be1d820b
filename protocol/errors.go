package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrConnConfigNil indicates that a nil client configuration was provided.
	ErrConnConfigNil = errors.New("client config is nil")

	// ErrTransportNil indicates that a transport factory returned no transport.
	ErrTransportNil = errors.New("transport is nil")

	// ErrAlreadyOpened indicates that Open was called on a client that is already running.
	ErrAlreadyOpened = errors.New("client already opened")
)

var (
	// ErrConnClosed indicates that the connection was torn down while a call was waiting for its response.
	ErrConnClosed = errors.New("connection closed")

	// ErrNotConnected indicates that no transport is installed, or it is not open.
	ErrNotConnected = errors.New("not connected")

	// ErrNoResponse indicates that no correlated response arrived within the call timeout.
	ErrNoResponse = errors.New("no response")

	// ErrDuplicateCallID indicates that a call ID is still outstanding and can't be registered again.
	ErrDuplicateCallID = errors.New("call id already outstanding")

	// ErrInvalidResponse indicates that a received frame is not a JSON object.
	ErrInvalidResponse = errors.New("invalid response envelope")
)

var (
	// ErrRetriesExhausted indicates that the retry ceiling of a call type was reached and
	// the connection was closed.
	ErrRetriesExhausted = errors.New("too many retry attempts")

	// ErrInvalidTransition is returned when an attempt is made to transition the connection
	// state to an invalid state.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// ServerError is a server-declared error response ({"type":"error"}) returned to the caller of
// the call that produced it.
type ServerError struct {
	// CallType is the type of the request that failed.
	CallType CallType
	// Message is the server supplied "error" text.
	Message string
	// Code is the server supplied "errorCode", also used as the close code.
	Code int
	// Handling is the server requested recovery policy.
	Handling ErrorHandling
	// Exhausted is set when the retry ceiling was reached for CallType.
	Exhausted bool
}

// NewServerError builds a ServerError from an error response.
func NewServerError(callType CallType, resp *Response) *ServerError {
	return &ServerError{
		CallType: callType,
		Message:  resp.Error,
		Code:     resp.ErrorCode,
		Handling: resp.ErrorHandling,
	}
}

func (e *ServerError) Error() string {
	if e.Exhausted {
		return fmt.Sprintf("%s: server error %d (%s): %s: %s", e.CallType, e.Code, e.Handling, ErrRetriesExhausted, e.Message)
	}

	return fmt.Sprintf("%s: server error %d (%s): %s", e.CallType, e.Code, e.Handling, e.Message)
}

// Is reports ErrRetriesExhausted for errors raised after the retry ceiling was reached.
func (e *ServerError) Is(target error) bool {
	return e.Exhausted && target == ErrRetriesExhausted
}
