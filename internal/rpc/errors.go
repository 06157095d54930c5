package rpc

import "errors"

// ErrorCode is one of the fixed OCPP-J CALLERROR codes (spec.md §4.1).
type ErrorCode string

const (
	NotImplemented              ErrorCode = "NotImplemented"
	NotSupported                ErrorCode = "NotSupported"
	InternalError                ErrorCode = "InternalError"
	ProtocolError                ErrorCode = "ProtocolError"
	SecurityError                ErrorCode = "SecurityError"
	FormationViolation           ErrorCode = "FormationViolation"
	PropertyConstraintViolation  ErrorCode = "PropertyConstraintViolation"
	OccurenceConstraintViolation ErrorCode = "OccurenceConstraintViolation"
	TypeConstraintViolation      ErrorCode = "TypeConstraintViolation"
	GenericError                 ErrorCode = "GenericError"
)

// CallError is a typed CALLERROR, returned by Call() when the remote side
// rejects a request and surfaced to inbound handlers so they can reject a
// CALL with a specific code.
type CallError struct {
	Code    ErrorCode
	Message string
	Details interface{}
}

func (e *CallError) Error() string { return string(e.Code) + ": " + e.Message }

// NewCallError builds a *CallError; message is stored as given, even when
// empty.
func NewCallError(code ErrorCode, message string) *CallError {
	return &CallError{Code: code, Message: message}
}

// Sentinel errors for Call()'s terminal states other than a CALLERROR
// response, per spec.md §4.1's Ok(response) | Err(Timeout | CallError |
// TransportClosed) contract.
var (
	ErrTimeout         = errors.New("rpc: call timed out")
	ErrTransportClosed = errors.New("rpc: transport closed")
)
