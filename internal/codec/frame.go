// Package codec frames and parses OCPP-J wire messages and validates typed
// payloads. It is the Go realization of spec.md's C1 Message Codec,
// adapted from the teacher's internal/domain/serialization/serializer.go.
package codec

import (
	"encoding/json"
	"fmt"
)

// MessageType is the first element of every OCPP-J frame.
type MessageType int

const (
	MessageTypeCall       MessageType = 2
	MessageTypeCallResult MessageType = 3
	MessageTypeCallError  MessageType = 4
)

// FrameError reports a malformed wire frame; the RPC core turns this into
// a CALLERROR FormationViolation per spec.md §7.
type FrameError struct {
	Reason string
}

func (e FrameError) Error() string { return "malformed ocpp-j frame: " + e.Reason }

// EncodeCall builds the `[2, uniqueId, action, payload]` wire frame.
func EncodeCall(uniqueID, action string, payload interface{}) ([]byte, error) {
	return json.Marshal([]interface{}{MessageTypeCall, uniqueID, action, payload})
}

// EncodeCallResult builds the `[3, uniqueId, payload]` wire frame.
func EncodeCallResult(uniqueID string, payload interface{}) ([]byte, error) {
	return json.Marshal([]interface{}{MessageTypeCallResult, uniqueID, payload})
}

// EncodeCallError builds the `[4, uniqueId, errorCode, errorDescription,
// errorDetails]` wire frame. errorDetails may be nil, in which case an
// empty object is emitted (OCPP-J requires the 5th element to be present).
func EncodeCallError(uniqueID, errorCode, errorDescription string, errorDetails interface{}) ([]byte, error) {
	if errorDetails == nil {
		errorDetails = map[string]interface{}{}
	}
	return json.Marshal([]interface{}{MessageTypeCallError, uniqueID, errorCode, errorDescription, errorDetails})
}

// DecodedFrame is the generic shape shared by all three frame kinds; Action
// and ErrorCode/ErrorDescription are empty unless that frame kind set them.
type DecodedFrame struct {
	Type             MessageType
	UniqueID         string
	Action           string
	Payload          json.RawMessage
	ErrorCode        string
	ErrorDescription string
	ErrorDetails     json.RawMessage
}

// Decode parses a raw frame into its three-to-five element parts without
// interpreting the payload, mirroring deserializeJSON's two-pass approach
// (array shape first, payload type second, lazily by the dispatcher).
func Decode(data []byte) (DecodedFrame, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return DecodedFrame{}, FrameError{Reason: "not a JSON array: " + err.Error()}
	}
	if len(raw) < 3 {
		return DecodedFrame{}, FrameError{Reason: "array too short"}
	}

	var msgType int
	if err := json.Unmarshal(raw[0], &msgType); err != nil {
		return DecodedFrame{}, FrameError{Reason: "message type not an integer"}
	}

	var uniqueID string
	if err := json.Unmarshal(raw[1], &uniqueID); err != nil {
		return DecodedFrame{}, FrameError{Reason: "uniqueId not a string"}
	}

	switch MessageType(msgType) {
	case MessageTypeCall:
		if len(raw) != 4 {
			return DecodedFrame{}, FrameError{Reason: "CALL must have 4 elements"}
		}
		var action string
		if err := json.Unmarshal(raw[2], &action); err != nil {
			return DecodedFrame{}, FrameError{Reason: "action not a string"}
		}
		return DecodedFrame{Type: MessageTypeCall, UniqueID: uniqueID, Action: action, Payload: raw[3]}, nil

	case MessageTypeCallResult:
		if len(raw) != 3 {
			return DecodedFrame{}, FrameError{Reason: "CALLRESULT must have 3 elements"}
		}
		return DecodedFrame{Type: MessageTypeCallResult, UniqueID: uniqueID, Payload: raw[2]}, nil

	case MessageTypeCallError:
		if len(raw) < 4 || len(raw) > 5 {
			return DecodedFrame{}, FrameError{Reason: "CALLERROR must have 4 or 5 elements"}
		}
		var code, desc string
		if err := json.Unmarshal(raw[2], &code); err != nil {
			return DecodedFrame{}, FrameError{Reason: "errorCode not a string"}
		}
		if err := json.Unmarshal(raw[3], &desc); err != nil {
			return DecodedFrame{}, FrameError{Reason: "errorDescription not a string"}
		}
		df := DecodedFrame{Type: MessageTypeCallError, UniqueID: uniqueID, ErrorCode: code, ErrorDescription: desc}
		if len(raw) == 5 {
			df.ErrorDetails = raw[4]
		}
		return df, nil

	default:
		return DecodedFrame{}, FrameError{Reason: fmt.Sprintf("unknown message type %d", msgType)}
	}
}
