package codec

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeCall_RoundTrips(t *testing.T) {
	raw, err := EncodeCall("123", "Heartbeat", map[string]string{})
	require.NoError(t, err)

	df, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, MessageTypeCall, df.Type)
	assert.Equal(t, "123", df.UniqueID)
	assert.Equal(t, "Heartbeat", df.Action)
}

func TestEncodeDecodeCallResult_RoundTrips(t *testing.T) {
	raw, err := EncodeCallResult("123", map[string]string{"status": "Accepted"})
	require.NoError(t, err)

	df, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, MessageTypeCallResult, df.Type)
	assert.Equal(t, "123", df.UniqueID)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(df.Payload, &payload))
	assert.Equal(t, "Accepted", payload["status"])
}

func TestEncodeCallError_NilDetailsBecomesEmptyObject(t *testing.T) {
	raw, err := EncodeCallError("123", "NotImplemented", "unknown action", nil)
	require.NoError(t, err)

	var arr []json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &arr))
	require.Len(t, arr, 5)
	assert.JSONEq(t, "{}", string(arr[4]))
}

func TestDecodeCallError_RoundTrips(t *testing.T) {
	raw, err := EncodeCallError("7", "InternalError", "boom", map[string]string{"trace": "abc"})
	require.NoError(t, err)

	df, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, MessageTypeCallError, df.Type)
	assert.Equal(t, "InternalError", df.ErrorCode)
	assert.Equal(t, "boom", df.ErrorDescription)
	assert.JSONEq(t, `{"trace":"abc"}`, string(df.ErrorDetails))
}

func TestDecode_RejectsNonArrayPayload(t *testing.T) {
	_, err := Decode([]byte(`{"not":"an array"}`))
	require.Error(t, err)
	assert.IsType(t, FrameError{}, err)
}

func TestDecode_RejectsTooShortArray(t *testing.T) {
	_, err := Decode([]byte(`[2, "123"]`))
	require.Error(t, err)
}

func TestDecode_RejectsCallWithWrongElementCount(t *testing.T) {
	_, err := Decode([]byte(`[2, "123", "Heartbeat"]`))
	require.Error(t, err)
}

func TestDecode_RejectsUnknownMessageType(t *testing.T) {
	_, err := Decode([]byte(`[9, "123", "X"]`))
	require.Error(t, err)
}

func TestDecode_RejectsNonStringUniqueID(t *testing.T) {
	_, err := Decode([]byte(`[2, 123, "Heartbeat", {}]`))
	require.Error(t, err)
}

func TestDecodeCallError_AcceptsFourElementForm(t *testing.T) {
	df, err := Decode([]byte(`[4, "1", "GenericError", "desc"]`))
	require.NoError(t, err)
	assert.Nil(t, df.ErrorDetails)
}
