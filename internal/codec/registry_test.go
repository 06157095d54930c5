package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evstack/ocpp16/internal/ocpp16"
)

func TestNewRequest_ReturnsPointerToZeroValueForKnownAction(t *testing.T) {
	req := NewRequest(ocpp16.ActionBootNotification)
	require.NotNil(t, req)
	_, ok := req.(*ocpp16.BootNotificationRequest)
	assert.True(t, ok)
}

func TestNewResponse_ReturnsPointerToZeroValueForKnownAction(t *testing.T) {
	resp := NewResponse(ocpp16.ActionBootNotification)
	require.NotNil(t, resp)
	_, ok := resp.(*ocpp16.BootNotificationResponse)
	assert.True(t, ok)
}

func TestNewRequest_ReturnsNilForUnknownAction(t *testing.T) {
	assert.Nil(t, NewRequest(ocpp16.Action("NotARealAction")))
}

func TestHasPayloadTypes_ReportsKnownAndUnknownActions(t *testing.T) {
	assert.True(t, HasPayloadTypes(ocpp16.ActionHeartbeat))
	assert.False(t, HasPayloadTypes(ocpp16.Action("NotARealAction")))
}
