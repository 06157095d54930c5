package codec

import (
	"reflect"

	"github.com/evstack/ocpp16/internal/ocpp16"
)

// payloadTypes maps each action to its request and response struct types,
// generalizing the teacher's GetPayloadType/CreatePayloadInstance
// (internal/domain/serialization/serializer.go) from a hardcoded subset to
// the full action set in spec.md §6.
var payloadTypes = map[ocpp16.Action][2]reflect.Type{
	ocpp16.ActionAuthorize:              {reflect.TypeOf(ocpp16.AuthorizeRequest{}), reflect.TypeOf(ocpp16.AuthorizeResponse{})},
	ocpp16.ActionBootNotification:       {reflect.TypeOf(ocpp16.BootNotificationRequest{}), reflect.TypeOf(ocpp16.BootNotificationResponse{})},
	ocpp16.ActionChangeAvailability:     {reflect.TypeOf(ocpp16.ChangeAvailabilityRequest{}), reflect.TypeOf(ocpp16.ChangeAvailabilityResponse{})},
	ocpp16.ActionChangeConfiguration:    {reflect.TypeOf(ocpp16.ChangeConfigurationRequest{}), reflect.TypeOf(ocpp16.ChangeConfigurationResponse{})},
	ocpp16.ActionClearCache:             {reflect.TypeOf(ocpp16.ClearCacheRequest{}), reflect.TypeOf(ocpp16.ClearCacheResponse{})},
	ocpp16.ActionDataTransfer:           {reflect.TypeOf(ocpp16.DataTransferRequest{}), reflect.TypeOf(ocpp16.DataTransferResponse{})},
	ocpp16.ActionGetConfiguration:       {reflect.TypeOf(ocpp16.GetConfigurationRequest{}), reflect.TypeOf(ocpp16.GetConfigurationResponse{})},
	ocpp16.ActionHeartbeat:              {reflect.TypeOf(ocpp16.HeartbeatRequest{}), reflect.TypeOf(ocpp16.HeartbeatResponse{})},
	ocpp16.ActionMeterValues:            {reflect.TypeOf(ocpp16.MeterValuesRequest{}), reflect.TypeOf(ocpp16.MeterValuesResponse{})},
	ocpp16.ActionRemoteStartTransaction: {reflect.TypeOf(ocpp16.RemoteStartTransactionRequest{}), reflect.TypeOf(ocpp16.RemoteStartTransactionResponse{})},
	ocpp16.ActionRemoteStopTransaction:  {reflect.TypeOf(ocpp16.RemoteStopTransactionRequest{}), reflect.TypeOf(ocpp16.RemoteStopTransactionResponse{})},
	ocpp16.ActionReset:                  {reflect.TypeOf(ocpp16.ResetRequest{}), reflect.TypeOf(ocpp16.ResetResponse{})},
	ocpp16.ActionStartTransaction:       {reflect.TypeOf(ocpp16.StartTransactionRequest{}), reflect.TypeOf(ocpp16.StartTransactionResponse{})},
	ocpp16.ActionStatusNotification:     {reflect.TypeOf(ocpp16.StatusNotificationRequest{}), reflect.TypeOf(ocpp16.StatusNotificationResponse{})},
	ocpp16.ActionStopTransaction:        {reflect.TypeOf(ocpp16.StopTransactionRequest{}), reflect.TypeOf(ocpp16.StopTransactionResponse{})},
	ocpp16.ActionUnlockConnector:        {reflect.TypeOf(ocpp16.UnlockConnectorRequest{}), reflect.TypeOf(ocpp16.UnlockConnectorResponse{})},

	ocpp16.ActionGetDiagnostics:                {reflect.TypeOf(ocpp16.GetDiagnosticsRequest{}), reflect.TypeOf(ocpp16.GetDiagnosticsResponse{})},
	ocpp16.ActionDiagnosticsStatusNotification: {reflect.TypeOf(ocpp16.DiagnosticsStatusNotificationRequest{}), reflect.TypeOf(ocpp16.DiagnosticsStatusNotificationResponse{})},
	ocpp16.ActionFirmwareStatusNotification:    {reflect.TypeOf(ocpp16.FirmwareStatusNotificationRequest{}), reflect.TypeOf(ocpp16.FirmwareStatusNotificationResponse{})},
	ocpp16.ActionUpdateFirmware:                {reflect.TypeOf(ocpp16.UpdateFirmwareRequest{}), reflect.TypeOf(ocpp16.UpdateFirmwareResponse{})},

	ocpp16.ActionGetLocalListVersion: {reflect.TypeOf(ocpp16.GetLocalListVersionRequest{}), reflect.TypeOf(ocpp16.GetLocalListVersionResponse{})},
	ocpp16.ActionSendLocalList:       {reflect.TypeOf(ocpp16.SendLocalListRequest{}), reflect.TypeOf(ocpp16.SendLocalListResponse{})},

	ocpp16.ActionCancelReservation: {reflect.TypeOf(ocpp16.CancelReservationRequest{}), reflect.TypeOf(ocpp16.CancelReservationResponse{})},
	ocpp16.ActionReserveNow:        {reflect.TypeOf(ocpp16.ReserveNowRequest{}), reflect.TypeOf(ocpp16.ReserveNowResponse{})},

	ocpp16.ActionClearChargingProfile: {reflect.TypeOf(ocpp16.ClearChargingProfileRequest{}), reflect.TypeOf(ocpp16.ClearChargingProfileResponse{})},
	ocpp16.ActionGetCompositeSchedule: {reflect.TypeOf(ocpp16.GetCompositeScheduleRequest{}), reflect.TypeOf(ocpp16.GetCompositeScheduleResponse{})},
	ocpp16.ActionSetChargingProfile:   {reflect.TypeOf(ocpp16.SetChargingProfileRequest{}), reflect.TypeOf(ocpp16.SetChargingProfileResponse{})},

	ocpp16.ActionTriggerMessage: {reflect.TypeOf(ocpp16.TriggerMessageRequest{}), reflect.TypeOf(ocpp16.TriggerMessageResponse{})},
}

// NewRequest allocates a zero-value request struct for action, for
// unmarshaling an inbound CALL payload. Returns nil for an unknown action.
func NewRequest(action ocpp16.Action) interface{} {
	types, ok := payloadTypes[action]
	if !ok {
		return nil
	}
	return reflect.New(types[0]).Interface()
}

// NewResponse allocates a zero-value response struct for action, for
// unmarshaling a CALLRESULT payload on the caller side.
func NewResponse(action ocpp16.Action) interface{} {
	types, ok := payloadTypes[action]
	if !ok {
		return nil
	}
	return reflect.New(types[1]).Interface()
}

// HasPayloadTypes reports whether action has registered codec types.
func HasPayloadTypes(action ocpp16.Action) bool {
	_, ok := payloadTypes[action]
	return ok
}
