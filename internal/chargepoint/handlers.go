package chargepoint

import (
	"context"
	"encoding/json"

	"github.com/evstack/ocpp16/internal/auth"
	"github.com/evstack/ocpp16/internal/ocpp16"
	"github.com/evstack/ocpp16/internal/rpc"
	"github.com/evstack/ocpp16/internal/smartcharging"
)

// ConfigStore is the C9 surface a CP runtime needs: read/write the OCPP
// standard key/value configuration.
type ConfigStore interface {
	Get(keys []string) (values []ocpp16.KeyValue, unknown []string)
	Set(key, value string) ocpp16.ConfigurationStatus
}

// RegisterHandlers wires every CS->CP action a CP role must accept
// (spec.md §6's action set) onto dispatcher, per spec.md §4.2's handler
// table. RemoteStart/Stop run the actual transaction on a separate
// goroutine so the dispatcher's synchronous Dispatch (and so the
// connection's read loop) never blocks on it, per spec.md §5's
// "inbound handlers may suspend only on the worker pool" rule.
func (r *Runtime) RegisterHandlers(dispatcher *rpc.Dispatcher, localList *auth.LocalList, cache *auth.Cache, cfg ConfigStore) {
	dispatcher.RegisterHandler(ocpp16.ActionRemoteStartTransaction, r.handleRemoteStart, false)
	dispatcher.RegisterHandler(ocpp16.ActionRemoteStopTransaction, r.handleRemoteStop, false)
	dispatcher.RegisterHandler(ocpp16.ActionChangeAvailability, r.handleChangeAvailability, false)
	dispatcher.RegisterHandler(ocpp16.ActionChangeConfiguration, handleChangeConfiguration(cfg), false)
	dispatcher.RegisterHandler(ocpp16.ActionGetConfiguration, handleGetConfiguration(cfg), false)
	dispatcher.RegisterHandler(ocpp16.ActionClearCache, handleClearCache(cache), false)
	dispatcher.RegisterHandler(ocpp16.ActionUnlockConnector, r.handleUnlockConnector, false)
	dispatcher.RegisterHandler(ocpp16.ActionReset, r.handleReset, false)
	dispatcher.RegisterHandler(ocpp16.ActionDataTransfer, r.handleDataTransfer, false)
	dispatcher.RegisterHandler(ocpp16.ActionTriggerMessage, r.handleTriggerMessage, false)
	dispatcher.RegisterHandler(ocpp16.ActionSetChargingProfile, r.handleSetChargingProfile, false)
	dispatcher.RegisterHandler(ocpp16.ActionClearChargingProfile, r.handleClearChargingProfile, false)
	dispatcher.RegisterHandler(ocpp16.ActionGetCompositeSchedule, r.handleGetCompositeSchedule, false)
	dispatcher.RegisterHandler(ocpp16.ActionGetLocalListVersion, handleGetLocalListVersion(localList), false)
	dispatcher.RegisterHandler(ocpp16.ActionSendLocalList, handleSendLocalList(localList), false)
	dispatcher.RegisterHandler(ocpp16.ActionReserveNow, r.handleReserveNowCall, false)
	dispatcher.RegisterHandler(ocpp16.ActionCancelReservation, r.handleCancelReservationCall, false)
}

func (r *Runtime) handleReserveNowCall(ctx context.Context, payload json.RawMessage) (interface{}, *rpc.CallError) {
	var req ocpp16.ReserveNowRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, rpc.NewCallError(rpc.FormationViolation, err.Error())
	}
	return ocpp16.ReserveNowResponse{Status: r.handleReserveNow(req)}, nil
}

func (r *Runtime) handleCancelReservationCall(ctx context.Context, payload json.RawMessage) (interface{}, *rpc.CallError) {
	var req ocpp16.CancelReservationRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, rpc.NewCallError(rpc.FormationViolation, err.Error())
	}
	return ocpp16.CancelReservationResponse{Status: r.handleCancelReservation(req.ReservationId)}, nil
}

func handleGetLocalListVersion(localList *auth.LocalList) rpc.Handler {
	return func(ctx context.Context, payload json.RawMessage) (interface{}, *rpc.CallError) {
		return ocpp16.GetLocalListVersionResponse{ListVersion: localList.Version()}, nil
	}
}

func handleSendLocalList(localList *auth.LocalList) rpc.Handler {
	return func(ctx context.Context, payload json.RawMessage) (interface{}, *rpc.CallError) {
		var req ocpp16.SendLocalListRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, rpc.NewCallError(rpc.FormationViolation, err.Error())
		}
		err := localList.Update(auth.UpdateMode(req.UpdateType), req.ListVersion, req.LocalAuthorizationList)
		switch err {
		case nil:
			return ocpp16.SendLocalListResponse{Status: ocpp16.UpdateAccepted}, nil
		case auth.ErrVersionMismatch:
			return ocpp16.SendLocalListResponse{Status: ocpp16.UpdateVersionMismatch}, nil
		case auth.ErrNotSupported:
			return ocpp16.SendLocalListResponse{Status: ocpp16.UpdateNotSupported}, nil
		default:
			return ocpp16.SendLocalListResponse{Status: ocpp16.UpdateFailed}, nil
		}
	}
}

func (r *Runtime) handleRemoteStart(ctx context.Context, payload json.RawMessage) (interface{}, *rpc.CallError) {
	var req ocpp16.RemoteStartTransactionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, rpc.NewCallError(rpc.FormationViolation, err.Error())
	}
	connectorID := 1
	if req.ConnectorId != nil {
		connectorID = *req.ConnectorId
	}
	if req.ChargingProfile != nil {
		_ = r.profiles.InstallTxProfile(connectorID, *req.ChargingProfile)
	}
	go func() {
		startCtx, cancel := context.WithTimeout(context.Background(), defaultHandlerTimeout)
		defer cancel()
		if _, err := r.StartTransaction(startCtx, connectorID, req.IdTag, 0); err != nil {
			r.logger.Warn().Err(err).Str("idTag", req.IdTag).Msg("remote-started transaction failed")
		}
	}()
	return ocpp16.RemoteStartTransactionResponse{Status: ocpp16.RemoteStartStopAccepted}, nil
}

func (r *Runtime) handleRemoteStop(ctx context.Context, payload json.RawMessage) (interface{}, *rpc.CallError) {
	var req ocpp16.RemoteStopTransactionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, rpc.NewCallError(rpc.FormationViolation, err.Error())
	}
	connectorID, ok := r.connectorForTransaction(req.TransactionId)
	if !ok {
		return ocpp16.RemoteStopTransactionResponse{Status: ocpp16.RemoteStartStopRejected}, nil
	}
	go func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), defaultHandlerTimeout)
		defer cancel()
		if err := r.StopTransaction(stopCtx, connectorID, 0, ocpp16.ReasonRemote); err != nil {
			r.logger.Warn().Err(err).Int("connectorId", connectorID).Msg("remote-stopped transaction failed")
		}
	}()
	return ocpp16.RemoteStopTransactionResponse{Status: ocpp16.RemoteStartStopAccepted}, nil
}

func (r *Runtime) connectorForTransaction(txID int) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, c := range r.connectors {
		if c.Transaction != nil && c.Transaction.ID == txID {
			return id, true
		}
	}
	return 0, false
}

func (r *Runtime) handleChangeAvailability(ctx context.Context, payload json.RawMessage) (interface{}, *rpc.CallError) {
	var req ocpp16.ChangeAvailabilityRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, rpc.NewCallError(rpc.FormationViolation, err.Error())
	}
	r.mu.Lock()
	if c, ok := r.connectors[req.ConnectorId]; ok {
		if req.Type == ocpp16.AvailabilityInoperative {
			c.Status = ocpp16.StatusUnavailable
		} else {
			c.Status = ocpp16.StatusAvailable
		}
	}
	r.mu.Unlock()
	return ocpp16.ChangeAvailabilityResponse{Status: ocpp16.AvailabilityStatusAccepted}, nil
}

func handleChangeConfiguration(cfg ConfigStore) rpc.Handler {
	return func(ctx context.Context, payload json.RawMessage) (interface{}, *rpc.CallError) {
		var req ocpp16.ChangeConfigurationRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, rpc.NewCallError(rpc.FormationViolation, err.Error())
		}
		status := cfg.Set(req.Key, req.Value)
		return ocpp16.ChangeConfigurationResponse{Status: status}, nil
	}
}

func handleGetConfiguration(cfg ConfigStore) rpc.Handler {
	return func(ctx context.Context, payload json.RawMessage) (interface{}, *rpc.CallError) {
		var req ocpp16.GetConfigurationRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, rpc.NewCallError(rpc.FormationViolation, err.Error())
		}
		values, unknown := cfg.Get(req.Key)
		return ocpp16.GetConfigurationResponse{ConfigurationKey: values, UnknownKey: unknown}, nil
	}
}

func handleClearCache(cache *auth.Cache) rpc.Handler {
	return func(ctx context.Context, payload json.RawMessage) (interface{}, *rpc.CallError) {
		cache.Clear()
		return ocpp16.ClearCacheResponse{Status: ocpp16.ClearCacheAccepted}, nil
	}
}

func (r *Runtime) handleUnlockConnector(ctx context.Context, payload json.RawMessage) (interface{}, *rpc.CallError) {
	var req ocpp16.UnlockConnectorRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, rpc.NewCallError(rpc.FormationViolation, err.Error())
	}
	if _, ok := r.Connector(req.ConnectorId); !ok {
		return ocpp16.UnlockConnectorResponse{Status: ocpp16.UnlockNotSupported}, nil
	}
	return ocpp16.UnlockConnectorResponse{Status: ocpp16.UnlockUnlocked}, nil
}

func (r *Runtime) handleReset(ctx context.Context, payload json.RawMessage) (interface{}, *rpc.CallError) {
	var req ocpp16.ResetRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, rpc.NewCallError(rpc.FormationViolation, err.Error())
	}
	r.logger.Info().Str("type", string(req.Type)).Msg("reset requested by central system")
	return ocpp16.ResetResponse{Status: ocpp16.ResetAccepted}, nil
}

func (r *Runtime) handleDataTransfer(ctx context.Context, payload json.RawMessage) (interface{}, *rpc.CallError) {
	var req ocpp16.DataTransferRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, rpc.NewCallError(rpc.FormationViolation, err.Error())
	}
	return ocpp16.DataTransferResponse{Status: ocpp16.DataTransferUnknownVendorId}, nil
}

func (r *Runtime) handleTriggerMessage(ctx context.Context, payload json.RawMessage) (interface{}, *rpc.CallError) {
	var req ocpp16.TriggerMessageRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, rpc.NewCallError(rpc.FormationViolation, err.Error())
	}
	connectorID := 0
	if req.ConnectorId != nil {
		connectorID = *req.ConnectorId
	}
	go r.handleTrigger(req.RequestedMessage, connectorID)
	return ocpp16.TriggerMessageResponse{Status: ocpp16.TriggerAccepted}, nil
}

func (r *Runtime) handleTrigger(trigger ocpp16.MessageTrigger, connectorID int) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultHandlerTimeout)
	defer cancel()
	switch trigger {
	case ocpp16.TriggerHeartbeat:
		_, _ = r.conn.Call(ctx, string(ocpp16.ActionHeartbeat), ocpp16.HeartbeatRequest{})
	case ocpp16.TriggerStatusNotification:
		c, ok := r.Connector(connectorID)
		if ok {
			_ = r.NotifyStatus(ctx, connectorID, c.Status, c.ErrorCode)
		}
	}
}

func (r *Runtime) handleSetChargingProfile(ctx context.Context, payload json.RawMessage) (interface{}, *rpc.CallError) {
	var req ocpp16.SetChargingProfileRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, rpc.NewCallError(rpc.FormationViolation, err.Error())
	}
	connState := r.ConnectorState(req.ConnectorId)
	if err := r.profiles.Install(req.ConnectorId, req.CsChargingProfiles, connState); err != nil {
		if _, ok := err.(smartcharging.InstallError); ok {
			return nil, rpc.NewCallError(rpc.PropertyConstraintViolation, err.Error())
		}
		return nil, rpc.NewCallError(rpc.InternalError, err.Error())
	}
	return ocpp16.SetChargingProfileResponse{Status: ocpp16.ChargingProfileAccepted}, nil
}

func (r *Runtime) handleClearChargingProfile(ctx context.Context, payload json.RawMessage) (interface{}, *rpc.CallError) {
	var req ocpp16.ClearChargingProfileRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, rpc.NewCallError(rpc.FormationViolation, err.Error())
	}
	removed := r.profiles.Clear(smartcharging.ClearFilter{
		ProfileID:              req.Id,
		ConnectorID:            req.ConnectorId,
		ChargingProfilePurpose: req.ChargingProfilePurpose,
		StackLevel:             req.StackLevel,
	})
	if !removed {
		return ocpp16.ClearChargingProfileResponse{Status: ocpp16.ClearChargingProfileUnknown}, nil
	}
	return ocpp16.ClearChargingProfileResponse{Status: ocpp16.ClearChargingProfileAccepted}, nil
}

func (r *Runtime) handleGetCompositeSchedule(ctx context.Context, payload json.RawMessage) (interface{}, *rpc.CallError) {
	var req ocpp16.GetCompositeScheduleRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, rpc.NewCallError(rpc.FormationViolation, err.Error())
	}
	unit := ocpp16.RateUnitW
	if req.ChargingRateUnit != nil {
		unit = *req.ChargingRateUnit
	}
	connState := r.ConnectorState(req.ConnectorId)
	sched, ok := r.profiles.GetCompositeSchedule(req.ConnectorId, secondsToDuration(req.Duration), unit, connState, r.voltage, nil, nowFunc())
	if !ok {
		return ocpp16.GetCompositeScheduleResponse{Status: ocpp16.GetCompositeScheduleRejected}, nil
	}
	connID := req.ConnectorId
	now := ocpp16.NewDateTime(nowFunc())
	return ocpp16.GetCompositeScheduleResponse{
		Status:        ocpp16.GetCompositeScheduleAccepted,
		ConnectorId:   &connID,
		ScheduleStart: &now,
		ChargingSchedule: &ocpp16.ChargingSchedule{
			Duration:               &sched.Duration,
			ChargingRateUnit:       sched.ChargingRateUnit,
			ChargingSchedulePeriod: sched.ChargingSchedulePeriod,
		},
	}, nil
}
