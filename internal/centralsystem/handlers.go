package centralsystem

import (
	"context"
	"encoding/json"
	"time"

	domainevents "github.com/evstack/ocpp16/internal/domain/events"
	"github.com/evstack/ocpp16/internal/ocpp16"
	"github.com/evstack/ocpp16/internal/rpc"
)

func authResultFor(status ocpp16.AuthorizationStatus) domainevents.AuthorizationResult {
	switch status {
	case ocpp16.AuthAccepted:
		return domainevents.AuthorizationResultAccepted
	case ocpp16.AuthBlocked:
		return domainevents.AuthorizationResultBlocked
	case ocpp16.AuthExpired:
		return domainevents.AuthorizationResultExpired
	case ocpp16.AuthInvalid:
		return domainevents.AuthorizationResultInvalid
	default:
		return domainevents.AuthorizationResultUnknown
	}
}

// registerHandlers wires the CS-side inbound actions spec.md §4.7 names
// onto dispatcher, closing over proxy so every handler knows which CP
// sent the CALL without threading an identity parameter through
// rpc.Handler's signature.
func registerHandlers(dispatcher *rpc.Dispatcher, proxy *ChargePointProxy, idTags IdTagStore, txs TransactionStore) {
	dispatcher.RegisterHandler(ocpp16.ActionBootNotification, func(ctx context.Context, raw json.RawMessage) (interface{}, *rpc.CallError) {
		var req ocpp16.BootNotificationRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, rpc.NewCallError(rpc.FormationViolation, err.Error())
		}
		proxy.mu.Lock()
		proxy.identity = req
		proxy.mu.Unlock()

		proxy.bus.Publish(domainevents.NewEventFactory().CreateChargePointConnectedEvent(proxy.ID, domainevents.ChargePointInfo{
			ID:       proxy.ID,
			Vendor:   req.ChargePointVendor,
			Model:    req.ChargePointModel,
			LastSeen: time.Now(),
		}, domainevents.Metadata{Source: "centralsystem"}))

		return ocpp16.BootNotificationResponse{
			Status:      ocpp16.RegistrationAccepted,
			CurrentTime: ocpp16.NewDateTime(time.Now()),
			Interval:    86400,
		}, nil
	}, false)

	dispatcher.RegisterHandler(ocpp16.ActionHeartbeat, func(ctx context.Context, raw json.RawMessage) (interface{}, *rpc.CallError) {
		return ocpp16.HeartbeatResponse{CurrentTime: ocpp16.NewDateTime(time.Now())}, nil
	}, false)

	dispatcher.RegisterHandler(ocpp16.ActionStatusNotification, func(ctx context.Context, raw json.RawMessage) (interface{}, *rpc.CallError) {
		var req ocpp16.StatusNotificationRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, rpc.NewCallError(rpc.FormationViolation, err.Error())
		}
		proxy.recordStatus(ConnectorSnapshot{
			ConnectorID: req.ConnectorId,
			Status:      req.Status,
			ErrorCode:   req.ErrorCode,
			UpdatedAt:   time.Now(),
		})
		return ocpp16.StatusNotificationResponse{}, nil
	}, false)

	dispatcher.RegisterHandler(ocpp16.ActionAuthorize, func(ctx context.Context, raw json.RawMessage) (interface{}, *rpc.CallError) {
		var req ocpp16.AuthorizeRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, rpc.NewCallError(rpc.FormationViolation, err.Error())
		}
		info, err := idTags.Lookup(ctx, req.IdTag)
		if err != nil {
			return nil, rpc.NewCallError(rpc.InternalError, err.Error())
		}
		return ocpp16.AuthorizeResponse{IdTagInfo: info}, nil
	}, false)

	dispatcher.RegisterHandler(ocpp16.ActionStartTransaction, func(ctx context.Context, raw json.RawMessage) (interface{}, *rpc.CallError) {
		var req ocpp16.StartTransactionRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, rpc.NewCallError(rpc.FormationViolation, err.Error())
		}
		info, err := idTags.Lookup(ctx, req.IdTag)
		if err != nil {
			return nil, rpc.NewCallError(rpc.InternalError, err.Error())
		}
		if info.Status != ocpp16.AuthAccepted {
			return ocpp16.StartTransactionResponse{IdTagInfo: info}, nil
		}
		txID, err := txs.Start(ctx, proxy.ID, req)
		if err != nil {
			return nil, rpc.NewCallError(rpc.InternalError, err.Error())
		}
		proxy.bus.Publish(domainevents.NewEventFactory().CreateTransactionStartedEvent(proxy.ID, domainevents.TransactionInfo{
			ID:            txID,
			ChargePointID: proxy.ID,
			ConnectorID:   req.ConnectorId,
			IdTag:         req.IdTag,
			StartTime:     time.Now(),
			MeterStart:    req.MeterStart,
		}, domainevents.AuthorizationInfo{IdTag: req.IdTag, Result: authResultFor(info.Status)}, domainevents.Metadata{Source: "centralsystem"}))
		return ocpp16.StartTransactionResponse{IdTagInfo: info, TransactionId: txID}, nil
	}, false)

	dispatcher.RegisterHandler(ocpp16.ActionStopTransaction, func(ctx context.Context, raw json.RawMessage) (interface{}, *rpc.CallError) {
		var req ocpp16.StopTransactionRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, rpc.NewCallError(rpc.FormationViolation, err.Error())
		}
		if err := txs.Stop(ctx, proxy.ID, req); err != nil {
			return nil, rpc.NewCallError(rpc.InternalError, err.Error())
		}
		var info *ocpp16.IdTagInfo
		if req.IdTag != nil {
			looked, err := idTags.Lookup(ctx, *req.IdTag)
			if err == nil {
				info = &looked
			}
		}
		now := time.Now()
		proxy.bus.Publish(&domainevents.TransactionStoppedEvent{
			BaseEvent: domainevents.NewBaseEvent(domainevents.EventTypeTransactionStopped, proxy.ID, domainevents.EventSeverityInfo, domainevents.Metadata{Source: "centralsystem"}),
			TransactionInfo: domainevents.TransactionInfo{
				ID:            req.TransactionId,
				ChargePointID: proxy.ID,
				EndTime:       &now,
			},
		})
		return ocpp16.StopTransactionResponse{IdTagInfo: info}, nil
	}, false)

	dispatcher.RegisterHandler(ocpp16.ActionMeterValues, func(ctx context.Context, raw json.RawMessage) (interface{}, *rpc.CallError) {
		var req ocpp16.MeterValuesRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, rpc.NewCallError(rpc.FormationViolation, err.Error())
		}
		proxy.bus.Publish(&domainevents.MeterValuesReceivedEvent{
			BaseEvent:     domainevents.NewBaseEvent(domainevents.EventTypeMeterValuesReceived, proxy.ID, domainevents.EventSeverityInfo, domainevents.Metadata{Source: "centralsystem"}),
			ConnectorID:   req.ConnectorId,
			TransactionID: req.TransactionId,
		})
		return ocpp16.MeterValuesResponse{}, nil
	}, false)

	dispatcher.RegisterHandler(ocpp16.ActionDataTransfer, func(ctx context.Context, raw json.RawMessage) (interface{}, *rpc.CallError) {
		return ocpp16.DataTransferResponse{Status: ocpp16.DataTransferUnknownVendorId}, nil
	}, false)

	dispatcher.RegisterHandler(ocpp16.ActionDiagnosticsStatusNotification, func(ctx context.Context, raw json.RawMessage) (interface{}, *rpc.CallError) {
		return ocpp16.DiagnosticsStatusNotificationResponse{}, nil
	}, false)

	dispatcher.RegisterHandler(ocpp16.ActionFirmwareStatusNotification, func(ctx context.Context, raw json.RawMessage) (interface{}, *rpc.CallError) {
		return ocpp16.FirmwareStatusNotificationResponse{}, nil
	}, false)
}
