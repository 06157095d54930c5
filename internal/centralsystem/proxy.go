// Package centralsystem implements the CS Role Runtime (spec.md §4.7,
// C7): a WebSocket listener accepting CP connections, one ChargePointProxy
// per connected CP holding its own action-keyed Dispatcher and rpc.Conn,
// and the outbound CS->CP operations. Grounded on the teacher's
// internal/transport/websocket/manager.go (Manager/ConnectionWrapper
// lifecycle, graceful shutdown; its idle-connection sweep is not carried
// over), adapted
// from a single shared dispatcher to one dispatcher per CP connection
// since CS-side inbound handlers need to close over which CP sent the
// CALL (the teacher's gateway.MessageDispatcher had no such need).
package centralsystem

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/evstack/ocpp16/internal/events"
	"github.com/evstack/ocpp16/internal/ocpp16"
	"github.com/evstack/ocpp16/internal/rpc"
)

// IdTagStore is the CS's authoritative answer to "is this idTag good to
// charge on", backing Authorize/StartTransaction/StopTransaction.
type IdTagStore interface {
	Lookup(ctx context.Context, idTag string) (ocpp16.IdTagInfo, error)
}

// TransactionStore assigns transaction ids and records start/stop,
// independent of any single CP connection's lifetime.
type TransactionStore interface {
	Start(ctx context.Context, chargePointID string, req ocpp16.StartTransactionRequest) (transactionID int, err error)
	Stop(ctx context.Context, chargePointID string, req ocpp16.StopTransactionRequest) error
}

// ConnectorSnapshot is the CS's view of one connector's last reported
// status, kept for GetConnectionsStatus-style introspection.
type ConnectorSnapshot struct {
	ConnectorID int
	Status      ocpp16.ChargePointStatus
	ErrorCode   ocpp16.ChargePointErrorCode
	UpdatedAt   time.Time
}

// ChargePointProxy is the CS-side handle to one connected CP: its own
// rpc.Conn/Dispatcher pair, last-known identity and connector state, and
// the outbound call wrappers spec.md §4.7 names.
type ChargePointProxy struct {
	ID string

	conn   *rpc.Conn
	bus    *events.Bus
	logger zerolog.Logger

	mu         sync.RWMutex
	identity   ocpp16.BootNotificationRequest
	connectors map[int]ConnectorSnapshot
	connectedAt time.Time
}

func newChargePointProxy(id string, conn *rpc.Conn, bus *events.Bus, logger zerolog.Logger) *ChargePointProxy {
	return &ChargePointProxy{
		ID:          id,
		conn:        conn,
		bus:         bus,
		logger:      logger,
		connectors:  make(map[int]ConnectorSnapshot),
		connectedAt: time.Now(),
	}
}

// Identity returns the last BootNotification payload this CP sent.
func (p *ChargePointProxy) Identity() ocpp16.BootNotificationRequest {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.identity
}

// Connector returns the last known status of one connector.
func (p *ChargePointProxy) Connector(id int) (ConnectorSnapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.connectors[id]
	return c, ok
}

func (p *ChargePointProxy) recordStatus(s ConnectorSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connectors[s.ConnectorID] = s
}

// The following wrap outbound CALLs spec.md §4.7 lists as CS->CP
// operations. Each just marshals req, waits for the correlated
// CALLRESULT, and decodes it into the matching response type.

func (p *ChargePointProxy) RemoteStartTransaction(ctx context.Context, req ocpp16.RemoteStartTransactionRequest) (ocpp16.RemoteStartTransactionResponse, error) {
	var resp ocpp16.RemoteStartTransactionResponse
	return resp, p.callInto(ctx, ocpp16.ActionRemoteStartTransaction, req, &resp)
}

func (p *ChargePointProxy) RemoteStopTransaction(ctx context.Context, req ocpp16.RemoteStopTransactionRequest) (ocpp16.RemoteStopTransactionResponse, error) {
	var resp ocpp16.RemoteStopTransactionResponse
	return resp, p.callInto(ctx, ocpp16.ActionRemoteStopTransaction, req, &resp)
}

func (p *ChargePointProxy) ChangeAvailability(ctx context.Context, req ocpp16.ChangeAvailabilityRequest) (ocpp16.ChangeAvailabilityResponse, error) {
	var resp ocpp16.ChangeAvailabilityResponse
	return resp, p.callInto(ctx, ocpp16.ActionChangeAvailability, req, &resp)
}

func (p *ChargePointProxy) ChangeConfiguration(ctx context.Context, req ocpp16.ChangeConfigurationRequest) (ocpp16.ChangeConfigurationResponse, error) {
	var resp ocpp16.ChangeConfigurationResponse
	return resp, p.callInto(ctx, ocpp16.ActionChangeConfiguration, req, &resp)
}

func (p *ChargePointProxy) GetConfiguration(ctx context.Context, req ocpp16.GetConfigurationRequest) (ocpp16.GetConfigurationResponse, error) {
	var resp ocpp16.GetConfigurationResponse
	return resp, p.callInto(ctx, ocpp16.ActionGetConfiguration, req, &resp)
}

func (p *ChargePointProxy) ClearCache(ctx context.Context) (ocpp16.ClearCacheResponse, error) {
	var resp ocpp16.ClearCacheResponse
	return resp, p.callInto(ctx, ocpp16.ActionClearCache, ocpp16.ClearCacheRequest{}, &resp)
}

func (p *ChargePointProxy) Reset(ctx context.Context, req ocpp16.ResetRequest) (ocpp16.ResetResponse, error) {
	var resp ocpp16.ResetResponse
	return resp, p.callInto(ctx, ocpp16.ActionReset, req, &resp)
}

func (p *ChargePointProxy) UnlockConnector(ctx context.Context, req ocpp16.UnlockConnectorRequest) (ocpp16.UnlockConnectorResponse, error) {
	var resp ocpp16.UnlockConnectorResponse
	return resp, p.callInto(ctx, ocpp16.ActionUnlockConnector, req, &resp)
}

func (p *ChargePointProxy) SetChargingProfile(ctx context.Context, req ocpp16.SetChargingProfileRequest) (ocpp16.SetChargingProfileResponse, error) {
	var resp ocpp16.SetChargingProfileResponse
	return resp, p.callInto(ctx, ocpp16.ActionSetChargingProfile, req, &resp)
}

func (p *ChargePointProxy) ClearChargingProfile(ctx context.Context, req ocpp16.ClearChargingProfileRequest) (ocpp16.ClearChargingProfileResponse, error) {
	var resp ocpp16.ClearChargingProfileResponse
	return resp, p.callInto(ctx, ocpp16.ActionClearChargingProfile, req, &resp)
}

func (p *ChargePointProxy) GetCompositeSchedule(ctx context.Context, req ocpp16.GetCompositeScheduleRequest) (ocpp16.GetCompositeScheduleResponse, error) {
	var resp ocpp16.GetCompositeScheduleResponse
	return resp, p.callInto(ctx, ocpp16.ActionGetCompositeSchedule, req, &resp)
}

func (p *ChargePointProxy) SendLocalList(ctx context.Context, req ocpp16.SendLocalListRequest) (ocpp16.SendLocalListResponse, error) {
	var resp ocpp16.SendLocalListResponse
	return resp, p.callInto(ctx, ocpp16.ActionSendLocalList, req, &resp)
}

func (p *ChargePointProxy) GetLocalListVersion(ctx context.Context) (ocpp16.GetLocalListVersionResponse, error) {
	var resp ocpp16.GetLocalListVersionResponse
	return resp, p.callInto(ctx, ocpp16.ActionGetLocalListVersion, ocpp16.GetLocalListVersionRequest{}, &resp)
}

func (p *ChargePointProxy) TriggerMessage(ctx context.Context, req ocpp16.TriggerMessageRequest) (ocpp16.TriggerMessageResponse, error) {
	var resp ocpp16.TriggerMessageResponse
	return resp, p.callInto(ctx, ocpp16.ActionTriggerMessage, req, &resp)
}

func (p *ChargePointProxy) DataTransfer(ctx context.Context, req ocpp16.DataTransferRequest) (ocpp16.DataTransferResponse, error) {
	var resp ocpp16.DataTransferResponse
	return resp, p.callInto(ctx, ocpp16.ActionDataTransfer, req, &resp)
}

func (p *ChargePointProxy) ReserveNow(ctx context.Context, req ocpp16.ReserveNowRequest) (ocpp16.ReserveNowResponse, error) {
	var resp ocpp16.ReserveNowResponse
	return resp, p.callInto(ctx, ocpp16.ActionReserveNow, req, &resp)
}

func (p *ChargePointProxy) CancelReservation(ctx context.Context, req ocpp16.CancelReservationRequest) (ocpp16.CancelReservationResponse, error) {
	var resp ocpp16.CancelReservationResponse
	return resp, p.callInto(ctx, ocpp16.ActionCancelReservation, req, &resp)
}

func (p *ChargePointProxy) callInto(ctx context.Context, action ocpp16.Action, req interface{}, into interface{}) error {
	raw, err := p.conn.Call(ctx, string(action), req)
	if err != nil {
		return fmt.Errorf("centralsystem: %s to %s: %w", action, p.ID, err)
	}
	return decodeInto(raw, into)
}
