// Package chargepoint implements the CP Role Runtime (spec.md §4.6, C6):
// connector state, the boot/heartbeat lifecycle, and the transaction
// lifecycle, wired to the Authorization Subsystem (C4) and the
// Smart-Charging Engine (C5). The transaction entity and connector
// status model are adapted from the teacher's
// internal/business/transaction/manager.go and
// internal/business/chargepoint/manager.go, with billing fields dropped
// (no SPEC_FULL.md component models tariffs/billing; see DESIGN.md).
package chargepoint

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/evstack/ocpp16/internal/auth"
	"github.com/evstack/ocpp16/internal/ocpp16"
	"github.com/evstack/ocpp16/internal/rpc"
	"github.com/evstack/ocpp16/internal/smartcharging"
)

// Connector is the runtime state of one physical connector (id 0 means
// "the charge point as a whole").
type Connector struct {
	ID           int
	Status       ocpp16.ChargePointStatus
	ErrorCode    ocpp16.ChargePointErrorCode
	Transaction  *Transaction
	lastStatusAt time.Time
}

// Transaction mirrors spec.md §3's transaction record, without the
// teacher's billing fields.
type Transaction struct {
	ID          int
	ConnectorID int
	IdTag       string
	ParentIdTag *string
	StartTime   time.Time
	StopTime    *time.Time
	MeterStart  int
	MeterStop   *int
	Status      ocpp16.AuthorizationStatus
}

// Identity carries the Basic-Auth / TLS-client-cert identity this CP
// presents on the wire (spec.md §6).
type Identity struct {
	ChargePointID string
	Vendor        string
	Model         string
}

// Runtime is the CP-role facade: owns connectors, talks to the Central
// System over a *rpc.Conn, and consults auth.Authorizer/smartcharging.ProfileDB
// for local decisions.
type Runtime struct {
	mu         sync.RWMutex
	identity   Identity
	conn       *rpc.Conn
	authorizer *auth.Authorizer
	profiles   *smartcharging.ProfileDB
	voltage    smartcharging.VoltageSource
	logger     zerolog.Logger

	connectors   map[int]*Connector
	nextTxID     int
	reservations ReservationStore

	heartbeatInterval time.Duration
	stopHeartbeat     chan struct{}
}

func NewRuntime(identity Identity, conn *rpc.Conn, authorizer *auth.Authorizer, profiles *smartcharging.ProfileDB, voltage smartcharging.VoltageSource, numConnectors int, logger zerolog.Logger) *Runtime {
	r := &Runtime{
		identity:      identity,
		conn:          conn,
		authorizer:    authorizer,
		profiles:      profiles,
		voltage:       voltage,
		logger:        logger,
		connectors:    make(map[int]*Connector, numConnectors+1),
		nextTxID:      1,
		reservations:  NewMemoryReservationStore(),
		stopHeartbeat: make(chan struct{}),
	}
	for i := 0; i <= numConnectors; i++ {
		r.connectors[i] = &Connector{ID: i, Status: ocpp16.StatusAvailable}
	}
	return r
}

// Boot sends BootNotification and, on Accepted, starts the heartbeat
// loop at the server-assigned interval (spec.md §5's "timer pool for
// periodic ticks (heartbeat, ...)").
func (r *Runtime) Boot(ctx context.Context) (ocpp16.RegistrationStatus, error) {
	req := ocpp16.BootNotificationRequest{
		ChargePointVendor: r.identity.Vendor,
		ChargePointModel:  r.identity.Model,
	}
	raw, err := r.conn.Call(ctx, string(ocpp16.ActionBootNotification), req)
	if err != nil {
		return "", fmt.Errorf("chargepoint: BootNotification: %w", err)
	}
	var resp ocpp16.BootNotificationResponse
	if err := decodeInto(raw, &resp); err != nil {
		return "", err
	}
	if resp.Status == ocpp16.RegistrationAccepted && resp.Interval > 0 {
		r.mu.Lock()
		r.heartbeatInterval = time.Duration(resp.Interval) * time.Second
		r.mu.Unlock()
		go r.heartbeatLoop(resp.Interval)
	}
	return resp.Status, nil
}

func (r *Runtime) heartbeatLoop(intervalSeconds int) {
	ticker := time.NewTicker(time.Duration(intervalSeconds) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if _, err := r.conn.Call(ctx, string(ocpp16.ActionHeartbeat), ocpp16.HeartbeatRequest{}); err != nil {
				r.logger.Warn().Err(err).Msg("heartbeat failed")
			}
			cancel()
		case <-r.stopHeartbeat:
			return
		}
	}
}

// Stop cancels the heartbeat loop.
func (r *Runtime) Stop() {
	select {
	case <-r.stopHeartbeat:
	default:
		close(r.stopHeartbeat)
	}
}

// NotifyStatus sends StatusNotification for connectorID and updates
// local connector state.
func (r *Runtime) NotifyStatus(ctx context.Context, connectorID int, status ocpp16.ChargePointStatus, errCode ocpp16.ChargePointErrorCode) error {
	r.mu.Lock()
	c, ok := r.connectors[connectorID]
	if ok {
		c.Status = status
		c.ErrorCode = errCode
		c.lastStatusAt = time.Now()
	}
	r.mu.Unlock()

	req := ocpp16.StatusNotificationRequest{
		ConnectorId: connectorID,
		ErrorCode:   errCode,
		Status:      status,
		Timestamp:   dtPtr(time.Now()),
	}
	_, err := r.conn.Call(ctx, string(ocpp16.ActionStatusNotification), req)
	return err
}

// StartTransaction authorizes idTag locally (spec.md §4.3) then reports
// StartTransaction to the Central System, per spec.md §4.6.
func (r *Runtime) StartTransaction(ctx context.Context, connectorID int, idTag string, meterStart int) (*Transaction, error) {
	status, parent := r.authorizer.Authorize(ctx, idTag)
	if status != ocpp16.AuthAccepted {
		return nil, fmt.Errorf("chargepoint: authorization for idTag %q: %s", idTag, status)
	}

	req := ocpp16.StartTransactionRequest{
		ConnectorId: connectorID,
		IdTag:       idTag,
		MeterStart:  meterStart,
		Timestamp:   *dtPtr(time.Now()),
	}
	raw, err := r.conn.Call(ctx, string(ocpp16.ActionStartTransaction), req)
	if err != nil {
		return nil, fmt.Errorf("chargepoint: StartTransaction: %w", err)
	}
	var resp ocpp16.StartTransactionResponse
	if err := decodeInto(raw, &resp); err != nil {
		return nil, err
	}
	if resp.IdTagInfo.Status != ocpp16.AuthAccepted {
		return nil, fmt.Errorf("chargepoint: StartTransaction rejected by CS: %s", resp.IdTagInfo.Status)
	}

	tx := &Transaction{
		ID:          resp.TransactionId,
		ConnectorID: connectorID,
		IdTag:       idTag,
		ParentIdTag: parent,
		StartTime:   time.Now(),
		MeterStart:  meterStart,
		Status:      resp.IdTagInfo.Status,
	}

	r.mu.Lock()
	if c, ok := r.connectors[connectorID]; ok {
		c.Transaction = tx
		if c.Status == ocpp16.StatusReserved {
			c.Status = ocpp16.StatusCharging
		}
	}
	r.mu.Unlock()
	// A started transaction supersedes any reservation held on this
	// connector, reserved or not (an unreserved walk-up is the common case).
	r.reservations.DeleteByConnector(connectorID)

	r.profiles.AssignPendingTxProfiles(connectorID, tx.ID)
	return tx, nil
}

// StopTransaction reports StopTransaction for the connector's active
// transaction and clears its Tx profiles (spec.md §4.4's
// clearTxProfiles, invoked on transaction end).
func (r *Runtime) StopTransaction(ctx context.Context, connectorID, meterStop int, reason ocpp16.Reason) error {
	r.mu.Lock()
	c, ok := r.connectors[connectorID]
	if !ok || c.Transaction == nil {
		r.mu.Unlock()
		return fmt.Errorf("chargepoint: no active transaction on connector %d", connectorID)
	}
	tx := c.Transaction
	r.mu.Unlock()

	req := ocpp16.StopTransactionRequest{
		TransactionId: tx.ID,
		IdTag:         &tx.IdTag,
		MeterStop:     meterStop,
		Timestamp:     *dtPtr(time.Now()),
		Reason:        &reason,
	}
	_, err := r.conn.Call(ctx, string(ocpp16.ActionStopTransaction), req)
	if err != nil {
		return fmt.Errorf("chargepoint: StopTransaction: %w", err)
	}

	r.mu.Lock()
	now := time.Now()
	tx.StopTime = &now
	tx.MeterStop = &meterStop
	c.Transaction = nil
	r.mu.Unlock()

	r.profiles.ClearTxProfiles(connectorID)
	return nil
}

// Connector returns a snapshot of connector state (spec.md §5: "Connector
// state is updated only from the CP runtime task; other components read
// via message passing or snapshot copies").
func (r *Runtime) Connector(id int) (Connector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[id]
	if !ok {
		return Connector{}, false
	}
	return *c, true
}

// ConnectorState reports the smart-charging-relevant view of a connector.
func (r *Runtime) ConnectorState(id int) smartcharging.ConnectorState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[id]
	if !ok || c.Transaction == nil {
		return smartcharging.ConnectorState{}
	}
	return smartcharging.ConnectorState{
		TransactionActive: true,
		TransactionID:     c.Transaction.ID,
		TransactionStart:  c.Transaction.StartTime,
	}
}

func dtPtr(t time.Time) *ocpp16.DateTime {
	dt := ocpp16.NewDateTime(t)
	return &dt
}
