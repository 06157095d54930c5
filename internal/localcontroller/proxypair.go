// Package localcontroller implements the LC Role Runtime (spec.md §4.5,
// C8): a transparent store-and-forward proxy that pairs a CP-facing server
// session with a CS-facing client session, forwarding every action neither
// side overrides byte-for-byte. Grounded on the teacher's
// internal/transport/websocket/manager.go connection lifecycle (one
// goroutine pair per leg, non-blocking writer) and on rpc.Conn/rpc.Dispatcher
// (C2/C3), reused unmodified for both legs.
package localcontroller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/evstack/ocpp16/internal/codec"
	"github.com/evstack/ocpp16/internal/ocpp16"
	"github.com/evstack/ocpp16/internal/rpc"
)

// cpToCSActions and csToCPActions list every action this role forwards in
// each direction, mirroring ocpp16's private actionDirection table (kept
// local to this package since only the LC role needs to enumerate both
// directions at once to register a default forwarder for each).
var cpToCSActions = []ocpp16.Action{
	ocpp16.ActionAuthorize,
	ocpp16.ActionBootNotification,
	ocpp16.ActionDataTransfer,
	ocpp16.ActionHeartbeat,
	ocpp16.ActionMeterValues,
	ocpp16.ActionStartTransaction,
	ocpp16.ActionStatusNotification,
	ocpp16.ActionStopTransaction,
	ocpp16.ActionDiagnosticsStatusNotification,
	ocpp16.ActionFirmwareStatusNotification,
	ocpp16.ActionLogStatusNotification,
	ocpp16.ActionSecurityEventNotification,
	ocpp16.ActionSignCertificate,
	ocpp16.ActionSignedFirmwareStatusNotification,
}

var csToCPActions = []ocpp16.Action{
	ocpp16.ActionChangeAvailability,
	ocpp16.ActionChangeConfiguration,
	ocpp16.ActionClearCache,
	ocpp16.ActionGetConfiguration,
	ocpp16.ActionRemoteStartTransaction,
	ocpp16.ActionRemoteStopTransaction,
	ocpp16.ActionReset,
	ocpp16.ActionUnlockConnector,
	ocpp16.ActionGetDiagnostics,
	ocpp16.ActionUpdateFirmware,
	ocpp16.ActionGetLocalListVersion,
	ocpp16.ActionSendLocalList,
	ocpp16.ActionCancelReservation,
	ocpp16.ActionReserveNow,
	ocpp16.ActionClearChargingProfile,
	ocpp16.ActionGetCompositeSchedule,
	ocpp16.ActionSetChargingProfile,
	ocpp16.ActionTriggerMessage,
	ocpp16.ActionExtendedTriggerMessage,
	ocpp16.ActionCertificateSigned,
	ocpp16.ActionDeleteCertificate,
	ocpp16.ActionGetInstalledCertificateIds,
	ocpp16.ActionGetLog,
	ocpp16.ActionInstallCertificate,
	ocpp16.ActionSignedUpdateFirmware,
}

// Config controls lifetime coupling between the two legs of a ProxyPair.
// spec.md §4.5: "Shared lifetime: if either leg disconnects, the other is
// torn down (configurable for CS->CP direction only)" — CP-leg loss always
// tears down the CS leg (a relay with no CP to relay for is pointless), but
// a CS-leg loss tearing down the CP leg is the part callers may opt out of,
// e.g. to let a CP ride out a brief CS outage.
type Config struct {
	TearDownCPOnCSDisconnect bool
	CSDialTimeout            time.Duration
}

func DefaultConfig() Config {
	return Config{
		TearDownCPOnCSDisconnect: true,
		CSDialTimeout:            10 * time.Second,
	}
}

// ProxyPair couples one CP-facing server-side rpc.Conn with one CS-facing
// client-side rpc.Conn for a single charge point id, forwarding CALLs
// between them.
type ProxyPair struct {
	ChargePointID string

	cfg    Config
	logger zerolog.Logger

	cpDispatcher *rpc.Dispatcher
	csDispatcher *rpc.Dispatcher

	cpConn *rpc.Conn
	csConn *rpc.Conn

	mu        sync.RWMutex
	overrides map[ocpp16.Action]rpc.Handler // action -> caller-supplied handler, checked before the default forwarder
}

// NewProxyPair builds a ProxyPair around an already-upgraded CP-facing
// WebSocket connection (ws) and dials csURL to establish the CS-facing leg.
// Both internal dispatchers use codec.PassthroughValidator so forwarded
// payloads are never unmarshaled into (and re-validated as) typed structs —
// the byte-for-byte forwarding invariant (spec.md §4.5 invariant 9) depends
// on this.
func NewProxyPair(ctx context.Context, chargePointID string, cpWS *websocket.Conn, csURL string, csHeader http.Header, cfg Config, logger zerolog.Logger) (*ProxyPair, error) {
	p := &ProxyPair{
		ChargePointID: chargePointID,
		cfg:           cfg,
		logger:        logger,
		overrides:     make(map[ocpp16.Action]rpc.Handler),
	}

	p.cpDispatcher = rpc.NewDispatcher(codec.PassthroughValidator{}, logger)
	p.csDispatcher = rpc.NewDispatcher(codec.PassthroughValidator{}, logger)

	dialer := &websocket.Dialer{
		HandshakeTimeout: cfg.CSDialTimeout,
		Subprotocols:     []string{"ocpp1.6"},
	}
	csWS, _, err := dialer.DialContext(ctx, csURL, csHeader)
	if err != nil {
		return nil, fmt.Errorf("localcontroller: dial central system for %s: %w", chargePointID, err)
	}

	p.csConn = rpc.NewConn(csWS, p.csDispatcher, logger)
	p.cpConn = rpc.NewConn(cpWS, p.cpDispatcher, logger)

	p.registerDefaultForwarders()
	go p.watchLifetime()

	return p, nil
}

// OverrideHandler installs a caller-supplied handler for action, replacing
// the default transparent forwarder. Used by callers that need to
// terminate specific actions locally (e.g. answering GetConfiguration from
// an LC-local cache instead of round-tripping to the CS).
func (p *ProxyPair) OverrideHandler(action ocpp16.Action, h rpc.Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.overrides[action] = h
}

func (p *ProxyPair) overrideFor(action ocpp16.Action) (rpc.Handler, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.overrides[action]
	return h, ok
}

// registerDefaultForwarders wires a transparent-forward handler for every
// known action on each leg's dispatcher: CP->CS actions arriving on the
// CP-facing dispatcher relay to the CS leg, and vice versa. allowReplace is
// true, so a later RegisterHandler call for the same action replaces the
// forwarder; OverrideHandler does not re-register, since each forwarder
// consults the overrides map on every call.
func (p *ProxyPair) registerDefaultForwarders() {
	for _, action := range cpToCSActions {
		action := action
		p.cpDispatcher.RegisterHandler(action, p.forwardTo(action, func() *rpc.Conn { return p.csConn }), true)
	}
	for _, action := range csToCPActions {
		action := action
		p.csDispatcher.RegisterHandler(action, p.forwardTo(action, func() *rpc.Conn { return p.cpConn }), true)
	}
}

// forwardTo builds the default handler for action: check for an override
// first, otherwise relay payload verbatim to dest() and return its raw
// CALLRESULT unchanged. json.RawMessage both in and out, so no typed
// struct is ever constructed on this path.
func (p *ProxyPair) forwardTo(action ocpp16.Action, dest func() *rpc.Conn) rpc.Handler {
	return func(ctx context.Context, payload json.RawMessage) (interface{}, *rpc.CallError) {
		if h, ok := p.overrideFor(action); ok {
			return h(ctx, payload)
		}
		raw, err := dest().Call(ctx, string(action), payload)
		if err != nil {
			if callErr, ok := err.(*rpc.CallError); ok {
				return nil, callErr
			}
			return nil, rpc.NewCallError(rpc.InternalError, err.Error())
		}
		return raw, nil
	}
}

// watchLifetime implements spec.md §4.5's shared-lifetime coupling: the CP
// leg dropping always tears down the CS leg, and the CS leg dropping tears
// down the CP leg only when cfg.TearDownCPOnCSDisconnect is set.
func (p *ProxyPair) watchLifetime() {
	select {
	case <-p.cpConn.Done():
		p.logger.Info().Str("charge_point_id", p.ChargePointID).Msg("localcontroller: CP leg closed, tearing down CS leg")
		p.csConn.Close()
	case <-p.csConn.Done():
		if p.cfg.TearDownCPOnCSDisconnect {
			p.logger.Info().Str("charge_point_id", p.ChargePointID).Msg("localcontroller: CS leg closed, tearing down CP leg")
			p.cpConn.Close()
		} else {
			p.logger.Warn().Str("charge_point_id", p.ChargePointID).Msg("localcontroller: CS leg closed, CP leg kept alive")
		}
	}
}

// Close tears down both legs.
func (p *ProxyPair) Close() error {
	cpErr := p.cpConn.Close()
	csErr := p.csConn.Close()
	if cpErr != nil {
		return cpErr
	}
	return csErr
}
