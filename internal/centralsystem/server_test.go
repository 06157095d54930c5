package centralsystem

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainevents "github.com/evstack/ocpp16/internal/domain/events"
	"github.com/evstack/ocpp16/internal/events"
	"github.com/evstack/ocpp16/internal/ocpp16"
	"github.com/evstack/ocpp16/internal/rpc"
)

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

type fakeIdTagStore struct {
	status ocpp16.AuthorizationStatus
}

func (f fakeIdTagStore) Lookup(_ context.Context, idTag string) (ocpp16.IdTagInfo, error) {
	return ocpp16.IdTagInfo{Status: f.status}, nil
}

type fakeTransactionStore struct {
	mu      sync.Mutex
	nextID  int
	started []ocpp16.StartTransactionRequest
	stopped []ocpp16.StopTransactionRequest
}

func (f *fakeTransactionStore) Start(_ context.Context, _ string, req ocpp16.StartTransactionRequest) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.started = append(f.started, req)
	return f.nextID, nil
}

func (f *fakeTransactionStore) Stop(_ context.Context, _ string, req ocpp16.StopTransactionRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, req)
	return nil
}

type fakeAuthenticator struct {
	password string
}

func (f fakeAuthenticator) Authenticate(_ string, password string) bool {
	return password == f.password
}

func dialCP(t *testing.T, httpURL, chargePointID string, basicAuth *fakeAuthenticator) *rpc.Conn {
	t.Helper()
	dialer := &websocket.Dialer{Subprotocols: []string{"ocpp1.6"}}
	header := http.Header{}
	if basicAuth != nil {
		req, err := http.NewRequest(http.MethodGet, wsURL(httpURL)+"/ocpp/"+chargePointID, nil)
		require.NoError(t, err)
		req.SetBasicAuth(chargePointID, basicAuth.password)
		header = req.Header
	}
	ws, _, err := dialer.Dial(wsURL(httpURL)+"/ocpp/"+chargePointID, header)
	require.NoError(t, err)
	return rpc.NewConn(ws, nil, zerolog.Nop())
}

func TestServer_BootNotificationPopulatesProxyIdentity(t *testing.T) {
	logger := zerolog.Nop()
	bus := events.NewBus(logger)
	srv := NewServer(DefaultConfig(), nil, fakeIdTagStore{status: ocpp16.AuthAccepted}, &fakeTransactionStore{}, bus, logger)
	httpSrv := httptest.NewServer(http.HandlerFunc(srv.handleUpgrade))
	defer httpSrv.Close()

	cpConn := dialCP(t, httpSrv.URL, "CP1", nil)
	defer cpConn.Close()

	raw, err := cpConn.Call(context.Background(), string(ocpp16.ActionBootNotification), ocpp16.BootNotificationRequest{
		ChargePointVendor: "Acme",
		ChargePointModel:  "X1",
	})
	require.NoError(t, err)
	var resp ocpp16.BootNotificationResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.Equal(t, ocpp16.RegistrationAccepted, resp.Status)

	require.Eventually(t, func() bool { return srv.ConnectionCount() == 1 }, time.Second, 10*time.Millisecond)
	proxy, ok := srv.Proxy("CP1")
	require.True(t, ok)
	assert.Equal(t, "Acme", proxy.Identity().ChargePointVendor)
}

func TestServer_ReconnectSupersedesPreviousProxy(t *testing.T) {
	logger := zerolog.Nop()
	bus := events.NewBus(logger)
	srv := NewServer(DefaultConfig(), nil, fakeIdTagStore{status: ocpp16.AuthAccepted}, &fakeTransactionStore{}, bus, logger)
	httpSrv := httptest.NewServer(http.HandlerFunc(srv.handleUpgrade))
	defer httpSrv.Close()

	first := dialCP(t, httpSrv.URL, "CP1", nil)
	require.Eventually(t, func() bool { return srv.ConnectionCount() == 1 }, time.Second, 10*time.Millisecond)
	firstProxy, ok := srv.Proxy("CP1")
	require.True(t, ok)

	second := dialCP(t, httpSrv.URL, "CP1", nil)
	defer second.Close()

	require.Eventually(t, func() bool {
		proxy, ok := srv.Proxy("CP1")
		return ok && proxy != firstProxy
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		select {
		case <-firstProxy.conn.Done():
			return true
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond, "the superseded proxy's connection should be closed")

	first.Close()
	assert.Equal(t, 1, srv.ConnectionCount())
}

func TestServer_DisconnectRemovesProxyAndPublishesEvent(t *testing.T) {
	logger := zerolog.Nop()
	bus := events.NewBus(logger)
	srv := NewServer(DefaultConfig(), nil, fakeIdTagStore{status: ocpp16.AuthAccepted}, &fakeTransactionStore{}, bus, logger)
	httpSrv := httptest.NewServer(http.HandlerFunc(srv.handleUpgrade))
	defer httpSrv.Close()

	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	cpConn := dialCP(t, httpSrv.URL, "CP2", nil)
	require.Eventually(t, func() bool { return srv.ConnectionCount() == 1 }, time.Second, 10*time.Millisecond)

	cpConn.Close()

	require.Eventually(t, func() bool { return srv.ConnectionCount() == 0 }, time.Second, 10*time.Millisecond)

	select {
	case evt := <-ch:
		disc, ok := evt.(*domainevents.ChargePointDisconnectedEvent)
		require.True(t, ok)
		assert.Equal(t, "CP2", disc.GetChargePointID())
	case <-time.After(time.Second):
		t.Fatal("expected a ChargePointDisconnectedEvent to be published")
	}
}

func TestServer_UpgradeRejectsWrongBasicAuthCredentials(t *testing.T) {
	logger := zerolog.Nop()
	bus := events.NewBus(logger)
	auth := fakeAuthenticator{password: "secret"}
	srv := NewServer(DefaultConfig(), auth, fakeIdTagStore{status: ocpp16.AuthAccepted}, &fakeTransactionStore{}, bus, logger)
	httpSrv := httptest.NewServer(http.HandlerFunc(srv.handleUpgrade))
	defer httpSrv.Close()

	dialer := &websocket.Dialer{Subprotocols: []string{"ocpp1.6"}}
	req, err := http.NewRequest(http.MethodGet, wsURL(httpSrv.URL)+"/ocpp/CP3", nil)
	require.NoError(t, err)
	req.SetBasicAuth("CP3", "wrong-password")

	_, resp, err := dialer.Dial(wsURL(httpSrv.URL)+"/ocpp/CP3", req.Header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_UpgradeAcceptsCorrectBasicAuthCredentials(t *testing.T) {
	logger := zerolog.Nop()
	bus := events.NewBus(logger)
	auth := fakeAuthenticator{password: "secret"}
	srv := NewServer(DefaultConfig(), auth, fakeIdTagStore{status: ocpp16.AuthAccepted}, &fakeTransactionStore{}, bus, logger)
	httpSrv := httptest.NewServer(http.HandlerFunc(srv.handleUpgrade))
	defer httpSrv.Close()

	cpConn := dialCP(t, httpSrv.URL, "CP4", &auth)
	defer cpConn.Close()

	require.Eventually(t, func() bool { return srv.ConnectionCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestServer_StartAndStopTransactionPublishEvents(t *testing.T) {
	logger := zerolog.Nop()
	bus := events.NewBus(logger)
	txs := &fakeTransactionStore{}
	srv := NewServer(DefaultConfig(), nil, fakeIdTagStore{status: ocpp16.AuthAccepted}, txs, bus, logger)
	httpSrv := httptest.NewServer(http.HandlerFunc(srv.handleUpgrade))
	defer httpSrv.Close()

	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	cpConn := dialCP(t, httpSrv.URL, "CP5", nil)
	defer cpConn.Close()

	startRaw, err := cpConn.Call(context.Background(), string(ocpp16.ActionStartTransaction), ocpp16.StartTransactionRequest{
		ConnectorId: 1,
		IdTag:       "TAG1",
		MeterStart:  0,
		Timestamp:   ocpp16.NewDateTime(time.Now()),
	})
	require.NoError(t, err)
	var startResp ocpp16.StartTransactionResponse
	require.NoError(t, json.Unmarshal(startRaw, &startResp))
	assert.Equal(t, ocpp16.AuthAccepted, startResp.IdTagInfo.Status)
	assert.Equal(t, 1, startResp.TransactionId)

	require.Eventually(t, func() bool {
		select {
		case evt := <-ch:
			_, ok := evt.(*domainevents.TransactionStartedEvent)
			return ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond, "expected a TransactionStartedEvent")

	idTag := "TAG1"
	stopRaw, err := cpConn.Call(context.Background(), string(ocpp16.ActionStopTransaction), ocpp16.StopTransactionRequest{
		IdTag:         &idTag,
		MeterStop:     1000,
		Timestamp:     ocpp16.NewDateTime(time.Now()),
		TransactionId: startResp.TransactionId,
	})
	require.NoError(t, err)
	var stopResp ocpp16.StopTransactionResponse
	require.NoError(t, json.Unmarshal(stopRaw, &stopResp))
	require.NotNil(t, stopResp.IdTagInfo)

	require.Eventually(t, func() bool {
		select {
		case evt := <-ch:
			_, ok := evt.(*domainevents.TransactionStoppedEvent)
			return ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond, "expected a TransactionStoppedEvent")

	assert.Len(t, txs.started, 1)
	assert.Len(t, txs.stopped, 1)
}

func TestServer_StatusNotificationUpdatesConnectorSnapshot(t *testing.T) {
	logger := zerolog.Nop()
	bus := events.NewBus(logger)
	srv := NewServer(DefaultConfig(), nil, fakeIdTagStore{status: ocpp16.AuthAccepted}, &fakeTransactionStore{}, bus, logger)
	httpSrv := httptest.NewServer(http.HandlerFunc(srv.handleUpgrade))
	defer httpSrv.Close()

	cpConn := dialCP(t, httpSrv.URL, "CP6", nil)
	defer cpConn.Close()

	_, err := cpConn.Call(context.Background(), string(ocpp16.ActionStatusNotification), ocpp16.StatusNotificationRequest{
		ConnectorId: 1,
		ErrorCode:   ocpp16.ErrorNoError,
		Status:      ocpp16.StatusAvailable,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return srv.ConnectionCount() == 1 }, time.Second, 10*time.Millisecond)
	proxy, ok := srv.Proxy("CP6")
	require.True(t, ok)

	snapshot, ok := proxy.Connector(1)
	require.True(t, ok)
	assert.Equal(t, ocpp16.StatusAvailable, snapshot.Status)
}
