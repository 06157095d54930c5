package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evstack/ocpp16/internal/codec"
	"github.com/evstack/ocpp16/internal/ocpp16"
)

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

// dialPair spins up an httptest server speaking one side of the
// connection and dials the other, returning both *Conn so tests can
// exercise Call() in either direction, grounded on the same
// httptest+gorilla/websocket harness as
// internal/localcontroller/proxypair_test.go.
func dialPair(t *testing.T, serverDispatcher, clientDispatcher *Dispatcher) (server, client *Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		server = NewConn(ws, serverDispatcher, zerolog.Nop())
	}))
	t.Cleanup(srv.Close)

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv.URL), nil)
	require.NoError(t, err)
	client = NewConn(ws, clientDispatcher, zerolog.Nop())

	require.Eventually(t, func() bool { return server != nil }, time.Second, time.Millisecond)
	return server, client
}

func TestConn_CallRoundTrip(t *testing.T) {
	serverDispatcher := NewDispatcher(codec.PassthroughValidator{}, zerolog.Nop())
	serverDispatcher.RegisterHandler(ocpp16.ActionHeartbeat, func(ctx context.Context, payload json.RawMessage) (interface{}, *CallError) {
		return ocpp16.HeartbeatResponse{CurrentTime: ocpp16.NewDateTime(time.Unix(1000, 0).UTC())}, nil
	}, false)

	server, client := dialPair(t, serverDispatcher, nil)
	defer server.Close()
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	raw, err := client.Call(ctx, string(ocpp16.ActionHeartbeat), ocpp16.HeartbeatRequest{})
	require.NoError(t, err)

	var resp ocpp16.HeartbeatResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.True(t, time.Unix(1000, 0).UTC().Equal(resp.CurrentTime.Time))
}

func TestConn_CallAgainstUnregisteredActionReturnsNotImplemented(t *testing.T) {
	serverDispatcher := NewDispatcher(codec.PassthroughValidator{}, zerolog.Nop())
	server, client := dialPair(t, serverDispatcher, nil)
	defer server.Close()
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := client.Call(ctx, string(ocpp16.ActionHeartbeat), ocpp16.HeartbeatRequest{})
	require.Error(t, err)
	callErr, ok := err.(*CallError)
	require.True(t, ok)
	assert.Equal(t, NotImplemented, callErr.Code)
}

func TestConn_CallTimesOutWhenNoResponseArrives(t *testing.T) {
	serverDispatcher := NewDispatcher(codec.PassthroughValidator{}, zerolog.Nop())
	blockCh := make(chan struct{})
	serverDispatcher.RegisterHandler(ocpp16.ActionHeartbeat, func(ctx context.Context, payload json.RawMessage) (interface{}, *CallError) {
		<-blockCh
		return ocpp16.HeartbeatResponse{}, nil
	}, false)

	server, client := dialPair(t, serverDispatcher, nil)
	defer server.Close()
	defer client.Close()
	defer close(blockCh)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.Call(ctx, string(ocpp16.ActionHeartbeat), ocpp16.HeartbeatRequest{})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestConn_CloseFailsPendingCalls(t *testing.T) {
	serverDispatcher := NewDispatcher(codec.PassthroughValidator{}, zerolog.Nop())
	blockCh := make(chan struct{})
	serverDispatcher.RegisterHandler(ocpp16.ActionHeartbeat, func(ctx context.Context, payload json.RawMessage) (interface{}, *CallError) {
		<-blockCh
		return ocpp16.HeartbeatResponse{}, nil
	}, false)

	server, client := dialPair(t, serverDispatcher, nil)
	defer server.Close()
	defer close(blockCh)

	done := make(chan error, 1)
	go func() {
		_, err := client.Call(context.Background(), string(ocpp16.ActionHeartbeat), ocpp16.HeartbeatRequest{})
		done <- err
	}()

	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return len(client.pending) == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, client.Close())
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrTransportClosed)
	case <-time.After(time.Second):
		t.Fatal("Call did not unblock after Close")
	}
}
