package rpc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evstack/ocpp16/internal/codec"
	"github.com/evstack/ocpp16/internal/ocpp16"
)

func TestDispatcher_MissingHandlerReturnsNotImplemented(t *testing.T) {
	d := NewDispatcher(codec.PassthroughValidator{}, zerolog.Nop())
	_, callErr := d.Dispatch(context.Background(), string(ocpp16.ActionHeartbeat), json.RawMessage(`{}`))
	require.NotNil(t, callErr)
	assert.Equal(t, NotImplemented, callErr.Code)
}

func TestDispatcher_MalformedPayloadReturnsFormationViolation(t *testing.T) {
	d := NewDispatcher(codec.PassthroughValidator{}, zerolog.Nop())
	d.RegisterHandler(ocpp16.ActionBootNotification, func(ctx context.Context, payload json.RawMessage) (interface{}, *CallError) {
		t.Fatal("handler should not run for a malformed payload")
		return nil, nil
	}, false)

	_, callErr := d.Dispatch(context.Background(), string(ocpp16.ActionBootNotification), json.RawMessage(`{"chargePointVendor": 123}`))
	require.NotNil(t, callErr)
	assert.Equal(t, FormationViolation, callErr.Code)
}

func TestDispatcher_RegisterHandlerPanicsOnDuplicateWithoutAllowReplace(t *testing.T) {
	d := NewDispatcher(codec.PassthroughValidator{}, zerolog.Nop())
	noop := func(ctx context.Context, payload json.RawMessage) (interface{}, *CallError) { return ocpp16.HeartbeatResponse{}, nil }
	d.RegisterHandler(ocpp16.ActionHeartbeat, noop, false)

	assert.Panics(t, func() {
		d.RegisterHandler(ocpp16.ActionHeartbeat, noop, false)
	})
}

func TestDispatcher_RegisterHandlerAllowReplaceOverwrites(t *testing.T) {
	d := NewDispatcher(codec.PassthroughValidator{}, zerolog.Nop())
	first := func(ctx context.Context, payload json.RawMessage) (interface{}, *CallError) {
		return ocpp16.HeartbeatResponse{}, nil
	}
	second := func(ctx context.Context, payload json.RawMessage) (interface{}, *CallError) {
		return nil, NewCallError(InternalError, "second handler")
	}
	d.RegisterHandler(ocpp16.ActionHeartbeat, first, false)
	assert.NotPanics(t, func() {
		d.RegisterHandler(ocpp16.ActionHeartbeat, second, true)
	})

	_, callErr := d.Dispatch(context.Background(), string(ocpp16.ActionHeartbeat), json.RawMessage(`{}`))
	require.NotNil(t, callErr)
	assert.Equal(t, "second handler", callErr.Message)
}

func TestDispatcher_HandlerErrorPropagatesCallError(t *testing.T) {
	d := NewDispatcher(codec.PassthroughValidator{}, zerolog.Nop())
	d.RegisterHandler(ocpp16.ActionHeartbeat, func(ctx context.Context, payload json.RawMessage) (interface{}, *CallError) {
		return nil, NewCallError(NotSupported, "rejected by test handler")
	}, false)

	_, callErr := d.Dispatch(context.Background(), string(ocpp16.ActionHeartbeat), json.RawMessage(`{}`))
	require.NotNil(t, callErr)
	assert.Equal(t, NotSupported, callErr.Code)
}

func TestDispatcher_SuccessfulCallMarshalsResponse(t *testing.T) {
	d := NewDispatcher(codec.PassthroughValidator{}, zerolog.Nop())
	d.RegisterHandler(ocpp16.ActionHeartbeat, func(ctx context.Context, payload json.RawMessage) (interface{}, *CallError) {
		return ocpp16.HeartbeatResponse{}, nil
	}, false)

	out, callErr := d.Dispatch(context.Background(), string(ocpp16.ActionHeartbeat), json.RawMessage(`{}`))
	require.Nil(t, callErr)

	var resp ocpp16.HeartbeatResponse
	require.NoError(t, json.Unmarshal(out, &resp))
}
