package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/evstack/ocpp16/internal/codec"
	"github.com/evstack/ocpp16/internal/metrics"
	"github.com/evstack/ocpp16/internal/ocpp16"
)

// Handler processes one decoded inbound CALL and returns its response
// payload, or a *CallError to reject it.
type Handler func(ctx context.Context, payload json.RawMessage) (interface{}, *CallError)

// Dispatcher is the action-keyed routing table described in spec.md §4.2
// (C3) and spec.md §9's redesign guidance ("a table action -> handler
// closure"), replacing the teacher's version-keyed
// internal/gateway/dispatcher.go MessageDispatcher.
type Dispatcher struct {
	mu        sync.RWMutex
	handlers  map[ocpp16.Action]Handler
	validator codec.SchemaValidator
	logger    zerolog.Logger
}

// NewDispatcher builds an empty dispatcher. A nil validator falls back to
// codec.NewDefaultSchemaValidator().
func NewDispatcher(validator codec.SchemaValidator, logger zerolog.Logger) *Dispatcher {
	if validator == nil {
		validator = codec.NewDefaultSchemaValidator()
	}
	return &Dispatcher{
		handlers:  make(map[ocpp16.Action]Handler),
		validator: validator,
		logger:    logger,
	}
}

// RegisterHandler binds action to h. If allowReplace is false and action
// already has a handler, it panics at startup rather than silently
// shadowing a previous registration.
func (d *Dispatcher) RegisterHandler(action ocpp16.Action, h Handler, allowReplace bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[action]; exists && !allowReplace {
		panic(fmt.Sprintf("rpc: handler for action %q already registered", action))
	}
	d.handlers[action] = h
}

// Dispatch implements spec.md §4.2's exact steps: missing handler ->
// NotImplemented; request payload fails validation -> FormationViolation;
// invoke handler; response payload is marshaled for the caller. The
// request struct, once unmarshaled, is also schema-validated when the
// codec registry knows its type.
func (d *Dispatcher) Dispatch(ctx context.Context, action string, payload json.RawMessage) (json.RawMessage, *CallError) {
	out, callErr := d.dispatch(ctx, action, payload)
	code := ""
	if callErr != nil {
		code = string(callErr.Code)
	}
	metrics.DispatchOutcomes.WithLabelValues(action, code).Inc()
	return out, callErr
}

func (d *Dispatcher) dispatch(ctx context.Context, action string, payload json.RawMessage) (json.RawMessage, *CallError) {
	act := ocpp16.Action(action)

	d.mu.RLock()
	h, ok := d.handlers[act]
	d.mu.RUnlock()
	if !ok {
		return nil, NewCallError(NotImplemented, fmt.Sprintf("no handler registered for action %q", action))
	}

	dir, _ := ocpp16.DirectionOf(act)

	if req := codec.NewRequest(act); req != nil {
		if err := json.Unmarshal(payload, req); err != nil {
			return nil, NewCallError(FormationViolation, "request payload does not match expected shape: "+err.Error())
		}
		if err := d.validator.ValidatePayload(act, dir, req); err != nil {
			return nil, NewCallError(FormationViolation, err.Error())
		}
	}

	resp, callErr := func() (resp interface{}, callErr *CallError) {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error().Str("action", action).Interface("panic", r).Msg("handler panicked")
				resp, callErr = nil, NewCallError(InternalError, "handler panicked")
			}
		}()
		return h(ctx, payload)
	}()
	if callErr != nil {
		return nil, callErr
	}

	if err := d.validator.ValidatePayload(act, dir, resp); err != nil {
		d.logger.Error().Str("action", action).Err(err).Msg("handler produced an invalid response payload")
		return nil, NewCallError(InternalError, "handler produced an invalid response")
	}

	out, err := json.Marshal(resp)
	if err != nil {
		return nil, NewCallError(InternalError, "failed to marshal response: "+err.Error())
	}
	return out, nil
}
