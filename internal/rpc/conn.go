// Package rpc implements the OCPP-J RPC Core (spec.md §4.1, C2) and the
// action-keyed Message Dispatcher (spec.md §4.2, C3). It is grounded on
// the teacher's internal/transport/websocket/manager.go (connection
// goroutine split, single-writer discipline) and internal/protocol/
// ocpp16/processor.go (pending-call table, timeout sweep).
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/evstack/ocpp16/internal/codec"
	"github.com/evstack/ocpp16/internal/metrics"
)

// Direction of a raw frame, for the Spy hook.
type FrameDirection int

const (
	Outbound FrameDirection = iota
	Inbound
)

// Spy observes every raw frame written or read on a connection. Intended
// for logging/audit; it must not block or mutate its argument.
type Spy func(dir FrameDirection, raw []byte)

// DefaultCallTimeout is used when Call is invoked with no deadline on ctx.
const DefaultCallTimeout = 30 * time.Second

type pendingCall struct {
	action       string
	createdAt    time.Time
	responseChan chan callResult
	delivered    bool
}

type callResult struct {
	payload json.RawMessage
	err     error
}

// Conn wraps one WebSocket session with OCPP-J framing, request/response
// correlation, and per-call timeout. Reads happen on a dedicated
// goroutine; writes are serialized through a channel so "one in-flight
// write at a time" (spec.md §4.1) holds without an explicit lock around
// the socket.
type Conn struct {
	ws         *websocket.Conn
	dispatcher *Dispatcher
	logger     zerolog.Logger
	spy        Spy

	sendCh chan []byte
	done   chan struct{}
	once   sync.Once

	mu      sync.Mutex
	pending map[string]*pendingCall
	closed  bool

	wg sync.WaitGroup
}

// NewConn wraps ws. dispatcher may be nil for a connection that only ever
// initiates calls and never accepts inbound CALLs (rare, but kept general).
func NewConn(ws *websocket.Conn, dispatcher *Dispatcher, logger zerolog.Logger) *Conn {
	c := &Conn{
		ws:         ws,
		dispatcher: dispatcher,
		logger:     logger,
		sendCh:     make(chan []byte, 64),
		done:       make(chan struct{}),
		pending:    make(map[string]*pendingCall),
	}
	c.wg.Add(2)
	go c.writeLoop()
	go c.readLoop()
	return c
}

// SetSpy installs a raw-frame observer.
func (c *Conn) SetSpy(s Spy) { c.spy = s }

// Done returns a channel closed once the connection has torn down, either
// because Close was called or the underlying read failed. Callers that
// own a registry of connections (e.g. the CS role's per-CP proxy map)
// use this to detect disconnects without polling.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Call sends a CALL for action with req marshaled as its payload, then
// waits for the correlated CALLRESULT/CALLERROR or ctx's deadline.
// Returns the raw CALLRESULT payload on success.
func (c *Conn) Call(ctx context.Context, action string, req interface{}) (json.RawMessage, error) {
	start := time.Now()
	resp, err := c.call(ctx, action, req)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.RPCCallDuration.WithLabelValues(action, outcome).Observe(time.Since(start).Seconds())
	return resp, err
}

func (c *Conn) call(ctx context.Context, action string, req interface{}) (json.RawMessage, error) {
	uniqueID := uuid.NewString()

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("rpc: marshal request: %w", err)
	}
	frame, err := codec.EncodeCall(uniqueID, action, json.RawMessage(payload))
	if err != nil {
		return nil, fmt.Errorf("rpc: encode call: %w", err)
	}

	pc := &pendingCall{
		action:       action,
		createdAt:    time.Now(),
		responseChan: make(chan callResult, 1),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrTransportClosed
	}
	c.pending[uniqueID] = pc
	c.mu.Unlock()

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultCallTimeout)
		defer cancel()
	}

	select {
	case c.sendCh <- frame:
	case <-c.done:
		c.removePending(uniqueID)
		return nil, ErrTransportClosed
	case <-ctx.Done():
		c.removePending(uniqueID)
		return nil, ctxErr(ctx)
	}

	if c.spy != nil {
		c.spy(Outbound, frame)
	}

	select {
	case res := <-pc.responseChan:
		return res.payload, res.err
	case <-ctx.Done():
		c.removePending(uniqueID)
		return nil, ctxErr(ctx)
	case <-c.done:
		return nil, ErrTransportClosed
	}
}

func ctxErr(ctx context.Context) error {
	if ctx.Err() == context.DeadlineExceeded {
		return ErrTimeout
	}
	return ErrTransportClosed
}

func (c *Conn) removePending(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Close cancels every pending call with ErrTransportClosed and tears down
// the connection's goroutines. Idempotent.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.ws.Close()

		c.mu.Lock()
		c.closed = true
		for id, pc := range c.pending {
			if !pc.delivered {
				pc.delivered = true
				pc.responseChan <- callResult{err: ErrTransportClosed}
			}
			delete(c.pending, id)
		}
		c.mu.Unlock()
	})
	c.wg.Wait()
	return err
}

func (c *Conn) writeLoop() {
	defer c.wg.Done()
	for {
		select {
		case frame := <-c.sendCh:
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug().Err(err).Msg("write failed, closing connection")
				go c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) readLoop() {
	defer c.wg.Done()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.logger.Debug().Err(err).Msg("read failed, closing connection")
			go c.Close()
			return
		}
		if c.spy != nil {
			c.spy(Inbound, data)
		}
		c.handleFrame(data)
	}
}

func (c *Conn) handleFrame(data []byte) {
	frame, err := codec.Decode(data)
	if err != nil {
		c.writeCallError("", FormationViolation, err.Error())
		return
	}

	switch frame.Type {
	case codec.MessageTypeCall:
		c.handleCall(frame)
	case codec.MessageTypeCallResult:
		c.deliverResponse(frame.UniqueID, callResult{payload: frame.Payload})
	case codec.MessageTypeCallError:
		c.deliverResponse(frame.UniqueID, callResult{err: &CallError{
			Code:    ErrorCode(frame.ErrorCode),
			Message: frame.ErrorDescription,
		}})
	}
}

func (c *Conn) deliverResponse(uniqueID string, res callResult) {
	c.mu.Lock()
	pc, ok := c.pending[uniqueID]
	if ok {
		delete(c.pending, uniqueID)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Warn().Str("uniqueId", uniqueID).Msg("response for unknown or expired call, dropping")
		return
	}
	// Non-blocking: responseChan is buffered 1 and only ever written once.
	select {
	case pc.responseChan <- res:
	default:
	}
}

func (c *Conn) handleCall(frame codec.DecodedFrame) {
	if c.dispatcher == nil {
		c.writeCallError(frame.UniqueID, NotImplemented, "no dispatcher configured")
		return
	}
	payload, callErr := c.dispatcher.Dispatch(context.Background(), frame.Action, frame.Payload)
	if callErr != nil {
		c.writeCallError(frame.UniqueID, callErr.Code, callErr.Message)
		return
	}
	out, err := codec.EncodeCallResult(frame.UniqueID, payload)
	if err != nil {
		c.writeCallError(frame.UniqueID, InternalError, "failed to encode response")
		return
	}
	c.enqueueWrite(out)
}

func (c *Conn) writeCallError(uniqueID string, code ErrorCode, message string) {
	frame, err := codec.EncodeCallError(uniqueID, string(code), message, nil)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to encode CALLERROR")
		return
	}
	c.enqueueWrite(frame)
}

func (c *Conn) enqueueWrite(frame []byte) {
	select {
	case c.sendCh <- frame:
		if c.spy != nil {
			c.spy(Outbound, frame)
		}
	case <-c.done:
	}
}
