package centralsystem

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/evstack/ocpp16/internal/codec"
	domainevents "github.com/evstack/ocpp16/internal/domain/events"
	"github.com/evstack/ocpp16/internal/events"
	"github.com/evstack/ocpp16/internal/metrics"
	"github.com/evstack/ocpp16/internal/rpc"
)

// Authenticator validates the HTTP Basic-Auth credentials a CP presents
// on connect (spec.md §6's Security Profile 1/2), keyed by the
// charge point id extracted from the URL path.
type Authenticator interface {
	Authenticate(chargePointID, password string) bool
}

// Config mirrors the subset of the teacher's websocket.Config this role
// needs: listen address, path prefix, and connection bookkeeping.
type Config struct {
	Addr            string
	Path            string
	ReadBufferSize  int
	WriteBufferSize int
	HandshakeTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Addr:             ":8887",
		Path:             "/ocpp",
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		HandshakeTimeout: 10 * time.Second,
	}
}

// Server is the C7 CS Role Runtime: a WebSocket listener that accepts one
// connection per charge point id and hands each a dedicated
// ChargePointProxy, grounded on the teacher's
// internal/transport/websocket/manager.go Manager/HandleConnection split.
type Server struct {
	cfg      Config
	upgrader websocket.Upgrader
	auth     Authenticator
	idTags   IdTagStore
	txs      TransactionStore
	bus      *events.Bus
	logger   zerolog.Logger

	httpServer *http.Server

	mu      sync.RWMutex
	proxies map[string]*ChargePointProxy
}

func NewServer(cfg Config, auth Authenticator, idTags IdTagStore, txs TransactionStore, bus *events.Bus, logger zerolog.Logger) *Server {
	return &Server{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   cfg.ReadBufferSize,
			WriteBufferSize:  cfg.WriteBufferSize,
			HandshakeTimeout: cfg.HandshakeTimeout,
			Subprotocols:     []string{"ocpp1.6"},
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
		auth:    auth,
		idTags:  idTags,
		txs:     txs,
		bus:     bus,
		logger:  logger,
		proxies: make(map[string]*ChargePointProxy),
	}
}

// Start begins serving HTTP/WebSocket connections on cfg.Addr in the
// background. Call Shutdown to stop gracefully.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path+"/", s.handleUpgrade)
	s.httpServer = &http.Server{Addr: s.cfg.Addr, Handler: mux}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("centralsystem: HTTP server stopped")
		}
	}()
	return nil
}

// Shutdown stops accepting new connections and waits up to ctx's
// deadline for in-flight handlers to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) extractChargePointID(path string) string {
	prefix := s.cfg.Path + "/"
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	id := strings.TrimPrefix(path, prefix)
	id = strings.Trim(id, "/")
	return id
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	id := s.extractChargePointID(r.URL.Path)
	if id == "" {
		http.Error(w, "missing charge point id", http.StatusBadRequest)
		return
	}

	if s.auth != nil {
		_, password, ok := r.BasicAuth()
		if !ok || !s.auth.Authenticate(id, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="ocpp"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("charge_point_id", id).Msg("centralsystem: upgrade failed")
		return
	}

	s.acceptConnection(id, ws)
}

func (s *Server) acceptConnection(id string, ws *websocket.Conn) {
	dispatcher := rpc.NewDispatcher(codec.NewDefaultSchemaValidator(), s.logger)
	conn := rpc.NewConn(ws, dispatcher, s.logger)
	proxy := newChargePointProxy(id, conn, s.bus, s.logger)
	registerHandlers(dispatcher, proxy, s.idTags, s.txs)

	s.mu.Lock()
	if old, exists := s.proxies[id]; exists {
		s.mu.Unlock()
		old.conn.Close() // a reconnect supersedes any stale session for this id
		s.mu.Lock()
	}
	s.proxies[id] = proxy
	s.mu.Unlock()
	metrics.ActiveConnections.Inc()

	go func() {
		<-conn.Done()
		s.mu.Lock()
		if s.proxies[id] == proxy {
			delete(s.proxies, id)
		}
		s.mu.Unlock()
		metrics.ActiveConnections.Dec()
		s.bus.Publish(&domainevents.ChargePointDisconnectedEvent{
			BaseEvent: domainevents.NewBaseEvent(domainevents.EventTypeChargePointDisconnected, id, domainevents.EventSeverityInfo, domainevents.Metadata{Source: "centralsystem"}),
			Reason:    "connection_closed",
		})
	}()
}

// Proxy returns the live proxy for a connected charge point id, if any.
func (s *Server) Proxy(id string) (*ChargePointProxy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proxies[id]
	return p, ok
}

// ConnectionCount reports the number of currently connected charge points.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.proxies)
}
