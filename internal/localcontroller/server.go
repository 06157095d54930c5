package localcontroller

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/evstack/ocpp16/internal/metrics"
)

// ServerConfig controls the CP-facing listener. CSBaseURL is the upstream
// Central System's WebSocket endpoint; the charge point id extracted from
// the inbound path is appended to it when dialing out, so LC presents the
// same per-CP URL shape to the CS that a direct-connecting CP would.
type ServerConfig struct {
	Addr            string
	Path            string
	CSBaseURL       string
	ReadBufferSize  int
	WriteBufferSize int
	HandshakeTimeout time.Duration
	PairConfig      Config
}

func DefaultServerConfig(csBaseURL string) ServerConfig {
	return ServerConfig{
		Addr:             ":8888",
		Path:             "/ocpp",
		CSBaseURL:        csBaseURL,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		HandshakeTimeout: 10 * time.Second,
		PairConfig:       DefaultConfig(),
	}
}

// Server is the C8 LC Role Runtime entry point: a WebSocket listener that,
// for every CP connection, dials the upstream CS and hands both legs to a
// ProxyPair. Grounded on centralsystem.Server's accept loop, generalized to
// also own the outbound CS-facing dial.
type Server struct {
	cfg      ServerConfig
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	httpServer *http.Server

	mu    sync.RWMutex
	pairs map[string]*ProxyPair

	// Configure, when non-nil, lets a caller install per-action overrides on
	// a freshly built ProxyPair (e.g. to terminate GetConfiguration
	// locally) before it starts forwarding.
	Configure func(*ProxyPair)
}

func NewServer(cfg ServerConfig, logger zerolog.Logger) *Server {
	return &Server{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   cfg.ReadBufferSize,
			WriteBufferSize:  cfg.WriteBufferSize,
			HandshakeTimeout: cfg.HandshakeTimeout,
			Subprotocols:     []string{"ocpp1.6"},
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
		logger: logger,
		pairs:  make(map[string]*ProxyPair),
	}
}

func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path+"/", s.handleUpgrade)
	s.httpServer = &http.Server{Addr: s.cfg.Addr, Handler: mux}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("localcontroller: HTTP server stopped")
		}
	}()
	return nil
}

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
	return strings.Trim(strings.TrimPrefix(path, prefix), "/")
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	id := s.extractChargePointID(r.URL.Path)
	if id == "" {
		http.Error(w, "missing charge point id", http.StatusBadRequest)
		return
	}

	cpWS, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("charge_point_id", id).Msg("localcontroller: upgrade failed")
		return
	}

	csURL, err := url.JoinPath(s.cfg.CSBaseURL, id)
	if err != nil {
		s.logger.Error().Err(err).Str("charge_point_id", id).Msg("localcontroller: bad upstream URL")
		cpWS.Close()
		return
	}

	csHeader := http.Header{}
	if auth := r.Header.Get("Authorization"); auth != "" {
		csHeader.Set("Authorization", auth)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PairConfig.CSDialTimeout)
	defer cancel()

	pair, err := NewProxyPair(ctx, id, cpWS, csURL, csHeader, s.cfg.PairConfig, s.logger)
	if err != nil {
		s.logger.Warn().Err(err).Str("charge_point_id", id).Msg("localcontroller: failed to establish CS leg")
		cpWS.Close()
		return
	}

	if s.Configure != nil {
		s.Configure(pair)
	}

	s.mu.Lock()
	if old, exists := s.pairs[id]; exists {
		s.mu.Unlock()
		old.Close()
		s.mu.Lock()
	}
	s.pairs[id] = pair
	s.mu.Unlock()
	metrics.ActiveConnections.Inc()

	go func() {
		<-pair.cpConn.Done()
		<-pair.csConn.Done()
		s.mu.Lock()
		if s.pairs[id] == pair {
			delete(s.pairs, id)
		}
		s.mu.Unlock()
		metrics.ActiveConnections.Dec()
	}()
}

// Pair returns the live ProxyPair for a connected charge point id, if any.
func (s *Server) Pair(id string) (*ProxyPair, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pairs[id]
	return p, ok
}

// ConnectionCount reports the number of currently proxied charge points.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pairs)
}
