package events

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/evstack/ocpp16/internal/message"
	"github.com/evstack/ocpp16/internal/metrics"
)

// CommandRouter dispatches inbound message.Command values (delivered by
// an adapted message.KafkaConsumer) to per-command-name handlers. This
// is the out-of-band path spec.md §7 alludes to for CS-role deployments
// that accept operator commands via a message broker rather than only a
// management HTTP API: the handler looks up a live ChargePointProxy (C7)
// by ChargePointID and issues the corresponding outbound RPC call.
type CommandRouter struct {
	mu       sync.RWMutex
	handlers map[string]func(cmd *message.Command) error
	logger   zerolog.Logger
}

func NewCommandRouter(logger zerolog.Logger) *CommandRouter {
	return &CommandRouter{handlers: make(map[string]func(cmd *message.Command) error), logger: logger}
}

// Register binds commandName (e.g. "RemoteStartTransaction") to handler.
// A later call with the same name replaces the previous handler.
func (r *CommandRouter) Register(commandName string, handler func(cmd *message.Command) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[commandName] = handler
}

// Handle implements message.CommandHandler.
func (r *CommandRouter) Handle(cmd *message.Command) {
	r.mu.RLock()
	handler, ok := r.handlers[cmd.CommandName]
	r.mu.RUnlock()

	metrics.CommandsConsumed.WithLabelValues(cmd.CommandName).Inc()

	if !ok {
		r.logger.Warn().Str("command", cmd.CommandName).Str("charge_point_id", cmd.ChargePointID).Msg("no handler registered for command")
		return
	}
	if err := handler(cmd); err != nil {
		r.logger.Error().Err(err).Str("command", cmd.CommandName).Str("charge_point_id", cmd.ChargePointID).Msg("command handler failed")
	}
}
