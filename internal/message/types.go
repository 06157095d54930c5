package message

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
)

// Command is an async instruction delivered to a Central System pod over
// the Kafka command topic: an operator-triggered action (RemoteStart,
// ChangeAvailability, ...) routed out-of-band rather than through the
// CP's own WebSocket RPC path. Partitioned by ChargePointID so every
// command for a given CP lands on the same pod as that CP's connection.
type Command struct {
	ChargePointID string          `json:"chargePointId"`
	CommandName   string          `json:"commandName"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// CommandHandler processes one decoded Command.
type CommandHandler func(cmd *Command)

// SaramaConsumerGroup is the subset of sarama.ConsumerGroup this package
// depends on, narrowed so tests can supply a mock.
type SaramaConsumerGroup interface {
	Consume(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) error
	Close() error
}
