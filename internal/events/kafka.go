package events

import (
	domainevents "github.com/evstack/ocpp16/internal/domain/events"
	"github.com/evstack/ocpp16/internal/message"
)

// KafkaSink adapts *message.KafkaProducer (adapted from the teacher's
// message.KafkaProducer / IntegrationEventConverter) to the Sink
// interface, so the bus can publish the domain event taxonomy onto the
// integration topic without the bus importing sarama directly.
type KafkaSink struct {
	producer *message.KafkaProducer
}

func NewKafkaSink(producer *message.KafkaProducer) *KafkaSink {
	return &KafkaSink{producer: producer}
}

func (s *KafkaSink) PublishEvent(event domainevents.Event) error {
	return s.producer.PublishEvent(event)
}
