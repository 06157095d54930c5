// Package events is the C10 Event Bus & Telemetry component (spec.md
// §4.9): a fan-out of the domain event taxonomy defined in
// internal/domain/events, wired to optional durable sinks (Kafka) and
// Prometheus counters. It follows spec.md §5's rule that nothing on the
// read/write hot path may block on a slow subscriber: Publish never
// waits on a subscriber channel. (internal/rpc/conn.go's enqueueWrite, by
// contrast, blocks until the send buffer has room or the conn closes.)
package events

import (
	"sync"

	"github.com/rs/zerolog"

	domainevents "github.com/evstack/ocpp16/internal/domain/events"
	"github.com/evstack/ocpp16/internal/metrics"
)

// subscriberBuffer bounds how far a slow subscriber may lag before its
// events are dropped rather than stalling the publisher.
const subscriberBuffer = 256

// Sink is a durable or remote destination for published events (the
// Kafka producer satisfies this; see KafkaSink).
type Sink interface {
	PublishEvent(event domainevents.Event) error
}

type subscription struct {
	id uint64
	ch chan domainevents.Event
}

// Bus fans a published Event out to every live subscriber channel and
// every registered Sink. The zero value is not usable; use NewBus.
type Bus struct {
	mu        sync.RWMutex
	subs      []*subscription
	nextSubID uint64
	sinks     []Sink
	logger    zerolog.Logger
}

func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{logger: logger}
}

// AddSink registers a durable sink. Each Publish call invokes every sink
// on its own goroutine, so one slow or failing sink cannot block another
// or the publisher.
func (b *Bus) AddSink(sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, sink)
}

// Subscribe returns a channel receiving every event published from this
// point on, and an unsubscribe function. Callers must drain the channel
// promptly; once a subscriber's channel holds subscriberBuffer undelivered
// events, each further event published is dropped for that subscriber
// rather than stalling Publish.
func (b *Bus) Subscribe() (<-chan domainevents.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSubID++
	sub := &subscription{id: b.nextSubID, ch: make(chan domainevents.Event, subscriberBuffer)}
	b.subs = append(b.subs, sub)
	unsubscribe := func() { b.unsubscribe(sub.id) }
	return sub.ch, unsubscribe
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			close(s.ch)
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers event to every subscriber channel (non-blocking, best
// effort) and to every registered sink (asynchronously). It never
// blocks the caller on a slow consumer.
func (b *Bus) Publish(event domainevents.Event) {
	b.mu.RLock()
	subs := make([]*subscription, len(b.subs))
	copy(subs, b.subs)
	sinks := make([]Sink, len(b.sinks))
	copy(sinks, b.sinks)
	b.mu.RUnlock()

	metrics.EventsPublished.WithLabelValues(string(event.GetType())).Inc()

	for _, s := range subs {
		select {
		case s.ch <- event:
		default:
			b.logger.Warn().Str("event_type", string(event.GetType())).Msg("subscriber lagging, dropping event")
		}
	}

	for _, sink := range sinks {
		go func(sink Sink) {
			if err := sink.PublishEvent(event); err != nil {
				b.logger.Error().Err(err).Str("event_type", string(event.GetType())).Msg("sink publish failed")
			}
		}(sink)
	}
}
