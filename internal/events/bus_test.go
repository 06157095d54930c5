package events

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainevents "github.com/evstack/ocpp16/internal/domain/events"
)

func heartbeatEvent(chargePointID string) domainevents.Event {
	return &domainevents.ChargePointHeartbeatEvent{
		BaseEvent: domainevents.NewBaseEvent(domainevents.EventTypeChargePointHeartbeat, chargePointID, domainevents.EventSeverityInfo, domainevents.Metadata{}),
	}
}

func TestBus_PublishDeliversToSubscriber(t *testing.T) {
	b := NewBus(zerolog.Nop())
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	b.Publish(heartbeatEvent("CP1"))

	select {
	case evt := <-ch:
		assert.Equal(t, "CP1", evt.GetChargePointID())
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive the published event")
	}
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus(zerolog.Nop())
	ch, unsubscribe := b.Subscribe()
	unsubscribe()

	b.Publish(heartbeatEvent("CP1"))

	_, open := <-ch
	assert.False(t, open, "channel should be closed after unsubscribe")
}

func TestBus_PublishDoesNotBlockOnLaggingSubscriber(t *testing.T) {
	b := NewBus(zerolog.Nop())
	_, unsubscribe := b.Subscribe() // never drained
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer+10; i++ {
			b.Publish(heartbeatEvent("CP1"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a lagging subscriber")
	}
}

type fakeSink struct {
	mu     sync.Mutex
	events []domainevents.Event
	err    error
}

func (s *fakeSink) PublishEvent(event domainevents.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestBus_PublishForwardsToSinkAsynchronously(t *testing.T) {
	b := NewBus(zerolog.Nop())
	sink := &fakeSink{}
	b.AddSink(sink)

	b.Publish(heartbeatEvent("CP1"))

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, time.Millisecond)
}

func TestBus_SinkErrorDoesNotPanicOrBlockPublisher(t *testing.T) {
	b := NewBus(zerolog.Nop())
	b.AddSink(&fakeSink{err: errors.New("boom")})

	assert.NotPanics(t, func() {
		b.Publish(heartbeatEvent("CP1"))
	})
}
