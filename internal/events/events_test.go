package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"go.uber.org/zap"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	block  chan struct{}
	closed bool
}

func (s *recordingSink) Send(_ context.Context, e Event) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func TestDispatcherDeliversInOrderAndDrains(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink, 16, zap.NewNop())

	for i := 0; i < 5; i++ {
		d.Publish(Event{Type: BookingCreated, Key: fmt.Sprint(i)})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	if len(sink.events) != 5 || !sink.closed {
		t.Fatalf("delivered %d events, closed=%v", len(sink.events), sink.closed)
	}
	for i, e := range sink.events {
		if e.Key != fmt.Sprint(i) {
			t.Fatalf("event %d key = %s", i, e.Key)
		}
	}

	// publishing after close must not panic
	d.Publish(Event{Type: BookingCreated})
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	d := NewDispatcher(sink, 1, zap.NewNop())

	for i := 0; i < 10; i++ {
		d.Publish(Event{Type: BookingConfirmed, Key: fmt.Sprint(i)})
	}
	close(sink.block)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = d.Close(ctx)

	if n := len(sink.events); n == 0 || n > 2 {
		t.Fatalf("delivered %d events, want 1 or 2 with a one-slot buffer", n)
	}
}

func TestKafkaSinkTopicAndPayload(t *testing.T) {
	config := mocks.NewTestConfig()
	config.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, config)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "bus-booking.booking.confirmed" {
			return fmt.Errorf("topic = %s", msg.Topic)
		}
		raw, _ := msg.Value.Encode()
		var e Event
		if err := json.Unmarshal(raw, &e); err != nil {
			return err
		}
		if e.Key != "b-1" || e.Payload["amount"] != float64(15000) {
			return fmt.Errorf("unexpected event %+v", e)
		}
		return nil
	})

	sink := NewKafkaSinkWithProducer(producer, "bus-booking", zap.NewNop())
	err := sink.Send(context.Background(), Event{
		Type:    BookingConfirmed,
		Key:     "b-1",
		Payload: map[string]any{"amount": 15000},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
