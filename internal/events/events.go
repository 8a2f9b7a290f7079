// Package events publishes domain events off the request path. Producers
// hand events to a Dispatcher; a single worker forwards them to a Sink.
package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Type string

const (
	BookingCreated        Type = "booking.created"
	BookingConfirmed      Type = "booking.confirmed"
	BookingPaymentFailed  Type = "booking.payment_failed"
	BookingCancelled      Type = "booking.cancelled"
	BookingBoarded        Type = "booking.boarded"
	PaymentRefundRequired Type = "payment.refund_required"
	PayoutRequested       Type = "payout.requested"
	PayoutProcessing      Type = "payout.processing"
	PayoutCompleted       Type = "payout.completed"
	PayoutFailed          Type = "payout.failed"
	PayoutRejected        Type = "payout.rejected"
	PayoutCancelled       Type = "payout.cancelled"
	ScheduleCancelled     Type = "schedule.cancelled"
)

type Event struct {
	Type       Type           `json:"type"`
	Key        string         `json:"key"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type Publisher interface {
	Publish(event Event)
}

type Sink interface {
	Send(ctx context.Context, event Event) error
	Close() error
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(Event) {}

// Dispatcher buffers events in a channel. Publish never blocks: when the
// buffer is full the event is dropped and logged.
type Dispatcher struct {
	sink  Sink
	queue chan Event
	done  chan struct{}
	log   *zap.Logger

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(sink Sink, buffer int, log *zap.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 1
	}
	d := &Dispatcher{
		sink:  sink,
		queue: make(chan Event, buffer),
		done:  make(chan struct{}),
		log:   log.With(zap.String("component", "events")),
	}
	go d.run()
	return d
}

func (d *Dispatcher) Publish(event Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.log.Warn("Event published after shutdown", zap.String("type", string(event.Type)), zap.String("key", event.Key))
		return
	}

	select {
	case d.queue <- event:
	default:
		d.log.Warn("Event buffer full, dropping event", zap.String("type", string(event.Type)), zap.String("key", event.Key))
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for event := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := d.sink.Send(ctx, event); err != nil {
			d.log.Error("Failed to deliver event",
				zap.Error(err),
				zap.String("type", string(event.Type)),
				zap.String("key", event.Key),
			)
		}
		cancel()
	}
}

// Close stops accepting events, drains the buffer and closes the sink.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	select {
	case <-d.done:
	case <-ctx.Done():
		d.log.Warn("Event drain interrupted", zap.Error(ctx.Err()))
	}
	return d.sink.Close()
}
