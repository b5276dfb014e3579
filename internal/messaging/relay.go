package messaging

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"bookbay-storefront/internal/events"

	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// Broker is the transport the relay uses.
type Broker interface {
	PublishEvent(ctx context.Context, e events.Event) error
	ConsumeEvents() (<-chan amqp.Delivery, error)
}

// Relay copies local session events to the broker and delivers events from
// other instances onto the local bus.
type Relay struct {
	broker Broker
	bus    *events.Bus
}

func NewRelay(broker Broker, bus *events.Bus) *Relay {
	return &Relay{broker: broker, bus: bus}
}

// Start subscribes to the local bus and starts consuming. It returns once
// the consumer is registered; consumption stops when ctx is done.
func (r *Relay) Start(ctx context.Context) error {
	msgs, err := r.broker.ConsumeEvents()
	if err != nil {
		return err
	}

	unsubscribe := r.bus.SubscribeAll(r.forward)

	go func() {
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				slog.Info("stopping event relay")
				return
			case msg, ok := <-msgs:
				if !ok {
					slog.Warn("event relay channel closed")
					return
				}
				r.deliver(ctx, msg.Body)
			}
		}
	}()

	return nil
}

// forward publishes events raised on this instance.
func (r *Relay) forward(ctx context.Context, e events.Event) {
	if e.Origin != r.bus.Origin() {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := r.broker.PublishEvent(ctx, e); err != nil {
		slog.Error("error relaying session event",
			slog.String("error", err.Error()),
			slog.String("kind", string(e.Kind)))
	}
}

// deliver hands an event from another instance to the local bus. Our own
// events come back through the fanout and are dropped.
func (r *Relay) deliver(ctx context.Context, body []byte) {
	var e events.Event
	if err := json.Unmarshal(body, &e); err != nil {
		slog.Error("error unmarshaling event",
			slog.String("error", err.Error()),
			slog.Int("body_size", len(body)))
		return
	}
	if e.Origin == r.bus.Origin() {
		return
	}

	slog.Debug("received relayed event",
		slog.String("kind", string(e.Kind)),
		slog.String("origin", e.Origin))
	r.bus.Deliver(ctx, e)
}
