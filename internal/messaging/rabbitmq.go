package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"bookbay-storefront/internal/events"

	amqp "github.com/rabbitmq/amqp091-go"
)

// EventsExchange is the fanout exchange every storefront instance binds to.
const EventsExchange = "storefront.events"

type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	rmq := &RabbitMQ{
		conn:    conn,
		channel: ch,
	}

	if err := rmq.Setup(); err != nil {
		rmq.Close()
		return nil, err
	}

	return rmq, nil
}

// NewRabbitMQWithRetry dials until the broker accepts the connection or ctx
// is done. Brokers often start after the storefront in local stacks.
func NewRabbitMQWithRetry(ctx context.Context, url string) (*RabbitMQ, error) {
	const retryInterval = 2 * time.Second

	for attempt := 1; ; attempt++ {
		rmq, err := NewRabbitMQ(url)
		if err == nil {
			return rmq, nil
		}

		slog.Warn("rabbitmq not ready, retrying",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("giving up on rabbitmq after %d attempts: %w", attempt, err)
		case <-time.After(retryInterval):
		}
	}
}

func (r *RabbitMQ) Setup() error {
	if err := r.channel.ExchangeDeclare(
		EventsExchange, // name
		"fanout",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	); err != nil {
		return fmt.Errorf("failed to declare events exchange: %w", err)
	}

	slog.Info("rabbitmq setup completed successfully",
		slog.String("exchange", EventsExchange))
	return nil
}

// PublishEvent sends e to every instance. Session events are only useful
// while the sessions are live, so they are published as transient.
func (r *RabbitMQ) PublishEvent(ctx context.Context, e events.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		EventsExchange,
		"",
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    e.ID,
			Type:         string(e.Kind),
			Timestamp:    e.At,
			Body:         body,
			DeliveryMode: amqp.Transient,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	slog.Debug("published session event",
		slog.String("kind", string(e.Kind)),
		slog.String("event_id", e.ID))
	return nil
}

// ConsumeEvents binds a private, auto-deleted queue to the exchange and
// returns its deliveries.
func (r *RabbitMQ) ConsumeEvents() (<-chan amqp.Delivery, error) {
	queue, err := r.channel.QueueDeclare(
		"",    // auto-generated name
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare events queue: %w", err)
	}

	if err := r.channel.QueueBind(
		queue.Name,     // queue name
		"",             // routing key
		EventsExchange, // exchange
		false,
		nil,
	); err != nil {
		return nil, fmt.Errorf("failed to bind events queue: %w", err)
	}

	msgs, err := r.channel.Consume(
		queue.Name, // queue
		"",         // consumer
		true,       // auto-ack
		true,       // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	slog.Info("started consuming session events",
		slog.String("queue", queue.Name),
		slog.String("exchange", EventsExchange))
	return msgs, nil
}

func (r *RabbitMQ) IsClosed() bool {
	return r.conn == nil || r.conn.IsClosed()
}

// Ping reports an error when the connection is gone.
func (r *RabbitMQ) Ping(context.Context) error {
	if r.IsClosed() {
		return fmt.Errorf("rabbitmq connection closed")
	}
	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
