// Package kafka publishes order domain events for out-of-scope consumers
// such as the notification sender. Events are emitted strictly after the
// order transaction commits; delivery failures are reported to the caller
// and logged there, never propagated into the transaction.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"

	"shopledger/internal/domain/order"
)

// Event type names carried in the message headers.
const (
	typeOrderPlaced    = "order.placed"
	typeOrderCancelled = "order.cancelled"
)

var _ order.EventPublisher = (*Publisher)(nil)

// Publisher implements order.EventPublisher on a Kafka topic. Messages are
// keyed by order number so all events of one order land in one partition.
type Publisher struct {
	brokers []string
	writer  *kafka.Writer
}

// NewPublisher creates a Publisher writing to the given brokers and topic.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		brokers: brokers,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  3,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// PublishOrderPlaced emits an OrderPlaced event.
func (p *Publisher) PublishOrderPlaced(ctx context.Context, ev order.PlacedEvent) error {
	return p.publish(ctx, typeOrderPlaced, ev.OrderNumber, ev)
}

// PublishOrderCancelled emits an OrderCancelled event.
func (p *Publisher) PublishOrderCancelled(ctx context.Context, ev order.CancelledEvent) error {
	return p.publish(ctx, typeOrderCancelled, ev.OrderNumber, ev)
}

func (p *Publisher) publish(ctx context.Context, eventType, key string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "marshal %s event", eventType)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(eventType)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "write %s event", eventType)
	}
	return nil
}

// Ping dials the first broker to confirm the cluster is reachable, for use
// as a readiness probe.
func (p *Publisher) Ping(ctx context.Context) error {
	conn, err := kafka.DialContext(ctx, "tcp", p.brokers[0])
	if err != nil {
		return errors.Wrap(err, "dial kafka broker")
	}
	return conn.Close()
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
