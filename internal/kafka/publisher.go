package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const (
	topicOrderCreated   = "order.created"
	topicOrderPaid      = "order.paid"
	topicOrderCancelled = "order.cancelled"
	topicOrderRefunded  = "order.refunded"
)

// event is the wire envelope for order lifecycle events. Keyed by order ID
// so all events for one order land on the same partition, in order.
type event struct {
	OrderID    string    `json:"order_id"`
	Type       string    `json:"type"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventBus publishes order lifecycle events to Kafka, one topic per event type.
type EventBus struct {
	writers map[string]*kafka.Writer
}

// NewEventBus builds a publisher connected to the given brokers.
func NewEventBus(brokers []string) *EventBus {
	writers := make(map[string]*kafka.Writer)
	for _, topic := range []string{topicOrderCreated, topicOrderPaid, topicOrderCancelled, topicOrderRefunded} {
		writers[topic] = &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		}
	}
	return &EventBus{writers: writers}
}

// Close flushes and closes all topic writers.
func (b *EventBus) Close() error {
	var firstErr error
	for topic, w := range b.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close writer for %s: %w", topic, err)
		}
	}
	return firstErr
}

func (b *EventBus) publish(ctx context.Context, topic string, evt event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(evt.OrderID),
		Value: data,
		Time:  evt.OccurredAt,
	}
	if err := b.writers[topic].WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func (b *EventBus) PublishOrderCreated(ctx context.Context, orderID uuid.UUID) error {
	return b.publish(ctx, topicOrderCreated, event{
		OrderID:    orderID.String(),
		Type:       topicOrderCreated,
		OccurredAt: time.Now().UTC(),
	})
}

func (b *EventBus) PublishOrderPaid(ctx context.Context, orderID uuid.UUID) error {
	return b.publish(ctx, topicOrderPaid, event{
		OrderID:    orderID.String(),
		Type:       topicOrderPaid,
		OccurredAt: time.Now().UTC(),
	})
}

func (b *EventBus) PublishOrderCancelled(ctx context.Context, orderID uuid.UUID, reason string) error {
	return b.publish(ctx, topicOrderCancelled, event{
		OrderID:    orderID.String(),
		Type:       topicOrderCancelled,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	})
}

func (b *EventBus) PublishOrderRefunded(ctx context.Context, orderID uuid.UUID) error {
	return b.publish(ctx, topicOrderRefunded, event{
		OrderID:    orderID.String(),
		Type:       topicOrderRefunded,
		OccurredAt: time.Now().UTC(),
	})
}
