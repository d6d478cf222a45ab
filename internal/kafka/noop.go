package kafka

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// NoopEventBus logs events without sending them to Kafka. Useful for local dev before wiring Kafka.
type NoopEventBus struct{}

// NewNoopEventBus returns a new no-op event publisher.
func NewNoopEventBus() *NoopEventBus {
	return &NoopEventBus{}
}

func (n *NoopEventBus) PublishOrderCreated(_ context.Context, orderID uuid.UUID) error {
	slog.Debug("event::order_created", "order_id", orderID)
	return nil
}

func (n *NoopEventBus) PublishOrderPaid(_ context.Context, orderID uuid.UUID) error {
	slog.Debug("event::order_paid", "order_id", orderID)
	return nil
}

func (n *NoopEventBus) PublishOrderCancelled(_ context.Context, orderID uuid.UUID, reason string) error {
	slog.Debug("event::order_cancelled", "order_id", orderID, "reason", reason)
	return nil
}

func (n *NoopEventBus) PublishOrderRefunded(_ context.Context, orderID uuid.UUID) error {
	slog.Debug("event::order_refunded", "order_id", orderID)
	return nil
}
