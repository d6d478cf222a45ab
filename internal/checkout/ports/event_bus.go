package ports

import (
	"context"

	"github.com/google/uuid"
)

// EventBus defines the contract for publishing order lifecycle events.
type EventBus interface {
	PublishOrderCreated(ctx context.Context, orderID uuid.UUID) error
	PublishOrderPaid(ctx context.Context, orderID uuid.UUID) error
	PublishOrderCancelled(ctx context.Context, orderID uuid.UUID, reason string) error
	PublishOrderRefunded(ctx context.Context, orderID uuid.UUID) error
}
