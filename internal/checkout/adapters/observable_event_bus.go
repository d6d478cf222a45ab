package adapters

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/shopkit/checkout/internal/checkout/ports"
	"github.com/shopkit/checkout/internal/kafka"
	"github.com/shopkit/checkout/internal/telemetry"
)

type ObservableEventBus struct {
	bus     ports.EventBus
	metrics *kafka.Metrics
}

func NewObservableEventBus(bus ports.EventBus, metrics *kafka.Metrics) *ObservableEventBus {
	return &ObservableEventBus{
		bus:     bus,
		metrics: metrics,
	}
}

func (e *ObservableEventBus) publish(
	ctx context.Context,
	topic string,
	orderID uuid.UUID,
	extra []attribute.KeyValue,
	send func(ctx context.Context) error,
) error {
	ctx, span := telemetry.StartSpan(ctx, "EventBus.Publish "+topic)
	defer span.End()

	attrs := append([]attribute.KeyValue{
		attribute.String("order.id", orderID.String()),
		attribute.String("event.type", topic),
		attribute.String("topic", topic),
	}, extra...)
	telemetry.AddSpanAttributes(span, attrs...)

	start := time.Now()
	err := send(ctx)
	duration := time.Since(start).Seconds()

	e.metrics.RecordPublish(ctx, topic, duration, err == nil)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}

func (e *ObservableEventBus) PublishOrderCreated(ctx context.Context, orderID uuid.UUID) error {
	return e.publish(ctx, "order.created", orderID, nil, func(ctx context.Context) error {
		return e.bus.PublishOrderCreated(ctx, orderID)
	})
}

func (e *ObservableEventBus) PublishOrderPaid(ctx context.Context, orderID uuid.UUID) error {
	return e.publish(ctx, "order.paid", orderID, nil, func(ctx context.Context) error {
		return e.bus.PublishOrderPaid(ctx, orderID)
	})
}

func (e *ObservableEventBus) PublishOrderCancelled(ctx context.Context, orderID uuid.UUID, reason string) error {
	extra := []attribute.KeyValue{attribute.String("cancel.reason", reason)}
	return e.publish(ctx, "order.cancelled", orderID, extra, func(ctx context.Context) error {
		return e.bus.PublishOrderCancelled(ctx, orderID, reason)
	})
}

func (e *ObservableEventBus) PublishOrderRefunded(ctx context.Context, orderID uuid.UUID) error {
	return e.publish(ctx, "order.refunded", orderID, nil, func(ctx context.Context) error {
		return e.bus.PublishOrderRefunded(ctx, orderID)
	})
}
