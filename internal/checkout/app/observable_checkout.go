package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/shopkit/checkout/internal/checkout/domain"
	"github.com/shopkit/checkout/internal/checkout/metrics"
	"github.com/shopkit/checkout/internal/checkout/ports"
	"github.com/shopkit/checkout/internal/telemetry"
)

// Checkouter is the place-order entry point the service depends on.
type Checkouter interface {
	Checkout(ctx context.Context, cartID uuid.UUID, dest ports.Destination) (*domain.Order, error)
}

type ObservableCheckout struct {
	inner   Checkouter
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservableCheckout(inner Checkouter, logger *slog.Logger, metrics *metrics.Metrics) *ObservableCheckout {
	return &ObservableCheckout{
		inner:   inner,
		logger:  logger,
		metrics: metrics,
	}
}

func (o *ObservableCheckout) Checkout(ctx context.Context, cartID uuid.UUID, dest ports.Destination) (*domain.Order, error) {
	ctx, span := telemetry.StartSpan(ctx, "Checkout")
	defer span.End()

	start := time.Now()
	outcome := "error"
	defer func() {
		o.metrics.RecordCheckoutDuration(ctx, time.Since(start).Seconds())
		o.metrics.RecordCheckout(ctx, outcome)
	}()

	o.logger.InfoContext(ctx, "starting checkout",
		"cart_id", cartID,
		"destination_country", dest.Country,
	)

	order, err := o.inner.Checkout(ctx, cartID, dest)
	if err != nil {
		telemetry.RecordSpanError(span, err)
		outcome = string(domain.Kind(err))
		o.logger.ErrorContext(ctx, "checkout failed",
			"cart_id", cartID,
			"error", err,
		)
		return nil, err
	}

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", order.ID.String()),
		attribute.String("order.number", order.Number),
		attribute.String("order.state", string(order.State)),
		attribute.String("order.grand_total", order.Totals.GrandTotal.String()),
	)

	o.logger.InfoContext(ctx, "checkout completed",
		"cart_id", cartID,
		"order_id", order.ID,
		"order_number", order.Number,
	)

	outcome = "success"
	telemetry.SetSpanSuccess(span)

	return order, nil
}
