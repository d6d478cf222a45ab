package adapters

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/shopkit/checkout/internal/checkout/domain"
	"github.com/shopkit/checkout/internal/checkout/ports"
	"github.com/shopkit/checkout/internal/database"
	"github.com/shopkit/checkout/internal/telemetry"
)

type ObservableOrderRepository struct {
	repo    ports.OrderRepository
	metrics *database.Metrics
}

func NewObservableOrderRepository(repo ports.OrderRepository, metrics *database.Metrics) *ObservableOrderRepository {
	return &ObservableOrderRepository{
		repo:    repo,
		metrics: metrics,
	}
}

func (r *ObservableOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	ctx, span := telemetry.StartSpan(ctx, "OrderRepository.Create")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", order.ID.String()),
		attribute.String("operation", "create"),
	)

	start := time.Now()
	err := r.repo.Create(ctx, order)
	duration := time.Since(start).Seconds()

	r.metrics.RecordQuery(ctx, "create_order", duration)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}

func (r *ObservableOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	ctx, span := telemetry.StartSpan(ctx, "OrderRepository.GetByID")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", id.String()),
		attribute.String("operation", "get_by_id"),
	)

	start := time.Now()
	order, err := r.repo.GetByID(ctx, id)
	duration := time.Since(start).Seconds()

	r.metrics.RecordQuery(ctx, "get_order_by_id", duration)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return nil, err
	}

	telemetry.SetSpanSuccess(span)
	return order, nil
}

func (r *ObservableOrderRepository) List(ctx context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	ctx, span := telemetry.StartSpan(ctx, "OrderRepository.List")
	defer span.End()

	attrs := []attribute.KeyValue{
		attribute.String("operation", "list"),
		attribute.Int("page", filter.Page),
		attribute.Int("page_size", filter.PageSize),
	}
	if filter.State != nil {
		attrs = append(attrs, attribute.String("filter.state", string(*filter.State)))
	}
	telemetry.AddSpanAttributes(span, attrs...)

	start := time.Now()
	orders, err := r.repo.List(ctx, filter)
	duration := time.Since(start).Seconds()

	r.metrics.RecordQuery(ctx, "list_orders", duration)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return nil, err
	}

	telemetry.AddSpanAttributes(span, attribute.Int("result.count", len(orders)))
	telemetry.SetSpanSuccess(span)
	return orders, nil
}

func (r *ObservableOrderRepository) SaveTransition(ctx context.Context, order *domain.Order, expectedVersion int64) error {
	ctx, span := telemetry.StartSpan(ctx, "OrderRepository.SaveTransition")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", order.ID.String()),
		attribute.String("order.new_state", string(order.State)),
		attribute.Int64("order.expected_version", expectedVersion),
		attribute.String("operation", "save_transition"),
	)

	start := time.Now()
	err := r.repo.SaveTransition(ctx, order, expectedVersion)
	duration := time.Since(start).Seconds()

	r.metrics.RecordQuery(ctx, "save_order_transition", duration)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}
