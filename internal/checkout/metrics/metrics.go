package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the checkout engine's instruments.
type Metrics struct {
	checkoutsTotal       metric.Int64Counter
	checkoutDuration     metric.Float64Histogram
	reservationConflicts metric.Int64Counter
	reservationsExpired  metric.Int64Counter
	couponCommitsTotal   metric.Int64Counter
}

// NewMetrics registers the checkout instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.checkoutsTotal, err = meter.Int64Counter(
		"checkouts_total",
		metric.WithDescription("Total number of checkout attempts"),
		metric.WithUnit("{checkout}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create checkouts_total counter: %w", err)
	}

	m.checkoutDuration, err = meter.Float64Histogram(
		"checkout_duration_seconds",
		metric.WithDescription("Duration of checkout operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create checkout_duration histogram: %w", err)
	}

	m.reservationConflicts, err = meter.Int64Counter(
		"inventory_reservation_conflicts_total",
		metric.WithDescription("Version conflicts observed while reserving inventory"),
		metric.WithUnit("{conflict}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create reservation conflicts counter: %w", err)
	}

	m.reservationsExpired, err = meter.Int64Counter(
		"inventory_reservations_expired_total",
		metric.WithDescription("Reservations released by the expiry sweep"),
		metric.WithUnit("{reservation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create reservations expired counter: %w", err)
	}

	m.couponCommitsTotal, err = meter.Int64Counter(
		"coupon_commits_total",
		metric.WithDescription("Coupon usage commits by outcome"),
		metric.WithUnit("{commit}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create coupon commits counter: %w", err)
	}

	return m, nil
}

// RecordCheckout counts one checkout attempt by outcome.
func (m *Metrics) RecordCheckout(ctx context.Context, outcome string) {
	m.checkoutsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

// RecordCheckoutDuration records one checkout's wall-clock duration.
func (m *Metrics) RecordCheckoutDuration(ctx context.Context, durationSeconds float64) {
	m.checkoutDuration.Record(ctx, durationSeconds)
}

// RecordReservationConflict counts a version conflict on an inventory record.
func (m *Metrics) RecordReservationConflict(ctx context.Context) {
	m.reservationConflicts.Add(ctx, 1)
}

// RecordReservationsExpired counts reservations reclaimed by the sweep.
func (m *Metrics) RecordReservationsExpired(ctx context.Context, count int64) {
	m.reservationsExpired.Add(ctx, count)
}

// RecordCouponCommit counts a coupon usage commit by outcome.
func (m *Metrics) RecordCouponCommit(ctx context.Context, success bool) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	m.couponCommitsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}
