package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/shopkit/checkout/internal/checkout/domain"
	"github.com/shopkit/checkout/internal/checkout/metrics"
	"github.com/shopkit/checkout/internal/checkout/ports"
)

// ReservationConfig carries the reservation tunables.
type ReservationConfig struct {
	TTL        time.Duration
	MaxRetries uint64
}

// InventoryReservationManager atomically validates and decrements available
// stock for a set of line items. Per-variant mutations go through optimistic
// version checks with bounded jittered retries; there is no lock spanning
// the catalog, so unrelated variants never contend.
type InventoryReservationManager struct {
	inventory    ports.InventoryStore
	reservations ports.ReservationStore
	logger       *slog.Logger
	metrics      *metrics.Metrics
	cfg          ReservationConfig
	now          func() time.Time
}

// NewInventoryReservationManager wires the inventory and reservation stores.
func NewInventoryReservationManager(
	inventory ports.InventoryStore,
	reservations ports.ReservationStore,
	logger *slog.Logger,
	cfg ReservationConfig,
) *InventoryReservationManager {
	return &InventoryReservationManager{
		inventory:    inventory,
		reservations: reservations,
		logger:       logger,
		cfg:          cfg,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the manager's clock, for tests.
func (m *InventoryReservationManager) WithClock(now func() time.Time) *InventoryReservationManager {
	m.now = now
	return m
}

// WithMetrics enables conflict counters on the manager.
func (m *InventoryReservationManager) WithMetrics(metrics *metrics.Metrics) *InventoryReservationManager {
	m.metrics = metrics
	return m
}

// Reserve holds stock for every line or for none. The first line whose
// quantity cannot be satisfied rolls back all lines reserved so far and
// fails with InsufficientStockError; retry exhaustion on a contended record
// rolls back and fails with ErrContended.
func (m *InventoryReservationManager) Reserve(
	ctx context.Context,
	orderID uuid.UUID,
	lines []domain.ReservationLine,
) (*domain.Reservation, error) {
	if len(lines) == 0 {
		return nil, errors.New("no lines to reserve")
	}

	reserved := make([]domain.ReservationLine, 0, len(lines))
	for _, line := range lines {
		if err := m.reserveLine(ctx, line); err != nil {
			m.rollback(ctx, reserved)
			return nil, err
		}
		reserved = append(reserved, line)
	}

	reservation := domain.NewReservation(orderID, lines, m.now(), m.cfg.TTL)
	if err := m.reservations.Create(ctx, reservation); err != nil {
		m.rollback(ctx, reserved)
		return nil, fmt.Errorf("create reservation: %w", err)
	}
	return reservation, nil
}

func (m *InventoryReservationManager) reserveLine(ctx context.Context, line domain.ReservationLine) error {
	return m.casUpdate(ctx, line.VariantID, func(rec domain.InventoryRecord) (domain.InventoryRecord, error) {
		if !rec.CanReserve(line.Quantity) {
			return rec, &domain.InsufficientStockError{
				VariantID: line.VariantID,
				Requested: line.Quantity,
				Available: rec.Available,
			}
		}
		return rec.WithReservation(line.Quantity), nil
	})
}

// Confirm makes an active reservation's hold permanent: the quantities stay
// in reserved (and out of available) until cancellation returns them or
// shipment drains them, so available + reserved is unchanged by a checkout.
// Confirm is idempotent: confirming an already-confirmed reservation is a
// no-op. Confirming an expired or released reservation fails with
// ErrReservationExpired, forcing the caller to restart checkout.
func (m *InventoryReservationManager) Confirm(ctx context.Context, reservationID uuid.UUID) error {
	reservation, err := m.reservations.GetByID(ctx, reservationID)
	if err != nil {
		return err
	}

	switch reservation.Status {
	case domain.ReservationConfirmed:
		return nil
	case domain.ReservationReleased:
		return domain.ErrReservationExpired
	}
	if reservation.IsExpired(m.now()) {
		return domain.ErrReservationExpired
	}

	return m.reservations.UpdateStatus(ctx, reservationID, domain.ReservationConfirmed)
}

// Release returns an active reservation's quantities to available stock.
// Releasing a reservation that is no longer active is a no-op.
func (m *InventoryReservationManager) Release(ctx context.Context, reservationID uuid.UUID) error {
	reservation, err := m.reservations.GetByID(ctx, reservationID)
	if err != nil {
		return err
	}
	if reservation.Status != domain.ReservationActive {
		return nil
	}

	m.rollback(ctx, reservation.Lines)
	return m.reservations.UpdateStatus(ctx, reservationID, domain.ReservationReleased)
}

// Abort undoes whatever a failed checkout left behind: an active or
// confirmed reservation has its hold returned to available stock. Used by
// the orchestrator when a commit fails after partial effects.
func (m *InventoryReservationManager) Abort(ctx context.Context, reservationID uuid.UUID) error {
	reservation, err := m.reservations.GetByID(ctx, reservationID)
	if err != nil {
		return err
	}
	if reservation.Status == domain.ReservationReleased {
		return nil
	}

	if err := m.Restock(ctx, reservation.Lines); err != nil {
		return err
	}
	return m.reservations.UpdateStatus(ctx, reservationID, domain.ReservationReleased)
}

// Restock returns held quantities to available stock, compensating a
// confirmed reservation when its order is cancelled.
func (m *InventoryReservationManager) Restock(ctx context.Context, lines []domain.ReservationLine) error {
	for _, line := range lines {
		err := m.casUpdate(ctx, line.VariantID, func(rec domain.InventoryRecord) (domain.InventoryRecord, error) {
			return rec.WithRelease(line.Quantity), nil
		})
		if err != nil {
			return fmt.Errorf("restock variant %s: %w", line.VariantID, err)
		}
	}
	return nil
}

// CommitShipment drains reserved quantities once goods leave the warehouse.
func (m *InventoryReservationManager) CommitShipment(ctx context.Context, lines []domain.ReservationLine) error {
	for _, line := range lines {
		err := m.casUpdate(ctx, line.VariantID, func(rec domain.InventoryRecord) (domain.InventoryRecord, error) {
			return rec.WithShipment(line.Quantity), nil
		})
		if err != nil {
			return fmt.Errorf("commit shipment for variant %s: %w", line.VariantID, err)
		}
	}
	return nil
}

// FindExpired returns active reservations past their TTL, for the sweeper.
func (m *InventoryReservationManager) FindExpired(ctx context.Context) ([]domain.Reservation, error) {
	return m.reservations.FindExpired(ctx, m.now())
}

// rollback best-effort releases already-reserved lines. Failures are logged,
// not returned: the expiry sweep is the safety net for anything left behind.
func (m *InventoryReservationManager) rollback(ctx context.Context, lines []domain.ReservationLine) {
	for _, line := range lines {
		err := m.casUpdate(ctx, line.VariantID, func(rec domain.InventoryRecord) (domain.InventoryRecord, error) {
			return rec.WithRelease(line.Quantity), nil
		})
		if err != nil {
			m.logger.ErrorContext(ctx, "failed to roll back reserved line",
				"variant_id", line.VariantID,
				"quantity", line.Quantity,
				"error", err,
			)
		}
	}
}

// casUpdate runs a read-modify-write cycle against one inventory record,
// retrying version conflicts with jittered backoff up to the configured
// budget. Errors returned by mutate abort the cycle immediately.
func (m *InventoryReservationManager) casUpdate(
	ctx context.Context,
	variantID uuid.UUID,
	mutate func(domain.InventoryRecord) (domain.InventoryRecord, error),
) error {
	attempt := func() error {
		rec, err := m.inventory.Get(ctx, variantID)
		if err != nil {
			return backoff.Permanent(err)
		}

		next, err := mutate(rec)
		if err != nil {
			return backoff.Permanent(err)
		}

		err = m.inventory.CompareAndSwap(ctx, next, rec.Version)
		if errors.Is(err, domain.ErrVersionConflict) {
			if m.metrics != nil {
				m.metrics.RecordReservationConflict(ctx)
			}
			return err // retryable
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	policy := backoff.WithContext(newCASBackoff(m.cfg.MaxRetries), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			return fmt.Errorf("variant %s: %w", variantID, domain.ErrContended)
		}
		return err
	}
	return nil
}
