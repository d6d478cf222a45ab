package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopkit/checkout/internal/checkout/metrics"
)

// Sweeper releases expired, unconfirmed reservations so abandoned checkouts
// return their stock. The orchestrator's happy path never relies on it; the
// sweep is the safety net for crashes between partial effects.
type Sweeper struct {
	reservations *InventoryReservationManager
	logger       *slog.Logger
	metrics      *metrics.Metrics
	interval     time.Duration
}

// NewSweeper builds a sweeper running at the given interval.
func NewSweeper(reservations *InventoryReservationManager, logger *slog.Logger, interval time.Duration) *Sweeper {
	return &Sweeper{reservations: reservations, logger: logger, interval: interval}
}

// WithMetrics enables expiry counters on the sweeper.
func (s *Sweeper) WithMetrics(metrics *metrics.Metrics) *Sweeper {
	s.metrics = metrics
	return s
}

// SweepOnce releases every currently-expired reservation and returns how
// many were released.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	expired, err := s.reservations.FindExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("find expired reservations: %w", err)
	}

	released := 0
	for _, reservation := range expired {
		if err := s.reservations.Release(ctx, reservation.ID); err != nil {
			s.logger.ErrorContext(ctx, "failed to release expired reservation",
				"reservation_id", reservation.ID,
				"error", err,
			)
			continue
		}
		released++
	}

	if released > 0 {
		s.logger.InfoContext(ctx, "released expired reservations", "count", released)
		if s.metrics != nil {
			s.metrics.RecordReservationsExpired(ctx, int64(released))
		}
	}
	return released, nil
}

// Run sweeps on a ticker until the context ends.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.ErrorContext(ctx, "reservation sweep failed", "error", err)
			}
		}
	}
}
