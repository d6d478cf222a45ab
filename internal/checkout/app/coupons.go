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
	"github.com/shopkit/checkout/internal/money"
)

// CouponEngine validates coupon codes against a cart snapshot and commits
// usage counters. Validation never consumes a usage slot; only Commit does,
// and only as part of a successful checkout.
type CouponEngine struct {
	store      ports.CouponStore
	logger     *slog.Logger
	metrics    *metrics.Metrics
	maxRetries uint64
	now        func() time.Time
}

// NewCouponEngine builds a CouponEngine with the given CAS retry budget.
func NewCouponEngine(store ports.CouponStore, logger *slog.Logger, maxRetries uint64) *CouponEngine {
	return &CouponEngine{
		store:      store,
		logger:     logger,
		maxRetries: maxRetries,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the engine's clock, for tests.
func (e *CouponEngine) WithClock(now func() time.Time) *CouponEngine {
	e.now = now
	return e
}

// WithMetrics enables commit counters on the engine.
func (e *CouponEngine) WithMetrics(metrics *metrics.Metrics) *CouponEngine {
	e.metrics = metrics
	return e
}

// Validate runs the eligibility checks in order, short-circuiting on the
// first failure: code exists and is active, validity window contains now,
// subtotal meets the minimum, a cart line matches an eligible category,
// per-user usage is under its cap, global usage is under its cap.
func (e *CouponEngine) Validate(
	ctx context.Context,
	code string,
	cart *domain.Cart,
	subtotal, shipping money.Money,
) (*domain.AppliedDiscount, error) {
	coupon, err := e.store.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if coupon == nil {
		return nil, domain.ErrUnknownCoupon
	}
	if !coupon.Active {
		return nil, domain.ErrCouponInactive
	}
	if !coupon.InWindow(e.now()) {
		return nil, domain.ErrCouponExpired
	}
	if coupon.MinSubtotal != nil && subtotal.LessThan(*coupon.MinSubtotal) {
		return nil, domain.ErrMinimumNotMet
	}
	if coupon.RestrictedToCategories() {
		eligible := false
		for _, item := range cart.Items {
			if coupon.CoversCategory(item.Category) {
				eligible = true
				break
			}
		}
		if !eligible {
			return nil, domain.ErrNotEligibleCategory
		}
	}
	if cart.UserID != nil && coupon.PerUserCap > 0 {
		used, err := e.store.UserUsageCount(ctx, code, *cart.UserID)
		if err != nil {
			return nil, fmt.Errorf("user usage count: %w", err)
		}
		if used >= coupon.PerUserCap {
			return nil, domain.ErrCapExceeded
		}
	}
	if coupon.GlobalCapReached() {
		return nil, domain.ErrCapExceeded
	}

	return &domain.AppliedDiscount{
		Code:         coupon.Code,
		Kind:         coupon.Kind,
		Amount:       coupon.DiscountFor(subtotal, shipping),
		FreeShipping: coupon.Kind == domain.DiscountFreeShipping,
	}, nil
}

// Commit increments the coupon's usage counter through a version-checked
// write and records the per-user usage row. The counter never exceeds the
// global cap: the cap is re-checked against a fresh read on every attempt,
// so N racers for the last slot produce exactly one winner.
func (e *CouponEngine) Commit(
	ctx context.Context,
	code string,
	userID *uuid.UUID,
	orderID uuid.UUID,
	amount money.Money,
) error {
	attempt := func() error {
		coupon, err := e.store.GetByCode(ctx, code)
		if err != nil {
			return backoff.Permanent(err)
		}
		if coupon == nil {
			return backoff.Permanent(domain.ErrUnknownCoupon)
		}
		if coupon.GlobalCapReached() {
			return backoff.Permanent(domain.ErrCapExceeded)
		}

		err = e.store.IncrementUsage(ctx, code, coupon.Version)
		if errors.Is(err, domain.ErrVersionConflict) {
			return err // retryable
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	policy := backoff.WithContext(newCASBackoff(e.maxRetries), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		if e.metrics != nil {
			e.metrics.RecordCouponCommit(ctx, false)
		}
		if errors.Is(err, domain.ErrVersionConflict) {
			return fmt.Errorf("coupon %s: %w", code, domain.ErrContended)
		}
		return err
	}
	if e.metrics != nil {
		e.metrics.RecordCouponCommit(ctx, true)
	}

	if err := e.store.RecordUsage(ctx, code, userID, orderID, amount.MinorUnits()); err != nil {
		return fmt.Errorf("record coupon usage: %w", err)
	}
	return nil
}

// newCASBackoff returns the jittered exponential policy used for
// compare-and-swap retries. Intervals are short: contention on a hot record
// resolves in milliseconds or not at all.
func newCASBackoff(maxRetries uint64) backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 2 * time.Millisecond
	policy.MaxInterval = 50 * time.Millisecond
	policy.RandomizationFactor = 0.5
	return backoff.WithMaxRetries(policy, maxRetries)
}
