package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/shopkit/checkout/internal/checkout/domain"
	"github.com/shopkit/checkout/internal/money"
)

type CouponStore struct {
	pool *pgxpool.Pool
}

func NewCouponStore(pool *pgxpool.Pool) *CouponStore {
	return &CouponStore{pool: pool}
}

func (s *CouponStore) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	q := db(ctx, s.pool)

	query := `
		SELECT code, kind, value, min_subtotal_units, max_discount_units, currency,
		       categories, per_user_cap, global_cap, valid_from, valid_until,
		       usage_count, active, version
		FROM coupons
		WHERE code = $1
	`

	var (
		coupon           domain.Coupon
		value            string
		minSubtotalUnits *int64
		maxDiscountUnits *int64
		currency         string
	)
	err := q.QueryRow(ctx, query, code).Scan(
		&coupon.Code,
		&coupon.Kind,
		&value,
		&minSubtotalUnits,
		&maxDiscountUnits,
		&currency,
		&coupon.Categories,
		&coupon.PerUserCap,
		&coupon.GlobalCap,
		&coupon.ValidFrom,
		&coupon.ValidUntil,
		&coupon.UsageCount,
		&coupon.Active,
		&coupon.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select coupon: %w", err)
	}

	coupon.Value, err = decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("parse coupon value %q: %w", value, err)
	}
	if minSubtotalUnits != nil {
		m := money.FromMinorUnits(*minSubtotalUnits, currency)
		coupon.MinSubtotal = &m
	}
	if maxDiscountUnits != nil {
		m := money.FromMinorUnits(*maxDiscountUnits, currency)
		coupon.MaxDiscount = &m
	}

	return &coupon, nil
}

// IncrementUsage bumps the usage counter only when the caller saw the latest
// version. A zero row count on an existing code means a concurrent writer won.
func (s *CouponStore) IncrementUsage(ctx context.Context, code string, expectedVersion int64) error {
	q := db(ctx, s.pool)

	result, err := q.Exec(ctx, `
		UPDATE coupons
		SET usage_count = usage_count + 1, version = version + 1
		WHERE code = $1 AND version = $2
	`, code, expectedVersion)
	if err != nil {
		return fmt.Errorf("increment coupon usage: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}

	return nil
}

func (s *CouponStore) UserUsageCount(ctx context.Context, code string, userID uuid.UUID) (int, error) {
	q := db(ctx, s.pool)

	var count int
	err := q.QueryRow(ctx, `
		SELECT count(*)
		FROM coupon_usages
		WHERE code = $1 AND user_id = $2
	`, code, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count coupon usages: %w", err)
	}

	return count, nil
}

func (s *CouponStore) RecordUsage(ctx context.Context, code string, userID *uuid.UUID, orderID uuid.UUID, amount int64) error {
	q := db(ctx, s.pool)

	_, err := q.Exec(ctx, `
		INSERT INTO coupon_usages (code, user_id, order_id, amount_units, used_at)
		VALUES ($1, $2, $3, $4, $5)
	`, code, userID, orderID, amount, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert coupon usage: %w", err)
	}

	return nil
}
