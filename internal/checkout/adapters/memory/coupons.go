package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/shopkit/checkout/internal/checkout/domain"
)

type usageRow struct {
	code    string
	userID  *uuid.UUID
	orderID uuid.UUID
	amount  int64
}

// CouponStore provides an in-memory coupon store with version-checked usage
// counters, useful for local development and tests.
type CouponStore struct {
	mu      sync.RWMutex
	coupons map[string]domain.Coupon
	usages  []usageRow
}

// NewCouponStore constructs a new in-memory coupon store.
func NewCouponStore() *CouponStore {
	return &CouponStore{coupons: make(map[string]domain.Coupon)}
}

// Put stores or replaces a coupon definition.
func (s *CouponStore) Put(coupon domain.Coupon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coupons[coupon.Code] = coupon
}

// GetByCode fetches a coupon by code, returning (nil, nil) when unknown.
func (s *CouponStore) GetByCode(_ context.Context, code string) (*domain.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coupon, ok := s.coupons[code]
	if !ok {
		return nil, nil
	}
	clone := coupon
	return &clone, nil
}

// IncrementUsage bumps the usage counter if the stored version matches.
func (s *CouponStore) IncrementUsage(_ context.Context, code string, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	coupon, ok := s.coupons[code]
	if !ok {
		return domain.ErrUnknownCoupon
	}
	if coupon.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	coupon.UsageCount++
	coupon.Version++
	s.coupons[code] = coupon
	return nil
}

// UserUsageCount counts recorded usages of a code by one user.
func (s *CouponStore) UserUsageCount(_ context.Context, code string, userID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	for _, row := range s.usages {
		if row.code == code && row.userID != nil && *row.userID == userID {
			n++
		}
	}
	return n, nil
}

// RecordUsage appends a usage row linking the code to an order.
func (s *CouponStore) RecordUsage(_ context.Context, code string, userID *uuid.UUID, orderID uuid.UUID, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := usageRow{code: code, orderID: orderID, amount: amount}
	if userID != nil {
		id := *userID
		row.userID = &id
	}
	s.usages = append(s.usages, row)
	return nil
}
