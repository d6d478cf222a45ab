package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopkit/checkout/internal/money"
)

// DiscountKind enumerates the supported coupon discount strategies.
type DiscountKind string

const (
	// DiscountPercentage takes a percentage off the cart subtotal.
	DiscountPercentage DiscountKind = "percentage"
	// DiscountFixed takes a fixed amount off, capped at the subtotal.
	DiscountFixed DiscountKind = "fixed"
	// DiscountFreeShipping waives the shipping cost.
	DiscountFreeShipping DiscountKind = "free_shipping"
)

// Coupon is a discount code with eligibility constraints and usage caps.
// The usage counter is shared mutable state guarded by the version field;
// it never exceeds GlobalCap.
type Coupon struct {
	Code        string          `json:"code"`
	Kind        DiscountKind    `json:"kind"`
	Value       decimal.Decimal `json:"value"`
	MinSubtotal *money.Money    `json:"min_subtotal,omitempty"`
	Categories  []string        `json:"categories,omitempty"`
	PerUserCap  int             `json:"per_user_cap"`
	GlobalCap   int             `json:"global_cap"`
	MaxDiscount *money.Money    `json:"max_discount,omitempty"`
	ValidFrom   *time.Time      `json:"valid_from,omitempty"`
	ValidUntil  *time.Time      `json:"valid_until,omitempty"`
	UsageCount  int             `json:"usage_count"`
	Active      bool            `json:"active"`
	Version     int64           `json:"version"`
}

// InWindow reports whether now falls inside the validity window. Open ends
// are unbounded.
func (c *Coupon) InWindow(now time.Time) bool {
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return false
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return false
	}
	return true
}

// GlobalCapReached reports whether the global usage cap is exhausted.
// A zero cap means unlimited.
func (c *Coupon) GlobalCapReached() bool {
	return c.GlobalCap > 0 && c.UsageCount >= c.GlobalCap
}

// RestrictedToCategories reports whether the coupon only applies to carts
// containing at least one line from its category set.
func (c *Coupon) RestrictedToCategories() bool {
	return len(c.Categories) > 0
}

// CoversCategory reports whether the given category is in the eligible set.
func (c *Coupon) CoversCategory(category string) bool {
	for _, eligible := range c.Categories {
		if eligible == category {
			return true
		}
	}
	return false
}

// DiscountFor computes the monetary discount against a subtotal and a
// shipping quote. The result never exceeds the subtotal (or, for free
// shipping, the shipping cost) and honors MaxDiscount when set.
func (c *Coupon) DiscountFor(subtotal, shipping money.Money) money.Money {
	var discount money.Money
	switch c.Kind {
	case DiscountPercentage:
		discount = subtotal.Percent(c.Value).RoundToMinorUnit()
	case DiscountFixed:
		discount = money.New(c.Value, subtotal.Currency())
	case DiscountFreeShipping:
		discount = shipping
	default:
		return money.Zero(subtotal.Currency())
	}

	if c.MaxDiscount != nil && discount.GreaterThan(*c.MaxDiscount) {
		discount = *c.MaxDiscount
	}
	cap := subtotal
	if c.Kind == DiscountFreeShipping {
		cap = shipping
	}
	if discount.GreaterThan(cap) {
		discount = cap
	}
	return discount.ClampZero()
}

// AppliedDiscount is the locked-in outcome of a successful coupon validation.
type AppliedDiscount struct {
	Code         string       `json:"code"`
	Kind         DiscountKind `json:"kind"`
	Amount       money.Money  `json:"amount"`
	FreeShipping bool         `json:"free_shipping"`
}
