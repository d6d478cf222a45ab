package domain_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopkit/checkout/internal/checkout/domain"
	"github.com/shopkit/checkout/internal/money"
)

func TestCouponDiscountFor(t *testing.T) {
	subtotal := money.MustParse("25.00", "USD")
	shipping := money.MustParse("9.99", "USD")
	maxFive := money.MustParse("5.00", "USD")

	tests := []struct {
		name   string
		coupon domain.Coupon
		want   string
	}{
		{
			"ten percent off",
			domain.Coupon{Kind: domain.DiscountPercentage, Value: decimal.NewFromInt(10)},
			"2.50 USD",
		},
		{
			"fixed amount",
			domain.Coupon{Kind: domain.DiscountFixed, Value: decimal.RequireFromString("4.00")},
			"4.00 USD",
		},
		{
			"fixed amount capped at subtotal",
			domain.Coupon{Kind: domain.DiscountFixed, Value: decimal.RequireFromString("40.00")},
			"25.00 USD",
		},
		{
			"free shipping equals shipping cost",
			domain.Coupon{Kind: domain.DiscountFreeShipping},
			"9.99 USD",
		},
		{
			"max discount honored",
			domain.Coupon{Kind: domain.DiscountPercentage, Value: decimal.NewFromInt(50), MaxDiscount: &maxFive},
			"5.00 USD",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.coupon.DiscountFor(subtotal, shipping)
			if got.String() != tt.want {
				t.Errorf("DiscountFor = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCouponWindow(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name   string
		coupon domain.Coupon
		want   bool
	}{
		{"open window", domain.Coupon{}, true},
		{"inside window", domain.Coupon{ValidFrom: &past, ValidUntil: &future}, true},
		{"not yet valid", domain.Coupon{ValidFrom: &future}, false},
		{"expired", domain.Coupon{ValidUntil: &past}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.coupon.InWindow(now); got != tt.want {
				t.Errorf("InWindow = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCouponGlobalCap(t *testing.T) {
	unlimited := domain.Coupon{GlobalCap: 0, UsageCount: 10_000}
	if unlimited.GlobalCapReached() {
		t.Error("zero cap means unlimited")
	}

	capped := domain.Coupon{GlobalCap: 3, UsageCount: 3}
	if !capped.GlobalCapReached() {
		t.Error("usage at cap should report exhausted")
	}
}

func TestCouponCategories(t *testing.T) {
	open := domain.Coupon{}
	if open.RestrictedToCategories() {
		t.Error("coupon without categories should not be restricted")
	}

	restricted := domain.Coupon{Categories: []string{"footwear"}}
	if !restricted.CoversCategory("footwear") {
		t.Error("expected footwear to be covered")
	}
	if restricted.CoversCategory("accessories") {
		t.Error("accessories should not be covered")
	}
}
