package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopkit/checkout/internal/checkout/domain"
	"github.com/shopkit/checkout/internal/checkout/ports"
	"github.com/shopkit/checkout/internal/money"
)

// CalculatorConfig carries the pricing tunables. Tolerance is an absolute
// amount: any drift beyond it between a line's price snapshot and the
// current catalog price flags PriceChanged.
type CalculatorConfig struct {
	Currency        string
	StalenessWindow time.Duration
	PriceTolerance  money.Money
}

// CartCalculator computes subtotal, discount, tax, shipping, and grand total
// for a cart snapshot. It has no side effects: identical inputs always yield
// identical totals.
type CartCalculator struct {
	catalog  ports.PriceCatalog
	taxes    ports.TaxRateLookup
	shipping ports.ShippingRuleSet
	logger   *slog.Logger
	cfg      CalculatorConfig
	now      func() time.Time
}

// NewCartCalculator wires the pricing collaborators.
func NewCartCalculator(
	catalog ports.PriceCatalog,
	taxes ports.TaxRateLookup,
	shipping ports.ShippingRuleSet,
	logger *slog.Logger,
	cfg CalculatorConfig,
) *CartCalculator {
	return &CartCalculator{
		catalog:  catalog,
		taxes:    taxes,
		shipping: shipping,
		logger:   logger,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the calculator's clock, for tests.
func (c *CartCalculator) WithClock(now func() time.Time) *CartCalculator {
	c.now = now
	return c
}

// ComputeTotals prices a cart snapshot for the given destination. When
// discount is nil the cart is priced without a coupon; callers re-run it
// with the applied discount once the coupon engine has validated one.
//
// Line prices older than the staleness window are re-fetched from the
// catalog; drift beyond the configured tolerance fails with
// PriceChangedError so the caller can re-confirm rather than silently
// charge a price the user never saw.
func (c *CartCalculator) ComputeTotals(
	ctx context.Context,
	cart *domain.Cart,
	dest ports.Destination,
	discount *domain.AppliedDiscount,
) (domain.Totals, error) {
	now := c.now()

	items, err := c.effectiveItems(ctx, cart, now)
	if err != nil {
		return domain.Totals{}, err
	}

	subtotal := money.Zero(c.cfg.Currency)
	for _, item := range items {
		subtotal, err = subtotal.Add(item.LineTotal())
		if err != nil {
			return domain.Totals{}, fmt.Errorf("sum line totals: %w", err)
		}
	}

	shippingCost, err := c.shipping.Cost(ctx, cart.TotalWeightGrams(), dest)
	if err != nil {
		return domain.Totals{}, fmt.Errorf("shipping cost: %w", err)
	}

	discountAmount := money.Zero(c.cfg.Currency)
	freeShipping := false
	if discount != nil {
		discountAmount = discount.Amount
		freeShipping = discount.FreeShipping
	}

	// A free-shipping discount waives the shipping cost; the subtotal stays
	// fully taxable. Monetary discounts reduce the taxable base instead.
	taxable := subtotal
	if !freeShipping {
		taxable, err = subtotal.Sub(discountAmount)
		if err != nil {
			return domain.Totals{}, fmt.Errorf("discounted subtotal: %w", err)
		}
		taxable = taxable.ClampZero()
	}

	rate, err := c.taxes.RateFor(ctx, dest, items)
	if err != nil {
		return domain.Totals{}, fmt.Errorf("tax rate: %w", err)
	}
	tax := taxable.MulRate(rate).RoundToMinorUnit()

	if freeShipping {
		shippingCost = money.Zero(c.cfg.Currency)
	}

	grand := taxable
	if grand, err = grand.Add(tax); err != nil {
		return domain.Totals{}, err
	}
	if grand, err = grand.Add(shippingCost); err != nil {
		return domain.Totals{}, err
	}
	if grand.IsNegative() {
		c.logger.WarnContext(ctx, "negative grand total clamped to zero",
			"cart_id", cart.ID,
			"subtotal", subtotal.String(),
			"discount", discountAmount.String(),
		)
		grand = grand.ClampZero()
	}

	return domain.Totals{
		Subtotal:   subtotal,
		Discount:   discountAmount,
		Tax:        tax,
		Shipping:   shippingCost,
		GrandTotal: grand,
	}, nil
}

// effectiveItems returns the cart lines with stale price snapshots refreshed
// from the catalog. The cart itself is never mutated.
func (c *CartCalculator) effectiveItems(ctx context.Context, cart *domain.Cart, now time.Time) ([]domain.CartItem, error) {
	items := make([]domain.CartItem, len(cart.Items))
	copy(items, cart.Items)

	for i := range items {
		if now.Sub(items[i].PricedAt) <= c.cfg.StalenessWindow {
			continue
		}

		current, err := c.catalog.CurrentPrice(ctx, items[i].VariantID)
		if err != nil {
			return nil, fmt.Errorf("refresh price for variant %s: %w", items[i].VariantID, err)
		}

		drift, err := current.Sub(items[i].UnitPrice)
		if err != nil {
			return nil, err
		}
		if drift.IsNegative() {
			drift, _ = items[i].UnitPrice.Sub(current)
		}
		if drift.GreaterThan(c.cfg.PriceTolerance) {
			return nil, &domain.PriceChangedError{
				VariantID: items[i].VariantID,
				Quoted:    items[i].UnitPrice,
				Current:   current,
			}
		}

		items[i].UnitPrice = current
		items[i].PricedAt = now
	}
	return items, nil
}
