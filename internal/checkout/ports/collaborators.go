package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shopkit/checkout/internal/checkout/domain"
	"github.com/shopkit/checkout/internal/money"
)

// Destination identifies where an order ships, as far as tax and shipping
// collaborators care.
type Destination struct {
	Country    string `json:"country"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
}

// PriceCatalog looks up current catalog prices and stock levels. Stock from
// here is only a conflict-detection hint; authoritative reads happen inside
// the reservation manager.
type PriceCatalog interface {
	CurrentPrice(ctx context.Context, variantID uuid.UUID) (money.Money, error)
	CurrentStock(ctx context.Context, variantID uuid.UUID) (int, error)
}

// TaxRateLookup supplies the tax rate for a destination and set of lines.
// Jurisdiction rules live behind this interface, not in the engine.
type TaxRateLookup interface {
	RateFor(ctx context.Context, dest Destination, items []domain.CartItem) (decimal.Decimal, error)
}

// ShippingRuleSet prices shipping as an opaque function of cart weight and
// destination (flat rate, weight-tiered, free-above-threshold — the engine
// does not care which).
type ShippingRuleSet interface {
	Cost(ctx context.Context, weightGrams int, dest Destination) (money.Money, error)
}

// PaymentGateway records authorization outcomes reported by the external
// payment collaborator. The engine never speaks gateway protocols.
type PaymentGateway interface {
	Authorize(ctx context.Context, order *domain.Order, paymentToken string) (paymentRef string, err error)
	Refund(ctx context.Context, order *domain.Order, amount money.Money) (refundRef string, err error)
}
