// Package static provides in-process collaborator implementations: a flat
// per-country tax table, weight-tiered shipping, and a sandbox payment
// gateway. Real jurisdiction rules, carrier rates, and gateway protocols
// live in external services; these cover local development and deployments
// that have not wired those services yet.
package static

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shopkit/checkout/internal/checkout/domain"
	"github.com/shopkit/checkout/internal/checkout/ports"
	"github.com/shopkit/checkout/internal/money"
)

// TaxTable resolves tax rates by destination country, falling back to a
// default rate for countries not listed.
type TaxTable struct {
	rates       map[string]decimal.Decimal
	defaultRate decimal.Decimal
}

// NewTaxTable builds a tax table. Country codes are matched case-insensitively.
func NewTaxTable(rates map[string]decimal.Decimal, defaultRate decimal.Decimal) *TaxTable {
	normalized := make(map[string]decimal.Decimal, len(rates))
	for country, rate := range rates {
		normalized[strings.ToUpper(country)] = rate
	}
	return &TaxTable{rates: normalized, defaultRate: defaultRate}
}

func (t *TaxTable) RateFor(_ context.Context, dest ports.Destination, _ []domain.CartItem) (decimal.Decimal, error) {
	if rate, ok := t.rates[strings.ToUpper(dest.Country)]; ok {
		return rate, nil
	}
	return t.defaultRate, nil
}

// TieredShipping prices shipping from cart weight: a base cost plus a step
// for every started kilogram above the first.
type TieredShipping struct {
	currency string
	base     decimal.Decimal
	perKg    decimal.Decimal
}

// NewTieredShipping builds the rule set in the given currency.
func NewTieredShipping(currency string, base, perKg decimal.Decimal) *TieredShipping {
	return &TieredShipping{currency: currency, base: base, perKg: perKg}
}

func (s *TieredShipping) Cost(_ context.Context, weightGrams int, _ ports.Destination) (money.Money, error) {
	if weightGrams < 0 {
		return money.Money{}, fmt.Errorf("negative weight: %d", weightGrams)
	}

	cost := s.base
	if weightGrams > 1000 {
		extraKg := (weightGrams - 1) / 1000 // started kilograms above the first
		cost = cost.Add(s.perKg.Mul(decimal.NewFromInt(int64(extraKg))))
	}
	return money.New(cost, s.currency), nil
}

// SandboxPayments authorizes and refunds unconditionally, returning
// generated references. It stands in for the payment collaborator.
type SandboxPayments struct{}

// NewSandboxPayments returns the sandbox gateway.
func NewSandboxPayments() *SandboxPayments {
	return &SandboxPayments{}
}

func (g *SandboxPayments) Authorize(_ context.Context, _ *domain.Order, _ string) (string, error) {
	return "sandbox-auth-" + uuid.NewString(), nil
}

func (g *SandboxPayments) Refund(_ context.Context, _ *domain.Order, _ money.Money) (string, error) {
	return "sandbox-refund-" + uuid.NewString(), nil
}
