package money

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrCurrencyMismatch is returned when arithmetic mixes two currencies.
var ErrCurrencyMismatch = errors.New("currency mismatch")

// minorUnits maps ISO 4217 codes to their number of decimal places.
// Unlisted currencies fall back to two.
var minorUnits = map[string]int32{
	"JPY": 0,
	"KRW": 0,
	"BHD": 3,
	"KWD": 3,
}

// Money is a fixed-point monetary amount in a single currency. The zero
// value is unusable; construct values with New or Zero.
type Money struct {
	amount   decimal.Decimal
	currency string
}

// New builds a Money from a decimal amount and currency code.
func New(amount decimal.Decimal, currency string) Money {
	return Money{amount: amount, currency: currency}
}

// FromMinorUnits builds a Money from an integer count of minor units,
// e.g. FromMinorUnits(1999, "USD") is $19.99.
func FromMinorUnits(units int64, currency string) Money {
	return Money{amount: decimal.New(units, -exponent(currency)), currency: currency}
}

// MustParse builds a Money from a decimal string, panicking on malformed
// input. Intended for constants and tests.
func MustParse(amount, currency string) Money {
	return Money{amount: decimal.RequireFromString(amount), currency: currency}
}

// Zero returns the zero amount in the given currency.
func Zero(currency string) Money {
	return Money{amount: decimal.Zero, currency: currency}
}

func exponent(currency string) int32 {
	if exp, ok := minorUnits[currency]; ok {
		return exp
	}
	return 2
}

// Currency returns the ISO 4217 code.
func (m Money) Currency() string { return m.currency }

// Amount returns the underlying decimal value.
func (m Money) Amount() decimal.Decimal { return m.amount }

// MinorUnits returns the amount as an integer count of minor units,
// rounded half to even.
func (m Money) MinorUnits() int64 {
	exp := exponent(m.currency)
	return m.amount.RoundBank(exp).Shift(exp).IntPart()
}

// Add returns m + other.
func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.currency}, nil
}

// Sub returns m - other.
func (m Money) Sub(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount.Sub(other.amount), currency: m.currency}, nil
}

// MulInt returns m scaled by an integer quantity.
func (m Money) MulInt(qty int64) Money {
	return Money{amount: m.amount.Mul(decimal.NewFromInt(qty)), currency: m.currency}
}

// Percent returns the given percentage of m, e.g. Percent(10) is a tenth.
func (m Money) Percent(p decimal.Decimal) Money {
	return Money{amount: m.amount.Mul(p).Div(decimal.NewFromInt(100)), currency: m.currency}
}

// MulRate multiplies by an arbitrary rate (e.g. a tax rate of 0.08).
func (m Money) MulRate(rate decimal.Decimal) Money {
	return Money{amount: m.amount.Mul(rate), currency: m.currency}
}

// RoundToMinorUnit rounds to the currency's minor unit, half to even.
func (m Money) RoundToMinorUnit() Money {
	return Money{amount: m.amount.RoundBank(exponent(m.currency)), currency: m.currency}
}

// ClampZero returns the zero amount if m is negative, otherwise m.
func (m Money) ClampZero() Money {
	if m.amount.IsNegative() {
		return Zero(m.currency)
	}
	return m
}

// Min returns the smaller of m and other.
func (m Money) Min(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	if m.amount.LessThan(other.amount) {
		return m, nil
	}
	return other, nil
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool { return m.amount.IsZero() }

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool { return m.amount.IsNegative() }

// LessThan reports whether m < other. Mismatched currencies compare false.
func (m Money) LessThan(other Money) bool {
	return m.currency == other.currency && m.amount.LessThan(other.amount)
}

// GreaterThan reports whether m > other. Mismatched currencies compare false.
func (m Money) GreaterThan(other Money) bool {
	return m.currency == other.currency && m.amount.GreaterThan(other.amount)
}

// Equal reports whether two amounts are the same value and currency.
func (m Money) Equal(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// String formats the amount at the currency's minor-unit precision.
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.amount.StringFixedBank(exponent(m.currency)), m.currency)
}

type moneyJSON struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// MarshalJSON encodes the amount as a decimal string alongside its currency.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{
		Amount:   m.amount.StringFixedBank(exponent(m.currency)),
		Currency: m.currency,
	})
}

// UnmarshalJSON decodes the {"amount","currency"} form.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw moneyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	amount, err := decimal.NewFromString(raw.Amount)
	if err != nil {
		return fmt.Errorf("parse money amount %q: %w", raw.Amount, err)
	}
	m.amount = amount
	m.currency = raw.Currency
	return nil
}

func (m Money) sameCurrency(other Money) error {
	if m.currency != other.currency {
		return fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.currency, other.currency)
	}
	return nil
}
