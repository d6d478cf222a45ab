package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/shopkit/checkout/internal/money"
)

var (
	// ErrEmptyCart is returned when checkout is attempted on a cart with no items.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrCartExpired is returned when checkout is attempted past the cart's expiry.
	ErrCartExpired = errors.New("cart has expired")

	// ErrUnknownCoupon is returned when a coupon code does not exist.
	ErrUnknownCoupon = errors.New("unknown coupon code")
	// ErrCouponInactive is returned when a coupon has been deactivated.
	ErrCouponInactive = errors.New("coupon is not active")
	// ErrCouponExpired is returned when now falls outside the coupon's validity window.
	ErrCouponExpired = errors.New("coupon is outside its validity window")
	// ErrMinimumNotMet is returned when the cart subtotal is below the coupon minimum.
	ErrMinimumNotMet = errors.New("cart subtotal below coupon minimum")
	// ErrNotEligibleCategory is returned when no cart line belongs to an eligible category.
	ErrNotEligibleCategory = errors.New("no cart item in an eligible category")
	// ErrCapExceeded is returned when a per-user or global usage cap is exhausted.
	ErrCapExceeded = errors.New("coupon usage cap exceeded")

	// ErrContended is returned when a version-checked write loses to concurrent
	// writers more times than the retry budget allows.
	ErrContended = errors.New("record contended, retries exhausted")
	// ErrVersionConflict is returned by stores when a compare-and-swap write
	// observes a version other than the one it expected.
	ErrVersionConflict = errors.New("version conflict")
	// ErrReservationExpired is returned when confirming a reservation past its TTL.
	ErrReservationExpired = errors.New("reservation has expired")
)

// PriceChangedError reports that a cart line's price snapshot drifted from the
// current catalog price beyond the configured tolerance. The caller must
// re-confirm the cart before checkout proceeds.
type PriceChangedError struct {
	VariantID uuid.UUID
	Quoted    money.Money
	Current   money.Money
}

func (e *PriceChangedError) Error() string {
	return fmt.Sprintf("price changed for variant %s: quoted %s, now %s", e.VariantID, e.Quoted, e.Current)
}

// InsufficientStockError names the first product variant whose requested
// quantity could not be reserved.
type InsufficientStockError struct {
	VariantID uuid.UUID
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for variant %s: requested %d, available %d", e.VariantID, e.Requested, e.Available)
}

// InvalidTransitionError reports a state change outside the order state
// machine's allow-list.
type InvalidTransitionError struct {
	From OrderState
	To   OrderState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order transition: %s -> %s", e.From, e.To)
}

// ExternalError wraps a failure reported by an external collaborator
// (payment, fulfillment). The order remains in its pre-call state.
type ExternalError struct {
	Collaborator string
	Err          error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("%s collaborator failed: %v", e.Collaborator, e.Err)
}

func (e *ExternalError) Unwrap() error { return e.Err }

// ErrorKind buckets engine failures by how the caller should react.
type ErrorKind string

const (
	// KindValidation marks malformed input, recoverable by caller correction.
	KindValidation ErrorKind = "validation"
	// KindConflict marks version contention, recoverable by retry.
	KindConflict ErrorKind = "conflict"
	// KindResource marks exhausted stock, caps, or expired reservations,
	// recoverable by the caller choosing different items or coupons.
	KindResource ErrorKind = "resource"
	// KindState marks an illegal lifecycle transition, a caller or race bug.
	KindState ErrorKind = "state"
	// KindExternal marks propagated collaborator failures.
	KindExternal ErrorKind = "external"
	// KindInternal marks everything else.
	KindInternal ErrorKind = "internal"
)

// Kind classifies an engine error into the taxonomy above.
func Kind(err error) ErrorKind {
	var (
		priceChanged *PriceChangedError
		insufficient *InsufficientStockError
		invalidTrans *InvalidTransitionError
		external     *ExternalError
	)
	switch {
	case errors.As(err, &invalidTrans):
		return KindState
	case errors.As(err, &external):
		return KindExternal
	case errors.As(err, &insufficient),
		errors.Is(err, ErrReservationExpired),
		errors.Is(err, ErrCapExceeded):
		return KindResource
	case errors.Is(err, ErrContended), errors.Is(err, ErrVersionConflict):
		return KindConflict
	case errors.As(err, &priceChanged),
		errors.Is(err, ErrEmptyCart),
		errors.Is(err, ErrCartExpired),
		errors.Is(err, ErrUnknownCoupon),
		errors.Is(err, ErrCouponInactive),
		errors.Is(err, ErrCouponExpired),
		errors.Is(err, ErrMinimumNotMet),
		errors.Is(err, ErrNotEligibleCategory):
		return KindValidation
	default:
		return KindInternal
	}
}
