package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shopkit/checkout/internal/checkout/domain"
	"github.com/shopkit/checkout/internal/checkout/ports"
	"github.com/shopkit/checkout/internal/money"
)

// CheckoutConfig carries the orchestrator tunables.
type CheckoutConfig struct {
	Currency string
	// Timeout bounds one checkout attempt wall-clock, reservation retries
	// included. Zero disables the bound.
	Timeout time.Duration
}

// CheckoutOrchestrator composes the calculator, coupon engine, and
// reservation manager into the single place-order operation with
// all-or-nothing semantics, and drives the order lifecycle transitions
// afterwards.
type CheckoutOrchestrator struct {
	carts        ports.CartRepository
	orders       ports.OrderRepository
	calculator   *CartCalculator
	coupons      *CouponEngine
	reservations *InventoryReservationManager
	payments     ports.PaymentGateway
	events       ports.EventBus
	tx           ports.TxRunner
	logger       *slog.Logger
	cfg          CheckoutConfig
	now          func() time.Time
}

// NewCheckoutOrchestrator wires all checkout dependencies.
func NewCheckoutOrchestrator(
	carts ports.CartRepository,
	orders ports.OrderRepository,
	calculator *CartCalculator,
	coupons *CouponEngine,
	reservations *InventoryReservationManager,
	payments ports.PaymentGateway,
	events ports.EventBus,
	tx ports.TxRunner,
	logger *slog.Logger,
	cfg CheckoutConfig,
) *CheckoutOrchestrator {
	return &CheckoutOrchestrator{
		carts:        carts,
		orders:       orders,
		calculator:   calculator,
		coupons:      coupons,
		reservations: reservations,
		payments:     payments,
		events:       events,
		tx:           tx,
		logger:       logger,
		cfg:          cfg,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the orchestrator's clock, for tests.
func (o *CheckoutOrchestrator) WithClock(now func() time.Time) *CheckoutOrchestrator {
	o.now = now
	return o
}

// Checkout turns the cart into a pending order. Pricing and coupon
// validation run before inventory is touched; on any failure after the
// reservation, the reservation is undone before returning. The confirm +
// coupon commit + order create sequence runs inside one transactional
// boundary.
func (o *CheckoutOrchestrator) Checkout(ctx context.Context, cartID uuid.UUID, dest ports.Destination) (*domain.Order, error) {
	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}

	cart, err := o.carts.GetByID(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if cart.IsEmpty() {
		return nil, domain.ErrEmptyCart
	}
	if cart.IsExpired(o.now()) {
		return nil, domain.ErrCartExpired
	}
	if err := cart.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cart: %w", err)
	}

	totals, err := o.calculator.ComputeTotals(ctx, cart, dest, nil)
	if err != nil {
		return nil, err
	}

	var applied *domain.AppliedDiscount
	if cart.CouponCode != "" {
		applied, err = o.coupons.Validate(ctx, cart.CouponCode, cart, totals.Subtotal, totals.Shipping)
		if err != nil {
			return nil, err
		}
		totals, err = o.calculator.ComputeTotals(ctx, cart, dest, applied)
		if err != nil {
			return nil, err
		}
	}

	order := domain.NewOrder(cart, totals, o.now())

	lines := make([]domain.ReservationLine, 0, len(cart.Items))
	for _, item := range cart.Items {
		lines = append(lines, domain.ReservationLine{VariantID: item.VariantID, Quantity: item.Quantity})
	}

	reservation, err := o.reservations.Reserve(ctx, order.ID, lines)
	if err != nil {
		return nil, err
	}

	commitErr := o.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := o.reservations.Confirm(ctx, reservation.ID); err != nil {
			return fmt.Errorf("confirm reservation: %w", err)
		}
		if applied != nil {
			if err := o.coupons.Commit(ctx, applied.Code, cart.UserID, order.ID, applied.Amount); err != nil {
				return fmt.Errorf("commit coupon: %w", err)
			}
		}
		if err := o.orders.Create(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		if err := o.carts.MarkConverted(ctx, cart.ID); err != nil {
			return fmt.Errorf("convert cart: %w", err)
		}
		return nil
	})
	if commitErr != nil {
		// The checkout deadline may already be gone; the rollback runs on
		// its own budget.
		abortCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if abortErr := o.reservations.Abort(abortCtx, reservation.ID); abortErr != nil {
			// The expiry sweep reclaims whatever this leaves behind.
			o.logger.ErrorContext(abortCtx, "failed to abort reservation after commit failure",
				"reservation_id", reservation.ID,
				"error", abortErr,
			)
		}
		return nil, commitErr
	}

	if err := o.events.PublishOrderCreated(ctx, order.ID); err != nil {
		o.logger.WarnContext(ctx, "order created but event publish failed",
			"order_id", order.ID,
			"error", err,
		)
	}
	return order, nil
}

// SubmitForPayment moves a pending order to awaiting_payment.
func (o *CheckoutOrchestrator) SubmitForPayment(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	return o.saveTransition(ctx, orderID, func(order *domain.Order) error {
		return order.SubmitForPayment("checkout", o.now())
	})
}

// Pay records a payment authorization from the external collaborator and
// marks the order paid. The order stays in its pre-call state if the
// collaborator fails.
func (o *CheckoutOrchestrator) Pay(ctx context.Context, orderID uuid.UUID, paymentToken string) (*domain.Order, error) {
	order, err := o.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.State.CanTransitionTo(domain.StatePaid) {
		return nil, &domain.InvalidTransitionError{From: order.State, To: domain.StatePaid}
	}

	paymentRef, err := o.payments.Authorize(ctx, order, paymentToken)
	if err != nil {
		return nil, &domain.ExternalError{Collaborator: "payment", Err: err}
	}

	updated, err := o.saveTransition(ctx, orderID, func(order *domain.Order) error {
		return order.MarkPaid(paymentRef, "payment", o.now())
	})
	if err != nil {
		return nil, err
	}

	if err := o.events.PublishOrderPaid(ctx, orderID); err != nil {
		o.logger.WarnContext(ctx, "order paid but event publish failed", "order_id", orderID, "error", err)
	}
	return updated, nil
}

// StartFulfillment moves a paid order into fulfillment.
func (o *CheckoutOrchestrator) StartFulfillment(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	return o.saveTransition(ctx, orderID, func(order *domain.Order) error {
		return order.StartFulfillment("warehouse", o.now())
	})
}

// Ship records the carrier tracking reference supplied by the fulfillment
// collaborator and drains the shipped quantities from reserved stock.
func (o *CheckoutOrchestrator) Ship(ctx context.Context, orderID uuid.UUID, trackingRef string) (*domain.Order, error) {
	updated, err := o.saveTransition(ctx, orderID, func(order *domain.Order) error {
		return order.MarkShipped(trackingRef, "fulfillment", o.now())
	})
	if err != nil {
		return nil, err
	}

	if err := o.reservations.CommitShipment(ctx, orderLines(updated)); err != nil {
		o.logger.ErrorContext(ctx, "shipment saved but reserved stock not drained",
			"order_id", orderID,
			"error", err,
		)
	}
	return updated, nil
}

// Deliver completes the success path.
func (o *CheckoutOrchestrator) Deliver(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	return o.saveTransition(ctx, orderID, func(order *domain.Order) error {
		return order.MarkDelivered("fulfillment", o.now())
	})
}

// Cancel cancels an order, returning its quantities to available stock and,
// when the order was paid, requesting a refund from the payment
// collaborator before the transition is saved.
func (o *CheckoutOrchestrator) Cancel(ctx context.Context, orderID uuid.UUID, actor, reason string) (*domain.Order, error) {
	order, err := o.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.State.CanTransitionTo(domain.StateCancelled) {
		return nil, &domain.InvalidTransitionError{From: order.State, To: domain.StateCancelled}
	}

	if order.WasPaid() {
		if _, err := o.payments.Refund(ctx, order, order.Totals.GrandTotal); err != nil {
			return nil, &domain.ExternalError{Collaborator: "payment", Err: err}
		}
	}

	if err := o.reservations.Restock(ctx, orderLines(order)); err != nil {
		return nil, fmt.Errorf("restock cancelled order: %w", err)
	}

	updated, err := o.saveTransition(ctx, orderID, func(order *domain.Order) error {
		return order.Cancel(actor, reason, o.now())
	})
	if err != nil {
		return nil, err
	}

	if err := o.events.PublishOrderCancelled(ctx, orderID, reason); err != nil {
		o.logger.WarnContext(ctx, "order cancelled but event publish failed", "order_id", orderID, "error", err)
	}
	return updated, nil
}

// Refund refunds a paid-or-later order in full through the payment
// collaborator and moves it to refunded. An order that never shipped still
// holds its confirmed reservation, so its quantities go back to available
// stock; a shipped order's quantities were already drained at shipment.
func (o *CheckoutOrchestrator) Refund(ctx context.Context, orderID uuid.UUID, actor, reason string) (*domain.Order, error) {
	order, err := o.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.State.CanTransitionTo(domain.StateRefunded) {
		return nil, &domain.InvalidTransitionError{From: order.State, To: domain.StateRefunded}
	}

	if _, err := o.payments.Refund(ctx, order, order.Totals.GrandTotal); err != nil {
		return nil, &domain.ExternalError{Collaborator: "payment", Err: err}
	}

	if !order.WasShipped() {
		if err := o.reservations.Restock(ctx, orderLines(order)); err != nil {
			return nil, fmt.Errorf("restock refunded order: %w", err)
		}
	}

	updated, err := o.saveTransition(ctx, orderID, func(order *domain.Order) error {
		return order.Refund(actor, reason, o.now())
	})
	if err != nil {
		return nil, err
	}

	if err := o.events.PublishOrderRefunded(ctx, orderID); err != nil {
		o.logger.WarnContext(ctx, "order refunded but event publish failed", "order_id", orderID, "error", err)
	}
	return updated, nil
}

// RefundAmount exposes partial refunds for callers that need them; the
// order state is left untouched below a full refund.
func (o *CheckoutOrchestrator) RefundAmount(ctx context.Context, orderID uuid.UUID, amount money.Money) (string, error) {
	order, err := o.orders.GetByID(ctx, orderID)
	if err != nil {
		return "", err
	}
	ref, err := o.payments.Refund(ctx, order, amount)
	if err != nil {
		return "", &domain.ExternalError{Collaborator: "payment", Err: err}
	}
	return ref, nil
}

// saveTransition loads the order, applies the domain transition, and
// persists it with a version check. A concurrent transition surfaces as
// domain.ErrVersionConflict; the caller re-reads and retries if it still
// wants the change.
func (o *CheckoutOrchestrator) saveTransition(
	ctx context.Context,
	orderID uuid.UUID,
	apply func(*domain.Order) error,
) (*domain.Order, error) {
	order, err := o.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	expected := order.Version
	if err := apply(order); err != nil {
		return nil, err
	}
	order.Version = expected + 1

	if err := o.orders.SaveTransition(ctx, order, expected); err != nil {
		return nil, err
	}
	return order, nil
}

func orderLines(order *domain.Order) []domain.ReservationLine {
	lines := make([]domain.ReservationLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, domain.ReservationLine{VariantID: item.VariantID, Quantity: item.Quantity})
	}
	return lines
}
