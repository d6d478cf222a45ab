package domain

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shopkit/checkout/internal/money"
)

// OrderState captures the lifecycle position of an order.
type OrderState string

const (
	StatePending         OrderState = "pending"
	StateAwaitingPayment OrderState = "awaiting_payment"
	StatePaid            OrderState = "paid"
	StateFulfilling      OrderState = "fulfilling"
	StateShipped         OrderState = "shipped"
	StateDelivered       OrderState = "delivered"
	StateCancelled       OrderState = "cancelled"
	StateRefunded        OrderState = "refunded"
)

// allowedTransitions is the explicit allow-list for the order state machine.
// Anything not listed here fails with InvalidTransitionError.
var allowedTransitions = map[OrderState][]OrderState{
	StatePending:         {StateAwaitingPayment, StateCancelled},
	StateAwaitingPayment: {StatePaid, StateCancelled},
	StatePaid:            {StateFulfilling, StateCancelled, StateRefunded},
	StateFulfilling:      {StateShipped, StateRefunded},
	StateShipped:         {StateDelivered, StateRefunded},
	StateDelivered:       {StateRefunded},
	StateCancelled:       {},
	StateRefunded:        {},
}

// CanTransitionTo reports whether the allow-list permits s -> to.
func (s OrderState) CanTransitionTo(to OrderState) bool {
	for _, next := range allowedTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s OrderState) IsTerminal() bool {
	return len(allowedTransitions[s]) == 0
}

// Transition is one append-only history entry. The history is the audit
// trail; the current state must be reconstructible from it by replay.
type Transition struct {
	From   OrderState `json:"from"`
	To     OrderState `json:"to"`
	At     time.Time  `json:"at"`
	Actor  string     `json:"actor"`
	Reason string     `json:"reason,omitempty"`
}

// Totals is the monetary breakdown of a priced cart or order.
type Totals struct {
	Subtotal   money.Money `json:"subtotal"`
	Discount   money.Money `json:"discount"`
	Tax        money.Money `json:"tax"`
	Shipping   money.Money `json:"shipping"`
	GrandTotal money.Money `json:"grand_total"`
}

// OrderItem is an immutable copy of a cart line plus the unit price actually
// charged. Product details are preserved for the historical record.
type OrderItem struct {
	VariantID   uuid.UUID   `json:"variant_id"`
	ProductName string      `json:"product_name"`
	SKU         string      `json:"sku"`
	Category    string      `json:"category"`
	Quantity    int         `json:"quantity"`
	UnitPrice   money.Money `json:"unit_price"`
	LineTotal   money.Money `json:"line_total"`
}

// Order is created once at checkout and thereafter append-only: state
// transitions append to history, item lines and charged prices never change.
type Order struct {
	ID          uuid.UUID    `json:"id"`
	Number      string       `json:"number"`
	UserID      *uuid.UUID   `json:"user_id,omitempty"`
	SessionID   string       `json:"session_id,omitempty"`
	Items       []OrderItem  `json:"items"`
	Totals      Totals       `json:"totals"`
	CouponCode  string       `json:"coupon_code,omitempty"`
	State       OrderState   `json:"state"`
	History     []Transition `json:"history"`
	PaymentRef  string       `json:"payment_ref,omitempty"`
	TrackingRef string       `json:"tracking_ref,omitempty"`
	Version     int64        `json:"version"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// NewOrder freezes a cart snapshot and its computed totals into a pending
// order with an opening history entry.
func NewOrder(cart *Cart, totals Totals, now time.Time) *Order {
	items := make([]OrderItem, 0, len(cart.Items))
	for _, line := range cart.Items {
		items = append(items, OrderItem{
			VariantID:   line.VariantID,
			ProductName: line.ProductName,
			SKU:         line.SKU,
			Category:    line.Category,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			LineTotal:   line.LineTotal(),
		})
	}

	return &Order{
		ID:         uuid.New(),
		Number:     GenerateOrderNumber(now),
		UserID:     cart.UserID,
		SessionID:  cart.SessionID,
		Items:      items,
		Totals:     totals,
		CouponCode: cart.CouponCode,
		State:      StatePending,
		History: []Transition{
			{From: StatePending, To: StatePending, At: now, Actor: "checkout", Reason: "order created"},
		},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// GenerateOrderNumber produces a human-readable order number of the form
// ORD-YYYYMMDD-XXXXXX.
func GenerateOrderNumber(now time.Time) string {
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	suffix := binary.BigEndian.Uint32(buf[:]) % 1_000_000
	return fmt.Sprintf("ORD-%s-%06d", now.Format("20060102"), suffix)
}

func (o *Order) transition(to OrderState, actor, reason string, now time.Time) error {
	if !o.State.CanTransitionTo(to) {
		return &InvalidTransitionError{From: o.State, To: to}
	}
	o.History = append(o.History, Transition{
		From:   o.State,
		To:     to,
		At:     now,
		Actor:  actor,
		Reason: reason,
	})
	o.State = to
	o.UpdatedAt = now
	return nil
}

// SubmitForPayment moves a pending order to awaiting_payment.
func (o *Order) SubmitForPayment(actor string, now time.Time) error {
	return o.transition(StateAwaitingPayment, actor, "submitted for payment", now)
}

// MarkPaid records the payment authorization outcome. A non-empty payment
// reference is required.
func (o *Order) MarkPaid(paymentRef, actor string, now time.Time) error {
	if paymentRef == "" {
		return errors.New("payment reference is required to mark an order paid")
	}
	if err := o.transition(StatePaid, actor, "payment authorized", now); err != nil {
		return err
	}
	o.PaymentRef = paymentRef
	return nil
}

// StartFulfillment moves a paid order into fulfillment.
func (o *Order) StartFulfillment(actor string, now time.Time) error {
	return o.transition(StateFulfilling, actor, "fulfillment started", now)
}

// MarkShipped records the carrier tracking reference supplied by the
// fulfillment collaborator. A non-empty reference is required.
func (o *Order) MarkShipped(trackingRef, actor string, now time.Time) error {
	if trackingRef == "" {
		return errors.New("tracking reference is required to mark an order shipped")
	}
	if err := o.transition(StateShipped, actor, "handed to carrier", now); err != nil {
		return err
	}
	o.TrackingRef = trackingRef
	return nil
}

// MarkDelivered completes the success path.
func (o *Order) MarkDelivered(actor string, now time.Time) error {
	return o.transition(StateDelivered, actor, "delivery confirmed", now)
}

// Cancel moves the order to cancelled. Compensations (inventory release,
// refund request when paid) are the orchestrator's responsibility.
func (o *Order) Cancel(actor, reason string, now time.Time) error {
	return o.transition(StateCancelled, actor, reason, now)
}

// Refund moves the order to refunded.
func (o *Order) Refund(actor, reason string, now time.Time) error {
	return o.transition(StateRefunded, actor, reason, now)
}

// WasPaid reports whether the order ever passed through the paid state.
func (o *Order) WasPaid() bool {
	if o.State == StatePaid {
		return true
	}
	for _, tr := range o.History {
		if tr.To == StatePaid {
			return true
		}
	}
	return false
}

// WasShipped reports whether the order ever passed through the shipped
// state, meaning its reserved quantities were already drained.
func (o *Order) WasShipped() bool {
	if o.State == StateShipped {
		return true
	}
	for _, tr := range o.History {
		if tr.To == StateShipped {
			return true
		}
	}
	return false
}

// TotalQuantity sums quantities across item lines.
func (o *Order) TotalQuantity() int {
	var n int
	for _, item := range o.Items {
		n += item.Quantity
	}
	return n
}

// RecomputeSubtotal re-derives the subtotal from item lines for audit and
// display. It never alters what was charged.
func (o *Order) RecomputeSubtotal() (money.Money, error) {
	total := money.Zero(o.Totals.Subtotal.Currency())
	for _, item := range o.Items {
		var err error
		total, err = total.Add(item.LineTotal)
		if err != nil {
			return money.Money{}, err
		}
	}
	return total, nil
}

// ReplayState reconstructs the current state from a transition history.
// It fails if the history is empty or contains an illegal transition.
func ReplayState(history []Transition) (OrderState, error) {
	if len(history) == 0 {
		return "", errors.New("empty transition history")
	}
	state := history[0].To
	for _, tr := range history[1:] {
		if tr.From != state {
			return "", fmt.Errorf("history gap: at %s but transition starts from %s", state, tr.From)
		}
		if !state.CanTransitionTo(tr.To) {
			return "", &InvalidTransitionError{From: state, To: tr.To}
		}
		state = tr.To
	}
	return state, nil
}
