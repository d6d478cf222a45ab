package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shopkit/checkout/internal/checkout/domain"
	"github.com/shopkit/checkout/internal/checkout/metrics"
	"github.com/shopkit/checkout/internal/checkout/ports"
)

// ServiceConfig carries the cart-facing tunables.
type ServiceConfig struct {
	Currency string
	CartTTL  time.Duration
}

// Service bundles the cart, checkout, and order use cases for the API layer.
type Service struct {
	carts        ports.CartRepository
	orders       ports.OrderRepository
	catalog      ports.PriceCatalog
	coupons      *CouponEngine
	calculator   *CartCalculator
	orchestrator *CheckoutOrchestrator
	checkout     Checkouter
	idemStore    ports.IdempotencyStore
	logger       *slog.Logger
	cfg          ServiceConfig
	now          func() time.Time
}

// NewService wires required dependencies. The checkout entry point is wrapped
// in tracing, metrics, and logging.
func NewService(
	carts ports.CartRepository,
	orders ports.OrderRepository,
	catalog ports.PriceCatalog,
	coupons *CouponEngine,
	calculator *CartCalculator,
	orchestrator *CheckoutOrchestrator,
	idem ports.IdempotencyStore,
	logger *slog.Logger,
	metrics *metrics.Metrics,
	cfg ServiceConfig,
) *Service {
	return &Service{
		carts:        carts,
		orders:       orders,
		catalog:      catalog,
		coupons:      coupons,
		calculator:   calculator,
		orchestrator: orchestrator,
		checkout:     NewObservableCheckout(orchestrator, logger, metrics),
		idemStore:    idem,
		logger:       logger,
		cfg:          cfg,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateCartInput captures the owner of a new cart. Exactly one of UserID and
// SessionID must be set.
type CreateCartInput struct {
	UserID    *uuid.UUID `json:"user_id,omitempty"`
	SessionID string     `json:"session_id,omitempty"`
}

// CreateCart opens an empty cart for a registered user or anonymous session.
func (s *Service) CreateCart(ctx context.Context, input CreateCartInput) (*domain.Cart, error) {
	cart := &domain.Cart{
		ID:        uuid.New(),
		UserID:    input.UserID,
		SessionID: input.SessionID,
	}
	cart.Touch(s.now(), s.cfg.CartTTL)
	if err := cart.Validate(); err != nil {
		return nil, err
	}
	if err := s.carts.Save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// GetCart retrieves a cart by ID.
func (s *Service) GetCart(ctx context.Context, id uuid.UUID) (*domain.Cart, error) {
	return s.carts.GetByID(ctx, id)
}

// AddItemInput captures payload for adding a line to a cart.
type AddItemInput struct {
	VariantID   uuid.UUID `json:"variant_id"`
	ProductName string    `json:"product_name"`
	SKU         string    `json:"sku"`
	Category    string    `json:"category"`
	Quantity    int       `json:"quantity"`
	WeightGrams int       `json:"weight_grams"`
}

// AddItem adds a line to the cart, snapshotting the current catalog price.
// Stock is checked only as a hint: a low level is logged but does not block,
// since the reservation at checkout is the authoritative gate.
func (s *Service) AddItem(ctx context.Context, cartID uuid.UUID, input AddItemInput) (*domain.Cart, error) {
	cart, err := s.carts.GetByID(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if cart.IsExpired(s.now()) {
		return nil, domain.ErrCartExpired
	}

	price, err := s.catalog.CurrentPrice(ctx, input.VariantID)
	if err != nil {
		return nil, &domain.ExternalError{Collaborator: "catalog", Err: err}
	}

	if stock, err := s.catalog.CurrentStock(ctx, input.VariantID); err == nil && stock < input.Quantity {
		s.logger.InfoContext(ctx, "adding item with low stock",
			"variant_id", input.VariantID,
			"requested", input.Quantity,
			"stock", stock,
		)
	}

	cart.UpsertItem(domain.CartItem{
		VariantID:   input.VariantID,
		ProductName: input.ProductName,
		SKU:         input.SKU,
		Category:    input.Category,
		Quantity:    input.Quantity,
		UnitPrice:   price,
		PricedAt:    s.now(),
		WeightGrams: input.WeightGrams,
	})
	cart.Touch(s.now(), s.cfg.CartTTL)

	if err := cart.Validate(); err != nil {
		return nil, err
	}
	if err := s.carts.Save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// RemoveItem drops a line from the cart.
func (s *Service) RemoveItem(ctx context.Context, cartID, variantID uuid.UUID) (*domain.Cart, error) {
	return s.mutateCart(ctx, cartID, func(cart *domain.Cart) error {
		cart.RemoveItem(variantID)
		return nil
	})
}

// SetItemQuantity updates a line's quantity; zero removes the line.
func (s *Service) SetItemQuantity(ctx context.Context, cartID, variantID uuid.UUID, quantity int) (*domain.Cart, error) {
	return s.mutateCart(ctx, cartID, func(cart *domain.Cart) error {
		return cart.SetQuantity(variantID, quantity)
	})
}

// ApplyCoupon validates a coupon against the cart's current figures and
// attaches it. A previously attached coupon is replaced. No usage slot is
// consumed here; that happens at checkout.
func (s *Service) ApplyCoupon(ctx context.Context, cartID uuid.UUID, code string, dest ports.Destination) (*domain.Cart, *domain.AppliedDiscount, error) {
	cart, err := s.carts.GetByID(ctx, cartID)
	if err != nil {
		return nil, nil, err
	}
	if cart.IsEmpty() {
		return nil, nil, domain.ErrEmptyCart
	}
	if cart.IsExpired(s.now()) {
		return nil, nil, domain.ErrCartExpired
	}

	totals, err := s.calculator.ComputeTotals(ctx, cart, dest, nil)
	if err != nil {
		return nil, nil, err
	}
	applied, err := s.coupons.Validate(ctx, code, cart, totals.Subtotal, totals.Shipping)
	if err != nil {
		return nil, nil, err
	}

	if replaced := cart.AttachCoupon(code); replaced != "" {
		s.logger.InfoContext(ctx, "replaced cart coupon", "cart_id", cartID, "old", replaced, "new", code)
	}
	cart.Touch(s.now(), s.cfg.CartTTL)

	if err := s.carts.Save(ctx, cart); err != nil {
		return nil, nil, err
	}
	return cart, applied, nil
}

// RemoveCoupon detaches the cart's coupon.
func (s *Service) RemoveCoupon(ctx context.Context, cartID uuid.UUID) (*domain.Cart, error) {
	return s.mutateCart(ctx, cartID, func(cart *domain.Cart) error {
		cart.RemoveCoupon()
		return nil
	})
}

// Quote prices the cart for a destination without reserving stock or
// consuming coupon usage. The same figures checkout would produce.
type Quote struct {
	Totals   domain.Totals           `json:"totals"`
	Discount *domain.AppliedDiscount `json:"discount,omitempty"`
}

// QuoteCart computes a price preview for the cart.
func (s *Service) QuoteCart(ctx context.Context, cartID uuid.UUID, dest ports.Destination) (*Quote, error) {
	cart, err := s.carts.GetByID(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if cart.IsEmpty() {
		return nil, domain.ErrEmptyCart
	}
	if cart.IsExpired(s.now()) {
		return nil, domain.ErrCartExpired
	}

	totals, err := s.calculator.ComputeTotals(ctx, cart, dest, nil)
	if err != nil {
		return nil, err
	}

	var applied *domain.AppliedDiscount
	if cart.CouponCode != "" {
		applied, err = s.coupons.Validate(ctx, cart.CouponCode, cart, totals.Subtotal, totals.Shipping)
		if err != nil {
			return nil, err
		}
		totals, err = s.calculator.ComputeTotals(ctx, cart, dest, applied)
		if err != nil {
			return nil, err
		}
	}
	return &Quote{Totals: totals, Discount: applied}, nil
}

// Checkout places an order from the cart.
func (s *Service) Checkout(ctx context.Context, cartID uuid.UUID, dest ports.Destination) (*domain.Order, error) {
	return s.checkout.Checkout(ctx, cartID, dest)
}

// GetOrder retrieves an order by ID.
func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return s.orders.GetByID(ctx, id)
}

// ListOrders returns orders using a filter.
func (s *Service) ListOrders(ctx context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	return s.orders.List(ctx, filter)
}

// SubmitForPayment moves a pending order to awaiting_payment.
func (s *Service) SubmitForPayment(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	return s.orchestrator.SubmitForPayment(ctx, orderID)
}

// PayOrder authorizes payment and marks the order paid.
func (s *Service) PayOrder(ctx context.Context, orderID uuid.UUID, paymentToken string) (*domain.Order, error) {
	return s.orchestrator.Pay(ctx, orderID, paymentToken)
}

// StartFulfillment moves a paid order into fulfillment.
func (s *Service) StartFulfillment(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	return s.orchestrator.StartFulfillment(ctx, orderID)
}

// ShipOrder records the tracking reference and drains reserved stock.
func (s *Service) ShipOrder(ctx context.Context, orderID uuid.UUID, trackingRef string) (*domain.Order, error) {
	return s.orchestrator.Ship(ctx, orderID, trackingRef)
}

// DeliverOrder completes the success path.
func (s *Service) DeliverOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	return s.orchestrator.Deliver(ctx, orderID)
}

// CancelOrder cancels an order, restocking it and refunding when paid.
func (s *Service) CancelOrder(ctx context.Context, orderID uuid.UUID, actor, reason string) (*domain.Order, error) {
	return s.orchestrator.Cancel(ctx, orderID, actor, reason)
}

// RefundOrder refunds a paid order in full.
func (s *Service) RefundOrder(ctx context.Context, orderID uuid.UUID, actor, reason string) (*domain.Order, error) {
	return s.orchestrator.Refund(ctx, orderID, actor, reason)
}

// ReserveIdempotencyKey atomically claims the key for this request. When the
// claim is lost, the previously stored response is returned for replay; an
// unresolved response means the original request is still in flight.
func (s *Service) ReserveIdempotencyKey(ctx context.Context, key string) (*ports.StoredResponse, bool, error) {
	return s.idemStore.Reserve(ctx, key)
}

// SaveIdempotentResponse resolves a claimed key with response details.
func (s *Service) SaveIdempotentResponse(ctx context.Context, key string, response ports.StoredResponse) error {
	return s.idemStore.Save(ctx, key, response)
}

// ReleaseIdempotencyKey frees a claimed key after a failed checkout so the
// client can retry with the same key.
func (s *Service) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	return s.idemStore.Release(ctx, key)
}

func (s *Service) mutateCart(ctx context.Context, cartID uuid.UUID, mutate func(*domain.Cart) error) (*domain.Cart, error) {
	cart, err := s.carts.GetByID(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if cart.IsExpired(s.now()) {
		return nil, domain.ErrCartExpired
	}
	if err := mutate(cart); err != nil {
		return nil, err
	}
	cart.Touch(s.now(), s.cfg.CartTTL)
	if err := s.carts.Save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}
