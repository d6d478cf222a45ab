package app_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shopkit/checkout/internal/checkout/adapters/memory"
	"github.com/shopkit/checkout/internal/checkout/app"
	"github.com/shopkit/checkout/internal/checkout/domain"
	"github.com/shopkit/checkout/internal/checkout/ports"
	"github.com/shopkit/checkout/internal/money"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubCatalog serves prices and stock hints from maps.
type stubCatalog struct {
	mu     sync.Mutex
	prices map[uuid.UUID]money.Money
	stock  map[uuid.UUID]int
}

func newStubCatalog() *stubCatalog {
	return &stubCatalog{
		prices: make(map[uuid.UUID]money.Money),
		stock:  make(map[uuid.UUID]int),
	}
}

func (c *stubCatalog) SetPrice(variantID uuid.UUID, price money.Money) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[variantID] = price
}

func (c *stubCatalog) CurrentPrice(_ context.Context, variantID uuid.UUID) (money.Money, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	price, ok := c.prices[variantID]
	if !ok {
		return money.Money{}, fmt.Errorf("variant %s not in catalog", variantID)
	}
	return price, nil
}

func (c *stubCatalog) CurrentStock(_ context.Context, variantID uuid.UUID) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stock[variantID], nil
}

// stubTaxes returns one flat rate for every destination.
type stubTaxes struct {
	rate decimal.Decimal
	err  error
}

func (t *stubTaxes) RateFor(context.Context, ports.Destination, []domain.CartItem) (decimal.Decimal, error) {
	return t.rate, t.err
}

// stubShipping returns one flat cost for every shipment.
type stubShipping struct {
	cost money.Money
	err  error
}

func (s *stubShipping) Cost(context.Context, int, ports.Destination) (money.Money, error) {
	return s.cost, s.err
}

// stubPayments records authorize and refund calls.
type stubPayments struct {
	mu           sync.Mutex
	authorizeErr error
	refundErr    error
	authorized   int
	refunded     []money.Money
}

func (p *stubPayments) Authorize(_ context.Context, _ *domain.Order, _ string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.authorizeErr != nil {
		return "", p.authorizeErr
	}
	p.authorized++
	return fmt.Sprintf("pay-%d", p.authorized), nil
}

func (p *stubPayments) Refund(_ context.Context, _ *domain.Order, amount money.Money) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.refundErr != nil {
		return "", p.refundErr
	}
	p.refunded = append(p.refunded, amount)
	return fmt.Sprintf("ref-%d", len(p.refunded)), nil
}

// stubEvents counts published events.
type stubEvents struct {
	mu                                 sync.Mutex
	created, paid, cancelled, refunded int
	publishErr                         error
}

func (e *stubEvents) PublishOrderCreated(context.Context, uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.publishErr != nil {
		return e.publishErr
	}
	e.created++
	return nil
}

func (e *stubEvents) PublishOrderPaid(context.Context, uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paid++
	return nil
}

func (e *stubEvents) PublishOrderCancelled(context.Context, uuid.UUID, string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelled++
	return nil
}

func (e *stubEvents) PublishOrderRefunded(context.Context, uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refunded++
	return nil
}

// failingOrders wraps an order repository so Create fails on demand.
type failingOrders struct {
	ports.OrderRepository
	createErr error
}

func (f *failingOrders) Create(ctx context.Context, order *domain.Order) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.OrderRepository.Create(ctx, order)
}

var errCreateFailed = errors.New("order insert failed")

// fixture wires the full checkout stack against in-memory stores.
type fixture struct {
	carts        *memory.CartRepository
	orders       *memory.OrderRepository
	coupons      *memory.CouponStore
	inventory    *memory.InventoryStore
	reservations *memory.ReservationStore
	catalog      *stubCatalog
	taxes        *stubTaxes
	shipping     *stubShipping
	payments     *stubPayments
	events       *stubEvents

	calculator   *app.CartCalculator
	couponEngine *app.CouponEngine
	reserver     *app.InventoryReservationManager
	orchestrator *app.CheckoutOrchestrator

	now time.Time
}

func newFixture() *fixture {
	f := &fixture{
		carts:        memory.NewCartRepository(),
		orders:       memory.NewOrderRepository(),
		coupons:      memory.NewCouponStore(),
		inventory:    memory.NewInventoryStore(),
		reservations: memory.NewReservationStore(),
		catalog:      newStubCatalog(),
		taxes:        &stubTaxes{rate: decimal.RequireFromString("0.08")},
		shipping:     &stubShipping{cost: money.MustParse("5.00", "USD")},
		payments:     &stubPayments{},
		events:       &stubEvents{},
		now:          time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC),
	}

	clock := func() time.Time { return f.now }
	logger := discardLogger()

	f.calculator = app.NewCartCalculator(f.catalog, f.taxes, f.shipping, logger, app.CalculatorConfig{
		Currency:        "USD",
		StalenessWindow: 15 * time.Minute,
		PriceTolerance:  money.Zero("USD"),
	}).WithClock(clock)

	f.couponEngine = app.NewCouponEngine(f.coupons, logger, 5).WithClock(clock)

	f.reserver = app.NewInventoryReservationManager(f.inventory, f.reservations, logger, app.ReservationConfig{
		TTL:        10 * time.Minute,
		MaxRetries: 5,
	}).WithClock(clock)

	f.buildOrchestrator(f.orders)
	return f
}

func (f *fixture) buildOrchestrator(orders ports.OrderRepository) {
	clock := func() time.Time { return f.now }
	f.orchestrator = app.NewCheckoutOrchestrator(
		f.carts,
		orders,
		f.calculator,
		f.couponEngine,
		f.reserver,
		f.payments,
		f.events,
		memory.NewTxRunner(),
		discardLogger(),
		app.CheckoutConfig{Currency: "USD", Timeout: 10 * time.Second},
	).WithClock(clock)
}

// seedCart stores a two-line cart: 2 x 10.00 footwear, 1 x 5.00 accessories.
// Subtotal 25.00 USD, weight 1280g.
func (f *fixture) seedCart(userID *uuid.UUID) *domain.Cart {
	shoes := uuid.New()
	socks := uuid.New()
	cart := &domain.Cart{
		ID:        uuid.New(),
		UserID:    userID,
		SessionID: "sess-42",
		Items: []domain.CartItem{
			{
				VariantID:   shoes,
				ProductName: "Trail Runner",
				SKU:         "TR-090",
				Category:    "footwear",
				Quantity:    2,
				UnitPrice:   money.MustParse("10.00", "USD"),
				PricedAt:    f.now,
				WeightGrams: 600,
			},
			{
				VariantID:   socks,
				ProductName: "Wool Socks",
				SKU:         "WS-001",
				Category:    "accessories",
				Quantity:    1,
				UnitPrice:   money.MustParse("5.00", "USD"),
				PricedAt:    f.now,
				WeightGrams: 80,
			},
		},
		ExpiresAt: f.now.Add(24 * time.Hour),
		UpdatedAt: f.now,
	}
	if err := f.carts.Save(context.Background(), cart); err != nil {
		panic(err)
	}

	f.catalog.SetPrice(shoes, money.MustParse("10.00", "USD"))
	f.catalog.SetPrice(socks, money.MustParse("5.00", "USD"))
	f.seedStock(shoes, 10)
	f.seedStock(socks, 10)
	return cart
}

func (f *fixture) seedStock(variantID uuid.UUID, available int) {
	err := f.inventory.Create(context.Background(), domain.InventoryRecord{
		VariantID: variantID,
		Available: available,
		Version:   1,
	})
	if err != nil {
		panic(err)
	}
}

func (f *fixture) stock(variantID uuid.UUID) domain.InventoryRecord {
	rec, err := f.inventory.Get(context.Background(), variantID)
	if err != nil {
		panic(err)
	}
	return rec
}

func (f *fixture) destination() ports.Destination {
	return ports.Destination{Country: "US", Region: "CA", PostalCode: "94107"}
}
