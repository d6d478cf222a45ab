package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/shopkit/checkout/internal/checkout/domain"
	"github.com/shopkit/checkout/internal/checkout/ports"
)

// CartRepository provides an in-memory cart store useful for local
// development and tests.
type CartRepository struct {
	mu        sync.RWMutex
	carts     map[uuid.UUID]domain.Cart
	converted map[uuid.UUID]bool
}

// NewCartRepository constructs a new in-memory cart repository.
func NewCartRepository() *CartRepository {
	return &CartRepository{
		carts:     make(map[uuid.UUID]domain.Cart),
		converted: make(map[uuid.UUID]bool),
	}
}

// GetByID fetches a cart by identifier. Converted carts are gone.
func (r *CartRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cart, ok := r.carts[id]
	if !ok || r.converted[id] {
		return nil, ports.ErrCartNotFound
	}
	clone := cloneCart(cart)
	return &clone, nil
}

// Save stores the cart, replacing any previous version.
func (r *CartRepository) Save(_ context.Context, cart *domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.converted[cart.ID] {
		return ports.ErrCartNotFound
	}
	r.carts[cart.ID] = cloneCart(*cart)
	return nil
}

// MarkConverted retires a cart once checkout succeeded.
func (r *CartRepository) MarkConverted(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.carts[id]; !ok {
		return ports.ErrCartNotFound
	}
	r.converted[id] = true
	return nil
}

func cloneCart(cart domain.Cart) domain.Cart {
	clone := cart
	clone.Items = make([]domain.CartItem, len(cart.Items))
	copy(clone.Items, cart.Items)
	if cart.UserID != nil {
		userID := *cart.UserID
		clone.UserID = &userID
	}
	return clone
}
