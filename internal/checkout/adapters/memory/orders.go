package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/shopkit/checkout/internal/checkout/domain"
	"github.com/shopkit/checkout/internal/checkout/ports"
)

// OrderRepository provides an in-memory order store with version-checked
// transition writes, useful for local development and tests.
type OrderRepository struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]domain.Order
}

// NewOrderRepository constructs a new in-memory order repository.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{orders: make(map[uuid.UUID]domain.Order)}
}

// Create stores a new order.
func (r *OrderRepository) Create(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[order.ID] = cloneOrder(*order)
	return nil
}

// GetByID fetches an order by identifier.
func (r *OrderRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, ports.ErrOrderNotFound
	}
	clone := cloneOrder(order)
	return &clone, nil
}

// List returns orders respecting the provided filter. Pagination is 1-based.
func (r *OrderRepository) List(_ context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Order
	for _, order := range r.orders {
		if filter.State != nil && order.State != *filter.State {
			continue
		}
		if filter.UserID != nil && (order.UserID == nil || *order.UserID != *filter.UserID) {
			continue
		}
		result = append(result, cloneOrder(order))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	start := (page - 1) * pageSize
	if start >= len(result) {
		return []domain.Order{}, nil
	}

	end := start + pageSize
	if end > len(result) {
		end = len(result)
	}
	return result[start:end], nil
}

// SaveTransition replaces the order if the stored version matches.
func (r *OrderRepository) SaveTransition(_ context.Context, order *domain.Order, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.orders[order.ID]
	if !ok {
		return ports.ErrOrderNotFound
	}
	if current.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	r.orders[order.ID] = cloneOrder(*order)
	return nil
}

func cloneOrder(order domain.Order) domain.Order {
	clone := order
	clone.Items = make([]domain.OrderItem, len(order.Items))
	copy(clone.Items, order.Items)
	clone.History = make([]domain.Transition, len(order.History))
	copy(clone.History, order.History)
	if order.UserID != nil {
		userID := *order.UserID
		clone.UserID = &userID
	}
	return clone
}
