package ports

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/shopkit/checkout/internal/checkout/domain"
)

var (
	// ErrCartNotFound is returned when the requested cart does not exist.
	ErrCartNotFound = errors.New("cart not found")
	// ErrOrderNotFound is returned when the requested order does not exist.
	ErrOrderNotFound = errors.New("order not found")
	// ErrVariantNotFound is returned when no inventory record exists for a variant.
	ErrVariantNotFound = errors.New("inventory record not found")
	// ErrReservationNotFound is returned when the requested reservation does not exist.
	ErrReservationNotFound = errors.New("reservation not found")
)

// CartRepository exposes cart persistence required by the engine. Carts are
// mutable until checkout converts them.
type CartRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Cart, error)
	Save(ctx context.Context, cart *domain.Cart) error
	MarkConverted(ctx context.Context, id uuid.UUID) error
}

// CouponStore persists coupons and their usage counters. GetByCode returns
// (nil, nil) for an unknown code. IncrementUsage is a compare-and-swap
// write: it bumps the usage counter and version only when the stored
// version matches expectedVersion, returning domain.ErrVersionConflict
// otherwise.
type CouponStore interface {
	GetByCode(ctx context.Context, code string) (*domain.Coupon, error)
	IncrementUsage(ctx context.Context, code string, expectedVersion int64) error
	UserUsageCount(ctx context.Context, code string, userID uuid.UUID) (int, error)
	RecordUsage(ctx context.Context, code string, userID *uuid.UUID, orderID uuid.UUID, amount int64) error
}

// InventoryStore persists versioned inventory records. CompareAndSwap writes
// the given record only when the stored version matches expectedVersion,
// returning domain.ErrVersionConflict otherwise. There is no unconditional
// write: every mutation goes through the version check.
type InventoryStore interface {
	Get(ctx context.Context, variantID uuid.UUID) (domain.InventoryRecord, error)
	CompareAndSwap(ctx context.Context, record domain.InventoryRecord, expectedVersion int64) error
	Create(ctx context.Context, record domain.InventoryRecord) error
}

// ReservationStore persists reservations. FindExpired returns active
// reservations whose TTL lapsed before now, feeding the expiry sweep.
type ReservationStore interface {
	Create(ctx context.Context, reservation *domain.Reservation) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Reservation, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ReservationStatus) error
	FindExpired(ctx context.Context, now time.Time) ([]domain.Reservation, error)
}

// OrderRepository persists orders. Create writes the order and its opening
// history entry; SaveTransition appends the newest history entry and the new
// state only when the stored version matches expectedVersion, returning
// domain.ErrVersionConflict otherwise. History rows are never updated or
// deleted.
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Order, error)
	SaveTransition(ctx context.Context, order *domain.Order, expectedVersion int64) error
}

// ListFilter narrows order list queries by state and pagination.
type ListFilter struct {
	State    *domain.OrderState
	UserID   *uuid.UUID
	Page     int
	PageSize int
}

// TxRunner brackets a function in one transactional boundary. Stores that
// support it read the active transaction from the context, so the confirm +
// coupon commit + order create sequence is durably all-or-nothing.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
