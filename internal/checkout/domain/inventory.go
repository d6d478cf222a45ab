package domain

import (
	"time"

	"github.com/google/uuid"
)

// InventoryRecord tracks stock for a single product variant. It is shared
// mutable state: every mutation must go through a version-checked write, and
// available and reserved never go negative.
type InventoryRecord struct {
	VariantID uuid.UUID `json:"variant_id"`
	Available int       `json:"available"`
	Reserved  int       `json:"reserved"`
	Version   int64     `json:"version"`
}

// CanReserve reports whether the requested quantity is satisfiable.
func (r InventoryRecord) CanReserve(qty int) bool {
	return qty > 0 && qty <= r.Available
}

// WithReservation returns the record after moving qty from available to
// reserved, with the version bumped. Callers must have checked CanReserve.
func (r InventoryRecord) WithReservation(qty int) InventoryRecord {
	r.Available -= qty
	r.Reserved += qty
	r.Version++
	return r
}

// WithRelease returns the record after returning qty from reserved to
// available, with the version bumped.
func (r InventoryRecord) WithRelease(qty int) InventoryRecord {
	if qty > r.Reserved {
		qty = r.Reserved
	}
	r.Reserved -= qty
	r.Available += qty
	r.Version++
	return r
}

// WithShipment returns the record after draining qty from reserved once the
// goods physically leave the warehouse, with the version bumped. Available
// is untouched: the decrement already happened at reservation time.
func (r InventoryRecord) WithShipment(qty int) InventoryRecord {
	if qty > r.Reserved {
		qty = r.Reserved
	}
	r.Reserved -= qty
	r.Version++
	return r
}

// ReservationStatus is the lifecycle position of a reservation.
type ReservationStatus string

const (
	// ReservationActive holds stock pending order confirmation.
	ReservationActive ReservationStatus = "active"
	// ReservationConfirmed converted its hold into a permanent decrement.
	ReservationConfirmed ReservationStatus = "confirmed"
	// ReservationReleased returned its hold to available stock.
	ReservationReleased ReservationStatus = "released"
)

// ReservationLine is one (variant, quantity) pair held by a reservation.
type ReservationLine struct {
	VariantID uuid.UUID `json:"variant_id"`
	Quantity  int       `json:"quantity"`
}

// Reservation is a short-lived, TTL-bound hold on inventory quantities,
// owned by the checkout that created it until confirmed or released.
type Reservation struct {
	ID        uuid.UUID         `json:"id"`
	OrderID   uuid.UUID         `json:"order_id"`
	Lines     []ReservationLine `json:"lines"`
	Status    ReservationStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// NewReservation builds an active reservation for a provisional order.
func NewReservation(orderID uuid.UUID, lines []ReservationLine, now time.Time, ttl time.Duration) *Reservation {
	return &Reservation{
		ID:        uuid.New(),
		OrderID:   orderID,
		Lines:     lines,
		Status:    ReservationActive,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// IsExpired reports whether the reservation's TTL has lapsed.
func (r *Reservation) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// TotalQuantity sums quantities across lines.
func (r *Reservation) TotalQuantity() int {
	var n int
	for _, line := range r.Lines {
		n += line.Quantity
	}
	return n
}
