package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shopkit/checkout/internal/checkout/domain"
	"github.com/shopkit/checkout/internal/checkout/ports"
)

// ReservationStore provides an in-memory reservation store useful for local
// development and tests.
type ReservationStore struct {
	mu           sync.RWMutex
	reservations map[uuid.UUID]domain.Reservation
}

// NewReservationStore constructs a new in-memory reservation store.
func NewReservationStore() *ReservationStore {
	return &ReservationStore{reservations: make(map[uuid.UUID]domain.Reservation)}
}

// Create stores a new reservation.
func (s *ReservationStore) Create(_ context.Context, reservation *domain.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reservations[reservation.ID] = cloneReservation(*reservation)
	return nil
}

// GetByID fetches a reservation by identifier.
func (s *ReservationStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reservation, ok := s.reservations[id]
	if !ok {
		return nil, ports.ErrReservationNotFound
	}
	clone := cloneReservation(reservation)
	return &clone, nil
}

// UpdateStatus sets a reservation's status.
func (s *ReservationStore) UpdateStatus(_ context.Context, id uuid.UUID, status domain.ReservationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reservation, ok := s.reservations[id]
	if !ok {
		return ports.ErrReservationNotFound
	}
	reservation.Status = status
	s.reservations[id] = reservation
	return nil
}

// FindExpired returns active reservations whose TTL has passed.
func (s *ReservationStore) FindExpired(_ context.Context, now time.Time) ([]domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var expired []domain.Reservation
	for _, reservation := range s.reservations {
		if reservation.Status == domain.ReservationActive && reservation.IsExpired(now) {
			expired = append(expired, cloneReservation(reservation))
		}
	}
	return expired, nil
}

func cloneReservation(reservation domain.Reservation) domain.Reservation {
	clone := reservation
	clone.Lines = make([]domain.ReservationLine, len(reservation.Lines))
	copy(clone.Lines, reservation.Lines)
	return clone
}
