package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/shopkit/checkout/internal/checkout/domain"
	"github.com/shopkit/checkout/internal/checkout/ports"
)

// InventoryStore provides an in-memory inventory store with compare-and-swap
// writes, useful for local development and tests.
type InventoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]domain.InventoryRecord
}

// NewInventoryStore constructs a new in-memory inventory store.
func NewInventoryStore() *InventoryStore {
	return &InventoryStore{records: make(map[uuid.UUID]domain.InventoryRecord)}
}

// Create stores a new inventory record.
func (s *InventoryStore) Create(_ context.Context, record domain.InventoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.VariantID] = record
	return nil
}

// Get fetches the record for a variant.
func (s *InventoryStore) Get(_ context.Context, variantID uuid.UUID) (domain.InventoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[variantID]
	if !ok {
		return domain.InventoryRecord{}, ports.ErrVariantNotFound
	}
	return record, nil
}

// CompareAndSwap replaces the record if the stored version matches.
func (s *InventoryStore) CompareAndSwap(_ context.Context, record domain.InventoryRecord, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[record.VariantID]
	if !ok {
		return ports.ErrVariantNotFound
	}
	if current.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	s.records[record.VariantID] = record
	return nil
}
