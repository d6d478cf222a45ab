package memory

import (
	"context"
	"sync"

	"github.com/shopkit/checkout/internal/checkout/ports"
)

// Store retains idempotency responses for replaying duplicate requests.
type Store struct {
	mu    sync.RWMutex
	items map[string]ports.StoredResponse
}

// NewStore creates a new in-memory idempotency store.
func NewStore() *Store {
	return &Store{items: make(map[string]ports.StoredResponse)}
}

// Reserve claims the key, inserting an unresolved placeholder. If the key is
// already present the stored response is returned instead.
func (s *Store) Reserve(_ context.Context, key string) (*ports.StoredResponse, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value, ok := s.items[key]; ok {
		copy := value
		return &copy, false, nil
	}
	s.items[key] = ports.StoredResponse{}
	return nil, true, nil
}

// Save resolves a claimed key with the response to replay.
func (s *Store) Save(_ context.Context, key string, response ports.StoredResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = response
	return nil
}

// Release frees a claimed key so the client can retry.
func (s *Store) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}
