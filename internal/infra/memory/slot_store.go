package memory

import (
	"context"
	"sync"
)

// SlotStore is an in-memory implementation of app.SlotStore. Entries do not
// expire; slot expiry is a property of the Redis-backed store.
type SlotStore struct {
	mu    sync.Mutex
	slots map[string]string
}

func NewSlotStore() *SlotStore {
	return &SlotStore{slots: make(map[string]string)}
}

func (s *SlotStore) Claimant(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	claimant, ok := s.slots[key]
	return claimant, ok, nil
}

func (s *SlotStore) Claim(_ context.Context, key, claimant string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[key] = claimant
	return nil
}

func (s *SlotStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, key)
	return nil
}
