// Package dedupe guards the trigger matcher against double-firing: upstream
// events are delivered at least once, so run creation is keyed on
// event id + workflow id and claimed at most once.
package dedupe

import (
	"context"
	"sync"
	"time"
)

// Store records idempotency keys. Claim returns true exactly once per key
// within the retention window.
type Store interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Close() error
}

// MemoryStore is a process-local Store for tests and single-node setups.
type MemoryStore struct {
	mu   sync.Mutex
	keys map[string]time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]time.Time)}
}

func (s *MemoryStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if expiry, exists := s.keys[key]; exists && expiry.After(now) {
		return false, nil
	}

	s.keys[key] = now.Add(ttl)

	return true, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
