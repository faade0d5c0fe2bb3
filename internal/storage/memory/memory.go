// Package memory implements cart.Storage in process memory.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/xenking/citricloud-cart/internal/domain/cart"
)

var _ cart.Storage = (*Storage)(nil)

type entry struct {
	value     string
	expiresAt time.Time
}

// Storage is a mutex-guarded map whose entries expire TTL after their last
// write.
type Storage struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

// New returns an empty Storage. A non-positive ttl disables expiry.
func New(ttl time.Duration) *Storage {
	return &Storage{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// GetItem returns the value for key unless it is absent or expired.
func (s *Storage) GetItem(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return "", false, nil
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

// SetItem stores value under key and restarts its TTL.
func (s *Storage) SetItem(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := entry{value: value}
	if s.ttl > 0 {
		e.expiresAt = s.now().Add(s.ttl)
	}
	s.entries[key] = e
	return nil
}

// RemoveItem deletes key.
func (s *Storage) RemoveItem(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Len returns the number of live entries.
func (s *Storage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for k, e := range s.entries {
		if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			delete(s.entries, k)
			continue
		}
		n++
	}
	return n
}
