package revocation

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used for tests and single-node
// development setups.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// MemoryOption configures MemoryStore behavior.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewMemoryStore constructs an empty in-memory Store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Revoke(_ context.Context, tokenValue string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[fingerprint(tokenValue)] = s.now().Add(ttl)
	return nil
}

func (s *MemoryStore) IsRevoked(_ context.Context, tokenValue string) bool {
	key := fingerprint(tokenValue)
	s.mu.Lock()
	defer s.mu.Unlock()
	expiry, ok := s.entries[key]
	if !ok {
		return false
	}
	if s.now().After(expiry) {
		delete(s.entries, key)
		return false
	}
	return true
}

func (s *MemoryStore) Close() error { return nil }

// Len reports the number of live entries, expiring stale ones first.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for key, expiry := range s.entries {
		if now.After(expiry) {
			delete(s.entries, key)
		}
	}
	return len(s.entries)
}
