package auth

import (
	"context"
	"sync"
)

var _ IdentityStore = (*MemoryIdentityStore)(nil)

// MemoryIdentityStore keeps identities in process memory. It backs
// single-node development setups and tests.
type MemoryIdentityStore struct {
	mu      sync.Mutex
	byEmail map[string]Identity
	byID    map[string]Identity
}

func NewMemoryIdentityStore() *MemoryIdentityStore {
	return &MemoryIdentityStore{
		byEmail: make(map[string]Identity),
		byID:    make(map[string]Identity),
	}
}

func (s *MemoryIdentityStore) FindByEmail(_ context.Context, email string) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	return &identity, nil
}

func (s *MemoryIdentityStore) FindByID(_ context.Context, id string) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &identity, nil
}

func (s *MemoryIdentityStore) Save(_ context.Context, identity *Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[identity.Email]; ok {
		return ErrDuplicateIdentity
	}
	s.byEmail[identity.Email] = *identity
	s.byID[identity.ID] = *identity
	return nil
}
