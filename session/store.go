package session

import (
	"context"
	"sync"
)

// TokenStore persists the current access token as a single string entry.
// Remove on a missing entry is not an error.
type TokenStore interface {
	Get(ctx context.Context) (token string, found bool, err error)
	Set(ctx context.Context, token string) error
	Remove(ctx context.Context) error
}

// MemoryStore keeps the token in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
	found bool
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get(context.Context) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.found, nil
}

func (s *MemoryStore) Set(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.found = true
	return nil
}

func (s *MemoryStore) Remove(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.found = false
	return nil
}
