package auth

import (
	"context"
	"sync"
)

// MemoryAuthStore is the in-process default AuthStore: listVersion lives
// only as long as the runtime does, which is enough when a fresh
// SendLocalList on every (re)boot is acceptable.
type MemoryAuthStore struct {
	mu      sync.Mutex
	version int
}

func NewMemoryAuthStore() *MemoryAuthStore {
	return &MemoryAuthStore{}
}

func (s *MemoryAuthStore) SaveLocalListVersion(ctx context.Context, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = version
	return nil
}

func (s *MemoryAuthStore) LoadLocalListVersion(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version, nil
}
