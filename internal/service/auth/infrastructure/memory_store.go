package infrastructure

import (
	"context"
	"sync"
	"time"

	"atelier/internal/service/auth/domain"
)

// MemorySessionStore mirrors the Redis store semantics for tests and local
// runs without a cache.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*domain.Session)}
}

func (m *MemorySessionStore) Put(_ context.Context, s *domain.Session, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *s
	m.sessions[s.ID] = &clone
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	clone := *s
	return &clone, nil
}

func (m *MemorySessionStore) Revoke(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.Revoked = true
	}
	return nil
}

func (m *MemorySessionStore) Rotate(_ context.Context, oldID string, next *domain.Session, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.sessions[oldID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if old.Revoked {
		return domain.ErrRevoked
	}
	old.Revoked = true
	clone := *next
	m.sessions[next.ID] = &clone
	return nil
}
