package progress

import (
	"context"
	"sync"

	"hatewatch/internal/models"
)

// MemoryStore is an in-process Store. Entries live until the process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]models.Progress
	latest  string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]models.Progress)}
}

func (s *MemoryStore) Save(_ context.Context, p models.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[p.BatchID] = p
	return nil
}

func (s *MemoryStore) Get(_ context.Context, batchID string) (models.Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.entries[batchID]
	if !ok {
		return models.Progress{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) SetLatest(_ context.Context, batchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = batchID
	return nil
}

func (s *MemoryStore) Latest(_ context.Context) (models.Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == "" {
		return models.IdleProgress(), nil
	}
	p, ok := s.entries[s.latest]
	if !ok {
		return models.IdleProgress(), nil
	}
	return p, nil
}
