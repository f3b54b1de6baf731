package credentials

import (
	"context"
	"sync"
)

// MemoryStore keeps the pair in process memory. It does not survive restarts.
type MemoryStore struct {
	mu   sync.RWMutex
	pair *Pair
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Get(_ context.Context) (*Pair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.pair == nil {
		return nil, ErrNotFound
	}
	p := *m.pair
	return &p, nil
}

func (m *MemoryStore) Save(_ context.Context, pair Pair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pair = &pair
	return nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pair = nil
	return nil
}

func (m *MemoryStore) Name() string {
	return "MemoryStore"
}
