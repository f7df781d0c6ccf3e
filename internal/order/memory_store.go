package order

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory order store for demo/development mode.
type MemoryStore struct {
	orders map[string]*Order
	mu     sync.RWMutex
}

// NewMemoryStore creates a new in-memory order store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[string]*Order)}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MemoryStore) Put(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *o
	m.orders[o.ID] = &cp
	return nil
}
