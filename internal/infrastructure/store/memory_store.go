package store

import (
	"context"
	"maps"
	"sync"
)

// MemoryStore is an in-memory Store used for local development and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]Item // table -> id -> item
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]map[string]Item),
	}
}

// Put stores an item, replacing any item with the same id
func (s *MemoryStore) Put(_ context.Context, table string, item Item) error {
	id, err := ItemID(item)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data[table] == nil {
		s.data[table] = make(map[string]Item)
	}
	s.data[table][id] = maps.Clone(item)
	return nil
}

// Get retrieves an item by id
func (s *MemoryStore) Get(_ context.Context, table, id string) (Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.data[table][id]
	if !ok {
		return nil, nil
	}
	return maps.Clone(item), nil
}

// Update applies a mutation atomically with respect to other callers
func (s *MemoryStore) Update(_ context.Context, table, id string, m Mutation) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := applyMutation(id, s.data[table][id], m)
	if err != nil {
		return nil, err
	}

	if s.data[table] == nil {
		s.data[table] = make(map[string]Item)
	}
	s.data[table][id] = next
	return maps.Clone(next), nil
}

// Delete removes an item; deleting an absent item is not an error
func (s *MemoryStore) Delete(_ context.Context, table, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data[table] != nil {
		delete(s.data[table], id)
	}
	return nil
}

// Scan returns all items in a table that match the filter
func (s *MemoryStore) Scan(_ context.Context, table string, filter Filter) ([]Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]Item, 0, len(s.data[table]))
	for _, item := range s.data[table] {
		if Match(filter, item) {
			items = append(items, maps.Clone(item))
		}
	}
	return items, nil
}
