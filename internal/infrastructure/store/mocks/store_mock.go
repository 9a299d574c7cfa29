package mocks

import (
	"context"
	"sync"

	"github.com/example/btc-guess/internal/infrastructure/store"
)

// MockStore is a recording Store backed by an in-memory store. Errors can be
// injected per operation.
type MockStore struct {
	mu      sync.Mutex
	backing *store.MemoryStore

	// For tracking calls in tests
	PutCalls    []PutCall
	GetCalls    []GetCall
	UpdateCalls []UpdateCall
	DeleteCalls []DeleteCall
	ScanCalls   []ScanCall

	PutErr    error
	GetErr    error
	UpdateErr error
	DeleteErr error
	ScanErr   error

	// UpdateCallback, when set, replaces the backing update
	UpdateCallback func(ctx context.Context, table, id string, m store.Mutation) (store.Item, error)
}

// PutCall records parameters passed to Put
type PutCall struct {
	Table string
	Item  store.Item
}

// GetCall records parameters passed to Get
type GetCall struct {
	Table string
	ID    string
}

// UpdateCall records parameters passed to Update
type UpdateCall struct {
	Table    string
	ID       string
	Mutation store.Mutation
}

// DeleteCall records parameters passed to Delete
type DeleteCall struct {
	Table string
	ID    string
}

// ScanCall records parameters passed to Scan
type ScanCall struct {
	Table  string
	Filter store.Filter
}

// NewMockStore creates a new MockStore
func NewMockStore() *MockStore {
	return &MockStore{
		backing: store.NewMemoryStore(),
	}
}

// Put records the call and stores the item
func (m *MockStore) Put(ctx context.Context, table string, item store.Item) error {
	m.mu.Lock()
	m.PutCalls = append(m.PutCalls, PutCall{Table: table, Item: item})
	err := m.PutErr
	m.mu.Unlock()

	if err != nil {
		return err
	}
	return m.backing.Put(ctx, table, item)
}

// Get records the call and reads the item
func (m *MockStore) Get(ctx context.Context, table, id string) (store.Item, error) {
	m.mu.Lock()
	m.GetCalls = append(m.GetCalls, GetCall{Table: table, ID: id})
	err := m.GetErr
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return m.backing.Get(ctx, table, id)
}

// Update records the call and applies the mutation
func (m *MockStore) Update(ctx context.Context, table, id string, mut store.Mutation) (store.Item, error) {
	m.mu.Lock()
	m.UpdateCalls = append(m.UpdateCalls, UpdateCall{Table: table, ID: id, Mutation: mut})
	err := m.UpdateErr
	callback := m.UpdateCallback
	m.mu.Unlock()

	if callback != nil {
		return callback(ctx, table, id, mut)
	}
	if err != nil {
		return nil, err
	}
	return m.backing.Update(ctx, table, id, mut)
}

// Delete records the call and removes the item
func (m *MockStore) Delete(ctx context.Context, table, id string) error {
	m.mu.Lock()
	m.DeleteCalls = append(m.DeleteCalls, DeleteCall{Table: table, ID: id})
	err := m.DeleteErr
	m.mu.Unlock()

	if err != nil {
		return err
	}
	return m.backing.Delete(ctx, table, id)
}

// Scan records the call and filters the stored items
func (m *MockStore) Scan(ctx context.Context, table string, filter store.Filter) ([]store.Item, error) {
	m.mu.Lock()
	m.ScanCalls = append(m.ScanCalls, ScanCall{Table: table, Filter: filter})
	err := m.ScanErr
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return m.backing.Scan(ctx, table, filter)
}

// Backing exposes the underlying store for seeding and inspection without
// recording calls
func (m *MockStore) Backing() *store.MemoryStore {
	return m.backing
}

// ScanCount returns the number of Scan calls made against table
func (m *MockStore) ScanCount(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, c := range m.ScanCalls {
		if c.Table == table {
			n++
		}
	}
	return n
}

// Reset clears all data and recorded calls
func (m *MockStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.backing = store.NewMemoryStore()
	m.PutCalls = nil
	m.GetCalls = nil
	m.UpdateCalls = nil
	m.DeleteCalls = nil
	m.ScanCalls = nil
}
