package store

import (
	"context"
	"sync"

	"github.com/phrazzld/resource-api/internal/domain"
)

// Compile-time check that MemoryAdapter satisfies Adapter.
var _ Adapter = (*MemoryAdapter)(nil)

// MemoryAdapter keeps collections in process memory. It honours the same
// versioning contract as the durable adapters and is used by tests and by
// the "memory" storage driver.
type MemoryAdapter struct {
	mu          sync.Mutex
	collections map[string][]domain.Record
}

// NewMemoryAdapter creates an empty adapter, optionally pre-populated with
// seed records per kind.
func NewMemoryAdapter(seeds map[string][]domain.Record) *MemoryAdapter {
	m := &MemoryAdapter{collections: make(map[string][]domain.Record)}
	for kind, records := range seeds {
		m.collections[kind] = cloneAll(records)
	}
	return m
}

// Load implements Adapter.
func (m *MemoryAdapter) Load(_ context.Context, kind string) (*Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return NewCollection(kind, cloneAll(m.collections[kind])), nil
}

// Save implements Adapter.
func (m *MemoryAdapter) Save(_ context.Context, c *Collection) error {
	changes := c.Changes()
	if changes.Empty() {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current := NewCollection(c.Kind, cloneAll(m.collections[c.Kind]))
	if err := current.Apply(changes); err != nil {
		return err
	}
	m.collections[c.Kind] = current.Records
	return nil
}

// Close implements Adapter.
func (m *MemoryAdapter) Close() error {
	return nil
}

func cloneAll(records []domain.Record) []domain.Record {
	out := make([]domain.Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}
