package history

import (
	"context"
	"sync"
)

// MemoryStore keeps the encoded history in memory.
type MemoryStore struct {
	mu    sync.Mutex
	raw   []byte
	saves int
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// SetRaw replaces the stored bytes verbatim.
func (m *MemoryStore) SetRaw(raw []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raw = append([]byte(nil), raw...)
}

// Raw returns the stored bytes
func (m *MemoryStore) Raw() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.raw...)
}

// Saves returns how many times Save succeeded
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Load implements Store
func (m *MemoryStore) Load(context.Context) ([]Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.raw == nil {
		return nil, ErrNotFound
	}
	return Decode(m.raw)
}

// Save implements Store
func (m *MemoryStore) Save(_ context.Context, turns []Turn) error {
	raw, err := Encode(turns)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raw = raw
	m.saves++
	return nil
}

// Close implements Store
func (m *MemoryStore) Close() error { return nil }
