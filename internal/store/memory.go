package store

import (
	"bytes"
	"context"
	"sync"
)

// Memory keeps the document in process memory. Used for tests and
// throwaway editor sessions.
type Memory struct {
	mu   sync.RWMutex
	data []byte
}

// NewMemory returns an empty store.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Driver() string { return "memory" }

func (m *Memory) Load(ctx context.Context) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.data == nil {
		return nil, ErrNotFound
	}
	return bytes.Clone(m.data), nil
}

func (m *Memory) Save(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = bytes.Clone(data)
	if m.data == nil {
		m.data = []byte{}
	}
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }
func (m *Memory) Close() error               { return nil }
