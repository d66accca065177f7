package store

import (
	"context"
	"sync"

	"github.com/context-assistant/three.js/internal/types"
)

// MemoryStore keeps the window for the life of the process.
type MemoryStore struct {
	mu       sync.RWMutex
	capacity int
	window   []types.Message
}

// NewMemoryStore creates a store holding at most capacity messages (0 = unbounded).
func NewMemoryStore(capacity int) *MemoryStore {
	return &MemoryStore{capacity: capacity}
}

// Load returns a copy of the stored window.
func (s *MemoryStore) Load(ctx context.Context) ([]types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.Message(nil), s.window...), nil
}

// Save replaces the stored window.
func (s *MemoryStore) Save(ctx context.Context, window []types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window = trim(window, s.capacity)
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
