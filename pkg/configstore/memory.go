package configstore

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
)

// MemoryStore keeps fields in process memory. Contents are lost on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	fields map[string]json.RawMessage
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{fields: make(map[string]json.RawMessage)}
}

// GetField implements Store.
func (s *MemoryStore) GetField(_ context.Context, name string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	v, ok := s.fields[name]
	if !ok {
		return nil, nil
	}
	return slices.Clone(v), nil
}

// SetField implements Store.
func (s *MemoryStore) SetField(_ context.Context, name string, value json.RawMessage) error {
	if err := validValue("memory", value); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.fields[name] = slices.Clone(value)
	return nil
}

// Ping implements Store.
func (s *MemoryStore) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
