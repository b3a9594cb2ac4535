// Package memory holds in-memory store implementations for development
// and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// BlobStore keeps artifact bytes in-memory and returns pseudo paths.
type BlobStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewBlobStore creates an in-memory artifact store.
func NewBlobStore() *BlobStore {
	return &BlobStore{data: make(map[string][]byte)}
}

// Store keeps a copy of data under name.
func (s *BlobStore) Store(_ context.Context, name string, _ string, data []byte) (string, error) {
	if name == "" {
		return "", fmt.Errorf("file name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[name] = append([]byte(nil), data...)
	return "memory://" + name, nil
}

// Bytes returns the stored content for name.
func (s *BlobStore) Bytes(name string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[name]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}
