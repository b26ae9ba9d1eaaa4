package objstore

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// MemStorage is an in-process Storage used for local development and
// tests.
type MemStorage struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

var _ Storage = (*MemStorage)(nil)

// NewMemStorage creates an empty in-memory store.
func NewMemStorage() *MemStorage {
	return &MemStorage{objects: make(map[string][]byte)}
}

// Upload stores the object bytes under key.
func (s *MemStorage) Upload(_ context.Context, key string, r io.Reader, _ int64, _ map[string]string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading object: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return key, nil
}

// Delete removes the object at the locator.
func (s *MemStorage) Delete(_ context.Context, locator string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[locator]; !ok {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, locator)
	}
	delete(s.objects, locator)
	return nil
}

// Get returns stored object bytes. Test helper.
func (s *MemStorage) Get(locator string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[locator]
	return data, ok
}

// Len returns the number of stored objects. Test helper.
func (s *MemStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
