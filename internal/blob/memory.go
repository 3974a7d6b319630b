package blob

import (
	"context"
	"sync"
)

func init() {
	RegisterFactory("memory", func(string) (Store, error) { return NewMemoryStore(), nil })
}

// MemoryStore is a map-backed store for tests and throwaway runs.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func memKey(container, key string) string {
	return container + "/" + key
}

func (s *MemoryStore) Get(ctx context.Context, container, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.blobs[memKey(container, key)]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *MemoryStore) Put(ctx context.Context, container, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(data))
	copy(stored, data)
	s.blobs[memKey(container, key)] = stored
	return nil
}

func (s *MemoryStore) Exists(ctx context.Context, container, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.blobs[memKey(container, key)]
	return ok, nil
}

func (s *MemoryStore) Rename(ctx context.Context, container, oldKey, newKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.blobs[memKey(container, oldKey)]
	if !ok {
		return ErrNotFound
	}
	s.blobs[memKey(container, newKey)] = data
	delete(s.blobs, memKey(container, oldKey))
	return nil
}

func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}
