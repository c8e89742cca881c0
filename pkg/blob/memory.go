package blob

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]*Object
}

// NewMemoryStore creates an empty in-memory blob store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]*Object)}
}

func (s *MemoryStore) Upload(_ context.Context, filename, contentType string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref := uuid.New().String()
	buf := make([]byte, len(data))
	copy(buf, data)
	s.objects[ref] = &Object{
		Ref:         ref,
		Filename:    filename,
		ContentType: contentType,
		Size:        int64(len(data)),
		Data:        buf,
	}
	return ref, nil
}

func (s *MemoryStore) Download(_ context.Context, ref string) (*Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[ref]
	if !ok {
		return nil, ErrNotFound
	}
	return obj, nil
}

func (s *MemoryStore) Delete(_ context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.objects, ref)
	return nil
}

// Len reports the number of stored objects
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
