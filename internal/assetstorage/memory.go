package assetstorage

import (
	"bytes"
	"context"
	"io"
	"path"
	"sync"

	"github.com/google/uuid"
)

// MemoryStrategy holds asset bytes in memory. Used in tests and as the
// fallback when no asset directory is configured.
type MemoryStrategy struct {
	mu    sync.RWMutex
	files map[string][]byte
}

var _ Strategy = (*MemoryStrategy)(nil)

func NewMemoryStrategy() *MemoryStrategy {
	return &MemoryStrategy{files: make(map[string][]byte)}
}

func (s *MemoryStrategy) Write(_ context.Context, fileName string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	identifier := path.Join(uuid.NewString()[:8], sanitizeFileName(fileName))

	s.mu.Lock()
	s.files[identifier] = data
	s.mu.Unlock()
	return identifier, nil
}

func (s *MemoryStrategy) Read(_ context.Context, identifier string) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.files[identifier]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemoryStrategy) Exists(_ context.Context, identifier string) (bool, error) {
	s.mu.RLock()
	_, ok := s.files[identifier]
	s.mu.RUnlock()
	return ok, nil
}

func (s *MemoryStrategy) Delete(_ context.Context, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[identifier]; !ok {
		return ErrNotFound
	}
	delete(s.files, identifier)
	return nil
}

func (s *MemoryStrategy) URL(identifier string) string {
	return "/assets/" + identifier
}
