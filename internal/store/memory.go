package store

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/i474232898/gdelt-news-cache/internal/news"
)

// mapStore is a concurrency-safe in-memory blobStore.
type mapStore struct {
	mu sync.RWMutex

	// key: object name, value: encoded object
	data map[string][]byte
}

func newMapStore() *mapStore {
	return &mapStore{data: make(map[string][]byte)}
}

func (s *mapStore) read(_ context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.data[name]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(data), nil
}

func (s *mapStore) write(_ context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[name] = slices.Clone(data)
	return nil
}

func (s *mapStore) namespaces(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for name := range s.data {
		first, _, ok := strings.Cut(name, "/")
		if ok && !slices.Contains(out, first) {
			out = append(out, first)
		}
	}
	slices.Sort(out)
	return out, nil
}

// Memory keeps everything in process memory. It is lost on exit.
type Memory struct {
	objectBackend
	objects *mapStore
}

var _ news.Backend = (*Memory)(nil)

// NewMemory creates an empty in-memory backend.
func NewMemory(logger *slog.Logger) *Memory {
	objects := newMapStore()
	return &Memory{
		objectBackend: newObjectBackend(objects, objects, nestedDatasetName, logger),
		objects:       objects,
	}
}
