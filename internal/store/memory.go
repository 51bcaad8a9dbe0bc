// internal/store/memory.go
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process KV implementation. It backs tests, the demo
// seeder, and single-node deployments that do not need durability.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[key]
	if !ok {
		return Record{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *MemoryStore) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.records[key]
	s.records[key] = Record{Key: key, Value: append([]byte(nil), value...), Version: prev.Version + 1}
	return nil
}

func (s *MemoryStore) ConditionalPut(ctx context.Context, key string, value []byte, expectedVersion int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[key]
	switch {
	case !ok && expectedVersion != 0:
		return 0, ErrConflict
	case ok && current.Version != expectedVersion:
		return 0, ErrConflict
	}

	next := expectedVersion + 1
	s.records[key] = Record{Key: key, Value: append([]byte(nil), value...), Version: next}
	return next, nil
}

func (s *MemoryStore) Scan(ctx context.Context, prefix string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for key, rec := range s.records {
		if strings.HasPrefix(key, prefix) {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func cloneRecord(rec Record) Record {
	return Record{Key: rec.Key, Value: append([]byte(nil), rec.Value...), Version: rec.Version}
}
