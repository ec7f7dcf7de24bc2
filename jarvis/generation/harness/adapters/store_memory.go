package adapters

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	ports "github.com/ZanzyTHEbar/jarvis/jarvis/generation/harness/ports"
)

// MemoryKVStore is a process-local KVStore used when persistence is disabled.
type MemoryKVStore struct {
	mu      sync.RWMutex
	entries map[string]ports.KVEntry
}

// NewMemoryKVStore creates an empty in-memory store.
func NewMemoryKVStore() *MemoryKVStore {
	return &MemoryKVStore{entries: make(map[string]ports.KVEntry)}
}

func (s *MemoryKVStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	return entry.Value, ok, nil
}

func (s *MemoryKVStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = ports.KVEntry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return nil
}

func (s *MemoryKVStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

func (s *MemoryKVStore) List(ctx context.Context, prefix string) ([]ports.KVEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []ports.KVEntry
	for key, entry := range s.entries {
		if strings.HasPrefix(key, prefix) {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

var _ ports.KVStore = (*MemoryKVStore)(nil)
