package cache

import (
	"context"
	"sync"

	"github.com/ruteri/content-service-backend/interfaces"
)

// MemoryEntryStore is an in-process CacheEntryStore for development and tests.
type MemoryEntryStore struct {
	mu      sync.RWMutex
	entries map[string]interfaces.CacheEntry
}

var _ interfaces.CacheEntryStore = (*MemoryEntryStore)(nil)

func NewMemoryEntryStore() *MemoryEntryStore {
	return &MemoryEntryStore{entries: make(map[string]interfaces.CacheEntry)}
}

func (s *MemoryEntryStore) GetEntry(ctx context.Context, partition, key string) (*interfaces.CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[entryKey(partition, key)]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return &entry, nil
}

func (s *MemoryEntryStore) ReplaceEntry(ctx context.Context, entry *interfaces.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := entryKey(entry.Partition, entry.Key)
	delete(s.entries, k)
	s.entries[k] = *entry
	return nil
}

func (s *MemoryEntryStore) DeleteEntry(ctx context.Context, partition, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, entryKey(partition, key))
	return nil
}

// Len returns the number of stored entries.
func (s *MemoryEntryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func entryKey(partition, key string) string {
	return "cache:" + partition + ":" + key
}
