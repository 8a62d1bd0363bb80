package badger

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/ruteri/content-service-backend/interfaces"
)

// CacheEntryStore persists path cache entries next to the metadata rows.
type CacheEntryStore struct {
	backend *Backend
}

var _ interfaces.CacheEntryStore = (*CacheEntryStore)(nil)

func NewCacheEntryStore(backend *Backend) *CacheEntryStore {
	return &CacheEntryStore{backend: backend}
}

func (s *CacheEntryStore) GetEntry(ctx context.Context, partition, key string) (*interfaces.CacheEntry, error) {
	var entry interfaces.CacheEntry
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		return getJSON(tx, makeCacheEntryKey(partition, key), &entry)
	}, false)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ReplaceEntry removes any previous entry and writes the new one in a single transaction.
func (s *CacheEntryStore) ReplaceEntry(ctx context.Context, entry *interfaces.CacheEntry) error {
	key := makeCacheEntryKey(entry.Partition, entry.Key)
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(key); err != nil {
			return err
		}
		return setJSON(tx, key, entry)
	}, true)
	if err != nil {
		return fmt.Errorf("failed to replace cache entry %s: %w", key, err)
	}
	return nil
}

func (s *CacheEntryStore) DeleteEntry(ctx context.Context, partition, key string) error {
	return s.backend.WithTx(func(tx *badger.Txn) error {
		return tx.Delete(makeCacheEntryKey(partition, key))
	}, true)
}
