package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/ruteri/content-service-backend/interfaces"
)

// RedisEntryStore persists cache entries in Redis as JSON-encoded values under
// "cache:{partition}:{key}". Entries never expire.
type RedisEntryStore struct {
	redis *redis.Client
	log   *slog.Logger
}

var _ interfaces.CacheEntryStore = (*RedisEntryStore)(nil)

// NewRedisEntryStore wraps an existing client.
func NewRedisEntryStore(client *redis.Client, log *slog.Logger) *RedisEntryStore {
	return &RedisEntryStore{redis: client, log: log}
}

// Ping checks connectivity.
func (s *RedisEntryStore) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}

func (s *RedisEntryStore) GetEntry(ctx context.Context, partition, key string) (*interfaces.CacheEntry, error) {
	k := entryKey(partition, key)
	data, err := s.redis.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		s.log.Error("Redis GET failed", slog.String("key", k), "err", err)
		return nil, fmt.Errorf("failed to get key %s: %w", k, err)
	}

	var entry interfaces.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode cache entry %s: %w", k, err)
	}
	return &entry, nil
}

// ReplaceEntry deletes and re-inserts the entry inside a MULTI/EXEC block.
func (s *RedisEntryStore) ReplaceEntry(ctx context.Context, entry *interfaces.CacheEntry) error {
	k := entryKey(entry.Partition, entry.Key)
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %s: %w", k, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		pipe.Set(ctx, k, data, 0)
		return nil
	})
	if err != nil {
		s.log.Error("Redis replace failed", slog.String("key", k), "err", err)
		return fmt.Errorf("failed to replace key %s: %w", k, err)
	}
	return nil
}

func (s *RedisEntryStore) DeleteEntry(ctx context.Context, partition, key string) error {
	k := entryKey(partition, key)
	if err := s.redis.Del(ctx, k).Err(); err != nil {
		s.log.Error("Redis DEL failed", slog.String("key", k), "err", err)
		return fmt.Errorf("failed to delete key %s: %w", k, err)
	}
	return nil
}
