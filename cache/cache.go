// Package cache provides the partitioned path/node cache used by remote storage
// providers to memoize resolved folder identifiers.
//
// Entries are (partition, key) unique and typed. Setting a value replaces the
// entry (delete-then-insert) in the underlying CacheEntryStore. There is no
// invalidation: if a remote folder is deleted out-of-band the entry goes stale.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ruteri/content-service-backend/interfaces"
)

// PathKey returns the cache key under which a resolved path is memoized.
func PathKey(path string) string {
	return "path:" + path
}

// ErrKindMismatch is returned when an entry holds a value of a different kind
// than the one requested.
var ErrKindMismatch = errors.New("cache value kind mismatch")

// Observer is notified of cache lookups.
type Observer interface {
	CacheLookup(partition string, hit bool)
}

// PathCache implements interfaces.PathCache over a CacheEntryStore.
type PathCache struct {
	store    interfaces.CacheEntryStore
	observer Observer
	log      *slog.Logger
}

var _ interfaces.PathCache = (*PathCache)(nil)

// New creates a cache over store. observer may be nil.
func New(store interfaces.CacheEntryStore, observer Observer, log *slog.Logger) *PathCache {
	if log == nil {
		log = slog.Default()
	}
	return &PathCache{store: store, observer: observer, log: log}
}

// Partition returns a view scoped to one partition.
func (c *PathCache) Partition(name string) interfaces.PathCachePartition {
	return &partition{cache: c, name: name}
}

type partition struct {
	cache *PathCache
	name  string
}

func (p *partition) Name() string {
	return p.name
}

func (p *partition) get(ctx context.Context, key string, kind interfaces.CacheValueKind) (*interfaces.CacheValue, error) {
	entry, err := p.cache.store.GetEntry(ctx, p.name, key)
	if errors.Is(err, interfaces.ErrNotFound) {
		p.observe(false)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry %s/%s: %w", p.name, key, err)
	}
	if entry.Value.Kind != kind {
		return nil, fmt.Errorf("%w: %s/%s holds %s, want %s", ErrKindMismatch, p.name, key, entry.Value.Kind, kind)
	}
	p.observe(true)
	return &entry.Value, nil
}

func (p *partition) set(ctx context.Context, key string, value interfaces.CacheValue) error {
	err := p.cache.store.ReplaceEntry(ctx, &interfaces.CacheEntry{
		Partition: p.name,
		Key:       key,
		Value:     value,
	})
	if err != nil {
		return fmt.Errorf("failed to write cache entry %s/%s: %w", p.name, key, err)
	}
	p.cache.log.Debug("Cache entry replaced",
		slog.String("partition", p.name),
		slog.String("key", key),
		slog.String("kind", string(value.Kind)))
	return nil
}

func (p *partition) observe(hit bool) {
	if p.cache.observer != nil {
		p.cache.observer.CacheLookup(p.name, hit)
	}
}

func (p *partition) GetString(ctx context.Context, key string) (string, bool, error) {
	v, err := p.get(ctx, key, interfaces.CacheString)
	if err != nil || v == nil {
		return "", false, err
	}
	return v.Str, true, nil
}

func (p *partition) SetString(ctx context.Context, key, value string) error {
	return p.set(ctx, key, interfaces.CacheValue{Kind: interfaces.CacheString, Str: value})
}

func (p *partition) GetInt64(ctx context.Context, key string) (int64, bool, error) {
	v, err := p.get(ctx, key, interfaces.CacheInt64)
	if err != nil || v == nil {
		return 0, false, err
	}
	return v.Int64, true, nil
}

func (p *partition) SetInt64(ctx context.Context, key string, value int64) error {
	return p.set(ctx, key, interfaces.CacheValue{Kind: interfaces.CacheInt64, Int64: value})
}

func (p *partition) GetInt32(ctx context.Context, key string) (int32, bool, error) {
	v, err := p.get(ctx, key, interfaces.CacheInt32)
	if err != nil || v == nil {
		return 0, false, err
	}
	return v.Int32, true, nil
}

func (p *partition) SetInt32(ctx context.Context, key string, value int32) error {
	return p.set(ctx, key, interfaces.CacheValue{Kind: interfaces.CacheInt32, Int32: value})
}

func (p *partition) GetTime(ctx context.Context, key string) (time.Time, bool, error) {
	v, err := p.get(ctx, key, interfaces.CacheDateTime)
	if err != nil || v == nil {
		return time.Time{}, false, err
	}
	return v.Time, true, nil
}

func (p *partition) SetTime(ctx context.Context, key string, value time.Time) error {
	return p.set(ctx, key, interfaces.CacheValue{Kind: interfaces.CacheDateTime, Time: value.UTC()})
}

func (p *partition) Delete(ctx context.Context, key string) error {
	if err := p.cache.store.DeleteEntry(ctx, p.name, key); err != nil {
		return fmt.Errorf("failed to delete cache entry %s/%s: %w", p.name, key, err)
	}
	return nil
}
