package interfaces

import (
	"context"
	"io"
	"net/http"
	"time"
)

// StorageProvider is the uniform contract implemented by every physical storage backend.
// A provider instance is bound once and then shared by all concurrent requests for its tag.
type StorageProvider interface {
	// Bind performs one-time initialisation and validates the binding properties.
	// Returns an error wrapping ErrConfiguration if a mandatory key is missing or malformed.
	Bind(ctx context.Context, binding StorageBinding, cache PathCachePartition, client *http.Client) error

	// CreateCollection creates the physical root for the collection.
	CreateCollection(ctx context.Context, collection *Collection) (*StorageOperationResult, error)

	// CreateItemVersion stores content at the version's deterministic address.
	CreateItemVersion(ctx context.Context, collection *Collection, item *Item, version *ItemVersion, content io.Reader) (*StorageOperationResult, error)

	// ReadItemVersion opens the stored content. Returns an error wrapping ErrNotFound if absent.
	ReadItemVersion(ctx context.Context, collection *Collection, item *Item, version *ItemVersion) (*StorageOperationResult, error)

	// DeleteItem removes the item and all of its versions.
	DeleteItem(ctx context.Context, collection *Collection, item *Item) (*StorageOperationResult, error)

	// Type returns the provider type identifier used in bindings.
	Type() string

	// Tag returns the binding tag this instance is bound to.
	Tag() string
}

// ProviderRegistry resolves binding tags to bound provider instances.
type ProviderRegistry interface {
	// ProviderFor returns the shared provider for tag, binding it on first use.
	ProviderFor(ctx context.Context, tag string) (StorageProvider, error)

	// Bindings returns the configured bindings in load order.
	Bindings() []StorageBinding
}

// PathCache is a partitioned, typed key/value store.
type PathCache interface {
	Partition(name string) PathCachePartition
}

// PathCachePartition is a partition-scoped view of the cache.
// Setters replace the entry (delete-then-insert), never update in place.
type PathCachePartition interface {
	Name() string

	GetString(ctx context.Context, key string) (string, bool, error)
	SetString(ctx context.Context, key, value string) error

	GetInt64(ctx context.Context, key string) (int64, bool, error)
	SetInt64(ctx context.Context, key string, value int64) error

	GetInt32(ctx context.Context, key string) (int32, bool, error)
	SetInt32(ctx context.Context, key string, value int32) error

	GetTime(ctx context.Context, key string) (time.Time, bool, error)
	SetTime(ctx context.Context, key string, value time.Time) error

	Delete(ctx context.Context, key string) error
}

// CacheEntryStore persists cache entries.
type CacheEntryStore interface {
	// GetEntry returns ErrNotFound if no entry exists for (partition, key).
	GetEntry(ctx context.Context, partition, key string) (*CacheEntry, error)

	// ReplaceEntry deletes any existing entry for (partition, key) and inserts entry.
	ReplaceEntry(ctx context.Context, entry *CacheEntry) error

	DeleteEntry(ctx context.Context, partition, key string) error
}

// MetadataStore is the persistence collaborator for collections, items and their groups.
// Each call is an independent unit of work. Update and delete calls compare the
// Revision of the passed record and fail with ErrConcurrentModification on mismatch.
type MetadataStore interface {
	CreateCollection(ctx context.Context, collection *Collection) error
	GetCollection(ctx context.Context, id string) (*Collection, error)
	GetCollectionByName(ctx context.Context, name string) (*Collection, error)
	ListCollections(ctx context.Context) ([]*Collection, error)
	UpdateCollection(ctx context.Context, collection *Collection) error
	DeleteCollection(ctx context.Context, id string) error

	CreateItem(ctx context.Context, item *Item) error
	GetItem(ctx context.Context, id string) (*Item, error)
	ListItems(ctx context.Context, collectionID string) ([]*Item, error)
	UpdateItem(ctx context.Context, item *Item) error
	DeleteItem(ctx context.Context, id string) error

	CreateItemVersion(ctx context.Context, version *ItemVersion) error
	GetItemVersion(ctx context.Context, id string) (*ItemVersion, error)
	ListItemVersions(ctx context.Context, itemID string) ([]*ItemVersion, error)
	UpdateItemVersion(ctx context.Context, version *ItemVersion) error
	DeleteItemVersion(ctx context.Context, id string) error

	CreatePropertyGroup(ctx context.Context, group *PropertyGroup) error
	GetPropertyGroup(ctx context.Context, id string) (*PropertyGroup, error)
	UpdatePropertyGroup(ctx context.Context, group *PropertyGroup) error
	DeletePropertyGroup(ctx context.Context, id string) error

	CreateConstraintGroup(ctx context.Context, group *ConstraintGroup) error
	GetConstraintGroup(ctx context.Context, id string) (*ConstraintGroup, error)
	UpdateConstraintGroup(ctx context.Context, group *ConstraintGroup) error
	DeleteConstraintGroup(ctx context.Context, id string) error
}
