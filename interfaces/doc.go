// Package interfaces defines the core interfaces and types for the content service,
// separating contracts from their implementations.
//
// # Domain Types
//
//   - Collection: named top-level container bound to one storage binding tag
//   - Item / ItemVersion: unit of content and its immutable, numbered revisions
//   - PropertyGroup / Property: typed metadata bag owned by a collection or item
//   - ConstraintGroup / Constraint: validation rules owned by a collection
//   - StorageBinding: configured instance of a storage backend
//   - CacheEntry: partitioned, typed memoization record
//
// # Storage Interfaces
//
// StorageProvider: the uniform contract every physical backend implements
// (filesystem, remote REST, remote SOAP, S3, IPFS, Vault). Providers locate
// content purely from identifiers using the deterministic addressing scheme
// root/{collectionId}/{itemId}/{major}_{minor}.
//
// ProviderRegistry: resolves a binding tag to a bound, shared provider instance.
//
// PathCache: partitioned typed key/value store used by remote providers to
// memoize resolved folder identifiers.
//
// # Persistence Interfaces
//
// MetadataStore and CacheEntryStore describe the persistence collaborator. Each
// call is an independent unit of work; updates use optimistic concurrency on the
// Revision field.
//
// # Errors
//
// Errors are classified with sentinel values (ErrConfiguration, ErrValidation,
// ErrStorageOperation, ErrNotFound) and carried in StorageOperationError and
// ManagerError, both of which expose a response status hint.
package interfaces
