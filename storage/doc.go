// Package storage implements the virtual storage providers and the registry
// that binds them.
//
// A provider stores collection, item and version content at an address derived
// purely from identifiers:
//
//	{root}/{collectionId}
//	{root}/{collectionId}/{itemId}
//	{root}/{collectionId}/{itemId}/{major}_{minor}[/{name}]
//
// so no index is needed to locate content. Supported provider types:
//
//   - filesystem - local directories below rootDirectory
//   - rest - remote repository with a node/children REST API
//   - soap - remote repository with a SOAP envelope API
//   - s3 - Amazon S3 or a compatible object store
//   - ipfs - the mutable file system of an IPFS node
//   - vault - a HashiCorp Vault KV v2 mount
//   - mirror - replication over other bindings
//
// Remote repositories address folders by opaque identifiers reachable only one
// path segment at a time. Their providers resolve paths through the path cache:
// a resolved path costs no network calls on later requests. Cached entries are
// never invalidated when a folder is removed out of band.
//
// The ProviderRegistry creates one provider per binding tag on first use and
// returns the same instance for the lifetime of the process.
package storage
