package storage

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/ruteri/content-service-backend/cache"
	"github.com/ruteri/content-service-backend/interfaces"
)

// Property keys providers merge back into collection and item metadata.
const (
	PropPath        = "storage.path"
	PropNodeID      = "storage.nodeId"
	PropSize        = "storage.size"
	PropContentType = "storage.contentType"
	PropCreated     = "storage.created"
	PropProvider    = "storage.provider"
)

// CollectionPath returns root/{collectionId}.
func CollectionPath(root, collectionID string) string {
	return path.Join("/", root, collectionID)
}

// ItemPath returns root/{collectionId}/{itemId}.
func ItemPath(root, collectionID, itemID string) string {
	return path.Join(CollectionPath(root, collectionID), itemID)
}

// VersionPath returns root/{collectionId}/{itemId}/{major}_{minor}, with the
// version name appended as a final segment when withName is set. The name is
// escaped so it never adds segments or climbs out of the version prefix.
func VersionPath(root, collectionID, itemID string, v *interfaces.ItemVersion, withName bool) string {
	p := path.Join(ItemPath(root, collectionID, itemID), v.VersionLabel())
	if !withName {
		return p
	}
	if seg := nameSegment(v.Name); seg != "" {
		p += "/" + seg
	}
	return p
}

// nameSegment escapes name into a single path element; "", "." and ".." yield "".
func nameSegment(name string) string {
	seg := url.PathEscape(name)
	if seg == "." || seg == ".." {
		return ""
	}
	return seg
}

// splitPath returns the non-empty segments of a slash separated path.
func splitPath(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func okResult(props map[string]interfaces.PropertyValue) *interfaces.StorageOperationResult {
	return &interfaces.StorageOperationResult{Status: interfaces.StatusOk, Properties: props}
}

func baseProperties(providerType string) map[string]interfaces.PropertyValue {
	return map[string]interfaces.PropertyValue{
		PropProvider: interfaces.StringValue(providerType),
		PropCreated:  interfaces.DateTimeValue(time.Now()),
	}
}

// statusError maps a remote HTTP status to a storage error. 404 additionally
// wraps ErrNotFound.
func statusError(status int, message string) error {
	switch status {
	case http.StatusNotFound:
		return interfaces.NewStorageError(http.StatusNotFound, message, interfaces.ErrNotFound)
	case http.StatusConflict:
		return interfaces.NewStorageError(http.StatusConflict, message, interfaces.ErrAlreadyExists)
	case http.StatusUnauthorized, http.StatusForbidden:
		return interfaces.NewStorageError(status, message, nil)
	default:
		return interfaces.NewStorageError(http.StatusBadGateway, fmt.Sprintf("%s (remote status %d)", message, status), nil)
	}
}

func notFound(format string, args ...any) error {
	return interfaces.NewStorageError(http.StatusNotFound, fmt.Sprintf(format, args...), interfaces.ErrNotFound)
}

// nodeAPI is the per-segment folder API of a remote repository.
type nodeAPI interface {
	// LookupChild returns the identifier of the named child of parentID.
	// found is false if no such child exists.
	LookupChild(ctx context.Context, parentID, name string) (id string, found bool, err error)

	// CreateFolder creates a named folder under parentID and returns its identifier.
	CreateFolder(ctx context.Context, parentID, name string) (string, error)
}

// pathResolver memoizes path to remote identifier resolution in a cache
// partition. Concurrent resolutions of the same unresolved path may both
// create the folder; the resolver does not lock across requests.
type pathResolver struct {
	rootID string
	api    nodeAPI
	cache  interfaces.PathCachePartition
	log    *slog.Logger
}

// CreatePath resolves p segment by segment from the root, creating missing
// folders, and memoizes the final identifier. A cache hit costs no network calls.
func (r *pathResolver) CreatePath(ctx context.Context, p string) (string, error) {
	return r.resolve(ctx, p, true)
}

// LookupPath resolves p without creating folders. A missing segment is reported
// as not found and nothing is cached.
func (r *pathResolver) LookupPath(ctx context.Context, p string) (string, error) {
	return r.resolve(ctx, p, false)
}

// Forget drops the memoized identifier for p.
func (r *pathResolver) Forget(ctx context.Context, p string) error {
	return r.cache.Delete(ctx, cache.PathKey(p))
}

func (r *pathResolver) resolve(ctx context.Context, p string, create bool) (string, error) {
	key := cache.PathKey(p)
	if id, ok, err := r.cache.GetString(ctx, key); err != nil {
		return "", err
	} else if ok {
		return id, nil
	}

	current := r.rootID
	for _, segment := range splitPath(p) {
		id, found, err := r.api.LookupChild(ctx, current, segment)
		if err != nil {
			return "", err
		}
		if !found {
			if !create {
				return "", notFound("remote path %s has no segment %q", p, segment)
			}
			id, err = r.api.CreateFolder(ctx, current, segment)
			if err != nil {
				return "", err
			}
			r.log.Debug("Created remote folder",
				slog.String("path", p),
				slog.String("segment", segment),
				slog.String("nodeId", id))
		}
		current = id
	}

	if err := r.cache.SetString(ctx, key, current); err != nil {
		return "", err
	}
	return current, nil
}
