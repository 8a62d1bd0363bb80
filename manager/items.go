package manager

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"log/slog"
	"strings"

	"github.com/ruteri/content-service-backend/interfaces"
	"github.com/ruteri/content-service-backend/metadata"
)

type AddItemCommand struct {
	Name       string         `json:"name"`
	MimeType   string         `json:"mimeType"`
	Properties map[string]any `json:"properties,omitempty"`
}

// ItemDetails is an item with its property group and versions, oldest first.
type ItemDetails struct {
	Item       *interfaces.Item           `json:"item"`
	Properties *interfaces.PropertyGroup  `json:"properties"`
	Versions   []*interfaces.ItemVersion `json:"versions"`
}

// VersionContent is an opened item version. Stream must be closed by the caller.
type VersionContent struct {
	Version    *interfaces.ItemVersion
	Stream     io.ReadCloser
	Size       int64
	Properties map[string]interfaces.PropertyValue
}

// measuringReader counts and hashes the bytes read through it.
type measuringReader struct {
	r    io.Reader
	h    hash.Hash
	size int64
}

func newMeasuringReader(r io.Reader) *measuringReader {
	return &measuringReader{r: r, h: sha256.New()}
}

func (m *measuringReader) Read(p []byte) (int, error) {
	n, err := m.r.Read(p)
	if n > 0 {
		m.size += int64(n)
		m.h.Write(p[:n])
	}
	return n, err
}

func (m *measuringReader) sum() string {
	return hex.EncodeToString(m.h.Sum(nil))
}

// validItemName reports whether name can be used as one address segment.
func validItemName(name string) bool {
	return name != "." && name != ".." && !strings.ContainsAny(name, "/\\")
}

func (m *CollectionManager) collectionItem(ctx context.Context, collectionID, itemID string) (*interfaces.Collection, *interfaces.Item, error) {
	c, err := m.store.GetCollection(ctx, collectionID)
	if err != nil {
		return nil, nil, fail(interfaces.SubsystemStore, err, "failed to read collection %s", collectionID)
	}
	item, err := m.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, nil, fail(interfaces.SubsystemStore, err, "failed to read item %s", itemID)
	}
	if item.CollectionID != c.ID {
		return nil, nil, fail(interfaces.SubsystemManager, interfaces.ErrNotFound, "item %s is not in collection %s", itemID, collectionID)
	}
	return c, item, nil
}

func (m *CollectionManager) provider(ctx context.Context, c *interfaces.Collection) (interfaces.StorageProvider, error) {
	p, err := m.registry.ProviderFor(ctx, c.ProviderTag)
	if err != nil {
		return nil, fail(interfaces.SubsystemRegistry, err, "failed to resolve storage binding %q", c.ProviderTag)
	}
	return p, nil
}

// AddItemToCollection validates cmd.Properties against the collection's
// constraints, persists the item with version 1.0 and stores content through
// the collection's provider. Invalid properties abort before any write.
// A failure after the rows are persisted is returned without removing them.
func (m *CollectionManager) AddItemToCollection(ctx context.Context, collectionID string, cmd AddItemCommand, content io.Reader) (*ItemDetails, error) {
	c, err := m.store.GetCollection(ctx, collectionID)
	if err != nil {
		return nil, fail(interfaces.SubsystemStore, err, "failed to read collection %s", collectionID)
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return nil, badRequest("item name is required")
	}
	if !validItemName(name) {
		return nil, badRequest("item name %q must be a single path segment", name)
	}

	var constraints *interfaces.ConstraintGroup
	if c.ConstraintGroupID != "" {
		if constraints, err = m.store.GetConstraintGroup(ctx, c.ConstraintGroupID); err != nil {
			return nil, fail(interfaces.SubsystemStore, err, "failed to read constraints of collection %s", c.ID)
		}
	}
	if errs := metadata.Validate(constraints, cmd.Properties); len(errs) > 0 {
		m.log.Debug("Rejected item properties",
			slog.String("collectionId", c.ID),
			slog.Int("violations", len(errs)))
		return nil, invalid(errs)
	}

	provider, err := m.provider(ctx, c)
	if err != nil {
		return nil, err
	}

	now := m.now()
	properties := &interfaces.PropertyGroup{ID: m.newID(), Properties: []interfaces.Property{}}
	metadata.MergeProperties(properties, metadata.TypedProperties(constraints, cmd.Properties))
	version := &interfaces.ItemVersion{
		ID:          m.newID(),
		Major:       1,
		Minor:       0,
		Name:        name,
		MimeType:    cmd.MimeType,
		CreatedDate: now,
	}
	item := &interfaces.Item{
		ID:              m.newID(),
		Name:            name,
		CollectionID:    c.ID,
		CreatedDate:     now,
		LastModified:    now,
		VersionIDs:      []string{version.ID},
		PropertyGroupID: properties.ID,
	}
	version.ItemID = item.ID

	if err := m.store.CreatePropertyGroup(ctx, properties); err != nil {
		return nil, fail(interfaces.SubsystemStore, err, "failed to create item properties")
	}
	if err := m.store.CreateItem(ctx, item); err != nil {
		return nil, fail(interfaces.SubsystemStore, err, "failed to create item %q", name)
	}
	if err := m.store.CreateItemVersion(ctx, version); err != nil {
		return nil, fail(interfaces.SubsystemStore, err, "failed to create version of item %s", item.ID)
	}

	measured := newMeasuringReader(content)
	res, err := provider.CreateItemVersion(ctx, c, item, version, measured)
	if err != nil {
		m.log.Error("Provider failed to store item version",
			slog.String("collectionId", c.ID),
			slog.String("itemId", item.ID),
			slog.String("tag", c.ProviderTag),
			"err", err)
		return nil, fail(interfaces.SubsystemProvider, err, "failed to store content of item %s", item.ID)
	}

	version.Size = measured.size
	version.ContentHash = measured.sum()
	if err := m.store.UpdateItemVersion(ctx, version); err != nil {
		return nil, fail(interfaces.SubsystemStore, err, "failed to record size of item %s", item.ID)
	}

	if len(res.Properties) > 0 {
		metadata.MergeProperties(properties, res.Properties)
		if err := m.store.UpdatePropertyGroup(ctx, properties); err != nil {
			return nil, fail(interfaces.SubsystemStore, err, "failed to record storage properties of item %s", item.ID)
		}
	}

	if err := m.adjustCounters(ctx, c.ID, 1, version.Size); err != nil {
		return nil, err
	}

	m.log.Info("Added item to collection",
		slog.String("collectionId", c.ID),
		slog.String("itemId", item.ID),
		slog.Int64("size", version.Size))
	return &ItemDetails{Item: item, Properties: properties, Versions: []*interfaces.ItemVersion{version}}, nil
}

// adjustCounters applies item and byte deltas to a freshly read collection row.
func (m *CollectionManager) adjustCounters(ctx context.Context, collectionID string, items, bytes int64) error {
	c, err := m.store.GetCollection(ctx, collectionID)
	if err != nil {
		return fail(interfaces.SubsystemStore, err, "failed to read collection %s", collectionID)
	}
	c.NumberOfItems += items
	c.TotalSizeBytes += bytes
	c.LastModified = m.now()
	if err := m.store.UpdateCollection(ctx, c); err != nil {
		return fail(interfaces.SubsystemStore, err, "failed to update counters of collection %s", collectionID)
	}
	return nil
}

// ReadItemVersion opens version major.minor of an item; 0.0 selects the latest.
func (m *CollectionManager) ReadItemVersion(ctx context.Context, collectionID, itemID string, major, minor int) (*VersionContent, error) {
	c, item, err := m.collectionItem(ctx, collectionID, itemID)
	if err != nil {
		return nil, err
	}
	versions, err := m.store.ListItemVersions(ctx, item.ID)
	if err != nil {
		return nil, fail(interfaces.SubsystemStore, err, "failed to list versions of item %s", item.ID)
	}

	var version *interfaces.ItemVersion
	if major == 0 && minor == 0 {
		if len(versions) > 0 {
			version = versions[len(versions)-1]
		}
	} else {
		for _, v := range versions {
			if v.Major == major && v.Minor == minor {
				version = v
				break
			}
		}
	}
	if version == nil {
		return nil, fail(interfaces.SubsystemManager, interfaces.ErrNotFound, "item %s has no version %d.%d", item.ID, major, minor)
	}

	provider, err := m.provider(ctx, c)
	if err != nil {
		return nil, err
	}
	res, err := provider.ReadItemVersion(ctx, c, item, version)
	if err != nil {
		return nil, fail(interfaces.SubsystemProvider, err, "failed to read version %s of item %s", version.VersionLabel(), item.ID)
	}

	size := res.Size
	if size <= 0 {
		size = version.Size
	}
	return &VersionContent{Version: version, Stream: res.Stream, Size: size, Properties: res.Properties}, nil
}

func (m *CollectionManager) ReadItem(ctx context.Context, collectionID, itemID string) (*ItemDetails, error) {
	_, item, err := m.collectionItem(ctx, collectionID, itemID)
	if err != nil {
		return nil, err
	}
	out := &ItemDetails{Item: item}
	if item.PropertyGroupID != "" {
		if out.Properties, err = m.store.GetPropertyGroup(ctx, item.PropertyGroupID); err != nil {
			return nil, fail(interfaces.SubsystemStore, err, "failed to read properties of item %s", item.ID)
		}
	}
	if out.Versions, err = m.store.ListItemVersions(ctx, item.ID); err != nil {
		return nil, fail(interfaces.SubsystemStore, err, "failed to list versions of item %s", item.ID)
	}
	return out, nil
}

func (m *CollectionManager) ListItems(ctx context.Context, collectionID string) ([]*interfaces.Item, error) {
	if _, err := m.store.GetCollection(ctx, collectionID); err != nil {
		return nil, fail(interfaces.SubsystemStore, err, "failed to read collection %s", collectionID)
	}
	items, err := m.store.ListItems(ctx, collectionID)
	if err != nil {
		return nil, fail(interfaces.SubsystemStore, err, "failed to list items of collection %s", collectionID)
	}
	return items, nil
}

// DeleteItem removes the item from storage first and deletes its rows only
// once the provider has succeeded.
func (m *CollectionManager) DeleteItem(ctx context.Context, collectionID, itemID string) error {
	c, item, err := m.collectionItem(ctx, collectionID, itemID)
	if err != nil {
		return err
	}
	versions, err := m.store.ListItemVersions(ctx, item.ID)
	if err != nil {
		return fail(interfaces.SubsystemStore, err, "failed to list versions of item %s", item.ID)
	}

	provider, err := m.provider(ctx, c)
	if err != nil {
		return err
	}
	if _, err := provider.DeleteItem(ctx, c, item); err != nil {
		return fail(interfaces.SubsystemProvider, err, "failed to delete item %s from storage", item.ID)
	}

	var size int64
	for _, v := range versions {
		size += v.Size
		if err := m.store.DeleteItemVersion(ctx, v.ID); err != nil {
			return fail(interfaces.SubsystemStore, err, "failed to delete version %s", v.ID)
		}
	}
	if item.PropertyGroupID != "" {
		if err := m.store.DeletePropertyGroup(ctx, item.PropertyGroupID); err != nil {
			return fail(interfaces.SubsystemStore, err, "failed to delete properties of item %s", item.ID)
		}
	}
	if err := m.store.DeleteItem(ctx, item.ID); err != nil {
		return fail(interfaces.SubsystemStore, err, "failed to delete item %s", item.ID)
	}
	if err := m.adjustCounters(ctx, c.ID, -1, -size); err != nil {
		return err
	}

	m.log.Info("Deleted item",
		slog.String("collectionId", c.ID),
		slog.String("itemId", item.ID),
		slog.Int("versions", len(versions)))
	return nil
}
