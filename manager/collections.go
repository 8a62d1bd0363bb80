// Package manager orchestrates collections and items across the metadata store
// and the bound storage providers.
//
// Every operation is an independent unit of work. Collection creation is a
// saga whose compensations remove the rows created before a failed provider
// call; physical side effects already committed by a provider are kept.
// Item creation is not compensated once its rows are persisted.
package manager

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/content-service-backend/interfaces"
	"github.com/ruteri/content-service-backend/metadata"
)

// CollectionManager implements the collection and item operations.
type CollectionManager struct {
	store    interfaces.MetadataStore
	registry interfaces.ProviderRegistry
	log      *slog.Logger

	now   func() time.Time
	newID func() string
}

func NewCollectionManager(store interfaces.MetadataStore, registry interfaces.ProviderRegistry, log *slog.Logger) *CollectionManager {
	if log == nil {
		log = slog.Default()
	}
	return &CollectionManager{
		store:    store,
		registry: registry,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.New().String() },
	}
}

// CollectionDetails is a collection together with its groups.
type CollectionDetails struct {
	Collection  *interfaces.Collection      `json:"collection"`
	Properties  *interfaces.PropertyGroup   `json:"properties"`
	Constraints *interfaces.ConstraintGroup `json:"constraints"`
}

type CreateCollectionCommand struct {
	Name        string                  `json:"name"`
	Description string                  `json:"description"`
	ProviderTag string                  `json:"providerTag"`
	Properties  map[string]any          `json:"properties,omitempty"`
	Constraints []interfaces.Constraint `json:"constraints,omitempty"`
}

// UpdateCollectionCommand changes only what it sets. Submitted constraints are
// merged by name and properties are upserted.
type UpdateCollectionCommand struct {
	Name        *string                 `json:"name,omitempty"`
	Description *string                 `json:"description,omitempty"`
	Properties  map[string]any          `json:"properties,omitempty"`
	Constraints []interfaces.Constraint `json:"constraints,omitempty"`
}

func (m *CollectionManager) ListCollections(ctx context.Context) ([]*interfaces.Collection, error) {
	collections, err := m.store.ListCollections(ctx)
	if err != nil {
		return nil, fail(interfaces.SubsystemStore, err, "failed to list collections")
	}
	return collections, nil
}

// ReadCollection returns the collection with its property and constraint groups.
func (m *CollectionManager) ReadCollection(ctx context.Context, id string) (*CollectionDetails, error) {
	c, err := m.store.GetCollection(ctx, id)
	if err != nil {
		return nil, fail(interfaces.SubsystemStore, err, "failed to read collection %s", id)
	}
	return m.details(ctx, c)
}

func (m *CollectionManager) details(ctx context.Context, c *interfaces.Collection) (*CollectionDetails, error) {
	out := &CollectionDetails{Collection: c}
	if c.PropertyGroupID != "" {
		g, err := m.store.GetPropertyGroup(ctx, c.PropertyGroupID)
		if err != nil {
			return nil, fail(interfaces.SubsystemStore, err, "failed to read properties of collection %s", c.ID)
		}
		out.Properties = g
	}
	if c.ConstraintGroupID != "" {
		g, err := m.store.GetConstraintGroup(ctx, c.ConstraintGroupID)
		if err != nil {
			return nil, fail(interfaces.SubsystemStore, err, "failed to read constraints of collection %s", c.ID)
		}
		out.Constraints = g
	}
	return out, nil
}

// GetStorageBindings returns the configured bindings in load order.
func (m *CollectionManager) GetStorageBindings() []interfaces.StorageBinding {
	return m.registry.Bindings()
}

// nameTaken reports whether a collection with name exists. The check is
// best-effort; the store rejects a racing duplicate on insert.
func (m *CollectionManager) nameTaken(ctx context.Context, name string) (bool, error) {
	_, err := m.store.GetCollectionByName(ctx, name)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, interfaces.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// CreateCollection persists the collection and its groups, then asks the
// bound provider to create the physical root. If the provider step fails the
// rows are removed again and the provider's status hint is returned.
func (m *CollectionManager) CreateCollection(ctx context.Context, cmd CreateCollectionCommand) (*CollectionDetails, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return nil, badRequest("collection name is required")
	}
	if cmd.ProviderTag == "" {
		return nil, badRequest("providerTag is required")
	}
	if err := metadata.CheckDefinitions(cmd.Constraints); err != nil {
		return nil, fail(interfaces.SubsystemValidation, err, "invalid constraints")
	}

	taken, err := m.nameTaken(ctx, name)
	if err != nil {
		return nil, fail(interfaces.SubsystemStore, err, "failed to check collection name %q", name)
	}
	if taken {
		return nil, fail(interfaces.SubsystemManager, interfaces.ErrAlreadyExists, "collection %q already exists", name)
	}

	now := m.now()
	constraints := &interfaces.ConstraintGroup{ID: m.newID(), Constraints: cmd.Constraints}
	if constraints.Constraints == nil {
		constraints.Constraints = []interfaces.Constraint{}
	}
	properties := &interfaces.PropertyGroup{ID: m.newID(), Properties: []interfaces.Property{}}
	metadata.MergeProperties(properties, metadata.TypedProperties(nil, cmd.Properties))
	c := &interfaces.Collection{
		ID:                m.newID(),
		Name:              name,
		Description:       cmd.Description,
		ProviderTag:       cmd.ProviderTag,
		ConstraintGroupID: constraints.ID,
		PropertyGroupID:   properties.ID,
		CreatedDate:       now,
		LastModified:      now,
	}

	tx := newSaga("create_collection", m.log)
	err = tx.Step(ctx, "constraint_group",
		func(ctx context.Context) error { return m.store.CreateConstraintGroup(ctx, constraints) },
		func(ctx context.Context) error { return m.store.DeleteConstraintGroup(ctx, constraints.ID) })
	if err != nil {
		return nil, fail(interfaces.SubsystemStore, err, "failed to create constraint group")
	}
	err = tx.Step(ctx, "property_group",
		func(ctx context.Context) error { return m.store.CreatePropertyGroup(ctx, properties) },
		func(ctx context.Context) error { return m.store.DeletePropertyGroup(ctx, properties.ID) })
	if err != nil {
		tx.Abort(ctx, err)
		return nil, fail(interfaces.SubsystemStore, err, "failed to create property group")
	}
	err = tx.Step(ctx, "collection_row",
		func(ctx context.Context) error { return m.store.CreateCollection(ctx, c) },
		func(ctx context.Context) error { return m.store.DeleteCollection(ctx, c.ID) })
	if err != nil {
		tx.Abort(ctx, err)
		return nil, fail(interfaces.SubsystemStore, err, "failed to create collection %q", name)
	}

	provider, err := m.registry.ProviderFor(ctx, c.ProviderTag)
	if err != nil {
		tx.Abort(ctx, err)
		return nil, fail(interfaces.SubsystemRegistry, err, "failed to resolve storage binding %q", c.ProviderTag)
	}
	res, err := provider.CreateCollection(ctx, c)
	if err != nil {
		tx.Abort(ctx, err)
		m.log.Error("Provider failed to create collection",
			slog.String("collectionId", c.ID),
			slog.String("tag", c.ProviderTag),
			"err", err)
		return nil, fail(interfaces.SubsystemProvider, err, "failed to create collection %q in storage", name)
	}

	if len(res.Properties) > 0 {
		metadata.MergeProperties(properties, res.Properties)
		if err := m.store.UpdatePropertyGroup(ctx, properties); err != nil {
			return nil, fail(interfaces.SubsystemStore, err, "failed to record storage properties of collection %s", c.ID)
		}
	}

	m.log.Info("Created collection",
		slog.String("collectionId", c.ID),
		slog.String("name", c.Name),
		slog.String("tag", c.ProviderTag))
	return &CollectionDetails{Collection: c, Properties: properties, Constraints: constraints}, nil
}

// UpdateCollection applies cmd to collection id. Stored items are not
// re-validated against changed constraints. The collection row is written
// before the groups, so a concurrent modification of the row aborts the update
// with nothing applied. A failing group write after that leaves the row and any
// earlier group updated.
func (m *CollectionManager) UpdateCollection(ctx context.Context, id string, cmd UpdateCollectionCommand) (*CollectionDetails, error) {
	c, err := m.store.GetCollection(ctx, id)
	if err != nil {
		return nil, fail(interfaces.SubsystemStore, err, "failed to read collection %s", id)
	}
	current, err := m.details(ctx, c)
	if err != nil {
		return nil, err
	}

	if cmd.Name != nil {
		name := strings.TrimSpace(*cmd.Name)
		if name == "" {
			return nil, badRequest("collection name must not be empty")
		}
		if name != c.Name {
			taken, err := m.nameTaken(ctx, name)
			if err != nil {
				return nil, fail(interfaces.SubsystemStore, err, "failed to check collection name %q", name)
			}
			if taken {
				return nil, fail(interfaces.SubsystemManager, interfaces.ErrAlreadyExists, "collection %q already exists", name)
			}
			c.Name = name
		}
	}
	if cmd.Description != nil {
		c.Description = *cmd.Description
	}

	var constraints *interfaces.ConstraintGroup
	if len(cmd.Constraints) > 0 {
		if current.Constraints == nil {
			return nil, fail(interfaces.SubsystemManager, interfaces.ErrNotFound, "collection %s has no constraint group", id)
		}
		constraints = &interfaces.ConstraintGroup{
			ID:          current.Constraints.ID,
			Constraints: append([]interfaces.Constraint(nil), current.Constraints.Constraints...),
			Revision:    current.Constraints.Revision,
		}
		metadata.UpdateConstraints(constraints, cmd.Constraints)
		if err := metadata.CheckDefinitions(constraints.Constraints); err != nil {
			return nil, fail(interfaces.SubsystemValidation, err, "invalid constraints")
		}
	}
	if len(cmd.Properties) > 0 && current.Properties == nil {
		return nil, fail(interfaces.SubsystemManager, interfaces.ErrNotFound, "collection %s has no property group", id)
	}

	c.LastModified = m.now()
	if err := m.store.UpdateCollection(ctx, c); err != nil {
		return nil, fail(interfaces.SubsystemStore, err, "failed to update collection %s", id)
	}

	if constraints != nil {
		if err := m.store.UpdateConstraintGroup(ctx, constraints); err != nil {
			return nil, fail(interfaces.SubsystemStore, err, "failed to update constraints of collection %s", id)
		}
		current.Constraints = constraints
	}
	if len(cmd.Properties) > 0 {
		metadata.MergeProperties(current.Properties, metadata.TypedProperties(nil, cmd.Properties))
		if err := m.store.UpdatePropertyGroup(ctx, current.Properties); err != nil {
			return nil, fail(interfaces.SubsystemStore, err, "failed to update properties of collection %s", id)
		}
	}

	m.log.Info("Updated collection",
		slog.String("collectionId", c.ID),
		slog.String("name", c.Name))
	return current, nil
}
