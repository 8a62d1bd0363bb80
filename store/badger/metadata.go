package badger

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/ruteri/content-service-backend/interfaces"
)

// MetadataStore implements interfaces.MetadataStore for BadgerDB.
// Rows are JSON encoded; every call runs in its own transaction.
type MetadataStore struct {
	backend *Backend
}

var _ interfaces.MetadataStore = (*MetadataStore)(nil)

// NewMetadataStore creates a new MetadataStore.
func NewMetadataStore(backend *Backend) *MetadataStore {
	return &MetadataStore{backend: backend}
}

// checkRevision enforces optimistic concurrency: the caller's copy must carry
// the stored revision.
func checkRevision(kind, id string, stored, submitted int64) error {
	if stored != submitted {
		return fmt.Errorf("%w: %s %s is at revision %d, update based on %d",
			interfaces.ErrConcurrentModification, kind, id, stored, submitted)
	}
	return nil
}

// CreateCollection inserts the row and its name index. A name that is already
// indexed is rejected with ErrAlreadyExists.
func (s *MetadataStore) CreateCollection(ctx context.Context, c *interfaces.Collection) error {
	return s.backend.WithTx(func(tx *badger.Txn) error {
		taken, err := exists(tx, makeCollectionNameKey(c.Name))
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: collection %q", interfaces.ErrAlreadyExists, c.Name)
		}
		c.Revision = 1
		if err := setJSON(tx, makeCollectionKey(c.ID), c); err != nil {
			return err
		}
		return tx.Set(makeCollectionNameKey(c.Name), []byte(c.ID))
	}, true)
}

func (s *MetadataStore) GetCollection(ctx context.Context, id string) (*interfaces.Collection, error) {
	var c interfaces.Collection
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		return getJSON(tx, makeCollectionKey(id), &c)
	}, false)
	if err != nil {
		return nil, fmt.Errorf("collection %s: %w", id, err)
	}
	return &c, nil
}

func (s *MetadataStore) GetCollectionByName(ctx context.Context, name string) (*interfaces.Collection, error) {
	var c interfaces.Collection
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeCollectionNameKey(name))
		if err == badger.ErrKeyNotFound {
			return interfaces.ErrNotFound
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return getJSON(tx, makeCollectionKey(string(id)), &c)
	}, false)
	if err != nil {
		return nil, fmt.Errorf("collection %q: %w", name, err)
	}
	return &c, nil
}

// ListCollections returns all collections ordered by name.
func (s *MetadataStore) ListCollections(ctx context.Context) ([]*interfaces.Collection, error) {
	var out []*interfaces.Collection
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range scanSuffixes(tx, []byte(collectionPrefix+":")) {
			var c interfaces.Collection
			if err := getJSON(tx, makeCollectionKey(id), &c); err != nil {
				return err
			}
			out = append(out, &c)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// UpdateCollection writes c if its revision matches, moving the name index on rename.
func (s *MetadataStore) UpdateCollection(ctx context.Context, c *interfaces.Collection) error {
	next := c.Revision + 1
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var stored interfaces.Collection
		if err := getJSON(tx, makeCollectionKey(c.ID), &stored); err != nil {
			return fmt.Errorf("collection %s: %w", c.ID, err)
		}
		if err := checkRevision("collection", c.ID, stored.Revision, c.Revision); err != nil {
			return err
		}
		if stored.Name != c.Name {
			taken, err := exists(tx, makeCollectionNameKey(c.Name))
			if err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("%w: collection %q", interfaces.ErrAlreadyExists, c.Name)
			}
			if err := tx.Delete(makeCollectionNameKey(stored.Name)); err != nil {
				return err
			}
			if err := tx.Set(makeCollectionNameKey(c.Name), []byte(c.ID)); err != nil {
				return err
			}
		}
		row := *c
		row.Revision = next
		return setJSON(tx, makeCollectionKey(c.ID), &row)
	}, true)
	if err != nil {
		return err
	}
	c.Revision = next
	return nil
}

func (s *MetadataStore) DeleteCollection(ctx context.Context, id string) error {
	return s.backend.WithTx(func(tx *badger.Txn) error {
		var stored interfaces.Collection
		if err := getJSON(tx, makeCollectionKey(id), &stored); err != nil {
			return fmt.Errorf("collection %s: %w", id, err)
		}
		if err := tx.Delete(makeCollectionNameKey(stored.Name)); err != nil {
			return err
		}
		return tx.Delete(makeCollectionKey(id))
	}, true)
}

func (s *MetadataStore) CreateItem(ctx context.Context, item *interfaces.Item) error {
	return s.backend.WithTx(func(tx *badger.Txn) error {
		item.Revision = 1
		if err := setJSON(tx, makeItemKey(item.ID), item); err != nil {
			return err
		}
		return tx.Set(makeItemCollectionKey(item.CollectionID, item.ID), nil)
	}, true)
}

func (s *MetadataStore) GetItem(ctx context.Context, id string) (*interfaces.Item, error) {
	var item interfaces.Item
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		return getJSON(tx, makeItemKey(id), &item)
	}, false)
	if err != nil {
		return nil, fmt.Errorf("item %s: %w", id, err)
	}
	return &item, nil
}

// ListItems returns the items of a collection ordered by creation date.
func (s *MetadataStore) ListItems(ctx context.Context, collectionID string) ([]*interfaces.Item, error) {
	var out []*interfaces.Item
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range scanSuffixes(tx, makePartialItemCollectionKey(collectionID)) {
			var item interfaces.Item
			if err := getJSON(tx, makeItemKey(id), &item); err != nil {
				return err
			}
			out = append(out, &item)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedDate.Before(out[j].CreatedDate) })
	return out, nil
}

func (s *MetadataStore) UpdateItem(ctx context.Context, item *interfaces.Item) error {
	next := item.Revision + 1
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var stored interfaces.Item
		if err := getJSON(tx, makeItemKey(item.ID), &stored); err != nil {
			return fmt.Errorf("item %s: %w", item.ID, err)
		}
		if err := checkRevision("item", item.ID, stored.Revision, item.Revision); err != nil {
			return err
		}
		row := *item
		row.Revision = next
		return setJSON(tx, makeItemKey(item.ID), &row)
	}, true)
	if err != nil {
		return err
	}
	item.Revision = next
	return nil
}

func (s *MetadataStore) DeleteItem(ctx context.Context, id string) error {
	return s.backend.WithTx(func(tx *badger.Txn) error {
		var stored interfaces.Item
		if err := getJSON(tx, makeItemKey(id), &stored); err != nil {
			return fmt.Errorf("item %s: %w", id, err)
		}
		if err := tx.Delete(makeItemCollectionKey(stored.CollectionID, id)); err != nil {
			return err
		}
		return tx.Delete(makeItemKey(id))
	}, true)
}

// CreateItemVersion inserts an immutable version row. Versions are never updated.
func (s *MetadataStore) CreateItemVersion(ctx context.Context, v *interfaces.ItemVersion) error {
	return s.backend.WithTx(func(tx *badger.Txn) error {
		taken, err := exists(tx, makeVersionKey(v.ID))
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: item version %s", interfaces.ErrAlreadyExists, v.ID)
		}
		v.Revision = 1
		if err := setJSON(tx, makeVersionKey(v.ID), v); err != nil {
			return err
		}
		return tx.Set(makeVersionItemKey(v.ItemID, v.ID), nil)
	}, true)
}

func (s *MetadataStore) GetItemVersion(ctx context.Context, id string) (*interfaces.ItemVersion, error) {
	var v interfaces.ItemVersion
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		return getJSON(tx, makeVersionKey(id), &v)
	}, false)
	if err != nil {
		return nil, fmt.Errorf("item version %s: %w", id, err)
	}
	return &v, nil
}

// ListItemVersions returns the versions of an item ordered by (major, minor).
func (s *MetadataStore) ListItemVersions(ctx context.Context, itemID string) ([]*interfaces.ItemVersion, error) {
	var out []*interfaces.ItemVersion
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range scanSuffixes(tx, makePartialVersionItemKey(itemID)) {
			var v interfaces.ItemVersion
			if err := getJSON(tx, makeVersionKey(id), &v); err != nil {
				return err
			}
			out = append(out, &v)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Major != out[j].Major {
			return out[i].Major < out[j].Major
		}
		return out[i].Minor < out[j].Minor
	})
	return out, nil
}

func (s *MetadataStore) UpdateItemVersion(ctx context.Context, v *interfaces.ItemVersion) error {
	next := v.Revision + 1
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var stored interfaces.ItemVersion
		if err := getJSON(tx, makeVersionKey(v.ID), &stored); err != nil {
			return fmt.Errorf("item version %s: %w", v.ID, err)
		}
		if err := checkRevision("item version", v.ID, stored.Revision, v.Revision); err != nil {
			return err
		}
		row := *v
		row.Revision = next
		return setJSON(tx, makeVersionKey(v.ID), &row)
	}, true)
	if err != nil {
		return err
	}
	v.Revision = next
	return nil
}

func (s *MetadataStore) DeleteItemVersion(ctx context.Context, id string) error {
	return s.backend.WithTx(func(tx *badger.Txn) error {
		var stored interfaces.ItemVersion
		if err := getJSON(tx, makeVersionKey(id), &stored); err != nil {
			return fmt.Errorf("item version %s: %w", id, err)
		}
		if err := tx.Delete(makeVersionItemKey(stored.ItemID, id)); err != nil {
			return err
		}
		return tx.Delete(makeVersionKey(id))
	}, true)
}

func (s *MetadataStore) CreatePropertyGroup(ctx context.Context, g *interfaces.PropertyGroup) error {
	return s.backend.WithTx(func(tx *badger.Txn) error {
		g.Revision = 1
		return setJSON(tx, makePropertyGroupKey(g.ID), g)
	}, true)
}

func (s *MetadataStore) GetPropertyGroup(ctx context.Context, id string) (*interfaces.PropertyGroup, error) {
	var g interfaces.PropertyGroup
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		return getJSON(tx, makePropertyGroupKey(id), &g)
	}, false)
	if err != nil {
		return nil, fmt.Errorf("property group %s: %w", id, err)
	}
	return &g, nil
}

func (s *MetadataStore) UpdatePropertyGroup(ctx context.Context, g *interfaces.PropertyGroup) error {
	next := g.Revision + 1
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var stored interfaces.PropertyGroup
		if err := getJSON(tx, makePropertyGroupKey(g.ID), &stored); err != nil {
			return fmt.Errorf("property group %s: %w", g.ID, err)
		}
		if err := checkRevision("property group", g.ID, stored.Revision, g.Revision); err != nil {
			return err
		}
		row := *g
		row.Revision = next
		return setJSON(tx, makePropertyGroupKey(g.ID), &row)
	}, true)
	if err != nil {
		return err
	}
	g.Revision = next
	return nil
}

func (s *MetadataStore) DeletePropertyGroup(ctx context.Context, id string) error {
	return s.deleteKey(makePropertyGroupKey(id))
}

func (s *MetadataStore) CreateConstraintGroup(ctx context.Context, g *interfaces.ConstraintGroup) error {
	return s.backend.WithTx(func(tx *badger.Txn) error {
		g.Revision = 1
		return setJSON(tx, makeConstraintGroupKey(g.ID), g)
	}, true)
}

func (s *MetadataStore) GetConstraintGroup(ctx context.Context, id string) (*interfaces.ConstraintGroup, error) {
	var g interfaces.ConstraintGroup
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		return getJSON(tx, makeConstraintGroupKey(id), &g)
	}, false)
	if err != nil {
		return nil, fmt.Errorf("constraint group %s: %w", id, err)
	}
	return &g, nil
}

func (s *MetadataStore) UpdateConstraintGroup(ctx context.Context, g *interfaces.ConstraintGroup) error {
	next := g.Revision + 1
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var stored interfaces.ConstraintGroup
		if err := getJSON(tx, makeConstraintGroupKey(g.ID), &stored); err != nil {
			return fmt.Errorf("constraint group %s: %w", g.ID, err)
		}
		if err := checkRevision("constraint group", g.ID, stored.Revision, g.Revision); err != nil {
			return err
		}
		row := *g
		row.Revision = next
		return setJSON(tx, makeConstraintGroupKey(g.ID), &row)
	}, true)
	if err != nil {
		return err
	}
	g.Revision = next
	return nil
}

func (s *MetadataStore) DeleteConstraintGroup(ctx context.Context, id string) error {
	return s.deleteKey(makeConstraintGroupKey(id))
}

func (s *MetadataStore) deleteKey(key []byte) error {
	return s.backend.WithTx(func(tx *badger.Txn) error {
		ok, err := exists(tx, key)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s: %w", strings.SplitN(string(key), ":", 2)[0], interfaces.ErrNotFound)
		}
		return tx.Delete(key)
	}, true)
}
