package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ruteri/content-service-backend/interfaces"
)

// PropReplicas counts the members that accepted a mirrored write.
const PropReplicas = "storage.replicas"

// providerLookup resolves a binding tag to its bound provider.
type providerLookup func(ctx context.Context, tag string) (interfaces.StorageProvider, error)

// bindingLookup returns the configured binding for a tag.
type bindingLookup func(tag string) (interfaces.StorageBinding, bool)

// MirrorProvider replicates content across the providers of other bindings.
// Writes go to every member and succeed if at least one member accepts them.
// Reads are served by the first member that has the version. Deletes must
// succeed on every member.
type MirrorProvider struct {
	tag      string
	members  []string
	lookup   providerLookup
	bindings bindingLookup
	log      *slog.Logger
}

var _ interfaces.StorageProvider = (*MirrorProvider)(nil)

// NewMirrorProvider creates an unbound mirror. Members are resolved through
// lookup on each operation, so binding a mirror never binds its members.
// bindings, when set, lets Bind reject mirrors that reach themselves through
// other mirrors.
func NewMirrorProvider(lookup providerLookup, bindings bindingLookup, log *slog.Logger) *MirrorProvider {
	if log == nil {
		log = slog.Default()
	}
	return &MirrorProvider{lookup: lookup, bindings: bindings, log: log}
}

// Bind reads members, a list of binding tags or a comma separated string.
func (m *MirrorProvider) Bind(ctx context.Context, binding interfaces.StorageBinding, _ interfaces.PathCachePartition, _ *http.Client) error {
	members, err := mirrorMembers(binding)
	if err != nil {
		return err
	}
	if m.lookup == nil {
		return fmt.Errorf("%w: binding %q has no provider lookup", interfaces.ErrConfiguration, binding.Tag)
	}
	if err := m.checkCycle(binding.Tag, members); err != nil {
		return err
	}

	m.tag = binding.Tag
	m.members = members
	return nil
}

// checkCycle walks member mirrors and fails if any of them leads back to tag.
func (m *MirrorProvider) checkCycle(tag string, members []string) error {
	if m.bindings == nil {
		return nil
	}
	visited := map[string]bool{}
	pending := append([]string(nil), members...)
	for len(pending) > 0 {
		next := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if visited[next] {
			continue
		}
		visited[next] = true

		b, ok := m.bindings(next)
		if !ok || b.ProviderType != m.Type() {
			continue
		}
		nested, err := mirrorMembers(b)
		if err != nil {
			continue
		}
		for _, member := range nested {
			if member == tag {
				return fmt.Errorf("%w: binding %q reaches itself through mirror %q", interfaces.ErrConfiguration, tag, next)
			}
			pending = append(pending, member)
		}
	}
	return nil
}

func mirrorMembers(binding interfaces.StorageBinding) ([]string, error) {
	var members []string
	switch v := binding.Properties["members"].(type) {
	case string:
		for _, tag := range strings.Split(v, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				members = append(members, tag)
			}
		}
	case []any:
		for _, raw := range v {
			tag, ok := raw.(string)
			if !ok || tag == "" {
				return nil, fmt.Errorf("%w: binding %q has invalid member %v", interfaces.ErrConfiguration, binding.Tag, raw)
			}
			members = append(members, tag)
		}
	case []string:
		members = append(members, v...)
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("%w: binding %q requires property %q", interfaces.ErrConfiguration, binding.Tag, "members")
	}
	for _, tag := range members {
		if tag == binding.Tag {
			return nil, fmt.Errorf("%w: binding %q lists itself as a member", interfaces.ErrConfiguration, binding.Tag)
		}
	}
	return members, nil
}

func (m *MirrorProvider) Type() string { return "mirror" }

func (m *MirrorProvider) Tag() string { return m.tag }

// each runs fn against every member and returns the per-member errors.
func (m *MirrorProvider) each(ctx context.Context, fn func(p interfaces.StorageProvider) (*interfaces.StorageOperationResult, error)) (*interfaces.StorageOperationResult, []string, []error) {
	var first *interfaces.StorageOperationResult
	var ok []string
	var errs []error
	for _, tag := range m.members {
		p, err := m.lookup(ctx, tag)
		if err == nil {
			var res *interfaces.StorageOperationResult
			res, err = fn(p)
			if err == nil {
				if first == nil {
					first = res
				}
				ok = append(ok, tag)
				continue
			}
		}
		errs = append(errs, fmt.Errorf("%s: %w", tag, err))
		m.log.Warn("Mirror member failed",
			slog.String("mirror", m.tag),
			slog.String("member", tag),
			"err", err)
	}
	return first, ok, errs
}

func (m *MirrorProvider) replicated(first *interfaces.StorageOperationResult, ok []string, errs []error, op string) (*interfaces.StorageOperationResult, error) {
	if first == nil {
		return nil, interfaces.NewStorageError(http.StatusBadGateway, fmt.Sprintf("all mirror members failed to %s", op), errors.Join(errs...))
	}
	props := make(map[string]interfaces.PropertyValue, len(first.Properties)+2)
	for k, v := range first.Properties {
		props[k] = v
	}
	props[PropProvider] = interfaces.StringValue(m.Type() + ":" + strings.Join(ok, ","))
	props[PropReplicas] = interfaces.NumberValue(float64(len(ok)))
	res := okResult(props)
	res.Size = first.Size
	return res, nil
}

func (m *MirrorProvider) CreateCollection(ctx context.Context, c *interfaces.Collection) (*interfaces.StorageOperationResult, error) {
	first, ok, errs := m.each(ctx, func(p interfaces.StorageProvider) (*interfaces.StorageOperationResult, error) {
		return p.CreateCollection(ctx, c)
	})
	return m.replicated(first, ok, errs, "create collection")
}

// CreateItemVersion buffers the content once and replays it to every member.
func (m *MirrorProvider) CreateItemVersion(ctx context.Context, c *interfaces.Collection, item *interfaces.Item, v *interfaces.ItemVersion, content io.Reader) (*interfaces.StorageOperationResult, error) {
	start := time.Now()
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, interfaces.NewStorageError(http.StatusInternalServerError, "failed to read content", err)
	}
	first, ok, errs := m.each(ctx, func(p interfaces.StorageProvider) (*interfaces.StorageOperationResult, error) {
		return p.CreateItemVersion(ctx, c, item, v, bytes.NewReader(data))
	})
	res, err := m.replicated(first, ok, errs, "store item version")
	if err != nil {
		m.log.Error("All mirror members failed to store item version",
			slog.String("mirror", m.tag),
			slog.Int("failed_members", len(errs)),
			slog.Duration("duration", time.Since(start)))
		return nil, err
	}
	return res, nil
}

func (m *MirrorProvider) ReadItemVersion(ctx context.Context, c *interfaces.Collection, item *interfaces.Item, v *interfaces.ItemVersion) (*interfaces.StorageOperationResult, error) {
	var errs []error
	notFoundEverywhere := true
	for _, tag := range m.members {
		p, err := m.lookup(ctx, tag)
		if err == nil {
			var res *interfaces.StorageOperationResult
			if res, err = p.ReadItemVersion(ctx, c, item, v); err == nil {
				return res, nil
			}
		}
		if !errors.Is(err, interfaces.ErrNotFound) {
			notFoundEverywhere = false
		}
		errs = append(errs, fmt.Errorf("%s: %w", tag, err))
		m.log.Debug("Mirror member could not serve read",
			slog.String("mirror", m.tag),
			slog.String("member", tag),
			"err", err)
	}
	if notFoundEverywhere {
		return nil, notFound("version %s of item %s not found on any mirror member", v.VersionLabel(), item.ID)
	}
	return nil, interfaces.NewStorageError(http.StatusBadGateway, "all mirror members failed to read", errors.Join(errs...))
}

func (m *MirrorProvider) DeleteItem(ctx context.Context, c *interfaces.Collection, item *interfaces.Item) (*interfaces.StorageOperationResult, error) {
	_, _, errs := m.each(ctx, func(p interfaces.StorageProvider) (*interfaces.StorageOperationResult, error) {
		return p.DeleteItem(ctx, c, item)
	})
	if len(errs) > 0 {
		return nil, interfaces.NewStorageError(http.StatusBadGateway, "mirror delete incomplete", errors.Join(errs...))
	}
	return okResult(nil), nil
}
