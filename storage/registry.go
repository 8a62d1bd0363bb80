package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/ruteri/content-service-backend/interfaces"
)

// OperationObserver is notified after every provider operation.
type OperationObserver interface {
	ProviderOperation(providerType, operation string, duration time.Duration, err error)
}

// providerConstructors maps a binding's providerType to its implementation.
var providerConstructors = map[string]func(r *ProviderRegistry) interfaces.StorageProvider{
	"filesystem": func(r *ProviderRegistry) interfaces.StorageProvider { return NewFilesystemProvider(r.log) },
	"rest":       func(r *ProviderRegistry) interfaces.StorageProvider { return NewRESTProvider(r.log) },
	"soap":       func(r *ProviderRegistry) interfaces.StorageProvider { return NewSOAPProvider(r.log) },
	"s3":         func(r *ProviderRegistry) interfaces.StorageProvider { return NewS3Provider(r.log) },
	"ipfs":       func(r *ProviderRegistry) interfaces.StorageProvider { return NewIPFSProvider(r.log) },
	"vault":      func(r *ProviderRegistry) interfaces.StorageProvider { return NewVaultProvider(r.log) },
}

func init() {
	// Registered here since mirror members resolve through ProviderFor.
	providerConstructors["mirror"] = func(r *ProviderRegistry) interfaces.StorageProvider {
		return NewMirrorProvider(r.ProviderFor, r.binding, r.log)
	}
}

// ProviderTypes returns the supported provider types, sorted.
func ProviderTypes() []string {
	out := make([]string, 0, len(providerConstructors))
	for t := range providerConstructors {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// ProviderRegistry creates one provider per binding tag on first use and
// shares it with every later caller.
type ProviderRegistry struct {
	bindings []interfaces.StorageBinding
	byTag    map[string]interfaces.StorageBinding
	cache    interfaces.PathCache
	client   *http.Client
	observer OperationObserver
	log      *slog.Logger

	mu        sync.Mutex
	providers map[string]interfaces.StorageProvider
}

var _ interfaces.ProviderRegistry = (*ProviderRegistry)(nil)

// NewProviderRegistry creates a registry over bindings. client is handed to
// every provider; each provider gets the cache partition named after its tag.
func NewProviderRegistry(bindings []interfaces.StorageBinding, pathCache interfaces.PathCache, client *http.Client, log *slog.Logger) *ProviderRegistry {
	if log == nil {
		log = slog.Default()
	}
	byTag := make(map[string]interfaces.StorageBinding, len(bindings))
	for _, b := range bindings {
		byTag[b.Tag] = b
	}
	return &ProviderRegistry{
		bindings:  bindings,
		byTag:     byTag,
		cache:     pathCache,
		client:    client,
		log:       log,
		providers: make(map[string]interfaces.StorageProvider),
	}
}

// SetObserver installs an observer for providers created afterwards.
func (r *ProviderRegistry) SetObserver(o OperationObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = o
}

// Bindings returns the configured bindings in load order.
func (r *ProviderRegistry) Bindings() []interfaces.StorageBinding {
	return r.bindings
}

// binding returns the configured binding for tag. byTag is never mutated, so
// no lock is needed.
func (r *ProviderRegistry) binding(tag string) (interfaces.StorageBinding, bool) {
	b, ok := r.byTag[tag]
	return b, ok
}

// ProviderFor returns the bound provider for tag. A failed bind is not cached,
// so the next call tries again.
func (r *ProviderRegistry) ProviderFor(ctx context.Context, tag string) (interfaces.StorageProvider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.providers[tag]; ok {
		return p, nil
	}

	binding, ok := r.byTag[tag]
	if !ok {
		return nil, fmt.Errorf("%w: no storage binding with tag %q", interfaces.ErrConfiguration, tag)
	}
	newProvider, ok := providerConstructors[binding.ProviderType]
	if !ok {
		return nil, fmt.Errorf("%w: binding %q has unsupported providerType %q", interfaces.ErrConfiguration, tag, binding.ProviderType)
	}

	p := newProvider(r)
	var partition interfaces.PathCachePartition
	if r.cache != nil {
		partition = r.cache.Partition(tag)
	}
	if err := p.Bind(ctx, binding, partition, r.client); err != nil {
		r.log.Error("Failed to bind storage provider",
			slog.String("tag", tag),
			slog.String("providerType", binding.ProviderType),
			"err", err)
		return nil, err
	}

	if r.observer != nil {
		p = &instrumentedProvider{StorageProvider: p, observer: r.observer}
	}
	r.providers[tag] = p
	r.log.Info("Bound storage provider",
		slog.String("tag", tag),
		slog.String("providerType", binding.ProviderType))
	return p, nil
}

// instrumentedProvider reports the outcome and duration of every operation.
type instrumentedProvider struct {
	interfaces.StorageProvider
	observer OperationObserver
}

func (p *instrumentedProvider) observe(op string, start time.Time, err error) {
	p.observer.ProviderOperation(p.Type(), op, time.Since(start), err)
}

func (p *instrumentedProvider) CreateCollection(ctx context.Context, c *interfaces.Collection) (*interfaces.StorageOperationResult, error) {
	start := time.Now()
	res, err := p.StorageProvider.CreateCollection(ctx, c)
	p.observe("create_collection", start, err)
	return res, err
}

func (p *instrumentedProvider) CreateItemVersion(ctx context.Context, c *interfaces.Collection, item *interfaces.Item, v *interfaces.ItemVersion, content io.Reader) (*interfaces.StorageOperationResult, error) {
	start := time.Now()
	res, err := p.StorageProvider.CreateItemVersion(ctx, c, item, v, content)
	p.observe("create_item_version", start, err)
	return res, err
}

func (p *instrumentedProvider) ReadItemVersion(ctx context.Context, c *interfaces.Collection, item *interfaces.Item, v *interfaces.ItemVersion) (*interfaces.StorageOperationResult, error) {
	start := time.Now()
	res, err := p.StorageProvider.ReadItemVersion(ctx, c, item, v)
	p.observe("read_item_version", start, err)
	return res, err
}

func (p *instrumentedProvider) DeleteItem(ctx context.Context, c *interfaces.Collection, item *interfaces.Item) (*interfaces.StorageOperationResult, error) {
	start := time.Now()
	res, err := p.StorageProvider.DeleteItem(ctx, c, item)
	p.observe("delete_item", start, err)
	return res, err
}
