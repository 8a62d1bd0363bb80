package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/ruteri/content-service-backend/config"
	"github.com/ruteri/content-service-backend/interfaces"
)

// IPFSProvider stores content in the mutable file system (MFS) of an IPFS
// node. Addresses are MFS paths below mfsRoot; the content hash of each
// version is reported as its node identifier.
type IPFSProvider struct {
	tag     string
	mfsRoot string
	shell   *shell.Shell
	log     *slog.Logger
}

var _ interfaces.StorageProvider = (*IPFSProvider)(nil)

func NewIPFSProvider(log *slog.Logger) *IPFSProvider {
	return &IPFSProvider{log: log}
}

// Bind requires apiAddress (host:port or URL of the node API) and mfsRoot.
func (p *IPFSProvider) Bind(ctx context.Context, binding interfaces.StorageBinding, _ interfaces.PathCachePartition, client *http.Client) error {
	apiAddress, err := config.RequiredString(binding, "apiAddress")
	if err != nil {
		return err
	}
	root, err := config.RequiredString(binding, "mfsRoot")
	if err != nil {
		return err
	}
	if !strings.HasPrefix(root, "/") {
		return fmt.Errorf("%w: binding %q mfsRoot %q must start with /", interfaces.ErrConfiguration, binding.Tag, root)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	p.tag = binding.Tag
	p.mfsRoot = path.Clean(root)
	p.shell = shell.NewShellWithClient(apiAddress, client)
	return nil
}

func (p *IPFSProvider) Type() string { return "ipfs" }

func (p *IPFSProvider) Tag() string { return p.tag }

func (p *IPFSProvider) mfsPath(address string) string {
	return path.Join(p.mfsRoot, address)
}

func ipfsError(message string, err error) error {
	if strings.Contains(err.Error(), "does not exist") || strings.Contains(err.Error(), "not found") {
		return notFound("%s: %v", message, err)
	}
	return interfaces.NewStorageError(http.StatusBadGateway, message, err)
}

// CreateCollection creates the collection directory in MFS, including parents.
// An existing directory is adopted.
func (p *IPFSProvider) CreateCollection(ctx context.Context, c *interfaces.Collection) (*interfaces.StorageOperationResult, error) {
	dir := p.mfsPath(CollectionPath("", c.ID))
	if err := p.shell.FilesMkdir(ctx, dir, shell.FilesMkdir.Parents(true)); err != nil {
		return nil, ipfsError("failed to create MFS directory", err)
	}

	props := baseProperties(p.Type())
	props[PropPath] = interfaces.StringValue(dir)
	return okResult(props), nil
}

func (p *IPFSProvider) CreateItemVersion(ctx context.Context, c *interfaces.Collection, item *interfaces.Item, v *interfaces.ItemVersion, content io.Reader) (*interfaces.StorageOperationResult, error) {
	start := time.Now()
	file := p.mfsPath(VersionPath("", c.ID, item.ID, v, false))

	counter := &countingReader{r: content}
	err := p.shell.FilesWrite(ctx, file, counter,
		shell.FilesWrite.Create(true),
		shell.FilesWrite.Parents(true),
		shell.FilesWrite.Truncate(true))
	if err != nil {
		p.log.Error("Failed to write MFS file", slog.String("path", file), "err", err)
		return nil, ipfsError("failed to write MFS file", err)
	}

	stat, err := p.shell.FilesStat(ctx, file)
	if err != nil {
		return nil, ipfsError("failed to stat MFS file", err)
	}

	p.log.Debug("Stored item version in IPFS",
		slog.String("path", file),
		slog.String("cid", stat.Hash),
		slog.Int64("size", counter.n),
		slog.Duration("duration", time.Since(start)))

	props := baseProperties(p.Type())
	props[PropPath] = interfaces.StringValue(file)
	props[PropNodeID] = interfaces.StringValue(stat.Hash)
	props[PropSize] = interfaces.NumberValue(float64(counter.n))
	if v.MimeType != "" {
		props[PropContentType] = interfaces.StringValue(v.MimeType)
	}
	res := okResult(props)
	res.Size = counter.n
	return res, nil
}

func (p *IPFSProvider) ReadItemVersion(ctx context.Context, c *interfaces.Collection, item *interfaces.Item, v *interfaces.ItemVersion) (*interfaces.StorageOperationResult, error) {
	file := p.mfsPath(VersionPath("", c.ID, item.ID, v, false))
	stat, err := p.shell.FilesStat(ctx, file)
	if err != nil {
		return nil, ipfsError(fmt.Sprintf("version %s", file), err)
	}
	rc, err := p.shell.FilesRead(ctx, file)
	if err != nil {
		return nil, ipfsError(fmt.Sprintf("failed to read %s", file), err)
	}

	res := okResult(map[string]interfaces.PropertyValue{
		PropPath:   interfaces.StringValue(file),
		PropNodeID: interfaces.StringValue(stat.Hash),
	})
	res.Stream = rc
	res.Size = int64(stat.Size)
	return res, nil
}

func (p *IPFSProvider) DeleteItem(ctx context.Context, c *interfaces.Collection, item *interfaces.Item) (*interfaces.StorageOperationResult, error) {
	dir := p.mfsPath(ItemPath("", c.ID, item.ID))
	if err := p.shell.FilesRm(ctx, dir, true); err != nil {
		err = ipfsError("failed to remove MFS directory", err)
		if interfaces.StatusHint(err) != http.StatusNotFound {
			return nil, err
		}
	}
	return okResult(nil), nil
}
