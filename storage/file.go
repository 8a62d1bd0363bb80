package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/ruteri/content-service-backend/config"
	"github.com/ruteri/content-service-backend/interfaces"
)

// FilesystemProvider stores content on the local file system under rootDirectory.
//
//	{rootDirectory}/{collectionId}/{itemId}/{major}_{minor}
type FilesystemProvider struct {
	tag     string
	rootDir string
	log     *slog.Logger
}

var _ interfaces.StorageProvider = (*FilesystemProvider)(nil)

// NewFilesystemProvider returns an unbound provider.
func NewFilesystemProvider(log *slog.Logger) *FilesystemProvider {
	return &FilesystemProvider{log: log}
}

// Bind reads rootDirectory, which must be absolute, and ensures it exists.
// The path cache and network client are not used.
func (p *FilesystemProvider) Bind(ctx context.Context, binding interfaces.StorageBinding, _ interfaces.PathCachePartition, _ *http.Client) error {
	root, err := config.RequiredString(binding, "rootDirectory")
	if err != nil {
		return err
	}
	if !filepath.IsAbs(root) {
		return fmt.Errorf("%w: binding %q rootDirectory %q is not absolute", interfaces.ErrConfiguration, binding.Tag, root)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("%w: failed to create root directory %s: %v", interfaces.ErrConfiguration, root, err)
	}

	p.tag = binding.Tag
	p.rootDir = filepath.Clean(root)
	return nil
}

func (p *FilesystemProvider) Type() string { return "filesystem" }

func (p *FilesystemProvider) Tag() string { return p.tag }

// localPath maps a slash separated address below the root onto the file system.
func (p *FilesystemProvider) localPath(address string) string {
	return filepath.Join(p.rootDir, filepath.FromSlash(address))
}

// CreateCollection creates the collection directory. The parent must exist and
// an existing directory is a conflict.
func (p *FilesystemProvider) CreateCollection(ctx context.Context, c *interfaces.Collection) (*interfaces.StorageOperationResult, error) {
	dir := p.localPath(CollectionPath("", c.ID))
	if err := os.Mkdir(dir, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, interfaces.NewStorageError(http.StatusConflict, fmt.Sprintf("collection directory %s already exists", dir), interfaces.ErrAlreadyExists)
		}
		return nil, interfaces.NewStorageError(http.StatusInternalServerError, "failed to create collection directory", err)
	}

	p.log.Debug("Created collection directory", slog.String("path", dir))

	props := baseProperties(p.Type())
	props[PropPath] = interfaces.StringValue(dir)
	return okResult(props), nil
}

// CreateItemVersion streams content into a new version file. Versions are
// immutable: an existing file is a conflict.
func (p *FilesystemProvider) CreateItemVersion(ctx context.Context, c *interfaces.Collection, item *interfaces.Item, v *interfaces.ItemVersion, content io.Reader) (*interfaces.StorageOperationResult, error) {
	itemDir := p.localPath(ItemPath("", c.ID, item.ID))
	if err := os.MkdirAll(itemDir, 0o755); err != nil {
		return nil, interfaces.NewStorageError(http.StatusInternalServerError, "failed to create item directory", err)
	}

	filePath := p.localPath(VersionPath("", c.ID, item.ID, v, false))
	f, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, interfaces.NewStorageError(http.StatusConflict, fmt.Sprintf("version file %s already exists", filePath), interfaces.ErrAlreadyExists)
		}
		return nil, interfaces.NewStorageError(http.StatusInternalServerError, "failed to create version file", err)
	}

	n, err := io.Copy(f, content)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(filePath)
		return nil, interfaces.NewStorageError(http.StatusInternalServerError, "failed to write version file", err)
	}

	p.log.Debug("Stored item version",
		slog.String("path", filePath),
		slog.Int64("size", n))

	props := baseProperties(p.Type())
	props[PropPath] = interfaces.StringValue(filePath)
	props[PropSize] = interfaces.NumberValue(float64(n))
	if v.MimeType != "" {
		props[PropContentType] = interfaces.StringValue(v.MimeType)
	}
	res := okResult(props)
	res.Size = n
	return res, nil
}

func (p *FilesystemProvider) ReadItemVersion(ctx context.Context, c *interfaces.Collection, item *interfaces.Item, v *interfaces.ItemVersion) (*interfaces.StorageOperationResult, error) {
	filePath := p.localPath(VersionPath("", c.ID, item.ID, v, false))
	f, err := os.Open(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound("version file %s does not exist", filePath)
	}
	if err != nil {
		return nil, interfaces.NewStorageError(http.StatusInternalServerError, "failed to open version file", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, interfaces.NewStorageError(http.StatusInternalServerError, "failed to stat version file", err)
	}

	res := okResult(map[string]interfaces.PropertyValue{
		PropPath: interfaces.StringValue(filePath),
	})
	res.Stream = f
	res.Size = info.Size()
	return res, nil
}

// DeleteItem removes the item directory with all of its versions. A missing
// directory is not an error.
func (p *FilesystemProvider) DeleteItem(ctx context.Context, c *interfaces.Collection, item *interfaces.Item) (*interfaces.StorageOperationResult, error) {
	itemDir := p.localPath(ItemPath("", c.ID, item.ID))
	if err := os.RemoveAll(itemDir); err != nil {
		return nil, interfaces.NewStorageError(http.StatusInternalServerError, "failed to remove item directory", err)
	}
	p.log.Debug("Removed item directory", slog.String("path", itemDir))
	return okResult(nil), nil
}
