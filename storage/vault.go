package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/ruteri/content-service-backend/config"
	"github.com/ruteri/content-service-backend/interfaces"
)

// VaultProvider stores content in a HashiCorp Vault KV v2 mount. Each version
// is one secret holding the base64 encoded content.
//
//	{mountPath}/data/{dataPath}/{collectionId}/{itemId}/{major}_{minor}
type VaultProvider struct {
	tag       string
	client    *api.Client
	mountPath string
	dataPath  string
	log       *slog.Logger
}

var _ interfaces.StorageProvider = (*VaultProvider)(nil)

func NewVaultProvider(log *slog.Logger) *VaultProvider {
	return &VaultProvider{log: log}
}

// Bind requires mountPath. address and token fall back to the VAULT_ADDR and
// VAULT_TOKEN environment variables.
func (p *VaultProvider) Bind(ctx context.Context, binding interfaces.StorageBinding, _ interfaces.PathCachePartition, client *http.Client) error {
	mountPath, err := config.RequiredString(binding, "mountPath")
	if err != nil {
		return err
	}
	address, err := config.OptionalString(binding, "address", "")
	if err != nil {
		return err
	}
	dataPath, err := config.OptionalString(binding, "dataPath", "")
	if err != nil {
		return err
	}
	token, err := config.OptionalString(binding, "token", "")
	if err != nil {
		return err
	}

	cfg := api.DefaultConfig()
	if cfg.Error != nil {
		return fmt.Errorf("%w: invalid Vault environment: %v", interfaces.ErrConfiguration, cfg.Error)
	}
	if address != "" {
		cfg.Address = address
	}
	if client != nil {
		cfg.HttpClient = client
	}
	vc, err := api.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("%w: failed to create Vault client: %v", interfaces.ErrConfiguration, err)
	}
	if token != "" {
		vc.SetToken(token)
	}

	p.tag = binding.Tag
	p.client = vc
	p.mountPath = strings.Trim(mountPath, "/")
	p.dataPath = strings.Trim(dataPath, "/")
	return nil
}

func (p *VaultProvider) Type() string { return "vault" }

func (p *VaultProvider) Tag() string { return p.tag }

func (p *VaultProvider) secretPath(kind, address string) string {
	return path.Join(p.mountPath, kind, p.dataPath, address)
}

func vaultError(message string, err error) error {
	var respErr *api.ResponseError
	if errors.As(err, &respErr) {
		return statusError(respErr.StatusCode, message)
	}
	return interfaces.NewStorageError(http.StatusBadGateway, message, err)
}

func (p *VaultProvider) CreateCollection(ctx context.Context, c *interfaces.Collection) (*interfaces.StorageOperationResult, error) {
	address := CollectionPath("", c.ID)
	marker := p.secretPath("data", path.Join(address, collectionMarker))
	_, err := p.client.Logical().WriteWithContext(ctx, marker, map[string]any{
		"data": map[string]any{"collectionId": c.ID, "name": c.Name},
	})
	if err != nil {
		return nil, vaultError("failed to write collection marker", err)
	}

	props := baseProperties(p.Type())
	props[PropPath] = interfaces.StringValue(p.secretPath("data", address))
	return okResult(props), nil
}

func (p *VaultProvider) CreateItemVersion(ctx context.Context, c *interfaces.Collection, item *interfaces.Item, v *interfaces.ItemVersion, content io.Reader) (*interfaces.StorageOperationResult, error) {
	start := time.Now()
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, interfaces.NewStorageError(http.StatusInternalServerError, "failed to read content", err)
	}

	secretPath := p.secretPath("data", VersionPath("", c.ID, item.ID, v, false))
	_, err = p.client.Logical().WriteWithContext(ctx, secretPath, map[string]any{
		"data": map[string]any{
			"content":  base64.StdEncoding.EncodeToString(data),
			"mimeType": v.MimeType,
			"name":     v.Name,
		},
	})
	if err != nil {
		p.log.Error("Failed to write to Vault", slog.String("path", secretPath), "err", err)
		return nil, vaultError("failed to write version secret", err)
	}

	p.log.Debug("Stored item version in Vault",
		slog.String("path", secretPath),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	props := baseProperties(p.Type())
	props[PropPath] = interfaces.StringValue(secretPath)
	props[PropSize] = interfaces.NumberValue(float64(len(data)))
	if v.MimeType != "" {
		props[PropContentType] = interfaces.StringValue(v.MimeType)
	}
	res := okResult(props)
	res.Size = int64(len(data))
	return res, nil
}

func (p *VaultProvider) ReadItemVersion(ctx context.Context, c *interfaces.Collection, item *interfaces.Item, v *interfaces.ItemVersion) (*interfaces.StorageOperationResult, error) {
	secretPath := p.secretPath("data", VersionPath("", c.ID, item.ID, v, false))
	secret, err := p.client.Logical().ReadWithContext(ctx, secretPath)
	if err != nil {
		return nil, vaultError("failed to read version secret", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, notFound("version secret %s does not exist", secretPath)
	}

	fields, ok := secret.Data["data"].(map[string]any)
	if !ok {
		return nil, interfaces.NewStorageError(http.StatusBadGateway, "invalid data format in Vault response", nil)
	}
	encoded, ok := fields["content"].(string)
	if !ok {
		return nil, interfaces.NewStorageError(http.StatusBadGateway, "content key not found in Vault data", nil)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, interfaces.NewStorageError(http.StatusBadGateway, "invalid content encoding in Vault data", err)
	}

	props := map[string]interfaces.PropertyValue{PropPath: interfaces.StringValue(secretPath)}
	if mimeType, ok := fields["mimeType"].(string); ok && mimeType != "" {
		props[PropContentType] = interfaces.StringValue(mimeType)
	}
	res := okResult(props)
	res.Stream = io.NopCloser(bytes.NewReader(data))
	res.Size = int64(len(data))
	return res, nil
}

// DeleteItem removes the metadata, and with it every stored revision, of each
// version secret below the item.
func (p *VaultProvider) DeleteItem(ctx context.Context, c *interfaces.Collection, item *interfaces.Item) (*interfaces.StorageOperationResult, error) {
	itemAddress := ItemPath("", c.ID, item.ID)
	list, err := p.client.Logical().ListWithContext(ctx, p.secretPath("metadata", itemAddress))
	if err != nil {
		return nil, vaultError("failed to list item secrets", err)
	}
	if list == nil || list.Data == nil {
		return okResult(nil), nil
	}

	keys, _ := list.Data["keys"].([]any)
	for _, k := range keys {
		name, ok := k.(string)
		if !ok {
			continue
		}
		metaPath := p.secretPath("metadata", path.Join(itemAddress, name))
		if _, err := p.client.Logical().DeleteWithContext(ctx, metaPath); err != nil {
			return nil, vaultError(fmt.Sprintf("failed to delete %s", metaPath), err)
		}
	}

	p.log.Debug("Deleted item secrets",
		slog.String("path", p.secretPath("metadata", itemAddress)),
		slog.Int("count", len(keys)))
	return okResult(nil), nil
}
