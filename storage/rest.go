package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ruteri/content-service-backend/config"
	"github.com/ruteri/content-service-backend/interfaces"
)

const restRootNodeID = "-root-"

// Authentication modes of the REST provider.
const (
	AuthModeBasic  = "basic"
	AuthModeTicket = "ticket"
	AuthModeNone   = "none"
)

// tokenCell is the authentication ticket shared by every request of one
// provider instance. The lock only covers reads and writes of the value; logins
// run unlocked, so concurrent logins are possible and the last one wins.
type tokenCell struct {
	mu    sync.Mutex
	value string
}

func (c *tokenCell) load() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

func (c *tokenCell) store(v string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = v
}

// invalidate clears the cell if it still holds v.
func (c *tokenCell) invalidate(v string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.value == v {
		c.value = ""
	}
}

// RESTProvider stores content in a remote repository exposing a node/children
// REST API. Folders are resolved per path segment and memoized in the path cache.
type RESTProvider struct {
	tag            string
	endpoint       string
	authEndpoint   string
	collectionRoot string
	authMode       string
	user           string
	password       string

	client   *http.Client
	ticket   tokenCell
	resolver *pathResolver
	log      *slog.Logger
}

var _ interfaces.StorageProvider = (*RESTProvider)(nil)

func NewRESTProvider(log *slog.Logger) *RESTProvider {
	return &RESTProvider{log: log}
}

type restEntry struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsFolder bool   `json:"isFolder"`
	Content  *struct {
		MimeType    string `json:"mimeType"`
		SizeInBytes int64  `json:"sizeInBytes"`
	} `json:"content,omitempty"`
}

type restEntryResponse struct {
	Entry restEntry `json:"entry"`
}

type restNodeBody struct {
	Name     string `json:"name"`
	NodeType string `json:"nodeType"`
}

// Bind validates endpoint, collectionRoot and authMode. Credentials are
// required unless authMode is none.
func (p *RESTProvider) Bind(ctx context.Context, binding interfaces.StorageBinding, pathCache interfaces.PathCachePartition, client *http.Client) error {
	endpoint, err := config.RequiredString(binding, "endpoint")
	if err != nil {
		return err
	}
	if u, err := url.Parse(endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: binding %q endpoint %q is not an absolute URL", interfaces.ErrConfiguration, binding.Tag, endpoint)
	}
	root, err := config.RequiredString(binding, "collectionRoot")
	if err != nil {
		return err
	}
	mode, err := config.RequiredString(binding, "authMode")
	if err != nil {
		return err
	}
	mode = strings.ToLower(mode)
	switch mode {
	case AuthModeBasic, AuthModeTicket:
		if p.user, err = config.RequiredString(binding, "user"); err != nil {
			return err
		}
		if p.password, err = config.RequiredString(binding, "password"); err != nil {
			return err
		}
	case AuthModeNone:
	default:
		return fmt.Errorf("%w: binding %q has unknown authMode %q", interfaces.ErrConfiguration, binding.Tag, mode)
	}
	authEndpoint, err := config.OptionalString(binding, "authEndpoint", endpoint)
	if err != nil {
		return err
	}
	if pathCache == nil {
		return fmt.Errorf("%w: binding %q needs a path cache", interfaces.ErrConfiguration, binding.Tag)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	p.tag = binding.Tag
	p.endpoint = strings.TrimSuffix(endpoint, "/")
	p.authEndpoint = strings.TrimSuffix(authEndpoint, "/")
	p.collectionRoot = root
	p.authMode = mode
	p.client = client
	p.resolver = &pathResolver{rootID: restRootNodeID, api: p, cache: pathCache, log: p.log}
	return nil
}

func (p *RESTProvider) Type() string { return "rest" }

func (p *RESTProvider) Tag() string { return p.tag }

// login requests a new ticket.
func (p *RESTProvider) login(ctx context.Context) (string, error) {
	body, _ := json.Marshal(map[string]string{"userId": p.user, "password": p.password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.authEndpoint+"/tickets", bytes.NewReader(body))
	if err != nil {
		return "", interfaces.NewStorageError(http.StatusInternalServerError, "failed to build login request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", interfaces.NewStorageError(http.StatusBadGateway, "login request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", statusError(resp.StatusCode, "login rejected")
	}

	var ticket restEntryResponse
	if err := json.NewDecoder(resp.Body).Decode(&ticket); err != nil || ticket.Entry.ID == "" {
		return "", interfaces.NewStorageError(http.StatusBadGateway, "invalid login response", err)
	}
	p.log.Debug("Acquired remote ticket", slog.String("tag", p.tag))
	return ticket.Entry.ID, nil
}

// do sends an authenticated request. A 401 drops the cached ticket; the
// request is not retried.
func (p *RESTProvider) do(ctx context.Context, method, rawURL string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, interfaces.NewStorageError(http.StatusInternalServerError, "failed to build request", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	var ticket string
	switch p.authMode {
	case AuthModeBasic:
		req.SetBasicAuth(p.user, p.password)
	case AuthModeTicket:
		ticket = p.ticket.load()
		if ticket == "" {
			if ticket, err = p.login(ctx); err != nil {
				return nil, err
			}
			p.ticket.store(ticket)
		}
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(ticket)))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, interfaces.NewStorageError(http.StatusBadGateway, fmt.Sprintf("%s %s failed", method, rawURL), err)
	}
	if resp.StatusCode == http.StatusUnauthorized && ticket != "" {
		p.ticket.invalidate(ticket)
	}
	return resp, nil
}

func (p *RESTProvider) nodeURL(id string, suffix string) string {
	return p.endpoint + "/nodes/" + url.PathEscape(id) + suffix
}

func decodeEntry(resp *http.Response) (*restEntry, error) {
	var out restEntryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, interfaces.NewStorageError(http.StatusBadGateway, "invalid node response", err)
	}
	return &out.Entry, nil
}

// LookupChild implements nodeAPI.
func (p *RESTProvider) LookupChild(ctx context.Context, parentID, name string) (string, bool, error) {
	resp, err := p.do(ctx, http.MethodGet, p.nodeURL(parentID, "?relativePath="+url.QueryEscape(name)), nil, "")
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		entry, err := decodeEntry(resp)
		if err != nil {
			return "", false, err
		}
		return entry.ID, true, nil
	case http.StatusNotFound:
		return "", false, nil
	default:
		return "", false, statusError(resp.StatusCode, fmt.Sprintf("lookup of %q under %s", name, parentID))
	}
}

// CreateFolder implements nodeAPI. A concurrent creation of the same folder
// surfaces as 409 and resolves to the existing node.
func (p *RESTProvider) CreateFolder(ctx context.Context, parentID, name string) (string, error) {
	entry, err := p.createNode(ctx, parentID, name, "cm:folder")
	if err == nil {
		return entry.ID, nil
	}
	if !errors.Is(err, interfaces.ErrAlreadyExists) {
		return "", err
	}
	id, found, lookupErr := p.LookupChild(ctx, parentID, name)
	if lookupErr != nil {
		return "", lookupErr
	}
	if !found {
		return "", err
	}
	return id, nil
}

func (p *RESTProvider) createNode(ctx context.Context, parentID, name, nodeType string) (*restEntry, error) {
	body, _ := json.Marshal(restNodeBody{Name: name, NodeType: nodeType})
	resp, err := p.do(ctx, http.MethodPost, p.nodeURL(parentID, "/children"), bytes.NewReader(body), "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, fmt.Sprintf("create %s %q under %s", nodeType, name, parentID))
	}
	return decodeEntry(resp)
}

// CreateCollection resolves or creates the collection folder. An existing
// folder is adopted.
func (p *RESTProvider) CreateCollection(ctx context.Context, c *interfaces.Collection) (*interfaces.StorageOperationResult, error) {
	remotePath := CollectionPath(p.collectionRoot, c.ID)
	id, err := p.resolver.CreatePath(ctx, remotePath)
	if err != nil {
		return nil, err
	}

	props := baseProperties(p.Type())
	props[PropPath] = interfaces.StringValue(remotePath)
	props[PropNodeID] = interfaces.StringValue(id)
	return okResult(props), nil
}

// CreateItemVersion creates a content node named {major}_{minor} in the item
// folder and uploads the content stream to it.
func (p *RESTProvider) CreateItemVersion(ctx context.Context, c *interfaces.Collection, item *interfaces.Item, v *interfaces.ItemVersion, content io.Reader) (*interfaces.StorageOperationResult, error) {
	folderID, err := p.resolver.CreatePath(ctx, ItemPath(p.collectionRoot, c.ID, item.ID))
	if err != nil {
		return nil, err
	}
	doc, err := p.createNode(ctx, folderID, v.VersionLabel(), "cm:content")
	if err != nil {
		return nil, err
	}

	mimeType := v.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	counter := &countingReader{r: content}
	resp, err := p.do(ctx, http.MethodPut, p.nodeURL(doc.ID, "/content"), counter, mimeType)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, statusError(resp.StatusCode, fmt.Sprintf("upload of version %s", v.VersionLabel()))
	}

	p.log.Debug("Uploaded item version",
		slog.String("tag", p.tag),
		slog.String("nodeId", doc.ID),
		slog.Int64("size", counter.n))

	props := baseProperties(p.Type())
	props[PropPath] = interfaces.StringValue(VersionPath(p.collectionRoot, c.ID, item.ID, v, false))
	props[PropNodeID] = interfaces.StringValue(doc.ID)
	props[PropSize] = interfaces.NumberValue(float64(counter.n))
	props[PropContentType] = interfaces.StringValue(mimeType)
	res := okResult(props)
	res.Size = counter.n
	return res, nil
}

func (p *RESTProvider) ReadItemVersion(ctx context.Context, c *interfaces.Collection, item *interfaces.Item, v *interfaces.ItemVersion) (*interfaces.StorageOperationResult, error) {
	folderID, err := p.resolver.LookupPath(ctx, ItemPath(p.collectionRoot, c.ID, item.ID))
	if err != nil {
		return nil, err
	}
	docID, found, err := p.LookupChild(ctx, folderID, v.VersionLabel())
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, notFound("version %s of item %s does not exist", v.VersionLabel(), item.ID)
	}

	resp, err := p.do(ctx, http.MethodGet, p.nodeURL(docID, "/content"), nil, "")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, statusError(resp.StatusCode, fmt.Sprintf("download of version %s", v.VersionLabel()))
	}

	res := okResult(map[string]interfaces.PropertyValue{
		PropNodeID: interfaces.StringValue(docID),
	})
	res.Stream = resp.Body
	res.Size = resp.ContentLength
	return res, nil
}

// DeleteItem deletes the item folder permanently and forgets its cached identifier.
func (p *RESTProvider) DeleteItem(ctx context.Context, c *interfaces.Collection, item *interfaces.Item) (*interfaces.StorageOperationResult, error) {
	itemPath := ItemPath(p.collectionRoot, c.ID, item.ID)
	folderID, err := p.resolver.LookupPath(ctx, itemPath)
	if errors.Is(err, interfaces.ErrNotFound) {
		return okResult(nil), nil
	}
	if err != nil {
		return nil, err
	}

	resp, err := p.do(ctx, http.MethodDelete, p.nodeURL(folderID, "?permanent=true"), nil, "")
	if err != nil {
		return nil, err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return nil, statusError(resp.StatusCode, fmt.Sprintf("delete of item %s", item.ID))
	}
	if err := p.resolver.Forget(ctx, itemPath); err != nil {
		p.log.Warn("Failed to forget cached item path", slog.String("path", itemPath), "err", err)
	}
	return okResult(nil), nil
}

// countingReader counts the bytes read through it.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	c.n += int64(n)
	return n, err
}
