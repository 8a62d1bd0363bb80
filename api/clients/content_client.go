package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/ruteri/content-service-backend/api"
	"github.com/ruteri/content-service-backend/interfaces"
	"github.com/ruteri/content-service-backend/manager"
)

// ResponseError is returned for every non-2xx response.
type ResponseError struct {
	StatusCode int
	Body       api.ErrorResponse
}

func (e *ResponseError) Error() string {
	if e.Body.Error == "" {
		return fmt.Sprintf("content service returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("content service returned error %d: %s", e.StatusCode, e.Body.Error)
}

// StatusHint lets interfaces.StatusHint see the remote status code.
func (e *ResponseError) StatusHint() int {
	return e.StatusCode
}

// ContentClient talks to the content service HTTP API.
type ContentClient struct {
	// ServerAddr is the base URL of the content service
	ServerAddr string

	// HTTPClient is used for every request; cleanhttp's pooled client when nil
	HTTPClient *http.Client
}

func NewContentClient(serverAddr string) *ContentClient {
	return &ContentClient{
		ServerAddr: strings.TrimRight(serverAddr, "/"),
		HTTPClient: cleanhttp.DefaultPooledClient(),
	}
}

func (c *ContentClient) client() *http.Client {
	if c.HTTPClient == nil {
		return cleanhttp.DefaultPooledClient()
	}
	return c.HTTPClient
}

func (c *ContentClient) url(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return c.ServerAddr + "/api/" + strings.Join(escaped, "/")
}

// do sends req and returns the response when its status is 2xx.
func (c *ContentClient) do(req *http.Request) (*http.Response, error) {
	resp, err := c.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not request %s %s: %w", req.Method, req.URL.Path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	respErr := &ResponseError{StatusCode: resp.StatusCode}
	bodyBytes, err := io.ReadAll(resp.Body)
	if err == nil && json.Unmarshal(bodyBytes, &respErr.Body) != nil {
		respErr.Body.Error = strings.TrimSpace(string(bodyBytes))
	}
	return nil, respErr
}

func (c *ContentClient) doJSON(ctx context.Context, method, url, contentType string, body any, out any) error {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if reader != nil {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("could not parse response of %s %s: %w", method, req.URL.Path, err)
	}
	return nil
}

func (c *ContentClient) ListBindings(ctx context.Context) ([]interfaces.StorageBinding, error) {
	var out []interfaces.StorageBinding
	err := c.doJSON(ctx, http.MethodGet, c.url("bindings"), "", nil, &out)
	return out, err
}

func (c *ContentClient) ListCollections(ctx context.Context) ([]*interfaces.Collection, error) {
	var out []*interfaces.Collection
	err := c.doJSON(ctx, http.MethodGet, c.url("collections"), "", nil, &out)
	return out, err
}

func (c *ContentClient) CreateCollection(ctx context.Context, cmd manager.CreateCollectionCommand) (*manager.CollectionDetails, error) {
	var out manager.CollectionDetails
	if err := c.doJSON(ctx, http.MethodPost, c.url("collections"), "application/json", cmd, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *ContentClient) ReadCollection(ctx context.Context, id string) (*manager.CollectionDetails, error) {
	var out manager.CollectionDetails
	if err := c.doJSON(ctx, http.MethodGet, c.url("collections", id), "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PatchCollection sends a JSON merge patch over {name, description,
// properties, constraints}.
func (c *ContentClient) PatchCollection(ctx context.Context, id string, mergePatch []byte) (*manager.CollectionDetails, error) {
	var out manager.CollectionDetails
	if err := c.doJSON(ctx, http.MethodPatch, c.url("collections", id), api.ContentTypeMergePatch, mergePatch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *ContentClient) ListItems(ctx context.Context, collectionID string) ([]*interfaces.Item, error) {
	var out []*interfaces.Item
	err := c.doJSON(ctx, http.MethodGet, c.url("collections", collectionID, "items"), "", nil, &out)
	return out, err
}

// AddItem uploads content as a raw body.
func (c *ContentClient) AddItem(ctx context.Context, collectionID string, cmd manager.AddItemCommand, content io.Reader) (*manager.ItemDetails, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("collections", collectionID, "items"), content)
	if err != nil {
		return nil, err
	}
	mimeType := cmd.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", mimeType)
	req.Header.Set(api.ItemNameHeader, cmd.Name)
	if len(cmd.Properties) > 0 {
		props, err := json.Marshal(cmd.Properties)
		if err != nil {
			return nil, err
		}
		req.Header.Set(api.ItemPropertiesHeader, string(props))
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out manager.ItemDetails
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("could not parse upload response: %w", err)
	}
	return &out, nil
}

func (c *ContentClient) ReadItem(ctx context.Context, collectionID, itemID string) (*manager.ItemDetails, error) {
	var out manager.ItemDetails
	if err := c.doJSON(ctx, http.MethodGet, c.url("collections", collectionID, "items", itemID), "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReadItemVersion opens version major.minor; 0.0 selects the latest. The
// caller must close the returned stream.
func (c *ContentClient) ReadItemVersion(ctx context.Context, collectionID, itemID string, major, minor int) (io.ReadCloser, error) {
	label := "latest"
	if major != 0 || minor != 0 {
		label = fmt.Sprintf("%d_%d", major, minor)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("collections", collectionID, "items", itemID, "versions", label), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *ContentClient) DeleteItem(ctx context.Context, collectionID, itemID string) error {
	return c.doJSON(ctx, http.MethodDelete, c.url("collections", collectionID, "items", itemID), "", nil, nil)
}
