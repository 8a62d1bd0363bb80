package httpserver

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ruteri/content-service-backend/api"
	"github.com/ruteri/content-service-backend/cache"
	"github.com/ruteri/content-service-backend/interfaces"
	"github.com/ruteri/content-service-backend/manager"
	"github.com/ruteri/content-service-backend/storage"
	badgerstore "github.com/ruteri/content-service-backend/store/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	backend, err := badgerstore.OpenBackend("", true, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	bindings := []interfaces.StorageBinding{{
		Tag:          "local",
		ProviderType: "filesystem",
		Properties:   map[string]any{"rootDirectory": filepath.Join(t.TempDir(), "content")},
	}}
	registry := storage.NewProviderRegistry(bindings, cache.New(cache.NewMemoryEntryStore(), nil, logger), nil, logger)
	m := manager.NewCollectionManager(badgerstore.NewMetadataStore(backend), registry, logger)

	srv := New(&HTTPServerConfig{Log: logger, DrainDuration: time.Millisecond}, NewHandler(m, logger), nil)
	ts := httptest.NewServer(srv.getRouter())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, req *http.Request) *http.Response {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func doJSON(t *testing.T, method, url, contentType string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return do(t, req)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func createCollection(t *testing.T, ts *httptest.Server, cmd manager.CreateCollectionCommand) manager.CollectionDetails {
	t.Helper()
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/collections", "application/json", cmd)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[manager.CollectionDetails](t, resp)
}

func TestCollectionEndpoints(t *testing.T) {
	ts := newTestServer(t)

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/bindings", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	bindings := decode[[]interfaces.StorageBinding](t, resp)
	require.Len(t, bindings, 1)
	assert.Equal(t, "local", bindings[0].Tag)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/collections", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]*interfaces.Collection](t, resp))

	created := createCollection(t, ts, manager.CreateCollectionCommand{Name: "Docs", ProviderTag: "local"})
	id := created.Collection.ID
	assert.NotEmpty(t, id)

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/collections", "application/json",
		manager.CreateCollectionCommand{Name: "Docs", ProviderTag: "local"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	errResp := decode[api.ErrorResponse](t, resp)
	assert.Equal(t, interfaces.SubsystemManager, errResp.Subsystem)

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/collections", "application/json",
		manager.CreateCollectionCommand{Name: "Other", ProviderTag: "nowhere"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, interfaces.SubsystemRegistry, decode[api.ErrorResponse](t, resp).Subsystem)

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/collections", "application/json", "{not json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/collections", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]*interfaces.Collection](t, resp), 1)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/collections/"+id, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	read := decode[manager.CollectionDetails](t, resp)
	assert.Equal(t, "Docs", read.Collection.Name)
	assert.Equal(t, "local", read.Collection.ProviderTag)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/collections/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPatchCollection(t *testing.T) {
	ts := newTestServer(t)
	created := createCollection(t, ts, manager.CreateCollectionCommand{
		Name:        "Docs",
		ProviderTag: "local",
		Properties:  map[string]any{"owner": "legal"},
	})
	url := ts.URL + "/api/collections/" + created.Collection.ID

	resp := doJSON(t, http.MethodPatch, url, api.ContentTypeMergePatch,
		`{"description":"signed copies","properties":{"retention":7},"constraints":[{"name":"title","kind":"Mandatory","sourceProperty":"Title"}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	patched := decode[manager.CollectionDetails](t, resp)
	assert.Equal(t, "Docs", patched.Collection.Name)
	assert.Equal(t, "signed copies", patched.Collection.Description)
	require.Len(t, patched.Constraints.Constraints, 1)
	assert.Equal(t, interfaces.ConstraintMandatory, patched.Constraints.Constraints[0].Kind)
	owner, ok := patched.Properties.Get("owner")
	require.True(t, ok)
	assert.Equal(t, "legal", owner.Str)
	retention, ok := patched.Properties.Get("retention")
	require.True(t, ok)
	assert.Equal(t, float64(7), retention.Num)

	resp = doJSON(t, http.MethodPatch, url, api.ContentTypeJSONPatch, `[{"op":"replace","path":"/name","value":"Contracts"}]`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Contracts", decode[manager.CollectionDetails](t, resp).Collection.Name)

	resp = doJSON(t, http.MethodPatch, url, api.ContentTypeJSONPatch, `[{"op":"remove","path":"/missing"}]`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, http.MethodPatch, url, api.ContentTypeMergePatch, `{"constraints":[{"name":"pages","kind":"AllowableType","sourceProperty":"Pages"}]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "a typed constraint needs a value type")

	resp = doJSON(t, http.MethodPatch, ts.URL+"/api/collections/missing", api.ContentTypeMergePatch, `{"description":"x"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRawItemUpload(t *testing.T) {
	ts := newTestServer(t)
	created := createCollection(t, ts, manager.CreateCollectionCommand{
		Name:        "Docs",
		ProviderTag: "local",
		Constraints: []interfaces.Constraint{{Name: "title", Kind: interfaces.ConstraintMandatory, SourceProperty: "Title"}},
	})
	itemsURL := ts.URL + "/api/collections/" + created.Collection.ID + "/items"
	content := []byte("hello, content service")

	upload := func(props string) *http.Response {
		req, err := http.NewRequest(http.MethodPost, itemsURL, bytes.NewReader(content))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "text/plain")
		req.Header.Set(api.ItemNameHeader, "greeting.txt")
		if props != "" {
			req.Header.Set(api.ItemPropertiesHeader, props)
		}
		return do(t, req)
	}

	resp := upload("")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	rejected := decode[api.ErrorResponse](t, resp)
	assert.Equal(t, interfaces.SubsystemValidation, rejected.Subsystem)
	assert.Len(t, rejected.Violations, 1)

	resp = upload("not json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = upload(`{"Title":"Greeting"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	added := decode[manager.ItemDetails](t, resp)
	itemURL := itemsURL + "/" + added.Item.ID
	require.Len(t, added.Versions, 1)
	assert.Equal(t, int64(len(content)), added.Versions[0].Size)

	resp = doJSON(t, http.MethodGet, itemsURL, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]*interfaces.Item](t, resp), 1)

	resp = doJSON(t, http.MethodGet, itemURL, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	item := decode[manager.ItemDetails](t, resp)
	title, ok := item.Properties.Get("Title")
	require.True(t, ok)
	assert.Equal(t, "Greeting", title.Str)

	digest := sha256.Sum256(content)
	for _, label := range []string{"1_0", "latest"} {
		resp = doJSON(t, http.MethodGet, itemURL+"/versions/"+label, "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
		assert.Equal(t, strconv.Itoa(len(content)), resp.Header.Get("Content-Length"))
		assert.Equal(t, strconv.Quote(hex.EncodeToString(digest[:])), resp.Header.Get("ETag"))
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, content, body)
	}

	resp = doJSON(t, http.MethodGet, itemURL+"/versions/2_0", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = doJSON(t, http.MethodGet, itemURL+"/versions/one", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/collections/"+created.Collection.ID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	counted := decode[manager.CollectionDetails](t, resp)
	assert.Equal(t, int64(1), counted.Collection.NumberOfItems)
	assert.Equal(t, int64(len(content)), counted.Collection.TotalSizeBytes)

	resp = doJSON(t, http.MethodDelete, itemURL, "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = doJSON(t, http.MethodGet, itemURL, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMultipartItemUpload(t *testing.T) {
	ts := newTestServer(t)
	created := createCollection(t, ts, manager.CreateCollectionCommand{
		Name:        "Scans",
		ProviderTag: "local",
		Constraints: []interfaces.Constraint{{Name: "pages", Kind: interfaces.ConstraintAllowableType, SourceProperty: "Pages", ValueType: interfaces.PropertyNumber}},
	})
	itemsURL := ts.URL + "/api/collections/" + created.Collection.ID + "/items"
	content := bytes.Repeat([]byte{0xAB}, 4096)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("properties", `{"Pages":"12"}`))
	require.NoError(t, mw.WriteField("mimeType", "image/png"))
	fw, err := mw.CreateFormFile("file", "scan.png")
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, itemsURL, &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp := do(t, req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	added := decode[manager.ItemDetails](t, resp)
	assert.Equal(t, "scan.png", added.Item.Name)
	pages, ok := added.Properties.Get("Pages")
	require.True(t, ok)
	assert.Equal(t, interfaces.PropertyNumber, pages.Type)
	assert.Equal(t, float64(12), pages.Num)

	resp = doJSON(t, http.MethodGet, itemsURL+"/"+added.Item.ID+"/versions/1_0", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	var empty bytes.Buffer
	mw = multipart.NewWriter(&empty)
	require.NoError(t, mw.WriteField("name", "nothing"))
	require.NoError(t, mw.Close())
	req, err = http.NewRequest(http.MethodPost, itemsURL, &empty)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp = do(t, req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "a multipart upload needs a file part")
}

func TestHealthAndDrain(t *testing.T) {
	ts := newTestServer(t)

	status := func(path string) (int, string) {
		resp := doJSON(t, http.MethodGet, ts.URL+path, "", nil)
		return resp.StatusCode, decode[map[string]string](t, resp)["status"]
	}

	code, s := status("/livez")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alive", s)

	code, _ = status("/readyz")
	assert.Equal(t, http.StatusOK, code)

	_, s = status("/drain")
	assert.Equal(t, "draining", s)
	_, s = status("/drain")
	assert.Equal(t, "already draining", s)
	code, _ = status("/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	_, s = status("/undrain")
	assert.Equal(t, "ready", s)
	code, _ = status("/readyz")
	assert.Equal(t, http.StatusOK, code)
}
