package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ruteri/content-service-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIPFS implements the subset of the MFS HTTP API used by IPFSProvider.
type fakeIPFS struct {
	mu    sync.Mutex
	dirs  map[string]bool
	files map[string][]byte
	calls []string
}

func newFakeIPFS() *fakeIPFS {
	return &fakeIPFS{dirs: map[string]bool{"/": true}, files: map[string][]byte{}}
}

func (f *fakeIPFS) fail(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]any{"Message": message, "Code": 0, "Type": "error"})
}

func (f *fakeIPFS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cmd := strings.TrimPrefix(r.URL.Path, "/api/v0/")
	arg := r.URL.Query().Get("arg")
	f.calls = append(f.calls, cmd+" "+arg)

	switch cmd {
	case "version":
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"Version": "0.30.0", "Commit": "", "Repo": "16", "System": "amd64/linux", "Golang": "go1.24"})

	case "files/mkdir":
		f.dirs[arg] = true
		w.WriteHeader(http.StatusOK)

	case "files/write":
		mr, err := r.MultipartReader()
		if err != nil {
			f.fail(w, err.Error())
			return
		}
		part, err := mr.NextPart()
		if err != nil {
			f.fail(w, err.Error())
			return
		}
		data, err := io.ReadAll(part)
		if err != nil {
			f.fail(w, err.Error())
			return
		}
		f.files[arg] = data
		w.WriteHeader(http.StatusOK)

	case "files/stat":
		data, ok := f.files[arg]
		if !ok {
			f.fail(w, "file does not exist")
			return
		}
		sum := sha256.Sum256(data)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"Hash":           "bafy" + hex.EncodeToString(sum[:8]),
			"Size":           len(data),
			"CumulativeSize": len(data),
			"Blocks":         1,
			"Type":           "file",
		})

	case "files/read":
		data, ok := f.files[arg]
		if !ok {
			f.fail(w, "file does not exist")
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write(data)

	case "files/rm":
		removed := false
		for name := range f.files {
			if strings.HasPrefix(name, arg+"/") {
				delete(f.files, name)
				removed = true
			}
		}
		if !removed && !f.dirs[arg] {
			f.fail(w, "file does not exist")
			return
		}
		delete(f.dirs, arg)
		w.WriteHeader(http.StatusOK)

	default:
		http.NotFound(w, r)
	}
}

func TestIPFSProvider_Bind(t *testing.T) {
	tests := []struct {
		name  string
		props map[string]any
	}{
		{name: "missing api address", props: map[string]any{"mfsRoot": "/content"}},
		{name: "missing root", props: map[string]any{"apiAddress": "127.0.0.1:5001"}},
		{name: "relative root", props: map[string]any{"apiAddress": "127.0.0.1:5001", "mfsRoot": "content"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewIPFSProvider(testLogger())
			err := p.Bind(context.Background(), interfaces.StorageBinding{Tag: "ipfs", ProviderType: "ipfs", Properties: tt.props}, nil, nil)
			assert.ErrorIs(t, err, interfaces.ErrConfiguration)
		})
	}
}

func TestIPFSProvider_RoundTrip(t *testing.T) {
	ctx := context.Background()
	node := newFakeIPFS()
	srv := httptest.NewServer(node)
	defer srv.Close()

	p := NewIPFSProvider(testLogger())
	require.NoError(t, p.Bind(ctx, interfaces.StorageBinding{
		Tag:          "ipfs",
		ProviderType: "ipfs",
		Properties:   map[string]any{"apiAddress": srv.URL, "mfsRoot": "/content/"},
	}, nil, srv.Client()))
	assert.Equal(t, "ipfs", p.Tag())

	c := &interfaces.Collection{ID: "c1"}
	item := &interfaces.Item{ID: "i1", CollectionID: "c1"}
	v := &interfaces.ItemVersion{ID: "v1", ItemID: "i1", Major: 1, Minor: 0, MimeType: "text/plain"}

	res, err := p.CreateCollection(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, "/content/c1", res.Properties[PropPath].Str)
	assert.True(t, node.dirs["/content/c1"])

	content := []byte("stored in the mutable file system")
	res, err = p.CreateItemVersion(ctx, c, item, v, strings.NewReader(string(content)))
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), res.Size)
	assert.Equal(t, "/content/c1/i1/1_0", res.Properties[PropPath].Str)
	assert.True(t, strings.HasPrefix(res.Properties[PropNodeID].Str, "bafy"))
	assert.Equal(t, "text/plain", res.Properties[PropContentType].Str)
	assert.Equal(t, content, node.files["/content/c1/i1/1_0"])

	read, err := p.ReadItemVersion(ctx, c, item, v)
	require.NoError(t, err)
	got, err := io.ReadAll(read.Stream)
	require.NoError(t, err)
	require.NoError(t, read.Stream.Close())
	assert.Equal(t, content, got)
	assert.Equal(t, int64(len(content)), read.Size)

	_, err = p.DeleteItem(ctx, c, item)
	require.NoError(t, err)
	assert.Empty(t, node.files)

	_, err = p.ReadItemVersion(ctx, c, item, v)
	assert.Equal(t, http.StatusNotFound, interfaces.StatusHint(err))

	_, err = p.DeleteItem(ctx, c, item)
	assert.NoError(t, err, "deleting a missing item is not an error")
}
