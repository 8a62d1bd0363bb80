package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/ruteri/content-service-backend/cache"
	"github.com/ruteri/content-service-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAddressing(t *testing.T) {
	v := &interfaces.ItemVersion{Major: 1, Minor: 0, Name: "report.pdf"}

	assert.Equal(t, "/data/c1", CollectionPath("/data", "c1"))
	assert.Equal(t, "/data/c1/i1", ItemPath("/data", "c1", "i1"))
	assert.Equal(t, "/data/c1/i1/1_0", VersionPath("/data", "c1", "i1", v, false))
	assert.Equal(t, "/data/c1/i1/1_0/report.pdf", VersionPath("/data", "c1", "i1", v, true))
	assert.Equal(t, "/Sites/content/c1", CollectionPath("Sites/content/", "c1"))
	assert.Equal(t, "/c1", CollectionPath("", "c1"))
}

func TestVersionPath_NameStaysInVersionPrefix(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{name: "../../../other-col/other-item/1_0/doc.txt", want: "/col-a/item-a/1_0/..%2F..%2F..%2Fother-col%2Fother-item%2F1_0%2Fdoc.txt"},
		{name: `..\..\evil.txt`, want: "/col-a/item-a/1_0/..%5C..%5Cevil.txt"},
		{name: "..", want: "/col-a/item-a/1_0"},
		{name: ".", want: "/col-a/item-a/1_0"},
		{name: "", want: "/col-a/item-a/1_0"},
		{name: "annual report.pdf", want: "/col-a/item-a/1_0/annual%20report.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &interfaces.ItemVersion{Major: 1, Name: tt.name}
			got := VersionPath("", "col-a", "item-a", v, true)
			assert.Equal(t, tt.want, got)
			assert.True(t, strings.HasPrefix(got, "/col-a/item-a/1_0"))
		})
	}
}

// fakeNodeAPI is an in-memory folder tree that counts network calls.
type fakeNodeAPI struct {
	children map[string]map[string]string
	lookups  int
	creates  int
	nextID   int
	failOn   string
}

func newFakeNodeAPI() *fakeNodeAPI {
	return &fakeNodeAPI{children: map[string]map[string]string{}}
}

func (f *fakeNodeAPI) LookupChild(ctx context.Context, parentID, name string) (string, bool, error) {
	f.lookups++
	if name == f.failOn {
		return "", false, errors.New("remote unavailable")
	}
	id, ok := f.children[parentID][name]
	return id, ok, nil
}

func (f *fakeNodeAPI) CreateFolder(ctx context.Context, parentID, name string) (string, error) {
	f.creates++
	f.nextID++
	id := fmt.Sprintf("node-%d", f.nextID)
	if f.children[parentID] == nil {
		f.children[parentID] = map[string]string{}
	}
	f.children[parentID][name] = id
	return id, nil
}

func newResolver(api nodeAPI) (*pathResolver, *cache.MemoryEntryStore) {
	store := cache.NewMemoryEntryStore()
	partition := cache.New(store, nil, testLogger()).Partition("remote")
	return &pathResolver{rootID: "-root-", api: api, cache: partition, log: testLogger()}, store
}

func TestPathResolver_CreatePathIsIdempotent(t *testing.T) {
	ctx := context.Background()
	api := newFakeNodeAPI()
	r, store := newResolver(api)

	first, err := r.CreatePath(ctx, "a/b/c")
	require.NoError(t, err)
	assert.Equal(t, 3, api.lookups)
	assert.Equal(t, 3, api.creates)

	second, err := r.CreatePath(ctx, "a/b/c")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 3, api.lookups, "second call must not hit the network")
	assert.Equal(t, 3, api.creates)

	entry, err := store.GetEntry(ctx, "remote", cache.PathKey("a/b/c"))
	require.NoError(t, err)
	assert.Equal(t, first, entry.Value.Str)
}

func TestPathResolver_AdoptsExistingFolders(t *testing.T) {
	ctx := context.Background()
	api := newFakeNodeAPI()
	api.children["-root-"] = map[string]string{"a": "existing-a"}
	api.children["existing-a"] = map[string]string{"b": "existing-b"}
	r, _ := newResolver(api)

	id, err := r.CreatePath(ctx, "/a/b/c")
	require.NoError(t, err)
	assert.Equal(t, 3, api.lookups)
	assert.Equal(t, 1, api.creates)
	assert.Equal(t, id, api.children["existing-b"]["c"])

	// A sibling path shares the cached prefix only through the remote tree.
	_, err = r.CreatePath(ctx, "/a/b/d")
	require.NoError(t, err)
	assert.Equal(t, 6, api.lookups)
	assert.Equal(t, 2, api.creates)
}

func TestPathResolver_LookupPath(t *testing.T) {
	ctx := context.Background()
	api := newFakeNodeAPI()
	r, store := newResolver(api)

	_, err := r.LookupPath(ctx, "x/y")
	assert.True(t, errors.Is(err, interfaces.ErrNotFound))
	assert.Equal(t, 404, interfaces.StatusHint(err))
	assert.Equal(t, 0, api.creates)
	assert.Equal(t, 0, store.Len())

	id, err := r.CreatePath(ctx, "x/y")
	require.NoError(t, err)
	found, err := r.LookupPath(ctx, "x/y")
	require.NoError(t, err)
	assert.Equal(t, id, found)

	require.NoError(t, r.Forget(ctx, "x/y"))
	assert.Equal(t, 0, store.Len())
}

func TestPathResolver_NetworkFailureIsNotCached(t *testing.T) {
	ctx := context.Background()
	api := newFakeNodeAPI()
	api.failOn = "b"
	r, store := newResolver(api)

	_, err := r.CreatePath(ctx, "a/b")
	assert.Error(t, err)
	assert.Equal(t, 0, store.Len())
}
