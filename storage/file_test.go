package storage

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/ruteri/content-service-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boundFilesystem(t *testing.T) (*FilesystemProvider, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "data")
	p := NewFilesystemProvider(testLogger())
	err := p.Bind(context.Background(), interfaces.StorageBinding{
		Tag:          "local",
		ProviderType: "filesystem",
		Properties:   map[string]any{"rootDirectory": root},
	}, nil, nil)
	require.NoError(t, err)
	return p, root
}

func TestFilesystemProvider_Bind(t *testing.T) {
	tests := []struct {
		name  string
		props map[string]any
	}{
		{name: "missing root", props: map[string]any{}},
		{name: "relative root", props: map[string]any{"rootDirectory": "data"}},
		{name: "wrong type", props: map[string]any{"rootDirectory": 42}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewFilesystemProvider(testLogger())
			err := p.Bind(context.Background(), interfaces.StorageBinding{Tag: "x", Properties: tt.props}, nil, nil)
			assert.True(t, errors.Is(err, interfaces.ErrConfiguration), "got %v", err)
		})
	}
}

func TestFilesystemProvider_Scenario(t *testing.T) {
	ctx := context.Background()
	p, root := boundFilesystem(t)
	assert.Equal(t, "local", p.Tag())
	assert.Equal(t, "filesystem", p.Type())

	c := &interfaces.Collection{ID: "c1", Name: "Docs"}
	res, err := p.CreateCollection(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, interfaces.StatusOk, res.Status)
	info, err := os.Stat(filepath.Join(root, "c1"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, filepath.Join(root, "c1"), res.Properties[PropPath].Str)

	_, err = p.CreateCollection(ctx, c)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, interfaces.StatusHint(err))
	assert.True(t, errors.Is(err, interfaces.ErrStorageOperation))

	content := make([]byte, 1024)
	_, err = rand.Read(content)
	require.NoError(t, err)

	item := &interfaces.Item{ID: "i1", CollectionID: "c1"}
	v := &interfaces.ItemVersion{ID: "v1", ItemID: "i1", Major: 1, Minor: 0, MimeType: "application/pdf"}
	res, err = p.CreateItemVersion(ctx, c, item, v, bytes.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, int64(1024), res.Size)
	assert.Equal(t, float64(1024), res.Properties[PropSize].Num)
	assert.Equal(t, "application/pdf", res.Properties[PropContentType].Str)

	versionFile := filepath.Join(root, "c1", "i1", "1_0")
	info, err = os.Stat(versionFile)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), info.Size())

	_, err = p.CreateItemVersion(ctx, c, item, v, bytes.NewReader(content))
	assert.Equal(t, http.StatusConflict, interfaces.StatusHint(err))

	read, err := p.ReadItemVersion(ctx, c, item, v)
	require.NoError(t, err)
	got, err := io.ReadAll(read.Stream)
	require.NoError(t, err)
	require.NoError(t, read.Stream.Close())
	assert.Equal(t, content, got)
	assert.Equal(t, int64(1024), read.Size)

	missing := &interfaces.ItemVersion{Major: 2, Minor: 0}
	_, err = p.ReadItemVersion(ctx, c, item, missing)
	assert.True(t, errors.Is(err, interfaces.ErrNotFound))

	_, err = p.DeleteItem(ctx, c, item)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "c1", "i1"))
	assert.True(t, os.IsNotExist(err))

	_, err = p.DeleteItem(ctx, c, item)
	assert.NoError(t, err)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("client went away") }

func TestFilesystemProvider_PartialWriteIsRemoved(t *testing.T) {
	ctx := context.Background()
	p, root := boundFilesystem(t)
	c := &interfaces.Collection{ID: "c1"}
	_, err := p.CreateCollection(ctx, c)
	require.NoError(t, err)

	item := &interfaces.Item{ID: "i1"}
	v := &interfaces.ItemVersion{Major: 1}
	_, err = p.CreateItemVersion(ctx, c, item, v, failingReader{})
	require.Error(t, err)
	_, err = os.Stat(filepath.Join(root, "c1", "i1", "1_0"))
	assert.True(t, os.IsNotExist(err))
}
