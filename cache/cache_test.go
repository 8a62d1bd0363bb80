package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ruteri/content-service-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockObserver struct {
	mock.Mock
}

func (m *mockObserver) CacheLookup(partition string, hit bool) {
	m.Called(partition, hit)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPathCache_TypedValues(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryEntryStore(), nil, testLogger())
	p := c.Partition("remote")

	_, ok, err := p.GetString(ctx, PathKey("a/b"))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, p.SetString(ctx, PathKey("a/b"), "node-1"))
	s, ok, err := p.GetString(ctx, PathKey("a/b"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "node-1", s)

	require.NoError(t, p.SetInt64(ctx, "size", 1<<40))
	i64, ok, err := p.GetInt64(ctx, "size")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1<<40), i64)

	require.NoError(t, p.SetInt32(ctx, "count", 7))
	i32, ok, err := p.GetInt32(ctx, "count")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(7), i32)

	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	require.NoError(t, p.SetTime(ctx, "seen", now))
	ts, ok, err := p.GetTime(ctx, "seen")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, now.Equal(ts))

	_, _, err = p.GetInt64(ctx, PathKey("a/b"))
	assert.True(t, errors.Is(err, ErrKindMismatch))

	require.NoError(t, p.Delete(ctx, PathKey("a/b")))
	_, ok, err = p.GetString(ctx, PathKey("a/b"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPathCache_PartitionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryEntryStore()
	c := New(store, nil, testLogger())

	require.NoError(t, c.Partition("one").SetString(ctx, "k", "1"))
	require.NoError(t, c.Partition("two").SetString(ctx, "k", "2"))
	require.NoError(t, c.Partition("one").SetString(ctx, "k", "3"))

	v, _, err := c.Partition("one").GetString(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "3", v)
	v, _, err = c.Partition("two").GetString(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "2", v)
	assert.Equal(t, 2, store.Len())
}

func TestPathCache_Observer(t *testing.T) {
	ctx := context.Background()
	obs := &mockObserver{}
	obs.On("CacheLookup", "p", false).Once()
	obs.On("CacheLookup", "p", true).Once()

	c := New(NewMemoryEntryStore(), obs, testLogger())
	p := c.Partition("p")

	_, _, err := p.GetString(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, p.SetString(ctx, "k", "v"))
	_, _, err = p.GetString(ctx, "k")
	require.NoError(t, err)

	obs.AssertExpectations(t)
}

type failingStore struct{}

func (failingStore) GetEntry(ctx context.Context, partition, key string) (*interfaces.CacheEntry, error) {
	return nil, errors.New("boom")
}

func (failingStore) ReplaceEntry(ctx context.Context, entry *interfaces.CacheEntry) error {
	return errors.New("boom")
}

func (failingStore) DeleteEntry(ctx context.Context, partition, key string) error {
	return errors.New("boom")
}

func TestPathCache_StoreErrors(t *testing.T) {
	ctx := context.Background()
	p := New(failingStore{}, nil, testLogger()).Partition("p")

	_, _, err := p.GetString(ctx, "k")
	assert.Error(t, err)
	assert.Error(t, p.SetString(ctx, "k", "v"))
	assert.Error(t, p.Delete(ctx, "k"))
}
