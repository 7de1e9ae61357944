package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *SQLiteCache {
	t.Helper()
	c, err := NewSQLite(context.Background(), filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() }) //nolint:errcheck
	return c
}

func TestSQLiteCache_SetAndGet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "crossref:abc", []byte(`[{"id":"c1"}]`), time.Hour))

	data, err := c.Get(ctx, "crossref:abc")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"c1"}]`, string(data))
}

func TestSQLiteCache_Miss(t *testing.T) {
	c := newTestCache(t)
	data, err := c.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestSQLiteCache_Overwrite(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("old"), time.Hour))
	require.NoError(t, c.Set(ctx, "k", []byte("new"), time.Hour))

	data, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	n, err := c.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteCache_Expiry(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "short", []byte("a"), time.Minute))
	require.NoError(t, c.Set(ctx, "long", []byte("b"), time.Hour))

	now = now.Add(2 * time.Minute)

	data, err := c.Get(ctx, "short")
	require.NoError(t, err)
	assert.Nil(t, data)

	data, err = c.Get(ctx, "long")
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))

	removed, err := c.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	n, err := c.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteCache_ImplementsCache(t *testing.T) {
	var _ Cache = newTestCache(t)
}

func TestNewSQLite_BadPath(t *testing.T) {
	_, err := NewSQLite(context.Background(), filepath.Join(t.TempDir(), "missing", "dir", "cache.db"))
	assert.Error(t, err)
}
