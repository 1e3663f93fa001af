package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *LocalCache {
	c, err := NewCache(Config{GCInterval: time.Minute})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestGetSet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key1", "value1", 0))

	v, err := c.Get(ctx, "key1")
	require.NoError(t, err)
	assert.Equal(t, "value1", v)
}

func TestGetMissing(t *testing.T) {
	c := newTestCache(t)
	_, err := c.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTTLExpiry(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "ttl_key", "val", 10*time.Millisecond))

	time.Sleep(20 * time.Millisecond)
	_, err := c.Get(ctx, "ttl_key")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDel(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	_ = c.Set(ctx, "k1", "v", 0)
	_ = c.Set(ctx, "k2", "v", 0)
	require.NoError(t, c.Del(ctx, "k1", "k2"))
	_, err := c.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.Get(ctx, "k2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSweepRemovesExpired(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	_ = c.Set(ctx, "short", "v", time.Millisecond)
	_ = c.Set(ctx, "forever", "v", 0)

	c.sweep(time.Now().Add(time.Second))
	assert.Equal(t, 1, c.Len())
}

func TestCloseTwice(t *testing.T) {
	c := newTestCache(t)
	c.Close()
	assert.NotPanics(t, c.Close)
}

func TestMaxEntries_EvictsSoonestExpiry(t *testing.T) {
	c, err := NewCache(Config{GCInterval: time.Minute, MaxEntries: 3})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "forever", "v", 0))
	require.NoError(t, c.Set(ctx, "soon", "v", time.Minute))
	require.NoError(t, c.Set(ctx, "later", "v", time.Hour))
	require.NoError(t, c.Set(ctx, "later", "v2", time.Hour)) // overwrite never evicts
	assert.Equal(t, 3, c.Len())

	require.NoError(t, c.Set(ctx, "new", "v", time.Hour))
	assert.Equal(t, 3, c.Len())
	_, err = c.Get(ctx, "soon")
	assert.ErrorIs(t, err, ErrNotFound)
	for _, k := range []string{"forever", "later", "new"} {
		_, err := c.Get(ctx, k)
		assert.NoError(t, err, k)
	}
}
