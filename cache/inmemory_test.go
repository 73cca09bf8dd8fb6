package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemorySetGet(t *testing.T) {
	ctx := context.Background()
	c := NewInMemory(ctx)
	defer c.Close()

	found, val, err := c.Get(ctx, "key")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, val)

	doc := cachedDoc{ID: "doc-1", Name: "Queue Worker"}
	require.NoError(t, c.Set(ctx, "key", doc, time.Minute))

	ok, got, err := Get[cachedDoc](ctx, c, "key")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, doc, got)
}

func TestInMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewInMemory(ctx)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "key", "value", 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	found, _, err := c.Get(ctx, "key")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInMemoryHits(t *testing.T) {
	ctx := context.Background()
	c := NewInMemory(ctx)
	defer c.Close()

	found, hits := c.Hits(ctx, "key")
	assert.False(t, found)
	assert.Zero(t, hits)

	require.NoError(t, c.Set(ctx, "key", "value", time.Minute))
	c.Get(ctx, "key")
	c.Get(ctx, "key")

	found, hits = c.Hits(ctx, "key")
	assert.True(t, found)
	assert.Equal(t, 2, hits)

	// Overwriting resets the counter.
	require.NoError(t, c.Set(ctx, "key", "value2", time.Minute))
	found, hits = c.Hits(ctx, "key")
	assert.True(t, found)
	assert.Zero(t, hits)
}

func TestInMemoryExpire(t *testing.T) {
	ctx := context.Background()
	c := NewInMemory(ctx)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "key", "value", time.Minute))

	found, err := c.Expire(ctx, "key")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = c.Expire(ctx, "key")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInMemoryCloseIsIdempotent(t *testing.T) {
	c := NewInMemory(context.Background())
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}
