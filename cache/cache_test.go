package cache

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedDoc struct {
	ID      string  `msgpack:"id"`
	Name    string  `msgpack:"name"`
	Content string  `msgpack:"content"`
	Score   float64 `msgpack:"score"`
}

func TestKeyIsStable(t *testing.T) {
	assert.Equal(t, Key("search", "service bus"), Key("search", "service bus"))
	assert.NotEqual(t, Key("search", "service bus"), Key("search", "event grid"))
	assert.NotEqual(t, Key("search", "a", "b"), Key("search", "ab"))
	assert.NotEqual(t, Key("search", "q"), Key("search_by_doc_id", "q"))
}

func TestExecPopulatesOnMiss(t *testing.T) {
	ctx := context.Background()
	c := NewInMemory(ctx)
	defer c.Close()

	calls := 0
	invoke := func(ctx context.Context) (cachedDoc, bool, error) {
		calls++
		return cachedDoc{ID: "doc-1", Name: "Queue Worker", Score: 0.87}, true, nil
	}

	found, doc, err := Exec(ctx, c, Key("search", "queues"), time.Minute, invoke)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "doc-1", doc.ID)
	assert.Equal(t, 1, calls)

	// Second call is served from cache.
	found, doc, err = Exec(ctx, c, Key("search", "queues"), time.Minute, invoke)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Queue Worker", doc.Name)
	assert.Equal(t, 1, calls)
}

func TestExecDoesNotCacheNotFound(t *testing.T) {
	ctx := context.Background()
	c := NewInMemory(ctx)
	defer c.Close()

	calls := 0
	invoke := func(ctx context.Context) (cachedDoc, bool, error) {
		calls++
		return cachedDoc{}, false, nil
	}

	found, _, err := Exec(ctx, c, "missing", time.Minute, invoke)
	require.NoError(t, err)
	assert.False(t, found)

	found, _, err = Exec(ctx, c, "missing", time.Minute, invoke)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 2, calls)
}

func TestExecPropagatesInvokerError(t *testing.T) {
	ctx := context.Background()
	c := NewInMemory(ctx)
	defer c.Close()

	boom := errors.New("upstream unavailable")
	found, _, err := Exec(ctx, c, "k", time.Minute, func(ctx context.Context) (cachedDoc, bool, error) {
		return cachedDoc{}, false, boom
	})
	assert.False(t, found)
	assert.ErrorIs(t, err, boom)
}

func TestGetRejectsMismatchedType(t *testing.T) {
	ctx := context.Background()
	c := NewInMemory(ctx)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "k", 42, time.Minute))
	found, _, err := Get[cachedDoc](ctx, c, "k")
	assert.False(t, found)
	assert.Error(t, err)
}
