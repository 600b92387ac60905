package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*ConsolidationCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewConsolidationCache(client, time.Minute), mr
}

func TestCacheServesLoaderResultOnce(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	loads := 0
	loader := func(ctx context.Context) ([]ConsolidatedProduct, error) {
		loads++
		return []ConsolidatedProduct{{ID: "p1", Name: "Bolt", CurrentStock: 5}}, nil
	}

	key, err := cache.BuildKey(ctx, "list")
	require.NoError(t, err)

	first, err := cache.FetchView(ctx, key, loader)
	require.NoError(t, err)
	second, err := cache.FetchView(ctx, key, loader)
	require.NoError(t, err)

	require.Equal(t, 1, loads)
	require.Equal(t, first, second)
	require.Equal(t, "p1", second[0].ID)
}

func TestCacheBumpInvalidatesKey(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	loads := 0
	loader := func(ctx context.Context) ([]ConsolidatedProduct, error) {
		loads++
		return []ConsolidatedProduct{{ID: "p1"}}, nil
	}

	key1, err := cache.BuildKey(ctx, "list")
	require.NoError(t, err)
	_, err = cache.FetchView(ctx, key1, loader)
	require.NoError(t, err)

	require.NoError(t, cache.Bump(ctx))

	key2, err := cache.BuildKey(ctx, "list")
	require.NoError(t, err)
	require.NotEqual(t, key1, key2)

	_, err = cache.FetchView(ctx, key2, loader)
	require.NoError(t, err)
	require.Equal(t, 2, loads)
}

func TestCacheLoaderErrorNotCached(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	boom := errors.New("store down")

	key, err := cache.BuildKey(ctx, "list")
	require.NoError(t, err)

	_, err = cache.FetchView(ctx, key, func(ctx context.Context) ([]ConsolidatedProduct, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	view, err := cache.FetchView(ctx, key, func(ctx context.Context) ([]ConsolidatedProduct, error) {
		return []ConsolidatedProduct{{ID: "p1"}}, nil
	})
	require.NoError(t, err)
	require.Len(t, view, 1)
}

func TestCacheNilClientDegradesToLoader(t *testing.T) {
	cache := NewConsolidationCache(nil, time.Minute)
	ctx := context.Background()

	key, err := cache.BuildKey(ctx, "list")
	require.NoError(t, err)

	loads := 0
	loader := func(ctx context.Context) ([]ConsolidatedProduct, error) {
		loads++
		return nil, nil
	}
	_, err = cache.FetchView(ctx, key, loader)
	require.NoError(t, err)
	_, err = cache.FetchView(ctx, key, loader)
	require.NoError(t, err)
	require.Equal(t, 2, loads)
	require.NoError(t, cache.Bump(ctx))
}
