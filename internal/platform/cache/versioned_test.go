package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Count int `json:"count"`
}

func TestVersionedFetchAndBump(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	c := NewVersioned(client, "dashboard", time.Minute)
	ctx := context.Background()

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return snapshot{Count: calls}, nil
	}

	key, err := c.Key(ctx, "stats", "2024-03-01")
	require.NoError(t, err)
	require.Equal(t, "dashboard:stats:2024-03-01:v1", key)

	var got snapshot
	require.NoError(t, c.FetchJSON(ctx, key, &got, loader))
	require.Equal(t, 1, got.Count)
	require.NoError(t, c.FetchJSON(ctx, key, &got, loader))
	require.Equal(t, 1, got.Count, "second read must hit the cache")

	require.NoError(t, c.Bump(ctx))
	key, err = c.Key(ctx, "stats", "2024-03-01")
	require.NoError(t, err)
	require.Equal(t, "dashboard:stats:2024-03-01:v2", key)
	require.NoError(t, c.FetchJSON(ctx, key, &got, loader))
	require.Equal(t, 2, got.Count)
}

func TestVersionedWithoutClientCallsLoader(t *testing.T) {
	c := NewVersioned(nil, "dashboard", time.Minute)
	var got snapshot
	require.NoError(t, c.FetchJSON(context.Background(), "k", &got, func(context.Context) (any, error) {
		return snapshot{Count: 9}, nil
	}))
	require.Equal(t, 9, got.Count)
	require.NoError(t, c.Bump(context.Background()))
}
