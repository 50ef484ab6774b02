package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/moviematch/internal/cache"
)

func setupCache(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return &cache.RedisCache{Client: redis.NewClient(&redis.Options{Addr: mr.Addr()})}, mr
}

func TestSeenSetMissThenHit(t *testing.T) {
	ctx := context.Background()
	c, mr := setupCache(t)

	_, ok, err := c.GetSeen(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)

	// appending to a missing set must not create a partial one
	require.NoError(t, c.AppendSeen(ctx, "s1", 9))
	_, ok, err = c.GetSeen(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.StoreSeen(ctx, "s1", 3, 1, 3))
	require.NoError(t, c.AppendSeen(ctx, "s1", 4))
	ids, ok, err := c.GetSeen(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.ElementsMatch(t, []int64{1, 3, 4}, ids)

	mr.FastForward(25 * time.Hour)
	_, ok, err = c.GetSeen(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPreferencesRoundTripAndInvalidate(t *testing.T) {
	ctx := context.Background()
	c, _ := setupCache(t)

	type snapshot struct {
		Genres map[string]float64 `json:"genres"`
	}
	require.NoError(t, c.SetPreferences(ctx, "u1", snapshot{Genres: map[string]float64{"Drama": 0.75}}))

	var got snapshot
	ok, err := c.GetPreferences(ctx, "u1", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0.75, got.Genres["Drama"])

	require.NoError(t, c.InvalidatePreferences(ctx, "u1"))
	ok, err = c.GetPreferences(ctx, "u1", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}
