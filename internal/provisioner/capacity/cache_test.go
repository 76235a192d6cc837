package capacity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "server:42:active_config_count", Key(42))
}

func TestMemoryCacheGetSet(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache()

	_, ok, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok, "fresh cache should miss")

	require.NoError(t, cache.Set(ctx, 1, 7, time.Minute))

	count, ok, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 7, count)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache()

	now := time.Now()
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Set(ctx, 1, 3, time.Minute))

	now = now.Add(2 * time.Minute)

	_, ok, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok, "expired entry should miss")
}

func TestMemoryCacheIncrement(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache()

	_, ok, err := cache.Increment(ctx, 1, 1)
	require.NoError(t, err)
	assert.False(t, ok, "increment must not create an absent key")

	_, present, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, present, "failed increment must leave no entry behind")

	require.NoError(t, cache.Set(ctx, 1, 5, time.Minute))

	count, ok, err := cache.Increment(ctx, 1, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 6, count)

	count, ok, err = cache.Increment(ctx, 1, -2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 4, count)
}

func TestMemoryCacheIncrementExpired(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache()

	now := time.Now()
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Set(ctx, 1, 5, time.Minute))
	now = now.Add(2 * time.Minute)

	_, ok, err := cache.Increment(ctx, 1, 1)
	require.NoError(t, err)
	assert.False(t, ok, "increment on an expired key behaves like a miss")
}

func TestGetOrComputeHit(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache()
	require.NoError(t, cache.Set(ctx, 1, 9, time.Minute))

	computed := false
	count, err := GetOrCompute(ctx, cache, 1, time.Minute, func(context.Context) (int, error) {
		computed = true
		return 0, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 9, count)
	assert.False(t, computed, "cache hit must not recompute")
}

func TestGetOrComputeMiss(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache()

	count, err := GetOrCompute(ctx, cache, 1, time.Minute, func(context.Context) (int, error) {
		return 4, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	cached, ok, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok, "computed value should be cached")
	assert.Equal(t, 4, cached)
}

func TestGetOrComputeError(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache()

	wantErr := errors.New("count failed")
	_, err := GetOrCompute(ctx, cache, 1, time.Minute, func(context.Context) (int, error) {
		return 0, wantErr
	})
	require.ErrorIs(t, err, wantErr)

	_, ok, getErr := cache.Get(ctx, 1)
	require.NoError(t, getErr)
	assert.False(t, ok, "failed compute must not cache anything")
}
