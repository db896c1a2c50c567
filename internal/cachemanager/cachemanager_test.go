package cachemanager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInMemoryCacheManager_GetSet(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCacheManager[string, string]("titles", DefaultExpiration, DefaultCleanupInterval)

	_, found := cache.Get(ctx, "TC_TT0_TC1")
	require.False(t, found)

	cache.Set(ctx, "TC_TT0_TC1", "Login works", time.Minute)

	value, found := cache.Get(ctx, "TC_TT0_TC1")
	require.True(t, found)
	require.Equal(t, "Login works", value)
}

func TestInMemoryCacheManager_Delete(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCacheManager[string, int]("orders", DefaultExpiration, DefaultCleanupInterval)

	cache.Set(ctx, "a", 1, time.Minute)
	cache.Set(ctx, "b", 2, time.Minute)

	require.NoError(t, cache.Delete(ctx, "a"))

	_, found := cache.Get(ctx, "a")
	require.False(t, found)
	_, found = cache.Get(ctx, "b")
	require.True(t, found)

	require.NoError(t, cache.Flush(ctx))
	_, found = cache.Get(ctx, "b")
	require.False(t, found)
}

func TestInMemoryCacheManager_Expiration(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCacheManager[string, string]("titles", DefaultExpiration, DefaultCleanupInterval)

	cache.Set(ctx, "k", "v", 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	_, found := cache.Get(ctx, "k")
	require.False(t, found)
}

func TestReadThroughCache_Get(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCacheManager[string, string]("titles", DefaultExpiration, DefaultCleanupInterval)

	calls := 0
	rtc := NewReadThroughCache(cache, func(ctx context.Context, name string) (string, error) {
		calls++
		return "title for " + name, nil
	}, false)

	value, err := rtc.Get(ctx, "TC_TT0_TC1", "TC_TT0_TC1", time.Minute)
	require.NoError(t, err)
	require.Equal(t, "title for TC_TT0_TC1", value)
	require.Equal(t, 1, calls)

	// Second read is served from the cache
	value, err = rtc.Get(ctx, "TC_TT0_TC1", "TC_TT0_TC1", time.Minute)
	require.NoError(t, err)
	require.Equal(t, "title for TC_TT0_TC1", value)
	require.Equal(t, 1, calls)
}

func TestReadThroughCache_ErrorNotCached(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCacheManager[string, string]("titles", DefaultExpiration, DefaultCleanupInterval)

	boom := errors.New("boom")
	calls := 0
	rtc := NewReadThroughCache(cache, func(ctx context.Context, name string) (string, error) {
		calls++
		return "", boom
	}, false)

	_, err := rtc.Get(ctx, "k", "k", time.Minute)
	require.ErrorIs(t, err, boom)

	_, err = rtc.Get(ctx, "k", "k", time.Minute)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 2, calls, "failed lookups are retried, not cached")
}

func TestReadThroughCache_SkipCache(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCacheManager[string, string]("titles", DefaultExpiration, DefaultCleanupInterval)

	calls := 0
	rtc := NewReadThroughCache(cache, func(ctx context.Context, name string) (string, error) {
		calls++
		return name, nil
	}, true)

	for range [3]struct{}{} {
		_, err := rtc.Get(ctx, "k", "k", time.Minute)
		require.NoError(t, err)
	}
	require.Equal(t, 3, calls)
}
