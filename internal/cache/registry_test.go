package cache_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/beaconhq/groupfeed/internal/cache"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTest(t *testing.T) (*cache.Registry, *miniredis.Miniredis, func()) {
	t.Helper()
	// Start miniredis server
	mr, err := miniredis.Run()
	require.NoError(t, err)

	// Create Redis client. ForceSingleClient keeps rueidis in standalone mode:
	// miniredis answers CLUSTER SLOTS, which otherwise makes rueidis
	// auto-detect a cluster and reject multi-key DELs spanning hash slots.
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:       []string{mr.Addr()},
		DisableCache:      true,
		ForceSingleClient: true,
	})
	require.NoError(t, err)

	// Create test logger
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	registry := cache.NewRegistry(client, time.Second, logger)

	cleanup := func() {
		client.Close()
		mr.Close()
		logger.Sync()
	}

	return registry, mr, cleanup
}

func TestSetAndGet(t *testing.T) {
	t.Parallel()
	registry, _, cleanup := setupTest(t)
	defer cleanup()

	ctx := t.Context()

	registry.Set(ctx, "feed:1:p1:s20", []byte(`{"items":[]}`), cache.FeedPageTTL)

	value, ok := registry.Get(ctx, "feed:1:p1:s20")
	require.True(t, ok)
	assert.Equal(t, []byte(`{"items":[]}`), value)
}

func TestGetMiss(t *testing.T) {
	t.Parallel()
	registry, _, cleanup := setupTest(t)
	defer cleanup()

	value, ok := registry.Get(t.Context(), "feed:1:p1:s20")
	assert.False(t, ok)
	assert.Nil(t, value)
}

func TestSetAppliesTTL(t *testing.T) {
	t.Parallel()
	registry, mr, cleanup := setupTest(t)
	defer cleanup()

	ctx := t.Context()

	registry.Set(ctx, "feedstats:1", []byte("stats"), cache.GroupStatsTTL)

	_, ok := registry.Get(ctx, "feedstats:1")
	require.True(t, ok)

	// Jump past the TTL; the entry must be gone
	mr.FastForward(cache.GroupStatsTTL + time.Second)

	_, ok = registry.Get(ctx, "feedstats:1")
	assert.False(t, ok)
}

func TestDelete(t *testing.T) {
	t.Parallel()
	registry, _, cleanup := setupTest(t)
	defer cleanup()

	ctx := t.Context()

	registry.Set(ctx, "profile:9", []byte("p"), cache.ProfileTTL)
	registry.Delete(ctx, "profile:9")

	_, ok := registry.Get(ctx, "profile:9")
	assert.False(t, ok)
}

func TestDeletePattern(t *testing.T) {
	t.Parallel()
	registry, _, cleanup := setupTest(t)
	defer cleanup()

	ctx := t.Context()

	// Several page variants for group 1, plus entries that must survive
	for page := 1; page <= 3; page++ {
		for _, size := range []int{10, 20} {
			key := cache.FeedKey(1, page, size, nil)
			registry.Set(ctx, key, []byte("page"), cache.FeedPageTTL)
		}
	}

	filtered := cache.FeedKey(1, 1, 20, []cache.Filter{{Key: "kind", Value: "testimony"}})
	registry.Set(ctx, filtered, []byte("page"), cache.FeedPageTTL)
	registry.Set(ctx, cache.StatsKey(1), []byte("stats"), cache.GroupStatsTTL)
	registry.Set(ctx, cache.FeedKey(2, 1, 20, nil), []byte("page"), cache.FeedPageTTL)

	deleted := registry.DeletePattern(ctx, cache.FeedPattern(1))
	assert.Equal(t, 7, deleted)

	// Every group 1 page variant is gone
	_, ok := registry.Get(ctx, cache.FeedKey(1, 2, 10, nil))
	assert.False(t, ok)
	_, ok = registry.Get(ctx, filtered)
	assert.False(t, ok)

	// Stats and other groups are untouched
	_, ok = registry.Get(ctx, cache.StatsKey(1))
	assert.True(t, ok)
	_, ok = registry.Get(ctx, cache.FeedKey(2, 1, 20, nil))
	assert.True(t, ok)
}

func TestDeletePatternManyKeys(t *testing.T) {
	t.Parallel()
	registry, _, cleanup := setupTest(t)
	defer cleanup()

	ctx := t.Context()

	// Force multiple SCAN batches
	for i := range 250 {
		registry.Set(ctx, cache.FeedKey(5, i+1, 20, nil), []byte("page"), cache.FeedPageTTL)
	}

	deleted := registry.DeletePattern(ctx, cache.FeedPattern(5))
	assert.Equal(t, 250, deleted)

	_, ok := registry.Get(ctx, cache.FeedKey(5, 137, 20, nil))
	assert.False(t, ok)
}

func TestUnavailableRedisDegrades(t *testing.T) {
	t.Parallel()
	registry, mr, cleanup := setupTest(t)
	defer cleanup()

	ctx := t.Context()

	registry.Set(ctx, "feed:1:p1:s20", []byte("page"), cache.FeedPageTTL)

	// Kill the server; every operation must degrade instead of failing
	mr.Close()

	value, ok := registry.Get(ctx, "feed:1:p1:s20")
	assert.False(t, ok)
	assert.Nil(t, value)

	assert.NotPanics(t, func() {
		registry.Set(ctx, "feed:1:p1:s20", []byte("page"), cache.FeedPageTTL)
		registry.Delete(ctx, "feed:1:p1:s20")
	})

	deleted := registry.DeletePattern(ctx, cache.FeedPattern(1))
	assert.Equal(t, 0, deleted)
}

func TestGetSetManyGroups(t *testing.T) {
	t.Parallel()
	registry, _, cleanup := setupTest(t)
	defer cleanup()

	ctx := t.Context()

	for groupID := int64(1); groupID <= 5; groupID++ {
		payload := fmt.Sprintf("group-%d", groupID)
		registry.Set(ctx, cache.StatsKey(groupID), []byte(payload), cache.GroupStatsTTL)
	}

	for groupID := int64(1); groupID <= 5; groupID++ {
		value, ok := registry.Get(ctx, cache.StatsKey(groupID))
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("group-%d", groupID), string(value))
	}
}
