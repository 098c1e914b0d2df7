package feed_test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/beaconhq/groupfeed/internal/cache"
	"github.com/beaconhq/groupfeed/internal/database/types/enum"
	"github.com/beaconhq/groupfeed/internal/feed"
	"github.com/beaconhq/groupfeed/internal/setup/config"
	"github.com/bytedance/sonic"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// cachedFeedPage mirrors the engine's cached page layout for seeding entries.
type cachedFeedPage struct {
	Items      []feed.FeedItemView `json:"items"`
	Pagination feed.Pagination     `json:"pagination"`
}

// setupEngine builds an Engine whose cache is backed by miniredis. The store
// side is left nil, so these tests only exercise paths that are answered from
// the cache or fail before reaching the database.
func setupEngine(t *testing.T) (*feed.Engine, *cache.Registry, func()) {
	t.Helper()
	// Start miniredis server
	mr, err := miniredis.Run()
	require.NoError(t, err)

	// Create Redis client
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)

	// Create test logger
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	// Both registries share the miniredis instance; production wiring puts
	// them on separate Redis databases.
	registry := cache.NewRegistry(client, time.Second, logger)
	engine := feed.NewEngine(nil, registry, registry, &config.Cache{
		DefaultPageSize: feed.DefaultPageSize,
		MaxPageSize:     feed.MaxPageSize,
	}, logger)

	cleanup := func() {
		client.Close()
		mr.Close()
		logger.Sync()
	}

	return engine, registry, cleanup
}

// seedFeedPage stores a rendered page under the given key.
func seedFeedPage(t *testing.T, registry *cache.Registry, key string, page cachedFeedPage) {
	t.Helper()

	data, err := sonic.Marshal(page)
	require.NoError(t, err)

	registry.Set(t.Context(), key, data, cache.FeedPageTTL)
}

func TestBuildPagination(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		page     int
		pageSize int
		total    int64
		want     feed.Pagination
	}{
		{
			name: "first of three pages",
			page: 1, pageSize: 10, total: 25,
			want: feed.Pagination{
				Page: 1, PageSize: 10, TotalCount: 25, TotalPages: 3,
				HasNext: true, HasPrevious: false,
			},
		},
		{
			name: "middle page",
			page: 2, pageSize: 10, total: 25,
			want: feed.Pagination{
				Page: 2, PageSize: 10, TotalCount: 25, TotalPages: 3,
				HasNext: true, HasPrevious: true,
			},
		},
		{
			name: "last page",
			page: 3, pageSize: 10, total: 25,
			want: feed.Pagination{
				Page: 3, PageSize: 10, TotalCount: 25, TotalPages: 3,
				HasNext: false, HasPrevious: true,
			},
		},
		{
			name: "exact page boundary",
			page: 2, pageSize: 10, total: 20,
			want: feed.Pagination{
				Page: 2, PageSize: 10, TotalCount: 20, TotalPages: 2,
				HasNext: false, HasPrevious: true,
			},
		},
		{
			name: "empty result set still has one page",
			page: 1, pageSize: 20, total: 0,
			want: feed.Pagination{
				Page: 1, PageSize: 20, TotalCount: 0, TotalPages: 1,
				HasNext: false, HasPrevious: false,
			},
		},
		{
			name: "page far past the end",
			page: 999, pageSize: 20, total: 3,
			want: feed.Pagination{
				Page: 999, PageSize: 20, TotalCount: 3, TotalPages: 1,
				HasNext: false, HasPrevious: true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := feed.BuildPagination(tt.page, tt.pageSize, tt.total)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetFeedServesCachedPage(t *testing.T) {
	t.Parallel()
	engine, registry, cleanup := setupEngine(t)
	defer cleanup()

	ctx := t.Context()

	seeded := cachedFeedPage{
		Items: []feed.FeedItemView{
			{
				ItemID:     11,
				Kind:       enum.ContentKindDiscussion,
				GroupID:    42,
				AuthorID:   7,
				AuthorName: "Sarah",
				Title:      "Wednesday study notes",
				Preview:    "A few questions from chapter 4",
				CreatedAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			},
		},
		Pagination: feed.BuildPagination(1, 20, 1),
	}
	seedFeedPage(t, registry, cache.FeedKey(42, 1, 20, nil), seeded)

	page, err := engine.GetFeed(ctx, 42, "", 1, 20)
	require.NoError(t, err)

	assert.True(t, page.FromCache)
	assert.Equal(t, seeded.Items, page.Items)
	assert.Equal(t, seeded.Pagination, page.Pagination)
}

func TestGetFeedClampsPaginationInput(t *testing.T) {
	t.Parallel()
	engine, registry, cleanup := setupEngine(t)
	defer cleanup()

	ctx := t.Context()

	// Only the clamped key is seeded, so a cache hit proves the inputs were
	// normalized before key derivation.
	seedFeedPage(t, registry, cache.FeedKey(5, 1, feed.DefaultPageSize, nil), cachedFeedPage{
		Items:      []feed.FeedItemView{},
		Pagination: feed.BuildPagination(1, feed.DefaultPageSize, 0),
	})

	for _, input := range []struct{ page, pageSize int }{
		{page: 0, pageSize: 0},
		{page: -5, pageSize: -1},
		{page: 1, pageSize: 0},
	} {
		page, err := engine.GetFeed(ctx, 5, "", input.page, input.pageSize)
		require.NoError(t, err)
		assert.True(t, page.FromCache)
		assert.Equal(t, 1, page.Pagination.Page)
		assert.Equal(t, feed.DefaultPageSize, page.Pagination.PageSize)
	}
}

func TestGetFeedOversizedPageClampsToMax(t *testing.T) {
	t.Parallel()
	engine, registry, cleanup := setupEngine(t)
	defer cleanup()

	ctx := t.Context()

	seedFeedPage(t, registry, cache.FeedKey(5, 1, feed.MaxPageSize, nil), cachedFeedPage{
		Items:      []feed.FeedItemView{},
		Pagination: feed.BuildPagination(1, feed.MaxPageSize, 0),
	})

	page, err := engine.GetFeed(ctx, 5, "", 1, 10_000)
	require.NoError(t, err)
	assert.True(t, page.FromCache)
	assert.Equal(t, feed.MaxPageSize, page.Pagination.PageSize)
}

func TestGetFeedKindFilterAliases(t *testing.T) {
	t.Parallel()
	engine, registry, cleanup := setupEngine(t)
	defer cleanup()

	ctx := t.Context()

	// The seeded key uses the canonical kind, so hits prove aliases and
	// casing collapse onto one cache entry.
	canonical := []cache.Filter{{Key: "kind", Value: "prayer_request"}}
	seedFeedPage(t, registry, cache.FeedKey(7, 1, 20, canonical), cachedFeedPage{
		Items:      []feed.FeedItemView{},
		Pagination: feed.BuildPagination(1, 20, 0),
	})

	for _, filter := range []string{"prayer_request", "prayer", "Prayer", " PRAYER_REQUEST "} {
		page, err := engine.GetFeed(ctx, 7, filter, 1, 20)
		require.NoError(t, err, "filter %q", filter)
		assert.True(t, page.FromCache, "filter %q", filter)
	}
}

func TestGetFeedUnknownKindFilter(t *testing.T) {
	t.Parallel()
	engine, _, cleanup := setupEngine(t)
	defer cleanup()

	ctx := t.Context()

	for _, filter := range []string{"memes", "discussions", "prayer-request"} {
		_, err := engine.GetFeed(ctx, 1, filter, 1, 20)
		require.ErrorIs(t, err, enum.ErrUnknownContentKind, "filter %q", filter)
	}
}

func TestGetFeedStatsServesCachedEntry(t *testing.T) {
	t.Parallel()
	engine, registry, cleanup := setupEngine(t)
	defer cleanup()

	ctx := t.Context()

	seeded := feed.GroupStats{
		GroupID:        42,
		TotalItems:     5,
		TotalComments:  12,
		TotalReactions: 30,
		ItemsByKind: map[enum.ContentKind]feed.KindStats{
			enum.ContentKindDiscussion:     {Items: 3, Comments: 10, Reactions: 20},
			enum.ContentKindPrayerRequest:  {Items: 2, Comments: 2, Reactions: 10},
			enum.ContentKindTestimony:      {},
			enum.ContentKindScriptureShare: {},
		},
		GeneratedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	data, err := sonic.Marshal(seeded)
	require.NoError(t, err)
	registry.Set(ctx, cache.StatsKey(42), data, cache.GroupStatsTTL)

	stats, err := engine.GetFeedStats(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, &seeded, stats)
}

func TestGetVerseTextServesCachedEntry(t *testing.T) {
	t.Parallel()
	engine, registry, cleanup := setupEngine(t)
	defer cleanup()

	ctx := t.Context()

	verse := "For God so loved the world that he gave his one and only Son"
	registry.Set(ctx, cache.VerseKey("John 3:16", "NIV"), []byte(verse), cache.VerseTTL)

	got, err := engine.GetVerseText(ctx, "John 3:16", "NIV")
	require.NoError(t, err)
	assert.Equal(t, verse, got)
}

func TestIsMemberServesCachedEntry(t *testing.T) {
	t.Parallel()
	engine, registry, cleanup := setupEngine(t)
	defer cleanup()

	ctx := t.Context()

	registry.Set(ctx, cache.MembershipKey(42, 7), []byte("1"), cache.MembershipTTL)
	registry.Set(ctx, cache.MembershipKey(42, 8), []byte("0"), cache.MembershipTTL)

	member, err := engine.IsMember(ctx, 42, 7)
	require.NoError(t, err)
	assert.True(t, member)

	member, err = engine.IsMember(ctx, 42, 8)
	require.NoError(t, err)
	assert.False(t, member)
}

func TestWarmCacheWithoutPages(t *testing.T) {
	t.Parallel()
	engine, _, cleanup := setupEngine(t)
	defer cleanup()

	assert.Zero(t, engine.WarmCache(t.Context(), 42, 0))
	assert.Zero(t, engine.WarmCache(t.Context(), 42, -3))
}
