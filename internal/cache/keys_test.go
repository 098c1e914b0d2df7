package cache_test

import (
	"strings"
	"testing"

	"github.com/beaconhq/groupfeed/internal/cache"
	"github.com/stretchr/testify/assert"
)

func TestFeedKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		groupID  int64
		page     int
		pageSize int
		filters  []cache.Filter
		want     string
	}{
		{
			name:     "no filters",
			groupID:  42,
			page:     1,
			pageSize: 20,
			want:     "feed:42:p1:s20",
		},
		{
			name:     "different page",
			groupID:  42,
			page:     3,
			pageSize: 20,
			want:     "feed:42:p3:s20",
		},
		{
			name:     "different page size",
			groupID:  42,
			page:     1,
			pageSize: 50,
			want:     "feed:42:p1:s50",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := cache.FeedKey(tt.groupID, tt.page, tt.pageSize, tt.filters)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFeedKeyFilterOrderIndependence(t *testing.T) {
	t.Parallel()

	forward := cache.FeedKey(7, 1, 20, []cache.Filter{
		{Key: "kind", Value: "prayer_request"},
		{Key: "author", Value: "99"},
	})
	reversed := cache.FeedKey(7, 1, 20, []cache.Filter{
		{Key: "author", Value: "99"},
		{Key: "kind", Value: "prayer_request"},
	})

	assert.Equal(t, forward, reversed)
}

func TestFeedKeyFilterValuesDiffer(t *testing.T) {
	t.Parallel()

	prayer := cache.FeedKey(7, 1, 20, []cache.Filter{{Key: "kind", Value: "prayer_request"}})
	testimony := cache.FeedKey(7, 1, 20, []cache.Filter{{Key: "kind", Value: "testimony"}})
	unfiltered := cache.FeedKey(7, 1, 20, nil)

	assert.NotEqual(t, prayer, testimony)
	assert.NotEqual(t, prayer, unfiltered)
	assert.NotEqual(t, testimony, unfiltered)
}

func TestFeedKeyMatchesOwnPattern(t *testing.T) {
	t.Parallel()

	key := cache.FeedKey(42, 2, 20, []cache.Filter{{Key: "kind", Value: "discussion"}})
	pattern := cache.FeedPattern(42)

	prefix := strings.TrimSuffix(pattern, "*")
	assert.True(t, strings.HasPrefix(key, prefix))

	// Another group's keys must not match
	other := cache.FeedKey(421, 2, 20, nil)
	assert.False(t, strings.HasPrefix(other, prefix))
}

func TestStatsKeyOutsideFeedPattern(t *testing.T) {
	t.Parallel()

	statsKey := cache.StatsKey(42)
	prefix := strings.TrimSuffix(cache.FeedPattern(42), "*")

	assert.Equal(t, "feedstats:42", statsKey)
	assert.False(t, strings.HasPrefix(statsKey, prefix))
}

func TestLookupKeys(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "profile:123", cache.ProfileKey(123))
	assert.Equal(t, "member:42:123", cache.MembershipKey(42, 123))
	assert.Equal(t, "verse:niv:john-3:16", cache.VerseKey("John 3:16", "NIV"))
	assert.Equal(t, "verse:esv:1-corinthians-13:4", cache.VerseKey("  1 Corinthians  13:4 ", "ESV"))
}
