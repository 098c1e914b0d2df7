package cache

import (
	"fmt"
	"hash/fnv"
	"slices"
	"strings"
	"time"

	"github.com/beaconhq/groupfeed/pkg/utils"
)

// Cache TTLs. Feed pages and stats are short because every write invalidates
// them anyway; the TTL is the backstop for missed invalidations.
const (
	FeedPageTTL   = 5 * time.Minute
	GroupStatsTTL = 10 * time.Minute
	ProfileTTL    = 15 * time.Minute
	MembershipTTL = 10 * time.Minute
	VerseTTL      = 24 * time.Hour
)

// Key prefixes. The stats prefix must never share a prefix with feed page
// keys, otherwise pattern invalidation of feed pages would take stats with it.
const (
	feedKeyPrefix    = "feed"
	statsKeyPrefix   = "feedstats"
	profileKeyPrefix = "profile"
	memberKeyPrefix  = "member"
	verseKeyPrefix   = "verse"
)

// Filter is one dimension of a feed query that participates in key derivation.
type Filter struct {
	Key   string
	Value string
}

// FeedKey derives the cache key for one page of a group's feed. The same
// logical query always produces the same key: filters are canonicalized by
// sorting before hashing, so their order never matters.
func FeedKey(groupID int64, page, pageSize int, filters []Filter) string {
	base := fmt.Sprintf("%s:%d:p%d:s%d", feedKeyPrefix, groupID, page, pageSize)
	if len(filters) == 0 {
		return base
	}

	return base + ":f" + filterHash(filters)
}

// FeedPattern returns the glob matching every cached feed page of a group.
func FeedPattern(groupID int64) string {
	return fmt.Sprintf("%s:%d:*", feedKeyPrefix, groupID)
}

// StatsKey derives the cache key for a group's engagement stats.
func StatsKey(groupID int64) string {
	return fmt.Sprintf("%s:%d", statsKeyPrefix, groupID)
}

// ProfileKey derives the cache key for a user profile.
func ProfileKey(userID int64) string {
	return fmt.Sprintf("%s:%d", profileKeyPrefix, userID)
}

// MembershipKey derives the cache key for a group membership check.
func MembershipKey(groupID, userID int64) string {
	return fmt.Sprintf("%s:%d:%d", memberKeyPrefix, groupID, userID)
}

// VerseKey derives the cache key for a scripture verse text.
func VerseKey(reference, translation string) string {
	return fmt.Sprintf("%s:%s:%s",
		verseKeyPrefix,
		strings.ToLower(strings.TrimSpace(translation)),
		utils.NormalizeVerseRef(reference))
}

// filterHash canonicalizes the filter set and hashes it to a fixed-width hex
// token, keeping keys short no matter how many filters a query carries.
func filterHash(filters []Filter) string {
	sorted := slices.Clone(filters)
	slices.SortFunc(sorted, func(a, b Filter) int {
		if c := strings.Compare(a.Key, b.Key); c != 0 {
			return c
		}

		return strings.Compare(a.Value, b.Value)
	})

	h := fnv.New64a()
	for i, filter := range sorted {
		if i > 0 {
			h.Write([]byte{'&'})
		}

		h.Write([]byte(filter.Key))
		h.Write([]byte{'='})
		h.Write([]byte(filter.Value))
	}

	return fmt.Sprintf("%016x", h.Sum64())
}
