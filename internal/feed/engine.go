// Package feed serves paginated group activity feeds from a denormalized
// projection, keeps the projection's engagement counters in step with every
// write, and repairs drift with a reconciliation sweep.
package feed

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/beaconhq/groupfeed/internal/cache"
	"github.com/beaconhq/groupfeed/internal/database"
	"github.com/beaconhq/groupfeed/internal/database/types"
	"github.com/beaconhq/groupfeed/internal/database/types/enum"
	"github.com/beaconhq/groupfeed/internal/setup/config"
	"github.com/bytedance/sonic"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultPageSize is used when a request does not specify a page size.
	DefaultPageSize = 20
	// MaxPageSize caps requested page sizes.
	MaxPageSize = 100

	defaultWarmConcurrency = 4
)

// feedEnvelope is the cached form of a feed page. The from-cache flag is
// never stored; readers stamp it on the way out.
type feedEnvelope struct {
	Items      []FeedItemView `json:"items"`
	Pagination Pagination     `json:"pagination"`
}

// Engine answers feed reads cache-first and falls back to the projection
// tables on a miss. Concurrent misses for the same page collapse into one
// database query.
type Engine struct {
	db       database.Client
	registry *cache.Registry
	lookups  *cache.Registry
	logger   *zap.Logger
	flight   singleflight.Group

	defaultPageSize int
	maxPageSize     int
	warmConcurrency int
}

// NewEngine creates an Engine on top of the given store and cache registries.
// Feed pages and stats live in registry; profiles, memberships and verse
// texts live in lookups so feed invalidation scans never walk them.
func NewEngine(
	db database.Client, registry, lookups *cache.Registry, cfg *config.Cache, logger *zap.Logger,
) *Engine {
	defaultPageSize := DefaultPageSize
	maxPageSize := MaxPageSize
	warmConcurrency := defaultWarmConcurrency

	if cfg != nil {
		if cfg.DefaultPageSize > 0 {
			defaultPageSize = cfg.DefaultPageSize
		}

		if cfg.MaxPageSize > 0 {
			maxPageSize = cfg.MaxPageSize
		}

		if cfg.WarmConcurrency > 0 {
			warmConcurrency = cfg.WarmConcurrency
		}
	}

	return &Engine{
		db:              db,
		registry:        registry,
		lookups:         lookups,
		logger:          logger.Named("feed_engine"),
		defaultPageSize: defaultPageSize,
		maxPageSize:     maxPageSize,
		warmConcurrency: warmConcurrency,
	}
}

// GetFeed returns one page of a group's activity feed, newest first across
// all kinds. kindFilter narrows the feed to a single kind and accepts the
// usual aliases; an unrecognized value is the caller's error. Out-of-range
// page numbers and sizes are clamped, never rejected.
func (e *Engine) GetFeed(
	ctx context.Context, groupID int64, kindFilter string, page, pageSize int,
) (*FeedPage, error) {
	kinds, filters, err := e.resolveKindFilter(kindFilter)
	if err != nil {
		return nil, err
	}

	page, pageSize = e.clampPagination(page, pageSize)
	key := cache.FeedKey(groupID, page, pageSize, filters)

	if envelope, ok := e.cachedEnvelope(ctx, key); ok {
		return &FeedPage{Items: envelope.Items, Pagination: envelope.Pagination, FromCache: true}, nil
	}

	result, err, _ := e.flight.Do(key, func() (any, error) {
		return e.fetchFeedPage(ctx, groupID, kinds, page, pageSize, key)
	})
	if err != nil {
		return nil, err
	}

	envelope := result.(*feedEnvelope)

	return &FeedPage{Items: envelope.Items, Pagination: envelope.Pagination}, nil
}

// GetFeedStats returns per-kind engagement totals for a group.
func (e *Engine) GetFeedStats(ctx context.Context, groupID int64) (*GroupStats, error) {
	key := cache.StatsKey(groupID)

	if raw, ok := e.registry.Get(ctx, key); ok {
		var stats GroupStats
		if decodeErr := sonic.Unmarshal(raw, &stats); decodeErr == nil {
			return &stats, nil
		}

		e.logger.Warn("Discarding undecodable cached stats entry", zap.String("key", key))
		e.registry.Delete(ctx, key)
	}

	result, err, _ := e.flight.Do(key, func() (any, error) {
		return e.fetchStats(ctx, groupID, key)
	})
	if err != nil {
		return nil, err
	}

	return result.(*GroupStats), nil
}

// GetPinnedFeed returns one page of a single kind with pinned items surfaced
// first. Pinned placement only exists inside a kind, so the kind is required
// here, and these pages are served straight from the projection tables.
func (e *Engine) GetPinnedFeed(
	ctx context.Context, groupID int64, kindRaw string, page, pageSize int,
) (*FeedPage, error) {
	kind, err := enum.ParseContentKind(kindRaw)
	if err != nil {
		return nil, err
	}

	page, pageSize = e.clampPagination(page, pageSize)

	feedModel := e.db.Model().Feed()

	total, err := feedModel.CountForGroup(ctx, groupID, []enum.ContentKind{kind})
	if err != nil {
		return nil, err
	}

	items, err := feedModel.GetPinnedFirst(ctx, groupID, kind, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}

	return &FeedPage{
		Items:      e.renderItems(ctx, items),
		Pagination: BuildPagination(page, pageSize, total),
	}, nil
}

// GetComments returns one page of live comments on a content item, oldest
// first, decorated with author profiles.
func (e *Engine) GetComments(
	ctx context.Context, kindRaw string, contentID int64, page, pageSize int,
) (*CommentPage, error) {
	kind, err := enum.ParseContentKind(kindRaw)
	if err != nil {
		return nil, err
	}

	page, pageSize = e.clampPagination(page, pageSize)

	commentModel := e.db.Model().Comment()

	total, err := commentModel.CountLiveForContent(ctx, kind, contentID)
	if err != nil {
		return nil, err
	}

	comments, err := commentModel.ListForContent(ctx, kind, contentID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}

	authorIDs := make([]int64, 0, len(comments))
	for _, comment := range comments {
		authorIDs = append(authorIDs, comment.AuthorID)
	}

	profiles := e.lookupProfiles(ctx, authorIDs)

	views := make([]CommentView, 0, len(comments))

	for _, comment := range comments {
		view := CommentView{
			UUID:      comment.UUID.String(),
			AuthorID:  comment.AuthorID,
			Body:      comment.Body,
			CreatedAt: comment.CreatedAt,
		}
		if profile, ok := profiles[comment.AuthorID]; ok {
			view.AuthorName = profile.DisplayName
		}

		views = append(views, view)
	}

	return &CommentPage{
		Comments:   views,
		Pagination: BuildPagination(page, pageSize, total),
	}, nil
}

// GetProfile returns a user's profile, cache-first.
func (e *Engine) GetProfile(ctx context.Context, userID int64) (*types.Profile, error) {
	key := cache.ProfileKey(userID)

	if raw, ok := e.lookups.Get(ctx, key); ok {
		var profile types.Profile
		if decodeErr := sonic.Unmarshal(raw, &profile); decodeErr == nil {
			return &profile, nil
		}

		e.logger.Warn("Discarding undecodable cached profile", zap.String("key", key))
		e.lookups.Delete(ctx, key)
	}

	profile, err := e.db.Model().Profile().GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, marshalErr := sonic.Marshal(profile); marshalErr == nil {
		e.lookups.Set(ctx, key, data, cache.ProfileTTL)
	}

	return profile, nil
}

// IsMember reports whether a user belongs to a group, cache-first.
func (e *Engine) IsMember(ctx context.Context, groupID, userID int64) (bool, error) {
	key := cache.MembershipKey(groupID, userID)

	if raw, ok := e.lookups.Get(ctx, key); ok {
		return string(raw) == "1", nil
	}

	member, err := e.db.Model().Membership().IsMember(ctx, groupID, userID)
	if err != nil {
		return false, err
	}

	value := []byte("0")
	if member {
		value = []byte("1")
	}

	e.lookups.Set(ctx, key, value, cache.MembershipTTL)

	return member, nil
}

// GetVerseText returns the verse text for a scripture reference in a given
// translation, drawn from previously shared passages. Verse text is immutable
// per translation so cached entries live a long time.
func (e *Engine) GetVerseText(ctx context.Context, reference, translation string) (string, error) {
	key := cache.VerseKey(reference, translation)

	if raw, ok := e.lookups.Get(ctx, key); ok {
		return string(raw), nil
	}

	verseText, err := e.db.Model().Content().FindVerseText(ctx, reference, translation)
	if err != nil {
		return "", err
	}

	e.lookups.Set(ctx, key, []byte(verseText), cache.VerseTTL)

	return verseText, nil
}

// WarmCache preloads the leading pages of a group's feed so the next reader
// hits warm entries. Pages are warmed concurrently and a failed page never
// stops the others. Returns the number of pages that ended up warm.
func (e *Engine) WarmCache(ctx context.Context, groupID int64, pages int) int {
	if pages < 1 {
		return 0
	}

	var warmed atomic.Int64

	p := pool.New().WithContext(ctx).WithMaxGoroutines(e.warmConcurrency)
	for page := 1; page <= pages; page++ {
		p.Go(func(ctx context.Context) error {
			if _, err := e.GetFeed(ctx, groupID, "", page, e.defaultPageSize); err != nil {
				e.logger.Warn("Failed to warm feed page",
					zap.Int64("groupID", groupID), zap.Int("page", page), zap.Error(err))

				return nil
			}

			warmed.Add(1)

			return nil
		})
	}

	_ = p.Wait()

	return int(warmed.Load())
}

// resolveKindFilter turns a raw kind filter into the query's kind set and the
// cache key's filter set. An empty filter means all kinds.
func (e *Engine) resolveKindFilter(raw string) ([]enum.ContentKind, []cache.Filter, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil, nil
	}

	kind, err := enum.ParseContentKind(raw)
	if err != nil {
		return nil, nil, err
	}

	return []enum.ContentKind{kind},
		[]cache.Filter{{Key: "kind", Value: string(kind)}},
		nil
}

// clampPagination normalizes out-of-range pagination inputs.
func (e *Engine) clampPagination(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}

	if pageSize < 1 {
		pageSize = e.defaultPageSize
	}

	if pageSize > e.maxPageSize {
		pageSize = e.maxPageSize
	}

	return page, pageSize
}

// cachedEnvelope fetches and decodes a cached feed page. Entries that no
// longer decode are dropped so the next read refreshes them.
func (e *Engine) cachedEnvelope(ctx context.Context, key string) (*feedEnvelope, bool) {
	raw, ok := e.registry.Get(ctx, key)
	if !ok {
		return nil, false
	}

	var envelope feedEnvelope
	if err := sonic.Unmarshal(raw, &envelope); err != nil {
		e.logger.Warn("Discarding undecodable cached feed page",
			zap.String("key", key), zap.Error(err))
		e.registry.Delete(ctx, key)

		return nil, false
	}

	return &envelope, true
}

// fetchFeedPage reads one page from the projection tables and caches it.
func (e *Engine) fetchFeedPage(
	ctx context.Context, groupID int64, kinds []enum.ContentKind, page, pageSize int, key string,
) (*feedEnvelope, error) {
	feedModel := e.db.Model().Feed()

	total, err := feedModel.CountForGroup(ctx, groupID, kinds)
	if err != nil {
		return nil, err
	}

	items, err := feedModel.GetPage(ctx, groupID, kinds, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}

	envelope := &feedEnvelope{
		Items:      e.renderItems(ctx, items),
		Pagination: BuildPagination(page, pageSize, total),
	}

	if data, marshalErr := sonic.Marshal(envelope); marshalErr == nil {
		e.registry.Set(ctx, key, data, cache.FeedPageTTL)
	} else {
		e.logger.Warn("Failed to encode feed page for caching",
			zap.String("key", key), zap.Error(marshalErr))
	}

	return envelope, nil
}

// fetchStats aggregates group stats from the projection tables and caches them.
func (e *Engine) fetchStats(ctx context.Context, groupID int64, key string) (*GroupStats, error) {
	tallies, err := e.db.Model().Feed().GroupKindStats(ctx, groupID)
	if err != nil {
		return nil, err
	}

	stats := &GroupStats{
		GroupID:     groupID,
		ItemsByKind: make(map[enum.ContentKind]KindStats, len(enum.ContentKinds())),
		GeneratedAt: time.Now().UTC(),
	}

	// Kinds with no content still appear with zeroed totals.
	for _, kind := range enum.ContentKinds() {
		stats.ItemsByKind[kind] = KindStats{}
	}

	for _, tally := range tallies {
		stats.ItemsByKind[tally.Kind] = KindStats{
			Items:     tally.Items,
			Comments:  tally.Comments,
			Reactions: tally.Reactions,
		}
		stats.TotalItems += tally.Items
		stats.TotalComments += tally.Comments
		stats.TotalReactions += tally.Reactions
	}

	if data, marshalErr := sonic.Marshal(stats); marshalErr == nil {
		e.registry.Set(ctx, key, data, cache.GroupStatsTTL)
	} else {
		e.logger.Warn("Failed to encode group stats for caching",
			zap.String("key", key), zap.Error(marshalErr))
	}

	return stats, nil
}

// renderItems turns projection rows into views, decorating them with author
// profiles. Profile lookup failures degrade to undecorated views.
func (e *Engine) renderItems(ctx context.Context, items []*types.FeedItem) []FeedItemView {
	authorIDs := make([]int64, 0, len(items))
	for _, item := range items {
		authorIDs = append(authorIDs, item.AuthorID)
	}

	profiles := e.lookupProfiles(ctx, authorIDs)

	views := make([]FeedItemView, 0, len(items))
	for _, item := range items {
		views = append(views, newFeedItemView(item, profiles))
	}

	return views
}

// lookupProfiles batch-fetches profiles, returning an empty map on failure so
// rendering can proceed without author names.
func (e *Engine) lookupProfiles(ctx context.Context, userIDs []int64) map[int64]*types.Profile {
	if len(userIDs) == 0 {
		return map[int64]*types.Profile{}
	}

	profiles, err := e.db.Model().Profile().GetByIDs(ctx, userIDs)
	if err != nil {
		e.logger.Warn("Failed to load author profiles for rendering", zap.Error(err))

		return map[int64]*types.Profile{}
	}

	return profiles
}
