package models

import (
	"context"
	"fmt"
	"time"

	"github.com/beaconhq/groupfeed/internal/database/dbretry"
	"github.com/beaconhq/groupfeed/internal/database/types"
	"github.com/beaconhq/groupfeed/internal/database/types/enum"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// KindTally aggregates projection rows of one kind within a group.
type KindTally struct {
	Kind      enum.ContentKind `bun:"content_kind"`
	Items     int64            `bun:"items"`
	Comments  int64            `bun:"comments"`
	Reactions int64            `bun:"reactions"`
}

// FeedModel handles queries against the denormalized feed_items projection.
type FeedModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewFeed creates a FeedModel.
func NewFeed(db *bun.DB, logger *zap.Logger) *FeedModel {
	return &FeedModel{
		db:     db,
		logger: logger.Named("db_feed"),
	}
}

// UpsertWithTx writes a projection row, replacing the mutable columns when a
// row for the same source item already exists. Counters are included so the
// reconciler can recreate a lost mirror with correct totals.
func (m *FeedModel) UpsertWithTx(ctx context.Context, tx bun.IDB, item *types.FeedItem) error {
	if _, err := tx.NewInsert().
		Model(item).
		On("CONFLICT (content_kind, content_id) DO UPDATE").
		Set("title = EXCLUDED.title").
		Set("preview = EXCLUDED.preview").
		Set("comment_count = EXCLUDED.comment_count").
		Set("reaction_count = EXCLUDED.reaction_count").
		Set("is_pinned = EXCLUDED.is_pinned").
		Set("is_deleted = EXCLUDED.is_deleted").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to upsert feed item %s/%d: %w", item.ContentKind, item.ContentID, err)
	}

	return nil
}

// UpdateDetailsWithTx rewrites the title and preview of a projection row.
func (m *FeedModel) UpdateDetailsWithTx(
	ctx context.Context, tx bun.IDB, kind enum.ContentKind, contentID int64, title, preview string,
) error {
	if _, err := tx.NewUpdate().
		Model((*types.FeedItem)(nil)).
		Set("title = ?", title).
		Set("preview = ?", preview).
		Set("updated_at = ?", time.Now()).
		Where("content_kind = ?", kind).
		Where("content_id = ?", contentID).
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to update feed item %s/%d: %w", kind, contentID, err)
	}

	return nil
}

// SetDeletedWithTx flips the projection row's deletion flag.
func (m *FeedModel) SetDeletedWithTx(
	ctx context.Context, tx bun.IDB, kind enum.ContentKind, contentID int64, deleted bool,
) error {
	if _, err := tx.NewUpdate().
		Model((*types.FeedItem)(nil)).
		Set("is_deleted = ?", deleted).
		Set("updated_at = ?", time.Now()).
		Where("content_kind = ?", kind).
		Where("content_id = ?", contentID).
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to set deleted on feed item %s/%d: %w", kind, contentID, err)
	}

	return nil
}

// SetPinnedWithTx flips the projection row's pin flag.
func (m *FeedModel) SetPinnedWithTx(
	ctx context.Context, tx bun.IDB, kind enum.ContentKind, contentID int64, pinned bool,
) error {
	if _, err := tx.NewUpdate().
		Model((*types.FeedItem)(nil)).
		Set("is_pinned = ?", pinned).
		Set("updated_at = ?", time.Now()).
		Where("content_kind = ?", kind).
		Where("content_id = ?", contentID).
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to set pinned on feed item %s/%d: %w", kind, contentID, err)
	}

	return nil
}

// DeleteWithTx removes a projection row.
func (m *FeedModel) DeleteWithTx(
	ctx context.Context, tx bun.IDB, kind enum.ContentKind, contentID int64,
) error {
	if _, err := tx.NewDelete().
		Model((*types.FeedItem)(nil)).
		Where("content_kind = ?", kind).
		Where("content_id = ?", contentID).
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete feed item %s/%d: %w", kind, contentID, err)
	}

	return nil
}

// IncrementCounterWithTx bumps a projection counter by one, atomically in SQL.
// A missing mirror row is reported so the caller can flag the desync.
func (m *FeedModel) IncrementCounterWithTx(
	ctx context.Context, tx bun.IDB, kind enum.ContentKind, contentID int64, column CounterColumn,
) (found bool, err error) {
	res, err := tx.NewUpdate().
		Model((*types.FeedItem)(nil)).
		Set(fmt.Sprintf("%s = %s + 1", column, column)).
		Set("updated_at = ?", time.Now()).
		Where("content_kind = ?", kind).
		Where("content_id = ?", contentID).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to increment %s on feed item %s/%d: %w", column, kind, contentID, err)
	}

	rows, _ := res.RowsAffected()

	return rows > 0, nil
}

// DecrementCounterWithTx decrements a projection counter by one, never below
// zero, with the same clamp semantics as the authoritative tables.
func (m *FeedModel) DecrementCounterWithTx(
	ctx context.Context, tx bun.IDB, kind enum.ContentKind, contentID int64, column CounterColumn,
) (found, clamped bool, err error) {
	res, err := tx.NewUpdate().
		Model((*types.FeedItem)(nil)).
		Set(fmt.Sprintf("%s = %s - 1", column, column)).
		Set("updated_at = ?", time.Now()).
		Where("content_kind = ?", kind).
		Where("content_id = ?", contentID).
		Where(fmt.Sprintf("%s > 0", column)).
		Exec(ctx)
	if err != nil {
		return false, false, fmt.Errorf("failed to decrement %s on feed item %s/%d: %w", column, kind, contentID, err)
	}

	if rows, _ := res.RowsAffected(); rows > 0 {
		return true, false, nil
	}

	exists, err := tx.NewSelect().
		Model((*types.FeedItem)(nil)).
		Where("content_kind = ?", kind).
		Where("content_id = ?", contentID).
		Exists(ctx)
	if err != nil {
		return false, false, fmt.Errorf("failed to check feed item %s/%d after clamped decrement: %w", kind, contentID, err)
	}

	if !exists {
		return false, false, nil
	}

	return true, true, nil
}

// SetCountersWithTx overwrites both projection counters with recounted values.
func (m *FeedModel) SetCountersWithTx(
	ctx context.Context, tx bun.IDB, kind enum.ContentKind, contentID int64, comments, reactions int64,
) error {
	if _, err := tx.NewUpdate().
		Model((*types.FeedItem)(nil)).
		Set("comment_count = ?", comments).
		Set("reaction_count = ?", reactions).
		Set("updated_at = ?", time.Now()).
		Where("content_kind = ?", kind).
		Where("content_id = ?", contentID).
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to set counters on feed item %s/%d: %w", kind, contentID, err)
	}

	return nil
}

// GetPage returns one page of live projection rows for a group, newest first.
// Pinning deliberately has no effect on this ordering; pinned placement only
// applies to the per-kind listings served by GetPinnedFirst.
func (m *FeedModel) GetPage(
	ctx context.Context, groupID int64, kinds []enum.ContentKind, limit, offset int,
) ([]*types.FeedItem, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.FeedItem, error) {
		var items []*types.FeedItem

		query := m.db.NewSelect().
			Model(&items).
			Where("group_id = ?", groupID).
			Where("is_deleted = false")
		if len(kinds) > 0 {
			query = query.Where("content_kind IN (?)", bun.In(kinds))
		}

		err := query.
			Order("created_at DESC", "id DESC").
			Limit(limit).
			Offset(offset).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get feed page for group %d: %w", groupID, err)
		}

		return items, nil
	})
}

// CountForGroup counts live projection rows for a group.
func (m *FeedModel) CountForGroup(
	ctx context.Context, groupID int64, kinds []enum.ContentKind,
) (int64, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (int64, error) {
		query := m.db.NewSelect().
			Model((*types.FeedItem)(nil)).
			Where("group_id = ?", groupID).
			Where("is_deleted = false")
		if len(kinds) > 0 {
			query = query.Where("content_kind IN (?)", bun.In(kinds))
		}

		count, err := query.Count(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to count feed items for group %d: %w", groupID, err)
		}

		return int64(count), nil
	})
}

// GetPinnedFirst returns one page of a single kind with pinned items surfaced
// before the rest.
func (m *FeedModel) GetPinnedFirst(
	ctx context.Context, groupID int64, kind enum.ContentKind, limit, offset int,
) ([]*types.FeedItem, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.FeedItem, error) {
		var items []*types.FeedItem

		err := m.db.NewSelect().
			Model(&items).
			Where("group_id = ?", groupID).
			Where("content_kind = ?", kind).
			Where("is_deleted = false").
			Order("is_pinned DESC", "created_at DESC", "id DESC").
			Limit(limit).
			Offset(offset).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get pinned-first page for group %d: %w", groupID, err)
		}

		return items, nil
	})
}

// GroupKindStats aggregates live projection rows per kind for one group.
func (m *FeedModel) GroupKindStats(ctx context.Context, groupID int64) ([]KindTally, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]KindTally, error) {
		var tallies []KindTally

		err := m.db.NewSelect().
			Model((*types.FeedItem)(nil)).
			Column("content_kind").
			ColumnExpr("COUNT(*) AS items").
			ColumnExpr("COALESCE(SUM(comment_count), 0) AS comments").
			ColumnExpr("COALESCE(SUM(reaction_count), 0) AS reactions").
			Where("group_id = ?", groupID).
			Where("is_deleted = false").
			Group("content_kind").
			Scan(ctx, &tallies)
		if err != nil {
			return nil, fmt.Errorf("failed to aggregate feed stats for group %d: %w", groupID, err)
		}

		return tallies, nil
	})
}

// MirrorRows returns the projection rows for a batch of source items of one
// kind, keyed by content ID. Missing keys indicate a lost mirror.
func (m *FeedModel) MirrorRows(
	ctx context.Context, kind enum.ContentKind, contentIDs []int64,
) (map[int64]*types.FeedItem, error) {
	if len(contentIDs) == 0 {
		return map[int64]*types.FeedItem{}, nil
	}

	return dbretry.Operation(ctx, func(ctx context.Context) (map[int64]*types.FeedItem, error) {
		var items []*types.FeedItem

		err := m.db.NewSelect().
			Model(&items).
			Where("content_kind = ?", kind).
			Where("content_id IN (?)", bun.In(contentIDs)).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get mirror rows for %s batch: %w", kind, err)
		}

		rows := make(map[int64]*types.FeedItem, len(items))
		for _, item := range items {
			rows[item.ContentID] = item
		}

		return rows, nil
	})
}

// DeleteOrphans removes projection rows of one kind whose source row no longer
// exists. Returns the owning group of every removed row so the caller can
// invalidate those groups' cached pages.
func (m *FeedModel) DeleteOrphans(ctx context.Context, kind enum.ContentKind) ([]int64, error) {
	table, err := KindTable(kind)
	if err != nil {
		return nil, err
	}

	return dbretry.Operation(ctx, func(ctx context.Context) ([]int64, error) {
		var groupIDs []int64

		err := m.db.NewDelete().
			Model((*types.FeedItem)(nil)).
			Where("content_kind = ?", kind).
			Where("content_id NOT IN (SELECT id FROM ?)", bun.Ident(table)).
			Returning("group_id").
			Scan(ctx, &groupIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to delete orphaned feed items for %s: %w", kind, err)
		}

		return groupIDs, nil
	})
}

// RecentGroupIDs returns the groups with the newest feed activity, most recent
// first. The cache warmer uses this to pick which groups to preload.
func (m *FeedModel) RecentGroupIDs(ctx context.Context, limit int) ([]int64, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]int64, error) {
		var groupIDs []int64

		err := m.db.NewSelect().
			Model((*types.FeedItem)(nil)).
			Column("group_id").
			Where("is_deleted = false").
			Group("group_id").
			OrderExpr("MAX(created_at) DESC").
			Limit(limit).
			Scan(ctx, &groupIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to list recently active groups: %w", err)
		}

		return groupIDs, nil
	})
}
