package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/beaconhq/groupfeed/internal/database/dbretry"
	"github.com/beaconhq/groupfeed/internal/database/types"
	"github.com/beaconhq/groupfeed/internal/database/types/enum"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// ReactionModel handles queries against the reactions table.
type ReactionModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewReaction creates a ReactionModel.
func NewReaction(db *bun.DB, logger *zap.Logger) *ReactionModel {
	return &ReactionModel{
		db:     db,
		logger: logger.Named("db_reaction"),
	}
}

// UpsertWithTx inserts the reaction or, when the user already reacted to the
// item, replaces the stored emoji in place. The created flag is true only for
// a brand new row; a replacement must not move the reaction counter.
func (m *ReactionModel) UpsertWithTx(
	ctx context.Context, tx bun.IDB, reaction *types.Reaction,
) (created bool, err error) {
	res, err := tx.NewInsert().
		Model(reaction).
		On("CONFLICT (content_kind, content_id, user_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to insert reaction: %w", err)
	}

	if rows, _ := res.RowsAffected(); rows > 0 {
		return true, nil
	}

	// Row exists, swap the emoji without touching counters.
	if _, err := tx.NewUpdate().
		Model((*types.Reaction)(nil)).
		Set("emoji = ?", reaction.Emoji).
		Set("updated_at = ?", time.Now()).
		Where("content_kind = ?", reaction.ContentKind).
		Where("content_id = ?", reaction.ContentID).
		Where("user_id = ?", reaction.UserID).
		Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to replace reaction emoji: %w", err)
	}

	return false, nil
}

// DeleteWithTx removes a user's reaction. The existed flag tells the caller
// whether the counter moves; removing an absent reaction is a no-op. The
// group is returned so the caller can invalidate its cached pages.
func (m *ReactionModel) DeleteWithTx(
	ctx context.Context, tx bun.IDB, kind enum.ContentKind, contentID, userID int64,
) (groupID int64, existed bool, err error) {
	err = tx.NewDelete().
		Model((*types.Reaction)(nil)).
		Where("content_kind = ?", kind).
		Where("content_id = ?", contentID).
		Where("user_id = ?", userID).
		Returning("group_id").
		Scan(ctx, &groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}

		return 0, false, fmt.Errorf("failed to delete reaction on %s %d: %w", kind, contentID, err)
	}

	return groupID, true, nil
}

// DeleteForContentWithTx removes all reactions on a content item.
func (m *ReactionModel) DeleteForContentWithTx(
	ctx context.Context, tx bun.IDB, kind enum.ContentKind, contentID int64,
) (int64, error) {
	res, err := tx.NewDelete().
		Model((*types.Reaction)(nil)).
		Where("content_kind = ?", kind).
		Where("content_id = ?", contentID).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete reactions for %s %d: %w", kind, contentID, err)
	}

	rows, _ := res.RowsAffected()

	return rows, nil
}

// GetByUser fetches a user's reaction to a content item, if any.
func (m *ReactionModel) GetByUser(
	ctx context.Context, kind enum.ContentKind, contentID, userID int64,
) (*types.Reaction, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.Reaction, error) {
		var reaction types.Reaction

		err := m.db.NewSelect().
			Model(&reaction).
			Where("content_kind = ?", kind).
			Where("content_id = ?", contentID).
			Where("user_id = ?", userID).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get reaction on %s %d: %w", kind, contentID, err)
		}

		return &reaction, nil
	})
}

// Counts returns a map of content ID to reaction count for a batch of content
// items of one kind. IDs with no reactions are absent from the map.
func (m *ReactionModel) Counts(
	ctx context.Context, kind enum.ContentKind, contentIDs []int64,
) (map[int64]int64, error) {
	if len(contentIDs) == 0 {
		return map[int64]int64{}, nil
	}

	return dbretry.Operation(ctx, func(ctx context.Context) (map[int64]int64, error) {
		var rows []struct {
			ContentID int64 `bun:"content_id"`
			Count     int64 `bun:"count"`
		}

		err := m.db.NewSelect().
			Model((*types.Reaction)(nil)).
			Column("content_id").
			ColumnExpr("COUNT(*) AS count").
			Where("content_kind = ?", kind).
			Where("content_id IN (?)", bun.In(contentIDs)).
			Group("content_id").
			Scan(ctx, &rows)
		if err != nil {
			return nil, fmt.Errorf("failed to count reactions for %s batch: %w", kind, err)
		}

		counts := make(map[int64]int64, len(rows))
		for _, row := range rows {
			counts[row.ContentID] = row.Count
		}

		return counts, nil
	})
}
