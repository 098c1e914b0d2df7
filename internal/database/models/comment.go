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
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// CommentModel handles queries against the comments table.
type CommentModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewComment creates a CommentModel.
func NewComment(db *bun.DB, logger *zap.Logger) *CommentModel {
	return &CommentModel{
		db:     db,
		logger: logger.Named("db_comment"),
	}
}

// InsertWithTx inserts a new comment and fills in its generated ID.
func (m *CommentModel) InsertWithTx(ctx context.Context, tx bun.IDB, comment *types.Comment) error {
	if _, err := tx.NewInsert().
		Model(comment).
		Returning("id").
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert comment: %w", err)
	}

	return nil
}

// GetByUUID fetches a comment by its public identifier.
func (m *CommentModel) GetByUUID(ctx context.Context, id uuid.UUID) (*types.Comment, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.Comment, error) {
		var comment types.Comment

		err := m.db.NewSelect().
			Model(&comment).
			Where("uuid = ?", id).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: %s", types.ErrCommentNotFound, id)
			}

			return nil, fmt.Errorf("failed to get comment %s: %w", id, err)
		}

		return &comment, nil
	})
}

// SetDeletedWithTx flips the comment's soft-deletion flag.
// Returns false when the comment was already in the requested state, so the
// caller never double-counts the flip.
func (m *CommentModel) SetDeletedWithTx(
	ctx context.Context, tx bun.IDB, id int64, deleted bool,
) (changed bool, err error) {
	now := time.Now()

	query := tx.NewUpdate().
		Model((*types.Comment)(nil)).
		Set("is_deleted = ?", deleted).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("is_deleted = ?", !deleted)
	if deleted {
		query = query.Set("deleted_at = ?", now)
	} else {
		query = query.Set("deleted_at = NULL")
	}

	res, err := query.Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to set deleted on comment %d: %w", id, err)
	}

	rows, _ := res.RowsAffected()

	return rows > 0, nil
}

// DeleteWithTx permanently removes a comment.
// Returns whether the removed row was still live, which decides if the
// denormalized comment count moves.
func (m *CommentModel) DeleteWithTx(ctx context.Context, tx bun.IDB, id int64) (wasLive bool, err error) {
	var wasDeleted bool

	err = tx.NewDelete().
		Model((*types.Comment)(nil)).
		Where("id = ?", id).
		Returning("is_deleted").
		Scan(ctx, &wasDeleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("%w: id %d", types.ErrCommentNotFound, id)
		}

		return false, fmt.Errorf("failed to delete comment %d: %w", id, err)
	}

	return !wasDeleted, nil
}

// DeleteForContentWithTx removes all comments belonging to a content item.
// Used when the content item itself is hard-deleted.
func (m *CommentModel) DeleteForContentWithTx(
	ctx context.Context, tx bun.IDB, kind enum.ContentKind, contentID int64,
) (int64, error) {
	res, err := tx.NewDelete().
		Model((*types.Comment)(nil)).
		Where("content_kind = ?", kind).
		Where("content_id = ?", contentID).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete comments for %s %d: %w", kind, contentID, err)
	}

	rows, _ := res.RowsAffected()

	return rows, nil
}

// ListForContent returns live comments on a content item, oldest first.
func (m *CommentModel) ListForContent(
	ctx context.Context, kind enum.ContentKind, contentID int64, limit, offset int,
) ([]*types.Comment, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.Comment, error) {
		var comments []*types.Comment

		err := m.db.NewSelect().
			Model(&comments).
			Where("content_kind = ?", kind).
			Where("content_id = ?", contentID).
			Where("is_deleted = false").
			Order("created_at ASC", "id ASC").
			Limit(limit).
			Offset(offset).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list comments for %s %d: %w", kind, contentID, err)
		}

		return comments, nil
	})
}

// CountLiveForContent counts live comments on a content item.
func (m *CommentModel) CountLiveForContent(
	ctx context.Context, kind enum.ContentKind, contentID int64,
) (int64, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (int64, error) {
		count, err := m.db.NewSelect().
			Model((*types.Comment)(nil)).
			Where("content_kind = ?", kind).
			Where("content_id = ?", contentID).
			Where("is_deleted = false").
			Count(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to count comments for %s %d: %w", kind, contentID, err)
		}

		return int64(count), nil
	})
}

// LiveCounts returns a map of content ID to live comment count for a batch of
// content items of one kind. IDs with no comments are absent from the map.
func (m *CommentModel) LiveCounts(
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
			Model((*types.Comment)(nil)).
			Column("content_id").
			ColumnExpr("COUNT(*) AS count").
			Where("content_kind = ?", kind).
			Where("content_id IN (?)", bun.In(contentIDs)).
			Where("is_deleted = false").
			Group("content_id").
			Scan(ctx, &rows)
		if err != nil {
			return nil, fmt.Errorf("failed to count comments for %s batch: %w", kind, err)
		}

		counts := make(map[int64]int64, len(rows))
		for _, row := range rows {
			counts[row.ContentID] = row.Count
		}

		return counts, nil
	})
}
