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

// CounterColumn names a denormalized counter column on content rows.
// Keeping this a closed type means column names can be interpolated into SQL.
type CounterColumn string

const (
	// CounterComments is the live comment counter.
	CounterComments CounterColumn = "comment_count"
	// CounterReactions is the reaction counter.
	CounterReactions CounterColumn = "reaction_count"
)

// ContentModel handles queries against the four authoritative content tables.
// Callers address rows by (kind, id); dispatch to the right table is explicit.
type ContentModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewContent creates a ContentModel.
func NewContent(db *bun.DB, logger *zap.Logger) *ContentModel {
	return &ContentModel{
		db:     db,
		logger: logger.Named("db_content"),
	}
}

// newKindRow returns an empty row of the kind's concrete type for scanning.
func newKindRow(kind enum.ContentKind) (types.ContentItem, error) {
	switch kind {
	case enum.ContentKindDiscussion:
		return &types.Discussion{}, nil
	case enum.ContentKindPrayerRequest:
		return &types.PrayerRequest{}, nil
	case enum.ContentKindTestimony:
		return &types.Testimony{}, nil
	case enum.ContentKindScriptureShare:
		return &types.ScriptureShare{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", enum.ErrUnknownContentKind, kind)
	}
}

// kindModel returns a nil typed pointer selecting the kind's table.
func kindModel(kind enum.ContentKind) (any, error) {
	switch kind {
	case enum.ContentKindDiscussion:
		return (*types.Discussion)(nil), nil
	case enum.ContentKindPrayerRequest:
		return (*types.PrayerRequest)(nil), nil
	case enum.ContentKindTestimony:
		return (*types.Testimony)(nil), nil
	case enum.ContentKindScriptureShare:
		return (*types.ScriptureShare)(nil), nil
	default:
		return nil, fmt.Errorf("%w: %q", enum.ErrUnknownContentKind, kind)
	}
}

// KindTable returns the SQL table name backing a content kind.
func KindTable(kind enum.ContentKind) (string, error) {
	switch kind {
	case enum.ContentKindDiscussion:
		return "discussions", nil
	case enum.ContentKindPrayerRequest:
		return "prayer_requests", nil
	case enum.ContentKindTestimony:
		return "testimonies", nil
	case enum.ContentKindScriptureShare:
		return "scripture_shares", nil
	default:
		return "", fmt.Errorf("%w: %q", enum.ErrUnknownContentKind, kind)
	}
}

// GetByID fetches a single content item regardless of deletion state.
func (m *ContentModel) GetByID(ctx context.Context, kind enum.ContentKind, id int64) (types.ContentItem, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (types.ContentItem, error) {
		item, err := newKindRow(kind)
		if err != nil {
			return nil, err
		}

		err = m.db.NewSelect().
			Model(item).
			Where("id = ?", id).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: %s/%d", types.ErrContentNotFound, kind, id)
			}

			return nil, fmt.Errorf("failed to get %s %d: %w", kind, id, err)
		}

		return item, nil
	})
}

// InsertWithTx inserts a new content row and fills in its generated ID.
func (m *ContentModel) InsertWithTx(ctx context.Context, tx bun.IDB, item types.ContentItem) error {
	if !item.Kind().IsValid() {
		return fmt.Errorf("%w: %q", enum.ErrUnknownContentKind, item.Kind())
	}

	if _, err := tx.NewInsert().
		Model(item).
		Returning("id").
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert %s: %w", item.Kind(), err)
	}

	return nil
}

// UpdateDetailsWithTx rewrites the mutable fields of a content row.
// Counters, deletion state, and pin state have their own methods.
func (m *ContentModel) UpdateDetailsWithTx(ctx context.Context, tx bun.IDB, item types.ContentItem) error {
	res, err := tx.NewUpdate().
		Model(item).
		ExcludeColumn("id", "group_id", "author_id", "comment_count", "reaction_count",
			"is_pinned", "is_deleted", "deleted_at", "created_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update %s %d: %w", item.Kind(), item.ItemID(), err)
	}

	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: %s/%d", types.ErrContentNotFound, item.Kind(), item.ItemID())
	}

	return nil
}

// SetDeletedWithTx flips the soft-deletion flag and returns the row's group ID.
// Rows already in the requested state are left untouched and reported as unchanged.
func (m *ContentModel) SetDeletedWithTx(
	ctx context.Context, tx bun.IDB, kind enum.ContentKind, id int64, deleted bool,
) (groupID int64, changed bool, err error) {
	model, err := kindModel(kind)
	if err != nil {
		return 0, false, err
	}

	now := time.Now()

	query := tx.NewUpdate().
		Model(model).
		Set("is_deleted = ?", deleted).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("is_deleted = ?", !deleted).
		Returning("group_id")
	if deleted {
		query = query.Set("deleted_at = ?", now)
	} else {
		query = query.Set("deleted_at = NULL")
	}

	err = query.Scan(ctx, &groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return m.resolveUnchanged(ctx, tx, kind, id)
		}

		return 0, false, fmt.Errorf("failed to set deleted on %s %d: %w", kind, id, err)
	}

	return groupID, true, nil
}

// resolveUnchanged distinguishes a no-op flag flip from a missing row.
func (m *ContentModel) resolveUnchanged(
	ctx context.Context, tx bun.IDB, kind enum.ContentKind, id int64,
) (int64, bool, error) {
	model, err := kindModel(kind)
	if err != nil {
		return 0, false, err
	}

	var groupID int64

	err = tx.NewSelect().
		Model(model).
		Column("group_id").
		Where("id = ?", id).
		Scan(ctx, &groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, fmt.Errorf("%w: %s/%d", types.ErrContentNotFound, kind, id)
		}

		return 0, false, fmt.Errorf("failed to look up %s %d: %w", kind, id, err)
	}

	return groupID, false, nil
}

// SetPinnedWithTx flips the pin flag and returns the row's group ID.
func (m *ContentModel) SetPinnedWithTx(
	ctx context.Context, tx bun.IDB, kind enum.ContentKind, id int64, pinned bool,
) (groupID int64, changed bool, err error) {
	model, err := kindModel(kind)
	if err != nil {
		return 0, false, err
	}

	err = tx.NewUpdate().
		Model(model).
		Set("is_pinned = ?", pinned).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Where("is_pinned = ?", !pinned).
		Returning("group_id").
		Scan(ctx, &groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return m.resolveUnchanged(ctx, tx, kind, id)
		}

		return 0, false, fmt.Errorf("failed to set pinned on %s %d: %w", kind, id, err)
	}

	return groupID, true, nil
}

// DeleteWithTx permanently removes a content row.
func (m *ContentModel) DeleteWithTx(ctx context.Context, tx bun.IDB, kind enum.ContentKind, id int64) error {
	model, err := kindModel(kind)
	if err != nil {
		return err
	}

	if _, err := tx.NewDelete().
		Model(model).
		Where("id = ?", id).
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete %s %d: %w", kind, id, err)
	}

	return nil
}

// IncrementCounterWithTx bumps a counter column by one, atomically in SQL.
func (m *ContentModel) IncrementCounterWithTx(
	ctx context.Context, tx bun.IDB, kind enum.ContentKind, id int64, column CounterColumn,
) error {
	model, err := kindModel(kind)
	if err != nil {
		return err
	}

	res, err := tx.NewUpdate().
		Model(model).
		Set(fmt.Sprintf("%s = %s + 1", column, column)).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to increment %s on %s %d: %w", column, kind, id, err)
	}

	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: %s/%d", types.ErrContentNotFound, kind, id)
	}

	return nil
}

// DecrementCounterWithTx decrements a counter column by one, never below zero.
// The guarded update only matches rows with a positive counter; when the guard
// fails on an existing row the decrement is absorbed and clamped=true is
// returned so the caller can log the underflow.
func (m *ContentModel) DecrementCounterWithTx(
	ctx context.Context, tx bun.IDB, kind enum.ContentKind, id int64, column CounterColumn,
) (clamped bool, err error) {
	model, err := kindModel(kind)
	if err != nil {
		return false, err
	}

	res, err := tx.NewUpdate().
		Model(model).
		Set(fmt.Sprintf("%s = %s - 1", column, column)).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Where(fmt.Sprintf("%s > 0", column)).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to decrement %s on %s %d: %w", column, kind, id, err)
	}

	if rows, _ := res.RowsAffected(); rows > 0 {
		return false, nil
	}

	exists, err := tx.NewSelect().
		Model(model).
		Where("id = ?", id).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check %s %d after clamped decrement: %w", kind, id, err)
	}

	if !exists {
		return false, fmt.Errorf("%w: %s/%d", types.ErrContentNotFound, kind, id)
	}

	return true, nil
}

// SetCountersWithTx overwrites both counters with recounted values.
// Used by reconciliation only; normal writes go through the increment methods.
func (m *ContentModel) SetCountersWithTx(
	ctx context.Context, tx bun.IDB, kind enum.ContentKind, id int64, comments, reactions int64,
) error {
	model, err := kindModel(kind)
	if err != nil {
		return err
	}

	if _, err := tx.NewUpdate().
		Model(model).
		Set("comment_count = ?", comments).
		Set("reaction_count = ?", reactions).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to set counters on %s %d: %w", kind, id, err)
	}

	return nil
}

// FindVerseText returns the most recently shared verse text for a scripture
// reference in a given translation.
func (m *ContentModel) FindVerseText(ctx context.Context, reference, translation string) (string, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (string, error) {
		var verseText string

		err := m.db.NewSelect().
			Model((*types.ScriptureShare)(nil)).
			Column("verse_text").
			Where("LOWER(reference) = LOWER(?)", reference).
			Where("LOWER(translation) = LOWER(?)", translation).
			Where("is_deleted = false").
			OrderExpr("id DESC").
			Limit(1).
			Scan(ctx, &verseText)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return "", fmt.Errorf("%w: %s (%s)", types.ErrVerseNotFound, reference, translation)
			}

			return "", fmt.Errorf("failed to find verse text for %s (%s): %w", reference, translation, err)
		}

		return verseText, nil
	})
}

// ListBatch returns up to limit rows of a kind with IDs greater than afterID,
// ordered by ID. This is the reconciler's keyset walk over a content table.
func (m *ContentModel) ListBatch(
	ctx context.Context, kind enum.ContentKind, afterID int64, limit int,
) ([]types.ContentItem, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]types.ContentItem, error) {
		switch kind {
		case enum.ContentKindDiscussion:
			return scanBatch[types.Discussion](ctx, m.db, afterID, limit)
		case enum.ContentKindPrayerRequest:
			return scanBatch[types.PrayerRequest](ctx, m.db, afterID, limit)
		case enum.ContentKindTestimony:
			return scanBatch[types.Testimony](ctx, m.db, afterID, limit)
		case enum.ContentKindScriptureShare:
			return scanBatch[types.ScriptureShare](ctx, m.db, afterID, limit)
		default:
			return nil, fmt.Errorf("%w: %q", enum.ErrUnknownContentKind, kind)
		}
	})
}

// scanBatch runs the keyset query for one concrete row type.
func scanBatch[T any, PT interface {
	*T
	types.ContentItem
}](ctx context.Context, db *bun.DB, afterID int64, limit int) ([]types.ContentItem, error) {
	var rows []T

	err := db.NewSelect().
		Model(&rows).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list content batch: %w", err)
	}

	items := make([]types.ContentItem, len(rows))
	for i := range rows {
		items[i] = PT(&rows[i])
	}

	return items, nil
}
