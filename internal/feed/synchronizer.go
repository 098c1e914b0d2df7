package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/beaconhq/groupfeed/internal/cache"
	"github.com/beaconhq/groupfeed/internal/database"
	"github.com/beaconhq/groupfeed/internal/database/dbretry"
	"github.com/beaconhq/groupfeed/internal/database/models"
	"github.com/beaconhq/groupfeed/internal/database/types"
	"github.com/beaconhq/groupfeed/internal/database/types/enum"
	"github.com/beaconhq/groupfeed/pkg/utils"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// PreviewMaxRunes caps the feed preview text copied from content bodies.
const PreviewMaxRunes = 300

// Synchronizer applies content mutations. Every write updates the
// authoritative row, its feed projection, and the denormalized counters in
// one transaction, then invalidates the group's cached pages. Counter moves
// happen in SQL so concurrent writers never lose increments.
type Synchronizer struct {
	db       database.Client
	registry *cache.Registry
	lookups  *cache.Registry
	logger   *zap.Logger
}

// NewSynchronizer creates a Synchronizer on top of the given store and cache
// registries. registry holds feed pages and stats; lookups holds the profile
// and membership entries dropped on profile or membership writes.
func NewSynchronizer(db database.Client, registry, lookups *cache.Registry, logger *zap.Logger) *Synchronizer {
	return &Synchronizer{
		db:       db,
		registry: registry,
		lookups:  lookups,
		logger:   logger.Named("feed_sync"),
	}
}

// CreateContent inserts a new content item of any kind along with its feed
// projection row.
func (s *Synchronizer) CreateContent(ctx context.Context, item types.ContentItem) error {
	if !item.Kind().IsValid() {
		return fmt.Errorf("%w: %q", enum.ErrUnknownContentKind, item.Kind())
	}

	core := item.Core()

	now := time.Now()
	if core.CreatedAt.IsZero() {
		core.CreatedAt = now
	}

	core.UpdatedAt = now

	err := s.transaction(ctx, func(ctx context.Context, tx bun.Tx) error {
		if err := s.db.Model().Content().InsertWithTx(ctx, tx, item); err != nil {
			return err
		}

		return s.db.Model().Feed().UpsertWithTx(ctx, tx, projectionRow(item))
	})
	if err != nil {
		return err
	}

	if share, ok := item.(*types.ScriptureShare); ok && share.VerseText != "" {
		key := cache.VerseKey(share.Reference, share.Translation)
		s.lookups.Set(ctx, key, []byte(share.VerseText), cache.VerseTTL)
	}

	s.invalidateGroup(ctx, core.GroupID)

	return nil
}

// UpdateContent rewrites the mutable fields of a content item and refreshes
// its projection row. The item must carry its ID and group, typically by
// loading it first and editing in place.
func (s *Synchronizer) UpdateContent(ctx context.Context, item types.ContentItem) error {
	item.Core().UpdatedAt = time.Now()

	err := s.transaction(ctx, func(ctx context.Context, tx bun.Tx) error {
		if err := s.db.Model().Content().UpdateDetailsWithTx(ctx, tx, item); err != nil {
			return err
		}

		return s.db.Model().Feed().UpdateDetailsWithTx(ctx, tx, item.Kind(), item.ItemID(),
			item.DisplayTitle(), utils.TruncatePreview(item.PreviewText(), PreviewMaxRunes))
	})
	if err != nil {
		return err
	}

	if share, ok := item.(*types.ScriptureShare); ok && share.VerseText != "" {
		key := cache.VerseKey(share.Reference, share.Translation)
		s.lookups.Set(ctx, key, []byte(share.VerseText), cache.VerseTTL)
	}

	s.invalidateGroup(ctx, item.GetGroupID())

	return nil
}

// SetContentDeleted soft-deletes or restores a content item. Repeating the
// call in the same direction is a no-op. The projection flag is written
// either way so a drifted mirror heals on the next state change.
func (s *Synchronizer) SetContentDeleted(
	ctx context.Context, kind enum.ContentKind, id int64, deleted bool,
) error {
	var groupID int64

	err := s.transaction(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error

		groupID, _, err = s.db.Model().Content().SetDeletedWithTx(ctx, tx, kind, id, deleted)
		if err != nil {
			return err
		}

		return s.db.Model().Feed().SetDeletedWithTx(ctx, tx, kind, id, deleted)
	})
	if err != nil {
		return err
	}

	s.invalidateGroup(ctx, groupID)

	return nil
}

// SetContentPinned pins or unpins a content item within its kind listing.
func (s *Synchronizer) SetContentPinned(
	ctx context.Context, kind enum.ContentKind, id int64, pinned bool,
) error {
	var groupID int64

	err := s.transaction(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error

		groupID, _, err = s.db.Model().Content().SetPinnedWithTx(ctx, tx, kind, id, pinned)
		if err != nil {
			return err
		}

		return s.db.Model().Feed().SetPinnedWithTx(ctx, tx, kind, id, pinned)
	})
	if err != nil {
		return err
	}

	s.invalidateGroup(ctx, groupID)

	return nil
}

// DeleteContent permanently removes a content item along with its comments,
// reactions, and projection row.
func (s *Synchronizer) DeleteContent(ctx context.Context, kind enum.ContentKind, id int64) error {
	item, err := s.db.Model().Content().GetByID(ctx, kind, id)
	if err != nil {
		return err
	}

	err = s.transaction(ctx, func(ctx context.Context, tx bun.Tx) error {
		if _, err := s.db.Model().Comment().DeleteForContentWithTx(ctx, tx, kind, id); err != nil {
			return err
		}

		if _, err := s.db.Model().Reaction().DeleteForContentWithTx(ctx, tx, kind, id); err != nil {
			return err
		}

		if err := s.db.Model().Content().DeleteWithTx(ctx, tx, kind, id); err != nil {
			return err
		}

		return s.db.Model().Feed().DeleteWithTx(ctx, tx, kind, id)
	})
	if err != nil {
		return err
	}

	s.invalidateGroup(ctx, item.GetGroupID())

	return nil
}

// AddComment inserts a comment and bumps the comment counters on the
// authoritative row and its projection in the same transaction.
func (s *Synchronizer) AddComment(ctx context.Context, comment *types.Comment) error {
	if !comment.ContentKind.IsValid() {
		return fmt.Errorf("%w: %q", enum.ErrUnknownContentKind, comment.ContentKind)
	}

	if comment.UUID == uuid.Nil {
		comment.UUID = uuid.New()
	}

	now := time.Now()
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = now
	}

	comment.UpdatedAt = now

	err := s.transaction(ctx, func(ctx context.Context, tx bun.Tx) error {
		if err := s.db.Model().Comment().InsertWithTx(ctx, tx, comment); err != nil {
			return err
		}

		return s.bumpCounters(ctx, tx, comment.ContentKind, comment.ContentID, models.CounterComments, +1)
	})
	if err != nil {
		return err
	}

	s.invalidateGroup(ctx, comment.GroupID)

	return nil
}

// SoftDeleteComment hides a comment and moves the comment counters down by
// one. Repeating the call is a no-op.
func (s *Synchronizer) SoftDeleteComment(ctx context.Context, id uuid.UUID) error {
	return s.setCommentDeleted(ctx, id, true)
}

// RestoreComment unhides a soft-deleted comment and moves the comment
// counters back up.
func (s *Synchronizer) RestoreComment(ctx context.Context, id uuid.UUID) error {
	return s.setCommentDeleted(ctx, id, false)
}

func (s *Synchronizer) setCommentDeleted(ctx context.Context, id uuid.UUID, deleted bool) error {
	comment, err := s.db.Model().Comment().GetByUUID(ctx, id)
	if err != nil {
		return err
	}

	var changed bool

	err = s.transaction(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error

		changed, err = s.db.Model().Comment().SetDeletedWithTx(ctx, tx, comment.ID, deleted)
		if err != nil || !changed {
			return err
		}

		delta := -1
		if !deleted {
			delta = +1
		}

		return s.bumpCounters(ctx, tx, comment.ContentKind, comment.ContentID, models.CounterComments, delta)
	})
	if err != nil {
		return err
	}

	if changed {
		s.invalidateGroup(ctx, comment.GroupID)
	}

	return nil
}

// DeleteComment permanently removes a comment. The counters only move when
// the comment was still live; deleting an already hidden comment must not
// double-count.
func (s *Synchronizer) DeleteComment(ctx context.Context, id uuid.UUID) error {
	comment, err := s.db.Model().Comment().GetByUUID(ctx, id)
	if err != nil {
		return err
	}

	var wasLive bool

	err = s.transaction(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error

		wasLive, err = s.db.Model().Comment().DeleteWithTx(ctx, tx, comment.ID)
		if err != nil || !wasLive {
			return err
		}

		return s.bumpCounters(ctx, tx, comment.ContentKind, comment.ContentID, models.CounterComments, -1)
	})
	if err != nil {
		return err
	}

	s.invalidateGroup(ctx, comment.GroupID)

	return nil
}

// UpsertReaction records a user's reaction to a content item. A user holds at
// most one reaction per item, so reacting again with a different emoji
// replaces the stored emoji and leaves the counters untouched.
func (s *Synchronizer) UpsertReaction(ctx context.Context, reaction *types.Reaction) error {
	if !reaction.ContentKind.IsValid() {
		return fmt.Errorf("%w: %q", enum.ErrUnknownContentKind, reaction.ContentKind)
	}

	now := time.Now()
	if reaction.CreatedAt.IsZero() {
		reaction.CreatedAt = now
	}

	reaction.UpdatedAt = now

	err := s.transaction(ctx, func(ctx context.Context, tx bun.Tx) error {
		created, err := s.db.Model().Reaction().UpsertWithTx(ctx, tx, reaction)
		if err != nil || !created {
			return err
		}

		return s.bumpCounters(ctx, tx, reaction.ContentKind, reaction.ContentID, models.CounterReactions, +1)
	})
	if err != nil {
		return err
	}

	s.invalidateGroup(ctx, reaction.GroupID)

	return nil
}

// RemoveReaction removes a user's reaction. Removing an absent reaction is a
// no-op.
func (s *Synchronizer) RemoveReaction(
	ctx context.Context, kind enum.ContentKind, contentID, userID int64,
) error {
	var (
		groupID int64
		existed bool
	)

	err := s.transaction(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error

		groupID, existed, err = s.db.Model().Reaction().DeleteWithTx(ctx, tx, kind, contentID, userID)
		if err != nil || !existed {
			return err
		}

		return s.bumpCounters(ctx, tx, kind, contentID, models.CounterReactions, -1)
	})
	if err != nil {
		return err
	}

	if existed {
		s.invalidateGroup(ctx, groupID)
	}

	return nil
}

// SaveProfile upserts a user's profile and drops its cached copy so the next
// read sees the new details.
func (s *Synchronizer) SaveProfile(ctx context.Context, profile *types.Profile) error {
	now := time.Now()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}

	profile.UpdatedAt = now

	if err := s.db.Model().Profile().Upsert(ctx, profile); err != nil {
		return err
	}

	s.lookups.Delete(ctx, cache.ProfileKey(profile.UserID))

	return nil
}

// SaveMembership upserts a group membership and drops its cached copy.
func (s *Synchronizer) SaveMembership(ctx context.Context, membership *types.Membership) error {
	if membership.JoinedAt.IsZero() {
		membership.JoinedAt = time.Now()
	}

	if err := s.db.Model().Membership().Upsert(ctx, membership); err != nil {
		return err
	}

	s.lookups.Delete(ctx, cache.MembershipKey(membership.GroupID, membership.UserID))

	return nil
}

// RemoveMembership removes a group membership and drops its cached copy.
func (s *Synchronizer) RemoveMembership(ctx context.Context, groupID, userID int64) error {
	if _, err := s.db.Model().Membership().Delete(ctx, groupID, userID); err != nil {
		return err
	}

	s.lookups.Delete(ctx, cache.MembershipKey(groupID, userID))

	return nil
}

// transaction runs fn inside a retried transaction.
func (s *Synchronizer) transaction(ctx context.Context, fn func(context.Context, bun.Tx) error) error {
	return dbretry.Transaction(ctx, s.db.DB(), fn)
}

// bumpCounters moves a counter by one on the authoritative row and its
// projection. Decrements clamp at zero; an underflow means the counter had
// already drifted, so it is logged for the reconciler to chase but never
// fails the triggering write. A missing projection row is logged the same
// way.
func (s *Synchronizer) bumpCounters(
	ctx context.Context, tx bun.Tx, kind enum.ContentKind, contentID int64,
	column models.CounterColumn, delta int,
) error {
	if delta > 0 {
		if err := s.db.Model().Content().IncrementCounterWithTx(ctx, tx, kind, contentID, column); err != nil {
			return err
		}

		found, err := s.db.Model().Feed().IncrementCounterWithTx(ctx, tx, kind, contentID, column)
		if err != nil {
			return err
		}

		if !found {
			s.logger.Warn("Feed projection row missing during counter update",
				zap.String("kind", string(kind)),
				zap.Int64("contentID", contentID),
				zap.String("counter", string(column)))
		}

		return nil
	}

	clamped, err := s.db.Model().Content().DecrementCounterWithTx(ctx, tx, kind, contentID, column)
	if err != nil {
		return err
	}

	if clamped {
		s.logger.Error("Counter underflow clamped at zero",
			zap.String("kind", string(kind)),
			zap.Int64("contentID", contentID),
			zap.String("counter", string(column)))
	}

	found, mirrorClamped, err := s.db.Model().Feed().DecrementCounterWithTx(ctx, tx, kind, contentID, column)
	if err != nil {
		return err
	}

	switch {
	case !found:
		s.logger.Warn("Feed projection row missing during counter update",
			zap.String("kind", string(kind)),
			zap.Int64("contentID", contentID),
			zap.String("counter", string(column)))
	case mirrorClamped && !clamped:
		s.logger.Error("Counter underflow clamped at zero",
			zap.String("kind", string(kind)),
			zap.Int64("contentID", contentID),
			zap.String("counter", string(column)),
			zap.String("table", "feed_items"))
	}

	return nil
}

// invalidateGroup drops every cached feed page and the stats entry for a
// group. Invalidation is best effort; failures degrade to stale reads within
// the entry TTLs and are logged by the registry.
func (s *Synchronizer) invalidateGroup(ctx context.Context, groupID int64) {
	if groupID == 0 {
		return
	}

	s.registry.DeletePattern(ctx, cache.FeedPattern(groupID))
	s.registry.Delete(ctx, cache.StatsKey(groupID))
}

// projectionRow builds the feed projection row for a content item.
func projectionRow(item types.ContentItem) *types.FeedItem {
	core := item.Core()

	return &types.FeedItem{
		ContentKind:   item.Kind(),
		ContentID:     item.ItemID(),
		GroupID:       core.GroupID,
		AuthorID:      core.AuthorID,
		Title:         item.DisplayTitle(),
		Preview:       utils.TruncatePreview(item.PreviewText(), PreviewMaxRunes),
		CommentCount:  core.CommentCount,
		ReactionCount: core.ReactionCount,
		IsPinned:      core.IsPinned,
		IsDeleted:     core.IsDeleted,
		CreatedAt:     core.CreatedAt,
		UpdatedAt:     core.UpdatedAt,
	}
}
