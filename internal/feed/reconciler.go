package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/beaconhq/groupfeed/internal/cache"
	"github.com/beaconhq/groupfeed/internal/database"
	"github.com/beaconhq/groupfeed/internal/database/dbretry"
	"github.com/beaconhq/groupfeed/internal/database/types"
	"github.com/beaconhq/groupfeed/internal/database/types/enum"
	"github.com/beaconhq/groupfeed/pkg/utils"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

const defaultReconcileBatch = 500

// KindReport tallies one content kind's reconciliation pass.
type KindReport struct {
	Kind           enum.ContentKind `json:"kind"`
	Scanned        int64            `json:"scanned"`
	CountersFixed  int64            `json:"countersFixed"`
	MirrorsRebuilt int64            `json:"mirrorsRebuilt"`
	OrphansRemoved int64            `json:"orphansRemoved"`
}

// Report summarizes one reconciliation run.
type Report struct {
	RunID             uuid.UUID     `json:"runId"`
	StartedAt         time.Time     `json:"startedAt"`
	Duration          time.Duration `json:"duration"`
	Kinds             []KindReport  `json:"kinds"`
	GroupsInvalidated int           `json:"groupsInvalidated"`
}

// TotalScanned sums the rows walked across all kinds.
func (r *Report) TotalScanned() int64 {
	var total int64
	for _, kind := range r.Kinds {
		total += kind.Scanned
	}

	return total
}

// TotalRepaired sums every correction made across all kinds.
func (r *Report) TotalRepaired() int64 {
	var total int64
	for _, kind := range r.Kinds {
		total += kind.CountersFixed + kind.MirrorsRebuilt + kind.OrphansRemoved
	}

	return total
}

// Reconciler recounts comments and reactions from their authoritative tables
// and repairs any counter or projection drift it finds. Corrections are
// row-level; a clean store reconciles to zero repairs, so the job is safe to
// run on any schedule.
type Reconciler struct {
	db        database.Client
	registry  *cache.Registry
	logger    *zap.Logger
	batchSize int
}

// NewReconciler creates a Reconciler walking content tables in batches of
// batchSize rows.
func NewReconciler(db database.Client, registry *cache.Registry, batchSize int, logger *zap.Logger) *Reconciler {
	if batchSize < 1 {
		batchSize = defaultReconcileBatch
	}

	return &Reconciler{
		db:        db,
		registry:  registry,
		logger:    logger.Named("feed_reconciler"),
		batchSize: batchSize,
	}
}

// Run reconciles every content kind and invalidates the cached pages of each
// group that needed a repair.
func (r *Reconciler) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:     uuid.New(),
		StartedAt: time.Now(),
	}

	logger := r.logger.With(zap.String("runID", report.RunID.String()))
	logger.Info("Starting reconciliation run")

	touched := make(map[int64]struct{})

	for _, kind := range enum.ContentKinds() {
		kindReport, err := r.reconcileKind(ctx, kind, touched, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to reconcile %s: %w", kind, err)
		}

		report.Kinds = append(report.Kinds, *kindReport)
	}

	for groupID := range touched {
		r.registry.DeletePattern(ctx, cache.FeedPattern(groupID))
		r.registry.Delete(ctx, cache.StatsKey(groupID))
	}

	report.GroupsInvalidated = len(touched)
	report.Duration = time.Since(report.StartedAt)

	logger.Info("Reconciliation completed",
		zap.Int64("scanned", report.TotalScanned()),
		zap.Int64("repaired", report.TotalRepaired()),
		zap.Int("groupsInvalidated", report.GroupsInvalidated),
		zap.Duration("duration", report.Duration))

	return report, nil
}

// reconcileKind walks one content table in keyset batches, repairing each
// drifted row, then sweeps projection rows whose source is gone.
func (r *Reconciler) reconcileKind(
	ctx context.Context, kind enum.ContentKind, touched map[int64]struct{}, logger *zap.Logger,
) (*KindReport, error) {
	report := &KindReport{Kind: kind}

	var afterID int64

	for {
		items, err := r.db.Model().Content().ListBatch(ctx, kind, afterID, r.batchSize)
		if err != nil {
			return nil, err
		}

		if len(items) == 0 {
			break
		}

		ids := make([]int64, len(items))
		for i, item := range items {
			ids[i] = item.ItemID()
		}

		commentCounts, err := r.db.Model().Comment().LiveCounts(ctx, kind, ids)
		if err != nil {
			return nil, err
		}

		reactionCounts, err := r.db.Model().Reaction().Counts(ctx, kind, ids)
		if err != nil {
			return nil, err
		}

		mirrors, err := r.db.Model().Feed().MirrorRows(ctx, kind, ids)
		if err != nil {
			return nil, err
		}

		for _, item := range items {
			countersFixed, mirrorRebuilt, err := r.repairRow(ctx,
				item, commentCounts[item.ItemID()], reactionCounts[item.ItemID()],
				mirrors[item.ItemID()], logger)
			if err != nil {
				return nil, err
			}

			if countersFixed {
				report.CountersFixed++

				touched[item.GetGroupID()] = struct{}{}
			}

			if mirrorRebuilt {
				report.MirrorsRebuilt++

				touched[item.GetGroupID()] = struct{}{}
			}
		}

		report.Scanned += int64(len(items))
		afterID = ids[len(ids)-1]
	}

	orphanGroups, err := r.db.Model().Feed().DeleteOrphans(ctx, kind)
	if err != nil {
		return nil, err
	}

	report.OrphansRemoved = int64(len(orphanGroups))
	for _, groupID := range orphanGroups {
		touched[groupID] = struct{}{}
	}

	if report.OrphansRemoved > 0 {
		logger.Warn("Removed orphaned projection rows",
			zap.String("kind", string(kind)), zap.Int64("removed", report.OrphansRemoved))
	}

	return report, nil
}

// repairRow compares one content row and its projection against recounted
// totals and rewrites whichever side drifted, in a single transaction.
func (r *Reconciler) repairRow(
	ctx context.Context, item types.ContentItem, wantComments, wantReactions int64,
	mirror *types.FeedItem, logger *zap.Logger,
) (countersFixed, mirrorRebuilt bool, err error) {
	core := item.Core()
	kind := item.Kind()

	wantTitle := item.DisplayTitle()
	wantPreview := utils.TruncatePreview(item.PreviewText(), PreviewMaxRunes)

	sourceDrift := core.CommentCount != wantComments || core.ReactionCount != wantReactions

	mirrorMissing := mirror == nil
	mirrorDrift := !mirrorMissing &&
		(mirror.CommentCount != wantComments ||
			mirror.ReactionCount != wantReactions ||
			mirror.IsPinned != core.IsPinned ||
			mirror.IsDeleted != core.IsDeleted ||
			mirror.Title != wantTitle ||
			mirror.Preview != wantPreview)

	if !sourceDrift && !mirrorDrift && !mirrorMissing {
		return false, false, nil
	}

	err = dbretry.Transaction(ctx, r.db.DB(), func(ctx context.Context, tx bun.Tx) error {
		if sourceDrift {
			if err := r.db.Model().Content().SetCountersWithTx(ctx, tx,
				kind, core.ID, wantComments, wantReactions); err != nil {
				return err
			}
		}

		if mirrorMissing || mirrorDrift {
			row := projectionRow(item)
			row.CommentCount = wantComments
			row.ReactionCount = wantReactions
			row.UpdatedAt = time.Now()

			if err := r.db.Model().Feed().UpsertWithTx(ctx, tx, row); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return false, false, fmt.Errorf("failed to repair %s %d: %w", kind, core.ID, err)
	}

	switch {
	case mirrorMissing:
		logger.Warn("Rebuilt missing projection row",
			zap.String("kind", string(kind)), zap.Int64("contentID", core.ID))
	case sourceDrift || mirrorDrift:
		logger.Debug("Repaired drifted counters",
			zap.String("kind", string(kind)),
			zap.Int64("contentID", core.ID),
			zap.Int64("storedComments", core.CommentCount),
			zap.Int64("actualComments", wantComments),
			zap.Int64("storedReactions", core.ReactionCount),
			zap.Int64("actualReactions", wantReactions))
	}

	return sourceDrift || mirrorDrift, mirrorMissing, nil
}
