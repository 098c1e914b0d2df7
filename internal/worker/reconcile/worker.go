package reconcile

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/beaconhq/groupfeed/internal/database"
	"github.com/beaconhq/groupfeed/internal/feed"
	"github.com/beaconhq/groupfeed/internal/progress"
	"github.com/beaconhq/groupfeed/internal/setup"
	"github.com/beaconhq/groupfeed/internal/setup/config"
	"github.com/beaconhq/groupfeed/internal/worker/core"
	"github.com/beaconhq/groupfeed/pkg/utils"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// defaultRunInterval is used when the configured interval is missing or invalid.
const defaultRunInterval = 15 * time.Minute

// Worker periodically recounts engagement counters against their
// authoritative tables and keeps the feed cache warm for active groups.
type Worker struct {
	db         database.Client
	engine     *feed.Engine
	reconciler *feed.Reconciler
	bar        *progress.Bar
	reporter   *core.StatusReporter
	cfg        *config.WorkerConfig
	logger     *zap.Logger
}

// New creates a new reconciliation worker.
func New(app *setup.App, bar *progress.Bar, logger *zap.Logger) *Worker {
	reporter := core.NewStatusReporter(app.StatusClient, "reconcile", logger)
	engine := feed.NewEngine(app.DB, app.CacheRegistry, app.LookupRegistry, &app.Config.Common.Cache, logger)
	reconciler := feed.NewReconciler(app.DB, app.CacheRegistry, app.Config.Worker.Reconcile.BatchSize, logger)

	return &Worker{
		db:         app.DB,
		engine:     engine,
		reconciler: reconciler,
		bar:        bar,
		reporter:   reporter,
		cfg:        &app.Config.Worker,
		logger:     logger.Named("reconcile_worker"),
	}
}

// Start begins the reconciliation worker's main loop.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Reconciliation Worker started", zap.String("workerID", w.reporter.GetWorkerID()))
	w.reporter.Start(ctx)
	defer w.reporter.Stop()

	w.bar.SetTotal(100)

	// Stagger startup so multiple workers do not hit the database in lockstep
	if delay := time.Duration(w.cfg.StartupDelay) * time.Millisecond; delay > 0 {
		if utils.ContextSleepWithLog(ctx, delay, w.logger,
			"Context cancelled during startup delay, stopping worker") == utils.SleepCancelled {
			return
		}
	}

	interval := time.Duration(w.cfg.Reconcile.Interval) * time.Minute
	if interval <= 0 {
		interval = defaultRunInterval
	}

	for {
		w.bar.Reset()
		w.reporter.SetHealthy(true)

		// Step 1: Recount counters from the authoritative tables (0%)
		w.bar.SetStepMessage("Reconciling counters", 0)
		w.reporter.UpdateStatus("Reconciling counters", 0)

		report, err := w.reconciler.Run(ctx)
		if err != nil {
			w.logger.Error("Reconciliation run failed", zap.Error(err))
			w.reporter.SetHealthy(false)
		} else {
			w.logger.Info("Reconciliation run finished",
				zap.String("runID", report.RunID.String()),
				zap.Int64("scanned", report.TotalScanned()),
				zap.Int64("repaired", report.TotalRepaired()),
				zap.Duration("duration", report.Duration))
		}

		// Step 2: Warm leading feed pages for recently active groups (60%)
		w.bar.SetStepMessage("Warming feed caches", 60)
		w.reporter.UpdateStatus("Warming feed caches", 60)

		if err := w.warmCaches(ctx); err != nil {
			w.logger.Error("Cache warming failed", zap.Error(err))
			w.reporter.SetHealthy(false)
		}

		// Step 3: Wait for the next cycle (100%)
		w.bar.SetStepMessage("Waiting for next cycle", 100)
		w.reporter.UpdateStatus("Waiting for next cycle", 100)

		if utils.ContextSleepWithLog(ctx, interval, w.logger,
			"Context cancelled, stopping worker") == utils.SleepCancelled {
			return
		}
	}
}

// warmCaches refreshes the leading feed pages and group statistics for the
// most recently active groups so interactive reads land on a warm cache.
// Warming failures are logged and skipped; the next cycle retries them.
func (w *Worker) warmCaches(ctx context.Context) error {
	warmCfg := w.cfg.CacheWarm
	if warmCfg.GroupLimit <= 0 || warmCfg.PagesPerGroup <= 0 {
		return nil
	}

	groupIDs, err := w.db.Model().Feed().RecentGroupIDs(ctx, warmCfg.GroupLimit)
	if err != nil {
		return err
	}

	maxConcurrent := warmCfg.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	var warmed atomic.Int64

	p := pool.New().WithContext(ctx).WithMaxGoroutines(maxConcurrent)
	for _, groupID := range groupIDs {
		p.Go(func(ctx context.Context) error {
			warmed.Add(int64(w.engine.WarmCache(ctx, groupID, warmCfg.PagesPerGroup)))

			if _, err := w.engine.GetFeedStats(ctx, groupID); err != nil {
				w.logger.Warn("Failed to warm group stats",
					zap.Int64("groupID", groupID),
					zap.Error(err))
			}

			return nil
		})
	}

	_ = p.Wait()

	w.logger.Debug("Cache warming finished",
		zap.Int("groups", len(groupIDs)),
		zap.Int64("pagesWarmed", warmed.Load()))

	return nil
}
