package setup

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/beaconhq/groupfeed/internal/cache"
	"github.com/beaconhq/groupfeed/internal/database"
	"github.com/beaconhq/groupfeed/internal/database/migrations"
	"github.com/beaconhq/groupfeed/internal/redis"
	"github.com/beaconhq/groupfeed/internal/setup/config"
	"github.com/beaconhq/groupfeed/internal/setup/telemetry"
	"github.com/redis/rueidis"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

// App bundles all core dependencies and services needed by the application.
// Each field represents a major subsystem that needs initialization and cleanup.
type App struct {
	Config         *config.Config     // Application configuration
	Logger         *zap.Logger        // Main application logger
	DBLogger       *zap.Logger        // Database-specific logger
	DB             database.Client    // Database connection pool
	RedisManager   *redis.Manager     // Redis connection manager
	CacheRegistry  *cache.Registry    // Feed page and stats cache on top of Redis
	LookupRegistry *cache.Registry    // Profile, membership and verse lookup cache
	StatusClient   rueidis.Client     // Redis client for worker status reporting
	LogManager     *telemetry.Manager // Log management system
	pprofServer    *pprofServer       // Debug HTTP server for pprof
}

// InitializeApp bootstraps all application dependencies in the correct order,
// ensuring each component has its required dependencies available.
// Workers can provide type and ID information for service identification.
func InitializeApp(ctx context.Context, serviceType telemetry.ServiceType, logDir string, workerInfo ...string) (*App, error) {
	// Load app configuration
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	// Extract worker information if provided
	var workerType, workerID string

	if len(workerInfo) > 0 {
		workerType = workerInfo[0]
	}

	if len(workerInfo) > 1 {
		workerID = workerInfo[1]
	}

	// Logging system is initialized next to capture setup issues
	logManager := telemetry.NewManager(
		ctx, serviceType, logDir, &cfg.Common.Debug, &cfg.Common.Loki, workerType, workerID,
	)

	logger, dbLogger, err := logManager.GetLoggers()
	if err != nil {
		return nil, err
	}

	// Redis manager provides connection pools for various subsystems
	redisManager := redis.NewManager(&cfg.Common.Redis, logger)

	// Initialize database with migration check
	db, err := checkAndRunMigrations(ctx, &cfg.Common.PostgreSQL, dbLogger)
	if err != nil {
		return nil, err
	}

	// Feed cache registry sits on its own Redis database so pattern
	// invalidation never scans unrelated keys
	feedCacheClient, err := redisManager.GetClient(redis.FeedCacheDBIndex)
	if err != nil {
		return nil, err
	}

	opTimeout := time.Duration(cfg.Common.Cache.OperationTimeout) * time.Millisecond
	cacheRegistry := cache.NewRegistry(feedCacheClient, opTimeout, logger)

	// Point lookups live in a separate database so feed pattern scans never
	// walk them
	lookupClient, err := redisManager.GetClient(redis.LookupCacheDBIndex)
	if err != nil {
		return nil, err
	}

	lookupRegistry := cache.NewRegistry(lookupClient, opTimeout, logger)

	// Worker heartbeats get their own database
	statusClient, err := redisManager.GetClient(redis.WorkerStatusDBIndex)
	if err != nil {
		return nil, err
	}

	// Start pprof server if enabled
	var pprofSrv *pprofServer

	if cfg.Common.Debug.EnablePprof {
		srv, err := startPprofServer(cfg.Common.Debug.PprofPort, logger)
		if err != nil {
			logger.Error("Failed to start pprof server", zap.Error(err))
		} else {
			pprofSrv = srv

			logger.Warn("pprof debugging endpoint enabled - this should not be used in production!")
		}
	}

	// Bundle all initialized components
	return &App{
		Config:         cfg,
		Logger:         logger,
		DBLogger:       dbLogger.Named("database"),
		DB:             db,
		RedisManager:   redisManager,
		CacheRegistry:  cacheRegistry,
		LookupRegistry: lookupRegistry,
		StatusClient:   statusClient,
		LogManager:     logManager,
		pprofServer:    pprofSrv,
	}, nil
}

// Cleanup ensures graceful shutdown of all components in reverse initialization order.
// Logs but does not fail on cleanup errors to ensure all components get cleanup attempts.
func (s *App) Cleanup(ctx context.Context) {
	// Shutdown pprof server if running
	if s.pprofServer != nil {
		if err := s.pprofServer.srv.Shutdown(ctx); err != nil {
			s.Logger.Error("Failed to shutdown pprof server", zap.Error(err))
		}

		s.pprofServer.listener.Close()
	}

	// Sync buffered logs before shutdown
	if err := s.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	if err := s.DBLogger.Sync(); err != nil {
		log.Printf("Failed to sync DB logger: %v", err)
	}

	// Stop telemetry manager to flush Loki logs
	s.LogManager.Stop()

	// Close database connections
	if err := s.DB.Close(); err != nil {
		log.Printf("Failed to close database connection: %v", err)
	}

	// Close Redis connections last as other components might need it during cleanup
	s.RedisManager.Close()
}

// checkAndRunMigrations runs database migrations if needed.
func checkAndRunMigrations(ctx context.Context, cfg *config.PostgreSQL, dbLogger *zap.Logger) (database.Client, error) {
	tempDB, err := database.NewConnection(ctx, cfg, dbLogger, false)
	if err != nil {
		return nil, err
	}

	migrator := migrate.NewMigrator(tempDB.DB(), migrations.Migrations)

	ms, err := migrator.MigrationsWithStatus(ctx)
	if err != nil {
		tempDB.Close()
		return nil, fmt.Errorf("failed to check migration status: %w", err)
	}

	var db database.Client

	unapplied := ms.Unapplied()
	if len(unapplied) > 0 {
		log.Println("Database migrations are pending. Would you like to run them now? (y/N)")

		var response string

		_, _ = fmt.Scanln(&response)

		if response == "y" || response == "Y" {
			tempDB.Close()

			db, err = database.NewConnection(ctx, cfg, dbLogger, true)
		} else {
			log.Fatalf("Closing program due to incomplete migrations")
		}
	} else {
		db = tempDB
	}

	return db, err
}
