package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/beaconhq/groupfeed/internal/progress"
	"github.com/beaconhq/groupfeed/internal/setup"
	"github.com/beaconhq/groupfeed/internal/setup/telemetry"
	"github.com/beaconhq/groupfeed/internal/worker/core"
	"github.com/beaconhq/groupfeed/internal/worker/reconcile"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

const (
	// WorkerLogDir specifies where worker log files are stored.
	WorkerLogDir = "logs/worker_logs"

	// ReconcileWorker recounts engagement counters and warms feed caches.
	ReconcileWorker = "reconcile"
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "worker",
		Usage: "Start the groupfeed worker",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Value:   1,
				Usage:   "Number of workers to start",
			},
			&cli.StringFlag{
				Name:  "log-dir",
				Value: WorkerLogDir,
				Usage: "Directory for worker log files",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  ReconcileWorker,
				Usage: "Start reconciliation workers",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "interval",
						Value: 0,
						Usage: "Minutes between reconciliation runs (overrides config)",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					runWorkers(ctx, ReconcileWorker, c.Int("workers"), c.String("log-dir"), c.Int("interval"))
					return nil
				},
			},
			{
				Name:  "status",
				Usage: "Show currently active workers",
				Action: func(ctx context.Context, c *cli.Command) error {
					return showStatus(ctx, c.String("log-dir"))
				},
			},
		},
	}

	return app.Run(context.Background(), os.Args)
}

// runWorkers starts multiple instances of a worker type.
func runWorkers(ctx context.Context, workerType string, count int64, logDir string, intervalOverride int64) {
	app, err := setup.InitializeApp(ctx, telemetry.ServiceWorker, logDir, workerType)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer app.Cleanup(ctx)

	if intervalOverride > 0 {
		app.Config.Worker.Reconcile.Interval = int(intervalOverride)
	}

	// Initialize progress bars
	bars := make([]*progress.Bar, count)
	for i := range count {
		bars[i] = progress.NewBar(100, 25, fmt.Sprintf("Worker %d", i))
	}

	// Create and start the renderer
	renderer := progress.NewRenderer(bars)
	go renderer.Render()

	// Start workers
	var wg sync.WaitGroup

	for i := range count {
		wg.Add(1)

		go func(workerID int64) {
			defer wg.Done()

			workerLogger := app.LogManager.GetWorkerLogger(
				fmt.Sprintf("%s_worker_%d", workerType, workerID),
			)

			// Get progress bar for this worker
			bar := bars[workerID]

			var w interface{ Start(context.Context) }

			switch workerType {
			case ReconcileWorker:
				w = reconcile.New(app, bar, workerLogger)
			default:
				log.Fatalf("Invalid worker type: %s", workerType)
			}

			runWorker(ctx, w, workerLogger)
		}(i)
	}

	log.Printf("Started %d %s workers", count, workerType)
	wg.Wait()
	renderer.Stop()
	log.Println("All workers have finished. Exiting.")
}

// runWorker runs a single worker in a loop with error recovery.
func runWorker(ctx context.Context, w interface{ Start(context.Context) }, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("Context cancelled, stopping worker")
			return
		default:
			func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Error("Worker execution failed",
							zap.String("worker_type", fmt.Sprintf("%T", w)),
							zap.Any("panic", r),
						)
						logger.Info("Restarting worker in 5 seconds...")
						time.Sleep(5 * time.Second)
					}
				}()

				logger.Info("Starting worker")
				w.Start(ctx)
			}()

			logger.Warn("Worker stopped unexpectedly",
				zap.String("worker_type", fmt.Sprintf("%T", w)),
			)
			time.Sleep(5 * time.Second)
		}
	}
}

// showStatus prints the heartbeat of every worker that reported recently.
func showStatus(ctx context.Context, logDir string) error {
	app, err := setup.InitializeApp(ctx, telemetry.ServiceWorker, logDir)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(ctx)

	monitor := core.NewMonitor(app.StatusClient, app.Logger)

	workers, err := monitor.ActiveWorkers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active workers: %w", err)
	}

	if len(workers) == 0 {
		log.Println("No active workers found.")
		return nil
	}

	for _, w := range workers {
		health := "healthy"
		if !w.IsHealthy {
			health = "unhealthy"
		}

		log.Printf("%s %s | %s | %d%% | %s | updated %s",
			w.WorkerType, w.WorkerID, health, w.Progress, w.CurrentTask,
			w.UpdatedAt.Format(time.RFC3339))
	}

	return nil
}
