package core

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

const statusKeyPrefix = "worker:status:"

// Status captures one worker's most recent heartbeat.
type Status struct {
	WorkerID    string    `json:"workerId"`
	WorkerType  string    `json:"workerType"`
	CurrentTask string    `json:"currentTask"`
	Progress    int       `json:"progress"`
	IsHealthy   bool      `json:"isHealthy"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Monitor persists worker heartbeats in Redis so operators can see which
// workers are alive and what they are working on.
type Monitor struct {
	client rueidis.Client
	logger *zap.Logger
}

// NewMonitor creates a Monitor on the given Redis client.
func NewMonitor(client rueidis.Client, logger *zap.Logger) *Monitor {
	return &Monitor{
		client: client,
		logger: logger.Named("worker_monitor"),
	}
}

// ReportStatus stores a worker's status under its own key with a TTL above
// the heartbeat interval.
func (m *Monitor) ReportStatus(ctx context.Context, status Status) error {
	status.UpdatedAt = time.Now().UTC()

	data, err := sonic.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to encode worker status: %w", err)
	}

	cmd := m.client.B().Set().
		Key(statusKeyPrefix + status.WorkerID).
		Value(rueidis.BinaryString(data)).
		Ex(StatusTTL).
		Build()
	if err := m.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to store worker status: %w", err)
	}

	return nil
}

// ActiveWorkers returns the status of every worker with a live heartbeat.
func (m *Monitor) ActiveWorkers(ctx context.Context) ([]Status, error) {
	var (
		statuses []Status
		cursor   uint64
	)

	for {
		cmd := m.client.B().Scan().Cursor(cursor).Match(statusKeyPrefix + "*").Count(100).Build()

		result, err := m.client.Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("failed to scan worker statuses: %w", err)
		}

		for _, key := range result.Elements {
			raw, err := m.client.Do(ctx, m.client.B().Get().Key(key).Build()).AsBytes()
			if err != nil {
				if rueidis.IsRedisNil(err) {
					continue // Expired between scan and read
				}

				return nil, fmt.Errorf("failed to read worker status %s: %w", key, err)
			}

			var status Status
			if err := sonic.Unmarshal(raw, &status); err != nil {
				m.logger.Warn("Skipping undecodable worker status",
					zap.String("key", key), zap.Error(err))

				continue
			}

			statuses = append(statuses, status)
		}

		cursor = result.Cursor
		if cursor == 0 {
			break
		}
	}

	// Stable order for operator output
	slices.SortFunc(statuses, func(a, b Status) int {
		if c := cmp.Compare(a.WorkerType, b.WorkerType); c != 0 {
			return c
		}

		return cmp.Compare(a.WorkerID, b.WorkerID)
	})

	return statuses, nil
}
