package core_test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/beaconhq/groupfeed/internal/worker/core"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTest(t *testing.T) (rueidis.Client, *miniredis.Miniredis, func()) {
	t.Helper()
	// Start miniredis server
	mr, err := miniredis.Run()
	require.NoError(t, err)

	// Create Redis client
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return client, mr, cleanup
}

func TestReportStatusRoundTrip(t *testing.T) {
	t.Parallel()
	client, _, cleanup := setupTest(t)
	defer cleanup()

	ctx := t.Context()
	monitor := core.NewMonitor(client, zap.NewNop())

	err := monitor.ReportStatus(ctx, core.Status{
		WorkerID:    "w1",
		WorkerType:  "reconcile",
		CurrentTask: "Warming feed caches",
		Progress:    60,
		IsHealthy:   true,
	})
	require.NoError(t, err)

	workers, err := monitor.ActiveWorkers(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 1)

	status := workers[0]
	assert.Equal(t, "w1", status.WorkerID)
	assert.Equal(t, "reconcile", status.WorkerType)
	assert.Equal(t, "Warming feed caches", status.CurrentTask)
	assert.Equal(t, 60, status.Progress)
	assert.True(t, status.IsHealthy)
	assert.False(t, status.UpdatedAt.IsZero())
}

func TestActiveWorkersSorted(t *testing.T) {
	t.Parallel()
	client, _, cleanup := setupTest(t)
	defer cleanup()

	ctx := t.Context()
	monitor := core.NewMonitor(client, zap.NewNop())

	// Report out of order to exercise sorting
	for _, status := range []core.Status{
		{WorkerID: "b", WorkerType: "reconcile"},
		{WorkerID: "a", WorkerType: "reconcile"},
	} {
		require.NoError(t, monitor.ReportStatus(ctx, status))
	}

	workers, err := monitor.ActiveWorkers(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 2)
	assert.Equal(t, "a", workers[0].WorkerID)
	assert.Equal(t, "b", workers[1].WorkerID)
}

func TestActiveWorkersSkipsExpired(t *testing.T) {
	t.Parallel()
	client, mr, cleanup := setupTest(t)
	defer cleanup()

	ctx := t.Context()
	monitor := core.NewMonitor(client, zap.NewNop())

	require.NoError(t, monitor.ReportStatus(ctx, core.Status{
		WorkerID:   "w1",
		WorkerType: "reconcile",
	}))

	// Advance past the status TTL so the heartbeat lapses
	mr.FastForward(core.StatusTTL + time.Second)

	workers, err := monitor.ActiveWorkers(ctx)
	require.NoError(t, err)
	assert.Empty(t, workers)
}

func TestActiveWorkersEmpty(t *testing.T) {
	t.Parallel()
	client, _, cleanup := setupTest(t)
	defer cleanup()

	monitor := core.NewMonitor(client, zap.NewNop())

	workers, err := monitor.ActiveWorkers(t.Context())
	require.NoError(t, err)
	assert.Empty(t, workers)
}

func TestStatusReporterPublishesHeartbeat(t *testing.T) {
	t.Parallel()
	client, _, cleanup := setupTest(t)
	defer cleanup()

	ctx := t.Context()
	monitor := core.NewMonitor(client, zap.NewNop())

	reporter := core.NewStatusReporter(client, "reconcile", zap.NewNop())
	reporter.UpdateStatus("Reconciling counters", 40)
	reporter.Start(ctx)
	defer reporter.Stop()

	require.Eventually(t, func() bool {
		workers, err := monitor.ActiveWorkers(ctx)
		return err == nil && len(workers) == 1
	}, 2*time.Second, 25*time.Millisecond)

	workers, err := monitor.ActiveWorkers(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 1)
	assert.Equal(t, reporter.GetWorkerID(), workers[0].WorkerID)
	assert.Equal(t, "reconcile", workers[0].WorkerType)
	assert.Equal(t, "Reconciling counters", workers[0].CurrentTask)
	assert.Equal(t, 40, workers[0].Progress)
}
