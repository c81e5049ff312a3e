package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graph-scanner/internal/models"
	"github.com/graph-scanner/internal/service"
	"github.com/graph-scanner/internal/storage"
)

// seedWorkerGraph builds a small graph with accounts across the risk
// spectrum: A -> B -> C with A critical, C high, B low.
func seedWorkerGraph(t *testing.T) *storage.MemoryStore {
	t.Helper()
	store := storage.NewMemoryStore()

	now := time.Now().UTC()
	require.NoError(t, store.BatchUpsertRelationships(testCtx(t), []*models.Relationship{
		{FromAddress: "A", ToAddress: "B", TotalVolume: "100", TransferCount: 1, FirstTransferTime: now.Add(-24 * time.Hour), LastTransferTime: now},
		{FromAddress: "B", ToAddress: "C", TotalVolume: "50", TransferCount: 1, FirstTransferTime: now.Add(-24 * time.Hour), LastTransferTime: now},
	}))
	seedAccounts(t, store, map[string]float64{"A": 90, "B": 10, "C": 60})
	return store
}

func newWorkerConfig(store *storage.MemoryStore) *Config {
	traversal := service.NewTraversalService(store, store, store, nil)
	return &Config{
		NodeMetrics: service.NewMetricsService(store, store, store, store, nil, nil),
		Patterns:    service.NewPatternService(store, store, store, store, traversal, nil),
		Addresses:   store,
		Edges:       store,
	}
}

func TestNewRefreshWorker_Validation(t *testing.T) {
	store := storage.NewMemoryStore()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing metrics service", func(c *Config) { c.NodeMetrics = nil }, "metrics service"},
		{"missing pattern service", func(c *Config) { c.Patterns = nil }, "pattern service"},
		{"missing address source", func(c *Config) { c.Addresses = nil }, "address source"},
		{"missing edge source", func(c *Config) { c.Edges = nil }, "edge source"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newWorkerConfig(store)
			tt.mutate(cfg)

			_, err := NewRefreshWorker(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewRefreshWorker_Defaults(t *testing.T) {
	worker, err := NewRefreshWorker(newWorkerConfig(storage.NewMemoryStore()))
	require.NoError(t, err)

	status := worker.Status()
	assert.False(t, status.Running)
	assert.Equal(t, DefaultConcurrency, status.Concurrency)
	assert.Nil(t, status.LastSummary)
}

func TestRefreshWorker_Run(t *testing.T) {
	store := seedWorkerGraph(t)
	worker, err := NewRefreshWorker(newWorkerConfig(store))
	require.NoError(t, err)

	summary, err := worker.Run(testCtx(t), nil)
	require.NoError(t, err)
	require.NotNil(t, summary)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Zero(t, summary.Failed)
	assert.NotEqual(t, uuid.Nil, summary.RunID)

	// every account got a fresh metrics snapshot
	for _, addr := range []string{"A", "B", "C"} {
		snapshot, err := store.GetNodeMetrics(testCtx(t), addr)
		require.NoError(t, err)
		require.NotNilf(t, snapshot, "no snapshot for %s", addr)
	}

	status := worker.Status()
	require.NotNil(t, status.LastSummary)
	assert.Equal(t, summary.RunID, status.LastSummary.RunID)
	assert.False(t, status.LastRunTime.IsZero())
}

func TestRefreshWorker_Run_ExplicitAddresses(t *testing.T) {
	store := seedWorkerGraph(t)
	worker, err := NewRefreshWorker(newWorkerConfig(store))
	require.NoError(t, err)

	summary, err := worker.Run(testCtx(t), []string{"A"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Succeeded)

	snapshot, err := store.GetNodeMetrics(testCtx(t), "B")
	require.NoError(t, err)
	assert.Nil(t, snapshot, "untargeted address must stay untouched")
}

func TestRefreshWorker_Run_WithScorer(t *testing.T) {
	store := seedWorkerGraph(t)
	cfg := newWorkerConfig(store)
	cfg.Scorer = service.NewScoringService(store, store, store, store, store, store, store, nil)

	worker, err := NewRefreshWorker(cfg)
	require.NoError(t, err)

	_, err = worker.Run(testCtx(t), []string{"A"})
	require.NoError(t, err)

	score, err := store.GetScore(testCtx(t), "A", "B")
	require.NoError(t, err)
	require.NotNil(t, score, "outgoing edge must be rescored")
}

func TestRefreshWorker_Run_RiskOrdering(t *testing.T) {
	store := seedWorkerGraph(t)
	cfg := newWorkerConfig(store)
	queue := NewRefreshQueue(store)
	cfg.Queue = queue

	worker, err := NewRefreshWorker(cfg)
	require.NoError(t, err)

	summary, err := worker.Run(testCtx(t), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Succeeded)

	assert.Equal(t, []string{"A", "C", "B"}, queue.Ordered())
	assert.Equal(t, 2, queue.FlaggedCount())
}

type flakyEdges struct {
	inner   *storage.MemoryStore
	failFor string
}

func (f *flakyEdges) ListOutgoing(ctx context.Context, address string) ([]*models.Relationship, error) {
	if address == f.failFor {
		return nil, errors.New("edge listing unavailable")
	}
	return f.inner.ListOutgoing(ctx, address)
}

func (f *flakyEdges) ListIncoming(ctx context.Context, address string) ([]*models.Relationship, error) {
	return f.inner.ListIncoming(ctx, address)
}

func TestRefreshWorker_Run_FailureTolerance(t *testing.T) {
	store := seedWorkerGraph(t)
	cfg := newWorkerConfig(store)
	cfg.Edges = &flakyEdges{inner: store, failFor: "B"}

	worker, err := NewRefreshWorker(cfg)
	require.NoError(t, err)

	summary, err := worker.Run(testCtx(t), nil)
	require.NoError(t, err, "one bad address must not abort the run")
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
}

func TestRefreshWorker_Run_Cancelled(t *testing.T) {
	store := seedWorkerGraph(t)
	worker, err := NewRefreshWorker(newWorkerConfig(store))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = worker.Run(ctx, []string{"A"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRefreshWorker_StartStop(t *testing.T) {
	store := seedWorkerGraph(t)
	cfg := newWorkerConfig(store)

	t.Run("requires an interval", func(t *testing.T) {
		worker, err := NewRefreshWorker(cfg)
		require.NoError(t, err)
		require.Error(t, worker.Start(testCtx(t)))
	})

	t.Run("starts and stops cleanly", func(t *testing.T) {
		cfg.Interval = time.Hour
		worker, err := NewRefreshWorker(cfg)
		require.NoError(t, err)

		require.NoError(t, worker.Start(testCtx(t)))
		assert.True(t, worker.Status().Running)
		require.Error(t, worker.Start(testCtx(t)), "double start must fail")

		require.NoError(t, worker.Stop(testCtx(t)))
		assert.False(t, worker.Status().Running)
		require.Error(t, worker.Stop(testCtx(t)), "double stop must fail")
	})
}
