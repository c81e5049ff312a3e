package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/graph-scanner/internal/logging"
	"github.com/graph-scanner/internal/models"
	"github.com/graph-scanner/internal/observability"
	"github.com/graph-scanner/internal/service"
)

// AddressSource pages through the addresses known to the store
type AddressSource interface {
	ListAddresses(ctx context.Context, limit, offset int) ([]string, error)
}

// EdgeSource reads the edges incident to an address
type EdgeSource interface {
	ListOutgoing(ctx context.Context, address string) ([]*models.Relationship, error)
	ListIncoming(ctx context.Context, address string) ([]*models.Relationship, error)
}

// RefreshWorker fans out over addresses and refreshes their analytics:
// node metrics snapshot, pattern scan, and optionally relationship
// scores. Each address is one independent engine call; a failure on one
// address never aborts the run.
type RefreshWorker struct {
	nodeMetrics *service.MetricsService
	patterns    *service.PatternService
	scorer      *service.ScoringService
	addresses   AddressSource
	edges       EdgeSource
	queue       *RefreshQueue
	telemetry   *observability.Metrics

	concurrency int
	sampleSize  int
	pageSize    int
	interval    time.Duration

	mu          sync.RWMutex
	running     bool
	lastRunTime time.Time
	lastSummary *RunSummary
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// Config holds configuration for a refresh worker
type Config struct {
	NodeMetrics *service.MetricsService
	Patterns    *service.PatternService
	Scorer      *service.ScoringService // optional; nil skips rescoring
	Addresses   AddressSource
	Edges       EdgeSource
	Queue       *RefreshQueue // optional; orders addresses riskiest first
	Telemetry   *observability.Metrics

	Concurrency int           // parallel address refreshes (default 4)
	SampleSize  int           // neighborhood sample for approximations (default 20)
	PageSize    int           // address listing page size (default 500)
	Interval    time.Duration // periodic mode; zero means one-shot only
}

// Defaults for the refresh worker
const (
	DefaultConcurrency = 4
	DefaultSampleSize  = 20
	DefaultPageSize    = 500
)

// NewRefreshWorker creates a new refresh worker
func NewRefreshWorker(cfg *Config) (*RefreshWorker, error) {
	if cfg.NodeMetrics == nil {
		return nil, fmt.Errorf("metrics service cannot be nil")
	}
	if cfg.Patterns == nil {
		return nil, fmt.Errorf("pattern service cannot be nil")
	}
	if cfg.Addresses == nil {
		return nil, fmt.Errorf("address source cannot be nil")
	}
	if cfg.Edges == nil {
		return nil, fmt.Errorf("edge source cannot be nil")
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	sampleSize := cfg.SampleSize
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	return &RefreshWorker{
		nodeMetrics: cfg.NodeMetrics,
		patterns:    cfg.Patterns,
		scorer:      cfg.Scorer,
		addresses:   cfg.Addresses,
		edges:       cfg.Edges,
		queue:       cfg.Queue,
		telemetry:   cfg.Telemetry,
		concurrency: concurrency,
		sampleSize:  sampleSize,
		pageSize:    pageSize,
		interval:    cfg.Interval,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// RunSummary reports the outcome of one refresh run
type RunSummary struct {
	RunID     uuid.UUID     `json:"runId"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
}

// Run refreshes the given addresses, or every address known to the
// store when the list is empty. Per-address failures are counted and
// logged; only store paging errors and context cancellation abort the
// run.
func (w *RefreshWorker) Run(ctx context.Context, addresses []string) (*RunSummary, error) {
	started := time.Now()
	runID := uuid.New()
	logger := logging.FromContext(ctx).WithField("runId", runID.String())

	if len(addresses) == 0 {
		all, err := w.listAll(ctx)
		if err != nil {
			w.telemetry.RecordRefreshRun("error", 0)
			return nil, fmt.Errorf("failed to list addresses: %w", err)
		}
		addresses = all
	}

	if w.queue != nil {
		if err := w.queue.Rebuild(ctx, addresses); err != nil {
			logger.WithError(err).Warn("risk ordering degraded, keeping listing order")
		} else {
			addresses = w.queue.Ordered()
			flagged, routine := w.queue.SplitByRisk()
			logger.WithFields(map[string]interface{}{
				"flagged": len(flagged),
				"routine": len(routine),
			}).Debug("addresses ordered by risk")
		}
	}

	logger.WithFields(map[string]interface{}{
		"addresses":   len(addresses),
		"concurrency": w.concurrency,
	}).Info("refresh run starting")

	var mu sync.Mutex
	succeeded, failed := 0, 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, address := range addresses {
		if gctx.Err() != nil {
			break
		}
		address := address
		g.Go(func() error {
			if err := w.refreshOne(gctx, address); err != nil {
				logger.WithError(err).WithField("node", address).Warn("address refresh failed")
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			mu.Lock()
			succeeded++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		w.telemetry.RecordRefreshRun("error", succeeded)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		w.telemetry.RecordRefreshRun("cancelled", succeeded)
		return nil, err
	}

	summary := &RunSummary{
		RunID:     runID,
		StartedAt: started.UTC(),
		Duration:  time.Since(started),
		Total:     len(addresses),
		Succeeded: succeeded,
		Failed:    failed,
	}

	w.mu.Lock()
	w.lastRunTime = time.Now()
	w.lastSummary = summary
	w.mu.Unlock()

	status := "ok"
	if failed > 0 {
		status = "partial"
	}
	w.telemetry.RecordRefreshRun(status, succeeded)

	logger.WithFields(map[string]interface{}{
		"total":     summary.Total,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"duration":  summary.Duration.String(),
	}).Info("refresh run finished")
	return summary, nil
}

// refreshOne recomputes one address's analytics end to end
func (w *RefreshWorker) refreshOne(ctx context.Context, address string) error {
	sample, err := w.counterpartySample(ctx, address)
	if err != nil {
		return fmt.Errorf("failed to sample neighborhood: %w", err)
	}

	if _, err := w.nodeMetrics.ComputeNodeMetrics(ctx, address, sample); err != nil {
		return fmt.Errorf("failed to compute node metrics: %w", err)
	}
	if _, err := w.patterns.DetectAllPatterns(ctx, address); err != nil {
		return fmt.Errorf("failed to scan patterns: %w", err)
	}
	if w.scorer != nil {
		if _, err := w.scorer.ScoreAddressRelationships(ctx, address); err != nil {
			return fmt.Errorf("failed to rescore relationships: %w", err)
		}
	}
	return nil
}

// counterpartySample collects up to sampleSize direct counterparties,
// the neighborhood the approximate metrics run against.
func (w *RefreshWorker) counterpartySample(ctx context.Context, address string) ([]string, error) {
	outgoing, err := w.edges.ListOutgoing(ctx, address)
	if err != nil {
		return nil, err
	}
	incoming, err := w.edges.ListIncoming(ctx, address)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{address: true}
	sample := make([]string, 0, w.sampleSize)
	for _, rel := range outgoing {
		if len(sample) == w.sampleSize {
			break
		}
		if !seen[rel.ToAddress] {
			seen[rel.ToAddress] = true
			sample = append(sample, rel.ToAddress)
		}
	}
	for _, rel := range incoming {
		if len(sample) == w.sampleSize {
			break
		}
		if !seen[rel.FromAddress] {
			seen[rel.FromAddress] = true
			sample = append(sample, rel.FromAddress)
		}
	}
	return sample, nil
}

// listAll pages through every address known to the store
func (w *RefreshWorker) listAll(ctx context.Context) ([]string, error) {
	var all []string
	for offset := 0; ; offset += w.pageSize {
		page, err := w.addresses.ListAddresses(ctx, w.pageSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < w.pageSize {
			return all, nil
		}
	}
}

// Start begins periodic refresh runs. The interval must be configured.
func (w *RefreshWorker) Start(ctx context.Context) error {
	if w.interval <= 0 {
		return fmt.Errorf("refresh interval not configured")
	}

	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("refresh worker is already running")
	}
	w.running = true
	w.mu.Unlock()

	logging.FromContext(ctx).WithField("interval", w.interval.String()).Info("refresh worker starting")
	go w.runLoop(ctx)
	return nil
}

// Stop gracefully stops periodic refresh runs
func (w *RefreshWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("refresh worker is not running")
	}
	w.mu.Unlock()

	close(w.stopCh)

	select {
	case <-w.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	return nil
}

// runLoop runs refresh passes until stopped
func (w *RefreshWorker) runLoop(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	logger := logging.FromContext(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Info("refresh worker context cancelled")
			return
		case <-w.stopCh:
			logger.Info("refresh worker stop signal received")
			return
		case <-ticker.C:
			if _, err := w.Run(ctx, nil); err != nil {
				logger.WithError(err).Warn("refresh run failed")
			}
		}
	}
}

// WorkerStatus is a point-in-time view of the worker
type WorkerStatus struct {
	Running     bool        `json:"running"`
	LastRunTime time.Time   `json:"lastRunTime"`
	LastSummary *RunSummary `json:"lastSummary,omitempty"`
	Concurrency int         `json:"concurrency"`
}

// Status returns the current worker status
func (w *RefreshWorker) Status() *WorkerStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return &WorkerStatus{
		Running:     w.running,
		LastRunTime: w.lastRunTime,
		LastSummary: w.lastSummary,
		Concurrency: w.concurrency,
	}
}
