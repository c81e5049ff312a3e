package seed

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/graph-scanner/internal/logging"
	"github.com/graph-scanner/internal/models"
	"github.com/graph-scanner/internal/retry"
)

// AccountWriter persists account batches
type AccountWriter interface {
	BatchUpsertAccounts(ctx context.Context, accounts []*models.Account) error
}

// EdgeWriter persists relationship batches
type EdgeWriter interface {
	BatchUpsertRelationships(ctx context.Context, rels []*models.Relationship) error
}

// TransferWriter persists transfer batches
type TransferWriter interface {
	BatchInsertTransfers(ctx context.Context, transfers []*models.Transfer) error
}

// Writer loads a dataset into the stores in rate-limited, retried
// batches so a large seed run cannot saturate a shared database.
type Writer struct {
	accounts  AccountWriter
	edges     EdgeWriter
	transfers TransferWriter

	limiter   *rate.Limiter
	retryCfg  *retry.Config
	batchSize int
}

// WriterConfig tunes batching; zero values take defaults
type WriterConfig struct {
	BatchSize     int     // rows per batch (default 500)
	BatchesPerSec float64 // rate limit (default 10)
	Retry         *retry.Config
}

// NewWriter creates a dataset writer
func NewWriter(accounts AccountWriter, edges EdgeWriter, transfers TransferWriter, cfg WriterConfig) *Writer {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}
	perSec := cfg.BatchesPerSec
	if perSec <= 0 {
		perSec = 10
	}
	retryCfg := cfg.Retry
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}

	return &Writer{
		accounts:  accounts,
		edges:     edges,
		transfers: transfers,
		limiter:   rate.NewLimiter(rate.Limit(perSec), 1),
		retryCfg:  retryCfg,
		batchSize: batchSize,
	}
}

// WriteSummary reports what one Write call persisted
type WriteSummary struct {
	Accounts      int           `json:"accounts"`
	Relationships int           `json:"relationships"`
	Transfers     int           `json:"transfers"`
	Batches       int           `json:"batches"`
	Duration      time.Duration `json:"duration"`
}

// Write persists the dataset: accounts, then relationships, then
// transfers, so edges never reference accounts that are not yet there.
func (w *Writer) Write(ctx context.Context, ds *Dataset) (*WriteSummary, error) {
	started := time.Now()
	logger := logging.FromContext(ctx)
	summary := &WriteSummary{}

	for offset := 0; offset < len(ds.Accounts); offset += w.batchSize {
		batch := ds.Accounts[offset:min(offset+w.batchSize, len(ds.Accounts))]
		if err := w.writeBatch(ctx, func(ctx context.Context, _ int) error {
			return w.accounts.BatchUpsertAccounts(ctx, batch)
		}); err != nil {
			return nil, fmt.Errorf("failed to write accounts batch at %d: %w", offset, err)
		}
		summary.Accounts += len(batch)
		summary.Batches++
	}

	for offset := 0; offset < len(ds.Relationships); offset += w.batchSize {
		batch := ds.Relationships[offset:min(offset+w.batchSize, len(ds.Relationships))]
		if err := w.writeBatch(ctx, func(ctx context.Context, _ int) error {
			return w.edges.BatchUpsertRelationships(ctx, batch)
		}); err != nil {
			return nil, fmt.Errorf("failed to write relationships batch at %d: %w", offset, err)
		}
		summary.Relationships += len(batch)
		summary.Batches++
	}

	for offset := 0; offset < len(ds.Transfers); offset += w.batchSize {
		batch := ds.Transfers[offset:min(offset+w.batchSize, len(ds.Transfers))]
		if err := w.writeBatch(ctx, func(ctx context.Context, _ int) error {
			return w.transfers.BatchInsertTransfers(ctx, batch)
		}); err != nil {
			return nil, fmt.Errorf("failed to write transfers batch at %d: %w", offset, err)
		}
		summary.Transfers += len(batch)
		summary.Batches++
	}

	summary.Duration = time.Since(started)
	logger.WithFields(map[string]interface{}{
		"accounts":      summary.Accounts,
		"relationships": summary.Relationships,
		"transfers":     summary.Transfers,
		"batches":       summary.Batches,
		"duration":      summary.Duration.String(),
	}).Info("dataset written")
	return summary, nil
}

// writeBatch applies the rate limit, then retries the batch write with
// exponential backoff.
func (w *Writer) writeBatch(ctx context.Context, fn retry.Func) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}
	result := retry.WithExponentialBackoff(ctx, w.retryCfg, fn)
	if !result.Success {
		return result.LastError
	}
	return nil
}
