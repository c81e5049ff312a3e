package storage

import (
	"context"
	"fmt"
	"math/big"

	"github.com/graph-scanner/internal/models"
)

// TransferRepository handles raw transfer persistence in ClickHouse.
// Values are stored as UInt256 and cross the repository boundary as
// decimal strings.
type TransferRepository struct {
	db *ClickHouseDB
}

// NewTransferRepository creates a new transfer repository
func NewTransferRepository(db *ClickHouseDB) *TransferRepository {
	return &TransferRepository{db: db}
}

// BatchInsertTransfers inserts transfers in a single batch
func (r *TransferRepository) BatchInsertTransfers(ctx context.Context, transfers []*models.Transfer) error {
	if len(transfers) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO transfers (
			hash, from_address, to_address, value, timestamp, success, module, block_num, event_idx
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, tr := range transfers {
		value, ok := models.ParseAmount(tr.Value)
		if !ok {
			return fmt.Errorf("invalid transfer value %q for %s", tr.Value, tr.Hash)
		}

		if err := batch.Append(
			tr.Hash,
			tr.FromAddress,
			tr.ToAddress,
			value,
			tr.Timestamp,
			tr.Success,
			tr.Module,
			tr.BlockNum,
			tr.EventIdx,
		); err != nil {
			return fmt.Errorf("failed to append transfer %s to batch: %w", tr.Hash, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	return nil
}

const transferColumns = `hash, from_address, to_address, value, timestamp, success, module, block_num, event_idx`

// defaultScanLimit caps listings when the caller passes no limit;
// LIMIT 0 would otherwise return nothing.
const defaultScanLimit = 10000

func (r *TransferRepository) query(ctx context.Context, query string, args ...any) ([]*models.Transfer, error) {
	rows, err := r.db.Conn().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfers: %w", err)
	}
	defer rows.Close()

	var transfers []*models.Transfer
	for rows.Next() {
		var tr models.Transfer
		var value big.Int
		if err := rows.Scan(
			&tr.Hash,
			&tr.FromAddress,
			&tr.ToAddress,
			&value,
			&tr.Timestamp,
			&tr.Success,
			&tr.Module,
			&tr.BlockNum,
			&tr.EventIdx,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		tr.Value = value.String()
		transfers = append(transfers, &tr)
	}
	return transfers, rows.Err()
}

// ListByAddress returns transfers touching an address in chronological
// order, capped at limit. Ordering matters: timing detectors walk the
// result sequentially.
func (r *TransferRepository) ListByAddress(ctx context.Context, address string, limit int) ([]*models.Transfer, error) {
	if limit <= 0 {
		limit = defaultScanLimit
	}
	query := `
		SELECT ` + transferColumns + `
		FROM transfers
		WHERE from_address = ? OR to_address = ?
		ORDER BY timestamp ASC, event_idx ASC
		LIMIT ?
	`
	return r.query(ctx, query, address, address, limit)
}

// ListBetween returns transfers for an ordered pair in chronological order
func (r *TransferRepository) ListBetween(ctx context.Context, from, to string, limit int) ([]*models.Transfer, error) {
	if limit <= 0 {
		limit = defaultScanLimit
	}
	query := `
		SELECT ` + transferColumns + `
		FROM transfers
		WHERE from_address = ? AND to_address = ?
		ORDER BY timestamp ASC, event_idx ASC
		LIMIT ?
	`
	return r.query(ctx, query, from, to, limit)
}

// SumBetween returns the total value and count of transfers for an
// ordered pair, for consistency checks against the aggregated edge.
func (r *TransferRepository) SumBetween(ctx context.Context, from, to string) (string, int64, error) {
	query := `
		SELECT toString(sum(value)), count()
		FROM transfers
		WHERE from_address = ? AND to_address = ?
	`

	var total string
	var count uint64
	row := r.db.Conn().QueryRow(ctx, query, from, to)
	if err := row.Scan(&total, &count); err != nil {
		return "", 0, fmt.Errorf("failed to sum transfers: %w", err)
	}
	if count == 0 {
		total = "0"
	}
	return total, int64(count), nil
}

// CountTransfers returns the total number of stored transfers
func (r *TransferRepository) CountTransfers(ctx context.Context) (int64, error) {
	var count uint64
	row := r.db.Conn().QueryRow(ctx, `SELECT count() FROM transfers`)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transfers: %w", err)
	}
	return int64(count), nil
}
