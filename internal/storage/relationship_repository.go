package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/graph-scanner/internal/models"
	"github.com/jackc/pgx/v5"
)

// RelationshipRepository handles aggregated edge persistence. One row
// per ordered (from, to) pair; rows are written by ingestion (and the
// seed tool) and read-only for the engine.
type RelationshipRepository struct {
	db *PostgresDB
}

// NewRelationshipRepository creates a new relationship repository
func NewRelationshipRepository(db *PostgresDB) *RelationshipRepository {
	return &RelationshipRepository{db: db}
}

const relationshipColumns = `from_address, to_address, total_volume, transfer_count,
	   first_transfer_time, last_transfer_time, updated_at`

func scanRelationship(row pgx.Row) (*models.Relationship, error) {
	var rel models.Relationship
	err := row.Scan(
		&rel.FromAddress,
		&rel.ToAddress,
		&rel.TotalVolume,
		&rel.TransferCount,
		&rel.FirstTransferTime,
		&rel.LastTransferTime,
		&rel.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rel, nil
}

// GetRelationship retrieves the edge for an ordered pair. A missing
// edge returns (nil, nil).
func (r *RelationshipRepository) GetRelationship(ctx context.Context, from, to string) (*models.Relationship, error) {
	query := `
		SELECT ` + relationshipColumns + `
		FROM account_relationships
		WHERE from_address = $1 AND to_address = $2
	`

	rel, err := scanRelationship(r.db.Pool().QueryRow(ctx, query, from, to))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get relationship: %w", err)
	}
	return rel, nil
}

func (r *RelationshipRepository) list(ctx context.Context, query string, args ...any) ([]*models.Relationship, error) {
	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list relationships: %w", err)
	}
	defer rows.Close()

	var rels []*models.Relationship
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		rels = append(rels, rel)
	}
	return rels, rows.Err()
}

// ListOutgoing returns all edges leaving an address
func (r *RelationshipRepository) ListOutgoing(ctx context.Context, address string) ([]*models.Relationship, error) {
	query := `
		SELECT ` + relationshipColumns + `
		FROM account_relationships
		WHERE from_address = $1
	`
	return r.list(ctx, query, address)
}

// ListIncoming returns all edges entering an address
func (r *RelationshipRepository) ListIncoming(ctx context.Context, address string) ([]*models.Relationship, error) {
	query := `
		SELECT ` + relationshipColumns + `
		FROM account_relationships
		WHERE to_address = $1
	`
	return r.list(ctx, query, address)
}

// ListAmong returns every edge whose both endpoints are in the given
// address set, for induced subgraph extraction.
func (r *RelationshipRepository) ListAmong(ctx context.Context, addresses []string) ([]*models.Relationship, error) {
	if len(addresses) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + relationshipColumns + `
		FROM account_relationships
		WHERE from_address = ANY($1) AND to_address = ANY($1)
	`
	return r.list(ctx, query, addresses)
}

// UpsertRelationship creates or replaces the edge for an ordered pair
func (r *RelationshipRepository) UpsertRelationship(ctx context.Context, rel *models.Relationship) error {
	if rel.TotalVolume == "" {
		rel.TotalVolume = "0"
	}

	query := `
		INSERT INTO account_relationships (
			from_address, to_address, total_volume, transfer_count,
			first_transfer_time, last_transfer_time, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (from_address, to_address)
		DO UPDATE SET
			total_volume = EXCLUDED.total_volume,
			transfer_count = EXCLUDED.transfer_count,
			first_transfer_time = EXCLUDED.first_transfer_time,
			last_transfer_time = EXCLUDED.last_transfer_time,
			updated_at = now()
	`

	_, err := r.db.Pool().Exec(ctx, query,
		rel.FromAddress,
		rel.ToAddress,
		rel.TotalVolume,
		rel.TransferCount,
		rel.FirstTransferTime,
		rel.LastTransferTime,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert relationship: %w", err)
	}
	return nil
}

// BatchUpsertRelationships upserts edges inside a single transaction
func (r *RelationshipRepository) BatchUpsertRelationships(ctx context.Context, rels []*models.Relationship) error {
	if len(rels) == 0 {
		return nil
	}

	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // no-op after commit
	}()

	query := `
		INSERT INTO account_relationships (
			from_address, to_address, total_volume, transfer_count,
			first_transfer_time, last_transfer_time, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (from_address, to_address)
		DO UPDATE SET
			total_volume = EXCLUDED.total_volume,
			transfer_count = EXCLUDED.transfer_count,
			first_transfer_time = EXCLUDED.first_transfer_time,
			last_transfer_time = EXCLUDED.last_transfer_time,
			updated_at = now()
	`

	for _, rel := range rels {
		if rel.TotalVolume == "" {
			rel.TotalVolume = "0"
		}
		if _, err := tx.Exec(ctx, query,
			rel.FromAddress,
			rel.ToAddress,
			rel.TotalVolume,
			rel.TransferCount,
			rel.FirstTransferTime,
			rel.LastTransferTime,
		); err != nil {
			return fmt.Errorf("failed to upsert relationship %s->%s: %w", rel.FromAddress, rel.ToAddress, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit relationship batch: %w", err)
	}
	return nil
}

// CountRelationships returns the total number of edges
func (r *RelationshipRepository) CountRelationships(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM account_relationships`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count relationships: %w", err)
	}
	return count, nil
}

// CountBelowVolume returns how many edges carry less total volume.
// Volumes are stored as decimal text, so the comparison casts through
// numeric to stay exact.
func (r *RelationshipRepository) CountBelowVolume(ctx context.Context, volume string) (int64, error) {
	if volume == "" {
		volume = "0"
	}
	var count int64
	query := `SELECT COUNT(*) FROM account_relationships WHERE total_volume::numeric < $1::numeric`
	if err := r.db.Pool().QueryRow(ctx, query, volume).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count relationships below volume: %w", err)
	}
	return count, nil
}

// CountBelowAvgSize returns how many edges have a smaller average
// transfer size
func (r *RelationshipRepository) CountBelowAvgSize(ctx context.Context, avgSize float64) (int64, error) {
	var count int64
	query := `
		SELECT COUNT(*)
		FROM account_relationships
		WHERE transfer_count > 0
		  AND total_volume::numeric / transfer_count < $1
	`
	if err := r.db.Pool().QueryRow(ctx, query, avgSize).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count relationships below avg size: %w", err)
	}
	return count, nil
}

// CountBelowTransferCount returns how many edges carry fewer transfers
func (r *RelationshipRepository) CountBelowTransferCount(ctx context.Context, transferCount int64) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM account_relationships WHERE transfer_count < $1`
	if err := r.db.Pool().QueryRow(ctx, query, transferCount).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count relationships below transfer count: %w", err)
	}
	return count, nil
}
