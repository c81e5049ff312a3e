package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/graph-scanner/internal/models"
)

// PatternRepository handles persisted pattern detections. Evidence is
// stored as JSONB so each pattern type keeps its own payload shape.
type PatternRepository struct {
	db *PostgresDB
}

// NewPatternRepository creates a new pattern repository
func NewPatternRepository(db *PostgresDB) *PatternRepository {
	return &PatternRepository{db: db}
}

// InsertPattern persists one detection. A zero ID is assigned a UUID;
// a zero DetectedAt is stamped with the current time.
func (r *PatternRepository) InsertPattern(ctx context.Context, p *models.Pattern) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.DetectedAt.IsZero() {
		p.DetectedAt = time.Now().UTC()
	}

	evidence, err := json.Marshal(p.Evidence)
	if err != nil {
		return fmt.Errorf("failed to marshal evidence: %w", err)
	}

	query := `
		INSERT INTO patterns (
			id, address, pattern_type, confidence, severity, evidence,
			false_positive, detected_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.db.Pool().Exec(ctx, query,
		p.ID,
		p.Address,
		p.PatternType,
		p.Confidence,
		p.Severity,
		evidence,
		p.FalsePositive,
		p.DetectedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to insert pattern: %w", err)
	}
	return nil
}

// InsertPatterns persists several detections inside one transaction
func (r *PatternRepository) InsertPatterns(ctx context.Context, patterns []*models.Pattern) error {
	if len(patterns) == 0 {
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
		INSERT INTO patterns (
			id, address, pattern_type, confidence, severity, evidence,
			false_positive, detected_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	for _, p := range patterns {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if p.DetectedAt.IsZero() {
			p.DetectedAt = time.Now().UTC()
		}

		evidence, err := json.Marshal(p.Evidence)
		if err != nil {
			return fmt.Errorf("failed to marshal evidence for %s: %w", p.Address, err)
		}

		if _, err := tx.Exec(ctx, query,
			p.ID,
			p.Address,
			p.PatternType,
			p.Confidence,
			p.Severity,
			evidence,
			p.FalsePositive,
			p.DetectedAt,
		); err != nil {
			return fmt.Errorf("failed to insert pattern for %s: %w", p.Address, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit pattern batch: %w", err)
	}
	return nil
}

// ListPatternsByAddress returns detections for an address, excluding
// those marked false positive, newest first.
func (r *PatternRepository) ListPatternsByAddress(ctx context.Context, address string) ([]*models.Pattern, error) {
	query := `
		SELECT id, address, pattern_type, confidence, severity, evidence,
			   false_positive, detected_at
		FROM patterns
		WHERE address = $1 AND false_positive = false
		ORDER BY detected_at DESC
	`

	rows, err := r.db.Pool().Query(ctx, query, address)
	if err != nil {
		return nil, fmt.Errorf("failed to list patterns: %w", err)
	}
	defer rows.Close()

	var patterns []*models.Pattern
	for rows.Next() {
		var p models.Pattern
		var evidence []byte
		if err := rows.Scan(
			&p.ID,
			&p.Address,
			&p.PatternType,
			&p.Confidence,
			&p.Severity,
			&evidence,
			&p.FalsePositive,
			&p.DetectedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", err)
		}
		if len(evidence) > 0 {
			if err := json.Unmarshal(evidence, &p.Evidence); err != nil {
				return nil, fmt.Errorf("failed to unmarshal evidence: %w", err)
			}
		}
		patterns = append(patterns, &p)
	}
	return patterns, rows.Err()
}

// CountActivePatterns returns, per address, how many distinct pattern
// types are flagged and not marked false positive. Used by the mixing
// detector to find heavily flagged counterparties.
func (r *PatternRepository) CountActivePatterns(ctx context.Context, addresses []string) (map[string]int, error) {
	counts := make(map[string]int, len(addresses))
	if len(addresses) == 0 {
		return counts, nil
	}

	query := `
		SELECT address, COUNT(DISTINCT pattern_type)
		FROM patterns
		WHERE address = ANY($1) AND false_positive = false
		GROUP BY address
	`

	rows, err := r.db.Pool().Query(ctx, query, addresses)
	if err != nil {
		return nil, fmt.Errorf("failed to count patterns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var addr string
		var count int
		if err := rows.Scan(&addr, &count); err != nil {
			return nil, fmt.Errorf("failed to scan pattern count: %w", err)
		}
		counts[addr] = count
	}
	return counts, rows.Err()
}

// MarkFalsePositive flags a detection as reviewed and dismissed
func (r *PatternRepository) MarkFalsePositive(ctx context.Context, id string) error {
	query := `UPDATE patterns SET false_positive = true WHERE id = $1`
	result, err := r.db.Pool().Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark pattern false positive: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("pattern not found: %s", id)
	}
	return nil
}
