package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/graph-scanner/internal/models"
	"github.com/jackc/pgx/v5"
)

// ScoreRepository handles persisted relationship scores
type ScoreRepository struct {
	db *PostgresDB
}

// NewScoreRepository creates a new score repository
func NewScoreRepository(db *PostgresDB) *ScoreRepository {
	return &ScoreRepository{db: db}
}

const scoreColumns = `from_address, to_address, total_score, volume_score,
	   frequency_score, temporal_score, network_score, risk_score, updated_at`

func scanScore(row pgx.Row) (*models.RelationshipScore, error) {
	var s models.RelationshipScore
	err := row.Scan(
		&s.FromAddress,
		&s.ToAddress,
		&s.TotalScore,
		&s.VolumeScore,
		&s.FrequencyScore,
		&s.TemporalScore,
		&s.NetworkScore,
		&s.RiskScore,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetScore retrieves the score for an ordered pair. A missing score
// returns (nil, nil).
func (r *ScoreRepository) GetScore(ctx context.Context, from, to string) (*models.RelationshipScore, error) {
	query := `
		SELECT ` + scoreColumns + `
		FROM relationship_scores
		WHERE from_address = $1 AND to_address = $2
	`

	s, err := scanScore(r.db.Pool().QueryRow(ctx, query, from, to))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get relationship score: %w", err)
	}
	return s, nil
}

// UpsertScore creates or replaces the score for an ordered pair
func (r *ScoreRepository) UpsertScore(ctx context.Context, s *models.RelationshipScore) error {
	query := `
		INSERT INTO relationship_scores (
			from_address, to_address, total_score, volume_score,
			frequency_score, temporal_score, network_score, risk_score, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (from_address, to_address)
		DO UPDATE SET
			total_score = EXCLUDED.total_score,
			volume_score = EXCLUDED.volume_score,
			frequency_score = EXCLUDED.frequency_score,
			temporal_score = EXCLUDED.temporal_score,
			network_score = EXCLUDED.network_score,
			risk_score = EXCLUDED.risk_score,
			updated_at = now()
	`

	_, err := r.db.Pool().Exec(ctx, query,
		s.FromAddress,
		s.ToAddress,
		s.TotalScore,
		s.VolumeScore,
		s.FrequencyScore,
		s.TemporalScore,
		s.NetworkScore,
		s.RiskScore,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert relationship score: %w", err)
	}
	return nil
}

// ListScoresAbove returns persisted scores at or above a floor,
// strongest first.
func (r *ScoreRepository) ListScoresAbove(ctx context.Context, minScore float64, limit int) ([]*models.RelationshipScore, error) {
	query := `
		SELECT ` + scoreColumns + `
		FROM relationship_scores
		WHERE total_score >= $1
		ORDER BY total_score DESC
		LIMIT $2
	`

	rows, err := r.db.Pool().Query(ctx, query, minScore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list relationship scores: %w", err)
	}
	defer rows.Close()

	var scores []*models.RelationshipScore
	for rows.Next() {
		s, err := scanScore(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan relationship score: %w", err)
		}
		scores = append(scores, s)
	}
	return scores, rows.Err()
}
