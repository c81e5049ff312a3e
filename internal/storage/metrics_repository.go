package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/graph-scanner/internal/models"
	"github.com/graph-scanner/internal/types"
	"github.com/jackc/pgx/v5"
)

// MetricsRepository handles node metrics snapshot persistence
type MetricsRepository struct {
	db *PostgresDB
}

// NewMetricsRepository creates a new metrics repository
func NewMetricsRepository(db *PostgresDB) *MetricsRepository {
	return &MetricsRepository{db: db}
}

// GetNodeMetrics retrieves the metrics snapshot for an address. A
// missing snapshot returns (nil, nil).
func (r *MetricsRepository) GetNodeMetrics(ctx context.Context, address string) (*models.NodeMetrics, error) {
	query := `
		SELECT address, degree, in_degree, out_degree, risk_score, node_type,
			   betweenness_centrality, clustering_coefficient, page_rank,
			   suspicious_patterns, updated_at
		FROM node_metrics
		WHERE address = $1
	`

	var m models.NodeMetrics
	err := r.db.Pool().QueryRow(ctx, query, address).Scan(
		&m.Address,
		&m.Degree,
		&m.InDegree,
		&m.OutDegree,
		&m.RiskScore,
		&m.NodeType,
		&m.BetweennessCentrality,
		&m.ClusteringCoefficient,
		&m.PageRank,
		&m.SuspiciousPatterns,
		&m.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get node metrics: %w", err)
	}
	return &m, nil
}

// UpsertNodeMetrics creates or replaces the metrics snapshot for an address
func (r *MetricsRepository) UpsertNodeMetrics(ctx context.Context, m *models.NodeMetrics) error {
	if m.NodeType == "" {
		m.NodeType = types.NodeTypeUnknown
	}

	query := `
		INSERT INTO node_metrics (
			address, degree, in_degree, out_degree, risk_score, node_type,
			betweenness_centrality, clustering_coefficient, page_rank,
			suspicious_patterns, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT (address)
		DO UPDATE SET
			degree = EXCLUDED.degree,
			in_degree = EXCLUDED.in_degree,
			out_degree = EXCLUDED.out_degree,
			risk_score = EXCLUDED.risk_score,
			node_type = EXCLUDED.node_type,
			betweenness_centrality = EXCLUDED.betweenness_centrality,
			clustering_coefficient = EXCLUDED.clustering_coefficient,
			page_rank = EXCLUDED.page_rank,
			suspicious_patterns = EXCLUDED.suspicious_patterns,
			updated_at = now()
	`

	_, err := r.db.Pool().Exec(ctx, query,
		m.Address,
		m.Degree,
		m.InDegree,
		m.OutDegree,
		m.RiskScore,
		m.NodeType,
		m.BetweennessCentrality,
		m.ClusteringCoefficient,
		m.PageRank,
		m.SuspiciousPatterns,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert node metrics: %w", err)
	}
	return nil
}
