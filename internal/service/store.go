// Package service implements the graph analytics engine: bounded-depth
// traversal, multi-weight pathfinding, heuristic pattern detection,
// approximate per-node metrics, and relationship scoring over the
// persisted transfer graph.
package service

import (
	"context"

	"github.com/graph-scanner/internal/models"
)

// The engine consumes the edge store through narrow per-concern
// interfaces. The Postgres/ClickHouse repositories implement them in
// production; the in-memory store implements the same set for tests
// and local runs.

// EdgeStore provides aggregated relationship lookups
type EdgeStore interface {
	// GetRelationship returns the edge for an ordered pair, (nil, nil)
	// when absent.
	GetRelationship(ctx context.Context, from, to string) (*models.Relationship, error)
	// ListOutgoing returns all edges leaving an address
	ListOutgoing(ctx context.Context, address string) ([]*models.Relationship, error)
	// ListIncoming returns all edges entering an address
	ListIncoming(ctx context.Context, address string) ([]*models.Relationship, error)
	// ListAmong returns every edge with both endpoints in the set
	ListAmong(ctx context.Context, addresses []string) ([]*models.Relationship, error)
}

// EdgeStatsStore provides whole-relation aggregates used for
// percentile ranking during relationship scoring.
type EdgeStatsStore interface {
	// CountRelationships returns the total number of edges
	CountRelationships(ctx context.Context) (int64, error)
	// CountBelowVolume returns how many edges carry less total volume
	CountBelowVolume(ctx context.Context, volume string) (int64, error)
	// CountBelowAvgSize returns how many edges have a smaller average
	// transfer size
	CountBelowAvgSize(ctx context.Context, avgSize float64) (int64, error)
	// CountBelowTransferCount returns how many edges carry fewer transfers
	CountBelowTransferCount(ctx context.Context, transferCount int64) (int64, error)
}

// NodeStore provides account lookups
type NodeStore interface {
	// GetAccount returns the account for an address, (nil, nil) when absent
	GetAccount(ctx context.Context, address string) (*models.Account, error)
}

// NodeStatsStore provides account-level aggregates
type NodeStatsStore interface {
	// CountAccounts returns the total number of known accounts
	CountAccounts(ctx context.Context) (int64, error)
}

// TransferStore provides raw transfer lookups for fine-grained timing
// and amount analysis.
type TransferStore interface {
	// ListByAddress returns transfers touching an address in
	// chronological order, capped at limit.
	ListByAddress(ctx context.Context, address string, limit int) ([]*models.Transfer, error)
	// ListBetween returns transfers for an ordered pair in
	// chronological order, capped at limit.
	ListBetween(ctx context.Context, from, to string, limit int) ([]*models.Transfer, error)
}

// PatternStore persists and recalls pattern detections
type PatternStore interface {
	InsertPatterns(ctx context.Context, patterns []*models.Pattern) error
	// ListPatternsByAddress returns detections not marked false
	// positive, newest first.
	ListPatternsByAddress(ctx context.Context, address string) ([]*models.Pattern, error)
	// CountActivePatterns returns, per address, how many distinct
	// pattern types are flagged and not marked false positive.
	CountActivePatterns(ctx context.Context, addresses []string) (map[string]int, error)
}

// MetricsStore persists and recalls node metrics snapshots
type MetricsStore interface {
	// GetNodeMetrics returns the snapshot for an address, (nil, nil)
	// when absent.
	GetNodeMetrics(ctx context.Context, address string) (*models.NodeMetrics, error)
	UpsertNodeMetrics(ctx context.Context, metrics *models.NodeMetrics) error
}

// ScoreStore persists and recalls relationship scores
type ScoreStore interface {
	// GetScore returns the score for an ordered pair, (nil, nil) when absent
	GetScore(ctx context.Context, from, to string) (*models.RelationshipScore, error)
	UpsertScore(ctx context.Context, score *models.RelationshipScore) error
	// ListScoresAbove returns persisted scores at or above a floor,
	// strongest first.
	ListScoresAbove(ctx context.Context, minScore float64, limit int) ([]*models.RelationshipScore, error)
}
