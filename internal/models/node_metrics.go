package models

import (
	"time"

	"github.com/graph-scanner/internal/types"
)

// NodeMetrics is the persisted per-node metrics snapshot. Betweenness
// and PageRank are sample-based approximations, not whole-graph values.
type NodeMetrics struct {
	Address               string         `json:"address" db:"address"`
	Degree                int            `json:"degree" db:"degree"`
	InDegree              int            `json:"inDegree" db:"in_degree"`
	OutDegree             int            `json:"outDegree" db:"out_degree"`
	RiskScore             float64        `json:"riskScore" db:"risk_score"`
	NodeType              types.NodeType `json:"nodeType" db:"node_type"`
	BetweennessCentrality float64        `json:"betweennessCentrality" db:"betweenness_centrality"`
	ClusteringCoefficient float64        `json:"clusteringCoefficient" db:"clustering_coefficient"`
	PageRank              float64        `json:"pageRank" db:"page_rank"`
	SuspiciousPatterns    int            `json:"suspiciousPatterns" db:"suspicious_patterns"`
	UpdatedAt             time.Time      `json:"updatedAt" db:"updated_at"`
}
