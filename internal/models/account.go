package models

import (
	"time"

	"github.com/graph-scanner/internal/types"
)

// Account represents a blockchain account known to the edge store.
// Identity and balance are owned by ingestion and read-only here.
type Account struct {
	Address         string         `json:"address" db:"address"`
	IdentityDisplay string         `json:"identityDisplay,omitempty" db:"identity_display"`
	Balance         string         `json:"balance" db:"balance"`
	NodeType        types.NodeType `json:"nodeType" db:"node_type"`
	RiskScore       float64        `json:"riskScore" db:"risk_score"` // 0-100
	FirstSeen       time.Time      `json:"firstSeen" db:"first_seen"`
	LastActive      time.Time      `json:"lastActive" db:"last_active"`
	CreatedAt       time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time      `json:"updatedAt" db:"updated_at"`
}

// HasIdentity reports whether the account carries a known on-chain identity
func (a *Account) HasIdentity() bool {
	return a != nil && a.IdentityDisplay != ""
}
