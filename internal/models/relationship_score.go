package models

import "time"

// RelationshipScore is the persisted composite score of one edge. All
// component scores and the total are in [0,100]; RiskScore is the edge
// risk in [0,100] derived from the endpoint accounts, already folded
// into TotalScore as a multiplier.
type RelationshipScore struct {
	FromAddress    string    `json:"fromAddress" db:"from_address"`
	ToAddress      string    `json:"toAddress" db:"to_address"`
	TotalScore     float64   `json:"totalScore" db:"total_score"`
	VolumeScore    float64   `json:"volumeScore" db:"volume_score"`
	FrequencyScore float64   `json:"frequencyScore" db:"frequency_score"`
	TemporalScore  float64   `json:"temporalScore" db:"temporal_score"`
	NetworkScore   float64   `json:"networkScore" db:"network_score"`
	RiskScore      float64   `json:"riskScore" db:"risk_score"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`
}
