// Package types provides common type definitions for the graph scanner system.
package types

// NodeType classifies an account node in the transfer graph
type NodeType string

const (
	// NodeTypeNormal represents an ordinary account
	NodeTypeNormal NodeType = "normal"
	// NodeTypeExchange represents a known exchange account
	NodeTypeExchange NodeType = "exchange"
	// NodeTypeMixer represents a suspected or known mixing service
	NodeTypeMixer NodeType = "mixer"
	// NodeTypeContract represents a contract or pallet-controlled account
	NodeTypeContract NodeType = "contract"
	// NodeTypeValidator represents a validator or staking account
	NodeTypeValidator NodeType = "validator"
	// NodeTypeUnknown represents an account with no classification
	NodeTypeUnknown NodeType = "unknown"
)

// PatternType identifies a detector family
type PatternType string

const (
	// PatternRapidMovement flags funds passing through an address in quick succession
	PatternRapidMovement PatternType = "rapid_movement"
	// PatternCircularFlow flags value cycles returning to the origin
	PatternCircularFlow PatternType = "circular_flow"
	// PatternLayering flags repeated multi-hop chains with near-constant volume
	PatternLayering PatternType = "layering"
	// PatternMixing flags connectivity to mixers or heavily flagged hubs
	PatternMixing PatternType = "mixing_patterns"
	// PatternUnusualTiming flags night and weekend activity concentration
	PatternUnusualTiming PatternType = "unusual_timing"
	// PatternRoundNumbers flags structuring-style round transfer values
	PatternRoundNumbers PatternType = "round_numbers"
	// PatternTransferStats is the general transfer-list analysis
	PatternTransferStats PatternType = "transfer_stats"
)

// Severity expresses how urgent a detected pattern is
type Severity string

const (
	// SeverityLow is informational
	SeverityLow Severity = "low"
	// SeverityMedium warrants review
	SeverityMedium Severity = "medium"
	// SeverityHigh warrants immediate review
	SeverityHigh Severity = "high"
)

// severityRank orders severities for comparison and capping
func severityRank(s Severity) int {
	switch s {
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// SeverityForConfidence maps a confidence value to a severity level.
// The mapping is monotonic: higher confidence never yields a lower severity.
func SeverityForConfidence(confidence float64) Severity {
	switch {
	case confidence >= 0.8:
		return SeverityHigh
	case confidence >= 0.5:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// CapSeverity limits a severity to a maximum level
func CapSeverity(s, max Severity) Severity {
	if severityRank(s) > severityRank(max) {
		return max
	}
	return s
}

// RiskLevel buckets a 0-100 risk score
type RiskLevel string

const (
	// RiskLow covers scores below 20
	RiskLow RiskLevel = "low"
	// RiskMedium covers scores from 20 up to 50
	RiskMedium RiskLevel = "medium"
	// RiskHigh covers scores from 50 up to 80
	RiskHigh RiskLevel = "high"
	// RiskCritical covers scores of 80 and above
	RiskCritical RiskLevel = "critical"
)

// RiskLevelForScore maps a 0-100 risk score to its bucket
func RiskLevelForScore(score float64) RiskLevel {
	switch {
	case score >= 80:
		return RiskCritical
	case score >= 50:
		return RiskHigh
	case score >= 20:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Direction distinguishes edge orientation relative to a focal address
type Direction string

const (
	// DirectionIncoming marks an edge arriving at the focal address
	DirectionIncoming Direction = "incoming"
	// DirectionOutgoing marks an edge leaving the focal address
	DirectionOutgoing Direction = "outgoing"
)

// WeightType selects the edge cost function for weighted pathfinding
type WeightType string

const (
	// WeightHops costs every edge 1
	WeightHops WeightType = "hops"
	// WeightVolume makes high-volume edges cheaper (inverse log)
	WeightVolume WeightType = "volume"
	// WeightRisk makes risky edges more expensive
	WeightRisk WeightType = "risk"
	// WeightTime makes older edges more expensive
	WeightTime WeightType = "time"
)

// ValidWeightType reports whether wt names a supported cost function
func ValidWeightType(wt WeightType) bool {
	switch wt {
	case WeightHops, WeightVolume, WeightRisk, WeightTime:
		return true
	}
	return false
}

// Roundness classifies how round a transfer value is
type Roundness string

const (
	// RoundnessPerfect is a single leading digit followed only by zeros
	RoundnessPerfect Roundness = "perfect_round"
	// RoundnessSemi has a long trailing-zero run but more than one significant digit
	RoundnessSemi Roundness = "semi_round"
	// RoundnessNone is not a round value
	RoundnessNone Roundness = "none"
)

// ScoreBand interprets a 0-100 relationship score
type ScoreBand string

const (
	// BandMinimal covers scores below 20
	BandMinimal ScoreBand = "minimal"
	// BandWeak covers scores from 20 up to 40
	BandWeak ScoreBand = "weak"
	// BandModerate covers scores from 40 up to 60
	BandModerate ScoreBand = "moderate"
	// BandStrong covers scores from 60 up to 80
	BandStrong ScoreBand = "strong"
	// BandVeryStrong covers scores of 80 and above
	BandVeryStrong ScoreBand = "very_strong"
)

// ScoreBandForScore maps a 0-100 relationship score to its interpretation band
func ScoreBandForScore(score float64) ScoreBand {
	switch {
	case score >= 80:
		return BandVeryStrong
	case score >= 60:
		return BandStrong
	case score >= 40:
		return BandModerate
	case score >= 20:
		return BandWeak
	default:
		return BandMinimal
	}
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
