package models

import (
	"time"

	"github.com/graph-scanner/internal/types"
)

// PatternResult is a single detector hypothesis for one address.
// Confidence is always clamped to [0,1]; absence of a pattern is
// expressed as confidence 0 with empty evidence, never as an error.
type PatternResult struct {
	Address     string                 `json:"address"`
	PatternType types.PatternType      `json:"patternType"`
	Confidence  float64                `json:"confidence"`
	Severity    types.Severity         `json:"severity"`
	Evidence    PatternEvidence        `json:"evidence"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Detected reports whether the detector found anything at all
func (r *PatternResult) Detected() bool {
	return r != nil && r.Confidence > 0
}

// PatternEvidence carries the detector-specific payload. Exactly one
// field is set, matching PatternResult.PatternType.
type PatternEvidence struct {
	RapidMovement *RapidMovementEvidence `json:"rapidMovement,omitempty"`
	CircularFlow  *CircularFlowEvidence  `json:"circularFlow,omitempty"`
	Layering      *LayeringEvidence      `json:"layering,omitempty"`
	Mixing        *MixingEvidence        `json:"mixing,omitempty"`
	UnusualTiming *UnusualTimingEvidence `json:"unusualTiming,omitempty"`
	RoundNumbers  *RoundNumberEvidence   `json:"roundNumbers,omitempty"`
	TransferStats *TransferStatsEvidence `json:"transferStats,omitempty"`
}

// RapidSequence is one in-then-out hop through the address
type RapidSequence struct {
	InHash     string    `json:"inHash"`
	OutHash    string    `json:"outHash"`
	InValue    string    `json:"inValue"`
	OutValue   string    `json:"outValue"`
	GapSeconds float64   `json:"gapSeconds"`
	At         time.Time `json:"at"`
}

// RapidMovementEvidence lists the matched pass-through sequences
type RapidMovementEvidence struct {
	Sequences     []RapidSequence `json:"sequences"`
	WindowSeconds float64         `json:"windowSeconds"`
}

// CycleSummary describes one detected circular flow
type CycleSummary struct {
	Addresses []string `json:"addresses"`
	Hops      int      `json:"hops"`
	MinVolume string   `json:"minVolume"`
}

// CircularFlowEvidence lists detected cycles through the address
type CircularFlowEvidence struct {
	Cycles []CycleSummary `json:"cycles"`
}

// LayerChain is one multi-hop chain with near-constant volume
type LayerChain struct {
	Addresses []string `json:"addresses"`
	Volumes   []string `json:"volumes"`
	Hops      int      `json:"hops"`
}

// LayeringEvidence lists structurally similar layering chains
type LayeringEvidence struct {
	Chains []LayerChain `json:"chains"`
}

// MixingConnection is one suspicious counterparty of the address
type MixingConnection struct {
	Address         string  `json:"address"`
	Degree          int     `json:"degree"`
	RiskScore       float64 `json:"riskScore"`
	FlaggedPatterns int     `json:"flaggedPatterns"`
	HasIdentity     bool    `json:"hasIdentity"`
	IsMixerType     bool    `json:"isMixerType"`
}

// MixingEvidence lists connections indicating mixer-style behavior
type MixingEvidence struct {
	Connections []MixingConnection `json:"connections"`
}

// UnusualTimingEvidence summarizes off-hours activity concentration
type UnusualTimingEvidence struct {
	NightTransfers   int     `json:"nightTransfers"`
	WeekendTransfers int     `json:"weekendTransfers"`
	TotalTransfers   int     `json:"totalTransfers"`
	OffHoursFraction float64 `json:"offHoursFraction"`
}

// RoundTransfer is one transfer flagged by roundness
type RoundTransfer struct {
	Hash      string          `json:"hash"`
	Value     string          `json:"value"`
	Roundness types.Roundness `json:"roundness"`
}

// RoundNumberEvidence summarizes round-value transfers
type RoundNumberEvidence struct {
	PerfectCount   int             `json:"perfectCount"`
	SemiCount      int             `json:"semiCount"`
	TotalTransfers int             `json:"totalTransfers"`
	Samples        []RoundTransfer `json:"samples,omitempty"`
}

// TransferStatsEvidence carries the four sub-scores of the general
// transfer-list analysis, each in [0,1].
type TransferStatsEvidence struct {
	VolumeScore        float64 `json:"volumeScore"`
	TimingScore        float64 `json:"timingScore"`
	ConcentrationScore float64 `json:"concentrationScore"`
	FrequencyScore     float64 `json:"frequencyScore"`
	TransferCount      int     `json:"transferCount"`
}

// Pattern is a persisted detection row in the patterns table. Evidence
// is stored as JSONB.
type Pattern struct {
	ID            string            `json:"id" db:"id"`
	Address       string            `json:"address" db:"address"`
	PatternType   types.PatternType `json:"patternType" db:"pattern_type"`
	Confidence    float64           `json:"confidence" db:"confidence"`
	Severity      types.Severity    `json:"severity" db:"severity"`
	Evidence      PatternEvidence   `json:"evidence" db:"evidence"`
	FalsePositive bool              `json:"falsePositive" db:"false_positive"`
	DetectedAt    time.Time         `json:"detectedAt" db:"detected_at"`
}
