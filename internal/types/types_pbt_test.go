package types

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func riskRank(l RiskLevel) int {
	switch l {
	case RiskCritical:
		return 3
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

func bandRank(b ScoreBand) int {
	switch b {
	case BandVeryStrong:
		return 4
	case BandStrong:
		return 3
	case BandModerate:
		return 2
	case BandWeak:
		return 1
	default:
		return 0
	}
}

func TestSeverityProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("higher confidence never lowers severity", prop.ForAll(
		func(a, b float64) bool {
			lo, hi := a, b
			if lo > hi {
				lo, hi = hi, lo
			}
			return severityRank(SeverityForConfidence(lo)) <= severityRank(SeverityForConfidence(hi))
		},
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
	))

	properties.Property("capping never raises a severity", prop.ForAll(
		func(s, max Severity) bool {
			capped := CapSeverity(s, max)
			return severityRank(capped) <= severityRank(s) &&
				severityRank(capped) <= severityRank(max)
		},
		gen.OneConstOf(SeverityLow, SeverityMedium, SeverityHigh),
		gen.OneConstOf(SeverityLow, SeverityMedium, SeverityHigh),
	))

	properties.TestingRun(t)
}

func TestScoreBucketProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("higher score never lowers the risk level", prop.ForAll(
		func(a, b float64) bool {
			lo, hi := a, b
			if lo > hi {
				lo, hi = hi, lo
			}
			return riskRank(RiskLevelForScore(lo)) <= riskRank(RiskLevelForScore(hi))
		},
		gen.Float64Range(0, 100),
		gen.Float64Range(0, 100),
	))

	properties.Property("higher score never lowers the band", prop.ForAll(
		func(a, b float64) bool {
			lo, hi := a, b
			if lo > hi {
				lo, hi = hi, lo
			}
			return bandRank(ScoreBandForScore(lo)) <= bandRank(ScoreBandForScore(hi))
		},
		gen.Float64Range(0, 100),
		gen.Float64Range(0, 100),
	))

	properties.TestingRun(t)
}
