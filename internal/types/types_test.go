package types

import "testing"

func TestSeverityForConfidence(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		want       Severity
	}{
		{"zero", 0, SeverityLow},
		{"just below medium", 0.49, SeverityLow},
		{"medium boundary", 0.5, SeverityMedium},
		{"just below high", 0.79, SeverityMedium},
		{"high boundary", 0.8, SeverityHigh},
		{"full confidence", 1, SeverityHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SeverityForConfidence(tt.confidence); got != tt.want {
				t.Errorf("SeverityForConfidence(%v) = %v, want %v", tt.confidence, got, tt.want)
			}
		})
	}
}

func TestCapSeverity(t *testing.T) {
	tests := []struct {
		name string
		s    Severity
		max  Severity
		want Severity
	}{
		{"high capped to medium", SeverityHigh, SeverityMedium, SeverityMedium},
		{"high capped to low", SeverityHigh, SeverityLow, SeverityLow},
		{"medium under high cap", SeverityMedium, SeverityHigh, SeverityMedium},
		{"low never raised", SeverityLow, SeverityHigh, SeverityLow},
		{"equal stays", SeverityMedium, SeverityMedium, SeverityMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CapSeverity(tt.s, tt.max); got != tt.want {
				t.Errorf("CapSeverity(%v, %v) = %v, want %v", tt.s, tt.max, got, tt.want)
			}
		})
	}
}

func TestRiskLevelForScore(t *testing.T) {
	tests := []struct {
		name  string
		score float64
		want  RiskLevel
	}{
		{"negative clamps low", -5, RiskLow},
		{"zero", 0, RiskLow},
		{"just below medium", 19.9, RiskLow},
		{"medium boundary", 20, RiskMedium},
		{"just below high", 49.9, RiskMedium},
		{"high boundary", 50, RiskHigh},
		{"just below critical", 79.9, RiskHigh},
		{"critical boundary", 80, RiskCritical},
		{"maximum", 100, RiskCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RiskLevelForScore(tt.score); got != tt.want {
				t.Errorf("RiskLevelForScore(%v) = %v, want %v", tt.score, got, tt.want)
			}
		})
	}
}

func TestScoreBandForScore(t *testing.T) {
	tests := []struct {
		name  string
		score float64
		want  ScoreBand
	}{
		{"zero", 0, BandMinimal},
		{"weak boundary", 20, BandWeak},
		{"moderate boundary", 40, BandModerate},
		{"strong boundary", 60, BandStrong},
		{"very strong boundary", 80, BandVeryStrong},
		{"maximum", 100, BandVeryStrong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ScoreBandForScore(tt.score); got != tt.want {
				t.Errorf("ScoreBandForScore(%v) = %v, want %v", tt.score, got, tt.want)
			}
		})
	}
}

func TestValidWeightType(t *testing.T) {
	for _, wt := range []WeightType{WeightHops, WeightVolume, WeightRisk, WeightTime} {
		if !ValidWeightType(wt) {
			t.Errorf("ValidWeightType(%v) = false, want true", wt)
		}
	}
	for _, wt := range []WeightType{"", "bogus", "HOPS"} {
		if ValidWeightType(wt) {
			t.Errorf("ValidWeightType(%q) = true, want false", wt)
		}
	}
}
