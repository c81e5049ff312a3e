package models

import "math/big"

// Monetary values are decimal-string integers end to end. These helpers
// centralize the math/big conversions so no call site ever rounds a
// value through a float.

// ParseAmount parses a decimal-string monetary value. Empty, malformed,
// or negative input yields (0, false); callers treat such values as a
// degraded zero rather than an error.
func ParseAmount(s string) (*big.Int, bool) {
	if s == "" {
		return new(big.Int), false
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return new(big.Int), false
	}
	return v, true
}

// CompareAmounts compares two decimal-string values with unbounded
// precision, returning -1, 0, or 1. Malformed values compare as zero.
func CompareAmounts(a, b string) int {
	av, _ := ParseAmount(a)
	bv, _ := ParseAmount(b)
	return av.Cmp(bv)
}

// AddAmounts returns a+b as a decimal string
func AddAmounts(a, b string) string {
	av, _ := ParseAmount(a)
	bv, _ := ParseAmount(b)
	return new(big.Int).Add(av, bv).String()
}

// MinAmount returns the smaller of two decimal-string values
func MinAmount(a, b string) string {
	if CompareAmounts(a, b) <= 0 {
		return a
	}
	return b
}

// AmountFloat converts a decimal-string value to float64 for scale
// estimation only (log-based weights and score curves). Never used for
// comparisons or aggregation.
func AmountFloat(s string) float64 {
	v, ok := ParseAmount(s)
	if !ok {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
