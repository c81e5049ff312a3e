package models

import "testing"

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		want  string
		valid bool
	}{
		{"plain", "1234", "1234", true},
		{"zero", "0", "0", true},
		{"beyond float precision", "123456789012345678901234567890", "123456789012345678901234567890", true},
		{"empty", "", "0", false},
		{"malformed", "12x4", "0", false},
		{"negative", "-5", "0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := ParseAmount(tt.in)
			if ok != tt.valid {
				t.Fatalf("ParseAmount(%q) ok = %v, want %v", tt.in, ok, tt.valid)
			}
			if v == nil {
				t.Fatalf("ParseAmount(%q) returned nil value", tt.in)
			}
			if v.String() != tt.want {
				t.Errorf("ParseAmount(%q) = %s, want %s", tt.in, v.String(), tt.want)
			}
		})
	}
}

func TestCompareAmounts(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{"less", "5", "10", -1},
		{"equal", "42", "42", 0},
		{"greater", "100", "99", 1},
		// differs only in the last of 31 digits, beyond float64 precision
		{"full precision", "1000000000000000000000000000001", "1000000000000000000000000000000", 1},
		{"malformed compares as zero", "bogus", "0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CompareAmounts(tt.a, tt.b); got != tt.want {
				t.Errorf("CompareAmounts(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestAddAmounts(t *testing.T) {
	if got := AddAmounts("999999999999999999999999", "1"); got != "1000000000000000000000000" {
		t.Errorf("AddAmounts carried wrong: %s", got)
	}
	if got := AddAmounts("7", ""); got != "7" {
		t.Errorf("AddAmounts with empty = %s, want 7", got)
	}
}

func TestMinAmount(t *testing.T) {
	if got := MinAmount("10", "5"); got != "5" {
		t.Errorf("MinAmount = %s, want 5", got)
	}
	if got := MinAmount("3", "30"); got != "3" {
		t.Errorf("MinAmount = %s, want 3", got)
	}
}

func TestAmountFloat(t *testing.T) {
	if got := AmountFloat("1000"); got != 1000 {
		t.Errorf("AmountFloat(1000) = %v", got)
	}
	if got := AmountFloat(""); got != 0 {
		t.Errorf("AmountFloat(\"\") = %v, want 0", got)
	}
	if got := AmountFloat("not a number"); got != 0 {
		t.Errorf("AmountFloat(malformed) = %v, want 0", got)
	}
}
