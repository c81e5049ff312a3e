package models

import (
	"testing"
	"time"
)

func testPath() Path {
	older := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	return Path{
		Addresses: []string{"A", "B", "C"},
		Edges: []Relationship{
			{FromAddress: "A", ToAddress: "B", TotalVolume: "100000000000000000000002", LastTransferTime: newer},
			{FromAddress: "B", ToAddress: "C", TotalVolume: "100000000000000000000001", LastTransferTime: older},
		},
	}
}

func TestPath_Hops(t *testing.T) {
	p := testPath()
	if got := p.Hops(); got != 2 {
		t.Errorf("Hops() = %d, want 2", got)
	}

	empty := Path{}
	if got := empty.Hops(); got != 0 {
		t.Errorf("empty Hops() = %d, want 0", got)
	}
}

func TestPath_Bottleneck(t *testing.T) {
	p := testPath()
	// the two volumes differ beyond float64 precision
	if got := p.Bottleneck(); got != "100000000000000000000001" {
		t.Errorf("Bottleneck() = %s", got)
	}

	empty := Path{}
	if got := empty.Bottleneck(); got != "0" {
		t.Errorf("empty Bottleneck() = %s, want 0", got)
	}
}

func TestPath_LastActivity(t *testing.T) {
	p := testPath()
	want := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	if got := p.LastActivity(); !got.Equal(want) {
		t.Errorf("LastActivity() = %v, want %v", got, want)
	}

	empty := Path{}
	if !empty.LastActivity().IsZero() {
		t.Error("empty LastActivity() must be zero")
	}
}

func TestPath_Key(t *testing.T) {
	p := testPath()
	if got := p.Key(); got != "A->B->C" {
		t.Errorf("Key() = %s", got)
	}
}

func TestPath_Clone(t *testing.T) {
	p := testPath()
	clone := p.Clone()

	clone.Addresses[0] = "Z"
	clone.Edges[0].TotalVolume = "1"

	if p.Addresses[0] != "A" {
		t.Error("Clone aliases the address slice")
	}
	if p.Edges[0].TotalVolume != "100000000000000000000002" {
		t.Error("Clone aliases the edge slice")
	}
}
