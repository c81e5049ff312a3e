package models

import (
	"strings"
	"time"
)

// Path is a request-scoped route through the transfer graph: an ordered
// address sequence plus the edge traversed at each hop. Paths are never
// persisted.
type Path struct {
	Addresses []string       `json:"addresses"`
	Edges     []Relationship `json:"edges"`
}

// Hops returns the number of edges in the path
func (p *Path) Hops() int {
	return len(p.Edges)
}

// Bottleneck returns the minimum edge volume along the path as a
// decimal string, "0" for an empty path.
func (p *Path) Bottleneck() string {
	if len(p.Edges) == 0 {
		return "0"
	}
	min := p.Edges[0].TotalVolume
	for _, e := range p.Edges[1:] {
		min = MinAmount(min, e.TotalVolume)
	}
	return min
}

// LastActivity returns the most recent last-transfer time across the
// path's edges, zero for an empty path.
func (p *Path) LastActivity() time.Time {
	var latest time.Time
	for _, e := range p.Edges {
		if e.LastTransferTime.After(latest) {
			latest = e.LastTransferTime
		}
	}
	return latest
}

// Key returns a stable identity for de-duplication
func (p *Path) Key() string {
	return strings.Join(p.Addresses, "->")
}

// Clone returns a deep copy safe to retain after backtracking
func (p *Path) Clone() Path {
	out := Path{
		Addresses: make([]string, len(p.Addresses)),
		Edges:     make([]Relationship, len(p.Edges)),
	}
	copy(out.Addresses, p.Addresses)
	copy(out.Edges, p.Edges)
	return out
}
