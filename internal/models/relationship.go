package models

import "time"

// Relationship is the aggregated directed edge between two accounts.
// One row per ordered (from, to) pair, maintained by ingestion; the
// engine treats rows as immutable snapshots. TotalVolume is the sum of
// matching Transfer values and is always a decimal-string integer.
type Relationship struct {
	FromAddress       string    `json:"fromAddress" db:"from_address"`
	ToAddress         string    `json:"toAddress" db:"to_address"`
	TotalVolume       string    `json:"totalVolume" db:"total_volume"`
	TransferCount     int64     `json:"transferCount" db:"transfer_count"`
	FirstTransferTime time.Time `json:"firstTransferTime" db:"first_transfer_time"`
	LastTransferTime  time.Time `json:"lastTransferTime" db:"last_transfer_time"`
	UpdatedAt         time.Time `json:"updatedAt" db:"updated_at"`
}

// Other returns the endpoint opposite to addr, or empty when addr is
// not an endpoint of the edge.
func (r *Relationship) Other(addr string) string {
	switch addr {
	case r.FromAddress:
		return r.ToAddress
	case r.ToAddress:
		return r.FromAddress
	}
	return ""
}

// AgeDays returns the edge age in days measured from its last transfer
// to now, never negative.
func (r *Relationship) AgeDays(now time.Time) float64 {
	if r.LastTransferTime.IsZero() || now.Before(r.LastTransferTime) {
		return 0
	}
	return now.Sub(r.LastTransferTime).Hours() / 24
}
