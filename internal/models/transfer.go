package models

import "time"

// Transfer represents a single observed value movement stored in ClickHouse
type Transfer struct {
	Hash        string    `json:"hash" ch:"hash"`
	FromAddress string    `json:"fromAddress" ch:"from_address"`
	ToAddress   string    `json:"toAddress" ch:"to_address"`
	Value       string    `json:"value" ch:"value"`
	Timestamp   time.Time `json:"timestamp" ch:"timestamp"`
	Success     bool      `json:"success" ch:"success"`
	Module      string    `json:"module" ch:"module"`
	BlockNum    uint64    `json:"blockNum" ch:"block_num"`
	EventIdx    uint32    `json:"eventIdx" ch:"event_idx"`
}

// Involves reports whether addr is the sender or recipient
func (t *Transfer) Involves(addr string) bool {
	return t.FromAddress == addr || t.ToAddress == addr
}
