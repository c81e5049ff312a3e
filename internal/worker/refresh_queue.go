package worker

import (
	"context"
	"sort"
	"sync"

	"github.com/graph-scanner/internal/models"
	"github.com/graph-scanner/internal/types"
)

// NodeReader looks up account attributes for ordering decisions
type NodeReader interface {
	GetAccount(ctx context.Context, address string) (*models.Account, error)
}

// queueEntry is an address with the risk that orders it
type queueEntry struct {
	Address   string
	RiskScore float64
	Level     types.RiskLevel
}

// RefreshQueue orders refresh work so the riskiest addresses are
// recomputed first. Risk comes from the account row; an address with no
// account sorts last.
type RefreshQueue struct {
	mu      sync.RWMutex
	entries []queueEntry
	nodes   NodeReader
}

// NewRefreshQueue creates a new risk-ordered refresh queue
func NewRefreshQueue(nodes NodeReader) *RefreshQueue {
	return &RefreshQueue{nodes: nodes}
}

// Rebuild replaces the queue contents with the given addresses, ordered
// by descending risk then address for a stable ordering.
func (q *RefreshQueue) Rebuild(ctx context.Context, addresses []string) error {
	entries := make([]queueEntry, 0, len(addresses))
	for _, addr := range addresses {
		var risk float64
		acc, err := q.nodes.GetAccount(ctx, addr)
		if err != nil {
			return err
		}
		if acc != nil {
			risk = acc.RiskScore
		}
		entries = append(entries, queueEntry{
			Address:   addr,
			RiskScore: risk,
			Level:     types.RiskLevelForScore(risk),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].RiskScore != entries[j].RiskScore {
			return entries[i].RiskScore > entries[j].RiskScore
		}
		return entries[i].Address < entries[j].Address
	})

	q.mu.Lock()
	q.entries = entries
	q.mu.Unlock()
	return nil
}

// Ordered returns the queued addresses, riskiest first
func (q *RefreshQueue) Ordered() []string {
	q.mu.RLock()
	defer q.mu.RUnlock()

	addresses := make([]string, len(q.entries))
	for i, e := range q.entries {
		addresses[i] = e.Address
	}
	return addresses
}

// SplitByRisk returns the queued addresses split into flagged (high or
// critical risk) and routine, each riskiest first.
func (q *RefreshQueue) SplitByRisk() (flagged, routine []string) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	for _, e := range q.entries {
		if e.Level == types.RiskHigh || e.Level == types.RiskCritical {
			flagged = append(flagged, e.Address)
		} else {
			routine = append(routine, e.Address)
		}
	}
	return flagged, routine
}

// FlaggedCount returns how many queued addresses are high or critical
// risk.
func (q *RefreshQueue) FlaggedCount() int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	count := 0
	for _, e := range q.entries {
		if e.Level == types.RiskHigh || e.Level == types.RiskCritical {
			count++
		}
	}
	return count
}
