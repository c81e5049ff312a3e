package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/graph-scanner/internal/models"
	"github.com/graph-scanner/internal/storage"
	"github.com/graph-scanner/internal/types"
)

// edge builds one aggregated relationship for graph fixtures
func edge(from, to, volume string, count int64, last time.Time) *models.Relationship {
	return &models.Relationship{
		FromAddress:       from,
		ToAddress:         to,
		TotalVolume:       volume,
		TransferCount:     count,
		FirstTransferTime: last.Add(-24 * time.Hour),
		LastTransferTime:  last,
	}
}

// seedGraph loads edges into a fresh in-memory store
func seedGraph(t *testing.T, edges ...*models.Relationship) *storage.MemoryStore {
	t.Helper()
	store := storage.NewMemoryStore()
	require.NoError(t, store.BatchUpsertRelationships(testCtx(t), edges))
	return store
}

// seedAccount registers an account with a risk score and node type
func seedAccount(t *testing.T, store *storage.MemoryStore, address string, risk float64, nodeType types.NodeType) {
	t.Helper()
	require.NoError(t, store.UpsertAccount(testCtx(t), &models.Account{
		Address:   address,
		NodeType:  nodeType,
		RiskScore: risk,
	}))
}

// transfer builds one raw transfer for timing and amount fixtures
func transfer(hash, from, to, value string, at time.Time) *models.Transfer {
	return &models.Transfer{
		Hash:        hash,
		FromAddress: from,
		ToAddress:   to,
		Value:       value,
		Timestamp:   at,
		Success:     true,
		Module:      "balances",
	}
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// assertSimplePath fails when a route repeats an address
func assertSimplePath(t *testing.T, p models.Path) {
	t.Helper()
	seen := make(map[string]bool, len(p.Addresses))
	for _, addr := range p.Addresses {
		require.Falsef(t, seen[addr], "path %s revisits %s", p.Key(), addr)
		seen[addr] = true
	}
	require.Len(t, p.Edges, len(p.Addresses)-1)
}

// assertCycle fails unless the route starts and ends at origin and is
// otherwise simple.
func assertCycle(t *testing.T, p models.Path, origin string) {
	t.Helper()
	require.GreaterOrEqual(t, len(p.Addresses), 3)
	require.Equal(t, origin, p.Addresses[0])
	require.Equal(t, origin, p.Addresses[len(p.Addresses)-1])

	seen := make(map[string]int, len(p.Addresses))
	for _, addr := range p.Addresses {
		seen[addr]++
	}
	require.Equal(t, 2, seen[origin], "origin must appear exactly twice in %s", p.Key())
	for addr, n := range seen {
		if addr == origin {
			continue
		}
		require.Equalf(t, 1, n, "cycle %s revisits %s", p.Key(), addr)
	}
}
