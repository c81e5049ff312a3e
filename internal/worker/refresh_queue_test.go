package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graph-scanner/internal/models"
	"github.com/graph-scanner/internal/storage"
	"github.com/graph-scanner/internal/types"
)

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func seedAccounts(t *testing.T, store *storage.MemoryStore, risks map[string]float64) {
	t.Helper()
	for addr, risk := range risks {
		require.NoError(t, store.UpsertAccount(testCtx(t), &models.Account{
			Address:   addr,
			NodeType:  types.NodeTypeNormal,
			RiskScore: risk,
		}))
	}
}

func TestRefreshQueue_Rebuild(t *testing.T) {
	store := storage.NewMemoryStore()
	seedAccounts(t, store, map[string]float64{"A": 90, "B": 30, "D": 30})

	queue := NewRefreshQueue(store)
	require.NoError(t, queue.Rebuild(testCtx(t), []string{"D", "C", "A", "B"}))

	// riskiest first; ties by address; C has no account and sorts last
	assert.Equal(t, []string{"A", "B", "D", "C"}, queue.Ordered())
}

func TestRefreshQueue_RebuildReplaces(t *testing.T) {
	store := storage.NewMemoryStore()
	seedAccounts(t, store, map[string]float64{"A": 10, "B": 20})

	queue := NewRefreshQueue(store)
	require.NoError(t, queue.Rebuild(testCtx(t), []string{"A"}))
	require.NoError(t, queue.Rebuild(testCtx(t), []string{"B"}))

	assert.Equal(t, []string{"B"}, queue.Ordered())
}

func TestRefreshQueue_SplitByRisk(t *testing.T) {
	store := storage.NewMemoryStore()
	seedAccounts(t, store, map[string]float64{"A": 90, "B": 55, "C": 30, "D": 0})

	queue := NewRefreshQueue(store)
	require.NoError(t, queue.Rebuild(testCtx(t), []string{"A", "B", "C", "D"}))

	flagged, routine := queue.SplitByRisk()
	assert.Equal(t, []string{"A", "B"}, flagged)
	assert.Equal(t, []string{"C", "D"}, routine)
}

type failingNodes struct{}

func (failingNodes) GetAccount(context.Context, string) (*models.Account, error) {
	return nil, errors.New("account store unavailable")
}

func TestRefreshQueue_RebuildLookupError(t *testing.T) {
	queue := NewRefreshQueue(failingNodes{})

	err := queue.Rebuild(testCtx(t), []string{"A"})
	require.Error(t, err)
	assert.Empty(t, queue.Ordered())
}
