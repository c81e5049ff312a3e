package storage

import (
	"context"
	"testing"
	"time"

	"github.com/graph-scanner/internal/models"
	"github.com/graph-scanner/internal/types"
)

// testContext creates a context with timeout for tests
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// testAccount builds a minimal account fixture
func testAccount(address string, risk float64) *models.Account {
	return &models.Account{
		Address:   address,
		NodeType:  types.NodeTypeNormal,
		RiskScore: risk,
	}
}

// testEdge builds an aggregated relationship fixture; first transfer
// time is pinned a day before the last.
func testEdge(from, to, volume string, count int64, last time.Time) *models.Relationship {
	return &models.Relationship{
		FromAddress:       from,
		ToAddress:         to,
		TotalVolume:       volume,
		TransferCount:     count,
		FirstTransferTime: last.Add(-24 * time.Hour),
		LastTransferTime:  last,
	}
}

// testTransfer builds a successful raw transfer fixture
func testTransfer(hash, from, to, value string, at time.Time) *models.Transfer {
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
