package seed

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graph-scanner/internal/models"
	"github.com/graph-scanner/internal/types"
)

func testConfig(seed int64) Config {
	return Config{
		Seed:      seed,
		Accounts:  80,
		Transfers: 400,
		Start:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Span:      30 * 24 * time.Hour,
	}
}

func TestGenerator_Deterministic(t *testing.T) {
	first := NewGenerator(testConfig(42)).Generate()
	second := NewGenerator(testConfig(42)).Generate()

	assert.Equal(t, first.Accounts, second.Accounts)
	assert.Equal(t, first.Relationships, second.Relationships)
	assert.Equal(t, first.Transfers, second.Transfers)

	other := NewGenerator(testConfig(43)).Generate()
	assert.NotEqual(t, first.Transfers, other.Transfers)
}

func TestGenerator_Defaults(t *testing.T) {
	ds := NewGenerator(Config{Seed: 1}).Generate()

	assert.Len(t, ds.Accounts, 200)
	assert.Greater(t, len(ds.Transfers), 2000, "motifs add traffic beyond the background volume")
	assert.NotEmpty(t, ds.Relationships)
}

func TestGenerator_AddressShape(t *testing.T) {
	ds := NewGenerator(testConfig(7)).Generate()

	for _, acc := range ds.Accounts {
		require.Len(t, acc.Address, 47)
		require.Equal(t, byte('5'), acc.Address[0])
		require.NotContainsf(t, acc.Address, "0", "address %s uses a non-base58 digit", acc.Address)
		for _, forbidden := range []string{"O", "I", "l"} {
			require.NotContainsf(t, acc.Address[1:], forbidden, "address %s uses a non-base58 letter", acc.Address)
		}
	}
}

func TestGenerator_AccountRoles(t *testing.T) {
	cfg := testConfig(7)
	cfg.Accounts = 100
	ds := NewGenerator(cfg).Generate()

	var mixers, exchanges int
	for _, acc := range ds.Accounts {
		switch acc.NodeType {
		case types.NodeTypeMixer:
			mixers++
			assert.GreaterOrEqual(t, acc.RiskScore, 75.0)
		case types.NodeTypeExchange:
			exchanges++
			assert.True(t, strings.HasPrefix(acc.IdentityDisplay, "Exchange "))
		}
	}
	assert.Equal(t, 2, mixers)
	assert.Equal(t, 5, exchanges)
}

// TestGenerator_AggregatesMatchTransfers checks the core seed invariant:
// every edge's volume, count, and time bounds equal what its successful
// transfers add up to.
func TestGenerator_AggregatesMatchTransfers(t *testing.T) {
	ds := NewGenerator(testConfig(11)).Generate()

	type agg struct {
		volume string
		count  int64
		first  time.Time
		last   time.Time
	}
	byPair := make(map[string]*agg)
	for _, tr := range ds.Transfers {
		if !tr.Success {
			continue
		}
		key := tr.FromAddress + "|" + tr.ToAddress
		a := byPair[key]
		if a == nil {
			a = &agg{volume: "0", first: tr.Timestamp, last: tr.Timestamp}
			byPair[key] = a
		}
		a.volume = models.AddAmounts(a.volume, tr.Value)
		a.count++
		if tr.Timestamp.Before(a.first) {
			a.first = tr.Timestamp
		}
		if tr.Timestamp.After(a.last) {
			a.last = tr.Timestamp
		}
	}

	require.Len(t, ds.Relationships, len(byPair))
	for _, rel := range ds.Relationships {
		a := byPair[rel.FromAddress+"|"+rel.ToAddress]
		require.NotNilf(t, a, "edge %s -> %s has no successful transfers", rel.FromAddress, rel.ToAddress)
		assert.Equal(t, a.volume, rel.TotalVolume)
		assert.Equal(t, a.count, rel.TransferCount)
		assert.True(t, rel.FirstTransferTime.Equal(a.first))
		assert.True(t, rel.LastTransferTime.Equal(a.last))
	}
}

func TestGenerator_Sequencing(t *testing.T) {
	cfg := testConfig(13)
	ds := NewGenerator(cfg).Generate()

	var prev *models.Transfer
	for _, tr := range ds.Transfers {
		require.False(t, tr.Timestamp.Before(cfg.Start), "transfer predates the dataset start")
		if prev != nil {
			require.False(t, tr.Timestamp.Before(prev.Timestamp), "transfers must be time-ordered")
			require.GreaterOrEqual(t, tr.BlockNum, prev.BlockNum)
			if tr.BlockNum == prev.BlockNum {
				require.Equal(t, prev.EventIdx+1, tr.EventIdx)
			} else {
				require.Zero(t, tr.EventIdx, "event index resets per block")
			}
		}
		prev = tr
	}
}

func TestGenerator_MotifsPresent(t *testing.T) {
	cfg := testConfig(17)
	cfg.Accounts = 200
	ds := NewGenerator(cfg).Generate()

	var wholeUnit, night, failed int
	for _, tr := range ds.Transfers {
		if strings.HasSuffix(tr.Value, "000000000000") {
			wholeUnit++
		}
		if h := tr.Timestamp.UTC().Hour(); h >= 2 && h < 5 {
			night++
		}
		if !tr.Success {
			failed++
		}
	}

	assert.Greater(t, wholeUnit, 0, "round-number motifs missing")
	assert.Greater(t, night, 4, "night-burst motifs missing")
	assert.Greater(t, failed, 0, "some background transfers should fail")
	assert.Greater(t, len(ds.Transfers), 400, "motifs add traffic beyond the background volume")
}
