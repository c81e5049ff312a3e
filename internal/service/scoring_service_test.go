package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graph-scanner/internal/models"
	"github.com/graph-scanner/internal/storage"
	"github.com/graph-scanner/internal/types"
)

func newScoringService(store *storage.MemoryStore) *ScoringService {
	return NewScoringService(store, store, store, store, store, store, store, nil)
}

func TestScoreRelationship_Composite(t *testing.T) {
	// a well-established edge: four transfers on four consecutive days
	first := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	last := time.Date(2024, 3, 7, 9, 0, 0, 0, time.UTC)

	store := seedGraph(t,
		&models.Relationship{
			FromAddress:       "A",
			ToAddress:         "B",
			TotalVolume:       "4000",
			TransferCount:     4,
			FirstTransferTime: first,
			LastTransferTime:  last,
		},
		// weaker edges below every percentile of A -> B
		edge("A", "E", "100", 1, last),
		edge("E", "B", "200", 1, last),
		edge("C", "D", "100", 1, last),
	)
	require.NoError(t, store.BatchInsertTransfers(testCtx(t), []*models.Transfer{
		transfer("t1", "A", "B", "1000", first),
		transfer("t2", "A", "B", "1000", first.Add(24*time.Hour)),
		transfer("t3", "A", "B", "1000", first.Add(48*time.Hour)),
		transfer("t4", "A", "B", "1000", last),
	}))

	seen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpsertAccount(testCtx(t), &models.Account{Address: "A", Balance: "8000", FirstSeen: seen}))
	require.NoError(t, store.UpsertAccount(testCtx(t), &models.Account{Address: "B", FirstSeen: seen}))
	require.NoError(t, store.UpsertAccount(testCtx(t), &models.Account{Address: "E", FirstSeen: seen}))
	require.NoError(t, store.UpsertNodeMetrics(testCtx(t), &models.NodeMetrics{Address: "A", Degree: 2, PageRank: 0.02}))
	require.NoError(t, store.UpsertNodeMetrics(testCtx(t), &models.NodeMetrics{Address: "B", Degree: 2, PageRank: 0.01}))

	svc := newScoringService(store)
	assessment, err := svc.ScoreRelationship(testCtx(t), "A", "B")
	require.NoError(t, err)
	require.NotNil(t, assessment)

	// volume: 3 of 4 edges below on volume and on average size, and the
	// 4000 moved is half the sender's 8000 balance
	vol := assessment.Details.Volume
	assert.InDelta(t, 0.75, vol.VolumePercentile, 1e-9)
	assert.InDelta(t, 30, vol.VolumeComponent, 1e-9)
	assert.InDelta(t, 22.5, vol.AvgSizeComponent, 1e-9)
	assert.InDelta(t, 30, vol.RelativeComponent, 1e-9)
	assert.InDelta(t, 1000, vol.AvgTransferSize, 1e-9)
	assert.InDelta(t, 82.5, assessment.Score.VolumeScore, 1e-9)

	// frequency: 4 transfers over 3 active days, every day touched
	freq := assessment.Details.Frequency
	assert.Equal(t, 3, freq.DaysActive)
	assert.Equal(t, 4, freq.UniqueDays)
	assert.InDelta(t, 30, freq.CountComponent, 1e-9)
	assert.InDelta(t, 4, freq.RateComponent, 1e-9)
	assert.InDelta(t, 30, freq.ConsistencyComponent, 1e-9)
	assert.InDelta(t, 64, assessment.Score.FrequencyScore, 1e-9)

	// temporal: long dormant, so only the short lifetime contributes
	temp := assessment.Details.Temporal
	assert.Zero(t, temp.RecencyComponent)
	assert.Zero(t, temp.ActivityComponent)
	assert.InDelta(t, 90.0/365.0, assessment.Score.TemporalScore, 1e-9)

	// network: E is a shared counterparty and both endpoints carry
	// persisted metrics
	net := assessment.Details.Network
	assert.Equal(t, 1, net.CommonConnections)
	assert.InDelta(t, 5, net.CommonComponent, 1e-9)
	assert.InDelta(t, 30, net.CentralityComponent, 1e-9)
	assert.InDelta(t, 15, net.ImportanceComponent, 1e-9)
	assert.InDelta(t, 50, assessment.Score.NetworkScore, 1e-9)

	// nothing risky about daytime transfers a day apart
	assert.Zero(t, assessment.Score.RiskScore)
	assert.InDelta(t, 1.0, assessment.Details.RiskMultiplier, 1e-9)

	assert.InDelta(t, 51.67, assessment.Score.TotalScore, 1e-9)
	assert.Equal(t, types.BandModerate, assessment.Band)
}

func TestScoreRelationship_MissingEdge(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newScoringService(store)

	assessment, err := svc.ScoreRelationship(testCtx(t), "A", "B")
	require.NoError(t, err)
	assert.Nil(t, assessment)
}

func TestScoreRelationship_RiskDiscount(t *testing.T) {
	// three whole-unit transfers minutes apart at 03:00 UTC into an
	// account created the day before
	first := time.Date(2024, 3, 6, 3, 0, 0, 0, time.UTC)

	store := seedGraph(t, &models.Relationship{
		FromAddress:       "A",
		ToAddress:         "B",
		TotalVolume:       "6000000000000",
		TransferCount:     3,
		FirstTransferTime: first,
		LastTransferTime:  first.Add(4 * time.Minute),
	})
	require.NoError(t, store.BatchInsertTransfers(testCtx(t), []*models.Transfer{
		transfer("t1", "A", "B", "2000000000000", first),
		transfer("t2", "A", "B", "2000000000000", first.Add(2*time.Minute)),
		transfer("t3", "A", "B", "2000000000000", first.Add(4*time.Minute)),
	}))
	require.NoError(t, store.UpsertAccount(testCtx(t), &models.Account{
		Address:   "B",
		FirstSeen: first.Add(-27 * time.Hour),
	}))

	svc := newScoringService(store)
	assessment, err := svc.ScoreRelationship(testCtx(t), "A", "B")
	require.NoError(t, err)
	require.NotNil(t, assessment)

	risk := assessment.Details.Risk
	assert.Equal(t, 2, risk.RapidTransfers)
	assert.Equal(t, 3, risk.RoundNumbers)
	assert.Equal(t, 3, risk.UnusualTime)
	assert.True(t, risk.NewAccount)

	// every indicator saturated: the discount bottoms out at half
	assert.InDelta(t, 100, assessment.Score.RiskScore, 1e-9)
	assert.InDelta(t, 0.5, assessment.Details.RiskMultiplier, 1e-9)
	assert.InDelta(t, 6.76, assessment.Score.TotalScore, 1e-9)
	assert.Equal(t, types.BandMinimal, assessment.Band)
}

func TestScoreAndStore(t *testing.T) {
	store := seedGraph(t, edge("A", "B", "1000", 1, time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)))
	svc := newScoringService(store)

	assessment, err := svc.ScoreAndStore(testCtx(t), "A", "B")
	require.NoError(t, err)
	require.NotNil(t, assessment)

	persisted, err := store.GetScore(testCtx(t), "A", "B")
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, assessment.Score.TotalScore, persisted.TotalScore)
}

func TestScoreAndStore_MissingEdge(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newScoringService(store)

	assessment, err := svc.ScoreAndStore(testCtx(t), "A", "B")
	require.NoError(t, err)
	assert.Nil(t, assessment)

	persisted, err := store.GetScore(testCtx(t), "A", "B")
	require.NoError(t, err)
	assert.Nil(t, persisted)
}

func TestScoreAddressRelationships(t *testing.T) {
	last := time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)
	store := seedGraph(t,
		edge("A", "B", "1000", 1, last),
		edge("A", "C", "10", 1, last),
		edge("X", "Y", "5", 1, last),
	)
	svc := newScoringService(store)

	assessments, err := svc.ScoreAddressRelationships(testCtx(t), "A")
	require.NoError(t, err)
	require.Len(t, assessments, 2)

	// follows the outgoing listing: biggest edge first
	assert.Equal(t, "B", assessments[0].Score.ToAddress)
	assert.Equal(t, "C", assessments[1].Score.ToAddress)

	for _, to := range []string{"B", "C"} {
		persisted, err := store.GetScore(testCtx(t), "A", to)
		require.NoError(t, err)
		require.NotNil(t, persisted, "score for A -> %s not persisted", to)
	}
}

func TestFindSuspiciousRelationships(t *testing.T) {
	store := storage.NewMemoryStore()
	for _, sc := range []*models.RelationshipScore{
		{FromAddress: "A", ToAddress: "B", TotalScore: 85},
		{FromAddress: "C", ToAddress: "D", TotalScore: 65},
		{FromAddress: "E", ToAddress: "F", TotalScore: 30},
	} {
		require.NoError(t, store.UpsertScore(testCtx(t), sc))
	}
	seedAccount(t, store, "A", 90, types.NodeTypeNormal)
	seedAccount(t, store, "B", 10, types.NodeTypeNormal)
	seedAccount(t, store, "C", 30, types.NodeTypeNormal)
	seedAccount(t, store, "D", 55, types.NodeTypeNormal)

	svc := newScoringService(store)
	results, err := svc.FindSuspiciousRelationships(testCtx(t), 65, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "A", results[0].Score.FromAddress)
	assert.Equal(t, types.BandVeryStrong, results[0].Band)
	assert.Equal(t, 90.0, results[0].FromRisk)
	assert.Equal(t, 10.0, results[0].ToRisk)
	// the riskier endpoint decides
	assert.Equal(t, types.RiskCritical, results[0].RiskLevel)

	assert.Equal(t, "C", results[1].Score.FromAddress)
	assert.Equal(t, types.BandStrong, results[1].Band)
	assert.Equal(t, types.RiskHigh, results[1].RiskLevel)
}

func TestFindSuspiciousRelationships_Limit(t *testing.T) {
	store := storage.NewMemoryStore()
	for _, sc := range []*models.RelationshipScore{
		{FromAddress: "A", ToAddress: "B", TotalScore: 85},
		{FromAddress: "C", ToAddress: "D", TotalScore: 70},
	} {
		require.NoError(t, store.UpsertScore(testCtx(t), sc))
	}

	svc := newScoringService(store)
	results, err := svc.FindSuspiciousRelationships(testCtx(t), 0, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 85.0, results[0].Score.TotalScore)
	// unknown endpoints default to zero risk
	assert.Equal(t, types.RiskLow, results[0].RiskLevel)
}
