package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graph-scanner/internal/errors"
	"github.com/graph-scanner/internal/models"
	"github.com/graph-scanner/internal/types"
)

func TestGetDirectConnections(t *testing.T) {
	now := time.Now().UTC()
	store := seedGraph(t,
		edge("A", "B", "100", 4, now),
		edge("C", "A", "50", 2, now.Add(-time.Hour)),
	)
	seedAccount(t, store, "B", 72, types.NodeTypeExchange)
	require.NoError(t, store.UpsertScore(testCtx(t), &models.RelationshipScore{
		FromAddress: "A",
		ToAddress:   "B",
		TotalScore:  61.5,
	}))

	svc := NewTraversalService(store, store, store, nil)
	conns, err := svc.GetDirectConnections(testCtx(t), "A", 0)
	require.NoError(t, err)
	require.Len(t, conns, 2)

	// volume descending: the outgoing edge to B carries more
	assert.Equal(t, "B", conns[0].Address)
	assert.Equal(t, types.DirectionOutgoing, conns[0].Direction)
	assert.Equal(t, "100", conns[0].TotalVolume)
	assert.Equal(t, int64(4), conns[0].TransferCount)
	assert.Equal(t, 61.5, conns[0].RelationshipScore)
	assert.Equal(t, 72.0, conns[0].RiskScore)
	assert.Equal(t, types.NodeTypeExchange, conns[0].NodeType)

	assert.Equal(t, "C", conns[1].Address)
	assert.Equal(t, types.DirectionIncoming, conns[1].Direction)
	// C has no account row: enrichment degrades to unknown
	assert.Equal(t, types.NodeTypeUnknown, conns[1].NodeType)
	assert.Zero(t, conns[1].RiskScore)
}

func TestGetDirectConnections_UnknownAddress(t *testing.T) {
	store := seedGraph(t, edge("A", "B", "100", 1, time.Now()))
	svc := NewTraversalService(store, store, store, nil)

	conns, err := svc.GetDirectConnections(testCtx(t), "nobody", 0)
	require.NoError(t, err)
	assert.Empty(t, conns)
}

func TestGetDirectConnections_Limit(t *testing.T) {
	now := time.Now()
	store := seedGraph(t,
		edge("A", "B", "300", 1, now),
		edge("A", "C", "200", 1, now),
		edge("A", "D", "100", 1, now),
	)
	svc := NewTraversalService(store, store, store, nil)

	conns, err := svc.GetDirectConnections(testCtx(t), "A", 2)
	require.NoError(t, err)
	require.Len(t, conns, 2)
	assert.Equal(t, "B", conns[0].Address)
	assert.Equal(t, "C", conns[1].Address)
}

func TestGetMultiHopConnections(t *testing.T) {
	now := time.Now()
	store := seedGraph(t,
		edge("A", "B", "100", 1, now),
		edge("B", "C", "50", 1, now),
		edge("C", "D", "25", 1, now), // 3 hops out, beyond depth 2
		edge("E", "A", "80", 1, now), // reached against the flow
	)
	svc := NewTraversalService(store, store, store, nil)

	conns, err := svc.GetMultiHopConnections(testCtx(t), "A", 2, "", 0)
	require.NoError(t, err)

	byAddr := make(map[string]MultiHopConnection, len(conns))
	for _, c := range conns {
		byAddr[c.Address] = c
	}
	require.Len(t, byAddr, 3)

	assert.Equal(t, 1, byAddr["B"].HopCount)
	assert.Equal(t, "100", byAddr["B"].BottleneckVolume)
	assert.Equal(t, 1, byAddr["E"].HopCount)
	assert.Equal(t, 2, byAddr["C"].HopCount)
	// bottleneck along A->B->C is the thinner second edge
	assert.Equal(t, "50", byAddr["C"].BottleneckVolume)
	assert.NotContains(t, byAddr, "D")

	// hop-ascending ordering
	for i := 1; i < len(conns); i++ {
		assert.GreaterOrEqual(t, conns[i].HopCount, conns[i-1].HopCount)
	}
}

func TestGetMultiHopConnections_MinVolume(t *testing.T) {
	now := time.Now()
	store := seedGraph(t,
		edge("A", "B", "100", 1, now),
		edge("A", "C", "5", 1, now),
	)
	svc := NewTraversalService(store, store, store, nil)

	conns, err := svc.GetMultiHopConnections(testCtx(t), "A", 2, "50", 0)
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, "B", conns[0].Address)
}

func TestGetMultiHopConnections_DepthValidation(t *testing.T) {
	store := seedGraph(t, edge("A", "B", "100", 1, time.Now()))
	svc := NewTraversalService(store, store, store, nil)

	for _, depth := range []int{0, -1, MaxTraversalDepth + 1} {
		_, err := svc.GetMultiHopConnections(testCtx(t), "A", depth, "", 0)
		require.Error(t, err, "depth %d must be rejected", depth)
		assert.True(t, errors.IsValidation(err))
	}
}

func TestGetMultiHopConnections_InvalidMinVolume(t *testing.T) {
	store := seedGraph(t, edge("A", "B", "100", 1, time.Now()))
	svc := NewTraversalService(store, store, store, nil)

	_, err := svc.GetMultiHopConnections(testCtx(t), "A", 2, "not-a-number", 0)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestExtractSubgraph_InducedEdges(t *testing.T) {
	now := time.Now()
	store := seedGraph(t,
		edge("A", "B", "100", 1, now),
		edge("A", "C", "90", 1, now),
		edge("B", "C", "80", 1, now), // between two non-center nodes
	)
	svc := NewTraversalService(store, store, store, nil)

	sub, err := svc.ExtractSubgraph(testCtx(t), "A", 1, nil)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, "A", sub.Center)
	require.Len(t, sub.Nodes, 3)

	// the induced subgraph carries the B->C edge even though it does
	// not touch the center
	keys := make([]string, len(sub.Edges))
	for i, e := range sub.Edges {
		keys[i] = e.FromAddress + "->" + e.ToAddress
	}
	assert.ElementsMatch(t, []string{"A->B", "A->C", "B->C"}, keys)
}

func TestExtractSubgraph_Filters(t *testing.T) {
	now := time.Now()
	store := seedGraph(t,
		edge("A", "B", "100", 1, now),
		edge("A", "C", "90", 1, now),
	)
	seedAccount(t, store, "A", 5, types.NodeTypeNormal)
	seedAccount(t, store, "B", 90, types.NodeTypeNormal)
	seedAccount(t, store, "C", 10, types.NodeTypeNormal)

	svc := NewTraversalService(store, store, store, nil)
	minRisk := 50.0
	sub, err := svc.ExtractSubgraph(testCtx(t), "A", 1, &SubgraphFilters{MinRiskScore: &minRisk})
	require.NoError(t, err)

	// C fails the risk floor; the low-risk center always survives
	addrs := make([]string, len(sub.Nodes))
	for i, n := range sub.Nodes {
		addrs[i] = n.Address
	}
	assert.ElementsMatch(t, []string{"A", "B"}, addrs)
}

func TestTraversalShortestPath_DirectEdgeWins(t *testing.T) {
	now := time.Now()
	// thin direct edge against a fat two-hop detour
	store := seedGraph(t,
		edge("A", "B", "1", 1, now),
		edge("A", "X", "1000", 1, now),
		edge("X", "B", "1000", 1, now),
	)
	svc := NewTraversalService(store, store, store, nil)

	res, err := svc.FindShortestPath(testCtx(t), "A", "B", 3)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, []string{"A", "B"}, res.Path.Addresses)
	assert.Equal(t, 1, res.Hops)
	assert.Equal(t, "1", res.BottleneckVolume)
}

func TestTraversalShortestPath_MultiHop(t *testing.T) {
	now := time.Now()
	store := seedGraph(t,
		edge("A", "B", "100", 1, now),
		edge("B", "C", "60", 1, now),
	)
	svc := NewTraversalService(store, store, store, nil)

	res, err := svc.FindShortestPath(testCtx(t), "A", "C", 3)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, []string{"A", "B", "C"}, res.Path.Addresses)
	assert.Equal(t, 2, res.Hops)
	assert.Equal(t, "60", res.BottleneckVolume)
	assertSimplePath(t, res.Path)
}

func TestTraversalShortestPath_BottleneckTieBreak(t *testing.T) {
	now := time.Now()
	store := seedGraph(t,
		edge("A", "X", "100", 1, now),
		edge("X", "B", "100", 1, now),
		edge("A", "Y", "200", 1, now),
		edge("Y", "B", "150", 1, now),
	)
	svc := NewTraversalService(store, store, store, nil)

	res, err := svc.FindShortestPath(testCtx(t), "A", "B", 3)
	require.NoError(t, err)
	require.NotNil(t, res)
	// both routes take 2 hops; the Y route sustains 150
	assert.Equal(t, []string{"A", "Y", "B"}, res.Path.Addresses)
	assert.Equal(t, "150", res.BottleneckVolume)
}

func TestTraversalShortestPath_Unreachable(t *testing.T) {
	store := seedGraph(t,
		edge("A", "B", "100", 1, time.Now()),
		edge("C", "D", "100", 1, time.Now()),
	)
	svc := NewTraversalService(store, store, store, nil)

	res, err := svc.FindShortestPath(testCtx(t), "A", "D", 3)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestTraversalShortestPath_SameEndpoints(t *testing.T) {
	store := seedGraph(t, edge("A", "B", "100", 1, time.Now()))
	svc := NewTraversalService(store, store, store, nil)

	_, err := svc.FindShortestPath(testCtx(t), "A", "A", 3)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestDetectCircularFlows_Triangle(t *testing.T) {
	now := time.Now()
	store := seedGraph(t,
		edge("A", "B", "100", 1, now),
		edge("B", "C", "90", 1, now),
		edge("C", "A", "80", 1, now),
	)
	svc := NewTraversalService(store, store, store, nil)

	flows, err := svc.DetectCircularFlows(testCtx(t), "A", 3, "")
	require.NoError(t, err)
	require.Len(t, flows, 1)

	flow := flows[0]
	assert.Equal(t, 3, flow.PathLength)
	assert.Equal(t, "80", flow.MinVolumeInPath)
	assert.Equal(t, []string{"A", "B", "C", "A"}, flow.Path.Addresses)
	assertCycle(t, flow.Path, "A")
}

func TestDetectCircularFlows_SelfLoopIgnored(t *testing.T) {
	store := seedGraph(t, edge("A", "A", "100", 1, time.Now()))
	svc := NewTraversalService(store, store, store, nil)

	flows, err := svc.DetectCircularFlows(testCtx(t), "A", 3, "")
	require.NoError(t, err)
	assert.Empty(t, flows)
}

func TestDetectCircularFlows_MinVolume(t *testing.T) {
	now := time.Now()
	store := seedGraph(t,
		edge("A", "B", "100", 1, now),
		edge("B", "C", "90", 1, now),
		edge("C", "A", "80", 1, now),
	)
	svc := NewTraversalService(store, store, store, nil)

	// the weakest leg carries 80, so a floor of 85 breaks the cycle
	flows, err := svc.DetectCircularFlows(testCtx(t), "A", 3, "85")
	require.NoError(t, err)
	assert.Empty(t, flows)

	flows, err = svc.DetectCircularFlows(testCtx(t), "A", 3, "80")
	require.NoError(t, err)
	assert.Len(t, flows, 1)
}

func TestDetectCircularFlows_Ordering(t *testing.T) {
	now := time.Now()
	store := seedGraph(t,
		// 2-hop loop
		edge("A", "B", "10", 1, now),
		edge("B", "A", "10", 1, now),
		// 3-hop loop with more volume
		edge("A", "C", "500", 1, now),
		edge("C", "D", "500", 1, now),
		edge("D", "A", "500", 1, now),
	)
	svc := NewTraversalService(store, store, store, nil)

	flows, err := svc.DetectCircularFlows(testCtx(t), "A", 3, "")
	require.NoError(t, err)
	require.Len(t, flows, 2)

	// shorter loop sorts first regardless of volume
	assert.Equal(t, 2, flows[0].PathLength)
	assert.Equal(t, 3, flows[1].PathLength)
	for _, f := range flows {
		assertCycle(t, f.Path, "A")
	}
}
