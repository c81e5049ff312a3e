package service

import (
	"context"
	"sort"
	"time"

	"github.com/graph-scanner/internal/errors"
	"github.com/graph-scanner/internal/logging"
	"github.com/graph-scanner/internal/models"
	"github.com/graph-scanner/internal/observability"
	"github.com/graph-scanner/internal/types"
)

const (
	pageRankDamping    = 0.85
	pageRankIterations = 20

	// betweennessMaxDepth bounds the per-pair shortest-path search of
	// the betweenness approximation
	betweennessMaxDepth = MaxPathDepth
)

// SnapshotCache is the cache surface the metrics service needs. Cache
// failures are logged and otherwise ignored: the cache is an
// optimization, never a source of truth.
type SnapshotCache interface {
	GenerateMetricsKey(address string) string
	Set(ctx context.Context, key string, value interface{}) error
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
}

// cachedMetricsEntry is the cache payload for one node's snapshot
type cachedMetricsEntry struct {
	Address  string              `json:"address"`
	Metrics  *models.NodeMetrics `json:"metrics"`
	CachedAt time.Time           `json:"cachedAt"`
}

// MetricsService computes per-node graph measures: degree centrality
// and clustering from the immediate neighborhood, betweenness and
// PageRank approximated over a caller-supplied sample of nodes of
// interest, never the whole graph.
type MetricsService struct {
	edges       EdgeStore
	nodes       NodeStore
	nodeMetrics MetricsStore
	patterns    PatternStore
	cache       SnapshotCache
	metrics     *observability.Metrics
}

// NewMetricsService creates a new metrics service. patterns and cache
// may be nil; the suspicious-pattern count and snapshot caching degrade
// accordingly.
func NewMetricsService(edges EdgeStore, nodes NodeStore, nodeMetrics MetricsStore, patterns PatternStore, cache SnapshotCache, metrics *observability.Metrics) *MetricsService {
	return &MetricsService{
		edges:       edges,
		nodes:       nodes,
		nodeMetrics: nodeMetrics,
		patterns:    patterns,
		cache:       cache,
		metrics:     metrics,
	}
}

// DegreeCentrality is the edge-count and volume summary of one node
type DegreeCentrality struct {
	Address     string `json:"address"`
	InDegree    int    `json:"inDegree"`
	OutDegree   int    `json:"outDegree"`
	Degree      int    `json:"degree"`
	InVolume    string `json:"inVolume"`
	OutVolume   string `json:"outVolume"`
	TotalVolume string `json:"totalVolume"`
}

// ComputeDegreeCentrality counts the node's in and out edges and sums
// their volumes, directly from the edge relation.
func (s *MetricsService) ComputeDegreeCentrality(ctx context.Context, address string) (*DegreeCentrality, error) {
	started := time.Now()

	outgoing, err := s.edges.ListOutgoing(ctx, address)
	if err != nil {
		s.metrics.ObserveOperation("degree_centrality", "error", started)
		return nil, err
	}
	incoming, err := s.edges.ListIncoming(ctx, address)
	if err != nil {
		s.metrics.ObserveOperation("degree_centrality", "error", started)
		return nil, err
	}

	inVolume, outVolume := "0", "0"
	for _, rel := range incoming {
		inVolume = models.AddAmounts(inVolume, rel.TotalVolume)
	}
	for _, rel := range outgoing {
		outVolume = models.AddAmounts(outVolume, rel.TotalVolume)
	}

	s.metrics.ObserveOperation("degree_centrality", "ok", started)
	return &DegreeCentrality{
		Address:     address,
		InDegree:    len(incoming),
		OutDegree:   len(outgoing),
		Degree:      len(incoming) + len(outgoing),
		InVolume:    inVolume,
		OutVolume:   outVolume,
		TotalVolume: models.AddAmounts(inVolume, outVolume),
	}, nil
}

// ComputeClusteringCoefficient returns the fraction of the node's
// neighbor pairs that are themselves connected, over the immediate
// neighborhood only. Fewer than two neighbors yields 0.
func (s *MetricsService) ComputeClusteringCoefficient(ctx context.Context, address string) (float64, error) {
	started := time.Now()

	neighbors, err := s.neighborSet(ctx, address)
	if err != nil {
		s.metrics.ObserveOperation("clustering_coefficient", "error", started)
		return 0, err
	}
	if len(neighbors) < 2 {
		s.metrics.ObserveOperation("clustering_coefficient", "ok", started)
		return 0, nil
	}

	among, err := s.edges.ListAmong(ctx, neighbors)
	if err != nil {
		s.metrics.ObserveOperation("clustering_coefficient", "error", started)
		return 0, err
	}

	connected := make(map[string]bool)
	for _, rel := range among {
		a, b := rel.FromAddress, rel.ToAddress
		if a == b {
			continue
		}
		if a > b {
			a, b = b, a
		}
		connected[a+"|"+b] = true
	}

	n := len(neighbors)
	possible := n * (n - 1) / 2
	s.metrics.ObserveOperation("clustering_coefficient", "ok", started)
	return float64(len(connected)) / float64(possible), nil
}

// neighborSet returns the node's unique counterparties in either
// direction, sorted, excluding the node itself.
func (s *MetricsService) neighborSet(ctx context.Context, address string) ([]string, error) {
	outgoing, err := s.edges.ListOutgoing(ctx, address)
	if err != nil {
		return nil, err
	}
	incoming, err := s.edges.ListIncoming(ctx, address)
	if err != nil {
		return nil, err
	}

	set := make(map[string]bool)
	for _, rel := range outgoing {
		set[rel.ToAddress] = true
	}
	for _, rel := range incoming {
		set[rel.FromAddress] = true
	}
	delete(set, address)

	neighbors := make([]string, 0, len(set))
	for addr := range set {
		neighbors = append(neighbors, addr)
	}
	sort.Strings(neighbors)
	return neighbors, nil
}

// ApproximateBetweenness estimates how often the address sits on
// shortest paths between nodes of the sample: the fraction of connected
// sample pairs whose shortest route passes through it. This is a
// sample-based approximation, never a whole-graph measure.
func (s *MetricsService) ApproximateBetweenness(ctx context.Context, address string, sample []string) (float64, error) {
	started := time.Now()

	sample = dedupeSample(sample, address)
	if len(sample) < 2 {
		s.metrics.ObserveOperation("betweenness", "invalid", started)
		return 0, errors.NewInvalidParameterError("sample", "must contain at least two addresses besides the target")
	}

	adj := newAdjacency(s.edges)
	through, connected := 0, 0
	for _, from := range sample {
		for _, to := range sample {
			if from == to {
				continue
			}
			path, err := s.shortestHopPath(ctx, adj, from, to, betweennessMaxDepth)
			if err != nil {
				s.metrics.ObserveOperation("betweenness", "error", started)
				return 0, err
			}
			if path == nil {
				continue
			}
			connected++
			for _, hop := range path[1 : len(path)-1] {
				if hop == address {
					through++
					break
				}
			}
		}
	}

	s.metrics.ObserveOperation("betweenness", "ok", started)
	if connected == 0 {
		return 0, nil
	}
	return float64(through) / float64(connected), nil
}

// shortestHopPath is a bounded breadth-first search along the flow
// direction, returning the address sequence or nil when unreachable.
func (s *MetricsService) shortestHopPath(ctx context.Context, adj *adjacency, from, to string, maxDepth int) ([]string, error) {
	type queued struct {
		address string
		depth   int
	}

	parent := map[string]string{from: ""}
	queue := []queued{{from, 0}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth == maxDepth {
			continue
		}
		rels, err := adj.out(ctx, cur.address)
		if err != nil {
			return nil, err
		}
		for _, rel := range rels {
			next := rel.ToAddress
			if _, seen := parent[next]; seen {
				continue
			}
			parent[next] = cur.address
			if next == to {
				var path []string
				for at := to; at != ""; at = parent[at] {
					path = append(path, at)
				}
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				return path, nil
			}
			queue = append(queue, queued{next, cur.depth + 1})
		}
	}
	return nil, nil
}

// ApproximatePageRank runs a fixed-iteration PageRank over the subgraph
// induced by the sample plus the address and returns the address's
// rank. Dangling mass is redistributed uniformly.
func (s *MetricsService) ApproximatePageRank(ctx context.Context, address string, sample []string) (float64, error) {
	started := time.Now()

	nodes := dedupeSample(sample, "")
	present := false
	for _, n := range nodes {
		if n == address {
			present = true
			break
		}
	}
	if !present {
		nodes = append(nodes, address)
	}
	if len(nodes) < 2 {
		s.metrics.ObserveOperation("pagerank", "invalid", started)
		return 0, errors.NewInvalidParameterError("sample", "must contain at least one address besides the target")
	}
	sort.Strings(nodes)

	among, err := s.edges.ListAmong(ctx, nodes)
	if err != nil {
		s.metrics.ObserveOperation("pagerank", "error", started)
		return 0, err
	}

	inSet := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		inSet[n] = true
	}
	targets := make(map[string][]string)
	for _, rel := range among {
		if !inSet[rel.FromAddress] || !inSet[rel.ToAddress] || rel.FromAddress == rel.ToAddress {
			continue
		}
		targets[rel.FromAddress] = append(targets[rel.FromAddress], rel.ToAddress)
	}

	n := float64(len(nodes))
	ranks := make(map[string]float64, len(nodes))
	for _, node := range nodes {
		ranks[node] = 1 / n
	}

	for i := 0; i < pageRankIterations; i++ {
		next := make(map[string]float64, len(nodes))
		var dangling float64
		for _, node := range nodes {
			if len(targets[node]) == 0 {
				dangling += ranks[node]
			}
		}
		for _, node := range nodes {
			next[node] = (1-pageRankDamping)/n + pageRankDamping*dangling/n
		}
		for _, node := range nodes {
			outs := targets[node]
			if len(outs) == 0 {
				continue
			}
			share := ranks[node] / float64(len(outs))
			for _, target := range outs {
				next[target] += pageRankDamping * share
			}
		}
		ranks = next
	}

	s.metrics.ObserveOperation("pagerank", "ok", started)
	return ranks[address], nil
}

// dedupeSample removes duplicates and the excluded address, keeping
// first occurrence order.
func dedupeSample(sample []string, exclude string) []string {
	seen := make(map[string]bool, len(sample))
	out := make([]string, 0, len(sample))
	for _, addr := range sample {
		if addr == "" || addr == exclude || seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	return out
}

// ComputeNodeMetrics computes the full snapshot for one node, persists
// it, and warms the cache. An empty sample leaves betweenness and
// PageRank at zero rather than failing; risk and type enrichment
// degrade on lookup failure.
func (s *MetricsService) ComputeNodeMetrics(ctx context.Context, address string, sample []string) (*models.NodeMetrics, error) {
	started := time.Now()
	logger := logging.FromContext(ctx).WithField("address", address)

	degrees, err := s.ComputeDegreeCentrality(ctx, address)
	if err != nil {
		s.metrics.ObserveOperation("compute_node_metrics", "error", started)
		return nil, err
	}
	clustering, err := s.ComputeClusteringCoefficient(ctx, address)
	if err != nil {
		s.metrics.ObserveOperation("compute_node_metrics", "error", started)
		return nil, err
	}

	var betweenness, pagerank float64
	if len(dedupeSample(sample, address)) >= 2 {
		betweenness, err = s.ApproximateBetweenness(ctx, address, sample)
		if err != nil {
			s.metrics.ObserveOperation("compute_node_metrics", "error", started)
			return nil, err
		}
		pagerank, err = s.ApproximatePageRank(ctx, address, sample)
		if err != nil {
			s.metrics.ObserveOperation("compute_node_metrics", "error", started)
			return nil, err
		}
	}

	snapshot := &models.NodeMetrics{
		Address:               address,
		Degree:                degrees.Degree,
		InDegree:              degrees.InDegree,
		OutDegree:             degrees.OutDegree,
		NodeType:              types.NodeTypeUnknown,
		BetweennessCentrality: betweenness,
		ClusteringCoefficient: clustering,
		PageRank:              pagerank,
		UpdatedAt:             time.Now().UTC(),
	}

	acc, err := s.nodes.GetAccount(ctx, address)
	switch {
	case err != nil:
		logger.WithError(err).Warn("account enrichment degraded")
	case acc != nil:
		snapshot.RiskScore = acc.RiskScore
		snapshot.NodeType = acc.NodeType
	}

	if s.patterns != nil {
		counts, err := s.patterns.CountActivePatterns(ctx, []string{address})
		if err != nil {
			logger.WithError(err).Warn("pattern count degraded")
		} else {
			snapshot.SuspiciousPatterns = counts[address]
		}
	}

	if err := s.nodeMetrics.UpsertNodeMetrics(ctx, snapshot); err != nil {
		s.metrics.ObserveOperation("compute_node_metrics", "error", started)
		return nil, err
	}

	if s.cache != nil {
		entry := cachedMetricsEntry{Address: address, Metrics: snapshot, CachedAt: time.Now().UTC()}
		if err := s.cache.Set(ctx, s.cache.GenerateMetricsKey(address), entry); err != nil {
			logger.WithError(err).Warn("metrics cache write failed")
		}
	}

	logger.WithFields(map[string]interface{}{
		"degree":     snapshot.Degree,
		"clustering": snapshot.ClusteringCoefficient,
	}).Debug("node metrics computed")
	s.metrics.ObserveOperation("compute_node_metrics", "ok", started)
	return snapshot, nil
}

// GetNodeMetrics reads a node's snapshot, preferring the cache and
// falling back to the store. A store hit rewarms the cache. Missing
// snapshots yield (nil, nil).
func (s *MetricsService) GetNodeMetrics(ctx context.Context, address string) (*models.NodeMetrics, error) {
	logger := logging.FromContext(ctx).WithField("address", address)

	if s.cache != nil {
		var entry cachedMetricsEntry
		found, err := s.cache.Get(ctx, s.cache.GenerateMetricsKey(address), &entry)
		if err != nil {
			logger.WithError(err).Warn("metrics cache read failed")
		} else if found && entry.Metrics != nil {
			s.metrics.RecordCacheHit("metrics")
			return entry.Metrics, nil
		}
		s.metrics.RecordCacheMiss("metrics")
	}

	snapshot, err := s.nodeMetrics.GetNodeMetrics(ctx, address)
	if err != nil || snapshot == nil {
		return snapshot, err
	}

	if s.cache != nil {
		entry := cachedMetricsEntry{Address: address, Metrics: snapshot, CachedAt: time.Now().UTC()}
		if err := s.cache.Set(ctx, s.cache.GenerateMetricsKey(address), entry); err != nil {
			logger.WithError(err).Warn("metrics cache write failed")
		}
	}
	return snapshot, nil
}
