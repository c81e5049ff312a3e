package service

import (
	"container/heap"
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/graph-scanner/internal/errors"
	"github.com/graph-scanner/internal/logging"
	"github.com/graph-scanner/internal/models"
	"github.com/graph-scanner/internal/observability"
	"github.com/graph-scanner/internal/types"
)

const (
	// DefaultPathDepth is the search depth used when a caller does not
	// set one. The ceiling remains MaxPathDepth.
	DefaultPathDepth = 4

	// DefaultMaxPaths bounds exhaustive enumeration
	DefaultMaxPaths = 100

	// highValuePathLimit caps FindHighValuePaths results
	highValuePathLimit = 20

	// quickPathLimit caps FindQuickestPaths results
	quickPathLimit = 20

	// defaultLargeTransferFloor marks a relationship carried by a single
	// transfer as a suspicious lone large movement
	defaultLargeTransferFloor = "1000000000000"
)

// PathFinderService answers "how does value move from A to B" under
// interchangeable cost notions, and assesses the routes it finds. All
// searches follow the flow direction and never revisit an address.
type PathFinderService struct {
	edges       EdgeStore
	nodes       NodeStore
	scores      ScoreStore
	nodeMetrics MetricsStore
	metrics     *observability.Metrics

	largeTransferFloor string
}

// NewPathFinderService creates a new path finder. scores, nodeMetrics
// and metrics may be nil; risk weighting and criticality scoring
// degrade accordingly.
func NewPathFinderService(edges EdgeStore, nodes NodeStore, scores ScoreStore, nodeMetrics MetricsStore, metrics *observability.Metrics) *PathFinderService {
	return &PathFinderService{
		edges:              edges,
		nodes:              nodes,
		scores:             scores,
		nodeMetrics:        nodeMetrics,
		metrics:            metrics,
		largeTransferFloor: defaultLargeTransferFloor,
	}
}

// PathOptions selects the cost function and depth of a weighted search.
// Zero values mean hops weighting at DefaultPathDepth.
type PathOptions struct {
	WeightType types.WeightType `json:"weightType"`
	MaxDepth   int              `json:"maxDepth"`
}

// WeightedPath is the result of a weighted shortest-path search
type WeightedPath struct {
	Path             models.Path      `json:"path"`
	Hops             int              `json:"hops"`
	TotalWeight      float64          `json:"totalWeight"`
	BottleneckVolume string           `json:"bottleneckVolume"`
	WeightType       types.WeightType `json:"weightType"`
}

// TimedPath is a route annotated with its most recent activity
type TimedPath struct {
	Path             models.Path `json:"path"`
	Hops             int         `json:"hops"`
	BottleneckVolume string      `json:"bottleneckVolume"`
	LastActivity     time.Time   `json:"lastActivity"`
}

// NodeRisk is the per-address component of a path risk analysis
type NodeRisk struct {
	Address   string         `json:"address"`
	RiskScore float64        `json:"riskScore"`
	NodeType  types.NodeType `json:"nodeType"`
}

// EdgeRisk is the per-edge component of a path risk analysis
type EdgeRisk struct {
	FromAddress string  `json:"fromAddress"`
	ToAddress   string  `json:"toAddress"`
	RiskScore   float64 `json:"riskScore"`
}

// PathRiskAnalysis blends node, edge, and sub-pattern risk into one
// 0-100 assessment of a route.
type PathRiskAnalysis struct {
	Hops               int             `json:"hops"`
	OverallRisk        float64         `json:"overallRisk"`
	RiskLevel          types.RiskLevel `json:"riskLevel"`
	AverageNodeRisk    float64         `json:"averageNodeRisk"`
	AverageEdgeRisk    float64         `json:"averageEdgeRisk"`
	NodeRisks          []NodeRisk      `json:"nodeRisks"`
	EdgeRisks          []EdgeRisk      `json:"edgeRisks"`
	SuspiciousSegments []string        `json:"suspiciousSegments,omitempty"`
}

// CriticalNode is one intermediate address scored by how much the
// from-to flow depends on it.
type CriticalNode struct {
	Address            string  `json:"address"`
	ParticipationCount int     `json:"participationCount"`
	ParticipationRate  float64 `json:"participationRate"`
	Critical           bool    `json:"critical"`
	Degree             int     `json:"degree"`
	Betweenness        float64 `json:"betweenness"`
	Score              float64 `json:"score"`
}

// validatePathDepth enforces the pathfinding ceiling before any store
// access.
func validatePathDepth(depth int) error {
	if depth < 1 || depth > MaxPathDepth {
		return errors.NewDepthError(depth, 1, MaxPathDepth)
	}
	return nil
}

// frontierItem is one queued node of the weighted search
type frontierItem struct {
	address string
	weight  float64
	hops    int
}

// pathFrontier is a min-heap over accumulated path weight
type pathFrontier []*frontierItem

func (f pathFrontier) Len() int            { return len(f) }
func (f pathFrontier) Less(i, j int) bool  { return f[i].weight < f[j].weight }
func (f pathFrontier) Swap(i, j int)       { f[i], f[j] = f[j], f[i] }
func (f *pathFrontier) Push(x interface{}) { *f = append(*f, x.(*frontierItem)) }

func (f *pathFrontier) Pop() interface{} {
	old := *f
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*f = old[:n-1]
	return item
}

// riskLookup memoizes account and edge-score reads for the duration of
// one request. Failed or absent lookups degrade to zero risk.
type riskLookup struct {
	nodes    NodeStore
	scores   ScoreStore
	logger   *logging.Logger
	accounts map[string]*models.Account
	edges    map[string]float64
}

func newRiskLookup(nodes NodeStore, scores ScoreStore, logger *logging.Logger) *riskLookup {
	return &riskLookup{
		nodes:    nodes,
		scores:   scores,
		logger:   logger,
		accounts: make(map[string]*models.Account),
		edges:    make(map[string]float64),
	}
}

// account returns the memoized account for address, nil when absent or
// when the lookup degraded.
func (r *riskLookup) account(ctx context.Context, address string) *models.Account {
	if acc, ok := r.accounts[address]; ok {
		return acc
	}
	acc, err := r.nodes.GetAccount(ctx, address)
	if err != nil {
		r.logger.WithError(err).WithField("node", address).Warn("node risk lookup degraded")
		acc = nil
	}
	r.accounts[address] = acc
	return acc
}

func (r *riskLookup) nodeRisk(ctx context.Context, address string) float64 {
	if acc := r.account(ctx, address); acc != nil {
		return acc.RiskScore
	}
	return 0
}

// edgeRisk returns the persisted edge risk score, falling back to the
// endpoint average when no score row exists.
func (r *riskLookup) edgeRisk(ctx context.Context, rel *models.Relationship) float64 {
	key := rel.FromAddress + "|" + rel.ToAddress
	if risk, ok := r.edges[key]; ok {
		return risk
	}

	risk := -1.0
	if r.scores != nil {
		score, err := r.scores.GetScore(ctx, rel.FromAddress, rel.ToAddress)
		switch {
		case err != nil:
			r.logger.WithError(err).WithFields(map[string]interface{}{
				"from": rel.FromAddress,
				"to":   rel.ToAddress,
			}).Warn("edge risk lookup degraded")
		case score != nil:
			risk = score.RiskScore
		}
	}
	if risk < 0 {
		risk = (r.nodeRisk(ctx, rel.FromAddress) + r.nodeRisk(ctx, rel.ToAddress)) / 2
	}

	r.edges[key] = risk
	return risk
}

// weigher builds the per-edge cost function for a weight type. Every
// weight is strictly positive: hops and risk and time stay at or above
// 1, volume decreases toward zero as volume grows but never reaches it.
func (s *PathFinderService) weigher(ctx context.Context, wt types.WeightType, risks *riskLookup) func(*models.Relationship) float64 {
	switch wt {
	case types.WeightVolume:
		return func(rel *models.Relationship) float64 {
			return 1 / math.Log10(models.AmountFloat(rel.TotalVolume)+10)
		}
	case types.WeightRisk:
		return func(rel *models.Relationship) float64 {
			return 1 + risks.edgeRisk(ctx, rel)/100
		}
	case types.WeightTime:
		return func(rel *models.Relationship) float64 {
			ageDays := time.Since(rel.LastTransferTime).Hours() / 24
			if ageDays < 0 {
				ageDays = 0
			}
			return 1 + math.Log1p(ageDays)
		}
	default:
		return func(*models.Relationship) float64 { return 1 }
	}
}

// FindShortestPath returns the cheapest route from one address to
// another under the selected weight type. A direct edge always wins
// regardless of weighting. No route within the depth bound yields
// (nil, nil).
func (s *PathFinderService) FindShortestPath(ctx context.Context, from, to string, opts PathOptions) (*WeightedPath, error) {
	started := time.Now()
	logger := logging.FromContext(ctx)

	weightType := opts.WeightType
	if weightType == "" {
		weightType = types.WeightHops
	}
	if !types.ValidWeightType(weightType) {
		s.metrics.ObserveOperation("weighted_path", "invalid", started)
		return nil, errors.NewInvalidParameterError("weightType", "must be one of hops, volume, risk, time")
	}
	maxDepth := opts.MaxDepth
	if maxDepth == 0 {
		maxDepth = DefaultPathDepth
	}
	if err := validatePathDepth(maxDepth); err != nil {
		s.metrics.ObserveOperation("weighted_path", "invalid", started)
		return nil, err
	}
	if from == to {
		s.metrics.ObserveOperation("weighted_path", "invalid", started)
		return nil, errors.NewInvalidParameterError("to", "must differ from the origin address")
	}

	risks := newRiskLookup(s.nodes, s.scores, logger)
	weigh := s.weigher(ctx, weightType, risks)

	// Direct edge always wins
	direct, err := s.edges.GetRelationship(ctx, from, to)
	if err != nil {
		s.metrics.ObserveOperation("weighted_path", "error", started)
		return nil, err
	}
	if direct != nil {
		s.metrics.ObserveOperation("weighted_path", "ok", started)
		return newWeightedPath(models.Path{
			Addresses: []string{from, to},
			Edges:     []models.Relationship{*direct},
		}, weightType, weigh(direct)), nil
	}

	path, total, err := s.dijkstra(ctx, from, to, maxDepth, weigh, nil)
	if err != nil {
		s.metrics.ObserveOperation("weighted_path", "error", started)
		return nil, err
	}
	if path == nil {
		s.metrics.ObserveOperation("weighted_path", "ok", started)
		return nil, nil
	}

	logger.WithFields(map[string]interface{}{
		"from":       from,
		"to":         to,
		"weightType": weightType,
		"hops":       path.Hops(),
	}).Debug("weighted path found")
	s.metrics.ObserveOperation("weighted_path", "ok", started)
	return newWeightedPath(*path, weightType, total), nil
}

func newWeightedPath(p models.Path, wt types.WeightType, total float64) *WeightedPath {
	return &WeightedPath{
		Path:             p,
		Hops:             p.Hops(),
		TotalWeight:      total,
		BottleneckVolume: p.Bottleneck(),
		WeightType:       wt,
	}
}

// dijkstra is a best-first search over accumulated edge weight with a
// hop-depth guard. Weights must be strictly positive. Returns a nil
// path when to is unreachable within maxDepth hops.
func (s *PathFinderService) dijkstra(ctx context.Context, from, to string, maxDepth int, weigh func(*models.Relationship) float64, keep func(*models.Relationship) bool) (*models.Path, float64, error) {
	adj := newAdjacency(s.edges)

	dist := map[string]float64{from: 0}
	settled := make(map[string]bool)
	prevNode := make(map[string]string)
	prevEdge := make(map[string]*models.Relationship)

	frontier := &pathFrontier{{address: from}}
	heap.Init(frontier)

	for frontier.Len() > 0 {
		item := heap.Pop(frontier).(*frontierItem)
		if settled[item.address] {
			continue
		}
		settled[item.address] = true
		if item.address == to {
			break
		}
		if item.hops == maxDepth {
			continue
		}

		candidates, err := adj.steps(ctx, item.address, false, keep)
		if err != nil {
			return nil, 0, err
		}
		for _, c := range candidates {
			if settled[c.next] {
				continue
			}
			cost := item.weight + weigh(c.edge)
			if cur, seen := dist[c.next]; seen && cost >= cur {
				continue
			}
			dist[c.next] = cost
			prevNode[c.next] = item.address
			prevEdge[c.next] = c.edge
			heap.Push(frontier, &frontierItem{address: c.next, weight: cost, hops: item.hops + 1})
		}
	}

	if !settled[to] {
		return nil, 0, nil
	}

	var addresses []string
	var edges []models.Relationship
	for cur := to; cur != from; cur = prevNode[cur] {
		addresses = append(addresses, cur)
		edges = append(edges, *prevEdge[cur])
	}
	addresses = append(addresses, from)
	for i, j := 0, len(addresses)-1; i < j; i, j = i+1, j-1 {
		addresses[i], addresses[j] = addresses[j], addresses[i]
	}
	for i, j := 0, len(edges)-1; i < j; i, j = i+1, j-1 {
		edges[i], edges[j] = edges[j], edges[i]
	}

	return &models.Path{Addresses: addresses, Edges: edges}, dist[to], nil
}

// enumeratePaths is the exhaustive DFS behind every all-paths question:
// all simple routes from from to to within maxDepth hops, honoring an
// edge filter and an avoid set, stopping once maxPaths are found.
func (s *PathFinderService) enumeratePaths(ctx context.Context, from, to string, maxDepth, maxPaths int, keep func(*models.Relationship) bool, avoid map[string]bool) ([]PathResult, error) {
	adj := newAdjacency(s.edges)
	var found []PathResult
	onPath := map[string]bool{from: true}
	pathAddrs := []string{from}
	pathEdges := make([]models.Relationship, 0, maxDepth)

	var walk func(current string, hops int) error
	walk = func(current string, hops int) error {
		if hops == maxDepth || len(found) >= maxPaths {
			return nil
		}
		candidates, err := adj.steps(ctx, current, false, keep)
		if err != nil {
			return err
		}
		for _, c := range candidates {
			if len(found) >= maxPaths {
				return nil
			}
			if c.next == to {
				found = append(found, *pathResult(
					append(append([]string{}, pathAddrs...), to),
					append(append([]models.Relationship{}, pathEdges...), *c.edge),
				))
				continue
			}
			if onPath[c.next] || avoid[c.next] {
				continue
			}

			onPath[c.next] = true
			pathAddrs = append(pathAddrs, c.next)
			pathEdges = append(pathEdges, *c.edge)
			err := walk(c.next, hops+1)
			pathEdges = pathEdges[:len(pathEdges)-1]
			pathAddrs = pathAddrs[:len(pathAddrs)-1]
			delete(onPath, c.next)
			if err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(from, 0); err != nil {
		return nil, err
	}
	return found, nil
}

// FindAllPaths enumerates every simple route from one address to
// another within maxDepth hops, stopping early at maxPaths, shortest
// first.
func (s *PathFinderService) FindAllPaths(ctx context.Context, from, to string, maxDepth, maxPaths int) ([]PathResult, error) {
	started := time.Now()

	if maxDepth == 0 {
		maxDepth = DefaultPathDepth
	}
	if err := validatePathDepth(maxDepth); err != nil {
		s.metrics.ObserveOperation("all_paths", "invalid", started)
		return nil, err
	}
	if from == to {
		s.metrics.ObserveOperation("all_paths", "invalid", started)
		return nil, errors.NewInvalidParameterError("to", "must differ from the origin address")
	}
	if maxPaths <= 0 {
		maxPaths = DefaultMaxPaths
	}

	paths, err := s.enumeratePaths(ctx, from, to, maxDepth, maxPaths, nil, nil)
	if err != nil {
		s.metrics.ObserveOperation("all_paths", "error", started)
		return nil, err
	}

	sort.Slice(paths, func(i, j int) bool {
		if paths[i].Hops != paths[j].Hops {
			return paths[i].Hops < paths[j].Hops
		}
		return paths[i].Path.Key() < paths[j].Path.Key()
	})

	s.metrics.ObserveOperation("all_paths", "ok", started)
	return paths, nil
}

// FindHighValuePaths enumerates routes whose every edge carries at
// least minVolume and returns the top ones by sustainable flow.
func (s *PathFinderService) FindHighValuePaths(ctx context.Context, from, to, minVolume string, maxDepth int) ([]PathResult, error) {
	started := time.Now()

	if maxDepth == 0 {
		maxDepth = DefaultPathDepth
	}
	if err := validatePathDepth(maxDepth); err != nil {
		s.metrics.ObserveOperation("high_value_paths", "invalid", started)
		return nil, err
	}
	if from == to {
		s.metrics.ObserveOperation("high_value_paths", "invalid", started)
		return nil, errors.NewInvalidParameterError("to", "must differ from the origin address")
	}
	floor, err := parseMinVolume(minVolume)
	if err != nil {
		s.metrics.ObserveOperation("high_value_paths", "invalid", started)
		return nil, err
	}

	paths, err := s.enumeratePaths(ctx, from, to, maxDepth, DefaultMaxPaths, volumeFloor(floor), nil)
	if err != nil {
		s.metrics.ObserveOperation("high_value_paths", "error", started)
		return nil, err
	}

	sort.Slice(paths, func(i, j int) bool {
		if c := models.CompareAmounts(paths[i].BottleneckVolume, paths[j].BottleneckVolume); c != 0 {
			return c > 0
		}
		if paths[i].Hops != paths[j].Hops {
			return paths[i].Hops < paths[j].Hops
		}
		return paths[i].Path.Key() < paths[j].Path.Key()
	})
	if len(paths) > highValuePathLimit {
		paths = paths[:highValuePathLimit]
	}

	s.metrics.ObserveOperation("high_value_paths", "ok", started)
	return paths, nil
}

// FindQuickestPaths finds routes whose every edge saw activity within
// the window, most recently active first. A time-weighted search and a
// supplementary all-paths scan are combined and de-duplicated so the
// recency-optimal route is never missed by the enumeration cap.
func (s *PathFinderService) FindQuickestPaths(ctx context.Context, from, to string, window time.Duration) ([]TimedPath, error) {
	started := time.Now()
	logger := logging.FromContext(ctx)

	if window <= 0 {
		s.metrics.ObserveOperation("quickest_paths", "invalid", started)
		return nil, errors.NewInvalidParameterError("timeWindow", "must be positive")
	}
	if from == to {
		s.metrics.ObserveOperation("quickest_paths", "invalid", started)
		return nil, errors.NewInvalidParameterError("to", "must differ from the origin address")
	}

	keep := activeSince(time.Now().Add(-window))
	risks := newRiskLookup(s.nodes, s.scores, logger)
	weigh := s.weigher(ctx, types.WeightTime, risks)

	best, _, err := s.dijkstra(ctx, from, to, DefaultPathDepth, weigh, keep)
	if err != nil {
		s.metrics.ObserveOperation("quickest_paths", "error", started)
		return nil, err
	}

	enumerated, err := s.enumeratePaths(ctx, from, to, DefaultPathDepth, DefaultMaxPaths, keep, nil)
	if err != nil {
		s.metrics.ObserveOperation("quickest_paths", "error", started)
		return nil, err
	}

	seen := make(map[string]bool)
	var timed []TimedPath
	add := func(p models.Path) {
		if seen[p.Key()] {
			return
		}
		seen[p.Key()] = true
		timed = append(timed, TimedPath{
			Path:             p,
			Hops:             p.Hops(),
			BottleneckVolume: p.Bottleneck(),
			LastActivity:     p.LastActivity(),
		})
	}
	if best != nil {
		add(*best)
	}
	for _, p := range enumerated {
		add(p.Path)
	}

	sort.Slice(timed, func(i, j int) bool {
		if !timed[i].LastActivity.Equal(timed[j].LastActivity) {
			return timed[i].LastActivity.After(timed[j].LastActivity)
		}
		if timed[i].Hops != timed[j].Hops {
			return timed[i].Hops < timed[j].Hops
		}
		return timed[i].Path.Key() < timed[j].Path.Key()
	})
	if len(timed) > quickPathLimit {
		timed = timed[:quickPathLimit]
	}

	s.metrics.ObserveOperation("quickest_paths", "ok", started)
	return timed, nil
}

// AnalyzePathRisk blends the risk of a route's nodes, edges, and
// suspicious sub-patterns into one 0-100 assessment: 40% average node
// risk, 30% average edge risk, 30% a 20-point penalty per sub-pattern
// (a lone large transfer or a mixer-typed node).
func (s *PathFinderService) AnalyzePathRisk(ctx context.Context, path models.Path) (*PathRiskAnalysis, error) {
	started := time.Now()
	logger := logging.FromContext(ctx)

	if len(path.Addresses) < 2 || len(path.Edges) != len(path.Addresses)-1 {
		s.metrics.ObserveOperation("path_risk", "invalid", started)
		return nil, errors.NewInvalidParameterError("path", "must be a contiguous route with one edge per hop")
	}

	risks := newRiskLookup(s.nodes, s.scores, logger)

	nodeRisks := make([]NodeRisk, 0, len(path.Addresses))
	var nodeSum float64
	for _, addr := range path.Addresses {
		nr := NodeRisk{Address: addr, NodeType: types.NodeTypeUnknown}
		if acc := risks.account(ctx, addr); acc != nil {
			nr.RiskScore = acc.RiskScore
			nr.NodeType = acc.NodeType
		}
		nodeSum += nr.RiskScore
		nodeRisks = append(nodeRisks, nr)
	}
	avgNodeRisk := nodeSum / float64(len(nodeRisks))

	edgeRisks := make([]EdgeRisk, 0, len(path.Edges))
	var edgeSum float64
	for i := range path.Edges {
		rel := &path.Edges[i]
		risk := risks.edgeRisk(ctx, rel)
		edgeSum += risk
		edgeRisks = append(edgeRisks, EdgeRisk{
			FromAddress: rel.FromAddress,
			ToAddress:   rel.ToAddress,
			RiskScore:   risk,
		})
	}
	avgEdgeRisk := edgeSum / float64(len(edgeRisks))

	var segments []string
	for i := range path.Edges {
		rel := &path.Edges[i]
		if rel.TransferCount == 1 && models.CompareAmounts(rel.TotalVolume, s.largeTransferFloor) >= 0 {
			segments = append(segments, fmt.Sprintf("single large transfer %s -> %s", rel.FromAddress, rel.ToAddress))
		}
	}
	for _, nr := range nodeRisks {
		if nr.NodeType == types.NodeTypeMixer {
			segments = append(segments, fmt.Sprintf("mixer-typed address %s", nr.Address))
		}
	}

	penalty := 20 * float64(len(segments))
	if penalty > 100 {
		penalty = 100
	}
	overall := 0.4*avgNodeRisk + 0.3*avgEdgeRisk + 0.3*penalty

	s.metrics.ObserveOperation("path_risk", "ok", started)
	return &PathRiskAnalysis{
		Hops:               path.Hops(),
		OverallRisk:        overall,
		RiskLevel:          types.RiskLevelForScore(overall),
		AverageNodeRisk:    avgNodeRisk,
		AverageEdgeRisk:    avgEdgeRisk,
		NodeRisks:          nodeRisks,
		EdgeRisks:          edgeRisks,
		SuspiciousSegments: segments,
	}, nil
}

// FindCriticalNodes scores every intermediate address of the from-to
// flow by how much the flow depends on it. An address with no alternate
// route around it is critical. Scores blend participation rate, the
// critical flag, and the node's persisted degree and betweenness.
func (s *PathFinderService) FindCriticalNodes(ctx context.Context, from, to string) ([]CriticalNode, error) {
	started := time.Now()
	logger := logging.FromContext(ctx)

	if from == to {
		s.metrics.ObserveOperation("critical_nodes", "invalid", started)
		return nil, errors.NewInvalidParameterError("to", "must differ from the origin address")
	}

	paths, err := s.enumeratePaths(ctx, from, to, DefaultPathDepth, DefaultMaxPaths, nil, nil)
	if err != nil {
		s.metrics.ObserveOperation("critical_nodes", "error", started)
		return nil, err
	}
	if len(paths) == 0 {
		s.metrics.ObserveOperation("critical_nodes", "ok", started)
		return nil, nil
	}

	participation := make(map[string]int)
	for _, p := range paths {
		for _, addr := range p.Path.Addresses {
			if addr == from || addr == to {
				continue
			}
			participation[addr]++
		}
	}

	candidates := make([]string, 0, len(participation))
	for addr := range participation {
		candidates = append(candidates, addr)
	}
	sort.Strings(candidates)

	nodes := make([]CriticalNode, 0, len(candidates))
	maxDegree, maxBetweenness := 0, 0.0
	for _, addr := range candidates {
		alternates, err := s.enumeratePaths(ctx, from, to, DefaultPathDepth, 1, nil, map[string]bool{addr: true})
		if err != nil {
			s.metrics.ObserveOperation("critical_nodes", "error", started)
			return nil, err
		}

		node := CriticalNode{
			Address:            addr,
			ParticipationCount: participation[addr],
			ParticipationRate:  float64(participation[addr]) / float64(len(paths)),
			Critical:           len(alternates) == 0,
		}
		if s.nodeMetrics != nil {
			row, err := s.nodeMetrics.GetNodeMetrics(ctx, addr)
			switch {
			case err != nil:
				logger.WithError(err).WithField("node", addr).Warn("node metrics lookup degraded")
			case row != nil:
				node.Degree = row.Degree
				node.Betweenness = row.BetweennessCentrality
			}
		}
		if node.Degree > maxDegree {
			maxDegree = node.Degree
		}
		if node.Betweenness > maxBetweenness {
			maxBetweenness = node.Betweenness
		}
		nodes = append(nodes, node)
	}

	for i := range nodes {
		score := 40 * nodes[i].ParticipationRate
		if nodes[i].Critical {
			score += 30
		}
		if maxDegree > 0 {
			score += 15 * float64(nodes[i].Degree) / float64(maxDegree)
		}
		if maxBetweenness > 0 {
			score += 15 * nodes[i].Betweenness / maxBetweenness
		}
		if score > 100 {
			score = 100
		}
		nodes[i].Score = score
	}

	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Score != nodes[j].Score {
			return nodes[i].Score > nodes[j].Score
		}
		return nodes[i].Address < nodes[j].Address
	})

	logger.WithFields(map[string]interface{}{
		"from":       from,
		"to":         to,
		"candidates": len(nodes),
	}).Debug("critical node analysis complete")
	s.metrics.ObserveOperation("critical_nodes", "ok", started)
	return nodes, nil
}
