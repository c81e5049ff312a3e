package service

import (
	"context"
	"math/big"
	"sort"
	"time"

	"github.com/graph-scanner/internal/errors"
	"github.com/graph-scanner/internal/logging"
	"github.com/graph-scanner/internal/models"
	"github.com/graph-scanner/internal/observability"
	"github.com/graph-scanner/internal/types"
)

const (
	// MaxTraversalDepth is the hard ceiling for neighborhood expansion.
	// Branching factor makes deeper exhaustive expansion impractical
	// without sampling, so this is an invariant, not configuration.
	MaxTraversalDepth = 3

	// MaxPathDepth is the hard ceiling for two-address pathfinding
	MaxPathDepth = 6

	// DefaultConnectionLimit caps one-hop neighborhood results
	DefaultConnectionLimit = 50

	// DefaultExpandLimit caps multi-hop expansion results
	DefaultExpandLimit = 100
)

// TraversalService answers "what is near address A": one-hop
// neighborhoods, bounded multi-hop expansion, induced subgraphs,
// hop-optimal paths, and circular flows. Every expansion is cycle-safe:
// a branch never extends to an address already on its path.
type TraversalService struct {
	edges   EdgeStore
	nodes   NodeStore
	scores  ScoreStore
	metrics *observability.Metrics

	connectionLimit int
	expandLimit     int
}

// NewTraversalService creates a new traversal service. scores and
// metrics may be nil; connection annotation degrades accordingly.
func NewTraversalService(edges EdgeStore, nodes NodeStore, scores ScoreStore, metrics *observability.Metrics) *TraversalService {
	return &TraversalService{
		edges:           edges,
		nodes:           nodes,
		scores:          scores,
		metrics:         metrics,
		connectionLimit: DefaultConnectionLimit,
		expandLimit:     DefaultExpandLimit,
	}
}

// SetResultLimits overrides the default result caps applied when a
// caller passes no limit. Non-positive values keep the defaults.
func (s *TraversalService) SetResultLimits(connections, expansion int) {
	if connections > 0 {
		s.connectionLimit = connections
	}
	if expansion > 0 {
		s.expandLimit = expansion
	}
}

// DirectConnection is one annotated one-hop neighbor
type DirectConnection struct {
	Address           string          `json:"address"`
	Direction         types.Direction `json:"direction"`
	TotalVolume       string          `json:"totalVolume"`
	TransferCount     int64           `json:"transferCount"`
	FirstTransferTime time.Time       `json:"firstTransferTime"`
	LastTransferTime  time.Time       `json:"lastTransferTime"`
	RelationshipScore float64         `json:"relationshipScore"`
	RiskScore         float64         `json:"riskScore"`
	NodeType          types.NodeType  `json:"nodeType"`
	IdentityDisplay   string          `json:"identityDisplay,omitempty"`
}

// MultiHopConnection is one address reached by bounded expansion
type MultiHopConnection struct {
	Address          string `json:"address"`
	HopCount         int    `json:"hopCount"`
	BottleneckVolume string `json:"bottleneckVolume"`
}

// PathResult is a concrete route between two addresses
type PathResult struct {
	Path             models.Path `json:"path"`
	Hops             int         `json:"hops"`
	BottleneckVolume string      `json:"bottleneckVolume"`
}

// CircularFlow is one value cycle returning to its origin. The origin
// appears exactly twice in the path: first and last.
type CircularFlow struct {
	Path            models.Path `json:"path"`
	PathLength      int         `json:"pathLength"`
	MinVolumeInPath string      `json:"minVolumeInPath"`
}

// SubgraphNode is one node of an extracted subgraph
type SubgraphNode struct {
	Address         string         `json:"address"`
	HopCount        int            `json:"hopCount"`
	RiskScore       float64        `json:"riskScore"`
	NodeType        types.NodeType `json:"nodeType"`
	IdentityDisplay string         `json:"identityDisplay,omitempty"`
}

// Subgraph is the induced subgraph around a center address: the
// expanded nodes plus every edge among them, not just edges touching
// the center.
type Subgraph struct {
	Center string                `json:"center"`
	Nodes  []SubgraphNode        `json:"nodes"`
	Edges  []models.Relationship `json:"edges"`
}

// SubgraphFilters restricts which expanded nodes survive extraction.
// The center node is always kept.
type SubgraphFilters struct {
	NodeType     *types.NodeType
	MinRiskScore *float64
	MaxRiskScore *float64
}

// adjacency memoizes edge lists for the duration of one expansion so a
// request never fetches the same address twice. It is the in-memory
// adjacency index every traversal walks.
type adjacency struct {
	edges    EdgeStore
	outgoing map[string][]*models.Relationship
	incoming map[string][]*models.Relationship
}

func newAdjacency(edges EdgeStore) *adjacency {
	return &adjacency{
		edges:    edges,
		outgoing: make(map[string][]*models.Relationship),
		incoming: make(map[string][]*models.Relationship),
	}
}

func (a *adjacency) out(ctx context.Context, address string) ([]*models.Relationship, error) {
	if rels, ok := a.outgoing[address]; ok {
		return rels, nil
	}
	rels, err := a.edges.ListOutgoing(ctx, address)
	if err != nil {
		return nil, err
	}
	a.outgoing[address] = rels
	return rels, nil
}

func (a *adjacency) in(ctx context.Context, address string) ([]*models.Relationship, error) {
	if rels, ok := a.incoming[address]; ok {
		return rels, nil
	}
	rels, err := a.edges.ListIncoming(ctx, address)
	if err != nil {
		return nil, err
	}
	a.incoming[address] = rels
	return rels, nil
}

// step is one candidate extension of an expansion branch
type step struct {
	edge *models.Relationship
	next string
}

// steps lists the extensions of address, outward only or in both
// directions, dropping edges rejected by keep.
func (a *adjacency) steps(ctx context.Context, address string, both bool, keep func(*models.Relationship) bool) ([]step, error) {
	outRels, err := a.out(ctx, address)
	if err != nil {
		return nil, err
	}

	var candidates []step
	for _, rel := range outRels {
		candidates = append(candidates, step{edge: rel, next: rel.ToAddress})
	}

	if both {
		inRels, err := a.in(ctx, address)
		if err != nil {
			return nil, err
		}
		for _, rel := range inRels {
			candidates = append(candidates, step{edge: rel, next: rel.FromAddress})
		}
	}

	if keep == nil {
		return candidates, nil
	}

	filtered := candidates[:0]
	for _, c := range candidates {
		if keep(c.edge) {
			filtered = append(filtered, c)
		}
	}
	return filtered, nil
}

// volumeFloor keeps edges whose total volume is at least floor. A nil
// or zero floor keeps everything.
func volumeFloor(floor *big.Int) func(*models.Relationship) bool {
	if floor == nil || floor.Sign() == 0 {
		return nil
	}
	return func(rel *models.Relationship) bool {
		vol, _ := models.ParseAmount(rel.TotalVolume)
		return vol.Cmp(floor) >= 0
	}
}

// activeSince keeps edges whose last transfer is at or after cutoff
func activeSince(cutoff time.Time) func(*models.Relationship) bool {
	return func(rel *models.Relationship) bool {
		return !rel.LastTransferTime.Before(cutoff)
	}
}

// validateTraversalDepth enforces the expansion ceiling before any
// store access.
func validateTraversalDepth(depth int) error {
	if depth < 1 || depth > MaxTraversalDepth {
		return errors.NewDepthError(depth, 1, MaxTraversalDepth)
	}
	return nil
}

// parseMinVolume validates an optional decimal-string volume floor
func parseMinVolume(minVolume string) (*big.Int, error) {
	if minVolume == "" {
		return new(big.Int), nil
	}
	v, ok := models.ParseAmount(minVolume)
	if !ok {
		return nil, errors.NewInvalidParameterError("minVolume", "must be a non-negative decimal integer")
	}
	return v, nil
}

// GetDirectConnections returns the one-hop neighborhood of address in
// both directions, annotated with the persisted relationship score and
// the neighbor's risk and type, ordered by descending volume and capped
// at limit. An unknown address yields an empty result. A failed
// per-neighbor enrichment degrades that neighbor instead of failing the
// call.
func (s *TraversalService) GetDirectConnections(ctx context.Context, address string, limit int) ([]DirectConnection, error) {
	started := time.Now()
	logger := logging.FromContext(ctx).WithField("address", address)

	if limit <= 0 {
		limit = s.connectionLimit
	}

	outgoing, err := s.edges.ListOutgoing(ctx, address)
	if err != nil {
		s.metrics.ObserveOperation("direct_connections", "error", started)
		return nil, err
	}
	incoming, err := s.edges.ListIncoming(ctx, address)
	if err != nil {
		s.metrics.ObserveOperation("direct_connections", "error", started)
		return nil, err
	}

	connections := make([]DirectConnection, 0, len(outgoing)+len(incoming))
	for _, rel := range outgoing {
		connections = append(connections, s.annotateConnection(ctx, logger, rel, rel.ToAddress, types.DirectionOutgoing))
	}
	for _, rel := range incoming {
		connections = append(connections, s.annotateConnection(ctx, logger, rel, rel.FromAddress, types.DirectionIncoming))
	}

	sort.Slice(connections, func(i, j int) bool {
		if c := models.CompareAmounts(connections[i].TotalVolume, connections[j].TotalVolume); c != 0 {
			return c > 0
		}
		return connections[i].Address < connections[j].Address
	})
	if len(connections) > limit {
		connections = connections[:limit]
	}

	logger.WithField("connections", len(connections)).Debug("direct connections resolved")
	s.metrics.ObserveOperation("direct_connections", "ok", started)
	return connections, nil
}

// annotateConnection enriches one edge into a DirectConnection. Lookup
// failures degrade the neighbor to zero risk and unknown type.
func (s *TraversalService) annotateConnection(ctx context.Context, logger *logging.Logger, rel *models.Relationship, neighbor string, dir types.Direction) DirectConnection {
	conn := DirectConnection{
		Address:           neighbor,
		Direction:         dir,
		TotalVolume:       rel.TotalVolume,
		TransferCount:     rel.TransferCount,
		FirstTransferTime: rel.FirstTransferTime,
		LastTransferTime:  rel.LastTransferTime,
		NodeType:          types.NodeTypeUnknown,
	}

	acc, err := s.nodes.GetAccount(ctx, neighbor)
	switch {
	case err != nil:
		logger.WithError(err).WithField("neighbor", neighbor).Warn("neighbor enrichment degraded")
	case acc != nil:
		conn.RiskScore = acc.RiskScore
		conn.NodeType = acc.NodeType
		conn.IdentityDisplay = acc.IdentityDisplay
	}

	if s.scores != nil {
		score, err := s.scores.GetScore(ctx, rel.FromAddress, rel.ToAddress)
		switch {
		case err != nil:
			logger.WithError(err).WithField("neighbor", neighbor).Warn("relationship score lookup degraded")
		case score != nil:
			conn.RelationshipScore = score.TotalScore
		}
	}

	return conn
}

// reach tracks the best observation of one address across all branches
type reach struct {
	hops       int
	bottleneck *big.Int
}

// GetMultiHopConnections expands the neighborhood of address up to
// depth hops in both directions, skipping edges below minVolume. Each
// reached address is reported once, with the minimum hop count at which
// any branch reached it and the best bottleneck volume among those
// branches. Results sort by (hops ascending, bottleneck descending) and
// are capped at limit.
func (s *TraversalService) GetMultiHopConnections(ctx context.Context, address string, depth int, minVolume string, limit int) ([]MultiHopConnection, error) {
	started := time.Now()

	if err := validateTraversalDepth(depth); err != nil {
		s.metrics.ObserveOperation("multi_hop", "invalid", started)
		return nil, err
	}
	floor, err := parseMinVolume(minVolume)
	if err != nil {
		s.metrics.ObserveOperation("multi_hop", "invalid", started)
		return nil, err
	}
	if limit <= 0 {
		limit = s.expandLimit
	}

	reached := make(map[string]*reach)
	adj := newAdjacency(s.edges)
	keep := volumeFloor(floor)
	onPath := map[string]bool{address: true}

	var walk func(current string, hops int, bottleneck *big.Int) error
	walk = func(current string, hops int, bottleneck *big.Int) error {
		if hops == depth {
			return nil
		}
		candidates, err := adj.steps(ctx, current, true, keep)
		if err != nil {
			return err
		}
		for _, c := range candidates {
			if onPath[c.next] {
				continue
			}
			vol, _ := models.ParseAmount(c.edge.TotalVolume)
			branch := vol
			if bottleneck != nil && bottleneck.Cmp(vol) < 0 {
				branch = bottleneck
			}

			if best, ok := reached[c.next]; !ok {
				reached[c.next] = &reach{hops: hops + 1, bottleneck: branch}
			} else {
				if hops+1 < best.hops {
					best.hops = hops + 1
				}
				if branch.Cmp(best.bottleneck) > 0 {
					best.bottleneck = branch
				}
			}

			onPath[c.next] = true
			err := walk(c.next, hops+1, branch)
			delete(onPath, c.next)
			if err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(address, 0, nil); err != nil {
		s.metrics.ObserveOperation("multi_hop", "error", started)
		return nil, err
	}

	connections := make([]MultiHopConnection, 0, len(reached))
	for addr, r := range reached {
		connections = append(connections, MultiHopConnection{
			Address:          addr,
			HopCount:         r.hops,
			BottleneckVolume: r.bottleneck.String(),
		})
	}
	sort.Slice(connections, func(i, j int) bool {
		if connections[i].HopCount != connections[j].HopCount {
			return connections[i].HopCount < connections[j].HopCount
		}
		if c := models.CompareAmounts(connections[i].BottleneckVolume, connections[j].BottleneckVolume); c != 0 {
			return c > 0
		}
		return connections[i].Address < connections[j].Address
	})
	if len(connections) > limit {
		connections = connections[:limit]
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"address": address,
		"depth":   depth,
		"reached": len(connections),
	}).Debug("multi-hop expansion complete")
	s.metrics.ObserveOperation("multi_hop", "ok", started)
	return connections, nil
}

// ExtractSubgraph expands up to depth hops around address and returns
// the induced subgraph: surviving nodes plus every stored edge among
// them. Filters restrict nodes by type and risk range; the center is
// always kept.
func (s *TraversalService) ExtractSubgraph(ctx context.Context, address string, depth int, filters *SubgraphFilters) (*Subgraph, error) {
	started := time.Now()
	logger := logging.FromContext(ctx).WithField("address", address)

	if err := validateTraversalDepth(depth); err != nil {
		s.metrics.ObserveOperation("extract_subgraph", "invalid", started)
		return nil, err
	}

	expanded, err := s.GetMultiHopConnections(ctx, address, depth, "", 0)
	if err != nil {
		s.metrics.ObserveOperation("extract_subgraph", "error", started)
		return nil, err
	}

	nodes := []SubgraphNode{s.subgraphNode(ctx, logger, address, 0)}
	for _, conn := range expanded {
		node := s.subgraphNode(ctx, logger, conn.Address, conn.HopCount)
		if keepNode(node, filters) {
			nodes = append(nodes, node)
		}
	}

	addresses := make([]string, len(nodes))
	for i, n := range nodes {
		addresses[i] = n.Address
	}
	among, err := s.edges.ListAmong(ctx, addresses)
	if err != nil {
		s.metrics.ObserveOperation("extract_subgraph", "error", started)
		return nil, err
	}

	edges := make([]models.Relationship, len(among))
	for i, rel := range among {
		edges[i] = *rel
	}

	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].HopCount != nodes[j].HopCount {
			return nodes[i].HopCount < nodes[j].HopCount
		}
		return nodes[i].Address < nodes[j].Address
	})

	logger.WithFields(map[string]interface{}{
		"nodes": len(nodes),
		"edges": len(edges),
	}).Debug("subgraph extracted")
	s.metrics.ObserveOperation("extract_subgraph", "ok", started)
	return &Subgraph{Center: address, Nodes: nodes, Edges: edges}, nil
}

func (s *TraversalService) subgraphNode(ctx context.Context, logger *logging.Logger, address string, hops int) SubgraphNode {
	node := SubgraphNode{
		Address:  address,
		HopCount: hops,
		NodeType: types.NodeTypeUnknown,
	}
	acc, err := s.nodes.GetAccount(ctx, address)
	switch {
	case err != nil:
		logger.WithError(err).WithField("node", address).Warn("subgraph node enrichment degraded")
	case acc != nil:
		node.RiskScore = acc.RiskScore
		node.NodeType = acc.NodeType
		node.IdentityDisplay = acc.IdentityDisplay
	}
	return node
}

func keepNode(node SubgraphNode, filters *SubgraphFilters) bool {
	if filters == nil {
		return true
	}
	if filters.NodeType != nil && node.NodeType != *filters.NodeType {
		return false
	}
	if filters.MinRiskScore != nil && node.RiskScore < *filters.MinRiskScore {
		return false
	}
	if filters.MaxRiskScore != nil && node.RiskScore > *filters.MaxRiskScore {
		return false
	}
	return true
}

// FindShortestPath returns the hop-minimal route from one address to
// another along the flow direction, breaking hop ties by the larger
// bottleneck volume. A direct edge always wins. No route within
// maxDepth yields (nil, nil).
func (s *TraversalService) FindShortestPath(ctx context.Context, from, to string, maxDepth int) (*PathResult, error) {
	started := time.Now()

	if err := validateTraversalDepth(maxDepth); err != nil {
		s.metrics.ObserveOperation("shortest_path", "invalid", started)
		return nil, err
	}
	if from == to {
		s.metrics.ObserveOperation("shortest_path", "invalid", started)
		return nil, errors.NewInvalidParameterError("to", "must differ from the origin address")
	}

	// Direct edge shortcut
	direct, err := s.edges.GetRelationship(ctx, from, to)
	if err != nil {
		s.metrics.ObserveOperation("shortest_path", "error", started)
		return nil, err
	}
	if direct != nil {
		s.metrics.ObserveOperation("shortest_path", "ok", started)
		return pathResult([]string{from, to}, []models.Relationship{*direct}), nil
	}

	adj := newAdjacency(s.edges)
	var best *PathResult
	onPath := map[string]bool{from: true}
	pathEdges := make([]models.Relationship, 0, maxDepth)
	pathAddrs := []string{from}

	var walk func(current string, hops int) error
	walk = func(current string, hops int) error {
		if hops == maxDepth {
			return nil
		}
		// A branch already at the best hop count cannot improve on it
		if best != nil && hops+1 > best.Hops {
			return nil
		}
		candidates, err := adj.steps(ctx, current, false, nil)
		if err != nil {
			return err
		}
		for _, c := range candidates {
			if onPath[c.next] {
				continue
			}
			if c.next == to {
				found := pathResult(
					append(append([]string{}, pathAddrs...), to),
					append(append([]models.Relationship{}, pathEdges...), *c.edge),
				)
				if better(found, best) {
					best = found
				}
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
		s.metrics.ObserveOperation("shortest_path", "error", started)
		return nil, err
	}

	s.metrics.ObserveOperation("shortest_path", "ok", started)
	return best, nil
}

func pathResult(addresses []string, edges []models.Relationship) *PathResult {
	p := models.Path{Addresses: addresses, Edges: edges}
	return &PathResult{
		Path:             p,
		Hops:             p.Hops(),
		BottleneckVolume: p.Bottleneck(),
	}
}

// better prefers fewer hops, then the larger bottleneck volume
func better(candidate, incumbent *PathResult) bool {
	if incumbent == nil {
		return true
	}
	if candidate.Hops != incumbent.Hops {
		return candidate.Hops < incumbent.Hops
	}
	return models.CompareAmounts(candidate.BottleneckVolume, incumbent.BottleneckVolume) > 0
}

// DetectCircularFlows enumerates value cycles that leave address and
// return to it within maxDepth hops, skipping edges below minVolume. A
// branch becomes circular and terminal the instant it re-reaches the
// origin, so the origin appears exactly twice in every result. Shorter,
// higher-volume loops sort first.
func (s *TraversalService) DetectCircularFlows(ctx context.Context, address string, maxDepth int, minVolume string) ([]CircularFlow, error) {
	started := time.Now()

	if err := validateTraversalDepth(maxDepth); err != nil {
		s.metrics.ObserveOperation("circular_flows", "invalid", started)
		return nil, err
	}
	floor, err := parseMinVolume(minVolume)
	if err != nil {
		s.metrics.ObserveOperation("circular_flows", "invalid", started)
		return nil, err
	}

	adj := newAdjacency(s.edges)
	keep := volumeFloor(floor)
	var flows []CircularFlow
	onPath := map[string]bool{address: true}
	pathEdges := make([]models.Relationship, 0, maxDepth)
	pathAddrs := []string{address}

	var walk func(current string, hops int) error
	walk = func(current string, hops int) error {
		if hops == maxDepth {
			return nil
		}
		candidates, err := adj.steps(ctx, current, false, keep)
		if err != nil {
			return err
		}
		for _, c := range candidates {
			if c.next == address {
				// Self-transfers are not flows through other parties
				if hops == 0 {
					continue
				}
				p := models.Path{
					Addresses: append(append([]string{}, pathAddrs...), address),
					Edges:     append(append([]models.Relationship{}, pathEdges...), *c.edge),
				}
				flows = append(flows, CircularFlow{
					Path:            p,
					PathLength:      p.Hops(),
					MinVolumeInPath: p.Bottleneck(),
				})
				continue
			}
			if onPath[c.next] {
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

	if err := walk(address, 0); err != nil {
		s.metrics.ObserveOperation("circular_flows", "error", started)
		return nil, err
	}

	sort.Slice(flows, func(i, j int) bool {
		if flows[i].PathLength != flows[j].PathLength {
			return flows[i].PathLength < flows[j].PathLength
		}
		if c := models.CompareAmounts(flows[i].MinVolumeInPath, flows[j].MinVolumeInPath); c != 0 {
			return c > 0
		}
		return flows[i].Path.Key() < flows[j].Path.Key()
	})

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"address": address,
		"cycles":  len(flows),
	}).Debug("circular flow detection complete")
	s.metrics.ObserveOperation("circular_flows", "ok", started)
	return flows, nil
}
