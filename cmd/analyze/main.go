// Package main is a one-shot analysis CLI over the transfer graph:
// pick an operation, point it at addresses, get JSON back.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/graph-scanner/internal/config"
	"github.com/graph-scanner/internal/errors"
	"github.com/graph-scanner/internal/logging"
	"github.com/graph-scanner/internal/models"
	"github.com/graph-scanner/internal/service"
	"github.com/graph-scanner/internal/storage"
	"github.com/graph-scanner/internal/types"
)

const usage = `Operations:
  direct      -address            direct counterparties with volumes and risk
  multihop    -address -depth     connections reachable within N hops (max 3)
  subgraph    -address -depth     neighborhood subgraph around an address
  shortest    -from -to [-weight] cheapest path (hops, volume, risk, time; max depth 6)
  allpaths    -from -to [-depth]  every simple path up to a depth
  highvalue   -from -to [-min-volume] paths ranked by bottleneck volume
  quickest    -from -to -window   paths active within a recent window
  circular    -address [-depth]   flows that return to their origin
  patterns    -address            run every laundering detector
  dismiss     -id                 mark a detected pattern false positive
  pathrisk    -route              risk profile of an explicit path
  critical    -from -to           nodes most paths depend on
  metrics     -address [-sample]  node metrics snapshot
  score       -from -to           relationship strength score
  suspicious  [-min-score -limit] strongest scored relationships
  accounts    [-node-type -min-risk -max-risk] accounts by type and risk band
  transfers   -from -to [-limit]  raw transfers behind one edge with totals`

type app struct {
	traversal  *service.TraversalService
	pathfinder *service.PathFinderService
	patterns   *service.PatternService
	metrics    *service.MetricsService
	scoring    *service.ScoringService
	edges      *storage.RelationshipRepository
	accounts   *storage.AccountRepository
	detections *storage.PatternRepository
	transfers  *storage.TransferRepository
}

func main() {
	var (
		op        = flag.String("op", "", "Operation to run (see -help)")
		address   = flag.String("address", "", "Focal address")
		from      = flag.String("from", "", "Path origin address")
		to        = flag.String("to", "", "Path destination address")
		depth     = flag.Int("depth", 0, "Traversal or enumeration depth")
		limit     = flag.Int("limit", 0, "Result cap")
		minVolume = flag.String("min-volume", "", "Minimum edge volume (decimal string)")
		weight    = flag.String("weight", "", "Path weight type: hops, volume, risk, time")
		window    = flag.Duration("window", 24*time.Hour, "Recency window for quickest paths")
		sample    = flag.String("sample", "", "Comma-separated sample addresses for approximate metrics")
		route     = flag.String("route", "", "Comma-separated addresses of an explicit path")
		minScore  = flag.Float64("min-score", 70, "Relationship score floor")
		nodeType  = flag.String("node-type", "", "Account node type filter (normal, exchange, mixer, contract, validator)")
		minRisk   = flag.Float64("min-risk", 0, "Account risk score floor")
		maxRisk   = flag.Float64("max-risk", 0, "Account risk score ceiling")
		offset    = flag.Int("offset", 0, "Result offset for paging")
		id        = flag.String("id", "", "Pattern ID to dismiss")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: analyze -op <operation> [flags]\n\n%s\n\nFlags:\n", usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *op == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()
	logger.SetOutput(os.Stderr) // stdout is reserved for the JSON result
	ctx := logging.WithLogger(context.Background(), logger)

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to ClickHouse")
	}
	defer func() {
		_ = clickhouse.Close() // nolint:errcheck // cleanup in defer
	}()

	// Redis is optional for one-shot runs; metrics reads fall back to
	// Postgres when the snapshot cache is absent.
	var cache *storage.CacheService
	if redis, err := storage.NewRedisCache(&cfg.Database.Redis); err != nil {
		logger.WithError(err).Warn("Redis unavailable, running without snapshot cache")
	} else {
		defer func() {
			_ = redis.Close() // nolint:errcheck // cleanup in defer
		}()
		cache = storage.NewCacheService(redis, cfg.Cache.TTL)
	}

	accounts := storage.NewAccountRepository(postgres)
	edges := storage.NewRelationshipRepository(postgres)
	transfers := storage.NewTransferRepository(clickhouse)
	patternStore := storage.NewPatternRepository(postgres)
	nodeMetrics := storage.NewMetricsRepository(postgres)
	scores := storage.NewScoreRepository(postgres)

	a := &app{edges: edges, accounts: accounts, detections: patternStore, transfers: transfers}
	a.traversal = service.NewTraversalService(edges, accounts, scores, nil)
	a.pathfinder = service.NewPathFinderService(edges, accounts, scores, nodeMetrics, nil)
	a.patterns = service.NewPatternService(transfers, edges, accounts, patternStore, a.traversal, nil)
	if cache != nil {
		a.metrics = service.NewMetricsService(edges, accounts, nodeMetrics, patternStore, cache, nil)
	} else {
		a.metrics = service.NewMetricsService(edges, accounts, nodeMetrics, patternStore, nil, nil)
	}
	a.scoring = service.NewScoringService(edges, edges, accounts, accounts, transfers, nodeMetrics, scores, nil)

	a.traversal.SetResultLimits(cfg.Engine.DefaultConnectionLimit, cfg.Engine.DefaultExpandLimit)
	a.patterns.SetTransferScanLimit(cfg.Engine.TransferScanLimit)
	a.scoring.SetTransferScanLimit(cfg.Engine.TransferScanLimit)

	result, err := a.run(ctx, *op, params{
		address:   *address,
		from:      *from,
		to:        *to,
		depth:     *depth,
		limit:     *limit,
		minVolume: *minVolume,
		weight:    *weight,
		window:    *window,
		sample:    splitList(*sample),
		route:     splitList(*route),
		minScore:  *minScore,
		nodeType:  *nodeType,
		minRisk:   *minRisk,
		maxRisk:   *maxRisk,
		offset:    *offset,
		id:        *id,
	})
	if err != nil {
		logger.WithError(err).Error("Operation failed")
		printJSON(errors.Categorize(err).ToServiceError())
		if errors.IsValidation(err) {
			os.Exit(2) // usage-style failures exit 2
		}
		os.Exit(1)
	}
	printJSON(result)
}

type params struct {
	address   string
	from, to  string
	depth     int
	limit     int
	minVolume string
	weight    string
	window    time.Duration
	sample    []string
	route     []string
	minScore  float64
	nodeType  string
	minRisk   float64
	maxRisk   float64
	offset    int
	id        string
}

func (a *app) run(ctx context.Context, op string, p params) (interface{}, error) {
	switch op {
	case "direct":
		return a.traversal.GetDirectConnections(ctx, p.address, p.limit)
	case "multihop":
		depth := p.depth
		if depth == 0 {
			depth = service.MaxTraversalDepth
		}
		return a.traversal.GetMultiHopConnections(ctx, p.address, depth, p.minVolume, p.limit)
	case "subgraph":
		depth := p.depth
		if depth == 0 {
			depth = service.MaxTraversalDepth
		}
		return a.traversal.ExtractSubgraph(ctx, p.address, depth, nil)
	case "shortest":
		return a.pathfinder.FindShortestPath(ctx, p.from, p.to, service.PathOptions{
			WeightType: types.WeightType(p.weight),
			MaxDepth:   p.depth,
		})
	case "allpaths":
		return a.pathfinder.FindAllPaths(ctx, p.from, p.to, p.depth, p.limit)
	case "highvalue":
		return a.pathfinder.FindHighValuePaths(ctx, p.from, p.to, p.minVolume, p.depth)
	case "quickest":
		return a.pathfinder.FindQuickestPaths(ctx, p.from, p.to, p.window)
	case "circular":
		depth := p.depth
		if depth == 0 {
			depth = service.MaxTraversalDepth
		}
		return a.traversal.DetectCircularFlows(ctx, p.address, depth, p.minVolume)
	case "patterns":
		return a.patterns.DetectAllPatterns(ctx, p.address)
	case "dismiss":
		if p.id == "" {
			return nil, errors.NewInvalidParameterError("id", "dismiss requires a pattern id")
		}
		if err := a.detections.MarkFalsePositive(ctx, p.id); err != nil {
			return nil, err
		}
		return map[string]string{"dismissed": p.id}, nil
	case "pathrisk":
		path, err := a.assemblePath(ctx, p.route)
		if err != nil {
			return nil, err
		}
		return a.pathfinder.AnalyzePathRisk(ctx, *path)
	case "critical":
		return a.pathfinder.FindCriticalNodes(ctx, p.from, p.to)
	case "metrics":
		return a.metrics.ComputeNodeMetrics(ctx, p.address, p.sample)
	case "score":
		score, err := a.scoring.ScoreRelationship(ctx, p.from, p.to)
		if err != nil {
			return nil, err
		}
		if score == nil {
			return nil, errors.NewNotFoundError("relationship", p.from+" -> "+p.to)
		}
		return score, nil
	case "suspicious":
		return a.scoring.FindSuspiciousRelationships(ctx, p.minScore, p.limit)
	case "accounts":
		filters := &storage.AccountFilters{Limit: p.limit, Offset: p.offset}
		if filters.Limit == 0 {
			filters.Limit = 50
		}
		if p.nodeType != "" {
			nt := types.NodeType(p.nodeType)
			filters.NodeType = &nt
		}
		if p.minRisk > 0 {
			filters.MinRiskScore = &p.minRisk
		}
		if p.maxRisk > 0 {
			filters.MaxRiskScore = &p.maxRisk
		}
		return a.accounts.ListAccounts(ctx, filters)
	case "transfers":
		if p.from == "" || p.to == "" {
			return nil, errors.NewInvalidParameterError("from/to", "transfers requires both endpoints")
		}
		list, err := a.transfers.ListBetween(ctx, p.from, p.to, p.limit)
		if err != nil {
			return nil, err
		}
		total, count, err := a.transfers.SumBetween(ctx, p.from, p.to)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"transfers":     list,
			"totalValue":    total,
			"transferCount": count,
		}, nil
	default:
		return nil, errors.NewInvalidParameterError("op", fmt.Sprintf("unknown operation %q", op))
	}
}

// assemblePath resolves a comma-separated address route into a path
// with its edges, failing when any consecutive pair has no edge.
func (a *app) assemblePath(ctx context.Context, route []string) (*models.Path, error) {
	if len(route) < 2 {
		return nil, errors.NewInvalidParameterError("route", "needs at least two comma-separated addresses")
	}

	path := &models.Path{Addresses: route}
	for i := 0; i+1 < len(route); i++ {
		rel, err := a.edges.GetRelationship(ctx, route[i], route[i+1])
		if err != nil {
			return nil, err
		}
		if rel == nil {
			return nil, errors.NewNotFoundError("edge", route[i]+" -> "+route[i+1])
		}
		path.Edges = append(path.Edges, *rel)
	}
	return path, nil
}

func splitList(list string) []string {
	if list == "" {
		return nil
	}
	var items []string
	for _, part := range strings.Split(list, ",") {
		if item := strings.TrimSpace(part); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode output: %v\n", err)
		os.Exit(1)
	}
}
