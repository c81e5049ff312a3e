// Package main runs the metrics refresh worker: recomputes node
// metrics snapshots, rescans patterns, and rescores relationships for
// all or selected addresses.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/graph-scanner/internal/config"
	"github.com/graph-scanner/internal/logging"
	"github.com/graph-scanner/internal/observability"
	"github.com/graph-scanner/internal/service"
	"github.com/graph-scanner/internal/storage"
	"github.com/graph-scanner/internal/worker"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	var (
		addressList = flag.String("addresses", "", "Comma-separated addresses to refresh; empty refreshes every known address")
		concurrency = flag.Int("concurrency", cfg.Worker.Concurrency, "Parallel per-address refreshes")
		interval    = flag.Duration("interval", 0, "Periodic mode interval; zero runs once and exits")
		rescore     = flag.Bool("rescore", true, "Also rescore each address's outgoing relationships")
		riskOrder   = flag.Bool("risk-order", true, "Refresh riskiest addresses first")
		metricsAddr = flag.String("metrics-addr", ":9090", "Prometheus listen address in periodic mode; empty disables")
	)
	flag.Parse()

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()
	logger.SetOutput(os.Stderr) // stdout is reserved for the run summary
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

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer func() {
		_ = redis.Close() // nolint:errcheck // cleanup in defer
	}()

	accounts := storage.NewAccountRepository(postgres)
	edges := storage.NewRelationshipRepository(postgres)
	transfers := storage.NewTransferRepository(clickhouse)
	patterns := storage.NewPatternRepository(postgres)
	nodeMetrics := storage.NewMetricsRepository(postgres)
	scores := storage.NewScoreRepository(postgres)
	cache := storage.NewCacheService(redis, cfg.Cache.TTL)

	telemetry := observability.NewMetrics(prometheus.DefaultRegisterer)

	metricsService := service.NewMetricsService(edges, accounts, nodeMetrics, patterns, cache, telemetry)
	traversal := service.NewTraversalService(edges, accounts, scores, telemetry)
	traversal.SetResultLimits(cfg.Engine.DefaultConnectionLimit, cfg.Engine.DefaultExpandLimit)
	patternService := service.NewPatternService(transfers, edges, accounts, patterns, traversal, telemetry)
	patternService.SetTransferScanLimit(cfg.Engine.TransferScanLimit)

	var scorer *service.ScoringService
	if *rescore {
		scorer = service.NewScoringService(edges, edges, accounts, accounts, transfers, nodeMetrics, scores, telemetry)
		scorer.SetTransferScanLimit(cfg.Engine.TransferScanLimit)
	}

	var queue *worker.RefreshQueue
	if *riskOrder {
		queue = worker.NewRefreshQueue(accounts)
	}

	w, err := worker.NewRefreshWorker(&worker.Config{
		NodeMetrics: metricsService,
		Patterns:    patternService,
		Scorer:      scorer,
		Addresses:   accounts,
		Edges:       edges,
		Queue:       queue,
		Telemetry:   telemetry,
		Concurrency: *concurrency,
		PageSize:    cfg.Worker.BatchSize,
		Interval:    *interval,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create refresh worker")
	}

	addresses := splitAddresses(*addressList)

	if *interval <= 0 {
		summary, err := w.Run(ctx, addresses)
		if err != nil {
			logger.WithError(err).Fatal("Refresh run failed")
		}
		printJSON(summary)
		return
	}

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler())
		srv := &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("Metrics listener failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx) // nolint:errcheck // best effort on exit
		}()
	}

	if err := w.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start refresh worker")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.WithField("signal", sig.String()).Info("Shutting down")

	stopCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := w.Stop(stopCtx); err != nil {
		logger.WithError(err).Warn("Worker stop timed out")
	}
}

func splitAddresses(list string) []string {
	if list == "" {
		return nil
	}
	var addresses []string
	for _, part := range strings.Split(list, ",") {
		if addr := strings.TrimSpace(part); addr != "" {
			addresses = append(addresses, addr)
		}
	}
	return addresses
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode output: %v\n", err)
		os.Exit(1)
	}
}
