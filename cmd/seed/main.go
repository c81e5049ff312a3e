// Package main seeds the stores with a deterministic synthetic
// transfer graph, including laundering motifs the pattern detectors
// are built to find.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/graph-scanner/internal/config"
	"github.com/graph-scanner/internal/logging"
	"github.com/graph-scanner/internal/seed"
	"github.com/graph-scanner/internal/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	var (
		accounts  = flag.Int("accounts", cfg.Seed.Accounts, "Number of accounts to generate")
		transfers = flag.Int("transfers", cfg.Seed.Transfers, "Number of background transfers to generate")
		randSeed  = flag.Int64("seed", cfg.Seed.RandSeed, "RNG seed; the same seed reproduces the same dataset")
		days      = flag.Int("days", 90, "Time span of the dataset in days")
		dryRun    = flag.Bool("dry-run", false, "Generate and summarize without writing")
	)
	flag.Parse()

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()
	logger.SetOutput(os.Stderr) // stdout is reserved for the JSON result
	ctx := logging.WithLogger(context.Background(), logger)

	gen := seed.NewGenerator(seed.Config{
		Seed:      *randSeed,
		Accounts:  *accounts,
		Transfers: *transfers,
		Span:      time.Duration(*days) * 24 * time.Hour,
	})
	dataset := gen.Generate()

	logger.WithFields(map[string]interface{}{
		"accounts":      len(dataset.Accounts),
		"relationships": len(dataset.Relationships),
		"transfers":     len(dataset.Transfers),
		"seed":          *randSeed,
	}).Info("dataset generated")

	if *dryRun {
		printJSON(map[string]interface{}{
			"accounts":      len(dataset.Accounts),
			"relationships": len(dataset.Relationships),
			"transfers":     len(dataset.Transfers),
		})
		return
	}

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

	transferRepo := storage.NewTransferRepository(clickhouse)
	writer := seed.NewWriter(
		storage.NewAccountRepository(postgres),
		storage.NewRelationshipRepository(postgres),
		transferRepo,
		seed.WriterConfig{
			BatchSize:     cfg.Seed.BatchSize,
			BatchesPerSec: float64(cfg.Seed.WritesPerS) / float64(cfg.Seed.BatchSize),
		},
	)

	summary, err := writer.Write(ctx, dataset)
	if err != nil {
		logger.WithError(err).Fatal("Failed to write dataset")
	}

	if stored, err := transferRepo.CountTransfers(ctx); err != nil {
		logger.WithError(err).Warn("could not read back stored transfer count")
	} else {
		logger.WithField("storedTransfers", stored).Info("transfer store verified")
	}
	printJSON(summary)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode output: %v\n", err)
		os.Exit(1)
	}
}
