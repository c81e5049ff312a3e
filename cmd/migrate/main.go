// Package main applies database migrations for the graph scanner:
// versioned golang-migrate files for Postgres and plain SQL files for
// ClickHouse.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/graph-scanner/internal/config"
	"github.com/graph-scanner/internal/storage"
)

func main() {
	var (
		direction = flag.String("direction", "up", "Migration direction: up, down, version")
		dbType    = flag.String("db", "all", "Target database: postgres, clickhouse, all")
		pgPath    = flag.String("postgres-path", "migrations/postgres", "Postgres migrations directory")
		chPath    = flag.String("clickhouse-path", "migrations/clickhouse", "ClickHouse migrations directory")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *dbType == "postgres" || *dbType == "all" {
		if err := runPostgres(cfg, *direction, *pgPath); err != nil {
			log.Fatalf("Postgres migration failed: %v", err)
		}
	}
	if *dbType == "clickhouse" || *dbType == "all" {
		if err := runClickHouse(cfg, *direction, *chPath); err != nil {
			log.Fatalf("ClickHouse migration failed: %v", err)
		}
	}
}

func runPostgres(cfg *config.Config, direction, path string) error {
	databaseURL := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.Database.Postgres.User,
		cfg.Database.Postgres.Password,
		cfg.Database.Postgres.Host,
		cfg.Database.Postgres.Port,
		cfg.Database.Postgres.Database,
	)

	switch direction {
	case "up":
		log.Println("Applying Postgres migrations...")
		if err := storage.RunMigrations(databaseURL, path); err != nil {
			return err
		}
		log.Println("Postgres migrations applied")

	case "down":
		log.Println("Rolling back last Postgres migration...")
		if err := storage.RollbackMigrations(databaseURL, path); err != nil {
			return err
		}
		log.Println("Postgres rollback complete")

	case "version":
		version, dirty, err := storage.MigrationVersion(databaseURL, path)
		if err != nil {
			return err
		}
		log.Printf("Postgres migration version: %d (dirty: %v)", version, dirty)

	default:
		return fmt.Errorf("unknown direction: %s", direction)
	}
	return nil
}

func runClickHouse(cfg *config.Config, direction, path string) error {
	// ClickHouse migration files are idempotent and apply-only
	if direction != "up" {
		log.Printf("ClickHouse migrations only support up, skipping %q", direction)
		return nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("migrations directory not found: %s", path)
	}

	db, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		return fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing ClickHouse connection: %v", err)
		}
	}()

	log.Println("Applying ClickHouse migrations...")
	if err := storage.RunClickHouseMigrations(context.Background(), db, path); err != nil {
		return err
	}
	log.Println("ClickHouse migrations applied")
	return nil
}
