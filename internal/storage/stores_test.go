package storage

import (
	"github.com/graph-scanner/internal/service"
	"github.com/graph-scanner/internal/worker"
)

// Compile-time checks: the Postgres/ClickHouse repositories, the cache
// service, and the in-memory store satisfy the engine's store
// interfaces. They live in a test file so the storage package never
// imports the service layer in regular builds.
var (
	_ service.EdgeStore      = (*RelationshipRepository)(nil)
	_ service.EdgeStatsStore = (*RelationshipRepository)(nil)
	_ service.NodeStore      = (*AccountRepository)(nil)
	_ service.NodeStatsStore = (*AccountRepository)(nil)
	_ service.TransferStore  = (*TransferRepository)(nil)
	_ service.PatternStore   = (*PatternRepository)(nil)
	_ service.MetricsStore   = (*MetricsRepository)(nil)
	_ service.ScoreStore     = (*ScoreRepository)(nil)
	_ service.SnapshotCache  = (*CacheService)(nil)

	_ worker.AddressSource = (*AccountRepository)(nil)
	_ worker.EdgeSource    = (*RelationshipRepository)(nil)
	_ worker.NodeReader    = (*AccountRepository)(nil)

	_ service.EdgeStore      = (*MemoryStore)(nil)
	_ service.EdgeStatsStore = (*MemoryStore)(nil)
	_ service.NodeStore      = (*MemoryStore)(nil)
	_ service.NodeStatsStore = (*MemoryStore)(nil)
	_ service.TransferStore  = (*MemoryStore)(nil)
	_ service.PatternStore   = (*MemoryStore)(nil)
	_ service.MetricsStore   = (*MemoryStore)(nil)
	_ service.ScoreStore     = (*MemoryStore)(nil)
	_ worker.AddressSource   = (*MemoryStore)(nil)
	_ worker.EdgeSource      = (*MemoryStore)(nil)
	_ worker.NodeReader      = (*MemoryStore)(nil)
)
