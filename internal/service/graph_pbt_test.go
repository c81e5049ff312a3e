package service

import (
	"context"
	"math/rand"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/graph-scanner/internal/models"
	"github.com/graph-scanner/internal/storage"
	"github.com/graph-scanner/internal/types"
)

// randomGraph builds a reproducible ten-node graph where each ordered
// pair carries an edge with probability 0.3, plus random transfer
// traffic on n0.
func randomGraph(seed int64) *storage.MemoryStore {
	rng := rand.New(rand.NewSource(seed))
	store := storage.NewMemoryStore()
	now := time.Now().UTC()

	var rels []*models.Relationship
	for i := 0; i < 10; i++ {
		for j := 0; j < 10; j++ {
			if i == j || rng.Float64() >= 0.3 {
				continue
			}
			last := now.Add(-time.Duration(rng.Intn(24)) * time.Hour)
			rels = append(rels, &models.Relationship{
				FromAddress:       pbtNode(i),
				ToAddress:         pbtNode(j),
				TotalVolume:       strconv.Itoa(1 + rng.Intn(1000)),
				TransferCount:     int64(1 + rng.Intn(5)),
				FirstTransferTime: last.Add(-time.Duration(1+rng.Intn(720)) * time.Hour),
				LastTransferTime:  last,
			})
		}
	}
	_ = store.BatchUpsertRelationships(context.Background(), rels)

	var transfers []*models.Transfer
	for k := 0; k < rng.Intn(30); k++ {
		other := pbtNode(1 + rng.Intn(9))
		from, to := "n0", other
		if rng.Float64() < 0.5 {
			from, to = other, "n0"
		}
		value := strconv.Itoa(1+rng.Intn(1000000)) + strings.Repeat("0", rng.Intn(13))
		transfers = append(transfers, &models.Transfer{
			Hash:        "h" + strconv.Itoa(k),
			FromAddress: from,
			ToAddress:   to,
			Value:       value,
			Timestamp:   now.Add(-time.Duration(rng.Intn(30*24*3600)) * time.Second),
			Success:     rng.Float64() < 0.9,
			Module:      "balances",
		})
	}
	_ = store.BatchInsertTransfers(context.Background(), transfers)
	return store
}

func pbtNode(i int) string { return "n" + strconv.Itoa(i) }

func simpleRoute(p models.Path) bool {
	if len(p.Edges) != len(p.Addresses)-1 {
		return false
	}
	seen := make(map[string]bool, len(p.Addresses))
	for i, addr := range p.Addresses {
		if seen[addr] {
			return false
		}
		seen[addr] = true
		if i < len(p.Edges) {
			if p.Edges[i].FromAddress != addr || p.Edges[i].ToAddress != p.Addresses[i+1] {
				return false
			}
		}
	}
	return true
}

func TestPathEnumerationProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("enumerated routes are simple, connected, and bounded", prop.ForAll(
		func(seed int64) bool {
			svc := newPathFinder(randomGraph(seed))
			paths, err := svc.FindAllPaths(context.Background(), "n0", "n5", 4, 100)
			if err != nil {
				return false
			}

			prevHops := 0
			for _, p := range paths {
				if p.Hops > 4 || p.Hops != p.Path.Hops() {
					return false
				}
				if p.Hops < prevHops {
					return false
				}
				prevHops = p.Hops
				if p.Path.Addresses[0] != "n0" || p.Path.Addresses[len(p.Path.Addresses)-1] != "n5" {
					return false
				}
				if !simpleRoute(p.Path) {
					return false
				}
				if p.BottleneckVolume != p.Path.Bottleneck() {
					return false
				}
			}
			return true
		},
		gen.Int64(),
	))

	properties.TestingRun(t)
}

func TestCircularFlowProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("cycles start and end at the origin and never revisit", prop.ForAll(
		func(seed int64) bool {
			store := randomGraph(seed)
			svc := NewTraversalService(store, store, store, nil)
			flows, err := svc.DetectCircularFlows(context.Background(), "n0", 3, "0")
			if err != nil {
				return false
			}

			for _, flow := range flows {
				addrs := flow.Path.Addresses
				if len(addrs) < 3 {
					return false
				}
				if addrs[0] != "n0" || addrs[len(addrs)-1] != "n0" {
					return false
				}
				counts := make(map[string]int, len(addrs))
				for _, a := range addrs {
					counts[a]++
				}
				if counts["n0"] != 2 {
					return false
				}
				for a, n := range counts {
					if a != "n0" && n != 1 {
						return false
					}
				}
				if flow.PathLength != len(flow.Path.Edges) {
					return false
				}
			}
			return true
		},
		gen.Int64(),
	))

	properties.TestingRun(t)
}

func TestDetectorProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("every detector result stays within bounds", prop.ForAll(
		func(seed int64) bool {
			store := randomGraph(seed)
			svc := newPatternService(store)
			results, err := svc.DetectAllPatterns(context.Background(), "n0")
			if err != nil {
				return false
			}
			if len(results) != 7 {
				return false
			}

			for _, r := range results {
				if !(r.Confidence >= 0 && r.Confidence <= 1) {
					return false
				}
				switch r.Severity {
				case types.SeverityLow, types.SeverityMedium, types.SeverityHigh:
				default:
					return false
				}
			}
			return true
		},
		gen.Int64(),
	))

	properties.TestingRun(t)
}
