package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/graph-scanner/internal/models"
	"github.com/graph-scanner/internal/types"
)

// MemoryStore is an in-memory implementation of the engine's store
// interfaces. It backs unit tests and local runs without Postgres,
// ClickHouse, or Redis. All methods copy data on the way in and out so
// callers can never alias internal state.
type MemoryStore struct {
	mu            sync.RWMutex
	accounts      map[string]*models.Account
	relationships map[string]map[string]*models.Relationship // from -> to -> edge
	incoming      map[string]map[string]*models.Relationship // to -> from -> edge
	transfers     []*models.Transfer
	metrics       map[string]*models.NodeMetrics
	patterns      []*models.Pattern
	scores        map[string]*models.RelationshipScore // from|to
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:      make(map[string]*models.Account),
		relationships: make(map[string]map[string]*models.Relationship),
		incoming:      make(map[string]map[string]*models.Relationship),
		metrics:       make(map[string]*models.NodeMetrics),
		scores:        make(map[string]*models.RelationshipScore),
	}
}

func pairKey(from, to string) string {
	return from + "|" + to
}

// GetAccount returns the account for an address, (nil, nil) when absent
func (s *MemoryStore) GetAccount(_ context.Context, address string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[address]
	if !ok {
		return nil, nil
	}
	out := *acc
	return &out, nil
}

// UpsertAccount creates or replaces an account
func (s *MemoryStore) UpsertAccount(_ context.Context, acc *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *acc
	if cp.NodeType == "" {
		cp.NodeType = types.NodeTypeUnknown
	}
	if cp.Balance == "" {
		cp.Balance = "0"
	}
	cp.UpdatedAt = time.Now().UTC()
	s.accounts[cp.Address] = &cp
	return nil
}

// BatchUpsertAccounts upserts several accounts
func (s *MemoryStore) BatchUpsertAccounts(ctx context.Context, accounts []*models.Account) error {
	for _, acc := range accounts {
		if err := s.UpsertAccount(ctx, acc); err != nil {
			return err
		}
	}
	return nil
}

// ListAddresses returns a page of known addresses in address order
func (s *MemoryStore) ListAddresses(_ context.Context, limit, offset int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]string, 0, len(s.accounts))
	for addr := range s.accounts {
		all = append(all, addr)
	}
	sort.Strings(all)

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// CountAccounts returns the number of known accounts
func (s *MemoryStore) CountAccounts(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.accounts)), nil
}

// GetRelationship returns the edge for an ordered pair, (nil, nil) when absent
func (s *MemoryStore) GetRelationship(_ context.Context, from, to string) (*models.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rel, ok := s.relationships[from][to]
	if !ok {
		return nil, nil
	}
	out := *rel
	return &out, nil
}

// ListOutgoing returns all edges leaving an address
func (s *MemoryStore) ListOutgoing(_ context.Context, address string) ([]*models.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rels []*models.Relationship
	for _, rel := range s.relationships[address] {
		cp := *rel
		rels = append(rels, &cp)
	}
	sortRelationships(rels)
	return rels, nil
}

// ListIncoming returns all edges entering an address
func (s *MemoryStore) ListIncoming(_ context.Context, address string) ([]*models.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rels []*models.Relationship
	for _, rel := range s.incoming[address] {
		cp := *rel
		rels = append(rels, &cp)
	}
	sortRelationships(rels)
	return rels, nil
}

// ListAmong returns every edge with both endpoints in the set
func (s *MemoryStore) ListAmong(_ context.Context, addresses []string) ([]*models.Relationship, error) {
	if len(addresses) == 0 {
		return nil, nil
	}

	member := make(map[string]bool, len(addresses))
	for _, addr := range addresses {
		member[addr] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var rels []*models.Relationship
	for from, edges := range s.relationships {
		if !member[from] {
			continue
		}
		for to, rel := range edges {
			if !member[to] {
				continue
			}
			cp := *rel
			rels = append(rels, &cp)
		}
	}
	sortRelationships(rels)
	return rels, nil
}

// sortRelationships orders edges deterministically: volume descending,
// then endpoints. Map iteration order must never leak into results.
func sortRelationships(rels []*models.Relationship) {
	sort.Slice(rels, func(i, j int) bool {
		if c := models.CompareAmounts(rels[i].TotalVolume, rels[j].TotalVolume); c != 0 {
			return c > 0
		}
		if rels[i].FromAddress != rels[j].FromAddress {
			return rels[i].FromAddress < rels[j].FromAddress
		}
		return rels[i].ToAddress < rels[j].ToAddress
	})
}

// UpsertRelationship creates or replaces the edge for an ordered pair
func (s *MemoryStore) UpsertRelationship(_ context.Context, rel *models.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rel
	if cp.TotalVolume == "" {
		cp.TotalVolume = "0"
	}
	cp.UpdatedAt = time.Now().UTC()

	if s.relationships[cp.FromAddress] == nil {
		s.relationships[cp.FromAddress] = make(map[string]*models.Relationship)
	}
	s.relationships[cp.FromAddress][cp.ToAddress] = &cp

	if s.incoming[cp.ToAddress] == nil {
		s.incoming[cp.ToAddress] = make(map[string]*models.Relationship)
	}
	s.incoming[cp.ToAddress][cp.FromAddress] = &cp
	return nil
}

// BatchUpsertRelationships upserts several edges
func (s *MemoryStore) BatchUpsertRelationships(ctx context.Context, rels []*models.Relationship) error {
	for _, rel := range rels {
		if err := s.UpsertRelationship(ctx, rel); err != nil {
			return err
		}
	}
	return nil
}

// CountRelationships returns the total number of edges
func (s *MemoryStore) CountRelationships(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, targets := range s.relationships {
		count += int64(len(targets))
	}
	return count, nil
}

func (s *MemoryStore) countRelationships(match func(*models.Relationship) bool) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, targets := range s.relationships {
		for _, rel := range targets {
			if match(rel) {
				count++
			}
		}
	}
	return count
}

// CountBelowVolume returns how many edges carry less total volume
func (s *MemoryStore) CountBelowVolume(_ context.Context, volume string) (int64, error) {
	return s.countRelationships(func(rel *models.Relationship) bool {
		return models.CompareAmounts(rel.TotalVolume, volume) < 0
	}), nil
}

// CountBelowAvgSize returns how many edges have a smaller average
// transfer size
func (s *MemoryStore) CountBelowAvgSize(_ context.Context, avgSize float64) (int64, error) {
	return s.countRelationships(func(rel *models.Relationship) bool {
		if rel.TransferCount <= 0 {
			return false
		}
		return models.AmountFloat(rel.TotalVolume)/float64(rel.TransferCount) < avgSize
	}), nil
}

// CountBelowTransferCount returns how many edges carry fewer transfers
func (s *MemoryStore) CountBelowTransferCount(_ context.Context, transferCount int64) (int64, error) {
	return s.countRelationships(func(rel *models.Relationship) bool {
		return rel.TransferCount < transferCount
	}), nil
}

// BatchInsertTransfers appends transfers to the store
func (s *MemoryStore) BatchInsertTransfers(_ context.Context, transfers []*models.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tr := range transfers {
		cp := *tr
		s.transfers = append(s.transfers, &cp)
	}
	return nil
}

// listTransfers filters and orders transfers chronologically
func (s *MemoryStore) listTransfers(match func(*models.Transfer) bool, limit int) []*models.Transfer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Transfer
	for _, tr := range s.transfers {
		if match(tr) {
			cp := *tr
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].EventIdx < out[j].EventIdx
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

// ListByAddress returns transfers touching an address in chronological order
func (s *MemoryStore) ListByAddress(_ context.Context, address string, limit int) ([]*models.Transfer, error) {
	return s.listTransfers(func(tr *models.Transfer) bool {
		return tr.Involves(address)
	}, limit), nil
}

// ListBetween returns transfers for an ordered pair in chronological order
func (s *MemoryStore) ListBetween(_ context.Context, from, to string, limit int) ([]*models.Transfer, error) {
	return s.listTransfers(func(tr *models.Transfer) bool {
		return tr.FromAddress == from && tr.ToAddress == to
	}, limit), nil
}

// SumBetween returns the total value and count of transfers for an ordered pair
func (s *MemoryStore) SumBetween(ctx context.Context, from, to string) (string, int64, error) {
	transfers, _ := s.ListBetween(ctx, from, to, 0)
	total := "0"
	for _, tr := range transfers {
		total = models.AddAmounts(total, tr.Value)
	}
	return total, int64(len(transfers)), nil
}

// CountTransfers returns the number of stored transfers
func (s *MemoryStore) CountTransfers(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.transfers)), nil
}

// GetNodeMetrics returns the snapshot for an address, (nil, nil) when absent
func (s *MemoryStore) GetNodeMetrics(_ context.Context, address string) (*models.NodeMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.metrics[address]
	if !ok {
		return nil, nil
	}
	out := *m
	return &out, nil
}

// UpsertNodeMetrics creates or replaces the snapshot for an address
func (s *MemoryStore) UpsertNodeMetrics(_ context.Context, m *models.NodeMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *m
	if cp.NodeType == "" {
		cp.NodeType = types.NodeTypeUnknown
	}
	cp.UpdatedAt = time.Now().UTC()
	s.metrics[cp.Address] = &cp
	return nil
}

// InsertPattern persists one detection
func (s *MemoryStore) InsertPattern(_ context.Context, p *models.Pattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.DetectedAt.IsZero() {
		cp.DetectedAt = time.Now().UTC()
	}
	s.patterns = append(s.patterns, &cp)
	return nil
}

// InsertPatterns persists several detections
func (s *MemoryStore) InsertPatterns(ctx context.Context, patterns []*models.Pattern) error {
	for _, p := range patterns {
		if err := s.InsertPattern(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// ListPatternsByAddress returns detections not marked false positive,
// newest first.
func (s *MemoryStore) ListPatternsByAddress(_ context.Context, address string) ([]*models.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Pattern
	for _, p := range s.patterns {
		if p.Address == address && !p.FalsePositive {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DetectedAt.After(out[j].DetectedAt)
	})
	return out, nil
}

// CountActivePatterns returns, per address, how many distinct pattern
// types are flagged and not marked false positive.
func (s *MemoryStore) CountActivePatterns(_ context.Context, addresses []string) (map[string]int, error) {
	member := make(map[string]bool, len(addresses))
	for _, addr := range addresses {
		member[addr] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]map[types.PatternType]bool)
	for _, p := range s.patterns {
		if !member[p.Address] || p.FalsePositive {
			continue
		}
		if seen[p.Address] == nil {
			seen[p.Address] = make(map[types.PatternType]bool)
		}
		seen[p.Address][p.PatternType] = true
	}

	counts := make(map[string]int, len(seen))
	for addr, kinds := range seen {
		counts[addr] = len(kinds)
	}
	return counts, nil
}

// MarkFalsePositive flags a detection as reviewed and dismissed
func (s *MemoryStore) MarkFalsePositive(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.patterns {
		if p.ID == id {
			p.FalsePositive = true
			return nil
		}
	}
	return fmt.Errorf("pattern not found: %s", id)
}

// GetScore returns the score for an ordered pair, (nil, nil) when absent
func (s *MemoryStore) GetScore(_ context.Context, from, to string) (*models.RelationshipScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sc, ok := s.scores[pairKey(from, to)]
	if !ok {
		return nil, nil
	}
	out := *sc
	return &out, nil
}

// UpsertScore creates or replaces the score for an ordered pair
func (s *MemoryStore) UpsertScore(_ context.Context, sc *models.RelationshipScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *sc
	cp.UpdatedAt = time.Now().UTC()
	s.scores[pairKey(cp.FromAddress, cp.ToAddress)] = &cp
	return nil
}

// ListScoresAbove returns persisted scores at or above a floor, strongest first
func (s *MemoryStore) ListScoresAbove(_ context.Context, minScore float64, limit int) ([]*models.RelationshipScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.RelationshipScore
	for _, sc := range s.scores {
		if sc.TotalScore >= minScore {
			cp := *sc
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalScore != out[j].TotalScore {
			return out[i].TotalScore > out[j].TotalScore
		}
		return pairKey(out[i].FromAddress, out[i].ToAddress) < pairKey(out[j].FromAddress, out[j].ToAddress)
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
