// Package seed generates deterministic synthetic transfer graphs for
// local development and load testing. The generator injects known
// laundering motifs (rapid pass-throughs, circular flows, layering
// chains, whole-unit amounts, night-hour bursts) so detectors have
// something real to find, and derives edge aggregates from the
// transfers it emits so the two relations stay consistent.
package seed

import (
	"fmt"
	"math/big"
	"math/rand"
	"sort"
	"time"

	"github.com/graph-scanner/internal/models"
	"github.com/graph-scanner/internal/types"
)

// Config controls dataset generation. The same Config always yields
// the same dataset.
type Config struct {
	Seed      int64
	Accounts  int           // number of accounts (default 200)
	Transfers int           // background transfers (default 2000)
	Start     time.Time     // dataset start (default 90 days before now)
	Span      time.Duration // dataset time span (default 90 days)
}

// Dataset is a generated graph ready to be written to the stores
type Dataset struct {
	Accounts      []*models.Account
	Relationships []*models.Relationship
	Transfers     []*models.Transfer
}

// Generator produces synthetic datasets from a seeded RNG
type Generator struct {
	cfg Config
	rng *rand.Rand

	// endpoints collects every past transfer participant; sampling it
	// uniformly gives preferential attachment, so the degree
	// distribution ends up skewed like a real transfer graph.
	endpoints []string
}

// Block cadence of the simulated chain
const blockInterval = 6 * time.Second

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// NewGenerator creates a generator, filling config defaults
func NewGenerator(cfg Config) *Generator {
	if cfg.Accounts <= 0 {
		cfg.Accounts = 200
	}
	if cfg.Transfers <= 0 {
		cfg.Transfers = 2000
	}
	if cfg.Span <= 0 {
		cfg.Span = 90 * 24 * time.Hour
	}
	if cfg.Start.IsZero() {
		cfg.Start = time.Now().UTC().Add(-cfg.Span).Truncate(time.Hour)
	}
	return &Generator{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Generate produces the full dataset
func (g *Generator) Generate() *Dataset {
	addresses := g.addresses()
	accounts := g.accounts(addresses)

	var transfers []*models.Transfer
	transfers = append(transfers, g.backgroundTransfers(addresses)...)
	transfers = append(transfers, g.rapidMovementMotifs(addresses)...)
	transfers = append(transfers, g.circularFlowMotifs(addresses)...)
	transfers = append(transfers, g.layeringMotifs(addresses)...)
	transfers = append(transfers, g.roundNumberMotifs(addresses)...)
	transfers = append(transfers, g.nightBurstMotifs(addresses)...)

	g.sequence(transfers)
	relationships := deriveRelationships(transfers)
	stampAccounts(accounts, transfers)

	return &Dataset{
		Accounts:      accounts,
		Relationships: relationships,
		Transfers:     transfers,
	}
}

// addresses produces SS58-looking account identifiers
func (g *Generator) addresses() []string {
	addresses := make([]string, g.cfg.Accounts)
	for i := range addresses {
		buf := make([]byte, 47)
		buf[0] = '5'
		for j := 1; j < len(buf); j++ {
			buf[j] = base58Alphabet[g.rng.Intn(len(base58Alphabet))]
		}
		addresses[i] = string(buf)
	}
	return addresses
}

// accounts assigns node types, identities, balances, and risk scores.
// The first few addresses get the special roles so motif injection can
// target them deterministically.
func (g *Generator) accounts(addresses []string) []*models.Account {
	mixers := len(addresses) / 50
	if mixers < 1 {
		mixers = 1
	}
	exchanges := len(addresses) / 20
	if exchanges < 1 {
		exchanges = 1
	}

	accounts := make([]*models.Account, len(addresses))
	for i, addr := range addresses {
		acc := &models.Account{
			Address:  addr,
			NodeType: types.NodeTypeNormal,
			Balance:  g.amount(12, 18),
		}
		switch {
		case i < mixers:
			acc.NodeType = types.NodeTypeMixer
			acc.RiskScore = 75 + g.rng.Float64()*20
		case i < mixers+exchanges:
			acc.NodeType = types.NodeTypeExchange
			acc.IdentityDisplay = fmt.Sprintf("Exchange %d", i-mixers+1)
			acc.RiskScore = 5 + g.rng.Float64()*20
		default:
			acc.RiskScore = g.rng.Float64() * 40
			if g.rng.Float64() < 0.1 {
				acc.IdentityDisplay = fmt.Sprintf("identity-%04d", i)
			}
		}
		accounts[i] = acc
	}
	return accounts
}

// backgroundTransfers emits ordinary traffic with a preferential
// attachment bias toward already-active endpoints.
func (g *Generator) backgroundTransfers(addresses []string) []*models.Transfer {
	transfers := make([]*models.Transfer, 0, g.cfg.Transfers)
	for i := 0; i < g.cfg.Transfers; i++ {
		from := g.pick(addresses)
		to := g.pick(addresses)
		for to == from {
			to = g.pick(addresses)
		}
		g.endpoints = append(g.endpoints, from, to)

		transfers = append(transfers, g.transfer(from, to, g.amount(10, 15), g.anyTime(), g.rng.Float64() < 0.97))
	}
	return transfers
}

// pick samples an address, preferring past participants
func (g *Generator) pick(addresses []string) string {
	if len(g.endpoints) > 0 && g.rng.Float64() < 0.7 {
		return g.endpoints[g.rng.Intn(len(g.endpoints))]
	}
	return addresses[g.rng.Intn(len(addresses))]
}

// rapidMovementMotifs plants in-and-straight-out hops: funds arrive and
// leave again within about a minute, nearly intact.
func (g *Generator) rapidMovementMotifs(addresses []string) []*models.Transfer {
	var transfers []*models.Transfer
	for i := 0; i < g.motifCount(); i++ {
		source := g.pick(addresses)
		hop := g.pick(addresses)
		sink := g.pick(addresses)
		if source == hop || hop == sink {
			continue
		}

		at := g.anyTime()
		in := g.amount(13, 15)
		out := scaled(in, int64(95+g.rng.Intn(5)), 100)

		transfers = append(transfers,
			g.transfer(source, hop, in, at, true),
			g.transfer(hop, sink, out, at.Add(time.Duration(20+g.rng.Intn(31))*time.Second), true),
		)
	}
	return transfers
}

// circularFlowMotifs plants three-party loops with shrinking volumes
func (g *Generator) circularFlowMotifs(addresses []string) []*models.Transfer {
	var transfers []*models.Transfer
	for i := 0; i < g.motifCount(); i++ {
		a, b, c := g.pick(addresses), g.pick(addresses), g.pick(addresses)
		if a == b || b == c || a == c {
			continue
		}

		at := g.anyTime()
		v := g.amount(13, 15)
		second := scaled(v, 90, 100)
		third := scaled(v, 80, 100)

		transfers = append(transfers,
			g.transfer(a, b, v, at, true),
			g.transfer(b, c, second, at.Add(time.Duration(1+g.rng.Intn(48))*time.Hour), true),
			g.transfer(c, a, third, at.Add(time.Duration(49+g.rng.Intn(48))*time.Hour), true),
		)
	}
	return transfers
}

// layeringMotifs plants chains of four hops carrying nearly the same
// volume end to end.
func (g *Generator) layeringMotifs(addresses []string) []*models.Transfer {
	var transfers []*models.Transfer
	for i := 0; i < g.motifCount(); i++ {
		chain := g.distinct(addresses, 5)
		if chain == nil {
			continue
		}

		at := g.anyTime()
		v := g.amount(14, 15)
		for hop := 0; hop+1 < len(chain); hop++ {
			transfers = append(transfers, g.transfer(chain[hop], chain[hop+1], v, at, true))
			at = at.Add(time.Duration(10+g.rng.Intn(110)) * time.Minute)
			v = scaled(v, int64(97+g.rng.Intn(3)), 100)
		}
	}
	return transfers
}

// roundNumberMotifs plants transfers of exact whole-unit amounts
func (g *Generator) roundNumberMotifs(addresses []string) []*models.Transfer {
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(12), nil)

	var transfers []*models.Transfer
	for i := 0; i < g.motifCount()*2; i++ {
		from := g.pick(addresses)
		to := g.pick(addresses)
		if from == to {
			continue
		}
		v := new(big.Int).Mul(big.NewInt(int64(1+g.rng.Intn(500))), unit)
		transfers = append(transfers, g.transfer(from, to, v.String(), g.anyTime(), true))
	}
	return transfers
}

// nightBurstMotifs plants clusters of transfers in the dead-of-night
// window on a single edge.
func (g *Generator) nightBurstMotifs(addresses []string) []*models.Transfer {
	var transfers []*models.Transfer
	for i := 0; i < g.motifCount(); i++ {
		from := g.pick(addresses)
		to := g.pick(addresses)
		if from == to {
			continue
		}

		spanDays := int(g.cfg.Span.Hours() / 24)
		if spanDays < 1 {
			spanDays = 1
		}
		day := g.cfg.Start.AddDate(0, 0, g.rng.Intn(spanDays))
		night := time.Date(day.Year(), day.Month(), day.Day(), 2, 0, 0, 0, time.UTC)
		// 02:00 on the first day can fall before the dataset start
		if night.Before(g.cfg.Start) {
			night = night.Add(24 * time.Hour)
		}
		for n := 0; n < 5+g.rng.Intn(4); n++ {
			at := night.Add(time.Duration(g.rng.Intn(3*3600)) * time.Second)
			transfers = append(transfers, g.transfer(from, to, g.amount(11, 13), at, true))
		}
	}
	return transfers
}

func (g *Generator) motifCount() int {
	count := g.cfg.Accounts / 40
	if count < 2 {
		count = 2
	}
	return count
}

// distinct samples n pairwise-distinct addresses, or nil when the
// sampling collides too often.
func (g *Generator) distinct(addresses []string, n int) []string {
	seen := make(map[string]bool, n)
	out := make([]string, 0, n)
	for attempts := 0; len(out) < n && attempts < n*10; attempts++ {
		addr := g.pick(addresses)
		if !seen[addr] {
			seen[addr] = true
			out = append(out, addr)
		}
	}
	if len(out) < n {
		return nil
	}
	return out
}

func (g *Generator) transfer(from, to, value string, at time.Time, success bool) *models.Transfer {
	return &models.Transfer{
		Hash:        g.hash(),
		FromAddress: from,
		ToAddress:   to,
		Value:       value,
		Timestamp:   at.UTC(),
		Success:     success,
		Module:      "balances",
	}
}

// amount returns a decimal-string integer with between minDigits and
// maxDigits digits, log-uniform-ish across magnitudes.
func (g *Generator) amount(minDigits, maxDigits int) string {
	digits := minDigits + g.rng.Intn(maxDigits-minDigits+1)
	buf := make([]byte, digits)
	buf[0] = byte('1' + g.rng.Intn(9))
	for i := 1; i < digits; i++ {
		buf[i] = byte('0' + g.rng.Intn(10))
	}
	return string(buf)
}

func (g *Generator) anyTime() time.Time {
	return g.cfg.Start.Add(time.Duration(g.rng.Int63n(int64(g.cfg.Span))))
}

func (g *Generator) hash() string {
	buf := make([]byte, 32)
	g.rng.Read(buf)
	return fmt.Sprintf("0x%x", buf)
}

// scaled returns value * num / den as a decimal string
func scaled(value string, num, den int64) string {
	v, _ := models.ParseAmount(value)
	v.Mul(v, big.NewInt(num))
	v.Quo(v, big.NewInt(den))
	return v.String()
}

// sequence orders transfers by time and assigns block numbers and
// per-block event indexes on the simulated block cadence.
func (g *Generator) sequence(transfers []*models.Transfer) {
	sort.Slice(transfers, func(i, j int) bool {
		return transfers[i].Timestamp.Before(transfers[j].Timestamp)
	})

	var prevBlock uint64
	var eventIdx uint32
	for _, t := range transfers {
		block := uint64(t.Timestamp.Sub(g.cfg.Start)/blockInterval) + 1
		if block != prevBlock {
			prevBlock = block
			eventIdx = 0
		}
		t.BlockNum = block
		t.EventIdx = eventIdx
		eventIdx++
	}
}

// deriveRelationships aggregates successful transfers into edges so
// that every edge's volume and count match its transfers exactly.
// Failed transfers move no value and are not aggregated.
func deriveRelationships(transfers []*models.Transfer) []*models.Relationship {
	byPair := make(map[string]*models.Relationship)
	for _, t := range transfers {
		if !t.Success {
			continue
		}
		key := t.FromAddress + "|" + t.ToAddress
		rel := byPair[key]
		if rel == nil {
			rel = &models.Relationship{
				FromAddress:       t.FromAddress,
				ToAddress:         t.ToAddress,
				TotalVolume:       "0",
				FirstTransferTime: t.Timestamp,
				LastTransferTime:  t.Timestamp,
			}
			byPair[key] = rel
		}
		rel.TotalVolume = models.AddAmounts(rel.TotalVolume, t.Value)
		rel.TransferCount++
		if t.Timestamp.Before(rel.FirstTransferTime) {
			rel.FirstTransferTime = t.Timestamp
		}
		if t.Timestamp.After(rel.LastTransferTime) {
			rel.LastTransferTime = t.Timestamp
		}
	}

	rels := make([]*models.Relationship, 0, len(byPair))
	for _, rel := range byPair {
		rels = append(rels, rel)
	}
	sort.Slice(rels, func(i, j int) bool {
		if rels[i].FromAddress != rels[j].FromAddress {
			return rels[i].FromAddress < rels[j].FromAddress
		}
		return rels[i].ToAddress < rels[j].ToAddress
	})
	return rels
}

// stampAccounts sets first-seen and last-active from each account's
// transfer participation.
func stampAccounts(accounts []*models.Account, transfers []*models.Transfer) {
	first := make(map[string]time.Time)
	last := make(map[string]time.Time)
	for _, t := range transfers {
		for _, addr := range []string{t.FromAddress, t.ToAddress} {
			if f, ok := first[addr]; !ok || t.Timestamp.Before(f) {
				first[addr] = t.Timestamp
			}
			if l, ok := last[addr]; !ok || t.Timestamp.After(l) {
				last[addr] = t.Timestamp
			}
		}
	}

	for _, acc := range accounts {
		if f, ok := first[acc.Address]; ok {
			acc.FirstSeen = f.Add(-24 * time.Hour)
			acc.CreatedAt = acc.FirstSeen
		}
		if l, ok := last[acc.Address]; ok {
			acc.LastActive = l
			acc.UpdatedAt = l
		}
	}
}
