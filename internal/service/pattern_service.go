package service

import (
	"context"
	"math"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/graph-scanner/internal/errors"
	"github.com/graph-scanner/internal/logging"
	"github.com/graph-scanner/internal/models"
	"github.com/graph-scanner/internal/observability"
	"github.com/graph-scanner/internal/types"
)

const (
	// DefaultRapidWindow is the pass-through window when a caller does
	// not set one
	DefaultRapidWindow = 5 * time.Minute

	// DefaultTransferScanLimit bounds how many raw transfers a detector
	// reads per address
	DefaultTransferScanLimit = 1000

	// rapidTolerancePercent is how close the outgoing amount must stay
	// to the incoming amount in a pass-through sequence
	rapidTolerancePercent = 15

	// layeringTolerancePercent is how far a chain edge may drift from
	// the chain's first edge volume
	layeringTolerancePercent = 20

	layeringTightPercent = 10
	layeringMinHops      = 3
	layeringMaxDepth     = 5

	// mixingDegreeThreshold marks a counterparty as a hub
	mixingDegreeThreshold = 20

	// mixingPatternThreshold marks a counterparty as heavily flagged
	mixingPatternThreshold = 2

	// minTimingSample is the smallest activity sample the timing
	// detector will judge
	minTimingSample = 4

	// roundTrailingZeros is the minimum trailing-zero run for a value to
	// count as round
	roundTrailingZeros = 10

	evidenceSampleCap = 10
)

// PatternService produces confidence-scored, evidence-bearing
// hypotheses about a single address. Detectors never error on absence:
// nothing found is confidence 0 with empty evidence. All confidence
// arithmetic is additive with caps, clamped to [0,1].
type PatternService struct {
	transfers TransferStore
	edges     EdgeStore
	nodes     NodeStore
	patterns  PatternStore
	traversal *TraversalService
	metrics   *observability.Metrics

	transferScanLimit  int
	largeTransferFloor string
}

// NewPatternService creates a new pattern detector. patterns may be
// nil, which disables persistence and the flagged-counterparty signal
// of the mixing detector.
func NewPatternService(transfers TransferStore, edges EdgeStore, nodes NodeStore, patterns PatternStore, traversal *TraversalService, metrics *observability.Metrics) *PatternService {
	return &PatternService{
		transfers:          transfers,
		edges:              edges,
		nodes:              nodes,
		patterns:           patterns,
		traversal:          traversal,
		metrics:            metrics,
		transferScanLimit:  DefaultTransferScanLimit,
		largeTransferFloor: defaultLargeTransferFloor,
	}
}

// SetTransferScanLimit overrides how many raw transfers one detection
// reads per address. Non-positive values keep the default.
func (s *PatternService) SetTransferScanLimit(limit int) {
	if limit > 0 {
		s.transferScanLimit = limit
	}
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// withinPercent reports whether other deviates from base by at most
// pct percent of base. Exact integer arithmetic, no rounding.
func withinPercent(base, other string, pct int64) bool {
	b, _ := models.ParseAmount(base)
	o, _ := models.ParseAmount(other)
	diff := new(big.Int).Sub(b, o)
	diff.Abs(diff)
	lhs := new(big.Int).Mul(diff, big.NewInt(100))
	rhs := new(big.Int).Mul(b, big.NewInt(pct))
	return lhs.Cmp(rhs) <= 0
}

// successful drops failed transfers; detectors only reason about value
// that actually moved.
func successful(transfers []*models.Transfer) []*models.Transfer {
	kept := make([]*models.Transfer, 0, len(transfers))
	for _, t := range transfers {
		if t.Success {
			kept = append(kept, t)
		}
	}
	return kept
}

func (s *PatternService) result(address string, pt types.PatternType, confidence float64, evidence models.PatternEvidence, maxSeverity types.Severity) *models.PatternResult {
	confidence = clampConfidence(confidence)
	severity := types.SeverityForConfidence(confidence)
	if maxSeverity != "" {
		severity = types.CapSeverity(severity, maxSeverity)
	}
	if confidence > 0 {
		s.metrics.RecordPattern(string(pt), string(severity))
	}
	return &models.PatternResult{
		Address:     address,
		PatternType: pt,
		Confidence:  confidence,
		Severity:    severity,
		Evidence:    evidence,
	}
}

// DetectRapidMovement finds funds passing through the address in quick
// succession: an incoming transfer followed within the window by an
// outgoing one of nearly the same amount. A zero window uses
// DefaultRapidWindow.
func (s *PatternService) DetectRapidMovement(ctx context.Context, address string, window time.Duration) (*models.PatternResult, error) {
	started := time.Now()
	if window < 0 {
		s.metrics.ObserveOperation("detect_rapid_movement", "invalid", started)
		return nil, errors.NewInvalidParameterError("window", "must not be negative")
	}

	transfers, err := s.transfers.ListByAddress(ctx, address, s.transferScanLimit)
	if err != nil {
		s.metrics.ObserveOperation("detect_rapid_movement", "error", started)
		return nil, err
	}

	result := s.rapidMovement(address, transfers, window)
	s.metrics.ObserveOperation("detect_rapid_movement", "ok", started)
	return result, nil
}

func (s *PatternService) rapidMovement(address string, transfers []*models.Transfer, window time.Duration) *models.PatternResult {
	if window == 0 {
		window = DefaultRapidWindow
	}
	transfers = successful(transfers)

	var incoming, outgoing []*models.Transfer
	for _, t := range transfers {
		switch address {
		case t.ToAddress:
			incoming = append(incoming, t)
		case t.FromAddress:
			outgoing = append(outgoing, t)
		}
	}

	// Transfers arrive timestamp-ascending; pair each incoming with the
	// first unconsumed outgoing inside the window carrying a matching
	// amount.
	used := make(map[int]bool)
	var sequences []models.RapidSequence
	for _, in := range incoming {
		for i, out := range outgoing {
			if used[i] || out.Timestamp.Before(in.Timestamp) {
				continue
			}
			gap := out.Timestamp.Sub(in.Timestamp)
			if gap > window {
				break
			}
			if !withinPercent(in.Value, out.Value, rapidTolerancePercent) {
				continue
			}
			used[i] = true
			sequences = append(sequences, models.RapidSequence{
				InHash:     in.Hash,
				OutHash:    out.Hash,
				InValue:    in.Value,
				OutValue:   out.Value,
				GapSeconds: gap.Seconds(),
				At:         in.Timestamp,
			})
			break
		}
	}

	if len(sequences) == 0 {
		return s.result(address, types.PatternRapidMovement, 0, models.PatternEvidence{}, "")
	}

	confidence := 0.4
	subMinute := false
	largeAmount := false
	for _, seq := range sequences {
		if seq.GapSeconds < 60 {
			subMinute = true
		}
		if models.CompareAmounts(seq.InValue, s.largeTransferFloor) >= 0 {
			largeAmount = true
		}
	}
	if subMinute {
		confidence += 0.2
	}
	if len(sequences) >= 3 {
		confidence += 0.1
	}
	if largeAmount {
		confidence += 0.1
	}

	evidence := models.PatternEvidence{RapidMovement: &models.RapidMovementEvidence{
		Sequences:     capSequences(sequences),
		WindowSeconds: window.Seconds(),
	}}
	return s.result(address, types.PatternRapidMovement, confidence, evidence, "")
}

func capSequences(seqs []models.RapidSequence) []models.RapidSequence {
	if len(seqs) > evidenceSampleCap {
		return seqs[:evidenceSampleCap]
	}
	return seqs
}

// DetectCircularFlowPattern scores the address by the value cycles
// returning to it. Short, repeated, high-volume loops score highest.
func (s *PatternService) DetectCircularFlowPattern(ctx context.Context, address string) (*models.PatternResult, error) {
	started := time.Now()

	flows, err := s.traversal.DetectCircularFlows(ctx, address, MaxTraversalDepth, "")
	if err != nil {
		s.metrics.ObserveOperation("detect_circular_flow", "error", started)
		return nil, err
	}

	if len(flows) == 0 {
		s.metrics.ObserveOperation("detect_circular_flow", "ok", started)
		return s.result(address, types.PatternCircularFlow, 0, models.PatternEvidence{}, ""), nil
	}

	confidence := 0.4
	shortCycle := false
	highVolume := false
	for _, f := range flows {
		if f.PathLength <= 3 {
			shortCycle = true
		}
		if models.CompareAmounts(f.MinVolumeInPath, s.largeTransferFloor) >= 0 {
			highVolume = true
		}
	}
	if shortCycle {
		confidence += 0.2
	}
	if len(flows) >= 2 {
		confidence += 0.15
	}
	if highVolume {
		confidence += 0.15
	}

	cycles := make([]models.CycleSummary, 0, len(flows))
	for _, f := range flows {
		if len(cycles) == evidenceSampleCap {
			break
		}
		cycles = append(cycles, models.CycleSummary{
			Addresses: f.Path.Addresses,
			Hops:      f.PathLength,
			MinVolume: f.MinVolumeInPath,
		})
	}

	s.metrics.ObserveOperation("detect_circular_flow", "ok", started)
	evidence := models.PatternEvidence{CircularFlow: &models.CircularFlowEvidence{Cycles: cycles}}
	return s.result(address, types.PatternCircularFlow, confidence, evidence, ""), nil
}

// DetectLayering finds repeated multi-hop chains leaving the address
// whose edge volumes stay within tolerance of the chain's first edge.
// One chain alone proves nothing; at least two chains of the same
// length are required.
func (s *PatternService) DetectLayering(ctx context.Context, address string) (*models.PatternResult, error) {
	started := time.Now()

	chains, err := s.layerChains(ctx, address)
	if err != nil {
		s.metrics.ObserveOperation("detect_layering", "error", started)
		return nil, err
	}

	// Structural similarity: chains of identical hop count
	byHops := make(map[int][]models.LayerChain)
	for _, c := range chains {
		byHops[c.Hops] = append(byHops[c.Hops], c)
	}
	var similar []models.LayerChain
	for _, group := range byHops {
		if len(group) >= 2 {
			similar = append(similar, group...)
		}
	}

	if len(similar) == 0 {
		s.metrics.ObserveOperation("detect_layering", "ok", started)
		return s.result(address, types.PatternLayering, 0, models.PatternEvidence{}, ""), nil
	}

	sort.Slice(similar, func(i, j int) bool {
		if similar[i].Hops != similar[j].Hops {
			return similar[i].Hops > similar[j].Hops
		}
		return strings.Join(similar[i].Addresses, "->") < strings.Join(similar[j].Addresses, "->")
	})

	confidence := 0.4
	long := false
	tight := true
	for _, c := range similar {
		if c.Hops >= layeringMinHops+1 {
			long = true
		}
		for _, vol := range c.Volumes[1:] {
			if !withinPercent(c.Volumes[0], vol, layeringTightPercent) {
				tight = false
			}
		}
	}
	if long {
		confidence += 0.2
	}
	if len(similar) >= 3 {
		confidence += 0.15
	}
	if tight {
		confidence += 0.15
	}

	if len(similar) > evidenceSampleCap {
		similar = similar[:evidenceSampleCap]
	}

	s.metrics.ObserveOperation("detect_layering", "ok", started)
	evidence := models.PatternEvidence{Layering: &models.LayeringEvidence{Chains: similar}}
	return s.result(address, types.PatternLayering, confidence, evidence, ""), nil
}

// layerChains walks outgoing edges from address, extending a chain only
// while each edge volume stays within tolerance of the chain's first
// edge, and records maximal chains of at least layeringMinHops hops.
func (s *PatternService) layerChains(ctx context.Context, address string) ([]models.LayerChain, error) {
	adj := newAdjacency(s.edges)
	var chains []models.LayerChain
	onPath := map[string]bool{address: true}

	var extend func(current, base string, addrs, vols []string, hops int) error
	extend = func(current, base string, addrs, vols []string, hops int) error {
		extended := false
		if hops < layeringMaxDepth {
			rels, err := adj.out(ctx, current)
			if err != nil {
				return err
			}
			for _, rel := range rels {
				if onPath[rel.ToAddress] {
					continue
				}
				if !withinPercent(base, rel.TotalVolume, layeringTolerancePercent) {
					continue
				}
				extended = true
				onPath[rel.ToAddress] = true
				err := extend(rel.ToAddress, base,
					append(append([]string{}, addrs...), rel.ToAddress),
					append(append([]string{}, vols...), rel.TotalVolume),
					hops+1)
				delete(onPath, rel.ToAddress)
				if err != nil {
					return err
				}
			}
		}
		if !extended && hops >= layeringMinHops {
			chains = append(chains, models.LayerChain{Addresses: addrs, Volumes: vols, Hops: hops})
		}
		return nil
	}

	rels, err := adj.out(ctx, address)
	if err != nil {
		return nil, err
	}
	for _, rel := range rels {
		if onPath[rel.ToAddress] {
			continue
		}
		onPath[rel.ToAddress] = true
		err := extend(rel.ToAddress, rel.TotalVolume,
			[]string{address, rel.ToAddress},
			[]string{rel.TotalVolume},
			1)
		delete(onPath, rel.ToAddress)
		if err != nil {
			return nil, err
		}
	}
	return chains, nil
}

// DetectMixingPatterns flags the address for its suspicious
// counterparties: hubs with very high degree, addresses already flagged
// by several other detectors, and mixer-typed accounts. A counterparty
// with a known identity weakens the signal.
func (s *PatternService) DetectMixingPatterns(ctx context.Context, address string) (*models.PatternResult, error) {
	started := time.Now()
	logger := logging.FromContext(ctx).WithField("address", address)

	outgoing, err := s.edges.ListOutgoing(ctx, address)
	if err != nil {
		s.metrics.ObserveOperation("detect_mixing", "error", started)
		return nil, err
	}
	incoming, err := s.edges.ListIncoming(ctx, address)
	if err != nil {
		s.metrics.ObserveOperation("detect_mixing", "error", started)
		return nil, err
	}

	volumes := make(map[string]string)
	for _, rel := range outgoing {
		addVolume(volumes, rel.ToAddress, rel.TotalVolume)
	}
	for _, rel := range incoming {
		addVolume(volumes, rel.FromAddress, rel.TotalVolume)
	}
	delete(volumes, address)

	counterparties := make([]string, 0, len(volumes))
	for cp := range volumes {
		counterparties = append(counterparties, cp)
	}
	sort.Slice(counterparties, func(i, j int) bool {
		if c := models.CompareAmounts(volumes[counterparties[i]], volumes[counterparties[j]]); c != 0 {
			return c > 0
		}
		return counterparties[i] < counterparties[j]
	})
	if len(counterparties) > DefaultConnectionLimit {
		counterparties = counterparties[:DefaultConnectionLimit]
	}

	flagged := make(map[string]int)
	if s.patterns != nil {
		flagged, err = s.patterns.CountActivePatterns(ctx, counterparties)
		if err != nil {
			s.metrics.ObserveOperation("detect_mixing", "error", started)
			return nil, err
		}
	}

	var connections []models.MixingConnection
	for _, cp := range counterparties {
		cpOut, err := s.edges.ListOutgoing(ctx, cp)
		if err != nil {
			s.metrics.ObserveOperation("detect_mixing", "error", started)
			return nil, err
		}
		cpIn, err := s.edges.ListIncoming(ctx, cp)
		if err != nil {
			s.metrics.ObserveOperation("detect_mixing", "error", started)
			return nil, err
		}

		conn := models.MixingConnection{
			Address:         cp,
			Degree:          len(cpOut) + len(cpIn),
			FlaggedPatterns: flagged[cp],
		}
		acc, err := s.nodes.GetAccount(ctx, cp)
		switch {
		case err != nil:
			logger.WithError(err).WithField("counterparty", cp).Warn("counterparty enrichment degraded")
		case acc != nil:
			conn.RiskScore = acc.RiskScore
			conn.HasIdentity = acc.HasIdentity()
			conn.IsMixerType = acc.NodeType == types.NodeTypeMixer
		}

		if conn.Degree >= mixingDegreeThreshold || conn.FlaggedPatterns >= mixingPatternThreshold || conn.IsMixerType {
			connections = append(connections, conn)
		}
	}

	if len(connections) == 0 {
		s.metrics.ObserveOperation("detect_mixing", "ok", started)
		return s.result(address, types.PatternMixing, 0, models.PatternEvidence{}, ""), nil
	}

	confidence := 0.35
	if len(connections) >= 2 {
		confidence += 0.15
	}
	if len(connections) >= 4 {
		confidence += 0.1
	}
	var riskSum float64
	identified := 0
	for _, c := range connections {
		riskSum += c.RiskScore
		if c.HasIdentity {
			identified++
		}
	}
	if riskSum/float64(len(connections)) >= 50 {
		confidence += 0.2
	}
	confidence -= 0.2 * float64(identified) / float64(len(connections))

	s.metrics.ObserveOperation("detect_mixing", "ok", started)
	evidence := models.PatternEvidence{Mixing: &models.MixingEvidence{Connections: connections}}
	return s.result(address, types.PatternMixing, confidence, evidence, ""), nil
}

func addVolume(volumes map[string]string, address, volume string) {
	if cur, ok := volumes[address]; ok {
		volumes[address] = models.AddAmounts(cur, volume)
		return
	}
	volumes[address] = volume
}

// DetectUnusualTiming scores the concentration of the address's
// activity in night hours (22:00-06:00 UTC) and weekends. Severity is
// capped at medium: timing alone is circumstantial.
func (s *PatternService) DetectUnusualTiming(ctx context.Context, address string) (*models.PatternResult, error) {
	started := time.Now()

	transfers, err := s.transfers.ListByAddress(ctx, address, s.transferScanLimit)
	if err != nil {
		s.metrics.ObserveOperation("detect_unusual_timing", "error", started)
		return nil, err
	}

	result := s.unusualTiming(address, transfers)
	s.metrics.ObserveOperation("detect_unusual_timing", "ok", started)
	return result, nil
}

func (s *PatternService) unusualTiming(address string, transfers []*models.Transfer) *models.PatternResult {
	transfers = successful(transfers)
	if len(transfers) < minTimingSample {
		return s.result(address, types.PatternUnusualTiming, 0, models.PatternEvidence{}, types.SeverityMedium)
	}

	night, weekend, offHours := 0, 0, 0
	for _, t := range transfers {
		ts := t.Timestamp.UTC()
		isNight := ts.Hour() >= 22 || ts.Hour() < 6
		isWeekend := ts.Weekday() == time.Saturday || ts.Weekday() == time.Sunday
		if isNight {
			night++
		}
		if isWeekend {
			weekend++
		}
		if isNight || isWeekend {
			offHours++
		}
	}

	fraction := float64(offHours) / float64(len(transfers))
	evidence := models.PatternEvidence{UnusualTiming: &models.UnusualTimingEvidence{
		NightTransfers:   night,
		WeekendTransfers: weekend,
		TotalTransfers:   len(transfers),
		OffHoursFraction: fraction,
	}}

	var confidence float64
	if fraction >= 0.4 {
		confidence = 0.3
		if fraction >= 0.6 {
			confidence += 0.2
		}
		if fraction >= 0.8 {
			confidence += 0.2
		}
	}

	return s.result(address, types.PatternUnusualTiming, confidence, evidence, types.SeverityMedium)
}

// ClassifyRoundness classifies a decimal-string value by its
// trailing-zero run: a single significant digit followed by a long zero
// run is perfectly round, several significant digits before such a run
// is semi-round.
func ClassifyRoundness(value string) types.Roundness {
	v, ok := models.ParseAmount(value)
	if !ok || v.Sign() == 0 {
		return types.RoundnessNone
	}
	digits := v.String()

	zeros := 0
	for i := len(digits) - 1; i >= 0 && digits[i] == '0'; i-- {
		zeros++
	}
	if zeros < roundTrailingZeros {
		return types.RoundnessNone
	}
	if len(digits)-zeros == 1 {
		return types.RoundnessPerfect
	}
	return types.RoundnessSemi
}

// DetectRoundNumbers flags structuring-style transfer values: long
// trailing-zero runs that almost never occur in organic amounts.
// Severity is capped at medium.
func (s *PatternService) DetectRoundNumbers(ctx context.Context, address string) (*models.PatternResult, error) {
	started := time.Now()

	transfers, err := s.transfers.ListByAddress(ctx, address, s.transferScanLimit)
	if err != nil {
		s.metrics.ObserveOperation("detect_round_numbers", "error", started)
		return nil, err
	}

	result := s.roundNumbers(address, transfers)
	s.metrics.ObserveOperation("detect_round_numbers", "ok", started)
	return result, nil
}

func (s *PatternService) roundNumbers(address string, transfers []*models.Transfer) *models.PatternResult {
	transfers = successful(transfers)
	if len(transfers) == 0 {
		return s.result(address, types.PatternRoundNumbers, 0, models.PatternEvidence{}, types.SeverityMedium)
	}

	perfect, semi := 0, 0
	var samples []models.RoundTransfer
	for _, t := range transfers {
		roundness := ClassifyRoundness(t.Value)
		if roundness == types.RoundnessNone {
			continue
		}
		if roundness == types.RoundnessPerfect {
			perfect++
		} else {
			semi++
		}
		if len(samples) < evidenceSampleCap {
			samples = append(samples, models.RoundTransfer{Hash: t.Hash, Value: t.Value, Roundness: roundness})
		}
	}

	if perfect+semi == 0 {
		return s.result(address, types.PatternRoundNumbers, 0, models.PatternEvidence{}, types.SeverityMedium)
	}

	ratio := float64(perfect+semi) / float64(len(transfers))
	confidence := 0.3
	if perfect > 0 {
		confidence += 0.2
	}
	if ratio >= 0.3 {
		confidence += 0.1
	}
	if ratio >= 0.6 {
		confidence += 0.1
	}

	evidence := models.PatternEvidence{RoundNumbers: &models.RoundNumberEvidence{
		PerfectCount:   perfect,
		SemiCount:      semi,
		TotalTransfers: len(transfers),
		Samples:        samples,
	}}
	return s.result(address, types.PatternRoundNumbers, confidence, evidence, types.SeverityMedium)
}

// AnalyzeTransferPatterns blends four independent sub-scores over a
// caller-supplied transfer list: volume uniformity or spikes, timing
// regularity or burstiness, counterparty concentration, and raw
// frequency. It issues no store queries, so callers can score transfer
// sets they already hold.
func (s *PatternService) AnalyzeTransferPatterns(ctx context.Context, address string, transfers []*models.Transfer) (*models.PatternResult, error) {
	started := time.Now()
	transfers = successful(transfers)

	if len(transfers) < 2 {
		s.metrics.ObserveOperation("analyze_transfer_patterns", "ok", started)
		return s.result(address, types.PatternTransferStats, 0, models.PatternEvidence{}, ""), nil
	}

	sorted := make([]*models.Transfer, len(transfers))
	copy(sorted, transfers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	volume := volumeUniformityScore(sorted)
	timing := timingRegularityScore(sorted)
	concentration := concentrationScore(sorted, address)
	frequency := frequencyScore(sorted)

	confidence := (volume + timing + concentration + frequency) / 4

	evidence := models.PatternEvidence{TransferStats: &models.TransferStatsEvidence{
		VolumeScore:        volume,
		TimingScore:        timing,
		ConcentrationScore: concentration,
		FrequencyScore:     frequency,
		TransferCount:      len(sorted),
	}}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"address":   address,
		"transfers": len(sorted),
	}).Debug("transfer pattern analysis complete")
	s.metrics.ObserveOperation("analyze_transfer_patterns", "ok", started)
	return s.result(address, types.PatternTransferStats, confidence, evidence, ""), nil
}

func meanStddev(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(variance / float64(len(values)))
}

// volumeUniformityScore is high when amounts are near-identical
// (structuring) or when one amount dwarfs the rest (a spike).
func volumeUniformityScore(transfers []*models.Transfer) float64 {
	values := make([]float64, len(transfers))
	max := 0.0
	for i, t := range transfers {
		values[i] = models.AmountFloat(t.Value)
		if values[i] > max {
			max = values[i]
		}
	}
	mean, sd := meanStddev(values)
	if mean == 0 {
		return 0
	}

	var score float64
	switch cv := sd / mean; {
	case cv < 0.1:
		score = 1
	case cv < 0.25:
		score = 0.6
	case cv < 0.5:
		score = 0.3
	}
	if max > 10*mean && score < 0.7 {
		score = 0.7
	}
	return score
}

// timingRegularityScore is high for machine-like regular gaps and for
// very tight bursts.
func timingRegularityScore(sorted []*models.Transfer) float64 {
	if len(sorted) < 3 {
		return 0
	}
	gaps := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		gaps = append(gaps, sorted[i].Timestamp.Sub(sorted[i-1].Timestamp).Seconds())
	}
	mean, sd := meanStddev(gaps)
	if mean == 0 {
		return 1
	}

	var score float64
	switch cv := sd / mean; {
	case cv < 0.2:
		score = 0.8
	case cv < 0.5:
		score = 0.4
	}
	if mean < 60 && score < 0.6 {
		score = 0.6
	}
	return score
}

// concentrationScore is the Herfindahl index over counterparties: 1
// when all activity hits a single counterparty.
func concentrationScore(transfers []*models.Transfer, address string) float64 {
	counts := make(map[string]int)
	total := 0
	for _, t := range transfers {
		cp := t.ToAddress
		if t.ToAddress == address {
			cp = t.FromAddress
		}
		if cp == address || cp == "" {
			continue
		}
		counts[cp]++
		total++
	}
	if total == 0 {
		return 0
	}
	var hhi float64
	for _, n := range counts {
		share := float64(n) / float64(total)
		hhi += share * share
	}
	return hhi
}

// frequencyScore saturates at ten transfers per day over the observed
// span.
func frequencyScore(sorted []*models.Transfer) float64 {
	span := sorted[len(sorted)-1].Timestamp.Sub(sorted[0].Timestamp)
	if span <= 0 {
		return 1
	}
	perDay := float64(len(sorted)) / (span.Hours() / 24)
	if perDay >= 10 {
		return 1
	}
	return perDay / 10
}

// DetectAllPatterns runs every detector against the address, persists
// the detections, and returns all results including the empty ones so
// callers can always inspect confidence.
func (s *PatternService) DetectAllPatterns(ctx context.Context, address string) ([]*models.PatternResult, error) {
	started := time.Now()
	logger := logging.FromContext(ctx).WithField("address", address)

	transfers, err := s.transfers.ListByAddress(ctx, address, s.transferScanLimit)
	if err != nil {
		s.metrics.ObserveOperation("detect_all_patterns", "error", started)
		return nil, err
	}

	results := []*models.PatternResult{
		s.rapidMovement(address, transfers, DefaultRapidWindow),
	}

	circular, err := s.DetectCircularFlowPattern(ctx, address)
	if err != nil {
		s.metrics.ObserveOperation("detect_all_patterns", "error", started)
		return nil, err
	}
	results = append(results, circular)

	layering, err := s.DetectLayering(ctx, address)
	if err != nil {
		s.metrics.ObserveOperation("detect_all_patterns", "error", started)
		return nil, err
	}
	results = append(results, layering)

	mixing, err := s.DetectMixingPatterns(ctx, address)
	if err != nil {
		s.metrics.ObserveOperation("detect_all_patterns", "error", started)
		return nil, err
	}
	results = append(results, mixing)

	results = append(results,
		s.unusualTiming(address, transfers),
		s.roundNumbers(address, transfers),
	)

	stats, err := s.AnalyzeTransferPatterns(ctx, address, transfers)
	if err != nil {
		s.metrics.ObserveOperation("detect_all_patterns", "error", started)
		return nil, err
	}
	results = append(results, stats)

	if s.patterns != nil {
		var rows []*models.Pattern
		now := time.Now().UTC()
		for _, r := range results {
			if !r.Detected() {
				continue
			}
			rows = append(rows, &models.Pattern{
				Address:     r.Address,
				PatternType: r.PatternType,
				Confidence:  r.Confidence,
				Severity:    r.Severity,
				Evidence:    r.Evidence,
				DetectedAt:  now,
			})
		}
		if err := s.patterns.InsertPatterns(ctx, rows); err != nil {
			s.metrics.ObserveOperation("detect_all_patterns", "error", started)
			return nil, err
		}
		logger.WithField("detected", len(rows)).Debug("patterns persisted")
	}

	s.metrics.ObserveOperation("detect_all_patterns", "ok", started)
	return results, nil
}
