package service

import (
	"context"
	"math"
	"math/big"
	"time"

	"github.com/graph-scanner/internal/logging"
	"github.com/graph-scanner/internal/models"
	"github.com/graph-scanner/internal/observability"
	"github.com/graph-scanner/internal/types"
)

// Component weights of the composite relationship score
const (
	scoreWeightVolume    = 0.25
	scoreWeightFrequency = 0.25
	scoreWeightTemporal  = 0.20
	scoreWeightNetwork   = 0.30
)

const (
	// rapidPairGap is the gap under which two consecutive transfers on
	// the same edge count as a rapid sequence
	rapidPairGap = 5 * time.Minute

	// newAccountAge is how young the receiving account must be at the
	// relationship's first transfer to count as a fresh-account signal
	newAccountAge = 7 * 24 * time.Hour

	// DefaultSuspiciousLimit caps suspicious-relationship listings when
	// the caller passes no limit
	DefaultSuspiciousLimit = 50
)

// baseUnit is the chain's base denomination. Values divisible by it
// are whole-unit amounts, a structuring indicator on the risk side.
var baseUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(12), nil)

// ScoringService computes composite relationship strength scores:
// volume, frequency, temporal, and network components blended by fixed
// weights, discounted by a risk multiplier of at most 50%.
type ScoringService struct {
	edges       EdgeStore
	edgeStats   EdgeStatsStore
	nodes       NodeStore
	nodeStats   NodeStatsStore
	transfers   TransferStore
	nodeMetrics MetricsStore
	scores      ScoreStore
	metrics     *observability.Metrics

	transferScanLimit int
}

// NewScoringService creates a new relationship scorer
func NewScoringService(edges EdgeStore, edgeStats EdgeStatsStore, nodes NodeStore, nodeStats NodeStatsStore, transfers TransferStore, nodeMetrics MetricsStore, scores ScoreStore, metrics *observability.Metrics) *ScoringService {
	return &ScoringService{
		edges:             edges,
		edgeStats:         edgeStats,
		nodes:             nodes,
		nodeStats:         nodeStats,
		transfers:         transfers,
		nodeMetrics:       nodeMetrics,
		scores:            scores,
		metrics:           metrics,
		transferScanLimit: DefaultTransferScanLimit,
	}
}

// SetTransferScanLimit overrides how many raw transfers one assessment
// reads per edge. Non-positive values keep the default.
func (s *ScoringService) SetTransferScanLimit(limit int) {
	if limit > 0 {
		s.transferScanLimit = limit
	}
}

// VolumeDetails explains the volume component
type VolumeDetails struct {
	TotalVolume       string  `json:"totalVolume"`
	AvgTransferSize   float64 `json:"avgTransferSize"`
	VolumePercentile  float64 `json:"volumePercentile"`
	AvgSizePercentile float64 `json:"avgSizePercentile"`
	VolumeComponent   float64 `json:"volumeComponent"`
	AvgSizeComponent  float64 `json:"avgSizeComponent"`
	RelativeComponent float64 `json:"relativeComponent"`
}

// FrequencyDetails explains the frequency component
type FrequencyDetails struct {
	TransferCount        int64   `json:"transferCount"`
	DaysActive           int     `json:"daysActive"`
	TransfersPerDay      float64 `json:"transfersPerDay"`
	UniqueDays           int     `json:"uniqueDays"`
	CountComponent       float64 `json:"countComponent"`
	RateComponent        float64 `json:"rateComponent"`
	ConsistencyComponent float64 `json:"consistencyComponent"`
}

// TemporalDetails explains the temporal component
type TemporalDetails struct {
	DaysSinceLast      int     `json:"daysSinceLast"`
	RelationshipDays   int     `json:"relationshipDays"`
	TransfersLastWeek  int     `json:"transfersLastWeek"`
	TransfersLastMonth int     `json:"transfersLastMonth"`
	RecencyComponent   float64 `json:"recencyComponent"`
	DurationComponent  float64 `json:"durationComponent"`
	ActivityComponent  float64 `json:"activityComponent"`
}

// NetworkDetails explains the network component
type NetworkDetails struct {
	CommonConnections   int     `json:"commonConnections"`
	AvgDegreeCentrality float64 `json:"avgDegreeCentrality"`
	AvgPageRank         float64 `json:"avgPageRank"`
	CommonComponent     float64 `json:"commonComponent"`
	CentralityComponent float64 `json:"centralityComponent"`
	ImportanceComponent float64 `json:"importanceComponent"`
}

// RiskDetails explains the risk discount
type RiskDetails struct {
	RapidTransfers int     `json:"rapidTransfers"`
	RoundNumbers   int     `json:"roundNumbers"`
	UnusualTime    int     `json:"unusualTime"`
	NewAccount     bool    `json:"newAccount"`
	RapidRisk      float64 `json:"rapidRisk"`
	RoundRisk      float64 `json:"roundRisk"`
	TimeRisk       float64 `json:"timeRisk"`
	NewAccountRisk float64 `json:"newAccountRisk"`
}

// ScoreDetails is the full component breakdown of one assessment
type ScoreDetails struct {
	Volume         VolumeDetails    `json:"volume"`
	Frequency      FrequencyDetails `json:"frequency"`
	Temporal       TemporalDetails  `json:"temporal"`
	Network        NetworkDetails   `json:"network"`
	Risk           RiskDetails      `json:"risk"`
	BaseScore      float64          `json:"baseScore"`
	RiskMultiplier float64          `json:"riskMultiplier"`
}

// RelationshipAssessment is a scored edge plus its explanation
type RelationshipAssessment struct {
	Score   models.RelationshipScore `json:"score"`
	Band    types.ScoreBand          `json:"band"`
	Details ScoreDetails             `json:"details"`
}

// ScoreRelationship computes the composite strength score for one
// ordered pair. A missing edge yields (nil, nil).
func (s *ScoringService) ScoreRelationship(ctx context.Context, from, to string) (*RelationshipAssessment, error) {
	started := time.Now()
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"from": from,
		"to":   to,
	})

	rel, err := s.edges.GetRelationship(ctx, from, to)
	if err != nil {
		s.metrics.ObserveOperation("score_relationship", "error", started)
		return nil, err
	}
	if rel == nil {
		s.metrics.ObserveOperation("score_relationship", "ok", started)
		return nil, nil
	}

	transferList, err := s.transfers.ListBetween(ctx, from, to, s.transferScanLimit)
	if err != nil {
		s.metrics.ObserveOperation("score_relationship", "error", started)
		return nil, err
	}
	transferList = successful(transferList)

	now := time.Now().UTC()

	volumeScore, volumeDetails, err := s.volumeScore(ctx, logger, rel)
	if err != nil {
		s.metrics.ObserveOperation("score_relationship", "error", started)
		return nil, err
	}
	frequencyScore, frequencyDetails, err := s.frequencyScore(ctx, rel, transferList)
	if err != nil {
		s.metrics.ObserveOperation("score_relationship", "error", started)
		return nil, err
	}
	temporalScore, temporalDetails := temporalScore(rel, transferList, now)
	networkScore, networkDetails, err := s.networkScore(ctx, logger, from, to)
	if err != nil {
		s.metrics.ObserveOperation("score_relationship", "error", started)
		return nil, err
	}
	riskScore, riskDetails := s.riskScore(ctx, logger, rel, transferList)

	base := volumeScore*scoreWeightVolume +
		frequencyScore*scoreWeightFrequency +
		temporalScore*scoreWeightTemporal +
		networkScore*scoreWeightNetwork

	// Risk discounts the score by at most half
	multiplier := 1 - riskScore/200
	total := math.Round(base*multiplier*100) / 100

	assessment := &RelationshipAssessment{
		Score: models.RelationshipScore{
			FromAddress:    from,
			ToAddress:      to,
			TotalScore:     total,
			VolumeScore:    volumeScore,
			FrequencyScore: frequencyScore,
			TemporalScore:  temporalScore,
			NetworkScore:   networkScore,
			RiskScore:      riskScore,
			UpdatedAt:      now,
		},
		Band: types.ScoreBandForScore(total),
		Details: ScoreDetails{
			Volume:         volumeDetails,
			Frequency:      frequencyDetails,
			Temporal:       temporalDetails,
			Network:        networkDetails,
			Risk:           riskDetails,
			BaseScore:      base,
			RiskMultiplier: multiplier,
		},
	}

	s.metrics.ObserveOperation("score_relationship", "ok", started)
	return assessment, nil
}

// volumeScore ranks the edge's volume and average transfer size against
// the whole relation and adds the volume relative to the sender's
// balance.
func (s *ScoringService) volumeScore(ctx context.Context, logger *logging.Logger, rel *models.Relationship) (float64, VolumeDetails, error) {
	totalRelationships, err := s.edgeStats.CountRelationships(ctx)
	if err != nil {
		return 0, VolumeDetails{}, err
	}
	if totalRelationships < 1 {
		totalRelationships = 1
	}

	totalVolume := models.AmountFloat(rel.TotalVolume)
	transferCount := rel.TransferCount
	if transferCount < 1 {
		transferCount = 1
	}
	avgSize := totalVolume / float64(transferCount)

	belowVolume, err := s.edgeStats.CountBelowVolume(ctx, rel.TotalVolume)
	if err != nil {
		return 0, VolumeDetails{}, err
	}
	belowAvgSize, err := s.edgeStats.CountBelowAvgSize(ctx, avgSize)
	if err != nil {
		return 0, VolumeDetails{}, err
	}

	volumePercentile := float64(belowVolume) / float64(totalRelationships)
	avgSizePercentile := float64(belowAvgSize) / float64(totalRelationships)

	volumeComponent := math.Min(40, volumePercentile*40)
	avgSizeComponent := math.Min(30, avgSizePercentile*30)

	// Unknown sender balance contributes the midpoint
	relativeComponent := 15.0
	sender, err := s.nodes.GetAccount(ctx, rel.FromAddress)
	switch {
	case err != nil:
		logger.WithError(err).Warn("sender balance lookup degraded")
	case sender != nil:
		if balance := models.AmountFloat(sender.Balance); balance > 0 {
			relativeComponent = math.Min(30, totalVolume/balance*100)
		}
	}

	score := math.Min(100, volumeComponent+avgSizeComponent+relativeComponent)
	return score, VolumeDetails{
		TotalVolume:       rel.TotalVolume,
		AvgTransferSize:   avgSize,
		VolumePercentile:  volumePercentile,
		AvgSizePercentile: avgSizePercentile,
		VolumeComponent:   volumeComponent,
		AvgSizeComponent:  avgSizeComponent,
		RelativeComponent: relativeComponent,
	}, nil
}

// frequencyScore ranks how often and how consistently the pair
// transacts.
func (s *ScoringService) frequencyScore(ctx context.Context, rel *models.Relationship, transferList []*models.Transfer) (float64, FrequencyDetails, error) {
	if rel.TransferCount == 0 {
		return 0, FrequencyDetails{}, nil
	}

	totalRelationships, err := s.edgeStats.CountRelationships(ctx)
	if err != nil {
		return 0, FrequencyDetails{}, err
	}
	if totalRelationships < 1 {
		totalRelationships = 1
	}
	belowCount, err := s.edgeStats.CountBelowTransferCount(ctx, rel.TransferCount)
	if err != nil {
		return 0, FrequencyDetails{}, err
	}

	daysActive := int(rel.LastTransferTime.Sub(rel.FirstTransferTime).Hours()/24) + 1
	if daysActive < 1 {
		daysActive = 1
	}
	perDay := float64(rel.TransferCount) / float64(daysActive)

	uniqueDays := make(map[string]bool)
	for _, t := range transferList {
		uniqueDays[t.Timestamp.UTC().Format("2006-01-02")] = true
	}

	countPercentile := float64(belowCount) / float64(totalRelationships)
	ratePercentile := math.Min(1, perDay/10)

	countComponent := math.Min(40, countPercentile*40)
	rateComponent := math.Min(30, ratePercentile*30)
	consistencyComponent := math.Min(30, float64(len(uniqueDays))/float64(daysActive)*30)

	score := math.Min(100, countComponent+rateComponent+consistencyComponent)
	return score, FrequencyDetails{
		TransferCount:        rel.TransferCount,
		DaysActive:           daysActive,
		TransfersPerDay:      perDay,
		UniqueDays:           len(uniqueDays),
		CountComponent:       countComponent,
		RateComponent:        rateComponent,
		ConsistencyComponent: consistencyComponent,
	}, nil
}

// temporalScore rewards recent, long-lived, currently active edges.
// Recency decays in bands rather than continuously.
func temporalScore(rel *models.Relationship, transferList []*models.Transfer, now time.Time) (float64, TemporalDetails) {
	daysSinceLast := int(now.Sub(rel.LastTransferTime).Hours() / 24)
	if daysSinceLast < 0 {
		daysSinceLast = 0
	}
	relationshipDays := int(rel.LastTransferTime.Sub(rel.FirstTransferTime).Hours()/24) + 1
	if relationshipDays < 1 {
		relationshipDays = 1
	}

	var recency float64
	switch {
	case daysSinceLast <= 1:
		recency = 40
	case daysSinceLast <= 7:
		recency = 35
	case daysSinceLast <= 30:
		recency = 25
	case daysSinceLast <= 90:
		recency = 15
	case daysSinceLast <= 365:
		recency = 5
	}

	duration := math.Min(30, float64(relationshipDays)/365*30)

	week, month := 0, 0
	for _, t := range transferList {
		if t.Timestamp.After(now.AddDate(0, 0, -7)) {
			week++
		}
		if t.Timestamp.After(now.AddDate(0, 0, -30)) {
			month++
		}
	}
	count := float64(rel.TransferCount)
	if count < 1 {
		count = 1
	}
	activity := math.Min(30, float64(week)/count*15+float64(month)/count*15)

	return recency + duration + activity, TemporalDetails{
		DaysSinceLast:      daysSinceLast,
		RelationshipDays:   relationshipDays,
		TransfersLastWeek:  week,
		TransfersLastMonth: month,
		RecencyComponent:   recency,
		DurationComponent:  duration,
		ActivityComponent:  activity,
	}
}

// networkScore rewards shared counterparties and the structural
// standing of both endpoints, read from persisted node metrics.
func (s *ScoringService) networkScore(ctx context.Context, logger *logging.Logger, from, to string) (float64, NetworkDetails, error) {
	fromNeighbors, err := s.counterparties(ctx, from)
	if err != nil {
		return 0, NetworkDetails{}, err
	}
	toNeighbors, err := s.counterparties(ctx, to)
	if err != nil {
		return 0, NetworkDetails{}, err
	}

	common := 0
	for addr := range fromNeighbors {
		if addr == from || addr == to {
			continue
		}
		if toNeighbors[addr] {
			common++
		}
	}

	totalAccounts, err := s.nodeStats.CountAccounts(ctx)
	if err != nil {
		return 0, NetworkDetails{}, err
	}

	var avgCentrality, avgPageRank float64
	fromMetrics := s.metricsRow(ctx, logger, from)
	toMetrics := s.metricsRow(ctx, logger, to)
	if totalAccounts > 1 {
		norm := float64(totalAccounts - 1)
		avgCentrality = (float64(fromMetrics.Degree)/norm + float64(toMetrics.Degree)/norm) / 2
	}
	avgPageRank = (fromMetrics.PageRank + toMetrics.PageRank) / 2

	commonComponent := math.Min(40, float64(common)*5)
	centralityComponent := math.Min(30, avgCentrality*100)
	importanceComponent := math.Min(30, avgPageRank*1000)

	score := math.Min(100, commonComponent+centralityComponent+importanceComponent)
	return score, NetworkDetails{
		CommonConnections:   common,
		AvgDegreeCentrality: avgCentrality,
		AvgPageRank:         avgPageRank,
		CommonComponent:     commonComponent,
		CentralityComponent: centralityComponent,
		ImportanceComponent: importanceComponent,
	}, nil
}

// counterparties returns the set of addresses an address transacts
// with, either direction.
func (s *ScoringService) counterparties(ctx context.Context, address string) (map[string]bool, error) {
	outgoing, err := s.edges.ListOutgoing(ctx, address)
	if err != nil {
		return nil, err
	}
	incoming, err := s.edges.ListIncoming(ctx, address)
	if err != nil {
		return nil, err
	}

	set := make(map[string]bool, len(outgoing)+len(incoming))
	for _, rel := range outgoing {
		set[rel.ToAddress] = true
	}
	for _, rel := range incoming {
		set[rel.FromAddress] = true
	}
	delete(set, address)
	return set, nil
}

// metricsRow reads a node's persisted metrics, degrading to zeros
func (s *ScoringService) metricsRow(ctx context.Context, logger *logging.Logger, address string) models.NodeMetrics {
	row, err := s.nodeMetrics.GetNodeMetrics(ctx, address)
	switch {
	case err != nil:
		logger.WithError(err).WithField("node", address).Warn("node metrics lookup degraded")
	case row != nil:
		return *row
	}
	return models.NodeMetrics{Address: address}
}

// riskScore accumulates structuring indicators on the edge itself:
// rapid back-to-back transfers, whole-unit amounts, dead-of-night
// activity, and a freshly created receiving account.
func (s *ScoringService) riskScore(ctx context.Context, logger *logging.Logger, rel *models.Relationship, transferList []*models.Transfer) (float64, RiskDetails) {
	rapid, round, unusual := 0, 0, 0
	for i, t := range transferList {
		if i > 0 && t.Timestamp.Sub(transferList[i-1].Timestamp) < rapidPairGap {
			rapid++
		}
		if wholeUnitValue(t.Value) {
			round++
		}
		if hour := t.Timestamp.UTC().Hour(); hour >= 2 && hour <= 5 {
			unusual++
		}
	}

	count := float64(rel.TransferCount)
	if count < 1 {
		count = 1
	}
	rapidRisk := math.Min(30, float64(rapid)/count*100)
	roundRisk := math.Min(25, float64(round)/count*50)
	timeRisk := math.Min(25, float64(unusual)/count*50)

	newAccount := false
	receiver, err := s.nodes.GetAccount(ctx, rel.ToAddress)
	switch {
	case err != nil:
		logger.WithError(err).Warn("receiver age lookup degraded")
	case receiver != nil:
		firstSeen := receiver.FirstSeen
		if firstSeen.IsZero() {
			firstSeen = receiver.CreatedAt
		}
		if !firstSeen.IsZero() && rel.FirstTransferTime.Sub(firstSeen) < newAccountAge {
			newAccount = true
		}
	}
	var newAccountRisk float64
	if newAccount {
		newAccountRisk = 20
	}

	total := math.Min(100, rapidRisk+roundRisk+timeRisk+newAccountRisk)
	return total, RiskDetails{
		RapidTransfers: rapid,
		RoundNumbers:   round,
		UnusualTime:    unusual,
		NewAccount:     newAccount,
		RapidRisk:      rapidRisk,
		RoundRisk:      roundRisk,
		TimeRisk:       timeRisk,
		NewAccountRisk: newAccountRisk,
	}
}

// wholeUnitValue reports whether a value is an exact multiple of the
// chain base unit.
func wholeUnitValue(value string) bool {
	v, ok := models.ParseAmount(value)
	if !ok || v.Sign() == 0 {
		return false
	}
	return new(big.Int).Mod(v, baseUnit).Sign() == 0
}

// ScoreAndStore computes and persists the score for one ordered pair.
// A missing edge yields (nil, nil) and persists nothing.
func (s *ScoringService) ScoreAndStore(ctx context.Context, from, to string) (*RelationshipAssessment, error) {
	assessment, err := s.ScoreRelationship(ctx, from, to)
	if err != nil || assessment == nil {
		return assessment, err
	}
	if err := s.scores.UpsertScore(ctx, &assessment.Score); err != nil {
		return nil, err
	}
	return assessment, nil
}

// ScoreAddressRelationships scores and persists every outgoing edge of
// an address, strongest first.
func (s *ScoringService) ScoreAddressRelationships(ctx context.Context, address string) ([]*RelationshipAssessment, error) {
	started := time.Now()

	rels, err := s.edges.ListOutgoing(ctx, address)
	if err != nil {
		s.metrics.ObserveOperation("score_address", "error", started)
		return nil, err
	}

	assessments := make([]*RelationshipAssessment, 0, len(rels))
	for _, rel := range rels {
		assessment, err := s.ScoreAndStore(ctx, rel.FromAddress, rel.ToAddress)
		if err != nil {
			s.metrics.ObserveOperation("score_address", "error", started)
			return nil, err
		}
		if assessment != nil {
			assessments = append(assessments, assessment)
		}
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"address": address,
		"scored":  len(assessments),
	}).Debug("address relationships scored")
	s.metrics.ObserveOperation("score_address", "ok", started)
	return assessments, nil
}

// SuspiciousRelationship is a strong edge annotated with endpoint risk
type SuspiciousRelationship struct {
	Score     models.RelationshipScore `json:"score"`
	Band      types.ScoreBand          `json:"band"`
	FromRisk  float64                  `json:"fromRisk"`
	ToRisk    float64                  `json:"toRisk"`
	RiskLevel types.RiskLevel          `json:"riskLevel"`
}

// FindSuspiciousRelationships returns persisted scores at or above
// minScore, annotated with the risk of both endpoints. The risk level
// reflects the riskier endpoint.
func (s *ScoringService) FindSuspiciousRelationships(ctx context.Context, minScore float64, limit int) ([]SuspiciousRelationship, error) {
	started := time.Now()
	logger := logging.FromContext(ctx)

	if limit <= 0 {
		limit = DefaultSuspiciousLimit
	}

	scores, err := s.scores.ListScoresAbove(ctx, minScore, limit)
	if err != nil {
		s.metrics.ObserveOperation("suspicious_relationships", "error", started)
		return nil, err
	}

	results := make([]SuspiciousRelationship, 0, len(scores))
	for _, score := range scores {
		item := SuspiciousRelationship{
			Score: *score,
			Band:  types.ScoreBandForScore(score.TotalScore),
		}
		for _, endpoint := range []struct {
			address string
			risk    *float64
		}{
			{score.FromAddress, &item.FromRisk},
			{score.ToAddress, &item.ToRisk},
		} {
			acc, err := s.nodes.GetAccount(ctx, endpoint.address)
			switch {
			case err != nil:
				logger.WithError(err).WithField("node", endpoint.address).Warn("endpoint risk lookup degraded")
			case acc != nil:
				*endpoint.risk = acc.RiskScore
			}
		}
		item.RiskLevel = types.RiskLevelForScore(math.Max(item.FromRisk, item.ToRisk))
		results = append(results, item)
	}

	s.metrics.ObserveOperation("suspicious_relationships", "ok", started)
	return results, nil
}
