package floodgate

import "math"

// ThreatLevel classifies the combined threat score.
type ThreatLevel string

const (
	ThreatNone     ThreatLevel = "none"
	ThreatLow      ThreatLevel = "low"
	ThreatMedium   ThreatLevel = "medium"
	ThreatHigh     ThreatLevel = "high"
	ThreatCritical ThreatLevel = "critical"
)

// Recommended actions per threat level.
const (
	ActionMonitor           = "monitor"
	ActionRateLimitStandard = "rate_limit_standard"
	ActionRateLimitStrict   = "rate_limit_strict"
)

// Sub-score weights for the combined threat score.
const (
	weightStatistical = 0.3
	weightEntropy     = 0.2
	weightBehavioral  = 0.3
	weightReputation  = 0.2
)

// ThreatAssessment is the DDoS sub-engine's verdict for one source.
type ThreatAssessment struct {
	Level             ThreatLevel `json:"level"`
	Score             float64     `json:"score"`
	Statistical       float64     `json:"statistical"`
	Entropy           float64     `json:"entropy"`
	Behavioral        float64     `json:"behavioral"`
	Reputation        float64     `json:"reputation"`
	RecommendedAction string      `json:"recommended_action"`
}

// threatSample is the point-in-time view of a source the scorer consumes.
// It is assembled under the per-source lock so scoring itself runs lockless.
type threatSample struct {
	rate             float64 // requests per second over the trailing minute
	burstCount       int
	hourCount        int
	intervalVariance float64
	intervalSamples  int
	payloadMean      float64
	payloadVariance  float64
	payloadSamples   int
	geoCount         int
	payloadSize      int // size of the message under analysis
}

// ThreatScorer combines statistical, entropy, behavioral and reputation
// sub-scores into a weighted threat level. It is advisory: its findings are
// recorded as violations through the PenaltyEngine but it never mutates
// rate-limit counters itself.
type ThreatScorer struct {
	cfg *Config
}

// NewThreatScorer creates a scorer bound to the given configuration.
func NewThreatScorer(cfg *Config) *ThreatScorer {
	return &ThreatScorer{cfg: cfg}
}

// Score computes the weighted threat assessment for a sample.
func (s *ThreatScorer) Score(sample threatSample) ThreatAssessment {
	statistical := s.statisticalScore(sample)
	entropy := s.entropyScore(sample)
	behavioral := s.behavioralScore(sample)
	reputation := s.reputationScore(sample)

	combined := weightStatistical*statistical +
		weightEntropy*entropy +
		weightBehavioral*behavioral +
		weightReputation*reputation

	level := levelFor(combined)

	return ThreatAssessment{
		Level:             level,
		Score:             combined,
		Statistical:       statistical,
		Entropy:           entropy,
		Behavioral:        behavioral,
		Reputation:        reputation,
		RecommendedAction: actionFor(level),
	}
}

// statisticalScore combines rate-over-threshold, burst-factor and
// bot-probability contributions.
func (s *ThreatScorer) statisticalScore(sample threatSample) float64 {
	score := 0.0
	if sample.rate > s.cfg.AttackRateThreshold {
		score += 0.4
	}
	if s.burstFactor(sample) > 3 {
		score += 0.3
	}
	score += 0.3 * s.botProbability(sample)
	return clampUnit(score)
}

// botProbability is a 0-1 heuristic built from rate, payload-uniformity and
// burst signals, each capped at one third.
func (s *ThreatScorer) botProbability(sample threatSample) float64 {
	const signalCap = 1.0 / 3.0

	rateSignal := sample.rate / (3 * s.cfg.AttackRateThreshold)
	if rateSignal > signalCap {
		rateSignal = signalCap
	}

	sizeSignal := 0.0
	if sample.payloadSamples >= 5 && payloadUniform(sample) {
		sizeSignal = signalCap
	}

	burstSignal := 0.0
	if s.burstFactor(sample) > 3 {
		burstSignal = signalCap
	}

	return clampUnit(rateSignal + sizeSignal + burstSignal)
}

// burstFactor is the ratio of the burst-window request rate to the
// hour-average rate. Zero when there is no hourly baseline.
func (s *ThreatScorer) burstFactor(sample threatSample) float64 {
	if sample.hourCount == 0 {
		return 0
	}
	burstRate := float64(sample.burstCount) / float64(s.cfg.BurstWindowSeconds)
	avgRate := float64(sample.hourCount) / 3600.0
	return burstRate / avgRate
}

// entropyScore is the inverse of inter-request-interval variance: mechanical
// timing (low variance) scores high.
func (s *ThreatScorer) entropyScore(sample threatSample) float64 {
	if sample.intervalSamples < 2 {
		return 0
	}
	return math.Max(0, 1-sample.intervalVariance/10)
}

// behavioralScore combines payload-size uniformity, single-origin flood and
// oversized-payload signals.
func (s *ThreatScorer) behavioralScore(sample threatSample) float64 {
	score := 0.0
	if sample.payloadSamples >= 5 && payloadUniform(sample) {
		score += 0.3
	}
	if sample.geoCount == 1 && sample.rate > s.cfg.AttackRateThreshold/2 {
		score += 0.3
	}
	if sample.payloadSize > s.cfg.OversizePayloadBytes {
		score += 0.4
	}
	return clampUnit(score)
}

// reputationScore is 1 - reputation, where reputation decays with request
// rate as 1 - min(0.5, rate/10).
func (s *ThreatScorer) reputationScore(sample threatSample) float64 {
	return clampUnit(math.Min(0.5, sample.rate/10))
}

// payloadUniform reports whether payload sizes are suspiciously uniform
// (coefficient of variation under 10%).
func payloadUniform(sample threatSample) bool {
	if sample.payloadMean <= 0 {
		return false
	}
	cv := math.Sqrt(sample.payloadVariance) / sample.payloadMean
	return cv < 0.1
}

func levelFor(score float64) ThreatLevel {
	switch {
	case score >= 0.9:
		return ThreatCritical
	case score >= 0.7:
		return ThreatHigh
	case score >= 0.4:
		return ThreatMedium
	case score >= 0.2:
		return ThreatLow
	default:
		return ThreatNone
	}
}

func actionFor(level ThreatLevel) string {
	switch level {
	case ThreatCritical:
		return string(ActionBlockPermanent)
	case ThreatHigh:
		return string(ActionBlockTemporary)
	case ThreatMedium:
		return ActionRateLimitStrict
	case ThreatLow:
		return ActionRateLimitStandard
	default:
		return ActionMonitor
	}
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
