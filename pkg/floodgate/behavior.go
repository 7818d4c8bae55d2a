package floodgate

import (
	"strings"
	"time"
)

const (
	intervalRingCapacity  = 50
	userAgentRingCapacity = 20
	payloadRingCapacity   = 50

	// geoTagCap bounds the coarse-location set; the diversity heuristic
	// only needs to distinguish "a few" from "many".
	geoTagCap = 64

	// suspicionThreshold is the behavioral score at or above which a
	// source is flagged suspicious.
	suspicionThreshold = 0.5
)

// botUserAgentMarkers are substrings that identify automated clients.
var botUserAgentMarkers = []string{"bot", "crawler", "spider", "scraper", "automated"}

// RequestMetadata carries the optional per-request signals the behavioral
// and threat analyzers consume. The zero value is valid: absent fields
// simply contribute nothing.
type RequestMetadata struct {
	// UserAgent is the client-reported agent string.
	UserAgent string

	// PayloadSize is the request body size in bytes.
	PayloadSize int

	// GeoTag is a coarse location indicator (country code, hash prefix).
	GeoTag string

	// ContextMultiplier scales the effective limits for this request's
	// context (e.g. 1.2 for low-risk endpoints, 0.9 for high-risk ones).
	// Zero means 1.0.
	ContextMultiplier float64
}

// BehaviorProfile is the rolling per-source behavior sample: inter-request
// gaps, user agents and payload sizes in fixed-capacity rings plus a bounded
// set of coarse geo tags. The capacities are part of the detection contract.
//
// BehaviorProfile is not safe for concurrent use; the RateLimiter guards it
// with the per-source lock.
type BehaviorProfile struct {
	intervals    *floatRing
	userAgents   *stringRing
	payloadSizes *floatRing
	geoTags      map[string]struct{}
	lastRequest  time.Time
}

func newBehaviorProfile() *BehaviorProfile {
	return &BehaviorProfile{
		intervals:    newFloatRing(intervalRingCapacity),
		userAgents:   newStringRing(userAgentRingCapacity),
		payloadSizes: newFloatRing(payloadRingCapacity),
		geoTags:      make(map[string]struct{}),
	}
}

// Observe folds one request's metadata into the profile.
func (p *BehaviorProfile) Observe(now time.Time, md RequestMetadata) {
	if !p.lastRequest.IsZero() {
		gap := now.Sub(p.lastRequest).Seconds()
		if gap < 0 {
			gap = 0
		}
		p.intervals.Push(gap)
	}
	p.lastRequest = now

	if md.UserAgent != "" {
		p.userAgents.Push(md.UserAgent)
	}
	if md.PayloadSize > 0 {
		p.payloadSizes.Push(float64(md.PayloadSize))
	}
	if md.GeoTag != "" && len(p.geoTags) < geoTagCap {
		p.geoTags[md.GeoTag] = struct{}{}
	}
}

// GeoCount returns the number of distinct coarse locations observed.
func (p *BehaviorProfile) GeoCount() int { return len(p.geoTags) }

// BehaviorAssessment is the behavioral analyzer's verdict for one source.
type BehaviorAssessment struct {
	// SuspicionScore is the accumulated score clamped to [0, 1].
	SuspicionScore float64 `json:"suspicion_score"`

	// Indicators names the signals that contributed to the score.
	Indicators []string `json:"indicators,omitempty"`
}

// Suspicious reports whether the score crosses the flagging threshold.
func (a BehaviorAssessment) Suspicious() bool {
	return a.SuspicionScore >= suspicionThreshold
}

// BehavioralAnalyzer scores a source's rolling behavior profile for signs
// of automation: mechanical timing, user-agent rotation, bot agent strings,
// geographic spread and recent violation history. Scoring is stateless;
// all state lives in the profile.
type BehavioralAnalyzer struct{}

// NewBehavioralAnalyzer creates an analyzer.
func NewBehavioralAnalyzer() *BehavioralAnalyzer {
	return &BehavioralAnalyzer{}
}

// Analyze scores the profile, additively accumulating indicator weights and
// clamping the total to [0, 1]. recentViolations is the source's violation
// count over the trailing hour. The error return exists so the orchestrator
// can fail open when the profile is unavailable.
func (a *BehavioralAnalyzer) Analyze(profile *BehaviorProfile, recentViolations int) (BehaviorAssessment, error) {
	if profile == nil {
		return BehaviorAssessment{}, ErrUnknownSource
	}

	var score float64
	var indicators []string

	if profile.intervals.Len() >= 5 {
		mean, variance := profile.intervals.MeanVariance()
		if variance < 0.1 && mean < 5 {
			score += 0.3
			indicators = append(indicators, "robotic_timing")
		}
		if mean < 1 {
			score += 0.4
			indicators = append(indicators, "extremely_fast")
		}
	}

	if profile.userAgents.Distinct() > 5 {
		score += 0.2
		indicators = append(indicators, "user_agent_rotation")
	}
	if hasBotUserAgent(profile.userAgents.Values()) {
		score += 0.5
		indicators = append(indicators, "bot_user_agent")
	}

	if profile.GeoCount() > 3 {
		score += 0.3
		indicators = append(indicators, "geo_diversity")
	}

	if recentViolations > 0 {
		score += 0.2 * float64(recentViolations)
		indicators = append(indicators, "repeat_offender")
	}

	if score > 1 {
		score = 1
	}

	return BehaviorAssessment{SuspicionScore: score, Indicators: indicators}, nil
}

func hasBotUserAgent(agents []string) bool {
	for _, agent := range agents {
		lower := strings.ToLower(agent)
		for _, marker := range botUserAgentMarkers {
			if strings.Contains(lower, marker) {
				return true
			}
		}
	}
	return false
}
