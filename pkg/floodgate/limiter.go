package floodgate

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Action is the decision the engine hands back for a request.
type Action string

const (
	// ActionAllow admits the request.
	ActionAllow Action = "allow"

	// ActionRateLimit rejects the request because an effective limit was
	// breached; the source may retry after the penalty expires.
	ActionRateLimit Action = "rate_limit"

	// ActionBlockTemporary rejects the request under an active penalty.
	ActionBlockTemporary Action = "block_temporary"

	// ActionBlockPermanent rejects the request under an active ban.
	ActionBlockPermanent Action = "block_permanent"
)

// Decision is the result of evaluating one request.
type Decision struct {
	// Action is what the caller should do with the request.
	Action Action `json:"action"`

	// Reason is a human-readable explanation, always populated.
	Reason string `json:"reason"`

	// RetryAfter is how long until the source may be admitted again.
	// Zero when the request is allowed.
	RetryAfter time.Duration `json:"retry_after_ns"`

	// MinuteCount and HourCount are the source's current window counts,
	// attached for observability on allowed and rate-limited requests.
	MinuteCount int `json:"minute_count"`
	HourCount   int `json:"hour_count"`

	// Limits are the effective limits applied, when computed.
	Limits *Limits `json:"limits,omitempty"`

	// Degraded is set when an advisory sub-component failed and its
	// contribution was skipped.
	Degraded bool `json:"degraded,omitempty"`

	// Source is the identity the decision applies to.
	Source string `json:"source"`
}

// Allowed reports whether the request should proceed.
func (d *Decision) Allowed() bool { return d.Action == ActionAllow }

// SourceStatus is the administrative view of one source.
type SourceStatus struct {
	Source         string     `json:"source"`
	IsTrusted      bool       `json:"is_trusted"`
	IsSuspicious   bool       `json:"is_suspicious"`
	IsBanned       bool       `json:"is_banned"`
	BannedUntil    *time.Time `json:"banned_until,omitempty"`
	ViolationCount int        `json:"violation_count"`
	MinuteCount    int        `json:"minute_count"`
	HourCount      int        `json:"hour_count"`
	TotalRequests  int64      `json:"total_requests"`
}

// MetricsRecorder receives decision and violation observations. The metrics
// package provides a Prometheus-backed implementation; a nil recorder is
// never called.
type MetricsRecorder interface {
	ObserveDecision(action string, elapsed time.Duration)
	ObserveViolation(kind string)
	ObserveAutoBan()
}

// Stats are the engine's internal instrumentation counters. Ban
// short-circuiting is observable here: burst and threshold checks do not
// advance while a source is banned.
type Stats struct {
	Evaluations     int64 `json:"evaluations"`
	Allowed         int64 `json:"allowed"`
	RateLimited     int64 `json:"rate_limited"`
	TempBlocked     int64 `json:"temp_blocked"`
	PermBlocked     int64 `json:"perm_blocked"`
	BurstChecks     int64 `json:"burst_checks"`
	ThresholdChecks int64 `json:"threshold_checks"`
	AutoBans        int64 `json:"auto_bans"`
	ActiveSources   int   `json:"active_sources"`
}

type counters struct {
	evaluations     atomic.Int64
	allowed         atomic.Int64
	rateLimited     atomic.Int64
	tempBlocked     atomic.Int64
	permBlocked     atomic.Int64
	burstChecks     atomic.Int64
	thresholdChecks atomic.Int64
	autoBans        atomic.Int64
}

// sourceState bundles the mutable per-source structures under one lock so a
// single source's updates stay atomic with respect to its own concurrent
// requests.
type sourceState struct {
	mu      sync.Mutex
	window  *SourceWindow
	profile *BehaviorProfile
}

// RateLimiter is the adaptive rate-limiting and DDoS-detection engine. All
// external callers go through Evaluate; the admin methods manage reputation
// out of band. Construct instances explicitly and pass them to whatever owns
// the request path; there is no package-level singleton.
type RateLimiter struct {
	cfg      *Config
	clock    Clock
	log      *logrus.Logger
	rep      *ReputationStore
	policy   *ThresholdPolicy
	burst    *BurstGuard
	penalty  *PenaltyEngine
	analyzer *BehavioralAnalyzer
	scorer   *ThreatScorer
	metrics  MetricsRecorder

	keyExtractor KeyExtractor

	mu      sync.RWMutex
	sources map[string]*sourceState

	stats counters
}

// NewRateLimiter creates an engine with the given options. Defaults: the
// built-in configuration, the system clock, a silent logger and IP-based
// source extraction for the HTTP surface.
func NewRateLimiter(opts ...Option) (*RateLimiter, error) {
	rl := &RateLimiter{
		cfg:     DefaultConfig(),
		clock:   systemClock{},
		sources: make(map[string]*sourceState),
	}

	for _, opt := range opts {
		if err := opt(rl); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := rl.cfg.Validate(); err != nil {
		return nil, err
	}

	if rl.log == nil {
		rl.log = logrus.New()
		rl.log.SetOutput(io.Discard)
	}
	if rl.keyExtractor == nil {
		rl.keyExtractor = ExtractIPWithProxy()
	}

	rl.rep = NewReputationStore(rl.cfg.ViolationMemory())
	rl.policy = NewThresholdPolicy(rl.cfg)
	rl.burst = NewBurstGuard(rl.cfg)
	rl.penalty = NewPenaltyEngine(rl.cfg, rl.rep, rl.log)
	rl.analyzer = NewBehavioralAnalyzer()
	rl.scorer = NewThreatScorer(rl.cfg)

	return rl, nil
}

// Evaluate runs the full decision pipeline for one request:
//  1. an active ban short-circuits everything (cheap path);
//  2. an active penalty short-circuits the counters;
//  3. the request is recorded and the behavior profile updated;
//  4. the behavioral analyzer may flag the source suspicious;
//  5. the burst guard may penalize and escalate to auto-ban;
//  6. the threshold policy compares minute/hour counts and may penalize
//     and escalate;
//  7. otherwise the request is allowed with counts and limits attached.
//
// The only error returned is ErrInvalidSource for an empty identifier;
// every expected condition is a Decision variant.
func (rl *RateLimiter) Evaluate(source string, now time.Time, md RequestMetadata) (*Decision, error) {
	if source == "" {
		return nil, ErrInvalidSource
	}

	rl.stats.evaluations.Add(1)
	started := rl.clock.Now()

	decision := rl.evaluate(source, now, md)

	switch decision.Action {
	case ActionAllow:
		rl.stats.allowed.Add(1)
	case ActionRateLimit:
		rl.stats.rateLimited.Add(1)
	case ActionBlockTemporary:
		rl.stats.tempBlocked.Add(1)
	case ActionBlockPermanent:
		rl.stats.permBlocked.Add(1)
	}
	if rl.metrics != nil {
		rl.metrics.ObserveDecision(string(decision.Action), rl.clock.Now().Sub(started))
	}

	return decision, nil
}

func (rl *RateLimiter) evaluate(source string, now time.Time, md RequestMetadata) *Decision {
	// Step 1: active ban short-circuits everything else.
	if until, banned := rl.rep.BannedUntil(source, now); banned {
		return &Decision{
			Action:     ActionBlockPermanent,
			Reason:     "source is banned",
			RetryAfter: until.Sub(now),
			Source:     source,
		}
	}

	// Step 2: active penalty short-circuits the counters.
	if until, penalized := rl.rep.PenalizedUntil(source, now); penalized {
		return &Decision{
			Action:     ActionBlockTemporary,
			Reason:     "source is temporarily blocked",
			RetryAfter: until.Sub(now),
			Source:     source,
		}
	}

	// Step 3: record the request and update the behavior profile under
	// the per-source lock, then capture everything the later stages need.
	st := rl.state(source, now)

	st.mu.Lock()
	recorded := st.window.Record(now)
	st.profile.Observe(recorded, md)
	minuteCount := st.window.CountSince(recorded, time.Minute)
	hourCount := st.window.CountSince(recorded, time.Hour)
	age := recorded.Sub(st.window.FirstSeen())
	assessment, analyzeErr := rl.analyzer.Analyze(st.profile, rl.rep.CountViolations(source, recorded, time.Hour))
	burstTriggered, burstCount := rl.burst.Check(st.window, rl.rep.IsSuspicious(source), recorded)
	st.mu.Unlock()
	now = recorded

	degraded := false

	// Step 4: behavioral flagging. Analyzer faults fail open: the
	// contribution is skipped, never the request.
	if analyzeErr != nil {
		degraded = true
		rl.log.WithError(analyzeErr).WithField("source", source).Warn("behavioral analysis skipped")
	} else if assessment.Suspicious() && !rl.rep.IsSuspicious(source) {
		rl.rep.MarkSuspicious(source)
		rl.log.WithFields(logrus.Fields{
			"source":     source,
			"score":      assessment.SuspicionScore,
			"indicators": assessment.Indicators,
		}).Warn("source flagged suspicious")
	}

	// Step 5: burst guard. A newly flagged source gets the stricter
	// threshold on this same request.
	rl.stats.burstChecks.Add(1)
	if !burstTriggered && rl.rep.IsSuspicious(source) {
		burstTriggered, burstCount = rl.recheckBurst(st, source, now)
	}
	if burstTriggered {
		dur := rl.penalty.ApplyBurstPenalty(source, burstCount, now)
		rl.observeViolation(ViolationBurst)
		if banned := rl.checkAutoBan(source, now); banned != nil {
			banned.Degraded = degraded
			return banned
		}
		return &Decision{
			Action:      ActionBlockTemporary,
			Reason:      fmt.Sprintf("burst detected: %d requests in %ds", burstCount, rl.cfg.BurstWindowSeconds),
			RetryAfter:  dur,
			MinuteCount: minuteCount,
			HourCount:   hourCount,
			Degraded:    degraded,
			Source:      source,
		}
	}

	// Step 6: effective limits.
	rl.stats.thresholdChecks.Add(1)
	limits := rl.policy.EffectiveLimits(rl.rep.IsTrusted(source), rl.rep.IsSuspicious(source), age, md.ContextMultiplier)

	if minuteCount > limits.PerMinute {
		return rl.limitBreached(source, ViolationMinuteLimit, minuteCount, hourCount, limits, degraded, now)
	}
	if hourCount > limits.PerHour {
		return rl.limitBreached(source, ViolationHourLimit, minuteCount, hourCount, limits, degraded, now)
	}

	// Step 7: allowed.
	return &Decision{
		Action:      ActionAllow,
		Reason:      "within limits",
		MinuteCount: minuteCount,
		HourCount:   hourCount,
		Limits:      &limits,
		Degraded:    degraded,
		Source:      source,
	}
}

// recheckBurst re-runs the burst check with the suspicious threshold after
// the analyzer flagged the source during this evaluation.
func (rl *RateLimiter) recheckBurst(st *sourceState, source string, now time.Time) (bool, int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return rl.burst.Check(st.window, true, now)
}

func (rl *RateLimiter) limitBreached(source string, kind ViolationKind, minuteCount, hourCount int, limits Limits, degraded bool, now time.Time) *Decision {
	detail := fmt.Sprintf("%d/min against limit %d", minuteCount, limits.PerMinute)
	if kind == ViolationHourLimit {
		detail = fmt.Sprintf("%d/hour against limit %d", hourCount, limits.PerHour)
	}

	dur := rl.penalty.ApplyRateLimitPenalty(source, kind, detail, now)
	rl.observeViolation(kind)

	if banned := rl.checkAutoBan(source, now); banned != nil {
		banned.MinuteCount = minuteCount
		banned.HourCount = hourCount
		banned.Degraded = degraded
		return banned
	}

	return &Decision{
		Action:      ActionRateLimit,
		Reason:      fmt.Sprintf("%s exceeded: %s", kind, detail),
		RetryAfter:  dur,
		MinuteCount: minuteCount,
		HourCount:   hourCount,
		Limits:      &limits,
		Degraded:    degraded,
		Source:      source,
	}
}

// checkAutoBan escalates to a ban when the penalty engine says so. Auto-ban
// faults are advisory: a failure here never errors the request.
func (rl *RateLimiter) checkAutoBan(source string, now time.Time) *Decision {
	if !rl.penalty.ShouldAutoBan(source, now) {
		return nil
	}
	until := rl.penalty.ApplyAutoBan(source, now)
	rl.stats.autoBans.Add(1)
	if rl.metrics != nil {
		rl.metrics.ObserveAutoBan()
	}
	return &Decision{
		Action:     ActionBlockPermanent,
		Reason:     "auto-banned for repeated violations",
		RetryAfter: until.Sub(now),
		Source:     source,
	}
}

func (rl *RateLimiter) observeViolation(kind ViolationKind) {
	if rl.metrics != nil {
		rl.metrics.ObserveViolation(string(kind))
	}
}

// state returns the per-source state, creating it on first sight. The
// double-checked create keeps the read path on the shared RLock.
func (rl *RateLimiter) state(source string, now time.Time) *sourceState {
	rl.mu.RLock()
	st, ok := rl.sources[source]
	rl.mu.RUnlock()
	if ok {
		return st
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if st, ok = rl.sources[source]; ok {
		return st
	}
	st = &sourceState{
		window:  newSourceWindow(rl.cfg.Retention(), now),
		profile: newBehaviorProfile(),
	}
	rl.sources[source] = st
	return st
}

// ScoreThreat runs the DDoS sub-engine for a source out of band (dashboard
// or manual analysis; it is not part of the Evaluate hot path). A critical
// assessment is recorded as a ddos violation through the penalty engine so
// the auto-ban rules stay the single source of truth.
func (rl *RateLimiter) ScoreThreat(source string, now time.Time, messageContent string, md RequestMetadata) (*ThreatAssessment, error) {
	if source == "" {
		return nil, ErrInvalidSource
	}

	rl.mu.RLock()
	st, ok := rl.sources[source]
	rl.mu.RUnlock()

	sample := threatSample{payloadSize: len(messageContent)}
	if sample.payloadSize == 0 {
		sample.payloadSize = md.PayloadSize
	}
	if ok {
		st.mu.Lock()
		sample.burstCount = st.window.CountSince(now, rl.cfg.BurstWindow())
		sample.hourCount = st.window.CountSince(now, time.Hour)
		sample.rate = float64(st.window.CountSince(now, time.Minute)) / 60.0
		_, sample.intervalVariance = st.profile.intervals.MeanVariance()
		sample.intervalSamples = st.profile.intervals.Len()
		sample.payloadMean, sample.payloadVariance = st.profile.payloadSizes.MeanVariance()
		sample.payloadSamples = st.profile.payloadSizes.Len()
		sample.geoCount = st.profile.GeoCount()
		st.mu.Unlock()
	}

	assessment := rl.scorer.Score(sample)

	rl.log.WithFields(logrus.Fields{
		"source": source,
		"level":  assessment.Level,
		"score":  assessment.Score,
	}).Debug("threat assessment")

	if assessment.Level == ThreatCritical {
		rl.penalty.RecordThreatViolation(source, ViolationDDoS,
			fmt.Sprintf("critical threat score %.2f", assessment.Score), now)
		rl.observeViolation(ViolationDDoS)
		if rl.penalty.ShouldAutoBan(source, now) {
			rl.penalty.ApplyAutoBan(source, now)
			rl.stats.autoBans.Add(1)
			if rl.metrics != nil {
				rl.metrics.ObserveAutoBan()
			}
		}
	}

	return &assessment, nil
}

// Admin surface.

// AddTrustedSource puts a source on the allow-list (highest-priority multiplier).
func (rl *RateLimiter) AddTrustedSource(source string) { rl.rep.AddTrusted(source) }

// RemoveTrustedSource takes a source off the allow-list.
func (rl *RateLimiter) RemoveTrustedSource(source string) { rl.rep.RemoveTrusted(source) }

// MarkSuspicious flags a source for stricter limits and burst sensitivity.
func (rl *RateLimiter) MarkSuspicious(source string) { rl.rep.MarkSuspicious(source) }

// ClearSuspicious removes the suspicious flag.
func (rl *RateLimiter) ClearSuspicious(source string) { rl.rep.ClearSuspicious(source) }

// Ban blocks a source for the given duration starting now.
func (rl *RateLimiter) Ban(source string, duration time.Duration) error {
	if source == "" {
		return ErrInvalidSource
	}
	if duration <= 0 {
		return ErrInvalidDuration
	}
	rl.rep.Ban(source, rl.clock.Now().Add(duration))
	return nil
}

// Unban lifts any ban on the source.
func (rl *RateLimiter) Unban(source string) { rl.rep.Unban(source) }

// Status returns the administrative view of a source.
func (rl *RateLimiter) Status(source string) (*SourceStatus, error) {
	if source == "" {
		return nil, ErrInvalidSource
	}
	now := rl.clock.Now()

	status := &SourceStatus{
		Source:         source,
		IsTrusted:      rl.rep.IsTrusted(source),
		IsSuspicious:   rl.rep.IsSuspicious(source),
		ViolationCount: len(rl.rep.Violations(source, now)),
	}
	if until, banned := rl.rep.BannedUntil(source, now); banned {
		status.IsBanned = true
		status.BannedUntil = &until
	}

	rl.mu.RLock()
	st, ok := rl.sources[source]
	rl.mu.RUnlock()
	if ok {
		st.mu.Lock()
		status.MinuteCount = st.window.CountSince(now, time.Minute)
		status.HourCount = st.window.CountSince(now, time.Hour)
		status.TotalRequests = st.window.TotalRequests()
		st.mu.Unlock()
	}

	return status, nil
}

// Snapshot captures the reputation state for persistence by the host.
func (rl *RateLimiter) Snapshot() *ReputationSnapshot {
	return rl.rep.Snapshot(rl.clock.Now())
}

// RestoreSnapshot merges a persisted reputation snapshot back in.
func (rl *RateLimiter) RestoreSnapshot(snap *ReputationSnapshot) {
	rl.rep.Restore(snap, rl.clock.Now())
}

// Stats returns a snapshot of the instrumentation counters.
func (rl *RateLimiter) Stats() Stats {
	rl.mu.RLock()
	active := len(rl.sources)
	rl.mu.RUnlock()

	return Stats{
		Evaluations:     rl.stats.evaluations.Load(),
		Allowed:         rl.stats.allowed.Load(),
		RateLimited:     rl.stats.rateLimited.Load(),
		TempBlocked:     rl.stats.tempBlocked.Load(),
		PermBlocked:     rl.stats.permBlocked.Load(),
		BurstChecks:     rl.stats.burstChecks.Load(),
		ThresholdChecks: rl.stats.thresholdChecks.Load(),
		AutoBans:        rl.stats.autoBans.Load(),
		ActiveSources:   active,
	}
}

// Sweep removes per-source state that has been idle past the staleness
// horizon and carries no active ban, penalty or violations, and expires
// stale reputation entries. It snapshots keys first and locks per entry so
// a full table scan never stalls the hot path. Returns the number of
// sources removed.
func (rl *RateLimiter) Sweep(now time.Time) int {
	rl.mu.RLock()
	keys := make([]string, 0, len(rl.sources))
	for source := range rl.sources {
		keys = append(keys, source)
	}
	rl.mu.RUnlock()

	cutoff := now.Add(-rl.cfg.Staleness())
	removed := 0
	for _, source := range keys {
		rl.mu.RLock()
		st, ok := rl.sources[source]
		rl.mu.RUnlock()
		if !ok {
			continue
		}

		st.mu.Lock()
		stale := st.window.LastSeen().Before(cutoff)
		st.mu.Unlock()

		if !stale || rl.rep.HasActiveState(source, now) {
			continue
		}

		rl.mu.Lock()
		delete(rl.sources, source)
		rl.mu.Unlock()
		removed++
	}

	expired := rl.rep.SweepExpired(now)
	if removed > 0 || expired > 0 {
		rl.log.WithFields(logrus.Fields{
			"sources_removed": removed,
			"entries_expired": expired,
		}).Debug("sweep completed")
	}
	return removed
}

// StartBackgroundSweep runs Sweep on the configured interval. Call the
// returned function to stop it.
func (rl *RateLimiter) StartBackgroundSweep() func() {
	ticker := time.NewTicker(rl.cfg.SweepInterval())
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				rl.Sweep(rl.clock.Now())
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() {
		close(done)
	}
}
