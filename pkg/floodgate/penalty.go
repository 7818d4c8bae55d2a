package floodgate

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// maxPenaltyMultiplier caps progressive escalation of minute/hour penalties.
const maxPenaltyMultiplier = 4

// fastBanWindow and fastBanCount define the rapid-repeat auto-ban rule:
// this many burst/ddos/injection violations inside the window bans a
// source regardless of its total violation count.
const (
	fastBanWindow = 5 * time.Minute
	fastBanCount  = 3
)

// PenaltyEngine issues progressive penalties for rate-limit violations and
// escalates repeat offenders to automatic bans. It is the single source of
// truth for auto-ban decisions: burst, threshold and threat-scorer
// violations all flow through it.
type PenaltyEngine struct {
	cfg *Config
	rep *ReputationStore
	log *logrus.Logger
}

// NewPenaltyEngine creates an engine over the given reputation store.
func NewPenaltyEngine(cfg *Config, rep *ReputationStore, log *logrus.Logger) *PenaltyEngine {
	return &PenaltyEngine{cfg: cfg, rep: rep, log: log}
}

// ApplyRateLimitPenalty records a minute- or hour-limit violation and
// applies a progressive penalty. The multiplier grows with the violations
// already on record in the trailing hour, capped at maxPenaltyMultiplier,
// so the first breach costs the base duration and repeat breaches cost
// more. The penalty never shortens an existing longer block. It returns
// the penalty duration applied.
func (e *PenaltyEngine) ApplyRateLimitPenalty(source string, kind ViolationKind, detail string, now time.Time) time.Duration {
	prior := e.rep.CountViolations(source, now, time.Hour)
	e.rep.RecordViolation(source, ViolationRecord{Timestamp: now, Kind: kind, Detail: detail})

	multiplier := 1 + prior
	if multiplier > maxPenaltyMultiplier {
		multiplier = maxPenaltyMultiplier
	}

	var base time.Duration
	switch kind {
	case ViolationHourLimit:
		base = e.cfg.HourPenalty()
	default:
		base = e.cfg.MinutePenalty()
	}

	duration := base * time.Duration(multiplier)
	e.rep.Penalize(source, now.Add(duration))

	e.log.WithFields(logrus.Fields{
		"source":     source,
		"kind":       kind,
		"multiplier": multiplier,
		"duration":   duration.String(),
	}).Warn("rate limit penalty applied")

	return duration
}

// ApplyBurstPenalty records a burst violation and applies the flat burst
// penalty. It returns the penalty duration applied.
func (e *PenaltyEngine) ApplyBurstPenalty(source string, count int, now time.Time) time.Duration {
	e.rep.RecordViolation(source, ViolationRecord{
		Timestamp: now,
		Kind:      ViolationBurst,
		Detail:    fmt.Sprintf("%d requests in burst window", count),
	})

	duration := e.cfg.BurstPenalty()
	e.rep.Penalize(source, now.Add(duration))

	e.log.WithFields(logrus.Fields{
		"source":   source,
		"count":    count,
		"duration": duration.String(),
	}).Warn("burst penalty applied")

	return duration
}

// RecordThreatViolation records an out-of-band violation (ddos, injection)
// reported by the threat scorer or the host application. No penalty is
// attached here; the violation feeds the auto-ban rules.
func (e *PenaltyEngine) RecordThreatViolation(source string, kind ViolationKind, detail string, now time.Time) {
	e.rep.RecordViolation(source, ViolationRecord{Timestamp: now, Kind: kind, Detail: detail})
}

// ShouldAutoBan reports whether the source has crossed either auto-ban
// trigger: total violations inside the violation memory window reaching the
// configured threshold, or rapid repetition of burst/ddos/injection
// violations inside the fast-ban window.
func (e *PenaltyEngine) ShouldAutoBan(source string, now time.Time) bool {
	total := e.rep.CountViolations(source, now, e.cfg.ViolationMemory())
	if total >= e.cfg.AutoBanThreshold {
		return true
	}

	fast := e.rep.CountViolations(source, now, fastBanWindow,
		ViolationBurst, ViolationDDoS, ViolationInjection)
	return fast >= fastBanCount
}

// ApplyAutoBan bans the source for the configured auto-ban duration and
// marks it suspicious (sticky). It returns the ban expiry.
func (e *PenaltyEngine) ApplyAutoBan(source string, now time.Time) time.Time {
	until := now.Add(e.cfg.AutoBanDuration())
	e.rep.Ban(source, until)
	e.rep.MarkSuspicious(source)

	e.log.WithFields(logrus.Fields{
		"source": source,
		"until":  until.Format(time.RFC3339),
	}).Error("source auto-banned")

	return until
}
