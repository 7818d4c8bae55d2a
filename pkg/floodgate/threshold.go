package floodgate

import "time"

// Limits is the effective per-source rate limit pair.
type Limits struct {
	PerMinute int `json:"per_minute"`
	PerHour   int `json:"per_hour"`
}

// ThresholdPolicy computes effective rate limits for a source from its
// reputation and age. Exactly one reputation multiplier applies, chosen in
// fixed priority order: trusted, then suspicious, then new-source; a
// trusted-but-new source is treated as trusted. The caller-supplied context
// multiplier stacks multiplicatively on top.
type ThresholdPolicy struct {
	cfg *Config
}

// NewThresholdPolicy creates a policy bound to the given configuration.
func NewThresholdPolicy(cfg *Config) *ThresholdPolicy {
	return &ThresholdPolicy{cfg: cfg}
}

// EffectiveLimits returns the limits for a source given its trust and
// suspicion flags, its age since first sight, and the request's context
// multiplier (0 or negative means 1.0). Final limits are clamped to at
// least 1 so no combination of multipliers can zero a source out entirely.
func (p *ThresholdPolicy) EffectiveLimits(trusted, suspicious bool, age time.Duration, contextMultiplier float64) Limits {
	multiplier := 1.0
	switch {
	case trusted:
		multiplier = p.cfg.TrustedMultiplier
	case suspicious:
		multiplier = p.cfg.SuspiciousMultiplier
	case age < p.cfg.NewSourceAge():
		multiplier = p.cfg.NewSourceMultiplier
	}

	if contextMultiplier > 0 {
		multiplier *= contextMultiplier
	}

	return Limits{
		PerMinute: clampLimit(float64(p.cfg.RequestsPerMinute) * multiplier),
		PerHour:   clampLimit(float64(p.cfg.RequestsPerHour) * multiplier),
	}
}

func clampLimit(v float64) int {
	if v < 1 {
		return 1
	}
	return int(v)
}
