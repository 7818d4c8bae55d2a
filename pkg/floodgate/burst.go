package floodgate

import "time"

// BurstGuard detects short-window request bursts over a SourceWindow.
// It is a fast circuit-breaker: the penalty it triggers is flat and does
// not scale with violation history, unlike minute and hour penalties.
type BurstGuard struct {
	cfg *Config
}

// NewBurstGuard creates a guard bound to the given configuration.
func NewBurstGuard(cfg *Config) *BurstGuard {
	return &BurstGuard{cfg: cfg}
}

// Check counts requests inside the burst window and reports whether the
// burst threshold was exceeded. The threshold is halved (minimum 1) for
// sources already flagged suspicious; this stacks with the suspicious rate
// multiplier rather than replacing it.
func (g *BurstGuard) Check(window *SourceWindow, suspicious bool, now time.Time) (triggered bool, count int) {
	threshold := g.cfg.BurstThreshold
	if suspicious {
		threshold /= 2
		if threshold < 1 {
			threshold = 1
		}
	}
	count = window.CountSince(now, g.cfg.BurstWindow())
	return count > threshold, count
}
