package floodgate

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the rate limiting and detection thresholds.
// All durations are expressed in seconds so the YAML surface stays flat
// and language-neutral; use the accessor methods for time.Duration values.
type Config struct {
	// RequestsPerMinute is the base per-minute limit before multipliers.
	RequestsPerMinute int `yaml:"requests_per_minute"`

	// RequestsPerHour is the base per-hour limit before multipliers.
	RequestsPerHour int `yaml:"requests_per_hour"`

	// BurstThreshold is the maximum requests tolerated inside the burst window.
	// The threshold is halved for sources already flagged suspicious.
	BurstThreshold int `yaml:"burst_threshold"`

	// BurstWindowSeconds is the length of the burst detection window.
	BurstWindowSeconds int `yaml:"burst_window_seconds"`

	// BurstPenaltySeconds is the flat penalty applied on a burst trigger.
	// Burst penalties never scale with violation history.
	BurstPenaltySeconds int `yaml:"burst_penalty_seconds"`

	// MinutePenaltySeconds is the base penalty for a minute-limit violation.
	MinutePenaltySeconds int `yaml:"minute_penalty_seconds"`

	// HourPenaltySeconds is the base penalty for an hour-limit violation.
	HourPenaltySeconds int `yaml:"hour_penalty_seconds"`

	// TrustedMultiplier scales limits for explicitly trusted sources.
	TrustedMultiplier float64 `yaml:"trusted_multiplier"`

	// NewSourceMultiplier scales limits for sources younger than NewSourceAgeSeconds.
	NewSourceMultiplier float64 `yaml:"new_source_multiplier"`

	// SuspiciousMultiplier scales limits for sources flagged suspicious.
	SuspiciousMultiplier float64 `yaml:"suspicious_multiplier"`

	// NewSourceAgeSeconds is how long a source counts as "new" after first sight.
	NewSourceAgeSeconds int `yaml:"new_source_age_seconds"`

	// AutoBanThreshold is the violation count inside the violation memory
	// window that triggers an automatic ban.
	AutoBanThreshold int `yaml:"auto_ban_threshold"`

	// AutoBanDurationSeconds is how long an automatic ban lasts.
	AutoBanDurationSeconds int `yaml:"auto_ban_duration_seconds"`

	// ViolationMemorySeconds is how long violation records are retained.
	ViolationMemorySeconds int `yaml:"violation_memory_seconds"`

	// SweepIntervalSeconds is how often the background sweep runs.
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`

	// RetentionSeconds is the request-window retention horizon. It must
	// cover every counting window (minute, hour, burst).
	RetentionSeconds int `yaml:"retention_seconds"`

	// StalenessSeconds is how long an idle source with no active ban or
	// violations is kept before the sweep removes it.
	StalenessSeconds int `yaml:"staleness_seconds"`

	// AttackRateThreshold is the request rate (req/s) the threat scorer
	// treats as an application-layer attack signal.
	AttackRateThreshold float64 `yaml:"attack_rate_threshold"`

	// OversizePayloadBytes is the payload size the threat scorer flags as oversized.
	OversizePayloadBytes int `yaml:"oversize_payload_bytes"`
}

// DefaultConfig returns a Config with the engine's default thresholds.
func DefaultConfig() *Config {
	return &Config{
		RequestsPerMinute:      30,
		RequestsPerHour:        800,
		BurstThreshold:         5,
		BurstWindowSeconds:     10,
		BurstPenaltySeconds:    600,
		MinutePenaltySeconds:   60,
		HourPenaltySeconds:     300,
		TrustedMultiplier:      2.0,
		NewSourceMultiplier:    0.3,
		SuspiciousMultiplier:   0.1,
		NewSourceAgeSeconds:    3600,
		AutoBanThreshold:       10,
		AutoBanDurationSeconds: 86400,
		ViolationMemorySeconds: 86400,
		SweepIntervalSeconds:   300,
		RetentionSeconds:       3600,
		StalenessSeconds:       86400,
		AttackRateThreshold:    10.0,
		OversizePayloadBytes:   10240,
	}
}

// LoadConfigFromFile loads configuration from a YAML file.
// Fields absent from the file keep their defaults.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrInvalidConfig, err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse YAML: %v", ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks if the configuration is valid.
// Construction fails fast on non-positive thresholds rather than
// surfacing bad limits at request time.
func (c *Config) Validate() error {
	positives := []struct {
		name  string
		value int
	}{
		{"requests_per_minute", c.RequestsPerMinute},
		{"requests_per_hour", c.RequestsPerHour},
		{"burst_threshold", c.BurstThreshold},
		{"burst_window_seconds", c.BurstWindowSeconds},
		{"burst_penalty_seconds", c.BurstPenaltySeconds},
		{"minute_penalty_seconds", c.MinutePenaltySeconds},
		{"hour_penalty_seconds", c.HourPenaltySeconds},
		{"new_source_age_seconds", c.NewSourceAgeSeconds},
		{"auto_ban_threshold", c.AutoBanThreshold},
		{"auto_ban_duration_seconds", c.AutoBanDurationSeconds},
		{"violation_memory_seconds", c.ViolationMemorySeconds},
		{"sweep_interval_seconds", c.SweepIntervalSeconds},
		{"retention_seconds", c.RetentionSeconds},
		{"staleness_seconds", c.StalenessSeconds},
		{"oversize_payload_bytes", c.OversizePayloadBytes},
	}
	for _, p := range positives {
		if p.value <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidConfig, p.name, p.value)
		}
	}

	multipliers := []struct {
		name  string
		value float64
	}{
		{"trusted_multiplier", c.TrustedMultiplier},
		{"new_source_multiplier", c.NewSourceMultiplier},
		{"suspicious_multiplier", c.SuspiciousMultiplier},
		{"attack_rate_threshold", c.AttackRateThreshold},
	}
	for _, m := range multipliers {
		if m.value <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %g", ErrInvalidConfig, m.name, m.value)
		}
	}

	// The retention horizon must cover every counting window, otherwise
	// counts would silently come up short.
	if c.RetentionSeconds < 3600 || c.RetentionSeconds < c.BurstWindowSeconds {
		return fmt.Errorf("%w: retention_seconds (%d) must cover the hour and burst windows", ErrInvalidConfig, c.RetentionSeconds)
	}

	return nil
}

// Duration accessors.

func (c *Config) BurstWindow() time.Duration     { return time.Duration(c.BurstWindowSeconds) * time.Second }
func (c *Config) BurstPenalty() time.Duration    { return time.Duration(c.BurstPenaltySeconds) * time.Second }
func (c *Config) MinutePenalty() time.Duration   { return time.Duration(c.MinutePenaltySeconds) * time.Second }
func (c *Config) HourPenalty() time.Duration     { return time.Duration(c.HourPenaltySeconds) * time.Second }
func (c *Config) NewSourceAge() time.Duration    { return time.Duration(c.NewSourceAgeSeconds) * time.Second }
func (c *Config) AutoBanDuration() time.Duration { return time.Duration(c.AutoBanDurationSeconds) * time.Second }
func (c *Config) ViolationMemory() time.Duration {
	return time.Duration(c.ViolationMemorySeconds) * time.Second
}
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}
func (c *Config) Retention() time.Duration { return time.Duration(c.RetentionSeconds) * time.Second }
func (c *Config) Staleness() time.Duration { return time.Duration(c.StalenessSeconds) * time.Second }
