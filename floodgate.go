package floodgate

import (
	fg "github.com/yourusername/floodgate/pkg/floodgate"
)

// Re-export main types for convenience
type (
	Config           = fg.Config
	Decision         = fg.Decision
	RateLimiter      = fg.RateLimiter
	RequestMetadata  = fg.RequestMetadata
	ThreatAssessment = fg.ThreatAssessment
	Option           = fg.Option
	KeyExtractor     = fg.KeyExtractor
)

// NewRateLimiter creates a new rate limiting engine
var NewRateLimiter = fg.NewRateLimiter

// DefaultConfig returns the engine's default thresholds
var DefaultConfig = fg.DefaultConfig
