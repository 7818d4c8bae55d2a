package floodgate

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Option is a functional option for configuring a RateLimiter.
type Option func(*RateLimiter) error

// WithConfig sets the engine configuration.
func WithConfig(config *Config) Option {
	return func(rl *RateLimiter) error {
		if config == nil {
			return fmt.Errorf("%w: config cannot be nil", ErrInvalidConfig)
		}
		if err := config.Validate(); err != nil {
			return err
		}
		rl.cfg = config
		return nil
	}
}

// WithConfigFile loads the engine configuration from a YAML file.
func WithConfigFile(path string) Option {
	return func(rl *RateLimiter) error {
		config, err := LoadConfigFromFile(path)
		if err != nil {
			return err
		}
		rl.cfg = config
		return nil
	}
}

// WithClock sets a custom time source. Tests use this to drive expiry and
// sweeps deterministically.
func WithClock(clock Clock) Option {
	return func(rl *RateLimiter) error {
		if clock == nil {
			return fmt.Errorf("%w: clock cannot be nil", ErrInvalidConfig)
		}
		rl.clock = clock
		return nil
	}
}

// WithLogger sets the structured logger. Without it the engine is silent.
func WithLogger(log *logrus.Logger) Option {
	return func(rl *RateLimiter) error {
		if log == nil {
			return fmt.Errorf("%w: logger cannot be nil", ErrInvalidConfig)
		}
		rl.log = log
		return nil
	}
}

// WithMetrics sets the metrics recorder receiving decision and violation
// observations.
func WithMetrics(recorder MetricsRecorder) Option {
	return func(rl *RateLimiter) error {
		if recorder == nil {
			return fmt.Errorf("%w: metrics recorder cannot be nil", ErrInvalidConfig)
		}
		rl.metrics = recorder
		return nil
	}
}

// WithKeyExtractor sets how the HTTP middleware identifies sources.
func WithKeyExtractor(extractor KeyExtractor) Option {
	return func(rl *RateLimiter) error {
		if extractor == nil {
			return fmt.Errorf("%w: key extractor cannot be nil", ErrInvalidConfig)
		}
		rl.keyExtractor = extractor
		return nil
	}
}
