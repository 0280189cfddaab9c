package capture

import (
	"fmt"
	"log/slog"
	"time"
)

// Config holds voice capture engine configuration.
// The silence constants are tuned empirically; treat them as configuration.
type Config struct {
	// SilenceThreshold is the normalized energy level below which audio
	// counts as silence (0-1).
	SilenceThreshold float64

	// SilenceDuration is how long energy must stay below the threshold
	// before a recording is auto-stopped.
	SilenceDuration time.Duration

	// StopFallback bounds how long an explicit stop waits for the capture
	// loop to acknowledge before the completion callback is forced.
	StopFallback time.Duration

	// Logger is the structured logger to use.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SilenceThreshold: 0.005,
		SilenceDuration:  time.Second,
		StopFallback:     500 * time.Millisecond,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.SilenceThreshold < 0 || c.SilenceThreshold > 1 {
		return fmt.Errorf("silence_threshold must be in [0,1], got %v", c.SilenceThreshold)
	}
	if c.SilenceDuration <= 0 {
		return fmt.Errorf("silence_duration must be positive, got %v", c.SilenceDuration)
	}
	if c.StopFallback <= 0 {
		return fmt.Errorf("stop_fallback must be positive, got %v", c.StopFallback)
	}
	return nil
}
