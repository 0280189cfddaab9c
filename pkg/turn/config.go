package turn

import (
	"log/slog"
	"time"
)

// DefaultIntro is spoken when the session carries no greeting of its own.
const DefaultIntro = "Hello and welcome. How can I help you today?"

// Config holds coordinator tuning. The utterance-size and silence
// constants are empirical; treat them as configuration.
type Config struct {
	// MinUtteranceBytes rejects deliveries smaller than this as noise.
	MinUtteranceBytes int

	// MinTranscriptChars rejects transcriptions at or below this length.
	MinTranscriptChars int

	// SettleDelay is the pause after the avatar finishes speaking before
	// the microphone resumes.
	SettleDelay time.Duration

	// RestartDelay is the pause before re-recording after a rejected or
	// empty utterance.
	RestartDelay time.Duration

	// ErrorRestartDelay is the pause before re-recording after a
	// transcription failure.
	ErrorRestartDelay time.Duration

	// IntroDelay is the pause after connect before the greeting is spoken.
	IntroDelay time.Duration

	// HeuristicThreshold is the remote audio level above which the avatar
	// is inferred to be speaking.
	HeuristicThreshold float64

	// HeuristicSilence is how long remote audio must stay below the
	// threshold before the avatar is inferred to have finished.
	HeuristicSilence time.Duration

	// Intro overrides the session greeting when the server provides none.
	Intro string

	// QueueSize bounds the coordinator's event queue.
	QueueSize int

	// Logger for turn transitions. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MinUtteranceBytes:  2048,
		MinTranscriptChars: 3,
		SettleDelay:        500 * time.Millisecond,
		RestartDelay:       500 * time.Millisecond,
		ErrorRestartDelay:  time.Second,
		IntroDelay:         200 * time.Millisecond,
		HeuristicThreshold: 0.01,
		HeuristicSilence:   500 * time.Millisecond,
		Intro:              DefaultIntro,
		QueueSize:          64,
		Logger:             slog.Default(),
	}
}

// Validate checks the configuration and fills defaults.
func (c *Config) Validate() error {
	if c.MinUtteranceBytes <= 0 {
		c.MinUtteranceBytes = 2048
	}
	if c.MinTranscriptChars <= 0 {
		c.MinTranscriptChars = 3
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 500 * time.Millisecond
	}
	if c.RestartDelay <= 0 {
		c.RestartDelay = 500 * time.Millisecond
	}
	if c.ErrorRestartDelay <= 0 {
		c.ErrorRestartDelay = time.Second
	}
	if c.IntroDelay <= 0 {
		c.IntroDelay = 200 * time.Millisecond
	}
	if c.HeuristicThreshold <= 0 {
		c.HeuristicThreshold = 0.01
	}
	if c.HeuristicSilence <= 0 {
		c.HeuristicSilence = 500 * time.Millisecond
	}
	if c.Intro == "" {
		c.Intro = DefaultIntro
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}
