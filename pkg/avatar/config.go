// Package avatar orchestrates a complete avatar conversation: session
// lifecycle, voice capture, turn-taking, transcript relay, and the
// dashboard. Flag parsing is done in cmd/avatar/main.go; this Config is
// data only.
package avatar

import (
	"github.com/sellembedded/go-avatar/internal/config"
	"github.com/sellembedded/go-avatar/pkg/relay"
)

// Config holds all configuration for the avatar application.
type Config struct {
	// Debug enables verbose debug logging.
	Debug bool

	// ServerURL is the avatar proxy base URL.
	ServerURL string

	// AvatarID identifies the avatar persona.
	AvatarID string

	// ContextID optionally selects a knowledge context.
	ContextID string

	// VoiceID optionally overrides the avatar voice.
	VoiceID string

	// Language is the conversation language.
	Language string

	// Intro overrides the default greeting.
	Intro string

	// OpenAIKey authenticates transcription.
	OpenAIKey string

	// RelayURL and RelayKey configure transcript persistence. When
	// RelayKey is empty, transcripts are not persisted.
	RelayURL string
	RelayKey string

	// WebAddr is the dashboard listen address; empty disables it.
	WebAddr string

	// AudioBackend selects the capture backend ("auto" or "mock").
	AudioBackend string
}

// DefaultConfig returns sensible defaults for the avatar application.
func DefaultConfig() Config {
	return Config{
		Language:     "en",
		RelayURL:     relay.DefaultBaseURL,
		WebAddr:      ":8090",
		AudioBackend: "auto",
	}
}

// LoadEnvConfig loads configuration values from environment variables.
// Call this after flag parsing to fill in what flags left unset.
func (c *Config) LoadEnvConfig() {
	if c.ServerURL == "" {
		c.ServerURL = config.Env("AVATAR_SERVER_URL", "")
	}
	if c.AvatarID == "" {
		c.AvatarID = config.Env("AVATAR_ID", "")
	}
	if c.ContextID == "" {
		c.ContextID = config.Env("AVATAR_CONTEXT_ID", "")
	}
	if c.VoiceID == "" {
		c.VoiceID = config.Env("AVATAR_VOICE_ID", "")
	}
	c.OpenAIKey = config.Env("OPENAI_API_KEY", c.OpenAIKey)
	c.RelayURL = config.Env("RELAY_URL", c.RelayURL)
	c.RelayKey = config.Env("RELAY_API_KEY", c.RelayKey)
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return &ConfigError{Field: "ServerURL", Message: "AVATAR_SERVER_URL environment variable is required"}
	}
	if c.AvatarID == "" {
		return &ConfigError{Field: "AvatarID", Message: "AVATAR_ID environment variable is required"}
	}
	if c.OpenAIKey == "" {
		return &ConfigError{Field: "OpenAIKey", Message: "OPENAI_API_KEY environment variable is required"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
