package session

import (
	"log/slog"
	"time"
)

// Config holds session client configuration.
type Config struct {
	// ServerURL is the base URL of the avatar proxy server.
	ServerURL string

	// AvatarID identifies the avatar persona to provision.
	AvatarID string

	// ContextID optionally selects a knowledge context for the avatar.
	ContextID string

	// VoiceID optionally overrides the avatar's voice.
	VoiceID string

	// Language is the BCP 47 conversation language.
	Language string

	// KeepAliveInterval is the cadence of best-effort keep-alive pings.
	KeepAliveInterval time.Duration

	// SettleDelay is the pause between the transport handshake completing
	// and the first control message.
	SettleDelay time.Duration

	// RequestTimeout bounds each HTTP call to the proxy.
	RequestTimeout time.Duration

	// Logger for session events. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Language:          "en",
		KeepAliveInterval: 60 * time.Second,
		SettleDelay:       500 * time.Millisecond,
		RequestTimeout:    30 * time.Second,
		Logger:            slog.Default(),
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return ErrMissingServerURL
	}
	if c.AvatarID == "" {
		return ErrMissingAvatarID
	}
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = 60 * time.Second
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Option configures a session client.
type Option func(*Config)

// WithServerURL sets the avatar proxy base URL.
func WithServerURL(url string) Option {
	return func(c *Config) { c.ServerURL = url }
}

// WithAvatarID sets the avatar persona.
func WithAvatarID(id string) Option {
	return func(c *Config) { c.AvatarID = id }
}

// WithContextID sets the knowledge context.
func WithContextID(id string) Option {
	return func(c *Config) { c.ContextID = id }
}

// WithVoiceID overrides the avatar voice.
func WithVoiceID(id string) Option {
	return func(c *Config) { c.VoiceID = id }
}

// WithLanguage sets the conversation language.
func WithLanguage(lang string) Option {
	return func(c *Config) { c.Language = lang }
}

// WithKeepAliveInterval sets the keep-alive cadence.
func WithKeepAliveInterval(d time.Duration) Option {
	return func(c *Config) { c.KeepAliveInterval = d }
}

// WithSettleDelay sets the post-handshake settle pause.
func WithSettleDelay(d time.Duration) Option {
	return func(c *Config) { c.SettleDelay = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}
