package tts

import (
	"log/slog"
	"time"
)

// Default synthesis parameters.
const (
	// DefaultLanguage is the synthesis language when none is requested.
	DefaultLanguage = "zh-cn"

	// DefaultStreamChunkSize balances latency against chunk quality.
	DefaultStreamChunkSize = 20
)

// Config holds engine configuration.
type Config struct {
	// EngineURL is the base URL of the synthesis server.
	EngineURL string

	// Language is the default synthesis language.
	Language string

	// StreamChunkSize is the default engine chunking parameter.
	StreamChunkSize int

	// Timeout bounds non-streaming requests (profile extraction, health).
	Timeout time.Duration

	// StreamTimeout bounds a whole streaming synthesis.
	StreamTimeout time.Duration

	// Logger is the structured logger.
	Logger *slog.Logger
}

// Option is a functional option for configuring engines.
type Option func(*Config)

// WithEngineURL sets the synthesis server base URL.
func WithEngineURL(url string) Option {
	return func(c *Config) { c.EngineURL = url }
}

// WithLanguage sets the default synthesis language.
func WithLanguage(lang string) Option {
	return func(c *Config) { c.Language = lang }
}

// WithStreamChunkSize sets the default engine chunking parameter.
func WithStreamChunkSize(n int) Option {
	return func(c *Config) { c.StreamChunkSize = n }
}

// WithTimeout sets the non-streaming request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithStreamTimeout sets the streaming request timeout.
func WithStreamTimeout(d time.Duration) Option {
	return func(c *Config) { c.StreamTimeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Language:        DefaultLanguage,
		StreamChunkSize: DefaultStreamChunkSize,
		Timeout:         60 * time.Second,
		StreamTimeout:   10 * time.Minute,
		Logger:          slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.EngineURL == "" {
		return ErrNoEngineURL
	}
	return nil
}
