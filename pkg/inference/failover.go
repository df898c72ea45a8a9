package inference

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// Factory builds a provider bound to one credential.
type Factory func(cred Credential) (Provider, error)

// Caller performs one logical chat call against the keyring, transparently
// retrying on quota-class failures by rotating credentials. All other
// failures abort the call immediately.
type Caller struct {
	ring     *Keyring
	factory  Factory
	attempts int
	logger   *slog.Logger
}

// NewCaller creates a failover caller that builds a Gemini provider for each
// attempt from the keyring's active credential. The options are forwarded to
// the per-attempt providers.
func NewCaller(ring *Keyring, opts ...Option) *Caller {
	factory := func(cred Credential) (Provider, error) {
		return NewGemini(append(opts, WithAPIKey(cred.Secret))...)
	}
	return NewCallerWithFactory(ring, factory, opts...)
}

// NewCallerWithFactory creates a failover caller with a custom provider
// factory. Used by tests and by alternative backends.
func NewCallerWithFactory(ring *Keyring, factory Factory, opts ...Option) *Caller {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		// One full cycle of the keyring: no credential is tried twice
		// before all others have been tried.
		attempts = ring.Size()
	}

	return &Caller{
		ring:     ring,
		factory:  factory,
		attempts: attempts,
		logger:   cfg.Logger.With("component", "inference.caller"),
	}
}

// Invoke issues the chat call, rotating credentials on quota failures.
// It makes at most one attempt per credential; when every attempt fails on
// quota it returns an ExhaustedError carrying the last failure.
func (c *Caller) Invoke(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	var last error

	for attempt := 0; attempt < c.attempts; attempt++ {
		cred := c.ring.Current()

		provider, err := c.factory(cred)
		if err != nil {
			return nil, err
		}

		resp, err := provider.Chat(ctx, req)
		provider.Close()
		if err == nil {
			return resp, nil
		}

		if classify(err) != outcomeQuota {
			return nil, err
		}

		last = err
		c.logger.Warn("credential throttled, rotating",
			"credential", cred.Name,
			"attempt", attempt+1,
			"error", err,
		)
		c.ring.Rotate()

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, &ExhaustedError{Attempts: c.attempts, Last: last}
}

// Attempts returns the attempt cap for one invocation.
func (c *Caller) Attempts() int {
	return c.attempts
}

// outcome is the closed set of failure classes the retry loop branches on.
type outcome int

const (
	outcomeQuota outcome = iota // rate/quota exhaustion: rotate and retry
	outcomeOther                // anything else: fail fast
)

// classify maps a backend failure onto the outcome set. Typed signals are
// checked first; the substring heuristic on the error text is kept here,
// isolated, for backends whose failure taxonomy is free-text. Absence of a
// recognized quota signal means outcomeOther so genuine errors are never
// masked as exhausted retries.
func classify(err error) outcome {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.IsRateLimited() || apiErr.Status == "RESOURCE_EXHAUSTED" {
			return outcomeQuota
		}
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"quota", "rate", "limit", "429", "resource"} {
		if strings.Contains(msg, marker) {
			return outcomeQuota
		}
	}

	return outcomeOther
}
