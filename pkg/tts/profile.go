package tts

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Profile holds the voice conditioning features derived from a reference
// audio sample. The JSON form is the transferable representation clients can
// cache and send back to skip recomputation.
type Profile struct {
	// GPTCondLatent is the conditioning latent, row-major.
	GPTCondLatent [][]float64 `json:"gpt_cond_latent"`

	// SpeakerEmbedding is the speaker embedding vector.
	SpeakerEmbedding []float64 `json:"speaker_embedding"`
}

// Transferable returns the JSON-safe representation of the profile.
func (p *Profile) Transferable() map[string]interface{} {
	return map[string]interface{}{
		"gpt_cond_latent":   p.GPTCondLatent,
		"speaker_embedding": p.SpeakerEmbedding,
	}
}

// ProfileCache memoizes voice-profile extraction per reference-audio key.
// Extraction is expensive, so concurrent first requests for the same key
// collapse into one underlying call; different keys proceed independently.
// Cached profiles live for the process lifetime.
type ProfileCache struct {
	engine Engine
	logger *slog.Logger

	group    singleflight.Group
	mu       sync.RWMutex
	profiles map[string]*Profile
}

// NewProfileCache creates a cache backed by the given engine.
func NewProfileCache(engine Engine, opts ...Option) *ProfileCache {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	return &ProfileCache{
		engine:   engine,
		logger:   cfg.Logger.With("component", "tts.profiles"),
		profiles: make(map[string]*Profile),
	}
}

// Get returns the profile for a reference audio file, extracting it on first
// use. The key is the canonical absolute path, so different spellings of the
// same file share one entry. Extraction failure is reported as a ProfileError
// and leaves the cache unpopulated for that key.
func (c *ProfileCache) Get(ctx context.Context, refWAV string) (*Profile, error) {
	key := canonicalKey(refWAV)

	c.mu.RLock()
	profile, ok := c.profiles[key]
	c.mu.RUnlock()
	if ok {
		return profile, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Re-check: a previous flight may have populated the entry.
		c.mu.RLock()
		cached, ok := c.profiles[key]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}

		c.logger.Info("extracting voice profile", "key", key)
		extracted, err := c.engine.ExtractProfile(ctx, refWAV)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.profiles[key] = extracted
		c.mu.Unlock()
		return extracted, nil
	})
	if err != nil {
		return nil, &ProfileError{Key: key, Err: err}
	}

	return v.(*Profile), nil
}

// Len returns the number of cached profiles.
func (c *ProfileCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.profiles)
}

// canonicalKey resolves a reference path to its cache identity.
func canonicalKey(refWAV string) string {
	abs, err := filepath.Abs(refWAV)
	if err != nil {
		return refWAV
	}
	return abs
}
