// Package stt transcribes recorded speech through the Google Cloud
// Speech-to-Text REST API.
package stt

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/api/option"
	speech "google.golang.org/api/speech/v1"
)

var (
	// ErrNoAPIKey is returned when no Speech-to-Text API key is configured.
	ErrNoAPIKey = errors.New("stt: API key is required")

	// ErrNoAudio is returned when the request carries no audio bytes.
	ErrNoAudio = errors.New("stt: audio data is empty")

	// ErrNoSpeech is returned when the recognizer found nothing to
	// transcribe in the audio.
	ErrNoSpeech = errors.New("stt: no speech recognized")
)

// Result is one finished transcription.
type Result struct {
	// Transcript is the recognized text, all result segments joined.
	Transcript string

	// Confidence is the recognizer's confidence for the first segment,
	// 0 when the API did not report one.
	Confidence float64

	// LatencyMs measures the recognize round trip.
	LatencyMs int64
}

// Config holds transcriber settings. Defaults match browser MediaRecorder
// output: WebM/Opus at 48 kHz.
type Config struct {
	APIKey               string
	Language             string
	AlternativeLanguages []string
	Encoding             string
	SampleRate           int
	Timeout              time.Duration
	Logger               *slog.Logger

	// Endpoint overrides the API base URL, for tests.
	Endpoint string
}

// DefaultConfig returns settings tuned for Mandarin speakers who mix in
// English, the primary audience of the web frontend.
func DefaultConfig() Config {
	return Config{
		Language:             "zh-TW",
		AlternativeLanguages: []string{"zh-CN", "en-US"},
		Encoding:             "WEBM_OPUS",
		SampleRate:           48000,
		Timeout:              30 * time.Second,
		Logger:               slog.Default(),
	}
}

// Option configures a Transcriber.
type Option func(*Config)

// WithAPIKey sets the Speech-to-Text API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithLanguage sets the primary recognition language.
func WithLanguage(code string) Option {
	return func(c *Config) { c.Language = code }
}

// WithAlternativeLanguages sets additional candidate languages.
func WithAlternativeLanguages(codes ...string) Option {
	return func(c *Config) { c.AlternativeLanguages = codes }
}

// WithTimeout bounds a single recognize call.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithEndpoint overrides the API base URL.
func WithEndpoint(url string) Option {
	return func(c *Config) { c.Endpoint = url }
}

// Transcriber converts recorded audio to text. Safe for concurrent use.
type Transcriber struct {
	svc    *speech.Service
	cfg    Config
	logger *slog.Logger
}

// New creates a transcriber authenticated with an API key.
func New(ctx context.Context, opts ...Option) (*Transcriber, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	clientOpts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.Endpoint))
	}

	svc, err := speech.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("stt: create speech service: %w", err)
	}

	return &Transcriber{
		svc:    svc,
		cfg:    cfg,
		logger: cfg.Logger.With("component", "stt"),
	}, nil
}

// Transcribe recognizes speech in a complete audio recording. The call is
// bounded by the configured timeout; a deadline overrun surfaces as
// context.DeadlineExceeded for the caller to map to a gateway timeout.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte) (*Result, error) {
	if len(audio) == 0 {
		return nil, ErrNoAudio
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	req := &speech.RecognizeRequest{
		Config: &speech.RecognitionConfig{
			Encoding:                   t.cfg.Encoding,
			SampleRateHertz:            int64(t.cfg.SampleRate),
			LanguageCode:               t.cfg.Language,
			AlternativeLanguageCodes:   t.cfg.AlternativeLanguages,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speech.RecognitionAudio{
			Content: base64.StdEncoding.EncodeToString(audio),
		},
	}

	start := time.Now()
	resp, err := t.svc.Speech.Recognize(req).Context(ctx).Do()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("stt: recognize: %w", err)
	}
	latency := time.Since(start).Milliseconds()

	result := &Result{LatencyMs: latency}
	var sb strings.Builder
	for _, r := range resp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		sb.WriteString(r.Alternatives[0].Transcript)
		if result.Confidence == 0 {
			result.Confidence = r.Alternatives[0].Confidence
		}
	}
	result.Transcript = strings.TrimSpace(sb.String())

	if result.Transcript == "" {
		return nil, ErrNoSpeech
	}

	t.logger.Debug("transcription complete",
		"chars", len(result.Transcript),
		"confidence", result.Confidence,
		"latency_ms", latency,
	)
	return result, nil
}
