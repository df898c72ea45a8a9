// Package relay orchestrates one conversational voice request: reply text
// from the inference layer, voice profile from the cache, audio chunks from
// the synthesis engine, framed and pushed to the client as they arrive.
//
// A request moves through an explicit session state machine. Text generation
// completes before any audio byte is written because the HTTP response
// headers carry the reply preview and chunk estimate, and headers cannot
// change once the body has started.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/voxguide/voxguide/pkg/inference"
	"github.com/voxguide/voxguide/pkg/tts"
	"github.com/voxguide/voxguide/pkg/wav"
)

// ErrEmptyText is returned when the request text is empty after trimming.
// No backend call is made in that case.
var ErrEmptyText = errors.New("relay: text must not be empty")

// TextGenerator produces a reply for a user message.
// *inference.Caller satisfies this.
type TextGenerator interface {
	Invoke(ctx context.Context, req *inference.ChatRequest) (*inference.ChatResponse, error)
}

// Relay wires the text backend, profile cache, and synthesis engine into the
// per-request pipeline. Construct one at startup and share it across
// requests; per-request state lives in Session.
type Relay struct {
	generator  TextGenerator
	engine     tts.Engine
	profiles   *tts.ProfileCache
	speakerWAV string
	outputDir  string
	logger     *slog.Logger
}

// Option configures a Relay.
type Option func(*Relay)

// WithSpeakerWAV sets the reference voice sample for the default speaker.
func WithSpeakerWAV(path string) Option {
	return func(r *Relay) { r.speakerWAV = path }
}

// WithOutputDir sets the directory for one-shot synthesis output files.
func WithOutputDir(dir string) Option {
	return func(r *Relay) { r.outputDir = dir }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Relay) { r.logger = l.With("component", "relay") }
}

// New creates a relay. The output directory is created if missing.
func New(generator TextGenerator, engine tts.Engine, profiles *tts.ProfileCache, opts ...Option) (*Relay, error) {
	r := &Relay{
		generator: generator,
		engine:    engine,
		profiles:  profiles,
		outputDir: "outputs",
		logger:    slog.Default().With("component", "relay"),
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("relay: create output dir: %w", err)
	}
	return r, nil
}

// OutputDir returns the directory holding generated audio files.
func (r *Relay) OutputDir() string {
	return r.outputDir
}

// SpeakerProfile returns the profile for the configured reference voice.
func (r *Relay) SpeakerProfile(ctx context.Context) (*tts.Profile, error) {
	return r.profiles.Get(ctx, r.speakerWAV)
}

// CloneProfile extracts a profile from an uploaded reference sample without
// caching it: the file is transient, so its path is no stable identity.
func (r *Relay) CloneProfile(ctx context.Context, wavPath string) (*tts.Profile, error) {
	profile, err := r.engine.ExtractProfile(ctx, wavPath)
	if err != nil {
		return nil, &tts.ProfileError{Key: wavPath, Err: err}
	}
	return profile, nil
}

// PrepareChat validates the user text, generates the reply, and resolves the
// voice profile. On success the session is ready to stream: the caller can
// commit response headers built from ReplyText and EstimatedChunks.
func (r *Relay) PrepareChat(ctx context.Context, userText string, opts SpeechOptions) (*Session, error) {
	s := newSession(userText, opts)

	if err := s.validate(); err != nil {
		return nil, err
	}
	if err := r.generate(ctx, s); err != nil {
		return nil, err
	}

	return r.prepareSynthesis(ctx, s)
}

func (r *Relay) generate(ctx context.Context, s *Session) error {
	s.state = StateGeneratingText
	resp, err := r.generator.Invoke(ctx, &inference.ChatRequest{
		Messages: []inference.Message{inference.NewUserMessage(s.RequestText)},
	})
	if err != nil {
		s.fail()
		return err
	}
	s.ReplyText = resp.Message.Content
	r.logger.Info("reply generated",
		"request_chars", len(s.RequestText),
		"reply_chars", len(s.ReplyText),
		"latency_ms", resp.LatencyMs,
	)
	return nil
}

// PrepareSpeech validates the text and resolves the voice profile without a
// text-generation step, for synthesis-only requests.
func (r *Relay) PrepareSpeech(ctx context.Context, text string, opts SpeechOptions) (*Session, error) {
	s := newSession(text, opts)

	if err := s.validate(); err != nil {
		return nil, err
	}
	s.ReplyText = s.RequestText

	return r.prepareSynthesis(ctx, s)
}

// prepareSynthesis moves a session with reply text into the synthesizing
// state: chunk estimate plus voice profile.
func (r *Relay) prepareSynthesis(ctx context.Context, s *Session) (*Session, error) {
	s.state = StateSynthesizing
	s.EstimatedChunks = EstimateChunks(s.ReplyText)

	profile, err := r.profiles.Get(ctx, r.speakerWAV)
	if err != nil {
		s.fail()
		return nil, err
	}
	s.profile = profile

	return s, nil
}

// StreamTo drives the engine's chunk iterator through the framer into w,
// one chunk at a time with no batching. Each chunk is flushed immediately so
// the client hears audio while later chunks are still being synthesized.
// A write failure means the client stopped reading; the relay stops pulling
// chunks instead of synthesizing audio no one will receive.
func (r *Relay) StreamTo(ctx context.Context, s *Session, w io.Writer) error {
	s.state = StateStreaming

	stream, err := r.engine.Stream(ctx, s.speechRequest())
	if err != nil {
		s.fail()
		return err
	}
	defer stream.Close()

	format := stream.Format()
	framer := wav.NewFramer(s.frameMode(), format.SampleRate, format.BitDepth, format.Channels)

	if header := framer.Start(); len(header) > 0 {
		if err := writeFlush(w, header); err != nil {
			s.fail()
			return err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			s.fail()
			return err
		}

		chunk, err := stream.Read()
		if err != nil {
			s.fail()
			return err
		}
		if chunk == nil {
			break
		}

		if err := writeFlush(w, framer.Frame(chunk)); err != nil {
			s.fail()
			r.logger.Info("client stopped reading, aborting synthesis",
				"chunks_emitted", s.ChunksEmitted,
				"error", err,
			)
			return err
		}
		s.ChunksEmitted++
	}

	s.state = StateDone
	r.logger.Debug("stream complete",
		"estimated_chunks", s.EstimatedChunks,
		"actual_chunks", s.ChunksEmitted,
	)
	return nil
}

// SpeakToFile renders the session's reply to a complete WAV file in the
// output directory and returns the file name. Files are never cleaned up.
func (r *Relay) SpeakToFile(ctx context.Context, s *Session) (string, error) {
	s.state = StateStreaming

	result, err := r.engine.Synthesize(ctx, s.speechRequest())
	if err != nil {
		s.fail()
		return "", err
	}

	id := uuid.New()
	name := fmt.Sprintf("output_%x.wav", id[:4])
	path := filepath.Join(r.outputDir, name)

	data := wav.Encode(result.Audio, result.Format.SampleRate, result.Format.BitDepth, result.Format.Channels)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		s.fail()
		return "", fmt.Errorf("relay: write audio file: %w", err)
	}

	s.state = StateDone
	r.logger.Info("audio file written",
		"file", name,
		"bytes", len(data),
		"duration", result.Duration,
	)
	return name, nil
}

// writeFlush writes then flushes when the writer supports it, so each chunk
// reaches the client before the next is synthesized.
func writeFlush(w io.Writer, b []byte) error {
	if _, err := w.Write(b); err != nil {
		return err
	}
	if f, ok := w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// EstimateChunks predicts how many audio chunks a reply will produce.
// Roughly one chunk per ten characters, never fewer than five. This is a
// progress hint for clients, not a correctness guarantee.
func EstimateChunks(text string) int {
	n := len([]rune(text)) / 10
	if n < 5 {
		return 5
	}
	return n
}
