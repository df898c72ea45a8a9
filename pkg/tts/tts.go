// Package tts provides the boundary to the voice-synthesis engine.
//
// The Engine interface fronts an XTTS-style streaming synthesis server: text
// plus a voice profile in, raw PCM chunks out. The engine holds mutable state
// during one inference and must not run two inferences at once, so
// implementations serialize access. Voice profiles — the expensive
// conditioning features derived from a reference voice sample — are memoized
// by ProfileCache.
//
// Example usage:
//
//	engine, _ := tts.NewXTTS(tts.WithEngineURL("http://localhost:8020"))
//	defer engine.Close()
//
//	profile, _ := engine.ExtractProfile(ctx, "speaker.wav")
//	stream, _ := engine.Stream(ctx, &tts.SpeechRequest{Text: "Hello", Profile: profile})
//	// stream.Read() yields PCM chunks as they are produced
package tts

import (
	"context"
	"time"
)

// Engine is the voice-synthesis interface.
// All implementations must satisfy this interface.
type Engine interface {
	// Stream synthesizes text into a sequence of raw PCM chunks, yielding
	// audio while later chunks are still being produced.
	Stream(ctx context.Context, req *SpeechRequest) (AudioStream, error)

	// Synthesize converts text to a complete audio buffer.
	// Use this for file output where first-byte latency is less critical.
	Synthesize(ctx context.Context, req *SpeechRequest) (*AudioResult, error)

	// ExtractProfile derives the voice conditioning features from a
	// reference audio file. This is expensive; cache the result.
	ExtractProfile(ctx context.Context, refWAV string) (*Profile, error)

	// Device reports the compute device the engine selected at startup.
	Device() string

	// Health checks engine connectivity.
	Health(ctx context.Context) error

	// Close releases any resources held by the engine.
	Close() error
}

// AudioStream represents a streaming synthesis response.
// Callers should read until Read returns nil, then call Close.
type AudioStream interface {
	// Read returns the next PCM chunk in production order.
	// Returns nil when the stream is complete (not an error).
	Read() ([]byte, error)

	// Close stops the stream and releases resources.
	Close() error

	// Format returns the audio format metadata.
	Format() AudioFormat
}

// SpeechRequest describes one synthesis.
type SpeechRequest struct {
	// Text to synthesize.
	Text string

	// Language code (e.g. "zh-cn", "en"). Empty uses the engine default.
	Language string

	// Profile is the voice to speak with.
	Profile *Profile

	// StreamChunkSize tunes the engine's chunking; smaller means lower
	// latency. Zero uses the engine default.
	StreamChunkSize int
}

// AudioResult represents a complete synthesis result.
type AudioResult struct {
	// Audio contains the raw PCM data.
	Audio []byte

	// Format describes the audio encoding.
	Format AudioFormat

	// Duration is the estimated playback duration.
	Duration time.Duration

	// CharCount is the number of characters synthesized.
	CharCount int

	// LatencyMs is the time to first byte in milliseconds.
	LatencyMs int64
}

// AudioFormat describes PCM encoding parameters.
type AudioFormat struct {
	// SampleRate in Hz.
	SampleRate int

	// Channels is 1 for mono, 2 for stereo.
	Channels int

	// BitDepth per sample (16 for PCM16).
	BitDepth int
}

// DefaultFormat is the engine's native output: mono 16-bit 24 kHz PCM.
func DefaultFormat() AudioFormat {
	return AudioFormat{SampleRate: 24000, Channels: 1, BitDepth: 16}
}

// BytesPerSecond returns the PCM data rate for this format.
func (f AudioFormat) BytesPerSecond() int {
	return f.SampleRate * f.Channels * f.BitDepth / 8
}
