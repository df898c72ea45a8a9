package relay

import (
	"strings"

	"github.com/voxguide/voxguide/pkg/tts"
	"github.com/voxguide/voxguide/pkg/wav"
)

// State is the lifecycle position of a session. Transitions only move
// forward; a failed session is never resumed.
type State int

const (
	StateReceived State = iota
	StateGeneratingText
	StateSynthesizing
	StateStreaming
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateGeneratingText:
		return "generating_text"
	case StateSynthesizing:
		return "synthesizing"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SpeechOptions shape how a session's reply is rendered to audio.
type SpeechOptions struct {
	// Language is the synthesis language code. Empty means the engine
	// default.
	Language string

	// ChunkSize is the engine's stream chunk size. Zero means the engine
	// default.
	ChunkSize int

	// Standalone wraps every chunk in its own WAV container instead of
	// emitting a single header followed by raw frames. For clients that
	// decode each chunk independently.
	Standalone bool
}

// Session carries the state of one voice request from arrival to the last
// audio byte. Sessions are single-use and confined to one goroutine.
type Session struct {
	// RequestText is the user's message, trimmed.
	RequestText string

	// ReplyText is the text being spoken. For chat sessions it is the
	// generated reply; for synthesis-only sessions it equals RequestText.
	ReplyText string

	// EstimatedChunks is the progress hint computed from ReplyText.
	EstimatedChunks int

	// ChunksEmitted counts audio chunks actually written to the client.
	ChunksEmitted int

	opts    SpeechOptions
	profile *tts.Profile
	state   State
}

func newSession(text string, opts SpeechOptions) *Session {
	return &Session{
		RequestText: strings.TrimSpace(text),
		opts:        opts,
		state:       StateReceived,
	}
}

// State returns the session's current lifecycle position.
func (s *Session) State() State {
	return s.state
}

func (s *Session) validate() error {
	if s.RequestText == "" {
		s.fail()
		return ErrEmptyText
	}
	return nil
}

func (s *Session) fail() {
	s.state = StateFailed
}

func (s *Session) speechRequest() *tts.SpeechRequest {
	return &tts.SpeechRequest{
		Text:            s.ReplyText,
		Language:        s.opts.Language,
		Profile:         s.profile,
		StreamChunkSize: s.opts.ChunkSize,
	}
}

func (s *Session) frameMode() wav.Mode {
	if s.opts.Standalone {
		return wav.ModeStandalone
	}
	return wav.ModeHeaderOnce
}
