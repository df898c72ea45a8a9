package tts

import (
	"context"
	"sync"
	"time"
)

// Mock implements Engine for testing.
// All methods can be customized via function fields.
type Mock struct {
	// StreamFunc is called when Stream is invoked.
	// If nil, returns silent chunks paced to the text length.
	StreamFunc func(ctx context.Context, req *SpeechRequest) (AudioStream, error)

	// ExtractProfileFunc is called when ExtractProfile is invoked.
	// If nil, returns a small fixed profile.
	ExtractProfileFunc func(ctx context.Context, refWAV string) (*Profile, error)

	// HealthFunc is called when Health is invoked.
	// If nil, returns nil (healthy).
	HealthFunc func(ctx context.Context) error

	// DeviceName is reported by Device. Defaults to "mock".
	DeviceName string

	// Tracking
	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation for verification.
type MockCall struct {
	Method string
	Text   string
	Time   time.Time
}

// NewMock creates a mock engine producing silent audio.
func NewMock() *Mock {
	return &Mock{
		StreamFunc: func(ctx context.Context, req *SpeechRequest) (AudioStream, error) {
			// One silent chunk per ~10 characters, 960 bytes each
			// (~20ms at 24kHz PCM16), at least one chunk.
			count := len([]rune(req.Text)) / 10
			if count < 1 {
				count = 1
			}
			chunks := make([][]byte, count)
			for i := range chunks {
				chunks[i] = make([]byte, 960)
			}
			return &SliceStream{Chunks: chunks, AudioFormat: DefaultFormat()}, nil
		},
		ExtractProfileFunc: func(ctx context.Context, refWAV string) (*Profile, error) {
			return &Profile{
				GPTCondLatent:    [][]float64{{0.1, 0.2}, {0.3, 0.4}},
				SpeakerEmbedding: []float64{0.5, 0.6, 0.7},
			}, nil
		},
		DeviceName: "mock",
	}
}

// WithStreamError returns a mock whose synthesis always fails with err.
func WithStreamError(err error) *Mock {
	return &Mock{
		StreamFunc: func(ctx context.Context, req *SpeechRequest) (AudioStream, error) {
			return nil, err
		},
		ExtractProfileFunc: func(ctx context.Context, refWAV string) (*Profile, error) {
			return nil, err
		},
		HealthFunc: func(ctx context.Context) error {
			return err
		},
		DeviceName: "mock",
	}
}

// Stream calls StreamFunc and records the call.
func (m *Mock) Stream(ctx context.Context, req *SpeechRequest) (AudioStream, error) {
	m.recordCall("Stream", req.Text)
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, req)
	}
	return nil, ErrEngineUnavailable
}

// Synthesize drains a Stream into one buffer and records the call.
func (m *Mock) Synthesize(ctx context.Context, req *SpeechRequest) (*AudioResult, error) {
	m.recordCall("Synthesize", req.Text)
	if m.StreamFunc == nil {
		return nil, ErrEngineUnavailable
	}
	stream, err := m.StreamFunc(ctx, req)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var audio []byte
	for {
		chunk, err := stream.Read()
		if err != nil {
			return nil, err
		}
		if chunk == nil {
			break
		}
		audio = append(audio, chunk...)
	}

	return &AudioResult{
		Audio:     audio,
		Format:    stream.Format(),
		CharCount: len(req.Text),
	}, nil
}

// ExtractProfile calls ExtractProfileFunc and records the call.
func (m *Mock) ExtractProfile(ctx context.Context, refWAV string) (*Profile, error) {
	m.recordCall("ExtractProfile", refWAV)
	if m.ExtractProfileFunc != nil {
		return m.ExtractProfileFunc(ctx, refWAV)
	}
	return nil, ErrEngineUnavailable
}

// Device returns the configured device name.
func (m *Mock) Device() string {
	if m.DeviceName == "" {
		return "mock"
	}
	return m.DeviceName
}

// Health calls HealthFunc and records the call.
func (m *Mock) Health(ctx context.Context) error {
	m.recordCall("Health", "")
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// Close records the call.
func (m *Mock) Close() error {
	m.recordCall("Close", "")
	return nil
}

// recordCall adds a call to the tracking list.
func (m *Mock) recordCall(method, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{
		Method: method,
		Text:   text,
		Time:   time.Now(),
	})
}

// Calls returns all recorded method calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of times a method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// Reset clears all recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// SliceStream is an AudioStream backed by a fixed chunk list.
// Useful for tests and for replaying buffered audio.
type SliceStream struct {
	Chunks      [][]byte
	AudioFormat AudioFormat

	pos    int
	closed bool
}

// Read returns the next chunk, or nil when exhausted.
func (s *SliceStream) Read() ([]byte, error) {
	if s.closed {
		return nil, ErrStreamClosed
	}
	if s.pos >= len(s.Chunks) {
		return nil, nil
	}
	chunk := s.Chunks[s.pos]
	s.pos++
	return chunk, nil
}

// Close marks the stream closed.
func (s *SliceStream) Close() error {
	s.closed = true
	return nil
}

// Format returns the audio format.
func (s *SliceStream) Format() AudioFormat {
	if s.AudioFormat.SampleRate == 0 {
		return DefaultFormat()
	}
	return s.AudioFormat
}

// Verify Mock implements Engine at compile time.
var _ Engine = (*Mock)(nil)
var _ AudioStream = (*SliceStream)(nil)
