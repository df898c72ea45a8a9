package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/voxguide/voxguide/internal/httpc"
)

// XTTS implements Engine for an XTTS v2 streaming synthesis server.
//
// The server is a separate process fronting the ML model; this client speaks
// its narrow REST contract: streamed PCM synthesis, conditioning-feature
// extraction from an uploaded reference sample, and a device report. The
// model holds internal state during one inference, so the client runs one
// inference at a time; the serialization lock is held until the audio stream
// is closed.
type XTTS struct {
	config       *Config
	client       *http.Client
	streamClient *http.Client
	logger       *slog.Logger
	device       string

	infMu sync.Mutex
}

// NewXTTS creates a client for an XTTS streaming server.
func NewXTTS(opts ...Option) (*XTTS, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	x := &XTTS{
		config:       cfg,
		client:       httpc.NewClient(cfg.Timeout),
		streamClient: httpc.NewClient(cfg.StreamTimeout),
		logger:       cfg.Logger.With("component", "tts.xtts"),
		device:       "unknown",
	}

	// The device is selected once at engine startup and is process-wide.
	if device, err := x.fetchDevice(); err == nil {
		x.device = device
	} else {
		x.logger.Warn("could not query engine device", "error", err)
	}

	return x, nil
}

// Stream synthesizes text into raw PCM chunks.
// The returned stream must be closed; the engine accepts no new inference
// until it is.
func (x *XTTS) Stream(ctx context.Context, req *SpeechRequest) (AudioStream, error) {
	if req.Profile == nil {
		return nil, ErrNoProfile
	}

	payload := map[string]interface{}{
		"text":              req.Text,
		"language":          x.language(req),
		"gpt_cond_latent":   req.Profile.GPTCondLatent,
		"speaker_embedding": req.Profile.SpeakerEmbedding,
		"stream_chunk_size": x.chunkSize(req),
		"add_wav_header":    false,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("tts: marshal stream request: %w", err)
	}

	x.infMu.Lock()

	httpReq, err := http.NewRequestWithContext(ctx, "POST", x.config.EngineURL+"/tts_stream", bytes.NewReader(body))
	if err != nil {
		x.infMu.Unlock()
		return nil, fmt.Errorf("tts: create stream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := x.streamClient.Do(httpReq)
	if err != nil {
		x.infMu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		err := x.parseError(resp)
		resp.Body.Close()
		x.infMu.Unlock()
		return nil, err
	}

	x.logger.Debug("stream started", "chars", len(req.Text), "language", x.language(req))

	return &xttsStream{
		body:    resp.Body,
		format:  DefaultFormat(),
		release: sync.OnceFunc(x.infMu.Unlock),
	}, nil
}

// Synthesize converts text to a complete audio buffer by draining a stream.
func (x *XTTS) Synthesize(ctx context.Context, req *SpeechRequest) (*AudioResult, error) {
	start := time.Now()

	stream, err := x.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var firstByte int64
	var audio []byte
	for {
		chunk, err := stream.Read()
		if err != nil {
			return nil, err
		}
		if chunk == nil {
			break
		}
		if firstByte == 0 {
			firstByte = time.Since(start).Milliseconds()
		}
		audio = append(audio, chunk...)
	}

	format := stream.Format()
	return &AudioResult{
		Audio:     audio,
		Format:    format,
		Duration:  time.Duration(len(audio)) * time.Second / time.Duration(format.BytesPerSecond()),
		CharCount: len(req.Text),
		LatencyMs: firstByte,
	}, nil
}

// ExtractProfile uploads a reference sample and returns its conditioning
// features. Expensive: the engine runs the full conditioning pass.
func (x *XTTS) ExtractProfile(ctx context.Context, refWAV string) (*Profile, error) {
	f, err := os.Open(refWAV)
	if err != nil {
		return nil, fmt.Errorf("tts: open reference audio: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("wav_file", filepath.Base(refWAV))
	if err != nil {
		return nil, fmt.Errorf("tts: build upload: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("tts: read reference audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("tts: build upload: %w", err)
	}

	x.infMu.Lock()
	defer x.infMu.Unlock()

	req, err := http.NewRequestWithContext(ctx, "POST", x.config.EngineURL+"/clone_speaker", &buf)
	if err != nil {
		return nil, fmt.Errorf("tts: create extraction request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := x.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, x.parseError(resp)
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("tts: decode profile: %w", err)
	}

	x.logger.Info("extracted voice profile",
		"reference", filepath.Base(refWAV),
		"latent_rows", len(profile.GPTCondLatent),
		"embedding_dims", len(profile.SpeakerEmbedding),
	)
	return &profile, nil
}

// Device reports the compute device the engine selected at startup.
func (x *XTTS) Device() string {
	return x.device
}

// Health checks engine connectivity.
func (x *XTTS) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", x.config.EngineURL+"/info", nil)
	if err != nil {
		return err
	}
	resp, err := x.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return x.parseError(resp)
	}
	return nil
}

// Close releases resources held by the client.
func (x *XTTS) Close() error {
	x.client.CloseIdleConnections()
	x.streamClient.CloseIdleConnections()
	return nil
}

// fetchDevice queries the engine's startup device report.
func (x *XTTS) fetchDevice() (string, error) {
	resp, err := x.client.Get(x.config.EngineURL + "/info")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", x.parseError(resp)
	}

	var info struct {
		Device string `json:"device"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", err
	}
	if info.Device == "" {
		return "unknown", nil
	}
	return info.Device, nil
}

func (x *XTTS) language(req *SpeechRequest) string {
	if req.Language != "" {
		return req.Language
	}
	return x.config.Language
}

func (x *XTTS) chunkSize(req *SpeechRequest) int {
	if req.StreamChunkSize > 0 {
		return req.StreamChunkSize
	}
	return x.config.StreamChunkSize
}

// parseError reads and parses an error response.
func (x *XTTS) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}

	message := string(body)
	if json.Unmarshal(body, &errResp) == nil {
		if errResp.Error != "" {
			message = errResp.Error
		} else if errResp.Detail != "" {
			message = errResp.Detail
		}
	}

	return &APIError{StatusCode: resp.StatusCode, Message: message}
}

// xttsStream wraps the engine's chunked response body as AudioStream.
// Closing it releases the engine for the next inference.
type xttsStream struct {
	body    io.ReadCloser
	format  AudioFormat
	release func()
	closed  bool
}

// Read returns the next PCM chunk.
func (s *xttsStream) Read() ([]byte, error) {
	if s.closed {
		return nil, ErrStreamClosed
	}
	var buf [4096]byte
	for {
		n, err := s.body.Read(buf[:])
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			return chunk, nil
		}
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// Close stops the stream and releases the engine.
func (s *xttsStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.body.Close()
	s.release()
	return err
}

// Format returns the audio format.
func (s *xttsStream) Format() AudioFormat {
	return s.format
}

// Verify XTTS implements Engine at compile time.
var _ Engine = (*XTTS)(nil)
