package web

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/voxguide/voxguide/pkg/relay"
	"github.com/voxguide/voxguide/pkg/stt"
)

// previewRunes caps the reply text carried in the X-AI-Response header.
// Headers have size limits; the full text still arrives as audio.
const previewRunes = 200

// chatRequest is the JSON body of the chat and synthesis endpoints.
type chatRequest struct {
	Text      string `json:"text"`
	Language  string `json:"language"`
	ChunkSize int    `json:"stream_chunk_size"`

	// Standalone asks for every audio chunk in its own WAV container.
	Standalone bool `json:"standalone"`
}

func (r chatRequest) speechOptions() relay.SpeechOptions {
	return relay.SpeechOptions{
		Language:   r.Language,
		ChunkSize:  r.ChunkSize,
		Standalone: r.Standalone,
	}
}

// handleHealth reports backend readiness: synthesis engine reachability and
// the credential pool state.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	engineOK := s.engine.Health(c.Context()) == nil

	status := "ok"
	if !engineOK {
		status = "degraded"
	}

	return c.JSON(fiber.Map{
		"status":         status,
		"model":          s.model,
		"available_keys": s.ring.Size(),
		"current_key":    s.ring.CurrentName(),
		"rotations":      s.ring.Rotations(),
		"tts_device":     s.engine.Device(),
	})
}

// handleChat answers with the rendered reply audio as a downloadable file.
func (s *Server) handleChat(c *fiber.Ctx) error {
	name, _, err := s.chatToFile(c)
	if err != nil {
		return s.fail(c, err)
	}

	c.Set(fiber.HeaderContentType, "audio/wav")
	return c.Download(filepath.Join(s.relay.OutputDir(), name), name)
}

// handleChatJSON answers with the reply text plus a URL to the rendered
// audio file, for clients that fetch the audio separately.
func (s *Server) handleChatJSON(c *fiber.Ctx) error {
	name, sess, err := s.chatToFile(c)
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"user_text":   sess.RequestText,
		"ai_response": sess.ReplyText,
		"audio_file":  name,
		"audio_url":   "/api/audio/" + name,
	})
}

// chatToFile runs the full chat pipeline and renders the reply to a file.
func (s *Server) chatToFile(c *fiber.Ctx) (string, *relay.Session, error) {
	var req chatRequest
	if err := c.BodyParser(&req); err != nil {
		return "", nil, errInvalidBody
	}

	sess, err := s.relay.PrepareChat(c.Context(), req.Text, req.speechOptions())
	if err != nil {
		return "", nil, err
	}

	name, err := s.relay.SpeakToFile(c.Context(), sess)
	if err != nil {
		return "", nil, err
	}
	return name, sess, nil
}

// handleChatStream answers with chunked WAV audio of the generated reply.
// The reply text and chunk estimate ride in response headers because the
// body is already committed to audio.
func (s *Server) handleChatStream(c *fiber.Ctx) error {
	var req chatRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	sess, err := s.relay.PrepareChat(c.Context(), req.Text, req.speechOptions())
	if err != nil {
		return s.fail(c, err)
	}

	return s.streamAudio(c, sess)
}

// handleTTSStream synthesizes the given text verbatim as chunked WAV audio.
func (s *Server) handleTTSStream(c *fiber.Ctx) error {
	var req chatRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	sess, err := s.relay.PrepareSpeech(c.Context(), req.Text, req.speechOptions())
	if err != nil {
		return s.fail(c, err)
	}

	return s.streamAudio(c, sess)
}

// streamAudio commits metadata headers and hands the body to the relay.
// Once streaming starts, failures can only truncate the body; the status
// line is long gone.
func (s *Server) streamAudio(c *fiber.Ctx, sess *relay.Session) error {
	c.Set(fiber.HeaderContentType, "audio/wav")
	c.Set(HeaderAIResponse, encodePreview(sess.ReplyText))
	c.Set(HeaderEstimatedChunks, strconv.Itoa(sess.EstimatedChunks))

	ctx := c.Context()
	ctx.SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		if err := s.relay.StreamTo(ctx, sess, w); err != nil {
			s.logger.Warn("audio stream ended early",
				"error", err,
				"chunks_emitted", sess.ChunksEmitted,
			)
		}
	}))
	return nil
}

// handleSpeaker returns the default speaker's voice profile in the form the
// synthesis engine accepts.
func (s *Server) handleSpeaker(c *fiber.Ctx) error {
	profile, err := s.relay.SpeakerProfile(c.Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(profile.Transferable())
}

// handleSpeakerClone extracts a voice profile from an uploaded reference
// sample. The sample is transient and never cached.
func (s *Server) handleSpeakerClone(c *fiber.Ctx) error {
	file, err := c.FormFile("wav_file")
	if err != nil {
		return badRequest(c, "wav_file upload is required")
	}

	// Random prefix keeps concurrent uploads with the same name apart.
	id := uuid.New()
	tmp := filepath.Join(os.TempDir(), fmt.Sprintf("clone_%x_%s", id[:4], filepath.Base(file.Filename)))
	if err := c.SaveFile(file, tmp); err != nil {
		return s.fail(c, err)
	}
	defer os.Remove(tmp)

	profile, err := s.relay.CloneProfile(c.Context(), tmp)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(profile.Transferable())
}

// handleAudioFile serves a previously generated audio file by name.
func (s *Server) handleAudioFile(c *fiber.Ctx) error {
	name := c.Params("name")

	// Names are server-generated; anything with path structure is hostile.
	if name == "" || name != filepath.Base(name) || !strings.HasSuffix(name, ".wav") {
		return badRequest(c, "invalid audio file name")
	}

	path := filepath.Join(s.relay.OutputDir(), name)
	if _, err := os.Stat(path); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "audio file not found",
		})
	}

	c.Set(fiber.HeaderContentType, "audio/wav")
	return c.SendFile(path)
}

// handleSpeechToText transcribes an uploaded voice recording.
func (s *Server) handleSpeechToText(c *fiber.Ctx) error {
	if s.transcriber == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{
			"error": "speech-to-text is not configured",
		})
	}

	audio, err := s.recordingBytes(c)
	if err != nil {
		return s.fail(c, err)
	}

	result, err := s.transcriber.Transcribe(c.Context(), audio)
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"transcript": result.Transcript,
		"confidence": result.Confidence,
	})
}

// recordingBytes accepts the recording either as a multipart "audio" part
// or as the raw request body.
func (s *Server) recordingBytes(c *fiber.Ctx) ([]byte, error) {
	file, err := c.FormFile("audio")
	if err != nil {
		return c.Body(), nil
	}

	f, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// errInvalidBody marks an unparseable request body.
var errInvalidBody = errors.New("invalid JSON body")

// fail maps pipeline errors to HTTP statuses: caller mistakes to 400,
// upstream deadline overruns to 504, everything else, including an
// exhausted credential pool, to 500.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError

	switch {
	case errors.Is(err, errInvalidBody),
		errors.Is(err, relay.ErrEmptyText),
		errors.Is(err, stt.ErrNoAudio),
		errors.Is(err, stt.ErrNoSpeech):
		status = fiber.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		status = fiber.StatusGatewayTimeout
	}

	if status >= 500 {
		s.logger.Error("request failed", "status", status, "error", err)
	}
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
	})
}

// encodePreview URL-encodes the leading runes of the reply so multibyte
// text survives the ASCII-only header value.
func encodePreview(text string) string {
	runes := []rune(text)
	if len(runes) > previewRunes {
		runes = runes[:previewRunes]
	}
	return url.QueryEscape(string(runes))
}
