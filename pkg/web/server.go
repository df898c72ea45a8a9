// Package web exposes the voice assistant over HTTP: chat endpoints that
// answer with streamed WAV audio, synthesis and speaker endpoints, and a
// health probe.
package web

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/voxguide/voxguide/pkg/inference"
	"github.com/voxguide/voxguide/pkg/relay"
	"github.com/voxguide/voxguide/pkg/stt"
	"github.com/voxguide/voxguide/pkg/tts"
)

// Response headers carrying stream metadata. Committed before the first
// audio byte, so the reply text rides along URL-encoded.
const (
	HeaderAIResponse      = "X-AI-Response"
	HeaderEstimatedChunks = "X-Estimated-Chunks"
)

// Config wires the server's collaborators.
type Config struct {
	Relay   *relay.Relay
	Engine  tts.Engine
	Keyring *inference.Keyring

	// Transcriber is optional; without it the speech-to-text endpoint
	// reports that transcription is not configured.
	Transcriber *stt.Transcriber

	// FrontendDir serves static files from / when set.
	FrontendDir string

	// Model is the upstream model name reported by the health probe.
	Model string

	Logger *slog.Logger
}

// Server is the HTTP front of the assistant.
type Server struct {
	app         *fiber.App
	relay       *relay.Relay
	engine      tts.Engine
	ring        *inference.Keyring
	transcriber *stt.Transcriber
	model       string
	logger      *slog.Logger
}

// NewServer creates the server and registers all routes.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		relay:       cfg.Relay,
		engine:      cfg.Engine,
		ring:        cfg.Keyring,
		transcriber: cfg.Transcriber,
		model:       cfg.Model,
		logger:      logger.With("component", "web"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "voxguide",
		DisableStartupMessage: true,
		// Voice recordings and reference samples arrive as uploads.
		BodyLimit: 32 * 1024 * 1024,
	})

	// Browser clients read the reply text and chunk estimate from
	// response headers; CORS must expose them or fetch() hides them.
	app.Use(cors.New(cors.Config{
		ExposeHeaders: HeaderAIResponse + "," + HeaderEstimatedChunks,
	}))
	app.Use(s.requestLogger)

	if cfg.FrontendDir != "" {
		app.Static("/", cfg.FrontendDir)
	}

	api := app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Post("/chat", s.handleChat)
	api.Post("/chat/json", s.handleChatJSON)
	api.Post("/chat/stream", s.handleChatStream)
	api.Post("/tts/stream", s.handleTTSStream)
	api.Get("/speaker", s.handleSpeaker)
	api.Post("/speaker/clone", s.handleSpeakerClone)
	api.Get("/audio/:name", s.handleAudioFile)
	api.Post("/speech-to-text", s.handleSpeechToText)

	s.app = app
	return s
}

// requestLogger records one line per request. Streaming endpoints log the
// handler return, which is when headers commit, not when the body finishes.
func (s *Server) requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	s.logger.Info("request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return err
}

// Listen serves HTTP on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the fiber app for in-process request tests.
func (s *Server) App() *fiber.App {
	return s.app
}
