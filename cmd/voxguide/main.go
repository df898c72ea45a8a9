// voxguide is a conversational voice assistant server: user text in, spoken
// Mandarin replies out as streamed WAV audio.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/voxguide/voxguide/internal/config"
	"github.com/voxguide/voxguide/internal/log"
	"github.com/voxguide/voxguide/pkg/inference"
	"github.com/voxguide/voxguide/pkg/relay"
	"github.com/voxguide/voxguide/pkg/stt"
	"github.com/voxguide/voxguide/pkg/tts"
	"github.com/voxguide/voxguide/pkg/web"
)

func main() {
	cfg := parseFlags()
	log.Init(cfg.LogLevel)

	server, err := build(cfg)
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Listen(cfg.Addr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		if err := server.Shutdown(); err != nil {
			log.Error("shutdown failed", "error", err)
		}
	case err := <-errCh:
		if err != nil {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}
}

// build assembles the request pipeline from configuration.
func build(cfg config.Config) (*web.Server, error) {
	creds, err := config.LoadCredentials(cfg.CredentialsFile)
	if err != nil {
		return nil, err
	}

	gen, err := config.LoadGeneration(cfg.GenerationFile)
	if err != nil {
		// Generation params are optional; the defaults still work.
		log.Warn("using default generation parameters", "error", err)
	}

	ring, err := inference.NewKeyring(keyringCredentials(creds), inference.WithLogger(log.L()))
	if err != nil {
		return nil, err
	}
	log.Info("credentials loaded", "count", ring.Size(), "active", ring.CurrentName())

	caller := inference.NewCaller(ring,
		inference.WithModel(gen.Model),
		inference.WithSystemPrompt(gen.SystemPrompt),
		inference.WithMaxTokens(gen.MaxOutputTokens),
		inference.WithTemperature(gen.Temperature),
		inference.WithTopP(gen.TopP),
		inference.WithTopK(gen.TopK),
		inference.WithLogger(log.L()),
	)

	engine, err := tts.NewXTTS(
		tts.WithEngineURL(cfg.EngineURL),
		tts.WithLogger(log.L()),
	)
	if err != nil {
		return nil, err
	}
	log.Info("synthesis engine connected", "url", cfg.EngineURL, "device", engine.Device())

	profiles := tts.NewProfileCache(engine, tts.WithLogger(log.L()))

	rly, err := relay.New(caller, engine, profiles,
		relay.WithSpeakerWAV(cfg.SpeakerWAV),
		relay.WithOutputDir(cfg.OutputDir),
		relay.WithLogger(log.L()),
	)
	if err != nil {
		return nil, err
	}

	var transcriber *stt.Transcriber
	if cfg.STTAPIKey != "" {
		transcriber, err = stt.New(context.Background(),
			stt.WithAPIKey(cfg.STTAPIKey),
			stt.WithTimeout(cfg.STTTimeout),
			stt.WithLogger(log.L()),
		)
		if err != nil {
			return nil, err
		}
	} else {
		log.Warn("speech-to-text disabled, no API key configured")
	}

	return web.NewServer(web.Config{
		Relay:       rly,
		Engine:      engine,
		Keyring:     ring,
		Transcriber: transcriber,
		FrontendDir: cfg.FrontendDir,
		Model:       gen.Model,
		Logger:      log.L(),
	}), nil
}

// parseFlags layers command line flags over the environment configuration.
func parseFlags() config.Config {
	cfg := config.Load()

	addr := flag.String("addr", cfg.Addr, "HTTP listen address")
	engineURL := flag.String("engine-url", cfg.EngineURL, "XTTS synthesis engine URL")
	speakerWAV := flag.String("speaker", cfg.SpeakerWAV, "Reference voice sample")
	frontendDir := flag.String("frontend", cfg.FrontendDir, "Static frontend directory")
	logLevel := flag.String("log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	flag.Parse()

	cfg.Addr = *addr
	cfg.EngineURL = *engineURL
	cfg.SpeakerWAV = *speakerWAV
	cfg.FrontendDir = *frontendDir
	cfg.LogLevel = *logLevel
	return cfg
}

func keyringCredentials(creds []config.Credential) []inference.Credential {
	out := make([]inference.Credential, len(creds))
	for i, c := range creds {
		out[i] = inference.Credential{Name: c.Name, Secret: c.Secret}
	}
	return out
}
