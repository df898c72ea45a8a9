// Package config provides configuration loading for the voxguide server.
//
// Two JSON files drive the upstream text backend: a credentials file holding
// the ordered API key list, and a generation-parameters file holding model
// settings. Everything else comes from environment variables with defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Defaults for the server environment.
const (
	DefaultAddr            = ":5000"
	DefaultCredentialsFile = "api_keys.json"
	DefaultGenerationFile  = "config.json"
	DefaultOutputDir       = "outputs"
	DefaultFrontendDir     = "frontend"
	DefaultSpeakerWAV      = "speaker.wav"
	DefaultEngineURL       = "http://localhost:8020"
	DefaultSTTTimeout      = 30 * time.Second
)

// Credential is one upstream API key with a human-readable name.
type Credential struct {
	Name   string `json:"name"`
	Secret string `json:"key"`
}

// Generation holds the text-generation parameters passed to the upstream model.
type Generation struct {
	Model           string  `json:"model"`
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"max_output_tokens"`
	TopP            float64 `json:"top_p"`
	TopK            int     `json:"top_k"`
	SystemPrompt    string  `json:"system_prompt"`
}

// Config is the assembled server configuration.
type Config struct {
	Addr            string
	LogLevel        string
	CredentialsFile string
	GenerationFile  string
	OutputDir       string
	FrontendDir     string
	SpeakerWAV      string
	EngineURL       string
	STTAPIKey       string
	STTTimeout      time.Duration
}

// Load reads configuration from the environment, falling back to defaults.
func Load() Config {
	return Config{
		Addr:            env("VOXGUIDE_ADDR", DefaultAddr),
		LogLevel:        env("VOXGUIDE_LOG_LEVEL", "info"),
		CredentialsFile: env("VOXGUIDE_CREDENTIALS_FILE", DefaultCredentialsFile),
		GenerationFile:  env("VOXGUIDE_GENERATION_FILE", DefaultGenerationFile),
		OutputDir:       env("VOXGUIDE_OUTPUT_DIR", DefaultOutputDir),
		FrontendDir:     env("VOXGUIDE_FRONTEND_DIR", DefaultFrontendDir),
		SpeakerWAV:      env("VOXGUIDE_SPEAKER_WAV", DefaultSpeakerWAV),
		EngineURL:       env("VOXGUIDE_ENGINE_URL", DefaultEngineURL),
		STTAPIKey:       os.Getenv("VOXGUIDE_STT_API_KEY"),
		STTTimeout:      DefaultSTTTimeout,
	}
}

// LoadCredentials reads the ordered credential list.
// The list must be non-empty; an empty or malformed file aborts startup.
func LoadCredentials(path string) ([]Credential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read credentials %s: %w", path, err)
	}

	var file struct {
		APIKeys []Credential `json:"api_keys"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("config: parse credentials %s: %w", path, err)
	}

	if len(file.APIKeys) == 0 {
		return nil, fmt.Errorf("config: credentials file %s holds no keys", path)
	}
	for i, c := range file.APIKeys {
		if c.Secret == "" {
			return nil, fmt.Errorf("config: credential %d (%q) has empty key", i, c.Name)
		}
	}

	return file.APIKeys, nil
}

// LoadGeneration reads the generation-parameters file.
// Missing fields fall back to model defaults.
func LoadGeneration(path string) (Generation, error) {
	gen := Generation{
		Model:           "gemini-2.0-flash",
		Temperature:     0.7,
		MaxOutputTokens: 2048,
		TopP:            0.95,
		TopK:            40,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return gen, fmt.Errorf("config: read generation params %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &gen); err != nil {
		return gen, fmt.Errorf("config: parse generation params %s: %w", path, err)
	}

	return gen, nil
}

// env returns the named environment variable or a default.
func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
