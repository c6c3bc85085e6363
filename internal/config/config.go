package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Logging LoggingConfig `toml:"logging"`
	Relay   RelayConfig   `toml:"relay"`
	Storage StorageConfig `toml:"storage"`
	Capture CaptureConfig `toml:"capture"`
}

// ServerConfig represents the relay HTTP server configuration
type ServerConfig struct {
	Host                string   `toml:"host"`
	Port                int      `toml:"port"`
	CORSAllowedOrigins  []string `toml:"cors_allowed_origins"`
	CORSAllowedHeaders  []string `toml:"cors_allowed_headers"`
	H2C                 bool     `toml:"h2c"`
	ReadTimeoutSeconds  int      `toml:"read_timeout_seconds"`
	WriteTimeoutSeconds int      `toml:"write_timeout_seconds"`
}

// LoggingConfig represents the logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// RelayConfig represents the transcription relay configuration
type RelayConfig struct {
	OpenAIAPIKey    string `toml:"openai_api_key"`
	BaseURL         string `toml:"base_url"`
	Model           string `toml:"model"`
	Language        string `toml:"language"`
	DecodeChunkSize int    `toml:"decode_chunk_size"`
	MaxBodyBytes    int64  `toml:"max_body_bytes"`
	TimeoutSeconds  int    `toml:"timeout_seconds"` // 0 disables the upstream timeout
}

// StorageConfig represents the SQLite storage configuration
type StorageConfig struct {
	Enabled    bool   `toml:"enabled"`
	SQLitePath string `toml:"sqlite_path"`
}

// CaptureConfig represents the capture controller configuration
type CaptureConfig struct {
	RelayURL            string            `toml:"relay_url"`
	RelayAPIKey         string            `toml:"relay_api_key"`
	RelayTimeoutSeconds int               `toml:"relay_timeout_seconds"` // 0 means no timeout
	MimeType            string            `toml:"mime_type"`
	TimesliceMs         int               `toml:"timeslice_ms"`
	MaxChunks           int               `toml:"max_chunks"`
	MaxBytes            int               `toml:"max_bytes"`
	TickIntervalMs      int               `toml:"tick_interval_ms"`
	Microphone          MicrophoneConfig  `toml:"microphone"`
	SystemAudio         SystemAudioConfig `toml:"system_audio"`
}

// MicrophoneConfig holds the constraints requested for microphone capture
type MicrophoneConfig struct {
	EchoCancellation bool `toml:"echo_cancellation"`
	NoiseSuppression bool `toml:"noise_suppression"`
	AutoGainControl  bool `toml:"auto_gain_control"`
}

// SystemAudioConfig holds the constraints requested for system or tab audio
// capture. The display capture API insists on a video track, so a minimal one
// is requested and discarded.
type SystemAudioConfig struct {
	EchoCancellation bool `toml:"echo_cancellation"`
	NoiseSuppression bool `toml:"noise_suppression"`
	SampleRate       int  `toml:"sample_rate"`
	VideoWidth       int  `toml:"video_width"`
	VideoHeight      int  `toml:"video_height"`
	VideoFrameRate   int  `toml:"video_frame_rate"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8080,
			CORSAllowedOrigins: []string{"*"},
			CORSAllowedHeaders: []string{"authorization", "x-client-info", "apikey", "content-type"},
			ReadTimeoutSeconds: 60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Relay: RelayConfig{
			BaseURL:         "https://api.openai.com/v1/",
			Model:           "whisper-1",
			Language:        "tr",
			DecodeChunkSize: 32768,
			MaxBodyBytes:    50 << 20,
		},
		Storage: StorageConfig{
			Enabled:    false,
			SQLitePath: "data/voicenote.db",
		},
		Capture: CaptureConfig{
			RelayURL:       "http://localhost:8080/functions/v1/transcribe-audio",
			MimeType:       "audio/webm",
			TimesliceMs:    1000,
			MaxChunks:      0,
			MaxBytes:       25 << 20,
			TickIntervalMs: 1000,
			Microphone: MicrophoneConfig{
				EchoCancellation: true,
				NoiseSuppression: true,
				AutoGainControl:  true,
			},
			SystemAudio: SystemAudioConfig{
				EchoCancellation: false,
				NoiseSuppression: false,
				SampleRate:       44100,
				VideoWidth:       1,
				VideoHeight:      1,
				VideoFrameRate:   1,
			},
		},
	}
}

// Load reads the TOML file at path over the defaults, then applies .env and
// environment overrides. A missing file is not an error when path is empty.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
		}
	}

	// .env is optional; the process environment still applies without it
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides secrets and endpoints from the environment
func (c *Config) applyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Relay.OpenAIAPIKey = v
	}
	if v := os.Getenv("VOICENOTE_RELAY_URL"); v != "" {
		c.Capture.RelayURL = v
	}
	if v := os.Getenv("VOICENOTE_RELAY_API_KEY"); v != "" {
		c.Capture.RelayAPIKey = v
	}
}

// Validate checks the configuration for values that cannot work. A missing
// API key is deliberately allowed; the relay reports it per request.
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Relay.Model == "" {
		problems = append(problems, "relay.model is required")
	}
	if c.Relay.Language == "" {
		problems = append(problems, "relay.language is required")
	}
	if c.Relay.DecodeChunkSize < 4 {
		problems = append(problems, "relay.decode_chunk_size must be at least 4")
	}
	if c.Relay.TimeoutSeconds < 0 {
		problems = append(problems, "relay.timeout_seconds must not be negative")
	}
	if c.Storage.Enabled && c.Storage.SQLitePath == "" {
		problems = append(problems, "storage.sqlite_path is required when storage is enabled")
	}
	if c.Capture.TickIntervalMs <= 0 {
		problems = append(problems, "capture.tick_interval_ms must be positive")
	}
	if c.Capture.SystemAudio.VideoWidth <= 0 || c.Capture.SystemAudio.VideoHeight <= 0 || c.Capture.SystemAudio.VideoFrameRate <= 0 {
		problems = append(problems, "capture.system_audio video_width, video_height and video_frame_rate must be positive")
	}
	if c.Capture.RelayTimeoutSeconds < 0 {
		problems = append(problems, "capture.relay_timeout_seconds must not be negative")
	}
	if c.Capture.TimesliceMs < 0 {
		problems = append(problems, "capture.timeslice_ms must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Addr returns the listen address for the relay server
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
