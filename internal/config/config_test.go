package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080, Address: "0.0.0.0"},
		Audio: AudioConfig{
			SampleRate:        16000,
			Channels:          1,
			BitDepth:          16,
			MinUtteranceBytes: 1000,
			StreamTimeout:     15,
		},
		Silence: SilenceConfig{
			Enabled:              true,
			SilenceThresholdDBFS: -70,
			VoiceThresholdDBFS:   -50,
			MinSilenceMs:         500,
		},
		Codec: CodecConfig{
			FFmpegPath:         "ffmpeg",
			OutputDir:          "/tmp/stt",
			MaxConcurrent:      2,
			StaleMaxAgeMinutes: 60,
		},
		Transcription: TranscriptionConfig{
			Endpoint:      "https://example.com/api/v1/recognize",
			APIKey:        "test-key",
			Auth:          "bearer",
			Timeout:       10,
			MaxConcurrent: 10,
			Languages:     []string{"en-US", "ko-KR"},
		},
		Routing: RoutingConfig{
			Enabled:  true,
			Endpoint: "https://example.com/api/v1/audio-routing",
			APIKey:   "routing-key",
			Auth:     "functions-key",
			Timeout:  10,
		},
		Logging: LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
	}
}

func TestValidateValidConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("Valid config failed validation: %v", err)
	}
}

func TestValidateInvalidConfigs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }},
		{"empty address", func(c *Config) { c.Server.Address = "" }},
		{"wrong sample rate", func(c *Config) { c.Audio.SampleRate = 44100 }},
		{"stereo input", func(c *Config) { c.Audio.Channels = 2 }},
		{"wrong bit depth", func(c *Config) { c.Audio.BitDepth = 24 }},
		{"zero min utterance", func(c *Config) { c.Audio.MinUtteranceBytes = 0 }},
		{"zero stream timeout", func(c *Config) { c.Audio.StreamTimeout = 0 }},
		{"positive silence threshold", func(c *Config) { c.Silence.SilenceThresholdDBFS = 5 }},
		{"voice below silence", func(c *Config) { c.Silence.VoiceThresholdDBFS = -90 }},
		{"zero min silence", func(c *Config) { c.Silence.MinSilenceMs = 0 }},
		{"empty output dir with routing", func(c *Config) { c.Codec.OutputDir = "" }},
		{"zero codec concurrency", func(c *Config) { c.Codec.MaxConcurrent = 0 }},
		{"zero stale age", func(c *Config) { c.Codec.StaleMaxAgeMinutes = 0 }},
		{"empty transcription endpoint", func(c *Config) { c.Transcription.Endpoint = "" }},
		{"empty api key", func(c *Config) { c.Transcription.APIKey = "" }},
		{"unknown auth scheme", func(c *Config) { c.Transcription.Auth = "digest" }},
		{"zero transcription timeout", func(c *Config) { c.Transcription.Timeout = 0 }},
		{"no languages", func(c *Config) { c.Transcription.Languages = nil }},
		{"routing without endpoint", func(c *Config) { c.Routing.Endpoint = "" }},
		{"routing without key", func(c *Config) { c.Routing.APIKey = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}

func TestValidateDisabledSectionsSkipped(t *testing.T) {
	cfg := validConfig()
	cfg.Silence.Enabled = false
	cfg.Silence.SilenceThresholdDBFS = 99 // invalid, but section disabled

	cfg.Routing.Enabled = false
	cfg.Routing.Endpoint = ""
	cfg.Codec.OutputDir = ""

	if err := cfg.Validate(); err != nil {
		t.Errorf("Disabled sections should skip validation: %v", err)
	}
}

func TestLoad(t *testing.T) {
	yaml := `
server:
  port: 9090
  address: "127.0.0.1"
audio:
  sample_rate: 16000
  channels: 1
  bit_depth: 16
  stream_timeout: 20
silence:
  enabled: true
  silence_threshold_dbfs: -70.0
  voice_threshold_dbfs: -50.0
  min_silence_ms: 500
codec:
  output_dir: "/tmp/stt-test"
  max_concurrent: 2
  stale_max_age_minutes: 30
transcription:
  endpoint: "https://example.com/recognize"
  api_key: "yaml-key"
  timeout: 10
  max_concurrent: 5
routing:
  enabled: true
  endpoint: "https://example.com/audio-routing"
  api_key: "yaml-routing-key"
  timeout: 10
logging:
  level: "debug"
  format: "json"
  output: "stderr"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}

	// Defaults fill the omitted values
	if cfg.Transcription.Auth != "bearer" {
		t.Errorf("Expected default auth 'bearer', got %q", cfg.Transcription.Auth)
	}
	if cfg.Routing.Auth != "functions-key" {
		t.Errorf("Expected default routing auth 'functions-key', got %q", cfg.Routing.Auth)
	}
	if cfg.Codec.FFmpegPath != "ffmpeg" {
		t.Errorf("Expected default ffmpeg path, got %q", cfg.Codec.FFmpegPath)
	}
	if cfg.Audio.MinUtteranceBytes != 1000 {
		t.Errorf("Expected default min utterance bytes 1000, got %d", cfg.Audio.MinUtteranceBytes)
	}
	if len(cfg.Transcription.Languages) != 2 {
		t.Errorf("Expected default language list, got %v", cfg.Transcription.Languages)
	}

	if cfg.Audio.GetStreamTimeoutDuration() != 20*time.Second {
		t.Errorf("Expected 20s stream timeout, got %s", cfg.Audio.GetStreamTimeoutDuration())
	}
	if cfg.Silence.GetMinSilenceDuration() != 500*time.Millisecond {
		t.Errorf("Expected 500ms min silence, got %s", cfg.Silence.GetMinSilenceDuration())
	}
	if cfg.Codec.GetStaleMaxAge() != 30*time.Minute {
		t.Errorf("Expected 30m stale age, got %s", cfg.Codec.GetStaleMaxAge())
	}
}

func TestLoadEnvOverridesAPIKeys(t *testing.T) {
	yaml := `
server:
  port: 8080
  address: "0.0.0.0"
audio:
  sample_rate: 16000
  channels: 1
  bit_depth: 16
  stream_timeout: 15
transcription:
  endpoint: "https://example.com/recognize"
  api_key: "yaml-key"
  timeout: 10
  max_concurrent: 5
logging:
  level: "info"
  format: "text"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}

	t.Setenv(EnvAPIKey, "env-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Transcription.APIKey != "env-key" {
		t.Errorf("Expected env var to override yaml key, got %q", cfg.Transcription.APIKey)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0644); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("Expected error for malformed yaml")
	}
	if !strings.Contains(err.Error(), "parse") {
		t.Errorf("Expected parse error, got: %v", err)
	}
}
