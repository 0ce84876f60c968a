package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the corresponding YAML values, so
// secrets can stay out of config files.
const (
	EnvAPIKey        = "STT_API_KEY"
	EnvRoutingAPIKey = "STT_ROUTING_API_KEY"
)

// Config represents the complete service configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Audio         AudioConfig         `yaml:"audio"`
	Silence       SilenceConfig       `yaml:"silence"`
	Codec         CodecConfig         `yaml:"codec"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Routing       RoutingConfig       `yaml:"routing"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig contains HTTP ingest server configuration
type ServerConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
}

// AudioConfig contains audio capture defaults and utterance limits
type AudioConfig struct {
	SampleRate        int `yaml:"sample_rate"`
	Channels          int `yaml:"channels"`
	BitDepth          int `yaml:"bit_depth"`
	MinUtteranceBytes int `yaml:"min_utterance_bytes"`
	StreamTimeout     int `yaml:"stream_timeout"` // seconds
}

// SilenceConfig contains silence gate configuration
type SilenceConfig struct {
	Enabled              bool    `yaml:"enabled"`
	SilenceThresholdDBFS float64 `yaml:"silence_threshold_dbfs"`
	VoiceThresholdDBFS   float64 `yaml:"voice_threshold_dbfs"`
	MinSilenceMs         int     `yaml:"min_silence_ms"`
}

// CodecConfig contains MP3 export configuration
type CodecConfig struct {
	FFmpegPath         string `yaml:"ffmpeg_path"`
	OutputDir          string `yaml:"output_dir"`
	MaxConcurrent      int    `yaml:"max_concurrent"`
	StaleMaxAgeMinutes int    `yaml:"stale_max_age_minutes"`
}

// TranscriptionConfig contains recognition API configuration
type TranscriptionConfig struct {
	Endpoint           string   `yaml:"endpoint"`
	APIKey             string   `yaml:"api_key"`
	Auth               string   `yaml:"auth"` // "bearer" or "functions-key"
	Timeout            int      `yaml:"timeout"` // seconds
	MaxConcurrent      int      `yaml:"max_concurrent"`
	Languages          []string `yaml:"languages"`
	StreamingTransport bool     `yaml:"streaming_transport"`
}

// RoutingConfig contains audio routing upload configuration
type RoutingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Auth     string `yaml:"auth"` // "bearer" or "functions-key"
	Timeout  int    `yaml:"timeout"` // seconds
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file. A .env file in the
// working directory is loaded first when present; API keys from the
// environment take precedence over the YAML values.
func Load(path string) (*Config, error) {
	// Missing .env is fine; explicit env vars still apply.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if key := os.Getenv(EnvAPIKey); key != "" {
		config.Transcription.APIKey = key
	}
	if key := os.Getenv(EnvRoutingAPIKey); key != "" {
		config.Routing.APIKey = key
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// applyDefaults fills the values that have an unambiguous default.
func (c *Config) applyDefaults() {
	if c.Transcription.Auth == "" {
		c.Transcription.Auth = "bearer"
	}
	if c.Routing.Auth == "" {
		c.Routing.Auth = "functions-key"
	}
	if c.Codec.FFmpegPath == "" {
		c.Codec.FFmpegPath = "ffmpeg"
	}
	if c.Audio.MinUtteranceBytes == 0 {
		c.Audio.MinUtteranceBytes = 1000
	}
	if len(c.Transcription.Languages) == 0 {
		c.Transcription.Languages = []string{"en-US", "ko-KR"}
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Silence.Validate(); err != nil {
		return fmt.Errorf("silence config: %w", err)
	}

	if err := c.Codec.Validate(c.Routing.Enabled); err != nil {
		return fmt.Errorf("codec config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Routing.Validate(); err != nil {
		return fmt.Errorf("routing config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate != 16000 {
		return fmt.Errorf("sample_rate must be 16000 Hz, got %d", a.SampleRate)
	}

	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", a.Channels)
	}

	if a.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16, got %d", a.BitDepth)
	}

	if a.MinUtteranceBytes < 1 {
		return fmt.Errorf("min_utterance_bytes must be at least 1, got %d", a.MinUtteranceBytes)
	}

	if a.StreamTimeout < 1 {
		return fmt.Errorf("stream_timeout must be at least 1 second, got %d", a.StreamTimeout)
	}

	return nil
}

// Validate validates silence gate configuration
func (s *SilenceConfig) Validate() error {
	if !s.Enabled {
		return nil
	}

	if s.SilenceThresholdDBFS >= 0 {
		return fmt.Errorf("silence_threshold_dbfs must be negative, got %f", s.SilenceThresholdDBFS)
	}

	if s.VoiceThresholdDBFS >= 0 {
		return fmt.Errorf("voice_threshold_dbfs must be negative, got %f", s.VoiceThresholdDBFS)
	}

	if s.VoiceThresholdDBFS < s.SilenceThresholdDBFS {
		return fmt.Errorf("voice_threshold_dbfs (%f) must not be below silence_threshold_dbfs (%f)",
			s.VoiceThresholdDBFS, s.SilenceThresholdDBFS)
	}

	if s.MinSilenceMs < 1 {
		return fmt.Errorf("min_silence_ms must be at least 1, got %d", s.MinSilenceMs)
	}

	return nil
}

// Validate validates codec configuration. The export settings only matter
// when routing is enabled.
func (cc *CodecConfig) Validate(routingEnabled bool) error {
	if !routingEnabled {
		return nil
	}

	if cc.OutputDir == "" {
		return fmt.Errorf("output_dir cannot be empty when routing is enabled")
	}

	if cc.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", cc.MaxConcurrent)
	}

	if cc.StaleMaxAgeMinutes < 1 {
		return fmt.Errorf("stale_max_age_minutes must be at least 1, got %d", cc.StaleMaxAgeMinutes)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if t.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty (set %s or the yaml value)", EnvAPIKey)
	}

	if t.Auth != "bearer" && t.Auth != "functions-key" {
		return fmt.Errorf("auth must be 'bearer' or 'functions-key', got '%s'", t.Auth)
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	if len(t.Languages) == 0 {
		return fmt.Errorf("languages cannot be empty")
	}

	return nil
}

// Validate validates routing configuration
func (r *RoutingConfig) Validate() error {
	if !r.Enabled {
		return nil
	}

	if r.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty when routing is enabled")
	}

	if r.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty when routing is enabled (set %s or the yaml value)", EnvRoutingAPIKey)
	}

	if r.Auth != "bearer" && r.Auth != "functions-key" {
		return fmt.Errorf("auth must be 'bearer' or 'functions-key', got '%s'", r.Auth)
	}

	if r.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", r.Timeout)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetStreamTimeoutDuration returns the per-utterance stream timeout as a time.Duration
func (a *AudioConfig) GetStreamTimeoutDuration() time.Duration {
	return time.Duration(a.StreamTimeout) * time.Second
}

// GetMinSilenceDuration returns the silence split duration as a time.Duration
func (s *SilenceConfig) GetMinSilenceDuration() time.Duration {
	return time.Duration(s.MinSilenceMs) * time.Millisecond
}

// GetStaleMaxAge returns the export eviction age as a time.Duration
func (cc *CodecConfig) GetStaleMaxAge() time.Duration {
	return time.Duration(cc.StaleMaxAgeMinutes) * time.Minute
}

// GetTimeoutDuration returns the recognition timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetTimeoutDuration returns the routing upload timeout as a time.Duration
func (r *RoutingConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(r.Timeout) * time.Second
}
