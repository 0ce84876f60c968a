package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs-tuned/stt-audio-service/internal/codec"
	"github.com/rs-tuned/stt-audio-service/internal/config"
	"github.com/rs-tuned/stt-audio-service/internal/metrics"
	"github.com/rs-tuned/stt-audio-service/internal/provider"
	"github.com/rs-tuned/stt-audio-service/internal/server"
	"github.com/rs-tuned/stt-audio-service/internal/transcription"
	"github.com/rs-tuned/stt-audio-service/internal/vad"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "stt-audio-service"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("http_port", cfg.Server.Port),
		slog.String("bind_address", cfg.Server.Address),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("min_utterance_bytes", cfg.Audio.MinUtteranceBytes),
		slog.Bool("silence_gate", cfg.Silence.Enabled),
		slog.Bool("routing", cfg.Routing.Enabled),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
		slog.Bool("streaming_transport", cfg.Transcription.StreamingTransport),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Create the recognition client
	recognizer, err := transcription.NewClient(transcription.Config{
		Endpoint:      cfg.Transcription.Endpoint,
		APIKey:        cfg.Transcription.APIKey,
		Auth:          transcription.AuthScheme(cfg.Transcription.Auth),
		Timeout:       cfg.Transcription.GetTimeoutDuration(),
		MaxConcurrent: cfg.Transcription.MaxConcurrent,
	})
	if err != nil {
		logger.Error("Failed to create transcription client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Create the silence gate (if enabled)
	var gate *vad.Gate
	if cfg.Silence.Enabled {
		gate, err = vad.NewGate(cfg.Silence.SilenceThresholdDBFS, cfg.Silence.VoiceThresholdDBFS,
			cfg.Silence.GetMinSilenceDuration())
		if err != nil {
			logger.Error("Failed to create silence gate", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("Silence gate enabled",
			slog.Float64("silence_threshold_dbfs", cfg.Silence.SilenceThresholdDBFS),
			slog.Float64("voice_threshold_dbfs", cfg.Silence.VoiceThresholdDBFS),
		)
	}

	// Create the MP3 export chain (if routing is enabled)
	var transcoder *codec.Transcoder
	var uploader *transcription.Uploader
	if cfg.Routing.Enabled {
		transcoder, err = codec.NewTranscoder(codec.Config{
			FFmpegPath:    cfg.Codec.FFmpegPath,
			OutputDir:     cfg.Codec.OutputDir,
			MaxConcurrent: cfg.Codec.MaxConcurrent,
			StaleMaxAge:   cfg.Codec.GetStaleMaxAge(),
		}, logger)
		if err != nil {
			logger.Error("Failed to create transcoder", slog.String("error", err.Error()))
			os.Exit(1)
		}
		transcoder.StartJanitor()

		uploader, err = transcription.NewUploader(transcription.UploaderConfig{
			Endpoint: cfg.Routing.Endpoint,
			APIKey:   cfg.Routing.APIKey,
			Auth:     transcription.AuthScheme(cfg.Routing.Auth),
			Timeout:  cfg.Routing.GetTimeoutDuration(),
		})
		if err != nil {
			logger.Error("Failed to create uploader", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("Audio routing enabled",
			slog.String("endpoint", cfg.Routing.Endpoint),
			slog.String("output_dir", cfg.Codec.OutputDir),
		)
	}

	// Initialize the utterance pipeline
	pipeline, err := provider.NewPipeline(provider.Config{
		Languages:          cfg.Transcription.Languages,
		MinUtteranceBytes:  cfg.Audio.MinUtteranceBytes,
		StreamingTransport: cfg.Transcription.StreamingTransport,
	}, logger, recognizer, gate, transcoder, uploader, appMetrics)
	if err != nil {
		logger.Error("Failed to create pipeline", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Utterance pipeline initialized",
		slog.Any("languages", pipeline.SupportedLanguages()),
	)

	// Initialize HTTP API server
	httpServer := server.NewHTTPServer(server.HTTPServerConfig{
		Port:    cfg.Server.Port,
		Address: cfg.Server.Address,
	}, logger, server.Components{
		Config:     cfg,
		Provider:   pipeline,
		Pipeline:   pipeline,
		Recognizer: recognizer,
		Gate:       gate,
		Transcoder: transcoder,
		Uploader:   uploader,
		Metrics:    appMetrics,
	})

	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)),
	)

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new utterances)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	// Stop the export janitor
	if transcoder != nil {
		transcoder.Stop()
	}

	// Get final statistics
	stats := pipeline.GetStats()
	logger.Info("Final pipeline statistics",
		slog.Uint64("processed", stats.Processed),
		slog.Uint64("successes", stats.Successes),
		slog.Uint64("failures", stats.Failures),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
