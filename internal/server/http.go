package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rs-tuned/stt-audio-service/internal/audio"
	"github.com/rs-tuned/stt-audio-service/internal/codec"
	"github.com/rs-tuned/stt-audio-service/internal/config"
	"github.com/rs-tuned/stt-audio-service/internal/metrics"
	"github.com/rs-tuned/stt-audio-service/internal/provider"
	"github.com/rs-tuned/stt-audio-service/internal/transcription"
	"github.com/rs-tuned/stt-audio-service/internal/vad"
)

// ingestChunkSize is how many bytes each read from the request body
// contributes as one audio chunk.
const ingestChunkSize = 4096

// Components bundles everything the HTTP server serves or reports on.
// Gate, Transcoder and Uploader may be nil when the corresponding
// pipeline stage is disabled.
type Components struct {
	Config     *config.Config
	Provider   provider.Provider
	Pipeline   *provider.Pipeline
	Recognizer *transcription.Client
	Gate       *vad.Gate
	Transcoder *codec.Transcoder
	Uploader   *transcription.Uploader
	Metrics    *metrics.Metrics
}

// HTTPServer provides the utterance ingest endpoint and the monitoring
// API.
type HTTPServer struct {
	server     *http.Server
	logger     *slog.Logger
	components Components
	startTime  time.Time
}

// HTTPServerConfig contains HTTP server configuration
type HTTPServerConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
}

// NewHTTPServer creates the HTTP API server.
func NewHTTPServer(cfg HTTPServerConfig, logger *slog.Logger, components Components) *HTTPServer {
	h := &HTTPServer{
		logger:     logger,
		components: components,
		startTime:  time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler: mux,
		// No ReadTimeout: the ingest body may legitimately trickle in for
		// the whole capture session. The pipeline enforces its own bound.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Utterance ingest endpoint
	mux.HandleFunc("/api/v1/transcribe", h.withMetrics("/api/v1/transcribe", h.handleTranscribe))

	// Monitoring endpoints
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := strconv.Itoa(ww.statusCode)

		h.components.Metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.components.Metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Handler returns the server's root handler, mainly for tests.
func (h *HTTPServer) Handler() http.Handler {
	return h.server.Handler
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleTranscribe implements the POST /api/v1/transcribe endpoint. The
// request body is consumed as the utterance's chunk stream; capture
// parameters come from query parameters with configured defaults. The
// response is always a well-formed result, ERROR included.
func (h *HTTPServer) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	audioCfg := h.components.Config.Audio
	md := audio.Metadata{
		SampleRate: audioCfg.SampleRate,
		Channels:   audioCfg.Channels,
		BitDepth:   audioCfg.BitDepth,
		Codec:      "pcm",
	}

	var err error
	if md.SampleRate, err = queryInt(r, "sample_rate", md.SampleRate); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if md.Channels, err = queryInt(r, "channels", md.Channels); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if md.BitDepth, err = queryInt(r, "bit_depth", md.BitDepth); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := md.Validate(); err != nil {
		http.Error(w, fmt.Sprintf("Invalid audio metadata: %v", err), http.StatusBadRequest)
		return
	}

	if language := r.URL.Query().Get("language"); language != "" && !h.languageSupported(language) {
		http.Error(w, fmt.Sprintf("Unsupported language %q", language), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), audioCfg.GetStreamTimeoutDuration())
	defer cancel()

	stream := audio.NewReaderStream(r.Body, ingestChunkSize)
	result := h.components.Provider.ProcessAudioStream(ctx, md, stream)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// languageSupported checks a language tag against the provider's list.
func (h *HTTPServer) languageSupported(language string) bool {
	for _, l := range h.components.Provider.SupportedLanguages() {
		if l == language {
			return true
		}
	}
	return false
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return value, nil
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)
	pipelineStats := h.components.Pipeline.GetStats()
	recognizerStats := h.components.Recognizer.GetStats()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    "stt-audio-service",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"pipeline": map[string]interface{}{
				"status":    "running",
				"processed": pipelineStats.Processed,
				"successes": pipelineStats.Successes,
				"failures":  pipelineStats.Failures,
			},
			"transcription": map[string]interface{}{
				"status":          "running",
				"total_requests":  recognizerStats.TotalRequests,
				"success_rate":    recognizerStats.SuccessRate,
				"active_requests": recognizerStats.ActiveRequests,
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg := h.components.Config

	// Sanitized configuration: API keys are intentionally omitted.
	sanitizedConfig := map[string]interface{}{
		"server": map[string]interface{}{
			"port":    cfg.Server.Port,
			"address": cfg.Server.Address,
		},
		"audio": map[string]interface{}{
			"sample_rate":         cfg.Audio.SampleRate,
			"channels":            cfg.Audio.Channels,
			"bit_depth":           cfg.Audio.BitDepth,
			"min_utterance_bytes": cfg.Audio.MinUtteranceBytes,
			"stream_timeout":      cfg.Audio.StreamTimeout,
		},
		"silence": map[string]interface{}{
			"enabled":                cfg.Silence.Enabled,
			"silence_threshold_dbfs": cfg.Silence.SilenceThresholdDBFS,
			"voice_threshold_dbfs":   cfg.Silence.VoiceThresholdDBFS,
			"min_silence_ms":         cfg.Silence.MinSilenceMs,
		},
		"codec": map[string]interface{}{
			"ffmpeg_path":           cfg.Codec.FFmpegPath,
			"output_dir":            cfg.Codec.OutputDir,
			"max_concurrent":        cfg.Codec.MaxConcurrent,
			"stale_max_age_minutes": cfg.Codec.StaleMaxAgeMinutes,
		},
		"transcription": map[string]interface{}{
			"endpoint":            cfg.Transcription.Endpoint,
			"auth":                cfg.Transcription.Auth,
			"timeout":             cfg.Transcription.Timeout,
			"max_concurrent":      cfg.Transcription.MaxConcurrent,
			"languages":           cfg.Transcription.Languages,
			"streaming_transport": cfg.Transcription.StreamingTransport,
		},
		"routing": map[string]interface{}{
			"enabled":  cfg.Routing.Enabled,
			"endpoint": cfg.Routing.Endpoint,
			"auth":     cfg.Routing.Auth,
			"timeout":  cfg.Routing.Timeout,
		},
		"logging": map[string]interface{}{
			"level":  cfg.Logging.Level,
			"format": cfg.Logging.Format,
			"output": cfg.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)

	stats := map[string]interface{}{
		"uptime":        uptime.String(),
		"timestamp":     time.Now().UTC(),
		"pipeline":      h.components.Pipeline.GetStats(),
		"transcription": h.components.Recognizer.GetStats(),
	}

	if h.components.Gate != nil {
		stats["silence_gate"] = h.components.Gate.GetStats()
	}
	if h.components.Transcoder != nil {
		stats["codec"] = h.components.Transcoder.GetStats()
	}
	if h.components.Uploader != nil {
		stats["routing"] = h.components.Uploader.GetStats()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "STT Audio Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"POST /api/v1/transcribe": "Submit an utterance audio stream for transcription",
			"GET /health":             "Service health check",
			"GET /config":             "Get service configuration",
			"GET /stats":              "Get service statistics",
			"GET /metrics":            "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}
