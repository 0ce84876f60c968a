package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rs-tuned/stt-audio-service/internal/config"
	"github.com/rs-tuned/stt-audio-service/internal/metrics"
	"github.com/rs-tuned/stt-audio-service/internal/provider"
	"github.com/rs-tuned/stt-audio-service/internal/transcription"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8080, Address: "127.0.0.1"},
		Audio: config.AudioConfig{
			SampleRate:        16000,
			Channels:          1,
			BitDepth:          16,
			MinUtteranceBytes: 1000,
			StreamTimeout:     10,
		},
		Transcription: config.TranscriptionConfig{
			Endpoint:      "http://backend.invalid/recognize",
			Auth:          "bearer",
			Timeout:       10,
			MaxConcurrent: 10,
			Languages:     []string{"en-US", "ko-KR"},
		},
		Logging: config.LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
	}
}

// newTestServer wires a full server against a stub recognition backend
// and returns its handler.
func newTestServer(t *testing.T, backend http.HandlerFunc) (http.Handler, *httptest.Server) {
	t.Helper()

	ts := httptest.NewServer(backend)
	t.Cleanup(ts.Close)

	recognizer, err := transcription.NewClient(transcription.Config{
		Endpoint: ts.URL,
		APIKey:   "test-key",
		Timeout:  2 * time.Second,
	})
	require.NoError(t, err)

	m := metrics.NewMetricsWith(prometheus.NewRegistry())

	pipeline, err := provider.NewPipeline(provider.Config{
		Languages:         []string{"en-US", "ko-KR"},
		MinUtteranceBytes: 1000,
	}, testLogger(), recognizer, nil, nil, nil, m)
	require.NoError(t, err)

	srv := NewHTTPServer(HTTPServerConfig{Port: 8080, Address: "127.0.0.1"}, testLogger(), Components{
		Config:     testConfig(),
		Provider:   pipeline,
		Pipeline:   pipeline,
		Recognizer: recognizer,
		Metrics:    m,
	})

	return srv.Handler(), ts
}

func successBackend(text string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"RecognitionStatus":"Success","DisplayText":"` + text + `"}`))
	}
}

func TestHandleTranscribe(t *testing.T) {
	handler, _ := newTestServer(t, successBackend("hello world"))

	body := bytes.NewReader(make([]byte, 4000))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transcribe", body)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var result provider.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, provider.StateSuccess, result.State)
	assert.Equal(t, "hello world", result.Text)
}

func TestHandleTranscribeShortUtterance(t *testing.T) {
	handler, _ := newTestServer(t, successBackend("never"))

	body := bytes.NewReader(make([]byte, 100))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transcribe", body)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	// Pipeline failures are still well-formed 200 results
	require.Equal(t, http.StatusOK, rec.Code)

	var result provider.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, provider.StateError, result.State)
	assert.Empty(t, result.Text)
}

func TestHandleTranscribeMethodNotAllowed(t *testing.T) {
	handler, _ := newTestServer(t, successBackend("x"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transcribe", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleTranscribeInvalidMetadata(t *testing.T) {
	handler, _ := newTestServer(t, successBackend("x"))

	tests := []struct {
		name  string
		query string
	}{
		{"non-numeric sample rate", "?sample_rate=fast"},
		{"zero sample rate", "?sample_rate=0"},
		{"too many channels", "?channels=5"},
		{"bad bit depth", "?bit_depth=24"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/transcribe"+tt.query,
				bytes.NewReader(make([]byte, 2000)))
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandleTranscribeUnsupportedLanguage(t *testing.T) {
	handler, _ := newTestServer(t, successBackend("x"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transcribe?language=fr-FR",
		bytes.NewReader(make([]byte, 2000)))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleTranscribeSupportedLanguage(t *testing.T) {
	handler, _ := newTestServer(t, successBackend("annyeong"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transcribe?language=ko-KR",
		bytes.NewReader(make([]byte, 4000)))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result provider.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, provider.StateSuccess, result.State)
}

func TestHandleHealth(t *testing.T) {
	handler, _ := newTestServer(t, successBackend("x"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Contains(t, health, "components")
}

func TestHandleConfigOmitsSecrets(t *testing.T) {
	handler, _ := newTestServer(t, successBackend("x"))

	req := httptest.NewRequest(http.MethodGet, "/config", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.NotContains(t, rec.Body.String(), "api_key")
	assert.NotContains(t, rec.Body.String(), "test-key")

	var cfg map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Contains(t, cfg, "transcription")
	assert.Contains(t, cfg, "audio")
}

func TestHandleStats(t *testing.T) {
	handler, _ := newTestServer(t, successBackend("x"))

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Contains(t, stats, "pipeline")
	assert.Contains(t, stats, "transcription")

	// Disabled components stay out of the report
	assert.NotContains(t, stats, "silence_gate")
	assert.NotContains(t, stats, "codec")
	assert.NotContains(t, stats, "routing")
}

func TestHandleMetrics(t *testing.T) {
	handler, _ := newTestServer(t, successBackend("x"))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleRoot(t *testing.T) {
	handler, _ := newTestServer(t, successBackend("x"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Contains(t, doc, "endpoints")
}

func TestHandleRootUnknownPath(t *testing.T) {
	handler, _ := newTestServer(t, successBackend("x"))

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
