package transcription

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// UploadFields carries the auxiliary form fields sent alongside the audio
// file: the recognized text, the capture timestamp, and the originating
// device's hardware address.
type UploadFields struct {
	Text       string
	Timestamp  int64 // unix seconds
	MACAddress string
}

// UploaderConfig contains audio upload client configuration.
type UploaderConfig struct {
	Endpoint      string
	APIKey        string
	Auth          AuthScheme
	Timeout       time.Duration
	MaxConcurrent int
}

// Uploader forwards exported audio files to the routing endpoint as a
// multipart form. The service acknowledges receipt with an arbitrary JSON
// body; any 2xx response is a success.
type Uploader struct {
	config     UploaderConfig
	httpClient *http.Client
	semaphore  chan struct{}

	// Statistics
	totalUploads  uint64
	failedUploads uint64

	mu sync.RWMutex
}

// UploaderStats represents upload client statistics.
type UploaderStats struct {
	TotalUploads  uint64  `json:"total_uploads"`
	FailedUploads uint64  `json:"failed_uploads"`
	SuccessRate   float64 `json:"success_rate"`
}

// NewUploader creates an audio upload client.
func NewUploader(config UploaderConfig) (*Uploader, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	if config.Auth == "" {
		config.Auth = AuthFunctionsKey
	}

	if config.Auth != AuthBearer && config.Auth != AuthFunctionsKey {
		return nil, fmt.Errorf("unsupported auth scheme %q", config.Auth)
	}

	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}

	return &Uploader{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		semaphore: make(chan struct{}, config.MaxConcurrent),
	}, nil
}

// Upload sends the file at path plus the auxiliary fields to the routing
// endpoint and waits for the acknowledgment.
func (u *Uploader) Upload(ctx context.Context, path string, fields UploadFields) error {
	select {
	case u.semaphore <- struct{}{}:
		defer func() { <-u.semaphore }()
	case <-ctx.Done():
		return classifyTransport(ctx.Err())
	}

	u.mu.Lock()
	u.totalUploads++
	u.mu.Unlock()

	body, contentType, err := buildMultipartBody(path, fields)
	if err != nil {
		u.recordFailure()
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, u.config.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.config.Endpoint, body)
	if err != nil {
		u.recordFailure()
		return fmt.Errorf("failed to create upload request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	applyAuth(httpReq, u.config.Auth, u.config.APIKey)

	resp, err := u.httpClient.Do(httpReq)
	if err != nil {
		u.recordFailure()
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		u.recordFailure()
		return classifyTransport(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		u.recordFailure()
		return fmt.Errorf("%w: %d: %s", ErrUnexpectedStatus, resp.StatusCode, string(respBody))
	}

	return nil
}

// buildMultipartBody assembles the multipart form: the audio file under
// field "audio" and the auxiliary text fields next to it.
func buildMultipartBody(path string, fields UploadFields) (io.Reader, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open audio file %s: %w", path, err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("audio", filepath.Base(path))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := io.Copy(fileWriter, file); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	formFields := map[string]string{
		"text":       fields.Text,
		"timestamp":  strconv.FormatInt(fields.Timestamp, 10),
		"macAddress": fields.MACAddress,
	}

	for key, value := range formFields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", key, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

// GetStats returns current uploader statistics.
func (u *Uploader) GetStats() UploaderStats {
	u.mu.RLock()
	defer u.mu.RUnlock()

	successRate := float64(0)
	if u.totalUploads > 0 {
		successRate = float64(u.totalUploads-u.failedUploads) / float64(u.totalUploads) * 100
	}

	return UploaderStats{
		TotalUploads:  u.totalUploads,
		FailedUploads: u.failedUploads,
		SuccessRate:   successRate,
	}
}

func (u *Uploader) recordFailure() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.failedUploads++
}
