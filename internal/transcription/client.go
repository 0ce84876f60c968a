package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"
)

// recognitionSuccess is the status sentinel the service sets on a
// successful transcription.
const recognitionSuccess = "Success"

// AuthScheme selects how the API key is attached to outbound requests.
type AuthScheme string

const (
	// AuthBearer sends the key as "Authorization: Bearer <key>".
	AuthBearer AuthScheme = "bearer"
	// AuthFunctionsKey sends the key as "x-functions-key: <key>".
	AuthFunctionsKey AuthScheme = "functions-key"
)

// Sentinel errors for the failure modes callers need to tell apart.
// Transport errors that match none of these are plain wrapped errors.
var (
	ErrTimeout           = errors.New("transcription request timed out")
	ErrRejected          = errors.New("transcription rejected by service")
	ErrMalformedResponse = errors.New("malformed transcription response")
	ErrUnexpectedStatus  = errors.New("unexpected HTTP status from transcription service")
)

// Config contains transcription client configuration.
type Config struct {
	Endpoint      string
	APIKey        string
	Auth          AuthScheme
	Timeout       time.Duration
	MaxConcurrent int
	Language      string
}

// Client performs streaming recognition requests. The request body is
// written as it is produced, so transmission can begin before the full
// utterance is known. Calls never retry; retry policy belongs to the
// caller.
type Client struct {
	config     Config
	httpClient *http.Client
	semaphore  chan struct{}

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// recognitionPayload mirrors the service's response JSON. Pointer fields
// distinguish absent keys from empty values.
type recognitionPayload struct {
	RecognitionStatus *string `json:"RecognitionStatus"`
	DisplayText       *string `json:"DisplayText"`
}

// ClientStats represents recognition client statistics.
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

// NewClient creates a streaming recognition client.
func NewClient(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	if config.Auth == "" {
		config.Auth = AuthBearer
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

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		semaphore:  make(chan struct{}, config.MaxConcurrent),
	}, nil
}

// Recognize posts the audio body to the recognition endpoint and returns
// the transcript. The body reader is consumed incrementally, so callers
// may feed it while chunks are still arriving from the host.
func (c *Client) Recognize(ctx context.Context, body io.Reader) (string, error) {
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return "", classifyTransport(ctx.Err())
	}

	startTime := time.Now()
	c.incrementTotal()

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, body)
	if err != nil {
		c.incrementFailed()
		return "", fmt.Errorf("failed to create recognition request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "audio/wav")
	httpReq.Header.Set("Accept", "application/json")
	applyAuth(httpReq, c.config.Auth, c.config.APIKey)
	if c.config.Language != "" {
		httpReq.Header.Set("Accept-Language", c.config.Language)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.incrementFailed()
		return "", classifyTransport(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.incrementFailed()
		return "", classifyTransport(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.incrementFailed()
		return "", fmt.Errorf("%w: %d: %s", ErrUnexpectedStatus, resp.StatusCode, string(respBody))
	}

	var payload recognitionPayload
	if err := json.Unmarshal(respBody, &payload); err != nil {
		c.incrementFailed()
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if payload.RecognitionStatus == nil || payload.DisplayText == nil {
		c.incrementFailed()
		return "", fmt.Errorf("%w: missing RecognitionStatus or DisplayText", ErrMalformedResponse)
	}

	if *payload.RecognitionStatus != recognitionSuccess {
		c.incrementFailed()
		return "", fmt.Errorf("%w: status %q", ErrRejected, *payload.RecognitionStatus)
	}

	c.recordSuccess(time.Since(startTime))
	return *payload.DisplayText, nil
}

// GetStats returns current client statistics.
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  len(c.semaphore),
	}
}

func (c *Client) incrementTotal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementFailed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) recordSuccess(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.successRequests++
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// applyAuth attaches the API key under the configured scheme.
func applyAuth(req *http.Request, scheme AuthScheme, key string) {
	switch scheme {
	case AuthFunctionsKey:
		req.Header.Set("x-functions-key", key)
	default:
		req.Header.Set("Authorization", "Bearer "+key)
	}
}

// classifyTransport maps transport-level failures onto the package
// sentinels, keeping timeouts distinguishable from other network errors.
func classifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("transcription request failed: %w", err)
}

// LocalMACAddress returns the hardware address of the first non-loopback
// interface that has one. It identifies the originating device in upload
// requests.
func LocalMACAddress() (string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("failed to list network interfaces: %w", err)
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(iface.HardwareAddr) == 0 {
			continue
		}
		return iface.HardwareAddr.String(), nil
	}

	return "", fmt.Errorf("no interface with a hardware address found")
}
