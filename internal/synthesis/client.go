package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/tts-stream/internal/core"
)

// API endpoints and paths.
const (
	apiSynthesizeStream = "/v1/synthesize/stream"
	apiHealth           = "/health"
)

// HTTP headers.
const (
	headerContentType  = "Content-Type"
	headerAccept       = "Accept"
	contentTypeJSON    = "application/json"
	contentTypeSSE     = "text/event-stream"
	healthCheckTimeout = 5 * time.Second
)

// Error messages.
const (
	errFmtServiceErrorWithCode = "TTS service error (%s): %s (code: %s)"
	errFmtServiceNonOKStatus   = "TTS service returned non-OK status: %s, body: %s"
)

// Log messages.
const (
	logStreamOpened = "Opened synthesis stream at %s (%d characters, %s)"
)

// ErrorResponse is the structured error body returned by the service.
type ErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// Client opens synthesis streams over HTTP. The response body is the
// newline-delimited record stream.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	openTimeout time.Duration
	log         *logger.Logger
}

// NewClient creates a Client for the service at baseURL, e.g.
// "http://localhost:8000". openTimeout bounds the time until the first byte
// of the stream; zero disables it.
func NewClient(baseURL string, openTimeout time.Duration, log *logger.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		openTimeout: openTimeout,
		log:         log,
		// No client timeout: a stream lives as long as synthesis takes.
		httpClient: &http.Client{},
	}
}

// Open sends req and returns the streaming response body. Failures before the
// first byte within openTimeout are classified as core.KindTimeout; other
// network failures as core.KindTransport.
func (c *Client) Open(ctx context.Context, req Request) (io.ReadCloser, error) {
	requestBody, err := json.Marshal(req)
	if err != nil {
		return nil, core.Wrap(core.KindValidation, "encode request", err)
	}

	guard := newOpenGuard(ctx, c.openTimeout)
	url := c.baseURL + apiSynthesizeStream

	httpReq, err := http.NewRequestWithContext(guard.ctx, http.MethodPost, url, bytes.NewReader(requestBody))
	if err != nil {
		guard.release()

		return nil, core.Wrap(core.KindTransport, "create request", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeSSE)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		guard.release()

		return nil, guard.classify("open stream", fmt.Errorf("failed to reach TTS service at %s: %w", c.baseURL, err))
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		defer guard.release()

		return nil, guard.classify("open stream", parseErrorResponse(resp))
	}

	c.log.Info(logStreamOpened, url, len([]rune(req.Text)), req.Encoding)

	return newGuardedStream(resp.Body, guard), nil
}

// HealthCheck verifies that the TTS service is running and operational.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	url := c.baseURL + apiHealth

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return core.Wrap(core.KindTransport, "health check",
			fmt.Errorf("health check failed for service at %s: %w", c.baseURL, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return core.Wrap(core.KindTransport, "health check",
			fmt.Errorf("health check failed with status: %s", resp.Status))
	}

	return nil
}

// parseErrorResponse decodes a structured JSON error from the service and
// falls back to the raw body.
func parseErrorResponse(resp *http.Response) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return fmt.Errorf(errFmtServiceNonOKStatus, resp.Status, readErr)
	}

	var errorResp ErrorResponse

	err := json.Unmarshal(body, &errorResp)
	if err == nil && errorResp.Detail != "" {
		return fmt.Errorf(errFmtServiceErrorWithCode, resp.Status, errorResp.Detail, errorResp.ErrorCode)
	}

	return fmt.Errorf(errFmtServiceNonOKStatus, resp.Status, strings.TrimSpace(string(body)))
}
