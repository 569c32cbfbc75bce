package captioner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"captionkit/internal/logging"
	"captionkit/internal/services"
)

const (
	// DefaultTask is the task token sent when none is configured.
	DefaultTask        = "<CAPTION>"
	defaultHTTPTimeout = 120 * time.Second
	captionPath        = "/caption"
	healthPath         = "/health"
	statusOK           = "ok"
	maxErrorBody       = 512
)

// Config captures the runtime settings for the captioning service.
type Config struct {
	BaseURL        string
	Task           string
	TimeoutSeconds int
}

// Client calls the captioning service.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	sleeper    func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger attaches a logger for readiness and request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSleeper overrides how readiness waits are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// NewClient constructs a captioning client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			Task:           strings.TrimSpace(cfg.Task),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.Task == "" {
		client.cfg.Task = DefaultTask
	}
	client.logger = logging.NewComponentLogger(client.logger, "captioner")
	return client
}

// Task returns the task token sent with each request.
func (c *Client) Task() string {
	return c.cfg.Task
}

type httpStatusError struct {
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Caption uploads one image and returns the caption text. An empty caption
// is not an error.
func (c *Client) Caption(ctx context.Context, imagePath string) (string, error) {
	resp, err := c.Describe(ctx, imagePath)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// Describe uploads one image and returns the resolved response.
func (c *Client) Describe(ctx context.Context, imagePath string) (Response, error) {
	name := filepath.Base(imagePath)
	wrap := func(message string, err error) error {
		return services.Wrap(services.ErrUpstream, "captioner", "caption "+name, message, err)
	}
	if c.cfg.BaseURL == "" {
		return Response{}, services.Wrap(services.ErrConfiguration, "captioner", "caption", "base url not configured", nil)
	}

	body, contentType, err := buildCaptionForm(imagePath, c.cfg.Task)
	if err != nil {
		return Response{}, wrap("build request", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+captionPath, body)
	if err != nil {
		return Response{}, wrap("build request", err)
	}
	request.Header.Set("Content-Type", contentType)
	request.Header.Set("Accept", "application/json")

	payload, err := c.do(request)
	if err != nil {
		return Response{}, wrap("request failed", err)
	}
	resp, err := ParseResponse(payload, c.cfg.Task)
	if err != nil {
		return Response{}, wrap("decode response", err)
	}
	c.logger.Debug("caption received",
		logging.String(logging.FieldImage, name),
		logging.String("response_kind", string(resp.Kind)),
		logging.Int("caption_length", len(resp.Text)))
	return resp, nil
}

func buildCaptionForm(imagePath, task string) (*bytes.Buffer, string, error) {
	file, err := os.Open(imagePath)
	if err != nil {
		return nil, "", fmt.Errorf("open image: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("task", task); err != nil {
		return nil, "", fmt.Errorf("write task field: %w", err)
	}
	field, err := writer.CreateFormFile("file", filepath.Base(imagePath))
	if err != nil {
		return nil, "", fmt.Errorf("create file field: %w", err)
	}
	if _, err := io.Copy(field, file); err != nil {
		return nil, "", fmt.Errorf("copy image: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}

// HealthStatus mirrors the /health payload.
type HealthStatus struct {
	Status  string `json:"status"`
	ModelID string `json:"model_id"`
	Device  string `json:"device"`
}

// Health probes the service once. The service is ready only when it reports
// status "ok"; anything else returns an error wrapping ErrServiceUnavailable.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	wrap := func(message string, err error) error {
		return services.Wrap(services.ErrServiceUnavailable, "captioner", "health", message, err)
	}
	if c.cfg.BaseURL == "" {
		return HealthStatus{}, services.Wrap(services.ErrConfiguration, "captioner", "health", "base url not configured", nil)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+healthPath, nil)
	if err != nil {
		return HealthStatus{}, wrap("build request", err)
	}
	request.Header.Set("Accept", "application/json")

	payload, err := c.do(request)
	if err != nil {
		return HealthStatus{}, wrap("request failed", err)
	}
	var status HealthStatus
	if err := json.Unmarshal(payload, &status); err != nil {
		return HealthStatus{}, wrap("decode response", err)
	}
	if status.Status != statusOK {
		return status, wrap(fmt.Sprintf("status %q", status.Status), nil)
	}
	return status, nil
}

// WaitReady probes Health up to attempts times, sleeping delay between
// failures. The final failure is returned wrapped in ErrServiceUnavailable.
func (c *Client) WaitReady(ctx context.Context, attempts int, delay time.Duration) (HealthStatus, error) {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		status, err := c.Health(ctx)
		if err == nil {
			c.logger.Info("captioning service ready",
				logging.String("model_id", status.ModelID),
				logging.String("device", status.Device),
				logging.Int("attempt", attempt))
			return status, nil
		}
		if errors.Is(err, services.ErrConfiguration) {
			return HealthStatus{}, err
		}
		lastErr = err
		c.logger.Debug("captioning service not ready",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", attempts),
			logging.Error(err))
		if attempt == attempts {
			break
		}
		if err := c.sleep(ctx, delay); err != nil {
			return HealthStatus{}, err
		}
	}
	return HealthStatus{}, services.Wrap(services.ErrServiceUnavailable, "captioner", "wait ready",
		fmt.Sprintf("not ready after %d attempts", attempts), lastErr)
}

func (c *Client) do(request *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := payload
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, &httpStatusError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}
	return payload, nil
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if delay <= 0 {
		return nil
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
