package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/caredai/daytona/pkg/metrics"
)

const (
	// DefaultTimeout is the default HTTP client timeout
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default rate limit (requests per minute)
	DefaultRateLimit = 300

	// MaxResponseBodySize is the maximum size of HTTP response bodies (10MB)
	MaxResponseBodySize = 10 * 1024 * 1024

	// DefaultMaxRetries is the default maximum number of retries for transient errors
	DefaultMaxRetries = 3

	// DefaultInitialBackoff is the initial backoff duration for retries
	DefaultInitialBackoff = 100 * time.Millisecond

	// DefaultMaxBackoff is the maximum backoff duration between retries
	DefaultMaxBackoff = 10 * time.Second

	// DefaultBackoffMultiplier is the multiplier for exponential backoff
	DefaultBackoffMultiplier = 2.0

	// DefaultJitterFactor is the maximum jitter as a fraction of backoff (0.0-1.0)
	DefaultJitterFactor = 0.2
)

// RetryConfig configures the retry behavior with exponential backoff
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (0 = no retries)
	MaxRetries int

	// InitialBackoff is the initial backoff duration
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64

	// JitterFactor is the maximum jitter as a fraction of backoff (0.0-1.0)
	JitterFactor float64

	// RetryableStatusCodes are HTTP status codes that should trigger a retry
	RetryableStatusCodes []int
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        DefaultMaxRetries,
		InitialBackoff:    DefaultInitialBackoff,
		MaxBackoff:        DefaultMaxBackoff,
		BackoffMultiplier: DefaultBackoffMultiplier,
		JitterFactor:      DefaultJitterFactor,
		RetryableStatusCodes: []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

// NoRetryConfig returns a retry configuration that disables retries.
// The control loop and the proxy both treat the next tick or request as
// the retry, so their clients run with this configuration.
func NoRetryConfig() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.MaxRetries = 0
	return cfg
}

// Client is a Daytona API client
type Client struct {
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	retryConfig RetryConfig
	baseURL     string
	apiKey      string
	userAgent   string
	logger      *zap.Logger
}

// Options represents options for creating a new Client
type Options struct {
	// HTTPClient is a custom HTTP client to use (optional)
	HTTPClient *http.Client

	// Timeout is the HTTP client timeout
	Timeout time.Duration

	// RateLimit is the maximum number of requests per minute
	RateLimit int

	// UserAgent is the user agent string to use in requests
	UserAgent string

	// Logger is the logger to use (optional, defaults to no-op logger)
	Logger *zap.Logger

	// RetryConfig configures retry behavior with exponential backoff.
	// If nil, DefaultRetryConfig() is used
	RetryConfig *RetryConfig
}

// New creates a new Daytona API client authenticated with a static API key.
// The key is sent as a bearer token on every request.
func New(baseURL, apiKey string, opts *Options) (*Client, error) {
	if opts == nil {
		opts = &Options{}
	}

	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		return nil, NewConfigError("api_url", "API URL cannot be empty")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, NewConfigError("api_url", fmt.Sprintf("API URL must be a valid http(s) URL, got: %s", baseURL))
	}

	if apiKey == "" {
		return nil, NewConfigError("api_key", "API key cannot be empty")
	}

	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RateLimit == 0 {
		opts.RateLimit = DefaultRateLimit
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "daytona-platform/1.0"
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	// Convert requests per minute to requests per second
	rps := float64(opts.RateLimit) / 60.0
	rateLimiter := rate.NewLimiter(rate.Limit(rps), opts.RateLimit)

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	retryConfig := DefaultRetryConfig()
	if opts.RetryConfig != nil {
		retryConfig = *opts.RetryConfig
	}

	return &Client{
		httpClient:  httpClient,
		rateLimiter: rateLimiter,
		retryConfig: retryConfig,
		baseURL:     baseURL,
		apiKey:      apiKey,
		userAgent:   opts.UserAgent,
		logger:      logger.Named("daytona-client"),
	}, nil
}

// GetBaseURL returns the configured base URL
func (c *Client) GetBaseURL() string {
	return c.baseURL
}

// doRequest performs an HTTP request with authentication, rate limiting and
// bounded retries on transient failures.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	startTime := time.Now()

	// Wait for rate limiter
	rateLimitStart := time.Now()
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}
	metrics.APIRateLimitWaitDuration.WithLabelValues(method).Observe(time.Since(rateLimitStart).Seconds())

	// Marshal request body once; each attempt gets a fresh reader
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	requestURL := c.baseURL + path

	var resp *http.Response
	var lastErr error
	backoff := c.retryConfig.InitialBackoff

	for attempt := 0; attempt <= c.retryConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := backoff
			if c.retryConfig.JitterFactor > 0 {
				wait += time.Duration(float64(backoff) * c.retryConfig.JitterFactor * rand.Float64())
			}
			c.logger.Debug("retrying request",
				zap.String("method", method),
				zap.String("path", path),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", wait),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
			backoff = time.Duration(float64(backoff) * c.retryConfig.BackoffMultiplier)
			if backoff > c.retryConfig.MaxBackoff {
				backoff = c.retryConfig.MaxBackoff
			}
		}

		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}

		req, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, lastErr = c.httpClient.Do(req)
		if lastErr != nil {
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if !c.isRetryableStatus(resp.StatusCode) {
			break
		}

		// Drain and close so the connection can be reused before retrying
		io.Copy(io.Discard, io.LimitReader(resp.Body, MaxResponseBodySize))
		resp.Body.Close()
		lastErr = NewAPIError(resp.StatusCode, http.StatusText(resp.StatusCode), "retryable status")
		resp = nil
	}

	duration := time.Since(startTime)

	if resp == nil {
		metrics.RecordAPIRequest(method, "error", duration)
		return nil, fmt.Errorf("failed to perform request: %w", lastErr)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		metrics.RecordAPIRequest(method, strconv.Itoa(resp.StatusCode), duration)

		requestID := resp.Header.Get("X-Request-ID")
		respBytes, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBodySize))

		var errResp ErrorResponse
		if err := json.Unmarshal(respBytes, &errResp); err == nil && errResp.Message != "" {
			apiErr := NewAPIErrorWithRequestID(resp.StatusCode, errResp.Error, errResp.Message, requestID)
			c.logger.Warn("API request failed",
				zap.String("method", method),
				zap.String("path", path),
				zap.Int("status", resp.StatusCode),
				zap.Error(apiErr),
			)
			return nil, apiErr
		}

		apiErr := NewAPIErrorWithRequestID(resp.StatusCode, http.StatusText(resp.StatusCode), string(respBytes), requestID)
		c.logger.Warn("API request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.Error(apiErr),
		)
		return nil, apiErr
	}

	metrics.RecordAPIRequest(method, strconv.Itoa(resp.StatusCode), duration)
	return resp, nil
}

func (c *Client) isRetryableStatus(status int) bool {
	if c.retryConfig.MaxRetries == 0 {
		return false
	}
	for _, code := range c.retryConfig.RetryableStatusCodes {
		if status == code {
			return true
		}
	}
	return false
}

// get performs a GET request and decodes the JSON response into result
func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if result != nil {
		limitedReader := io.LimitReader(resp.Body, MaxResponseBodySize)
		if err := json.NewDecoder(limitedReader).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// post performs a POST request and decodes the JSON response into result
func (c *Client) post(ctx context.Context, path string, body, result interface{}) error {
	resp, err := c.doRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if result != nil {
		limitedReader := io.LimitReader(resp.Body, MaxResponseBodySize)
		if err := json.NewDecoder(limitedReader).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// ListRunners retrieves all runners registered in the given region.
func (c *Client) ListRunners(ctx context.Context, regionID string) ([]Runner, error) {
	query := url.Values{}
	if regionID != "" {
		query.Set("regionId", regionID)
	}
	path := "/admin/runners"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var runners []Runner
	if err := c.get(ctx, path, &runners); err != nil {
		return nil, fmt.Errorf("failed to list runners: %w", err)
	}

	return runners, nil
}

// ValidateSandboxBearerToken reports whether the bearer token grants access
// to the sandbox.
func (c *Client) ValidateSandboxBearerToken(ctx context.Context, sandboxID, token string) (bool, error) {
	path := fmt.Sprintf("/sandbox/%s/auth/bearer", url.PathEscape(sandboxID))

	var result ValidationResponse
	if err := c.post(ctx, path, map[string]string{"token": token}, &result); err != nil {
		return false, fmt.Errorf("failed to validate bearer token: %w", err)
	}

	return result.Valid, nil
}

// ValidateSandboxAuthKey reports whether the auth key grants access to the
// sandbox.
func (c *Client) ValidateSandboxAuthKey(ctx context.Context, sandboxID, authKey string) (bool, error) {
	path := fmt.Sprintf("/sandbox/%s/auth/key", url.PathEscape(sandboxID))

	var result ValidationResponse
	if err := c.post(ctx, path, map[string]string{"authKey": authKey}, &result); err != nil {
		return false, fmt.Errorf("failed to validate auth key: %w", err)
	}

	return result.Valid, nil
}

// ExchangeSignedPreviewToken resolves a signed preview URL token to the
// sandbox id it grants access to on the given port.
func (c *Client) ExchangeSignedPreviewToken(ctx context.Context, token string, port int) (string, error) {
	path := fmt.Sprintf("/preview/token/%s?port=%d", url.PathEscape(token), port)

	var result PreviewTokenResponse
	if err := c.get(ctx, path, &result); err != nil {
		return "", fmt.Errorf("failed to exchange preview token: %w", err)
	}
	if result.SandboxID == "" {
		return "", fmt.Errorf("preview token exchange returned an empty sandbox id")
	}

	return result.SandboxID, nil
}

// GetAuthURL returns the upstream auth URL an unauthenticated client should
// be redirected to.
func (c *Client) GetAuthURL(ctx context.Context, sandboxIDOrToken string) (string, error) {
	query := url.Values{"target": {sandboxIDOrToken}}

	var result AuthURLResponse
	if err := c.get(ctx, "/preview/auth-url?"+query.Encode(), &result); err != nil {
		return "", fmt.Errorf("failed to get auth URL: %w", err)
	}
	if result.URL == "" {
		return "", fmt.Errorf("auth URL endpoint returned an empty URL")
	}

	return result.URL, nil
}
