// Package runner provides the HTTP client for the external job-execution
// platform.
package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/disperse/internal/models"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	// The platform throttles aggressively; staying under its limit is
	// cheaper than handling its 429 responses.
	DefaultRateLimit = 5
)

// Client talks to the runner platform's job API.
type Client struct {
	baseURL        string
	storageBaseURL string
	apiKey         string
	httpClient     *http.Client
	logger         arbor.ILogger
	limiter        *rate.Limiter
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets a custom rate limit.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithStorageBaseURL sets the base URL of the platform's durable object
// storage, used by the archival recovery tier.
func WithStorageBaseURL(storageBaseURL string) ClientOption {
	return func(c *Client) {
		c.storageBaseURL = strings.TrimRight(storageBaseURL, "/")
	}
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a runner platform client.
func NewClient(baseURL, apiKey string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("runner base URL is required")
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.storageBaseURL == "" {
		c.storageBaseURL = c.baseURL + "/storage"
	}

	return c, nil
}

// APIError represents an error response from the runner platform.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("runner API error: %s (status %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// launchRequest is the wire format of a launch call
type launchRequest struct {
	Template  string `json:"template"`
	Results   int    `json:"results"`
	StartPage int    `json:"start_page,omitempty"`
	PageCount int    `json:"page_count,omitempty"`
}

// launchResponse carries the opaque handle of the started job
type launchResponse struct {
	Handle string `json:"handle"`
}

// Launch starts a job and returns its handle
func (c *Client) Launch(ctx context.Context, params models.LaunchParams) (string, error) {
	if params.Template == "" {
		return "", fmt.Errorf("launch template is required")
	}

	body := launchRequest{
		Template:  params.Template,
		Results:   params.ResultCount,
		StartPage: params.StartPage,
		PageCount: params.PageCount,
	}

	var resp launchResponse
	if err := c.do(ctx, http.MethodPost, "/api/v2/jobs", body, &resp); err != nil {
		return "", err
	}
	if resp.Handle == "" {
		return "", fmt.Errorf("runner returned an empty job handle")
	}

	if c.logger != nil {
		c.logger.Debug().
			Str("handle", resp.Handle).
			Str("template", params.Template).
			Msg("Job launched")
	}

	return resp.Handle, nil
}

// Status returns the runner's view of a job
func (c *Client) Status(ctx context.Context, handle string) (*models.JobStatus, error) {
	var status models.JobStatus
	if err := c.do(ctx, http.MethodGet, "/api/v2/jobs/"+handle, nil, &status); err != nil {
		return nil, err
	}
	if status.Handle == "" {
		status.Handle = handle
	}
	return &status, nil
}

// FetchResult returns the raw structured result of a finished job. The
// payload shape varies; callers normalize it.
func (c *Client) FetchResult(ctx context.Context, handle string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/v2/jobs/"+handle+"/result", nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// FetchArchive retrieves a named object from the platform's durable
// storage for a handle.
func (c *Client) FetchArchive(ctx context.Context, handle, name string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit exceeded: %w", err)
	}

	reqURL := fmt.Sprintf("%s/%s/%s", c.storageBaseURL, handle, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   reqURL,
		}
	}

	return io.ReadAll(resp.Body)
}

// Stop asks the platform to terminate an in-flight job
func (c *Client) Stop(ctx context.Context, handle string) error {
	return c.do(ctx, http.MethodPost, "/api/v2/jobs/"+handle+"/stop", nil, nil)
}

// do performs one API call with rate limiting and JSON codec handling
func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit exceeded: %w", err)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	reqURL := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.logger != nil {
		c.logger.Debug().
			Str("method", method).
			Str("url", reqURL).
			Msg("Runner API request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		respBody, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(respBody)),
			Endpoint:   path,
		}
	}

	if result == nil {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
}
