package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	defaultVersion = "2023-06-01"
	messagesPath   = "/v1/messages"

	// maxErrorBody bounds how much of a failed response is kept in APIError.
	maxErrorBody = 64 << 10
)

// ErrTruncated reports a reply cut off by max_tokens. A structured answer
// stopped mid-object cannot be parsed, so callers treat it as a failure.
var ErrTruncated = errors.New("response truncated at max_tokens")

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL points the client at a proxy or test server.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimSuffix(baseURL, "/")
		}
	}
}

// WithHTTPClient sets the HTTP client, e.g. a recording transport in tests.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithVersion overrides the anthropic-version header.
func WithVersion(version string) ClientOption {
	return func(c *Client) {
		if version != "" {
			c.version = version
		}
	}
}

// Client sends single, non-streaming Messages requests. The pipeline only
// needs one complete JSON answer per stage.
type Client struct {
	apiKey     string
	baseURL    string
	version    string
	httpClient *http.Client
}

func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		version:    defaultVersion,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateMessage sends req and returns the reply. A reply that stopped at
// max_tokens is returned together with ErrTruncated.
func (c *Client) CreateMessage(ctx context.Context, req *MessagesRequest) (*MessagesResponse, error) {
	var out MessagesResponse
	if err := c.post(ctx, messagesPath, req, &out); err != nil {
		return nil, err
	}
	if out.StopReason == StopMaxTokens {
		return &out, ErrTruncated
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", c.version)
	req.Header.Set("User-Agent", "vibeops/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func apiError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr, err := ParseErrorResponse(data)
	if err != nil || apiErr == nil {
		apiErr = &APIError{Type: "api_error", Message: strings.TrimSpace(string(data))}
	}
	apiErr.StatusCode = resp.StatusCode
	apiErr.RequestID = resp.Header.Get("request-id")
	return apiErr
}
