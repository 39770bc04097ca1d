// Package openai implements the completion service on top of the OpenAI
// chat completions API and compatible servers.
package openai

import (
	"context"
	"errors"
	"net/http"

	openaiapi "github.com/KaranKendre11/VibeOPS/internal/api/openai"
	"github.com/KaranKendre11/VibeOPS/internal/config"
	"github.com/KaranKendre11/VibeOPS/internal/core/domain"
	"github.com/KaranKendre11/VibeOPS/internal/core/ports"
	"github.com/KaranKendre11/VibeOPS/internal/provider/extract"
	"github.com/KaranKendre11/VibeOPS/internal/provider/registry"
)

// ProviderType is the provider type identifier used in configuration.
const ProviderType = "openai"

const (
	defaultModel = "gpt-4o-mini"
	systemPrompt = "You are an infrastructure planning assistant. Answer with a single valid JSON object and nothing else."
)

// Option configures the completer.
type Option func(*Completer)

// WithBaseURL points the completer at an OpenAI-compatible server.
func WithBaseURL(baseURL string) Option {
	return func(c *Completer) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Completer) {
		c.httpClient = httpClient
	}
}

func WithModel(model string) Option {
	return func(c *Completer) {
		if model != "" {
			c.model = model
		}
	}
}

func WithMaxTokens(n int) Option {
	return func(c *Completer) {
		c.maxTokens = n
	}
}

func WithTemperature(t float32) Option {
	return func(c *Completer) {
		c.temperature = t
	}
}

// WithJSONMode requests response_format json_object.
func WithJSONMode(enabled bool) Option {
	return func(c *Completer) {
		c.jsonMode = enabled
	}
}

// Completer implements ports.Completer.
type Completer struct {
	client      *openaiapi.Client
	baseURL     string
	httpClient  *http.Client
	model       string
	maxTokens   int
	temperature float32
	jsonMode    bool
}

// New creates a completer for the given API key.
func New(apiKey string, opts ...Option) *Completer {
	c := &Completer{model: defaultModel}
	for _, opt := range opts {
		opt(c)
	}

	var clientOpts []openaiapi.ClientOption
	if c.baseURL != "" {
		clientOpts = append(clientOpts, openaiapi.WithBaseURL(c.baseURL))
	}
	if c.httpClient != nil {
		clientOpts = append(clientOpts, openaiapi.WithHTTPClient(c.httpClient))
	}
	c.client = openaiapi.NewClient(apiKey, clientOpts...)

	return c
}

// Model returns the model requests are sent to.
func (c *Completer) Model() string { return c.model }

func (c *Completer) GenerateStructured(ctx context.Context, prompt string) (map[string]any, error) {
	req := &openaiapi.ChatCompletionRequest{
		Model: c.model,
		Messages: []openaiapi.ChatCompletionMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens: c.maxTokens,
	}
	if c.temperature > 0 {
		t := c.temperature
		req.Temperature = &t
	}
	if c.jsonMode {
		req.ResponseFormat = &openaiapi.ResponseFormat{Type: "json_object"}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, toCompletionError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &domain.CompletionError{Provider: ProviderType, Message: "response contained no choices"}
	}

	out, err := extract.Object(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, &domain.CompletionError{Provider: ProviderType, Message: "invalid structured response", Err: err}
	}
	return out, nil
}

func toCompletionError(err error) error {
	var apiErr *openaiapi.APIError
	if errors.As(err, &apiErr) {
		return &domain.CompletionError{
			Provider:   ProviderType,
			StatusCode: apiErr.StatusCode,
			Message:    "completion request rejected",
			Err:        apiErr,
		}
	}
	return &domain.CompletionError{Provider: ProviderType, Message: "completion request failed", Err: err}
}

// CreateFromConfig builds a completer from configuration.
func CreateFromConfig(cfg config.LLMConfig, httpClient *http.Client) (ports.Completer, error) {
	opts := []Option{
		WithModel(cfg.Model),
		WithMaxTokens(cfg.MaxTokens),
		WithTemperature(cfg.Temperature),
		WithJSONMode(cfg.JSONMode),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, WithBaseURL(cfg.BaseURL))
	}
	if httpClient != nil {
		opts = append(opts, WithHTTPClient(httpClient))
	}
	return New(cfg.APIKey, opts...), nil
}

// ValidateConfig requires a key unless a custom base URL is set; local
// OpenAI-compatible servers often run without one.
func ValidateConfig(cfg config.LLMConfig) error {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return errors.New("llm.api_key is required")
	}
	return nil
}

// RegisterProviderFactory registers the openai factory once.
func RegisterProviderFactory() {
	if registry.IsRegistered(ProviderType) {
		return
	}
	registry.RegisterFactory(registry.ProviderFactory{
		Type:           ProviderType,
		Description:    "OpenAI chat completions (and compatible servers)",
		Create:         CreateFromConfig,
		ValidateConfig: ValidateConfig,
	})
}

var _ ports.Completer = (*Completer)(nil)
