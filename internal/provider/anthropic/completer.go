// Package anthropic implements the completion service on top of the
// Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"net/http"

	anthropicapi "github.com/KaranKendre11/VibeOPS/internal/api/anthropic"
	"github.com/KaranKendre11/VibeOPS/internal/config"
	"github.com/KaranKendre11/VibeOPS/internal/core/domain"
	"github.com/KaranKendre11/VibeOPS/internal/core/ports"
	"github.com/KaranKendre11/VibeOPS/internal/provider/extract"
	"github.com/KaranKendre11/VibeOPS/internal/provider/registry"
)

const ProviderType = "anthropic"

const (
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 2048
	systemPrompt     = "You are an infrastructure planning assistant. Answer with a single valid JSON object and nothing else."
)

type Option func(*Completer)

func WithBaseURL(baseURL string) Option {
	return func(c *Completer) {
		c.baseURL = baseURL
	}
}

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

// WithMaxTokens sets max_tokens; the Messages API requires a positive value.
func WithMaxTokens(n int) Option {
	return func(c *Completer) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

func WithTemperature(t float32) Option {
	return func(c *Completer) {
		c.temperature = t
	}
}

// Completer implements ports.Completer.
type Completer struct {
	client      *anthropicapi.Client
	baseURL     string
	httpClient  *http.Client
	model       string
	maxTokens   int
	temperature float32
}

func New(apiKey string, opts ...Option) *Completer {
	c := &Completer{model: defaultModel, maxTokens: defaultMaxTokens}
	for _, opt := range opts {
		opt(c)
	}

	var clientOpts []anthropicapi.ClientOption
	if c.baseURL != "" {
		clientOpts = append(clientOpts, anthropicapi.WithBaseURL(c.baseURL))
	}
	if c.httpClient != nil {
		clientOpts = append(clientOpts, anthropicapi.WithHTTPClient(c.httpClient))
	}
	c.client = anthropicapi.NewClient(apiKey, clientOpts...)

	return c
}

func (c *Completer) Model() string { return c.model }

func (c *Completer) GenerateStructured(ctx context.Context, prompt string) (map[string]any, error) {
	req := &anthropicapi.MessagesRequest{
		Model:     c.model,
		System:    systemPrompt,
		MaxTokens: c.maxTokens,
		Messages:  []anthropicapi.Message{{Role: "user", Content: prompt}},
	}
	if c.temperature > 0 {
		t := c.temperature
		req.Temperature = &t
	}

	resp, err := c.client.CreateMessage(ctx, req)
	if errors.Is(err, anthropicapi.ErrTruncated) {
		return nil, &domain.CompletionError{Provider: ProviderType, Message: "structured response truncated", Err: err}
	}
	if err != nil {
		var apiErr *anthropicapi.APIError
		if errors.As(err, &apiErr) {
			return nil, &domain.CompletionError{
				Provider:   ProviderType,
				StatusCode: apiErr.StatusCode,
				Message:    "completion request rejected",
				Err:        apiErr,
			}
		}
		return nil, &domain.CompletionError{Provider: ProviderType, Message: "completion request failed", Err: err}
	}

	out, err := extract.Object(resp.Text())
	if err != nil {
		return nil, &domain.CompletionError{Provider: ProviderType, Message: "invalid structured response", Err: err}
	}
	return out, nil
}

func CreateFromConfig(cfg config.LLMConfig, httpClient *http.Client) (ports.Completer, error) {
	opts := []Option{
		WithModel(cfg.Model),
		WithMaxTokens(cfg.MaxTokens),
		WithTemperature(cfg.Temperature),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, WithBaseURL(cfg.BaseURL))
	}
	if httpClient != nil {
		opts = append(opts, WithHTTPClient(httpClient))
	}
	return New(cfg.APIKey, opts...), nil
}

func ValidateConfig(cfg config.LLMConfig) error {
	if cfg.APIKey == "" {
		return errors.New("llm.api_key is required")
	}
	return nil
}

// RegisterProviderFactory registers the anthropic factory once.
func RegisterProviderFactory() {
	if registry.IsRegistered(ProviderType) {
		return
	}
	registry.RegisterFactory(registry.ProviderFactory{
		Type:           ProviderType,
		Description:    "Anthropic Messages API",
		Create:         CreateFromConfig,
		ValidateConfig: ValidateConfig,
	})
}

var _ ports.Completer = (*Completer)(nil)
