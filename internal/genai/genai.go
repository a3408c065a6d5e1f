// Package genai is the model gateway: it talks to an OpenAI-compatible chat completion
// backend (Groq by default), retries transient failures with bounded backoff, falls back
// across configured models, and turns free-form model output into a structured step result.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// Defaults for the Groq OpenAI-compatible endpoint.
const (
	DefaultBaseURL     = "https://api.groq.com/openai/v1"
	DefaultModel       = "llama-3.3-70b-versatile"
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 1024
)

var (
	// ErrUnavailable is returned when no backend credentials are configured.
	ErrUnavailable = errors.New("genai: backend not configured")
	// ErrNoChoicesReturned is returned when the backend answers with an empty choice list.
	ErrNoChoicesReturned = errors.New("genai: no choices returned")
)

// chatService defines the minimal interface for chat completions.
type chatService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Opts holds configuration for the gateway client.
type Opts struct {
	APIKey         string
	BaseURL        string
	Model          string
	FallbackModels []string
	Temperature    float64
	MaxTokens      int64
	Retry          RetryConfig
}

// Option defines a configuration option for the gateway client.
type Option func(*Opts)

// WithAPIKey sets the backend API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL points the client at another OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithModel sets the primary model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithFallbackModels sets models tried, in order, when a model is rejected as not found.
func WithFallbackModels(models ...string) Option {
	return func(o *Opts) { o.FallbackModels = models }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Opts) { o.Temperature = t }
}

// WithMaxTokens sets the output token budget.
func WithMaxTokens(n int64) Option {
	return func(o *Opts) { o.MaxTokens = n }
}

// WithRetryConfig overrides the retry policy.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(o *Opts) { o.Retry = cfg }
}

// Client wraps the chat completion service with retry and model fallback.
type Client struct {
	chat        chatService
	models      []string
	temperature float64
	maxTokens   int64
	retry       RetryConfig
}

// NewClient builds a client. When no API key is given it falls back to GROQ_API_KEY and
// then LLM_API_KEY; with neither set it returns ErrUnavailable.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		BaseURL:     DefaultBaseURL,
		Model:       DefaultModel,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
		Retry:       DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GROQ_API_KEY")
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("LLM_API_KEY")
	}
	slog.Debug("genai.NewClient", "api_key_set", cfg.APIKey != "", "base_url", cfg.BaseURL, "model", cfg.Model, "fallbacks", len(cfg.FallbackModels))
	if cfg.APIKey == "" {
		return nil, ErrUnavailable
	}

	cli := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		// Retries are ours so the attempt budget stays bounded and visible.
		option.WithMaxRetries(0),
	)
	return newClientWithService(&cli.Chat.Completions, cfg), nil
}

func newClientWithService(chat chatService, cfg Opts) *Client {
	models := []string{cfg.Model}
	for _, m := range cfg.FallbackModels {
		if m = strings.TrimSpace(m); m != "" && m != cfg.Model {
			models = append(models, m)
		}
	}
	return &Client{
		chat:        chat,
		models:      models,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		retry:       cfg.Retry.withDefaults(),
	}
}

// Complete sends messages to the backend and returns the first choice's content.
// Each model in the chain gets the full retry budget; only a not-found response moves
// on to the next model.
func (c *Client) Complete(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	var lastErr error
	for i, model := range c.models {
		params := openai.ChatCompletionNewParams{
			Model:       shared.ChatModel(model),
			Messages:    messages,
			Temperature: openai.Float(c.temperature),
			MaxTokens:   openai.Int(c.maxTokens),
			ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
			},
		}
		text, err := c.completeWithRetry(ctx, params)
		if err == nil {
			if i > 0 {
				slog.Info("genai.Complete: fallback model succeeded", "model", model)
			}
			return text, nil
		}
		lastErr = err
		if !IsModelNotFound(err) {
			return "", err
		}
		slog.Warn("genai.Complete: model not found, trying next", "model", model, "remaining", len(c.models)-i-1)
	}
	return "", lastErr
}

func (c *Client) completeOnce(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	return resp.Choices[0].Message.Content, nil
}

// String describes the model chain, for logging.
func (c *Client) String() string {
	return fmt.Sprintf("genai.Client{models=%s}", strings.Join(c.models, ","))
}
