// Package openai provides a text generator for OpenAI-compatible chat endpoints
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/bobmcallan/vire-screener/internal/common"
	"github.com/bobmcallan/vire-screener/internal/interfaces"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultMaxTokens = 400
	DefaultRateLimit = 2 // requests per second
)

// ErrNoChoices is returned when the endpoint answers without a completion
var ErrNoChoices = errors.New("no completion choices returned")

// Client implements interfaces.TextGenerator for any OpenAI-compatible API
type Client struct {
	api       *goopenai.Client
	baseURL   string
	model     string
	maxTokens int
	jsonMode  bool
	timeout   time.Duration
	logger    *common.Logger
	limiter   *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithModel sets the model used when a call does not name one
func WithModel(model string) ClientOption {
	return func(c *Client) {
		c.model = model
	}
}

// WithMaxTokens caps the reply length
func WithMaxTokens(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithJSONMode asks the endpoint for a JSON object response format
func WithJSONMode(enabled bool) ClientOption {
	return func(c *Client) {
		c.jsonMode = enabled
	}
}

// WithTimeout sets the HTTP client timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

// NewClient creates a new client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		maxTokens: DefaultMaxTokens,
		timeout:   DefaultTimeout,
		logger:    common.NewSilentLogger(),
		limiter:   rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}
	for _, opt := range opts {
		opt(c)
	}

	cfg := goopenai.DefaultConfig(apiKey)
	if c.baseURL != "" {
		cfg.BaseURL = c.baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: c.timeout}
	c.api = goopenai.NewClientWithConfig(cfg)

	return c
}

// Generate sends a system and user message and returns the first choice's content
func (c *Client) Generate(ctx context.Context, systemPrompt, userText, model string) (string, error) {
	if model == "" {
		model = c.model
	}
	if model == "" {
		return "", errors.New("no model specified")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	messages := make([]goopenai.ChatCompletionMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: userText})

	req := goopenai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: 0,
		MaxTokens:   c.maxTokens,
	}
	if c.jsonMode {
		req.ResponseFormat = &goopenai.ChatCompletionResponseFormat{Type: goopenai.ChatCompletionResponseFormatTypeJSONObject}
	}

	c.logger.Debug().Str("model", model).Str("base_url", c.baseURL).Msg("Requesting chat completion")

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}

	return resp.Choices[0].Message.Content, nil
}

// Ensure Client implements TextGenerator
var _ interfaces.TextGenerator = (*Client)(nil)
