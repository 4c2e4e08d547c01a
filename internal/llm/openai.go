package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
)

// Config configures an OpenAI-compatible chat backend.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxAttempts int
	RetryDelay  time.Duration
	Timeout     time.Duration
}

// Client is a Completer backed by an OpenAI-compatible chat completions API.
type Client struct {
	model       llms.Model
	maxAttempts int
	retryDelay  time.Duration
	timeout     time.Duration
	logger      *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithModel replaces the langchaingo model, mainly for tests.
func WithModel(m llms.Model) Option {
	return func(c *Client) { c.model = m }
}

// NewClient creates an OpenAI-compatible completer.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	c := &Client{
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
		timeout:     cfg.Timeout,
		logger:      zap.NewNop(),
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = 3
	}
	if c.retryDelay <= 0 {
		c.retryDelay = 2 * time.Second
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.model != nil {
		return c, nil
	}

	token := cfg.APIKey
	if token == "" {
		// local OpenAI-compatible servers ignore the token but the client requires one
		token = "none"
	}
	clientOpts := []openai.Option{openai.WithToken(token), openai.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, openai.WithBaseURL(cfg.BaseURL))
	}
	model, err := openai.New(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create chat client: %w", err)
	}
	c.model = model
	return c, nil
}

// Complete sends req as a system + user chat exchange and returns the trimmed reply.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	content := make([]llms.MessageContent, 0, 2)
	if req.SystemPrompt != "" {
		content = append(content, llms.TextParts(schema.ChatMessageTypeSystem, req.SystemPrompt))
	}
	content = append(content, llms.TextParts(schema.ChatMessageTypeHuman, req.Prompt))

	callOpts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.JSONMode {
		callOpts = append(callOpts, llms.WithJSONMode())
	}

	var (
		reply    string
		attempts int
	)
	err := RetryWithBackoff(ctx, c.logger, func() error {
		attempts++
		callCtx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		resp, err := c.model.GenerateContent(callCtx, content, callOpts...)
		if err != nil {
			return err
		}
		if resp == nil || len(resp.Choices) == 0 {
			return ErrEmptyResponse
		}
		reply = strings.TrimSpace(resp.Choices[0].Content)
		return nil
	}, c.maxAttempts, c.retryDelay)
	if err != nil {
		c.logger.Warn("completion failed", zap.Int("attempts", attempts), zap.Error(err))
		return "", &ServiceError{Op: "complete", Attempts: attempts, Err: err}
	}
	c.logger.Debug("completion succeeded", zap.Int("attempts", attempts), zap.Int("length", len(reply)))
	return reply, nil
}
