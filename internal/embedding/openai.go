package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hyperjump/manualbook/internal/llm"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

// Config configures an OpenAI-compatible embedding backend.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Dimensions  int
	BatchSize   int
	MaxAttempts int
	RetryDelay  time.Duration
}

// OpenAIEmbedder embeds text through an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	embedder    embeddings.Embedder
	maxAttempts int
	retryDelay  time.Duration
	logger      *zap.Logger

	mu         sync.RWMutex
	dimensions int
}

// Option configures an OpenAIEmbedder.
type Option func(*OpenAIEmbedder)

// WithLogger sets the embedder logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *OpenAIEmbedder) { e.logger = l }
}

// WithBackend replaces the langchaingo embedder, mainly for tests.
func WithBackend(b embeddings.Embedder) Option {
	return func(e *OpenAIEmbedder) { e.embedder = b }
}

// NewOpenAIEmbedder creates an embedder. When cfg.Dimensions is zero the dimensionality is
// learned from the first response.
func NewOpenAIEmbedder(cfg Config, opts ...Option) (*OpenAIEmbedder, error) {
	e := &OpenAIEmbedder{
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
		dimensions:  cfg.Dimensions,
		logger:      zap.NewNop(),
	}
	if e.maxAttempts <= 0 {
		e.maxAttempts = 3
	}
	if e.retryDelay <= 0 {
		e.retryDelay = 2 * time.Second
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.embedder != nil {
		return e, nil
	}

	token := cfg.APIKey
	if token == "" {
		token = "none"
	}
	clientOpts := []openai.Option{openai.WithToken(token), openai.WithEmbeddingModel(cfg.Model)}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create embedding client: %w", err)
	}
	embOpts := []embeddings.Option{embeddings.WithStripNewLines(true)}
	if cfg.BatchSize > 0 {
		embOpts = append(embOpts, embeddings.WithBatchSize(cfg.BatchSize))
	}
	embedder, err := embeddings.NewEmbedder(client, embOpts...)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	e.embedder = embedder
	return e, nil
}

// Embed embeds a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one call, retrying with backoff. It fails with *ServiceError when
// the backend errors, returns the wrong number of vectors or changes dimensionality.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	var vecs [][]float32
	err := llm.RetryWithBackoff(ctx, e.logger, func() error {
		var err error
		vecs, err = e.embedder.EmbedDocuments(ctx, texts)
		return err
	}, e.maxAttempts, e.retryDelay)
	if err != nil {
		e.logger.Warn("embedding failed", zap.Int("count", len(texts)), zap.Error(err))
		return nil, &ServiceError{Op: "embed", Err: err}
	}
	if len(vecs) != len(texts) {
		return nil, &ServiceError{Op: "embed", Err: fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vecs))}
	}
	if err := e.checkDimensions(vecs); err != nil {
		return nil, &ServiceError{Op: "embed", Err: err}
	}
	e.logger.Debug("embedded texts", zap.Int("count", len(texts)))
	return vecs, nil
}

func (e *OpenAIEmbedder) checkDimensions(vecs [][]float32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, v := range vecs {
		if e.dimensions == 0 {
			e.dimensions = len(v)
		}
		if len(v) != e.dimensions {
			return fmt.Errorf("dimension mismatch: got %d, want %d", len(v), e.dimensions)
		}
	}
	return nil
}

// Dimensions returns the embedding size, or 0 before the first call when it was not configured.
func (e *OpenAIEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dimensions
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (e *OpenAIEmbedder) Close() error { return nil }
