package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"

	"study-assistant/internal/config"
	"study-assistant/internal/models"
)

// Client validates the output of an embeddings.Embedder: one vector per
// text, all of the configured dimension, none of them zero
type Client struct {
	embedder  embeddings.Embedder
	dimension int
	timeout   time.Duration
	limiter   *rate.Limiter
}

func New(embedder embeddings.Embedder, dimension int, timeout time.Duration) *Client {
	return &Client{embedder: embedder, dimension: dimension, timeout: timeout}
}

// NewFromConfig builds the provider named in cfg
func NewFromConfig(cfg *config.LLMConfig) (*Client, error) {
	var (
		embedder embeddings.Embedder
		err      error
	)
	switch strings.ToLower(cfg.Provider) {
	case "ollama", "":
		embedder, err = NewOllamaEmbedder(cfg)
	case "openai":
		embedder, err = NewEmbedder(cfg.Key, cfg.BaseURL, cfg.Model)
	case "hash":
		embedder = NewHashEmbedder(cfg.Dimension)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	c := New(embedder, cfg.Dimension, cfg.Timeout)
	if cfg.RequestsPerSecond > 0 {
		c.WithRateLimit(cfg.RequestsPerSecond, cfg.Burst)
	}
	return c, nil
}

// WithRateLimit throttles provider calls to rps with the given burst
func (c *Client) WithRateLimit(rps float64, burst int) *Client {
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return c
}

// NewEmbedder creates an embedder for an OpenAI compatible endpoint
func NewEmbedder(apiKey, baseURL, embeddingModel string) (*embeddings.EmbedderImpl, error) {
	log.Debug().Str("base_url", baseURL).Str("embedding_model", embeddingModel).Msg("Creating openai embedder")

	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(apiKey, "Bearer ")),
		openai.WithEmbeddingModel(embeddingModel),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize openai client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}

// new ollama embedder
func NewOllamaEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	log.Debug().Str("base_url", cfg.BaseURL).Str("embedding_model", cfg.Model).Msg("Creating ollama embedder")

	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}

func (c *Client) Dimension() int { return c.dimension }

// Embed returns one vector per text, in order
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if c.limiter != nil {
		// Wait fails early when the deadline cannot be met
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: waiting for embedding rate limit: %w", models.ErrTimeout, err)
		}
	}

	vectors, err := c.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: embedding %d texts exceeded %s: %w", models.ErrTimeout, len(texts), c.timeout, err)
		}
		// nothing a provider can embed, the caller sent unusable text
		if errors.Is(err, ErrNoTokens) {
			return nil, fmt.Errorf("%w: %w", models.ErrInvalidInput, err)
		}
		return nil, fmt.Errorf("%w: %w", models.ErrEmbedding, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", models.ErrEmbedding, len(vectors), len(texts))
	}
	for i, v := range vectors {
		if c.dimension > 0 && len(v) != c.dimension {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, want %d", models.ErrEmbedding, i, len(v), c.dimension)
		}
		if isZero(v) {
			return nil, fmt.Errorf("%w: vector %d is empty", models.ErrEmbedding, i)
		}
	}
	return vectors, nil
}

// EmbedQuery embeds a single text the same way Embed does
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
