// Package llm embeds FAQ questions for the near-duplicate lookup.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/faqminer/backend/internal/metrics"
	"github.com/faqminer/backend/pkg/apperr"
	"github.com/faqminer/backend/pkg/circuitbreaker"
	"github.com/faqminer/backend/pkg/logger"
	"github.com/faqminer/backend/pkg/retry"
	"github.com/faqminer/backend/pkg/utils"
)

const (
	DefaultEmbeddingCacheTTL = 24 * time.Hour

	component = "embeddings"
)

// EmbeddingCache stores embeddings keyed by a hash of the normalised text.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error
}

type embeddingAPI interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

type Client struct {
	api      embeddingAPI
	model    string
	timeout  time.Duration
	cache    EmbeddingCache
	cacheTTL time.Duration
	cb       *circuitbreaker.Breaker
	policy   retry.Policy
}

// NewClient builds an embeddings client. cache may be nil.
func NewClient(apiKey, embeddingModel string, timeout time.Duration, cache EmbeddingCache) *Client {
	return newClient(openai.NewClient(apiKey), embeddingModel, timeout, cache)
}

func newClient(api embeddingAPI, model string, timeout time.Duration, cache EmbeddingCache) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	policy := retry.DefaultPolicy()
	policy.InitialDelay = 500 * time.Millisecond
	policy.ShouldRetry = isTransient
	policy.Logger = logger.Named(component)

	logger.Info("Embedding client initialized", zap.String("embedding_model", model))

	return &Client{
		api:      api,
		model:    model,
		timeout:  timeout,
		cache:    cache,
		cacheTTL: DefaultEmbeddingCacheTTL,
		cb: circuitbreaker.New(component, circuitbreaker.Config{
			FailureThreshold: 5,
			OpenTimeout:      30 * time.Second,
			Logger:           logger.Named(component),
		}),
		policy: policy,
	}
}

// Embed returns the embedding of text, served from the cache when possible.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: cannot embed empty text", apperr.ErrInvalidInput)
	}
	key := utils.HashPattern(text)

	if c.cache != nil {
		emb, ok, err := c.cache.GetEmbedding(ctx, key)
		switch {
		case err != nil:
			logger.Warn("Embedding cache lookup failed", zap.Error(err))
		case ok:
			metrics.CacheHits.WithLabelValues("embedding").Inc()
			return emb, nil
		default:
			metrics.CacheMisses.WithLabelValues("embedding").Inc()
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var embedding []float32
	err := c.cb.Execute(ctx, func(ctx context.Context) error {
		return retry.Do(ctx, c.policy, func(ctx context.Context) error {
			resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Input: []string{text},
				Model: openai.EmbeddingModel(c.model),
			})
			if err != nil {
				return fmt.Errorf("failed to generate embedding: %w", err)
			}
			if len(resp.Data) == 0 {
				return retry.Permanent(errors.New("embedding response had no data"))
			}
			embedding = resp.Data[0].Embedding
			metrics.EmbeddingTokensUsed.WithLabelValues(c.model).Add(float64(resp.Usage.TotalTokens))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.SetEmbedding(ctx, key, embedding, c.cacheTTL); err != nil {
			logger.Warn("Failed to cache embedding", zap.Error(err))
		}
	}
	return embedding, nil
}

// isTransient retries rate limits, server errors and transport failures, but
// not other client errors.
func isTransient(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	return !errors.Is(err, context.Canceled)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500 || code == 0
}
