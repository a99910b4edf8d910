package llm

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faqminer/backend/pkg/apperr"
)

type fakeAPI struct {
	mu    sync.Mutex
	calls int
	errs  []error
}

func (f *fakeAPI) CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return openai.EmbeddingResponse{}, err
	}
	return openai.EmbeddingResponse{
		Data:  []openai.Embedding{{Embedding: []float32{0.1, 0.2, 0.3}}},
		Usage: openai.Usage{TotalTokens: 7},
	}, nil
}

type mapCache struct {
	mu sync.Mutex
	m  map[string][]float32
}

func (c *mapCache) GetEmbedding(ctx context.Context, key string) ([]float32, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	return e, ok, nil
}

func (c *mapCache) SetEmbedding(ctx context.Context, key string, e []float32, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = e
	return nil
}

func fastClient(api embeddingAPI, cache EmbeddingCache) *Client {
	c := newClient(api, "text-embedding-3-small", time.Second, cache)
	c.policy.InitialDelay = time.Millisecond
	c.policy.MaxDelay = time.Millisecond
	return c
}

func TestEmbed_CachesByNormalisedText(t *testing.T) {
	api := &fakeAPI{}
	cache := &mapCache{m: map[string][]float32{}}
	c := fastClient(api, cache)

	first, err := c.Embed(context.Background(), "How do I reset my password?")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, first)

	second, err := c.Embed(context.Background(), "how do i reset my password")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, api.calls)
	assert.Len(t, cache.m, 1)
}

func TestEmbed_RetriesTransientErrors(t *testing.T) {
	api := &fakeAPI{errs: []error{
		&openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "slow down"},
		&openai.APIError{HTTPStatusCode: http.StatusBadGateway, Message: "bad gateway"},
	}}
	c := fastClient(api, nil)

	emb, err := c.Embed(context.Background(), "refund policy")
	require.NoError(t, err)
	assert.Len(t, emb, 3)
	assert.Equal(t, 3, api.calls)
}

func TestEmbed_ClientErrorIsNotRetried(t *testing.T) {
	api := &fakeAPI{errs: []error{&openai.APIError{HTTPStatusCode: http.StatusBadRequest, Message: "bad input"}}}
	c := fastClient(api, nil)

	_, err := c.Embed(context.Background(), "refund policy")
	require.Error(t, err)
	var apiErr *openai.APIError
	assert.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 1, api.calls)
}

func TestEmbed_EmptyText(t *testing.T) {
	c := fastClient(&fakeAPI{}, nil)
	_, err := c.Embed(context.Background(), "   ")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}
