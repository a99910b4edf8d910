package ingestion

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/faqminer/backend/internal/storage/models"
	"github.com/faqminer/backend/internal/vector/zilliz"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type VectorStore interface {
	Nearest(ctx context.Context, embedding []float32) (*zilliz.Match, error)
	Upsert(ctx context.Context, vectors []zilliz.QuestionVector) error
}

// VectorSimilarity compares questions by the inner product of their unit
// embeddings.
type VectorSimilarity struct {
	embedder Embedder
	vectors  VectorStore
}

func NewVectorSimilarity(embedder Embedder, vectors VectorStore) *VectorSimilarity {
	return &VectorSimilarity{embedder: embedder, vectors: vectors}
}

func (v *VectorSimilarity) SimilarityToExisting(ctx context.Context, question string) (float64, string, error) {
	emb, err := v.embed(ctx, question)
	if err != nil {
		return 0, "", err
	}
	match, err := v.vectors.Nearest(ctx, emb)
	if err != nil {
		return 0, "", fmt.Errorf("failed to search similar questions: %w", err)
	}
	if match == nil {
		return 0, "", nil
	}
	return match.Similarity, match.FaqID, nil
}

func (v *VectorSimilarity) IndexPublished(ctx context.Context, entry *models.FaqEntry) error {
	emb, err := v.embed(ctx, entry.Question)
	if err != nil {
		return err
	}
	updated := entry.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	return v.vectors.Upsert(ctx, []zilliz.QuestionVector{{
		FaqID:     entry.ID,
		Category:  entry.Category,
		Embedding: emb,
		UpdatedAt: updated,
	}})
}

func (v *VectorSimilarity) embed(ctx context.Context, text string) ([]float32, error) {
	emb, err := v.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}
	return normalize(emb), nil
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
