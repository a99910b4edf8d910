package zilliz

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/faqminer/backend/pkg/logger"
)

const (
	fieldFaqID     = "faq_id"
	fieldEmbedding = "embedding"
	fieldCategory  = "category"
	fieldUpdatedAt = "updated_at"
)

// Client keeps one vector per published FAQ question. Vectors are compared by
// inner product, so callers should store normalised embeddings.
type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

// QuestionVector is the indexed form of a published entry.
type QuestionVector struct {
	FaqID     string
	Category  string
	Embedding []float32
	UpdatedAt time.Time
}

type Match struct {
	FaqID string
	// Similarity is in [0, 100].
	Similarity float64
}

func NewClient(ctx context.Context, endpoint, apiKey, collectionName string, vectorDim int) (*Client, error) {
	c, err := client.NewClient(ctx, client.Config{
		Address: endpoint,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Zilliz/Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (z *Client) Close() error {
	return z.client.Close()
}

func (z *Client) Ping(ctx context.Context) error {
	if _, err := z.client.HasCollection(ctx, z.collectionName); err != nil {
		return fmt.Errorf("failed to reach milvus: %w", err)
	}
	return nil
}

// EnsureCollection creates, indexes and loads the question collection if it
// does not exist yet.
func (z *Client) EnsureCollection(ctx context.Context) error {
	has, err := z.client.HasCollection(ctx, z.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if has {
		logger.Info("Collection already exists", zap.String("collection", z.collectionName))
		return z.client.LoadCollection(ctx, z.collectionName, false)
	}

	schema := &entity.Schema{
		CollectionName: z.collectionName,
		Description:    "Published FAQ question embeddings",
		Fields: []*entity.Field{
			{
				Name:       fieldFaqID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       fieldEmbedding,
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": strconv.Itoa(z.vectorDim)},
			},
			{
				Name:       fieldCategory,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "128"},
			},
			{
				Name:     fieldUpdatedAt,
				DataType: entity.FieldTypeInt64,
			},
		},
	}

	if err := z.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexHNSW(entity.IP, 16, 200)
	if err != nil {
		return fmt.Errorf("failed to build index params: %w", err)
	}
	if err := z.client.CreateIndex(ctx, z.collectionName, fieldEmbedding, idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := z.client.LoadCollection(ctx, z.collectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", z.collectionName))
	return nil
}

// Upsert stores or replaces the vector for each entry.
func (z *Client) Upsert(ctx context.Context, vectors []QuestionVector) error {
	if len(vectors) == 0 {
		return nil
	}

	ids := make([]string, len(vectors))
	embeddings := make([][]float32, len(vectors))
	categories := make([]string, len(vectors))
	updated := make([]int64, len(vectors))
	for i, v := range vectors {
		if len(v.Embedding) != z.vectorDim {
			return fmt.Errorf("embedding for %s has dimension %d, want %d", v.FaqID, len(v.Embedding), z.vectorDim)
		}
		ids[i] = v.FaqID
		embeddings[i] = v.Embedding
		categories[i] = v.Category
		updated[i] = v.UpdatedAt.Unix()
	}

	_, err := z.client.Upsert(
		ctx,
		z.collectionName,
		"",
		entity.NewColumnVarChar(fieldFaqID, ids),
		entity.NewColumnFloatVector(fieldEmbedding, z.vectorDim, embeddings),
		entity.NewColumnVarChar(fieldCategory, categories),
		entity.NewColumnInt64(fieldUpdatedAt, updated),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert question vectors: %w", err)
	}

	logger.Debug("Question vectors upserted", zap.Int("count", len(vectors)))
	return nil
}

// Nearest returns the closest published question, or nil when the collection
// is empty.
func (z *Client) Nearest(ctx context.Context, embedding []float32) (*Match, error) {
	sp, err := entity.NewIndexHNSWSearchParam(64)
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	results, err := z.client.Search(
		ctx,
		z.collectionName,
		[]string{},
		"",
		[]string{fieldFaqID},
		[]entity.Vector{entity.FloatVector(embedding)},
		fieldEmbedding,
		entity.IP,
		1,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	for _, sr := range results {
		if sr.ResultCount == 0 || len(sr.Scores) == 0 {
			continue
		}
		raw, err := sr.IDs.Get(0)
		if err != nil {
			return nil, fmt.Errorf("failed to read match id: %w", err)
		}
		id, _ := raw.(string)
		return &Match{FaqID: id, Similarity: ScoreToSimilarity(sr.Scores[0])}, nil
	}
	return nil, nil
}

// ScoreToSimilarity maps an inner-product score of normalised vectors onto
// [0, 100]. Negative scores count as unrelated.
func ScoreToSimilarity(score float32) float64 {
	s := float64(score) * 100
	switch {
	case s < 0:
		return 0
	case s > 100:
		return 100
	}
	return s
}
