package ingestion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faqminer/backend/internal/kg/neo4j"
	"github.com/faqminer/backend/internal/scoring"
	"github.com/faqminer/backend/internal/storage/memory"
	"github.com/faqminer/backend/internal/storage/models"
	"github.com/faqminer/backend/internal/vector/zilliz"
	"github.com/faqminer/backend/pkg/apperr"
	"github.com/faqminer/backend/pkg/utils"
)

type fakeIndex struct {
	mu         sync.Mutex
	similarity float64
	nearest    string
	err        error
	indexed    []string
}

func (f *fakeIndex) SimilarityToExisting(ctx context.Context, question string) (float64, string, error) {
	return f.similarity, f.nearest, f.err
}

func (f *fakeIndex) IndexPublished(ctx context.Context, entry *models.FaqEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, entry.ID)
	return nil
}

type fakeGraph struct {
	mu    sync.Mutex
	links []neo4j.PatternLink
}

func (f *fakeGraph) RecordPattern(ctx context.Context, link neo4j.PatternLink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links = append(f.links, link)
	return errors.New("graph offline")
}

func f64(v float64) *float64 { return &v }

func strongCandidate(sourceID string) Candidate {
	return Candidate{
		Data: scoring.ExtractedData{
			Question:           "How do I reset my password?",
			Answer:             "<p>Use the <b>Forgot password</b> link on the sign-in page.</p>",
			Category:           "account",
			Source:             models.SourceChat,
			SourceID:           sourceID,
			SourceQuality:      f64(90),
			ResolutionSuccess:  f64(90),
			UserSatisfaction:   f64(90),
			ContextClarity:     f64(90),
			AnswerCompleteness: f64(90),
		},
		AIConfidence: 90,
		Provider:     models.EntryMetadata{ProviderName: "alpha", ResponseTimeMs: 420, TokensUsed: 180},
	}
}

func newTestProcessor(index SimilarityIndex, graph PatternGraph) (*Processor, *memory.Store) {
	store := memory.NewStore()
	p := NewProcessor(store, store, nil, index, graph)
	p.now = func() time.Time { return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC) }
	n := 0
	p.newID = func() string {
		n++
		return fmt.Sprintf("id-%02d", n)
	}
	return p, store
}

func TestIngest_RecurringQuestionIsPublishedOnceFrequent(t *testing.T) {
	ctx := context.Background()
	index := &fakeIndex{}
	graph := &fakeGraph{}
	p, store := newTestProcessor(index, graph)

	want := []struct {
		confidence float64
		status     models.EntryStatus
	}{
		{80, models.StatusPendingReview},
		{83, models.StatusPendingReview},
		{86, models.StatusPublished},
	}
	var last *Outcome
	for i, w := range want {
		out, err := p.Ingest(ctx, strongCandidate(fmt.Sprintf("chat-%d", i)))
		require.NoError(t, err)
		assert.Equal(t, i+1, out.Frequency)
		assert.InDelta(t, w.confidence, out.Entry.Confidence, 0.001)
		assert.Equal(t, w.status, out.Entry.Status)
		last = out
	}

	assert.Equal(t, "Use the Forgot password link on the sign-in page.", last.Entry.Answer)
	assert.Equal(t, scoring.RecommendAutoPublish, last.Score.Recommendation)
	assert.Equal(t, []string{last.Entry.ID}, index.indexed)

	stored, err := store.FindEntry(ctx, last.Entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "alpha", stored.Metadata.ProviderName)
	assert.Equal(t, utils.HashPattern("how do i reset my password"), stored.PatternHash)

	pattern, err := store.FindPatternByHash(ctx, stored.PatternHash)
	require.NoError(t, err)
	assert.Equal(t, 3, pattern.Frequency)
	assert.Len(t, pattern.Sources, 3)
	assert.Equal(t, DefaultPatternType, pattern.PatternType)

	require.Len(t, graph.links, 3, "graph failures do not fail ingestion")
	assert.Equal(t, 3, graph.links[2].Frequency)
	assert.Equal(t, models.StatusPublished, graph.links[2].FaqStatus)
}

func TestIngest_NearDuplicateScoresLower(t *testing.T) {
	ctx := context.Background()

	fresh, _ := newTestProcessor(&fakeIndex{}, nil)
	dup, _ := newTestProcessor(&fakeIndex{similarity: 95, nearest: "faq-1"}, nil)

	a, err := fresh.Ingest(ctx, strongCandidate("chat-1"))
	require.NoError(t, err)
	b, err := dup.Ingest(ctx, strongCandidate("chat-1"))
	require.NoError(t, err)

	assert.InDelta(t, a.Entry.Confidence-4.75, b.Entry.Confidence, 0.051)
	assert.Equal(t, "faq-1", b.NearestFaq)
}

func TestIngest_SimilarityFailureCountsAsNoMatch(t *testing.T) {
	p, _ := newTestProcessor(&fakeIndex{err: errors.New("milvus down"), similarity: 99}, nil)

	out, err := p.Ingest(context.Background(), strongCandidate("chat-1"))
	require.NoError(t, err)
	assert.Equal(t, 0.0, out.Similarity)
	assert.Equal(t, 100.0, out.Score.Factors[scoring.FactorSimilarityToExisting])
}

func TestIngest_StatusAndValidation(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProcessor(nil, nil)

	draft := strongCandidate("chat-1")
	draft.Data.Answer = "  "
	out, err := p.Ingest(ctx, draft)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, out.Entry.Status)

	weak := Candidate{Data: scoring.ExtractedData{Question: "Where is my parcel?", Answer: "Check tracking.", Source: models.SourceTicket, SourceID: "t-9"}}
	out, err = p.Ingest(ctx, weak)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, out.Entry.Status)
	assert.Contains(t, out.Score.Reasoning, "sourceQuality signal missing, treated as 0")

	_, err = p.Ingest(ctx, Candidate{Data: scoring.ExtractedData{Question: " ", Source: models.SourceChat}})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = p.Ingest(ctx, Candidate{Data: scoring.ExtractedData{Question: "q", Source: "email"}})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestIngest_ConcurrentObservationsCountOnce(t *testing.T) {
	ctx := context.Background()
	p, store := newTestProcessor(nil, nil)

	var mu sync.Mutex
	ids := 0
	p.newID = func() string {
		mu.Lock()
		defer mu.Unlock()
		ids++
		return fmt.Sprintf("id-%03d", ids)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := p.Ingest(ctx, strongCandidate(fmt.Sprintf("chat-%d", i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	pattern, err := store.FindPatternByHash(ctx, utils.HashPattern("How do I reset my password?"))
	require.NoError(t, err)
	assert.Equal(t, 20, pattern.Frequency)
}

type fakeEmbedder struct{ vec []float32 }

func (f fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) { return f.vec, nil }

type fakeVectors struct {
	match    *zilliz.Match
	upserted []zilliz.QuestionVector
	searched []float32
}

func (f *fakeVectors) Nearest(ctx context.Context, emb []float32) (*zilliz.Match, error) {
	f.searched = emb
	return f.match, nil
}

func (f *fakeVectors) Upsert(ctx context.Context, vs []zilliz.QuestionVector) error {
	f.upserted = append(f.upserted, vs...)
	return nil
}

func TestVectorSimilarity(t *testing.T) {
	ctx := context.Background()
	vectors := &fakeVectors{}
	vs := NewVectorSimilarity(fakeEmbedder{vec: []float32{3, 4}}, vectors)

	sim, id, err := vs.SimilarityToExisting(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, 0.0, sim)
	assert.Empty(t, id)
	assert.InDelta(t, 0.6, vectors.searched[0], 1e-6)
	assert.InDelta(t, 0.8, vectors.searched[1], 1e-6)

	vectors.match = &zilliz.Match{FaqID: "faq-7", Similarity: 91.5}
	sim, id, err = vs.SimilarityToExisting(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, 91.5, sim)
	assert.Equal(t, "faq-7", id)

	require.NoError(t, vs.IndexPublished(ctx, &models.FaqEntry{ID: "faq-8", Question: "q", Category: "billing"}))
	require.Len(t, vectors.upserted, 1)
	assert.Equal(t, "faq-8", vectors.upserted[0].FaqID)
	var norm float64
	for _, x := range vectors.upserted[0].Embedding {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)
}
