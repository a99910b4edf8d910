package builder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faqminer/backend/internal/kg/neo4j"
	"github.com/faqminer/backend/internal/storage/memory"
	"github.com/faqminer/backend/internal/storage/models"
)

type recordingGraph struct {
	links  []neo4j.PatternLink
	failOn string
}

func (g *recordingGraph) RecordPattern(ctx context.Context, link neo4j.PatternLink) error {
	if link.PatternHash == g.failOn {
		return errors.New("neo4j unavailable")
	}
	g.links = append(g.links, link)
	return nil
}

type recordingIndex struct{ ids []string }

func (i *recordingIndex) IndexPublished(ctx context.Context, entry *models.FaqEntry) error {
	i.ids = append(i.ids, entry.ID)
	return nil
}

func seed(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	t0 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	for i, p := range []models.LearningPattern{
		{ID: "p1", PatternHash: "h1", PatternText: "reset password", Category: "account", Frequency: 3,
			Sources: []models.PatternSource{{Type: "chat", ID: "c1", Relevance: 1}}},
		{ID: "p2", PatternHash: "h2", PatternText: "refund status", Category: "billing", Frequency: 1},
	} {
		p := p
		p.CreatedAt = t0.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.SavePattern(ctx, &p))
	}

	for i, e := range []models.FaqEntry{
		{ID: "f1", PatternHash: "h1", Status: models.StatusPublished, Confidence: 88},
		{ID: "f2", PatternHash: "h1", Status: models.StatusPendingReview, Confidence: 70},
		{ID: "f3", Status: models.StatusPublished, Confidence: 90},
	} {
		e := e
		e.Question = "q " + e.ID
		e.Source = models.SourceChat
		e.CreatedAt = t0.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.SaveEntry(ctx, &e))
	}
	return store
}

func TestSync(t *testing.T) {
	store := seed(t)
	graph := &recordingGraph{}
	index := &recordingIndex{}

	report, err := NewBuilder(store, store, graph, index).Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, &Report{Patterns: 2, Links: 3, Indexed: 2}, report)
	require.Len(t, graph.links, 3)
	assert.Equal(t, "f1", graph.links[0].FaqID)
	assert.Equal(t, models.StatusPublished, graph.links[0].FaqStatus)
	assert.Equal(t, 3, graph.links[0].Frequency)
	assert.Len(t, graph.links[0].Sources, 1)
	assert.Equal(t, "f2", graph.links[1].FaqID)
	assert.Equal(t, "h2", graph.links[2].PatternHash)
	assert.Empty(t, graph.links[2].FaqID)
	assert.Equal(t, []string{"f1", "f3"}, index.ids)
}

func TestSync_CountsWriteFailures(t *testing.T) {
	store := seed(t)
	graph := &recordingGraph{failOn: "h1"}

	report, err := NewBuilder(store, store, graph, nil).Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.GraphFailures)
	assert.Equal(t, 1, report.Links)
	assert.Zero(t, report.Indexed)
}

func TestSync_CancelledContext(t *testing.T) {
	store := seed(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewBuilder(store, store, &recordingGraph{}, nil).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
