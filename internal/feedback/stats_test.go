package feedback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faqminer/backend/internal/storage/memory"
	"github.com/faqminer/backend/internal/storage/models"
	"github.com/faqminer/backend/pkg/apperr"
)

func TestGetFeedbackStats(t *testing.T) {
	ctx := context.Background()
	p, store := newTestProcessor(t)
	seedEntry(t, store, models.FaqEntry{ID: "faq-1", Confidence: 90, Status: models.StatusPublished})

	submissions := []Feedback{
		{Type: "not_helpful", Comment: "missing steps, outdated screenshot", Rating: intPtr(2)},
		{Type: "not_helpful", Comment: "outdated screenshot"},
		{Type: "correction", Comment: "wrong price and missing steps", SuggestedAnswer: "It costs $10"},
		{Type: "suggestion", Comment: "wrong price"},
		{Type: "helpful", Comment: "wrong price but otherwise fine", Rating: intPtr(4)},
		{Type: "helpful"},
	}
	for _, fb := range submissions {
		fb.FaqID = "faq-1"
		_, err := p.ProcessFeedback(ctx, fb)
		require.NoError(t, err)
	}

	stats, err := p.GetFeedbackStats(ctx, "faq-1")
	require.NoError(t, err)

	assert.Equal(t, 6, stats.TotalFeedback)
	assert.Equal(t, 2, stats.HelpfulCount)
	assert.Equal(t, 3, stats.NotHelpfulCount)
	assert.Equal(t, 1, stats.SuggestionCount)
	assert.Equal(t, 1, stats.CorrectionCount)
	assert.Equal(t, 2, stats.PendingSuggestions)
	assert.InDelta(t, 2.0/6.0, stats.HelpfulnessRatio, 1e-9)
	assert.Equal(t, 3.0, stats.AverageRating)
	assert.Equal(t, []IssueCount{
		{Phrase: "wrong price", Count: 3},
		{Phrase: "missing steps", Count: 2},
		{Phrase: "outdated screenshot", Count: 2},
	}, stats.TopIssues)
}

func TestGetFeedbackStats_NoFeedback(t *testing.T) {
	ctx := context.Background()
	p, store := newTestProcessor(t)
	seedEntry(t, store, models.FaqEntry{ID: "faq-1", Confidence: 90, Status: models.StatusPublished})

	stats, err := p.GetFeedbackStats(ctx, "faq-1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, stats.HelpfulnessRatio)
	assert.Empty(t, stats.TopIssues)

	_, err = p.GetFeedbackStats(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestTopIssues_TiesKeepFirstSeenOrder(t *testing.T) {
	got := topIssues([]string{"slow search", "broken link", "slow search", "broken link", "unclear wording"}, 2)
	assert.Equal(t, []IssueCount{
		{Phrase: "slow search", Count: 2},
		{Phrase: "broken link", Count: 2},
	}, got)
}

func seedRecords(t *testing.T, store *memory.Store, faqID string, at time.Time, helpful, notHelpful int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < helpful; i++ {
		require.NoError(t, store.SaveFeedback(ctx, &models.FeedbackRecord{FaqID: faqID, Type: "helpful", CreatedAt: at}))
	}
	for i := 0; i < notHelpful; i++ {
		require.NoError(t, store.SaveFeedback(ctx, &models.FeedbackRecord{FaqID: faqID, Type: "not_helpful", CreatedAt: at}))
	}
}

func TestGetPerformanceMetrics_SingleEntry(t *testing.T) {
	ctx := context.Background()
	p, store := newTestProcessor(t)
	seedEntry(t, store, models.FaqEntry{
		ID: "faq-1", Confidence: 80, Status: models.StatusPublished,
		ViewCount: 50, FeedbackCount: 10, HelpfulCount: 8, NotHelpfulCount: 2,
	})
	seedRecords(t, store, "faq-1", testNow.Add(-10*24*time.Hour), 1, 3)
	seedRecords(t, store, "faq-1", testNow.Add(-2*24*time.Hour), 3, 1)
	seedRecords(t, store, "faq-1", testNow.Add(-30*24*time.Hour), 0, 9)

	id := "faq-1"
	report, err := p.GetPerformanceMetrics(ctx, &id)
	require.NoError(t, err)
	require.Len(t, report.Entries, 1)

	m := report.Entries[0]
	assert.Equal(t, 74.0, m.PerformanceScore)
	assert.Equal(t, 80.0, m.HelpfulnessRate)
	assert.Equal(t, 50.0, m.ViewScore)
	assert.Equal(t, 75.0, m.CurrentHelpfulness)
	assert.Equal(t, 25.0, m.PriorHelpfulness)
	assert.Equal(t, TrendImproving, m.Trend)
	assert.Equal(t, TrendImproving, report.Trend)
	assert.Equal(t, 74.0, report.AverageScore)
}

func TestGetPerformanceMetrics_AllPublished(t *testing.T) {
	ctx := context.Background()
	p, store := newTestProcessor(t)
	seedEntry(t, store, models.FaqEntry{ID: "a", Confidence: 50, Status: models.StatusPublished, ViewCount: 500})
	seedEntry(t, store, models.FaqEntry{ID: "b", Confidence: 90, Status: models.StatusPublished, FeedbackCount: 2, HelpfulCount: 2})
	seedEntry(t, store, models.FaqEntry{ID: "c", Confidence: 99, Status: models.StatusDraft})
	seedRecords(t, store, "b", testNow.Add(-3*24*time.Hour), 0, 2)
	seedRecords(t, store, "b", testNow.Add(-9*24*time.Hour), 2, 0)

	report, err := p.GetPerformanceMetrics(ctx, nil)
	require.NoError(t, err)
	require.Len(t, report.Entries, 2)

	// b: 0.5*100 + 0 + 0.3*90 = 77; a: 0 + 0.2*100 + 0.3*50 = 35
	assert.Equal(t, "b", report.Entries[0].FaqID)
	assert.Equal(t, 77.0, report.Entries[0].PerformanceScore)
	assert.Equal(t, TrendDeclining, report.Entries[0].Trend)
	assert.Equal(t, "a", report.Entries[1].FaqID)
	assert.Equal(t, 35.0, report.Entries[1].PerformanceScore)
	assert.Equal(t, TrendStable, report.Entries[1].Trend)
	assert.Equal(t, 56.0, report.AverageScore)
	assert.Equal(t, TrendDeclining, report.Trend)
}

func TestTrend(t *testing.T) {
	assert.Equal(t, TrendStable, trend(80, true, 76, true))
	assert.Equal(t, TrendImproving, trend(81.1, true, 76, true))
	assert.Equal(t, TrendDeclining, trend(60, true, 76, true))
	assert.Equal(t, TrendStable, trend(100, true, 0, false))
}
