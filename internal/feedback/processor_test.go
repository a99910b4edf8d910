package feedback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faqminer/backend/internal/scoring"
	"github.com/faqminer/backend/internal/storage/memory"
	"github.com/faqminer/backend/internal/storage/models"
	"github.com/faqminer/backend/pkg/apperr"
)

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestProcessor(t *testing.T) (*Processor, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	p := NewProcessor(store, store, scoring.NewCalculator(nil))
	p.now = func() time.Time { return testNow }
	seq := 0
	p.newID = func() string {
		seq++
		return fmt.Sprintf("fb-%03d", seq)
	}
	return p, store
}

func seedEntry(t *testing.T, store *memory.Store, e models.FaqEntry) {
	t.Helper()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = testNow.Add(-30 * 24 * time.Hour)
		e.UpdatedAt = e.CreatedAt
	}
	require.NoError(t, store.SaveEntry(context.Background(), &e))
}

func intPtr(v int) *int { return &v }

func TestProcessFeedback_DemotesPublishedEntry(t *testing.T) {
	ctx := context.Background()
	p, store := newTestProcessor(t)
	seedEntry(t, store, models.FaqEntry{ID: "faq-1", Confidence: 62, Status: models.StatusPublished})

	prev := 62.0
	var statuses []models.EntryStatus
	for i := 0; i < 3; i++ {
		res, err := p.ProcessFeedback(ctx, Feedback{FaqID: "faq-1", Type: "not_helpful"})
		require.NoError(t, err)
		require.True(t, res.Processed)

		assert.Less(t, res.UpdatedFaq.Confidence, prev)
		prev = res.UpdatedFaq.Confidence
		statuses = append(statuses, res.UpdatedFaq.Status)
	}

	stored, err := store.FindEntry(ctx, "faq-1")
	require.NoError(t, err)
	assert.Equal(t, 47.7, stored.Confidence)
	assert.Equal(t, models.StatusPendingReview, stored.Status)
	assert.Equal(t, 3, stored.FeedbackCount)
	assert.Equal(t, 3, stored.NotHelpfulCount)
	assert.Equal(t, 0, stored.HelpfulCount)
	assert.Equal(t, []models.EntryStatus{
		models.StatusPendingReview, models.StatusPendingReview, models.StatusPendingReview,
	}, statuses)
}

type failingRecords struct {
	*memory.Store
}

func (f failingRecords) SaveFeedbackEvent(ctx context.Context, entry *models.FaqEntry, record *models.FeedbackRecord) error {
	return errors.New("disk full")
}

func TestProcessFeedback_FailedWriteLeavesEntryUntouched(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	p := NewProcessor(store, failingRecords{store}, scoring.NewCalculator(nil))
	p.now = func() time.Time { return testNow }
	seedEntry(t, store, models.FaqEntry{ID: "faq-1", Confidence: 62, Status: models.StatusPublished})

	_, err := p.ProcessFeedback(ctx, Feedback{FaqID: "faq-1", Type: "not_helpful"})
	require.Error(t, err)

	stored, err := store.FindEntry(ctx, "faq-1")
	require.NoError(t, err)
	assert.Equal(t, 62.0, stored.Confidence)
	assert.Equal(t, models.StatusPublished, stored.Status)
	assert.Equal(t, 0, stored.FeedbackCount)
	assert.Equal(t, 0, stored.NotHelpfulCount)

	records, err := store.FindFeedback(ctx, models.FeedbackFilter{FaqID: "faq-1"})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestProcessFeedback_NoDemotionAboveThreshold(t *testing.T) {
	ctx := context.Background()
	p, store := newTestProcessor(t)
	seedEntry(t, store, models.FaqEntry{ID: "faq-1", Confidence: 90, Status: models.StatusPublished})

	res, err := p.ProcessFeedback(ctx, Feedback{FaqID: "faq-1", Type: "not_helpful"})
	require.NoError(t, err)
	assert.False(t, res.Demoted)
	assert.Equal(t, models.StatusPublished, res.UpdatedFaq.Status)
}

func TestProcessFeedback_DemotionOnlyAffectsPublished(t *testing.T) {
	ctx := context.Background()
	p, store := newTestProcessor(t)
	seedEntry(t, store, models.FaqEntry{ID: "faq-1", Confidence: 30, Status: models.StatusRejected})

	res, err := p.ProcessFeedback(ctx, Feedback{FaqID: "faq-1", Type: "not_helpful"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, res.UpdatedFaq.Status)
}

func TestProcessFeedback_Errors(t *testing.T) {
	ctx := context.Background()
	p, store := newTestProcessor(t)
	seedEntry(t, store, models.FaqEntry{ID: "faq-1", Confidence: 50, Status: models.StatusPublished})

	tests := []struct {
		name string
		fb   Feedback
		want error
	}{
		{"unknown type", Feedback{FaqID: "faq-1", Type: "love_it"}, apperr.ErrInvalidInput},
		{"missing id", Feedback{Type: "helpful"}, apperr.ErrInvalidInput},
		{"rating out of range", Feedback{FaqID: "faq-1", Type: "helpful", Rating: intPtr(9)}, apperr.ErrInvalidInput},
		{"unknown entry", Feedback{FaqID: "nope", Type: "helpful"}, apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.ProcessFeedback(ctx, tt.fb)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	stored, err := store.FindEntry(ctx, "faq-1")
	require.NoError(t, err)
	assert.Equal(t, 0, stored.FeedbackCount)
}

func TestProcessFeedback_CountersPerType(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		typ            string
		helpful, nope  int
		confidenceMove int
	}{
		{"helpful", 1, 0, 1},
		{"not_helpful", 0, 1, -1},
		{"correction", 0, 1, -1},
		{"suggestion", 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			p, store := newTestProcessor(t)
			seedEntry(t, store, models.FaqEntry{ID: "faq-1", Confidence: 70, Status: models.StatusPendingReview})

			res, err := p.ProcessFeedback(ctx, Feedback{FaqID: "faq-1", Type: tt.typ})
			require.NoError(t, err)

			e := res.UpdatedFaq
			assert.Equal(t, 1, e.FeedbackCount)
			assert.Equal(t, tt.helpful, e.HelpfulCount)
			assert.Equal(t, tt.nope, e.NotHelpfulCount)
			switch tt.confidenceMove {
			case 1:
				assert.Greater(t, e.Confidence, 70.0)
			case -1:
				assert.Less(t, e.Confidence, 70.0)
			default:
				assert.Equal(t, 70.0, e.Confidence)
			}
			assert.Equal(t, testNow, e.UpdatedAt)
		})
	}
}

func TestProcessFeedback_StagesSuggestedEdit(t *testing.T) {
	ctx := context.Background()
	p, store := newTestProcessor(t)
	seedEntry(t, store, models.FaqEntry{ID: "faq-1", Answer: "old answer", Category: "billing", Confidence: 70, Status: models.StatusPublished})

	_, err := p.ProcessFeedback(ctx, Feedback{
		FaqID:             "faq-1",
		Type:              "correction",
		Comment:           "The <b>price</b> is wrong",
		SuggestedAnswer:   "new answer",
		SuggestedCategory: "pricing",
		SuggestedKeywords: []string{"price"},
	})
	require.NoError(t, err)

	_, err = p.ProcessFeedback(ctx, Feedback{
		FaqID:           "faq-1",
		Type:            "helpful",
		SuggestedAnswer: "ignored",
	})
	require.NoError(t, err)

	stored, err := store.FindEntry(ctx, "faq-1")
	require.NoError(t, err)
	assert.Equal(t, "old answer", stored.Answer)
	assert.Equal(t, "billing", stored.Category)

	records, err := store.FindFeedback(ctx, models.FeedbackFilter{FaqID: "faq-1"})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "fb-001", records[0].ID)
	assert.Equal(t, "new answer", records[0].SuggestedAnswer)
	assert.Equal(t, "pricing", records[0].SuggestedCategory)
	assert.Equal(t, []string{"price"}, records[0].SuggestedKeywords)
	assert.Equal(t, models.ReviewStatusPending, records[0].ReviewStatus)
	assert.Equal(t, "The price is wrong", records[0].Comment)

	assert.Empty(t, records[1].SuggestedAnswer)
	assert.Empty(t, records[1].ReviewStatus)
}

func TestAnalyzeFeedback(t *testing.T) {
	p, _ := newTestProcessor(t)
	published := &models.FaqEntry{ID: "faq-1", Confidence: 70, Status: models.StatusPublished}
	review := &models.FaqEntry{ID: "faq-2", Confidence: 70, Status: models.StatusPendingReview}

	tests := []struct {
		name      string
		entry     *models.FaqEntry
		ft        Type
		fb        Feedback
		sentiment Sentiment
		priority  Priority
		action    bool
	}{
		{"plain helpful", published, TypeHelpful, Feedback{}, SentimentPositive, PriorityLow, false},
		{"not helpful on published", published, TypeNotHelpful, Feedback{}, SentimentNegative, PriorityHigh, true},
		{"not helpful in review", review, TypeNotHelpful, Feedback{}, SentimentNegative, PriorityMedium, true},
		{"suggestion", published, TypeSuggestion, Feedback{Comment: "add a video"}, SentimentNeutral, PriorityMedium, true},
		{"helpful but rated low", published, TypeHelpful, Feedback{Comment: "outdated", Rating: intPtr(1)}, SentimentNeutral, PriorityMedium, true},
		{"helpful with complaints", published, TypeHelpful, Feedback{Comment: "steps are outdated and confusing, wrong price, broken link", Rating: intPtr(1)}, SentimentNegative, PriorityHigh, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := p.AnalyzeFeedback(tt.entry, tt.ft, tt.fb)
			require.NoError(t, err)
			assert.Equal(t, tt.sentiment, a.OverallSentiment)
			assert.Equal(t, tt.priority, a.Priority)
			assert.Equal(t, tt.action, a.ActionRequired)
			assert.InDelta(t, a.NewConfidence-tt.entry.Confidence, a.ConfidenceAdjustment, 1e-9)
		})
	}
}

func TestAnalyzeFeedback_ExtractsImprovements(t *testing.T) {
	p, _ := newTestProcessor(t)
	entry := &models.FaqEntry{ID: "faq-1", Confidence: 70, Status: models.StatusPublished}

	a, err := p.AnalyzeFeedback(entry, TypeNotHelpful, Feedback{Comment: "Missing steps for Android, screenshot outdated"})
	require.NoError(t, err)
	assert.Equal(t, []string{"missing steps", "outdated"}, a.SuggestedImprovements)
}

func TestProcessFeedback_SameEntryIsSerialised(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	p := NewProcessor(store, store, nil)
	seedEntry(t, store, models.FaqEntry{ID: "faq-1", Confidence: 50, Status: models.StatusPendingReview})
	seedEntry(t, store, models.FaqEntry{ID: "faq-2", Confidence: 50, Status: models.StatusPendingReview})

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := p.ProcessFeedback(ctx, Feedback{FaqID: "faq-1", Type: "helpful"})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := p.ProcessFeedback(ctx, Feedback{FaqID: "faq-2", Type: "not_helpful"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	one, err := store.FindEntry(ctx, "faq-1")
	require.NoError(t, err)
	assert.Equal(t, n, one.FeedbackCount)
	assert.Equal(t, n, one.HelpfulCount)

	two, err := store.FindEntry(ctx, "faq-2")
	require.NoError(t, err)
	assert.Equal(t, n, two.FeedbackCount)
	assert.Equal(t, n, two.NotHelpfulCount)

	assert.Empty(t, p.locks.locks)
}

func TestRecordImprovement(t *testing.T) {
	ctx := context.Background()
	p, store := newTestProcessor(t)
	seedEntry(t, store, models.FaqEntry{ID: "faq-1", Confidence: 40, Status: models.StatusPendingReview, FeedbackCount: 2, NotHelpfulCount: 2})

	e, err := p.RecordImprovement(ctx, "faq-1")
	require.NoError(t, err)
	assert.Greater(t, e.Confidence, 40.0)
	assert.LessOrEqual(t, e.Confidence, scoring.ImprovedBaseline)
	assert.Equal(t, 2, e.FeedbackCount)
	assert.Equal(t, models.StatusPendingReview, e.Status)

	_, err = p.RecordImprovement(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
