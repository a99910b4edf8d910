// Package feedback recalibrates FAQ entries from end-user feedback and reports
// per-entry feedback statistics and performance.
package feedback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/faqminer/backend/internal/metrics"
	"github.com/faqminer/backend/internal/scoring"
	"github.com/faqminer/backend/internal/storage"
	"github.com/faqminer/backend/internal/storage/models"
	"github.com/faqminer/backend/internal/textanalysis"
	"github.com/faqminer/backend/pkg/apperr"
	"github.com/faqminer/backend/pkg/logger"
)

const (
	// Sentiment scores above SentimentCutoff are positive, below -SentimentCutoff negative.
	SentimentCutoff = 0.25
	cueWeight       = 0.25
	ratingWeight    = 0.25
	neutralRating   = 3
	minRating       = 1
	maxRating       = 5
)

type Processor struct {
	entries storage.EntryRepository
	records storage.FeedbackRepository
	calc    *scoring.Calculator
	locks   *entryLocks
	now     func() time.Time
	newID   func() string
}

func NewProcessor(entries storage.EntryRepository, records storage.FeedbackRepository, calc *scoring.Calculator) *Processor {
	if calc == nil {
		calc = scoring.NewCalculator(nil)
	}
	return &Processor{
		entries: entries,
		records: records,
		calc:    calc,
		locks:   newEntryLocks(),
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
}

func (p *Processor) ProcessFeedback(ctx context.Context, fb Feedback) (*Result, error) {
	ft, err := ParseType(fb.Type)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(fb.FaqID) == "" {
		return nil, fmt.Errorf("%w: faqId is required", apperr.ErrInvalidInput)
	}
	if fb.Rating != nil && (*fb.Rating < minRating || *fb.Rating > maxRating) {
		return nil, fmt.Errorf("%w: rating must be between %d and %d", apperr.ErrInvalidInput, minRating, maxRating)
	}

	unlock := p.locks.lock(fb.FaqID)
	defer unlock()

	entry, err := p.entries.FindEntry(ctx, fb.FaqID)
	if err != nil {
		return nil, fmt.Errorf("failed to load faq entry: %w", err)
	}

	analysis, err := p.AnalyzeFeedback(entry, ft, fb)
	if err != nil {
		return nil, err
	}

	ft.applyCounters(entry)
	entry.Confidence = analysis.NewConfidence
	entry.UpdatedAt = p.now()

	demoted := false
	threshold := p.calc.Thresholds().MinConfidenceForReview
	if entry.Status == models.StatusPublished && entry.Confidence < threshold {
		entry.Status = models.StatusPendingReview
		demoted = true
	}

	record := p.buildRecord(ft, fb)
	if err := p.records.SaveFeedbackEvent(ctx, entry, record); err != nil {
		return nil, fmt.Errorf("failed to save feedback: %w", err)
	}

	metrics.FeedbackEvents.WithLabelValues(ft.String(), string(analysis.OverallSentiment)).Inc()
	if demoted {
		metrics.Demotions.Inc()
		logger.Warn("FAQ entry demoted to review",
			zap.String("faq_id", entry.ID),
			zap.Float64("confidence", entry.Confidence),
			zap.Float64("threshold", threshold))
	}

	logger.Info("Feedback processed",
		zap.String("faq_id", entry.ID),
		zap.String("feedback_id", record.ID),
		zap.String("type", ft.String()),
		zap.String("sentiment", string(analysis.OverallSentiment)),
		zap.Float64("confidence", entry.Confidence))

	return &Result{
		Processed:  true,
		FeedbackID: record.ID,
		Analysis:   analysis,
		UpdatedFaq: entry,
		Demoted:    demoted,
	}, nil
}

// AnalyzeFeedback derives sentiment, the recalibrated confidence and the issues
// raised by one submission against the entry as it is before the event. It does
// not mutate the entry.
func (p *Processor) AnalyzeFeedback(entry *models.FaqEntry, ft Type, fb Feedback) (Analysis, error) {
	comment := textanalysis.StripHTML(fb.Comment)

	score := ft.baseSentiment()
	cues := textanalysis.SentimentCues(comment)
	score += cueWeight * float64(cues.Positive-cues.Negative)
	if fb.Rating != nil {
		score += ratingWeight * float64(*fb.Rating-neutralRating)
	}

	sentiment := SentimentNeutral
	switch {
	case score > SentimentCutoff:
		sentiment = SentimentPositive
	case score < -SentimentCutoff:
		sentiment = SentimentNegative
	}

	newConfidence := entry.Confidence
	if kind, ok := ft.adjustment(); ok {
		adjusted, err := p.calc.AdjustConfidenceBasedOnFeedback(entry.Confidence, kind, entry.FeedbackCount+1)
		if err != nil {
			return Analysis{}, fmt.Errorf("failed to adjust confidence: %w", err)
		}
		newConfidence = adjusted
	}

	improvements := textanalysis.IssuePhrases(comment)
	if improvements == nil {
		improvements = []string{}
	}

	actionRequired := sentiment == SentimentNegative || ft.stagesEdit() || len(improvements) > 0
	priority := PriorityLow
	switch {
	case sentiment == SentimentNegative && entry.Status == models.StatusPublished:
		priority = PriorityHigh
	case actionRequired:
		priority = PriorityMedium
	}

	return Analysis{
		OverallSentiment:      sentiment,
		SentimentScore:        score,
		ConfidenceAdjustment:  newConfidence - entry.Confidence,
		NewConfidence:         newConfidence,
		SuggestedImprovements: improvements,
		ActionRequired:        actionRequired,
		Priority:              priority,
	}, nil
}

// RecordImprovement rescales an entry after an editor applied a staged
// correction. Counters and status are left alone.
func (p *Processor) RecordImprovement(ctx context.Context, faqID string) (*models.FaqEntry, error) {
	unlock := p.locks.lock(faqID)
	defer unlock()

	entry, err := p.entries.FindEntry(ctx, faqID)
	if err != nil {
		return nil, fmt.Errorf("failed to load faq entry: %w", err)
	}

	adjusted, err := p.calc.AdjustConfidenceBasedOnFeedback(entry.Confidence, scoring.AdjustImproved, entry.FeedbackCount)
	if err != nil {
		return nil, err
	}
	entry.Confidence = adjusted
	entry.UpdatedAt = p.now()

	if err := p.entries.SaveEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to save faq entry: %w", err)
	}

	logger.Info("Recorded content improvement",
		zap.String("faq_id", faqID),
		zap.Float64("confidence", adjusted))

	return entry, nil
}

func (p *Processor) buildRecord(ft Type, fb Feedback) *models.FeedbackRecord {
	record := &models.FeedbackRecord{
		ID:        p.newID(),
		FaqID:     fb.FaqID,
		Type:      ft.String(),
		Rating:    fb.Rating,
		Comment:   textanalysis.StripHTML(fb.Comment),
		Context:   fb.Context,
		CreatedAt: p.now(),
	}
	if ft.stagesEdit() {
		record.SuggestedAnswer = strings.TrimSpace(fb.SuggestedAnswer)
		record.SuggestedCategory = strings.TrimSpace(fb.SuggestedCategory)
		record.SuggestedKeywords = fb.SuggestedKeywords
		record.ReviewStatus = models.ReviewStatusPending
	}
	return record
}
