package feedback

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/faqminer/backend/internal/storage/models"
	"github.com/faqminer/backend/internal/textanalysis"
)

const (
	MaxTopIssues = 10

	// TrendWindow is the length of each window compared by the trend.
	TrendWindow = 7 * 24 * time.Hour
	// TrendEpsilon is the helpfulness change, in percentage points, below which
	// the trend is stable.
	TrendEpsilon = 5.0
	// ViewsForFullScore is the view count that earns the full view score.
	ViewsForFullScore = 100.0

	helpfulnessWeight = 0.5
	viewWeight        = 0.2
	confidenceWeight  = 0.3
)

func (p *Processor) GetFeedbackStats(ctx context.Context, faqID string) (*Stats, error) {
	entry, err := p.entries.FindEntry(ctx, faqID)
	if err != nil {
		return nil, fmt.Errorf("failed to load faq entry: %w", err)
	}

	records, err := p.records.FindFeedback(ctx, models.FeedbackFilter{FaqID: faqID})
	if err != nil {
		return nil, fmt.Errorf("failed to load feedback: %w", err)
	}

	stats := &Stats{
		FaqID:            faqID,
		TotalFeedback:    entry.FeedbackCount,
		HelpfulCount:     entry.HelpfulCount,
		NotHelpfulCount:  entry.NotHelpfulCount,
		HelpfulnessRatio: entry.HelpfulnessRatio(),
		TopIssues:        []IssueCount{},
	}

	var ratingSum, rated int
	comments := make([]string, 0, len(records))
	for _, r := range records {
		switch r.Type {
		case TypeSuggestion.String():
			stats.SuggestionCount++
		case TypeCorrection.String():
			stats.CorrectionCount++
		}
		if r.ReviewStatus == models.ReviewStatusPending {
			stats.PendingSuggestions++
		}
		if r.Rating != nil {
			ratingSum += *r.Rating
			rated++
		}
		comments = append(comments, r.Comment)
	}
	if rated > 0 {
		stats.AverageRating = math.Round(float64(ratingSum)/float64(rated)*100) / 100
	}
	stats.TopIssues = topIssues(comments, MaxTopIssues)

	return stats, nil
}

// topIssues counts issue phrases over comments, one count per comment, ordered by
// count descending and then by first appearance.
func topIssues(comments []string, limit int) []IssueCount {
	counts := make(map[string]int)
	var order []string
	for _, c := range comments {
		for _, phrase := range textanalysis.IssuePhrases(c) {
			if _, ok := counts[phrase]; !ok {
				order = append(order, phrase)
			}
			counts[phrase]++
		}
	}

	issues := make([]IssueCount, 0, len(order))
	for _, phrase := range order {
		issues = append(issues, IssueCount{Phrase: phrase, Count: counts[phrase]})
	}
	sort.SliceStable(issues, func(i, j int) bool {
		return issues[i].Count > issues[j].Count
	})
	if len(issues) > limit {
		issues = issues[:limit]
	}
	return issues
}

// GetPerformanceMetrics scores one entry, or every published entry when faqID is nil.
func (p *Processor) GetPerformanceMetrics(ctx context.Context, faqID *string) (*PerformanceReport, error) {
	var entries []models.FaqEntry
	feedbackFilter := models.FeedbackFilter{}

	if faqID != nil {
		entry, err := p.entries.FindEntry(ctx, *faqID)
		if err != nil {
			return nil, fmt.Errorf("failed to load faq entry: %w", err)
		}
		entries = []models.FaqEntry{*entry}
		feedbackFilter.FaqID = *faqID
	} else {
		found, err := p.entries.FindEntries(ctx, models.EntryFilter{Statuses: []models.EntryStatus{models.StatusPublished}})
		if err != nil {
			return nil, fmt.Errorf("failed to load published entries: %w", err)
		}
		entries = found
	}

	now := p.now()
	currentFrom := now.Add(-TrendWindow)
	priorFrom := currentFrom.Add(-TrendWindow)
	feedbackFilter.From = priorFrom
	feedbackFilter.To = now

	records, err := p.records.FindFeedback(ctx, feedbackFilter)
	if err != nil {
		return nil, fmt.Errorf("failed to load feedback: %w", err)
	}

	type window struct{ helpful, total int }
	current := make(map[string]*window)
	prior := make(map[string]*window)
	for _, r := range records {
		bucket := prior
		if !r.CreatedAt.Before(currentFrom) {
			bucket = current
		}
		w, ok := bucket[r.FaqID]
		if !ok {
			w = &window{}
			bucket[r.FaqID] = w
		}
		w.total++
		if r.Type == TypeHelpful.String() {
			w.helpful++
		}
	}

	rate := func(w *window) (float64, bool) {
		if w == nil || w.total == 0 {
			return 0, false
		}
		return float64(w.helpful) / float64(w.total) * 100, true
	}

	report := &PerformanceReport{Entries: make([]EntryPerformance, 0, len(entries))}
	var scoreSum float64
	var allCurrent, allPrior window
	for _, e := range entries {
		if w := current[e.ID]; w != nil {
			allCurrent.helpful += w.helpful
			allCurrent.total += w.total
		}
		if w := prior[e.ID]; w != nil {
			allPrior.helpful += w.helpful
			allPrior.total += w.total
		}

		helpfulness := e.HelpfulnessRatio() * 100
		views := math.Min(100, float64(e.ViewCount)/ViewsForFullScore*100)
		score := helpfulnessWeight*helpfulness + viewWeight*views + confidenceWeight*e.Confidence

		cur, curOK := rate(current[e.ID])
		pri, priOK := rate(prior[e.ID])

		report.Entries = append(report.Entries, EntryPerformance{
			FaqID:              e.ID,
			Question:           e.Question,
			PerformanceScore:   round1(score),
			HelpfulnessRate:    round1(helpfulness),
			ViewScore:          round1(views),
			Confidence:         e.Confidence,
			CurrentHelpfulness: round1(cur),
			PriorHelpfulness:   round1(pri),
			Trend:              trend(cur, curOK, pri, priOK),
		})
		scoreSum += score
	}

	sort.SliceStable(report.Entries, func(i, j int) bool {
		a, b := report.Entries[i], report.Entries[j]
		if a.PerformanceScore != b.PerformanceScore {
			return a.PerformanceScore > b.PerformanceScore
		}
		return a.FaqID < b.FaqID
	})

	if len(entries) > 0 {
		report.AverageScore = round1(scoreSum / float64(len(entries)))
	}
	cur, curOK := rate(&allCurrent)
	pri, priOK := rate(&allPrior)
	report.Trend = trend(cur, curOK, pri, priOK)

	return report, nil
}

// trend compares the helpfulness rate of two consecutive windows. Views and
// confidence are not kept per window, so helpfulness is the only part of the
// performance score that can move between them. The result is stable unless
// both windows have feedback and differ by more than TrendEpsilon points.
func trend(current float64, currentOK bool, prior float64, priorOK bool) Trend {
	if !currentOK || !priorOK {
		return TrendStable
	}
	switch diff := current - prior; {
	case diff > TrendEpsilon:
		return TrendImproving
	case diff < -TrendEpsilon:
		return TrendDeclining
	default:
		return TrendStable
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
