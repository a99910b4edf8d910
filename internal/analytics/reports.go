package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/faqminer/backend/internal/storage/models"
)

const (
	MaxTopCategories = 10
	MaxTopFaqs       = 10

	UnknownProvider   = "unknown"
	UncategorizedName = "uncategorized"
)

type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

type Effectiveness struct {
	Period             Period                     `json:"period"`
	From               time.Time                  `json:"from"`
	To                 time.Time                  `json:"to"`
	TotalEntries       int                        `json:"totalEntries"`
	StatusCounts       map[models.EntryStatus]int `json:"statusCounts"`
	ApprovalRate       float64                    `json:"approvalRate"`
	AverageConfidence  float64                    `json:"averageConfidence"`
	SourceBreakdown    map[models.Source]int      `json:"sourceBreakdown"`
	TopCategories      []CategoryCount            `json:"topCategories"`
	PatternsDiscovered int                        `json:"patternsDiscovered"`
}

// GetLearningEffectiveness reports on entries created in the period.
func (a *Aggregator) GetLearningEffectiveness(ctx context.Context, period Period) (*Effectiveness, error) {
	from, to := period.Window(a.now())

	entries, err := a.entries.FindEntries(ctx, models.EntryFilter{CreatedFrom: from, CreatedTo: to})
	if err != nil {
		return nil, fmt.Errorf("failed to load entries: %w", err)
	}
	patterns, err := a.patterns.FindPatterns(ctx, models.PatternFilter{CreatedFrom: from, CreatedTo: to})
	if err != nil {
		return nil, fmt.Errorf("failed to load patterns: %w", err)
	}

	r := &Effectiveness{
		Period:             period,
		From:               from,
		To:                 to,
		TotalEntries:       len(entries),
		StatusCounts:       make(map[models.EntryStatus]int, len(models.AllStatuses)),
		SourceBreakdown:    map[models.Source]int{models.SourceChat: 0, models.SourceTicket: 0},
		PatternsDiscovered: len(patterns),
	}
	for _, s := range models.AllStatuses {
		r.StatusCounts[s] = 0
	}

	var confidenceSum float64
	categoryCounts := make(map[string]int)
	var categoryOrder []string
	for _, e := range entries {
		r.StatusCounts[e.Status]++
		if e.Source != "" {
			r.SourceBreakdown[e.Source]++
		}
		confidenceSum += e.Confidence

		category := e.Category
		if category == "" {
			category = UncategorizedName
		}
		if _, ok := categoryCounts[category]; !ok {
			categoryOrder = append(categoryOrder, category)
		}
		categoryCounts[category]++
	}

	r.ApprovalRate = ApprovalRate(r.StatusCounts[models.StatusPublished], r.TotalEntries)
	if r.TotalEntries > 0 {
		r.AverageConfidence = round1(confidenceSum / float64(r.TotalEntries))
	}

	r.TopCategories = make([]CategoryCount, 0, len(categoryOrder))
	for _, c := range categoryOrder {
		r.TopCategories = append(r.TopCategories, CategoryCount{Category: c, Count: categoryCounts[c]})
	}
	sort.SliceStable(r.TopCategories, func(i, j int) bool {
		return r.TopCategories[i].Count > r.TopCategories[j].Count
	})
	if len(r.TopCategories) > MaxTopCategories {
		r.TopCategories = r.TopCategories[:MaxTopCategories]
	}

	return r, nil
}

// ApprovalRate is published/total*100, and 0 when total is 0.
func ApprovalRate(published, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(published) / float64(total) * 100
}

type ProviderStats struct {
	Provider          string  `json:"provider"`
	Total             int     `json:"total"`
	Successful        int     `json:"successful"`
	Failed            int     `json:"failed"`
	SuccessRate       float64 `json:"successRate"`
	ErrorRate         float64 `json:"errorRate"`
	AvgResponseTimeMs float64 `json:"avgResponseTimeMs"`
	AvgTokensUsed     float64 `json:"avgTokensUsed"`
	AvgConfidence     float64 `json:"avgConfidence"`
}

type ProviderPerformance struct {
	Period             Period          `json:"period"`
	Providers          []ProviderStats `json:"providers"`
	TotalRequests      int             `json:"totalRequests"`
	OverallSuccessRate float64         `json:"overallSuccessRate"`
}

// GetProviderPerformance groups entries created in the period by the provider
// that drafted them. A draft failed when it was rejected or the provider
// reported an error.
func (a *Aggregator) GetProviderPerformance(ctx context.Context, period Period) (*ProviderPerformance, error) {
	from, to := period.Window(a.now())

	entries, err := a.entries.FindEntries(ctx, models.EntryFilter{CreatedFrom: from, CreatedTo: to})
	if err != nil {
		return nil, fmt.Errorf("failed to load entries: %w", err)
	}

	type acc struct {
		stats       ProviderStats
		responseSum float64
		tokenSum    float64
		confSum     float64
	}
	groups := make(map[string]*acc)
	var successful int
	for _, e := range entries {
		name := e.Metadata.ProviderName
		if name == "" {
			name = UnknownProvider
		}
		g, ok := groups[name]
		if !ok {
			g = &acc{stats: ProviderStats{Provider: name}}
			groups[name] = g
		}
		g.stats.Total++
		if e.Status == models.StatusRejected || e.Metadata.Error != "" {
			g.stats.Failed++
		} else {
			g.stats.Successful++
			successful++
		}
		g.responseSum += e.Metadata.ResponseTimeMs
		g.tokenSum += float64(e.Metadata.TokensUsed)
		g.confSum += e.Confidence
	}

	r := &ProviderPerformance{
		Period:        period,
		Providers:     make([]ProviderStats, 0, len(groups)),
		TotalRequests: len(entries),
	}
	for _, g := range groups {
		s := g.stats
		n := float64(s.Total)
		s.SuccessRate = round1(float64(s.Successful) / n * 100)
		s.ErrorRate = round1(100 - s.SuccessRate)
		s.AvgResponseTimeMs = round1(g.responseSum / n)
		s.AvgTokensUsed = round1(g.tokenSum / n)
		s.AvgConfidence = round1(g.confSum / n)
		r.Providers = append(r.Providers, s)
	}
	sort.Slice(r.Providers, func(i, j int) bool {
		return r.Providers[i].Provider < r.Providers[j].Provider
	})
	if len(entries) > 0 {
		r.OverallSuccessRate = round1(float64(successful) / float64(len(entries)) * 100)
	}

	return r, nil
}

type FaqUsage struct {
	FaqID            string  `json:"faqId"`
	Question         string  `json:"question"`
	Category         string  `json:"category"`
	ViewCount        int     `json:"viewCount"`
	FeedbackCount    int     `json:"feedbackCount"`
	HelpfulCount     int     `json:"helpfulCount"`
	HelpfulnessRatio float64 `json:"helpfulnessRatio"`
}

type Usage struct {
	Period           Period     `json:"period"`
	ActiveFaqs       int        `json:"activeFaqs"`
	TotalViews       int        `json:"totalViews"`
	TotalFeedback    int        `json:"totalFeedback"`
	PositiveFeedback int        `json:"positiveFeedback"`
	SatisfactionRate float64    `json:"satisfactionRate"`
	AvgViewsPerFaq   float64    `json:"avgViewsPerFaq"`
	TopViewedFaqs    []FaqUsage `json:"topViewedFaqs"`
	TopRatedFaqs     []FaqUsage `json:"topRatedFaqs"`
}

// GetFaqUsageMetrics covers published entries touched during the period.
// Entries without feedback are left out of TopRatedFaqs.
func (a *Aggregator) GetFaqUsageMetrics(ctx context.Context, period Period) (*Usage, error) {
	from, to := period.Window(a.now())

	entries, err := a.entries.FindEntries(ctx, models.EntryFilter{
		Statuses:    []models.EntryStatus{models.StatusPublished},
		UpdatedFrom: from,
		UpdatedTo:   to,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load published entries: %w", err)
	}

	r := &Usage{Period: period, ActiveFaqs: len(entries)}
	usage := make([]FaqUsage, 0, len(entries))
	for _, e := range entries {
		r.TotalViews += e.ViewCount
		r.TotalFeedback += e.FeedbackCount
		r.PositiveFeedback += e.HelpfulCount
		usage = append(usage, FaqUsage{
			FaqID:            e.ID,
			Question:         e.Question,
			Category:         e.Category,
			ViewCount:        e.ViewCount,
			FeedbackCount:    e.FeedbackCount,
			HelpfulCount:     e.HelpfulCount,
			HelpfulnessRatio: e.HelpfulnessRatio(),
		})
	}
	if r.TotalFeedback > 0 {
		r.SatisfactionRate = round1(float64(r.PositiveFeedback) / float64(r.TotalFeedback) * 100)
	}
	if r.ActiveFaqs > 0 {
		r.AvgViewsPerFaq = round1(float64(r.TotalViews) / float64(r.ActiveFaqs))
	}

	r.TopViewedFaqs = topFaqs(usage, func(u FaqUsage) (float64, bool) {
		return float64(u.ViewCount), true
	})
	r.TopRatedFaqs = topFaqs(usage, func(u FaqUsage) (float64, bool) {
		return u.HelpfulnessRatio, u.FeedbackCount > 0
	})

	return r, nil
}

// topFaqs ranks by metric descending, then id ascending, capped at MaxTopFaqs.
func topFaqs(all []FaqUsage, metric func(FaqUsage) (float64, bool)) []FaqUsage {
	out := make([]FaqUsage, 0, len(all))
	for _, u := range all {
		if _, ok := metric(u); ok {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		mi, _ := metric(out[i])
		mj, _ := metric(out[j])
		if mi != mj {
			return mi > mj
		}
		return out[i].FaqID < out[j].FaqID
	})
	if len(out) > MaxTopFaqs {
		out = out[:MaxTopFaqs]
	}
	return out
}

type ROI struct {
	Period                 Period       `json:"period"`
	Days                   int          `json:"days"`
	TicketsBefore          int          `json:"ticketsBefore"`
	TicketsAfter           int          `json:"ticketsAfter"`
	AvgTicketsPerDayBefore float64      `json:"avgTicketsPerDayBefore"`
	AvgTicketsPerDayAfter  float64      `json:"avgTicketsPerDayAfter"`
	TicketReductionRate    float64      `json:"ticketReductionRate"`
	EstimatedTicketsSaved  int          `json:"estimatedTicketsSaved"`
	TimeSavedHours         float64      `json:"timeSavedHours"`
	CostSaved              float64      `json:"costSaved"`
	Constants              ROIConstants `json:"constants"`
}

// GetROIMetrics compares ticket volume in the period against the equal window
// before it. PeriodAll has no preceding window and reports zeros.
func (a *Aggregator) GetROIMetrics(ctx context.Context, period Period) (*ROI, error) {
	r := &ROI{Period: period, Days: period.Days(), Constants: a.cfg.ROI}
	if r.Days == 0 {
		return r, nil
	}

	from, to := period.Window(a.now())
	beforeFrom := from.AddDate(0, 0, -r.Days)

	after, err := a.tickets.CountTickets(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to count tickets in window: %w", err)
	}
	before, err := a.tickets.CountTickets(ctx, beforeFrom, from)
	if err != nil {
		return nil, fmt.Errorf("failed to count tickets in preceding window: %w", err)
	}

	r.TicketsBefore = before
	r.TicketsAfter = after
	days := float64(r.Days)
	r.AvgTicketsPerDayBefore = float64(before) / days
	r.AvgTicketsPerDayAfter = float64(after) / days
	if before > 0 {
		r.TicketReductionRate = round1(float64(before-after) / float64(before) * 100)
	}
	r.EstimatedTicketsSaved = int(math.Max(0, math.Round((r.AvgTicketsPerDayBefore-r.AvgTicketsPerDayAfter)*days)))
	r.TimeSavedHours = round1(float64(r.EstimatedTicketsSaved) * a.cfg.ROI.TicketHandlingMinutes / 60)
	r.CostSaved = math.Round(float64(r.EstimatedTicketsSaved)*a.cfg.ROI.CostPerTicket*100) / 100
	r.AvgTicketsPerDayBefore = round1(r.AvgTicketsPerDayBefore)
	r.AvgTicketsPerDayAfter = round1(r.AvgTicketsPerDayAfter)

	return r, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
