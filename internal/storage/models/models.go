package models

import (
	"fmt"
	"time"

	"github.com/faqminer/backend/pkg/apperr"
)

type EntryStatus string

const (
	StatusDraft         EntryStatus = "draft"
	StatusPendingReview EntryStatus = "pending_review"
	StatusPublished     EntryStatus = "published"
	StatusRejected      EntryStatus = "rejected"
)

// AllStatuses is in lifecycle order; reports iterate it to keep output stable.
var AllStatuses = []EntryStatus{StatusDraft, StatusPendingReview, StatusPublished, StatusRejected}

func (s EntryStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPendingReview, StatusPublished, StatusRejected:
		return true
	}
	return false
}

type Source string

const (
	SourceChat   Source = "chat"
	SourceTicket Source = "ticket"
)

func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceChat, SourceTicket:
		return Source(s), nil
	}
	return "", fmt.Errorf("%w: unknown source %q", apperr.ErrInvalidInput, s)
}

type FaqEntry struct {
	ID              string        `json:"id"`
	Question        string        `json:"question"`
	Answer          string        `json:"answer"`
	Confidence      float64       `json:"confidence"`
	Status          EntryStatus   `json:"status"`
	Source          Source        `json:"source"`
	SourceID        string        `json:"source_id"`
	Keywords        []string      `json:"keywords"`
	Category        string        `json:"category"`
	PatternHash     string        `json:"pattern_hash,omitempty"`
	ViewCount       int           `json:"view_count"`
	FeedbackCount   int           `json:"feedback_count"`
	HelpfulCount    int           `json:"helpful_count"`
	NotHelpfulCount int           `json:"not_helpful_count"`
	Metadata        EntryMetadata `json:"metadata"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// EntryMetadata is what the drafting provider reported for an entry.
type EntryMetadata struct {
	ProviderName   string  `json:"provider_name"`
	ResponseTimeMs float64 `json:"response_time_ms"`
	TokensUsed     int     `json:"tokens_used"`
	Error          string  `json:"error,omitempty"`
}

func (e *FaqEntry) HelpfulnessRatio() float64 {
	if e.FeedbackCount == 0 {
		return 0
	}
	return float64(e.HelpfulCount) / float64(e.FeedbackCount)
}

type PatternSource struct {
	Type      string  `json:"type"`
	ID        string  `json:"id"`
	Relevance float64 `json:"relevance"`
}

type LearningPattern struct {
	ID          string          `json:"id"`
	PatternType string          `json:"pattern_type"`
	PatternText string          `json:"pattern_text"`
	PatternHash string          `json:"pattern_hash"`
	Frequency   int             `json:"frequency"`
	Confidence  float64         `json:"confidence"`
	Category    string          `json:"category"`
	Sources     []PatternSource `json:"sources"`
	CreatedAt   time.Time       `json:"created_at"`
}

// FeedbackRecord is one stored end-user feedback event. Suggested* fields hold a
// staged edit that waits for a human; the engine never applies them.
type FeedbackRecord struct {
	ID                string            `json:"id"`
	FaqID             string            `json:"faq_id"`
	Type              string            `json:"type"`
	Rating            *int              `json:"rating,omitempty"`
	Comment           string            `json:"comment,omitempty"`
	SuggestedAnswer   string            `json:"suggested_answer,omitempty"`
	SuggestedCategory string            `json:"suggested_category,omitempty"`
	SuggestedKeywords []string          `json:"suggested_keywords,omitempty"`
	Context           map[string]string `json:"context,omitempty"`
	ReviewStatus      string            `json:"review_status,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}

const ReviewStatusPending = "pending"

type EntryFilter struct {
	Statuses     []EntryStatus
	Source       Source
	Category     string
	CreatedFrom  time.Time
	CreatedTo    time.Time
	UpdatedFrom  time.Time
	UpdatedTo    time.Time
	ProviderName string
}

// Matches applies the filter in memory. Zero-valued fields match everything;
// ranges are [from, to).
func (f EntryFilter) Matches(e *FaqEntry) bool {
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if e.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.Source != "" && e.Source != f.Source {
		return false
	}
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if f.ProviderName != "" && e.Metadata.ProviderName != f.ProviderName {
		return false
	}
	if !inRange(e.CreatedAt, f.CreatedFrom, f.CreatedTo) {
		return false
	}
	return inRange(e.UpdatedAt, f.UpdatedFrom, f.UpdatedTo)
}

type PatternFilter struct {
	Category    string
	CreatedFrom time.Time
	CreatedTo   time.Time
}

func (f PatternFilter) Matches(p *LearningPattern) bool {
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	return inRange(p.CreatedAt, f.CreatedFrom, f.CreatedTo)
}

type FeedbackFilter struct {
	FaqID string
	From  time.Time
	To    time.Time
}

func (f FeedbackFilter) Matches(r *FeedbackRecord) bool {
	if f.FaqID != "" && r.FaqID != f.FaqID {
		return false
	}
	return inRange(r.CreatedAt, f.From, f.To)
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}
