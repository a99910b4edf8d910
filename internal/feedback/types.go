package feedback

import (
	"fmt"

	"github.com/faqminer/backend/internal/scoring"
	"github.com/faqminer/backend/internal/storage/models"
	"github.com/faqminer/backend/pkg/apperr"
)

type Type int

const (
	TypeHelpful Type = iota + 1
	TypeNotHelpful
	TypeSuggestion
	TypeCorrection
)

func ParseType(s string) (Type, error) {
	switch s {
	case "helpful":
		return TypeHelpful, nil
	case "not_helpful":
		return TypeNotHelpful, nil
	case "suggestion":
		return TypeSuggestion, nil
	case "correction":
		return TypeCorrection, nil
	}
	return 0, fmt.Errorf("%w: unknown feedback type %q", apperr.ErrInvalidInput, s)
}

func (t Type) String() string {
	switch t {
	case TypeHelpful:
		return "helpful"
	case TypeNotHelpful:
		return "not_helpful"
	case TypeSuggestion:
		return "suggestion"
	case TypeCorrection:
		return "correction"
	default:
		return "unknown"
	}
}

// adjustment is the score movement the type causes. Suggestions are neutral.
func (t Type) adjustment() (scoring.AdjustmentKind, bool) {
	switch t {
	case TypeHelpful:
		return scoring.AdjustHelpful, true
	case TypeNotHelpful, TypeCorrection:
		return scoring.AdjustNotHelpful, true
	default:
		return 0, false
	}
}

// applyCounters bumps FeedbackCount and at most one of the helpful/not-helpful
// counters.
func (t Type) applyCounters(e *models.FaqEntry) {
	e.FeedbackCount++
	switch t {
	case TypeHelpful:
		e.HelpfulCount++
	case TypeNotHelpful, TypeCorrection:
		e.NotHelpfulCount++
	}
}

func (t Type) stagesEdit() bool {
	return t == TypeSuggestion || t == TypeCorrection
}

func (t Type) baseSentiment() float64 {
	switch t {
	case TypeHelpful:
		return 1
	case TypeNotHelpful, TypeCorrection:
		return -1
	default:
		return 0
	}
}

// Feedback is one end-user submission.
type Feedback struct {
	FaqID             string            `json:"faqId"`
	Type              string            `json:"feedbackType"`
	Rating            *int              `json:"rating,omitempty"`
	Comment           string            `json:"comment,omitempty"`
	SuggestedAnswer   string            `json:"suggestedAnswer,omitempty"`
	SuggestedCategory string            `json:"suggestedCategory,omitempty"`
	SuggestedKeywords []string          `json:"suggestedKeywords,omitempty"`
	Context           map[string]string `json:"context,omitempty"`
}

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

type Analysis struct {
	OverallSentiment      Sentiment `json:"overallSentiment"`
	SentimentScore        float64   `json:"sentimentScore"`
	ConfidenceAdjustment  float64   `json:"confidenceAdjustment"`
	NewConfidence         float64   `json:"newConfidence"`
	SuggestedImprovements []string  `json:"suggestedImprovements"`
	ActionRequired        bool      `json:"actionRequired"`
	Priority              Priority  `json:"priority"`
}

type Result struct {
	Processed  bool             `json:"processed"`
	FeedbackID string           `json:"feedbackId"`
	Analysis   Analysis         `json:"analysis"`
	UpdatedFaq *models.FaqEntry `json:"updatedFaq,omitempty"`
	Demoted    bool             `json:"demoted"`
}

type IssueCount struct {
	Phrase string `json:"phrase"`
	Count  int    `json:"count"`
}

type Stats struct {
	FaqID              string       `json:"faqId"`
	TotalFeedback      int          `json:"totalFeedback"`
	HelpfulCount       int          `json:"helpfulCount"`
	NotHelpfulCount    int          `json:"notHelpfulCount"`
	SuggestionCount    int          `json:"suggestionCount"`
	CorrectionCount    int          `json:"correctionCount"`
	HelpfulnessRatio   float64      `json:"helpfulnessRatio"`
	AverageRating      float64      `json:"averageRating"`
	PendingSuggestions int          `json:"pendingSuggestions"`
	TopIssues          []IssueCount `json:"topIssues"`
}

type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

type EntryPerformance struct {
	FaqID              string  `json:"faqId"`
	Question           string  `json:"question"`
	PerformanceScore   float64 `json:"performanceScore"`
	HelpfulnessRate    float64 `json:"helpfulnessRate"`
	ViewScore          float64 `json:"viewScore"`
	Confidence         float64 `json:"confidence"`
	CurrentHelpfulness float64 `json:"currentHelpfulness"`
	PriorHelpfulness   float64 `json:"priorHelpfulness"`
	Trend              Trend   `json:"trend"`
}

type PerformanceReport struct {
	Entries      []EntryPerformance `json:"entries"`
	AverageScore float64            `json:"averageScore"`
	Trend        Trend              `json:"trend"`
}
