package scoring

import "math"

const (
	DefaultMinConfidenceForReview      = 60.0
	DefaultMinConfidenceForAutoPublish = 85.0
)

// Thresholds is the publish/review policy. MinConfidenceForReview must not
// exceed MinConfidenceForAutoPublish; Normalize enforces it.
type Thresholds struct {
	MinConfidenceForReview      float64 `json:"minConfidenceForReview"`
	MinConfidenceForAutoPublish float64 `json:"minConfidenceForAutoPublish"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MinConfidenceForReview:      DefaultMinConfidenceForReview,
		MinConfidenceForAutoPublish: DefaultMinConfidenceForAutoPublish,
	}
}

// Normalize clamps both values into [0,100] and lowers the review threshold to
// the publish threshold when they are inverted.
func (t Thresholds) Normalize() Thresholds {
	t.MinConfidenceForReview = clamp(t.MinConfidenceForReview)
	t.MinConfidenceForAutoPublish = clamp(t.MinConfidenceForAutoPublish)
	if t.MinConfidenceForReview > t.MinConfidenceForAutoPublish {
		t.MinConfidenceForReview = t.MinConfidenceForAutoPublish
	}
	return t
}

// ThresholdProvider yields the policy in force at call time.
type ThresholdProvider interface {
	ConfidenceThresholds() Thresholds
}

// StaticThresholds is a ThresholdProvider that never changes.
type StaticThresholds Thresholds

func (s StaticThresholds) ConfidenceThresholds() Thresholds {
	return Thresholds(s)
}

type Recommendation string

const (
	RecommendAutoPublish Recommendation = "auto_publish"
	RecommendNeedsReview Recommendation = "needs_review"
	RecommendReject      Recommendation = "reject"
)

func Recommend(confidence float64, t Thresholds) Recommendation {
	switch {
	case confidence >= t.MinConfidenceForAutoPublish:
		return RecommendAutoPublish
	case confidence >= t.MinConfidenceForReview:
		return RecommendNeedsReview
	default:
		return RecommendReject
	}
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
