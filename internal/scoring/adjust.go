package scoring

import (
	"fmt"
	"math"

	"github.com/faqminer/backend/pkg/apperr"
)

type AdjustmentKind int

const (
	AdjustHelpful AdjustmentKind = iota + 1
	AdjustNotHelpful
	AdjustImproved
)

func (k AdjustmentKind) String() string {
	switch k {
	case AdjustHelpful:
		return "helpful"
	case AdjustNotHelpful:
		return "not_helpful"
	case AdjustImproved:
		return "improved"
	default:
		return "unknown"
	}
}

func ParseAdjustmentKind(s string) (AdjustmentKind, error) {
	switch s {
	case "helpful":
		return AdjustHelpful, nil
	case "not_helpful":
		return AdjustNotHelpful, nil
	case "improved":
		return AdjustImproved, nil
	}
	return 0, fmt.Errorf("%w: unknown adjustment kind %q", apperr.ErrInvalidInput, s)
}

const (
	// PriorWeight is how many feedback events the existing score is worth
	// before any feedback arrives.
	PriorWeight = 10.0

	// ImprovedBaseline is the score a corrected entry is pulled toward.
	ImprovedBaseline = 75.0

	// ImprovedPull makes a correction count as several ordinary events.
	ImprovedPull = 5.0
)

// AdjustConfidenceBasedOnFeedback blends the current score toward the target of
// the feedback kind. The step is (target-current)*pull/(feedbackCount+PriorWeight),
// capped at the full distance, so each extra event on an established entry moves
// the score less than the one before.
func (c *Calculator) AdjustConfidenceBasedOnFeedback(current float64, kind AdjustmentKind, feedbackCount int) (float64, error) {
	current = clamp(current)
	if feedbackCount < 0 {
		feedbackCount = 0
	}

	var target, pull float64
	switch kind {
	case AdjustHelpful:
		target, pull = 100, 1
	case AdjustNotHelpful:
		target, pull = 0, 1
	case AdjustImproved:
		if current >= ImprovedBaseline {
			return round1(current), nil
		}
		target, pull = ImprovedBaseline, ImprovedPull
	default:
		return 0, fmt.Errorf("%w: unknown adjustment kind %d", apperr.ErrInvalidInput, int(kind))
	}

	rate := math.Min(1, pull/(float64(feedbackCount)+PriorWeight))
	return round1(clamp(current + (target-current)*rate)), nil
}
