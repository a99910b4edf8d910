// Package scoring turns candidate signals into a 0-100 confidence score and a
// publish recommendation, and recalibrates scores from end-user feedback.
//
// Everything here is deterministic and side-effect free apart from reading the
// current thresholds from a ThresholdProvider.
package scoring

import (
	"fmt"

	"github.com/faqminer/backend/internal/storage/models"
)

type Factor string

const (
	FactorSourceQuality        Factor = "sourceQuality"
	FactorPatternFrequency     Factor = "patternFrequency"
	FactorResolutionSuccess    Factor = "resolutionSuccess"
	FactorUserSatisfaction     Factor = "userSatisfaction"
	FactorContextClarity       Factor = "contextClarity"
	FactorAnswerCompleteness   Factor = "answerCompleteness"
	FactorSimilarityToExisting Factor = "similarityToExisting"
	FactorAIConfidence         Factor = "aiConfidence"
)

// Factors is the declaration order. Reasoning lines follow it.
var Factors = []Factor{
	FactorSourceQuality,
	FactorPatternFrequency,
	FactorResolutionSuccess,
	FactorUserSatisfaction,
	FactorContextClarity,
	FactorAnswerCompleteness,
	FactorSimilarityToExisting,
	FactorAIConfidence,
}

// Weights sum to 1.0.
var Weights = map[Factor]float64{
	FactorSourceQuality:        0.10,
	FactorPatternFrequency:     0.15,
	FactorResolutionSuccess:    0.15,
	FactorUserSatisfaction:     0.15,
	FactorContextClarity:       0.10,
	FactorAnswerCompleteness:   0.15,
	FactorSimilarityToExisting: 0.05,
	FactorAIConfidence:         0.15,
}

const (
	// FrequencyScale maps pattern frequency to its factor: min(100, frequency*FrequencyScale).
	FrequencyScale = 20.0

	// A factor at or above NotableHighCutoff, or below NotableLowCutoff, gets a reasoning line.
	NotableHighCutoff = 80.0
	NotableLowCutoff  = 40.0
)

// ExtractedData is what upstream mining produced for one candidate. Nil signals
// are missing; they score 0 and are called out in the reasoning.
type ExtractedData struct {
	Question           string        `json:"question"`
	Answer             string        `json:"answer"`
	Category           string        `json:"category"`
	Keywords           []string      `json:"keywords"`
	Source             models.Source `json:"source"`
	SourceID           string        `json:"sourceId"`
	SourceQuality      *float64      `json:"sourceQuality,omitempty"`
	ResolutionSuccess  *float64      `json:"resolutionSuccess,omitempty"`
	UserSatisfaction   *float64      `json:"userSatisfaction,omitempty"`
	ContextClarity     *float64      `json:"contextClarity,omitempty"`
	AnswerCompleteness *float64      `json:"answerCompleteness,omitempty"`
}

type Result struct {
	OverallConfidence float64            `json:"overallConfidence"`
	Factors           map[Factor]float64 `json:"factors"`
	Reasoning         []string           `json:"reasoning"`
	Recommendation    Recommendation     `json:"recommendation"`
}

type Calculator struct {
	thresholds ThresholdProvider
}

func NewCalculator(thresholds ThresholdProvider) *Calculator {
	if thresholds == nil {
		thresholds = StaticThresholds(DefaultThresholds())
	}
	return &Calculator{thresholds: thresholds}
}

func (c *Calculator) Thresholds() Thresholds {
	return c.thresholds.ConfidenceThresholds().Normalize()
}

// CalculateConfidence scores a candidate. existingFaqSimilarity is how close
// the candidate is to an already published entry (0-100); it counts against
// the score.
func (c *Calculator) CalculateConfidence(data ExtractedData, patternFrequency int, aiConfidence, existingFaqSimilarity float64) Result {
	factors := make(map[Factor]float64, len(Factors))
	missing := make(map[Factor]bool)

	signal := func(f Factor, v *float64) {
		if v == nil {
			missing[f] = true
			factors[f] = 0
			return
		}
		factors[f] = clamp(*v)
	}

	signal(FactorSourceQuality, data.SourceQuality)
	factors[FactorPatternFrequency] = clamp(float64(patternFrequency) * FrequencyScale)
	signal(FactorResolutionSuccess, data.ResolutionSuccess)
	signal(FactorUserSatisfaction, data.UserSatisfaction)
	signal(FactorContextClarity, data.ContextClarity)
	signal(FactorAnswerCompleteness, data.AnswerCompleteness)
	factors[FactorSimilarityToExisting] = 100 - clamp(existingFaqSimilarity)
	factors[FactorAIConfidence] = clamp(aiConfidence)

	var total float64
	for _, f := range Factors {
		total += factors[f] * Weights[f]
	}
	overall := round1(clamp(total))

	var reasoning []string
	for _, f := range Factors {
		if missing[f] {
			reasoning = append(reasoning, fmt.Sprintf("%s signal missing, treated as 0", f))
			continue
		}
		if line, ok := explain(f, factors[f], existingFaqSimilarity, patternFrequency); ok {
			reasoning = append(reasoning, line)
		}
	}

	return Result{
		OverallConfidence: overall,
		Factors:           factors,
		Reasoning:         reasoning,
		Recommendation:    Recommend(overall, c.Thresholds()),
	}
}

func explain(f Factor, v, similarity float64, frequency int) (string, bool) {
	high := v >= NotableHighCutoff
	low := v < NotableLowCutoff
	if !high && !low {
		return "", false
	}

	switch f {
	case FactorSourceQuality:
		if high {
			return fmt.Sprintf("high-quality source (%.0f)", v), true
		}
		return fmt.Sprintf("low-quality source (%.0f)", v), true
	case FactorPatternFrequency:
		if high {
			return fmt.Sprintf("recurring question, seen %d times", frequency), true
		}
		return fmt.Sprintf("rare question, seen %d times", frequency), true
	case FactorResolutionSuccess:
		if high {
			return fmt.Sprintf("interaction was resolved (%.0f)", v), true
		}
		return fmt.Sprintf("interaction was not clearly resolved (%.0f)", v), true
	case FactorUserSatisfaction:
		if high {
			return fmt.Sprintf("customer was satisfied (%.0f)", v), true
		}
		return fmt.Sprintf("customer was dissatisfied (%.0f)", v), true
	case FactorContextClarity:
		if high {
			return fmt.Sprintf("clear context (%.0f)", v), true
		}
		return fmt.Sprintf("ambiguous context (%.0f)", v), true
	case FactorAnswerCompleteness:
		if high {
			return fmt.Sprintf("complete answer (%.0f)", v), true
		}
		return fmt.Sprintf("incomplete answer (%.0f)", v), true
	case FactorSimilarityToExisting:
		if high {
			return fmt.Sprintf("distinct from published entries (similarity %.0f)", clamp(similarity)), true
		}
		return fmt.Sprintf("near-duplicate of a published entry (similarity %.0f), merge instead", clamp(similarity)), true
	case FactorAIConfidence:
		if high {
			return fmt.Sprintf("provider is confident (%.0f)", v), true
		}
		return fmt.Sprintf("provider is unsure (%.0f)", v), true
	}
	return "", false
}
