package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faqminer/backend/pkg/apperr"
)

func ptr(v float64) *float64 { return &v }

func fullData(v float64) ExtractedData {
	return ExtractedData{
		Question:           "How do I reset my password?",
		Answer:             "Use the reset link on the login page.",
		SourceQuality:      ptr(v),
		ResolutionSuccess:  ptr(v),
		UserSatisfaction:   ptr(v),
		ContextClarity:     ptr(v),
		AnswerCompleteness: ptr(v),
	}
}

func TestWeightsSumToOne(t *testing.T) {
	var sum float64
	for _, f := range Factors {
		w, ok := Weights[f]
		require.True(t, ok, "missing weight for %s", f)
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Len(t, Weights, len(Factors))
}

func TestCalculateConfidence_HighBandScenario(t *testing.T) {
	calc := NewCalculator(nil)
	data := ExtractedData{
		SourceQuality:      ptr(90),
		ResolutionSuccess:  ptr(100),
		UserSatisfaction:   ptr(100),
		ContextClarity:     ptr(80),
		AnswerCompleteness: ptr(90),
	}

	res := calc.CalculateConfidence(data, 5, 90, 10)

	assert.Equal(t, 100.0, res.Factors[FactorPatternFrequency], "frequency 5 should saturate")
	assert.Equal(t, 90.0, res.Factors[FactorSimilarityToExisting])
	assert.GreaterOrEqual(t, res.OverallConfidence, 85.0)
	assert.Equal(t, 93.5, res.OverallConfidence)
	assert.Equal(t, RecommendAutoPublish, res.Recommendation)
}

func TestCalculateConfidence_Bounds(t *testing.T) {
	calc := NewCalculator(nil)
	inputs := []float64{-500, -1, 0, 33.3, 100, 101, 1e9, math.NaN()}

	for _, v := range inputs {
		for _, freq := range []int{-3, 0, 1, 4, 1000} {
			res := calc.CalculateConfidence(fullData(v), freq, v, v)
			assert.GreaterOrEqual(t, res.OverallConfidence, 0.0)
			assert.LessOrEqual(t, res.OverallConfidence, 100.0)
			for f, fv := range res.Factors {
				assert.GreaterOrEqual(t, fv, 0.0, "factor %s", f)
				assert.LessOrEqual(t, fv, 100.0, "factor %s", f)
			}
		}
	}
}

func TestCalculateConfidence_FrequencySaturates(t *testing.T) {
	calc := NewCalculator(nil)
	a := calc.CalculateConfidence(fullData(50), 5, 50, 50)
	b := calc.CalculateConfidence(fullData(50), 500, 50, 50)

	assert.Equal(t, a.OverallConfidence, b.OverallConfidence)
	assert.Equal(t, 40.0, calc.CalculateConfidence(fullData(50), 2, 50, 50).Factors[FactorPatternFrequency])
}

func TestCalculateConfidence_SimilarityIsPenalty(t *testing.T) {
	calc := NewCalculator(nil)
	distinct := calc.CalculateConfidence(fullData(70), 3, 70, 5)
	duplicate := calc.CalculateConfidence(fullData(70), 3, 70, 98)

	assert.Greater(t, distinct.OverallConfidence, duplicate.OverallConfidence)
	assert.Contains(t, duplicate.Reasoning[len(duplicate.Reasoning)-1], "near-duplicate")
}

func TestCalculateConfidence_ReasoningOrderAndMissingSignals(t *testing.T) {
	calc := NewCalculator(nil)
	data := ExtractedData{
		SourceQuality:      ptr(95),
		ResolutionSuccess:  nil,
		UserSatisfaction:   ptr(60),
		ContextClarity:     ptr(10),
		AnswerCompleteness: ptr(60),
	}

	res := calc.CalculateConfidence(data, 3, 60, 50)

	require.Len(t, res.Reasoning, 3)
	assert.Contains(t, res.Reasoning[0], "high-quality source")
	assert.Equal(t, "resolutionSuccess signal missing, treated as 0", res.Reasoning[1])
	assert.Contains(t, res.Reasoning[2], "ambiguous context")
	assert.Equal(t, 0.0, res.Factors[FactorResolutionSuccess])
}

func TestCalculateConfidence_RoundsToOneDecimal(t *testing.T) {
	calc := NewCalculator(nil)
	res := calc.CalculateConfidence(fullData(33.33), 1, 33.33, 66.67)
	assert.Equal(t, res.OverallConfidence, math.Round(res.OverallConfidence*10)/10)
}

func TestRecommend_Boundaries(t *testing.T) {
	th := Thresholds{MinConfidenceForReview: 60, MinConfidenceForAutoPublish: 85}

	tests := []struct {
		confidence float64
		want       Recommendation
	}{
		{100, RecommendAutoPublish},
		{85, RecommendAutoPublish},
		{84.9, RecommendNeedsReview},
		{60, RecommendNeedsReview},
		{59.9, RecommendReject},
		{0, RecommendReject},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Recommend(tt.confidence, th), "confidence %.1f", tt.confidence)
	}
}

func TestCalculator_ReadsThresholdsAtCallTime(t *testing.T) {
	provider := &mutableThresholds{t: DefaultThresholds()}
	calc := NewCalculator(provider)

	data := fullData(80)
	before := calc.CalculateConfidence(data, 4, 80, 20)
	require.Equal(t, RecommendNeedsReview, before.Recommendation)

	provider.t.MinConfidenceForAutoPublish = before.OverallConfidence
	after := calc.CalculateConfidence(data, 4, 80, 20)
	assert.Equal(t, RecommendAutoPublish, after.Recommendation)
}

func TestThresholds_Normalize(t *testing.T) {
	got := Thresholds{MinConfidenceForReview: 120, MinConfidenceForAutoPublish: 70}.Normalize()
	assert.Equal(t, 70.0, got.MinConfidenceForReview)
	assert.Equal(t, 70.0, got.MinConfidenceForAutoPublish)

	got = Thresholds{MinConfidenceForReview: -5, MinConfidenceForAutoPublish: 90}.Normalize()
	assert.Equal(t, 0.0, got.MinConfidenceForReview)
}

func TestAdjust_Direction(t *testing.T) {
	calc := NewCalculator(nil)

	up, err := calc.AdjustConfidenceBasedOnFeedback(50, AdjustHelpful, 1)
	require.NoError(t, err)
	assert.Greater(t, up, 50.0)

	down, err := calc.AdjustConfidenceBasedOnFeedback(50, AdjustNotHelpful, 1)
	require.NoError(t, err)
	assert.Less(t, down, 50.0)

	improved, err := calc.AdjustConfidenceBasedOnFeedback(30, AdjustImproved, 1)
	require.NoError(t, err)
	assert.Greater(t, improved, 30.0)
	assert.LessOrEqual(t, improved, ImprovedBaseline)

	same, err := calc.AdjustConfidenceBasedOnFeedback(90, AdjustImproved, 1)
	require.NoError(t, err)
	assert.Equal(t, 90.0, same)
}

func TestAdjust_Bounded(t *testing.T) {
	calc := NewCalculator(nil)
	for _, kind := range []AdjustmentKind{AdjustHelpful, AdjustNotHelpful, AdjustImproved} {
		for _, c := range []float64{-1e6, -1, 0, 50, 100, 1e6} {
			for _, n := range []int{-10, 0, 1, 5, 100000} {
				got, err := calc.AdjustConfidenceBasedOnFeedback(c, kind, n)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, got, 0.0)
				assert.LessOrEqual(t, got, 100.0)
			}
		}
	}
}

func TestAdjust_DiminishingReturns(t *testing.T) {
	calc := NewCalculator(nil)
	for _, kind := range []AdjustmentKind{AdjustHelpful, AdjustNotHelpful, AdjustImproved} {
		for _, c := range []float64{10, 50, 62, 90} {
			prev := math.Inf(1)
			for n := 0; n <= 200; n++ {
				got, err := calc.AdjustConfidenceBasedOnFeedback(c, kind, n)
				require.NoError(t, err)
				delta := math.Abs(got - c)
				assert.LessOrEqual(t, delta, prev, "kind=%s c=%.0f n=%d", kind, c, n)
				prev = delta
			}
		}
	}
}

func TestAdjust_UnknownKind(t *testing.T) {
	calc := NewCalculator(nil)
	_, err := calc.AdjustConfidenceBasedOnFeedback(50, AdjustmentKind(42), 1)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = ParseAdjustmentKind("meh")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

type mutableThresholds struct{ t Thresholds }

func (m *mutableThresholds) ConfidenceThresholds() Thresholds { return m.t }
