// Package ingestion turns mined candidates into scored FAQ entries.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/faqminer/backend/internal/kg/neo4j"
	"github.com/faqminer/backend/internal/metrics"
	"github.com/faqminer/backend/internal/scoring"
	"github.com/faqminer/backend/internal/storage"
	"github.com/faqminer/backend/internal/storage/models"
	"github.com/faqminer/backend/internal/textanalysis"
	"github.com/faqminer/backend/pkg/apperr"
	"github.com/faqminer/backend/pkg/logger"
	"github.com/faqminer/backend/pkg/utils"
)

const DefaultPatternType = "question"

// Candidate is one mined question/answer pair with the signals upstream mining
// and the drafting provider reported for it.
type Candidate struct {
	Data         scoring.ExtractedData `json:"data"`
	PatternText  string                `json:"patternText,omitempty"`
	PatternType  string                `json:"patternType,omitempty"`
	AIConfidence float64               `json:"aiConfidence"`
	Provider     models.EntryMetadata  `json:"provider"`
}

type Outcome struct {
	Entry      *models.FaqEntry `json:"entry"`
	Score      scoring.Result   `json:"score"`
	Frequency  int              `json:"patternFrequency"`
	Similarity float64          `json:"similarity"`
	NearestFaq string           `json:"nearestFaqId,omitempty"`
}

// SimilarityIndex finds how close a question is to published entries and
// indexes newly published ones.
type SimilarityIndex interface {
	SimilarityToExisting(ctx context.Context, question string) (similarity float64, faqID string, err error)
	IndexPublished(ctx context.Context, entry *models.FaqEntry) error
}

type PatternGraph interface {
	RecordPattern(ctx context.Context, link neo4j.PatternLink) error
}

type Processor struct {
	entries  storage.EntryRepository
	patterns storage.PatternRepository
	calc     *scoring.Calculator
	index    SimilarityIndex
	graph    PatternGraph

	lookupTimeout time.Duration
	patternMu     sync.Mutex
	now           func() time.Time
	newID         func() string
}

// NewProcessor wires the intake. index and graph are optional.
func NewProcessor(entries storage.EntryRepository, patterns storage.PatternRepository, calc *scoring.Calculator, index SimilarityIndex, graph PatternGraph) *Processor {
	if calc == nil {
		calc = scoring.NewCalculator(nil)
	}
	return &Processor{
		entries:       entries,
		patterns:      patterns,
		calc:          calc,
		index:         index,
		graph:         graph,
		lookupTimeout: 5 * time.Second,
		now:           time.Now,
		newID:         func() string { return uuid.New().String() },
	}
}

// Ingest scores a candidate and persists it with the status its recommendation
// calls for. A candidate without an answer is stored as a draft.
func (p *Processor) Ingest(ctx context.Context, c Candidate) (*Outcome, error) {
	data := c.Data
	data.Question = strings.TrimSpace(data.Question)
	data.Answer = strings.TrimSpace(textanalysis.StripHTML(data.Answer))
	if data.Question == "" {
		return nil, fmt.Errorf("%w: question is required", apperr.ErrInvalidInput)
	}
	if _, err := models.ParseSource(string(data.Source)); err != nil {
		return nil, err
	}

	patternText := c.PatternText
	if patternText == "" {
		patternText = data.Question
	}
	hash := utils.HashPattern(patternText)
	source := models.PatternSource{Type: string(data.Source), ID: data.SourceID, Relevance: 1}

	frequency, err := p.observePattern(ctx, hash, patternText, c, source)
	if err != nil {
		return nil, err
	}

	similarity, nearest := p.lookupSimilarity(ctx, data.Question)
	score := p.calc.CalculateConfidence(data, frequency, c.AIConfidence, similarity)

	now := p.now()
	entry := &models.FaqEntry{
		ID:          p.newID(),
		Question:    data.Question,
		Answer:      data.Answer,
		Confidence:  score.OverallConfidence,
		Status:      initialStatus(data.Answer, score.Recommendation),
		Source:      data.Source,
		SourceID:    data.SourceID,
		Keywords:    data.Keywords,
		Category:    data.Category,
		PatternHash: hash,
		Metadata:    c.Provider,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.entries.SaveEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to save entry: %w", err)
	}

	metrics.ConfidenceScore.WithLabelValues(string(score.Recommendation)).Observe(score.OverallConfidence)
	metrics.EntriesIngested.WithLabelValues(string(entry.Status)).Inc()

	if entry.Status == models.StatusPublished && p.index != nil {
		if err := p.index.IndexPublished(ctx, entry); err != nil {
			logger.Warn("Failed to index published entry", zap.String("faq_id", entry.ID), zap.Error(err))
		}
	}
	if p.graph != nil {
		err := p.graph.RecordPattern(ctx, neo4j.PatternLink{
			PatternHash: hash,
			PatternText: patternText,
			Category:    data.Category,
			Frequency:   frequency,
			Sources:     []models.PatternSource{source},
			FaqID:       entry.ID,
			FaqStatus:   entry.Status,
			Confidence:  entry.Confidence,
		})
		if err != nil {
			logger.Warn("Failed to record pattern graph", zap.String("pattern_hash", hash), zap.Error(err))
		}
	}

	logger.Info("Candidate ingested",
		zap.String("faq_id", entry.ID),
		zap.Float64("confidence", entry.Confidence),
		zap.String("status", string(entry.Status)),
		zap.Int("pattern_frequency", frequency),
	)

	return &Outcome{
		Entry:      entry,
		Score:      score,
		Frequency:  frequency,
		Similarity: similarity,
		NearestFaq: nearest,
	}, nil
}

// observePattern bumps the pattern's frequency, creating it on first sight.
func (p *Processor) observePattern(ctx context.Context, hash, text string, c Candidate, source models.PatternSource) (int, error) {
	p.patternMu.Lock()
	defer p.patternMu.Unlock()

	frequency, err := p.patterns.IncrementPatternFrequency(ctx, hash, source)
	if err == nil {
		return frequency, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return 0, fmt.Errorf("failed to update pattern: %w", err)
	}

	patternType := c.PatternType
	if patternType == "" {
		patternType = DefaultPatternType
	}
	pattern := &models.LearningPattern{
		ID:          p.newID(),
		PatternType: patternType,
		PatternText: text,
		PatternHash: hash,
		Frequency:   1,
		Confidence:  clampPercent(c.AIConfidence),
		Category:    c.Data.Category,
		CreatedAt:   p.now(),
	}
	if source.ID != "" {
		pattern.Sources = []models.PatternSource{source}
	}
	if err := p.patterns.SavePattern(ctx, pattern); err != nil {
		return 0, fmt.Errorf("failed to save pattern: %w", err)
	}
	return 1, nil
}

// lookupSimilarity treats an unavailable index as "no similar entry".
func (p *Processor) lookupSimilarity(ctx context.Context, question string) (float64, string) {
	if p.index == nil {
		return 0, ""
	}
	ctx, cancel := context.WithTimeout(ctx, p.lookupTimeout)
	defer cancel()

	similarity, faqID, err := p.index.SimilarityToExisting(ctx, question)
	if err != nil {
		logger.Warn("Similarity lookup failed", zap.Error(err))
		return 0, ""
	}
	return similarity, faqID
}

func initialStatus(answer string, rec scoring.Recommendation) models.EntryStatus {
	if answer == "" {
		return models.StatusDraft
	}
	switch rec {
	case scoring.RecommendAutoPublish:
		return models.StatusPublished
	case scoring.RecommendNeedsReview:
		return models.StatusPendingReview
	default:
		return models.StatusRejected
	}
}

func clampPercent(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
