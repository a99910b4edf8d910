// Package storage declares the repository contracts the engine depends on.
// Implementations live in storage/sqlite (durable) and storage/memory.
package storage

import (
	"context"

	"github.com/faqminer/backend/internal/storage/models"
)

// EntryRepository finds, counts and saves FAQ entries. FindEntry returns an error
// wrapping apperr.ErrNotFound for unknown ids. FindEntries orders by creation time,
// then id.
type EntryRepository interface {
	FindEntry(ctx context.Context, id string) (*models.FaqEntry, error)
	FindEntries(ctx context.Context, filter models.EntryFilter) ([]models.FaqEntry, error)
	CountEntries(ctx context.Context, filter models.EntryFilter) (int, error)
	SaveEntry(ctx context.Context, entry *models.FaqEntry) error
}

type PatternRepository interface {
	FindPatternByHash(ctx context.Context, hash string) (*models.LearningPattern, error)
	FindPatterns(ctx context.Context, filter models.PatternFilter) ([]models.LearningPattern, error)
	SavePattern(ctx context.Context, pattern *models.LearningPattern) error
	// IncrementPatternFrequency bumps the frequency in one atomic step and
	// returns the new value.
	IncrementPatternFrequency(ctx context.Context, hash string, source models.PatternSource) (int, error)
}

type FeedbackRepository interface {
	SaveFeedback(ctx context.Context, record *models.FeedbackRecord) error
	// SaveFeedbackEvent persists the updated entry together with the record
	// that caused the update. Either both are stored or neither is.
	SaveFeedbackEvent(ctx context.Context, entry *models.FaqEntry, record *models.FeedbackRecord) error
	FindFeedback(ctx context.Context, filter models.FeedbackFilter) ([]models.FeedbackRecord, error)
}

// ConfigStore is the keyed lookup for admin-editable settings blobs.
// ok is false when the key is absent.
type ConfigStore interface {
	GetConfig(ctx context.Context, key string) (value []byte, ok bool, err error)
	SetConfig(ctx context.Context, key string, value []byte) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}
