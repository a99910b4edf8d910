// Package memory is an in-process implementation of the storage repositories.
// It backs tests and single-node runs without a database file.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/faqminer/backend/internal/storage/models"
	"github.com/faqminer/backend/pkg/apperr"
)

type Store struct {
	mu       sync.RWMutex
	entries  map[string]models.FaqEntry
	patterns map[string]models.LearningPattern // patternHash -> pattern
	feedback []models.FeedbackRecord
	config   map[string][]byte

	// PingErr, when set, is returned by Ping.
	PingErr error
}

func NewStore() *Store {
	return &Store{
		entries:  make(map[string]models.FaqEntry),
		patterns: make(map[string]models.LearningPattern),
		config:   make(map[string][]byte),
	}
}

func (s *Store) FindEntry(ctx context.Context, id string) (*models.FaqEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("faq entry %s: %w", id, apperr.ErrNotFound)
	}
	return cloneEntry(e), nil
}

func (s *Store) FindEntries(ctx context.Context, filter models.EntryFilter) ([]models.FaqEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.FaqEntry
	for _, e := range s.entries {
		if filter.Matches(&e) {
			out = append(out, *cloneEntry(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) CountEntries(ctx context.Context, filter models.EntryFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.entries {
		if filter.Matches(&e) {
			n++
		}
	}
	return n, nil
}

func (s *Store) SaveEntry(ctx context.Context, entry *models.FaqEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("%w: entry id is required", apperr.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[entry.ID] = *cloneEntry(*entry)
	return nil
}

func (s *Store) FindPatternByHash(ctx context.Context, hash string) (*models.LearningPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.patterns[hash]
	if !ok {
		return nil, fmt.Errorf("pattern %s: %w", hash, apperr.ErrNotFound)
	}
	p.Sources = append([]models.PatternSource(nil), p.Sources...)
	return &p, nil
}

func (s *Store) FindPatterns(ctx context.Context, filter models.PatternFilter) ([]models.LearningPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.LearningPattern
	for _, p := range s.patterns {
		if filter.Matches(&p) {
			p.Sources = append([]models.PatternSource(nil), p.Sources...)
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) SavePattern(ctx context.Context, pattern *models.LearningPattern) error {
	if pattern.PatternHash == "" {
		return fmt.Errorf("%w: pattern hash is required", apperr.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p := *pattern
	p.Sources = append([]models.PatternSource(nil), pattern.Sources...)
	s.patterns[p.PatternHash] = p
	return nil
}

func (s *Store) IncrementPatternFrequency(ctx context.Context, hash string, source models.PatternSource) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.patterns[hash]
	if !ok {
		return 0, fmt.Errorf("pattern %s: %w", hash, apperr.ErrNotFound)
	}
	p.Frequency++
	if source.ID != "" {
		p.Sources = append(p.Sources, source)
	}
	s.patterns[hash] = p
	return p.Frequency, nil
}

func (s *Store) SaveFeedback(ctx context.Context, record *models.FeedbackRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendFeedback(record)
	return nil
}

// SaveFeedbackEvent stores the entry and its feedback record under one lock.
func (s *Store) SaveFeedbackEvent(ctx context.Context, entry *models.FaqEntry, record *models.FeedbackRecord) error {
	if entry.ID == "" {
		return fmt.Errorf("%w: entry id is required", apperr.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[entry.ID] = *cloneEntry(*entry)
	s.appendFeedback(record)
	return nil
}

func (s *Store) appendFeedback(record *models.FeedbackRecord) {
	r := *record
	r.SuggestedKeywords = append([]string(nil), record.SuggestedKeywords...)
	s.feedback = append(s.feedback, r)
}

// FindFeedback returns matching records in insertion order.
func (s *Store) FindFeedback(ctx context.Context, filter models.FeedbackFilter) ([]models.FeedbackRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.FeedbackRecord
	for _, r := range s.feedback {
		if filter.Matches(&r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) GetConfig(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.config[key]
	return v, ok, nil
}

func (s *Store) SetConfig(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.config[key] = append([]byte(nil), value...)
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.PingErr
}

func cloneEntry(e models.FaqEntry) *models.FaqEntry {
	e.Keywords = append([]string(nil), e.Keywords...)
	return &e
}
