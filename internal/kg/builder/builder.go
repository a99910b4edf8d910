// Package builder rebuilds the derived stores (pattern graph, question
// vectors) from the relational store of record.
package builder

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/faqminer/backend/internal/kg/neo4j"
	"github.com/faqminer/backend/internal/storage"
	"github.com/faqminer/backend/internal/storage/models"
	"github.com/faqminer/backend/pkg/logger"
)

const TaskName = "graph_sync"

type PatternGraph interface {
	RecordPattern(ctx context.Context, link neo4j.PatternLink) error
}

type PublishedIndex interface {
	IndexPublished(ctx context.Context, entry *models.FaqEntry) error
}

type Builder struct {
	entries  storage.EntryRepository
	patterns storage.PatternRepository
	graph    PatternGraph
	index    PublishedIndex
}

type Report struct {
	Patterns      int `json:"patterns"`
	Links         int `json:"links"`
	Indexed       int `json:"indexed"`
	GraphFailures int `json:"graphFailures"`
	IndexFailures int `json:"indexFailures"`
}

// NewBuilder wires a resync. Either graph or index may be nil.
func NewBuilder(entries storage.EntryRepository, patterns storage.PatternRepository, graph PatternGraph, index PublishedIndex) *Builder {
	return &Builder{
		entries:  entries,
		patterns: patterns,
		graph:    graph,
		index:    index,
	}
}

// Sync replays every pattern with the entries drafted from it into the graph
// and re-indexes published entries. Individual write failures are counted, not
// returned; only reading the store of record can fail the run.
func (b *Builder) Sync(ctx context.Context) (*Report, error) {
	entries, err := b.entries.FindEntries(ctx, models.EntryFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to load entries: %w", err)
	}

	report := &Report{}

	if b.graph != nil {
		patterns, err := b.patterns.FindPatterns(ctx, models.PatternFilter{})
		if err != nil {
			return nil, fmt.Errorf("failed to load patterns: %w", err)
		}

		byHash := make(map[string][]models.FaqEntry)
		for _, e := range entries {
			if e.PatternHash != "" {
				byHash[e.PatternHash] = append(byHash[e.PatternHash], e)
			}
		}

		for _, p := range patterns {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			report.Patterns++
			for _, link := range patternLinks(p, byHash[p.PatternHash]) {
				if err := b.graph.RecordPattern(ctx, link); err != nil {
					report.GraphFailures++
					logger.Warn("Failed to sync pattern", zap.String("pattern_hash", p.PatternHash), zap.Error(err))
					continue
				}
				report.Links++
			}
		}
	}

	if b.index != nil {
		for i := range entries {
			if entries[i].Status != models.StatusPublished {
				continue
			}
			if err := ctx.Err(); err != nil {
				return report, err
			}
			if err := b.index.IndexPublished(ctx, &entries[i]); err != nil {
				report.IndexFailures++
				logger.Warn("Failed to index entry", zap.String("faq_id", entries[i].ID), zap.Error(err))
				continue
			}
			report.Indexed++
		}
	}

	logger.Info("Derived stores synced",
		zap.Int("patterns", report.Patterns),
		zap.Int("links", report.Links),
		zap.Int("indexed", report.Indexed),
		zap.Int("graph_failures", report.GraphFailures),
		zap.Int("index_failures", report.IndexFailures),
	)
	return report, nil
}

// Run adapts Sync to the scheduler's task signature.
func (b *Builder) Run(ctx context.Context) error {
	_, err := b.Sync(ctx)
	return err
}

// patternLinks yields one link per entry, or a bare pattern link when no entry
// was drafted from it yet.
func patternLinks(p models.LearningPattern, entries []models.FaqEntry) []neo4j.PatternLink {
	base := neo4j.PatternLink{
		PatternHash: p.PatternHash,
		PatternText: p.PatternText,
		Category:    p.Category,
		Frequency:   p.Frequency,
		Sources:     p.Sources,
	}
	if len(entries) == 0 {
		return []neo4j.PatternLink{base}
	}

	links := make([]neo4j.PatternLink, 0, len(entries))
	for _, e := range entries {
		link := base
		link.FaqID = e.ID
		link.FaqStatus = e.Status
		link.Confidence = e.Confidence
		links = append(links, link)
	}
	return links
}
