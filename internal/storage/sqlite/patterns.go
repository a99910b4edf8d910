package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/faqminer/backend/internal/storage/models"
	"github.com/faqminer/backend/pkg/apperr"
	"github.com/faqminer/backend/pkg/logger"
)

func (c *Client) SavePattern(ctx context.Context, pattern *models.LearningPattern) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO learning_patterns (id, pattern_type, pattern_text, pattern_hash, frequency, confidence, category, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pattern_hash) DO UPDATE SET
			pattern_text = excluded.pattern_text,
			confidence = excluded.confidence,
			category = excluded.category
	`,
		pattern.ID,
		pattern.PatternType,
		pattern.PatternText,
		pattern.PatternHash,
		pattern.Frequency,
		pattern.Confidence,
		pattern.Category,
		pattern.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save pattern: %w", err)
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM pattern_sources WHERE pattern_hash = ?`, pattern.PatternHash)
	if err != nil {
		return fmt.Errorf("failed to reset pattern sources: %w", err)
	}

	for _, src := range pattern.Sources {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO pattern_sources (pattern_hash, source_type, source_id, relevance) VALUES (?, ?, ?, ?)`,
			pattern.PatternHash, src.Type, src.ID, src.Relevance,
		)
		if err != nil {
			return fmt.Errorf("failed to insert pattern source: %w", err)
		}
	}

	return tx.Commit()
}

func (c *Client) IncrementPatternFrequency(ctx context.Context, hash string, source models.PatternSource) (int, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var frequency int
	err = tx.QueryRowContext(ctx,
		`UPDATE learning_patterns SET frequency = frequency + 1 WHERE pattern_hash = ? RETURNING frequency`, hash,
	).Scan(&frequency)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("pattern %s: %w", hash, apperr.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment pattern frequency: %w", err)
	}

	if source.ID != "" {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO pattern_sources (pattern_hash, source_type, source_id, relevance) VALUES (?, ?, ?, ?)`,
			hash, source.Type, source.ID, source.Relevance,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert pattern source: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit pattern increment: %w", err)
	}

	logger.Debug("Pattern frequency incremented", zap.String("pattern_hash", hash), zap.Int("frequency", frequency))
	return frequency, nil
}

func (c *Client) FindPatternByHash(ctx context.Context, hash string) (*models.LearningPattern, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, pattern_type, pattern_text, pattern_hash, frequency, confidence, category, created_at
		FROM learning_patterns WHERE pattern_hash = ?`, hash)

	p, err := scanPattern(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pattern %s: %w", hash, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pattern: %w", err)
	}

	p.Sources, err = c.patternSources(ctx, hash)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (c *Client) FindPatterns(ctx context.Context, filter models.PatternFilter) ([]models.LearningPattern, error) {
	var clauses []string
	var args []interface{}
	if filter.Category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, filter.Category)
	}
	clauses, args = timeRange(clauses, args, "created_at", filter.CreatedFrom, filter.CreatedTo)

	where := ""
	for i, clause := range clauses {
		if i == 0 {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, pattern_type, pattern_text, pattern_hash, frequency, confidence, category, created_at
		FROM learning_patterns`+where+` ORDER BY created_at ASC, id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find patterns: %w", err)
	}
	defer rows.Close()

	var patterns []models.LearningPattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		patterns = append(patterns, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating patterns: %w", err)
	}

	return patterns, nil
}

func (c *Client) patternSources(ctx context.Context, hash string) ([]models.PatternSource, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT source_type, source_id, relevance FROM pattern_sources WHERE pattern_hash = ? ORDER BY id`, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get pattern sources: %w", err)
	}
	defer rows.Close()

	var sources []models.PatternSource
	for rows.Next() {
		var s models.PatternSource
		var relevance sql.NullFloat64
		if err := rows.Scan(&s.Type, &s.ID, &relevance); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		s.Relevance = relevance.Float64
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

func scanPattern(row rowScanner) (*models.LearningPattern, error) {
	var p models.LearningPattern
	var category sql.NullString
	var createdAt int64

	err := row.Scan(&p.ID, &p.PatternType, &p.PatternText, &p.PatternHash, &p.Frequency, &p.Confidence, &category, &createdAt)
	if err != nil {
		return nil, err
	}
	p.Category = category.String
	p.CreatedAt = time.Unix(createdAt, 0)
	return &p, nil
}
