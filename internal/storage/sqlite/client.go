package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/faqminer/backend/internal/storage/models"
	"github.com/faqminer/backend/pkg/apperr"
	"github.com/faqminer/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS faq_entries (
		id TEXT PRIMARY KEY,
		question TEXT NOT NULL,
		answer TEXT,
		confidence REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		source TEXT NOT NULL,
		source_id TEXT,
		keywords TEXT,
		category TEXT,
		pattern_hash TEXT,
		view_count INTEGER NOT NULL DEFAULT 0,
		feedback_count INTEGER NOT NULL DEFAULT 0,
		helpful_count INTEGER NOT NULL DEFAULT 0,
		not_helpful_count INTEGER NOT NULL DEFAULT 0,
		provider_name TEXT,
		response_time_ms REAL,
		tokens_used INTEGER,
		provider_error TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_entries_status ON faq_entries(status);
	CREATE INDEX IF NOT EXISTS idx_entries_source ON faq_entries(source);
	CREATE INDEX IF NOT EXISTS idx_entries_category ON faq_entries(category);
	CREATE INDEX IF NOT EXISTS idx_entries_created ON faq_entries(created_at);
	CREATE INDEX IF NOT EXISTS idx_entries_updated ON faq_entries(updated_at);

	CREATE TABLE IF NOT EXISTS learning_patterns (
		id TEXT PRIMARY KEY,
		pattern_type TEXT NOT NULL,
		pattern_text TEXT NOT NULL,
		pattern_hash TEXT UNIQUE NOT NULL,
		frequency INTEGER NOT NULL DEFAULT 1,
		confidence REAL NOT NULL DEFAULT 0,
		category TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_patterns_created ON learning_patterns(created_at);

	CREATE TABLE IF NOT EXISTS pattern_sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pattern_hash TEXT NOT NULL,
		source_type TEXT NOT NULL,
		source_id TEXT NOT NULL,
		relevance REAL,
		FOREIGN KEY (pattern_hash) REFERENCES learning_patterns(pattern_hash) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_pattern_sources_hash ON pattern_sources(pattern_hash);

	CREATE TABLE IF NOT EXISTS feedback (
		id TEXT PRIMARY KEY,
		faq_id TEXT NOT NULL,
		feedback_type TEXT NOT NULL,
		rating INTEGER,
		comment TEXT,
		suggested_answer TEXT,
		suggested_category TEXT,
		suggested_keywords TEXT,
		context TEXT,
		review_status TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (faq_id) REFERENCES faq_entries(id)
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_faq ON feedback(faq_id);
	CREATE INDEX IF NOT EXISTS idx_feedback_created ON feedback(created_at);

	CREATE TABLE IF NOT EXISTS system_config (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

const entryColumns = `id, question, answer, confidence, status, source, source_id, keywords, category,
	pattern_hash, view_count, feedback_count, helpful_count, not_helpful_count,
	provider_name, response_time_ms, tokens_used, provider_error, created_at, updated_at`

func (c *Client) SaveEntry(ctx context.Context, entry *models.FaqEntry) error {
	return saveEntry(ctx, c.db, entry)
}

func saveEntry(ctx context.Context, ex execer, entry *models.FaqEntry) error {
	keywordsJSON, err := json.Marshal(entry.Keywords)
	if err != nil {
		return fmt.Errorf("failed to marshal keywords: %w", err)
	}

	query := `
		INSERT INTO faq_entries (` + entryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			question = excluded.question,
			answer = excluded.answer,
			confidence = excluded.confidence,
			status = excluded.status,
			keywords = excluded.keywords,
			category = excluded.category,
			view_count = excluded.view_count,
			feedback_count = excluded.feedback_count,
			helpful_count = excluded.helpful_count,
			not_helpful_count = excluded.not_helpful_count,
			updated_at = excluded.updated_at
	`

	_, err = ex.ExecContext(ctx, query,
		entry.ID,
		entry.Question,
		entry.Answer,
		entry.Confidence,
		string(entry.Status),
		string(entry.Source),
		entry.SourceID,
		string(keywordsJSON),
		entry.Category,
		entry.PatternHash,
		entry.ViewCount,
		entry.FeedbackCount,
		entry.HelpfulCount,
		entry.NotHelpfulCount,
		entry.Metadata.ProviderName,
		entry.Metadata.ResponseTimeMs,
		entry.Metadata.TokensUsed,
		entry.Metadata.Error,
		entry.CreatedAt.Unix(),
		entry.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save faq entry: %w", err)
	}

	logger.Debug("FAQ entry saved", zap.String("faq_id", entry.ID), zap.String("status", string(entry.Status)))
	return nil
}

func (c *Client) FindEntry(ctx context.Context, id string) (*models.FaqEntry, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM faq_entries WHERE id = ?`, id)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("faq entry %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get faq entry: %w", err)
	}
	return entry, nil
}

func (c *Client) FindEntries(ctx context.Context, filter models.EntryFilter) ([]models.FaqEntry, error) {
	where, args := entryWhere(filter)

	rows, err := c.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM faq_entries`+where+` ORDER BY created_at ASC, id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find faq entries: %w", err)
	}
	defer rows.Close()

	var entries []models.FaqEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating faq entries: %w", err)
	}

	return entries, nil
}

func (c *Client) CountEntries(ctx context.Context, filter models.EntryFilter) (int, error) {
	where, args := entryWhere(filter)

	var count int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM faq_entries`+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count faq entries: %w", err)
	}
	return count, nil
}

func entryWhere(f models.EntryFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if len(f.Statuses) > 0 {
		placeholders := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		clauses = append(clauses, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if f.Source != "" {
		clauses = append(clauses, "source = ?")
		args = append(args, string(f.Source))
	}
	if f.Category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, f.Category)
	}
	if f.ProviderName != "" {
		clauses = append(clauses, "provider_name = ?")
		args = append(args, f.ProviderName)
	}
	clauses, args = timeRange(clauses, args, "created_at", f.CreatedFrom, f.CreatedTo)
	clauses, args = timeRange(clauses, args, "updated_at", f.UpdatedFrom, f.UpdatedTo)

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func timeRange(clauses []string, args []interface{}, column string, from, to time.Time) ([]string, []interface{}) {
	if !from.IsZero() {
		clauses = append(clauses, column+" >= ?")
		args = append(args, from.Unix())
	}
	if !to.IsZero() {
		clauses = append(clauses, column+" < ?")
		args = append(args, to.Unix())
	}
	return clauses, args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*models.FaqEntry, error) {
	var e models.FaqEntry
	var answer, sourceID, keywordsJSON, category, patternHash, providerName, providerError sql.NullString
	var responseTime sql.NullFloat64
	var tokensUsed sql.NullInt64
	var status, source string
	var createdAt, updatedAt int64

	err := row.Scan(
		&e.ID,
		&e.Question,
		&answer,
		&e.Confidence,
		&status,
		&source,
		&sourceID,
		&keywordsJSON,
		&category,
		&patternHash,
		&e.ViewCount,
		&e.FeedbackCount,
		&e.HelpfulCount,
		&e.NotHelpfulCount,
		&providerName,
		&responseTime,
		&tokensUsed,
		&providerError,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Answer = answer.String
	e.Status = models.EntryStatus(status)
	e.Source = models.Source(source)
	e.SourceID = sourceID.String
	e.Category = category.String
	e.PatternHash = patternHash.String
	e.Metadata = models.EntryMetadata{
		ProviderName:   providerName.String,
		ResponseTimeMs: responseTime.Float64,
		TokensUsed:     int(tokensUsed.Int64),
		Error:          providerError.String,
	}
	if keywordsJSON.Valid && keywordsJSON.String != "" {
		if err := json.Unmarshal([]byte(keywordsJSON.String), &e.Keywords); err != nil {
			logger.Warn("Discarding unreadable keywords", zap.String("faq_id", e.ID), zap.Error(err))
			e.Keywords = nil
		}
	}
	e.CreatedAt = time.Unix(createdAt, 0)
	e.UpdatedAt = time.Unix(updatedAt, 0)

	return &e, nil
}
