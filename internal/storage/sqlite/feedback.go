package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/faqminer/backend/internal/storage/models"
	"github.com/faqminer/backend/pkg/logger"
)

func (c *Client) SaveFeedback(ctx context.Context, record *models.FeedbackRecord) error {
	if err := insertFeedback(ctx, c.db, record); err != nil {
		return err
	}

	logger.Info("Feedback stored",
		zap.String("faq_id", record.FaqID),
		zap.String("feedback_type", record.Type),
	)
	return nil
}

// SaveFeedbackEvent stores the recalibrated entry and its feedback record in
// one transaction.
func (c *Client) SaveFeedbackEvent(ctx context.Context, entry *models.FaqEntry, record *models.FeedbackRecord) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := saveEntry(ctx, tx, entry); err != nil {
		return err
	}
	if err := insertFeedback(ctx, tx, record); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit feedback: %w", err)
	}

	logger.Info("Feedback stored",
		zap.String("faq_id", record.FaqID),
		zap.String("feedback_type", record.Type),
		zap.Float64("confidence", entry.Confidence),
	)
	return nil
}

func insertFeedback(ctx context.Context, ex execer, record *models.FeedbackRecord) error {
	keywordsJSON, _ := json.Marshal(record.SuggestedKeywords)
	contextJSON, _ := json.Marshal(record.Context)

	var rating interface{}
	if record.Rating != nil {
		rating = *record.Rating
	}

	_, err := ex.ExecContext(ctx, `
		INSERT INTO feedback (id, faq_id, feedback_type, rating, comment, suggested_answer,
			suggested_category, suggested_keywords, context, review_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.ID,
		record.FaqID,
		record.Type,
		rating,
		record.Comment,
		record.SuggestedAnswer,
		record.SuggestedCategory,
		string(keywordsJSON),
		string(contextJSON),
		record.ReviewStatus,
		record.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store feedback: %w", err)
	}
	return nil
}

func (c *Client) FindFeedback(ctx context.Context, filter models.FeedbackFilter) ([]models.FeedbackRecord, error) {
	var clauses []string
	var args []interface{}
	if filter.FaqID != "" {
		clauses = append(clauses, "faq_id = ?")
		args = append(args, filter.FaqID)
	}
	clauses, args = timeRange(clauses, args, "created_at", filter.From, filter.To)

	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, faq_id, feedback_type, rating, comment, suggested_answer, suggested_category,
			suggested_keywords, context, review_status, created_at
		FROM feedback`+where+` ORDER BY created_at ASC, rowid ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find feedback: %w", err)
	}
	defer rows.Close()

	var records []models.FeedbackRecord
	for rows.Next() {
		var r models.FeedbackRecord
		var rating sql.NullInt64
		var comment, answer, category, keywordsJSON, contextJSON, reviewStatus sql.NullString
		var createdAt int64

		err := rows.Scan(&r.ID, &r.FaqID, &r.Type, &rating, &comment, &answer, &category,
			&keywordsJSON, &contextJSON, &reviewStatus, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		if rating.Valid {
			v := int(rating.Int64)
			r.Rating = &v
		}
		r.Comment = comment.String
		r.SuggestedAnswer = answer.String
		r.SuggestedCategory = category.String
		r.ReviewStatus = reviewStatus.String
		if keywordsJSON.Valid {
			json.Unmarshal([]byte(keywordsJSON.String), &r.SuggestedKeywords)
		}
		if contextJSON.Valid {
			json.Unmarshal([]byte(contextJSON.String), &r.Context)
		}
		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feedback: %w", err)
	}

	return records, nil
}

func (c *Client) GetConfig(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := c.db.QueryRowContext(ctx, `SELECT value FROM system_config WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get config %s: %w", key, err)
	}
	return []byte(value), true, nil
}

func (c *Client) SetConfig(ctx context.Context, key string, value []byte) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO system_config (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, string(value), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to set config %s: %w", key, err)
	}

	logger.Info("System config updated", zap.String("key", key))
	return nil
}
