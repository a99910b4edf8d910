// Package neo4j records which conversations and tickets a learning pattern was
// observed in, and which FAQ entry answers it.
package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/faqminer/backend/internal/metrics"
	"github.com/faqminer/backend/internal/storage/models"
	"github.com/faqminer/backend/pkg/circuitbreaker"
	"github.com/faqminer/backend/pkg/logger"
	"github.com/faqminer/backend/pkg/retry"
)

const component = "neo4j"

type Client struct {
	driver   neo4j.DriverWithContext
	database string
	cb       *circuitbreaker.Breaker
	policy   retry.Policy
}

// PatternLink is one observation of a pattern and the entry drafted for it.
type PatternLink struct {
	PatternHash string
	PatternText string
	Category    string
	Frequency   int
	Sources     []models.PatternSource
	FaqID       string
	FaqStatus   models.EntryStatus
	Confidence  float64
}

func NewClient(ctx context.Context, uri, username, password, database string) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("failed to verify connectivity: %w", err)
	}

	policy := retry.DefaultPolicy()
	policy.MaxDelay = 3 * time.Second
	policy.Logger = logger.Named(component)

	logger.Info("Neo4j client initialized", zap.String("uri", uri))

	return &Client{
		driver:   driver,
		database: database,
		cb: circuitbreaker.New(component, circuitbreaker.Config{
			HalfOpenRequests: 3,
			OpenTimeout:      20 * time.Second,
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Logger:           logger.Named(component),
		}),
		policy: policy,
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("failed to reach neo4j: %w", err)
	}
	return nil
}

func (c *Client) executeWrite(ctx context.Context, work neo4j.ManagedTransactionWork) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return c.cb.Execute(ctx, func(ctx context.Context) error {
		return retry.Do(ctx, c.policy, func(ctx context.Context) error {
			session := c.driver.NewSession(ctx, neo4j.SessionConfig{
				DatabaseName: c.database,
				AccessMode:   neo4j.AccessModeWrite,
			})
			defer session.Close(ctx)

			_, err := session.ExecuteWrite(ctx, work)
			return err
		})
	})
}

func (c *Client) EnsureConstraints(ctx context.Context) error {
	statements := []string{
		`CREATE CONSTRAINT pattern_hash IF NOT EXISTS FOR (p:Pattern) REQUIRE p.hash IS UNIQUE`,
		`CREATE CONSTRAINT faq_id IF NOT EXISTS FOR (f:Faq) REQUIRE f.id IS UNIQUE`,
	}
	for _, stmt := range statements {
		stmt := stmt
		err := c.executeWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			_, err := tx.Run(ctx, stmt, nil)
			return nil, err
		})
		if err != nil {
			return fmt.Errorf("failed to create constraint: %w", err)
		}
	}
	return nil
}

// RecordPattern merges the pattern node, an OBSERVED_IN edge per source and,
// when an entry was drafted, an ANSWERED_BY edge to it.
func (c *Client) RecordPattern(ctx context.Context, link PatternLink) error {
	sources := make([]map[string]any, 0, len(link.Sources))
	for _, s := range link.Sources {
		sources = append(sources, map[string]any{
			"type":      s.Type,
			"id":        s.ID,
			"relevance": s.Relevance,
		})
	}

	params := map[string]any{
		"hash":       link.PatternHash,
		"text":       link.PatternText,
		"category":   link.Category,
		"frequency":  link.Frequency,
		"sources":    sources,
		"faq_id":     link.FaqID,
		"status":     string(link.FaqStatus),
		"confidence": link.Confidence,
	}

	err := c.executeWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MERGE (p:Pattern {hash: $hash})
			SET p.text = $text,
			    p.category = $category,
			    p.frequency = $frequency,
			    p.updated_at = timestamp()
			WITH p
			UNWIND $sources AS src
			MERGE (s:Source {type: src.type, id: src.id})
			MERGE (p)-[r:OBSERVED_IN]->(s)
			SET r.relevance = src.relevance
		`, params)
		if err != nil {
			return nil, err
		}

		if link.FaqID == "" {
			return nil, nil
		}
		_, err = tx.Run(ctx, `
			MATCH (p:Pattern {hash: $hash})
			MERGE (f:Faq {id: $faq_id})
			SET f.status = $status,
			    f.confidence = $confidence
			MERGE (p)-[:ANSWERED_BY]->(f)
		`, params)
		return nil, err
	})
	if err != nil {
		metrics.PatternGraphWrites.WithLabelValues("failed").Inc()
		return fmt.Errorf("failed to record pattern: %w", err)
	}

	metrics.PatternGraphWrites.WithLabelValues("ok").Inc()
	logger.Debug("Pattern recorded in graph",
		zap.String("pattern_hash", link.PatternHash),
		zap.String("faq_id", link.FaqID),
		zap.Int("sources", len(sources)),
	)
	return nil
}
