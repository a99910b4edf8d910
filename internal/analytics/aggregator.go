// Package analytics aggregates FAQ entries and learning patterns into
// time-windowed reports. Everything here is read-only.
package analytics

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/faqminer/backend/internal/metrics"
	"github.com/faqminer/backend/internal/storage"
	"github.com/faqminer/backend/internal/storage/models"
	"github.com/faqminer/backend/pkg/apperr"
	"github.com/faqminer/backend/pkg/logger"
)

type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodAll   Period = "all"
)

func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodAll:
		return Period(s), nil
	case "":
		return PeriodWeek, nil
	}
	return "", fmt.Errorf("%w: unknown period %q", apperr.ErrInvalidInput, s)
}

// Days is the window length. PeriodAll has no window and reports 0.
func (p Period) Days() int {
	switch p {
	case PeriodDay:
		return 1
	case PeriodWeek:
		return 7
	case PeriodMonth:
		return 30
	default:
		return 0
	}
}

// Window returns [from, to) ending at now. For PeriodAll from is zero, which
// the repository filters read as unbounded.
func (p Period) Window(now time.Time) (from, to time.Time) {
	days := p.Days()
	if days == 0 {
		return time.Time{}, now
	}
	return now.AddDate(0, 0, -days), now
}

type ROIConstants struct {
	TicketHandlingMinutes float64 `json:"ticketHandlingMinutes"`
	CostPerTicket         float64 `json:"costPerTicket"`
}

func DefaultROIConstants() ROIConstants {
	return ROIConstants{TicketHandlingMinutes: 15, CostPerTicket: 25}
}

// TicketVolume counts support tickets opened in [from, to).
type TicketVolume interface {
	CountTickets(ctx context.Context, from, to time.Time) (int, error)
}

// EntryTicketVolume approximates ticket volume by the ticket-sourced candidates
// mined in the window.
type EntryTicketVolume struct {
	Entries storage.EntryRepository
}

func (v EntryTicketVolume) CountTickets(ctx context.Context, from, to time.Time) (int, error) {
	return v.Entries.CountEntries(ctx, models.EntryFilter{
		Source:      models.SourceTicket,
		CreatedFrom: from,
		CreatedTo:   to,
	})
}

// Cache stores rendered reports. The redis client implements it.
type Cache interface {
	GetReport(ctx context.Context, key string, report interface{}) (bool, error)
	SetReport(ctx context.Context, key string, report interface{}, ttl time.Duration) error
}

type Config struct {
	ROI      ROIConstants
	CacheTTL time.Duration
}

type Aggregator struct {
	entries  storage.EntryRepository
	patterns storage.PatternRepository
	tickets  TicketVolume
	cache    Cache
	cfg      Config
	now      func() time.Time
}

// NewAggregator wires the aggregator. tickets defaults to EntryTicketVolume and
// cache may be nil.
func NewAggregator(entries storage.EntryRepository, patterns storage.PatternRepository, tickets TicketVolume, cache Cache, cfg Config) *Aggregator {
	if tickets == nil {
		tickets = EntryTicketVolume{Entries: entries}
	}
	if cfg.ROI.TicketHandlingMinutes <= 0 {
		cfg.ROI.TicketHandlingMinutes = DefaultROIConstants().TicketHandlingMinutes
	}
	if cfg.ROI.CostPerTicket <= 0 {
		cfg.ROI.CostPerTicket = DefaultROIConstants().CostPerTicket
	}
	return &Aggregator{
		entries:  entries,
		patterns: patterns,
		tickets:  tickets,
		cache:    cache,
		cfg:      cfg,
		now:      time.Now,
	}
}

type Comprehensive struct {
	Period        Period               `json:"period"`
	GeneratedAt   time.Time            `json:"generatedAt"`
	Effectiveness *Effectiveness       `json:"effectiveness"`
	Providers     *ProviderPerformance `json:"providers"`
	Usage         *Usage               `json:"usage"`
	ROI           *ROI                 `json:"roi"`
}

// GetComprehensiveAnalytics builds the four reports concurrently. A cached copy
// younger than CacheTTL is returned when a cache is configured.
func (a *Aggregator) GetComprehensiveAnalytics(ctx context.Context, period Period) (*Comprehensive, error) {
	cacheKey := "comprehensive:" + string(period)
	if a.cache != nil && a.cfg.CacheTTL > 0 {
		var cached Comprehensive
		found, err := a.cache.GetReport(ctx, cacheKey, &cached)
		if err != nil {
			logger.Warn("Analytics cache read failed", zap.Error(err))
		}
		if found {
			metrics.CacheHits.WithLabelValues("analytics").Inc()
			return &cached, nil
		}
		metrics.CacheMisses.WithLabelValues("analytics").Inc()
	}

	out := &Comprehensive{Period: period, GeneratedAt: a.now()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := a.GetLearningEffectiveness(gctx, period)
		out.Effectiveness = r
		return err
	})
	g.Go(func() error {
		r, err := a.GetProviderPerformance(gctx, period)
		out.Providers = r
		return err
	})
	g.Go(func() error {
		r, err := a.GetFaqUsageMetrics(gctx, period)
		out.Usage = r
		return err
	})
	g.Go(func() error {
		r, err := a.GetROIMetrics(gctx, period)
		out.ROI = r
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to build comprehensive analytics: %w", err)
	}

	if a.cache != nil && a.cfg.CacheTTL > 0 {
		if err := a.cache.SetReport(ctx, cacheKey, out, a.cfg.CacheTTL); err != nil {
			logger.Warn("Analytics cache write failed", zap.Error(err))
		}
	}

	return out, nil
}
