package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/faqminer/backend/internal/analytics"
	"github.com/faqminer/backend/pkg/logger"
)

// ReportInvalidator drops cached reports. The redis cache implements it.
type ReportInvalidator interface {
	InvalidateReports(ctx context.Context) error
}

type AnalyticsHandler struct {
	aggregator *analytics.Aggregator
	cache      ReportInvalidator
}

// NewAnalyticsHandler wires the report endpoints. cache may be nil when
// reports are not cached.
func NewAnalyticsHandler(aggregator *analytics.Aggregator, cache ReportInvalidator) *AnalyticsHandler {
	return &AnalyticsHandler{
		aggregator: aggregator,
		cache:      cache,
	}
}

func (h *AnalyticsHandler) GetEffectiveness(c *fiber.Ctx) error {
	return h.report(c, func(ctx context.Context, p analytics.Period) (interface{}, error) {
		return h.aggregator.GetLearningEffectiveness(ctx, p)
	})
}

func (h *AnalyticsHandler) GetProviders(c *fiber.Ctx) error {
	return h.report(c, func(ctx context.Context, p analytics.Period) (interface{}, error) {
		return h.aggregator.GetProviderPerformance(ctx, p)
	})
}

func (h *AnalyticsHandler) GetUsage(c *fiber.Ctx) error {
	return h.report(c, func(ctx context.Context, p analytics.Period) (interface{}, error) {
		return h.aggregator.GetFaqUsageMetrics(ctx, p)
	})
}

func (h *AnalyticsHandler) GetROI(c *fiber.Ctx) error {
	return h.report(c, func(ctx context.Context, p analytics.Period) (interface{}, error) {
		return h.aggregator.GetROIMetrics(ctx, p)
	})
}

func (h *AnalyticsHandler) GetComprehensive(c *fiber.Ctx) error {
	return h.report(c, func(ctx context.Context, p analytics.Period) (interface{}, error) {
		return h.aggregator.GetComprehensiveAnalytics(ctx, p)
	})
}

func (h *AnalyticsHandler) report(c *fiber.Ctx, build func(context.Context, analytics.Period) (interface{}, error)) error {
	period, err := analytics.ParsePeriod(c.Query("period"))
	if err != nil {
		return respondError(c, err, "Invalid period")
	}

	r, err := build(c.Context(), period)
	if err != nil {
		return respondError(c, err, "Failed to build analytics report")
	}
	return c.JSON(r)
}

func (h *AnalyticsHandler) InvalidateCache(c *fiber.Ctx) error {
	if h.cache == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}
	if err := h.cache.InvalidateReports(c.Context()); err != nil {
		return respondError(c, err, "Failed to invalidate analytics cache")
	}
	logger.Info("Analytics cache invalidated")
	return c.SendStatus(fiber.StatusNoContent)
}
