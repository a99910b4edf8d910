package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/faqminer/backend/internal/feedback"
	"github.com/faqminer/backend/pkg/logger"
)

type FeedbackHandler struct {
	processor *feedback.Processor
}

func NewFeedbackHandler(processor *feedback.Processor) *FeedbackHandler {
	return &FeedbackHandler{
		processor: processor,
	}
}

func (h *FeedbackHandler) SubmitFeedback(c *fiber.Ctx) error {
	var req feedback.Feedback
	if err := c.BodyParser(&req); err != nil {
		logger.Warn("Failed to parse feedback body", zap.Error(err))
		return badRequest(c, "Invalid request body")
	}

	result, err := h.processor.ProcessFeedback(c.Context(), req)
	if err != nil {
		return respondError(c, err, "Failed to process feedback")
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *FeedbackHandler) GetStats(c *fiber.Ctx) error {
	stats, err := h.processor.GetFeedbackStats(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err, "Failed to load feedback stats")
	}
	return c.JSON(stats)
}

// GetPerformance reports on one entry when faqId is given, otherwise on every
// published entry.
func (h *FeedbackHandler) GetPerformance(c *fiber.Ctx) error {
	var faqID *string
	if id := c.Query("faqId"); id != "" {
		faqID = &id
	}

	report, err := h.processor.GetPerformanceMetrics(c.Context(), faqID)
	if err != nil {
		return respondError(c, err, "Failed to compute performance metrics")
	}
	return c.JSON(report)
}

func (h *FeedbackHandler) RecordImprovement(c *fiber.Ctx) error {
	entry, err := h.processor.RecordImprovement(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err, "Failed to record improvement")
	}
	return c.JSON(entry)
}
