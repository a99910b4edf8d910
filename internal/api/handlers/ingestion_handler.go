package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/faqminer/backend/internal/ingestion"
	"github.com/faqminer/backend/pkg/logger"
)

type IngestionHandler struct {
	processor *ingestion.Processor
}

func NewIngestionHandler(processor *ingestion.Processor) *IngestionHandler {
	return &IngestionHandler{
		processor: processor,
	}
}

func (h *IngestionHandler) IngestCandidate(c *fiber.Ctx) error {
	var req ingestion.Candidate
	if err := c.BodyParser(&req); err != nil {
		logger.Warn("Failed to parse candidate body", zap.Error(err))
		return badRequest(c, "Invalid request body")
	}

	outcome, err := h.processor.Ingest(c.Context(), req)
	if err != nil {
		return respondError(c, err, "Failed to ingest candidate")
	}

	return c.Status(fiber.StatusCreated).JSON(outcome)
}
