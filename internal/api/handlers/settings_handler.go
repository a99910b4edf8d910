package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/faqminer/backend/internal/scoring"
	"github.com/faqminer/backend/internal/settings"
)

type SettingsHandler struct {
	service *settings.Service
}

func NewSettingsHandler(service *settings.Service) *SettingsHandler {
	return &SettingsHandler{
		service: service,
	}
}

func (h *SettingsHandler) GetSettings(c *fiber.Ctx) error {
	return c.JSON(h.service.Snapshot(c.Context()))
}

func (h *SettingsHandler) UpdateConfidenceThresholds(c *fiber.Ctx) error {
	var req scoring.Thresholds
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := h.service.SetConfidenceThresholds(c.Context(), req); err != nil {
		return respondError(c, err, "Failed to update confidence thresholds")
	}
	return c.JSON(h.service.Snapshot(c.Context()))
}

func (h *SettingsHandler) UpdateMonitoringThresholds(c *fiber.Ctx) error {
	var req settings.MonitoringThresholds
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := h.service.SetMonitoringThresholds(c.Context(), req); err != nil {
		return respondError(c, err, "Failed to update monitoring thresholds")
	}
	return c.JSON(h.service.Snapshot(c.Context()))
}

func (h *SettingsHandler) UpdateNotificationSettings(c *fiber.Ctx) error {
	var req settings.NotificationSettings
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := h.service.SetNotificationSettings(c.Context(), req); err != nil {
		return respondError(c, err, "Failed to update notification settings")
	}
	return c.JSON(h.service.Snapshot(c.Context()))
}
