package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/faqminer/backend/internal/monitoring"
	"github.com/faqminer/backend/pkg/apperr"
	"github.com/faqminer/backend/pkg/logger"
)

const defaultAlertLimit = 50

type MonitoringHandler struct {
	monitor   *monitoring.Monitor
	scheduler *monitoring.Scheduler
}

func NewMonitoringHandler(monitor *monitoring.Monitor, scheduler *monitoring.Scheduler) *MonitoringHandler {
	return &MonitoringHandler{
		monitor:   monitor,
		scheduler: scheduler,
	}
}

// GetHealth answers 503 when any component is critical so load balancers can
// act on the status code alone.
func (h *MonitoringHandler) GetHealth(c *fiber.Ctx) error {
	health := h.monitor.GetSystemHealth(c.Context())
	status := fiber.StatusOK
	if health.Overall == monitoring.StatusCritical {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(health)
}

// ListAlerts filters by active=true, type or severity, in that order of
// precedence. Without a filter the newest alerts up to limit are returned.
func (h *MonitoringHandler) ListAlerts(c *fiber.Ctx) error {
	store := h.monitor.Store()

	var alerts []monitoring.Alert
	switch {
	case c.QueryBool("active"):
		alerts = store.Active()
	case c.Query("type") != "":
		t, err := monitoring.ParseAlertType(c.Query("type"))
		if err != nil {
			return respondError(c, err, "Invalid alert type")
		}
		alerts = store.ByType(t)
	case c.Query("severity") != "":
		sev, err := monitoring.ParseSeverity(c.Query("severity"))
		if err != nil {
			return respondError(c, err, "Invalid severity")
		}
		alerts = store.BySeverity(sev)
	default:
		limit := c.QueryInt("limit", defaultAlertLimit)
		if limit < 0 {
			return badRequest(c, "limit must not be negative")
		}
		alerts = store.All(limit)
	}

	return c.JSON(fiber.Map{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func (h *MonitoringHandler) GetAlert(c *fiber.Ctx) error {
	a, ok := h.monitor.Store().Get(c.Params("id"))
	if !ok {
		return respondError(c, fmt.Errorf("alert %s: %w", c.Params("id"), apperr.ErrNotFound), "Alert not found")
	}
	return c.JSON(a)
}

func (h *MonitoringHandler) ResolveAlert(c *fiber.Ctx) error {
	id := c.Params("id")
	resolved, err := h.monitor.Store().Resolve(id)
	if err != nil {
		return respondError(c, err, "Failed to resolve alert")
	}

	logger.Info("Alert resolved via API", zap.String("alert_id", id), zap.Bool("changed", resolved))
	return c.JSON(fiber.Map{
		"id":       id,
		"resolved": resolved,
	})
}

func (h *MonitoringHandler) ClearResolved(c *fiber.Ctx) error {
	removed := h.monitor.Store().ClearResolved()
	return c.JSON(fiber.Map{
		"removed": removed,
	})
}

func (h *MonitoringHandler) GetStatistics(c *fiber.Ctx) error {
	return c.JSON(h.monitor.Store().Statistics())
}

func (h *MonitoringHandler) ListTasks(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"tasks": h.scheduler.Status(),
	})
}

// RunCheck triggers a scheduled task now. A task that is already running is
// not started twice; the response reports 409 in that case.
func (h *MonitoringHandler) RunCheck(c *fiber.Ctx) error {
	name := c.Params("name")
	ran, err := h.scheduler.RunNow(c.Context(), name)
	if err != nil {
		return respondError(c, err, "Check failed")
	}
	if !ran {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Check already running",
			"task":  name,
		})
	}
	return c.JSON(fiber.Map{
		"task": name,
		"ran":  true,
	})
}
