package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// Handlers groups everything RegisterRoutes mounts.
type Handlers struct {
	Feedback    *FeedbackHandler
	Ingestion   *IngestionHandler
	Analytics   *AnalyticsHandler
	Monitoring  *MonitoringHandler
	Settings    *SettingsHandler
	AlertStream *AlertStreamHandler
}

func RegisterRoutes(app *fiber.App, h Handlers) {
	api := app.Group("/api/v1")

	api.Post("/feedback", h.Feedback.SubmitFeedback)
	api.Get("/faqs/:id/feedback/stats", h.Feedback.GetStats)
	api.Post("/faqs/:id/improvement", h.Feedback.RecordImprovement)
	api.Get("/performance", h.Feedback.GetPerformance)

	api.Post("/ingest", h.Ingestion.IngestCandidate)

	analytics := api.Group("/analytics")
	analytics.Get("/", h.Analytics.GetComprehensive)
	analytics.Get("/effectiveness", h.Analytics.GetEffectiveness)
	analytics.Get("/providers", h.Analytics.GetProviders)
	analytics.Get("/usage", h.Analytics.GetUsage)
	analytics.Get("/roi", h.Analytics.GetROI)
	analytics.Delete("/cache", h.Analytics.InvalidateCache)

	mon := api.Group("/monitoring")
	mon.Get("/health", h.Monitoring.GetHealth)
	mon.Get("/alerts", h.Monitoring.ListAlerts)
	mon.Get("/alerts/statistics", h.Monitoring.GetStatistics)
	mon.Delete("/alerts/resolved", h.Monitoring.ClearResolved)
	mon.Get("/alerts/:id", h.Monitoring.GetAlert)
	mon.Post("/alerts/:id/resolve", h.Monitoring.ResolveAlert)
	mon.Get("/tasks", h.Monitoring.ListTasks)
	mon.Post("/checks/:name", h.Monitoring.RunCheck)

	api.Get("/settings", h.Settings.GetSettings)
	api.Put("/settings/confidence", h.Settings.UpdateConfidenceThresholds)
	api.Put("/settings/monitoring", h.Settings.UpdateMonitoringThresholds)
	api.Put("/settings/notifications", h.Settings.UpdateNotificationSettings)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/alerts", websocket.New(h.AlertStream.HandleConnection))
}
