package handlers

import (
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/faqminer/backend/internal/monitoring"
	"github.com/faqminer/backend/pkg/logger"
)

const alertStreamBuffer = 16

// AlertStreamHandler pushes every new alert to connected websocket clients.
type AlertStreamHandler struct {
	store *monitoring.AlertStore
}

func NewAlertStreamHandler(store *monitoring.AlertStore) *AlertStreamHandler {
	return &AlertStreamHandler{
		store: store,
	}
}

func (h *AlertStreamHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("Alert stream connected")

	alerts, unsubscribe := h.store.Subscribe(alertStreamBuffer)
	defer func() {
		unsubscribe()
		c.Close()
		logger.Info("Alert stream closed")
	}()

	// The reader only notices the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := h.sendSnapshot(c); err != nil {
		logger.Warn("Failed to send alert snapshot", zap.Error(err))
		return
	}

	for {
		select {
		case <-closed:
			return
		case a, ok := <-alerts:
			if !ok {
				return
			}
			if err := h.sendAlert(c, a); err != nil {
				logger.Warn("Failed to push alert", zap.String("alert_id", a.ID), zap.Error(err))
				return
			}
		}
	}
}

func (h *AlertStreamHandler) sendSnapshot(c *websocket.Conn) error {
	msg := map[string]interface{}{
		"type":   "snapshot",
		"alerts": h.store.Active(),
	}

	return c.WriteJSON(msg)
}

func (h *AlertStreamHandler) sendAlert(c *websocket.Conn, a monitoring.Alert) error {
	msg := map[string]interface{}{
		"type":  "alert",
		"alert": a,
	}

	return c.WriteJSON(msg)
}
