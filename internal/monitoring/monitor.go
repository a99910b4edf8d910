package monitoring

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/faqminer/backend/internal/analytics"
	"github.com/faqminer/backend/pkg/logger"
)

const (
	TaskHealthCheck      = "health_check"
	TaskPerformanceCheck = "performance_check"
)

// Monitor turns health snapshots and analytics into alerts.
type Monitor struct {
	store      *AlertStore
	health     *HealthChecker
	analytics  AnalyticsSource
	thresholds ThresholdSource
	notifier   *Notifier
}

func NewMonitor(store *AlertStore, health *HealthChecker, src AnalyticsSource, thresholds ThresholdSource, notifier *Notifier) *Monitor {
	return &Monitor{
		store:      store,
		health:     health,
		analytics:  src,
		thresholds: thresholds,
		notifier:   notifier,
	}
}

// Schedule registers the periodic health and performance checks.
func (m *Monitor) Schedule(s *Scheduler, healthEvery, performanceEvery time.Duration) error {
	if err := s.Register(TaskHealthCheck, healthEvery, m.RunHealthCheck); err != nil {
		return err
	}
	return s.Register(TaskPerformanceCheck, performanceEvery, m.RunPerformanceCheck)
}

func (m *Monitor) Store() *AlertStore {
	return m.store
}

func (m *Monitor) GetSystemHealth(ctx context.Context) SystemHealth {
	return m.health.GetSystemHealth(ctx)
}

// RunHealthCheck raises a SYSTEM_HEALTH alert unless every component is healthy.
func (m *Monitor) RunHealthCheck(ctx context.Context) error {
	h := m.health.GetSystemHealth(ctx)

	var severity Severity
	switch h.Overall {
	case StatusCritical:
		severity = SeverityCritical
	case StatusDegraded:
		severity = SeverityWarning
	default:
		logger.Debug("System healthy")
		return nil
	}

	meta := make(map[string]interface{}, len(h.Components))
	for name, c := range h.Components {
		if c.Status != StatusHealthy {
			meta[name] = c.Status.String() + ": " + c.Message
		}
	}

	m.Raise(ctx, Alert{
		Type:     AlertSystemHealth,
		Severity: severity,
		Title:    fmt.Sprintf("System health %s", h.Overall),
		Message:  fmt.Sprintf("%d of %d components unhealthy", len(meta), len(h.Components)),
		Metadata: meta,
	})
	return nil
}

// RunPerformanceCheck compares the last day's analytics with the monitoring
// thresholds.
func (m *Monitor) RunPerformanceCheck(ctx context.Context) error {
	th := m.thresholds.Monitoring(ctx)

	eff, err := m.analytics.GetLearningEffectiveness(ctx, analytics.PeriodDay)
	if err != nil {
		return fmt.Errorf("failed to load effectiveness: %w", err)
	}
	if eff.TotalEntries > 0 && eff.ApprovalRate < th.MinApprovalRate {
		m.Raise(ctx, Alert{
			Type:     AlertLowApprovalRate,
			Severity: SeverityWarning,
			Title:    "Low approval rate",
			Message:  fmt.Sprintf("Approval rate %.1f%% is below %.1f%%", eff.ApprovalRate, th.MinApprovalRate),
			Metadata: map[string]interface{}{
				"approvalRate": eff.ApprovalRate,
				"threshold":    th.MinApprovalRate,
				"totalEntries": eff.TotalEntries,
			},
		})
	}

	perf, err := m.analytics.GetProviderPerformance(ctx, analytics.PeriodDay)
	if err != nil {
		return fmt.Errorf("failed to load provider performance: %w", err)
	}
	for _, p := range perf.Providers {
		if p.ErrorRate > th.MaxErrorRate {
			m.Raise(ctx, Alert{
				Type:     AlertHighErrorRate,
				Severity: SeverityError,
				Title:    fmt.Sprintf("High error rate for %s", p.Provider),
				Message:  fmt.Sprintf("Error rate %.1f%% exceeds %.1f%%", p.ErrorRate, th.MaxErrorRate),
				Metadata: map[string]interface{}{
					"provider":  p.Provider,
					"errorRate": p.ErrorRate,
					"threshold": th.MaxErrorRate,
				},
			})
		}
		if p.AvgResponseTimeMs > th.MaxResponseTimeMs {
			m.Raise(ctx, Alert{
				Type:     AlertPerformanceDegradation,
				Severity: SeverityWarning,
				Title:    fmt.Sprintf("Slow responses from %s", p.Provider),
				Message:  fmt.Sprintf("Average response time %.0fms exceeds %.0fms", p.AvgResponseTimeMs, th.MaxResponseTimeMs),
				Metadata: map[string]interface{}{
					"provider":          p.Provider,
					"avgResponseTimeMs": p.AvgResponseTimeMs,
					"threshold":         th.MaxResponseTimeMs,
				},
			})
		}
	}
	return nil
}

// Raise records an alert and notifies for error and critical severities. A
// failed notification never undoes the alert. While an unresolved alert with the
// same type, severity and title is held, that alert is returned and nothing is
// recorded or sent.
func (m *Monitor) Raise(ctx context.Context, a Alert) Alert {
	stored, added := m.store.AddUnlessActive(a)
	if !added {
		logger.Debug("Alert already active",
			zap.String("alert_id", stored.ID),
			zap.String("type", stored.Type.String()))
		return stored
	}

	logger.Warn("Alert raised",
		zap.String("alert_id", stored.ID),
		zap.String("type", stored.Type.String()),
		zap.String("severity", stored.Severity.String()),
		zap.String("title", stored.Title))

	if stored.Severity.Notifiable() {
		_ = m.notifier.Notify(ctx, stored)
	}
	return stored
}
