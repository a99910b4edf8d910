// Package settings reads the admin-editable tuning blobs from the config store
// and hands them out as typed values, falling back to configured defaults per
// field.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/faqminer/backend/internal/scoring"
	"github.com/faqminer/backend/internal/storage"
	"github.com/faqminer/backend/pkg/apperr"
	"github.com/faqminer/backend/pkg/config"
	"github.com/faqminer/backend/pkg/logger"
)

const (
	KeyConfidenceThresholds = "confidence_thresholds"
	KeyMonitoringThresholds = "monitoring_thresholds"
	KeyNotificationSettings = "notification_settings"

	loadTimeout = 2 * time.Second
)

type MonitoringThresholds struct {
	MinApprovalRate       float64 `json:"minApprovalRate"`
	MaxErrorRate          float64 `json:"maxErrorRate"`
	MaxResponseTimeMs     float64 `json:"maxResponseTime"`
	PipelineApprovalFloor float64 `json:"pipelineApprovalFloor"`
	QueueBacklogThreshold int     `json:"queueBacklogThreshold"`
}

type NotificationSettings struct {
	Enabled     bool     `json:"enabled"`
	AdminEmails []string `json:"adminEmails"`
}

type Snapshot struct {
	Confidence    scoring.Thresholds   `json:"confidenceThresholds"`
	Monitoring    MonitoringThresholds `json:"monitoringThresholds"`
	Notifications NotificationSettings `json:"notificationSettings"`
}

// DefaultsFromConfig builds the fallback snapshot from static configuration.
func DefaultsFromConfig(cfg *config.Config) Snapshot {
	return Snapshot{
		Confidence: scoring.Thresholds{
			MinConfidenceForReview:      cfg.Scoring.MinConfidenceForReview,
			MinConfidenceForAutoPublish: cfg.Scoring.MinConfidenceForAutoPublish,
		}.Normalize(),
		Monitoring: MonitoringThresholds{
			MinApprovalRate:       cfg.Monitoring.MinApprovalRate,
			MaxErrorRate:          cfg.Monitoring.MaxErrorRate,
			MaxResponseTimeMs:     cfg.Monitoring.MaxResponseTimeMs,
			PipelineApprovalFloor: cfg.Monitoring.PipelineApprovalFloor,
			QueueBacklogThreshold: cfg.Monitoring.QueueBacklogThreshold,
		},
		Notifications: NotificationSettings{
			Enabled:     cfg.Notifications.Enabled,
			AdminEmails: append([]string(nil), cfg.Notifications.AdminEmails...),
		},
	}
}

// The blob shapes use pointers so absent fields keep their defaults.
type confidenceBlob struct {
	MinConfidenceForReview      *float64 `json:"minConfidenceForReview"`
	MinConfidenceForAutoPublish *float64 `json:"minConfidenceForAutoPublish"`
}

type monitoringBlob struct {
	MinApprovalRate       *float64 `json:"minApprovalRate"`
	MaxErrorRate          *float64 `json:"maxErrorRate"`
	MaxResponseTimeMs     *float64 `json:"maxResponseTime"`
	PipelineApprovalFloor *float64 `json:"pipelineApprovalFloor"`
	QueueBacklogThreshold *int     `json:"queueBacklogThreshold"`
}

type notificationBlob struct {
	Enabled     *bool    `json:"enabled"`
	AdminEmails []string `json:"adminEmails"`
}

type Service struct {
	store    storage.ConfigStore
	defaults Snapshot
	ttl      time.Duration
	now      func() time.Time

	mu       sync.Mutex
	current  *Snapshot
	loadedAt time.Time
}

func NewService(store storage.ConfigStore, defaults Snapshot, ttl time.Duration) *Service {
	return &Service{
		store:    store,
		defaults: defaults,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Snapshot returns the settings in force, reloading from the store once the
// cached copy is older than the TTL. Store errors keep the previous snapshot.
func (s *Service) Snapshot(ctx context.Context) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.now().Sub(s.loadedAt) < s.ttl {
		return *s.current
	}

	snap, err := s.load(ctx)
	if err != nil {
		logger.Warn("Failed to load settings, keeping previous values", zap.Error(err))
		if s.current != nil {
			return *s.current
		}
		return s.defaults
	}

	s.current = &snap
	s.loadedAt = s.now()
	return snap
}

// ConfidenceThresholds makes the service a scoring.ThresholdProvider.
func (s *Service) ConfidenceThresholds() scoring.Thresholds {
	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()
	return s.Snapshot(ctx).Confidence
}

func (s *Service) Monitoring(ctx context.Context) MonitoringThresholds {
	return s.Snapshot(ctx).Monitoring
}

func (s *Service) Notifications(ctx context.Context) NotificationSettings {
	return s.Snapshot(ctx).Notifications
}

func (s *Service) Invalidate() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

func (s *Service) load(ctx context.Context) (Snapshot, error) {
	snap := s.defaults
	snap.Notifications.AdminEmails = append([]string(nil), s.defaults.Notifications.AdminEmails...)

	var cb confidenceBlob
	if ok, err := s.read(ctx, KeyConfidenceThresholds, &cb); err != nil {
		return Snapshot{}, err
	} else if ok {
		if cb.MinConfidenceForReview != nil {
			snap.Confidence.MinConfidenceForReview = *cb.MinConfidenceForReview
		}
		if cb.MinConfidenceForAutoPublish != nil {
			snap.Confidence.MinConfidenceForAutoPublish = *cb.MinConfidenceForAutoPublish
		}
	}
	snap.Confidence = snap.Confidence.Normalize()

	var mb monitoringBlob
	if ok, err := s.read(ctx, KeyMonitoringThresholds, &mb); err != nil {
		return Snapshot{}, err
	} else if ok {
		m := &snap.Monitoring
		if mb.MinApprovalRate != nil {
			m.MinApprovalRate = *mb.MinApprovalRate
		}
		if mb.MaxErrorRate != nil {
			m.MaxErrorRate = *mb.MaxErrorRate
		}
		if mb.MaxResponseTimeMs != nil {
			m.MaxResponseTimeMs = *mb.MaxResponseTimeMs
		}
		if mb.PipelineApprovalFloor != nil {
			m.PipelineApprovalFloor = *mb.PipelineApprovalFloor
		}
		if mb.QueueBacklogThreshold != nil {
			m.QueueBacklogThreshold = *mb.QueueBacklogThreshold
		}
	}

	var nb notificationBlob
	if ok, err := s.read(ctx, KeyNotificationSettings, &nb); err != nil {
		return Snapshot{}, err
	} else if ok {
		if nb.Enabled != nil {
			snap.Notifications.Enabled = *nb.Enabled
		}
		if nb.AdminEmails != nil {
			snap.Notifications.AdminEmails = validEmails(nb.AdminEmails)
		}
	}

	return snap, nil
}

// read decodes one blob. A malformed blob is logged and treated as absent.
func (s *Service) read(ctx context.Context, key string, dst interface{}) (bool, error) {
	raw, ok, err := s.store.GetConfig(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if !ok || len(raw) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		logger.Warn("Ignoring malformed settings blob", zap.String("key", key), zap.Error(err))
		return false, nil
	}
	return true, nil
}

func (s *Service) SetConfidenceThresholds(ctx context.Context, t scoring.Thresholds) error {
	if t.MinConfidenceForReview < 0 || t.MinConfidenceForAutoPublish > 100 ||
		t.MinConfidenceForReview > t.MinConfidenceForAutoPublish {
		return fmt.Errorf("%w: thresholds must satisfy 0 <= review <= publish <= 100", apperr.ErrInvalidInput)
	}
	return s.write(ctx, KeyConfidenceThresholds, t)
}

func (s *Service) SetMonitoringThresholds(ctx context.Context, m MonitoringThresholds) error {
	if m.MinApprovalRate < 0 || m.MinApprovalRate > 100 || m.MaxErrorRate < 0 || m.MaxErrorRate > 100 ||
		m.PipelineApprovalFloor < 0 || m.PipelineApprovalFloor > 100 ||
		m.MaxResponseTimeMs <= 0 || m.QueueBacklogThreshold < 0 {
		return fmt.Errorf("%w: monitoring thresholds out of range", apperr.ErrInvalidInput)
	}
	return s.write(ctx, KeyMonitoringThresholds, m)
}

func (s *Service) SetNotificationSettings(ctx context.Context, n NotificationSettings) error {
	for _, addr := range n.AdminEmails {
		if _, err := mail.ParseAddress(addr); err != nil {
			return fmt.Errorf("%w: invalid admin email %q", apperr.ErrInvalidInput, addr)
		}
	}
	return s.write(ctx, KeyNotificationSettings, n)
}

func (s *Service) write(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := s.store.SetConfig(ctx, key, data); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	s.Invalidate()
	logger.Info("Settings updated", zap.String("key", key))
	return nil
}

func validEmails(in []string) []string {
	out := make([]string, 0, len(in))
	for _, addr := range in {
		addr = strings.TrimSpace(addr)
		if _, err := mail.ParseAddress(addr); err != nil {
			logger.Warn("Dropping invalid admin email", zap.String("email", addr))
			continue
		}
		out = append(out, addr)
	}
	return out
}
