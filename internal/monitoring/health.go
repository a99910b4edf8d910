package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/faqminer/backend/internal/analytics"
	"github.com/faqminer/backend/internal/metrics"
	"github.com/faqminer/backend/internal/settings"
	"github.com/faqminer/backend/internal/storage"
	"github.com/faqminer/backend/internal/storage/models"
	"github.com/faqminer/backend/pkg/apperr"
	"github.com/faqminer/backend/pkg/logger"
)

type Status int

const (
	StatusHealthy Status = iota
	StatusDegraded
	StatusCritical
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusCritical:
		return "critical"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "healthy":
		*s = StatusHealthy
	case "degraded":
		*s = StatusDegraded
	case "critical":
		*s = StatusCritical
	default:
		return fmt.Errorf("%w: unknown status %q", apperr.ErrInvalidInput, string(b))
	}
	return nil
}

const (
	ComponentPipeline    = "pipeline"
	ComponentProviders   = "providers"
	ComponentPersistence = "persistence"
	ComponentQueue       = "queue"

	// ProviderFailingBelow is the success rate under which a provider counts as failing.
	ProviderFailingBelow = 50.0

	DefaultProbeTimeout = 5 * time.Second
)

type ComponentHealth struct {
	Status    Status                 `json:"status"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	LatencyMs int64                  `json:"latencyMs"`
	CheckedAt time.Time              `json:"checkedAt"`
}

type SystemHealth struct {
	Overall    Status                     `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
	LastCheck  time.Time                  `json:"lastCheck"`
}

// Probe checks one component. A returned error marks the component critical,
// except a timeout, which marks it degraded.
type Probe func(ctx context.Context) (ComponentHealth, error)

// AnalyticsSource is the slice of the aggregator the monitor reads.
type AnalyticsSource interface {
	GetLearningEffectiveness(ctx context.Context, period analytics.Period) (*analytics.Effectiveness, error)
	GetProviderPerformance(ctx context.Context, period analytics.Period) (*analytics.ProviderPerformance, error)
}

type ThresholdSource interface {
	Monitoring(ctx context.Context) settings.MonitoringThresholds
}

type HealthChecker struct {
	probes  map[string]Probe
	timeout time.Duration
	now     func() time.Time
}

type HealthDeps struct {
	Analytics    AnalyticsSource
	Entries      storage.EntryRepository
	Pingers      map[string]storage.Pinger
	Thresholds   ThresholdSource
	ProbeTimeout time.Duration
}

// NewHealthChecker registers the pipeline, providers, persistence and queue probes.
func NewHealthChecker(deps HealthDeps) *HealthChecker {
	h := NewHealthCheckerWithProbes(nil, deps.ProbeTimeout)
	h.probes[ComponentPipeline] = pipelineProbe(deps.Analytics, deps.Thresholds)
	h.probes[ComponentProviders] = providersProbe(deps.Analytics)
	h.probes[ComponentPersistence] = persistenceProbe(deps.Pingers)
	h.probes[ComponentQueue] = queueProbe(deps.Entries, deps.Thresholds)
	return h
}

func NewHealthCheckerWithProbes(probes map[string]Probe, timeout time.Duration) *HealthChecker {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	h := &HealthChecker{probes: make(map[string]Probe, len(probes)), timeout: timeout, now: time.Now}
	for name, p := range probes {
		h.probes[name] = p
	}
	return h
}

// GetSystemHealth runs every probe concurrently. It never fails: probe errors
// become component statuses.
func (h *HealthChecker) GetSystemHealth(ctx context.Context) SystemHealth {
	names := make([]string, 0, len(h.probes))
	for name := range h.probes {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]ComponentHealth, len(names))
	var g errgroup.Group
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			results[i] = h.runProbe(ctx, name, h.probes[name])
			return nil
		})
	}
	_ = g.Wait()

	health := SystemHealth{
		Overall:    StatusHealthy,
		Components: make(map[string]ComponentHealth, len(names)),
		LastCheck:  h.now(),
	}
	for i, name := range names {
		c := results[i]
		health.Components[name] = c
		if c.Status > health.Overall {
			health.Overall = c.Status
		}
		metrics.ComponentHealth.WithLabelValues(name).Set(float64(c.Status))
	}
	return health
}

func (h *HealthChecker) runProbe(ctx context.Context, name string, probe Probe) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := h.now()
	type outcome struct {
		health ComponentHealth
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: panic: %v", apperr.ErrProbeFailure, r)}
			}
		}()
		c, err := probe(ctx)
		done <- outcome{health: c, err: err}
	}()

	var res ComponentHealth
	select {
	case o := <-done:
		res = o.health
		if o.err != nil {
			res = probeError(name, o.err)
		}
	case <-ctx.Done():
		res = probeError(name, ctx.Err())
	}

	res.LatencyMs = h.now().Sub(start).Milliseconds()
	res.CheckedAt = h.now()
	return res
}

func probeError(name string, err error) ComponentHealth {
	if errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("Health probe timed out", zap.String("component", name))
		return ComponentHealth{Status: StatusDegraded, Message: "probe timed out"}
	}
	if !errors.Is(err, apperr.ErrProbeFailure) {
		err = fmt.Errorf("%w: %v", apperr.ErrProbeFailure, err)
	}
	logger.Error("Health probe failed", zap.String("component", name), zap.Error(err))
	return ComponentHealth{Status: StatusCritical, Message: err.Error()}
}

func pipelineProbe(src AnalyticsSource, thresholds ThresholdSource) Probe {
	return func(ctx context.Context) (ComponentHealth, error) {
		eff, err := src.GetLearningEffectiveness(ctx, analytics.PeriodDay)
		if err != nil {
			return ComponentHealth{}, err
		}
		floor := thresholds.Monitoring(ctx).PipelineApprovalFloor
		details := map[string]interface{}{
			"entriesLastDay": eff.TotalEntries,
			"approvalRate":   eff.ApprovalRate,
		}

		switch {
		case eff.TotalEntries == 0:
			return ComponentHealth{Status: StatusDegraded, Message: "no entries generated in the last day", Details: details}, nil
		case eff.ApprovalRate < floor:
			return ComponentHealth{
				Status:  StatusDegraded,
				Message: fmt.Sprintf("approval rate %.1f%% below %.0f%%", eff.ApprovalRate, floor),
				Details: details,
			}, nil
		}
		return ComponentHealth{Status: StatusHealthy, Message: "pipeline producing entries", Details: details}, nil
	}
}

func providersProbe(src AnalyticsSource) Probe {
	return func(ctx context.Context) (ComponentHealth, error) {
		perf, err := src.GetProviderPerformance(ctx, analytics.PeriodDay)
		if err != nil {
			return ComponentHealth{}, err
		}
		return ProviderHealth(perf), nil
	}
}

// ProviderHealth is critical when every provider is failing and degraded when
// some are.
func ProviderHealth(perf *analytics.ProviderPerformance) ComponentHealth {
	if len(perf.Providers) == 0 {
		return ComponentHealth{Status: StatusHealthy, Message: "no provider activity"}
	}

	var failing []string
	for _, p := range perf.Providers {
		if p.SuccessRate < ProviderFailingBelow {
			failing = append(failing, p.Provider)
		}
	}
	details := map[string]interface{}{
		"providers": len(perf.Providers),
		"failing":   failing,
	}

	switch {
	case len(failing) == len(perf.Providers):
		return ComponentHealth{Status: StatusCritical, Message: "all providers failing", Details: details}
	case len(failing) > 0:
		return ComponentHealth{
			Status:  StatusDegraded,
			Message: "failing providers: " + strings.Join(failing, ", "),
			Details: details,
		}
	}
	return ComponentHealth{Status: StatusHealthy, Message: "all providers healthy", Details: details}
}

func persistenceProbe(pingers map[string]storage.Pinger) Probe {
	names := make([]string, 0, len(pingers))
	for name := range pingers {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(ctx context.Context) (ComponentHealth, error) {
		for _, name := range names {
			if err := pingers[name].Ping(ctx); err != nil {
				return ComponentHealth{}, fmt.Errorf("%s unreachable: %w", name, err)
			}
		}
		return ComponentHealth{
			Status:  StatusHealthy,
			Message: "reachable",
			Details: map[string]interface{}{"stores": names},
		}, nil
	}
}

func queueProbe(entries storage.EntryRepository, thresholds ThresholdSource) Probe {
	return func(ctx context.Context) (ComponentHealth, error) {
		backlog, err := entries.CountEntries(ctx, models.EntryFilter{
			Statuses: []models.EntryStatus{models.StatusPendingReview},
		})
		if err != nil {
			return ComponentHealth{}, err
		}
		limit := thresholds.Monitoring(ctx).QueueBacklogThreshold
		details := map[string]interface{}{"backlog": backlog, "threshold": limit}

		if backlog > limit {
			return ComponentHealth{
				Status:  StatusDegraded,
				Message: fmt.Sprintf("%d entries awaiting review", backlog),
				Details: details,
			}, nil
		}
		return ComponentHealth{Status: StatusHealthy, Message: fmt.Sprintf("%d entries awaiting review", backlog), Details: details}, nil
	}
}
