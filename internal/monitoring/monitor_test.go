package monitoring

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faqminer/backend/internal/analytics"
	"github.com/faqminer/backend/internal/settings"
	"github.com/faqminer/backend/pkg/apperr"
)

type sentMail struct {
	to       []string
	subject  string
	body     string
	priority string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeMailer) Send(ctx context.Context, to []string, subject, htmlBody, priority string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: htmlBody, priority: priority})
	return nil
}

type staticRecipients struct{ n settings.NotificationSettings }

func (s staticRecipients) Notifications(ctx context.Context) settings.NotificationSettings { return s.n }

func admins() staticRecipients {
	return staticRecipients{n: settings.NotificationSettings{Enabled: true, AdminEmails: []string{"ops@example.com"}}}
}

func newTestMonitor(src AnalyticsSource, probes map[string]Probe, mailer Mailer) *Monitor {
	store, _ := newTestStore(50)
	health := NewHealthCheckerWithProbes(probes, time.Second)
	return NewMonitor(store, health, src, defaultThresholds(), NewNotifier(mailer, admins(), time.Second))
}

func statusProbe(s Status) Probe {
	return func(ctx context.Context) (ComponentHealth, error) {
		return ComponentHealth{Status: s, Message: s.String()}, nil
	}
}

func TestRunPerformanceCheck_RaisesPerRule(t *testing.T) {
	src := &fakeAnalytics{
		eff: &analytics.Effectiveness{TotalEntries: 20, ApprovalRate: 35},
		perf: &analytics.ProviderPerformance{Providers: []analytics.ProviderStats{
			{Provider: "alpha", SuccessRate: 70, ErrorRate: 30, AvgResponseTimeMs: 6200},
			{Provider: "beta", SuccessRate: 90, ErrorRate: 10, AvgResponseTimeMs: 900},
		}},
	}
	mailer := &fakeMailer{}
	m := newTestMonitor(src, nil, mailer)

	require.NoError(t, m.RunPerformanceCheck(context.Background()))

	alerts := m.Store().All(0)
	require.Len(t, alerts, 3)
	assert.Equal(t, AlertPerformanceDegradation, alerts[0].Type)
	assert.Equal(t, SeverityWarning, alerts[0].Severity)
	assert.Equal(t, AlertHighErrorRate, alerts[1].Type)
	assert.Equal(t, SeverityError, alerts[1].Severity)
	assert.Equal(t, "alpha", alerts[1].Metadata["provider"])
	assert.Equal(t, AlertLowApprovalRate, alerts[2].Type)
	assert.Equal(t, SeverityWarning, alerts[2].Severity)

	require.Len(t, mailer.sent, 1, "only the error alert notifies")
	assert.Equal(t, PriorityNormal, mailer.sent[0].priority)
	assert.Equal(t, []string{"ops@example.com"}, mailer.sent[0].to)
	assert.True(t, strings.HasPrefix(mailer.sent[0].subject, "[error]"))
}

func TestRunPerformanceCheck_NoEntriesSkipsApprovalRule(t *testing.T) {
	src := &fakeAnalytics{
		eff:  &analytics.Effectiveness{},
		perf: &analytics.ProviderPerformance{},
	}
	m := newTestMonitor(src, nil, &fakeMailer{})

	require.NoError(t, m.RunPerformanceCheck(context.Background()))
	assert.Empty(t, m.Store().All(0))
}

func TestRunPerformanceCheck_AnalyticsError(t *testing.T) {
	src := &fakeAnalytics{effErr: errors.New("db locked")}
	m := newTestMonitor(src, nil, &fakeMailer{})

	err := m.RunPerformanceCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db locked")
}

func TestRunHealthCheck(t *testing.T) {
	tests := []struct {
		name     string
		probes   map[string]Probe
		wantN    int
		severity Severity
		mails    int
		priority string
	}{
		{"healthy raises nothing", map[string]Probe{"a": statusProbe(StatusHealthy)}, 0, 0, 0, ""},
		{"degraded warns", map[string]Probe{"a": statusProbe(StatusHealthy), "b": statusProbe(StatusDegraded)}, 1, SeverityWarning, 0, ""},
		{"critical notifies high", map[string]Probe{"a": statusProbe(StatusCritical), "b": statusProbe(StatusDegraded)}, 1, SeverityCritical, 1, PriorityHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mailer := &fakeMailer{}
			m := newTestMonitor(healthyAnalytics(), tt.probes, mailer)

			require.NoError(t, m.RunHealthCheck(context.Background()))

			alerts := m.Store().All(0)
			require.Len(t, alerts, tt.wantN)
			require.Len(t, mailer.sent, tt.mails)
			if tt.wantN == 0 {
				return
			}
			assert.Equal(t, AlertSystemHealth, alerts[0].Type)
			assert.Equal(t, tt.severity, alerts[0].Severity)
			assert.NotContains(t, alerts[0].Metadata, "a", "healthy components are left out")
			if tt.mails > 0 {
				assert.Equal(t, tt.priority, mailer.sent[0].priority)
				assert.Contains(t, mailer.sent[0].body, alerts[0].ID)
			}
		})
	}
}

func TestRaise_DispatchFailureKeepsAlert(t *testing.T) {
	mailer := &fakeMailer{err: errors.New("smtp down")}
	m := newTestMonitor(healthyAnalytics(), nil, mailer)

	a := m.Raise(context.Background(), Alert{Type: AlertSystemHealth, Severity: SeverityCritical, Title: "down"})

	got, ok := m.Store().Get(a.ID)
	require.True(t, ok)
	assert.False(t, got.Resolved)
}

func TestRunHealthCheck_OngoingConditionRaisesOnce(t *testing.T) {
	ctx := context.Background()
	mailer := &fakeMailer{}
	m := newTestMonitor(healthyAnalytics(), map[string]Probe{"a": statusProbe(StatusCritical)}, mailer)

	for i := 0; i < 5; i++ {
		require.NoError(t, m.RunHealthCheck(ctx))
	}
	alerts := m.Store().All(0)
	require.Len(t, alerts, 1)
	require.Len(t, mailer.sent, 1)

	ok, err := m.Store().Resolve(alerts[0].ID)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, m.RunHealthCheck(ctx))
	assert.Len(t, m.Store().Active(), 1, "a resolved alert does not suppress the next one")
	assert.Len(t, mailer.sent, 2)
}

func TestNotifier(t *testing.T) {
	ctx := context.Background()
	critical := Alert{ID: "a1", Type: AlertSystemHealth, Severity: SeverityCritical, Title: "<b>down</b>",
		Metadata: map[string]interface{}{"queue": "degraded"}}

	t.Run("escapes html", func(t *testing.T) {
		mailer := &fakeMailer{}
		require.NoError(t, NewNotifier(mailer, admins(), 0).Notify(ctx, critical))
		require.Len(t, mailer.sent, 1)
		assert.Contains(t, mailer.sent[0].body, "&lt;b&gt;down&lt;/b&gt;")
		assert.Contains(t, mailer.sent[0].body, "queue")
	})

	t.Run("warning is not sent", func(t *testing.T) {
		mailer := &fakeMailer{}
		require.NoError(t, NewNotifier(mailer, admins(), 0).Notify(ctx, Alert{Severity: SeverityWarning}))
		assert.Empty(t, mailer.sent)
	})

	t.Run("disabled or no recipients", func(t *testing.T) {
		mailer := &fakeMailer{}
		off := staticRecipients{n: settings.NotificationSettings{Enabled: false, AdminEmails: []string{"ops@example.com"}}}
		require.NoError(t, NewNotifier(mailer, off, 0).Notify(ctx, critical))
		require.NoError(t, NewNotifier(mailer, staticRecipients{n: settings.NotificationSettings{Enabled: true}}, 0).Notify(ctx, critical))
		assert.Empty(t, mailer.sent)
	})

	t.Run("failure wraps dispatch error", func(t *testing.T) {
		err := NewNotifier(&fakeMailer{err: errors.New("503")}, admins(), 0).Notify(ctx, critical)
		assert.ErrorIs(t, err, apperr.ErrDispatchFailure)
	})

	t.Run("nil notifier", func(t *testing.T) {
		var n *Notifier
		assert.NoError(t, n.Notify(ctx, critical))
	})
}
