package monitoring

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/faqminer/backend/internal/metrics"
	"github.com/faqminer/backend/internal/settings"
	"github.com/faqminer/backend/pkg/apperr"
	"github.com/faqminer/backend/pkg/logger"
)

const (
	PriorityHigh   = "high"
	PriorityNormal = "normal"

	DefaultNotifyTimeout = 10 * time.Second
)

// Mailer delivers one message to a list of recipients.
type Mailer interface {
	Send(ctx context.Context, to []string, subject, htmlBody, priority string) error
}

type RecipientSource interface {
	Notifications(ctx context.Context) settings.NotificationSettings
}

var alertTemplate = template.Must(template.New("alert").Parse(`<h2>{{.Title}}</h2>
<p><strong>Severity:</strong> {{.Severity}}<br>
<strong>Type:</strong> {{.Type}}<br>
<strong>Time:</strong> {{.Time}}</p>
<p>{{.Message}}</p>
{{if .Metadata}}<table>{{range .Metadata}}<tr><td>{{.Key}}</td><td>{{.Value}}</td></tr>{{end}}</table>{{end}}
<p>Alert ID: {{.ID}}</p>`))

type templateField struct {
	Key   string
	Value interface{}
}

type Notifier struct {
	mailer     Mailer
	recipients RecipientSource
	timeout    time.Duration
}

func NewNotifier(mailer Mailer, recipients RecipientSource, timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = DefaultNotifyTimeout
	}
	return &Notifier{mailer: mailer, recipients: recipients, timeout: timeout}
}

// Notify mails the administrators about a severe alert. Failures are logged and
// reported through the returned error only; callers are free to ignore it.
func (n *Notifier) Notify(ctx context.Context, a Alert) error {
	if n == nil || n.mailer == nil || !a.Severity.Notifiable() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	cfg := n.recipients.Notifications(ctx)
	if !cfg.Enabled || len(cfg.AdminEmails) == 0 {
		logger.Debug("Alert notification skipped", zap.String("alert_id", a.ID))
		return nil
	}

	body, err := renderAlert(a)
	if err != nil {
		return n.fail(a, err)
	}

	priority := PriorityNormal
	if a.Severity == SeverityCritical {
		priority = PriorityHigh
	}
	subject := fmt.Sprintf("[%s] %s", a.Severity, a.Title)

	if err := n.mailer.Send(ctx, cfg.AdminEmails, subject, body, priority); err != nil {
		return n.fail(a, err)
	}

	metrics.NotificationsSent.WithLabelValues("sent").Inc()
	logger.Info("Alert notification sent",
		zap.String("alert_id", a.ID),
		zap.Int("recipients", len(cfg.AdminEmails)))
	return nil
}

func (n *Notifier) fail(a Alert, err error) error {
	err = fmt.Errorf("%w: %v", apperr.ErrDispatchFailure, err)
	metrics.NotificationsSent.WithLabelValues("failed").Inc()
	logger.Error("Failed to send alert notification",
		zap.String("alert_id", a.ID),
		zap.String("type", a.Type.String()),
		zap.Error(err))
	return err
}

func renderAlert(a Alert) (string, error) {
	fields := make([]templateField, 0, len(a.Metadata))
	for k, v := range a.Metadata {
		fields = append(fields, templateField{Key: k, Value: v})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Key < fields[j].Key })

	var buf bytes.Buffer
	err := alertTemplate.Execute(&buf, map[string]interface{}{
		"ID":       a.ID,
		"Title":    a.Title,
		"Severity": a.Severity.String(),
		"Type":     a.Type.String(),
		"Time":     a.Timestamp.UTC().Format(time.RFC3339),
		"Message":  a.Message,
		"Metadata": fields,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render alert email: %w", err)
	}
	return buf.String(), nil
}
