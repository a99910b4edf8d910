// Package monitoring evaluates pipeline health, raises threshold alerts into a
// bounded in-memory store, and notifies administrators of severe ones.
package monitoring

import (
	"fmt"
	"time"

	"github.com/faqminer/backend/pkg/apperr"
)

type AlertType int

const (
	AlertSystemHealth AlertType = iota + 1
	AlertLowApprovalRate
	AlertHighErrorRate
	AlertPerformanceDegradation
)

var AlertTypes = []AlertType{AlertSystemHealth, AlertLowApprovalRate, AlertHighErrorRate, AlertPerformanceDegradation}

func (t AlertType) String() string {
	switch t {
	case AlertSystemHealth:
		return "SYSTEM_HEALTH"
	case AlertLowApprovalRate:
		return "LOW_APPROVAL_RATE"
	case AlertHighErrorRate:
		return "HIGH_ERROR_RATE"
	case AlertPerformanceDegradation:
		return "PERFORMANCE_DEGRADATION"
	default:
		return "UNKNOWN"
	}
}

func ParseAlertType(s string) (AlertType, error) {
	for _, t := range AlertTypes {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown alert type %q", apperr.ErrInvalidInput, s)
}

func (t AlertType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *AlertType) UnmarshalText(b []byte) error {
	v, err := ParseAlertType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Severity is ordered: a higher value is more severe.
type Severity int

const (
	SeverityInfo Severity = iota + 1
	SeverityWarning
	SeverityError
	SeverityCritical
)

var Severities = []Severity{SeverityInfo, SeverityWarning, SeverityError, SeverityCritical}

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

func ParseSeverity(s string) (Severity, error) {
	for _, v := range Severities {
		if v.String() == s {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown severity %q", apperr.ErrInvalidInput, s)
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Notifiable severities page the administrators.
func (s Severity) Notifiable() bool {
	return s >= SeverityError
}

type Alert struct {
	ID         string                 `json:"id"`
	Type       AlertType              `json:"type"`
	Severity   Severity               `json:"severity"`
	Title      string                 `json:"title"`
	Message    string                 `json:"message"`
	Timestamp  time.Time              `json:"timestamp"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Resolved   bool                   `json:"resolved"`
	ResolvedAt *time.Time             `json:"resolvedAt,omitempty"`
}
