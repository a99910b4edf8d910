package monitoring

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/faqminer/backend/internal/metrics"
	"github.com/faqminer/backend/pkg/apperr"
)

const DefaultMaxAlerts = 100

// AlertStore keeps the most recent alerts in a fixed-size ring. Once full, each
// new alert overwrites the oldest one. Listings are newest first.
type AlertStore struct {
	mu    sync.RWMutex
	ring  []Alert
	head  int // next write position
	size  int
	now   func() time.Time
	newID func() string

	subs    map[int]chan Alert
	nextSub int
}

func NewAlertStore(maxAlerts int) *AlertStore {
	if maxAlerts <= 0 {
		maxAlerts = DefaultMaxAlerts
	}
	return &AlertStore{
		ring:  make([]Alert, maxAlerts),
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
		subs:  make(map[int]chan Alert),
	}
}

func (s *AlertStore) Capacity() int {
	return len(s.ring)
}

// Add stores an alert, filling in ID and Timestamp when empty, and returns the
// stored copy.
func (s *AlertStore) Add(a Alert) Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.add(a)
}

// AddUnlessActive stores the alert unless an unresolved alert with the same
// type, severity and title is already held. added is false when the existing
// alert is returned instead.
func (s *AlertStore) AddUnlessActive(a Alert) (stored Alert, added bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing *Alert
	s.each(func(cur Alert) bool {
		if !cur.Resolved && cur.Type == a.Type && cur.Severity == a.Severity && cur.Title == a.Title {
			existing = &cur
			return false
		}
		return true
	})
	if existing != nil {
		return copyAlert(*existing), false
	}
	return s.add(a), true
}

// add requires the write lock.
func (s *AlertStore) add(a Alert) Alert {
	if a.ID == "" {
		a.ID = s.newID()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = s.now()
	}
	a.Resolved = false
	a.ResolvedAt = nil

	s.ring[s.head] = a
	s.head = (s.head + 1) % len(s.ring)
	if s.size < len(s.ring) {
		s.size++
	}

	for _, ch := range s.subs {
		select {
		case ch <- copyAlert(a):
		default:
		}
	}

	metrics.AlertsRaised.WithLabelValues(a.Type.String(), a.Severity.String()).Inc()
	s.updateGauge()
	return copyAlert(a)
}

// Resolve marks an alert resolved. It reports false, without error, when the
// alert was already resolved.
func (s *AlertStore) Resolve(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.indexOf(id)
	if !ok {
		return false, fmt.Errorf("alert %s: %w", id, apperr.ErrNotFound)
	}
	a := &s.ring[idx]
	if a.Resolved {
		return false, nil
	}
	at := s.now()
	a.Resolved = true
	a.ResolvedAt = &at

	s.updateGauge()
	return true, nil
}

// ClearResolved drops resolved alerts and returns how many were removed.
func (s *AlertStore) ClearResolved() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]Alert, 0, s.size)
	s.each(func(a Alert) bool {
		if !a.Resolved {
			kept = append(kept, a)
		}
		return true
	})
	removed := s.size - len(kept)

	// kept is newest first; rewrite oldest first.
	s.ring = make([]Alert, len(s.ring))
	s.head, s.size = 0, 0
	for i := len(kept) - 1; i >= 0; i-- {
		s.ring[s.head] = kept[i]
		s.head = (s.head + 1) % len(s.ring)
		s.size++
	}

	s.updateGauge()
	return removed
}

func (s *AlertStore) Get(id string) (Alert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.indexOf(id)
	if !ok {
		return Alert{}, false
	}
	return copyAlert(s.ring[idx]), true
}

func (s *AlertStore) Active() []Alert {
	return s.filter(0, func(a Alert) bool { return !a.Resolved })
}

// All returns up to limit alerts, newest first. limit <= 0 returns everything.
func (s *AlertStore) All(limit int) []Alert {
	return s.filter(limit, func(Alert) bool { return true })
}

func (s *AlertStore) ByType(t AlertType) []Alert {
	return s.filter(0, func(a Alert) bool { return a.Type == t })
}

func (s *AlertStore) BySeverity(sev Severity) []Alert {
	return s.filter(0, func(a Alert) bool { return a.Severity == sev })
}

type Statistics struct {
	Total      int            `json:"total"`
	Active     int            `json:"active"`
	Resolved   int            `json:"resolved"`
	Last24h    int            `json:"last24h"`
	BySeverity map[string]int `json:"bySeverity"`
	ByType     map[string]int `json:"byType"`
}

func (s *AlertStore) Statistics() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Statistics{
		BySeverity: make(map[string]int, len(Severities)),
		ByType:     make(map[string]int, len(AlertTypes)),
	}
	for _, sev := range Severities {
		st.BySeverity[sev.String()] = 0
	}
	for _, t := range AlertTypes {
		st.ByType[t.String()] = 0
	}

	cutoff := s.now().Add(-24 * time.Hour)
	s.each(func(a Alert) bool {
		st.Total++
		if a.Resolved {
			st.Resolved++
		} else {
			st.Active++
		}
		if !a.Timestamp.Before(cutoff) {
			st.Last24h++
		}
		st.BySeverity[a.Severity.String()]++
		st.ByType[a.Type.String()]++
		return true
	})
	return st
}

// Subscribe streams alerts added after the call. Slow subscribers miss alerts
// rather than block writers. The returned func unsubscribes.
func (s *AlertStore) Subscribe(buffer int) (<-chan Alert, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Alert, buffer)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *AlertStore) filter(limit int, keep func(Alert) bool) []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Alert, 0)
	s.each(func(a Alert) bool {
		if keep(a) {
			out = append(out, copyAlert(a))
		}
		return limit <= 0 || len(out) < limit
	})
	return out
}

// each walks newest to oldest until fn returns false. Callers hold the lock.
func (s *AlertStore) each(fn func(Alert) bool) {
	n := len(s.ring)
	for i := 1; i <= s.size; i++ {
		if !fn(s.ring[(s.head-i+n)%n]) {
			return
		}
	}
}

func (s *AlertStore) indexOf(id string) (int, bool) {
	n := len(s.ring)
	for i := 1; i <= s.size; i++ {
		idx := (s.head - i + n) % n
		if s.ring[idx].ID == id {
			return idx, true
		}
	}
	return 0, false
}

func (s *AlertStore) updateGauge() {
	active := 0
	s.each(func(a Alert) bool {
		if !a.Resolved {
			active++
		}
		return true
	})
	metrics.ActiveAlerts.Set(float64(active))
}

func copyAlert(a Alert) Alert {
	if a.Metadata != nil {
		m := make(map[string]interface{}, len(a.Metadata))
		for k, v := range a.Metadata {
			m[k] = v
		}
		a.Metadata = m
	}
	if a.ResolvedAt != nil {
		at := *a.ResolvedAt
		a.ResolvedAt = &at
	}
	return a
}
