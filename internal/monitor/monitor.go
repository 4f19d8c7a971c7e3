// Package monitor stores captured errors in memory, groups them into coarse
// patterns and raises alerts when a pattern crosses its severity threshold.
//
// Pattern counters never decay: once a pattern has crossed a threshold it
// re-alerts every cooldown period for as long as errors keep arriving.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultCooldown  = 5 * time.Minute
	DefaultRecipient = "admin@reddit.com"

	alertTypeEmail = "email"
	sendTimeout    = 30 * time.Second
)

type Option func(*Monitor)

func WithClock(c clockwork.Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

func WithNotifier(n Notifier) Option {
	return func(m *Monitor) { m.notifier = n }
}

func WithRecipient(r string) Option {
	return func(m *Monitor) { m.recipient = r }
}

func WithCooldown(d time.Duration) Option {
	return func(m *Monitor) { m.cooldown = d }
}

type Monitor struct {
	clock     clockwork.Clock
	logger    *slog.Logger
	notifier  Notifier
	recipient string
	cooldown  time.Duration

	mu         sync.RWMutex
	errors     map[string]*ErrorEvent
	alerts     map[string]*Alert
	patterns   map[string]int
	lastAlert  map[string]time.Time
	thresholds Thresholds

	inflight sync.WaitGroup
}

func New(opts ...Option) *Monitor {
	m := &Monitor{
		clock:      clockwork.NewRealClock(),
		recipient:  DefaultRecipient,
		cooldown:   DefaultCooldown,
		errors:     make(map[string]*ErrorEvent),
		alerts:     make(map[string]*Alert),
		patterns:   make(map[string]int),
		lastAlert:  make(map[string]time.Time),
		thresholds: DefaultThresholds(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.notifier == nil {
		m.notifier = NewLogNotifier(m.logger)
	}
	return m
}

// CaptureError records err and returns the new event id. An empty severity
// is treated as medium.
func (m *Monitor) CaptureError(err error, c Context, sev Severity) string {
	if err == nil {
		return ""
	}
	if sev == "" {
		sev = SeverityMedium
	}

	now := m.clock.Now()
	pattern := extractPattern(err)
	ev := &ErrorEvent{
		ID:        "error_" + uuid.New().String(),
		Timestamp: now,
		Message:   err.Error(),
		Type:      errorTypeTag(err),
		Pattern:   pattern,
		Context:   c,
		Severity:  sev,
		Tags:      buildTags(err, c, sev),
		err:       err,
	}

	m.mu.Lock()
	m.patterns[pattern]++
	count := m.patterns[pattern]
	m.errors[ev.ID] = ev
	alert := m.checkThreshold(ev, count, now)
	m.mu.Unlock()

	m.logger.Error("error captured",
		"error_id", ev.ID,
		"message", ev.Message,
		"severity", sev,
		"pattern", pattern,
		"user_id", c.UserID,
		"url", c.URL,
	)

	if alert != nil {
		m.dispatch(*alert)
	}
	return ev.ID
}

// checkThreshold must be called with mu held. It returns the alert to
// dispatch, already stored, or nil.
func (m *Monitor) checkThreshold(ev *ErrorEvent, count int, now time.Time) *Alert {
	threshold, ok := m.thresholds[ev.Severity]
	if !ok || count < threshold {
		return nil
	}

	key := ev.Pattern + "_" + string(ev.Severity)
	if last, seen := m.lastAlert[key]; seen && now.Sub(last) <= m.cooldown {
		return nil
	}
	m.lastAlert[key] = now

	a := &Alert{
		ID:           "alert_" + uuid.New().String(),
		ErrorEventID: ev.ID,
		Type:         alertTypeEmail,
		Recipient:    m.recipient,
		Message:      fmt.Sprintf("Error Alert: %s has occurred %d times with %s severity", ev.Pattern, count, ev.Severity),
		Pattern:      ev.Pattern,
		Severity:     ev.Severity,
		Count:        count,
	}
	m.alerts[a.ID] = a
	return a
}

func (m *Monitor) dispatch(a Alert) {
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()

		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()

		if err := m.notifier.Notify(ctx, a); err != nil {
			m.logger.Error("failed to send error alert", "alert_id", a.ID, "error", err)
			return
		}

		sentAt := m.clock.Now()
		m.mu.Lock()
		if stored, ok := m.alerts[a.ID]; ok {
			stored.Sent = true
			stored.SentAt = &sentAt
		}
		m.mu.Unlock()

		m.logger.Info("error alert sent",
			"alert_id", a.ID,
			"pattern", a.Pattern,
			"severity", a.Severity,
			"count", a.Count,
			"recipient", a.Recipient,
		)
	}()
}

// ResolveError marks the event resolved. It reports false for unknown ids.
func (m *Monitor) ResolveError(id, by, notes string) bool {
	now := m.clock.Now()

	m.mu.Lock()
	ev, ok := m.errors[id]
	if ok {
		ev.Resolved = true
		ev.ResolvedAt = &now
		ev.ResolvedBy = by
		ev.Notes = notes
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	m.logger.Info("error resolved", "error_id", id, "resolved_by", by, "resolution_time", now.Sub(ev.Timestamp))
	return true
}

// GetError returns a copy of the event.
func (m *Monitor) GetError(id string) (ErrorEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ev, ok := m.errors[id]
	if !ok {
		return ErrorEvent{}, ErrNotFound
	}
	return cloneEvent(ev), nil
}

// GetErrors returns matching events, newest first.
func (m *Monitor) GetErrors(f Filter) []ErrorEvent {
	m.mu.RLock()
	out := make([]ErrorEvent, 0, len(m.errors))
	for _, ev := range m.errors {
		if f.matches(ev) {
			out = append(out, cloneEvent(ev))
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func (f Filter) matches(ev *ErrorEvent) bool {
	if f.Severity != "" && ev.Severity != f.Severity {
		return false
	}
	if f.Resolved != nil && ev.Resolved != *f.Resolved {
		return false
	}
	if f.UserID != "" && ev.Context.UserID != f.UserID {
		return false
	}
	if !f.Start.IsZero() && ev.Timestamp.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && ev.Timestamp.After(f.End) {
		return false
	}
	return true
}

func cloneEvent(ev *ErrorEvent) ErrorEvent {
	c := *ev
	c.Tags = append([]string(nil), ev.Tags...)
	return c
}

func (m *Monitor) GetErrorStats() Stats {
	now := m.clock.Now()
	dayAgo := now.Add(-24 * time.Hour)

	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{
		TotalErrors:      len(m.errors),
		ErrorsBySeverity: make(map[Severity]int),
		ErrorsByType:     make(map[string]int, len(m.patterns)),
		ErrorsByHour:     make(map[string]int),
		TopErrorPatterns: make([]PatternCount, 0, len(m.patterns)),
	}

	var resolved int
	var resolution time.Duration
	for _, ev := range m.errors {
		s.ErrorsBySeverity[ev.Severity]++
		if !ev.Timestamp.Before(dayAgo) {
			hour := ev.Timestamp.UTC().Truncate(time.Hour).Format(time.RFC3339)
			s.ErrorsByHour[hour]++
		}
		if ev.Resolved && ev.ResolvedAt != nil {
			resolved++
			resolution += ev.ResolvedAt.Sub(ev.Timestamp)
		}
	}
	if resolved > 0 {
		s.AverageResolutionTime = resolution / time.Duration(resolved)
	}

	for p, n := range m.patterns {
		s.ErrorsByType[p] = n
		s.TopErrorPatterns = append(s.TopErrorPatterns, PatternCount{Pattern: p, Count: n})
	}
	sort.Slice(s.TopErrorPatterns, func(i, j int) bool {
		a, b := s.TopErrorPatterns[i], s.TopErrorPatterns[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Pattern < b.Pattern
	})
	if len(s.TopErrorPatterns) > 10 {
		s.TopErrorPatterns = s.TopErrorPatterns[:10]
	}
	return s
}

// GetAlerts returns matching alerts, most recently sent first; unsent
// alerts sort last.
func (m *Monitor) GetAlerts(f AlertFilter) []Alert {
	m.mu.RLock()
	out := make([]Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if f.matches(a) {
			out = append(out, *a)
		}
	}
	m.mu.RUnlock()

	sentAt := func(a Alert) time.Time {
		if a.SentAt == nil {
			return time.Time{}
		}
		return *a.SentAt
	}
	sort.SliceStable(out, func(i, j int) bool { return sentAt(out[i]).After(sentAt(out[j])) })
	return out
}

func (f AlertFilter) matches(a *Alert) bool {
	if f.Sent != nil && a.Sent != *f.Sent {
		return false
	}
	if f.Type != "" && a.Type != f.Type {
		return false
	}
	if !f.Start.IsZero() && (a.SentAt == nil || a.SentAt.Before(f.Start)) {
		return false
	}
	if !f.End.IsZero() && (a.SentAt == nil || a.SentAt.After(f.End)) {
		return false
	}
	return true
}

// ClearOldErrors drops events captured before olderThan. Pattern counters
// are left untouched.
func (m *Monitor) ClearOldErrors(olderThan time.Time) int {
	m.mu.Lock()
	cleared := 0
	for id, ev := range m.errors {
		if ev.Timestamp.Before(olderThan) {
			delete(m.errors, id)
			cleared++
		}
	}
	m.mu.Unlock()

	m.logger.Info("cleared old errors", "cleared", cleared, "older_than", olderThan)
	return cleared
}

// UpdateAlertThresholds merges t into the current thresholds.
func (m *Monitor) UpdateAlertThresholds(t Thresholds) {
	m.mu.Lock()
	for sev, n := range t {
		m.thresholds[sev] = n
	}
	current := make(Thresholds, len(m.thresholds))
	for k, v := range m.thresholds {
		current[k] = v
	}
	m.mu.Unlock()

	m.logger.Info("updated alert thresholds", "thresholds", current)
}

// Status grades the last hour: more than 10 errors is critical, more than 5
// a warning.
func (m *Monitor) Status() Status {
	hourAgo := m.clock.Now().Add(-time.Hour)

	m.mu.RLock()
	defer m.mu.RUnlock()

	recent := 0
	for _, ev := range m.errors {
		if !ev.Timestamp.Before(hourAgo) {
			recent++
		}
	}

	st := Status{
		Status:       HealthHealthy,
		TotalErrors:  len(m.errors),
		RecentErrors: recent,
		Alerts:       len(m.alerts),
		Patterns:     len(m.patterns),
	}
	switch {
	case recent > 10:
		st.Status = HealthCritical
	case recent > 5:
		st.Status = HealthWarning
	}
	return st
}

// Close waits for alerts that are still being delivered.
func (m *Monitor) Close() {
	m.inflight.Wait()
}
