package monitor

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("error event not found")

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity accepts the four known levels; anything else is rejected.
func ParseSeverity(s string) (Severity, bool) {
	switch Severity(s) {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return Severity(s), true
	}
	return "", false
}

// Context describes where an error happened. Every field is optional.
type Context struct {
	UserID    string         `json:"userId,omitempty"`
	RequestID string         `json:"requestId,omitempty"`
	URL       string         `json:"url,omitempty"`
	Method    string         `json:"method,omitempty"`
	UserAgent string         `json:"userAgent,omitempty"`
	IP        string         `json:"ip,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type ErrorEvent struct {
	ID         string     `json:"id"`
	Timestamp  time.Time  `json:"timestamp"`
	Message    string     `json:"message"`
	Type       string     `json:"type"`
	Pattern    string     `json:"pattern"`
	Context    Context    `json:"context"`
	Severity   Severity   `json:"severity"`
	Tags       []string   `json:"tags"`
	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
	ResolvedBy string     `json:"resolvedBy,omitempty"`
	Notes      string     `json:"notes,omitempty"`

	err error
}

// Err returns the captured error value.
func (e ErrorEvent) Err() error { return e.err }

type Alert struct {
	ID           string     `json:"id"`
	ErrorEventID string     `json:"errorEventId"`
	Type         string     `json:"type"`
	Sent         bool       `json:"sent"`
	SentAt       *time.Time `json:"sentAt,omitempty"`
	Recipient    string     `json:"recipient"`
	Message      string     `json:"message"`
	Pattern      string     `json:"pattern"`
	Severity     Severity   `json:"severity"`
	Count        int        `json:"count"`
}

// Filter narrows GetErrors. Zero fields do not filter.
type Filter struct {
	Severity Severity
	Resolved *bool
	UserID   string
	Start    time.Time
	End      time.Time
	Limit    int
}

// AlertFilter narrows GetAlerts. Start and End match against SentAt, so
// unsent alerts are excluded whenever either bound is set.
type AlertFilter struct {
	Sent  *bool
	Type  string
	Start time.Time
	End   time.Time
}

type PatternCount struct {
	Pattern string `json:"pattern"`
	Count   int    `json:"count"`
}

type Stats struct {
	TotalErrors           int              `json:"totalErrors"`
	ErrorsBySeverity      map[Severity]int `json:"errorsBySeverity"`
	ErrorsByType          map[string]int   `json:"errorsByType"`
	ErrorsByHour          map[string]int   `json:"errorsByHour"`
	AverageResolutionTime time.Duration    `json:"averageResolutionTime"`
	TopErrorPatterns      []PatternCount   `json:"topErrorPatterns"`
}

type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthWarning  Health = "warning"
	HealthCritical Health = "critical"
)

type Status struct {
	Status       Health `json:"status"`
	TotalErrors  int    `json:"totalErrors"`
	RecentErrors int    `json:"recentErrors"`
	Alerts       int    `json:"alerts"`
	Patterns     int    `json:"patterns"`
}

// Thresholds is the per-severity pattern count that triggers an alert.
type Thresholds map[Severity]int

func DefaultThresholds() Thresholds {
	return Thresholds{
		SeverityCritical: 1,
		SeverityHigh:     3,
		SeverityMedium:   10,
		SeverityLow:      50,
	}
}
