package metrics

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultSlowQueryThreshold is the duration past which a query is logged as slow.
const DefaultSlowQueryThreshold = time.Second

// QueryStats summarizes the retained timings of one named query.
type QueryStats struct {
	Count int           `json:"count"`
	Avg   time.Duration `json:"avg"`
	Max   time.Duration `json:"max"`
	Min   time.Duration `json:"min"`
	Slow  int           `json:"slow"`
}

// QueryMonitor records database query timings by name.
type QueryMonitor struct {
	threshold time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	queries map[string][]time.Duration
}

func NewQueryMonitor(logger *slog.Logger) *QueryMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryMonitor{
		threshold: DefaultSlowQueryThreshold,
		logger:    logger,
		queries:   make(map[string][]time.Duration),
	}
}

// RecordQuery keeps the last 100 timings for name. Safe on a nil receiver.
func (m *QueryMonitor) RecordQuery(name string, d time.Duration) {
	if m == nil {
		return
	}
	if d > m.threshold {
		m.logger.Warn("slow query", "query", name, "duration", d)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	ds := append(m.queries[name], d)
	if len(ds) > durationWindow {
		ds = ds[len(ds)-durationWindow:]
	}
	m.queries[name] = ds
}

// Track runs fn and records its duration under name.
func (m *QueryMonitor) Track(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	m.RecordQuery(name, time.Since(start))
	return err
}

func (m *QueryMonitor) Stats() map[string]QueryStats {
	if m == nil {
		return map[string]QueryStats{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]QueryStats, len(m.queries))
	for name, ds := range m.queries {
		if len(ds) == 0 {
			continue
		}
		s := QueryStats{Count: len(ds), Min: ds[0], Max: ds[0]}
		var sum time.Duration
		for _, d := range ds {
			sum += d
			if d > s.Max {
				s.Max = d
			}
			if d < s.Min {
				s.Min = d
			}
			if d > m.threshold {
				s.Slow++
			}
		}
		s.Avg = sum / time.Duration(len(ds))
		out[name] = s
	}
	return out
}
