package metrics

import (
	"sort"
	"sync"
	"time"
)

const (
	durationWindow = 100
	slowestLimit   = 10
)

// RequestStats keeps running totals per endpoint and status, and the most
// recent durations per endpoint.
type RequestStats struct {
	mu          sync.Mutex
	total       int
	byEndpoint  map[string]int
	byStatus    map[int]int
	errors      map[string]int
	durations   map[string][]time.Duration
	totalTimeMs float64
}

// EndpointTiming is one entry of the slowest endpoint ranking.
type EndpointTiming struct {
	Endpoint  string  `json:"endpoint"`
	AverageMs float64 `json:"averageMs"`
}

// Snapshot is a copy of the statistics at one instant.
type Snapshot struct {
	TotalRequests      int              `json:"totalRequests"`
	RequestsByEndpoint map[string]int   `json:"requestsByEndpoint"`
	RequestsByStatus   map[int]int      `json:"requestsByStatus"`
	ErrorsByType       map[string]int   `json:"errorsByType"`
	AverageResponseMs  float64          `json:"averageResponseMs"`
	SlowestEndpoints   []EndpointTiming `json:"slowestEndpoints"`
}

func NewRequestStats() *RequestStats {
	s := &RequestStats{}
	s.reset()
	return s
}

func (s *RequestStats) reset() {
	s.total = 0
	s.totalTimeMs = 0
	s.byEndpoint = make(map[string]int)
	s.byStatus = make(map[int]int)
	s.errors = make(map[string]int)
	s.durations = make(map[string][]time.Duration)
}

func (s *RequestStats) RecordRequest(endpoint string, status int, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.byEndpoint[endpoint]++
	s.byStatus[status]++
	s.totalTimeMs += float64(d) / float64(time.Millisecond)

	ds := append(s.durations[endpoint], d)
	if len(ds) > durationWindow {
		ds = ds[len(ds)-durationWindow:]
	}
	s.durations[endpoint] = ds
}

func (s *RequestStats) RecordError(kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors[kind]++
}

// Snapshot copies the current totals and ranks endpoints by the average of
// their retained durations.
func (s *RequestStats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		TotalRequests:      s.total,
		RequestsByEndpoint: make(map[string]int, len(s.byEndpoint)),
		RequestsByStatus:   make(map[int]int, len(s.byStatus)),
		ErrorsByType:       make(map[string]int, len(s.errors)),
		SlowestEndpoints:   []EndpointTiming{},
	}
	for k, v := range s.byEndpoint {
		snap.RequestsByEndpoint[k] = v
	}
	for k, v := range s.byStatus {
		snap.RequestsByStatus[k] = v
	}
	for k, v := range s.errors {
		snap.ErrorsByType[k] = v
	}
	if s.total > 0 {
		snap.AverageResponseMs = s.totalTimeMs / float64(s.total)
	}

	for endpoint, ds := range s.durations {
		if len(ds) == 0 {
			continue
		}
		var sum time.Duration
		for _, d := range ds {
			sum += d
		}
		avg := float64(sum) / float64(len(ds)) / float64(time.Millisecond)
		snap.SlowestEndpoints = append(snap.SlowestEndpoints, EndpointTiming{Endpoint: endpoint, AverageMs: avg})
	}
	sort.Slice(snap.SlowestEndpoints, func(i, j int) bool {
		return snap.SlowestEndpoints[i].AverageMs > snap.SlowestEndpoints[j].AverageMs
	})
	if len(snap.SlowestEndpoints) > slowestLimit {
		snap.SlowestEndpoints = snap.SlowestEndpoints[:slowestLimit]
	}
	return snap
}

func (s *RequestStats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}
