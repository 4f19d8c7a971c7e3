package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_RecordsPrometheusAndSnapshot(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRequest("/jobs", 200, 10*time.Millisecond)
	c.RecordRequest("/jobs", 500, 30*time.Millisecond)
	c.RecordError("database_error")
	c.RecordJobEnqueued("bulk_rewrite")
	c.RecordJobCompleted("bulk_rewrite", time.Second)
	c.RecordJobFailed("data_cleanup", time.Second)
	c.SetJobGauges(2, 5)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues("/jobs", "500")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.jobsEnqueued.WithLabelValues("bulk_rewrite")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.jobsFailed.WithLabelValues("data_cleanup")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.jobsActive))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.jobsPending))

	snap := c.Requests().Snapshot()
	assert.Equal(t, 2, snap.TotalRequests)
	assert.Equal(t, 2, snap.RequestsByEndpoint["/jobs"])
	assert.Equal(t, 1, snap.RequestsByStatus[500])
	assert.Equal(t, 1, snap.ErrorsByType["database_error"])
	assert.InDelta(t, 20.0, snap.AverageResponseMs, 0.001)
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordRequest("/x", 200, time.Millisecond)
		c.RecordError("x")
		c.RecordJobEnqueued("x")
		c.SetJobGauges(1, 1)
	})
	assert.Nil(t, c.Requests())
}

func TestCollector_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)
	assert.Panics(t, func() { NewCollector(reg) })
}

func TestRequestStats_KeepsLastHundredDurations(t *testing.T) {
	s := NewRequestStats()
	for i := 0; i < 150; i++ {
		s.RecordRequest("/a", 200, time.Duration(i)*time.Millisecond)
	}

	assert.Len(t, s.durations["/a"], durationWindow)
	assert.Equal(t, 50*time.Millisecond, s.durations["/a"][0])
	assert.Equal(t, 150, s.Snapshot().TotalRequests)
}

func TestRequestStats_SlowestEndpoints(t *testing.T) {
	s := NewRequestStats()
	for i := 0; i < 12; i++ {
		s.RecordRequest(fmt.Sprintf("/e%d", i), 200, time.Duration(i+1)*time.Millisecond)
	}

	snap := s.Snapshot()
	require.Len(t, snap.SlowestEndpoints, slowestLimit)
	assert.Equal(t, "/e11", snap.SlowestEndpoints[0].Endpoint)
	assert.InDelta(t, 12.0, snap.SlowestEndpoints[0].AverageMs, 0.001)
}

func TestRequestStats_Reset(t *testing.T) {
	s := NewRequestStats()
	s.RecordRequest("/a", 200, time.Millisecond)
	s.RecordError("x")
	s.Reset()

	snap := s.Snapshot()
	assert.Equal(t, 0, snap.TotalRequests)
	assert.Empty(t, snap.ErrorsByType)
	assert.Empty(t, snap.SlowestEndpoints)
}

func TestQueryMonitor_Stats(t *testing.T) {
	m := NewQueryMonitor(nil)
	m.RecordQuery("delete_posts", 100*time.Millisecond)
	m.RecordQuery("delete_posts", 300*time.Millisecond)
	m.RecordQuery("delete_posts", 2*time.Second)

	s := m.Stats()["delete_posts"]
	assert.Equal(t, 3, s.Count)
	assert.Equal(t, 100*time.Millisecond, s.Min)
	assert.Equal(t, 2*time.Second, s.Max)
	assert.Equal(t, 800*time.Millisecond, s.Avg)
	assert.Equal(t, 1, s.Slow)
}

func TestQueryMonitor_Track(t *testing.T) {
	m := NewQueryMonitor(nil)
	want := errors.New("boom")

	err := m.Track("q", func() error { return want })
	assert.ErrorIs(t, err, want)
	assert.Equal(t, 1, m.Stats()["q"].Count)
}

func TestQueryMonitor_NilSafe(t *testing.T) {
	var m *QueryMonitor
	assert.NotPanics(t, func() { m.RecordQuery("q", time.Second) })
	assert.Empty(t, m.Stats())
}
