package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redditfit/internal/metrics"
)

type execFunc func(ctx context.Context, p Payload) (any, error)

func (f execFunc) Execute(ctx context.Context, p Payload) (any, error) { return f(ctx, p) }

// gate blocks executions until released and tracks peak concurrency.
type gate struct {
	release chan struct{}

	mu      sync.Mutex
	running int
	peak    int
}

func newGate() *gate { return &gate{release: make(chan struct{})} }

func (g *gate) Execute(ctx context.Context, p Payload) (any, error) {
	g.mu.Lock()
	g.running++
	if g.running > g.peak {
		g.peak = g.running
	}
	g.mu.Unlock()

	<-g.release

	g.mu.Lock()
	g.running--
	g.mu.Unlock()
	return "ok", nil
}

func (g *gate) peakRunning() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.peak
}

func countStatus(p *Processor, s Status) int {
	n := 0
	for _, j := range p.ListJobs("") {
		if j.Status == s {
			n++
		}
	}
	return n
}

func waitStatus(t *testing.T, p *Processor, id string, want Status) Job {
	t.Helper()
	var j Job
	require.Eventually(t, func() bool {
		var ok bool
		j, ok = p.GetJobStatus(id)
		return ok && j.Status == want
	}, 2*time.Second, 5*time.Millisecond, "job %s never reached %s", id, want)
	return j
}

func TestProcessor_AddJobIsImmediatelyVisible(t *testing.T) {
	p := NewProcessor(execFunc(func(context.Context, Payload) (any, error) { return nil, nil }))

	id := p.AddJob(AnalyticsUpdate{})
	require.NotEmpty(t, id)

	j, ok := p.GetJobStatus(id)
	require.True(t, ok)
	assert.Contains(t, []Status{StatusPending, StatusProcessing, StatusCompleted}, j.Status)
	assert.Equal(t, KindAnalyticsUpdate, j.Kind)
}

func TestProcessor_NeverExceedsMaxConcurrency(t *testing.T) {
	g := newGate()
	p := NewProcessor(g)

	for i := 0; i < 10; i++ {
		p.AddJob(AnalyticsUpdate{})
	}

	require.Eventually(t, func() bool { return p.GetQueueStatus().ActiveJobs == DefaultMaxConcurrentJobs }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, countStatus(p, StatusProcessing))
	assert.Equal(t, 7, countStatus(p, StatusPending))

	close(g.release)

	require.Eventually(t, func() bool { return countStatus(p, StatusCompleted) == 10 }, 2*time.Second, 5*time.Millisecond)
	assert.LessOrEqual(t, g.peakRunning(), DefaultMaxConcurrentJobs)
	assert.Equal(t, 0, p.GetQueueStatus().ActiveJobs)
}

func TestProcessor_PendingJobsStartWhenSlotFrees(t *testing.T) {
	release := make(chan struct{}, 3)
	p := NewProcessor(execFunc(func(context.Context, Payload) (any, error) {
		<-release
		return nil, nil
	}), WithMaxConcurrentJobs(1))

	ids := []string{p.AddJob(AnalyticsUpdate{}), p.AddJob(AnalyticsUpdate{}), p.AddJob(AnalyticsUpdate{})}

	for _, id := range ids {
		waitStatus(t, p, id, StatusProcessing)
		release <- struct{}{}
		waitStatus(t, p, id, StatusCompleted)
	}
}

func TestProcessor_ScansKindsInFirstSeenOrder(t *testing.T) {
	release := make(chan struct{}, 3)
	p := NewProcessor(execFunc(func(context.Context, Payload) (any, error) {
		<-release
		return nil, nil
	}), WithMaxConcurrentJobs(1))

	first := p.AddJob(AnalyticsUpdate{})
	waitStatus(t, p, first, StatusProcessing)

	other := p.AddJob(UserMigration{FromPlan: "free", ToPlan: "pro"})
	sameKind := p.AddJob(AnalyticsUpdate{UserID: "u1"})

	release <- struct{}{}
	waitStatus(t, p, sameKind, StatusProcessing)

	j, _ := p.GetJobStatus(other)
	assert.Equal(t, StatusPending, j.Status, "the earlier kind's backlog goes first")

	release <- struct{}{}
	release <- struct{}{}
	waitStatus(t, p, other, StatusCompleted)
}

func TestProcessor_RecordsResultAndError(t *testing.T) {
	p := NewProcessor(execFunc(func(_ context.Context, pl Payload) (any, error) {
		if m, ok := pl.(UserMigration); ok && m.FromPlan == "broken" {
			return nil, errors.New("database unavailable")
		}
		return map[string]int{"n": 1}, nil
	}))

	ok := waitStatus(t, p, p.AddJob(UserMigration{FromPlan: "free", ToPlan: "pro"}), StatusCompleted)
	assert.Equal(t, map[string]int{"n": 1}, ok.Result)
	assert.NotNil(t, ok.StartedAt)
	assert.NotNil(t, ok.CompletedAt)
	assert.Empty(t, ok.Error)

	failed := waitStatus(t, p, p.AddJob(UserMigration{FromPlan: "broken", ToPlan: "pro"}), StatusFailed)
	assert.Equal(t, "database unavailable", failed.Error)
	assert.Nil(t, failed.Result)
}

func TestProcessor_PanicFailsJob(t *testing.T) {
	p := NewProcessor(execFunc(func(context.Context, Payload) (any, error) {
		panic("nil map")
	}))

	j := waitStatus(t, p, p.AddJob(AnalyticsUpdate{}), StatusFailed)
	assert.Contains(t, j.Error, "nil map")
	assert.Eventually(t, func() bool { return p.GetQueueStatus().ActiveJobs == 0 }, time.Second, 5*time.Millisecond)
}

func TestProcessor_GetJobStatusReturnsCopy(t *testing.T) {
	p := NewProcessor(execFunc(func(context.Context, Payload) (any, error) { return nil, nil }))
	id := p.AddJob(AnalyticsUpdate{})
	j := waitStatus(t, p, id, StatusCompleted)

	j.Status = StatusFailed
	*j.CompletedAt = time.Time{}

	again, _ := p.GetJobStatus(id)
	assert.Equal(t, StatusCompleted, again.Status)
	assert.False(t, again.CompletedAt.IsZero())

	_, found := p.GetJobStatus("job_missing")
	assert.False(t, found)
}

func TestProcessor_ClearCompletedJobsOnlyRemovesCompleted(t *testing.T) {
	release := make(chan struct{})
	p := NewProcessor(execFunc(func(_ context.Context, pl Payload) (any, error) {
		switch v := pl.(type) {
		case UserMigration:
			return nil, errors.New("boom")
		case AnalyticsUpdate:
			if v.UserID == "block" {
				<-release
			}
		}
		return nil, nil
	}), WithMaxConcurrentJobs(1))
	defer close(release)

	done := p.AddJob(AnalyticsUpdate{})
	waitStatus(t, p, done, StatusCompleted)
	failed := p.AddJob(UserMigration{FromPlan: "a", ToPlan: "b"})
	waitStatus(t, p, failed, StatusFailed)
	running := p.AddJob(AnalyticsUpdate{UserID: "block"})
	waitStatus(t, p, running, StatusProcessing)
	pending := p.AddJob(AnalyticsUpdate{})

	assert.Equal(t, 1, p.ClearCompletedJobs())

	_, ok := p.GetJobStatus(done)
	assert.False(t, ok)
	for id, want := range map[string]Status{failed: StatusFailed, running: StatusProcessing, pending: StatusPending} {
		j, ok := p.GetJobStatus(id)
		require.True(t, ok)
		assert.Equal(t, want, j.Status)
	}

	qs := p.GetQueueStatus()
	assert.Equal(t, KindStatus{Total: 2, Pending: 1, Processing: 1}, qs.Queues[KindAnalyticsUpdate])
	assert.Equal(t, KindStatus{Total: 1, Failed: 1}, qs.Queues[KindUserMigration])
	assert.Equal(t, 1, qs.MaxConcurrentJobs)
}

func TestProcessor_Shutdown(t *testing.T) {
	g := newGate()
	p := NewProcessor(g, WithMaxConcurrentJobs(1))

	running := p.AddJob(AnalyticsUpdate{})
	waitStatus(t, p, running, StatusProcessing)
	pending := p.AddJob(AnalyticsUpdate{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Shutdown(ctx), context.DeadlineExceeded)

	_, err := p.Submit(context.Background(), AnalyticsUpdate{})
	assert.ErrorIs(t, err, ErrProcessorClosed)
	assert.Empty(t, p.AddJob(AnalyticsUpdate{}))

	close(g.release)
	require.NoError(t, p.Shutdown(context.Background()))

	j, _ := p.GetJobStatus(running)
	assert.Equal(t, StatusCompleted, j.Status)
	j, _ = p.GetJobStatus(pending)
	assert.Equal(t, StatusPending, j.Status, "nothing new starts after shutdown")
}

func TestProcessor_SubmitNilPayload(t *testing.T) {
	p := NewProcessor(execFunc(func(context.Context, Payload) (any, error) { return nil, nil }))
	_, err := p.Submit(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestProcessor_PublishesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewProcessor(execFunc(func(context.Context, Payload) (any, error) { return nil, nil }), WithMetrics(metrics.NewCollector(reg)))

	waitStatus(t, p, p.AddJob(DataCleanup{OlderThan: time.Now()}), StatusCompleted)

	assert.Eventually(t, func() bool {
		n, err := testutil.GatherAndCount(reg, "redditfit_jobs_completed_total")
		return err == nil && n == 1
	}, time.Second, 5*time.Millisecond)
	n, err := testutil.GatherAndCount(reg, "redditfit_jobs_enqueued_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestProcessor_OnFailureHook(t *testing.T) {
	type failure struct {
		id   string
		kind Kind
		err  error
	}
	got := make(chan failure, 1)

	p := NewProcessor(
		execFunc(func(context.Context, Payload) (any, error) { return nil, errors.New("quota exceeded") }),
		WithOnFailure(func(id string, kind Kind, err error) { got <- failure{id, kind, err} }),
	)
	id := p.AddJob(UserMigration{FromPlan: "free", ToPlan: "pro"})

	select {
	case f := <-got:
		assert.Equal(t, id, f.id)
		assert.Equal(t, KindUserMigration, f.kind)
		assert.EqualError(t, f.err, "quota exceeded")
	case <-time.After(2 * time.Second):
		t.Fatal("failure hook was not called")
	}
}
