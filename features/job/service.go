package job

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"redditfit/internal/metrics"
)

const DefaultMaxConcurrentJobs = 3

// Executor runs one job payload and returns its result.
type Executor interface {
	Execute(ctx context.Context, p Payload) (any, error)
}

type KindStatus struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

type QueueStatus struct {
	Queues            map[Kind]KindStatus `json:"queueStatus"`
	ActiveJobs        int                 `json:"activeJobs"`
	MaxConcurrentJobs int                 `json:"maxConcurrentJobs"`
}

type Option func(*Processor)

func WithMaxConcurrentJobs(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.maxConcurrent = n
		}
	}
}

func WithClock(c clockwork.Clock) Option {
	return func(p *Processor) { p.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

func WithMetrics(c *metrics.Collector) Option {
	return func(p *Processor) { p.metrics = c }
}

// FailureFunc is called after a job fails, outside the processor lock.
type FailureFunc func(id string, kind Kind, err error)

func WithOnFailure(fn FailureFunc) Option {
	return func(p *Processor) { p.onFailure = fn }
}

// Processor runs submitted jobs with bounded concurrency. Jobs are kept in
// memory only; nothing survives a restart.
//
// Scheduling takes the first pending job in kind first-seen order, so a
// kind with a deep backlog can starve kinds registered after it.
type Processor struct {
	exec          Executor
	maxConcurrent int
	clock         clockwork.Clock
	logger        *slog.Logger
	metrics       *metrics.Collector
	onFailure     FailureFunc

	mu     sync.Mutex
	repo   *memoryRepo
	active int
	closed bool

	running sync.WaitGroup
}

func NewProcessor(exec Executor, opts ...Option) *Processor {
	p := &Processor{
		exec:          exec,
		maxConcurrent: DefaultMaxConcurrentJobs,
		clock:         clockwork.NewRealClock(),
		repo:          newMemoryRepo(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddJob queues payload and returns the job id without blocking. It returns
// an empty id only after Shutdown.
func (p *Processor) AddJob(payload Payload) string {
	id, err := p.Submit(context.Background(), payload)
	if err != nil {
		p.logger.Warn("job rejected", "error", err)
		return ""
	}
	return id
}

// Submit is AddJob with an error for a closed processor or a nil payload.
// ctx only carries request-scoped log fields; it does not bound the job.
func (p *Processor) Submit(ctx context.Context, payload Payload) (string, error) {
	if payload == nil {
		return "", fmt.Errorf("%w: nil payload", ErrInvalidPayload)
	}

	j := &Job{
		ID:        "job_" + uuid.New().String(),
		Kind:      payload.Kind(),
		Data:      payload,
		Status:    StatusPending,
		CreatedAt: p.clock.Now(),
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return "", ErrProcessorClosed
	}
	p.repo.add(j)
	p.mu.Unlock()

	p.logger.InfoContext(ctx, "job added to queue", "job_id", j.ID, "type", j.Kind)
	p.metrics.RecordJobEnqueued(string(j.Kind))

	p.schedule()
	return j.ID, nil
}

// schedule starts pending jobs until the pool is full. A job is marked
// processing in the same critical section that reserves its slot, so the
// number of processing jobs never exceeds maxConcurrent.
func (p *Processor) schedule() {
	p.mu.Lock()
	var started []*Job
	for !p.closed && p.active < p.maxConcurrent {
		j := p.repo.nextPending()
		if j == nil {
			break
		}
		now := p.clock.Now()
		j.Status = StatusProcessing
		j.StartedAt = &now
		p.active++
		p.running.Add(1)
		started = append(started, j)
	}
	p.publishGauges()
	p.mu.Unlock()

	for _, j := range started {
		go p.process(j.ID, j.Kind, j.Data)
	}
}

func (p *Processor) process(id string, kind Kind, payload Payload) {
	defer p.running.Done()

	start := p.clock.Now()
	p.logger.Info("processing job", "job_id", id, "type", kind)

	result, err := p.execute(payload)
	elapsed := p.clock.Since(start)

	p.mu.Lock()
	if j, ok := p.repo.get(id); ok {
		done := p.clock.Now()
		j.CompletedAt = &done
		if err != nil {
			j.Status = StatusFailed
			j.Error = err.Error()
		} else {
			j.Status = StatusCompleted
			j.Result = result
		}
	}
	p.active--
	p.mu.Unlock()

	if err != nil {
		p.logger.Error("job failed", "job_id", id, "type", kind, "duration", elapsed, "error", err)
		p.metrics.RecordJobFailed(string(kind), elapsed)
		if p.onFailure != nil {
			p.onFailure(id, kind, err)
		}
	} else {
		p.logger.Info("job completed", "job_id", id, "type", kind, "duration", elapsed)
		p.metrics.RecordJobCompleted(string(kind), elapsed)
	}

	p.schedule()
}

// execute turns an executor panic into a job failure.
func (p *Processor) execute(payload Payload) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return p.exec.Execute(context.Background(), payload)
}

// publishGauges must be called with mu held.
func (p *Processor) publishGauges() {
	if p.metrics == nil {
		return
	}
	p.metrics.SetJobGauges(p.active, p.repo.countByStatus(StatusPending))
}

// GetJobStatus returns a copy of the job.
func (p *Processor) GetJobStatus(id string) (Job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	j, ok := p.repo.get(id)
	if !ok {
		return Job{}, false
	}
	return snapshot(j), true
}

// ListJobs returns copies of the jobs of kind, or of every job when kind is
// empty, in queue order.
func (p *Processor) ListJobs(kind Kind) []Job {
	p.mu.Lock()
	defer p.mu.Unlock()

	jobs := p.repo.list(kind)
	out := make([]Job, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, snapshot(j))
	}
	return out
}

func snapshot(j *Job) Job {
	c := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return c
}

func (p *Processor) GetQueueStatus() QueueStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	return QueueStatus{
		Queues:            p.repo.status(),
		ActiveJobs:        p.active,
		MaxConcurrentJobs: p.maxConcurrent,
	}
}

// ClearCompletedJobs drops every completed job and leaves the rest alone.
func (p *Processor) ClearCompletedJobs() int {
	p.mu.Lock()
	n := p.repo.clearCompleted()
	p.mu.Unlock()

	p.logger.Info("completed jobs cleared", "count", n)
	return n
}

// Shutdown stops accepting and starting jobs, then waits for running jobs
// to finish or ctx to end. Pending jobs stay pending.
func (p *Processor) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for running jobs: %w", ctx.Err())
	}
}
