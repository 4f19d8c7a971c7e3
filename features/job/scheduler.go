package job

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	cronlib "github.com/robfig/cron/v3"
)

const DefaultCleanupRetention = 30 * 24 * time.Hour

// Enqueuer is the part of Processor the scheduler needs.
type Enqueuer interface {
	AddJob(p Payload) string
}

// PayloadFunc builds the payload for a firing at t.
type PayloadFunc func(t time.Time) Payload

var specParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

type scheduleEntry struct {
	spec string
	stop chan struct{}
	done chan struct{}
}

// ScheduledRunner re-enqueues jobs on cron schedules. Each schedule owns a
// timer that is stopped by Stop or StopAll.
type ScheduledRunner struct {
	enq    Enqueuer
	clock  clockwork.Clock
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*scheduleEntry
}

func NewScheduledRunner(enq Enqueuer, clock clockwork.Clock, logger *slog.Logger) *ScheduledRunner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ScheduledRunner{
		enq:     enq,
		clock:   clock,
		logger:  logger,
		entries: make(map[string]*scheduleEntry),
	}
}

// Schedule registers fn under name using a 5-field cron spec or a
// descriptor such as "@every 24h". An existing schedule with the same name
// is stopped and replaced.
func (r *ScheduledRunner) Schedule(name, spec string, fn PayloadFunc) error {
	sched, err := specParser.Parse(spec)
	if err != nil {
		return fmt.Errorf("parse schedule %q: %w", spec, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.entries[name]; ok {
		r.halt(old)
	}

	e := &scheduleEntry{spec: spec, stop: make(chan struct{}), done: make(chan struct{})}
	now := r.clock.Now()
	timer := r.clock.NewTimer(sched.Next(now).Sub(now))
	r.entries[name] = e
	go r.loop(name, e, sched, fn, timer)

	r.logger.Info("scheduled job created", "name", name, "spec", spec)
	return nil
}

func (r *ScheduledRunner) loop(name string, e *scheduleEntry, sched cronlib.Schedule, fn PayloadFunc, timer clockwork.Timer) {
	defer close(e.done)
	defer timer.Stop()

	for {
		select {
		case <-e.stop:
			return
		case t := <-timer.Chan():
			p := fn(t)
			id := r.enq.AddJob(p)
			r.logger.Info("scheduled job executed", "name", name, "type", p.Kind(), "job_id", id)

			now := r.clock.Now()
			timer.Reset(sched.Next(now).Sub(now))
		}
	}
}

// halt must be called with mu held.
func (r *ScheduledRunner) halt(e *scheduleEntry) {
	close(e.stop)
	<-e.done
}

// Stop cancels the named schedule and reports whether it existed.
func (r *ScheduledRunner) Stop(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return false
	}
	r.halt(e)
	delete(r.entries, name)
	r.logger.Info("scheduled job stopped", "name", name)
	return true
}

func (r *ScheduledRunner) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, e := range r.entries {
		r.halt(e)
		delete(r.entries, name)
	}
	r.logger.Info("all scheduled jobs stopped")
}

// Names lists active schedules in lexical order.
func (r *ScheduledRunner) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ScheduleDefaults installs the daily cleanup and hourly analytics jobs.
// The cleanup cutoff is computed at each firing.
func ScheduleDefaults(r *ScheduledRunner, retention time.Duration) error {
	if retention <= 0 {
		retention = DefaultCleanupRetention
	}
	if err := r.Schedule("daily_cleanup", "@every 24h", func(t time.Time) Payload {
		return DataCleanup{OlderThan: t.Add(-retention)}
	}); err != nil {
		return err
	}
	return r.Schedule("hourly_analytics", "@every 1h", func(time.Time) Payload {
		return AnalyticsUpdate{}
	})
}
