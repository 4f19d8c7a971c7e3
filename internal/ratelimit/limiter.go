// Package ratelimit implements a fixed-window request counter keyed by an
// arbitrary identifier. Bursts of up to twice the limit are possible across
// a window boundary.
package ratelimit

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Config describes one limiter.
type Config struct {
	Window      time.Duration
	MaxRequests int
	// KeyFunc maps an identifier to the counter key. Defaults to "rate_limit:<id>".
	KeyFunc func(id string) string
}

// Result is the outcome of a single Allow call.
type Result struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetTime time.Time `json:"resetTime"`
}

type counter struct {
	count     int
	resetTime time.Time
}

type Option func(*Limiter)

func WithClock(c clockwork.Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

func WithLogger(lg *slog.Logger) Option {
	return func(l *Limiter) { l.logger = lg }
}

type Limiter struct {
	cfg    Config
	clock  clockwork.Clock
	logger *slog.Logger

	mu       sync.Mutex
	counters map[string]*counter
}

func New(cfg Config, opts ...Option) *Limiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = defaultKey
	}
	l := &Limiter{
		cfg:      cfg,
		clock:    clockwork.NewRealClock(),
		counters: make(map[string]*counter),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

func defaultKey(id string) string {
	return "rate_limit:" + id
}

// Limit is the configured maximum per window.
func (l *Limiter) Limit() int {
	return l.cfg.MaxRequests
}

// Allow counts one request for id.
func (l *Limiter) Allow(id string) Result {
	key := l.cfg.KeyFunc(id)
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.purge(now)

	c, ok := l.counters[key]
	if !ok || c.resetTime.Before(now) {
		c = &counter{count: 1, resetTime: now.Add(l.cfg.Window)}
		l.counters[key] = c
		return Result{Allowed: true, Remaining: l.cfg.MaxRequests - 1, ResetTime: c.resetTime}
	}

	if c.count >= l.cfg.MaxRequests {
		l.logger.Debug("rate limit exceeded", "key", key, "reset", c.resetTime)
		return Result{Allowed: false, Remaining: 0, ResetTime: c.resetTime}
	}

	c.count++
	return Result{Allowed: true, Remaining: l.cfg.MaxRequests - c.count, ResetTime: c.resetTime}
}

// Reset forgets the counter for id.
func (l *Limiter) Reset(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.counters, l.cfg.KeyFunc(id))
}

// Len reports the number of live counters.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.counters)
}

// purge must be called with mu held.
func (l *Limiter) purge(now time.Time) {
	for k, c := range l.counters {
		if c.resetTime.Before(now) {
			delete(l.counters, k)
		}
	}
}

// Headers renders r as the standard rate limit response headers.
func Headers(r Result, limit int) map[string]string {
	return map[string]string{
		"X-RateLimit-Remaining": strconv.Itoa(r.Remaining),
		"X-RateLimit-Reset":     r.ResetTime.UTC().Format(time.RFC3339),
		"X-RateLimit-Limit":     strconv.Itoa(limit),
	}
}
