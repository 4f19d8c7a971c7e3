// Package cache provides an in-memory key/value store with per-entry TTL,
// lazy expiry on read and a periodic sweep that also enforces a size bound.
//
// Eviction past MaxSize is by insertion time (oldest Set first), not by
// access recency: an entry that is read often but never rewritten can be
// evicted ahead of a colder one that was set later.
package cache

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Config holds the tuning for one cache instance.
type Config struct {
	DefaultTTL      time.Duration
	MaxSize         int
	CleanupInterval time.Duration
}

// Stats is a point-in-time view of the store.
// HitRate is always 0: hits and misses are not tracked.
type Stats struct {
	Total   int     `json:"total"`
	Valid   int     `json:"valid"`
	Expired int     `json:"expired"`
	HitRate float64 `json:"hit_rate"`
}

type entry[V any] struct {
	value     V
	timestamp time.Time
	ttl       time.Duration
}

func (e entry[V]) expired(now time.Time) bool {
	return now.Sub(e.timestamp) > e.ttl
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	clock  clockwork.Clock
	logger *slog.Logger
	name   string
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger used to report sweeps.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithName labels the instance in log lines.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// Cache is safe for concurrent use. The zero value is not usable; call New.
type Cache[V any] struct {
	cfg    Config
	clock  clockwork.Clock
	logger *slog.Logger
	name   string

	mu    sync.Mutex
	store map[string]entry[V]

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// New creates a cache and starts its sweep loop. A CleanupInterval of zero
// disables the background sweep; Sweep can still be called directly.
func New[V any](cfg Config, opts ...Option) *Cache[V] {
	o := options{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	c := &Cache[V]{
		cfg:    cfg,
		clock:  o.clock,
		logger: o.logger,
		name:   o.name,
		store:  make(map[string]entry[V]),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}

	if cfg.CleanupInterval <= 0 {
		close(c.done)
		return c
	}

	// The ticker is created before the goroutine starts so that a fake clock
	// advanced right after New still triggers the first sweep.
	ticker := c.clock.NewTicker(cfg.CleanupInterval)
	go c.sweepLoop(ticker)
	return c
}

func (c *Cache[V]) sweepLoop(ticker clockwork.Ticker) {
	defer close(c.done)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.Chan():
			if removed := c.Sweep(); removed > 0 {
				c.logger.Debug("cache sweep", "cache", c.name, "removed", removed)
			}
		}
	}
}

// Set stores value under key with the default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, 0)
}

// SetWithTTL stores value under key. A non-positive ttl means the default.
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = entry[V]{value: value, timestamp: c.clock.Now(), ttl: ttl}
}

// Get returns the value for key. An entry older than its TTL is deleted and
// reported as a miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.store[key]
	if !ok {
		return zero, false
	}
	if e.expired(c.clock.Now()) {
		delete(c.store, key)
		return zero, false
	}
	return e.value, true
}

// Has reports whether key holds an unexpired value.
func (c *Cache[V]) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Delete removes key and reports whether it was present.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.store[key]
	delete(c.store, key)
	return ok
}

// Clear drops every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = make(map[string]entry[V])
}

// Size counts stored entries, expired ones included until they are swept or read.
func (c *Cache[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.store)
}

// Keys lists stored keys in no particular order.
func (c *Cache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.store))
	for k := range c.store {
		keys = append(keys, k)
	}
	return keys
}

// Sweep removes expired entries, then evicts the oldest entries by
// timestamp until the store fits MaxSize. It returns how many were removed.
func (c *Cache[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	removed := 0
	for k, e := range c.store {
		if e.expired(now) {
			delete(c.store, k)
			removed++
		}
	}

	if c.cfg.MaxSize <= 0 || len(c.store) <= c.cfg.MaxSize {
		return removed
	}

	type aged struct {
		key string
		ts  time.Time
	}
	all := make([]aged, 0, len(c.store))
	for k, e := range c.store {
		all = append(all, aged{key: k, ts: e.timestamp})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ts.Before(all[j].ts) })

	excess := len(c.store) - c.cfg.MaxSize
	for _, a := range all[:excess] {
		delete(c.store, a.key)
	}
	return removed + excess
}

// Stats classifies stored entries as valid or expired without removing any.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	s := Stats{Total: len(c.store)}
	for _, e := range c.store {
		if e.expired(now) {
			s.Expired++
		} else {
			s.Valid++
		}
	}
	return s
}

// Close stops the sweep loop and empties the store. It is safe to call more
// than once.
func (c *Cache[V]) Close() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	<-c.done
	c.Clear()
}
