package logger

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultBufferSize is the number of entries a Buffer retains.
const DefaultBufferSize = 1000

// Entry is one retained log record.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

type ring struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

// Buffer is an slog.Handler that keeps the most recent records in memory
// so they can be served by the health endpoint.
type Buffer struct {
	r      *ring
	level  slog.Leveler
	attrs  []slog.Attr
	prefix string
}

// NewBuffer retains up to size entries; size <= 0 means DefaultBufferSize.
func NewBuffer(size int, level slog.Leveler) *Buffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	if level == nil {
		level = slog.LevelInfo
	}
	return &Buffer{r: &ring{entries: make([]Entry, size)}, level: level}
}

func (b *Buffer) Enabled(_ context.Context, l slog.Level) bool {
	return l >= b.level.Level()
}

func (b *Buffer) Handle(_ context.Context, rec slog.Record) error {
	e := Entry{
		Timestamp: rec.Time,
		Level:     rec.Level.String(),
		Message:   rec.Message,
	}
	if n := len(b.attrs) + rec.NumAttrs(); n > 0 {
		e.Attrs = make(map[string]any, n)
		for _, a := range b.attrs {
			flatten(e.Attrs, "", a)
		}
		rec.Attrs(func(a slog.Attr) bool {
			flatten(e.Attrs, b.prefix, a)
			return true
		})
	}

	b.r.mu.Lock()
	defer b.r.mu.Unlock()
	b.r.entries[b.r.next] = e
	b.r.next = (b.r.next + 1) % len(b.r.entries)
	if b.r.next == 0 {
		b.r.full = true
	}
	return nil
}

// flatten stores a under prefix+key, expanding groups into dotted keys the
// same way WithGroup prefixes them. An empty group key inlines its members.
func flatten(dst map[string]any, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		attrs := v.Group()
		if len(attrs) == 0 {
			return
		}
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range attrs {
			flatten(dst, prefix, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	dst[prefix+a.Key] = v.Any()
}

func (b *Buffer) WithAttrs(attrs []slog.Attr) slog.Handler {
	nb := *b
	nb.attrs = append([]slog.Attr{}, b.attrs...)
	for _, a := range attrs {
		nb.attrs = append(nb.attrs, slog.Attr{Key: b.prefix + a.Key, Value: a.Value.Resolve()})
	}
	return &nb
}

func (b *Buffer) WithGroup(name string) slog.Handler {
	if name == "" {
		return b
	}
	nb := *b
	nb.prefix = b.prefix + name + "."
	return &nb
}

// Entries returns up to limit of the most recent entries, oldest first.
// An empty level matches every entry; limit <= 0 means no limit.
func (b *Buffer) Entries(level string, limit int) []Entry {
	b.r.mu.Lock()
	defer b.r.mu.Unlock()

	var ordered []Entry
	if b.r.full {
		ordered = append(ordered, b.r.entries[b.r.next:]...)
	}
	ordered = append(ordered, b.r.entries[:b.r.next]...)

	out := make([]Entry, 0, len(ordered))
	for _, e := range ordered {
		if level == "" || e.Level == level {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Clear drops every retained entry.
func (b *Buffer) Clear() {
	b.r.mu.Lock()
	defer b.r.mu.Unlock()
	b.r.entries = make([]Entry, len(b.r.entries))
	b.r.next = 0
	b.r.full = false
}
