package debounce

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	logpkg "github.com/inflow-io/inflow/pkg/log"
)

// Flush is the coalesced output for one key: every buffered body joined with
// the configured separator, attributed to the first event's id.
type Flush struct {
	Key     string
	Body    string
	FirstID string
	Label   string
	Count   int
}

// FlushFunc receives coalesced events. It is called outside the buffer lock
// and may block without stalling other keys. Errors from timer-driven
// flushes are logged and dropped; FlushAll surfaces them to the caller.
type FlushFunc func(Flush) error

// Stats summarizes buffer occupancy.
type Stats struct {
	PendingKeys    int   `json:"pendingKeys"`
	BufferedEvents int   `json:"bufferedEvents"`
	WindowMs       int64 `json:"windowMs"`
	MaxEvents      int   `json:"maxEvents"`
}

// Options configures a Buffer.
type Options struct {
	Window    time.Duration
	MaxEvents int
	Separator string
	Logger    logpkg.Logger
}

type event struct {
	id   string
	body string
}

type entry struct {
	events []event
	label  string
	gen    uint64
	timer  *time.Timer
}

// Buffer coalesces rapid-fire events per key. Each new event restarts the
// key's window; when the window elapses quietly, or the key accumulates
// MaxEvents, everything buffered for that key is flushed as one unit.
//
// Timer expiry races with concurrent Add calls are resolved with a per-key
// generation counter: a fired timer flushes only if no newer event has
// arrived since it was armed.
type Buffer struct {
	window    time.Duration
	maxEvents int
	separator string
	onFlush   FlushFunc

	mu      sync.Mutex
	entries map[string]*entry

	logger logpkg.Logger
}

// New creates a Buffer that delivers coalesced events to onFlush.
func New(onFlush FlushFunc, opts Options) (*Buffer, error) {
	if onFlush == nil {
		return nil, fmt.Errorf("onFlush required")
	}
	if opts.Window <= 0 {
		return nil, fmt.Errorf("window must be positive")
	}
	if opts.MaxEvents <= 0 {
		return nil, fmt.Errorf("maxEvents must be positive")
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger()
	}
	return &Buffer{
		window:    opts.Window,
		maxEvents: opts.MaxEvents,
		separator: opts.Separator,
		onFlush:   onFlush,
		entries:   make(map[string]*entry),
		logger:    opts.Logger.With(logpkg.Component("debounce")),
	}, nil
}

// Add buffers one event for key and restarts the key's flush window. A
// non-empty label replaces the one remembered for the key. Reaching
// MaxEvents flushes synchronously before Add returns.
func (b *Buffer) Add(key, body, id, label string) {
	b.mu.Lock()

	e, ok := b.entries[key]
	if !ok {
		e = &entry{}
		b.entries[key] = e
		b.logger.Debug("buffer created", logpkg.Str("key", key))
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.events = append(e.events, event{id: id, body: body})
	if label != "" {
		e.label = label
	}
	e.gen++

	if len(e.events) >= b.maxEvents {
		f := b.takeLocked(key)
		b.mu.Unlock()
		b.logger.Info("max buffer size reached, force flushing",
			logpkg.Str("key", key), logpkg.Int("count", f.Count))
		if err := b.onFlush(f); err != nil {
			b.logger.Error("flush failed",
				logpkg.Str("key", key), logpkg.Err(err))
		}
		return
	}

	gen := e.gen
	e.timer = time.AfterFunc(b.window, func() { b.expire(key, gen) })
	b.mu.Unlock()
}

// expire flushes key if no newer event arrived after the timer was armed.
func (b *Buffer) expire(key string, gen uint64) {
	b.mu.Lock()
	e, ok := b.entries[key]
	if !ok || e.gen != gen {
		b.mu.Unlock()
		return
	}
	f := b.takeLocked(key)
	b.mu.Unlock()

	if f.Count == 0 {
		return
	}
	if err := b.onFlush(f); err != nil {
		b.logger.Error("flush failed",
			logpkg.Str("key", key), logpkg.Err(err))
	}
}

// FlushAll immediately flushes every pending key. Used on shutdown so
// buffered events are not lost. Callback errors are joined and returned so
// the caller knows which tails were dropped.
func (b *Buffer) FlushAll() error {
	b.mu.Lock()
	flushes := make([]Flush, 0, len(b.entries))
	for key, e := range b.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
		flushes = append(flushes, b.takeLocked(key))
	}
	b.mu.Unlock()

	var errs []error
	for _, f := range flushes {
		if f.Count == 0 {
			continue
		}
		if err := b.onFlush(f); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", f.Key, err))
		}
	}
	return errors.Join(errs...)
}

// PendingCount returns the number of keys with buffered events.
func (b *Buffer) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// GetStats returns buffer occupancy for monitoring.
func (b *Buffer) GetStats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := 0
	for _, e := range b.entries {
		total += len(e.events)
	}
	return Stats{
		PendingKeys:    len(b.entries),
		BufferedEvents: total,
		WindowMs:       b.window.Milliseconds(),
		MaxEvents:      b.maxEvents,
	}
}

// takeLocked removes key's entry and builds its Flush. Caller must hold
// b.mu.
func (b *Buffer) takeLocked(key string) Flush {
	e := b.entries[key]
	delete(b.entries, key)
	if e == nil || len(e.events) == 0 {
		return Flush{Key: key}
	}
	bodies := make([]string, len(e.events))
	for i, ev := range e.events {
		bodies[i] = ev.body
	}
	return Flush{
		Key:     key,
		Body:    strings.Join(bodies, b.separator),
		FirstID: e.events[0].id,
		Label:   e.label,
		Count:   len(e.events),
	}
}
