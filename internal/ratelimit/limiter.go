package ratelimit

import (
	"fmt"
	"sync"
	"time"

	logpkg "github.com/inflow-io/inflow/pkg/log"
)

// Result reports the outcome of a rate limit check.
type Result struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"resetAt"`
	RetryAfter int       `json:"retryAfter,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

// BanInfo describes an active temporary ban.
type BanInfo struct {
	Key    string    `json:"key"`
	Until  time.Time `json:"until"`
	Reason string    `json:"reason"`
}

// Options configures a Limiter.
type Options struct {
	MaxRequests int
	Window      time.Duration
	SpikeMax    int
	SpikeWindow time.Duration
	BanDuration time.Duration
	Logger      logpkg.Logger
	Now         func() time.Time
}

// Limiter is an in-memory sliding window rate limiter with spike detection
// and temporary bans. Safe for concurrent use.
type Limiter struct {
	maxRequests int
	window      time.Duration
	spikeMax    int
	spikeWindow time.Duration
	banDuration time.Duration

	mu       sync.Mutex
	requests map[string][]time.Time
	bans     map[string]ban

	logger logpkg.Logger
	now    func() time.Time
}

type ban struct {
	until  time.Time
	reason string
}

// New creates a Limiter. MaxRequests and Window must be positive.
func New(opts Options) (*Limiter, error) {
	if opts.MaxRequests <= 0 {
		return nil, fmt.Errorf("maxRequests must be positive")
	}
	if opts.Window <= 0 {
		return nil, fmt.Errorf("window must be positive")
	}
	if opts.SpikeMax <= 0 {
		opts.SpikeMax = 5
	}
	if opts.SpikeWindow <= 0 {
		opts.SpikeWindow = time.Minute
	}
	if opts.BanDuration <= 0 {
		opts.BanDuration = time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Limiter{
		maxRequests: opts.MaxRequests,
		window:      opts.Window,
		spikeMax:    opts.SpikeMax,
		spikeWindow: opts.SpikeWindow,
		banDuration: opts.BanDuration,
		requests:    make(map[string][]time.Time),
		bans:        make(map[string]ban),
		logger:      opts.Logger.With(logpkg.Component("ratelimit")),
		now:         opts.Now,
	}, nil
}

// Check records one request for key and reports whether it fits in the
// current window. When the window is full the request is not recorded and
// RetryAfter indicates when the oldest tracked request leaves the window.
func (l *Limiter) Check(key string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	kept := l.prune(key, now)

	if len(kept) >= l.maxRequests {
		oldest := kept[0]
		resetAt := oldest.Add(l.window)
		retryAfter := int(resetAt.Sub(now).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		return Result{
			Allowed:    false,
			Limit:      l.maxRequests,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: retryAfter,
			Reason:     fmt.Sprintf("rate limit exceeded: %d/%d requests", len(kept), l.maxRequests),
		}
	}

	l.requests[key] = append(kept, now)
	return Result{
		Allowed:   true,
		Limit:     l.maxRequests,
		Remaining: l.maxRequests - (len(kept) + 1),
		ResetAt:   now.Add(l.window),
	}
}

// DetectSpike reports whether key has made at least spikeMax requests within
// the spike window. The check is read-only; it does not record a request.
func (l *Limiter) DetectSpike(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.spikeWindow)
	var recent int
	for _, ts := range l.requests[key] {
		if ts.After(cutoff) {
			recent++
		}
	}
	if recent >= l.spikeMax {
		l.logger.Warn("spike detected",
			logpkg.Str("key", key),
			logpkg.Int("requests", recent),
			logpkg.Int("threshold", l.spikeMax),
			logpkg.Dur("window", l.spikeWindow))
		return true
	}
	return false
}

// Ban blocks key for the given duration. A non-positive duration uses the
// limiter default.
func (l *Limiter) Ban(key string, duration time.Duration, reason string) {
	if duration <= 0 {
		duration = l.banDuration
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	until := l.now().Add(duration)
	l.bans[key] = ban{until: until, reason: reason}
	l.logger.Warn("key banned",
		logpkg.Str("key", key),
		logpkg.Time("until", until),
		logpkg.Str("reason", reason))
}

// IsBanned reports whether key is currently banned. Expired bans are removed.
func (l *Limiter) IsBanned(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.bans[key]
	if !ok {
		return false
	}
	if l.now().After(b.until) {
		delete(l.bans, key)
		return false
	}
	return true
}

// GetBanInfo returns the active ban for key, or ok=false when there is none.
func (l *Limiter) GetBanInfo(key string) (BanInfo, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.bans[key]
	if !ok {
		return BanInfo{}, false
	}
	if l.now().After(b.until) {
		delete(l.bans, key)
		return BanInfo{}, false
	}
	return BanInfo{Key: key, Until: b.until, Reason: b.reason}, true
}

// Unban lifts a ban before it expires.
func (l *Limiter) Unban(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.bans, key)
}

// Snapshot returns the current request count inside the window for key
// without recording a request.
func (l *Limiter) Snapshot(key string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	kept := l.prune(key, now)
	remaining := l.maxRequests - len(kept)
	if remaining < 0 {
		remaining = 0
	}
	resetAt := now.Add(l.window)
	if len(kept) > 0 {
		resetAt = kept[0].Add(l.window)
	}
	return Result{
		Allowed:   remaining > 0,
		Limit:     l.maxRequests,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

// prune drops timestamps outside the window and stores the kept slice.
// Caller must hold l.mu. Kept timestamps remain in insertion order, so
// index 0 is the oldest.
func (l *Limiter) prune(key string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	old := l.requests[key]
	kept := old[:0]
	for _, ts := range old {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(l.requests, key)
		return nil
	}
	l.requests[key] = kept
	return kept
}
