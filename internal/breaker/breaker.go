package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	logpkg "github.com/inflow-io/inflow/pkg/log"
)

// ErrOpen is returned when the circuit rejects a call and no fallback is
// available.
var ErrOpen = errors.New("circuit open")

// State is the circuit state.
type State string

const (
	// Closed is normal operation; calls flow through and failures count.
	Closed State = "closed"
	// Open rejects calls immediately until the recovery timeout elapses.
	Open State = "open"
	// HalfOpen allows a limited number of probe calls during recovery.
	HalfOpen State = "half_open"
)

// Options configures a Breaker.
type Options struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	HalfOpenMax      int
	Logger           logpkg.Logger
	Now              func() time.Time
}

// Status is a point-in-time view of a breaker, shaped for monitoring.
type Status struct {
	Name                string     `json:"name"`
	State               State      `json:"state"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	TotalFailures       int64      `json:"totalFailures"`
	TotalSuccesses      int64      `json:"totalSuccesses"`
	FailureThreshold    int        `json:"failureThreshold"`
	RecoveryTimeout     string     `json:"recoveryTimeout"`
	StateChanges        int64      `json:"stateChanges"`
	LastFailure         *time.Time `json:"lastFailure,omitempty"`
	LastSuccess         *time.Time `json:"lastSuccess,omitempty"`
	OpenedAt            *time.Time `json:"openedAt,omitempty"`
}

// Breaker implements the circuit breaker pattern around an unreliable
// downstream. Safe for concurrent use; the protected call itself runs
// outside the breaker lock.
type Breaker struct {
	name             string
	failureThreshold int
	recoveryTimeout  time.Duration
	halfOpenMax      int

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	totalFailures       int64
	totalSuccesses      int64
	stateChanges        int64
	halfOpenCalls       int
	lastFailure         time.Time
	lastSuccess         time.Time
	openedAt            time.Time

	logger logpkg.Logger
	now    func() time.Time
}

// New creates a Breaker. Name is required; zero thresholds fall back to
// defaults (5 failures, 60s recovery, 3 half-open probes).
func New(name string, opts Options) (*Breaker, error) {
	if name == "" {
		return nil, fmt.Errorf("name required")
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 5
	}
	if opts.RecoveryTimeout <= 0 {
		opts.RecoveryTimeout = time.Minute
	}
	if opts.HalfOpenMax <= 0 {
		opts.HalfOpenMax = 3
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Breaker{
		name:             name,
		failureThreshold: opts.FailureThreshold,
		recoveryTimeout:  opts.RecoveryTimeout,
		halfOpenMax:      opts.HalfOpenMax,
		state:            Closed,
		logger:           opts.Logger.With(logpkg.Component("breaker"), logpkg.Str("circuit", name)),
		now:              opts.Now,
	}, nil
}

// Name returns the circuit identifier.
func (b *Breaker) Name() string { return b.name }

// State returns the current state, applying the open-to-half-open
// transition if the recovery timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeRecover()
	return b.state
}

// Status returns a snapshot for monitoring endpoints.
func (b *Breaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeRecover()
	st := Status{
		Name:                b.name,
		State:               b.state,
		ConsecutiveFailures: b.consecutiveFailures,
		TotalFailures:       b.totalFailures,
		TotalSuccesses:      b.totalSuccesses,
		FailureThreshold:    b.failureThreshold,
		RecoveryTimeout:     b.recoveryTimeout.String(),
		StateChanges:        b.stateChanges,
	}
	if !b.lastFailure.IsZero() {
		t := b.lastFailure
		st.LastFailure = &t
	}
	if !b.lastSuccess.IsZero() {
		t := b.lastSuccess
		st.LastSuccess = &t
	}
	if !b.openedAt.IsZero() {
		t := b.openedAt
		st.OpenedAt = &t
	}
	return st
}

// Reset manually closes the circuit and clears the failure streak.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(Closed)
	b.consecutiveFailures = 0
	b.halfOpenCalls = 0
}

// ForceOpen manually opens the circuit, for maintenance or testing.
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(Open)
}

// Do executes fn through the breaker b. When the circuit is open, or the
// half-open probe budget is exhausted, fallback is called instead; a nil
// fallback yields the zero value and ErrOpen. Errors from fn are recorded
// and returned to the caller.
func Do[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error), fallback func() T) (T, error) {
	if ok := b.acquire(); !ok {
		var zero T
		if fallback != nil {
			return fallback(), nil
		}
		return zero, fmt.Errorf("circuit %q: %w", b.name, ErrOpen)
	}

	out, err := fn(ctx)
	if err != nil {
		b.recordFailure(err)
		var zero T
		return zero, err
	}
	b.recordSuccess()
	return out, nil
}

// DoWithFallback is like Do but also routes fn errors to fallback, so the
// caller never sees an error when a fallback is provided.
func DoWithFallback[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error), fallback func() T) (T, error) {
	out, err := Do(ctx, b, fn, fallback)
	if err != nil && fallback != nil {
		b.logger.Error("call failed, using fallback", logpkg.Err(err))
		return fallback(), nil
	}
	return out, err
}

// acquire decides whether a call may proceed. It claims a half-open probe
// slot when applicable.
func (b *Breaker) acquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeRecover()

	switch b.state {
	case Open:
		b.logger.Warn("circuit open, rejecting call")
		return false
	case HalfOpen:
		if b.halfOpenCalls >= b.halfOpenMax {
			b.logger.Warn("half-open probe budget exhausted, rejecting call")
			return false
		}
		b.halfOpenCalls++
	}
	return true
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	b.totalSuccesses++
	b.lastSuccess = b.now()

	if b.state == HalfOpen {
		b.logger.Info("circuit recovered, closing")
		b.transition(Closed)
	}
}

func (b *Breaker) recordFailure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++
	b.totalFailures++
	b.lastFailure = b.now()

	b.logger.Warn("call failed",
		logpkg.Int("consecutive", b.consecutiveFailures),
		logpkg.Int("threshold", b.failureThreshold),
		logpkg.Err(err))

	switch {
	case b.state == HalfOpen:
		b.logger.Warn("probe failed, reopening circuit")
		b.transition(Open)
	case b.consecutiveFailures >= b.failureThreshold:
		b.logger.Error("failure threshold reached, opening circuit")
		b.transition(Open)
	}
}

// maybeRecover moves an expired open circuit to half-open. Caller must
// hold b.mu.
func (b *Breaker) maybeRecover() {
	if b.state != Open || b.openedAt.IsZero() {
		return
	}
	if b.now().Sub(b.openedAt) >= b.recoveryTimeout {
		b.transition(HalfOpen)
		b.halfOpenCalls = 0
	}
}

// transition changes state. Caller must hold b.mu.
func (b *Breaker) transition(next State) {
	if b.state == next {
		return
	}
	prev := b.state
	b.state = next
	b.stateChanges++
	if next == Open {
		b.openedAt = b.now()
	}
	b.logger.Info("state change",
		logpkg.Str("from", string(prev)),
		logpkg.Str("to", string(next)))
}
