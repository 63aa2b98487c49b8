package breaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errDown = errors.New("downstream unavailable")

func newTestBreaker(t *testing.T, clk *time.Time, opts Options) *Breaker {
	t.Helper()
	opts.Now = func() time.Time { return *clk }
	b, err := New("test", opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b
}

func fail(context.Context) (string, error)    { return "", errDown }
func succeed(context.Context) (string, error) { return "ok", nil }

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	clk := time.UnixMilli(1_000_000)
	b := newTestBreaker(t, &clk, Options{FailureThreshold: 3})

	for i := 0; i < 3; i++ {
		if _, err := Do(context.Background(), b, fail, nil); !errors.Is(err, errDown) {
			t.Fatalf("call %d: err = %v", i, err)
		}
	}
	if b.State() != Open {
		t.Fatalf("state = %s, want open", b.State())
	}
	if _, err := Do(context.Background(), b, succeed, nil); !errors.Is(err, ErrOpen) {
		t.Fatalf("open circuit should fail fast, got %v", err)
	}
}

func TestSuccessResetsStreak(t *testing.T) {
	clk := time.UnixMilli(1_000_000)
	b := newTestBreaker(t, &clk, Options{FailureThreshold: 3})

	Do(context.Background(), b, fail, nil)
	Do(context.Background(), b, fail, nil)
	Do(context.Background(), b, succeed, nil)
	Do(context.Background(), b, fail, nil)
	Do(context.Background(), b, fail, nil)
	if b.State() != Closed {
		t.Fatalf("interleaved success should keep circuit closed, state = %s", b.State())
	}
}

func TestFallbackWhileOpen(t *testing.T) {
	clk := time.UnixMilli(1_000_000)
	b := newTestBreaker(t, &clk, Options{FailureThreshold: 1})

	Do(context.Background(), b, fail, nil)
	out, err := Do(context.Background(), b, succeed, func() string { return "fallback" })
	if err != nil {
		t.Fatalf("fallback path should not error: %v", err)
	}
	if out != "fallback" {
		t.Fatalf("out = %q, want fallback", out)
	}
	// The protected function must not run while open.
	ran := false
	Do(context.Background(), b, func(context.Context) (string, error) {
		ran = true
		return "", nil
	}, func() string { return "fallback" })
	if ran {
		t.Fatalf("protected call ran while circuit open")
	}
}

func TestHalfOpenRecovery(t *testing.T) {
	clk := time.UnixMilli(1_000_000)
	b := newTestBreaker(t, &clk, Options{FailureThreshold: 1, RecoveryTimeout: 30 * time.Second})

	Do(context.Background(), b, fail, nil)
	if b.State() != Open {
		t.Fatalf("state = %s, want open", b.State())
	}
	clk = clk.Add(31 * time.Second)
	if b.State() != HalfOpen {
		t.Fatalf("state = %s, want half_open after recovery timeout", b.State())
	}
	if _, err := Do(context.Background(), b, succeed, nil); err != nil {
		t.Fatalf("probe should pass: %v", err)
	}
	if b.State() != Closed {
		t.Fatalf("successful probe should close circuit, state = %s", b.State())
	}
}

func TestHalfOpenProbeFailureReopens(t *testing.T) {
	clk := time.UnixMilli(1_000_000)
	b := newTestBreaker(t, &clk, Options{FailureThreshold: 1, RecoveryTimeout: 30 * time.Second})

	Do(context.Background(), b, fail, nil)
	clk = clk.Add(31 * time.Second)
	if _, err := Do(context.Background(), b, fail, nil); !errors.Is(err, errDown) {
		t.Fatalf("probe err = %v", err)
	}
	if b.State() != Open {
		t.Fatalf("failed probe should reopen, state = %s", b.State())
	}
	// Reopening restarts the recovery clock.
	clk = clk.Add(29 * time.Second)
	if b.State() != Open {
		t.Fatalf("circuit should still be open before new timeout")
	}
}

func TestHalfOpenProbeBudget(t *testing.T) {
	clk := time.UnixMilli(1_000_000)
	b := newTestBreaker(t, &clk, Options{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Second,
		HalfOpenMax:      2,
	})

	Do(context.Background(), b, fail, nil)
	clk = clk.Add(2 * time.Second)
	if b.State() != HalfOpen {
		t.Fatalf("state = %s, want half_open", b.State())
	}

	// Occupy both probe slots with in-flight calls.
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	blocked := func(context.Context) (string, error) {
		started <- struct{}{}
		<-release
		return "ok", nil
	}
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			Do(context.Background(), b, blocked, nil)
		}()
	}
	<-started
	<-started

	out, err := Do(context.Background(), b, succeed, func() string { return "fallback" })
	if err != nil || out != "fallback" {
		t.Fatalf("third half-open call should use fallback: %q, %v", out, err)
	}
	close(release)
	wg.Wait()
}

func TestDoWithFallbackCatchesErrors(t *testing.T) {
	clk := time.UnixMilli(1_000_000)
	b := newTestBreaker(t, &clk, Options{FailureThreshold: 5})

	out, err := DoWithFallback(context.Background(), b, fail, func() string { return "fallback" })
	if err != nil {
		t.Fatalf("DoWithFallback should not return errors: %v", err)
	}
	if out != "fallback" {
		t.Fatalf("out = %q", out)
	}
	if st := b.Status(); st.TotalFailures != 1 {
		t.Fatalf("failure should still be recorded: %+v", st)
	}
}

func TestResetAndForceOpen(t *testing.T) {
	clk := time.UnixMilli(1_000_000)
	b := newTestBreaker(t, &clk, Options{FailureThreshold: 1})

	b.ForceOpen()
	if b.State() != Open {
		t.Fatalf("ForceOpen did not open circuit")
	}
	b.Reset()
	if b.State() != Closed {
		t.Fatalf("Reset did not close circuit")
	}
	if _, err := Do(context.Background(), b, succeed, nil); err != nil {
		t.Fatalf("call after reset: %v", err)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(Options{FailureThreshold: 2})
	a, err := r.GetOrCreate("forward")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	again, err := r.GetOrCreate("forward")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if a != again {
		t.Fatalf("GetOrCreate should return the same instance")
	}
	r.GetOrCreate("alpha")
	sts := r.Statuses()
	if len(sts) != 2 || sts[0].Name != "alpha" || sts[1].Name != "forward" {
		t.Fatalf("Statuses = %+v", sts)
	}
	if _, ok := r.Get("missing"); ok {
		t.Fatalf("Get should miss for unknown name")
	}
}
